package report

import (
	"context"
	"fmt"
	"strings"

	"github.com/guiasync/tracking-reconciler/sheets"
	"github.com/guiasync/tracking-reconciler/tracker"
	"github.com/rs/zerolog/log"
)

// MarkCompare writes the COINCIDEN and ALERTA columns for every selected
// row: COINCIDEN is TRUE when both normalized statuses are present and equal,
// ALERTA comes from the alert rule. Existing headers are used when present;
// otherwise the historical fixed columns E and F.
func MarkCompare(ctx context.Context, store SheetStore, norm *tracker.Normalizer, startRow, endRow int) (int, error) {
	if startRow < 2 {
		startRow = 2
	}

	records, headers, err := store.ReadRecords(ctx)
	if err != nil {
		return 0, err
	}

	if headerIndex(headers, ColVendor) == 0 || headerIndex(headers, ColCarrier) == 0 {
		return 0, fmt.Errorf("required columns %q and %q not found", ColVendor, ColCarrier)
	}

	matchCol := firstHeaderIndex(headers, []string{ColMatch, "COINCIDE", "Coinciden", "Coincide"}, 5)
	alertCol := firstHeaderIndex(headers, []string{ColAlertUpper, ColAlert}, 6)

	var updates []sheets.CellUpdate
	for i, rec := range records {
		row := i + 2
		if row < startRow {
			continue
		}
		if endRow > 0 && row > endRow {
			break
		}

		vendorRaw := strings.TrimSpace(rec[ColVendor])
		carrierRaw := strings.TrimSpace(rec[ColCarrier])

		var vendor, carrier tracker.Category
		if vendorRaw != "" {
			vendor = norm.Normalize(vendorRaw)
		}
		if carrierRaw != "" {
			carrier = norm.Normalize(carrierRaw)
		}

		match := "FALSE"
		if vendor != "" && carrier != "" && vendor == carrier {
			match = "TRUE"
		}
		alert := "FALSE"
		if tracker.ComputeAlert(vendor, carrier) {
			alert = "TRUE"
		}

		updates = append(updates,
			sheets.CellUpdate{Row: row, Col: matchCol, Value: match},
			sheets.CellUpdate{Row: row, Col: alertCol, Value: alert},
		)
	}

	if len(updates) == 0 {
		log.Info().Msg("Mark-compare: no rows to update")
		return 0, nil
	}

	if err := store.FlushCells(ctx, updates); err != nil {
		return 0, err
	}

	written := len(updates) / 2
	log.Info().Int("rows", written).Msg("Mark-compare written")
	return written, nil
}

// firstHeaderIndex resolves the first matching header name, falling back to
// a fixed column index.
func firstHeaderIndex(headers []string, candidates []string, fallback int) int {
	for _, name := range candidates {
		if idx := headerIndex(headers, name); idx > 0 {
			return idx
		}
	}
	return fallback
}
