package report

import (
	"context"
	"fmt"
	"strings"

	"github.com/guiasync/tracking-reconciler/batch"
	"github.com/guiasync/tracking-reconciler/scraper"
	"github.com/guiasync/tracking-reconciler/sheets"
	"github.com/guiasync/tracking-reconciler/tracker"
	"github.com/rs/zerolog/log"
)

// StatusRunner resolves identifiers in orchestrated batches. *batch.Runner
// satisfies it.
type StatusRunner interface {
	Run(ctx context.Context, trackingIDs []string, flush batch.FlushFunc) ([]scraper.Result, error)
}

// UpdateOptions bound one scrape-and-update run.
type UpdateOptions struct {
	StartRow  int
	EndRow    int
	OnlyEmpty bool
	// SkipSettled leaves out rows whose vendor status is no longer worth
	// querying, or where either side already reached a terminal state.
	SkipSettled bool
}

// UpdateStats summarizes a finished run.
type UpdateStats struct {
	Processed int
	Resolved  int
	Empty     int
}

type rowItem struct {
	row        int
	trackingID string
}

// UpdateStatuses reads the sheet, scrapes the carrier status for each
// selected row and writes back normalized status, raw status and alert flag
// chunk by chunk. Only non-empty results are written, so failed lookups never
// clobber existing data.
func UpdateStatuses(ctx context.Context, store SheetStore, runner StatusRunner, norm *tracker.Normalizer, opts UpdateOptions) (UpdateStats, error) {
	if opts.StartRow < 2 {
		opts.StartRow = 2
	}

	records, _, err := store.ReadRecords(ctx)
	if err != nil {
		return UpdateStats{}, err
	}
	if err := store.EnsureHeaders(ctx, requiredHeaders); err != nil {
		return UpdateStats{}, err
	}
	headers, err := store.ReadHeaders(ctx)
	if err != nil {
		return UpdateStats{}, err
	}

	carrierCol := headerIndex(headers, ColCarrier)
	if carrierCol == 0 {
		return UpdateStats{}, fmt.Errorf("required column %q not found", ColCarrier)
	}
	rawCol := headerIndex(headers, ColCarrierRaw) // optional
	alertCol := headerIndex(headers, ColAlert)    // optional

	// Select rows to process.
	var items []rowItem
	for i, rec := range records {
		row := i + 2
		if row < opts.StartRow {
			continue
		}
		if opts.EndRow > 0 && row > opts.EndRow {
			break
		}

		trackingID := strings.TrimSpace(rec[ColTrackingID])
		if trackingID == "" {
			continue
		}
		if opts.OnlyEmpty && strings.TrimSpace(rec[ColCarrier]) != "" {
			continue
		}
		if opts.SkipSettled && settled(norm, rec) {
			continue
		}
		items = append(items, rowItem{row: row, trackingID: trackingID})
	}

	if len(items) == 0 {
		log.Info().Msg("No rows to process with current filters")
		return UpdateStats{}, nil
	}

	// Duplicate identifiers map to rows first-come first-served.
	pendingRows := map[string][]int{}
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.trackingID)
		pendingRows[item.trackingID] = append(pendingRows[item.trackingID], item.row)
	}

	stats := UpdateStats{}
	flush := func(ctx context.Context, results []scraper.Result) error {
		var updates []sheets.CellUpdate
		for _, res := range results {
			rows := pendingRows[res.TrackingID]
			if len(rows) == 0 {
				log.Warn().Str("trackingID", res.TrackingID).Msg("Result without a pending row")
				continue
			}
			row := rows[0]
			pendingRows[res.TrackingID] = rows[1:]

			stats.Processed++
			raw := strings.TrimSpace(res.Raw)
			if raw == "" {
				stats.Empty++
				continue
			}
			stats.Resolved++

			carrier := norm.Normalize(raw)
			updates = append(updates, sheets.CellUpdate{Row: row, Col: carrierCol, Value: carrier})
			if rawCol > 0 {
				updates = append(updates, sheets.CellUpdate{Row: row, Col: rawCol, Value: raw})
			}
			if alertCol > 0 {
				vendorRaw := strings.TrimSpace(records[row-2][ColVendor])
				var vendor tracker.Category
				if vendorRaw != "" {
					vendor = norm.Normalize(vendorRaw)
				}
				alert := "FALSE"
				if tracker.ComputeAlert(vendor, carrier) {
					alert = "TRUE"
				}
				updates = append(updates, sheets.CellUpdate{Row: row, Col: alertCol, Value: alert})
			}
		}

		if len(updates) == 0 {
			return nil
		}
		return store.FlushCells(ctx, updates)
	}

	if _, err := runner.Run(ctx, ids, flush); err != nil {
		return stats, err
	}

	log.Info().
		Int("processed", stats.Processed).
		Int("resolved", stats.Resolved).
		Int("empty", stats.Empty).
		Msg("Status update finished")
	return stats, nil
}

// settled reports whether a row no longer needs scraping: the vendor status
// rules out carrier movement, or either side already reached a final state.
func settled(norm *tracker.Normalizer, rec sheets.Record) bool {
	vendorRaw := strings.TrimSpace(rec[ColVendor])
	if vendorRaw == "" {
		return false
	}
	vendor := norm.Normalize(vendorRaw)
	if !tracker.CanQuery(vendor) {
		return true
	}
	if carrierRaw := strings.TrimSpace(rec[ColCarrier]); carrierRaw != "" {
		return tracker.Terminal(vendor, norm.Normalize(carrierRaw))
	}
	return false
}

// headerIndex returns the 1-based column of a header, 0 when absent.
func headerIndex(headers []string, name string) int {
	for i, h := range headers {
		if h == name {
			return i + 1
		}
	}
	return 0
}
