package report

import (
	"context"
	"strings"
	"time"

	"github.com/guiasync/tracking-reconciler/sheets"
	"github.com/guiasync/tracking-reconciler/tracker"
	"github.com/rs/zerolog/log"
)

// SheetStore is the slice of the spreadsheet collaborator the reporting
// layer depends on. *sheets.Client satisfies it.
type SheetStore interface {
	ReadRecords(ctx context.Context) ([]sheets.Record, []string, error)
	ReadHeaders(ctx context.Context) ([]string, error)
	EnsureHeaders(ctx context.Context, required []string) error
	FlushCells(ctx context.Context, updates []sheets.CellUpdate) error
	CreateOrAppendDailyReport(ctx context.Context, rows [][]interface{}, prefix string) (string, error)
}

// Column names used on the reconciliation sheet.
const (
	ColTrackingID = "ID TRACKING"
	ColVendorID   = "ID DROPI"
	ColVendor     = "STATUS DROPI"
	ColCarrier    = "STATUS TRACKING"
	ColCarrierRaw = "STATUS TRACKING RAW"
	ColAlert      = "Alerta"
	ColMatch      = "COINCIDEN"
	ColAlertUpper = "ALERTA"

	timestampLayout = "2006-01-02 15:04:05"
)

// requiredHeaders must exist before any write-back operation.
var requiredHeaders = []string{ColVendorID, ColTrackingID, ColVendor, ColCarrier, ColAlert}

// CompareRow is one vendor/carrier difference.
type CompareRow struct {
	TrackingID string
	Vendor     tracker.Category
	Carrier    tracker.Category
	CheckedAt  time.Time
}

// CompareOptions bound a comparison run. EndRow 0 means the whole sheet;
// rows are 1-based and row 1 holds headers.
type CompareOptions struct {
	StartRow       int
	EndRow         int
	OnlyMismatches bool
}

// Compare normalizes both status columns for every row and returns the
// difference tuples.
func Compare(ctx context.Context, store SheetStore, norm *tracker.Normalizer, opts CompareOptions) ([]CompareRow, error) {
	if opts.StartRow < 2 {
		opts.StartRow = 2
	}

	records, _, err := store.ReadRecords(ctx)
	if err != nil {
		return nil, err
	}
	if err := store.EnsureHeaders(ctx, requiredHeaders); err != nil {
		return nil, err
	}

	var diffs []CompareRow
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

		vendorRaw := strings.TrimSpace(rec[ColVendor])
		carrierRaw := strings.TrimSpace(rec[ColCarrier])

		vendor := norm.Normalize(vendorRaw)
		var carrier tracker.Category
		if carrierRaw != "" {
			carrier = norm.Normalize(carrierRaw)
		}

		if opts.OnlyMismatches && vendor == carrier {
			continue
		}

		diffs = append(diffs, CompareRow{
			TrackingID: trackingID,
			Vendor:     vendor,
			Carrier:    carrier,
			CheckedAt:  time.Now(),
		})
	}

	log.Info().Int("mismatches", len(diffs)).Msg("Comparison finished")
	return diffs, nil
}

// GenerateDaily runs Compare and appends the differences to today's dated
// report tab. It returns the tab name.
func GenerateDaily(ctx context.Context, store SheetStore, norm *tracker.Normalizer, prefix string, opts CompareOptions) (string, error) {
	diffs, err := Compare(ctx, store, norm, opts)
	if err != nil {
		return "", err
	}

	rows := make([][]interface{}, 0, len(diffs))
	for _, d := range diffs {
		rows = append(rows, []interface{}{
			d.TrackingID,
			d.Vendor,
			d.Carrier,
			d.CheckedAt.Format(timestampLayout),
		})
	}

	return store.CreateOrAppendDailyReport(ctx, rows, prefix)
}
