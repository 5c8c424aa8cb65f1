package report

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"github.com/guiasync/tracking-reconciler/common/storage"
	"github.com/rs/zerolog/log"
	"github.com/xuri/excelize/v2"
)

var exportHeaders = []string{"ID TRACKING", "STATUS DROPI", "STATUS TRACKING", "FECHA VERIFICACIÓN"}

// WriteCSV writes the comparison rows as CSV.
func WriteCSV(w io.Writer, diffs []CompareRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeaders); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}
	for _, d := range diffs {
		row := []string{d.TrackingID, d.Vendor, d.Carrier, d.CheckedAt.Format(timestampLayout)}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// BuildXLSX returns an XLSX workbook of the comparison rows.
func BuildXLSX(diffs []CompareRow) ([]byte, error) {
	f := excelize.NewFile()
	const sheet = "Informe"
	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			return nil, err
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)
	// Drop the default sheet so the workbook only carries the report.
	if index, _ := f.GetSheetIndex("Sheet1"); index != -1 {
		_ = f.DeleteSheet("Sheet1")
	}

	for i, h := range exportHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	row := 2
	for _, d := range diffs {
		values := []interface{}{d.TrackingID, d.Vendor, d.Carrier, d.CheckedAt.Format(timestampLayout)}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			_ = f.SetCellValue(sheet, cell, v)
		}
		row++
	}

	_ = f.SetColWidth(sheet, "A", "A", 18) // tracking id
	_ = f.SetColWidth(sheet, "B", "C", 18) // statuses
	_ = f.SetColWidth(sheet, "D", "D", 22) // timestamp

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("serializing workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// UploadXLSX archives a workbook in the report bucket under a dated name and
// returns the object name.
func UploadXLSX(ctx context.Context, store storage.StorageService, bucket, prefix string, content []byte) (string, error) {
	objectName := fmt.Sprintf("reports/%s%s.xlsx", prefix, time.Now().Format("2006-01-02"))
	name, err := store.Upload(ctx, bucket, objectName, content,
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	if err != nil {
		return "", fmt.Errorf("uploading report: %w", err)
	}
	log.Info().Str("bucket", bucket).Str("object", name).Msg("Report archived")
	return name, nil
}
