package report

import (
	"context"
	"strings"
	"testing"

	"github.com/guiasync/tracking-reconciler/batch"
	"github.com/guiasync/tracking-reconciler/scraper"
	"github.com/guiasync/tracking-reconciler/sheets"
	"github.com/guiasync/tracking-reconciler/tracker"
)

// fakeStore is an in-memory SheetStore.
type fakeStore struct {
	headers []string
	records []sheets.Record

	flushed     []sheets.CellUpdate
	reportRows  [][]interface{}
	reportName  string
	ensuredCols []string
}

func (s *fakeStore) ReadRecords(ctx context.Context) ([]sheets.Record, []string, error) {
	return s.records, s.headers, nil
}

func (s *fakeStore) ReadHeaders(ctx context.Context) ([]string, error) {
	return s.headers, nil
}

func (s *fakeStore) EnsureHeaders(ctx context.Context, required []string) error {
	for _, h := range required {
		found := false
		for _, existing := range s.headers {
			if existing == h {
				found = true
				break
			}
		}
		if !found {
			s.headers = append(s.headers, h)
			s.ensuredCols = append(s.ensuredCols, h)
		}
	}
	return nil
}

func (s *fakeStore) FlushCells(ctx context.Context, updates []sheets.CellUpdate) error {
	s.flushed = append(s.flushed, updates...)
	return nil
}

func (s *fakeStore) CreateOrAppendDailyReport(ctx context.Context, rows [][]interface{}, prefix string) (string, error) {
	s.reportRows = append(s.reportRows, rows...)
	s.reportName = prefix + "2026-08-30"
	return s.reportName, nil
}

func mainHeaders() []string {
	return []string{ColVendorID, ColTrackingID, ColVendor, ColCarrier, ColCarrierRaw, ColAlert}
}

func record(trackingID, vendor, carrier string) sheets.Record {
	return sheets.Record{
		ColVendorID:   "v-" + trackingID,
		ColTrackingID: trackingID,
		ColVendor:     vendor,
		ColCarrier:    carrier,
		ColCarrierRaw: "",
		ColAlert:      "",
	}
}

func TestCompareOnlyMismatches(t *testing.T) {
	store := &fakeStore{
		headers: mainHeaders(),
		records: []sheets.Record{
			record("A1", "ENTREGADO", "ENTREGADO"),   // match, skipped
			record("B2", "ENTREGADO", "EN_TRANSITO"), // mismatch
			record("", "ENTREGADO", ""),              // no identifier, skipped
			record("C3", "GUIA_GENERADA", ""),        // empty carrier, mismatch
		},
	}

	diffs, err := Compare(context.Background(), store, tracker.NewNormalizer(nil), CompareOptions{OnlyMismatches: true})
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}

	if len(diffs) != 2 {
		t.Fatalf("got %d diffs, want 2", len(diffs))
	}
	if diffs[0].TrackingID != "B2" || diffs[0].Carrier != "EN_TRANSITO" {
		t.Errorf("unexpected first diff: %+v", diffs[0])
	}
	if diffs[1].TrackingID != "C3" || diffs[1].Carrier != "" {
		t.Errorf("empty carrier must stay empty, got %+v", diffs[1])
	}
}

func TestCompareRowBounds(t *testing.T) {
	store := &fakeStore{
		headers: mainHeaders(),
		records: []sheets.Record{
			record("A1", "ENTREGADO", ""), // row 2
			record("B2", "ENTREGADO", ""), // row 3
			record("C3", "ENTREGADO", ""), // row 4
		},
	}

	diffs, err := Compare(context.Background(), store, tracker.NewNormalizer(nil),
		CompareOptions{StartRow: 3, EndRow: 3, OnlyMismatches: true})
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}
	if len(diffs) != 1 || diffs[0].TrackingID != "B2" {
		t.Errorf("row bounds not honored: %+v", diffs)
	}
}

func TestGenerateDaily(t *testing.T) {
	store := &fakeStore{
		headers: mainHeaders(),
		records: []sheets.Record{record("A1", "ENTREGADO", "EN_TRANSITO")},
	}

	name, err := GenerateDaily(context.Background(), store, tracker.NewNormalizer(nil), "Informe_", CompareOptions{OnlyMismatches: true})
	if err != nil {
		t.Fatalf("GenerateDaily: %v", err)
	}
	if !strings.HasPrefix(name, "Informe_") {
		t.Errorf("tab name = %q, want Informe_ prefix", name)
	}
	if len(store.reportRows) != 1 {
		t.Fatalf("got %d report rows, want 1", len(store.reportRows))
	}
	if store.reportRows[0][0] != "A1" {
		t.Errorf("report row = %v", store.reportRows[0])
	}
}

// fixedRunner resolves every identifier from a canned map, once per call.
type fixedRunner struct {
	statuses map[string]string
}

func (r *fixedRunner) Run(ctx context.Context, ids []string, flush batch.FlushFunc) ([]scraper.Result, error) {
	results := make([]scraper.Result, 0, len(ids))
	for _, id := range ids {
		results = append(results, scraper.Result{TrackingID: id, Raw: r.statuses[id], Attempts: 1})
	}
	if flush != nil {
		if err := flush(ctx, results); err != nil {
			return results, err
		}
	}
	return results, nil
}

func cellValue(updates []sheets.CellUpdate, row, col int) (string, bool) {
	for _, u := range updates {
		if u.Row == row && u.Col == col {
			return u.Value, true
		}
	}
	return "", false
}

func TestUpdateStatusesWritesNormalizedAndAlert(t *testing.T) {
	store := &fakeStore{
		headers: mainHeaders(),
		records: []sheets.Record{
			record("A1", "ENTREGADO", ""), // row 2
			record("B2", "ENTREGADO", ""), // row 3, scrape fails
		},
	}
	runner := &fixedRunner{statuses: map[string]string{
		"A1": "Tu envío fue entregado",
		"B2": "",
	}}

	stats, err := UpdateStatuses(context.Background(), store, runner, tracker.NewNormalizer(nil), UpdateOptions{})
	if err != nil {
		t.Fatalf("UpdateStatuses: %v", err)
	}

	if stats.Processed != 2 || stats.Resolved != 1 || stats.Empty != 1 {
		t.Errorf("stats = %+v", stats)
	}

	// Columns: 1=ID DROPI 2=ID TRACKING 3=STATUS DROPI 4=STATUS TRACKING
	// 5=STATUS TRACKING RAW 6=Alerta
	if v, ok := cellValue(store.flushed, 2, 4); !ok || v != "ENTREGADO" {
		t.Errorf("normalized status = %q ok=%v", v, ok)
	}
	if v, ok := cellValue(store.flushed, 2, 5); !ok || v != "Tu envío fue entregado" {
		t.Errorf("raw status = %q ok=%v", v, ok)
	}
	if v, ok := cellValue(store.flushed, 2, 6); !ok || v != "FALSE" {
		t.Errorf("alert = %q ok=%v, want FALSE (both ENTREGADO)", v, ok)
	}

	// Failed lookup must write nothing for row 3.
	for _, u := range store.flushed {
		if u.Row == 3 {
			t.Errorf("row 3 was written: %+v", u)
		}
	}
}

func TestUpdateStatusesOnlyEmptySkipsResolvedRows(t *testing.T) {
	store := &fakeStore{
		headers: mainHeaders(),
		records: []sheets.Record{
			record("A1", "ENTREGADO", "ENTREGADO"), // already has carrier status
			record("B2", "ENTREGADO", ""),
		},
	}
	runner := &fixedRunner{statuses: map[string]string{
		"A1": "entregado", "B2": "entregado",
	}}

	stats, err := UpdateStatuses(context.Background(), store, runner, tracker.NewNormalizer(nil), UpdateOptions{OnlyEmpty: true})
	if err != nil {
		t.Fatalf("UpdateStatuses: %v", err)
	}
	if stats.Processed != 1 {
		t.Errorf("processed %d rows, want 1", stats.Processed)
	}
	if _, ok := cellValue(store.flushed, 2, 4); ok {
		t.Error("row 2 should have been skipped")
	}
	if v, ok := cellValue(store.flushed, 3, 4); !ok || v != "ENTREGADO" {
		t.Errorf("row 3 = %q ok=%v", v, ok)
	}
}

func TestUpdateStatusesDuplicateIdentifiers(t *testing.T) {
	store := &fakeStore{
		headers: mainHeaders(),
		records: []sheets.Record{
			record("A1", "ENTREGADO", ""), // row 2
			record("A1", "ENTREGADO", ""), // row 3, same identifier
		},
	}
	runner := &fixedRunner{statuses: map[string]string{"A1": "entregado"}}

	stats, err := UpdateStatuses(context.Background(), store, runner, tracker.NewNormalizer(nil), UpdateOptions{})
	if err != nil {
		t.Fatalf("UpdateStatuses: %v", err)
	}
	if stats.Processed != 2 || stats.Resolved != 2 {
		t.Errorf("stats = %+v", stats)
	}
	if _, ok := cellValue(store.flushed, 2, 4); !ok {
		t.Error("row 2 missing update")
	}
	if _, ok := cellValue(store.flushed, 3, 4); !ok {
		t.Error("row 3 missing update")
	}
}

func TestUpdateStatusesSkipSettled(t *testing.T) {
	store := &fakeStore{
		headers: mainHeaders(),
		records: []sheets.Record{
			record("A1", "ENTREGADO", ""),             // row 2: vendor final, skipped
			record("B2", "EN_TRANSITO", "DEVUELTO"),   // row 3: carrier final, skipped
			record("C3", "EN_TRANSITO", "EN_REPARTO"), // row 4: still moving
			record("D4", "", ""),                      // row 5: no vendor status yet
		},
	}
	runner := &fixedRunner{statuses: map[string]string{
		"C3": "en reparto", "D4": "en reparto",
	}}

	stats, err := UpdateStatuses(context.Background(), store, runner, tracker.NewNormalizer(nil), UpdateOptions{SkipSettled: true})
	if err != nil {
		t.Fatalf("UpdateStatuses: %v", err)
	}
	if stats.Processed != 2 {
		t.Errorf("processed %d rows, want 2", stats.Processed)
	}
	for _, row := range []int{2, 3} {
		if _, ok := cellValue(store.flushed, row, 4); ok {
			t.Errorf("settled row %d was written", row)
		}
	}
	if _, ok := cellValue(store.flushed, 4, 4); !ok {
		t.Error("row 4 missing update")
	}
	if _, ok := cellValue(store.flushed, 5, 4); !ok {
		t.Error("row 5 missing update")
	}
}

func TestMarkCompare(t *testing.T) {
	headers := append(mainHeaders(), ColMatch, ColAlertUpper)
	store := &fakeStore{
		headers: headers,
		records: []sheets.Record{
			record("A1", "ENTREGADO", "ENTREGADO"),
			record("B2", "ENTREGADO", "EN_TRANSITO"),
		},
	}

	written, err := MarkCompare(context.Background(), store, tracker.NewNormalizer(nil), 2, 0)
	if err != nil {
		t.Fatalf("MarkCompare: %v", err)
	}
	if written != 2 {
		t.Errorf("wrote %d rows, want 2", written)
	}

	matchCol := 7 // COINCIDEN appended after the six main headers
	alertCol := 8
	if v, _ := cellValue(store.flushed, 2, matchCol); v != "TRUE" {
		t.Errorf("row 2 COINCIDEN = %q, want TRUE", v)
	}
	if v, _ := cellValue(store.flushed, 2, alertCol); v != "FALSE" {
		t.Errorf("row 2 ALERTA = %q, want FALSE", v)
	}
	if v, _ := cellValue(store.flushed, 3, matchCol); v != "FALSE" {
		t.Errorf("row 3 COINCIDEN = %q, want FALSE", v)
	}
	if v, _ := cellValue(store.flushed, 3, alertCol); v != "TRUE" {
		t.Errorf("row 3 ALERTA = %q, want TRUE", v)
	}
}

func TestWriteCSV(t *testing.T) {
	var sb strings.Builder
	diffs := []CompareRow{
		{TrackingID: "A1", Vendor: "ENTREGADO", Carrier: "EN_TRANSITO"},
	}
	if err := WriteCSV(&sb, diffs); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(sb.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	if !strings.HasPrefix(lines[1], "A1,ENTREGADO,EN_TRANSITO,") {
		t.Errorf("row line = %q", lines[1])
	}
}

func TestBuildXLSX(t *testing.T) {
	diffs := []CompareRow{
		{TrackingID: "A1", Vendor: "ENTREGADO", Carrier: "EN_TRANSITO"},
	}
	content, err := BuildXLSX(diffs)
	if err != nil {
		t.Fatalf("BuildXLSX: %v", err)
	}
	if len(content) == 0 {
		t.Error("empty workbook")
	}
	// XLSX files are zip archives.
	if content[0] != 'P' || content[1] != 'K' {
		t.Errorf("not a zip archive: % x", content[:2])
	}
}
