package sheets

import "testing"

func TestColumnLetter(t *testing.T) {
	tests := []struct {
		col  int
		want string
	}{
		{1, "A"},
		{2, "B"},
		{26, "Z"},
		{27, "AA"},
		{28, "AB"},
		{52, "AZ"},
		{53, "BA"},
		{702, "ZZ"},
		{703, "AAA"},
	}

	for _, tt := range tests {
		if got := ColumnLetter(tt.col); got != tt.want {
			t.Errorf("ColumnLetter(%d) = %q, want %q", tt.col, got, tt.want)
		}
	}
}

func TestBuildValueRangesConsecutiveBlocks(t *testing.T) {
	updates := []CellUpdate{
		{Row: 2, Col: 4, Value: "ENTREGADO"},
		{Row: 3, Col: 4, Value: "EN_TRANSITO"},
		{Row: 4, Col: 4, Value: "DEVUELTO"},
		{Row: 10, Col: 4, Value: "PENDIENTE"}, // gap starts a new block
	}

	ranges := buildValueRanges("seguimiento", updates)
	if len(ranges) != 2 {
		t.Fatalf("got %d ranges, want 2", len(ranges))
	}

	if ranges[0].Range != "seguimiento!D2:D4" {
		t.Errorf("first range = %q, want seguimiento!D2:D4", ranges[0].Range)
	}
	if len(ranges[0].Values) != 3 {
		t.Errorf("first block has %d rows, want 3", len(ranges[0].Values))
	}
	if ranges[1].Range != "seguimiento!D10:D10" {
		t.Errorf("second range = %q, want seguimiento!D10:D10", ranges[1].Range)
	}
}

func TestBuildValueRangesSplitsColumns(t *testing.T) {
	updates := []CellUpdate{
		{Row: 2, Col: 4, Value: "ENTREGADO"},
		{Row: 2, Col: 6, Value: "FALSE"},
		{Row: 3, Col: 6, Value: "TRUE"},
	}

	ranges := buildValueRanges("seguimiento", updates)
	if len(ranges) != 2 {
		t.Fatalf("got %d ranges, want 2", len(ranges))
	}
	if ranges[0].Range != "seguimiento!D2:D2" {
		t.Errorf("first range = %q", ranges[0].Range)
	}
	if ranges[1].Range != "seguimiento!F2:F3" {
		t.Errorf("second range = %q", ranges[1].Range)
	}
	if got := ranges[1].Values[1][0]; got != "TRUE" {
		t.Errorf("F3 value = %v, want TRUE", got)
	}
}

func TestBuildValueRangesUnsortedInput(t *testing.T) {
	updates := []CellUpdate{
		{Row: 5, Col: 4, Value: "c"},
		{Row: 3, Col: 4, Value: "a"},
		{Row: 4, Col: 4, Value: "b"},
	}

	ranges := buildValueRanges("s", updates)
	if len(ranges) != 1 {
		t.Fatalf("got %d ranges, want 1", len(ranges))
	}
	if ranges[0].Range != "s!D3:D5" {
		t.Errorf("range = %q, want s!D3:D5", ranges[0].Range)
	}
	if ranges[0].Values[0][0] != "a" || ranges[0].Values[2][0] != "c" {
		t.Errorf("values not sorted by row: %v", ranges[0].Values)
	}
}

func TestBuildValueRangesEmpty(t *testing.T) {
	if ranges := buildValueRanges("s", nil); len(ranges) != 0 {
		t.Errorf("got %d ranges for empty input", len(ranges))
	}
}
