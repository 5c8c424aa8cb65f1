package sheets

import (
	"fmt"
	"sort"

	"google.golang.org/api/sheets/v4"
)

// ColumnLetter converts a 1-based column index to its A1 letter form.
func ColumnLetter(col int) string {
	letters := ""
	for col > 0 {
		col--
		letters = string(rune('A'+col%26)) + letters
		col /= 26
	}
	return letters
}

// buildValueRanges groups sparse cell updates by column and splits each
// column into consecutive row blocks, producing one single-column A1 range
// per block. Only exact cells are covered, so neighboring data survives.
func buildValueRanges(sheetName string, updates []CellUpdate) []*sheets.ValueRange {
	byCol := map[int][]CellUpdate{}
	for _, u := range updates {
		byCol[u.Col] = append(byCol[u.Col], u)
	}

	cols := make([]int, 0, len(byCol))
	for col := range byCol {
		cols = append(cols, col)
	}
	sort.Ints(cols)

	var ranges []*sheets.ValueRange
	for _, col := range cols {
		items := byCol[col]
		sort.Slice(items, func(i, j int) bool { return items[i].Row < items[j].Row })

		var block []CellUpdate
		flush := func() {
			if len(block) == 0 {
				return
			}
			letter := ColumnLetter(col)
			a1 := fmt.Sprintf("%s!%s%d:%s%d", sheetName, letter, block[0].Row, letter, block[len(block)-1].Row)
			values := make([][]interface{}, 0, len(block))
			for _, u := range block {
				values = append(values, []interface{}{u.Value})
			}
			ranges = append(ranges, &sheets.ValueRange{Range: a1, Values: values})
			block = nil
		}

		for _, u := range items {
			if len(block) > 0 && u.Row != block[len(block)-1].Row+1 {
				flush()
			}
			block = append(block, u)
		}
		flush()
	}
	return ranges
}
