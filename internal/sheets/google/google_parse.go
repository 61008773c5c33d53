package google

import (
	"fmt"
	"strconv"
	"strings"

	gsheet "google.golang.org/api/sheets/v4"
)

// spreadsheetQuery builds the Drive search for a non-trashed spreadsheet with an exact name.
func spreadsheetQuery(name string) string {
	escaped := strings.ReplaceAll(strings.ReplaceAll(name, `\`, `\\`), `'`, `\'`)
	return fmt.Sprintf("name = '%s' and mimeType = '%s' and trashed = false", escaped, spreadsheetMIME)
}

// quoteSheetTitle quotes a tab title for use in A1 notation.
func quoteSheetTitle(title string) string {
	return "'" + strings.ReplaceAll(title, "'", "''") + "'"
}

// parseA1Range converts "A1:H1" into a zero-based, end-exclusive grid range.
// The sheet ID is left for the caller.
func parseA1Range(a1 string) (*gsheet.GridRange, error) {
	parts := strings.Split(strings.TrimSpace(a1), ":")
	if len(parts) == 0 || len(parts) > 2 || parts[0] == "" {
		return nil, fmt.Errorf("invalid A1 range %q", a1)
	}
	startCol, startRow, err := parseA1Cell(parts[0])
	if err != nil {
		return nil, fmt.Errorf("invalid A1 range %q: %w", a1, err)
	}
	endCol, endRow := startCol, startRow
	if len(parts) == 2 {
		endCol, endRow, err = parseA1Cell(parts[1])
		if err != nil {
			return nil, fmt.Errorf("invalid A1 range %q: %w", a1, err)
		}
	}
	if endCol < startCol || endRow < startRow {
		return nil, fmt.Errorf("invalid A1 range %q: end before start", a1)
	}
	return &gsheet.GridRange{
		StartRowIndex:    int64(startRow - 1),
		EndRowIndex:      int64(endRow),
		StartColumnIndex: int64(startCol - 1),
		EndColumnIndex:   int64(endCol),
	}, nil
}

// parseA1Cell returns the 1-based column and row of a cell like "H1" or "AA12".
func parseA1Cell(cell string) (col, row int, err error) {
	cell = strings.ToUpper(strings.TrimSpace(cell))
	i := 0
	for i < len(cell) && cell[i] >= 'A' && cell[i] <= 'Z' {
		col = col*26 + int(cell[i]-'A'+1)
		i++
	}
	if i == 0 || i == len(cell) {
		return 0, 0, fmt.Errorf("cell %q needs a column and a row", cell)
	}
	row, err = strconv.Atoi(cell[i:])
	if err != nil || row < 1 {
		return 0, 0, fmt.Errorf("cell %q has an invalid row", cell)
	}
	return col, row, nil
}

// columnLetter converts a 1-based column index to its A1 letters.
func columnLetter(col int) string {
	var out []byte
	for col > 0 {
		col--
		out = append([]byte{byte('A' + col%26)}, out...)
		col /= 26
	}
	return string(out)
}
