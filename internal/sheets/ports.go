package sheets

import (
	"context"
	"errors"
)

var (
	ErrWorkbookNotFound  = errors.New("workbook not found")
	ErrWorksheetNotFound = errors.New("worksheet not found")
)

// Ports for the spreadsheet service backing the ledger.
type (
	// Opener resolves a workbook by its human-readable name.
	Opener interface {
		Open(ctx context.Context, name string) (Workbook, error)
	}

	Workbook interface {
		Title() string
		// Worksheet returns the tab whose title equals title exactly,
		// or ErrWorksheetNotFound.
		Worksheet(ctx context.Context, title string) (Worksheet, error)
		// AddWorksheet creates a tab with the given grid capacity.
		AddWorksheet(ctx context.Context, title string, rows, cols int) (Worksheet, error)
	}

	Worksheet interface {
		Title() string
		// AppendRows adds rows after the last non-empty row, in order, in one call.
		AppendRows(ctx context.Context, rows [][]any) error
		// FormatBold sets bold text on an A1 range such as "A1:H1".
		FormatBold(ctx context.Context, a1Range string) error
	}
)
