package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"nota/internal/cache"
	ports "nota/internal/sheets"

	gdrive "google.golang.org/api/drive/v3"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

const spreadsheetMIME = "application/vnd.google-apps.spreadsheet"

// Opener resolves ledger workbooks by name through Drive and talks to them through Sheets.
type Opener struct {
	sheets *gsheet.Service
	drive  *gdrive.Service
}

// Workbook is one spreadsheet. Sheet IDs are cached by title since tabs are never
// deleted or renamed by this application.
type Workbook struct {
	svc           *gsheet.Service
	spreadsheetID string
	title         string
	sheetIDs      *cache.LRUCache[int64]
}

type Worksheet struct {
	book    *Workbook
	sheetID int64
	title   string
}

// Ensure interface conformance
var (
	_ ports.Opener    = (*Opener)(nil)
	_ ports.Workbook  = (*Workbook)(nil)
	_ ports.Worksheet = (*Worksheet)(nil)
)

// Credentials locates a service account key. JSON wins over File.
type Credentials struct {
	JSON string
	File string
}

// Bytes returns the raw service account key.
func (c Credentials) Bytes() ([]byte, error) {
	switch {
	case strings.TrimSpace(c.JSON) != "":
		return []byte(c.JSON), nil
	case strings.TrimSpace(c.File) != "":
		b, err := os.ReadFile(c.File)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return b, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
}

// NewOpener creates Sheets and Drive services from a service account key.
func NewOpener(ctx context.Context, creds Credentials) (*Opener, error) {
	credentialsJSON, err := creds.Bytes()
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "Creating Google Sheets service with Service Account",
		"credentials_size", len(credentialsJSON),
		"scope", gsheet.SpreadsheetsScope)

	sheetsSvc, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	driveSvc, err := gdrive.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gdrive.DriveMetadataReadonlyScope))
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}
	return &Opener{sheets: sheetsSvc, drive: driveSvc}, nil
}

// Open finds the spreadsheet named name among files shared with the service account.
func (o *Opener) Open(ctx context.Context, name string) (ports.Workbook, error) {
	if o.sheets == nil || o.drive == nil {
		return nil, errors.New("google services not initialized")
	}
	q := spreadsheetQuery(name)
	list, err := o.drive.Files.List().
		Q(q).
		Fields("files(id, name)").
		PageSize(10).
		SupportsAllDrives(true).
		IncludeItemsFromAllDrives(true).
		Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("search spreadsheet %q: %w", name, err)
	}
	if len(list.Files) == 0 {
		return nil, fmt.Errorf("open %q: %w", name, ports.ErrWorkbookNotFound)
	}
	if len(list.Files) > 1 {
		slog.WarnContext(ctx, "Multiple spreadsheets share the ledger name, using the first", "name", name, "count", len(list.Files))
	}
	id := list.Files[0].Id

	wb := &Workbook{
		svc:           o.sheets,
		spreadsheetID: id,
		title:         name,
		sheetIDs:      cache.NewLRUCache[int64](64, 10*time.Minute),
	}
	// Fail fast on missing permission rather than on the first append.
	if err := wb.refresh(ctx); err != nil {
		return nil, fmt.Errorf("open %q: %w", name, err)
	}
	slog.InfoContext(ctx, "Opened ledger workbook", "name", name, "spreadsheet_id", id)
	return wb, nil
}

func (b *Workbook) Title() string { return b.title }

// refresh reloads every tab title into the sheet ID cache.
func (b *Workbook) refresh(ctx context.Context) error {
	resp, err := b.svc.Spreadsheets.Get(b.spreadsheetID).
		Fields("properties.title,sheets.properties(sheetId,title)").
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read spreadsheet %s: %w", b.spreadsheetID, err)
	}
	for _, sh := range resp.Sheets {
		if sh.Properties == nil {
			continue
		}
		b.sheetIDs.Set(sh.Properties.Title, sh.Properties.SheetId)
	}
	return nil
}

func (b *Workbook) Worksheet(ctx context.Context, title string) (ports.Worksheet, error) {
	if b.svc == nil {
		return nil, errors.New("sheets service not initialized")
	}
	if id, ok := b.sheetIDs.Get(title); ok {
		return &Worksheet{book: b, sheetID: id, title: title}, nil
	}
	if err := b.refresh(ctx); err != nil {
		return nil, err
	}
	if id, ok := b.sheetIDs.Get(title); ok {
		return &Worksheet{book: b, sheetID: id, title: title}, nil
	}
	return nil, fmt.Errorf("%s: %w", title, ports.ErrWorksheetNotFound)
}

func (b *Workbook) AddWorksheet(ctx context.Context, title string, rows, cols int) (ports.Worksheet, error) {
	if b.svc == nil {
		return nil, errors.New("sheets service not initialized")
	}
	req := &gsheet.BatchUpdateSpreadsheetRequest{
		Requests: []*gsheet.Request{{
			AddSheet: &gsheet.AddSheetRequest{
				Properties: &gsheet.SheetProperties{
					Title: title,
					GridProperties: &gsheet.GridProperties{
						RowCount:    int64(rows),
						ColumnCount: int64(cols),
					},
				},
			},
		}},
	}
	resp, err := b.svc.Spreadsheets.BatchUpdate(b.spreadsheetID, req).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("add sheet %q: %w", title, err)
	}
	if len(resp.Replies) == 0 || resp.Replies[0].AddSheet == nil || resp.Replies[0].AddSheet.Properties == nil {
		return nil, fmt.Errorf("add sheet %q: empty reply", title)
	}
	id := resp.Replies[0].AddSheet.Properties.SheetId
	b.sheetIDs.Set(title, id)
	slog.InfoContext(ctx, "Created ledger tab", "title", title, "sheet_id", id, "rows", rows, "cols", cols)
	return &Worksheet{book: b, sheetID: id, title: title}, nil
}

func (w *Worksheet) Title() string { return w.title }

// AppendRows writes values RAW so ISO dates stay text instead of being reinterpreted.
func (w *Worksheet) AppendRows(ctx context.Context, rows [][]any) error {
	if len(rows) == 0 {
		return nil
	}
	rng := quoteSheetTitle(w.title) + "!A1"
	vr := &gsheet.ValueRange{Values: rows}
	_, err := w.book.svc.Spreadsheets.Values.Append(w.book.spreadsheetID, rng, vr).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("append %d rows to %s: %w", len(rows), w.title, err)
	}
	return nil
}

func (w *Worksheet) FormatBold(ctx context.Context, a1Range string) error {
	gr, err := parseA1Range(a1Range)
	if err != nil {
		return err
	}
	gr.SheetId = w.sheetID
	req := &gsheet.BatchUpdateSpreadsheetRequest{
		Requests: []*gsheet.Request{{
			RepeatCell: &gsheet.RepeatCellRequest{
				Range: gr,
				Cell: &gsheet.CellData{
					UserEnteredFormat: &gsheet.CellFormat{
						TextFormat: &gsheet.TextFormat{Bold: true},
					},
				},
				Fields: "userEnteredFormat.textFormat.bold",
			},
		}},
	}
	if _, err := w.book.svc.Spreadsheets.BatchUpdate(w.book.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("format %s!%s: %w", w.title, a1Range, err)
	}
	return nil
}

// CleanExpired prunes stale tab ID entries.
func (b *Workbook) CleanExpired() int { return b.sheetIDs.CleanExpired() }
