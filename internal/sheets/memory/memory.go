package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"nota/internal/sheets"
)

// Workbook is an in-process spreadsheet used by the memory backend and tests.
type Workbook struct {
	mu      sync.Mutex
	title   string
	order   []string
	sheets  map[string]*Worksheet
	created map[string]int
}

var (
	_ sheets.Opener    = (*Opener)(nil)
	_ sheets.Workbook  = (*Workbook)(nil)
	_ sheets.Worksheet = (*Worksheet)(nil)
)

func New(title string) *Workbook {
	return &Workbook{
		title:   title,
		sheets:  map[string]*Worksheet{},
		created: map[string]int{},
	}
}

// Opener serves a fixed set of in-memory workbooks by name.
type Opener struct {
	mu    sync.Mutex
	books map[string]*Workbook
}

func NewOpener(books ...*Workbook) *Opener {
	o := &Opener{books: map[string]*Workbook{}}
	for _, b := range books {
		o.books[b.title] = b
	}
	return o
}

func (o *Opener) Open(_ context.Context, name string) (sheets.Workbook, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	b, ok := o.books[name]
	if !ok {
		return nil, fmt.Errorf("open %q: %w", name, sheets.ErrWorkbookNotFound)
	}
	return b, nil
}

func (b *Workbook) Title() string { return b.title }

func (b *Workbook) Worksheet(_ context.Context, title string) (sheets.Worksheet, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ws, ok := b.sheets[title]
	if !ok {
		return nil, fmt.Errorf("%s: %w", title, sheets.ErrWorksheetNotFound)
	}
	return ws, nil
}

func (b *Workbook) AddWorksheet(_ context.Context, title string, rows, cols int) (sheets.Worksheet, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if strings.TrimSpace(title) == "" {
		return nil, fmt.Errorf("add worksheet: empty title")
	}
	if _, exists := b.sheets[title]; exists {
		return nil, fmt.Errorf("add worksheet: a sheet with the name %q already exists", title)
	}
	ws := &Worksheet{title: title, rowCap: rows, colCap: cols}
	b.sheets[title] = ws
	b.order = append(b.order, title)
	b.created[title]++
	return ws, nil
}

// Titles returns tab titles in creation order.
func (b *Workbook) Titles() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.order...)
}

// Sheet returns the in-memory tab for inspection, or nil.
func (b *Workbook) Sheet(title string) *Worksheet {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sheets[title]
}

// Created reports how many times a tab with title was created.
func (b *Workbook) Created(title string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.created[title]
}

// Worksheet keeps appended rows and bold ranges.
type Worksheet struct {
	mu          sync.Mutex
	title       string
	rowCap      int
	colCap      int
	rows        [][]any
	bold        []string
	appendCalls int
}

func (w *Worksheet) Title() string { return w.title }

func (w *Worksheet) AppendRows(_ context.Context, rows [][]any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, r := range rows {
		w.rows = append(w.rows, append([]any(nil), r...))
	}
	w.appendCalls++
	return nil
}

func (w *Worksheet) FormatBold(_ context.Context, a1Range string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.bold = append(w.bold, a1Range)
	return nil
}

// Rows returns a copy of every row, header included.
func (w *Worksheet) Rows() [][]any {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([][]any, len(w.rows))
	for i, r := range w.rows {
		out[i] = append([]any(nil), r...)
	}
	return out
}

func (w *Worksheet) BoldRanges() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.bold...)
}

func (w *Worksheet) AppendCalls() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.appendCalls
}

func (w *Worksheet) Capacity() (rows, cols int) {
	return w.rowCap, w.colCap
}
