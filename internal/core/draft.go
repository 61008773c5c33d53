package core

import (
	"strings"
	"time"
)

type (
	// DraftItem is one editable row of the manual entry form.
	DraftItem struct {
		Name      string
		Category  string
		Quantity  int64
		UnitPrice int64
	}

	// Draft is the item list a client holds while filling in the manual form.
	// It always keeps at least one row.
	Draft struct {
		Store string
		Date  string
		Items []DraftItem
	}
)

// NewDraft returns a draft dated today with a single empty row.
func NewDraft(now time.Time) Draft {
	return Draft{Date: now.Format(DateLayout), Items: []DraftItem{emptyDraftItem()}}
}

func emptyDraftItem() DraftItem {
	return DraftItem{Quantity: 1}
}

// AddItem appends an empty row.
func (d *Draft) AddItem() {
	d.Items = append(d.Items, emptyDraftItem())
}

// RemoveItem drops the row at i. The last remaining row is never removed.
func (d *Draft) RemoveItem(i int) bool {
	if len(d.Items) <= 1 || i < 0 || i >= len(d.Items) {
		return false
	}
	d.Items = append(d.Items[:i], d.Items[i+1:]...)
	return true
}

// RemoveLast drops the final row, keeping at least one.
func (d *Draft) RemoveLast() bool {
	return d.RemoveItem(len(d.Items) - 1)
}

// Normalize guarantees the one-row minimum after the list was rebuilt from a form.
func (d *Draft) Normalize() {
	if len(d.Items) == 0 {
		d.Items = []DraftItem{emptyDraftItem()}
	}
}

// Record turns the draft into a receipt. Rows without a name are skipped and
// each line total is quantity times unit price.
func (d Draft) Record() (Receipt, error) {
	rec := Receipt{
		Store: strings.TrimSpace(d.Store),
		Date:  strings.TrimSpace(d.Date),
	}
	if rec.Store == "" {
		return Receipt{}, ErrEmptyStore
	}
	for _, it := range d.Items {
		name := strings.TrimSpace(it.Name)
		if name == "" {
			continue
		}
		li := LineItem{
			Name:      name,
			Category:  strings.TrimSpace(it.Category),
			Quantity:  Amount(it.Quantity),
			UnitPrice: Amount(it.UnitPrice),
		}
		total, err := LineTotalFor(it.Quantity, it.UnitPrice)
		if err != nil {
			return Receipt{}, err
		}
		li.LineTotal = Amount(total)
		rec.Items = append(rec.Items, li)
	}
	if err := rec.Validate(); err != nil {
		return Receipt{}, err
	}
	return rec, nil
}
