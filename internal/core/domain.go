package core

import (
	"errors"
	"strings"
)

// CategoryPlaceholder is written to the ledger when a line item carries no category.
const CategoryPlaceholder = "-"

// DefaultCategories is the closed set of labels the model and the manual form choose from.
var DefaultCategories = []string{
	"Fashion",
	"Food & Drink",
	"Snack",
	"Grocery",
	"Office Supplies",
	"Skincare",
	"Bodycare",
	"Make Up",
	"Household",
}

type (
	// Receipt is one shopping receipt, either extracted from an image or typed in.
	// Date is kept as supplied; the ledger router resolves it.
	Receipt struct {
		Store string     `json:"store"`
		Date  string     `json:"date,omitempty"`
		Items []LineItem `json:"items"`
	}

	LineItem struct {
		Name      string `json:"name"`
		Category  string `json:"category,omitempty"`
		Quantity  Amount `json:"quantity"`
		UnitPrice Amount `json:"unit_price"`
		LineTotal Amount `json:"line_total"`
	}
)

var (
	ErrEmptyStore       = errors.New("empty store name")
	ErrNoItems          = errors.New("no line items")
	ErrEmptyItemName    = errors.New("empty item name")
	ErrInvalidQuantity  = errors.New("invalid quantity")
	ErrInvalidUnitPrice = errors.New("invalid unit price")
)

// Validate checks the minimal shape a record needs before it can be appended.
func (r Receipt) Validate() error {
	if strings.TrimSpace(r.Store) == "" {
		return ErrEmptyStore
	}
	if len(r.Items) == 0 {
		return ErrNoItems
	}
	for _, it := range r.Items {
		if err := it.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (it LineItem) Validate() error {
	if strings.TrimSpace(it.Name) == "" {
		return ErrEmptyItemName
	}
	if it.Quantity <= 0 {
		return ErrInvalidQuantity
	}
	if it.UnitPrice < 0 {
		return ErrInvalidUnitPrice
	}
	if it.Quantity > MaxAmount || it.UnitPrice > MaxAmount || it.LineTotal > MaxAmount {
		return ErrAmountTooLarge
	}
	return nil
}

// CategoryOrPlaceholder returns the item's category, or CategoryPlaceholder
// for records produced before categories existed.
func (it LineItem) CategoryOrPlaceholder() string {
	if c := strings.TrimSpace(it.Category); c != "" {
		return c
	}
	return CategoryPlaceholder
}

// ItemCount returns the number of ledger rows the record produces.
func (r Receipt) ItemCount() int {
	return len(r.Items)
}

// IsCategory reports whether name is one of cats, ignoring case and surrounding space.
func IsCategory(cats []string, name string) bool {
	name = strings.TrimSpace(name)
	for _, c := range cats {
		if strings.EqualFold(c, name) {
			return true
		}
	}
	return false
}
