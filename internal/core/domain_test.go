package core

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestReceiptValidate(t *testing.T) {
	good := Receipt{
		Store: "Indomaret",
		Date:  "2025-03-15",
		Items: []LineItem{{Name: "Kopi", Category: "Food & Drink", Quantity: 2, UnitPrice: 5000, LineTotal: 10000}},
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	cases := []struct {
		r   Receipt
		err error
	}{
		{Receipt{Store: " ", Items: good.Items}, ErrEmptyStore},
		{Receipt{Store: "A"}, ErrNoItems},
		{Receipt{Store: "A", Items: []LineItem{{Name: "", Quantity: 1}}}, ErrEmptyItemName},
		{Receipt{Store: "A", Items: []LineItem{{Name: "x", Quantity: 0}}}, ErrInvalidQuantity},
		{Receipt{Store: "A", Items: []LineItem{{Name: "x", Quantity: 1, UnitPrice: -1}}}, ErrInvalidUnitPrice},
	}
	for i, tc := range cases {
		if err := tc.r.Validate(); !errors.Is(err, tc.err) {
			t.Fatalf("case %d expected %v, got %v", i, tc.err, err)
		}
	}
}

func TestCategoryOrPlaceholder(t *testing.T) {
	if got := (LineItem{Category: "Snack"}).CategoryOrPlaceholder(); got != "Snack" {
		t.Fatalf("got %q", got)
	}
	if got := (LineItem{Category: "  "}).CategoryOrPlaceholder(); got != CategoryPlaceholder {
		t.Fatalf("expected placeholder, got %q", got)
	}
}

func TestIsCategory(t *testing.T) {
	if !IsCategory(DefaultCategories, " food & drink ") {
		t.Fatalf("expected case-insensitive match")
	}
	if IsCategory(DefaultCategories, "Electronics") {
		t.Fatalf("unexpected match")
	}
}

func TestReceiptJSONRoundTripKeepsFieldNames(t *testing.T) {
	raw := `{"store":"Alfamart","date":"2025-01-02","items":[{"category":"Snack","name":"Chitato","quantity":"2","unit_price":"Rp 11.500","line_total":23000}]}`
	var r Receipt
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	it := r.Items[0]
	if r.Store != "Alfamart" || it.Quantity != 2 || it.UnitPrice != 11500 || it.LineTotal != 23000 {
		t.Fatalf("unexpected decode: %+v", r)
	}
}
