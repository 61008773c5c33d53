package google

import (
	"testing"
)

func TestParseA1Range(t *testing.T) {
	gr, err := parseA1Range("A1:H1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gr.StartRowIndex != 0 || gr.EndRowIndex != 1 || gr.StartColumnIndex != 0 || gr.EndColumnIndex != 8 {
		t.Fatalf("unexpected grid range: %+v", gr)
	}

	gr, err = parseA1Range("b2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gr.StartRowIndex != 1 || gr.EndRowIndex != 2 || gr.StartColumnIndex != 1 || gr.EndColumnIndex != 2 {
		t.Fatalf("unexpected single cell range: %+v", gr)
	}

	for _, bad := range []string{"", "A", "1", "H1:A1", "A0", "A1:B2:C3"} {
		if _, err := parseA1Range(bad); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}

func TestColumnLetterRoundTrip(t *testing.T) {
	cases := map[int]string{1: "A", 8: "H", 26: "Z", 27: "AA", 52: "AZ", 703: "AAA"}
	for col, want := range cases {
		if got := columnLetter(col); got != want {
			t.Errorf("columnLetter(%d) = %q, want %q", col, got, want)
		}
		c, _, err := parseA1Cell(want + "1")
		if err != nil || c != col {
			t.Errorf("parseA1Cell(%q) = %d, %v", want+"1", c, err)
		}
	}
}

func TestQuoteSheetTitle(t *testing.T) {
	if got := quoteSheetTitle("Maret 2025"); got != "'Maret 2025'" {
		t.Errorf("got %s", got)
	}
	if got := quoteSheetTitle("Feby's"); got != "'Feby''s'" {
		t.Errorf("got %s", got)
	}
}

func TestSpreadsheetQuery(t *testing.T) {
	got := spreadsheetQuery("Laporan Keuangan Feby's")
	want := `name = 'Laporan Keuangan Feby\'s' and mimeType = 'application/vnd.google-apps.spreadsheet' and trashed = false`
	if got != want {
		t.Errorf("got  %s\nwant %s", got, want)
	}
}
