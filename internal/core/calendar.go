package core

import (
	"strconv"
	"strings"
	"time"
)

// DateLayout is the ISO date format records carry.
const DateLayout = "2006-01-02"

// TimestampLayout is used for the Input Time column.
const TimestampLayout = "2006-01-02 15:04:05"

// MonthNames are the Indonesian month names used in ledger tab titles, indexed month-1.
var MonthNames = [12]string{
	"Januari", "Februari", "Maret", "April", "Mei", "Juni",
	"Juli", "Agustus", "September", "Oktober", "November", "Desember",
}

// TabTitle returns the ledger tab title for t, e.g. "Maret 2025".
func TabTitle(t time.Time) string {
	return MonthNames[int(t.Month())-1] + " " + strconv.Itoa(t.Year())
}

// ResolveDate parses raw as an ISO date. When raw is empty or unparseable it
// returns now and false; this fallback is never an error.
func ResolveDate(raw string, now time.Time) (time.Time, bool) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(raw))
	if err != nil {
		return now, false
	}
	return t, true
}

// TabTitleFor resolves raw against now and returns the tab title it routes to.
func TabTitleFor(raw string, now time.Time) string {
	t, _ := ResolveDate(raw, now)
	return TabTitle(t)
}
