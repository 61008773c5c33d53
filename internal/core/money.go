// Package core provides the receipt domain types and rupiah amount handling.
//
// Amounts are whole rupiah: the ledger never stores fractional currency units.
package core

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"
	"unicode"
)

var (
	ErrInvalidAmount  = errors.New("invalid amount")
	ErrAmountTooLarge = errors.New("amount too large")
)

// MaxAmount bounds quantities, prices and line totals. Larger values are
// rejected rather than written to the ledger.
const MaxAmount = 1_000_000_000_000_000

// LineTotalFor returns qty times price, or ErrAmountTooLarge when the product
// would exceed MaxAmount.
func LineTotalFor(qty, price int64) (int64, error) {
	if qty > MaxAmount || price > MaxAmount {
		return 0, ErrAmountTooLarge
	}
	if qty > 0 && price > 0 && price > MaxAmount/qty {
		return 0, ErrAmountTooLarge
	}
	return qty * price, nil
}

// Amount is a whole number of rupiah (or a plain count for quantities).
// It decodes from JSON numbers and from numeric strings such as "5000",
// "5.000" or "Rp 5.000", since model output does not always respect types.
type Amount int64

func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*a = 0
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		v, err := ParseRupiah(s)
		if err != nil {
			return err
		}
		*a = Amount(v)
		return nil
	}
	f, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return ErrInvalidAmount
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) > math.MaxInt64/2 {
		return ErrInvalidAmount
	}
	*a = Amount(math.Round(f))
	return nil
}

func (a Amount) Int64() int64 { return int64(a) }

// ParseRupiah converts a rupiah string to a whole amount.
//
// It accepts an optional "Rp" prefix, dot or comma thousand separators and a
// trailing one- or two-digit fraction, which is rounded half-up.
//
// Examples:
//
//	ParseRupiah("5000")      -> 5000, nil
//	ParseRupiah("Rp 12.500") -> 12500, nil
//	ParseRupiah("1,250,000") -> 1250000, nil
//	ParseRupiah("9.999,50")  -> 10000, nil
func ParseRupiah(s string) (int64, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "Rp"), "rp")
	s = strings.TrimPrefix(s, ".")
	s = strings.ReplaceAll(strings.TrimSpace(s), " ", "")
	if s == "" {
		return 0, ErrInvalidAmount
	}
	if strings.HasPrefix(s, "-") || strings.HasPrefix(s, "+") {
		return 0, ErrInvalidAmount
	}

	var frac string
	if i := strings.LastIndexAny(s, ".,"); i >= 0 && len(s)-i-1 <= 2 && len(s)-i-1 > 0 {
		frac = s[i+1:]
		s = s[:i]
	}
	s = strings.NewReplacer(".", "", ",", "").Replace(s)
	if s == "" {
		s = "0"
	}
	for _, r := range s + frac {
		if !unicode.IsDigit(r) {
			return 0, ErrInvalidAmount
		}
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	if frac != "" && frac[0] >= '5' {
		v++
	}
	return v, nil
}

// FormatRupiah renders an amount with dot thousand separators, e.g. "Rp12.500".
func FormatRupiah(v int64) string {
	neg := v < 0
	if neg {
		v = -v
	}
	digits := strconv.FormatInt(v, 10)
	var b strings.Builder
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	if neg {
		return "-Rp" + b.String()
	}
	return "Rp" + b.String()
}
