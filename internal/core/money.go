package core

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrInvalidNumber is returned by ParseNumber for text that is not a plain
// decimal number.
var ErrInvalidNumber = errors.New("invalid number")

// ParseNumber reads a user supplied amount, age or rate. Only the dot is a
// decimal separator; any comma, as in "7,000", is rejected. The sign is kept
// so the calculator can apply its input policy.
func ParseNumber(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.ContainsRune(s, ',') {
		return 0, ErrInvalidNumber
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, ErrInvalidNumber
	}
	return d.InexactFloat64(), nil
}

// FormatCurrency renders v as dollars with two decimals and thousands
// separators, e.g. 5728503.3438 -> "$5,728,503.34". Rounding is half away
// from zero on the exact decimal value.
func FormatCurrency(v float64) string {
	if !isFinite(v) {
		return "$-"
	}
	s := decimal.NewFromFloat(v).StringFixed(2)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	intPart, frac, _ := strings.Cut(s, ".")
	var b strings.Builder
	if neg && strings.Trim(s, "0.") != "" {
		b.WriteByte('-')
	}
	b.WriteByte('$')
	lead := len(intPart) % 3
	if lead == 0 {
		lead = 3
	}
	b.WriteString(intPart[:lead])
	for i := lead; i < len(intPart); i += 3 {
		b.WriteByte(',')
		b.WriteString(intPart[i : i+3])
	}
	b.WriteByte('.')
	b.WriteString(frac)
	return b.String()
}

// PercentToRate converts a percent figure (3.5) to a fraction (0.035) without
// picking up binary rounding noise from the division.
func PercentToRate(p float64) float64 {
	if !isFinite(p) {
		return p
	}
	return decimal.NewFromFloat(p).Div(decimal.NewFromInt(100)).InexactFloat64()
}

// RateToPercent is the inverse of PercentToRate.
func RateToPercent(r float64) float64 {
	if !isFinite(r) {
		return r
	}
	return decimal.NewFromFloat(r).Mul(decimal.NewFromInt(100)).InexactFloat64()
}
