// Package normalize turns provider-formatted cells into canonical values:
// amounts in integer cents and calendar dates encoded as ddmmyy periods.
package normalize

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount = errors.New("invalid amount format")
	ErrInvalidDate   = errors.New("invalid date format")
)

// ParseError records the raw value that failed to normalize.
type ParseError struct {
	Value string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%v: %q", e.Err, e.Value)
}

func (e *ParseError) Unwrap() error { return e.Err }

// DotConvention says how a value containing only '.' separators is read.
type DotConvention string

const (
	// DotDecimal reads "1234.56" as 1234.56.
	DotDecimal DotConvention = "decimal"

	// DotThousands reads "1.234" as 1234.
	DotThousands DotConvention = "thousands"
)

// ParseDotConvention converts a configuration string. Empty selects DotDecimal.
func ParseDotConvention(s string) (DotConvention, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "decimal":
		return DotDecimal, true
	case "thousands":
		return DotThousands, true
	}
	return "", false
}

var hundred = decimal.NewFromInt(100)

// ParseAmount converts a locale-formatted amount into cents.
//
// A blank cell is a valid zero. When both '.' and ',' appear the dot groups
// thousands and the comma is the decimal mark; a lone ',' is the decimal
// mark; a lone '.' follows conv. The amount is negative when a '-' comes
// before the first digit (after any currency prefix), when it trails the
// number, or when the number is wrapped in parentheses. Any other character
// is discarded. Cents are rounded half-to-even.
func ParseAmount(raw string, conv DotConvention) (int64, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}

	hasDot := strings.Contains(s, ".")
	hasComma := strings.Contains(s, ",")
	switch {
	case hasDot && hasComma:
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	case hasComma:
		s = strings.ReplaceAll(s, ",", ".")
	case hasDot && conv == DotThousands:
		s = strings.ReplaceAll(s, ".", "")
	}

	neg := isNegative(s)
	s = strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) || r == '.' {
			return r
		}
		return -1
	}, s)
	if s == "" || s == "." {
		return 0, &ParseError{Value: raw, Err: ErrInvalidAmount}
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, &ParseError{Value: raw, Err: ErrInvalidAmount}
	}
	if neg {
		d = d.Neg()
	}

	cents := d.Mul(hundred).RoundBank(0)
	if !cents.IsInteger() || cents.Abs().GreaterThan(decimal.NewFromInt(1<<53)) {
		return 0, &ParseError{Value: raw, Err: ErrInvalidAmount}
	}
	return cents.IntPart(), nil
}

// isNegative looks for a minus before the first digit ("EUR -5,00"), a
// trailing minus ("5,00-") or accounting parentheses.
func isNegative(s string) bool {
	first := strings.IndexFunc(s, unicode.IsDigit)
	if first < 0 {
		return false
	}
	if strings.Contains(s[:first], "-") || strings.HasSuffix(s, "-") {
		return true
	}
	open := strings.Index(s, "(")
	return open >= 0 && open < first && strings.HasSuffix(strings.TrimSpace(s), ")")
}

// FormatAmount renders cents back with ',' as decimal mark and '.' grouping,
// the format ParseAmount reads without ambiguity.
func FormatAmount(cents int64) string {
	d := decimal.New(cents, -2)
	neg := d.IsNegative()
	s := d.Abs().StringFixed(2)

	intPart, frac, _ := strings.Cut(s, ".")
	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	b.WriteByte(',')
	b.WriteString(frac)
	return b.String()
}
