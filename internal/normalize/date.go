package normalize

import (
	"strconv"
	"strings"
	"time"
)

// PeriodLayout is the ddmmyy encoding used by the payroll import.
const PeriodLayout = "020106"

// dayFirstLayouts are tried first: day-before-month is what both providers
// export, with or without a time part.
var dayFirstLayouts = []string{
	"2/1/2006",
	"2/1/06",
	"2.1.2006",
	"2.1.06",
	"2-1-06",
	"2/1/2006 15:04",
	"2/1/2006 15:04:05",
	"2-1-2006 15:04:05",
	"2.1.2006 15:04",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006/1/2",
}

// explicitLayouts is the ordered fallback list: %d/%m/%Y, %Y-%m-%d, %d-%m-%Y.
var explicitLayouts = []string{
	"02/01/2006",
	"2006-01-02",
	"02-01-2006",
	"2-1-2006",
}

// ParseDate reads a provider date, day before month.
// Only the calendar date is kept; times are discarded.
func ParseDate(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, &ParseError{Value: raw, Err: ErrInvalidDate}
	}

	for _, layouts := range [][]string{dayFirstLayouts, explicitLayouts} {
		for _, layout := range layouts {
			if t, err := time.Parse(layout, s); err == nil {
				return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
			}
		}
	}

	return time.Time{}, &ParseError{Value: raw, Err: ErrInvalidDate}
}

// ParseSerialDate reads a spreadsheet serial day number, as found in
// workbook cells read without formatting. The fraction (time of day) is
// dropped. Only workbook input goes through here: in a CSV a bare number is
// not a date.
func ParseSerialDate(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	whole, frac, _ := strings.Cut(s, ".")
	if _, err := strconv.ParseUint("0"+frac, 10, 64); err != nil {
		return time.Time{}, &ParseError{Value: raw, Err: ErrInvalidDate}
	}
	n, err := strconv.Atoi(whole)
	if err != nil || n < 10000 || n >= 2958466 {
		return time.Time{}, &ParseError{Value: raw, Err: ErrInvalidDate}
	}
	return time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n), nil
}

// FormatPeriod encodes a date as zero-padded ddmmyy.
func FormatPeriod(t time.Time) string {
	return t.Format(PeriodLayout)
}

var italianMonths = map[string]time.Month{
	"gennaio":   time.January,
	"febbraio":  time.February,
	"marzo":     time.March,
	"aprile":    time.April,
	"maggio":    time.May,
	"giugno":    time.June,
	"luglio":    time.July,
	"agosto":    time.August,
	"settembre": time.September,
	"ottobre":   time.October,
	"novembre":  time.November,
	"dicembre":  time.December,
}

// ParseMonthLabel reads a month label such as "aprile - 2025" or "Aprile 2025"
// and returns the first day of that month.
func ParseMonthLabel(raw string) (time.Time, error) {
	fields := strings.FieldsFunc(strings.ToLower(raw), func(r rune) bool {
		return r == ' ' || r == '-' || r == '/' || r == '\t'
	})
	if len(fields) != 2 {
		return time.Time{}, &ParseError{Value: raw, Err: ErrInvalidDate}
	}

	month, ok := italianMonths[fields[0]]
	if !ok {
		return time.Time{}, &ParseError{Value: raw, Err: ErrInvalidDate}
	}
	year, err := strconv.Atoi(fields[1])
	if err != nil || year < 1900 || year > 9999 {
		return time.Time{}, &ParseError{Value: raw, Err: ErrInvalidDate}
	}
	return time.Date(year, month, 1, 0, 0, 0, 0, time.UTC), nil
}
