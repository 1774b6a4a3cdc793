// =============================================================================
// Welfare Converter - Shared Types
// =============================================================================
//
// This package contains the data model shared by the readers, the provider
// layouts, the converter and the output writers. Keeping it here avoids
// import cycles between:
//   - csvparser / xlsxparser (produce Tables)
//   - provider               (consumes Tables, produces NormalizedRows)
//   - output                 (writes NormalizedRows)
//
// =============================================================================

package types

import "strings"

// =============================================================================
// INPUT TYPES
// =============================================================================

// RawRecord is one input row: provider column name -> raw cell value.
type RawRecord struct {
	// Ordinal is the 1-based position of the row among the data rows of the
	// file (the row right after the header is 1). Used in diagnostics.
	Ordinal int

	// Line is the physical line (or sheet row) the record was read from.
	Line int

	// Cells maps the trimmed header name to the raw cell value.
	// Columns missing from a short row are absent from the map.
	Cells map[string]string
}

// Get returns the cell for a column and whether the column was present in
// the row at all.
func (r RawRecord) Get(column string) (string, bool) {
	v, ok := r.Cells[column]
	return v, ok
}

// Table is a tabular dataset as read from a provider export.
type Table struct {
	// Headers are the column names in file order, whitespace-trimmed.
	Headers []string

	// Records are the data rows in file order. Fully empty rows are skipped
	// by the readers but still consume an ordinal.
	Records []RawRecord

	// Source is the file the table was read from (may be empty).
	Source string
}

// HasColumn reports whether the table has a header with the given name.
// Matching is exact first, then case-insensitive.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.Column(name)
	return ok
}

// Column returns the header as it appears in the table for a requested name.
func (t *Table) Column(name string) (string, bool) {
	name = strings.TrimSpace(name)
	for _, h := range t.Headers {
		if h == name {
			return h, true
		}
	}
	for _, h := range t.Headers {
		if strings.EqualFold(h, name) {
			return h, true
		}
	}
	return "", false
}

// =============================================================================
// OUTPUT TYPES
// =============================================================================

// NormalizedRow is one record of the payroll import table.
type NormalizedRow struct {
	// Sequence is the 1-based progressive number, contiguous over accepted rows.
	Sequence int

	EmployeeCode string

	// ReasonCode is the causal code, empty (or the configured fallback) on miss.
	ReasonCode string

	Description    string
	Quantity       string
	Base           string
	AmountCents    int64
	Period         string // ddmmyy, empty when unknown
	ProcessingType string
}

// =============================================================================
// ROW POLICY
// =============================================================================

// Mode is the row-level error policy.
type Mode string

const (
	// ModeStrict rejects rows whose amount or date cannot be parsed.
	ModeStrict Mode = "strict"

	// ModeLenient keeps such rows with amount 0 / empty period.
	ModeLenient Mode = "lenient"
)

// ParseMode converts a configuration string into a Mode.
// An empty string selects ModeStrict.
func ParseMode(s string) (Mode, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "strict":
		return ModeStrict, true
	case "lenient":
		return ModeLenient, true
	}
	return "", false
}
