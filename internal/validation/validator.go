// =============================================================================
// Welfare Converter - Row Rejections
// =============================================================================
//
// This module holds the per-row diagnostics produced while converting a
// provider export. A rejected row is excluded from the output; processing
// continues with the remaining rows and every rejection is reported back
// alongside the converted table.
//
// ERROR HANDLING:
//   - Rejections are collected, never raised once row processing started
//   - Each rejection carries the row ordinal, the column, the raw value
//     and a reason
//   - Whole-file problems (missing columns) are not rejections; they abort
//     the file before any row is read
//
// =============================================================================

package validation

import (
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
)

// Reasons recorded on rejections.
const (
	ReasonInvalidAmount = "unparseable amount"
	ReasonInvalidDate   = "unparseable date"
)

// =============================================================================
// REJECTION
// =============================================================================

// Rejection is the diagnostic produced instead of an output row.
type Rejection struct {
	// Row is the 1-based ordinal of the data row in the input file.
	Row int

	// Line is the physical line (or sheet row) of the input.
	Line int

	// Column is the provider column holding the offending value.
	Column string

	// Value is the raw offending value.
	Value string

	// Reason is a short description of what failed.
	Reason string
}

// Error implements the error interface.
func (r *Rejection) Error() string {
	return fmt.Sprintf("row %d, column '%s': %s (value: '%s')", r.Row, r.Column, r.Reason, r.Value)
}

// =============================================================================
// REPORT
// =============================================================================

// Report aggregates the row-level outcome of one conversion.
type Report struct {
	// Rejections in input order.
	Rejections []Rejection

	// Dropped counts silently skipped rows (blank identifier, repeated
	// header, zero amounts when configured).
	Dropped int

	// CausalMisses counts accepted rows whose label had no mapping.
	CausalMisses int

	// UnmappedLabels lists the distinct labels without a mapping.
	UnmappedLabels []string

	unmapped map[string]struct{}
}

// Reject records a rejection.
func (r *Report) Reject(rej Rejection) {
	r.Rejections = append(r.Rejections, rej)
}

// Miss records an accepted row whose causal label was unmapped.
func (r *Report) Miss(label string) {
	r.CausalMisses++
	if r.unmapped == nil {
		r.unmapped = make(map[string]struct{})
	}
	label = strings.TrimSpace(label)
	if _, seen := r.unmapped[label]; !seen {
		r.unmapped[label] = struct{}{}
		r.UnmappedLabels = append(r.UnmappedLabels, label)
	}
}

// ByReason counts rejections per reason.
func (r *Report) ByReason() map[string]int {
	counts := make(map[string]int)
	for _, rej := range r.Rejections {
		counts[rej.Reason]++
	}
	return counts
}

// =============================================================================
// OUTPUT FUNCTIONS
// =============================================================================

// FormatRejections formats rejections for display, one per line, with a
// per-reason summary first.
func FormatRejections(rejections []Rejection) string {
	if len(rejections) == 0 {
		return "No rows rejected."
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d row(s) rejected", len(rejections)))

	report := Report{Rejections: rejections}
	counts := report.ByReason()
	reasons := make([]string, 0, len(counts))
	for reason := range counts {
		reasons = append(reasons, reason)
	}
	sort.Strings(reasons)
	for i, reason := range reasons {
		if i == 0 {
			sb.WriteString(" (")
		} else {
			sb.WriteString(", ")
		}
		sb.WriteString(fmt.Sprintf("%s: %d", reason, counts[reason]))
	}
	if len(reasons) > 0 {
		sb.WriteString(")")
	}
	sb.WriteString("\n")

	for i := range rejections {
		sb.WriteString("  ")
		sb.WriteString(rejections[i].Error())
		sb.WriteString("\n")
	}

	return sb.String()
}

// RejectionLogHeader is the header of the rejection log.
var RejectionLogHeader = []string{"Riga", "Linea", "Colonna", "Valore", "Motivo"}

// WriteRejectionLog writes rejections as a UTF-8 comma-separated file.
//
// PARAMETERS:
//   - rejections: The rejections to write.
//   - filePath: The path to the log file.
//
// RETURNS:
//   - An error if the file cannot be written.
func WriteRejectionLog(rejections []Rejection, filePath string) error {
	file, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("failed to create rejection log: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(RejectionLogHeader); err != nil {
		return fmt.Errorf("failed to write rejection log: %w", err)
	}

	for _, rej := range rejections {
		record := []string{
			strconv.Itoa(rej.Row),
			strconv.Itoa(rej.Line),
			rej.Column,
			rej.Value,
			rej.Reason,
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write rejection log: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("failed to flush rejection log: %w", err)
	}

	return file.Close()
}
