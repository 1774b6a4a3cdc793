package provider

import (
	"strings"

	"github.com/welfare-tools/welfare-converter/internal/causal"
	"github.com/welfare-tools/welfare-converter/internal/normalize"
	"github.com/welfare-tools/welfare-converter/internal/types"
	"github.com/welfare-tools/welfare-converter/internal/validation"
)

// Options is the row policy of a conversion run.
type Options struct {
	Mode types.Mode

	// CausalFallback replaces unmapped codes; empty leaves them empty.
	CausalFallback string

	// SkipZeroAmounts drops accepted rows with amount 0 before numbering.
	SkipZeroAmounts bool
}

// Result is the outcome of parsing one table.
type Result struct {
	Provider    string
	CompanyCode string
	Rows        []types.NormalizedRow
	Report      validation.Report
}

// Accepted returns the number of output rows.
func (r *Result) Accepted() int { return len(r.Rows) }

// Rejected returns the number of rejected rows.
func (r *Result) Rejected() int { return len(r.Report.Rejections) }

// Parse converts a table in this layout into normalized rows.
//
// Missing required columns fail the whole table before any row is read.
// Afterwards nothing is raised: rows with a blank identifier are dropped,
// rows whose amount or date cannot be read are rejected (strict) or kept
// with amount 0 / empty period (lenient). Accepted rows are numbered 1..k
// in input order.
//
// companyCode is carried into the result for auditing; it does not affect
// the rows.
func (l *Layout) Parse(t *types.Table, companyCode string, cm *causal.Map, opts Options) (*Result, error) {
	cols, err := l.ResolveColumns(t)
	if err != nil {
		return nil, err
	}

	mode := opts.Mode
	if mode == "" {
		mode = types.ModeStrict
	}
	resolver := causal.NewResolver(cm, opts.CausalFallback)

	result := &Result{
		Provider:    l.Code,
		CompanyCode: companyCode,
		Rows:        make([]types.NormalizedRow, 0, len(t.Records)),
	}
	sequence := 0

	for _, rec := range t.Records {
		employee, _ := rec.Get(cols.Employee)
		employee = strings.TrimSpace(employee)
		if employee == "" || strings.EqualFold(employee, cols.Employee) {
			result.Report.Dropped++
			continue
		}

		rawAmount, _ := rec.Get(cols.Amount)
		cents, err := normalize.ParseAmount(rawAmount, l.Dot)
		if err != nil {
			if mode == types.ModeStrict {
				result.Report.Reject(rejection(rec, cols.Amount, rawAmount, validation.ReasonInvalidAmount))
				continue
			}
			cents = 0
		}

		period, ok := l.period(rec, cols)
		if !ok && mode == types.ModeStrict {
			rawDate, _ := rec.Get(cols.Date)
			result.Report.Reject(rejection(rec, cols.Date, rawDate, validation.ReasonInvalidDate))
			continue
		}

		label, _ := rec.Get(cols.Reason)
		code, mapped := resolver.Code(label)
		if !mapped {
			result.Report.Miss(label)
		}

		if opts.SkipZeroAmounts && cents == 0 {
			result.Report.Dropped++
			continue
		}

		sequence++
		result.Rows = append(result.Rows, types.NormalizedRow{
			Sequence:     sequence,
			EmployeeCode: employee,
			ReasonCode:   code,
			AmountCents:  cents,
			Period:       period,
		})
	}

	return result, nil
}

// period returns the ddmmyy period of a row. A readable month label in the
// period column wins over the date column. Serial day numbers are read only
// when the layout allows them. ok is false when neither can be
// read; the period is then empty.
func (l *Layout) period(rec types.RawRecord, cols Columns) (string, bool) {
	if cols.Period != "" {
		if label, _ := rec.Get(cols.Period); strings.TrimSpace(label) != "" {
			if t, err := normalize.ParseMonthLabel(label); err == nil {
				return normalize.FormatPeriod(t), true
			}
		}
	}

	raw, _ := rec.Get(cols.Date)
	t, err := normalize.ParseDate(raw)
	if err != nil && l.SerialDates {
		t, err = normalize.ParseSerialDate(raw)
	}
	if err != nil {
		return "", false
	}
	return normalize.FormatPeriod(t), true
}

func rejection(rec types.RawRecord, column, value, reason string) validation.Rejection {
	return validation.Rejection{
		Row:    rec.Ordinal,
		Line:   rec.Line,
		Column: column,
		Value:  value,
		Reason: reason,
	}
}
