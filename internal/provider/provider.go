// =============================================================================
// Welfare Converter - Provider Layouts
// =============================================================================
//
// A Layout describes one provider export: its CSV dialect, the header names
// it uses for the four fields the payroll import needs, and how it writes
// amounts. Parsing a table with a Layout is a pure function of the table,
// the company code, the causal map and the row policy.
//
// PROVIDERS:
//   - Coverflex: banner lines before the header, delimiter sniffed,
//     columns "Codice fiscale dipendente", "Tratt. Fiscale", "Importo", "Data"
//   - DoubleYou: semicolon-delimited, no banner,
//     columns "CodFisc", "Tratt. Fiscale", "Totale", "Data Ordine"
//
// =============================================================================

package provider

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/welfare-tools/welfare-converter/internal/config"
	"github.com/welfare-tools/welfare-converter/internal/normalize"
	"github.com/welfare-tools/welfare-converter/internal/types"
)

// =============================================================================
// LAYOUT
// =============================================================================

// Layout is a provider export format.
type Layout struct {
	Name     string
	Code     string
	Patterns []string
	CSV      config.CSVSettings
	Columns  config.ColumnAliases
	Dot      normalize.DotConvention

	// SerialDates accepts spreadsheet serial day numbers in the date
	// column. Set for workbook input only.
	SerialDates bool
}

// NewLayout builds a Layout from its configuration.
func NewLayout(pc config.ProviderConfig) (*Layout, error) {
	dot, ok := normalize.ParseDotConvention(pc.DotConvention)
	if !ok {
		return nil, fmt.Errorf("provider %q: dot_convention must be decimal or thousands, got %q", pc.Code, pc.DotConvention)
	}
	if pc.Code == "" {
		return nil, fmt.Errorf("provider %q: code is required", pc.Name)
	}

	name := pc.Name
	if name == "" {
		name = pc.Code
	}

	return &Layout{
		Name:     name,
		Code:     strings.ToLower(pc.Code),
		Patterns: pc.FileMatchingPatterns,
		CSV:      pc.CSVSettings,
		Columns:  pc.Columns,
		Dot:      dot,
	}, nil
}

// Layouts builds layouts from configurations, keeping their order.
func Layouts(pcs []config.ProviderConfig) ([]*Layout, error) {
	layouts := make([]*Layout, 0, len(pcs))
	for _, pc := range pcs {
		l, err := NewLayout(pc)
		if err != nil {
			return nil, err
		}
		layouts = append(layouts, l)
	}
	return layouts, nil
}

// Defaults returns the built-in Coverflex and DoubleYou layouts.
func Defaults() []*Layout {
	layouts, err := Layouts(config.DefaultProviders())
	if err != nil {
		panic(err)
	}
	return layouts
}

// Coverflex returns the built-in Provider A layout.
func Coverflex() *Layout { return Defaults()[0] }

// DoubleYou returns the built-in Provider B layout.
func DoubleYou() *Layout { return Defaults()[1] }

// Find returns the layout with the given code (case-insensitive).
func Find(layouts []*Layout, code string) (*Layout, bool) {
	for _, l := range layouts {
		if strings.EqualFold(l.Code, code) || strings.EqualFold(l.Name, code) {
			return l, true
		}
	}
	return nil, false
}

// MatchesName reports whether the file name matches one of the layout's
// patterns, ignoring case.
func (l *Layout) MatchesName(fileName string) bool {
	base := strings.ToLower(filepath.Base(fileName))
	for _, pattern := range l.Patterns {
		if ok, err := filepath.Match(strings.ToLower(pattern), base); err == nil && ok {
			return true
		}
	}
	return false
}

// =============================================================================
// COLUMN RESOLUTION
// =============================================================================

// Columns holds the table headers resolved for each field.
type Columns struct {
	Employee string
	Reason   string
	Amount   string
	Date     string

	// Period is empty when the table has no period column.
	Period string
}

// MissingColumnsError is a whole-file failure: the table lacks required columns.
type MissingColumnsError struct {
	Provider string

	// Columns are the canonical names of the missing columns.
	Columns []string
}

func (e *MissingColumnsError) Error() string {
	return fmt.Sprintf("%s: missing required column(s): %s", e.Provider, strings.Join(e.Columns, ", "))
}

// ResolveColumns finds the header used for each field. Every missing
// required column is reported in one MissingColumnsError.
func (l *Layout) ResolveColumns(t *types.Table) (Columns, error) {
	var (
		cols    Columns
		missing []string
	)

	required := []struct {
		aliases []string
		target  *string
	}{
		{l.Columns.Employee, &cols.Employee},
		{l.Columns.Reason, &cols.Reason},
		{l.Columns.Amount, &cols.Amount},
		{l.Columns.Date, &cols.Date},
	}

	for _, req := range required {
		header, ok := lookup(t, req.aliases)
		if !ok {
			name := "?"
			if len(req.aliases) > 0 {
				name = req.aliases[0]
			}
			missing = append(missing, name)
			continue
		}
		*req.target = header
	}

	if len(missing) > 0 {
		return Columns{}, &MissingColumnsError{Provider: l.Name, Columns: missing}
	}

	cols.Period, _ = lookup(t, l.Columns.Period)
	return cols, nil
}

// Fits reports whether the table has every required column of the layout.
func (l *Layout) Fits(t *types.Table) bool {
	_, err := l.ResolveColumns(t)
	return err == nil
}

func lookup(t *types.Table, aliases []string) (string, bool) {
	for _, alias := range aliases {
		if header, ok := t.Column(alias); ok {
			return header, true
		}
	}
	return "", false
}
