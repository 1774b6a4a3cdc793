package converter

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/welfare-tools/welfare-converter/internal/causal"
	"github.com/welfare-tools/welfare-converter/internal/csvparser"
	"github.com/welfare-tools/welfare-converter/internal/normalize"
	"github.com/welfare-tools/welfare-converter/internal/provider"
	"github.com/welfare-tools/welfare-converter/internal/types"
	"github.com/welfare-tools/welfare-converter/internal/xlsxparser"
)

// ProviderAuto selects the layout by detection.
const ProviderAuto = "auto"

// ErrUnrecognizedFormat is returned in auto mode when no layout can read a file.
var ErrUnrecognizedFormat = errors.New("unrecognized format")

// Candidate is one layout considered for a file.
type Candidate struct {
	Layout *provider.Layout

	// Table is the file read with the layout's dialect; nil if unreadable.
	Table *types.Table

	// Err is the read or column-resolution failure, nil when the layout fits.
	Err error

	// NameMatch is true when the file name matches the layout's patterns.
	NameMatch bool
}

// Fits reports whether the file has every column the layout requires.
func (c Candidate) Fits() bool {
	return c.Table != nil && c.Err == nil
}

// ReadTable reads a provider export with a layout's dialect. Workbooks are
// read from the first sheet after the layout's banner rows.
func ReadTable(data []byte, fileName string, layout *provider.Layout) (*types.Table, error) {
	var (
		table *types.Table
		err   error
	)
	if xlsxparser.IsWorkbook(fileName) {
		table, err = xlsxparser.ParseBytes(data, layout.CSV.SkipRows)
	} else {
		table, err = csvparser.ParseBytes(data, layout.CSV)
	}
	if err != nil {
		return nil, err
	}
	table.Source = filepath.Base(fileName)
	return table, nil
}

// Detect reads the file with every layout and returns the candidates in
// preference order: layouts whose required columns are all present come
// first, a file name match breaks ties, then configuration order.
func Detect(data []byte, fileName string, layouts []*provider.Layout) []Candidate {
	candidates := make([]Candidate, 0, len(layouts))
	for _, layout := range layouts {
		c := Candidate{Layout: layout, NameMatch: layout.MatchesName(fileName)}
		table, err := ReadTable(data, fileName, layout)
		if err != nil {
			c.Err = fmt.Errorf("%s: %w", layout.Name, err)
		} else {
			c.Table = table
			_, c.Err = layout.ResolveColumns(table)
		}
		candidates = append(candidates, c)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Fits() != b.Fits() {
			return a.Fits()
		}
		return a.NameMatch && !b.NameMatch
	})
	return candidates
}

// Best returns the preferred fitting candidate.
func Best(candidates []Candidate) (Candidate, bool) {
	if len(candidates) > 0 && candidates[0].Fits() {
		return candidates[0], true
	}
	return Candidate{}, false
}

// =============================================================================
// CONVERSION
// =============================================================================

// Request is one file conversion, independent of the file system.
type Request struct {
	// Data is the raw file content.
	Data []byte

	// FileName selects CSV or XLSX reading and drives name tie-breaks.
	FileName string

	// Provider is a layout code, or "auto" / "" for detection.
	Provider string

	CompanyCode string
	Options     provider.Options
}

// Convert turns one provider export into normalized rows.
//
// An explicit provider is always used as given: a missing column is
// reported as *provider.MissingColumnsError. In auto mode every layout that
// structurally fits is parsed in preference order, and the first one that
// accepts at least one row (or rejects nothing) wins. If only
// fully-rejected parses remain, the preferred one is returned so its
// rejections can be inspected. When no layout fits, the error wraps
// ErrUnrecognizedFormat together with each layout's failure.
func Convert(req Request, layouts []*provider.Layout, cm *causal.Map) (*provider.Result, error) {
	if req.Provider != "" && !strings.EqualFold(req.Provider, ProviderAuto) {
		layout, ok := provider.Find(layouts, req.Provider)
		if !ok {
			return nil, fmt.Errorf("unknown provider %q", req.Provider)
		}
		table, err := ReadTable(req.Data, req.FileName, layout)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s export: %w", layout.Name, err)
		}
		return parseWith(layout, table, req, cm)
	}

	candidates := Detect(req.Data, req.FileName, layouts)

	var (
		first *provider.Result
		errs  []error
	)
	for _, c := range candidates {
		if !c.Fits() {
			errs = append(errs, c.Err)
			continue
		}
		result, err := parseWith(c.Layout, c.Table, req, cm)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if result.Accepted() > 0 || result.Rejected() == 0 {
			return result, nil
		}
		if first == nil {
			first = result
		}
	}

	if first != nil {
		return first, nil
	}
	return nil, fmt.Errorf("%w: %w", ErrUnrecognizedFormat, errors.Join(errs...))
}

func parseWith(layout *provider.Layout, table *types.Table, req Request, cm *causal.Map) (*provider.Result, error) {
	if xlsxparser.IsWorkbook(req.FileName) {
		// Raw workbook cells use '.' as the decimal mark and hold dates as
		// serial day numbers.
		copied := *layout
		copied.Dot = normalize.DotDecimal
		copied.SerialDates = true
		layout = &copied
	}
	return layout.Parse(table, req.CompanyCode, cm, req.Options)
}
