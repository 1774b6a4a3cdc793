// Package causal loads the tax-treatment reference table (Trattamento ->
// Codice) and resolves provider labels to payroll reason codes.
//
// A Map is immutable once built and safe to share between goroutines.
package causal

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/welfare-tools/welfare-converter/internal/config"
	"github.com/welfare-tools/welfare-converter/internal/csvparser"
	"github.com/welfare-tools/welfare-converter/internal/types"
	"github.com/welfare-tools/welfare-converter/internal/xlsxparser"
)

const (
	LabelColumn = "Trattamento"
	CodeColumn  = "Codice"
)

// Conflict is a label listed more than once with different codes.
// The first code wins.
type Conflict struct {
	Label   string
	Kept    string
	Ignored string
}

// Map is the read-only label -> code table.
type Map struct {
	codes     map[string]string
	conflicts []Conflict
}

// Normalize is the key both sides of a lookup go through: trimmed,
// NFC-composed and case-folded. A Caser is stateful, so one is made per call.
func Normalize(label string) string {
	return cases.Fold().String(norm.NFC.String(strings.TrimSpace(label)))
}

// New builds a Map from label/code pairs in order.
func New(pairs [][2]string) *Map {
	m := &Map{codes: make(map[string]string, len(pairs))}
	for _, p := range pairs {
		m.add(p[0], p[1])
	}
	return m
}

func (m *Map) add(label, code string) {
	key := Normalize(label)
	if key == "" {
		return
	}
	code = strings.TrimSpace(code)

	if kept, exists := m.codes[key]; exists {
		if kept != code {
			m.conflicts = append(m.conflicts, Conflict{Label: strings.TrimSpace(label), Kept: kept, Ignored: code})
		}
		return
	}
	m.codes[key] = code
}

// Load reads the reference table from a .csv (UTF-8, comma) or .xlsx file
// with a `Trattamento,Codice` header.
func Load(path string) (*Map, error) {
	var (
		table *types.Table
		err   error
	)
	if xlsxparser.IsWorkbook(path) {
		table, err = xlsxparser.Parse(path, 0)
	} else {
		table, err = csvparser.Parse(path, config.CSVSettings{Delimiter: ",", Encoding: "UTF-8"})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read causal map %s: %w", path, err)
	}

	return FromTable(table)
}

// FromTable builds a Map from a parsed reference table.
func FromTable(table *types.Table) (*Map, error) {
	labelCol, ok := table.Column(LabelColumn)
	if !ok {
		return nil, fmt.Errorf("causal map: missing column %q", LabelColumn)
	}
	codeCol, ok := table.Column(CodeColumn)
	if !ok {
		return nil, fmt.Errorf("causal map: missing column %q", CodeColumn)
	}

	m := &Map{codes: make(map[string]string, len(table.Records))}
	for _, rec := range table.Records {
		label, _ := rec.Get(labelCol)
		code, _ := rec.Get(codeCol)
		m.add(label, code)
	}
	return m, nil
}

// Resolve returns the code for a label, or "" when the label is unmapped.
// Lookup is exact after Normalize on both sides.
func (m *Map) Resolve(label string) (string, bool) {
	if m == nil {
		return "", false
	}
	code, ok := m.codes[Normalize(label)]
	return code, ok
}

// Len returns the number of distinct labels.
func (m *Map) Len() int {
	if m == nil {
		return 0
	}
	return len(m.codes)
}

// Conflicts returns duplicate labels whose later codes were ignored.
func (m *Map) Conflicts() []Conflict {
	if m == nil {
		return nil
	}
	out := make([]Conflict, len(m.conflicts))
	copy(out, m.conflicts)
	return out
}

// Resolver applies the miss policy on top of a Map.
type Resolver struct {
	m        *Map
	fallback string
}

// NewResolver returns a Resolver that yields fallback for unmapped labels.
// An empty fallback keeps unmapped codes empty.
func NewResolver(m *Map, fallback string) *Resolver {
	return &Resolver{m: m, fallback: strings.TrimSpace(fallback)}
}

// Code resolves a label. The bool is false on a miss, in which case the
// fallback (possibly empty) is returned.
func (r *Resolver) Code(label string) (string, bool) {
	if code, ok := r.m.Resolve(label); ok {
		return code, true
	}
	return r.fallback, false
}
