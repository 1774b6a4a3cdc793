// =============================================================================
// Welfare Converter - XLSX Parser
// =============================================================================
//
// Provider portals can export the same report as a spreadsheet instead of a
// CSV, and the causal map is often maintained in Excel. This module reads
// the first sheet (or a named one) of an XLSX workbook into a types.Table
// with the same shape the CSV parser produces.
//
// Cells are read raw: dates come back as serial day numbers and amounts with
// a '.' decimal mark, so the workbook's display formats (often month-first)
// never leak into the conversion.
//
// =============================================================================

package xlsxparser

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/welfare-tools/welfare-converter/internal/csvparser"
	"github.com/welfare-tools/welfare-converter/internal/types"
)

// =============================================================================
// PARSER FUNCTIONS
// =============================================================================

// Parse reads an XLSX file and returns the first sheet as a table.
//
// PARAMETERS:
//   - filePath: The path to the XLSX file.
//   - skipRows: Banner rows preceding the header row.
//
// RETURNS:
//   - The parsed table.
//   - An error if the file cannot be read or has no usable sheet.
func Parse(filePath string, skipRows int) (*types.Table, error) {
	f, err := excelize.OpenFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	table, err := parseSheet(f, "", skipRows)
	if err != nil {
		return nil, err
	}
	table.Source = filepath.Base(filePath)
	return table, nil
}

// ParseBytes reads an XLSX workbook held in memory.
func ParseBytes(data []byte, skipRows int) (*types.Table, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	return parseSheet(f, "", skipRows)
}

// parseSheet reads one sheet. An empty sheetName selects the first sheet.
func parseSheet(f *excelize.File, sheetName string, skipRows int) (*types.Table, error) {
	if sheetName == "" {
		sheetName = f.GetSheetName(0)
	}
	if sheetName == "" {
		return nil, fmt.Errorf("workbook has no sheets")
	}

	rows, err := f.GetRows(sheetName, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}

	if skipRows < 0 {
		skipRows = 0
	}
	if len(rows) <= skipRows {
		return nil, fmt.Errorf("sheet %q has no header row after %d skipped rows", sheetName, skipRows)
	}

	table := &types.Table{
		Headers: csvparser.CleanHeaders(rows[skipRows]),
	}

	for i, row := range rows[skipRows+1:] {
		if csvparser.IsRowEmpty(row) {
			continue
		}

		cells := make(map[string]string, len(table.Headers))
		for col, header := range table.Headers {
			if col < len(row) {
				cells[header] = row[col]
			}
		}

		table.Records = append(table.Records, types.RawRecord{
			Ordinal: i + 1,
			Line:    skipRows + i + 2,
			Cells:   cells,
		})
	}

	return table, nil
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// IsWorkbook reports whether a file name looks like an XLSX workbook.
func IsWorkbook(fileName string) bool {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".xlsx", ".xlsm":
		return true
	}
	return false
}
