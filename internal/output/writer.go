// =============================================================================
// Welfare Converter - Output Writer Module
// =============================================================================
//
// This module writes the normalized payroll table. The column order is fixed
// and matches what the payroll import expects:
//
//   Progressivo, Codice dipendente, Codice voce, Descrizione, Quantità,
//   Base, Importo, Periodo, Tipo elaborazione
//
// "Progressivo" is only written when the sequence column is enabled.
// Descrizione, Quantità, Base and Tipo elaborazione are placeholders the
// payroll operator fills in; they are written empty unless a row sets them.
// Importo is the signed amount in cents, as an integer.
//
// FORMATS:
//   - csv:  UTF-8, comma-delimited, no index column
//   - xlsx: one sheet named "Import", same header, Importo as a number cell
//
// =============================================================================

package output

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/welfare-tools/welfare-converter/internal/types"
)

// Supported formats.
const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

// SheetName is the sheet written in XLSX output.
const SheetName = "Import"

// SequenceHeader is the optional leading column.
const SequenceHeader = "Progressivo"

// Headers are the fixed output columns, without the sequence column.
var Headers = []string{
	"Codice dipendente",
	"Codice voce",
	"Descrizione",
	"Quantità",
	"Base",
	"Importo",
	"Periodo",
	"Tipo elaborazione",
}

// Options controls how the table is written.
type Options struct {
	// IncludeSequence writes the leading Progressivo column.
	IncludeSequence bool
}

// Header returns the header row for the given options.
func Header(opts Options) []string {
	if !opts.IncludeSequence {
		return append([]string(nil), Headers...)
	}
	return append([]string{SequenceHeader}, Headers...)
}

// Record renders one row as strings, in header order.
func Record(row types.NormalizedRow, opts Options) []string {
	record := make([]string, 0, len(Headers)+1)
	if opts.IncludeSequence {
		record = append(record, strconv.Itoa(row.Sequence))
	}
	return append(record,
		row.EmployeeCode,
		row.ReasonCode,
		row.Description,
		row.Quantity,
		row.Base,
		strconv.FormatInt(row.AmountCents, 10),
		row.Period,
		row.ProcessingType,
	)
}

// =============================================================================
// CSV
// =============================================================================

// WriteCSV writes rows as comma-delimited UTF-8 to w.
func WriteCSV(w io.Writer, rows []types.NormalizedRow, opts Options) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(Header(opts)); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, row := range rows {
		if err := writer.Write(Record(row, opts)); err != nil {
			return fmt.Errorf("failed to write row %d: %w", row.Sequence, err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// =============================================================================
// XLSX
// =============================================================================

// BuildWorkbook renders rows into a new workbook. The caller closes it.
func BuildWorkbook(rows []types.NormalizedRow, opts Options) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to name sheet: %w", err)
	}

	header := Header(opts)
	headerCells := make([]interface{}, len(header))
	for i, h := range header {
		headerCells[i] = h
	}
	if err := f.SetSheetRow(SheetName, "A1", &headerCells); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write header: %w", err)
	}

	for i, row := range rows {
		cells := make([]interface{}, 0, len(header))
		if opts.IncludeSequence {
			cells = append(cells, row.Sequence)
		}
		cells = append(cells,
			row.EmployeeCode,
			row.ReasonCode,
			row.Description,
			row.Quantity,
			row.Base,
			row.AmountCents,
			row.Period,
			row.ProcessingType,
		)

		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			f.Close()
			return nil, err
		}
		if err := f.SetSheetRow(SheetName, cell, &cells); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to write row %d: %w", row.Sequence, err)
		}
	}

	return f, nil
}

// WriteXLSX writes rows as an XLSX workbook to w.
func WriteXLSX(w io.Writer, rows []types.NormalizedRow, opts Options) error {
	f, err := BuildWorkbook(rows, opts)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

// =============================================================================
// FILE OUTPUT
// =============================================================================

// Write renders rows in the given format to w.
func Write(w io.Writer, format string, rows []types.NormalizedRow, opts Options) error {
	switch strings.ToLower(format) {
	case "", FormatCSV:
		return WriteCSV(w, rows, opts)
	case FormatXLSX:
		return WriteXLSX(w, rows, opts)
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
}

// WriteFile writes rows to filePath in the given format.
//
// PARAMETERS:
//   - filePath: The path of the output file, created or truncated.
//   - format: "csv" or "xlsx".
//   - rows: The accepted rows, already numbered.
//   - opts: Output options.
//
// RETURNS:
//   - An error if the file cannot be written. A partial file is removed.
func WriteFile(filePath, format string, rows []types.NormalizedRow, opts Options) error {
	file, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}

	if err := Write(file, format, rows, opts); err != nil {
		file.Close()
		os.Remove(filePath)
		return err
	}

	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to close output file: %w", err)
	}
	return nil
}

// Extension returns the file extension for a format, with the dot.
func Extension(format string) string {
	if strings.EqualFold(format, FormatXLSX) {
		return ".xlsx"
	}
	return ".csv"
}
