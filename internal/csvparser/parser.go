// =============================================================================
// Welfare Converter - CSV Parser Module
// =============================================================================
//
// This module reads provider CSV exports into a types.Table. It handles the
// dialect differences between providers:
//   - Different delimiters (comma, semicolon, tab, pipe, or sniffed)
//   - Leading report/banner lines before the real header row
//   - Non-UTF-8 encodings and byte order marks
//   - Stray whitespace around header names
//
// The parser does not know anything about providers. The provider layouts
// decide which settings apply and which columns are required.
//
// =============================================================================

package csvparser

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/welfare-tools/welfare-converter/internal/config"
	"github.com/welfare-tools/welfare-converter/internal/types"
)

// ErrEmptyFile is returned when nothing is left after the skipped rows.
var ErrEmptyFile = errors.New("CSV file is empty")

// =============================================================================
// PARSER FUNCTIONS
// =============================================================================

// Parse reads a CSV file and returns the parsed table.
//
// PARAMETERS:
//   - filePath: The path to the CSV file.
//   - settings: The CSV dialect of the provider.
//
// RETURNS:
//   - The parsed table, header row first.
//   - An error if the file cannot be read or parsed.
func Parse(filePath string, settings config.CSVSettings) (*types.Table, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	table, err := ParseBytes(data, settings)
	if err != nil {
		return nil, err
	}
	table.Source = filepath.Base(filePath)
	return table, nil
}

// ParseBytes parses raw file content.
//
// PARSING PROCESS:
//  1. Decode the content to UTF-8 and drop any byte order mark
//  2. Skip settings.SkipRows physical lines (provider banners)
//  3. Pick the delimiter (configured or sniffed from the header line)
//  4. Read the header row and the data rows
func ParseBytes(data []byte, settings config.CSVSettings) (*types.Table, error) {
	decoded, err := decode(data, settings.Encoding)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s content: %w", settings.Encoding, err)
	}

	body, err := skipLines(decoded, settings.SkipRows)
	if err != nil {
		return nil, err
	}

	delimiter := resolveDelimiter(settings.Delimiter, body)

	csvReader := csv.NewReader(bytes.NewReader(body))
	configureReader(csvReader, delimiter)

	var (
		rows  [][]string
		lines []int
	)
	for {
		row, err := csvReader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV: %w", err)
		}
		// Blank lines and multi-line quoted fields make the physical line
		// differ from the row index.
		line, _ := csvReader.FieldPos(0)
		rows = append(rows, row)
		lines = append(lines, settings.SkipRows+line)
	}
	if len(rows) == 0 {
		return nil, ErrEmptyFile
	}

	table := &types.Table{
		Headers: CleanHeaders(rows[0]),
	}
	table.Records = extractRecords(rows[1:], table.Headers, func(i int) int {
		return lines[i+1]
	})

	return table, nil
}

// =============================================================================
// DECODING
// =============================================================================

// Encoding returns the decoder for a configured encoding name.
func Encoding(name string) (encoding.Encoding, error) {
	switch strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(name), "_", "-")) {
	case "", "UTF-8", "UTF8":
		return unicode.UTF8, nil
	case "UTF-16", "UTF16":
		return unicode.UTF16(unicode.LittleEndian, unicode.UseBOM), nil
	case "ISO-8859-1", "LATIN1", "LATIN-1":
		return charmap.ISO8859_1, nil
	case "ISO-8859-15", "LATIN9", "LATIN-9":
		return charmap.ISO8859_15, nil
	case "WINDOWS-1252", "CP1252":
		return charmap.Windows1252, nil
	}
	return nil, fmt.Errorf("unsupported encoding %q", name)
}

func decode(data []byte, name string) ([]byte, error) {
	enc, err := Encoding(name)
	if err != nil {
		return nil, err
	}
	// BOMOverride switches to the encoding named by a leading BOM and strips it.
	out, _, err := transform.Bytes(unicode.BOMOverride(enc.NewDecoder()), data)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// skipLines drops the first n physical lines. Banner lines are not parsed
// as CSV because they often carry unbalanced quotes.
func skipLines(data []byte, n int) ([]byte, error) {
	if n <= 0 {
		return data, nil
	}

	reader := bufio.NewReader(bytes.NewReader(data))
	consumed := 0
	for i := 0; i < n; i++ {
		line, err := reader.ReadBytes('\n')
		consumed += len(line)
		if err == io.EOF {
			return nil, fmt.Errorf("%w: fewer than %d leading rows", ErrEmptyFile, n)
		}
		if err != nil {
			return nil, err
		}
	}
	return data[consumed:], nil
}

// =============================================================================
// DELIMITER HANDLING
// =============================================================================

// candidateDelimiters are tried, in order, when the delimiter is "auto".
var candidateDelimiters = []rune{',', ';', '\t', '|'}

// resolveDelimiter maps the configured delimiter name to a rune.
func resolveDelimiter(configured string, body []byte) rune {
	switch configured {
	case "\\t", "tab", "TAB":
		return '\t'
	case "|", "pipe", "PIPE":
		return '|'
	case ";", "semicolon":
		return ';'
	case ",", "comma":
		return ','
	case "", "auto", "AUTO":
		return SniffDelimiter(body)
	default:
		return []rune(configured)[0]
	}
}

// SniffDelimiter guesses the delimiter from the first non-blank line by
// counting candidates outside double quotes. Ties keep the earlier candidate.
func SniffDelimiter(body []byte) rune {
	var header string
	scanner := bufio.NewScanner(bytes.NewReader(body))
	for scanner.Scan() {
		if strings.TrimSpace(scanner.Text()) != "" {
			header = scanner.Text()
			break
		}
	}

	counts := make(map[rune]int, len(candidateDelimiters))
	inQuotes := false
	for _, r := range header {
		if r == '"' {
			inQuotes = !inQuotes
			continue
		}
		if !inQuotes {
			counts[r]++
		}
	}

	best := ','
	for _, c := range candidateDelimiters {
		if counts[c] > counts[best] {
			best = c
		}
	}
	return best
}

// configureReader configures the CSV reader for provider exports.
func configureReader(reader *csv.Reader, delimiter rune) {
	reader.Comma = delimiter

	// Provider exports have footers and spacer rows with fewer fields.
	reader.FieldsPerRecord = -1

	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
}

// =============================================================================
// HEADERS AND ROWS
// =============================================================================

// CleanHeaders trims header names, names empty ones by position and
// suffixes duplicates (".1", ".2") so every column stays addressable.
func CleanHeaders(headers []string) []string {
	cleaned := make([]string, len(headers))
	seen := make(map[string]int, len(headers))

	for i, header := range headers {
		header = strings.TrimSpace(header)
		if header == "" {
			header = fmt.Sprintf("Column_%d", i+1)
		}
		if n, dup := seen[header]; dup {
			seen[header] = n + 1
			header = fmt.Sprintf("%s.%d", header, n+1)
		} else {
			seen[header] = 0
		}
		cleaned[i] = header
	}

	return cleaned
}

// extractRecords converts data rows into RawRecords. Fully empty rows are
// skipped but keep their ordinal so diagnostics match the file.
func extractRecords(rows [][]string, headers []string, lineOf func(int) int) []types.RawRecord {
	records := make([]types.RawRecord, 0, len(rows))

	for i, row := range rows {
		if IsRowEmpty(row) {
			continue
		}

		cells := make(map[string]string, len(headers))
		for col, header := range headers {
			if col < len(row) {
				cells[header] = row[col]
			}
		}

		records = append(records, types.RawRecord{
			Ordinal: i + 1,
			Line:    lineOf(i),
			Cells:   cells,
		})
	}

	return records
}

// IsRowEmpty checks if a row contains only empty values.
func IsRowEmpty(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
