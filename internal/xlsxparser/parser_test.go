package xlsxparser_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/welfare-tools/welfare-converter/internal/xlsxparser"
)

func workbook(t *testing.T, rows ...[]interface{}) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &row))
	}

	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	return buf.Bytes()
}

func TestParseBytes(t *testing.T) {
	data := workbook(t,
		[]interface{}{"Report benefit"},
		[]interface{}{" CodFisc ", "Totale", "Data Ordine"},
		[]interface{}{"RSSMRA80A01H501U", 12.5, 45366},
		[]interface{}{nil, nil, nil},
		[]interface{}{"VRDLGU75B02F205X", 3, 45367},
	)

	table, err := xlsxparser.ParseBytes(data, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"CodFisc", "Totale", "Data Ordine"}, table.Headers)
	require.Len(t, table.Records, 2)

	first := table.Records[0]
	assert.Equal(t, 1, first.Ordinal)
	assert.Equal(t, 3, first.Line)
	v, _ := first.Get("Totale")
	assert.Equal(t, "12.5", v)
	v, _ = first.Get("Data Ordine")
	assert.Equal(t, "45366", v)

	assert.Equal(t, 3, table.Records[1].Ordinal)
	assert.Equal(t, 5, table.Records[1].Line)
}

func TestParseBytes_DuplicateHeaders(t *testing.T) {
	data := workbook(t,
		[]interface{}{"Importo", "", "Importo"},
		[]interface{}{"1", "2", "3"},
	)

	table, err := xlsxparser.ParseBytes(data, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"Importo", "Column_2", "Importo.1"}, table.Headers)

	require.Len(t, table.Records, 1)
	v, _ := table.Records[0].Get("Importo")
	assert.Equal(t, "1", v)
	v, _ = table.Records[0].Get("Importo.1")
	assert.Equal(t, "3", v)
}

func TestParseBytes_NoHeaderRow(t *testing.T) {
	_, err := xlsxparser.ParseBytes(workbook(t, []interface{}{"banner"}), 3)
	assert.Error(t, err)
}

func TestIsWorkbook(t *testing.T) {
	assert.True(t, xlsxparser.IsWorkbook("ordini.XLSX"))
	assert.False(t, xlsxparser.IsWorkbook("ordini.csv"))
}
