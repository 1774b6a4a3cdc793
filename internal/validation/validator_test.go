package validation_test

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/welfare-tools/welfare-converter/internal/validation"
)

func TestReport(t *testing.T) {
	var r validation.Report
	r.Reject(validation.Rejection{Row: 2, Column: "Importo", Value: "abc", Reason: validation.ReasonInvalidAmount})
	r.Reject(validation.Rejection{Row: 5, Column: "Data", Value: "", Reason: validation.ReasonInvalidDate})
	r.Reject(validation.Rejection{Row: 7, Column: "Importo", Value: "x", Reason: validation.ReasonInvalidAmount})
	r.Miss("Buono carburante")
	r.Miss(" Buono carburante ")
	r.Miss("Altro")

	assert.Equal(t, map[string]int{
		validation.ReasonInvalidAmount: 2,
		validation.ReasonInvalidDate:   1,
	}, r.ByReason())
	assert.Equal(t, 3, r.CausalMisses)
	assert.Equal(t, []string{"Buono carburante", "Altro"}, r.UnmappedLabels)
}

func TestRejection_Error(t *testing.T) {
	rej := validation.Rejection{Row: 1, Column: "Importo", Value: "abc", Reason: validation.ReasonInvalidAmount}
	assert.Equal(t, "row 1, column 'Importo': unparseable amount (value: 'abc')", rej.Error())
}

func TestFormatRejections(t *testing.T) {
	assert.Equal(t, "No rows rejected.", validation.FormatRejections(nil))

	out := validation.FormatRejections([]validation.Rejection{
		{Row: 3, Column: "Data", Value: "31/02/2024", Reason: validation.ReasonInvalidDate},
	})
	assert.Contains(t, out, "1 row(s) rejected (unparseable date: 1)")
	assert.Contains(t, out, "row 3, column 'Data'")
}

func TestWriteRejectionLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out_rejections.csv")
	err := validation.WriteRejectionLog([]validation.Rejection{
		{Row: 1, Line: 5, Column: "Importo", Value: "1,2,3", Reason: validation.ReasonInvalidAmount},
	}, path)
	require.NoError(t, err)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, validation.RejectionLogHeader, records[0])
	assert.Equal(t, []string{"1", "5", "Importo", "1,2,3", validation.ReasonInvalidAmount}, records[1])
}
