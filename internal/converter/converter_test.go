package converter_test

import (
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/welfare-tools/welfare-converter/internal/causal"
	"github.com/welfare-tools/welfare-converter/internal/config"
	"github.com/welfare-tools/welfare-converter/internal/converter"
	"github.com/welfare-tools/welfare-converter/internal/provider"
	"github.com/welfare-tools/welfare-converter/internal/types"
)

const coverflexExport = "Report benefit\nAzienda: ACME\n\n" +
	"Codice fiscale dipendente;Tratt. Fiscale;Importo;Data\n" +
	"\"RSSMRA80A01H501U\";\"Buoni pasto\";\"1.234,56\";\"15/03/2024\"\n"

const doubleYouExport = "CodFisc;Tratt. Fiscale;Totale;Data Ordine\n" +
	"RSSMRA80A01H501U;Rimborso spese;12,50;02/04/2025\n"

func causalMap() *causal.Map {
	return causal.New([][2]string{
		{"Buoni pasto", "BP01"},
		{"Rimborso spese", "RS02"},
	})
}

// ---------------------------------------------------------------------------
// Detect
// ---------------------------------------------------------------------------

func TestDetect(t *testing.T) {
	tests := []struct {
		name     string
		data     string
		fileName string
		want     string
	}{
		{name: "coverflex by columns", data: coverflexExport, fileName: "export.csv", want: "coverflex"},
		{name: "doubleyou by columns", data: doubleYouExport, fileName: "export.csv", want: "doubleyou"},
		{name: "columns win over a misleading name", data: doubleYouExport, fileName: "coverflex_marzo.csv", want: "doubleyou"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			best, ok := converter.Best(converter.Detect([]byte(tt.data), tt.fileName, provider.Defaults()))
			require.True(t, ok)
			assert.Equal(t, tt.want, best.Layout.Code)
		})
	}
}

func TestDetect_NameBreaksTies(t *testing.T) {
	// Both layouts read the same headers once they share a dialect.
	layouts := []*provider.Layout{provider.Coverflex(), provider.DoubleYou()}
	for _, l := range layouts {
		l.CSV = config.CSVSettings{Delimiter: ";"}
		l.Columns.Employee = []string{"CF"}
		l.Columns.Amount = []string{"Importo"}
		l.Columns.Date = []string{"Data"}
	}
	data := []byte("CF;Tratt. Fiscale;Importo;Data\nA;Buoni pasto;1,00;01/03/2024\n")

	best, ok := converter.Best(converter.Detect(data, "ordini_doubleyou.csv", layouts))
	require.True(t, ok)
	assert.Equal(t, "doubleyou", best.Layout.Code)

	best, ok = converter.Best(converter.Detect(data, "export.csv", layouts))
	require.True(t, ok)
	assert.Equal(t, "coverflex", best.Layout.Code)
}

func TestDetect_NoFit(t *testing.T) {
	candidates := converter.Detect([]byte("a;b\n1;2\n"), "x.csv", provider.Defaults())
	_, ok := converter.Best(candidates)
	assert.False(t, ok)
	for _, c := range candidates {
		assert.Error(t, c.Err)
	}
}

// ---------------------------------------------------------------------------
// Convert
// ---------------------------------------------------------------------------

func TestConvert_Auto(t *testing.T) {
	result, err := converter.Convert(converter.Request{
		Data:        []byte(coverflexExport),
		FileName:    "export.csv",
		Provider:    converter.ProviderAuto,
		CompanyCode: "ACME",
	}, provider.Defaults(), causalMap())
	require.NoError(t, err)

	assert.Equal(t, "coverflex", result.Provider)
	require.Len(t, result.Rows, 1)
	assert.Equal(t, "BP01", result.Rows[0].ReasonCode)
	assert.Equal(t, int64(123456), result.Rows[0].AmountCents)
	assert.Equal(t, "150324", result.Rows[0].Period)
}

func TestConvert_ExplicitProviderIsNotOverridden(t *testing.T) {
	_, err := converter.Convert(converter.Request{
		Data:        []byte(coverflexExport),
		FileName:    "export.csv",
		Provider:    "doubleyou",
		CompanyCode: "ACME",
	}, provider.Defaults(), causalMap())
	require.Error(t, err)

	var missing *provider.MissingColumnsError
	assert.True(t, errors.As(err, &missing))
}

func TestConvert_Unrecognized(t *testing.T) {
	_, err := converter.Convert(converter.Request{
		Data:        []byte("Nome;Cognome\nMario;Rossi\n"),
		FileName:    "anagrafica.csv",
		CompanyCode: "ACME",
	}, provider.Defaults(), causalMap())
	require.Error(t, err)
	assert.True(t, errors.Is(err, converter.ErrUnrecognizedFormat))

	var missing *provider.MissingColumnsError
	assert.True(t, errors.As(err, &missing))
}

func TestConvert_UnknownProvider(t *testing.T) {
	_, err := converter.Convert(converter.Request{Data: []byte(doubleYouExport), FileName: "x.csv", Provider: "edenred"},
		provider.Defaults(), causalMap())
	assert.Error(t, err)
}

func TestConvert_AllRowsRejectedStillReported(t *testing.T) {
	data := "CodFisc;Tratt. Fiscale;Totale;Data Ordine\nA;Rimborso spese;abc;02/04/2025\n"

	result, err := converter.Convert(converter.Request{Data: []byte(data), FileName: "x.csv", CompanyCode: "ACME"},
		provider.Defaults(), causalMap())
	require.NoError(t, err)
	assert.Equal(t, "doubleyou", result.Provider)
	assert.Empty(t, result.Rows)
	assert.Len(t, result.Report.Rejections, 1)
}

func TestConvert_Workbook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ordini.xlsx")
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]interface{}{"CodFisc", "Tratt. Fiscale", "Totale", "Data Ordine"}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]interface{}{"RSSMRA80A01H501U", "Rimborso spese", 12.5, "02/04/2025"}))
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	result, err := converter.Convert(converter.Request{Data: data, FileName: path, CompanyCode: "ACME"},
		provider.Defaults(), causalMap())
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
	assert.Equal(t, "doubleyou", result.Provider)
	assert.Equal(t, int64(1250), result.Rows[0].AmountCents)
	assert.Equal(t, "020425", result.Rows[0].Period)
}

func TestConvert_WorkbookSerialDate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ordini.xlsx")
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]interface{}{"CodFisc", "Tratt. Fiscale", "Totale", "Data Ordine"}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]interface{}{"RSSMRA80A01H501U", "Buoni pasto", 10, 45366}))
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	result, err := converter.Convert(converter.Request{Data: data, FileName: path, CompanyCode: "ACME"},
		provider.Defaults(), causalMap())
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
	assert.Equal(t, "150324", result.Rows[0].Period)
}

func TestConvert_CSVBareNumberDateRejected(t *testing.T) {
	data := []byte("CodFisc;Tratt. Fiscale;Totale;Data Ordine\nAAA;Buoni pasto;10,00;45366\n")

	result, err := converter.Convert(converter.Request{Data: data, FileName: "ordini.csv", Provider: "doubleyou", CompanyCode: "ACME"},
		provider.Defaults(), causalMap())
	require.NoError(t, err)
	assert.Empty(t, result.Rows)
	require.Len(t, result.Report.Rejections, 1)
	assert.Equal(t, "Data Ordine", result.Report.Rejections[0].Column)
}

// ---------------------------------------------------------------------------
// Converter.Run
// ---------------------------------------------------------------------------

func newConfig(t *testing.T) *config.MainConfig {
	t.Helper()
	root := t.TempDir()
	cfg := config.DefaultMainConfig()
	cfg.InputDir = filepath.Join(root, "input")
	cfg.OutputDir = filepath.Join(root, "output")
	cfg.InputArchiveDir = filepath.Join(root, "input_archive")
	cfg.OutputArchiveDir = filepath.Join(root, "output_archive")
	require.NoError(t, os.MkdirAll(cfg.InputDir, 0755))
	return cfg
}

func writeInput(t *testing.T, cfg *config.MainConfig, name, content string) string {
	t.Helper()
	path := filepath.Join(cfg.InputDir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestRun_WritesOutputAndRejectionLog(t *testing.T) {
	cfg := newConfig(t)
	input := writeInput(t, cfg, "marzo.csv", doubleYouExport+"B;Rimborso spese;xx;02/04/2025\n")
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	result := converter.New(input, cfg, provider.Defaults(), causalMap(), converter.Options{
		Provider:    converter.ProviderAuto,
		CompanyCode: "ACME",
		Rows:        provider.Options{Mode: types.ModeStrict},
	}, logger).Run()

	require.NoError(t, result.Error)
	assert.True(t, result.Success)
	assert.Equal(t, "doubleyou", result.Provider)
	assert.Equal(t, filepath.Join(cfg.OutputDir, "marzo_doubleyou_converted.csv"), result.OutputFile)
	assert.Equal(t, filepath.Join(cfg.OutputDir, "marzo_doubleyou_converted_rejections.csv"), result.RejectionLog)
	assert.Equal(t, 1, result.Stats.RowsAccepted)
	assert.Equal(t, 1, result.Stats.RowsRejected)
	assert.Equal(t, 2, result.Stats.RowsRead)

	f, err := os.Open(result.OutputFile)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, []string{"1", "RSSMRA80A01H501U", "RS02", "", "", "", "1250", "020425", ""}, records[1])

	var warned bool
	for _, entry := range hook.AllEntries() {
		if entry.Level == logrus.WarnLevel {
			warned = true
			assert.Equal(t, "ACME", entry.Data["company"])
			assert.Equal(t, 2, entry.Data["row"])
		}
	}
	assert.True(t, warned)

	assert.FileExists(t, input)
}

func TestRun_Archive(t *testing.T) {
	cfg := newConfig(t)
	cfg.Archive = true
	input := writeInput(t, cfg, "export.csv", coverflexExport)
	logger, _ := test.NewNullLogger()

	result := converter.New(input, cfg, provider.Defaults(), causalMap(), converter.Options{CompanyCode: "ACME"}, logger).Run()
	require.True(t, result.Success, "%v", result.Error)

	assert.NoFileExists(t, input)
	assert.FileExists(t, filepath.Join(cfg.InputArchiveDir, "export.csv"))
	assert.FileExists(t, filepath.Join(cfg.OutputArchiveDir, "export_coverflex_converted.csv"))
	assert.FileExists(t, result.OutputFile)
}

func TestRun_ArchiveTimestampSubdirs(t *testing.T) {
	cfg := newConfig(t)
	cfg.Archive = true
	cfg.ArchiveTimestampSubdirs = true
	input := writeInput(t, cfg, "export.csv", coverflexExport)
	logger, _ := test.NewNullLogger()

	result := converter.New(input, cfg, provider.Defaults(), causalMap(), converter.Options{CompanyCode: "ACME"}, logger).Run()
	require.True(t, result.Success, "%v", result.Error)

	day := time.Now().Format(filepath.Join("2006", "01", "02"))
	assert.FileExists(t, filepath.Join(cfg.InputArchiveDir, day, "export.csv"))
	assert.FileExists(t, filepath.Join(cfg.OutputArchiveDir, day, "export_coverflex_converted.csv"))
}

func TestRun_DryRun(t *testing.T) {
	cfg := newConfig(t)
	input := writeInput(t, cfg, "export.csv", coverflexExport)
	logger, _ := test.NewNullLogger()

	result := converter.New(input, cfg, provider.Defaults(), causalMap(), converter.Options{CompanyCode: "ACME", DryRun: true}, logger).Run()
	require.True(t, result.Success)
	assert.Empty(t, result.OutputFile)
	assert.Equal(t, 1, result.Stats.RowsAccepted)
	assert.NoDirExists(t, cfg.OutputDir)
}

func TestRun_Failures(t *testing.T) {
	cfg := newConfig(t)
	logger, _ := test.NewNullLogger()

	t.Run("company code required", func(t *testing.T) {
		input := writeInput(t, cfg, "export.csv", coverflexExport)
		result := converter.New(input, cfg, provider.Defaults(), causalMap(), converter.Options{}, logger).Run()
		assert.False(t, result.Success)
		assert.Error(t, result.Error)
	})

	t.Run("missing column", func(t *testing.T) {
		input := writeInput(t, cfg, "ordini.csv", "CodFisc;Tratt. Fiscale;Data Ordine\nA;B;01/01/2024\n")
		result := converter.New(input, cfg, provider.Defaults(), causalMap(), converter.Options{
			Provider:    "doubleyou",
			CompanyCode: "ACME",
		}, logger).Run()
		assert.False(t, result.Success)
		assert.Contains(t, result.Error.Error(), "Totale")
		assert.Empty(t, result.OutputFile)
	})

	t.Run("missing file", func(t *testing.T) {
		result := converter.New(filepath.Join(cfg.InputDir, "absent.csv"), cfg, provider.Defaults(), causalMap(),
			converter.Options{CompanyCode: "ACME"}, logger).Run()
		assert.False(t, result.Success)
	})
}
