package utils_test

import (
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/welfare-tools/welfare-converter/pkg/utils"
)

func TestGenerateOutputFileName(t *testing.T) {
	tests := []struct {
		name   string
		format string
		params utils.NameParams
		want   string
	}{
		{
			name:   "default format",
			format: "",
			params: utils.NameParams{Original: "/in/marzo.csv", Provider: "coverflex", Extension: ".csv"},
			want:   "marzo_coverflex_converted.csv",
		},
		{
			name:   "company placeholder",
			format: "{company}_{original}",
			params: utils.NameParams{Original: "ordini.xlsx", Company: "ACME", Extension: ".xlsx"},
			want:   "ACME_ordini.xlsx",
		},
		{
			name:   "extension already present",
			format: "fixed.csv",
			params: utils.NameParams{Extension: ".csv"},
			want:   "fixed.csv",
		},
		{
			name:   "separators in values",
			format: "{company}_{original}",
			params: utils.NameParams{Original: "x.csv", Company: "A/B", Extension: ".csv"},
			want:   "A_B_x.csv",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, utils.GenerateOutputFileName(tt.format, tt.params))
		})
	}
}

func TestGenerateOutputFileName_Generated(t *testing.T) {
	name := utils.GenerateOutputFileName("{timestamp}_{uuid}", utils.NameParams{Extension: ".csv"})
	assert.Regexp(t, regexp.MustCompile(`^\d{8}_\d{6}_[0-9a-f-]{36}\.csv$`), name)
}

func TestRejectionLogName(t *testing.T) {
	assert.Equal(t, "/out/a_converted_rejections.csv", utils.RejectionLogName("/out/a_converted.xlsx"))
}

func TestDiscoverInputFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.csv", "a.XLSX", "notes.txt", "a_coverflex_converted.csv", ".hidden.csv", "~$lock.xlsx"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.csv"), 0755))

	fm := utils.NewFileManager(dir, "", "", "")
	files, err := fm.DiscoverInputFiles()
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.XLSX"), filepath.Join(dir, "b.csv")}, files)

	_, err = utils.NewFileManager(filepath.Join(dir, "absent"), "", "", "").DiscoverInputFiles()
	assert.Error(t, err)
}

func TestArchive(t *testing.T) {
	root := t.TempDir()
	fm := utils.NewFileManager(
		filepath.Join(root, "in"),
		filepath.Join(root, "out"),
		filepath.Join(root, "in_archive"),
		filepath.Join(root, "out_archive"),
	)
	require.NoError(t, fm.EnsureDirectories(true))
	require.NoError(t, os.MkdirAll(fm.InputDir, 0755))

	input := filepath.Join(fm.InputDir, "export.csv")
	output := filepath.Join(fm.OutputDir, "export_converted.csv")
	require.NoError(t, os.WriteFile(input, []byte("in"), 0644))
	require.NoError(t, os.WriteFile(output, []byte("out"), 0644))

	archivedOut, err := fm.ArchiveOutputFile(output)
	require.NoError(t, err)
	assert.FileExists(t, output)
	assert.FileExists(t, archivedOut)

	archivedIn, err := fm.ArchiveInputFile(input)
	require.NoError(t, err)
	assert.False(t, utils.FileExists(input))
	data, err := os.ReadFile(archivedIn)
	require.NoError(t, err)
	assert.Equal(t, "in", string(data))
}

func TestArchive_TimestampSubdirs(t *testing.T) {
	root := t.TempDir()
	fm := utils.NewFileManager(root, root, filepath.Join(root, "archive"), filepath.Join(root, "archive"))
	fm.UseTimestampSubdirs = true

	output := filepath.Join(root, "out.csv")
	require.NoError(t, os.WriteFile(output, nil, 0644))

	archived, err := fm.ArchiveOutputFile(output)
	require.NoError(t, err)
	assert.Contains(t, archived, filepath.Join("archive", time.Now().Format("2006")))
}

func TestWriteSummaryLog(t *testing.T) {
	start := time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC)
	summary := utils.ProcessingSummary{RunID: "run-1", CompanyCode: "ACME", StartTime: start}
	summary.AddProcessed(utils.ProcessedFileInfo{InputFile: "a.csv", OutputFile: "a_converted.csv", Provider: "coverflex", Accepted: 10, Rejected: 2, Dropped: 1})
	summary.AddFailed(utils.FailedFileInfo{InputFile: "b.csv", ErrorMessage: "DoubleYou: missing required column(s): Totale"})
	summary.EndTime = start.Add(2 * time.Second)

	assert.Equal(t, 2, summary.TotalFiles)
	assert.Equal(t, 1, summary.SuccessfulFiles)
	assert.Equal(t, 1, summary.FailedFiles)
	assert.Equal(t, 10, summary.RowsAccepted)

	dir := t.TempDir()
	path, err := utils.WriteSummaryLog(summary, dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "conversion_summary_20240401_090002.txt"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, "Rows Accepted:  10")
	assert.Contains(t, content, "10 accepted, 2 rejected, 1 dropped")
	assert.Contains(t, content, "missing required column(s): Totale")
}
