// =============================================================================
// Welfare Converter - File Manager Utility
// =============================================================================
//
// This module provides the file handling around a conversion run:
//   - Input discovery (provider exports as .csv or .xlsx)
//   - Output file naming
//   - Archival of processed inputs and generated outputs
//   - The per-run summary log
//
// ARCHIVAL STRATEGY:
//   - Input files are moved to input_archive after a successful conversion
//   - Output files are copied to output_archive
//   - Failed files stay where they are
//
// =============================================================================

package utils

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// InputExtensions are the file extensions picked up by discovery.
var InputExtensions = []string{".csv", ".xlsx"}

// =============================================================================
// FILE MANAGER
// =============================================================================

// FileManager handles file operations for the converter.
type FileManager struct {
	// InputDir is the directory where provider exports are placed.
	InputDir string

	// OutputDir is the directory where converted tables are written.
	OutputDir string

	// InputArchiveDir receives inputs after a successful conversion.
	InputArchiveDir string

	// OutputArchiveDir receives a copy of every output.
	OutputArchiveDir string

	// UseTimestampSubdirs creates date-based subdirectories in archives.
	// Example: input_archive/2024/01/15/export.csv
	UseTimestampSubdirs bool
}

// NewFileManager creates a new FileManager with the specified directories.
func NewFileManager(inputDir, outputDir, inputArchiveDir, outputArchiveDir string) *FileManager {
	return &FileManager{
		InputDir:         inputDir,
		OutputDir:        outputDir,
		InputArchiveDir:  inputArchiveDir,
		OutputArchiveDir: outputArchiveDir,
	}
}

// =============================================================================
// DIRECTORY MANAGEMENT
// =============================================================================

// EnsureDirectories creates the output directory and, when archiving, the
// archive directories.
func (fm *FileManager) EnsureDirectories(archive bool) error {
	dirs := []string{fm.OutputDir}
	if archive {
		dirs = append(dirs, fm.InputArchiveDir, fm.OutputArchiveDir)
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}

// =============================================================================
// FILE DISCOVERY
// =============================================================================

// DiscoverInputFiles lists the provider exports in the input directory,
// sorted by name. Only files with one of InputExtensions are returned;
// generated outputs (names ending in "_converted") are skipped.
//
// RETURNS:
//   - A slice of file paths.
//   - An error if the directory cannot be read.
func (fm *FileManager) DiscoverInputFiles() ([]string, error) {
	entries, err := os.ReadDir(fm.InputDir)
	if err != nil {
		return nil, fmt.Errorf("failed to scan input directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "~$") {
			continue
		}
		if !IsInputFile(name) {
			continue
		}
		stem := strings.TrimSuffix(name, filepath.Ext(name))
		if strings.HasSuffix(strings.ToLower(stem), "_converted") {
			continue
		}
		files = append(files, filepath.Join(fm.InputDir, name))
	}

	sort.Strings(files)
	return files, nil
}

// IsInputFile reports whether a file name has a supported input extension.
func IsInputFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, allowed := range InputExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

// =============================================================================
// FILE ARCHIVAL
// =============================================================================

// ArchiveInputFile moves an input file to the archive directory.
//
// PARAMETERS:
//   - filePath: The path to the file to archive.
//
// RETURNS:
//   - The path to the archived file.
//   - An error if archival fails.
func (fm *FileManager) ArchiveInputFile(filePath string) (string, error) {
	archivePath := fm.getArchivePath(fm.InputArchiveDir, filePath)

	if err := os.MkdirAll(filepath.Dir(archivePath), 0755); err != nil {
		return "", fmt.Errorf("failed to create archive directory: %w", err)
	}

	if err := os.Rename(filePath, archivePath); err != nil {
		// Rename fails across devices; fall back to copy and delete.
		if err := copyFile(filePath, archivePath); err != nil {
			return "", fmt.Errorf("failed to copy file to archive: %w", err)
		}
		if err := os.Remove(filePath); err != nil {
			return "", fmt.Errorf("failed to remove original file: %w", err)
		}
	}

	return archivePath, nil
}

// ArchiveOutputFile copies an output file to the archive directory. The
// output stays in the output directory.
func (fm *FileManager) ArchiveOutputFile(filePath string) (string, error) {
	archivePath := fm.getArchivePath(fm.OutputArchiveDir, filePath)

	if err := os.MkdirAll(filepath.Dir(archivePath), 0755); err != nil {
		return "", fmt.Errorf("failed to create archive directory: %w", err)
	}

	if err := copyFile(filePath, archivePath); err != nil {
		return "", fmt.Errorf("failed to copy file to archive: %w", err)
	}

	return archivePath, nil
}

// getArchivePath constructs the archive path for a file.
func (fm *FileManager) getArchivePath(archiveDir, filePath string) string {
	fileName := filepath.Base(filePath)

	if fm.UseTimestampSubdirs {
		now := time.Now()
		return filepath.Join(
			archiveDir,
			fmt.Sprintf("%d", now.Year()),
			fmt.Sprintf("%02d", now.Month()),
			fmt.Sprintf("%02d", now.Day()),
			fileName,
		)
	}

	return filepath.Join(archiveDir, fileName)
}

// =============================================================================
// OUTPUT FILE NAMING
// =============================================================================

// NameParams are the values substituted into an output name format.
type NameParams struct {
	// Original is the input file name; its extension is dropped.
	Original string

	// Provider is the code of the provider layout used.
	Provider string

	// Company is the company code of the run.
	Company string

	// Extension is appended when the name does not already end with it.
	Extension string
}

// GenerateOutputFileName builds an output file name.
//
// PARAMETERS:
//   - format: The format string for the file name.
//             Placeholders:
//               {original}  - Input file name without extension
//               {provider}  - Provider code (coverflex, doubleyou)
//               {company}   - Company code
//               {timestamp} - Current timestamp (YYYYMMDD_HHMMSS)
//               {date}      - Current date (YYYYMMDD)
//               {uuid}      - A random UUID
//   - params: The placeholder values.
//
// RETURNS:
//   - The generated file name.
//
// EXAMPLE:
//   format: "{original}_{provider}_converted"
//   params: {Original: "marzo.csv", Provider: "coverflex", Extension: ".csv"}
//   output: "marzo_coverflex_converted.csv"
func GenerateOutputFileName(format string, params NameParams) string {
	if format == "" {
		format = "{original}_{provider}_converted"
	}
	now := time.Now()

	base := filepath.Base(params.Original)
	original := strings.TrimSuffix(base, filepath.Ext(base))

	replacer := strings.NewReplacer(
		"{original}", sanitizeName(original),
		"{provider}", sanitizeName(params.Provider),
		"{company}", sanitizeName(params.Company),
		"{timestamp}", now.Format("20060102_150405"),
		"{date}", now.Format("20060102"),
		"{uuid}", uuid.New().String(),
	)
	result := replacer.Replace(format)

	if params.Extension != "" && !strings.HasSuffix(strings.ToLower(result), strings.ToLower(params.Extension)) {
		result += params.Extension
	}

	return result
}

// RejectionLogName returns the rejection log name for an output file.
func RejectionLogName(outputFile string) string {
	return strings.TrimSuffix(outputFile, filepath.Ext(outputFile)) + "_rejections.csv"
}

// sanitizeName keeps path separators out of substituted values.
func sanitizeName(s string) string {
	return strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(strings.TrimSpace(s))
}

// =============================================================================
// PROCESSING SUMMARY
// =============================================================================

// ProcessingSummary contains summary information about a conversion run.
type ProcessingSummary struct {
	RunID           string
	CompanyCode     string
	StartTime       time.Time
	EndTime         time.Time
	TotalFiles      int
	SuccessfulFiles int
	FailedFiles     int
	RowsAccepted    int
	RowsRejected    int
	RowsDropped     int
	CausalMisses    int
	ProcessedFiles  []ProcessedFileInfo
	FailedFilesList []FailedFileInfo
}

// ProcessedFileInfo contains information about a converted file.
type ProcessedFileInfo struct {
	InputFile    string
	OutputFile   string
	Provider     string
	Accepted     int
	Rejected     int
	Dropped      int
	CausalMisses int
	ProcessTime  time.Duration
}

// FailedFileInfo contains information about a failed file.
type FailedFileInfo struct {
	InputFile    string
	ErrorMessage string
}

// AddProcessed records a converted file and updates the totals.
func (s *ProcessingSummary) AddProcessed(info ProcessedFileInfo) {
	s.TotalFiles++
	s.SuccessfulFiles++
	s.RowsAccepted += info.Accepted
	s.RowsRejected += info.Rejected
	s.RowsDropped += info.Dropped
	s.CausalMisses += info.CausalMisses
	s.ProcessedFiles = append(s.ProcessedFiles, info)
}

// AddFailed records a failed file.
func (s *ProcessingSummary) AddFailed(info FailedFileInfo) {
	s.TotalFiles++
	s.FailedFiles++
	s.FailedFilesList = append(s.FailedFilesList, info)
}

// WriteSummaryLog writes a processing summary to a log file.
//
// PARAMETERS:
//   - summary: The processing summary.
//   - outputDir: The directory to write the summary file.
//
// RETURNS:
//   - The path to the summary file.
//   - An error if writing fails.
func WriteSummaryLog(summary ProcessingSummary, outputDir string) (string, error) {
	timestamp := summary.EndTime.Format("20060102_150405")
	summaryPath := filepath.Join(outputDir, fmt.Sprintf("conversion_summary_%s.txt", timestamp))

	file, err := os.Create(summaryPath)
	if err != nil {
		return "", fmt.Errorf("failed to create summary file: %w", err)
	}
	defer file.Close()

	if err := writeSummary(file, summary); err != nil {
		return "", err
	}

	return summaryPath, file.Close()
}

func writeSummary(w io.Writer, summary ProcessingSummary) error {
	writer := bufio.NewWriter(w)
	rule := strings.Repeat("=", 80) + "\n"
	thin := strings.Repeat("-", 80) + "\n"

	fmt.Fprintf(writer, "Welfare Converter - Conversion Summary\n%s\n", rule)
	fmt.Fprintf(writer, "Run Information:\n"+
		"  Run ID:         %s\n"+
		"  Company:        %s\n"+
		"  Start Time:     %s\n"+
		"  End Time:       %s\n"+
		"  Duration:       %s\n\n",
		summary.RunID,
		summary.CompanyCode,
		summary.StartTime.Format("2006-01-02 15:04:05"),
		summary.EndTime.Format("2006-01-02 15:04:05"),
		summary.EndTime.Sub(summary.StartTime).String())
	fmt.Fprintf(writer, "Statistics:\n"+
		"  Total Files:    %d\n"+
		"  Successful:     %d\n"+
		"  Failed:         %d\n"+
		"  Rows Accepted:  %d\n"+
		"  Rows Rejected:  %d\n"+
		"  Rows Dropped:   %d\n"+
		"  Causal Misses:  %d\n\n",
		summary.TotalFiles,
		summary.SuccessfulFiles,
		summary.FailedFiles,
		summary.RowsAccepted,
		summary.RowsRejected,
		summary.RowsDropped,
		summary.CausalMisses)

	if len(summary.ProcessedFiles) > 0 {
		writer.WriteString("Converted Files:\n" + thin)
		for _, pf := range summary.ProcessedFiles {
			fmt.Fprintf(writer, "  Input:        %s\n", pf.InputFile)
			fmt.Fprintf(writer, "  Output:       %s\n", pf.OutputFile)
			fmt.Fprintf(writer, "  Provider:     %s\n", pf.Provider)
			fmt.Fprintf(writer, "  Rows:         %d accepted, %d rejected, %d dropped\n", pf.Accepted, pf.Rejected, pf.Dropped)
			fmt.Fprintf(writer, "  Process Time: %s\n\n", pf.ProcessTime.String())
		}
	}

	if len(summary.FailedFilesList) > 0 {
		writer.WriteString("Failed Files:\n" + thin)
		for _, ff := range summary.FailedFilesList {
			fmt.Fprintf(writer, "  File:  %s\n", ff.InputFile)
			fmt.Fprintf(writer, "  Error: %s\n\n", ff.ErrorMessage)
		}
	}

	writer.WriteString(rule + "End of Summary\n")

	if err := writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush summary file: %w", err)
	}
	return nil
}

// =============================================================================
// UTILITY FUNCTIONS
// =============================================================================

// copyFile copies a file from src to dst.
func copyFile(src, dst string) error {
	sourceFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer sourceFile.Close()

	destFile, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer destFile.Close()

	if _, err := io.Copy(destFile, sourceFile); err != nil {
		return err
	}

	return destFile.Sync()
}

// FileExists checks if a file exists.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}
