// =============================================================================
// Welfare Converter - Converter Module
// =============================================================================
//
// This module contains the per-file conversion pipeline. It takes one
// provider export from disk to a normalized payroll table.
//
// CONVERSION PIPELINE:
//   1. Read the input file
//   2. Pick the provider layout (explicit choice, or detection in auto mode)
//   3. Resolve the required columns (a missing column aborts the file)
//   4. Convert each row: amount to cents, date to ddmmyy, causal label to code
//   5. Write the output table (CSV or XLSX)
//   6. Write the rejection log when rows were rejected
//   7. Archive the processed files (optional)
//
// CONCURRENCY:
//   Each file is converted by its own Converter. Converters share the
//   read-only causal map and layouts, so several can run in parallel.
//
// =============================================================================

package converter

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/welfare-tools/welfare-converter/internal/causal"
	"github.com/welfare-tools/welfare-converter/internal/config"
	"github.com/welfare-tools/welfare-converter/internal/output"
	"github.com/welfare-tools/welfare-converter/internal/provider"
	"github.com/welfare-tools/welfare-converter/internal/types"
	"github.com/welfare-tools/welfare-converter/internal/validation"
	"github.com/welfare-tools/welfare-converter/pkg/utils"
)

// =============================================================================
// RESULT STRUCTURE
// =============================================================================

// Result represents the outcome of converting a single file.
type Result struct {
	// FilePath is the path to the input file.
	FilePath string

	// RunID identifies this conversion in logs and the summary.
	RunID string

	// Provider is the code of the layout used. Empty if none applied.
	Provider string

	// OutputFile is the path to the converted table.
	// This is empty if conversion failed or was a dry run.
	OutputFile string

	// RejectionLog is the path to the rejection log, if one was written.
	RejectionLog string

	// Success indicates whether the conversion was successful.
	Success bool

	// Error contains the error if conversion failed.
	Error error

	// Rejections lists the rows excluded from the output.
	Rejections []validation.Rejection

	// UnmappedLabels lists the distinct causal labels without a code.
	UnmappedLabels []string

	// Stats contains conversion statistics.
	Stats ProcessingStats
}

// ProcessingStats contains statistics about the conversion.
type ProcessingStats struct {
	// RowsRead is the number of non-empty data rows in the input.
	RowsRead int

	// RowsAccepted is the number of rows written to the output.
	RowsAccepted int

	// RowsRejected is the number of rows with an unparseable amount or date.
	RowsRejected int

	// RowsDropped counts blank-identifier rows, repeated headers and,
	// when configured, zero amounts.
	RowsDropped int

	// CausalMisses is the number of accepted rows without a causal code.
	CausalMisses int

	// ProcessingTime is the time taken to convert the file.
	ProcessingTime time.Duration
}

// =============================================================================
// CONVERTER STRUCTURE
// =============================================================================

// Options configures a conversion run.
type Options struct {
	// Provider is a layout code or "auto".
	Provider string

	// CompanyCode is required and carried into results and output names.
	CompanyCode string

	// Rows is the row policy.
	Rows provider.Options

	// DryRun converts without writing or archiving anything.
	DryRun bool
}

// Converter handles the conversion of a single provider export.
type Converter struct {
	inputPath  string
	mainConfig *config.MainConfig
	layouts    []*provider.Layout
	causalMap  *causal.Map
	opts       Options
	files      *utils.FileManager
	runID      string
	logger     *logrus.Entry
}

// =============================================================================
// CONSTRUCTOR
// =============================================================================

// New creates a new Converter instance.
//
// PARAMETERS:
//   - inputPath: The path to the provider export (.csv or .xlsx).
//   - mainConfig: The main application configuration.
//   - layouts: The provider layouts, in detection order.
//   - causalMap: The shared causal map; nil resolves nothing.
//   - opts: Provider choice, company code and row policy.
//   - logger: The logger; nil uses the logrus standard logger.
//
// RETURNS:
//   - A new Converter instance.
func New(inputPath string, mainConfig *config.MainConfig, layouts []*provider.Layout, causalMap *causal.Map, opts Options, logger *logrus.Logger) *Converter {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	runID := uuid.New().String()

	files := utils.NewFileManager(
		mainConfig.InputDir,
		mainConfig.OutputDir,
		mainConfig.InputArchiveDir,
		mainConfig.OutputArchiveDir,
	)
	files.UseTimestampSubdirs = mainConfig.ArchiveTimestampSubdirs

	return &Converter{
		inputPath:  inputPath,
		mainConfig: mainConfig,
		layouts:    layouts,
		causalMap:  causalMap,
		opts:       opts,
		files:      files,
		runID:      runID,
		logger: logger.WithFields(logrus.Fields{
			"file":    filepath.Base(inputPath),
			"company": opts.CompanyCode,
			"run_id":  runID,
		}),
	}
}

// =============================================================================
// MAIN PROCESSING FUNCTION
// =============================================================================

// Run executes the conversion pipeline for the file.
//
// RETURNS:
//   - A Result struct containing the outcome of the conversion.
//
// A missing column or an unrecognized format fails the file. Rejected rows
// do not: they are reported in the result and the rejection log.
func (c *Converter) Run() Result {
	startTime := time.Now()
	result := Result{
		FilePath: c.inputPath,
		RunID:    c.runID,
	}
	defer func() { result.Stats.ProcessingTime = time.Since(startTime) }()

	if c.opts.CompanyCode == "" {
		result.Error = errors.New("company code is required")
		return result
	}

	c.logger.Info("Converting file")

	// =========================================================================
	// STEP 1: READ INPUT
	// =========================================================================

	data, err := os.ReadFile(c.inputPath)
	if err != nil {
		result.Error = fmt.Errorf("failed to read input file: %w", err)
		c.logger.WithError(result.Error).Error("Conversion failed")
		return result
	}

	// =========================================================================
	// STEP 2-4: DETECT AND CONVERT
	// =========================================================================

	converted, err := Convert(Request{
		Data:        data,
		FileName:    c.inputPath,
		Provider:    c.opts.Provider,
		CompanyCode: c.opts.CompanyCode,
		Options:     c.opts.Rows,
	}, c.layouts, c.causalMap)
	if err != nil {
		result.Error = err
		c.logger.WithError(err).Error("Conversion failed")
		return result
	}

	result.Provider = converted.Provider
	result.Rejections = converted.Report.Rejections
	result.UnmappedLabels = converted.Report.UnmappedLabels
	result.Stats.RowsAccepted = converted.Accepted()
	result.Stats.RowsRejected = converted.Rejected()
	result.Stats.RowsDropped = converted.Report.Dropped
	result.Stats.CausalMisses = converted.Report.CausalMisses
	result.Stats.RowsRead = result.Stats.RowsAccepted + result.Stats.RowsRejected + result.Stats.RowsDropped

	log := c.logger.WithField("provider", converted.Provider)
	for i := range converted.Report.Rejections {
		rej := converted.Report.Rejections[i]
		log.WithFields(logrus.Fields{
			"row":    rej.Row,
			"column": rej.Column,
			"value":  rej.Value,
		}).Warn("Row rejected: " + rej.Reason)
	}
	for _, label := range converted.Report.UnmappedLabels {
		log.WithField("label", label).Debug("No causal code for label")
	}

	log.WithFields(logrus.Fields{
		"accepted": result.Stats.RowsAccepted,
		"rejected": result.Stats.RowsRejected,
		"dropped":  result.Stats.RowsDropped,
	}).Debug("Rows converted")

	if c.opts.DryRun {
		result.Success = true
		log.Info("Dry run, nothing written")
		return result
	}

	// =========================================================================
	// STEP 5-6: WRITE OUTPUT AND REJECTION LOG
	// =========================================================================

	outputPath, err := c.writeOutput(converted.Rows, converted.Provider)
	if err != nil {
		result.Error = fmt.Errorf("failed to write output: %w", err)
		log.WithError(result.Error).Error("Conversion failed")
		return result
	}
	result.OutputFile = outputPath

	if len(converted.Report.Rejections) > 0 {
		logPath := utils.RejectionLogName(outputPath)
		if err := validation.WriteRejectionLog(converted.Report.Rejections, logPath); err != nil {
			log.WithError(err).Warn("Failed to write rejection log")
		} else {
			result.RejectionLog = logPath
		}
	}

	log.WithField("output", outputPath).Info("Wrote output")

	// =========================================================================
	// STEP 7: ARCHIVE FILES
	// =========================================================================

	if c.mainConfig.Archive {
		if err := c.archiveFiles(outputPath); err != nil {
			// An archival failure does not undo a written output.
			log.WithError(err).Warn("Failed to archive files")
		}
	}

	result.Success = true
	return result
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// writeOutput writes the converted rows to the output directory.
//
// FILE NAMING:
//   The output file is named according to OutputNameFormat in the main
//   configuration, with the extension of the output format.
func (c *Converter) writeOutput(rows []types.NormalizedRow, providerCode string) (string, error) {
	format := c.mainConfig.OutputFormat
	fileName := utils.GenerateOutputFileName(c.mainConfig.OutputNameFormat, utils.NameParams{
		Original:  c.inputPath,
		Provider:  providerCode,
		Company:   c.opts.CompanyCode,
		Extension: output.Extension(format),
	})
	outputPath := filepath.Join(c.mainConfig.OutputDir, fileName)

	if err := c.files.EnsureDirectories(false); err != nil {
		return "", err
	}

	opts := output.Options{IncludeSequence: c.mainConfig.SequenceEnabled()}
	if err := output.WriteFile(outputPath, format, rows, opts); err != nil {
		return "", err
	}

	return outputPath, nil
}

// archiveFiles moves the input to the input archive and copies the output
// to the output archive.
func (c *Converter) archiveFiles(outputPath string) error {
	if _, err := c.files.ArchiveOutputFile(outputPath); err != nil {
		return fmt.Errorf("failed to archive output file: %w", err)
	}
	if _, err := c.files.ArchiveInputFile(c.inputPath); err != nil {
		return fmt.Errorf("failed to archive input file: %w", err)
	}
	return nil
}
