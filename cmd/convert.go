// =============================================================================
// Welfare Converter - Convert Command
// =============================================================================
//
// This file defines the 'convert' command, which converts provider exports
// into the payroll import table.
//
// COMMAND USAGE:
//   welfare-converter convert --company CODE [flags] [files...]
//
// With no file arguments every .csv/.xlsx file in the input directory is
// converted.
//
// FLAGS:
//   --company       : Company code (required)
//   --provider      : auto, coverflex or doubleyou (default auto)
//   --mode          : strict or lenient (overrides config)
//   --output-format : csv or xlsx (overrides config)
//   --dry-run       : Convert and report without writing files
//
// =============================================================================

package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/welfare-tools/welfare-converter/internal/converter"
	"github.com/welfare-tools/welfare-converter/internal/provider"
	"github.com/welfare-tools/welfare-converter/internal/types"
	"github.com/welfare-tools/welfare-converter/internal/validation"
	"github.com/welfare-tools/welfare-converter/pkg/utils"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	companyCode  string
	providerName string
	modeFlag     string
	outputFormat string
	dryRun       bool
)

// =============================================================================
// CONVERT COMMAND DEFINITION
// =============================================================================

var convertCmd = &cobra.Command{
	Use:   "convert [files...]",
	Short: "Convert provider exports to the payroll import format",
	Long: `The convert command reads Coverflex or DoubleYou exports and writes one
normalized table per file to the output directory.

In auto mode the provider is detected from the columns present in the file.
A file missing a required column fails as a whole; other files are still
converted unless continue_on_error is false.

On success:
  - The table is written as {original}_{provider}_converted.csv (or .xlsx)
  - Rejected rows are listed in <output>_rejections.csv
  - A conversion summary is written to the output directory`,
	RunE: runConvert,
}

func init() {
	rootCmd.AddCommand(convertCmd)

	convertCmd.Flags().StringVar(&companyCode, "company", "", "Company code (required)")
	convertCmd.Flags().StringVar(&providerName, "provider", converter.ProviderAuto, "Provider: auto, coverflex or doubleyou")
	convertCmd.Flags().StringVar(&modeFlag, "mode", "", "Row policy: strict or lenient (default from config)")
	convertCmd.Flags().StringVar(&outputFormat, "output-format", "", "Output format: csv or xlsx (default from config)")
	convertCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Convert and report without writing files")

	convertCmd.MarkFlagRequired("company")
}

// =============================================================================
// MAIN PROCESSING FUNCTION
// =============================================================================

func runConvert(cmd *cobra.Command, args []string) error {
	startTime := time.Now()
	out := cmd.OutOrStdout()

	// =========================================================================
	// STEP 1: LOAD CONFIGURATION
	// =========================================================================

	mainConfig, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if modeFlag != "" {
		mainConfig.Mode = modeFlag
	}
	if outputFormat != "" {
		mainConfig.OutputFormat = outputFormat
	}
	mainConfig.OutputFormat = strings.ToLower(mainConfig.OutputFormat)

	mode, ok := types.ParseMode(mainConfig.Mode)
	if !ok {
		return fmt.Errorf("invalid mode %q: must be strict or lenient", mainConfig.Mode)
	}
	if mainConfig.OutputFormat != "csv" && mainConfig.OutputFormat != "xlsx" {
		return fmt.Errorf("invalid output format %q: must be csv or xlsx", mainConfig.OutputFormat)
	}

	logger, closeLog, err := newLogger(mainConfig)
	if err != nil {
		return err
	}
	defer closeLog()

	layouts, err := loadLayouts(mainConfig)
	if err != nil {
		return err
	}
	if !strings.EqualFold(providerName, converter.ProviderAuto) {
		if _, ok := provider.Find(layouts, providerName); !ok {
			return fmt.Errorf("unknown provider %q: must be one of %s", providerName, providerChoices(layouts))
		}
	}

	causalMap, err := loadCausalMap(mainConfig, logger)
	if err != nil {
		return err
	}

	// =========================================================================
	// STEP 2: DISCOVER INPUT FILES
	// =========================================================================

	files := utils.NewFileManager(mainConfig.InputDir, mainConfig.OutputDir, mainConfig.InputArchiveDir, mainConfig.OutputArchiveDir)
	files.UseTimestampSubdirs = mainConfig.ArchiveTimestampSubdirs

	inputFiles := args
	if len(inputFiles) == 0 {
		inputFiles, err = files.DiscoverInputFiles()
		if err != nil {
			return fmt.Errorf("failed to discover input files: %w", err)
		}
	}
	if len(inputFiles) == 0 {
		fmt.Fprintln(out, "No provider exports found in the input directory.")
		return nil
	}

	if !dryRun {
		if err := files.EnsureDirectories(mainConfig.Archive); err != nil {
			return err
		}
	}

	logger.WithField("files", len(inputFiles)).Info("Starting conversion")

	// =========================================================================
	// STEP 3: CONVERT FILES CONCURRENTLY
	// =========================================================================

	opts := converter.Options{
		Provider:    providerName,
		CompanyCode: companyCode,
		DryRun:      dryRun,
		Rows: provider.Options{
			Mode:            mode,
			CausalFallback:  mainConfig.CausalFallbackCode,
			SkipZeroAmounts: mainConfig.SkipZeroAmounts,
		},
	}

	results := make([]converter.Result, len(inputFiles))
	attempted := make([]bool, len(inputFiles))

	g, ctx := errgroup.WithContext(context.Background())
	g.SetLimit(mainConfig.MaxConcurrency)

	for i, file := range inputFiles {
		i, file := i, file
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			attempted[i] = true
			results[i] = converter.New(file, mainConfig, layouts, causalMap, opts, logger).Run()
			if !results[i].Success && !mainConfig.KeepGoing() {
				return fmt.Errorf("%s: %w", filepath.Base(file), results[i].Error)
			}
			return nil
		})
	}
	stopErr := g.Wait()

	// =========================================================================
	// STEP 4: COLLECT RESULTS AND WRITE SUMMARY
	// =========================================================================

	summary := utils.ProcessingSummary{
		RunID:       uuid.New().String(),
		CompanyCode: companyCode,
		StartTime:   startTime,
	}

	for i, result := range results {
		if !attempted[i] {
			continue
		}
		name := filepath.Base(result.FilePath)
		if !result.Success {
			summary.AddFailed(utils.FailedFileInfo{InputFile: result.FilePath, ErrorMessage: result.Error.Error()})
			fmt.Fprintf(out, "  ✗ %s: %v\n", name, result.Error)
			continue
		}

		summary.AddProcessed(utils.ProcessedFileInfo{
			InputFile:    result.FilePath,
			OutputFile:   result.OutputFile,
			Provider:     result.Provider,
			Accepted:     result.Stats.RowsAccepted,
			Rejected:     result.Stats.RowsRejected,
			Dropped:      result.Stats.RowsDropped,
			CausalMisses: result.Stats.CausalMisses,
			ProcessTime:  result.Stats.ProcessingTime,
		})

		target := result.OutputFile
		if dryRun {
			target = "(dry run)"
		}
		fmt.Fprintf(out, "  ✓ %s [%s] -> %s (%d rows, %d rejected)\n",
			name, result.Provider, target, result.Stats.RowsAccepted, result.Stats.RowsRejected)
		if verbose && len(result.Rejections) > 0 {
			fmt.Fprint(out, indent(validation.FormatRejections(result.Rejections), "    "))
		}
	}
	summary.EndTime = time.Now()

	fmt.Fprintln(out, "\n=== Conversion Complete ===")
	fmt.Fprintf(out, "Total files:     %d\n", summary.TotalFiles)
	fmt.Fprintf(out, "Successful:      %d\n", summary.SuccessfulFiles)
	fmt.Fprintf(out, "Failed:          %d\n", summary.FailedFiles)
	fmt.Fprintf(out, "Rows accepted:   %d\n", summary.RowsAccepted)
	fmt.Fprintf(out, "Rows rejected:   %d\n", summary.RowsRejected)
	fmt.Fprintf(out, "Time elapsed:    %s\n", summary.EndTime.Sub(startTime))

	if !dryRun {
		summaryPath, err := utils.WriteSummaryLog(summary, mainConfig.OutputDir)
		if err != nil {
			logger.WithError(err).Warn("Failed to write summary log")
		} else {
			logger.WithField("path", summaryPath).Debug("Wrote summary log")
		}
	}

	if stopErr != nil {
		return fmt.Errorf("conversion stopped: %w", stopErr)
	}
	if summary.FailedFiles > 0 {
		return fmt.Errorf("%d of %d file(s) failed", summary.FailedFiles, summary.TotalFiles)
	}
	return nil
}

// indent prefixes every non-empty line of s.
func indent(s, prefix string) string {
	lines := strings.SplitAfter(s, "\n")
	for i, line := range lines {
		if line != "" {
			lines[i] = prefix + line
		}
	}
	return strings.Join(lines, "")
}
