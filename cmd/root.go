// =============================================================================
// Welfare Converter - Root Command
// =============================================================================
//
// This file defines the root command for the Cobra CLI and the setup shared
// by the subcommands: configuration loading, logging and provider layouts.
//
// COBRA CLI STRUCTURE:
//   rootCmd (welfare-converter)
//   ├── convertCmd  (welfare-converter convert)
//   ├── detectCmd   (welfare-converter detect)
//   ├── validateCmd (welfare-converter validate)
//   └── versionCmd  (welfare-converter version)
//
// =============================================================================

package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/welfare-tools/welfare-converter/internal/causal"
	"github.com/welfare-tools/welfare-converter/internal/config"
	"github.com/welfare-tools/welfare-converter/internal/provider"
	"github.com/welfare-tools/welfare-converter/pkg/utils"
)

// =============================================================================
// GLOBAL VARIABLES
// =============================================================================

// cfgFile holds the path to the main configuration file.
var cfgFile string

// verbose forces debug logging.
var verbose bool

// =============================================================================
// ROOT COMMAND DEFINITION
// =============================================================================

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "welfare-converter",
	Short: "Convert welfare provider exports into the payroll import format",
	Long: `Welfare Converter turns benefit exports from Coverflex and DoubleYou into a
single normalized table for the payroll system.

Each row gets the employee code, the payroll reason code looked up from the
causal map (Trattamento -> Codice), the amount in cents and the ddmmyy period.
Rows whose amount or date cannot be read are rejected (strict mode) and
listed in a rejection log next to the output.

Example Usage:
  welfare-converter convert --company ACME export.csv
  welfare-converter convert --company ACME --provider doubleyou ordini.csv
  welfare-converter detect export.csv
  welfare-converter validate`,
	SilenceUsage: true,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// =============================================================================
// EXECUTE FUNCTION
// =============================================================================

// Execute adds all child commands to the root command and runs it.
// This is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// =============================================================================
// INITIALIZATION
// =============================================================================

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile,
		"config",
		"config.yaml",
		"Path to the main configuration file; built-in defaults apply when the default file is absent",
	)

	rootCmd.PersistentFlags().BoolVarP(
		&verbose,
		"verbose",
		"v",
		false,
		"Enable debug logging",
	)
}

// =============================================================================
// SHARED SETUP
// =============================================================================

// loadConfig loads the main configuration. A missing config.yaml at the
// default path yields the built-in defaults; an explicit --config must exist.
func loadConfig(cmd *cobra.Command) (*config.MainConfig, error) {
	if !cmd.Flags().Changed("config") && !utils.FileExists(cfgFile) {
		return config.DefaultMainConfig(), nil
	}

	mainConfig, err := config.LoadMainConfig(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load main config: %w", err)
	}
	return mainConfig, nil
}

// newLogger builds the run logger from the configuration. The returned
// close function releases the log file, if any.
func newLogger(mainConfig *config.MainConfig) (*logrus.Logger, func(), error) {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	level, err := logrus.ParseLevel(mainConfig.LogLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid log level %q: %w", mainConfig.LogLevel, err)
	}
	if verbose {
		level = logrus.DebugLevel
	}
	logger.SetLevel(level)

	closeFn := func() {}
	if mainConfig.LogFile != "" {
		f, err := os.OpenFile(mainConfig.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		logger.SetOutput(io.MultiWriter(os.Stderr, f))
		closeFn = func() { f.Close() }
	} else {
		logger.SetOutput(os.Stderr)
	}

	return logger, closeFn, nil
}

// loadLayouts returns the built-in provider layouts merged with the
// overrides in the configs directory.
func loadLayouts(mainConfig *config.MainConfig) ([]*provider.Layout, error) {
	providerConfigs, err := config.LoadProviderConfigs(mainConfig.ConfigsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load provider configs: %w", err)
	}
	return provider.Layouts(providerConfigs)
}

// loadCausalMap loads the causal map. When the configured file does not
// exist an empty map is returned and every reason code resolves as a miss.
func loadCausalMap(mainConfig *config.MainConfig, logger *logrus.Logger) (*causal.Map, error) {
	if !utils.FileExists(mainConfig.CausalMap) {
		logger.WithField("path", mainConfig.CausalMap).Warn("Causal map not found, reason codes will be unmapped")
		return causal.New(nil), nil
	}

	cm, err := causal.Load(mainConfig.CausalMap)
	if err != nil {
		return nil, err
	}

	for _, c := range cm.Conflicts() {
		logger.WithFields(logrus.Fields{
			"label":   c.Label,
			"kept":    c.Kept,
			"ignored": c.Ignored,
		}).Warn("Duplicate label in causal map, first code kept")
	}
	logger.WithField("entries", cm.Len()).Debug("Loaded causal map")

	return cm, nil
}

// providerChoices lists the values accepted by --provider.
func providerChoices(layouts []*provider.Layout) string {
	codes := []string{"auto"}
	for _, l := range layouts {
		codes = append(codes, l.Code)
	}
	return strings.Join(codes, "|")
}
