// =============================================================================
// Welfare Converter - Configuration Module
// =============================================================================
//
// This module is responsible for loading and managing all configuration files.
// It handles both the main application configuration and the provider layouts.
//
// CONFIGURATION FILES:
//   1. Main Config (config.yaml): Global application settings and row policy
//   2. Provider Configs (configs/*.yaml): Per-provider CSV dialect and columns
//
// The two supported providers (Coverflex and DoubleYou) have built-in layouts,
// so a provider file is only needed to override or extend them.
//
// =============================================================================

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// MAIN CONFIGURATION STRUCTURE
// =============================================================================

// MainConfig holds the global application configuration.
// This is loaded from the main config.yaml file.
type MainConfig struct {
	// =========================================================================
	// DIRECTORY SETTINGS
	// =========================================================================

	// InputDir is scanned for provider exports when no file is given.
	// Default: "./input"
	InputDir string `yaml:"input_dir"`

	// OutputDir receives converted tables and rejection logs.
	// Default: "./output"
	OutputDir string `yaml:"output_dir"`

	// InputArchiveDir receives inputs after a successful conversion
	// (only when Archive is true).
	// Default: "./input_archive"
	InputArchiveDir string `yaml:"input_archive_dir"`

	// OutputArchiveDir receives a copy of every output (only when Archive is true).
	// Default: "./output_archive"
	OutputArchiveDir string `yaml:"output_archive_dir"`

	// ConfigsDir holds provider layout overrides.
	// Default: "./configs"
	ConfigsDir string `yaml:"configs_dir"`

	// CausalMap is the Trattamento -> Codice reference table (.csv or .xlsx).
	// Default: "./mappa_causali.csv"
	CausalMap string `yaml:"causal_map"`

	// =========================================================================
	// LOGGING SETTINGS
	// =========================================================================

	// LogFile is appended to in addition to stderr. Empty disables it.
	LogFile string `yaml:"log_file"`

	// LogLevel controls the verbosity of logging.
	// Valid values: "debug", "info", "warn", "error"
	// Default: "info"
	LogLevel string `yaml:"log_level"`

	// =========================================================================
	// OUTPUT SETTINGS
	// =========================================================================

	// OutputNameFormat defines the output file name (extension added).
	// Placeholders:
	//   {original}  - Input file name without extension
	//   {provider}  - Provider code used for the conversion
	//   {company}   - Company code
	//   {timestamp} - Current timestamp (YYYYMMDD_HHMMSS)
	//   {uuid}      - A random UUID
	// Default: "{original}_{provider}_converted"
	OutputNameFormat string `yaml:"output_name_format"`

	// OutputFormat is "csv" or "xlsx".
	// Default: "csv"
	OutputFormat string `yaml:"output_format"`

	// IncludeSequence emits the leading Progressivo column.
	// Default: true
	IncludeSequence *bool `yaml:"include_sequence"`

	// =========================================================================
	// ROW POLICY
	// =========================================================================

	// Mode is the row-level error policy: "strict" rejects rows with an
	// unparseable amount or date, "lenient" keeps them with amount 0 and an
	// empty period. One mode applies to the whole run.
	// Default: "strict"
	Mode string `yaml:"mode"`

	// CausalFallbackCode replaces an unmapped causal code (e.g. "WF01").
	// Empty keeps unmapped codes empty.
	CausalFallbackCode string `yaml:"causal_fallback_code"`

	// SkipZeroAmounts drops accepted rows whose amount is 0 before numbering.
	SkipZeroAmounts bool `yaml:"skip_zero_amounts"`

	// =========================================================================
	// PROCESSING SETTINGS
	// =========================================================================

	// MaxConcurrency is the maximum number of files converted in parallel.
	// Default: 4
	MaxConcurrency int `yaml:"max_concurrency"`

	// ContinueOnError keeps converting other files when one fails.
	// Default: true
	ContinueOnError *bool `yaml:"continue_on_error"`

	// Archive moves inputs and copies outputs to the archive directories
	// after a successful conversion.
	Archive bool `yaml:"archive"`

	// ArchiveTimestampSubdirs files archived copies under yyyy/mm/dd
	// subdirectories of the archive directories.
	ArchiveTimestampSubdirs bool `yaml:"archive_timestamp_subdirs"`
}

// SequenceEnabled reports whether the Progressivo column is emitted.
func (c *MainConfig) SequenceEnabled() bool {
	return c.IncludeSequence == nil || *c.IncludeSequence
}

// KeepGoing reports whether a failed file should not stop the run.
func (c *MainConfig) KeepGoing() bool {
	return c.ContinueOnError == nil || *c.ContinueOnError
}

// =============================================================================
// PROVIDER CONFIGURATION STRUCTURE
// =============================================================================

// ProviderConfig describes one provider export layout.
type ProviderConfig struct {
	// Name is the human-readable provider name used in logs.
	Name string `yaml:"name"`

	// Code is the short identifier used on the command line and in output
	// file names (e.g. "coverflex").
	Code string `yaml:"code"`

	// FileMatchingPatterns are case-insensitive glob patterns on the file
	// name. They only break ties when several layouts fit a file structurally.
	FileMatchingPatterns []string `yaml:"file_matching_patterns"`

	// CSVSettings is the CSV dialect of the provider export.
	CSVSettings CSVSettings `yaml:"csv_settings"`

	// Columns lists accepted header names for each semantic field.
	Columns ColumnAliases `yaml:"columns"`

	// DotConvention says how amounts with only '.' separators are read:
	// "decimal" (1234.56) or "thousands" (1.234).
	// Default: "decimal"
	DotConvention string `yaml:"dot_convention"`
}

// CSVSettings contains settings for parsing CSV files.
type CSVSettings struct {
	// Delimiter is the field separator: ",", ";", "tab", "|" or "auto".
	// Default: "auto"
	Delimiter string `yaml:"delimiter"`

	// SkipRows is the number of banner lines preceding the header row.
	SkipRows int `yaml:"skip_rows"`

	// Encoding is the character encoding of the file.
	// Common values: "UTF-8", "Windows-1252", "ISO-8859-1"
	// Default: "UTF-8"
	Encoding string `yaml:"encoding"`
}

// ColumnAliases lists the header names accepted for each field, in order of
// preference. Matching is exact first, then case-insensitive.
type ColumnAliases struct {
	Employee []string `yaml:"employee"`
	Reason   []string `yaml:"reason"`
	Amount   []string `yaml:"amount"`
	Date     []string `yaml:"date"`

	// Period is optional: a month label column ("aprile - 2025") that takes
	// precedence over Date when present and readable.
	Period []string `yaml:"period"`
}

// =============================================================================
// BUILT-IN PROVIDERS
// =============================================================================

// DefaultProviders returns the built-in layouts in detection order.
func DefaultProviders() []ProviderConfig {
	return []ProviderConfig{
		{
			Name:                 "Coverflex",
			Code:                 "coverflex",
			FileMatchingPatterns: []string{"*coverflex*"},
			CSVSettings: CSVSettings{
				Delimiter: "auto",
				SkipRows:  3,
				Encoding:  "UTF-8",
			},
			Columns: ColumnAliases{
				Employee: []string{"Codice fiscale dipendente", "Codice fiscale", "CF dipendente"},
				Reason:   []string{"Tratt. Fiscale", "Trattamento fiscale"},
				Amount:   []string{"Importo"},
				Date:     []string{"Data"},
			},
			DotConvention: "decimal",
		},
		{
			Name:                 "DoubleYou",
			Code:                 "doubleyou",
			FileMatchingPatterns: []string{"*doubleyou*", "*double_you*"},
			CSVSettings: CSVSettings{
				Delimiter: ";",
				SkipRows:  0,
				Encoding:  "UTF-8",
			},
			Columns: ColumnAliases{
				Employee: []string{"CodFisc", "Codice Fiscale"},
				Reason:   []string{"Tratt. Fiscale", "Trattamento fiscale"},
				Amount:   []string{"Totale"},
				Date:     []string{"Data Ordine"},
				Period:   []string{"Periodo"},
			},
			DotConvention: "decimal",
		},
	}
}

// =============================================================================
// CONFIGURATION LOADING FUNCTIONS
// =============================================================================

// DefaultMainConfig returns a MainConfig with every default applied.
func DefaultMainConfig() *MainConfig {
	config := &MainConfig{}
	applyMainConfigDefaults(config)
	return config
}

// LoadMainConfig loads the main configuration from a YAML file.
//
// PARAMETERS:
//   - configPath: The path to the main configuration file.
//
// RETURNS:
//   - A pointer to the MainConfig struct.
//   - An error if the file cannot be read or parsed.
func LoadMainConfig(configPath string) (*MainConfig, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config MainConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyMainConfigDefaults(&config)

	if err := ValidateMainConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// applyMainConfigDefaults sets default values for any unset configuration options.
func applyMainConfigDefaults(config *MainConfig) {
	if config.InputDir == "" {
		config.InputDir = "./input"
	}
	if config.OutputDir == "" {
		config.OutputDir = "./output"
	}
	if config.InputArchiveDir == "" {
		config.InputArchiveDir = "./input_archive"
	}
	if config.OutputArchiveDir == "" {
		config.OutputArchiveDir = "./output_archive"
	}
	if config.ConfigsDir == "" {
		config.ConfigsDir = "./configs"
	}
	if config.CausalMap == "" {
		config.CausalMap = "./mappa_causali.csv"
	}
	if config.LogLevel == "" {
		config.LogLevel = "info"
	}
	if config.OutputNameFormat == "" {
		config.OutputNameFormat = "{original}_{provider}_converted"
	}
	if config.OutputFormat == "" {
		config.OutputFormat = "csv"
	}
	if config.Mode == "" {
		config.Mode = "strict"
	}
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 4
	}
}

// ValidateMainConfig checks enumerated settings. Directories are created
// lazily by the commands that write to them.
func ValidateMainConfig(config *MainConfig) error {
	switch strings.ToLower(config.Mode) {
	case "strict", "lenient":
	default:
		return fmt.Errorf("mode must be strict or lenient, got %q", config.Mode)
	}

	switch strings.ToLower(config.OutputFormat) {
	case "csv", "xlsx":
	default:
		return fmt.Errorf("output_format must be csv or xlsx, got %q", config.OutputFormat)
	}

	switch strings.ToLower(config.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn or error, got %q", config.LogLevel)
	}

	return nil
}

// LoadProviderConfigs returns the built-in layouts with any overrides from
// configsDir applied. A file whose code matches a built-in layout replaces
// it; other codes are appended in file name order.
//
// PARAMETERS:
//   - configsDir: The directory containing provider YAML files. A missing
//     directory is not an error.
//
// RETURNS:
//   - The provider layouts in detection order.
//   - An error if any file cannot be parsed.
func LoadProviderConfigs(configsDir string) ([]ProviderConfig, error) {
	providers := DefaultProviders()

	if _, err := os.Stat(configsDir); os.IsNotExist(err) {
		return providers, nil
	}

	files, err := filepath.Glob(filepath.Join(configsDir, "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("failed to list config files: %w", err)
	}

	ymlFiles, err := filepath.Glob(filepath.Join(configsDir, "*.yml"))
	if err != nil {
		return nil, fmt.Errorf("failed to list config files: %w", err)
	}
	files = append(files, ymlFiles...)

	for _, file := range files {
		pc, err := loadProviderConfig(file)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", file, err)
		}

		replaced := false
		for i := range providers {
			if strings.EqualFold(providers[i].Code, pc.Code) {
				providers[i] = *pc
				replaced = true
				break
			}
		}
		if !replaced {
			providers = append(providers, *pc)
		}
	}

	return providers, nil
}

// loadProviderConfig loads a single provider configuration file.
func loadProviderConfig(filePath string) (*ProviderConfig, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var config ProviderConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse file: %w", err)
	}

	if config.Code == "" {
		config.Code = strings.TrimSuffix(filepath.Base(filePath), filepath.Ext(filePath))
	}

	applyProviderConfigDefaults(&config)

	if err := validateProviderConfig(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// applyProviderConfigDefaults sets default values for provider configuration.
func applyProviderConfigDefaults(config *ProviderConfig) {
	if config.Name == "" {
		config.Name = config.Code
	}
	if config.CSVSettings.Delimiter == "" {
		config.CSVSettings.Delimiter = "auto"
	}
	if config.CSVSettings.Encoding == "" {
		config.CSVSettings.Encoding = "UTF-8"
	}
	if config.DotConvention == "" {
		config.DotConvention = "decimal"
	}
}

// validateProviderConfig checks that every required field has at least one alias.
func validateProviderConfig(config *ProviderConfig) error {
	missing := []string{}
	if len(config.Columns.Employee) == 0 {
		missing = append(missing, "employee")
	}
	if len(config.Columns.Reason) == 0 {
		missing = append(missing, "reason")
	}
	if len(config.Columns.Amount) == 0 {
		missing = append(missing, "amount")
	}
	if len(config.Columns.Date) == 0 {
		missing = append(missing, "date")
	}
	if len(missing) > 0 {
		return fmt.Errorf("provider %q: no column names for %s", config.Code, strings.Join(missing, ", "))
	}
	if config.CSVSettings.SkipRows < 0 {
		return fmt.Errorf("provider %q: skip_rows must not be negative", config.Code)
	}
	return nil
}
