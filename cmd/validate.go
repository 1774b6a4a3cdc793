// =============================================================================
// Welfare Converter - Validate Command
// =============================================================================
//
// The 'validate' command loads the configuration, the provider layouts and
// the causal map, and reports problems without converting anything.
//
// COMMAND USAGE:
//   welfare-converter validate
//
// =============================================================================

package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/welfare-tools/welfare-converter/internal/causal"
	"github.com/welfare-tools/welfare-converter/pkg/utils"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration, provider layouts and the causal map",
	RunE:  runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	mainConfig, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Configuration OK (mode %s, output %s)\n", mainConfig.Mode, mainConfig.OutputFormat)

	layouts, err := loadLayouts(mainConfig)
	if err != nil {
		return err
	}
	for _, l := range layouts {
		fmt.Fprintf(out, "Provider %-10s amount %s, date %s, employee %s\n",
			l.Code,
			strings.Join(l.Columns.Amount, "/"),
			strings.Join(l.Columns.Date, "/"),
			strings.Join(l.Columns.Employee, "/"))
	}

	if !utils.FileExists(mainConfig.CausalMap) {
		return fmt.Errorf("causal map not found: %s", mainConfig.CausalMap)
	}
	cm, err := causal.Load(mainConfig.CausalMap)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Causal map %s: %d label(s)\n", mainConfig.CausalMap, cm.Len())

	conflicts := cm.Conflicts()
	for _, c := range conflicts {
		fmt.Fprintf(out, "  duplicate label %q: kept %s, ignored %s\n", c.Label, c.Kept, c.Ignored)
	}
	if len(conflicts) > 0 {
		fmt.Fprintf(out, "%d duplicate label(s) in causal map\n", len(conflicts))
	}

	return nil
}
