package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/welfare-tools/welfare-converter/internal/converter"
)

// detectCmd reports which provider layout fits each file, without converting.
var detectCmd = &cobra.Command{
	Use:   "detect <files...>",
	Short: "Detect the provider of export files",
	Long: `The detect command reads each file with every provider layout and reports
which layouts have all their required columns. The first fitting layout is
the one convert would use in auto mode.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDetect,
}

func init() {
	rootCmd.AddCommand(detectCmd)
}

func runDetect(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	mainConfig, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	layouts, err := loadLayouts(mainConfig)
	if err != nil {
		return err
	}

	unrecognized := 0
	for _, file := range args {
		data, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", file, err)
		}

		candidates := converter.Detect(data, file, layouts)
		best, ok := converter.Best(candidates)
		if ok {
			fmt.Fprintf(out, "%s: %s\n", filepath.Base(file), best.Layout.Name)
		} else {
			unrecognized++
			fmt.Fprintf(out, "%s: %v\n", filepath.Base(file), converter.ErrUnrecognizedFormat)
		}

		if verbose {
			for _, c := range candidates {
				status := "fits"
				if !c.Fits() {
					status = c.Err.Error()
				}
				fmt.Fprintf(out, "  %-10s name match: %-5t %s\n", c.Layout.Code, c.NameMatch, status)
			}
		}
	}

	if unrecognized > 0 {
		return fmt.Errorf("%d file(s) not recognized", unrecognized)
	}
	return nil
}
