// =============================================================================
// Welfare Converter - Main Entry Point
// =============================================================================
//
// Converts welfare benefit exports (Coverflex, DoubleYou) into the payroll
// import table.
//
// USAGE:
//   welfare-converter convert   - Convert provider exports
//   welfare-converter detect    - Report which provider a file comes from
//   welfare-converter validate  - Check configuration and the causal map
//   welfare-converter version   - Display the application version
//
// ARCHITECTURE:
//   - cmd/       : CLI command definitions (Cobra)
//   - internal/  : Conversion engine (parsers, normalizers, providers)
//   - pkg/       : File handling utilities
//   - configs/   : Optional provider layout overrides
//
// =============================================================================

package main

import (
	"github.com/welfare-tools/welfare-converter/cmd"
)

func main() {
	cmd.Execute()
}
