package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wonny/aegis-screener/internal/criteria"
)

// presetsCmd represents the presets command
var presetsCmd = &cobra.Command{
	Use:   "presets [name]",
	Short: "List presets or show one",
	Long: `Lists builtin presets and those loaded from SCREENING_PRESET_DIR.
With a name, prints that preset's criteria as JSON.

Example:
  go run ./cmd/screener presets
  go run ./cmd/screener presets dividend_growth`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPresets,
}

func init() {
	rootCmd.AddCommand(presetsCmd)
}

func runPresets(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	presets, err := criteria.LoadRegistry(cfg.Screening.PresetDir)
	if err != nil {
		return fmt.Errorf("load presets: %w", err)
	}

	if len(args) == 1 {
		p, err := presets.Get(args[0])
		if err != nil {
			return err
		}
		return PrintJSON(p)
	}

	widths := []int{18, 10, 14, 44}
	PrintTableHeader([]string{"Name", "Source", "Sort", "Description"}, widths)
	for _, p := range presets.List() {
		PrintTableRow([]string{p.Name, p.Source, p.Sort, p.Description}, widths)
	}
	return nil
}
