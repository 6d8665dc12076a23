package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wonny/aegis-screener/internal/criteria"
	"github.com/wonny/aegis-screener/internal/screening"
)

// screenCmd represents the screen command
var screenCmd = &cobra.Command{
	Use:   "screen",
	Short: "Run a screening query",
	Long: `Evaluates criteria against the active universe and prints the ranked page.

Criteria come from a preset, a JSON object (inline or @file), a formula, or
any combination: the formula and JSON criteria are merged over the preset.

Example:
  go run ./cmd/screener screen --preset value
  go run ./cmd/screener screen --criteria '{"ranges":{"per":{"max":15}}}' --sort -roe
  go run ./cmd/screener screen --formula "roe > 10 AND per < 15" --as-of 2024-06-30
  go run ./cmd/screener screen --preset growth --fixture testdata/universe.json --json`,
	RunE: runScreen,
}

var (
	screenPreset   string
	screenCriteria string
	screenFormula  string
	screenSort     string
	screenPage     int
	screenPageSize int
	screenAsOf     string
	screenCodes    string
	screenFixture  string
	screenJSON     bool
)

func init() {
	rootCmd.AddCommand(screenCmd)

	screenCmd.Flags().StringVar(&screenPreset, "preset", "", "preset name")
	screenCmd.Flags().StringVar(&screenCriteria, "criteria", "", "criteria JSON, or @path to a JSON file")
	screenCmd.Flags().StringVar(&screenFormula, "formula", "", "boolean formula over metrics")
	screenCmd.Flags().StringVar(&screenSort, "sort", "", "sort key, '-' prefix for descending (default: preset sort or -total_score)")
	screenCmd.Flags().IntVar(&screenPage, "page", 1, "page number")
	screenCmd.Flags().IntVar(&screenPageSize, "page-size", 0, "page size (default from config)")
	screenCmd.Flags().StringVar(&screenAsOf, "as-of", "", "evaluate as of YYYY-MM-DD (default: latest)")
	screenCmd.Flags().StringVar(&screenCodes, "codes", "", "restrict to comma-separated entity ids")
	screenCmd.Flags().StringVar(&screenFixture, "fixture", "", "screen an in-memory universe from a JSON fixture")
	screenCmd.Flags().BoolVar(&screenJSON, "json", false, "print the full result as JSON")
}

func runScreen(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := openApp(ctx, screenFixture)
	if err != nil {
		return err
	}
	defer a.Close()

	q, err := buildQuery(a.presets)
	if err != nil {
		return err
	}

	res, err := a.engine.Run(ctx, q)
	if err != nil {
		return fmt.Errorf("screen: %w", err)
	}

	if screenJSON {
		return PrintJSON(res)
	}

	title := "Screening"
	if res.Preset != "" {
		title = "Preset: " + res.Preset
	}
	PrintHeader(title, [][2]string{
		{"Sort", res.Sort},
		{"Data", res.DataVersion},
		{"Criteria", res.CriteriaHash},
		{"Candidates", fmt.Sprintf("%d", res.Stats.Candidates)},
		{"Passed", fmt.Sprintf("%d", res.Stats.Passed)},
		{"Page", fmt.Sprintf("%d / %d", res.Page.Page, res.TotalPages)},
	})

	if len(res.Items) == 0 {
		PrintWarning("No entities matched")
		return nil
	}
	PrintResults(res.Items)

	if len(res.Stats.Rejected) > 0 {
		fmt.Println()
		fmt.Println("Rejected by:")
		for reason, n := range res.Stats.Rejected {
			PrintKeyValue(reason, fmt.Sprintf("%d", n), 20)
		}
	}
	return nil
}

// buildQuery merges the preset, JSON criteria and formula flags into one query
func buildQuery(presets *criteria.Registry) (screening.Query, error) {
	q := screening.Query{
		Sort:     screenSort,
		Page:     screenPage,
		PageSize: screenPageSize,
	}

	if screenPreset != "" {
		p, err := presets.Get(screenPreset)
		if err != nil {
			return q, err
		}
		q.Criteria = p.Criteria.Clone()
		q.Preset = p.Name
		if q.Sort == "" {
			q.Sort = p.Sort
		}
	}

	if screenCriteria != "" {
		raw := []byte(screenCriteria)
		if strings.HasPrefix(screenCriteria, "@") {
			data, err := os.ReadFile(strings.TrimPrefix(screenCriteria, "@"))
			if err != nil {
				return q, fmt.Errorf("read criteria: %w", err)
			}
			raw = data
		}
		// fields the JSON does not set keep their preset values
		if err := json.Unmarshal(raw, &q.Criteria); err != nil {
			return q, fmt.Errorf("parse criteria: %w", err)
		}
	}

	if screenFormula != "" {
		q.Criteria.Formula = screenFormula
	}

	asOf, err := parseDate(screenAsOf)
	if err != nil {
		return q, err
	}
	q.AsOf = asOf
	q.IDs = splitCodes(screenCodes)
	return q, nil
}
