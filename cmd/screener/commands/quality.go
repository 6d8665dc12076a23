package commands

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// qualityCmd represents the quality command
var qualityCmd = &cobra.Command{
	Use:   "quality",
	Short: "Run the data-quality checks",
	Long: `Validates every active entity's snapshot (completeness, value ranges,
logical consistency and staleness) and prints the universe summary.

Example:
  go run ./cmd/screener quality
  go run ./cmd/screener quality --save
  go run ./cmd/screener quality --fixture testdata/universe.json --as-of 2024-06-30`,
	RunE: runQuality,
}

var (
	qualityAsOf    string
	qualityFixture string
	qualitySave    bool
)

func init() {
	rootCmd.AddCommand(qualityCmd)

	qualityCmd.Flags().StringVar(&qualityAsOf, "as-of", "", "check as of YYYY-MM-DD (default: now)")
	qualityCmd.Flags().StringVar(&qualityFixture, "fixture", "", "check an in-memory universe from a JSON fixture")
	qualityCmd.Flags().BoolVar(&qualitySave, "save", false, "store per-entity reports in Postgres")
}

func runQuality(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := openApp(ctx, qualityFixture)
	if err != nil {
		return err
	}
	defer a.Close()

	asOf := time.Now()
	if t, err := parseDate(qualityAsOf); err != nil {
		return err
	} else if t != nil {
		asOf = *t
	}

	summary, reports, err := a.gate.Check(ctx, asOf)
	if err != nil {
		return fmt.Errorf("quality check: %w", err)
	}

	if qualitySave {
		if a.reports == nil {
			return fmt.Errorf("--save needs Postgres, not a fixture")
		}
		if err := a.reports.SaveReports(ctx, reports); err != nil {
			return fmt.Errorf("save reports: %w", err)
		}
	}

	passRate := 0.0
	if summary.Total > 0 {
		passRate = float64(summary.Passed) / float64(summary.Total) * 100
	}
	PrintHeader("Data Quality", [][2]string{
		{"As of", asOf.Format("2006-01-02")},
		{"Entities", fmt.Sprintf("%d", summary.Total)},
		{"Passed", fmt.Sprintf("%d (%.1f%%)", summary.Passed, passRate)},
		{"Avg score", fmt.Sprintf("%.2f", summary.AverageScore)},
		{"Complete", fmt.Sprintf("%.1f%%", summary.AvgCompleteness*100)},
	})

	if len(summary.IssueCounts) > 0 {
		kinds := make([]string, 0, len(summary.IssueCounts))
		for k := range summary.IssueCounts {
			kinds = append(kinds, k)
		}
		sort.Strings(kinds)
		fmt.Println("Issues:")
		for _, k := range kinds {
			PrintKeyValue(k, fmt.Sprintf("%d", summary.IssueCounts[k]), 10)
		}
		fmt.Println()
	}

	if len(summary.Worst) > 0 {
		widths := []int{8, 7, 9, 50}
		PrintTableHeader([]string{"ID", "Score", "Complete", "Issues"}, widths)
		for _, r := range summary.Worst {
			msgs := make([]string, len(r.Issues))
			for i, is := range r.Issues {
				msgs[i] = is.Message
			}
			PrintTableRow([]string{
				r.EntityID,
				fmt.Sprintf("%.2f", r.Score),
				fmt.Sprintf("%.0f%%", r.Completeness*100),
				strings.Join(msgs, "; "),
			}, widths)
		}
	}

	if qualitySave {
		fmt.Println()
		PrintSuccess(fmt.Sprintf("Saved %d reports", len(reports)))
	}
	return nil
}
