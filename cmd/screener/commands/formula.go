package commands

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wonny/aegis-screener/internal/criteria"
	"github.com/wonny/aegis-screener/internal/formula"
)

// formulaCmd represents the formula command
var formulaCmd = &cobra.Command{
	Use:   "formula <expression>",
	Short: "Parse and check a screening formula",
	Long: `Parses a formula, checks every metric name and prints the normalized
expression with the metrics it references. Exits non-zero on a parse error.

Example:
  go run ./cmd/screener formula "roe > 10 AND (per < 15 OR pbr < 1)"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runFormula,
}

func init() {
	rootCmd.AddCommand(formulaCmd)
}

func runFormula(cmd *cobra.Command, args []string) error {
	src := strings.Join(args, " ")

	expr, err := formula.Parse(src, criteria.AllowMetric)
	if err != nil {
		PrintError(err.Error())
		var pe *formula.ParseError
		if errors.As(err, &pe) && pe.Position <= len(src) {
			fmt.Printf("   %s\n   %s^\n", src, strings.Repeat(" ", pe.Position))
		}
		return err
	}

	PrintSuccess("Formula is valid")
	PrintKeyValue("Normalized", expr.String(), 10)
	PrintKeyValue("Metrics", strings.Join(expr.Identifiers(), ", "), 10)
	return nil
}
