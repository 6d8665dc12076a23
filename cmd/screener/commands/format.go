package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/wonny/aegis-screener/internal/contracts"
	"github.com/wonny/aegis-screener/internal/numeric"
)

// ═══════════════════════════════════════════════════════════
// Common Formatting Utilities
// ═══════════════════════════════════════════════════════════

// PrintHeader prints a titled block with key/value lines
func PrintHeader(title string, kv [][2]string) {
	fmt.Println()
	PrintDoubleSeparator()
	fmt.Printf("  %s\n", title)
	PrintSeparator()
	for _, p := range kv {
		fmt.Printf("  %-12s: %s\n", p[0], p[1])
	}
	PrintSeparator()
}

// PrintSeparator prints a visual separator
func PrintSeparator() {
	fmt.Println("───────────────────────────────────────────────────────────")
}

// PrintDoubleSeparator prints a double-line separator
func PrintDoubleSeparator() {
	fmt.Println("═══════════════════════════════════════════════════════════")
}

// PrintWarning prints a warning message
func PrintWarning(message string) {
	fmt.Printf("⚠️  %s\n", message)
}

// PrintSuccess prints a success message
func PrintSuccess(message string) {
	fmt.Printf("✅ %s\n", message)
}

// PrintError prints an error message
func PrintError(message string) {
	fmt.Printf("❌ %s\n", message)
}

// PrintTableHeader prints a table header
func PrintTableHeader(columns []string, widths []int) {
	PrintTableRow(columns, widths)

	totalWidth := 0
	for i, width := range widths {
		totalWidth += width
		if i < len(widths)-1 {
			totalWidth += 2 // spacing
		}
	}
	fmt.Println(strings.Repeat("─", totalWidth))
}

// PrintTableRow prints a table row
func PrintTableRow(values []string, widths []int) {
	for i, val := range values {
		if len([]rune(val)) > widths[i] {
			val = string([]rune(val)[:widths[i]-1]) + "…"
		}
		fmt.Printf("%-*s", widths[i], val)
		if i < len(values)-1 {
			fmt.Print("  ")
		}
	}
	fmt.Println()
}

// PrintKeyValue prints key-value pairs
func PrintKeyValue(key string, value string, keyWidth int) {
	fmt.Printf("   %-*s : %s\n", keyWidth, key, value)
}

// PrintJSON writes v as indented JSON to stdout
func PrintJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var resultColumns = []string{"#", "ID", "Name", "Sector", "Score", "Rank", "PER", "PBR", "ROE"}
var resultWidths = []int{4, 8, 24, 16, 7, 4, 8, 8, 8}

// PrintResults prints ranked results as a table
func PrintResults(results []contracts.ScoredResult) {
	PrintTableHeader(resultColumns, resultWidths)
	for _, r := range results {
		var per, pbr, roe numeric.Value
		if r.Market != nil {
			per, pbr = r.Market.PER, r.Market.PBR
		}
		if r.Fundamental != nil {
			roe = r.Fundamental.ROE
		}
		PrintTableRow([]string{
			fmt.Sprintf("%d", r.Position),
			r.Entity.ID,
			r.Entity.Name,
			r.Entity.Sector,
			fmt.Sprintf("%.2f", r.TotalScore),
			string(r.Rank),
			per.Round(2).String(),
			pbr.Round(2).String(),
			roe.Round(2).String(),
		}, resultWidths)
	}
}

// parseDate parses YYYY-MM-DD as the end of that day
func parseDate(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q (expected YYYY-MM-DD)", raw)
	}
	t = t.Add(24*time.Hour - time.Nanosecond)
	return &t, nil
}

// splitCodes splits a comma-separated list, dropping blanks
func splitCodes(raw string) []string {
	var out []string
	for _, c := range strings.Split(raw, ",") {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	return out
}
