package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/aegis-screener/internal/s0_data/collector"
)

// ingestCmd represents the ingest command
var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest provider data into Postgres",
	Long: `Syncs the provider listing and refreshes market, fundamental, statement
and technical snapshots.

Without --codes the listing is synced first (new entities are added, delisted
ones deactivated) and every active entity is refreshed.

Example:
  go run ./cmd/screener ingest
  go run ./cmd/screener ingest --codes 7974,8306
  go run ./cmd/screener ingest --aliases labels.yaml`,
	RunE: runIngest,
}

var (
	ingestCodes   string
	ingestAliases string
)

func init() {
	rootCmd.AddCommand(ingestCmd)

	ingestCmd.Flags().StringVar(&ingestCodes, "codes", "", "comma-separated entity ids (default: full universe)")
	ingestCmd.Flags().StringVar(&ingestAliases, "aliases", "", "YAML file of extra provider label aliases")
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if ingestAliases != "" {
		aliases, err := collector.LoadAliases(ingestAliases)
		if err != nil {
			return fmt.Errorf("load aliases: %w", err)
		}
		a.collector.WithAliases(aliases)
	}

	codes := splitCodes(ingestCodes)
	target := "full universe"
	if len(codes) > 0 {
		target = fmt.Sprintf("%d entities", len(codes))
	}
	PrintHeader("Ingestion", [][2]string{
		{"Target", target},
		{"Provider", a.cfg.Provider.BaseURL},
		{"Started", time.Now().Format("2006-01-02 15:04:05")},
	})

	summary, err := a.collector.Run(ctx, codes)
	if err != nil {
		return fmt.Errorf("ingest: %w", err)
	}

	PrintKeyValue("Discovered", fmt.Sprintf("%d", summary.Discovered), 12)
	PrintKeyValue("Deactivated", fmt.Sprintf("%d", summary.Deactivated), 12)
	PrintKeyValue("Succeeded", fmt.Sprintf("%d", summary.Succeeded), 12)
	PrintKeyValue("Failed", fmt.Sprintf("%d", summary.Failed), 12)
	PrintKeyValue("Duration", summary.Duration.Round(time.Millisecond).String(), 12)

	if len(summary.DriftLabels) > 0 {
		fmt.Println()
		PrintWarning(fmt.Sprintf("%d unknown provider labels were skipped:", len(summary.DriftLabels)))
		for _, l := range summary.DriftLabels {
			fmt.Printf("   • %s\n", l)
		}
	}

	fmt.Println()
	if summary.Failed > 0 {
		PrintWarning(fmt.Sprintf("Ingestion finished with %d failures", summary.Failed))
		return nil
	}
	PrintSuccess("Ingestion completed")
	return nil
}
