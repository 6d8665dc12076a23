package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/aegis-screener/internal/api"
)

// apiCmd represents the api command
var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Start the API server",
	Long: `Starts the REST API server.

Endpoints:
  GET  /health                    - Health check
  POST /api/screen                - Evaluate ad-hoc criteria
  GET  /api/presets               - List presets
  GET  /api/presets/{name}        - Run a preset
  GET  /api/entities/{id}         - Snapshot, scores and growth for one entity (?preset= lists failed checks)
  GET  /api/benchmarks            - Sector averages
  GET  /api/runs                  - Recorded preset runs
  GET  /api/runs/{preset}/latest  - Latest run of a preset
  GET  /api/data/quality          - Data-quality summary
  GET  /api/data/universe         - Active universe
  POST /api/data/collect          - Trigger ingestion
  GET  /ws/runs                   - Run and ingest events (websocket)

Example:
  go run ./cmd/screener api
  go run ./cmd/screener api --port 8080
  go run ./cmd/screener api --fixture testdata/universe.json`,
	RunE: runAPIServer,
}

const shutdownGrace = 30 * time.Second

var (
	apiPort    string
	apiFixture string
)

func init() {
	rootCmd.AddCommand(apiCmd)

	apiCmd.Flags().StringVar(&apiPort, "port", "", "API server port (overrides PORT)")
	apiCmd.Flags().StringVar(&apiFixture, "fixture", "", "serve an in-memory universe from a JSON fixture instead of Postgres")
}

func runAPIServer(cmd *cobra.Command, args []string) error {
	fmt.Println("=== Aegis Screener API Server ===")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx, apiFixture)
	if err != nil {
		return err
	}
	defer a.Close()

	if apiPort != "" {
		a.cfg.Port = apiPort
	}

	a.log.WithFields(map[string]interface{}{
		"port":    a.cfg.Port,
		"env":     a.cfg.Env,
		"fixture": apiFixture != "",
		"presets": len(a.presets.List()),
	}).Info("Initializing API server")

	router := api.NewRouter(a.handlers(), a.log)
	server := api.New(a.cfg, a.log, router)

	fmt.Printf("\n✅ Server running on http://localhost:%s\n", a.cfg.Port)
	fmt.Println("\nPress Ctrl+C to stop")

	if err := server.Run(ctx, shutdownGrace); err != nil {
		return fmt.Errorf("server: %w", err)
	}

	a.log.Info("Server stopped")
	return nil
}
