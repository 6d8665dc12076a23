package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/aegis-screener/internal/api"
	"github.com/wonny/aegis-screener/internal/scheduler"
	"github.com/wonny/aegis-screener/internal/scheduler/jobs"
)

// schedulerCmd represents the scheduler command
var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "Scheduler management",
	Long: `Starts the scheduler or runs its jobs by hand.

Subcommands:
  start   - Start the scheduler daemon
  list    - List registered jobs and their next run
  run     - Run one job now and wait for it

Example:
  go run ./cmd/screener scheduler start
  go run ./cmd/screener scheduler start --with-api
  go run ./cmd/screener scheduler list
  go run ./cmd/screener scheduler run preset_screening`,
}

var (
	schedulerStartCmd = &cobra.Command{
		Use:   "start",
		Short: "Start the scheduler",
		Long: `Starts the scheduler and registers every job.

Registered jobs (6-field cron, seconds first):
- ingest:           SCHEDULE_INGEST       (listing sync and snapshot refresh)
- preset_screening: SCHEDULE_SCREENING    (re-run and record every preset)
- quality_check:    SCHEDULE_QUALITY      (data-quality sweep)
- retention:        SCHEDULE_MAINTENANCE  (prune old runs and reports, purge cache)

Stop with Ctrl+C.`,
		RunE: runScheduler,
	}

	schedulerListCmd = &cobra.Command{
		Use:   "list",
		Short: "List registered jobs",
		RunE:  listJobs,
	}

	schedulerRunCmd = &cobra.Command{
		Use:   "run [job_name]",
		Short: "Run one job now",
		Args:  cobra.ExactArgs(1),
		RunE:  runJob,
	}

	schedulerWithAPI bool
)

func init() {
	rootCmd.AddCommand(schedulerCmd)
	schedulerCmd.AddCommand(schedulerStartCmd)
	schedulerCmd.AddCommand(schedulerListCmd)
	schedulerCmd.AddCommand(schedulerRunCmd)

	schedulerStartCmd.Flags().BoolVar(&schedulerWithAPI, "with-api", false, "also serve the API so websocket clients see job events")
}

func runScheduler(cmd *cobra.Command, args []string) error {
	fmt.Println("=== Aegis Screener Scheduler ===")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	sched, err := initScheduler(a)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	sched.Start()

	fmt.Println("\n✅ Scheduler started successfully")
	printJobs(sched)

	errCh := make(chan error, 1)
	if schedulerWithAPI {
		router := api.NewRouter(a.handlers(), a.log)
		server := api.New(a.cfg, a.log, router)
		go func() {
			errCh <- server.Run(ctx, shutdownGrace)
		}()
		fmt.Printf("API on http://localhost:%s\n", a.cfg.Port)
	}

	fmt.Println("\nPress Ctrl+C to stop")

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
		stop()
	}

	fmt.Println("\nShutting down scheduler...")
	sched.Stop()
	if schedulerWithAPI && runErr == nil {
		runErr = <-errCh
	}
	fmt.Println("Scheduler stopped")
	return runErr
}

func listJobs(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	sched, err := initScheduler(a)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}

	// Entry.Next is only computed once cron is running
	sched.Start()
	defer sched.Stop()
	printJobs(sched)
	return nil
}

func runJob(cmd *cobra.Command, args []string) error {
	jobName := args[0]

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	sched, err := initScheduler(a)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}

	fmt.Printf("Running job: %s\n", jobName)
	result, err := sched.RunNow(ctx, jobName)
	if err != nil {
		PrintError(err.Error())
		return err
	}

	PrintSuccess(fmt.Sprintf("Job %s completed in %s (%d attempt(s))",
		jobName, result.Duration.Round(time.Millisecond), result.Attempts))
	return nil
}

func printJobs(sched *scheduler.Scheduler) {
	fmt.Println("\nRegistered jobs:")
	stats := sched.GetJobStats()
	for _, name := range sched.GetAllJobs() {
		next := "-"
		if t, err := sched.NextRun(name); err == nil && !t.IsZero() {
			next = t.Format("2006-01-02 15:04:05")
		}
		fmt.Printf("  - %-18s %-18s next: %s\n", name, stats[name].Schedule, next)
	}
}

// initScheduler registers every job against the wired app
func initScheduler(a *app) (*scheduler.Scheduler, error) {
	sc := a.cfg.Scheduler
	sched := scheduler.New(a.log, scheduler.WithRetries(sc.MaxRetries, sc.RetryDelay))

	pruners := map[string]jobs.Pruner{
		"screening_runs":  a.runs,
		"quality_reports": a.reports,
	}

	for _, job := range []scheduler.Job{
		jobs.NewIngestJob(a.collector, a.hub, sc.IngestSpec, a.log),
		jobs.NewPresetScreeningJob(a.engine, a.presets, a.runs, a.hub, sc.ScreeningSpec, a.log),
		jobs.NewQualityJob(a.gate, a.reports, a.hub, sc.QualitySpec, a.log),
		jobs.NewRetentionJob(pruners, a.cache, a.versions, sc.RetentionDays, sc.MaintenanceSpec, a.log),
	} {
		if err := sched.AddJob(job); err != nil {
			return nil, err
		}
	}
	return sched, nil
}
