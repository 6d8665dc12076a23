package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/aegis-screener/internal/realtime"
	"github.com/wonny/aegis-screener/internal/s0_data/quality"
	"github.com/wonny/aegis-screener/pkg/logger"
)

// QualityChecker validates the active universe. *quality.QualityGate implements it.
type QualityChecker interface {
	Check(ctx context.Context, asOf time.Time) (*quality.Summary, []quality.Report, error)
}

// ReportSaver persists quality reports. *quality.Repository implements it.
type ReportSaver interface {
	SaveReports(ctx context.Context, reports []quality.Report) error
}

// QualityJob runs the data-quality sweep and stores per-entity reports
type QualityJob struct {
	gate     QualityChecker
	reports  ReportSaver
	hub      Broadcaster
	schedule string
	now      func() time.Time
	logger   *logger.Logger
}

// NewQualityJob creates a new quality sweep job. reports and hub may be nil.
func NewQualityJob(gate QualityChecker, reports ReportSaver, hub Broadcaster, schedule string, log *logger.Logger) *QualityJob {
	return &QualityJob{
		gate:     gate,
		reports:  reports,
		hub:      hub,
		schedule: schedule,
		now:      time.Now,
		logger:   log,
	}
}

// Name returns the job name
func (j *QualityJob) Name() string {
	return "quality_check"
}

// Schedule returns the cron schedule
func (j *QualityJob) Schedule() string {
	return j.schedule
}

// Run executes the sweep
func (j *QualityJob) Run(ctx context.Context) error {
	summary, reports, err := j.gate.Check(ctx, j.now())
	if err != nil {
		return fmt.Errorf("quality check: %w", err)
	}

	if j.reports != nil && len(reports) > 0 {
		if err := j.reports.SaveReports(ctx, reports); err != nil {
			return fmt.Errorf("save quality reports: %w", err)
		}
	}

	j.logger.WithFields(map[string]interface{}{
		"total":         summary.Total,
		"passed":        summary.Passed,
		"average_score": summary.AverageScore,
	}).Info("Quality sweep completed")

	if j.hub != nil {
		j.hub.Broadcast(realtime.EventQualityCompleted, summary)
	}
	return nil
}
