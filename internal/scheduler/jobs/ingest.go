// Package jobs holds the cron jobs the scheduler runs: ingestion, preset screening
// refresh, the data-quality sweep and retention maintenance.
package jobs

import (
	"context"
	"fmt"

	"github.com/wonny/aegis-screener/internal/realtime"
	"github.com/wonny/aegis-screener/internal/s0_data/collector"
	"github.com/wonny/aegis-screener/pkg/logger"
)

// Ingester runs provider ingestion. *collector.Collector implements it.
type Ingester interface {
	Run(ctx context.Context, ids []string) (*collector.Summary, error)
}

// Broadcaster publishes events to websocket subscribers. *realtime.Hub implements it.
type Broadcaster interface {
	Broadcast(eventType string, payload interface{})
}

// IngestJob syncs the listing and refreshes every active entity
// ⭐ SSOT: the ingestion schedule lives in this job only
type IngestJob struct {
	collector Ingester
	hub       Broadcaster
	schedule  string
	logger    *logger.Logger
}

// NewIngestJob creates a new ingestion job. hub may be nil.
func NewIngestJob(col Ingester, hub Broadcaster, schedule string, log *logger.Logger) *IngestJob {
	return &IngestJob{
		collector: col,
		hub:       hub,
		schedule:  schedule,
		logger:    log,
	}
}

// Name returns the job name
func (j *IngestJob) Name() string {
	return "ingest"
}

// Schedule returns the cron schedule
func (j *IngestJob) Schedule() string {
	return j.schedule
}

// Run executes a full ingestion. Per-entity failures are reported in the summary,
// not as a job error; only a failed listing sync or cancellation fails the run.
func (j *IngestJob) Run(ctx context.Context) error {
	j.logger.Info("Starting scheduled ingestion")

	summary, err := j.collector.Run(ctx, nil)
	if err != nil {
		return fmt.Errorf("ingest: %w", err)
	}

	j.logger.WithFields(map[string]interface{}{
		"discovered":  summary.Discovered,
		"deactivated": summary.Deactivated,
		"succeeded":   summary.Succeeded,
		"failed":      summary.Failed,
		"drift":       len(summary.DriftLabels),
		"duration":    summary.Duration.String(),
	}).Info("Scheduled ingestion completed")

	if j.hub != nil {
		j.hub.Broadcast(realtime.EventIngestCompleted, summary)
	}
	return nil
}
