package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/wonny/aegis-screener/internal/criteria"
	"github.com/wonny/aegis-screener/internal/realtime"
	"github.com/wonny/aegis-screener/internal/screening"
	"github.com/wonny/aegis-screener/internal/selection"
	"github.com/wonny/aegis-screener/pkg/logger"
)

// DefaultKeep is how many ranked rows a persisted preset run retains
const DefaultKeep = 100

// Screener runs one screening query. *screening.Engine implements it.
type Screener interface {
	Run(ctx context.Context, q screening.Query) (*screening.Result, error)
}

// RunSaver persists runs. *selection.Repository implements it.
type RunSaver interface {
	SaveRun(ctx context.Context, run *selection.Run) error
}

// RunCompleted is the websocket payload for a finished preset run
type RunCompleted struct {
	RunID       int64          `json:"run_id"`
	Preset      string         `json:"preset"`
	DataVersion string         `json:"data_version"`
	Candidates  int            `json:"candidates"`
	Passed      int            `json:"passed"`
	Rejected    map[string]int `json:"rejected"`
	Top         []string       `json:"top"`
}

// PresetScreeningJob re-runs every preset against the latest data and records the runs
type PresetScreeningJob struct {
	engine   Screener
	presets  *criteria.Registry
	runs     RunSaver
	hub      Broadcaster
	keep     int
	schedule string
	logger   *logger.Logger
}

// NewPresetScreeningJob creates a new preset refresh job. runs and hub may be nil.
func NewPresetScreeningJob(
	engine Screener,
	presets *criteria.Registry,
	runs RunSaver,
	hub Broadcaster,
	schedule string,
	log *logger.Logger,
) *PresetScreeningJob {
	return &PresetScreeningJob{
		engine:   engine,
		presets:  presets,
		runs:     runs,
		hub:      hub,
		keep:     DefaultKeep,
		schedule: schedule,
		logger:   log,
	}
}

// Name returns the job name
func (j *PresetScreeningJob) Name() string {
	return "preset_screening"
}

// Schedule returns the cron schedule
func (j *PresetScreeningJob) Schedule() string {
	return j.schedule
}

// Run refreshes every preset. One failing preset does not stop the others.
func (j *PresetScreeningJob) Run(ctx context.Context) error {
	presets := j.presets.List()
	j.logger.WithField("presets", len(presets)).Info("Starting preset screening refresh")

	var errs []error
	for _, p := range presets {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("preset refresh cancelled: %w", err)
		}
		if err := j.runPreset(ctx, p); err != nil {
			j.logger.WithError(err).WithField("preset", p.Name).Error("Preset run failed")
			errs = append(errs, fmt.Errorf("preset %s: %w", p.Name, err))
		}
	}
	return errors.Join(errs...)
}

func (j *PresetScreeningJob) runPreset(ctx context.Context, p *criteria.Preset) error {
	res, err := j.engine.Run(ctx, screening.Query{
		Criteria: p.Criteria,
		Sort:     p.Sort,
		PageSize: j.keep,
		Preset:   p.Name,
	})
	if err != nil {
		return err
	}

	ranked := res.Sorted()
	if len(ranked) == 0 {
		// cache hit: only the first page is available
		ranked = res.Items
	}
	run := selection.NewRun(p.Name, res.CriteriaHash, res.Sort, res.DataVersion, ranked, res.Stats, j.keep)

	if j.runs != nil {
		if err := j.runs.SaveRun(ctx, run); err != nil {
			return fmt.Errorf("save run: %w", err)
		}
	}

	top := make([]string, 0, 10)
	for _, r := range run.Results {
		if len(top) == cap(top) {
			break
		}
		top = append(top, r.EntityID)
	}

	j.logger.WithFields(map[string]interface{}{
		"preset":    p.Name,
		"run_id":    run.ID,
		"passed":    run.Passed,
		"cache_hit": res.CacheHit,
	}).Info("Preset run recorded")

	if j.hub != nil {
		j.hub.Broadcast(realtime.EventRunCompleted, RunCompleted{
			RunID:       run.ID,
			Preset:      run.Preset,
			DataVersion: run.DataVersion,
			Candidates:  run.Candidates,
			Passed:      run.Passed,
			Rejected:    run.Rejected,
			Top:         top,
		})
	}
	return nil
}
