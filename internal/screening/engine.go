// Package screening runs criteria against the entity universe: it loads snapshots
// through the metric view, filters, scores, sorts and paginates, and caches whole
// query results keyed by (query, data version).
package screening

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wonny/aegis-screener/internal/contracts"
	"github.com/wonny/aegis-screener/internal/criteria"
	"github.com/wonny/aegis-screener/internal/filter"
	"github.com/wonny/aegis-screener/internal/growth"
	"github.com/wonny/aegis-screener/internal/metricview"
	"github.com/wonny/aegis-screener/internal/scoring"
	"github.com/wonny/aegis-screener/internal/selection"
	"github.com/wonny/aegis-screener/pkg/config"
	"github.com/wonny/aegis-screener/pkg/logger"
)

// Rejection reasons that do not come from a predicate
const (
	ReasonNoSnapshot = "no_snapshot"
	ReasonError      = "error"
)

// Config holds engine limits
type Config struct {
	Workers         int
	DefaultPageSize int
	MaxPageSize     int
}

// DefaultConfig returns default engine limits
func DefaultConfig() Config {
	return Config{
		Workers:         8,
		DefaultPageSize: selection.DefaultPageSize,
		MaxPageSize:     500,
	}
}

// ConfigFrom maps the application config section onto engine limits
func ConfigFrom(cfg config.ScreeningConfig) Config {
	return Config{
		Workers:         cfg.Workers,
		DefaultPageSize: cfg.DefaultPageSize,
		MaxPageSize:     cfg.MaxPageSize,
	}
}

// Cache stores whole query results per data version. *redis.VersionedCache implements it.
type Cache interface {
	Get(ctx context.Context, queryHash, dataVersion string, dest interface{}) (bool, error)
	Set(ctx context.Context, queryHash, dataVersion string, value interface{}) error
}

// Engine evaluates screening criteria
// ⭐ SSOT: evaluate(criteria, ids) lives here only
type Engine struct {
	view     *metricview.View
	universe contracts.UniverseSource
	versions contracts.VersionSource
	cache    Cache
	scorer   *scoring.Scorer
	ranker   *selection.Ranker
	cfg      Config
	logger   *logger.Logger

	// score is swapped in tests to exercise per-entity failure isolation
	score func(*contracts.EntitySnapshot) scoring.Result
}

// NewEngine creates a new engine. cache may be nil.
func NewEngine(
	view *metricview.View,
	universe contracts.UniverseSource,
	versions contracts.VersionSource,
	cache Cache,
	cfg Config,
	log *logger.Logger,
) *Engine {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.DefaultPageSize < 1 {
		cfg.DefaultPageSize = selection.DefaultPageSize
	}

	e := &Engine{
		view:     view,
		universe: universe,
		versions: versions,
		cache:    cache,
		scorer:   scoring.NewScorer(log),
		ranker:   selection.NewRanker(log),
		cfg:      cfg,
		logger:   log.Component("engine"),
	}
	e.score = e.scorer.Score
	return e
}

// Evaluate filters and scores ids against the latest data
func (e *Engine) Evaluate(ctx context.Context, c *criteria.Criteria, ids []string) ([]contracts.ScoredResult, *contracts.EvaluationStats, error) {
	return e.EvaluateAt(ctx, c, ids, time.Now())
}

// EvaluateAt filters and scores ids using snapshots dated at or before asOf.
// Invalid criteria fail before any entity is touched. A failure inside one entity
// excludes that entity only. Cancelling ctx stops scheduling further entities.
// Results are returned unsorted.
func (e *Engine) EvaluateAt(ctx context.Context, c *criteria.Criteria, ids []string, asOf time.Time) ([]contracts.ScoredResult, *contracts.EvaluationStats, error) {
	start := time.Now()

	program, err := filter.Compile(c)
	if err != nil {
		return nil, nil, err
	}

	ids = dedupe(ids)
	stats := &contracts.EvaluationStats{
		Candidates: len(ids),
		Rejected:   make(map[string]int),
	}
	if len(ids) == 0 {
		return []contracts.ScoredResult{}, stats, nil
	}

	snapshots, err := e.view.Load(ctx, ids, asOf)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load snapshots: %w", err)
	}

	// One slot per id; each goroutine writes only its own slot.
	type slot struct {
		result *contracts.ScoredResult
		reason string
	}
	slots := make([]slot, len(ids))

	g := new(errgroup.Group)
	g.SetLimit(e.cfg.Workers)

	for i, id := range ids {
		if ctx.Err() != nil {
			break
		}
		snap, ok := snapshots[id]
		if !ok {
			slots[i] = slot{reason: ReasonNoSnapshot}
			continue
		}

		g.Go(func() error {
			res, reason, err := e.evaluateOne(program, snap)
			if err != nil {
				e.logger.WithFields(map[string]interface{}{
					"entity": id,
					"error":  err.Error(),
				}).Error("Entity evaluation failed, excluded")
				slots[i] = slot{reason: ReasonError}
				return nil
			}
			slots[i] = slot{result: res, reason: reason}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, nil, fmt.Errorf("evaluation cancelled: %w", err)
	}

	results := make([]contracts.ScoredResult, 0, len(ids)/4)
	for _, s := range slots {
		switch {
		case s.result != nil:
			results = append(results, *s.result)
		case s.reason == ReasonError:
			stats.Failed++
		default:
			stats.Rejected[s.reason]++
		}
	}
	stats.Passed = len(results)
	stats.Duration = time.Since(start)

	e.logger.WithFields(map[string]interface{}{
		"candidates": stats.Candidates,
		"passed":     stats.Passed,
		"failed":     stats.Failed,
		"rejected":   stats.Rejected,
		"duration":   stats.Duration.String(),
	}).Info("Evaluation completed")

	return results, stats, nil
}

// evaluateOne filters then scores one snapshot. A panic becomes an error.
func (e *Engine) evaluateOne(program *filter.Program, snap *contracts.EntitySnapshot) (res *contracts.ScoredResult, reason string, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, reason = nil, ""
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()

	outcome := program.Evaluate(snap)
	if !outcome.Passed {
		return nil, outcome.Reason, nil
	}

	score := e.score(snap)
	return &contracts.ScoredResult{
		Entity:      snap.Entity,
		Market:      snap.Market,
		Fundamental: snap.Fundamental,
		Growth:      growth.Stats(snap.Statements),
		Scores:      score.Scores,
		Breakdown:   score.Breakdown,
		TotalScore:  score.Total,
		Rank:        score.Rank,
	}, "", nil
}

// Snapshot returns one entity's assembled snapshot with its score, for detail views
func (e *Engine) Snapshot(ctx context.Context, id string, asOf time.Time) (*contracts.EntitySnapshot, scoring.Result, error) {
	snaps, err := e.view.Load(ctx, []string{id}, asOf)
	if err != nil {
		return nil, scoring.Result{}, err
	}
	snap, ok := snaps[id]
	if !ok {
		return nil, scoring.Result{}, fmt.Errorf("entity %s: %w", id, contracts.ErrNotFound)
	}
	return snap, e.scorer.ScoreInputs(scoring.InputsFrom(snap)), nil
}

// dedupe drops repeated ids, keeping first-seen order
func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
