package selection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/aegis-screener/internal/contracts"
)

// Run is a persisted summary of one screening execution (preset refresh history)
type Run struct {
	ID           int64          `json:"id"`
	Preset       string         `json:"preset"`
	CriteriaHash string         `json:"criteria_hash"`
	Sort         string         `json:"sort"`
	DataVersion  string         `json:"data_version"`
	Candidates   int            `json:"candidates"`
	Passed       int            `json:"passed"`
	Failed       int            `json:"failed"`
	Rejected     map[string]int `json:"rejected"`
	DurationMS   int64          `json:"duration_ms"`
	CreatedAt    time.Time      `json:"created_at"`

	Results []RunResult `json:"results,omitempty"`
}

// RunResult is one ranked row of a run
type RunResult struct {
	EntityID   string               `json:"entity_id"`
	Position   int                  `json:"position"`
	TotalScore float64              `json:"total_score"`
	Rank       contracts.RankBucket `json:"rank"`
	Scores     contracts.SubScores  `json:"scores"`
}

// NewRun builds a run summary from evaluation output. At most keep ranked rows are retained.
func NewRun(preset, hash, sort, version string, results []contracts.ScoredResult, stats *contracts.EvaluationStats, keep int) *Run {
	run := &Run{
		Preset:       preset,
		CriteriaHash: hash,
		Sort:         sort,
		DataVersion:  version,
		Rejected:     map[string]int{},
	}
	if stats != nil {
		run.Candidates = stats.Candidates
		run.Passed = stats.Passed
		run.Failed = stats.Failed
		run.DurationMS = stats.Duration.Milliseconds()
		for k, v := range stats.Rejected {
			run.Rejected[k] = v
		}
	}

	if keep > len(results) {
		keep = len(results)
	}
	for _, r := range results[:keep] {
		run.Results = append(run.Results, RunResult{
			EntityID:   r.Entity.ID,
			Position:   r.Position,
			TotalScore: r.TotalScore,
			Rank:       r.Rank,
			Scores:     r.Scores,
		})
	}
	return run
}

// Repository handles screening run persistence
// ⭐ SSOT: screening_runs reads and writes happen here only
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new run repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// SaveRun stores the run and its ranked rows in one transaction and sets run.ID
func (r *Repository) SaveRun(ctx context.Context, run *Run) error {
	rejectedJSON, err := json.Marshal(run.Rejected)
	if err != nil {
		return fmt.Errorf("failed to marshal rejected: %w", err)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO screening_runs (
			preset, criteria_hash, sort_key, data_version,
			candidates, passed, failed, rejected, duration_ms
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at
	`
	err = tx.QueryRow(ctx, query,
		run.Preset, run.CriteriaHash, run.Sort, run.DataVersion,
		run.Candidates, run.Passed, run.Failed, rejectedJSON, run.DurationMS,
	).Scan(&run.ID, &run.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert screening run: %w", err)
	}

	if len(run.Results) > 0 {
		batch := &pgx.Batch{}
		for _, res := range run.Results {
			batch.Queue(`
				INSERT INTO screening_run_results (
					run_id, entity_id, position, total_score, rank,
					valuation, profitability, growth, safety
				) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			`, run.ID, res.EntityID, res.Position, res.TotalScore, string(res.Rank),
				res.Scores.Valuation, res.Scores.Profitability, res.Scores.Growth, res.Scores.Safety)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to insert run results: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// LatestRun returns the newest run of a preset with its ranked rows, or contracts.ErrNotFound
func (r *Repository) LatestRun(ctx context.Context, preset string) (*Run, error) {
	query := `
		SELECT id, preset, criteria_hash, sort_key, data_version,
		       candidates, passed, failed, rejected, duration_ms, created_at
		FROM screening_runs
		WHERE preset = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`

	run, err := scanRun(r.pool.QueryRow(ctx, query, preset))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("no run for preset %s: %w", preset, contracts.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest run: %w", err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT entity_id, position, total_score, rank, valuation, profitability, growth, safety
		FROM screening_run_results
		WHERE run_id = $1
		ORDER BY position ASC
	`, run.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to query run results: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var res RunResult
		var rank string
		if err := rows.Scan(
			&res.EntityID, &res.Position, &res.TotalScore, &rank,
			&res.Scores.Valuation, &res.Scores.Profitability, &res.Scores.Growth, &res.Scores.Safety,
		); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		res.Rank = contracts.RankBucket(rank)
		run.Results = append(run.Results, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return run, nil
}

// ListRuns returns the newest runs (summaries only), optionally for one preset
func (r *Repository) ListRuns(ctx context.Context, preset string, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT id, preset, criteria_hash, sort_key, data_version,
		       candidates, passed, failed, rejected, duration_ms, created_at
		FROM screening_runs
		WHERE ($1 = '' OR preset = $1)
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, preset, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	runs := make([]*Run, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return runs, nil
}

func scanRun(row pgx.Row) (*Run, error) {
	var run Run
	var rejectedJSON []byte
	err := row.Scan(
		&run.ID, &run.Preset, &run.CriteriaHash, &run.Sort, &run.DataVersion,
		&run.Candidates, &run.Passed, &run.Failed, &rejectedJSON, &run.DurationMS, &run.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	run.Rejected = map[string]int{}
	if len(rejectedJSON) > 0 {
		if err := json.Unmarshal(rejectedJSON, &run.Rejected); err != nil {
			return nil, fmt.Errorf("failed to unmarshal rejected: %w", err)
		}
	}
	return &run, nil
}

// DeleteBefore drops runs (and, by cascade, their rows) created before the cutoff
func (r *Repository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM screening_runs WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete runs: %w", err)
	}
	return tag.RowsAffected(), nil
}
