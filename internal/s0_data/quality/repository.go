package quality

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

// Repository handles quality report persistence
// ⭐ SSOT: S0 quality report storage
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new quality repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// SaveReports upserts one row per (entity, check date)
func (r *Repository) SaveReports(ctx context.Context, reports []Report) error {
	if len(reports) == 0 {
		return nil
	}

	query := `
		INSERT INTO quality_reports (entity_id, checked_at, score, completeness, issues)
		VALUES ($1, $2::date, $3, $4, $5)
		ON CONFLICT (entity_id, checked_at) DO UPDATE SET
			score = EXCLUDED.score,
			completeness = EXCLUDED.completeness,
			issues = EXCLUDED.issues
	`

	batch := &pgx.Batch{}
	for _, rep := range reports {
		issues, err := json.Marshal(rep.Issues)
		if err != nil {
			return fmt.Errorf("marshal issues for %s: %w", rep.EntityID, err)
		}
		batch.Queue(query, rep.EntityID, rep.CheckedAt, rep.Score, rep.Completeness, issues)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range reports {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("save quality report %s: %w", reports[i].EntityID, err)
		}
	}

	return nil
}

// GetLatest retrieves the most recent report for an entity
func (r *Repository) GetLatest(ctx context.Context, entityID string) (*Report, error) {
	query := `
		SELECT entity_id, checked_at, score, completeness, issues
		FROM quality_reports
		WHERE entity_id = $1
		ORDER BY checked_at DESC
		LIMIT 1
	`

	var (
		rep    Report
		issues []byte
	)
	err := r.pool.QueryRow(ctx, query, entityID).Scan(
		&rep.EntityID,
		&rep.CheckedAt,
		&rep.Score,
		&rep.Completeness,
		&issues,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("quality report %s: %w", entityID, contracts.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get latest quality report: %w", err)
	}

	if err := json.Unmarshal(issues, &rep.Issues); err != nil {
		return nil, fmt.Errorf("decode issues: %w", err)
	}
	return &rep, nil
}

// DeleteBefore drops reports checked before the cutoff
func (r *Repository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM quality_reports WHERE checked_at < $1::date`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete quality reports: %w", err)
	}
	return tag.RowsAffected(), nil
}
