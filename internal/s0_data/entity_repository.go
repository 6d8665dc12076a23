package s0_data

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/aegis-screener/internal/contracts"
)

// EntityRepository handles the entity universe
// ⭐ SSOT: entities table reads and writes happen here only
type EntityRepository struct {
	pool *pgxpool.Pool
}

// NewEntityRepository creates a new entity repository
func NewEntityRepository(pool *pgxpool.Pool) *EntityRepository {
	return &EntityRepository{pool: pool}
}

// Upsert inserts or refreshes an entity. Re-discovery reactivates it and
// refreshes its descriptive attributes; the id never changes.
func (r *EntityRepository) Upsert(ctx context.Context, e contracts.Entity) error {
	query := `
		INSERT INTO entities (id, name, market, sector, size_bucket, active, updated_at)
		VALUES ($1, $2, $3, $4, $5, TRUE, NOW())
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			market = EXCLUDED.market,
			sector = EXCLUDED.sector,
			size_bucket = CASE WHEN EXCLUDED.size_bucket = '' THEN entities.size_bucket ELSE EXCLUDED.size_bucket END,
			active = TRUE,
			updated_at = NOW()
	`

	_, err := r.pool.Exec(ctx, query, e.ID, e.Name, e.Market, e.Sector, string(e.SizeBucket))
	if err != nil {
		return fmt.Errorf("upsert entity %s: %w", e.ID, err)
	}
	return nil
}

// ListActiveIDs returns active entity ids in ascending order
func (r *EntityRepository) ListActiveIDs(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM entities WHERE active ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query active entities: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0, 1024)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan entity id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return ids, nil
}

// Deactivate soft-deletes entities; their history stays queryable
func (r *EntityRepository) Deactivate(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE entities SET active = FALSE, updated_at = NOW()
		WHERE id = ANY($1) AND active
	`, ids)
	if err != nil {
		return 0, fmt.Errorf("deactivate entities: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Get returns one entity or contracts.ErrNotFound
func (r *EntityRepository) Get(ctx context.Context, id string) (*contracts.Entity, error) {
	query := `
		SELECT id, name, market, sector, size_bucket, active, updated_at
		FROM entities
		WHERE id = $1
	`

	var e contracts.Entity
	var bucket string
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&e.ID, &e.Name, &e.Market, &e.Sector, &bucket, &e.Active, &e.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("entity %s: %w", id, contracts.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query entity: %w", err)
	}
	e.SizeBucket = contracts.SizeBucket(bucket)
	return &e, nil
}
