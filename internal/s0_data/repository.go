// Package s0_data is the storage collaborator: Postgres tables for entities and the
// four snapshot families, bulk latest-per-family reads, and idempotent upserts.
package s0_data

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schemaSQL string

// Repository handles schema management and cross-table queries
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new repository
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Pool returns the database pool
func (r *Repository) Pool() *pgxpool.Pool {
	return r.db
}

// Migrate applies the embedded schema. Safe to run on every start.
func (r *Repository) Migrate(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// DataVersion returns a token that changes whenever any snapshot table is written or pruned.
// It combines the newest updated_at with the row counts of every family.
// ⭐ SSOT: data version used to key the result cache
func (r *Repository) DataVersion(ctx context.Context) (string, error) {
	query := `
		SELECT
			GREATEST(
				(SELECT MAX(updated_at) FROM entities),
				(SELECT MAX(updated_at) FROM market_snapshots),
				(SELECT MAX(updated_at) FROM fundamental_snapshots),
				(SELECT MAX(updated_at) FROM technical_snapshots),
				(SELECT MAX(updated_at) FROM financial_statements)
			),
			(SELECT COUNT(*) FROM entities WHERE active)
				+ (SELECT COUNT(*) FROM market_snapshots)
				+ (SELECT COUNT(*) FROM fundamental_snapshots)
				+ (SELECT COUNT(*) FROM technical_snapshots)
				+ (SELECT COUNT(*) FROM financial_statements)
	`

	var latest *time.Time
	var rows int64
	if err := r.db.QueryRow(ctx, query).Scan(&latest, &rows); err != nil {
		return "", fmt.Errorf("query data version: %w", err)
	}
	if latest == nil {
		return "empty", nil
	}
	return fmt.Sprintf("%d-%d", latest.UTC().UnixMicro(), rows), nil
}
