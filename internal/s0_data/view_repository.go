package s0_data

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/aegis-screener/internal/contracts"
)

// ViewRepository answers the bulk latest-per-family reads behind the metric view.
// Every method issues one query for the whole id set.
// ⭐ SSOT: snapshot reads happen here only
type ViewRepository struct {
	pool     *pgxpool.Pool
	entities *EntityRepository
	repo     *Repository
}

// NewViewRepository creates a new view repository
func NewViewRepository(pool *pgxpool.Pool) *ViewRepository {
	return &ViewRepository{
		pool:     pool,
		entities: NewEntityRepository(pool),
		repo:     NewRepository(pool),
	}
}

var (
	_ contracts.SnapshotSource = (*ViewRepository)(nil)
	_ contracts.UniverseSource = (*ViewRepository)(nil)
	_ contracts.VersionSource  = (*ViewRepository)(nil)
)

// ListActiveIDs implements contracts.UniverseSource
func (r *ViewRepository) ListActiveIDs(ctx context.Context) ([]string, error) {
	return r.entities.ListActiveIDs(ctx)
}

// DataVersion implements contracts.VersionSource
func (r *ViewRepository) DataVersion(ctx context.Context) (string, error) {
	return r.repo.DataVersion(ctx)
}

// Entities returns the known entities among ids, active or not
func (r *ViewRepository) Entities(ctx context.Context, ids []string) (map[string]contracts.Entity, error) {
	query := `
		SELECT id, name, market, sector, size_bucket, active, updated_at
		FROM entities
		WHERE id = ANY($1)
	`

	rows, err := r.pool.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("query entities: %w", err)
	}
	defer rows.Close()

	out := make(map[string]contracts.Entity, len(ids))
	for rows.Next() {
		var e contracts.Entity
		var bucket string
		if err := rows.Scan(&e.ID, &e.Name, &e.Market, &e.Sector, &bucket, &e.Active, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan entity: %w", err)
		}
		e.SizeBucket = contracts.SizeBucket(bucket)
		out[e.ID] = e
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return out, nil
}

// LatestMarket returns the newest market snapshot dated at or before asOf per entity
func (r *ViewRepository) LatestMarket(ctx context.Context, ids []string, asOf time.Time) (map[string]*contracts.MarketSnapshot, error) {
	query := `
		SELECT DISTINCT ON (entity_id)
		       entity_id, as_of, price, per, pbr, psr,
		       dividend_yield, payout_ratio, market_cap, volume
		FROM market_snapshots
		WHERE entity_id = ANY($1) AND as_of <= $2::date
		ORDER BY entity_id, as_of DESC
	`

	rows, err := r.pool.Query(ctx, query, ids, asOf)
	if err != nil {
		return nil, fmt.Errorf("query market snapshots: %w", err)
	}
	defer rows.Close()

	out := make(map[string]*contracts.MarketSnapshot, len(ids))
	for rows.Next() {
		var s contracts.MarketSnapshot
		if err := rows.Scan(
			&s.EntityID, &s.AsOf, &s.Price, &s.PER, &s.PBR, &s.PSR,
			&s.DividendYield, &s.PayoutRatio, &s.MarketCap, &s.Volume,
		); err != nil {
			return nil, fmt.Errorf("scan market snapshot: %w", err)
		}
		out[s.EntityID] = &s
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return out, nil
}

// LatestFundamental returns the newest fundamental snapshot dated at or before asOf per entity
func (r *ViewRepository) LatestFundamental(ctx context.Context, ids []string, asOf time.Time) (map[string]*contracts.FundamentalSnapshot, error) {
	query := `
		SELECT DISTINCT ON (entity_id)
		       entity_id, as_of, roe, roa, roic, gross_margin, operating_margin, net_margin,
		       debt_equity_ratio, current_ratio, equity_ratio, asset_turnover,
		       revenue_growth_1y, revenue_growth_3y, profit_growth_1y, profit_growth_3y
		FROM fundamental_snapshots
		WHERE entity_id = ANY($1) AND as_of <= $2::date
		ORDER BY entity_id, as_of DESC
	`

	rows, err := r.pool.Query(ctx, query, ids, asOf)
	if err != nil {
		return nil, fmt.Errorf("query fundamental snapshots: %w", err)
	}
	defer rows.Close()

	out := make(map[string]*contracts.FundamentalSnapshot, len(ids))
	for rows.Next() {
		var s contracts.FundamentalSnapshot
		if err := rows.Scan(
			&s.EntityID, &s.AsOf, &s.ROE, &s.ROA, &s.ROIC, &s.GrossMargin, &s.OperatingMargin, &s.NetMargin,
			&s.DebtEquityRatio, &s.CurrentRatio, &s.EquityRatio, &s.AssetTurnover,
			&s.RevenueGrowth1Y, &s.RevenueGrowth3Y, &s.ProfitGrowth1Y, &s.ProfitGrowth3Y,
		); err != nil {
			return nil, fmt.Errorf("scan fundamental snapshot: %w", err)
		}
		out[s.EntityID] = &s
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return out, nil
}

// LatestTechnical returns the newest technical snapshot dated at or before asOf per entity
func (r *ViewRepository) LatestTechnical(ctx context.Context, ids []string, asOf time.Time) (map[string]*contracts.TechnicalSnapshot, error) {
	query := `
		SELECT DISTINCT ON (entity_id)
		       entity_id, as_of, ma5, ma25, ma75, rsi14, volatility, momentum20, avg_volume20
		FROM technical_snapshots
		WHERE entity_id = ANY($1) AND as_of <= $2::date
		ORDER BY entity_id, as_of DESC
	`

	rows, err := r.pool.Query(ctx, query, ids, asOf)
	if err != nil {
		return nil, fmt.Errorf("query technical snapshots: %w", err)
	}
	defer rows.Close()

	out := make(map[string]*contracts.TechnicalSnapshot, len(ids))
	for rows.Next() {
		var s contracts.TechnicalSnapshot
		if err := rows.Scan(
			&s.EntityID, &s.AsOf, &s.MA5, &s.MA25, &s.MA75, &s.RSI14, &s.Volatility, &s.Momentum20, &s.AvgVolume20,
		); err != nil {
			return nil, fmt.Errorf("scan technical snapshot: %w", err)
		}
		out[s.EntityID] = &s
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return out, nil
}

// RecentStatements returns up to limit annual statements per entity, newest first,
// with fiscal year no later than asOf's year
func (r *ViewRepository) RecentStatements(ctx context.Context, ids []string, asOf time.Time, limit int) (map[string][]contracts.FinancialStatement, error) {
	query := `
		SELECT entity_id, fiscal_year, quarter, revenue, operating_income, net_income,
		       total_assets, shareholders_equity, eps, bps, dividend_per_share
		FROM (
			SELECT fs.*,
			       ROW_NUMBER() OVER (PARTITION BY entity_id ORDER BY fiscal_year DESC) AS rn
			FROM financial_statements fs
			WHERE entity_id = ANY($1) AND quarter = 0 AND fiscal_year <= $2
		) ranked
		WHERE rn <= $3
		ORDER BY entity_id, fiscal_year DESC
	`

	rows, err := r.pool.Query(ctx, query, ids, asOf.Year(), limit)
	if err != nil {
		return nil, fmt.Errorf("query statements: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]contracts.FinancialStatement, len(ids))
	for rows.Next() {
		var s contracts.FinancialStatement
		if err := rows.Scan(
			&s.EntityID, &s.FiscalYear, &s.Quarter, &s.Revenue, &s.OperatingIncome, &s.NetIncome,
			&s.TotalAssets, &s.ShareholdersEquity, &s.EPS, &s.BPS, &s.DividendPerShare,
		); err != nil {
			return nil, fmt.Errorf("scan statement: %w", err)
		}
		out[s.EntityID] = append(out[s.EntityID], s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return out, nil
}
