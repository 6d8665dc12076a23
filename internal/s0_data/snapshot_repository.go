package s0_data

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/aegis-screener/internal/contracts"
)

// SnapshotRepository persists snapshot families. It implements contracts.SnapshotWriter.
// ⭐ SSOT: snapshot writes happen here only
type SnapshotRepository struct {
	pool     *pgxpool.Pool
	entities *EntityRepository
}

// NewSnapshotRepository creates a new snapshot repository
func NewSnapshotRepository(pool *pgxpool.Pool) *SnapshotRepository {
	return &SnapshotRepository{
		pool:     pool,
		entities: NewEntityRepository(pool),
	}
}

var _ contracts.SnapshotWriter = (*SnapshotRepository)(nil)

// UpsertEntity delegates to the entity repository
func (r *SnapshotRepository) UpsertEntity(ctx context.Context, e contracts.Entity) error {
	return r.entities.Upsert(ctx, e)
}

// SaveMarket upserts a market snapshot on (entity, as_of)
func (r *SnapshotRepository) SaveMarket(ctx context.Context, s *contracts.MarketSnapshot) error {
	if s == nil {
		return nil
	}

	query := `
		INSERT INTO market_snapshots (
			entity_id, as_of, price, per, pbr, psr,
			dividend_yield, payout_ratio, market_cap, volume, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
		ON CONFLICT (entity_id, as_of) DO UPDATE SET
			price = EXCLUDED.price,
			per = EXCLUDED.per,
			pbr = EXCLUDED.pbr,
			psr = EXCLUDED.psr,
			dividend_yield = EXCLUDED.dividend_yield,
			payout_ratio = EXCLUDED.payout_ratio,
			market_cap = EXCLUDED.market_cap,
			volume = EXCLUDED.volume,
			updated_at = NOW()
	`

	_, err := r.pool.Exec(ctx, query,
		s.EntityID, s.AsOf, s.Price, s.PER, s.PBR, s.PSR,
		s.DividendYield, s.PayoutRatio, s.MarketCap, s.Volume,
	)
	if err != nil {
		return fmt.Errorf("upsert market snapshot for %s: %w", s.EntityID, err)
	}
	return nil
}

// SaveFundamental upserts a fundamental snapshot on (entity, as_of)
func (r *SnapshotRepository) SaveFundamental(ctx context.Context, s *contracts.FundamentalSnapshot) error {
	if s == nil {
		return nil
	}

	query := `
		INSERT INTO fundamental_snapshots (
			entity_id, as_of, roe, roa, roic, gross_margin, operating_margin, net_margin,
			debt_equity_ratio, current_ratio, equity_ratio, asset_turnover,
			revenue_growth_1y, revenue_growth_3y, profit_growth_1y, profit_growth_3y, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, NOW())
		ON CONFLICT (entity_id, as_of) DO UPDATE SET
			roe = EXCLUDED.roe,
			roa = EXCLUDED.roa,
			roic = EXCLUDED.roic,
			gross_margin = EXCLUDED.gross_margin,
			operating_margin = EXCLUDED.operating_margin,
			net_margin = EXCLUDED.net_margin,
			debt_equity_ratio = EXCLUDED.debt_equity_ratio,
			current_ratio = EXCLUDED.current_ratio,
			equity_ratio = EXCLUDED.equity_ratio,
			asset_turnover = EXCLUDED.asset_turnover,
			revenue_growth_1y = EXCLUDED.revenue_growth_1y,
			revenue_growth_3y = EXCLUDED.revenue_growth_3y,
			profit_growth_1y = EXCLUDED.profit_growth_1y,
			profit_growth_3y = EXCLUDED.profit_growth_3y,
			updated_at = NOW()
	`

	_, err := r.pool.Exec(ctx, query,
		s.EntityID, s.AsOf, s.ROE, s.ROA, s.ROIC, s.GrossMargin, s.OperatingMargin, s.NetMargin,
		s.DebtEquityRatio, s.CurrentRatio, s.EquityRatio, s.AssetTurnover,
		s.RevenueGrowth1Y, s.RevenueGrowth3Y, s.ProfitGrowth1Y, s.ProfitGrowth3Y,
	)
	if err != nil {
		return fmt.Errorf("upsert fundamental snapshot for %s: %w", s.EntityID, err)
	}
	return nil
}

// SaveTechnical upserts a technical snapshot on (entity, as_of)
func (r *SnapshotRepository) SaveTechnical(ctx context.Context, s *contracts.TechnicalSnapshot) error {
	if s == nil {
		return nil
	}

	query := `
		INSERT INTO technical_snapshots (
			entity_id, as_of, ma5, ma25, ma75, rsi14, volatility, momentum20, avg_volume20, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		ON CONFLICT (entity_id, as_of) DO UPDATE SET
			ma5 = EXCLUDED.ma5,
			ma25 = EXCLUDED.ma25,
			ma75 = EXCLUDED.ma75,
			rsi14 = EXCLUDED.rsi14,
			volatility = EXCLUDED.volatility,
			momentum20 = EXCLUDED.momentum20,
			avg_volume20 = EXCLUDED.avg_volume20,
			updated_at = NOW()
	`

	_, err := r.pool.Exec(ctx, query,
		s.EntityID, s.AsOf, s.MA5, s.MA25, s.MA75, s.RSI14, s.Volatility, s.Momentum20, s.AvgVolume20,
	)
	if err != nil {
		return fmt.Errorf("upsert technical snapshot for %s: %w", s.EntityID, err)
	}
	return nil
}

// SaveStatements upserts statements on (entity, fiscal_year, quarter) in one batch.
// A restated period overwrites the stored one.
func (r *SnapshotRepository) SaveStatements(ctx context.Context, entityID string, statements []contracts.FinancialStatement) error {
	if len(statements) == 0 {
		return nil
	}

	query := `
		INSERT INTO financial_statements (
			entity_id, fiscal_year, quarter, revenue, operating_income, net_income,
			total_assets, shareholders_equity, eps, bps, dividend_per_share, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW())
		ON CONFLICT (entity_id, fiscal_year, quarter) DO UPDATE SET
			revenue = EXCLUDED.revenue,
			operating_income = EXCLUDED.operating_income,
			net_income = EXCLUDED.net_income,
			total_assets = EXCLUDED.total_assets,
			shareholders_equity = EXCLUDED.shareholders_equity,
			eps = EXCLUDED.eps,
			bps = EXCLUDED.bps,
			dividend_per_share = EXCLUDED.dividend_per_share,
			updated_at = NOW()
	`

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, s := range statements {
		batch.Queue(query,
			entityID, s.FiscalYear, s.Quarter, s.Revenue, s.OperatingIncome, s.NetIncome,
			s.TotalAssets, s.ShareholdersEquity, s.EPS, s.BPS, s.DividendPerShare,
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert statements for %s: %w", entityID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// PruneStatements keeps the newest keep annual statements of an entity
func (r *SnapshotRepository) PruneStatements(ctx context.Context, entityID string, keep int) error {
	if keep < 1 {
		return fmt.Errorf("prune statements: keep must be positive, got %d", keep)
	}

	query := `
		DELETE FROM financial_statements
		WHERE entity_id = $1 AND quarter = 0 AND fiscal_year NOT IN (
			SELECT fiscal_year FROM financial_statements
			WHERE entity_id = $1 AND quarter = 0
			ORDER BY fiscal_year DESC
			LIMIT $2
		)
	`

	if _, err := r.pool.Exec(ctx, query, entityID, keep); err != nil {
		return fmt.Errorf("prune statements for %s: %w", entityID, err)
	}
	return nil
}
