package contracts

import (
	"context"
	"time"
)

// SnapshotSource is the storage collaborator behind the metric view.
// Every method is bulk: one call per family for the whole id set.
type SnapshotSource interface {
	Entities(ctx context.Context, ids []string) (map[string]Entity, error)
	LatestMarket(ctx context.Context, ids []string, asOf time.Time) (map[string]*MarketSnapshot, error)
	LatestFundamental(ctx context.Context, ids []string, asOf time.Time) (map[string]*FundamentalSnapshot, error)
	LatestTechnical(ctx context.Context, ids []string, asOf time.Time) (map[string]*TechnicalSnapshot, error)
	// RecentStatements returns up to limit annual statements per entity with
	// fiscal year <= asOf's year, newest first.
	RecentStatements(ctx context.Context, ids []string, asOf time.Time, limit int) (map[string][]FinancialStatement, error)
}

// UniverseSource lists the candidate entity ids
type UniverseSource interface {
	ListActiveIDs(ctx context.Context) ([]string, error)
}

// VersionSource reports an opaque token that changes whenever persisted snapshots change
type VersionSource interface {
	DataVersion(ctx context.Context) (string, error)
}

// SnapshotWriter is what ingestion persists through
type SnapshotWriter interface {
	UpsertEntity(ctx context.Context, e Entity) error
	SaveMarket(ctx context.Context, s *MarketSnapshot) error
	SaveFundamental(ctx context.Context, s *FundamentalSnapshot) error
	SaveTechnical(ctx context.Context, s *TechnicalSnapshot) error
	SaveStatements(ctx context.Context, entityID string, statements []FinancialStatement) error
	PruneStatements(ctx context.Context, entityID string, keep int) error
}
