// Package collector is the ingestion collaborator: it discovers the listing, scrapes
// quote, statement and price pages per entity, resolves vendor labels, and persists
// normalized snapshots.
package collector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/wonny/aegis-screener/internal/contracts"
	"github.com/wonny/aegis-screener/internal/external/provider"
	"github.com/wonny/aegis-screener/pkg/config"
	"github.com/wonny/aegis-screener/pkg/logger"
)

// Source is the provider surface ingestion reads. *provider.Client implements it.
type Source interface {
	FetchAllListings(ctx context.Context, maxPages int) ([]provider.ListingRow, error)
	FetchQuote(ctx context.Context, code string) (*provider.Quote, error)
	FetchFinancials(ctx context.Context, code string) (*provider.StatementTable, error)
	FetchPrices(ctx context.Context, code string, days int) ([]provider.PriceBar, error)
}

// Universe lists and retires entities. *s0_data.EntityRepository implements it.
type Universe interface {
	ListActiveIDs(ctx context.Context) ([]string, error)
	Deactivate(ctx context.Context, ids []string) (int64, error)
}

// Config holds collector configuration
type Config struct {
	Workers      int // Number of concurrent workers
	HistoryYears int // Annual statements kept per entity
	ListingPages int
	PriceDays    int // Daily bars fetched for technicals
}

// ConfigFrom maps the provider config section
func ConfigFrom(cfg config.ProviderConfig) Config {
	return Config{
		Workers:      cfg.Workers,
		HistoryYears: cfg.HistoryYears,
		ListingPages: cfg.ListingPages,
		PriceDays:    120,
	}
}

// Collector orchestrates ingestion from the provider
// ⭐ SSOT: ingestion orchestration lives in this package only
type Collector struct {
	source   Source
	writer   contracts.SnapshotWriter
	universe Universe
	mapper   *mapper
	cfg      Config
	logger   *logger.Logger
}

// NewCollector creates a new Collector instance
func NewCollector(
	source Source,
	writer contracts.SnapshotWriter,
	universe Universe,
	cfg Config,
	log *logger.Logger,
) *Collector {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.HistoryYears < 2 {
		cfg.HistoryYears = 10
	}
	if cfg.ListingPages < 1 {
		cfg.ListingPages = 1
	}
	if cfg.PriceDays < 76 {
		cfg.PriceDays = 120
	}

	log = log.WithField("module", "collector")
	return &Collector{
		source:   source,
		writer:   writer,
		universe: universe,
		mapper: &mapper{
			aliases: DefaultAliases(),
			drift:   NewDrift(),
			logger:  log,
		},
		cfg:    cfg,
		logger: log,
	}
}

// WithAliases replaces the label table
func (c *Collector) WithAliases(a *AliasTable) *Collector {
	c.mapper.aliases = a
	return c
}

// Drift returns the unknown-label counter shared by every ingestion run
func (c *Collector) Drift() *Drift {
	return c.mapper.drift
}

// FetchResult represents the outcome of ingesting one entity
type FetchResult struct {
	EntityID   string
	Statements int
	Technical  bool
	Error      error
}

// Summary reports one ingestion run
type Summary struct {
	Discovered  int           `json:"discovered"`
	Deactivated int64         `json:"deactivated"`
	Succeeded   int           `json:"succeeded"`
	Failed      int           `json:"failed"`
	DriftLabels []string      `json:"drift_labels"`
	Duration    time.Duration `json:"duration"`
}

// SyncUniverse upserts every listed entity and deactivates active entities the
// listing no longer carries. An empty listing deactivates nothing.
func (c *Collector) SyncUniverse(ctx context.Context) (discovered int, deactivated int64, err error) {
	rows, err := c.source.FetchAllListings(ctx, c.cfg.ListingPages)
	if err != nil {
		return 0, 0, fmt.Errorf("fetch listings: %w", err)
	}
	if len(rows) == 0 {
		c.logger.Warn("Listing returned no entities, universe left unchanged")
		return 0, 0, nil
	}

	listed := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		if _, dup := listed[row.Code]; dup {
			continue
		}
		listed[row.Code] = struct{}{}
		if err := c.writer.UpsertEntity(ctx, EntityFromListing(row)); err != nil {
			return len(listed), 0, fmt.Errorf("upsert entity: %w", err)
		}
	}

	active, err := c.universe.ListActiveIDs(ctx)
	if err != nil {
		return len(listed), 0, fmt.Errorf("list active entities: %w", err)
	}
	var gone []string
	for _, id := range active {
		if _, ok := listed[id]; !ok {
			gone = append(gone, id)
		}
	}
	deactivated, err = c.universe.Deactivate(ctx, gone)
	if err != nil {
		return len(listed), 0, fmt.Errorf("deactivate delisted: %w", err)
	}

	c.logger.WithFields(map[string]interface{}{
		"discovered":  len(listed),
		"deactivated": deactivated,
	}).Info("Universe synchronized")

	return len(listed), deactivated, nil
}

// Run synchronizes the universe when ids is empty, then ingests ids (or the whole active universe)
func (c *Collector) Run(ctx context.Context, ids []string) (*Summary, error) {
	start := time.Now()
	summary := &Summary{}

	if len(ids) == 0 {
		discovered, deactivated, err := c.SyncUniverse(ctx)
		if err != nil {
			return nil, err
		}
		summary.Discovered = discovered
		summary.Deactivated = deactivated

		ids, err = c.universe.ListActiveIDs(ctx)
		if err != nil {
			return nil, fmt.Errorf("list active entities: %w", err)
		}
	}

	results, err := c.IngestAll(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, r := range results {
		if r.Error != nil {
			summary.Failed++
		} else {
			summary.Succeeded++
		}
	}
	summary.DriftLabels = c.mapper.drift.Labels()
	summary.Duration = time.Since(start)
	return summary, nil
}

// IngestAll ingests ids with a bounded worker pool. One entity failing never stops the others.
func (c *Collector) IngestAll(ctx context.Context, ids []string) ([]FetchResult, error) {
	c.logger.WithFields(map[string]interface{}{
		"entity_count": len(ids),
		"workers":      c.cfg.Workers,
	}).Info("Starting ingestion")

	results := make([]FetchResult, 0, len(ids))
	resultCh := make(chan FetchResult, len(ids))
	idCh := make(chan string, len(ids))

	var wg sync.WaitGroup
	for i := 0; i < c.cfg.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			c.worker(ctx, workerID, idCh, resultCh)
		}(i)
	}

	for _, id := range ids {
		idCh <- id
	}
	close(idCh)

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	successCount := 0
	failCount := 0
	for result := range resultCh {
		results = append(results, result)
		if result.Error != nil {
			failCount++
		} else {
			successCount++
		}
	}

	c.logger.WithFields(map[string]interface{}{
		"success": successCount,
		"failed":  failCount,
		"total":   len(results),
		"drift":   c.mapper.drift.Total(),
	}).Info("Ingestion completed")

	if err := ctx.Err(); err != nil {
		return results, fmt.Errorf("ingestion cancelled: %w", err)
	}
	return results, nil
}

func (c *Collector) worker(ctx context.Context, workerID int, idCh <-chan string, resultCh chan<- FetchResult) {
	for id := range idCh {
		if err := ctx.Err(); err != nil {
			resultCh <- FetchResult{EntityID: id, Error: err}
			continue
		}

		result := c.IngestEntity(ctx, id)
		if result.Error != nil {
			c.logger.WithError(result.Error).WithFields(map[string]interface{}{
				"worker": workerID,
				"entity": id,
			}).Error("Failed to ingest entity")
		}
		resultCh <- result
	}
}

// IngestEntity scrapes and persists one entity. The quote page is required;
// statements and prices are best effort.
func (c *Collector) IngestEntity(ctx context.Context, id string) FetchResult {
	result := FetchResult{EntityID: id}

	quote, err := c.source.FetchQuote(ctx, id)
	if err != nil {
		result.Error = fmt.Errorf("fetch quote: %w", err)
		return result
	}
	fields := c.mapper.fields(id, "quote", quote.Fields)

	table, err := c.source.FetchFinancials(ctx, id)
	if err != nil {
		c.logger.WithError(err).WithField("entity", id).Warn("Financials unavailable")
	}
	statements := c.mapper.statements(id, table)
	if len(statements) > c.cfg.HistoryYears {
		statements = statements[:c.cfg.HistoryYears]
	}

	if len(statements) > 0 {
		if err := c.writer.SaveStatements(ctx, id, statements); err != nil {
			result.Error = fmt.Errorf("save statements: %w", err)
			return result
		}
		if err := c.writer.PruneStatements(ctx, id, c.cfg.HistoryYears); err != nil {
			result.Error = fmt.Errorf("prune statements: %w", err)
			return result
		}
		result.Statements = len(statements)
	}

	if err := c.writer.SaveMarket(ctx, BuildMarket(id, quote.AsOf, fields)); err != nil {
		result.Error = fmt.Errorf("save market: %w", err)
		return result
	}
	if err := c.writer.SaveFundamental(ctx, BuildFundamental(id, quote.AsOf, fields, statements)); err != nil {
		result.Error = fmt.Errorf("save fundamental: %w", err)
		return result
	}

	bars, err := c.source.FetchPrices(ctx, id, c.cfg.PriceDays)
	if err != nil {
		c.logger.WithError(err).WithField("entity", id).Warn("Price history unavailable")
		return result
	}
	if tech := ComputeTechnicals(id, bars); tech != nil {
		if err := c.writer.SaveTechnical(ctx, tech); err != nil {
			result.Error = fmt.Errorf("save technical: %w", err)
			return result
		}
		result.Technical = true
	}

	c.logger.WithFields(map[string]interface{}{
		"entity":     id,
		"statements": result.Statements,
		"technical":  result.Technical,
	}).Debug("Ingested entity")

	return result
}
