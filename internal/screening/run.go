package screening

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/aegis-screener/internal/contracts"
	"github.com/wonny/aegis-screener/internal/criteria"
	"github.com/wonny/aegis-screener/internal/selection"
	"github.com/wonny/aegis-screener/pkg/redis"
)

// Query is one screening request
type Query struct {
	Criteria criteria.Criteria `json:"criteria"`
	Sort     string            `json:"sort,omitempty"`
	Page     int               `json:"page,omitempty"`
	PageSize int               `json:"page_size,omitempty"`
	AsOf     *time.Time        `json:"as_of,omitempty"` // nil means latest
	IDs      []string          `json:"ids,omitempty"`   // restrict the universe
	Preset   string            `json:"preset,omitempty"`
}

// Result is one page of a screening run plus its provenance
type Result struct {
	selection.Page
	Sort         string                     `json:"sort"`
	Preset       string                     `json:"preset,omitempty"`
	CriteriaHash string                     `json:"criteria_hash"`
	DataVersion  string                     `json:"data_version"`
	Stats        *contracts.EvaluationStats `json:"stats"`
	CacheHit     bool                       `json:"cache_hit"`
	GeneratedAt  time.Time                  `json:"generated_at"`

	// all sorted results, for callers that persist more than one page
	sorted []contracts.ScoredResult
}

// Sorted returns every passing result in sort order. Empty on a cache hit.
func (r *Result) Sorted() []contracts.ScoredResult {
	return r.sorted
}

// cacheKey is everything that determines a page besides the data version
type cacheKey struct {
	CriteriaHash string   `json:"c"`
	Sort         string   `json:"s"`
	Page         int      `json:"p"`
	PageSize     int      `json:"n"`
	AsOf         string   `json:"a"`
	IDs          []string `json:"i,omitempty"`
}

// Run validates, evaluates, sorts and paginates a query. Results are read through
// the cache when one is configured; a cache failure is logged and ignored.
func (e *Engine) Run(ctx context.Context, q Query) (*Result, error) {
	key, err := criteria.ParseSortKey(q.Sort)
	if err != nil {
		return nil, err
	}
	if err := criteria.Validate(&q.Criteria); err != nil {
		return nil, err
	}

	hash, err := criteria.Hash(&q.Criteria)
	if err != nil {
		return nil, fmt.Errorf("failed to hash criteria: %w", err)
	}

	pageSize := q.PageSize
	if pageSize < 1 {
		pageSize = e.cfg.DefaultPageSize
	}
	if e.cfg.MaxPageSize > 0 && pageSize > e.cfg.MaxPageSize {
		pageSize = e.cfg.MaxPageSize
	}
	page := q.Page
	if page < 1 {
		page = 1
	}

	asOf := time.Now()
	asOfKey := "latest"
	if q.AsOf != nil {
		asOf = *q.AsOf
		asOfKey = asOf.UTC().Format(time.RFC3339)
	}

	version, err := e.dataVersion(ctx)
	if err != nil {
		return nil, err
	}

	queryHash, err := redis.HashQuery(cacheKey{
		CriteriaHash: hash,
		Sort:         key.String(),
		Page:         page,
		PageSize:     pageSize,
		AsOf:         asOfKey,
		IDs:          q.IDs,
	})
	if err != nil {
		return nil, err
	}

	if e.cache != nil && version != "" {
		var cached Result
		found, err := e.cache.Get(ctx, queryHash, version, &cached)
		if err != nil {
			e.logger.WithError(err).Warn("Screening cache read failed")
		} else if found {
			cached.CacheHit = true
			cached.Preset = q.Preset
			return &cached, nil
		}
	}

	ids := q.IDs
	if len(ids) == 0 {
		ids, err = e.universe.ListActiveIDs(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list universe: %w", err)
		}
	}

	results, stats, err := e.EvaluateAt(ctx, &q.Criteria, ids, asOf)
	if err != nil {
		return nil, err
	}

	e.ranker.Sort(results, key)

	res := &Result{
		Page:         selection.Paginate(results, page, pageSize, e.cfg.MaxPageSize),
		Sort:         key.String(),
		Preset:       q.Preset,
		CriteriaHash: hash,
		DataVersion:  version,
		Stats:        stats,
		GeneratedAt:  time.Now().UTC(),
		sorted:       results,
	}

	if e.cache != nil && version != "" {
		if err := e.cache.Set(ctx, queryHash, version, res); err != nil {
			e.logger.WithError(err).Warn("Screening cache write failed")
		}
	}

	e.logger.WithFields(map[string]interface{}{
		"criteria_hash": hash,
		"sort":          res.Sort,
		"page":          res.Page.Page,
		"total":         res.Total,
		"data_version":  version,
	}).Info("Screening run completed")

	return res, nil
}

// DataVersion returns the current data version, or "" when no version source is wired
func (e *Engine) DataVersion(ctx context.Context) (string, error) {
	return e.dataVersion(ctx)
}

func (e *Engine) dataVersion(ctx context.Context) (string, error) {
	if e.versions == nil {
		return "", nil
	}
	v, err := e.versions.DataVersion(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to read data version: %w", err)
	}
	return v, nil
}
