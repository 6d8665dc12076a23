package metricview

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/wonny/aegis-screener/internal/contracts"
)

// MemorySource is an in-process SnapshotSource used for fixtures and tests.
// It applies the same latest-at-or-before rules as the Postgres repository.
type MemorySource struct {
	mu          sync.RWMutex
	version     int
	entities    map[string]contracts.Entity
	market      map[string][]contracts.MarketSnapshot
	fundamental map[string][]contracts.FundamentalSnapshot
	technical   map[string][]contracts.TechnicalSnapshot
	statements  map[string][]contracts.FinancialStatement
}

// NewMemorySource creates an empty source
func NewMemorySource() *MemorySource {
	return &MemorySource{
		entities:    make(map[string]contracts.Entity),
		market:      make(map[string][]contracts.MarketSnapshot),
		fundamental: make(map[string][]contracts.FundamentalSnapshot),
		technical:   make(map[string][]contracts.TechnicalSnapshot),
		statements:  make(map[string][]contracts.FinancialStatement),
	}
}

// Fixture is the JSON document accepted by LoadFixture
type Fixture struct {
	Entities    []contracts.Entity              `json:"entities"`
	Market      []contracts.MarketSnapshot      `json:"market"`
	Fundamental []contracts.FundamentalSnapshot `json:"fundamental"`
	Technical   []contracts.TechnicalSnapshot   `json:"technical"`
	Statements  []contracts.FinancialStatement  `json:"statements"`
}

// LoadFixture reads a JSON fixture into a new MemorySource
func LoadFixture(r io.Reader) (*MemorySource, error) {
	var fx Fixture
	if err := json.NewDecoder(r).Decode(&fx); err != nil {
		return nil, fmt.Errorf("decode fixture: %w", err)
	}

	src := NewMemorySource()
	ctx := context.Background()
	for _, e := range fx.Entities {
		if err := src.UpsertEntity(ctx, e); err != nil {
			return nil, err
		}
	}
	for i := range fx.Market {
		_ = src.SaveMarket(ctx, &fx.Market[i])
	}
	for i := range fx.Fundamental {
		_ = src.SaveFundamental(ctx, &fx.Fundamental[i])
	}
	for i := range fx.Technical {
		_ = src.SaveTechnical(ctx, &fx.Technical[i])
	}
	byEntity := make(map[string][]contracts.FinancialStatement)
	for _, st := range fx.Statements {
		byEntity[st.EntityID] = append(byEntity[st.EntityID], st)
	}
	for id, sts := range byEntity {
		_ = src.SaveStatements(ctx, id, sts)
	}
	return src, nil
}

// UpsertEntity implements contracts.SnapshotWriter
func (m *MemorySource) UpsertEntity(_ context.Context, e contracts.Entity) error {
	if e.ID == "" {
		return fmt.Errorf("entity id is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entities[e.ID] = e
	m.version++
	return nil
}

func (m *MemorySource) SaveMarket(_ context.Context, s *contracts.MarketSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := m.market[s.EntityID]
	for i := range rows {
		if rows[i].AsOf.Equal(s.AsOf) {
			rows[i] = *s
			m.version++
			return nil
		}
	}
	m.market[s.EntityID] = append(rows, *s)
	m.version++
	return nil
}

func (m *MemorySource) SaveFundamental(_ context.Context, s *contracts.FundamentalSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := m.fundamental[s.EntityID]
	for i := range rows {
		if rows[i].AsOf.Equal(s.AsOf) {
			rows[i] = *s
			m.version++
			return nil
		}
	}
	m.fundamental[s.EntityID] = append(rows, *s)
	m.version++
	return nil
}

func (m *MemorySource) SaveTechnical(_ context.Context, s *contracts.TechnicalSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := m.technical[s.EntityID]
	for i := range rows {
		if rows[i].AsOf.Equal(s.AsOf) {
			rows[i] = *s
			m.version++
			return nil
		}
	}
	m.technical[s.EntityID] = append(rows, *s)
	m.version++
	return nil
}

// SaveStatements upserts on (fiscal year, quarter)
func (m *MemorySource) SaveStatements(_ context.Context, entityID string, statements []contracts.FinancialStatement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := m.statements[entityID]
	for _, st := range statements {
		st.EntityID = entityID
		replaced := false
		for i := range rows {
			if rows[i].FiscalYear == st.FiscalYear && rows[i].Quarter == st.Quarter {
				rows[i] = st
				replaced = true
				break
			}
		}
		if !replaced {
			rows = append(rows, st)
		}
	}
	m.statements[entityID] = rows
	m.version++
	return nil
}

// PruneStatements keeps the newest keep annual rows
func (m *MemorySource) PruneStatements(_ context.Context, entityID string, keep int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := m.statements[entityID]
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].FiscalYear > rows[j].FiscalYear })
	if len(rows) > keep {
		m.statements[entityID] = rows[:keep]
		m.version++
	}
	return nil
}

// Deactivate soft-deletes entities and reports how many were active
func (m *MemorySource) Deactivate(_ context.Context, ids []string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, id := range ids {
		e, ok := m.entities[id]
		if !ok || !e.Active {
			continue
		}
		e.Active = false
		m.entities[id] = e
		n++
	}
	if n > 0 {
		m.version++
	}
	return n, nil
}

// ListActiveIDs implements contracts.UniverseSource
func (m *MemorySource) ListActiveIDs(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.entities))
	for id, e := range m.entities {
		if e.Active {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// DataVersion implements contracts.VersionSource
func (m *MemorySource) DataVersion(_ context.Context) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return "mem-" + strconv.Itoa(m.version), nil
}

func (m *MemorySource) Entities(_ context.Context, ids []string) (map[string]contracts.Entity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]contracts.Entity, len(ids))
	for _, id := range ids {
		if e, ok := m.entities[id]; ok {
			out[id] = e
		}
	}
	return out, nil
}

func (m *MemorySource) LatestMarket(_ context.Context, ids []string, asOf time.Time) (map[string]*contracts.MarketSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]*contracts.MarketSnapshot)
	for _, id := range ids {
		var best *contracts.MarketSnapshot
		for i := range m.market[id] {
			row := m.market[id][i]
			if row.AsOf.After(asOf) {
				continue
			}
			if best == nil || row.AsOf.After(best.AsOf) {
				r := row
				best = &r
			}
		}
		if best != nil {
			out[id] = best
		}
	}
	return out, nil
}

func (m *MemorySource) LatestFundamental(_ context.Context, ids []string, asOf time.Time) (map[string]*contracts.FundamentalSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]*contracts.FundamentalSnapshot)
	for _, id := range ids {
		var best *contracts.FundamentalSnapshot
		for i := range m.fundamental[id] {
			row := m.fundamental[id][i]
			if row.AsOf.After(asOf) {
				continue
			}
			if best == nil || row.AsOf.After(best.AsOf) {
				r := row
				best = &r
			}
		}
		if best != nil {
			out[id] = best
		}
	}
	return out, nil
}

func (m *MemorySource) LatestTechnical(_ context.Context, ids []string, asOf time.Time) (map[string]*contracts.TechnicalSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]*contracts.TechnicalSnapshot)
	for _, id := range ids {
		var best *contracts.TechnicalSnapshot
		for i := range m.technical[id] {
			row := m.technical[id][i]
			if row.AsOf.After(asOf) {
				continue
			}
			if best == nil || row.AsOf.After(best.AsOf) {
				r := row
				best = &r
			}
		}
		if best != nil {
			out[id] = best
		}
	}
	return out, nil
}

func (m *MemorySource) RecentStatements(_ context.Context, ids []string, asOf time.Time, limit int) (map[string][]contracts.FinancialStatement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string][]contracts.FinancialStatement)
	for _, id := range ids {
		var rows []contracts.FinancialStatement
		for _, st := range m.statements[id] {
			if st.Quarter == 0 && st.FiscalYear <= asOf.Year() {
				rows = append(rows, st)
			}
		}
		sort.SliceStable(rows, func(i, j int) bool { return rows[i].FiscalYear > rows[j].FiscalYear })
		if len(rows) > limit {
			rows = rows[:limit]
		}
		if len(rows) > 0 {
			out[id] = rows
		}
	}
	return out, nil
}
