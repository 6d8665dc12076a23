package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/wonny/aegis-screener/internal/contracts"
	"github.com/wonny/aegis-screener/internal/criteria"
	"github.com/wonny/aegis-screener/internal/filter"
	"github.com/wonny/aegis-screener/internal/growth"
	"github.com/wonny/aegis-screener/internal/screening"
	"github.com/wonny/aegis-screener/internal/selection"
	"github.com/wonny/aegis-screener/pkg/logger"
)

// RunStore reads persisted preset runs. *selection.Repository implements it.
type RunStore interface {
	LatestRun(ctx context.Context, preset string) (*selection.Run, error)
	ListRuns(ctx context.Context, preset string, limit int) ([]*selection.Run, error)
}

// ScreeningHandler handles screening API endpoints
// ⭐ SSOT: screening API handlers live in this struct only
type ScreeningHandler struct {
	engine  *screening.Engine
	presets *criteria.Registry
	runs    RunStore
	logger  *logger.Logger
}

// NewScreeningHandler creates a new screening handler. runs may be nil.
func NewScreeningHandler(engine *screening.Engine, presets *criteria.Registry, runs RunStore, log *logger.Logger) *ScreeningHandler {
	return &ScreeningHandler{
		engine:  engine,
		presets: presets,
		runs:    runs,
		logger:  log,
	}
}

// ScreenRequest is the body of POST /api/screen
type ScreenRequest struct {
	Criteria criteria.Criteria `json:"criteria"`
	Sort     string            `json:"sort"`
	Page     int               `json:"page"`
	PageSize int               `json:"page_size"`
	AsOf     string            `json:"as_of"`
	IDs      []string          `json:"ids"`
}

// Screen runs ad-hoc criteria
// POST /api/screen
func (h *ScreeningHandler) Screen(w http.ResponseWriter, r *http.Request) {
	var req ScreenRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	asOf, err := parseAsOf(req.AsOf)
	if err != nil {
		respondErr(w, h.logger, err, "parse as_of")
		return
	}

	result, err := h.engine.Run(r.Context(), screening.Query{
		Criteria: req.Criteria,
		Sort:     req.Sort,
		Page:     req.Page,
		PageSize: req.PageSize,
		AsOf:     asOf,
		IDs:      req.IDs,
	})
	if err != nil {
		respondErr(w, h.logger, err, "run screening")
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// ListPresets returns every registered preset
// GET /api/presets
func (h *ScreeningHandler) ListPresets(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"presets": h.presets.List(),
	})
}

// RunPreset runs a preset. sort, page, page_size and as_of come from the query string.
// GET /api/presets/{name}
func (h *ScreeningHandler) RunPreset(w http.ResponseWriter, r *http.Request) {
	preset, err := h.presets.Get(mux.Vars(r)["name"])
	if err != nil {
		respondErr(w, h.logger, err, "get preset")
		return
	}

	q := r.URL.Query()
	page, err := queryInt(r, "page")
	if err != nil {
		respondErr(w, h.logger, err, "parse page")
		return
	}
	pageSize, err := queryInt(r, "page_size")
	if err != nil {
		respondErr(w, h.logger, err, "parse page_size")
		return
	}
	asOf, err := parseAsOf(q.Get("as_of"))
	if err != nil {
		respondErr(w, h.logger, err, "parse as_of")
		return
	}

	sort := q.Get("sort")
	if sort == "" {
		sort = preset.Sort
	}

	result, err := h.engine.Run(r.Context(), screening.Query{
		Criteria: preset.Criteria,
		Sort:     sort,
		Page:     page,
		PageSize: pageSize,
		AsOf:     asOf,
		Preset:   preset.Name,
	})
	if err != nil {
		respondErr(w, h.logger, err, "run preset")
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// EntityDetail is one entity's snapshot with its score
type EntityDetail struct {
	Snapshot   *contracts.EntitySnapshot `json:"snapshot"`
	Scores     contracts.SubScores       `json:"scores"`
	Breakdown  contracts.ScoreBreakdown  `json:"breakdown"`
	TotalScore float64                   `json:"total_score"`
	Rank       contracts.RankBucket      `json:"rank"`
	Growth     contracts.GrowthStats     `json:"growth"`

	// set when ?preset= is given
	Preset       string   `json:"preset,omitempty"`
	FailedChecks []string `json:"failed_checks,omitempty"`
	PassesPreset *bool    `json:"passes_preset,omitempty"`
}

// GetEntity returns an entity snapshot with sub-scores. With ?preset=name it also
// lists every preset check the entity fails.
// GET /api/entities/{id}
func (h *ScreeningHandler) GetEntity(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(mux.Vars(r)["id"])

	asOf, err := parseAsOf(r.URL.Query().Get("as_of"))
	if err != nil {
		respondErr(w, h.logger, err, "parse as_of")
		return
	}

	snap, score, err := h.engine.Snapshot(r.Context(), id, asOfOrNow(asOf))
	if err != nil {
		respondErr(w, h.logger, err, "load entity")
		return
	}

	detail := EntityDetail{
		Snapshot:   snap,
		Scores:     score.Scores,
		Breakdown:  score.Breakdown,
		TotalScore: score.Total,
		Rank:       score.Rank,
		Growth:     growth.Stats(snap.Statements),
	}

	if name := r.URL.Query().Get("preset"); name != "" {
		p, err := h.presets.Get(name)
		if err != nil {
			respondErr(w, h.logger, err, "load preset")
			return
		}
		program, err := filter.Compile(&p.Criteria)
		if err != nil {
			respondErr(w, h.logger, err, "compile preset")
			return
		}
		failed := program.Explain(snap)
		passes := len(failed) == 0
		detail.Preset = p.Name
		detail.FailedChecks = failed
		detail.PassesPreset = &passes
	}

	respondJSON(w, http.StatusOK, detail)
}

// GetBenchmarks returns per-sector averages
// GET /api/benchmarks
func (h *ScreeningHandler) GetBenchmarks(w http.ResponseWriter, r *http.Request) {
	asOf, err := parseAsOf(r.URL.Query().Get("as_of"))
	if err != nil {
		respondErr(w, h.logger, err, "parse as_of")
		return
	}

	at := asOfOrNow(asOf)
	benchmarks, err := h.engine.Benchmarks(r.Context(), at)
	if err != nil {
		respondErr(w, h.logger, err, "compute benchmarks")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"as_of":   at.Format(time.RFC3339),
		"sectors": benchmarks,
	})
}

// ListRuns returns persisted preset runs, newest first
// GET /api/runs?preset=value&limit=20
func (h *ScreeningHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		respondError(w, http.StatusServiceUnavailable, "Run history is not configured")
		return
	}

	limit, err := queryInt(r, "limit")
	if err != nil {
		respondErr(w, h.logger, err, "parse limit")
		return
	}

	runs, err := h.runs.ListRuns(r.Context(), r.URL.Query().Get("preset"), limit)
	if err != nil {
		respondErr(w, h.logger, err, "list runs")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"runs": runs,
	})
}

// LatestRun returns the newest persisted run of a preset with its ranked rows
// GET /api/runs/{preset}/latest
func (h *ScreeningHandler) LatestRun(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		respondError(w, http.StatusServiceUnavailable, "Run history is not configured")
		return
	}

	run, err := h.runs.LatestRun(r.Context(), mux.Vars(r)["preset"])
	if err != nil {
		respondErr(w, h.logger, err, "get latest run")
		return
	}

	respondJSON(w, http.StatusOK, run)
}
