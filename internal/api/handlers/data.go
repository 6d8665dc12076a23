package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/wonny/aegis-screener/internal/contracts"
	"github.com/wonny/aegis-screener/internal/realtime"
	"github.com/wonny/aegis-screener/internal/s0_data/collector"
	"github.com/wonny/aegis-screener/internal/s0_data/quality"
	"github.com/wonny/aegis-screener/pkg/logger"
)

// Ingester runs provider ingestion. *collector.Collector implements it.
type Ingester interface {
	Run(ctx context.Context, ids []string) (*collector.Summary, error)
}

// QualityChecker runs the data-quality sweep. *quality.QualityGate implements it.
type QualityChecker interface {
	Check(ctx context.Context, asOf time.Time) (*quality.Summary, []quality.Report, error)
}

// DataHandler handles data-related API endpoints
// ⭐ SSOT: data API handlers live in this struct only
type DataHandler struct {
	universe    contracts.UniverseSource
	versions    contracts.VersionSource
	collector   Ingester
	qualityGate QualityChecker
	hub         Broadcaster
	logger      *logger.Logger
}

// NewDataHandler creates a new data handler. collector, qualityGate and hub may be nil.
func NewDataHandler(
	universe contracts.UniverseSource,
	versions contracts.VersionSource,
	col Ingester,
	qualityGate QualityChecker,
	hub Broadcaster,
	log *logger.Logger,
) *DataHandler {
	return &DataHandler{
		universe:    universe,
		versions:    versions,
		collector:   col,
		qualityGate: qualityGate,
		hub:         hub,
		logger:      log,
	}
}

// GetQuality runs the quality checks and returns the universe summary
// GET /api/data/quality
func (h *DataHandler) GetQuality(w http.ResponseWriter, r *http.Request) {
	if h.qualityGate == nil {
		respondError(w, http.StatusServiceUnavailable, "Quality checks are not configured")
		return
	}

	asOf, err := parseAsOf(r.URL.Query().Get("as_of"))
	if err != nil {
		respondErr(w, h.logger, err, "parse as_of")
		return
	}

	summary, _, err := h.qualityGate.Check(r.Context(), asOfOrNow(asOf))
	if err != nil {
		respondErr(w, h.logger, err, "check data quality")
		return
	}

	respondJSON(w, http.StatusOK, summary)
}

// GetUniverse returns the active entity ids and the current data version
// GET /api/data/universe
func (h *DataHandler) GetUniverse(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	ids, err := h.universe.ListActiveIDs(ctx)
	if err != nil {
		respondErr(w, h.logger, err, "list universe")
		return
	}

	version := ""
	if h.versions != nil {
		if version, err = h.versions.DataVersion(ctx); err != nil {
			respondErr(w, h.logger, err, "read data version")
			return
		}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count":        len(ids),
		"ids":          ids,
		"data_version": version,
	})
}

// CollectRequest represents a data collection request
type CollectRequest struct {
	Codes []string `json:"codes"` // empty means sync the listing and ingest everything
}

// CollectResponse represents a data collection response
type CollectResponse struct {
	Status  string             `json:"status"`
	Message string             `json:"message"`
	Summary *collector.Summary `json:"summary,omitempty"`
}

// Collect triggers ingestion
// POST /api/data/collect
func (h *DataHandler) Collect(w http.ResponseWriter, r *http.Request) {
	if h.collector == nil {
		respondError(w, http.StatusServiceUnavailable, "Ingestion is not configured")
		return
	}

	var req CollectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	codes := make([]string, 0, len(req.Codes))
	for _, c := range req.Codes {
		if c = strings.TrimSpace(c); c != "" {
			codes = append(codes, c)
		}
	}

	h.logger.WithField("codes", len(codes)).Info("Data collection triggered")

	summary, err := h.collector.Run(r.Context(), codes)
	if err != nil {
		respondErr(w, h.logger, err, "collect data")
		return
	}

	if h.hub != nil {
		h.hub.Broadcast(realtime.EventIngestCompleted, summary)
	}

	respondJSON(w, http.StatusOK, CollectResponse{
		Status:  "success",
		Message: "Ingestion completed",
		Summary: summary,
	})
}
