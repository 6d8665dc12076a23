package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/wonny/aegis-screener/internal/contracts"
	"github.com/wonny/aegis-screener/pkg/logger"
)

// Broadcaster publishes events to websocket subscribers. *realtime.Hub implements it.
type Broadcaster interface {
	Broadcast(eventType string, payload interface{})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}

// respondErr maps domain errors onto status codes: invalid criteria 400,
// not found 404, no data 404, everything else 500
func respondErr(w http.ResponseWriter, log *logger.Logger, err error, what string) {
	switch {
	case errors.Is(err, contracts.ErrInvalidCriteria):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, contracts.ErrNotFound), errors.Is(err, contracts.ErrNoData):
		respondError(w, http.StatusNotFound, err.Error())
	default:
		log.WithError(err).Error("Failed to " + what)
		respondError(w, http.StatusInternalServerError, "Failed to "+what)
	}
}

// queryInt reads a positive integer query parameter, 0 when unset
func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", contracts.ErrInvalidCriteria, name)
	}
	return n, nil
}

// parseAsOf accepts YYYY-MM-DD or RFC3339. Empty means nil (latest).
func parseAsOf(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, raw); err == nil {
			if layout == "2006-01-02" {
				// a bare date covers the whole day
				t = t.Add(24*time.Hour - time.Nanosecond)
			}
			return &t, nil
		}
	}
	return nil, fmt.Errorf("%w: as_of %q (expected YYYY-MM-DD)", contracts.ErrInvalidCriteria, raw)
}

func asOfOrNow(t *time.Time) time.Time {
	if t == nil {
		return time.Now()
	}
	return *t
}
