package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/progress-eta/internal/estimator"
	"github.com/JakeFAU/progress-eta/internal/tracker"
)

const (
	defaultSeriesLimit = 50
	maxSeriesLimit     = 500
	maxBodyBytes       = 1 << 16
)

// startSeries handles POST /v1/series with {"total":N,"label":"..."}.
func (s *Server) startSeries(w http.ResponseWriter, r *http.Request) {
	var req startSeriesRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(s.logger, w, http.StatusBadRequest, "invalid JSON")
		return
	}
	info, err := s.tracker.Start(r.Context(), tracker.StartRequest{Total: req.Total, Label: req.Label})
	if err != nil {
		s.writeTrackerError(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/series/"+info.ID.String())
	writeJSON(s.logger, w, http.StatusCreated, map[string]any{"series": toSeriesDTO(info)})
}

// listSeries handles GET /v1/series?status=&limit=&offset= over the live registry.
func (s *Server) listSeries(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := parseLimitOffset(r, defaultSeriesLimit, maxSeriesLimit)
	if err != nil {
		writeError(s.logger, w, http.StatusBadRequest, err.Error())
		return
	}
	var status *tracker.Status
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		parsed, parseErr := tracker.ParseStatus(strings.ToLower(raw))
		if parseErr != nil {
			writeError(s.logger, w, http.StatusBadRequest, "invalid status")
			return
		}
		status = &parsed
	}
	all := s.tracker.List(status)
	writeJSON(s.logger, w, http.StatusOK, map[string]any{"series": toSeriesDTOs(page(all, limit, offset))})
}

// getSeries handles GET /v1/series/{series_id}.
func (s *Server) getSeries(w http.ResponseWriter, r *http.Request) {
	id, err := parseSeriesID(r)
	if err != nil {
		writeError(s.logger, w, http.StatusBadRequest, err.Error())
		return
	}
	info, err := s.tracker.Get(id)
	if err != nil {
		s.writeTrackerError(w, r, err)
		return
	}
	writeJSON(s.logger, w, http.StatusOK, map[string]any{"series": toSeriesDTO(info)})
}

// observe handles POST /v1/series/{series_id}/observations with {"count":N}.
func (s *Server) observe(w http.ResponseWriter, r *http.Request) {
	id, err := parseSeriesID(r)
	if err != nil {
		writeError(s.logger, w, http.StatusBadRequest, err.Error())
		return
	}
	var req observeRequest
	if err := decodeJSON(w, r, &req); err != nil || req.Count == nil {
		writeError(s.logger, w, http.StatusBadRequest, "count is required")
		return
	}
	obs, err := s.tracker.Observe(r.Context(), id, *req.Count)
	if err != nil {
		s.writeTrackerError(w, r, err)
		return
	}
	writeJSON(s.logger, w, http.StatusOK, toObservationDTO(obs))
}

// abandonSeries handles DELETE /v1/series/{series_id}.
func (s *Server) abandonSeries(w http.ResponseWriter, r *http.Request) {
	id, err := parseSeriesID(r)
	if err != nil {
		writeError(s.logger, w, http.StatusBadRequest, err.Error())
		return
	}
	info, err := s.tracker.Abandon(r.Context(), id)
	if err != nil {
		s.writeTrackerError(w, r, err)
		return
	}
	writeJSON(s.logger, w, http.StatusOK, map[string]any{"series": toSeriesDTO(info)})
}

func (s *Server) writeTrackerError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, estimator.ErrInvalidTotal):
		writeError(s.logger, w, http.StatusBadRequest, "total must be > 0")
	case errors.Is(err, tracker.ErrSeriesNotFound):
		writeError(s.logger, w, http.StatusNotFound, "series not found")
	case errors.Is(err, tracker.ErrSeriesClosed):
		writeError(s.logger, w, http.StatusConflict, "series is closed")
	case errors.Is(err, tracker.ErrTooManySeries):
		writeError(s.logger, w, http.StatusTooManyRequests, "too many running series")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(s.logger, w, http.StatusServiceUnavailable, "request cancelled")
	default:
		s.logger.Error("tracker call failed",
			zap.String("request_id", RequestID(r.Context())),
			zap.Error(err),
		)
		writeError(s.logger, w, http.StatusInternalServerError, "internal server error")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
