package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/progress-eta/internal/store"
)

const (
	defaultHistoryLimit  = 50
	maxHistoryLimit      = 500
	defaultSnapshotLimit = 100
	maxSnapshotLimit     = 1000
	historyTimeout       = 3 * time.Second
)

// HistoryHandler exposes read-only endpoints over persisted series.
type HistoryHandler struct {
	repo    store.SeriesRepository
	timeout time.Duration
	logger  *zap.Logger
}

// NewHistoryHandler wires the repository and logger.
func NewHistoryHandler(repo store.SeriesRepository, logger *zap.Logger) *HistoryHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HistoryHandler{
		repo:    repo,
		timeout: historyTimeout,
		logger:  logger,
	}
}

// ListSeries handles GET /v1/history/series?status=&limit=&offset=. It returns
// {"series": [...]} on success, 400 for invalid filters, 503 when the repo is
// unavailable, or 500 if the repository call fails.
func (h *HistoryHandler) ListSeries(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(h.logger, w, http.StatusServiceUnavailable, "history repository unavailable")
		return
	}
	limit, offset, err := parseLimitOffset(r, defaultHistoryLimit, maxHistoryLimit)
	if err != nil {
		writeError(h.logger, w, http.StatusBadRequest, err.Error())
		return
	}
	var status *store.SeriesStatus
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		parsed, parseErr := store.ParseSeriesStatus(strings.ToLower(raw))
		if parseErr != nil {
			writeError(h.logger, w, http.StatusBadRequest, parseErr.Error())
			return
		}
		status = &parsed
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	series, err := h.repo.ListSeries(ctx, status, limit, offset)
	if err != nil {
		h.logger.Error("list series failed", zap.Error(err))
		writeError(h.logger, w, http.StatusInternalServerError, "failed to list series")
		return
	}
	writeJSON(h.logger, w, http.StatusOK, map[string]any{"series": toHistorySeriesDTOs(series)})
}

// GetSeries handles GET /v1/history/series/{series_id}. It returns
// {"series": {...}}, 400 for malformed IDs, 404 for store.ErrNotFound, 503
// without a repository, or 500 otherwise.
func (h *HistoryHandler) GetSeries(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(h.logger, w, http.StatusServiceUnavailable, "history repository unavailable")
		return
	}
	id, err := parseSeriesID(r)
	if err != nil {
		writeError(h.logger, w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	rec, err := h.repo.GetSeries(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(h.logger, w, http.StatusNotFound, "series not found")
			return
		}
		h.logger.Error("get series failed", zap.Error(err))
		writeError(h.logger, w, http.StatusInternalServerError, "failed to load series")
		return
	}
	writeJSON(h.logger, w, http.StatusOK, map[string]any{"series": toHistorySeriesDTO(rec)})
}

// ListSnapshots handles GET /v1/history/series/{series_id}/snapshots?limit=&offset=.
func (h *HistoryHandler) ListSnapshots(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(h.logger, w, http.StatusServiceUnavailable, "history repository unavailable")
		return
	}
	id, err := parseSeriesID(r)
	if err != nil {
		writeError(h.logger, w, http.StatusBadRequest, err.Error())
		return
	}
	limit, offset, err := parseLimitOffset(r, defaultSnapshotLimit, maxSnapshotLimit)
	if err != nil {
		writeError(h.logger, w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	snaps, err := h.repo.ListSnapshots(ctx, id, limit, offset)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(h.logger, w, http.StatusNotFound, "series not found")
			return
		}
		h.logger.Error("list snapshots failed", zap.Error(err))
		writeError(h.logger, w, http.StatusInternalServerError, "failed to list snapshots")
		return
	}
	writeJSON(h.logger, w, http.StatusOK, map[string]any{"snapshots": toHistorySnapshotDTOs(snaps)})
}

func parseSeriesID(r *http.Request) (uuid.UUID, error) {
	raw := chi.URLParam(r, "series_id")
	if raw == "" {
		return uuid.UUID{}, errors.New("series_id is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.UUID{}, errors.New("invalid series_id")
	}
	return id, nil
}

func parseLimitOffset(r *http.Request, def, maxLimit int) (int, int, error) {
	q := r.URL.Query()
	limit := def
	if limStr := q.Get("limit"); limStr != "" {
		val, err := strconv.Atoi(limStr)
		if err != nil || val <= 0 {
			return 0, 0, errors.New("invalid limit")
		}
		limit = min(val, maxLimit)
	}
	offset := 0
	if offStr := q.Get("offset"); offStr != "" {
		val, err := strconv.Atoi(offStr)
		if err != nil || val < 0 {
			return 0, 0, errors.New("invalid offset")
		}
		offset = val
	}
	return limit, offset, nil
}
