// Package api provides HTTP API handlers.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/factchecker/citecheck/internal/cache"
	"github.com/factchecker/citecheck/internal/database"
	"github.com/factchecker/citecheck/internal/models"
	"github.com/factchecker/citecheck/internal/verify"
)

const (
	maxReferences = 500
	maxBodyBytes  = 1 << 20
)

// Verifier runs verification pipelines.
type Verifier interface {
	Run(ctx context.Context, texts []string, sink verify.Sink) (*models.RunRecord, error)
}

// Handler contains all HTTP handlers.
type Handler struct {
	verifier Verifier
	store    database.Store
	cache    *cache.Cache
}

// NewHandler creates a new handler.
func NewHandler(verifier Verifier, store database.Store, c *cache.Cache) *Handler {
	return &Handler{
		verifier: verifier,
		store:    store,
		cache:    c,
	}
}

// HealthCheck returns the service health status.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":    "healthy",
		"version":   "1.0.0",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	writeJSON(w, http.StatusOK, response)
}

// decodeReferences reads and validates a VerifyRequest body.
func decodeReferences(w http.ResponseWriter, r *http.Request) ([]string, bool) {
	var req models.VerifyRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return nil, false
	}

	if len(req.References) == 0 {
		writeError(w, http.StatusBadRequest, "References are required")
		return nil, false
	}
	if len(req.References) > maxReferences {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("At most %d references per request", maxReferences))
		return nil, false
	}
	for i, ref := range req.References {
		if strings.TrimSpace(ref) == "" {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("Reference %d is empty", i))
			return nil, false
		}
	}
	return req.References, true
}

// Verify runs the pipeline and returns every result ordered by index.
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	refs, ok := decodeReferences(w, r)
	if !ok {
		return
	}

	record, err := h.verifier.Run(r.Context(), refs, nil)
	if err != nil {
		log.Error().Err(err).Msg("Verification failed")
		writeError(w, http.StatusInternalServerError, "Verification failed: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, models.VerifyResponse{
		Run:     record.Summary,
		Results: record.Results,
	})
}

// VerifyStream runs the pipeline and streams its events as server-sent events.
func (h *Handler) VerifyStream(w http.ResponseWriter, r *http.Request) {
	refs, ok := decodeReferences(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "Streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sink := verify.SinkFunc(func(ev models.Event) error {
		data, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	})

	if _, err := h.verifier.Run(r.Context(), refs, sink); err != nil {
		log.Warn().Err(err).Str("request_id", getRequestID(r.Context())).Msg("Verification stream ended early")
	}
}

// GetRun returns a stored run with its results.
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "ID is required")
		return
	}

	run, err := h.store.GetRun(r.Context(), id)
	if err != nil {
		log.Error().Err(err).Msg("Failed to get run")
		writeError(w, http.StatusInternalServerError, "Failed to get run")
		return
	}
	if run == nil {
		writeError(w, http.StatusNotFound, "Run not found")
		return
	}

	writeJSON(w, http.StatusOK, run)
}

// ListRuns returns paginated run summaries.
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r, 20)

	runs, err := h.store.ListRuns(r.Context(), limit, offset)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list runs")
		writeError(w, http.StatusInternalServerError, "Failed to list runs")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"runs":   runs,
		"limit":  limit,
		"offset": offset,
	})
}

// GetAuditLogs returns paginated audit logs.
func (h *Handler) GetAuditLogs(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r, 50)

	logs, err := h.store.GetAuditLogs(r.Context(), limit, offset)
	if err != nil {
		log.Error().Err(err).Msg("Failed to get audit logs")
		writeError(w, http.StatusInternalServerError, "Failed to get audit logs")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"logs":   logs,
		"limit":  limit,
		"offset": offset,
	})
}

// CacheStats reports the size of the result cache.
func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	info, err := h.cache.Info(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to read cache stats")
		writeError(w, http.StatusInternalServerError, "Failed to read cache stats")
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// ClearCache drops every cached verdict.
func (h *Handler) ClearCache(w http.ResponseWriter, r *http.Request) {
	removed, err := h.cache.Clear(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to clear cache")
		writeError(w, http.StatusInternalServerError, "Failed to clear cache")
		return
	}
	log.Info().Int64("removed", removed).Msg("Result cache cleared")
	writeJSON(w, http.StatusOK, map[string]interface{}{"removed": removed})
}

func pagination(r *http.Request, defaultLimit int) (int, int) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 100 {
		limit = defaultLimit
	}

	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// Helper functions
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
