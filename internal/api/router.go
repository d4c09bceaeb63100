package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/plcwire/uabridge/internal/journal"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)

	r.Get("/healthz", s.handleHealth)

	// API v1 routes (all read-only; commands flow over MQTT only)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/tags", s.handleListTags)
		r.Get("/tags/*", s.handleGetTag)
		r.Get("/journal", s.handleJournal)
	})

	return r
}

// handleHealth returns 200 when both bridge legs are up, 503 otherwise.
// Suits container healthchecks and s6/systemd readiness probes.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	if !s.status.Healthy() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status":  "degraded",
			"version": s.version,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}

// handleStatus returns the engine snapshot without the per-tag list.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	snap := s.status.Snapshot()

	writeJSON(w, http.StatusOK, map[string]any{
		"version":        s.version,
		"opcua_state":    snap.OPCUAState,
		"mqtt_connected": snap.MQTTConnected,
		"availability":   snap.Availability,
		"tag_count":      snap.TagCount,
		"counters":       snap.Counters,
	})
}

// handleListTags returns the sync state of every configured tag.
func (s *Server) handleListTags(w http.ResponseWriter, _ *http.Request) {
	snap := s.status.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"count": len(snap.Tags),
		"tags":  snap.Tags,
	})
}

// handleGetTag returns one tag by path. Tag paths contain slashes, so
// the path arrives via the chi wildcard.
func (s *Server) handleGetTag(w http.ResponseWriter, r *http.Request) {
	path := chi.URLParam(r, "*")
	if path == "" {
		writeBadRequest(w, "tag path required")
		return
	}

	snap := s.status.Snapshot()
	for i := range snap.Tags {
		if snap.Tags[i].Path == path {
			writeJSON(w, http.StatusOK, snap.Tags[i])
			return
		}
	}

	writeNotFound(w, "unknown tag: "+path)
}

// journalLimit bounds the ?limit= query parameter.
const journalLimit = 500

// handleJournal returns recent journal entries, newest first.
func (s *Server) handleJournal(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeNotFound(w, "journal disabled")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 || n > journalLimit {
			writeBadRequest(w, "limit must be an integer between 0 and 500")
			return
		}
		limit = n
	}

	entries, err := s.journal.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("journal query failed", "error", err)
		writeInternalError(w, "journal query failed")
		return
	}
	if entries == nil {
		entries = []journal.Entry{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"count":   len(entries),
		"entries": entries,
	})
}
