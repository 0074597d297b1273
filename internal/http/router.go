package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"ai-screening-call-service/internal/app"
	"ai-screening-call-service/internal/archive"
	"ai-screening-call-service/internal/models"
)

const (
	defaultRecentLimit = 20
	maxRecentLimit     = 200
)

// SummaryStore reads archived call summaries.
type SummaryStore interface {
	Get(ctx context.Context, sessionID string) (models.CallSummary, error)
	Recent(ctx context.Context, n int) ([]models.CallSummary, error)
}

// LiveSessions exposes calls that are still in progress.
type LiveSessions interface {
	Snapshot(ctx context.Context, sessionID string) (models.CallSummary, bool, error)
	Active() int
}

// Deps are the handlers and stores the router serves. Archive may be nil.
type Deps struct {
	Media    http.Handler
	Archive  SummaryStore
	Sessions LiveSessions
}

// NewRouter constructs the HTTP router for the service.
func NewRouter(application *app.Application, deps Deps) http.Handler {
	r := chi.NewRouter()

	// Basic middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// Health endpoints
	r.Get("/v1/liveness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/v1/readiness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	// Twilio Media Streams websocket; request logging would wrap the
	// hijacked connection, so it stays outside the API group
	if deps.Media != nil {
		r.Get("/v1/media", deps.Media.ServeHTTP)
	}

	// API routes
	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.Logger)

		r.Get("/info", func(w http.ResponseWriter, _ *http.Request) {
			info := map[string]any{
				"service":        "ai-screening-call-service",
				"uptimeSeconds":  int64(application.Uptime().Seconds()),
				"activeSessions": 0,
			}
			if deps.Sessions != nil {
				info["activeSessions"] = deps.Sessions.Active()
			}
			writeJSON(w, http.StatusOK, info)
		})

		h := &callsHandler{archive: deps.Archive, sessions: deps.Sessions}
		r.Get("/calls", h.recent)
		r.Get("/calls/{sessionID}", h.get)
	})

	return r
}

type callsHandler struct {
	archive  SummaryStore
	sessions LiveSessions
}

// get returns the archived summary, or the live snapshot of a call that has
// not finished yet.
func (h *callsHandler) get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	ctx := r.Context()

	if h.archive != nil {
		sum, err := h.archive.Get(ctx, id)
		switch {
		case err == nil:
			writeJSON(w, http.StatusOK, sum)
			return
		case !errors.Is(err, archive.ErrNotFound):
			log.Error().Err(err).Str("sessionId", id).Msg("Archive lookup failed")
			writeError(w, http.StatusBadGateway, "archive unavailable")
			return
		}
	}

	if h.sessions != nil {
		sum, ok, err := h.sessions.Snapshot(ctx, id)
		if err != nil {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		if ok {
			writeJSON(w, http.StatusOK, sum)
			return
		}
	}

	writeError(w, http.StatusNotFound, "call not found")
}

func (h *callsHandler) recent(w http.ResponseWriter, r *http.Request) {
	if h.archive == nil {
		writeError(w, http.StatusNotImplemented, "archive disabled")
		return
	}

	limit := defaultRecentLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxRecentLimit)
	}

	calls, err := h.archive.Recent(r.Context(), limit)
	if err != nil {
		log.Error().Err(err).Msg("Archive listing failed")
		writeError(w, http.StatusBadGateway, "archive unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"calls": calls})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
