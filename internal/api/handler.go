package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ricochet1k/ptymux/internal/realtime"
	"github.com/ricochet1k/ptymux/internal/service"
	apiTypes "github.com/ricochet1k/ptymux/pkg/api"
)

// Handler serves the terminal page, the event channel, and the admin API.
type Handler struct {
	router    *service.Router
	hub       *realtime.Hub
	logger    *slog.Logger
	base      string
	eventPath string
	version   string
}

type Options struct {
	// BaseURL is the path prefix all routes live under. It starts and ends
	// with "/".
	BaseURL string
	// EventPath is where the event channel is served. It must live under
	// BaseURL and defaults to BaseURL + "pty".
	EventPath string
	Version   string
	Logger  *slog.Logger
}

func NewHandler(router *service.Router, hub *realtime.Hub, opts Options) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	base := opts.BaseURL
	if base == "" {
		base = "/"
	}
	eventPath := opts.EventPath
	if eventPath == "" || !strings.HasPrefix(eventPath, base) {
		eventPath = base + "pty"
	}
	return &Handler{
		router:    router,
		hub:       hub,
		logger:    logger,
		base:      base,
		eventPath: eventPath,
		version:   opts.Version,
	}
}

// Routes returns an http.Handler with every route mounted under the base URL.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	if h.base == "/" {
		h.Mount(r)
		return r
	}
	sub := chi.NewRouter()
	h.Mount(sub)
	r.Mount(strings.TrimSuffix(h.base, "/"), sub)
	return r
}

// Mount registers all routes relative to the base URL.
func (h *Handler) Mount(r chi.Router) {
	r.Get("/", h.index)
	r.Get("/"+strings.TrimPrefix(h.eventPath, h.base), h.realtimeWebSocket)
	r.Get("/healthz", h.healthz)
	r.Route("/api", func(r chi.Router) {
		r.Use(CSRFMiddleware(h.base))
		r.Get("/terminals", h.listTerminals)
		r.Get("/terminals/*", h.getTerminal)
		r.Delete("/terminals/*", h.deleteTerminal)
	})
}

func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	failures, coolingDown := h.router.SpawnStatus()
	status := "ok"
	if coolingDown {
		status = "degraded"
	}
	writeJSON(w, http.StatusOK, apiTypes.HealthResponse{
		Status:        status,
		Version:       h.version,
		Sessions:      h.router.Registry().Len(),
		SpawnFailures: failures,
		SpawnCooldown: coolingDown,
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, message, details string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	resp := apiTypes.ErrorResponse{Error: message}
	if details != "" {
		resp.Details = details
	}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "terminal not found", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error", err.Error())
	}
}
