package internal

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// API is the small read-only HTTP surface next to the websocket endpoint:
// the lobby room listing plus health and stats probes. All gameplay goes
// over the websocket channel.
type API struct {
	registry *Registry
	hub      *Hub
	logger   *slog.Logger
}

// NewAPI creates the lobby API.
func NewAPI(registry *Registry, hub *Hub, logger *slog.Logger) *API {
	return &API{
		registry: registry,
		hub:      hub,
		logger:   logger,
	}
}

// Routes builds the HTTP mux with logging and panic recovery around every
// endpoint.
func (a *API) Routes() http.Handler {
	mux := http.NewServeMux()

	wrap := func(handler http.HandlerFunc) http.HandlerFunc {
		return a.recoverer(a.loggerMiddleware(handler))
	}

	mux.HandleFunc("GET /api/v1/rooms", wrap(a.listRooms))
	mux.HandleFunc("GET /healthz", wrap(a.health))
	mux.HandleFunc("GET /stats", wrap(a.stats))

	return mux
}

// listRooms is the lobby view: live rooms and who is in them.
func (a *API) listRooms(w http.ResponseWriter, r *http.Request) {
	rooms := a.registry.ListActive()
	a.jsonResponse(w, map[string]any{
		"rooms": rooms,
		"total": len(rooms),
	}, http.StatusOK)
}

func (a *API) health(w http.ResponseWriter, r *http.Request) {
	a.jsonResponse(w, map[string]any{
		"status": "healthy",
		"time":   time.Now().Unix(),
	}, http.StatusOK)
}

func (a *API) stats(w http.ResponseWriter, r *http.Request) {
	stats := a.registry.Stats()
	if a.hub != nil {
		stats["connections"] = a.hub.ConnectionCount()
	}
	a.jsonResponse(w, stats, http.StatusOK)
}

func (a *API) jsonResponse(w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		a.logger.Error("encode response failed", "error", err)
	}
}

func (a *API) loggerMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(ww, r)

		a.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.statusCode,
			"duration", time.Since(start))
	}
}

func (a *API) recoverer(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				a.logger.Error("panic while handling request",
					"error", err,
					"method", r.Method,
					"path", r.URL.Path)
				a.jsonResponse(w, map[string]any{"error": "internal server error"}, http.StatusInternalServerError)
			}
		}()
		next(w, r)
	}
}

// responseWriter captures the status code for request logging.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}
