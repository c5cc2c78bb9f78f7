// Package api exposes the audit engine over HTTP: submission endpoints
// for the three audit job kinds, job status polling, a WebSocket progress
// stream, and cache administration.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	aether "github.com/nmang004/projectaether"
	"github.com/nmang004/projectaether/engine"
)

// API wires the HTTP handlers for the audit engine.
type API struct {
	eng    *engine.Engine
	logger *slog.Logger
}

// Option configures an API.
type Option func(*API)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *API) { a.logger = l }
}

// New creates an API from an Engine.
func New(eng *engine.Engine, opts ...Option) *API {
	a := &API{eng: eng, logger: slog.Default()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Handler returns the fully assembled http.Handler with all routes.
func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/audits", a.submitAudit)
	mux.HandleFunc("POST /v1/performance", a.submitPerformance)
	mux.HandleFunc("POST /v1/briefs", a.submitBrief)
	mux.HandleFunc("GET /v1/jobs/{id}", a.getJob)
	mux.HandleFunc("GET /v1/jobs/{id}/watch", a.watchJob)
	mux.HandleFunc("GET /v1/cache/stats", a.cacheStats)
	mux.HandleFunc("DELETE /v1/cache", a.purgeCache)
	mux.HandleFunc("GET /healthz", a.healthz)

	return a.logRequests(mux)
}

// logRequests logs each request with method, path, and latency.
func (a *API) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		a.logger.Debug("http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Duration("elapsed", time.Since(start)),
		)
	})
}

// ── response plumbing ───────────────────────────────────────────────────

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Kind    string `json:"kind,omitempty"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // response already committed
}

// writeError maps engine and store errors onto HTTP statuses. Validation
// and unknown-kind failures are the caller's fault; unknown IDs are 404;
// everything else is a 500 without internals in the body.
func (a *API) writeError(w http.ResponseWriter, err error) {
	var ae *aether.Error
	switch {
	case errors.As(err, &ae) && ae.Kind == aether.KindValidation:
		writeJSON(w, http.StatusBadRequest, errorBody{errorDetail{Kind: string(ae.Kind), Message: ae.Message}})
	case errors.Is(err, aether.ErrUnknownJobKind):
		writeJSON(w, http.StatusBadRequest, errorBody{errorDetail{Message: "unknown job kind"}})
	case errors.Is(err, aether.ErrJobNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{errorDetail{Message: "job not found"}})
	default:
		a.logger.Error("request failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody{errorDetail{Message: "internal error"}})
	}
}
