package api

import (
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/LunatiChemist/seva-box/internal/run"
)

// Handler holds the HTTP handlers and dependencies
type Handler struct {
	service *run.Service
	logger  *slog.Logger
	boxID   string
	apiKey  string
}

// NewHandler creates a new HTTP handler. An empty apiKey disables
// authentication.
func NewHandler(service *run.Service, boxID, apiKey string, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
		boxID:   boxID,
		apiKey:  apiKey,
	}
}

// Router creates and configures the HTTP router
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/health", h.GetHealth)

	r.Group(func(r chi.Router) {
		r.Use(h.authMiddleware)

		r.Get("/devices", h.ListDevices)
		r.Get("/modes", h.ListModes)
		r.Get("/modes/{mode}/params", h.GetModeParams)

		r.Post("/jobs", h.StartJob)
		r.Get("/jobs", h.ListJobs)
		r.Post("/jobs/status", h.BulkJobStatus)
		r.Get("/jobs/{run_id}", h.GetJobStatus)
		r.Post("/jobs/{run_id}/cancel", h.CancelJob)

		r.Get("/runs/{run_id}/zip", h.GetRunZip)

		r.Post("/admin/rescan", h.Rescan)
	})

	return r
}

// authMiddleware checks the X-API-Key header against the configured
// shared key. With no key configured every request passes.
func (h *Handler) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.apiKey != "" {
			got := r.Header.Get("X-API-Key")
			if subtle.ConstantTimeCompare([]byte(got), []byte(h.apiKey)) != 1 {
				h.respondError(w, http.StatusUnauthorized, "invalid api key")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests with status and duration
func (h *Handler) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.logger.Info("http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Duration("duration", time.Since(start)),
			slog.String("remote_addr", r.RemoteAddr),
		)
	})
}

// errorResponse represents an error response
type errorResponse struct {
	Error string `json:"error"`
}

// respondJSON writes a JSON response
func (h *Handler) respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response",
			slog.String("error", err.Error()),
		)
	}
}

// respondError writes an error response
func (h *Handler) respondError(w http.ResponseWriter, statusCode int, message string) {
	h.respondJSON(w, statusCode, errorResponse{Error: message})
}
