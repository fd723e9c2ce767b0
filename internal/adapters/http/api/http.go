// Package api wires the HTTP surface: the webhook endpoint and the ops routes.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/goccy/go-json"
	"github.com/okian/callledger/internal/adapters/http/swagger"
	"github.com/okian/callledger/internal/app"
)

// Dispatcher handles one webhook body.
type Dispatcher interface {
	Dispatch(ctx context.Context, body []byte) app.Result
}

// Options tune transport limits.
type Options struct {
	// MaxBodyBytes caps webhook bodies. Zero uses DefaultMaxBodyBytes.
	MaxBodyBytes int64
	// RateLimitPerMinute limits webhook requests per client IP. Zero disables.
	RateLimitPerMinute int
}

// DefaultMaxBodyBytes is the webhook body cap when Options leaves it unset.
const DefaultMaxBodyBytes = 5 << 20

// Server wires HTTP routes for the webhook and ops endpoints.
type Server struct {
	healthHandler  *HealthHandler
	statsHandler   *StatsHandler
	webhookHandler *WebhookHandler
	opts           Options
}

// NewServer creates a new API server with all handlers.
func NewServer(d Dispatcher, statsProvider StatsProvider, opts Options) *Server {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}
	return &Server{
		healthHandler:  NewHealthHandler(),
		statsHandler:   NewStatsHandler(statsProvider),
		webhookHandler: NewWebhookHandler(d, opts.MaxBodyBytes),
		opts:           opts,
	}
}

// Router returns the chi router with every route attached.
func (s *Server) Router(ctx context.Context) http.Handler {
	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	r.Get("/metrics", s.healthHandler.HandleMetrics)
	r.Get("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	swagger.Register(ctx, r)

	r.Group(func(r chi.Router) {
		if s.opts.RateLimitPerMinute > 0 {
			r.Use(httprate.LimitByIP(s.opts.RateLimitPerMinute, time.Minute))
		}
		webhook := MetricsMiddleware(s.webhookHandler.HandleWebhook, "webhook")
		r.HandleFunc("/webhook", webhook)
		r.HandleFunc("/", webhook)
	})
	return r
}

type statusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeStatus(w http.ResponseWriter, status int, outcome, msg string) {
	writeJSON(w, status, statusResponse{Status: outcome, Message: msg})
}
