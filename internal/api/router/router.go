package router

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/guesthub/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/guesthub/internal/http/middleware"
	"github.com/wolfman30/guesthub/pkg/logging"
)

// InstagramWebhook is the pair of endpoints Meta calls for a subscribed page.
type InstagramWebhook interface {
	HandleVerification(w http.ResponseWriter, r *http.Request)
	HandleWebhook(w http.ResponseWriter, r *http.Request)
}

// Checker reports whether a backing service is reachable.
type Checker func(ctx context.Context) error

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	TelegramWebhook    http.Handler
	InstagramWebhook   InstagramWebhook
	AdminConversations *handlers.AdminConversationsHandler
	AdminAuthSecret    string
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string
	WebhookLimiter     *httpmiddleware.RateLimiter

	// Readiness probes keyed by dependency name (database, redis).
	Checks map[string]Checker
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Group(func(public chi.Router) {
		public.Get("/health", healthHandler(nil))
		public.Get("/ready", healthHandler(cfg.Checks))
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
	})

	r.Route("/webhooks", func(webhooks chi.Router) {
		if cfg.WebhookLimiter != nil {
			webhooks.Use(httpmiddleware.RateLimit(cfg.WebhookLimiter))
		}
		if cfg.TelegramWebhook != nil {
			webhooks.Method(http.MethodPost, "/telegram", cfg.TelegramWebhook)
		}
		if cfg.InstagramWebhook != nil {
			webhooks.Get("/instagram", cfg.InstagramWebhook.HandleVerification)
			webhooks.Post("/instagram", cfg.InstagramWebhook.HandleWebhook)
		}
	})

	// Admin routes are only mounted when a signing secret is configured.
	if cfg.AdminConversations != nil && cfg.AdminAuthSecret != "" {
		r.Route("/admin", func(admin chi.Router) {
			admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
			h := cfg.AdminConversations
			admin.Get("/conversations", h.ListConversations)
			admin.Route("/conversations/{id}", func(conv chi.Router) {
				conv.Get("/", h.GetConversation)
				conv.Post("/messages", h.SendMessage)
				conv.Post("/bookings", h.CreateBooking)
			})
		})
	}

	return r
}

// healthHandler answers 200 when every check passes and 503 otherwise. With no
// checks it is a plain liveness probe.
func healthHandler(checks map[string]Checker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		resp := map[string]string{"status": "ok"}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				status = http.StatusServiceUnavailable
				resp["status"] = "degraded"
				resp[name] = err.Error()
				continue
			}
			resp[name] = "ok"
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(resp)
	}
}
