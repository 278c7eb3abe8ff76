package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/guesthub/internal/api/router"
	"github.com/wolfman30/guesthub/internal/app/bootstrap"
	"github.com/wolfman30/guesthub/internal/channels/instagram"
	"github.com/wolfman30/guesthub/internal/channels/telegram"
	appconfig "github.com/wolfman30/guesthub/internal/config"
	"github.com/wolfman30/guesthub/internal/dialog"
	"github.com/wolfman30/guesthub/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/guesthub/internal/http/middleware"
	"github.com/wolfman30/guesthub/internal/hub"
	"github.com/wolfman30/guesthub/internal/observability/metrics"
	"github.com/wolfman30/guesthub/pkg/logging"
)

func main() {
	if err := appconfig.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
	}
	cfg := appconfig.Load()

	logger := logging.NewWithWriter(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting guesthub API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Storage
	pool, err := bootstrap.BuildPostgresPool(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to connect database", "error", err)
		os.Exit(1)
	}
	if pool != nil {
		defer pool.Close()
	}
	ledger := hub.NewService(bootstrap.BuildHubStore(pool, logger), logger)

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		defer redisClient.Close()
	}

	// Dialog
	table, catalog, err := bootstrap.BuildDialogData(cfg)
	if err != nil {
		logger.Error("failed to load dialog data", "error", err)
		os.Exit(1)
	}
	metricsHandler, dialogMetrics := setupMetrics()

	orchOpts := []dialog.Option{
		dialog.WithHouseCatalog(catalog),
		dialog.WithBookingBaseURL(cfg.BookingBaseURL),
		dialog.WithMetrics(dialogMetrics),
	}
	if guard := bootstrap.BuildInboundGuard(redisClient, cfg); guard != nil {
		orchOpts = append(orchOpts, dialog.WithInboundGuard(guard))
	}

	tgSender, err := bootstrap.BuildTelegramSender(cfg, logger)
	if err != nil {
		logger.Error("failed to start telegram bot", "error", err)
		os.Exit(1)
	}
	if tgSender != nil {
		orchOpts = append(orchOpts, dialog.WithSender(hub.ChannelTelegram, tgSender))
	}

	// The adapter needs the dispatcher as its sink and the orchestrator needs
	// the adapter as a sender, so the sink is bound after both exist.
	sink := &lateSink{}
	var igAdapter *instagram.Adapter
	if cfg.InstagramVerifyToken != "" || cfg.InstagramPageAccessToken != "" {
		igAdapter = instagram.NewAdapter(instagram.AdapterConfig{
			PageAccessToken: cfg.InstagramPageAccessToken,
			AppSecret:       cfg.InstagramAppSecret,
			VerifyToken:     cfg.InstagramVerifyToken,
			Sink:            sink,
			Metrics:         dialogMetrics,
			Logger:          logger,
		})
		orchOpts = append(orchOpts, dialog.WithSender(hub.ChannelInstagram, igAdapter))
	}

	orchestrator := dialog.NewOrchestrator(ledger, table, bootstrap.BuildPMSClient(cfg, logger), logger, orchOpts...)
	dispatcher := dialog.NewDispatcher(orchestrator, logger,
		dialog.WithWorkers(cfg.WorkerCount),
		dialog.WithBuffer(cfg.QueueBuffer),
	)
	sink.bind(dispatcher)
	dispatcher.Start(ctx)

	// HTTP
	routerCfg := &router.Config{
		Logger:             logger,
		AdminConversations: handlers.NewAdminConversationsHandler(ledger, orchestrator, logger),
		AdminAuthSecret:    cfg.AdminJWTSecret,
		MetricsHandler:     metricsHandler,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		Checks:             readinessChecks(pool, redisClient),
	}
	if tgSender != nil {
		routerCfg.TelegramWebhook = telegram.NewWebhookHandler(cfg.TelegramWebhookSecret, dispatcher, dialogMetrics, logger)
		if cfg.TelegramWebhookSecret == "" {
			logger.Warn("TELEGRAM_WEBHOOK_SECRET is not set; telegram webhook accepts unauthenticated requests")
		}
	}
	if igAdapter != nil {
		routerCfg.InstagramWebhook = igAdapter
	}
	if cfg.WebhookRateLimit > 0 {
		limiter := httpmiddleware.NewRateLimiter(cfg.WebhookRateLimit, cfg.WebhookRateBurst)
		go limiter.RunCleanup(ctx)
		routerCfg.WebhookLimiter = limiter
	}
	if cfg.AdminJWTSecret == "" {
		logger.Warn("ADMIN_JWT_SECRET is not set; admin API disabled")
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router.New(routerCfg),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	// Webhooks are closed; finish what is already queued.
	dispatcher.Stop()
	cancel()

	logger.Info("server stopped")
}

// setupMetrics builds a dedicated registry with the dialog metrics and the
// Go runtime collectors.
func setupMetrics() (http.Handler, *metrics.DialogMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewDialogMetrics(reg)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), m
}

func readinessChecks(pool *pgxpool.Pool, redisClient *redis.Client) map[string]router.Checker {
	checks := make(map[string]router.Checker)
	if pool != nil {
		checks["database"] = pool.Ping
	}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}
	}
	return checks
}
