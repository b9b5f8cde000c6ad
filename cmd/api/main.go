package main

import (
	"context"
	"crypto/tls"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/tonyjurso-collab/attorney-directory/internal/api/router"
	"github.com/tonyjurso-collab/attorney-directory/internal/classify"
	appconfig "github.com/tonyjurso-collab/attorney-directory/internal/config"
	"github.com/tonyjurso-collab/attorney-directory/internal/engine"
	"github.com/tonyjurso-collab/attorney-directory/internal/extract"
	"github.com/tonyjurso-collab/attorney-directory/internal/httpapi"
	"github.com/tonyjurso-collab/attorney-directory/internal/llm"
	"github.com/tonyjurso-collab/attorney-directory/internal/location"
	"github.com/tonyjurso-collab/attorney-directory/internal/marketplace"
	"github.com/tonyjurso-collab/attorney-directory/internal/notify"
	"github.com/tonyjurso-collab/attorney-directory/internal/observability/metrics"
	"github.com/tonyjurso-collab/attorney-directory/internal/schema"
	"github.com/tonyjurso-collab/attorney-directory/internal/session"
	"github.com/tonyjurso-collab/attorney-directory/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting attorney-directory intake API",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	// Practice-area catalog
	var (
		catalog *schema.Store
		err     error
	)
	if cfg.CatalogPath != "" {
		catalog, err = schema.LoadFile(cfg.CatalogPath)
	} else {
		catalog, err = schema.LoadDefault()
	}
	if err != nil {
		logger.Error("failed to load practice-area catalog", "error", err)
		os.Exit(1)
	}
	logger.Info("catalog loaded", "categories", len(catalog.Categories()))

	// Redis-backed session storage, with an in-process fallback for
	// single-node deployments without Redis.
	var (
		sessionStore session.Store
		redisClient  *redis.Client
	)
	if cfg.RedisAddr != "" {
		redisOpts := &redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}
		if cfg.RedisTLS {
			redisOpts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		redisClient = redis.NewClient(redisOpts)
		defer redisClient.Close()
		sessionStore = session.NewRedisStore(redisClient, cfg.SessionTTL, nil)
	} else {
		logger.Warn("REDIS_ADDR empty; using in-memory session store",
			"sweep_interval", cfg.SweepInterval)
		memStore := session.NewMemoryStore()
		stopSweeper := memStore.StartSweeper(cfg.SweepInterval)
		defer stopSweeper()
		sessionStore = memStore
	}

	// Hosted model client; without a key the classifier and extractor run
	// keyword-only / no-op, which keeps local development working.
	var model llm.Client
	if cfg.GeminiAPIKey != "" {
		gemini, err := llm.NewGeminiClient(context.Background(), cfg.GeminiAPIKey, cfg.GeminiModelID)
		if err != nil {
			logger.Error("failed to create gemini client", "error", err)
			os.Exit(1)
		}
		defer gemini.Close()
		model = gemini
	} else {
		logger.Warn("GEMINI_API_KEY not set; model-backed classification and extraction disabled")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	intakeMetrics := metrics.NewIntakeMetrics(reg)

	locationClient := location.NewClient(cfg.ZipLookupBaseURL, cfg.ZipLookupTimeout, redisClient, logger)
	detector := classify.NewDetector(catalog, model, cfg.LLMTimeout, logger, intakeMetrics)
	extractor := extract.NewExtractor(catalog, model, locationClient, cfg.ExtractTimeout, logger, intakeMetrics)

	configValues := map[string]string{"tcpa_consent_text": cfg.TCPAConsentText}
	intake := engine.New(catalog, sessionStore, detector, extractor, cfg.SessionTTL, configValues, logger, intakeMetrics)

	// Lead submission pipeline with optional archive and email side channels.
	var pipeline *marketplace.Pipeline
	if cfg.MarketplaceURL != "" {
		var archive *marketplace.Archive
		if cfg.DatabaseURL != "" {
			db, err := sql.Open("postgres", cfg.DatabaseURL)
			if err != nil {
				logger.Error("failed to open lead archive database", "error", err)
				os.Exit(1)
			}
			defer db.Close()
			archive = marketplace.NewArchive(db)
		}

		var emails notify.EmailSender
		if sender := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger); sender != nil {
			emails = sender
		} else {
			emails = notify.NewStubEmailSender(logger)
		}

		client := marketplace.NewClient(cfg.MarketplaceURL, cfg.MarketplaceAPIKey, cfg.MarketplaceTimeout, logger)
		pipeline = marketplace.NewPipeline(catalog, sessionStore, intake.Locker(), client, archive, emails, logger, intakeMetrics)
	} else {
		logger.Warn("MARKETPLACE_URL not set; lead submission disabled")
	}

	r := router.New(&router.Config{
		Logger:             logger,
		Chat:               httpapi.NewHandler(intake, pipeline, logger),
		MetricsHandler:     promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		ChatRatePerSecond:  cfg.ChatRatePerSecond,
		ChatBurst:          cfg.ChatBurst,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("forced shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
