package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/prosegate/prosegate/internal/api"
	"github.com/prosegate/prosegate/internal/auth"
	"github.com/prosegate/prosegate/internal/billing"
	"github.com/prosegate/prosegate/internal/circuitbreaker"
	"github.com/prosegate/prosegate/internal/config"
	"github.com/prosegate/prosegate/internal/crypto"
	"github.com/prosegate/prosegate/internal/domain"
	"github.com/prosegate/prosegate/internal/httputil"
	"github.com/prosegate/prosegate/internal/notifications"
	"github.com/prosegate/prosegate/internal/provider/anthropic"
	"github.com/prosegate/prosegate/internal/provider/bedrock"
	"github.com/prosegate/prosegate/internal/provider/openai"
	"github.com/prosegate/prosegate/internal/queue"
	"github.com/prosegate/prosegate/internal/ratelimit"
	"github.com/prosegate/prosegate/internal/repository"
	"github.com/prosegate/prosegate/internal/router"
	"github.com/prosegate/prosegate/internal/secrets"
	"github.com/prosegate/prosegate/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	setupLogger(cfg.LogLevel)

	slog.Info("starting prosegate", "addr", cfg.Addr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	telemetryShutdown, err := telemetry.Init(ctx, "prosegate", cfg.OTLPEndpoint)
	if err != nil {
		slog.Error("failed to initialize telemetry", "error", err)
		os.Exit(1)
	}
	defer telemetryShutdown(ctx)

	resolveProviderKeys(ctx, cfg)

	var (
		accounts       repository.AccountRepository
		ledger         repository.Ledger
		healthCheckers []api.HealthChecker
	)
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			slog.Error("failed to open database", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		if err := db.PingContext(ctx); err != nil {
			slog.Error("failed to ping database", "error", err)
			os.Exit(1)
		}

		accounts = repository.NewPostgresAccountRepository(db)
		ledger = repository.NewPostgresLedger(db)
		healthCheckers = append(healthCheckers, api.NewPostgresHealthChecker(db))
		slog.Info("using postgres storage")
	} else {
		memAccounts := repository.NewInMemoryAccountRepository()
		accounts = memAccounts
		ledger = repository.NewInMemoryLedgerOver(memAccounts)
		slog.Info("using in-memory storage")
	}

	var rateLimiter ratelimit.RateLimiter
	if cfg.RedisURL != "" {
		redisLimiter, err := ratelimit.NewRedisRateLimiter(cfg.RedisURL)
		if err != nil {
			slog.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer redisLimiter.Close()
		rateLimiter = redisLimiter
		healthCheckers = append(healthCheckers, api.NewRedisHealthChecker(redisLimiter.Client()))
		slog.Info("using redis rate limiter")
	} else {
		rateLimiter = ratelimit.NewInMemoryRateLimiter()
		slog.Info("using in-memory rate limiter")
	}

	streamClient := httputil.StreamingClient()
	providers := make(map[domain.ProviderKind]router.Provider)

	if cfg.OpenAIAPIKey != "" {
		p := openai.New(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, streamClient)
		providers[domain.ProviderLowCost] = p
		healthCheckers = append(healthCheckers, api.NewProviderHealthChecker(p.ID(), p))
		slog.Info("registered provider", "provider", "openai", "tier", "low-cost")
	}

	if cfg.BedrockEnabled && cfg.AWSRegion != "" {
		p, err := bedrock.New(ctx, cfg.AWSRegion)
		if err != nil {
			slog.Error("failed to initialize bedrock", "error", err)
			os.Exit(1)
		}
		providers[domain.ProviderHighReasoning] = p
		healthCheckers = append(healthCheckers, api.NewProviderHealthChecker(p.ID(), p))
		slog.Info("registered provider", "provider", "bedrock", "tier", "high-reasoning")
	} else if cfg.AnthropicAPIKey != "" {
		p := anthropic.New(cfg.AnthropicAPIKey, streamClient)
		providers[domain.ProviderHighReasoning] = p
		healthCheckers = append(healthCheckers, api.NewProviderHealthChecker(p.ID(), p))
		slog.Info("registered provider", "provider", "anthropic", "tier", "high-reasoning")
	}

	if len(providers) == 0 {
		slog.Error("no providers configured")
		os.Exit(1)
	}

	providerRouter := router.New(providers, circuitbreaker.NewManager(circuitbreaker.DefaultConfig()))

	monitor := billing.NewCreditMonitor(cfg.LowCreditThreshold)
	monitor.OnAlert(billing.LogAlertHandler)
	if cfg.AlertTopicARN != "" && cfg.AWSRegion != "" {
		notifier, err := notifications.NewSNSNotifier(ctx, cfg.AWSRegion, cfg.AlertTopicARN)
		if err != nil {
			slog.Error("failed to initialize sns notifier", "error", err)
			os.Exit(1)
		}
		monitor.OnAlert(notifications.AlertHandler(notifier))
		slog.Info("credit alerts publishing to sns", "topic", cfg.AlertTopicARN)
	}

	var retryQueue billing.RetryQueue
	var retrySource billing.RetrySource
	if cfg.BillingRetryQueue != "" && cfg.AWSRegion != "" {
		sqsQueue, err := queue.NewSQSRetryQueue(ctx, cfg.AWSRegion, cfg.BillingRetryQueue)
		if err != nil {
			slog.Error("failed to initialize sqs retry queue", "error", err)
			os.Exit(1)
		}
		retryQueue = sqsQueue
		retrySource = sqsQueue
		slog.Info("billing retries via sqs", "queue", cfg.BillingRetryQueue)
	}

	finalizer := billing.NewFinalizer(billing.FinalizerConfig{
		Ledger:  ledger,
		Monitor: monitor,
		Retry:   retryQueue,
	})

	if retrySource != nil {
		worker := billing.NewRetryWorker(finalizer, retrySource, 30*time.Second)
		go worker.Run(ctx)
	}

	handler := api.NewHandler(api.HandlerConfig{
		Accounts:    accounts,
		Ledger:      ledger,
		RateLimiter: rateLimiter,
		Router:      providerRouter,
		Finalizer:   finalizer,
	})
	handler.SetHealthCheckers(healthCheckers, 5*time.Second)

	adminHandler := api.NewAdminHandler(accounts, ledger)

	mux := http.NewServeMux()
	if cfg.AdminAuthEnabled {
		if cfg.AdminPasswordHash == "" {
			slog.Error("admin auth enabled but ADMIN_PASSWORD_HASH not set")
			os.Exit(1)
		}
		repo := auth.NewStaticAdminRepository(cfg.AdminUsername, cfg.AdminPasswordHash)
		mw := auth.NewMiddleware(auth.NewAuthenticator(repo))
		mux.Handle("/admin/", mw.RequireAuth(adminHandler))
	} else {
		mux.Handle("/admin/", adminHandler)
	}
	mux.Handle("/", handler)

	srv := &http.Server{
		Addr:        cfg.Addr,
		Handler:     mux,
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	go func() {
		slog.Info("server listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("server stopped")
}

// resolveProviderKeys fills in backend API keys from Secrets Manager
// when they are not set in the environment, then unwraps any values
// stored encrypted with the master key.
func resolveProviderKeys(ctx context.Context, cfg *config.Config) {
	if cfg.ProviderSecretName != "" && cfg.AWSRegion != "" {
		store, err := secrets.NewAWSSecretsManager(ctx, cfg.AWSRegion)
		if err != nil {
			slog.Error("failed to initialize secrets manager", "error", err)
			os.Exit(1)
		}
		keys, err := secrets.LoadProviderKeys(ctx, store, cfg.ProviderSecretName)
		if err != nil {
			slog.Error("failed to load provider keys", "error", err)
			os.Exit(1)
		}
		if cfg.OpenAIAPIKey == "" {
			cfg.OpenAIAPIKey = keys.OpenAIAPIKey
		}
		if cfg.AnthropicAPIKey == "" {
			cfg.AnthropicAPIKey = keys.AnthropicAPIKey
		}
		slog.Info("provider keys loaded from secrets manager", "secret", cfg.ProviderSecretName)
	}

	if cfg.EncryptionKey == "" {
		return
	}
	enc, err := crypto.NewEncryptor(cfg.EncryptionKey)
	if err != nil {
		slog.Error("invalid encryption key", "error", err)
		os.Exit(1)
	}
	if cfg.OpenAIAPIKey, err = enc.MaybeDecrypt(cfg.OpenAIAPIKey); err != nil {
		slog.Error("failed to decrypt openai key", "error", err)
		os.Exit(1)
	}
	if cfg.AnthropicAPIKey, err = enc.MaybeDecrypt(cfg.AnthropicAPIKey); err != nil {
		slog.Error("failed to decrypt anthropic key", "error", err)
		os.Exit(1)
	}
}

func setupLogger(level string) {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
}
