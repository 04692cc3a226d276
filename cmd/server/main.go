package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/troikatech/voice-ivr/internal/api"
	"github.com/troikatech/voice-ivr/internal/api/handlers"
	"github.com/troikatech/voice-ivr/internal/ivr"
	"github.com/troikatech/voice-ivr/pkg/ai"
	"github.com/troikatech/voice-ivr/pkg/auth"
	"github.com/troikatech/voice-ivr/pkg/circuitbreaker"
	"github.com/troikatech/voice-ivr/pkg/env"
	"github.com/troikatech/voice-ivr/pkg/live"
	"github.com/troikatech/voice-ivr/pkg/logger"
	"github.com/troikatech/voice-ivr/pkg/metrics"
	"github.com/troikatech/voice-ivr/pkg/otel"
	"github.com/troikatech/voice-ivr/pkg/retry"
	"github.com/troikatech/voice-ivr/pkg/session"
	"github.com/troikatech/voice-ivr/pkg/storage"
	"github.com/troikatech/voice-ivr/pkg/twilio"
)

const (
	serviceName    = "voice-ivr"
	serviceVersion = "1.0.0"
)

func main() {
	envFile := flag.String("env", ".env", "path to an optional .env file")
	flag.Parse()

	cfg, err := env.Load(*envFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := logger.Init(cfg.LogLevel, cfg.AppEnv); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	bootCtx, cancelBoot := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancelBoot()

	if cfg.OTELEnabled {
		shutdown, err := otel.InitTracing(bootCtx, serviceName, serviceVersion, cfg.OTELEndpoint)
		if err != nil {
			logger.Log.Warn("Failed to initialize OpenTelemetry", zap.Error(err))
		} else {
			defer shutdownWithTimeout(shutdown)
			logger.Log.Info("OpenTelemetry tracing enabled", zap.String("endpoint", cfg.OTELEndpoint))
		}
	}

	if shutdown, err := metrics.InitProvider(serviceName, serviceVersion); err != nil {
		logger.Log.Warn("Failed to initialize metrics exporter", zap.Error(err))
	} else {
		defer shutdownWithTimeout(shutdown)
	}

	logger.Log.Info("Starting voice IVR",
		zap.String("env", cfg.AppEnv),
		zap.String("port", cfg.AppPort),
		zap.String("store", cfg.StoreDriver),
		zap.String("sessions", cfg.SessionStore),
	)

	store := connectStore(bootCtx, cfg)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := store.Close(ctx); err != nil {
			logger.Log.Warn("Failed to close store", zap.Error(err))
		}
	}()

	redisClient := connectRedis(bootCtx, cfg)
	if redisClient != nil {
		defer redisClient.Close()
	}

	var sessions session.Store
	if cfg.SessionStore == "redis" {
		if redisClient == nil {
			logger.Log.Fatal("SESSION_STORE=redis but Redis is unreachable")
		}
		sessions = session.NewRedisStore(redisClient, cfg.SessionTTL())
	} else {
		sessions = session.NewMemoryStore(cfg.SessionTTL())
	}

	catalog, err := ivr.LoadCatalog(cfg.LanguagesFile)
	if err != nil {
		logger.Log.Fatal("Failed to load language catalog", zap.Error(err))
	}
	logger.Log.Info("Language catalog loaded", zap.Strings("digits", catalog.Digits()))

	aiManager := newAIManager(cfg)
	hub := live.NewHub()

	orch := ivr.NewOrchestrator(aiManager, ivr.NewCatalogFilter(catalog), store, hub, ivr.OrchestratorConfig{
		MaxTokens:   cfg.LLMMaxTokens,
		Temperature: cfg.LLMTemperature,
		Timeout:     cfg.LLMTimeout(),
		Reminder:    catalog.Reminder,
	}, logger.Log)

	engine := ivr.NewEngine(catalog, sessions, store, orch, hub, ivr.EngineConfig{
		MaxListenRetries: cfg.ListenMaxRetries,
	}, logger.Log)

	var statusCallback string
	if cfg.PublicBaseURL != "" {
		statusCallback = strings.TrimRight(cfg.PublicBaseURL, "/") + "/call-status"
	}
	dialer := ivr.NewDialer(twilio.NewClient(cfg.TwilioAccountSID, cfg.TwilioAuthToken), store, ivr.DialerConfig{
		From:           cfg.TwilioPhoneNumber,
		StatusCallback: statusCallback,
		MaxConcurrency: cfg.DialMaxConcurrency,
	}, logger.Log)

	tokens := auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience,
		time.Duration(cfg.AccessTTLMin)*time.Minute)

	h := handlers.NewHandler(handlers.Deps{
		Config:      cfg,
		Engine:      engine,
		Dialer:      dialer,
		Store:       store,
		Summarizer:  aiManager,
		AIManager:   aiManager,
		Hub:         hub,
		Tokens:      tokens,
		RedisClient: redisClient,
		Logger:      logger.Log,
	})

	router := api.NewRouter(api.Options{
		Config:      cfg,
		Handler:     h,
		Tokens:      tokens,
		RedisClient: redisClient,
		Logger:      logger.Log,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.AppPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Log.Info("Voice IVR listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Log.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Log.Info("Server exited")
}

// connectStore retries while the database comes up alongside the service.
func connectStore(ctx context.Context, cfg *env.Config) storage.Gateway {
	retryCfg := retry.StartupConfig()
	retryCfg.OnRetry = func(attempt int, err error, wait time.Duration) {
		logger.Log.Warn("Store not ready, retrying",
			zap.String("driver", cfg.StoreDriver),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	}

	var store storage.Gateway
	err := retry.Do(ctx, retryCfg, func(ctx context.Context) error {
		var err error
		store, err = storage.NewGateway(ctx, storage.Config{
			Driver:      cfg.StoreDriver,
			DatabaseURL: cfg.DatabaseURL,
			MongoURI:    cfg.MongoURI,
			DBName:      cfg.DBName,
		}, logger.Log)
		return err
	})
	if err != nil {
		logger.Log.Fatal("Failed to connect to store", zap.String("driver", cfg.StoreDriver), zap.Error(err))
	}
	return store
}

// connectRedis returns nil when Redis is optional and unreachable; rate
// limiting and idempotency are then disabled.
func connectRedis(ctx context.Context, cfg *env.Config) *redis.Client {
	required := cfg.SessionStore == "redis"

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		if required {
			logger.Log.Fatal("Failed to parse Redis URL", zap.Error(err))
		}
		logger.Log.Warn("Invalid Redis URL, running without Redis", zap.Error(err))
		return nil
	}
	client := redis.NewClient(opt)

	retryCfg := retry.DefaultConfig()
	if required {
		retryCfg = retry.StartupConfig()
	}
	err = retry.Do(ctx, retryCfg, func(ctx context.Context) error {
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		return client.Ping(pingCtx).Err()
	})
	if err != nil {
		_ = client.Close()
		if required {
			logger.Log.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		logger.Log.Warn("Redis unreachable, rate limiting disabled", zap.Error(err))
		return nil
	}
	return client
}

// newAIManager registers Groq first and OpenAI as the fallback.
func newAIManager(cfg *env.Config) *ai.Manager {
	providers := []ai.Provider{
		ai.NewOpenAIProvider(ai.OpenAIConfig{
			Name:    "groq",
			APIKey:  cfg.GroqApiKey,
			Model:   cfg.GroqModel,
			BaseURL: cfg.GroqBaseURL,
			Timeout: cfg.LLMTimeout(),
		}),
		ai.NewOpenAIProvider(ai.OpenAIConfig{
			Name:    "openai",
			APIKey:  cfg.OpenAIApiKey,
			Model:   cfg.OpenAIModel,
			Timeout: cfg.LLMTimeout(),
		}),
	}

	available := 0
	for _, p := range providers {
		if p.IsAvailable() {
			available++
			logger.Log.Info("Completion provider configured", zap.String("provider", p.Name()))
		}
	}
	if available == 0 {
		logger.Log.Warn("No completion provider configured; callers will hear the fallback message")
	}

	return ai.NewManager(providers, circuitbreaker.DefaultConfig(), logger.Log)
}

func shutdownWithTimeout(shutdown func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		logger.Log.Warn("Telemetry shutdown failed", zap.Error(err))
	}
}
