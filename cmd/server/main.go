package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	apihttp "danmustream/danmuservice/internal/api/http"
	"danmustream/danmuservice/internal/app"
	"danmustream/danmuservice/internal/metrics"
	"danmustream/danmuservice/internal/providers/danmuapi"
	"danmustream/danmuservice/internal/registry"
	"danmustream/danmuservice/internal/search"
	"danmustream/danmuservice/internal/telemetry"
)

func main() {
	cfg := app.LoadConfig()
	logger := newLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	metrics.Register(prometheus.DefaultRegisterer)

	shutdownTracer, err := telemetry.Init(context.Background(), "danmu-search")
	if err != nil {
		logger.Warn("otel init failed", slog.String("error", err.Error()))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	registryFile, err := registry.LoadFile(cfg.RegistryFile)
	if err != nil {
		logger.Error("provider registry unreadable", slog.String("path", cfg.RegistryFile), slog.String("error", err.Error()))
		os.Exit(1)
	}
	baseSites, cacheSeconds := app.RegistryBase(cfg, registryFile, logger)

	logger.Info("configuration loaded",
		slog.String("service", "danmu-search"),
		slog.String("httpAddr", cfg.HTTPAddr),
		slog.String("logLevel", cfg.LogLevel),
		slog.String("logFormat", cfg.LogFormat),
		slog.Duration("requestTimeout", cfg.RequestTimeout),
		slog.String("registryFile", cfg.RegistryFile),
		slog.Int("providers", len(baseSites)),
		slog.String("defaultProvider", cfg.DefaultProvider),
		slog.Int("cacheSeconds", cacheSeconds),
		slog.Bool("hasRedis", strings.TrimSpace(cfg.RedisURL) != ""),
	)
	if len(baseSites) == 0 {
		logger.Warn("no danmu providers configured; set DANMU_REGISTRY_FILE or DANMU_API_URL")
	}

	registryOpts := []registry.Option{registry.WithLogger(logger)}
	if store := buildRuntimeStore(cfg, logger); store != nil {
		registryOpts = append(registryOpts, registry.WithRuntimeStore(store))
	}
	providerRegistry := registry.NewService(baseSites, cacheSeconds, registryOpts...)

	danmuClient := &http.Client{Timeout: cfg.RequestTimeout, Transport: otelhttp.NewTransport(http.DefaultTransport)}
	provider := danmuapi.NewProvider(danmuapi.Config{
		UserAgent: cfg.UserAgent,
		Client:    danmuClient,
	})
	searchService := search.NewService(providerRegistry, search.NewExecutor(provider))

	handler := apihttp.NewServer(searchService,
		apihttp.WithLogger(logger),
		apihttp.WithProviderSettings(providerRegistry),
		apihttp.WithDefaultProvider(cfg.DefaultProvider),
		apihttp.WithCacheSecondsFallback(cacheSeconds),
		apihttp.WithRateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst),
	).Handler()
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 15*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	logger.Info("danmu search service started",
		slog.String("addr", cfg.HTTPAddr),
		slog.Duration("timeout", cfg.RequestTimeout),
	)

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", slog.String("error", err.Error()))
	}
	logger.Info("danmu search service stopped")
}

func newLogger(levelRaw, formatRaw string) *slog.Logger {
	options := &slog.HandlerOptions{Level: parseLogLevel(levelRaw)}
	if strings.ToLower(strings.TrimSpace(formatRaw)) == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, options))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, options))
}

func parseLogLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func buildRuntimeStore(cfg app.Config, logger *slog.Logger) registry.RuntimeStore {
	redisURL := strings.TrimSpace(cfg.RedisURL)
	if redisURL == "" {
		return nil
	}
	redisOpts, err := redis.ParseURL(redisURL)
	if err != nil {
		logger.Warn("runtime provider store disabled: invalid redis url", slog.String("error", err.Error()))
		return nil
	}
	store := registry.NewRedisStore(redis.NewClient(redisOpts), "")
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := store.Ping(ctx); err != nil {
		logger.Warn("runtime provider store disabled: redis unavailable", slog.String("error", err.Error()))
		return nil
	}
	logger.Info("redis connected", slog.String("addr", redisOpts.Addr))
	return store
}
