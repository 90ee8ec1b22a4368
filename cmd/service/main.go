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

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/certexam-service/internal/cache"
	"github.com/kjstillabower/certexam-service/internal/catalog"
	"github.com/kjstillabower/certexam-service/internal/circuitbreaker"
	"github.com/kjstillabower/certexam-service/internal/client"
	"github.com/kjstillabower/certexam-service/internal/config"
	"github.com/kjstillabower/certexam-service/internal/degraded"
	httphandler "github.com/kjstillabower/certexam-service/internal/http"
	"github.com/kjstillabower/certexam-service/internal/lifecycle"
	"github.com/kjstillabower/certexam-service/internal/models"
	"github.com/kjstillabower/certexam-service/internal/observability"
	"github.com/kjstillabower/certexam-service/internal/service"
)

func main() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var breaker *circuitbreaker.CircuitBreaker
	if cfg.CircuitBreakerEnabled {
		breaker = circuitbreaker.New(circuitbreaker.Config{
			FailureThreshold: cfg.CircuitBreakerFailureThreshold,
			SuccessThreshold: cfg.CircuitBreakerSuccessThreshold,
			Timeout:          cfg.CircuitBreakerTimeout,
			Ignore: func(err error) bool {
				return errors.Is(err, client.ErrNotFound) || errors.Is(err, client.ErrBadRequest)
			},
			OnStateChange: func(from, to circuitbreaker.State) {
				logger.Warn("circuit breaker state change", zap.String("from", from.String()), zap.String("to", to.String()))
				observability.CircuitBreakerState.Set(float64(to))
			},
		})
		observability.CircuitBreakerState.Set(0)
		logger.Info("circuit breaker enabled", zap.Int("failure_threshold", cfg.CircuitBreakerFailureThreshold), zap.Duration("timeout", cfg.CircuitBreakerTimeout))
	}

	var backendLimiter *rate.Limiter
	if cfg.BackendRPS > 0 {
		backendLimiter = rate.NewLimiter(rate.Limit(cfg.BackendRPS), cfg.BackendBurst)
	}
	backend, err := client.New(client.Config{
		BaseURL:        cfg.BackendURL,
		Timeout:        cfg.BackendTimeout,
		RetryAttempts:  cfg.RetryAttempts,
		RetryBaseDelay: cfg.RetryBaseDelay,
		RetryMaxDelay:  cfg.RetryMaxDelay,
		Limiter:        backendLimiter,
		Breaker:        breaker,
	})
	if err != nil {
		logger.Fatal("backend client", zap.Error(err))
	}

	var (
		weatherCache cache.Cache[*models.MidWeatherResponse]
		catalogCache cache.Cache[service.CatalogSnapshot]
		mc           *memcache.Client
	)
	switch cfg.CacheBackend {
	case "memcached":
		mc = cache.NewMemcachedClient(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		weatherCache = cache.NewMemcachedCache[*models.MidWeatherResponse](mc, cache.WeatherPrefix)
		catalogCache = cache.NewMemcachedCache[service.CatalogSnapshot](mc, cache.CatalogPrefix)
		logger.Info("cache backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
	default:
		weatherCache = cache.NewInMemoryCache[*models.MidWeatherResponse]()
		logger.Info("cache backend: in_memory")
	}

	weatherService := service.NewWeatherService(backend, weatherCache, service.WeatherConfig{
		TTL:      cfg.CacheTTL,
		Location: cfg.Location,
	}, logger)

	builder := catalog.NewBuilder(backend, catalog.BuilderConfig{
		Schema:   cfg.Schema,
		Keywords: cfg.CatalogKeywords,
		Limit:    cfg.CatalogLimit,
		Location: cfg.Location,
	}, logger)
	catalogService := service.NewCatalogService(builder, catalogCache, cfg.CatalogRefresh, nil, logger)

	go func() {
		if err := catalogService.RefreshPeriodic(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("catalog refresh stopped", zap.Error(err))
		}
	}()
	go func() {
		if err := catalogService.WaitReady(ctx); err == nil {
			lifecycle.SetReady(true)
			logger.Info("catalog ready")
		}
	}()

	if len(cfg.WarmRegions) > 0 {
		warmer := cache.NewWarmer(weatherService, logger)
		if cfg.WarmInterval > 0 {
			go func() {
				if err := warmer.WarmPeriodic(ctx, cfg.WarmRegions, cfg.WarmInterval); err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("periodic cache warming stopped", zap.Error(err))
				}
			}()
		} else {
			go func() {
				if err := warmer.Warm(ctx, cfg.WarmRegions); err != nil {
					logger.Warn("cache warming failed", zap.Error(err))
				}
			}()
		}
	}

	recovery := degraded.NewRecovery(backend.Ping, degraded.RecoveryConfig{
		Initial:     cfg.DegradedRetryInitial,
		Max:         cfg.DegradedRetryMax,
		OnExhausted: onRecoveryExhausted(cfg.ShutdownOnRecoveryExhausted, logger, stop),
		OnRecovered: func() { observability.RecoveryExhausted.Set(0) },
	}, logger)
	go recovery.Run(ctx)

	healthConfig := &httphandler.HealthConfig{
		DegradedWindow:   cfg.DegradedWindow,
		DegradedErrorPct: cfg.DegradedErrorPct,
		OnDegraded:       recovery.Notify,
	}
	if mc != nil {
		healthConfig.CachePing = mc.Ping
	}
	observability.RegisterWindowGauges(cfg.DegradedWindow)

	handler := httphandler.NewHandler(catalogService, builder, weatherService, httphandler.Config{
		Location:      cfg.Location,
		DefaultRegion: cfg.DefaultRegion,
		UpcomingLimit: cfg.UpcomingLimit,
	}, healthConfig, logger)

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	router := httphandler.NewRouter(handler, limiter, cfg.RequestTimeout, logger)

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	lifecycle.SetShuttingDown(true)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	inFlight := httphandler.InFlightCount()
	logger.Info("waiting for in-flight requests", zap.Int64("count", inFlight))
	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.ShutdownInFlightTimeout)
	defer waitCancel()
	if err := httphandler.WaitForInFlight(waitCtx, cfg.ShutdownInFlightCheckInterval); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
	}

	if err := observability.FlushTelemetry(context.Background(), logger, cfg.DegradedWindow); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}

	if mc != nil {
		if err := mc.Close(); err != nil {
			logger.Error("memcached close", zap.Error(err))
		}
	}
	logger.Info("shutdown complete")
}

// onRecoveryExhausted flags the exhausted state and keeps serving degraded.
// With shutdown set it stops the process instead.
func onRecoveryExhausted(shutdown bool, logger *zap.Logger, stop func()) func() {
	return func() {
		observability.RecoveryExhausted.Set(1)
		if shutdown {
			logger.Error("backend did not recover; shutting down")
			stop()
			return
		}
		logger.Error("backend did not recover; serving degraded")
	}
}
