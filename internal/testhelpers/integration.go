//go:build integration
// +build integration

// Package testhelpers wires real services for integration tests run against
// a live exam backend.
package testhelpers

import (
	"net/http"
	"os"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/kjstillabower/certexam-service/internal/cache"
	"github.com/kjstillabower/certexam-service/internal/catalog"
	"github.com/kjstillabower/certexam-service/internal/client"
	"github.com/kjstillabower/certexam-service/internal/config"
	"github.com/kjstillabower/certexam-service/internal/models"
	"github.com/kjstillabower/certexam-service/internal/service"
)

// IntegrationTestConfig holds configuration for integration tests.
type IntegrationTestConfig struct {
	BackendURL    string
	CacheBackend  string // "in_memory" or "memcached"
	MemcachedAddr string
}

// GetIntegrationConfig loads integration test configuration from environment.
// Skips test if INTEGRATION_BACKEND_URL is not set.
func GetIntegrationConfig(t *testing.T) IntegrationTestConfig {
	backendURL := os.Getenv("INTEGRATION_BACKEND_URL")
	if backendURL == "" {
		t.Skip("INTEGRATION_BACKEND_URL not set, skipping integration test")
	}
	memcachedAddr := os.Getenv("MEMCACHED_ADDRS")
	if memcachedAddr == "" {
		memcachedAddr = "localhost:11211"
	}
	return IntegrationTestConfig{
		BackendURL:    backendURL,
		CacheBackend:  os.Getenv("INTEGRATION_CACHE_BACKEND"),
		MemcachedAddr: memcachedAddr,
	}
}

// Services are the real services built over the live backend.
type Services struct {
	Backend *client.HTTPClient
	Weather *service.WeatherService
	Catalog *service.CatalogService
	Builder *catalog.Builder
}

// SetupIntegrationServices builds the backend client and services. With
// INTEGRATION_CACHE_BACKEND=memcached and a reachable daemon, both caches use
// memcached; otherwise weather is cached in memory and the catalog is not shared.
func SetupIntegrationServices(t *testing.T, cfg IntegrationTestConfig) Services {
	t.Helper()
	logger := zaptest.NewLogger(t)
	loc := config.LoadLocation("")

	backend, err := client.New(client.Config{BaseURL: cfg.BackendURL, Timeout: 15 * time.Second, RetryAttempts: 2})
	if err != nil {
		t.Fatalf("client.New() error = %v", err)
	}
	t.Cleanup(func() {
		if tr, ok := http.DefaultTransport.(*http.Transport); ok {
			tr.CloseIdleConnections()
		}
	})

	var (
		weatherCache cache.Cache[*models.MidWeatherResponse] = cache.NewInMemoryCache[*models.MidWeatherResponse]()
		catalogCache cache.Cache[service.CatalogSnapshot]
	)
	if cfg.CacheBackend == "memcached" {
		mc := cache.NewMemcachedClient(cfg.MemcachedAddr, 500*time.Millisecond, 2)
		if err := mc.Ping(); err == nil {
			weatherCache = cache.NewMemcachedCache[*models.MidWeatherResponse](mc, cache.WeatherPrefix)
			catalogCache = cache.NewMemcachedCache[service.CatalogSnapshot](mc, cache.CatalogPrefix)
			t.Cleanup(func() { _ = mc.Close() })
			t.Logf("Using Memcached cache at %s", cfg.MemcachedAddr)
		} else {
			t.Logf("Memcached not available (%v), using in-memory cache", err)
		}
	}

	builder := catalog.NewBuilder(backend, catalog.BuilderConfig{Limit: 3, Location: loc}, logger)
	return Services{
		Backend: backend,
		Weather: service.NewWeatherService(backend, weatherCache, service.WeatherConfig{TTL: 5 * time.Minute, Location: loc}, logger),
		Catalog: service.NewCatalogService(builder, catalogCache, time.Hour, nil, logger),
		Builder: builder,
	}
}
