package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kjstillabower/certexam-service/internal/fields"
	"github.com/kjstillabower/certexam-service/internal/region"
)

// Config holds service configuration loaded from YAML and env.
type Config struct {
	ServerPort string

	BackendURL     string
	BackendTimeout time.Duration
	BackendRPS     float64 // outbound limiter; 0 disables
	BackendBurst   int

	RequestTimeout time.Duration
	CacheTTL       time.Duration
	CacheBackend   string // "in_memory" or "memcached"

	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int

	RetryAttempts  int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	RateLimitRPS   int
	RateLimitBurst int

	CircuitBreakerEnabled          bool
	CircuitBreakerFailureThreshold int
	CircuitBreakerSuccessThreshold int
	CircuitBreakerTimeout          time.Duration

	ShutdownTimeout               time.Duration
	ShutdownInFlightTimeout       time.Duration
	ShutdownInFlightCheckInterval time.Duration

	DegradedWindow       time.Duration
	DegradedErrorPct     int
	DegradedRetryInitial time.Duration
	DegradedRetryMax     time.Duration
	// ShutdownOnRecoveryExhausted stops the process when recovery probes give
	// up. Off by default: the service keeps serving stale data and 503s.
	ShutdownOnRecoveryExhausted bool

	Location      *time.Location
	DefaultRegion region.Region
	WarmRegions   []region.Region
	WarmInterval  time.Duration

	CatalogKeywords []string
	CatalogLimit    int
	CatalogRefresh  time.Duration
	UpcomingLimit   int

	Schema fields.Schema
}

type fileConfig struct {
	Server struct {
		Port     string `yaml:"port"`
		Timezone string `yaml:"timezone"`
	} `yaml:"server"`

	Backend struct {
		URL     string  `yaml:"url"`
		Timeout string  `yaml:"timeout"`
		RPS     float64 `yaml:"rps"`
		Burst   int     `yaml:"burst"`
	} `yaml:"backend"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	Cache struct {
		Backend   string `yaml:"backend"`
		TTL       string `yaml:"ttl"`
		Memcached struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
	} `yaml:"cache"`

	Reliability struct {
		RetryMaxAttempts int    `yaml:"retry_max_attempts"`
		RetryBaseDelay   string `yaml:"retry_base_delay"`
		RetryMaxDelay    string `yaml:"retry_max_delay"`
		RateLimitRPS     int    `yaml:"rate_limit_rps"`
		RateLimitBurst   int    `yaml:"rate_limit_burst"`
		CircuitBreaker   struct {
			Enabled          *bool  `yaml:"enabled"`
			FailureThreshold int    `yaml:"failure_threshold"`
			SuccessThreshold int    `yaml:"success_threshold"`
			Timeout          string `yaml:"timeout"`
		} `yaml:"circuit_breaker"`
	} `yaml:"reliability"`

	Shutdown struct {
		Timeout               string `yaml:"timeout"`
		InFlightTimeout       string `yaml:"in_flight_timeout"`
		InFlightCheckInterval string `yaml:"in_flight_check_interval"`
	} `yaml:"shutdown"`

	Health struct {
		DegradedWindow       string `yaml:"degraded_window"`
		DegradedErrorPct     int    `yaml:"degraded_error_pct"`
		DegradedRetryInitial string `yaml:"degraded_retry_initial"`
		DegradedRetryMax     string `yaml:"degraded_retry_max"`
		ShutdownOnExhausted  bool   `yaml:"shutdown_on_recovery_exhausted"`
	} `yaml:"health"`

	Regions struct {
		Default      string   `yaml:"default"`
		Warm         []string `yaml:"warm"`
		WarmInterval string   `yaml:"warm_interval"`
	} `yaml:"regions"`

	Catalog struct {
		Keywords      []string `yaml:"keywords"`
		Limit         int      `yaml:"limit"`
		Refresh       string   `yaml:"refresh"`
		UpcomingLimit int      `yaml:"upcoming_limit"`
	} `yaml:"catalog"`

	Schema fields.Schema `yaml:"schema"`
}

var defaultKeywords = []string{"사", "기", "자", "전", "설"}

// Load reads configuration from config/{ENV_NAME}.yaml (default dev) under the
// working directory. Call from project root.
func Load() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	return LoadFrom(filepath.Join(cwd, "config"))
}

// LoadFrom reads {ENV_NAME}.yaml from dir and applies env overrides
// (BACKEND_URL, SERVER_PORT, CACHE_BACKEND, MEMCACHED_ADDRS).
func LoadFrom(dir string) (*Config, error) {
	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}

	configPath := filepath.Join(dir, env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg := &Config{}

	cfg.ServerPort = firstNonEmpty(os.Getenv("SERVER_PORT"), fc.Server.Port, "8080")
	cfg.Location = LoadLocation(fc.Server.Timezone)

	cfg.BackendURL = strings.TrimRight(firstNonEmpty(os.Getenv("BACKEND_URL"), fc.Backend.URL, "http://localhost:8000"), "/")
	cfg.BackendTimeout = parseDurationOrZero(fc.Backend.Timeout, 10*time.Second)
	cfg.BackendRPS = fc.Backend.RPS
	cfg.BackendBurst = fc.Backend.Burst
	if cfg.BackendRPS > 0 && cfg.BackendBurst <= 0 {
		cfg.BackendBurst = 1
	}

	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 30*time.Second)
	cfg.CacheTTL = parseDuration(fc.Cache.TTL, 30*time.Minute)
	cfg.CacheBackend = strings.TrimSpace(strings.ToLower(os.Getenv("CACHE_BACKEND")))
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = strings.TrimSpace(strings.ToLower(fc.Cache.Backend))
	}
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = "in_memory"
	}
	cfg.MemcachedAddrs = firstNonEmpty(strings.TrimSpace(os.Getenv("MEMCACHED_ADDRS")), strings.TrimSpace(fc.Cache.Memcached.Addrs), "localhost:11211")
	cfg.MemcachedTimeout = parseDuration(fc.Cache.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = fc.Cache.Memcached.MaxIdleConns
	if cfg.MemcachedMaxIdleConns <= 0 {
		cfg.MemcachedMaxIdleConns = 2
	}

	cfg.RetryAttempts = fc.Reliability.RetryMaxAttempts
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 3
	}
	cfg.RetryBaseDelay = parseDuration(fc.Reliability.RetryBaseDelay, 100*time.Millisecond)
	cfg.RetryMaxDelay = parseDuration(fc.Reliability.RetryMaxDelay, 2*time.Second)
	cfg.RateLimitRPS = fc.Reliability.RateLimitRPS
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 50
	}
	cfg.RateLimitBurst = fc.Reliability.RateLimitBurst
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 100
	}
	cb := fc.Reliability.CircuitBreaker
	cfg.CircuitBreakerEnabled = cb.Enabled == nil || *cb.Enabled
	cfg.CircuitBreakerFailureThreshold = cb.FailureThreshold
	if cfg.CircuitBreakerFailureThreshold <= 0 {
		cfg.CircuitBreakerFailureThreshold = 5
	}
	cfg.CircuitBreakerSuccessThreshold = cb.SuccessThreshold
	if cfg.CircuitBreakerSuccessThreshold <= 0 {
		cfg.CircuitBreakerSuccessThreshold = 2
	}
	cfg.CircuitBreakerTimeout = parseDuration(cb.Timeout, 30*time.Second)

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)
	cfg.ShutdownInFlightTimeout = parseDuration(fc.Shutdown.InFlightTimeout, 10*time.Second)
	cfg.ShutdownInFlightCheckInterval = parseDuration(fc.Shutdown.InFlightCheckInterval, 100*time.Millisecond)

	cfg.DegradedWindow = parseDuration(fc.Health.DegradedWindow, 60*time.Second)
	cfg.DegradedErrorPct = fc.Health.DegradedErrorPct
	if cfg.DegradedErrorPct <= 0 {
		cfg.DegradedErrorPct = 50
	}
	cfg.DegradedRetryInitial = parseDuration(fc.Health.DegradedRetryInitial, time.Minute)
	cfg.DegradedRetryMax = parseDuration(fc.Health.DegradedRetryMax, 13*time.Minute)
	cfg.ShutdownOnRecoveryExhausted = fc.Health.ShutdownOnExhausted

	cfg.DefaultRegion = region.Capital
	if fc.Regions.Default != "" {
		r, err := region.Parse(fc.Regions.Default)
		if err != nil {
			return nil, fmt.Errorf("regions.default: %w", err)
		}
		cfg.DefaultRegion = r
	}
	for _, name := range fc.Regions.Warm {
		r, err := region.Parse(name)
		if err != nil {
			return nil, fmt.Errorf("regions.warm: %w", err)
		}
		cfg.WarmRegions = append(cfg.WarmRegions, r)
	}
	cfg.WarmInterval = parseDurationOrZero(fc.Regions.WarmInterval, 0)

	cfg.CatalogKeywords = fc.Catalog.Keywords
	if len(cfg.CatalogKeywords) == 0 {
		cfg.CatalogKeywords = append([]string(nil), defaultKeywords...)
	}
	cfg.CatalogLimit = fc.Catalog.Limit
	if cfg.CatalogLimit <= 0 {
		cfg.CatalogLimit = 15
	}
	cfg.CatalogRefresh = parseDuration(fc.Catalog.Refresh, 1*time.Hour)
	cfg.UpcomingLimit = fc.Catalog.UpcomingLimit
	if cfg.UpcomingLimit <= 0 {
		cfg.UpcomingLimit = 6
	}

	cfg.Schema = fc.Schema.WithDefaults()

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadLocation resolves the zone used for "today". Falls back to a fixed KST
// offset when tzdata is unavailable.
func LoadLocation(name string) *time.Location {
	if name == "" {
		name = "Asia/Seoul"
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.FixedZone("KST", 9*60*60)
	}
	return loc
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty string or parse error.
// Returns zero or negative durations as-is (caller should handle fallback).
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// validate performs post-load validation of configuration values.
// RequestTimeout is raised above BackendTimeout when needed.
func validate(cfg *Config) error {
	if cfg.BackendTimeout <= 0 {
		return fmt.Errorf("backend.timeout must be positive")
	}
	if !strings.HasPrefix(cfg.BackendURL, "http://") && !strings.HasPrefix(cfg.BackendURL, "https://") {
		return fmt.Errorf("backend.url must be an http(s) URL, got %q", cfg.BackendURL)
	}
	if cfg.RequestTimeout <= cfg.BackendTimeout {
		cfg.RequestTimeout = cfg.BackendTimeout + time.Second
	}
	switch cfg.CacheBackend {
	case "in_memory", "memcached":
		// valid
	default:
		return fmt.Errorf("cache.backend must be in_memory or memcached, got %q", cfg.CacheBackend)
	}
	if cfg.DegradedRetryMax < cfg.DegradedRetryInitial {
		return fmt.Errorf("health.degraded_retry_max must be >= degraded_retry_initial")
	}
	if cfg.DegradedErrorPct > 100 {
		return fmt.Errorf("health.degraded_error_pct must be <= 100, got %d", cfg.DegradedErrorPct)
	}
	return nil
}
