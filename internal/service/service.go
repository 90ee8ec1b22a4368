// Package service composes the backend client, caches and normalizers into
// the operations the HTTP layer serves.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/kjstillabower/certexam-service/internal/cache"
	"github.com/kjstillabower/certexam-service/internal/models"
	"github.com/kjstillabower/certexam-service/internal/observability"
	"github.com/kjstillabower/certexam-service/internal/region"
	"github.com/kjstillabower/certexam-service/internal/weather"
)

// WeatherBackend is the part of client.Backend the weather service needs.
type WeatherBackend interface {
	MidWeather(ctx context.Context, r region.Region) (*models.MidWeatherResponse, error)
}

// PayloadSource returns the raw mid-term payload for a region.
type PayloadSource interface {
	Payload(ctx context.Context, r region.Region) (*models.MidWeatherResponse, error)
}

// WeatherService serves region payloads using cache-aside with the backend
// as the source of truth. Concurrent misses for one region share a fetch.
type WeatherService struct {
	backend WeatherBackend
	cache   cache.Cache[*models.MidWeatherResponse]
	cfg     WeatherConfig
	logger  *zap.Logger
	group   singleflight.Group
}

// WeatherConfig controls payload caching.
type WeatherConfig struct {
	// TTL is an upper bound; entries also expire at the next forecast issue time.
	TTL time.Duration
	// Location is the zone forecast issue times are computed in.
	Location *time.Location
	Clock    clockwork.Clock
}

// NewWeatherService creates a WeatherService.
func NewWeatherService(backend WeatherBackend, c cache.Cache[*models.MidWeatherResponse], cfg WeatherConfig, logger *zap.Logger) *WeatherService {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WeatherService{backend: backend, cache: c, cfg: cfg, logger: logger}
}

// Payload returns the mid-term payload for r, from cache when possible.
// Cache failures are logged and counted, never returned.
func (s *WeatherService) Payload(ctx context.Context, r region.Region) (*models.MidWeatherResponse, error) {
	observability.RecordWeatherQuery(r)
	logger := observability.LoggerFrom(ctx, s.logger)
	key := string(r)

	cached, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		observability.CacheErrorsTotal.WithLabelValues("get").Inc()
		logger.Warn("weather cache get failed", zap.String("region", key), zap.Error(err))
	} else if ok {
		observability.CacheHitsTotal.WithLabelValues("weather").Inc()
		logger.Debug("cache hit", zap.String("region", key))
		return cached, nil
	}
	observability.CacheMissesTotal.WithLabelValues("weather").Inc()

	ch := s.group.DoChan(key, func() (any, error) {
		// The shared fetch outlives any single caller.
		fetchCtx := context.WithoutCancel(ctx)
		payload, err := s.backend.MidWeather(fetchCtx, r)
		if err != nil {
			return nil, err
		}
		ttl := weather.TTLUntilNextIssue(s.cfg.Clock.Now().In(s.cfg.Location), s.cfg.TTL)
		if setErr := s.cache.Set(fetchCtx, key, payload, ttl); setErr != nil {
			observability.CacheErrorsTotal.WithLabelValues("set").Inc()
			logger.Warn("weather cache set failed", zap.String("region", key), zap.Error(setErr))
		}
		return payload, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, fmt.Errorf("fetch weather for %s: %w", key, res.Err)
		}
		if res.Shared {
			logger.Debug("weather fetch shared", zap.String("region", key))
		}
		return res.Val.(*models.MidWeatherResponse), nil
	}
}
