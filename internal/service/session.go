package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kjstillabower/certexam-service/internal/models"
	"github.com/kjstillabower/certexam-service/internal/observability"
	"github.com/kjstillabower/certexam-service/internal/region"
	"github.com/kjstillabower/certexam-service/internal/weather"
)

// sessionConcurrency bounds parallel region fetches per session.
const sessionConcurrency = 4

// Session holds the region payloads fetched for one view. Each region is
// fetched at most once; a failed fetch is remembered as a nil payload.
type Session struct {
	source PayloadSource
	loc    *time.Location
	logger *zap.Logger

	mu       sync.RWMutex
	payloads map[region.Region]*models.MidWeatherResponse
}

// NewSession creates an empty session. loc is the zone calendar dates are
// interpreted in.
func NewSession(source PayloadSource, loc *time.Location, logger *zap.Logger) *Session {
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		source:   source,
		loc:      loc,
		logger:   logger,
		payloads: make(map[region.Region]*models.MidWeatherResponse),
	}
}

// Load fetches every distinct region not yet in the session. Fetch failures
// are logged and stored as nil. If ctx is cancelled before a fetch returns,
// its result is discarded and Load returns ctx.Err().
func (s *Session) Load(ctx context.Context, regions []region.Region) error {
	logger := observability.LoggerFrom(ctx, s.logger)

	var g errgroup.Group
	g.SetLimit(sessionConcurrency)
	seen := make(map[region.Region]struct{}, len(regions))
	for _, r := range regions {
		if _, dup := seen[r]; dup || r == "" {
			continue
		}
		seen[r] = struct{}{}
		if s.Loaded(r) {
			continue
		}
		r := r
		g.Go(func() error {
			payload, err := s.source.Payload(ctx, r)
			if ctx.Err() != nil {
				observability.SessionLoadsTotal.WithLabelValues("cancelled").Inc()
				return nil
			}
			if err != nil {
				observability.SessionLoadsTotal.WithLabelValues("missing").Inc()
				logger.Warn("region weather unavailable", zap.String("region", string(r)), zap.Error(err))
				payload = nil
			} else {
				observability.SessionLoadsTotal.WithLabelValues("ok").Inc()
			}
			s.mu.Lock()
			s.payloads[r] = payload
			s.mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return ctx.Err()
}

// Loaded reports whether a fetch for r has completed, successfully or not.
func (s *Session) Loaded(r region.Region) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.payloads[r]
	return ok
}

// Payload returns the stored payload for r, nil if missing or failed.
func (s *Session) Payload(r region.Region) *models.MidWeatherResponse {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.payloads[r]
}

// Snapshot reduces the stored payload for r.
func (s *Session) Snapshot(r region.Region) *models.RegionWeatherSnapshot {
	return weather.Summarize(s.Payload(r))
}

// ForecastFor returns the forecast for date in region r, nil when out of range.
func (s *Session) ForecastFor(r region.Region, date time.Time) *models.RegionForecast {
	return weather.ForecastForDate(s.Payload(r), date.In(s.loc))
}

// Best returns the date forecast when available, else the region snapshot.
// A zero date skips the forecast lookup.
func (s *Session) Best(r region.Region, date time.Time) *models.RegionWeatherSnapshot {
	if !date.IsZero() {
		if f := s.ForecastFor(r, date); f != nil {
			return &f.RegionWeatherSnapshot
		}
	}
	return s.Snapshot(r)
}
