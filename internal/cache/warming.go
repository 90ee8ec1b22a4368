package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/kjstillabower/certexam-service/internal/models"
	"github.com/kjstillabower/certexam-service/internal/observability"
	"github.com/kjstillabower/certexam-service/internal/region"
)

// PayloadFetcher is implemented by the service layer. Fetching through it
// populates the weather cache.
type PayloadFetcher interface {
	Payload(ctx context.Context, r region.Region) (*models.MidWeatherResponse, error)
}

// Warmer prefetches weather payloads for a fixed set of regions.
type Warmer struct {
	fetcher PayloadFetcher
	logger  *zap.Logger
	clock   clockwork.Clock
}

// NewWarmer creates a Warmer. A nil logger disables logging.
func NewWarmer(fetcher PayloadFetcher, logger *zap.Logger) *Warmer {
	return NewWarmerWithClock(fetcher, logger, clockwork.NewRealClock())
}

// NewWarmerWithClock is NewWarmer with an explicit clock for the refresh ticker.
func NewWarmerWithClock(fetcher PayloadFetcher, logger *zap.Logger, clock clockwork.Clock) *Warmer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Warmer{fetcher: fetcher, logger: logger, clock: clock}
}

// Warm fetches every region concurrently. Failures are joined into one error;
// the remaining regions are still warmed.
func (w *Warmer) Warm(ctx context.Context, regions []region.Region) error {
	start := w.clock.Now()
	observability.CacheWarmingTotal.Inc()
	w.logger.Info("warming cache", zap.Int("regions", len(regions)))

	var wg sync.WaitGroup
	errCh := make(chan error, len(regions))
	for _, r := range regions {
		wg.Add(1)
		r := r
		go func() {
			defer wg.Done()
			if _, err := w.fetcher.Payload(ctx, r); err != nil {
				errCh <- fmt.Errorf("warm %s: %w", r, err)
			}
		}()
	}
	wg.Wait()
	close(errCh)

	var errs []error
	for err := range errCh {
		errs = append(errs, err)
	}
	duration := w.clock.Since(start).Seconds()
	observability.CacheWarmingDurationSeconds.Observe(duration)
	w.logger.Info("cache warming complete",
		zap.Int("regions", len(regions)),
		zap.Int("errors", len(errs)),
		zap.Float64("duration_seconds", duration),
	)
	if len(errs) > 0 {
		observability.CacheWarmingErrorsTotal.Inc()
		return fmt.Errorf("cache warming: %w", errors.Join(errs...))
	}
	return nil
}

// WarmPeriodic runs an initial Warm, then refreshes at interval until ctx is done.
func (w *Warmer) WarmPeriodic(ctx context.Context, regions []region.Region, interval time.Duration) error {
	if err := w.Warm(ctx, regions); err != nil {
		w.logger.Warn("initial cache warm failed", zap.Error(err))
	}
	ticker := w.clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.Chan():
			if err := w.Warm(ctx, regions); err != nil {
				w.logger.Warn("periodic cache warm failed", zap.Error(err))
			}
		}
	}
}
