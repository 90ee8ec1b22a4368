package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/kjstillabower/certexam-service/internal/cache"
	"github.com/kjstillabower/certexam-service/internal/models"
	"github.com/kjstillabower/certexam-service/internal/observability"
)

// ErrCatalogUnavailable is returned when no catalog has ever been built.
var ErrCatalogUnavailable = errors.New("catalog unavailable")

const catalogKey = "snapshot"

// CatalogSource builds certifications and terminals from the backend.
// Implemented by catalog.Builder.
type CatalogSource interface {
	Certifications(ctx context.Context) ([]models.Certification, error)
	Terminals(ctx context.Context) ([]models.Terminal, error)
}

// CatalogSnapshot is one build of the catalog.
type CatalogSnapshot struct {
	Certifications []models.Certification `json:"certifications"`
	Terminals      []models.Terminal      `json:"terminals"`
	FetchedAt      time.Time              `json:"fetchedAt"`
}

// CatalogService keeps the last good catalog and rebuilds it once older than
// the refresh interval. A failed rebuild keeps serving the previous snapshot
// and marks it stale.
type CatalogService struct {
	source  CatalogSource
	shared  cache.Cache[CatalogSnapshot]
	refresh time.Duration
	clock   clockwork.Clock
	logger  *zap.Logger
	group   singleflight.Group

	mu      sync.RWMutex
	current *CatalogSnapshot
	stale   bool

	readyOnce sync.Once
	readyCh   chan struct{}
}

// NewCatalogService creates a CatalogService. shared may be nil; when set,
// snapshots are read from and written to it so replicas reuse one build.
func NewCatalogService(source CatalogSource, shared cache.Cache[CatalogSnapshot], refresh time.Duration, clock clockwork.Clock, logger *zap.Logger) *CatalogService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CatalogService{
		source:  source,
		shared:  shared,
		refresh: refresh,
		clock:   clock,
		logger:  logger,
		readyCh: make(chan struct{}),
	}
}

// Snapshot returns the current catalog, rebuilding it when expired. stale is
// true when the returned snapshot is older than the refresh interval because
// the last rebuild failed.
func (s *CatalogService) Snapshot(ctx context.Context) (snap CatalogSnapshot, stale bool, err error) {
	if cur, ok := s.fresh(); ok {
		return cur, false, nil
	}
	if err := s.Refresh(ctx); err != nil {
		s.mu.RLock()
		defer s.mu.RUnlock()
		if s.current == nil {
			return CatalogSnapshot{}, false, fmt.Errorf("%w: %w", ErrCatalogUnavailable, err)
		}
		return *s.current, true, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return *s.current, s.stale, nil
}

// Ready reports whether a catalog has been loaded at least once.
func (s *CatalogService) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current != nil
}

// Stale reports whether the last rebuild failed.
func (s *CatalogService) Stale() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stale
}

func (s *CatalogService) fresh() (CatalogSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil || s.clock.Since(s.current.FetchedAt) >= s.refresh {
		return CatalogSnapshot{}, false
	}
	return *s.current, true
}

// Refresh rebuilds the catalog. Concurrent callers share one rebuild.
func (s *CatalogService) Refresh(ctx context.Context) error {
	ch := s.group.DoChan(catalogKey, func() (any, error) {
		return nil, s.rebuild(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-ch:
		return res.Err
	}
}

func (s *CatalogService) rebuild(ctx context.Context) error {
	logger := observability.LoggerFrom(ctx, s.logger)

	if snap, ok := s.fromShared(ctx, logger); ok {
		s.store(snap)
		observability.CatalogRefreshTotal.WithLabelValues("shared").Inc()
		return nil
	}

	start := s.clock.Now()
	certs, err := s.source.Certifications(ctx)
	if err != nil {
		observability.CatalogRefreshTotal.WithLabelValues("error").Inc()
		logger.Warn("catalog rebuild failed", zap.Error(err))
		s.mu.Lock()
		s.stale = s.current != nil
		s.mu.Unlock()
		return fmt.Errorf("build certifications: %w", err)
	}
	terms, err := s.source.Terminals(ctx)
	if err != nil {
		logger.Warn("terminal list unavailable", zap.Error(err))
		s.mu.RLock()
		if s.current != nil && len(terms) == 0 {
			terms = s.current.Terminals
		}
		s.mu.RUnlock()
	}

	snap := CatalogSnapshot{Certifications: certs, Terminals: terms, FetchedAt: s.clock.Now()}
	s.store(snap)
	observability.CatalogRefreshTotal.WithLabelValues("ok").Inc()
	logger.Info("catalog rebuilt",
		zap.Int("certifications", len(certs)),
		zap.Int("terminals", len(terms)),
		zap.Duration("duration", s.clock.Since(start)),
	)

	if s.shared != nil {
		if err := s.shared.Set(ctx, catalogKey, snap, s.refresh); err != nil {
			observability.CacheErrorsTotal.WithLabelValues("set").Inc()
			logger.Warn("catalog cache set failed", zap.Error(err))
		}
	}
	return nil
}

func (s *CatalogService) fromShared(ctx context.Context, logger *zap.Logger) (CatalogSnapshot, bool) {
	if s.shared == nil {
		return CatalogSnapshot{}, false
	}
	snap, ok, err := s.shared.Get(ctx, catalogKey)
	if err != nil {
		observability.CacheErrorsTotal.WithLabelValues("get").Inc()
		logger.Warn("catalog cache get failed", zap.Error(err))
		return CatalogSnapshot{}, false
	}
	if !ok || s.clock.Since(snap.FetchedAt) >= s.refresh {
		observability.CacheMissesTotal.WithLabelValues("catalog").Inc()
		return CatalogSnapshot{}, false
	}
	observability.CacheHitsTotal.WithLabelValues("catalog").Inc()
	return snap, true
}

func (s *CatalogService) store(snap CatalogSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = &snap
	s.stale = false
	observability.CatalogCertifications.Set(float64(len(snap.Certifications)))
	s.readyOnce.Do(func() { close(s.readyCh) })
}

// WaitReady blocks until the first snapshot is stored or ctx is done.
func (s *CatalogService) WaitReady(ctx context.Context) error {
	select {
	case <-s.readyCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RefreshPeriodic rebuilds the catalog at the refresh interval until ctx is
// done. The first rebuild runs immediately.
func (s *CatalogService) RefreshPeriodic(ctx context.Context) error {
	if err := s.Refresh(ctx); err != nil {
		s.logger.Warn("initial catalog build failed", zap.Error(err))
	}
	ticker := s.clock.NewTicker(s.refresh)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.Chan():
			if err := s.Refresh(ctx); err != nil {
				s.logger.Warn("catalog refresh failed", zap.Error(err))
			}
		}
	}
}
