package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kjstillabower/certexam-service/internal/client"
	"github.com/kjstillabower/certexam-service/internal/fields"
	"github.com/kjstillabower/certexam-service/internal/models"
)

// ErrNotFound is returned by ByName when the backend has no schedule for the name.
var ErrNotFound = errors.New("certification not found")

// detailConcurrency bounds per-license fetches during a sweep.
const detailConcurrency = 4

// Builder fetches raw records from the backend and assembles catalog models.
// Individual call failures are logged and skipped; only failures that leave
// nothing to build are returned.
type Builder struct {
	backend  client.Backend
	schema   fields.Schema
	keywords []string
	limit    int
	loc      *time.Location
	now      func() time.Time
	logger   *zap.Logger
}

// BuilderConfig configures a Builder. Zero values take defaults.
type BuilderConfig struct {
	Schema   fields.Schema
	Keywords []string
	Limit    int
	Location *time.Location
	Now      func() time.Time
}

// NewBuilder returns a Builder over backend.
func NewBuilder(backend client.Backend, cfg BuilderConfig, logger *zap.Logger) *Builder {
	if len(cfg.Keywords) == 0 {
		cfg.Keywords = []string{"사", "기", "자", "전", "설"}
	}
	if cfg.Limit <= 0 {
		cfg.Limit = 15
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{
		backend:  backend,
		schema:   cfg.Schema.WithDefaults(),
		keywords: cfg.Keywords,
		limit:    cfg.Limit,
		loc:      cfg.Location,
		now:      cfg.Now,
		logger:   logger,
	}
}

// CollectLicenses runs the keyword sweep and returns up to limit licenses,
// unique by URI, in discovery order.
func (b *Builder) CollectLicenses(ctx context.Context) ([]models.LicenseSearchResult, error) {
	seen := make(map[string]struct{})
	var out []models.LicenseSearchResult
	var failures int
	var lastErr error

	for _, kw := range b.keywords {
		results, err := b.backend.SearchLicenses(ctx, kw)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			failures++
			lastErr = err
			b.logger.Warn("license search failed", zap.String("keyword", kw), zap.Error(err))
			continue
		}
		for _, r := range results {
			if _, dup := seen[r.URI]; dup {
				continue
			}
			seen[r.URI] = struct{}{}
			out = append(out, r)
		}
		if len(out) >= b.limit {
			break
		}
	}

	if failures == len(b.keywords) && lastErr != nil {
		return nil, fmt.Errorf("license search failed for every keyword: %w", lastErr)
	}
	if len(out) > b.limit {
		out = out[:b.limit]
	}
	return out, nil
}

// Certifications builds the home catalog. Licenses with no usable schedule
// are left out.
func (b *Builder) Certifications(ctx context.Context) ([]models.Certification, error) {
	licenses, err := b.CollectLicenses(ctx)
	if err != nil {
		return nil, err
	}

	built := make([]*models.Certification, len(licenses))
	fetchErrs := make([]error, len(licenses))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(detailConcurrency)
	for i, lic := range licenses {
		i, lic := i, lic
		g.Go(func() error {
			cert, ok, err := b.build(gctx, lic)
			if ok {
				built[i] = &cert
			}
			fetchErrs[i] = err
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	certs := make([]models.Certification, 0, len(built))
	var failed int
	var lastErr error
	for i, c := range built {
		if c != nil {
			certs = append(certs, *c)
		}
		if fetchErrs[i] != nil {
			failed++
			lastErr = fetchErrs[i]
		}
	}
	// Every fetch failing is an outage, not an empty catalog.
	if len(certs) == 0 && failed > 0 {
		return nil, fmt.Errorf("%w: schedules failed for %d of %d licenses: %w",
			client.ErrUpstreamFailure, failed, len(licenses), lastErr)
	}
	return certs, nil
}

// ByName builds a single certification by its exact label. The search hit,
// when one matches, supplies the URI and description.
func (b *Builder) ByName(ctx context.Context, name string) (models.Certification, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.Certification{}, ErrNotFound
	}
	license := models.LicenseSearchResult{Label: name}
	if hits, err := b.backend.SearchLicenses(ctx, name); err == nil {
		for _, h := range hits {
			if h.Label == name {
				license = h
				break
			}
		}
	} else {
		b.logger.Debug("license lookup failed", zap.String("name", name), zap.Error(err))
	}

	cert, ok, err := b.build(ctx, license)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return models.Certification{}, ctxErr
	}
	if err != nil {
		return models.Certification{}, fmt.Errorf("schedules for %s: %w", name, err)
	}
	if !ok {
		return models.Certification{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return cert, nil
}

// Search proxies a keyword search. Blank queries return no results without
// calling the backend.
func (b *Builder) Search(ctx context.Context, query string) ([]models.LicenseSearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []models.LicenseSearchResult{}, nil
	}
	results, err := b.backend.SearchLicenses(ctx, query)
	if err != nil {
		return nil, err
	}
	if results == nil {
		results = []models.LicenseSearchResult{}
	}
	return results, nil
}

// build fetches schedules for this year and next, fees and sites for one license.
// err is set only when every schedule fetch failed.
func (b *Builder) build(ctx context.Context, lic models.LicenseSearchResult) (models.Certification, bool, error) {
	log := b.logger.With(zap.String("license", lic.Label))
	year := b.now().In(b.loc).Year()

	var schedules []fields.Record
	years := []int{year, year + 1}
	var failures int
	var lastErr error
	for _, y := range years {
		items, err := b.backend.Schedules(ctx, lic.Label, y)
		if err != nil {
			log.Warn("schedule fetch failed", zap.Int("year", y), zap.Error(err))
			failures++
			lastErr = err
			continue
		}
		schedules = append(schedules, items...)
	}
	if failures == len(years) {
		return models.Certification{}, false, lastErr
	}
	if len(schedules) == 0 {
		return models.Certification{}, false, nil
	}

	feeItems, err := b.backend.Fees(ctx, lic.Label)
	if err != nil {
		log.Warn("fee fetch failed", zap.Error(err))
	}
	siteItems, err := b.backend.Sites(ctx, lic.Label)
	if err != nil {
		log.Warn("site fetch failed", zap.Error(err))
	}

	fees := ExtractFees(feeItems, b.schema)
	locations := MapLocations(siteItems, b.schema)
	rounds := MapRounds(schedules, fees, locations, b.loc)
	cert, ok := BuildCertification(lic, schedules, rounds)
	return cert, ok, nil
}

// Terminals lists every terminal region and then the terminals in each.
// A failed region is skipped; a failed region list returns an empty slice
// and the error.
func (b *Builder) Terminals(ctx context.Context) ([]models.Terminal, error) {
	regions, err := b.backend.TerminalRegions(ctx)
	if err != nil {
		b.logger.Error("terminal regions fetch failed", zap.Error(err))
		return []models.Terminal{}, fmt.Errorf("terminal regions: %w", err)
	}

	terminals := []models.Terminal{}
	for _, sido := range regions {
		items, err := b.backend.TerminalsByRegion(ctx, sido)
		if err != nil {
			if ctx.Err() != nil {
				return terminals, ctx.Err()
			}
			b.logger.Warn("terminal fetch failed", zap.String("sido", sido), zap.Error(err))
			continue
		}
		for _, item := range items {
			terminals = append(terminals, MapTerminal(item))
		}
	}
	return terminals, nil
}
