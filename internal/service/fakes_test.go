package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/kjstillabower/certexam-service/internal/client"
	"github.com/kjstillabower/certexam-service/internal/fields"
	"github.com/kjstillabower/certexam-service/internal/models"
	"github.com/kjstillabower/certexam-service/internal/region"
)

var kst = time.FixedZone("KST", 9*60*60)

// fakeWeather serves canned payloads. When release is non-nil every call
// blocks until it is closed or ctx is done.
type fakeWeather struct {
	mu       sync.Mutex
	payloads map[region.Region]*models.MidWeatherResponse
	fail     map[region.Region]error
	calls    []region.Region
	release  chan struct{}
}

func (f *fakeWeather) fetch(ctx context.Context, r region.Region) (*models.MidWeatherResponse, error) {
	f.mu.Lock()
	f.calls = append(f.calls, r)
	release := f.release
	f.mu.Unlock()

	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail[r]; err != nil {
		return nil, err
	}
	if p, ok := f.payloads[r]; ok {
		return p, nil
	}
	return nil, errors.New("no payload")
}

func (f *fakeWeather) MidWeather(ctx context.Context, r region.Region) (*models.MidWeatherResponse, error) {
	return f.fetch(ctx, r)
}

func (f *fakeWeather) Payload(ctx context.Context, r region.Region) (*models.MidWeatherResponse, error) {
	return f.fetch(ctx, r)
}

func (f *fakeWeather) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// errCache fails every operation.
type errCache[T any] struct{}

func (errCache[T]) Get(ctx context.Context, key string) (T, bool, error) {
	var zero T
	return zero, false, errors.New("cache down")
}

func (errCache[T]) Set(ctx context.Context, key string, value T, ttl time.Duration) error {
	return errors.New("cache down")
}

// payloadFixture was issued 2025-01-15 06:00 with summary and day 3/4/9 data.
func payloadFixture(r region.Region) *models.MidWeatherResponse {
	return &models.MidWeatherResponse{
		Region:  string(r),
		TmFc:    "202501150600",
		HasData: true,
		Summary: &models.WeatherSummary{
			Temp: &models.TempRange{Min: "-3", Max: 5},
			AM:   &models.HalfDay{Weather: "흐림", RainProb: 30},
			PM:   &models.HalfDay{Weather: "맑음", RainProb: "10"},
		},
		LandRaw: map[string]any{
			"wf3Pm": "비", "rnSt3Pm": 70,
			"wf4Am": "눈", "rnSt4Am": "60",
			"wf9": "흐림", "rnSt9": 40,
		},
		TempRaw: map[string]any{
			"taMin3": 1, "taMax3": 8,
			"taMin9": "-2", "taMax9": "4",
		},
	}
}

type fakeCatalogSource struct {
	mu       sync.Mutex
	certs    []models.Certification
	terms    []models.Terminal
	certErr  error
	termErr  error
	certCall int
}

func (f *fakeCatalogSource) Certifications(ctx context.Context) ([]models.Certification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.certCall++
	if f.certErr != nil {
		return nil, f.certErr
	}
	return f.certs, nil
}

func (f *fakeCatalogSource) Terminals(ctx context.Context) ([]models.Terminal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.termErr != nil {
		return []models.Terminal{}, f.termErr
	}
	return f.terms, nil
}

func (f *fakeCatalogSource) set(certErr, termErr error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.certErr, f.termErr = certErr, termErr
}

func (f *fakeCatalogSource) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.certCall
}

// scheduleBackend knows one license with one 2025 sitting. scheduleErr, when
// set, fails every schedule fetch.
type scheduleBackend struct {
	mu          sync.Mutex
	scheduleErr error
}

var _ client.Backend = (*scheduleBackend)(nil)

func (b *scheduleBackend) failSchedules(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.scheduleErr = err
}

func (b *scheduleBackend) SearchLicenses(context.Context, string) ([]models.LicenseSearchResult, error) {
	return []models.LicenseSearchResult{{URI: "u1", Label: "정보처리기사"}}, nil
}

func (b *scheduleBackend) Schedules(_ context.Context, name string, year int) ([]fields.Record, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.scheduleErr != nil {
		return nil, b.scheduleErr
	}
	if year != 2025 {
		return nil, nil
	}
	return []fields.Record{{"description": "1회", "docExamStartDt": "20250510"}}, nil
}

func (b *scheduleBackend) Fees(context.Context, string) ([]fields.Record, error)  { return nil, nil }
func (b *scheduleBackend) Sites(context.Context, string) ([]fields.Record, error) { return nil, nil }
func (b *scheduleBackend) TerminalRegions(context.Context) ([]string, error)      { return nil, nil }

func (b *scheduleBackend) TerminalsByRegion(context.Context, string) ([]fields.Record, error) {
	return nil, nil
}

func (b *scheduleBackend) MidWeather(context.Context, region.Region) (*models.MidWeatherResponse, error) {
	return nil, client.ErrNotFound
}

func (b *scheduleBackend) Ping(context.Context) error { return nil }
