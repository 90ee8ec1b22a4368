package catalog

import (
	"context"
	"fmt"
	"sync"

	"github.com/kjstillabower/certexam-service/internal/client"
	"github.com/kjstillabower/certexam-service/internal/fields"
	"github.com/kjstillabower/certexam-service/internal/models"
	"github.com/kjstillabower/certexam-service/internal/region"
)

// fakeBackend serves canned records; a key present in fail returns an upstream error.
type fakeBackend struct {
	mu        sync.Mutex
	search    map[string][]models.LicenseSearchResult
	schedules map[string][]fields.Record // key "name/year"
	fees      map[string][]fields.Record
	sites     map[string][]fields.Record
	regions   []string
	terminals map[string][]fields.Record
	fail      map[string]bool
	calls     []string
}

var _ client.Backend = (*fakeBackend)(nil)

func (f *fakeBackend) record(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, key)
	if f.fail[key] {
		return fmt.Errorf("%w: HTTP 502", client.ErrUpstreamFailure)
	}
	return nil
}

func (f *fakeBackend) SearchLicenses(_ context.Context, q string) ([]models.LicenseSearchResult, error) {
	if err := f.record("search/" + q); err != nil {
		return nil, err
	}
	return f.search[q], nil
}

func (f *fakeBackend) Schedules(_ context.Context, name string, year int) ([]fields.Record, error) {
	key := fmt.Sprintf("%s/%d", name, year)
	if err := f.record("schedule/" + key); err != nil {
		return nil, err
	}
	return f.schedules[key], nil
}

func (f *fakeBackend) Fees(_ context.Context, name string) ([]fields.Record, error) {
	if err := f.record("fee/" + name); err != nil {
		return nil, err
	}
	return f.fees[name], nil
}

func (f *fakeBackend) Sites(_ context.Context, name string) ([]fields.Record, error) {
	if err := f.record("sites/" + name); err != nil {
		return nil, err
	}
	return f.sites[name], nil
}

func (f *fakeBackend) TerminalRegions(context.Context) ([]string, error) {
	if err := f.record("regions"); err != nil {
		return nil, err
	}
	return f.regions, nil
}

func (f *fakeBackend) TerminalsByRegion(_ context.Context, sido string) ([]fields.Record, error) {
	if err := f.record("terminals/" + sido); err != nil {
		return nil, err
	}
	return f.terminals[sido], nil
}

func (f *fakeBackend) MidWeather(context.Context, region.Region) (*models.MidWeatherResponse, error) {
	return nil, client.ErrNotFound
}

func (f *fakeBackend) Ping(context.Context) error { return nil }
