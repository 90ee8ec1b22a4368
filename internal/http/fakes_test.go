package http

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/kjstillabower/certexam-service/internal/catalog"
	"github.com/kjstillabower/certexam-service/internal/models"
	"github.com/kjstillabower/certexam-service/internal/region"
	"github.com/kjstillabower/certexam-service/internal/service"
)

var kst = time.FixedZone("KST", 9*60*60)

// 2025-01-10 09:00 KST.
var fixedNow = time.Date(2025, 1, 10, 9, 0, 0, 0, kst)

var certID = catalog.EncodeID("http://example.org/license/1")

type fakeCatalog struct {
	snap  service.CatalogSnapshot
	stale bool
	err   error
}

func (f *fakeCatalog) Snapshot(ctx context.Context) (service.CatalogSnapshot, bool, error) {
	if f.err != nil {
		return service.CatalogSnapshot{}, false, f.err
	}
	return f.snap, f.stale, nil
}

func (f *fakeCatalog) Stale() bool { return f.stale }

type fakeSearcher struct {
	hits  []models.LicenseSearchResult
	err   error
	calls int
}

func (f *fakeSearcher) Search(ctx context.Context, query string) ([]models.LicenseSearchResult, error) {
	f.calls++
	return f.hits, f.err
}

type fakeWeather struct {
	mu       sync.Mutex
	payloads map[region.Region]*models.MidWeatherResponse
	calls    []region.Region
}

func (f *fakeWeather) Payload(ctx context.Context, r region.Region) (*models.MidWeatherResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, r)
	if p, ok := f.payloads[r]; ok {
		return p, nil
	}
	return nil, errors.New("weather backend down")
}

func weatherFixture(r region.Region) *models.MidWeatherResponse {
	return &models.MidWeatherResponse{
		Region:  string(r),
		TmFc:    "202501150600",
		HasData: true,
		Summary: &models.WeatherSummary{
			Temp: &models.TempRange{Min: -3, Max: 5},
			PM:   &models.HalfDay{Weather: "맑음", RainProb: 10},
		},
		LandRaw: map[string]any{"wf3Pm": "비", "rnSt3Pm": 70},
		TempRaw: map[string]any{"taMin3": 1, "taMax3": 8},
	}
}

func intPtr(v int) *int { return &v }

func catalogFixture() service.CatalogSnapshot {
	return service.CatalogSnapshot{
		Certifications: []models.Certification{
			{
				ID:       certID,
				Name:     "정보처리기사",
				Category: "IT",
				Agency:   "한국산업인력공단",
				Exams: []models.ExamRound{
					{
						Round:        "2025년 2회",
						WrittenExam:  "2025-05-10",
						WrittenFee:   20000,
						PracticalFee: intPtr(22600),
						Locations:    []models.ExamLocation{{Name: "부산시험장", Address: "부산광역시 해운대구"}},
					},
					{
						Round:        "2025년 1회",
						WrittenExam:  "2025-01-18",
						WrittenFee:   19400,
						PracticalFee: intPtr(22600),
						Locations: []models.ExamLocation{
							{Name: "서울시험장", Address: "서울특별시 마포구"},
							{Name: "부산시험장", Address: "부산광역시 해운대구"},
						},
					},
				},
			},
			{
				ID:       "한국사",
				Name:     "한국사능력검정",
				Category: "역사",
				Exams:    []models.ExamRound{{Round: "상시", WrittenExam: models.NoFixedDate}},
			},
		},
		Terminals: []models.Terminal{
			{ID: "t1", Name: "동서울종합터미널", Type: models.TerminalType, Address: "서울특별시 광진구"},
			{ID: "t2", Name: "제주시외버스터미널", Type: models.TerminalType, Address: "제주특별자치도 제주시"},
		},
		FetchedAt: fixedNow,
	}
}

type testDeps struct {
	catalog  *fakeCatalog
	searcher *fakeSearcher
	weather  *fakeWeather
	health   *HealthConfig
	logger   *zap.Logger
}

func newTestDeps() *testDeps {
	return &testDeps{
		catalog:  &fakeCatalog{snap: catalogFixture()},
		searcher: &fakeSearcher{},
		weather: &fakeWeather{payloads: map[region.Region]*models.MidWeatherResponse{
			region.Capital: weatherFixture(region.Capital),
			region.Jeju:    weatherFixture(region.Jeju),
		}},
		logger: zap.NewNop(),
	}
}

func (d *testDeps) handler() *Handler {
	return NewHandler(d.catalog, d.searcher, d.weather, Config{
		Location:      kst,
		DefaultRegion: region.Capital,
		UpcomingLimit: 6,
		Clock:         clockwork.NewFakeClockAt(fixedNow),
	}, d.health, d.logger)
}
