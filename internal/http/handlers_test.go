package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kjstillabower/certexam-service/internal/catalog"
	"github.com/kjstillabower/certexam-service/internal/degraded"
	"github.com/kjstillabower/certexam-service/internal/lifecycle"
	"github.com/kjstillabower/certexam-service/internal/models"
	"github.com/kjstillabower/certexam-service/internal/region"
)

func serve(t *testing.T, d *testDeps, target string) *httptest.ResponseRecorder {
	t.Helper()
	router := NewRouter(d.handler(), nil, 5*time.Second, d.logger)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), "body: %s", rec.Body.String())
}

type errorBody struct {
	Error struct {
		Code      string `json:"code"`
		Message   string `json:"message"`
		RequestID string `json:"requestId"`
	} `json:"error"`
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body errorBody
	decode(t, rec, &body)
	return body.Error.Code
}

func resetGlobals(t *testing.T) {
	t.Helper()
	degraded.Reset()
	lifecycle.SetShuttingDown(false)
	lifecycle.SetReady(true)
	t.Cleanup(func() {
		degraded.Reset()
		lifecycle.SetShuttingDown(false)
		lifecycle.SetReady(false)
	})
}

func TestGetHealth(t *testing.T) {
	tests := []struct {
		name       string
		setup      func()
		wantCode   int
		wantStatus string
	}{
		{name: "healthy", setup: func() {}, wantCode: http.StatusOK, wantStatus: "healthy"},
		{name: "starting", setup: func() { lifecycle.SetReady(false) }, wantCode: http.StatusServiceUnavailable, wantStatus: "starting"},
		{name: "shutting down", setup: func() { lifecycle.SetShuttingDown(true) }, wantCode: http.StatusServiceUnavailable, wantStatus: "shutting-down"},
		{
			name: "degraded",
			setup: func() {
				degraded.RecordError()
				degraded.RecordError()
				degraded.RecordSuccess()
			},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "degraded",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetGlobals(t)
			tt.setup()
			d := newTestDeps()
			notified := 0
			d.health = &HealthConfig{
				DegradedWindow:   time.Minute,
				DegradedErrorPct: 50,
				OnDegraded:       func() { notified++ },
			}

			rec := serve(t, d, "/health")
			assert.Equal(t, tt.wantCode, rec.Code)
			var body struct {
				Status  string            `json:"status"`
				Service string            `json:"service"`
				Checks  map[string]string `json:"checks"`
			}
			decode(t, rec, &body)
			assert.Equal(t, tt.wantStatus, body.Status)
			assert.NotEmpty(t, body.Service)
			if tt.wantStatus == "degraded" {
				assert.Equal(t, 1, notified)
				assert.Equal(t, "unhealthy", body.Checks["backend"])
			} else {
				assert.Zero(t, notified)
			}
			if tt.wantStatus == "starting" {
				assert.Equal(t, "loading", body.Checks["catalog"])
			}
		})
	}
}

func TestGetHealth_CacheAndStaleChecks(t *testing.T) {
	resetGlobals(t)
	d := newTestDeps()
	d.catalog.stale = true
	d.health = &HealthConfig{CachePing: func() error { return errors.New("connection refused") }}

	rec := serve(t, d, "/health")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Checks map[string]string `json:"checks"`
	}
	decode(t, rec, &body)
	assert.Equal(t, "unhealthy", body.Checks["cache"])
	assert.Equal(t, "stale", body.Checks["catalog"])
}

func TestGetHealth_LogsTransition(t *testing.T) {
	resetGlobals(t)
	core, logs := observer.New(zap.InfoLevel)
	d := newTestDeps()
	d.logger = zap.New(core)
	router := NewRouter(d.handler(), nil, time.Second, d.logger)

	for _, ready := range []bool{true, false} {
		lifecycle.SetReady(ready)
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	}

	entries := logs.FilterMessage("health status transition").All()
	require.Len(t, entries, 1)
	ctx := entries[0].ContextMap()
	assert.Equal(t, "healthy", ctx["previous_status"])
	assert.Equal(t, "starting", ctx["current_status"])
}

func TestListCertifications(t *testing.T) {
	resetGlobals(t)
	d := newTestDeps()

	rec := serve(t, d, "/api/certifications")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
	var body certificationListResponse
	decode(t, rec, &body)
	require.Equal(t, 2, body.Count)
	first := body.Certifications[0]
	assert.Equal(t, certID, first.ID)
	assert.Equal(t, "💻", first.Emoji)
	require.NotNil(t, first.NextExam)
	assert.Equal(t, "2025-01-18", first.NextExam.Date)
	assert.Equal(t, "D-8", first.NextExam.DDay)
	assert.Nil(t, body.Certifications[1].NextExam, "rolling admission has no dated next exam")
}

func TestListCertifications_Query(t *testing.T) {
	resetGlobals(t)
	d := newTestDeps()

	rec := serve(t, d, "/api/certifications?q="+url.QueryEscape("역사"))
	require.Equal(t, http.StatusOK, rec.Code)
	var body certificationListResponse
	decode(t, rec, &body)
	require.Equal(t, 1, body.Count)
	assert.Equal(t, "한국사", body.Certifications[0].ID)

	rec = serve(t, d, "/api/certifications?q="+url.QueryEscape("<script>"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_QUERY", errorCode(t, rec))
}

func TestListCertifications_Stale(t *testing.T) {
	resetGlobals(t)
	d := newTestDeps()
	d.catalog.stale = true

	rec := serve(t, d, "/api/certifications")
	var body certificationListResponse
	decode(t, rec, &body)
	assert.True(t, body.Stale)
}

func TestListCertifications_CatalogUnavailable(t *testing.T) {
	resetGlobals(t)
	d := newTestDeps()
	d.catalog.err = errors.New("catalog unavailable")

	rec := serve(t, d, "/api/certifications")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "UPSTREAM_UNAVAILABLE", errorCode(t, rec))
	errs, total := degraded.ErrorRate(time.Minute)
	assert.Equal(t, 1, errs)
	assert.Equal(t, 1, total)
}

func TestGetCertification(t *testing.T) {
	resetGlobals(t)
	d := newTestDeps()

	rec := serve(t, d, "/api/certifications/"+certID)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body certificationDetailResponse
	decode(t, rec, &body)
	assert.Equal(t, "정보처리기사", body.Certification.Name)
	require.Len(t, body.Rounds, 2)
	assert.Equal(t, "2025년 1회", body.Rounds[0].Round)
	assert.Equal(t, "2025년 2회", body.Rounds[1].Round)
	require.Len(t, body.Locations, 2)
	assert.Equal(t, "서울시험장", body.Locations[0].Name)
	assert.Equal(t, 19400, body.FeeTrend.MinFee)
	assert.Equal(t, 20000, body.FeeTrend.MaxFee)
	assert.True(t, body.FeeTrend.HasPractical)
	require.NotNil(t, body.NextExam)
	assert.Equal(t, "2025년 1회", body.NextExam.Round)
}

func TestGetCertification_NotFound(t *testing.T) {
	resetGlobals(t)
	d := newTestDeps()

	rec := serve(t, d, "/api/certifications/unknown")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", errorCode(t, rec))
}

func TestGetCertificationWeather(t *testing.T) {
	resetGlobals(t)
	d := newTestDeps()

	rec := serve(t, d, "/api/certifications/"+certID+"/weather")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body struct {
		CertificationID string `json:"certificationId"`
		Weather         []struct {
			Round     string        `json:"round"`
			Region    region.Region `json:"region"`
			Available bool          `json:"available"`
			Forecast  bool          `json:"forecast"`
			Condition string        `json:"condition"`
			RainProb  *float64      `json:"rainProb"`
			Emoji     string        `json:"emoji"`
		} `json:"weather"`
	}
	decode(t, rec, &body)
	assert.Equal(t, certID, body.CertificationID)
	require.Len(t, body.Weather, 2)

	first := body.Weather[0]
	assert.Equal(t, region.Capital, first.Region)
	assert.True(t, first.Available)
	assert.True(t, first.Forecast)
	assert.Equal(t, "비", first.Condition)
	require.NotNil(t, first.RainProb)
	assert.Equal(t, 70.0, *first.RainProb)
	assert.Equal(t, "🌧️", first.Emoji)

	second := body.Weather[1]
	assert.Equal(t, region.GyeongnamArea, second.Region)
	assert.False(t, second.Available)
}

func TestSearch(t *testing.T) {
	resetGlobals(t)
	d := newTestDeps()
	d.searcher.hits = []models.LicenseSearchResult{
		{URI: "http://example.org/license/1", Label: "정보처리기사"},
		{URI: "http://example.org/license/2", Label: "전기기사"},
	}

	rec := serve(t, d, "/api/search?q="+url.QueryEscape("기사"))
	require.Equal(t, http.StatusOK, rec.Code)
	var body searchResponse
	decode(t, rec, &body)
	assert.Equal(t, "기사", body.Query)
	require.Len(t, body.Results, 2)
	assert.Equal(t, certID, body.Results[0].CertificationID)
	assert.Empty(t, body.Results[1].CertificationID)
}

func TestSearch_BlankQuerySkipsBackend(t *testing.T) {
	resetGlobals(t)
	d := newTestDeps()

	rec := serve(t, d, "/api/search?q=++")
	require.Equal(t, http.StatusOK, rec.Code)
	var body searchResponse
	decode(t, rec, &body)
	assert.Empty(t, body.Results)
	assert.Zero(t, d.searcher.calls)
}

func TestSearch_BackendError(t *testing.T) {
	resetGlobals(t)
	d := newTestDeps()
	d.searcher.err = errors.New("backend down")

	rec := serve(t, d, "/api/search?q="+url.QueryEscape("기사"))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestGetUpcoming(t *testing.T) {
	resetGlobals(t)
	d := newTestDeps()

	rec := serve(t, d, "/api/upcoming?fixedOnly=true")
	require.Equal(t, http.StatusOK, rec.Code)
	var body upcomingResponse
	decode(t, rec, &body)
	require.Len(t, body.Exams, 2)
	assert.Equal(t, "2025-01-18", body.Exams[0].Date)
	assert.Equal(t, 8, body.Exams[0].DaysUntil)
	assert.Equal(t, "2025-05-10", body.Exams[1].Date)
	assert.Nil(t, body.Exams[0].Weather)
	assert.Empty(t, d.weather.calls)

	rec = serve(t, d, "/api/upcoming?fixedOnly=true&limit=1")
	decode(t, rec, &body)
	assert.Len(t, body.Exams, 1)

	rec = serve(t, d, "/api/upcoming?limit=abc")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_LIMIT", errorCode(t, rec))
}

func TestGetUpcoming_RollingAdmissionCountsAsDDay(t *testing.T) {
	resetGlobals(t)
	d := newTestDeps()

	rec := serve(t, d, "/api/upcoming")
	require.Equal(t, http.StatusOK, rec.Code)
	var body upcomingResponse
	decode(t, rec, &body)
	require.Len(t, body.Exams, 3)
	assert.Equal(t, "한국사", body.Exams[0].CertificationID)
	assert.Equal(t, "상시", body.Exams[0].Date)
	assert.Equal(t, 0, body.Exams[0].DaysUntil)
	assert.Equal(t, "D-Day", body.Exams[0].DDay)
	assert.Equal(t, "2025-01-18", body.Exams[1].Date)
}

func TestGetUpcoming_WithWeather(t *testing.T) {
	resetGlobals(t)
	d := newTestDeps()

	rec := serve(t, d, "/api/upcoming?weather=true&fixedOnly=true")
	require.Equal(t, http.StatusOK, rec.Code)
	var body upcomingResponse
	decode(t, rec, &body)
	require.Len(t, body.Exams, 2)
	require.NotNil(t, body.Exams[0].Weather)
	assert.Equal(t, "비", body.Exams[0].Weather.Condition)
	assert.Equal(t, "🌧️", body.Exams[0].WeatherEmoji)
	assert.Nil(t, body.Exams[1].Weather, "region without weather stays empty")
	assert.ElementsMatch(t, []region.Region{region.Capital, region.GyeongnamArea}, d.weather.calls)
}

func TestGetTerminals(t *testing.T) {
	resetGlobals(t)
	d := newTestDeps()

	rec := serve(t, d, "/api/terminals")
	require.Equal(t, http.StatusOK, rec.Code)
	var body terminalsResponse
	decode(t, rec, &body)
	assert.Equal(t, 2, body.Count)
	assert.Len(t, body.Groups, len(catalog.TerminalGroupNames()))

	rec = serve(t, d, "/api/terminals?group="+url.QueryEscape("제주"))
	decode(t, rec, &body)
	require.Equal(t, 1, body.Count)
	assert.Equal(t, "t2", body.Terminals[0].ID)
	require.Len(t, body.Groups, 1)

	rec = serve(t, d, "/api/terminals?q="+url.QueryEscape("동서울"))
	decode(t, rec, &body)
	assert.Equal(t, 1, body.Count)

	rec = serve(t, d, "/api/terminals?group=nowhere")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_GROUP", errorCode(t, rec))
}

func TestGetRegions(t *testing.T) {
	resetGlobals(t)
	d := newTestDeps()

	rec := serve(t, d, "/api/regions")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Regions []region.Region `json:"regions"`
		Default region.Region   `json:"default"`
	}
	decode(t, rec, &list)
	assert.Equal(t, region.All(), list.Regions)
	assert.Equal(t, region.Capital, list.Default)

	tests := []struct {
		address     string
		wantRegion  region.Region
		wantMatched bool
	}{
		{"부산광역시 해운대구", region.GyeongnamArea, true},
		{"제주특별자치도 서귀포시", region.Jeju, true},
		{"somewhere", region.Capital, false},
	}
	for _, tt := range tests {
		rec := serve(t, d, "/api/regions?address="+url.QueryEscape(tt.address))
		require.Equal(t, http.StatusOK, rec.Code)
		var body regionResponse
		decode(t, rec, &body)
		assert.Equal(t, tt.wantRegion, body.Region, tt.address)
		assert.Equal(t, tt.wantMatched, body.Matched, tt.address)
	}

	rec = serve(t, d, "/api/regions?address=")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_ADDRESS", errorCode(t, rec))
}

func TestGetRegionWeather(t *testing.T) {
	resetGlobals(t)
	d := newTestDeps()

	rec := serve(t, d, "/api/weather/"+url.PathEscape("제주도"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body regionWeatherResponse
	decode(t, rec, &body)
	assert.Equal(t, region.Jeju, body.Region)
	assert.True(t, body.Available)
	require.NotNil(t, body.Snapshot)
	assert.Equal(t, "맑음", body.Snapshot.Condition)
	assert.Equal(t, "☀️", body.Emoji)
}

func TestGetRegionWeather_Errors(t *testing.T) {
	resetGlobals(t)
	d := newTestDeps()

	rec := serve(t, d, "/api/weather/nowhere")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_REGION", errorCode(t, rec))

	rec = serve(t, d, "/api/weather/"+url.PathEscape("경남권"))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	errs, _ := degraded.ErrorRate(time.Minute)
	assert.Equal(t, 1, errs)
}

func TestGetRegionForecast(t *testing.T) {
	resetGlobals(t)
	d := newTestDeps()
	base := "/api/weather/" + url.PathEscape("수도권") + "/forecast"

	rec := serve(t, d, base+"?date=2025-01-18")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body forecastResponse
	decode(t, rec, &body)
	require.NotNil(t, body.Forecast)
	assert.Equal(t, 3, body.Forecast.DayOffset)
	assert.Equal(t, "비", body.Forecast.Condition)
	require.NotNil(t, body.Forecast.MinTemp)
	assert.Equal(t, 1.0, *body.Forecast.MinTemp)
	assert.Nil(t, body.Fallback)
	assert.Equal(t, "🌧️", body.Emoji)

	rec = serve(t, d, base+"?date=2025-03-01")
	require.Equal(t, http.StatusOK, rec.Code)
	body = forecastResponse{}
	decode(t, rec, &body)
	assert.Nil(t, body.Forecast)
	require.NotNil(t, body.Fallback)
	assert.Equal(t, "맑음", body.Fallback.Condition)
	assert.True(t, body.Available)

	for _, q := range []string{"", "?date=18-01-2025"} {
		rec = serve(t, d, base+q)
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
		assert.Equal(t, "INVALID_DATE", errorCode(t, rec))
	}
}

func TestGetDDay(t *testing.T) {
	resetGlobals(t)
	d := newTestDeps()

	rec := serve(t, d, "/api/dday?date=2025-01-18")
	require.Equal(t, http.StatusOK, rec.Code)
	var body ddayResponse
	decode(t, rec, &body)
	require.NotNil(t, body.DaysUntil)
	assert.Equal(t, 8, *body.DaysUntil)
	assert.Equal(t, "D-8", body.DDay)
	assert.Equal(t, "2025년 1월 18일", body.Formatted)
	assert.Equal(t, "1. 18.", body.Short)

	rec = serve(t, d, "/api/dday?date=2025-01-10")
	body = ddayResponse{}
	decode(t, rec, &body)
	assert.Equal(t, "D-Day", body.DDay)

	rec = serve(t, d, "/api/dday?date=soon")
	require.Equal(t, http.StatusOK, rec.Code)
	body = ddayResponse{}
	decode(t, rec, &body)
	assert.Nil(t, body.DaysUntil)
	assert.Equal(t, "-", body.DDay)

	rec = serve(t, d, "/api/dday")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLookupCertification(t *testing.T) {
	certs := catalogFixture().Certifications
	for _, id := range []string{certID, "http://example.org/license/1", "한국사"} {
		_, ok := lookupCertification(certs, id)
		assert.True(t, ok, id)
	}
	_, ok := lookupCertification(certs, "http://example.org/license/9")
	assert.False(t, ok)
}
