package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/kjstillabower/certexam-service/internal/circuitbreaker"
	"github.com/kjstillabower/certexam-service/internal/fields"
	"github.com/kjstillabower/certexam-service/internal/models"
	"github.com/kjstillabower/certexam-service/internal/observability"
	"github.com/kjstillabower/certexam-service/internal/region"
)

// Backend is the exam data backend: license search, schedules, fees, exam
// sites, bus terminals and mid-range weather.
type Backend interface {
	SearchLicenses(ctx context.Context, query string) ([]models.LicenseSearchResult, error)
	Schedules(ctx context.Context, name string, year int) ([]fields.Record, error)
	Fees(ctx context.Context, name string) ([]fields.Record, error)
	Sites(ctx context.Context, name string) ([]fields.Record, error)
	TerminalRegions(ctx context.Context) ([]string, error)
	TerminalsByRegion(ctx context.Context, sido string) ([]fields.Record, error)
	MidWeather(ctx context.Context, r region.Region) (*models.MidWeatherResponse, error)
	Ping(ctx context.Context) error
}

var (
	ErrNotFound        = errors.New("not found")
	ErrBadRequest      = errors.New("bad request")
	ErrUpstreamFailure = errors.New("upstream failure")
	ErrRateLimited     = errors.New("rate limited")
)

// maxBodyBytes bounds a single backend response.
const maxBodyBytes = 8 << 20

// Endpoint labels for backendApiCallsTotal.
const (
	endpointSearch    = "license_search"
	endpointSchedule  = "license_schedule"
	endpointFee       = "license_fee"
	endpointSites     = "license_sites"
	endpointRegions   = "terminal_regions"
	endpointTerminals = "terminals"
	endpointWeather   = "mid_weather"
	endpointPing      = "ping"
)

// Config configures HTTPClient. Limiter and Breaker are optional.
type Config struct {
	BaseURL        string
	Timeout        time.Duration
	RetryAttempts  int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	Limiter        *rate.Limiter
	Breaker        *circuitbreaker.CircuitBreaker
	HTTPClient     *http.Client
}

// HTTPClient implements Backend over HTTP/JSON.
type HTTPClient struct {
	baseURL        *url.URL
	timeout        time.Duration
	client         *http.Client
	retryAttempts  int
	retryBaseDelay time.Duration
	retryMaxDelay  time.Duration
	limiter        *rate.Limiter
	breaker        *circuitbreaker.CircuitBreaker
}

// New validates cfg and returns a client.
func New(cfg Config) (*HTTPClient, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid backend URL %q", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 1
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = 100 * time.Millisecond
	}
	if cfg.RetryMaxDelay < cfg.RetryBaseDelay {
		cfg.RetryMaxDelay = cfg.RetryBaseDelay
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	return &HTTPClient{
		baseURL:        base,
		timeout:        cfg.Timeout,
		client:         hc,
		retryAttempts:  cfg.RetryAttempts,
		retryBaseDelay: cfg.RetryBaseDelay,
		retryMaxDelay:  cfg.RetryMaxDelay,
		limiter:        cfg.Limiter,
		breaker:        cfg.Breaker,
	}, nil
}

type searchResponse struct {
	Results []models.LicenseSearchResult `json:"results"`
}

type recordsResponse struct {
	Results []fields.Record `json:"results"`
}

type regionsResponse struct {
	Regions []string `json:"regions"`
}

// SearchLicenses calls /licenses/search.
func (c *HTTPClient) SearchLicenses(ctx context.Context, query string) ([]models.LicenseSearchResult, error) {
	var resp searchResponse
	if err := c.get(ctx, endpointSearch, "/licenses/search", url.Values{"q": {query}}, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// Schedules calls /licenses/schedule for one license and year.
func (c *HTTPClient) Schedules(ctx context.Context, name string, year int) ([]fields.Record, error) {
	q := url.Values{"name": {name}, "year": {strconv.Itoa(year)}}
	return c.records(ctx, endpointSchedule, "/licenses/schedule", q)
}

// Fees calls /licenses/fee.
func (c *HTTPClient) Fees(ctx context.Context, name string) ([]fields.Record, error) {
	return c.records(ctx, endpointFee, "/licenses/fee", url.Values{"name": {name}})
}

// Sites calls /licenses/sites.
func (c *HTTPClient) Sites(ctx context.Context, name string) ([]fields.Record, error) {
	return c.records(ctx, endpointSites, "/licenses/sites", url.Values{"name": {name}})
}

// TerminalRegions calls /terminals/regions.
func (c *HTTPClient) TerminalRegions(ctx context.Context) ([]string, error) {
	var resp regionsResponse
	if err := c.get(ctx, endpointRegions, "/terminals/regions", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Regions, nil
}

// TerminalsByRegion calls /terminals/by-region.
func (c *HTTPClient) TerminalsByRegion(ctx context.Context, sido string) ([]fields.Record, error) {
	return c.records(ctx, endpointTerminals, "/terminals/by-region", url.Values{"sido": {sido}})
}

// MidWeather calls /weather/mid for a forecast region.
func (c *HTTPClient) MidWeather(ctx context.Context, r region.Region) (*models.MidWeatherResponse, error) {
	var resp models.MidWeatherResponse
	if err := c.get(ctx, endpointWeather, "/weather/mid", url.Values{"region": {string(r)}}, &resp); err != nil {
		return nil, err
	}
	if resp.Region == "" {
		resp.Region = string(r)
	}
	return &resp, nil
}

// Ping makes one cheap call that bypasses retries and the breaker.
// Used by health recovery probes.
func (c *HTTPClient) Ping(ctx context.Context) error {
	return c.call(ctx, endpointPing, c.buildURL("/terminals/regions", nil), nil)
}

func (c *HTTPClient) records(ctx context.Context, endpoint, path string, q url.Values) ([]fields.Record, error) {
	var resp recordsResponse
	if err := c.get(ctx, endpoint, path, q, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// get runs call with rate limiting, the breaker and retries.
func (c *HTTPClient) get(ctx context.Context, endpoint, path string, q url.Values, out any) error {
	target := c.buildURL(path, q)
	var lastErr error

	for attempt := 0; attempt < c.retryAttempts; attempt++ {
		if attempt > 0 {
			observability.BackendAPIRetriesTotal.Inc()
			timer := time.NewTimer(c.calculateBackoff(attempt))
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}

		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return fmt.Errorf("outbound limiter: %w", err)
			}
		}

		var err error
		if c.breaker != nil {
			err = c.breaker.Call(ctx, func() error { return c.call(ctx, endpoint, target, out) })
			if errors.Is(err, circuitbreaker.ErrOpen) {
				observability.BackendAPICallsTotal.WithLabelValues(endpoint, string(CategorizeError(err))).Inc()
				return fmt.Errorf("%w: %w", ErrUpstreamFailure, err)
			}
		} else {
			err = c.call(ctx, endpoint, target, out)
		}
		if err == nil {
			return nil
		}

		lastErr = err
		if ctx.Err() != nil || !isRetryable(err) {
			return err
		}
	}

	return fmt.Errorf("exhausted retries: %w", lastErr)
}

// call makes one HTTP attempt and decodes into out (nil discards the body).
func (c *HTTPClient) call(ctx context.Context, endpoint, target string, out any) (err error) {
	start := time.Now()
	defer func() {
		status := "success"
		if err != nil {
			status = string(CategorizeError(err))
		}
		observability.BackendAPICallsTotal.WithLabelValues(endpoint, status).Inc()
		observability.BackendAPIDuration.WithLabelValues(endpoint, status).Observe(time.Since(start).Seconds())
	}()

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if corrID := observability.CorrelationID(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if isTimeout(err) {
			return fmt.Errorf("%w: request timeout: %w", ErrUpstreamFailure, err)
		}
		return fmt.Errorf("%w: network: %w", ErrUpstreamFailure, err)
	}
	defer resp.Body.Close()

	if err := statusError(resp.StatusCode); err != nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return err
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return nil
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

func (c *HTTPClient) buildURL(path string, q url.Values) string {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + path
	if len(q) > 0 {
		u.RawQuery = q.Encode()
	}
	return u.String()
}

func (c *HTTPClient) calculateBackoff(attempt int) time.Duration {
	delay := float64(c.retryBaseDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(c.retryMaxDelay) {
		delay = float64(c.retryMaxDelay)
	}

	jitter := delay * 0.1 * rand.Float64()
	return time.Duration(delay + jitter)
}

func statusError(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusNotFound:
		return ErrNotFound
	case code == http.StatusTooManyRequests:
		return ErrRateLimited
	case code >= 400 && code < 500:
		return fmt.Errorf("%w: HTTP %d", ErrBadRequest, code)
	default:
		return fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, code)
	}
}

func isRetryable(err error) bool {
	if errors.Is(err, circuitbreaker.ErrOpen) {
		return false
	}
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrUpstreamFailure)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
