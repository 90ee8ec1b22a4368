package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/kjstillabower/certexam-service/internal/degraded"
	"github.com/kjstillabower/certexam-service/internal/lifecycle"
	"github.com/kjstillabower/certexam-service/internal/models"
	"github.com/kjstillabower/certexam-service/internal/observability"
	"github.com/kjstillabower/certexam-service/internal/region"
	"github.com/kjstillabower/certexam-service/internal/service"
)

// Catalog serves the current certification and terminal snapshot.
// Implemented by service.CatalogService.
type Catalog interface {
	Snapshot(ctx context.Context) (service.CatalogSnapshot, bool, error)
	Stale() bool
}

// Searcher runs a live license search. Implemented by catalog.Builder.
type Searcher interface {
	Search(ctx context.Context, query string) ([]models.LicenseSearchResult, error)
}

// Config holds request-handling settings.
type Config struct {
	Location       *time.Location
	DefaultRegion  region.Region
	UpcomingLimit  int
	MaxLimit       int
	MaxQueryLength int
	Clock          clockwork.Clock
}

// HealthConfig holds thresholds and hooks for the health handler.
type HealthConfig struct {
	DegradedWindow   time.Duration
	DegradedErrorPct int
	// CachePing, when set, is called to check cache reachability. Used when backend is memcached.
	CachePing func() error
	// OnDegraded is called each time health evaluates to degraded.
	OnDegraded func()
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	catalog      Catalog
	searcher     Searcher
	weather      service.PayloadSource
	cfg          Config
	healthConfig *HealthConfig
	logger       *zap.Logger

	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler. healthConfig may be nil.
func NewHandler(catalog Catalog, searcher Searcher, weather service.PayloadSource, cfg Config, healthConfig *HealthConfig, logger *zap.Logger) *Handler {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.DefaultRegion == "" {
		cfg.DefaultRegion = region.Capital
	}
	if cfg.UpcomingLimit <= 0 {
		cfg.UpcomingLimit = 6
	}
	if cfg.MaxLimit <= 0 {
		cfg.MaxLimit = 50
	}
	if cfg.MaxQueryLength <= 0 {
		cfg.MaxQueryLength = 100
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		catalog:      catalog,
		searcher:     searcher,
		weather:      weather,
		cfg:          cfg,
		healthConfig: healthConfig,
		logger:       logger,
	}
}

func (h *Handler) now() time.Time {
	return h.cfg.Clock.Now().In(h.cfg.Location)
}

func (h *Handler) newSession(r *http.Request) *service.Session {
	return service.NewSession(h.weather, h.cfg.Location, observability.LoggerFrom(r.Context(), h.logger))
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus()

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	checks := map[string]string{"backend": "healthy", "catalog": "ready"}
	if result.status == "degraded" {
		checks["backend"] = "unhealthy"
	}
	switch {
	case !lifecycle.IsReady():
		checks["catalog"] = "loading"
	case h.catalog != nil && h.catalog.Stale():
		checks["catalog"] = "stale"
	}
	if h.healthConfig != nil && h.healthConfig.CachePing != nil {
		if h.healthConfig.CachePing() == nil {
			checks["cache"] = "healthy"
		} else {
			checks["cache"] = "unhealthy"
		}
	}
	writeJSON(w, result.statusCode, map[string]any{
		"status":    result.status,
		"service":   observability.ServiceName,
		"version":   "dev",
		"checks":    checks,
		"timestamp": h.cfg.Clock.Now().UTC().Format(time.RFC3339),
	})
}

// computeHealthStatus evaluates, in order: shutting-down > starting > degraded > healthy.
func (h *Handler) computeHealthStatus() healthResult {
	if lifecycle.IsShuttingDown() {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal"}
	}
	if !lifecycle.IsReady() {
		return healthResult{"starting", http.StatusServiceUnavailable, "catalog_not_loaded"}
	}
	if h.healthConfig != nil && degraded.IsDegraded(h.healthConfig.DegradedWindow, h.healthConfig.DegradedErrorPct) {
		if h.healthConfig.OnDegraded != nil {
			h.healthConfig.OnDegraded()
		}
		return healthResult{"degraded", http.StatusServiceUnavailable, "error_rate_breach"}
	}
	return healthResult{"healthy", http.StatusOK, ""}
}

// pathVar returns the decoded route variable. Routes match on the encoded
// path so certification IDs may contain %2F.
func pathVar(r *http.Request, name string) string {
	raw := mux.Vars(r)[name]
	if v, err := url.PathUnescape(raw); err == nil {
		return v
	}
	return raw
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response in the standard error format with code, message,
// and requestId (correlation ID) if available in request context.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": observability.CorrelationID(r.Context()),
		},
	})
}

// writeBadRequest writes a 400 with the validation error as message.
func writeBadRequest(w http.ResponseWriter, r *http.Request, code string, err error) {
	writeError(w, r, http.StatusBadRequest, code, err.Error())
}

// upstreamFailed records the failure toward the degraded window and writes
// a 503, or 504 when the request deadline passed.
func (h *Handler) upstreamFailed(w http.ResponseWriter, r *http.Request, err error) {
	logger := observability.LoggerFrom(r.Context(), h.logger)
	if errors.Is(err, context.Canceled) {
		logger.Debug("request cancelled", zap.Error(err))
		return
	}
	degraded.RecordError()
	logger.Warn("upstream error", zap.Error(err))
	if errors.Is(err, context.DeadlineExceeded) {
		writeError(w, r, http.StatusGatewayTimeout, "TIMEOUT", "Backend did not respond in time")
		return
	}
	writeError(w, r, http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE", "Unable to fetch data from backend")
}

// snapshot loads the catalog, writing the error response on failure.
func (h *Handler) snapshot(w http.ResponseWriter, r *http.Request) (service.CatalogSnapshot, bool, bool) {
	snap, stale, err := h.catalog.Snapshot(r.Context())
	if err != nil {
		h.upstreamFailed(w, r, err)
		return service.CatalogSnapshot{}, false, false
	}
	degraded.RecordSuccess()
	return snap, stale, true
}
