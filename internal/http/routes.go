package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/certexam-service/internal/observability"
)

// NewRouter wires the handlers. /health and /metrics bypass rate limiting and
// the request timeout.
func NewRouter(h *Handler, limiter *rate.Limiter, requestTimeout time.Duration, logger *zap.Logger) *mux.Router {
	router := mux.NewRouter().UseEncodedPath()
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware)
	router.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	router.Handle("/metrics", observability.MetricsHandler()).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()
	api.Use(RateLimitMiddleware(limiter))
	api.Use(TimeoutMiddleware(requestTimeout))
	api.HandleFunc("/certifications", h.ListCertifications).Methods(http.MethodGet)
	api.HandleFunc("/certifications/{id}", h.GetCertification).Methods(http.MethodGet)
	api.HandleFunc("/certifications/{id}/weather", h.GetCertificationWeather).Methods(http.MethodGet)
	api.HandleFunc("/search", h.Search).Methods(http.MethodGet)
	api.HandleFunc("/upcoming", h.GetUpcoming).Methods(http.MethodGet)
	api.HandleFunc("/terminals", h.GetTerminals).Methods(http.MethodGet)
	api.HandleFunc("/regions", h.GetRegions).Methods(http.MethodGet)
	api.HandleFunc("/weather/{region}", h.GetRegionWeather).Methods(http.MethodGet)
	api.HandleFunc("/weather/{region}/forecast", h.GetRegionForecast).Methods(http.MethodGet)
	api.HandleFunc("/dday", h.GetDDay).Methods(http.MethodGet)
	return router
}
