package http

import (
	"net/http"

	"github.com/kjstillabower/certexam-service/internal/degraded"
	"github.com/kjstillabower/certexam-service/internal/models"
	"github.com/kjstillabower/certexam-service/internal/region"
	"github.com/kjstillabower/certexam-service/internal/validation"
	"github.com/kjstillabower/certexam-service/internal/weather"
)

type regionWeatherResponse struct {
	Region    region.Region                 `json:"region"`
	Available bool                          `json:"available"`
	Emoji     string                        `json:"emoji,omitempty"`
	Snapshot  *models.RegionWeatherSnapshot `json:"snapshot"`
}

type forecastResponse struct {
	Region    region.Region                 `json:"region"`
	Date      string                        `json:"date"`
	Forecast  *models.RegionForecast        `json:"forecast"`
	Fallback  *models.RegionWeatherSnapshot `json:"fallback"`
	Available bool                          `json:"available"`
	Emoji     string                        `json:"emoji,omitempty"`
}

func (h *Handler) weatherRegion(w http.ResponseWriter, r *http.Request) (region.Region, bool) {
	reg, err := validation.ValidateRegion(pathVar(r, "region"))
	if err != nil {
		writeBadRequest(w, r, "INVALID_REGION", err)
		return "", false
	}
	return reg, true
}

// GetRegionWeather handles GET /api/weather/{region}.
func (h *Handler) GetRegionWeather(w http.ResponseWriter, r *http.Request) {
	reg, ok := h.weatherRegion(w, r)
	if !ok {
		return
	}
	payload, err := h.weather.Payload(r.Context(), reg)
	if err != nil {
		h.upstreamFailed(w, r, err)
		return
	}
	degraded.RecordSuccess()
	snap := weather.Summarize(payload)
	resp := regionWeatherResponse{Region: reg, Snapshot: snap, Available: snap != nil}
	if snap != nil {
		resp.Emoji = weather.Emoji(snap.Condition)
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetRegionForecast handles GET /api/weather/{region}/forecast?date=YYYY-MM-DD.
// Dates outside the mid-term range return forecast:null with the region
// snapshot as fallback.
func (h *Handler) GetRegionForecast(w http.ResponseWriter, r *http.Request) {
	reg, ok := h.weatherRegion(w, r)
	if !ok {
		return
	}
	raw := r.URL.Query().Get("date")
	date, err := validation.ValidateDate(raw, h.cfg.Location)
	if err != nil {
		writeBadRequest(w, r, "INVALID_DATE", err)
		return
	}
	payload, err := h.weather.Payload(r.Context(), reg)
	if err != nil {
		h.upstreamFailed(w, r, err)
		return
	}
	degraded.RecordSuccess()
	resp := forecastResponse{Region: reg, Date: raw, Forecast: weather.ForecastForDate(payload, date)}
	best := weather.Summarize(payload)
	if resp.Forecast != nil {
		best = &resp.Forecast.RegionWeatherSnapshot
	} else {
		resp.Fallback = best
	}
	if best != nil {
		resp.Available = true
		resp.Emoji = weather.Emoji(best.Condition)
	}
	writeJSON(w, http.StatusOK, resp)
}
