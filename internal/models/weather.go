package models

// MidWeatherResponse is the raw mid-term forecast payload returned by the
// backend's /weather/mid endpoint. Numeric fields arrive either as JSON numbers
// or as strings, so they are kept as untyped values and parsed tolerantly.
type MidWeatherResponse struct {
	Region  string          `json:"region"`
	RegID   string          `json:"regId"`
	TmFc    string          `json:"tmFc"`
	HasData bool            `json:"has_data"`
	Summary *WeatherSummary `json:"summary_day4,omitempty"`
	LandRaw map[string]any  `json:"land_raw,omitempty"`
	TempRaw map[string]any  `json:"temp_raw,omitempty"`
}

// WeatherSummary is the backend's short-horizon summary block.
type WeatherSummary struct {
	DayOffset any `json:"day_offset,omitempty"`
	Temp      *TempRange `json:"temp,omitempty"`
	AM        *HalfDay   `json:"am,omitempty"`
	PM        *HalfDay   `json:"pm,omitempty"`
}

// TempRange holds the summary's temperature bounds.
type TempRange struct {
	Min any `json:"min,omitempty"`
	Max any `json:"max,omitempty"`
}

// HalfDay holds the morning or afternoon part of a summary.
type HalfDay struct {
	Weather  string `json:"weather,omitempty"`
	RainProb any    `json:"rain_prob,omitempty"`
}

// RegionWeatherSnapshot is the display-ready reduction of a MidWeatherResponse.
// Nil pointers mean the value was absent or unparseable.
type RegionWeatherSnapshot struct {
	Condition string   `json:"condition,omitempty"`
	RainProb  *float64 `json:"rainProb,omitempty"`
	MinTemp   *float64 `json:"minTemp,omitempty"`
	MaxTemp   *float64 `json:"maxTemp,omitempty"`
	TmFc      string   `json:"tmFc,omitempty"`
}

// RegionForecast is a snapshot for one calendar date, addressed by its day
// offset from the forecast-issue date.
type RegionForecast struct {
	RegionWeatherSnapshot
	DayOffset int `json:"dayOffset"`
}
