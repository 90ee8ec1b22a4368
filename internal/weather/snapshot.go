// Package weather reduces raw mid-term forecast payloads to display-ready
// snapshots. It holds no state; callers own caching.
package weather

import (
	"fmt"
	"time"

	"github.com/kjstillabower/certexam-service/internal/fields"
	"github.com/kjstillabower/certexam-service/internal/models"
)

// Forecast window, in days after the issue date, covered by the mid-term data.
const (
	MinDayOffset = 3
	MaxDayOffset = 10
)

// Summarize returns the short-horizon snapshot embedded in the payload's
// summary block, or nil when the payload has no data or no summary.
func Summarize(p *models.MidWeatherResponse) *models.RegionWeatherSnapshot {
	if p == nil || !p.HasData || p.Summary == nil {
		return nil
	}
	s := p.Summary
	snap := &models.RegionWeatherSnapshot{TmFc: p.TmFc}
	if s.Temp != nil {
		snap.MinTemp = fields.NumberPtr(s.Temp.Min)
		snap.MaxTemp = fields.NumberPtr(s.Temp.Max)
	}
	switch {
	case s.PM != nil && s.PM.Weather != "":
		snap.Condition = s.PM.Weather
	case s.AM != nil && s.AM.Weather != "":
		snap.Condition = s.AM.Weather
	}
	// PM rain probability wins whenever it is sent, even if it does not parse.
	var rain any
	if s.PM != nil && s.PM.RainProb != nil {
		rain = s.PM.RainProb
	} else if s.AM != nil {
		rain = s.AM.RainProb
	}
	snap.RainProb = fields.NumberPtr(rain)
	return snap
}

// ForecastForDate looks up the forecast for target's calendar date. It returns
// nil when the payload lacks data or an issue timestamp, or when the date falls
// outside [MinDayOffset, MaxDayOffset] days after the issue date.
func ForecastForDate(p *models.MidWeatherResponse, target time.Time) *models.RegionForecast {
	if p == nil || !p.HasData || p.TmFc == "" {
		return nil
	}
	issued, err := ParseIssueDate(p.TmFc)
	if err != nil {
		return nil
	}
	offset := DayOffset(issued, target)
	if offset < MinDayOffset || offset > MaxDayOffset {
		return nil
	}

	land := fields.Record(p.LandRaw)
	temp := fields.Record(p.TempRaw)
	keys := KeysFor(offset)

	fc := &models.RegionForecast{DayOffset: offset}
	fc.TmFc = p.TmFc
	fc.Condition, _ = keys.Condition.FirstString(land)
	if v, ok := keys.RainProb.FirstPresent(land); ok {
		fc.RainProb = fields.NumberPtr(v)
	}
	fc.MinTemp = fields.NumberPtr(temp[keys.MinTemp])
	fc.MaxTemp = fields.NumberPtr(temp[keys.MaxTemp])
	return fc
}

// Keys are the land/temperature field names for one day offset.
type Keys struct {
	Condition fields.Candidates
	RainProb  fields.Candidates
	MinTemp   string
	MaxTemp   string
}

// KeysFor returns the lookup keys for offset. Days 8-10 are published without
// an AM/PM split, so the bare key is the last candidate.
func KeysFor(offset int) Keys {
	return Keys{
		Condition: fields.Candidates{
			fmt.Sprintf("wf%dPm", offset), fmt.Sprintf("wf%dAm", offset), fmt.Sprintf("wf%d", offset),
		},
		RainProb: fields.Candidates{
			fmt.Sprintf("rnSt%dPm", offset), fmt.Sprintf("rnSt%dAm", offset), fmt.Sprintf("rnSt%d", offset),
		},
		MinTemp: fmt.Sprintf("taMin%d", offset),
		MaxTemp: fmt.Sprintf("taMax%d", offset),
	}
}

// ParseIssueDate parses the YYYYMMDD prefix of a tmFc timestamp.
func ParseIssueDate(tmFc string) (time.Time, error) {
	if len(tmFc) < 8 {
		return time.Time{}, fmt.Errorf("tmFc %q too short", tmFc)
	}
	d, err := time.Parse("20060102", tmFc[:8])
	if err != nil {
		return time.Time{}, fmt.Errorf("parse tmFc %q: %w", tmFc, err)
	}
	return d, nil
}

// DayOffset returns the calendar-day difference from issued to target. Only
// the date parts are compared; times of day and zones are ignored.
func DayOffset(issued, target time.Time) int {
	a := time.Date(issued.Year(), issued.Month(), issued.Day(), 0, 0, 0, 0, time.UTC)
	b := time.Date(target.Year(), target.Month(), target.Day(), 0, 0, 0, 0, time.UTC)
	return int((b.Unix() - a.Unix()) / 86400)
}
