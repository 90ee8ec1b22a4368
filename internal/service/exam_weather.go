package service

import (
	"context"
	"time"

	"github.com/kjstillabower/certexam-service/internal/catalog"
	"github.com/kjstillabower/certexam-service/internal/dday"
	"github.com/kjstillabower/certexam-service/internal/models"
	"github.com/kjstillabower/certexam-service/internal/region"
	"github.com/kjstillabower/certexam-service/internal/weather"
)

// ExamDayWeather is the weather shown for one exam round.
type ExamDayWeather struct {
	Round     string        `json:"round"`
	Date      string        `json:"date"`
	Region    region.Region `json:"region"`
	Available bool          `json:"available"`
	Forecast  bool          `json:"forecast"`
	Emoji     string        `json:"emoji,omitempty"`

	*models.RegionWeatherSnapshot
}

// LoadExamWeather loads the regions of rounds into s and returns exam-day
// weather per round. fallback is used for rounds without a recognizable
// location address.
func (s *Session) LoadExamWeather(ctx context.Context, rounds []models.ExamRound, fallback region.Region) ([]ExamDayWeather, error) {
	regions := make([]region.Region, 0, len(rounds))
	for _, r := range rounds {
		regions = append(regions, catalog.RoundRegion(r, fallback))
	}
	if err := s.Load(ctx, regions); err != nil {
		return nil, err
	}
	return s.ExamWeather(rounds, fallback), nil
}

// ExamWeather resolves weather per round from already loaded payloads. The
// written exam date is used; a round without a parseable date gets the
// region snapshot.
func (s *Session) ExamWeather(rounds []models.ExamRound, fallback region.Region) []ExamDayWeather {
	out := make([]ExamDayWeather, 0, len(rounds))
	for _, round := range rounds {
		r := catalog.RoundRegion(round, fallback)
		entry := ExamDayWeather{Round: round.Round, Date: round.WrittenExam, Region: r}

		var date time.Time
		if t, ok := dday.Parse(round.WrittenExam, s.loc); ok {
			date = t
		}
		if !date.IsZero() {
			if f := s.ForecastFor(r, date); f != nil {
				entry.RegionWeatherSnapshot = &f.RegionWeatherSnapshot
				entry.Forecast = true
			}
		}
		if entry.RegionWeatherSnapshot == nil {
			entry.RegionWeatherSnapshot = s.Snapshot(r)
		}
		if entry.RegionWeatherSnapshot != nil {
			entry.Available = true
			entry.Emoji = weather.Emoji(entry.Condition)
		}
		out = append(out, entry)
	}
	return out
}
