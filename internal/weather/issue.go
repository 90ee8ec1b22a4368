package weather

import "time"

// Mid-term forecasts are published twice a day.
const (
	morningIssueHour = 6
	eveningIssueHour = 18
)

// IssueTime returns the most recent publication time at or before now, in
// now's location.
func IssueTime(now time.Time) time.Time {
	y, m, d := now.Date()
	loc := now.Location()
	switch {
	case now.Hour() < morningIssueHour:
		return time.Date(y, m, d-1, eveningIssueHour, 0, 0, 0, loc)
	case now.Hour() < eveningIssueHour:
		return time.Date(y, m, d, morningIssueHour, 0, 0, 0, loc)
	default:
		return time.Date(y, m, d, eveningIssueHour, 0, 0, 0, loc)
	}
}

// NextIssueTime returns the first publication time strictly after now.
func NextIssueTime(now time.Time) time.Time {
	issued := IssueTime(now)
	if issued.Hour() == morningIssueHour {
		return time.Date(issued.Year(), issued.Month(), issued.Day(), eveningIssueHour, 0, 0, 0, issued.Location())
	}
	return time.Date(issued.Year(), issued.Month(), issued.Day()+1, morningIssueHour, 0, 0, 0, issued.Location())
}

// FormatTmFc renders t as a tmFc timestamp (YYYYMMDDHHMM).
func FormatTmFc(t time.Time) string {
	return t.Format("200601021504")
}

// TTLUntilNextIssue caps ttl so a cached payload expires when a newer forecast
// is published.
func TTLUntilNextIssue(now time.Time, ttl time.Duration) time.Duration {
	until := NextIssueTime(now).Sub(now)
	if until > 0 && until < ttl {
		return until
	}
	return ttl
}

// Emoji returns an icon for a condition label.
func Emoji(condition string) string {
	switch condition {
	case "맑음":
		return "☀️"
	case "비":
		return "🌧️"
	case "눈":
		return "❄️"
	case "흐림":
		return "☁️"
	default:
		return "🌤️"
	}
}
