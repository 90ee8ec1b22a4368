// Package dday computes and formats day counts until exam dates.
package dday

import (
	"fmt"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/kjstillabower/certexam-service/internal/models"
)

// clock is the package time source; tests freeze it with SetClock.
var clock = clockwork.NewRealClock()

// SetClock swaps the time source. Pass nil to reset to real time.
func SetClock(c clockwork.Clock) {
	if c == nil {
		clock = clockwork.NewRealClock()
		return
	}
	clock = c
}

// Now returns the current time from the package clock.
func Now() time.Time {
	return clock.Now()
}

var layouts = []string{"2006-01-02", "20060102", "2006.01.02", "2006/01/02"}

// Parse reads a date string in now's location. The NoFixedDate sentinel and
// unparseable strings return false.
func Parse(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" || s == models.NoFixedDate {
		return time.Time{}, false
	}
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.In(loc), true
	}
	return time.Time{}, false
}

// DaysUntil returns the whole calendar days from now's date to the date in s.
// The NoFixedDate sentinel counts as 0. ok is false when s is empty or
// unparseable; callers treat that as "no upcoming exam".
func DaysUntil(s string, now time.Time) (days int, ok bool) {
	if strings.TrimSpace(s) == models.NoFixedDate {
		return 0, true
	}
	target, ok := Parse(s, now.Location())
	if !ok {
		return 0, false
	}
	return Between(now, target), true
}

// DaysUntilToday is DaysUntil against the package clock.
func DaysUntilToday(s string) (int, bool) {
	return DaysUntil(s, clock.Now())
}

// Between returns the calendar-day difference from a to b.
func Between(a, b time.Time) int {
	from := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	to := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	// Unix seconds, not Sub: time.Duration caps out near 292 years.
	return int((to.Unix() - from.Unix()) / 86400)
}

// Format renders a day count as D-n, D-Day or D+n.
func Format(days int) string {
	switch {
	case days == 0:
		return "D-Day"
	case days < 0:
		return fmt.Sprintf("D+%d", -days)
	default:
		return fmt.Sprintf("D-%d", days)
	}
}

// FormatDate renders s for display: "2025년 3월 8일", or "3. 8." when short.
// The sentinel passes through, empty becomes "-", and unparseable strings are
// returned unchanged.
func FormatDate(s string, short bool) string {
	if s == models.NoFixedDate {
		return s
	}
	if s == "" {
		return "-"
	}
	t, ok := Parse(s, time.UTC)
	if !ok {
		return s
	}
	if short {
		return fmt.Sprintf("%d. %d.", int(t.Month()), t.Day())
	}
	return fmt.Sprintf("%d년 %d월 %d일", t.Year(), int(t.Month()), t.Day())
}
