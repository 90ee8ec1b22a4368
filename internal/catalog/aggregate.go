package catalog

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/kjstillabower/certexam-service/internal/dday"
	"github.com/kjstillabower/certexam-service/internal/models"
	"github.com/kjstillabower/certexam-service/internal/region"
)

// Exam kinds in UpcomingExam.Kind.
const (
	KindWritten   = "written"
	KindPractical = "practical"
)

// UpcomingExam is one dated exam sitting with its D-day.
type UpcomingExam struct {
	CertificationID   string        `json:"certificationId"`
	CertificationName string        `json:"certificationName"`
	Category          string        `json:"category"`
	Emoji             string        `json:"emoji"`
	Round             string        `json:"round"`
	Kind              string        `json:"kind"`
	Date              string        `json:"date"`
	DaysUntil         int           `json:"daysUntil"`
	DDay              string        `json:"dday"`
	Region            region.Region `json:"region"`
}

// UpcomingOptions selects which sittings count as upcoming.
type UpcomingOptions struct {
	Limit int // <= 0 means no limit
	// IncludePractical adds practical exam dates next to written ones.
	IncludePractical bool
	// SkipNoFixedDate drops rolling-admission (상시) entries, which otherwise
	// count as D-Day.
	SkipNoFixedDate bool
	// DefaultRegion is used when the first exam site has no recognizable address.
	DefaultRegion region.Region
}

// Upcoming lists exams dated today or later, nearest first.
func Upcoming(certs []models.Certification, now time.Time, opts UpcomingOptions) []UpcomingExam {
	var out []UpcomingExam
	add := func(c models.Certification, r models.ExamRound, kind, date string) {
		if date == "" || (opts.SkipNoFixedDate && date == models.NoFixedDate) {
			return
		}
		days, ok := dday.DaysUntil(date, now)
		if !ok || days < 0 {
			return
		}
		out = append(out, UpcomingExam{
			CertificationID:   c.ID,
			CertificationName: c.Name,
			Category:          c.Category,
			Emoji:             CategoryEmoji(c.Category),
			Round:             r.Round,
			Kind:              kind,
			Date:              date,
			DaysUntil:         days,
			DDay:              dday.Format(days),
			Region:            RoundRegion(r, opts.DefaultRegion),
		})
	}
	for _, c := range certs {
		for _, r := range c.Exams {
			add(c, r, KindWritten, r.WrittenExam)
			if opts.IncludePractical {
				add(c, r, KindPractical, r.PracticalExam)
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DaysUntil < out[j].DaysUntil })
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	if out == nil {
		out = []UpcomingExam{}
	}
	return out
}

// RoundRegion infers the forecast region from the round's first exam site.
func RoundRegion(r models.ExamRound, fallback region.Region) region.Region {
	if len(r.Locations) == 0 {
		return fallback
	}
	return region.InferOr(r.Locations[0].Address, fallback)
}

// DedupLocations collects the exam sites of all rounds, unique by name, in
// first-seen order.
func DedupLocations(rounds []models.ExamRound) []models.ExamLocation {
	seen := make(map[string]struct{})
	out := []models.ExamLocation{}
	for _, r := range rounds {
		for _, loc := range r.Locations {
			if _, dup := seen[loc.Name]; dup {
				continue
			}
			seen[loc.Name] = struct{}{}
			out = append(out, loc)
		}
	}
	return out
}

// SortRounds returns a copy ordered by the number formed from the digits in
// each round label. Labels without digits go last.
func SortRounds(rounds []models.ExamRound) []models.ExamRound {
	out := make([]models.ExamRound, len(rounds))
	copy(out, rounds)
	sort.SliceStable(out, func(i, j int) bool {
		return roundOrder(out[i].Round) < roundOrder(out[j].Round)
	})
	return out
}

func roundOrder(label string) int64 {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, label)
	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return math.MaxInt64
	}
	return n
}

// FeePoint is one round in a fee trend.
type FeePoint struct {
	Round     string `json:"round"`
	Written   int    `json:"written"`
	Practical int    `json:"practical"`
}

// FeeTrend summarizes written fees across rounds.
type FeeTrend struct {
	Points         []FeePoint `json:"points"`
	MinFee         int        `json:"minFee"`
	MaxFee         int        `json:"maxFee"`
	Change         int        `json:"change"`
	PercentChange  float64    `json:"percentChange"`
	AverageWritten int        `json:"averageWritten"`
	HasPractical   bool       `json:"hasPractical"`
}

// ComputeFeeTrend builds the trend over rounds in the given order. Percent
// change is relative to the minimum and rounded to one decimal; it is 0 when
// the minimum is 0.
func ComputeFeeTrend(rounds []models.ExamRound) FeeTrend {
	t := FeeTrend{Points: make([]FeePoint, 0, len(rounds))}
	if len(rounds) == 0 {
		return t
	}
	t.MinFee, t.MaxFee = math.MaxInt, math.MinInt
	sum := 0
	for _, r := range rounds {
		p := FeePoint{Round: r.Round, Written: r.WrittenFee}
		if r.PracticalFee != nil {
			p.Practical = *r.PracticalFee
			if p.Practical != 0 {
				t.HasPractical = true
			}
		}
		t.Points = append(t.Points, p)
		t.MinFee = min(t.MinFee, r.WrittenFee)
		t.MaxFee = max(t.MaxFee, r.WrittenFee)
		sum += r.WrittenFee
	}
	t.Change = t.MaxFee - t.MinFee
	if t.MinFee != 0 {
		t.PercentChange = math.Round(float64(t.Change)/float64(t.MinFee)*1000) / 10
	}
	t.AverageWritten = int(math.Round(float64(sum) / float64(len(rounds))))
	return t
}

// FilterCertifications keeps certifications whose name or category contains
// query, ignoring case. A blank query keeps everything.
func FilterCertifications(certs []models.Certification, query string) []models.Certification {
	q := foldQuery(query)
	out := []models.Certification{}
	for _, c := range certs {
		if q == "" || containsFold(c.Name, q) || containsFold(c.Category, q) {
			out = append(out, c)
		}
	}
	return out
}

// FilterTerminals keeps terminals whose name or address contains query.
func FilterTerminals(terms []models.Terminal, query string) []models.Terminal {
	q := foldQuery(query)
	out := []models.Terminal{}
	for _, t := range terms {
		if q == "" || containsFold(t.Name, q) || containsFold(t.Address, q) {
			out = append(out, t)
		}
	}
	return out
}

// FindCertification returns the certification with id.
func FindCertification(certs []models.Certification, id string) (models.Certification, bool) {
	for _, c := range certs {
		if c.ID == id {
			return c, true
		}
	}
	return models.Certification{}, false
}

func foldQuery(q string) string {
	return strings.ToLower(norm.NFC.String(strings.TrimSpace(q)))
}

func containsFold(s, foldedQuery string) bool {
	return strings.Contains(strings.ToLower(norm.NFC.String(s)), foldedQuery)
}

// TerminalGroup is a named set of terminals.
type TerminalGroup struct {
	Name      string            `json:"name"`
	Terminals []models.Terminal `json:"terminals"`
}

var terminalGroups = []struct {
	name    string
	markers []string
}{
	{"서울/경기", []string{"서울", "경기", "인천"}},
	{"부산/울산", []string{"부산", "울산"}},
	{"대구/경북", []string{"대구", "경북"}},
	{"광주/전라", []string{"광주", "전북", "전남"}},
	{"대전/충청", []string{"대전", "충남", "충북"}},
	{"강원", []string{"강원"}},
	{"경남", []string{"경남"}},
	{"제주", []string{"제주"}},
}

// TerminalGroupNames lists the groups in display order.
func TerminalGroupNames() []string {
	names := make([]string, len(terminalGroups))
	for i, g := range terminalGroups {
		names[i] = g.name
	}
	return names
}

// GroupTerminals buckets terminals by address markers. Groups are matched
// independently, so an address can land in more than one group, and every
// group is present even when empty.
func GroupTerminals(terms []models.Terminal) []TerminalGroup {
	out := make([]TerminalGroup, len(terminalGroups))
	for i, g := range terminalGroups {
		out[i] = TerminalGroup{Name: g.name, Terminals: []models.Terminal{}}
		for _, t := range terms {
			for _, m := range g.markers {
				if strings.Contains(t.Address, m) {
					out[i].Terminals = append(out[i].Terminals, t)
					break
				}
			}
		}
	}
	return out
}

// CategoryEmoji picks the display icon for a category.
func CategoryEmoji(category string) string {
	switch {
	case strings.Contains(category, "IT"), strings.Contains(category, "컴퓨터"):
		return "💻"
	case strings.Contains(category, "어학"):
		return "📚"
	case strings.Contains(category, "부동산"):
		return "🏢"
	case strings.Contains(category, "교통"):
		return "🚗"
	case strings.Contains(category, "역사"):
		return "📜"
	}
	return "📋"
}
