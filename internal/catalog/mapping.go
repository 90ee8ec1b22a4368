// Package catalog assembles certifications and terminals from raw backend
// records and derives the views built on top of them.
package catalog

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/kjstillabower/certexam-service/internal/dday"
	"github.com/kjstillabower/certexam-service/internal/fields"
	"github.com/kjstillabower/certexam-service/internal/models"
)

const (
	defaultSiteName     = "시험장"
	defaultRoundLabel   = "시험 일정"
	defaultCategory     = "자격증"
	defaultAgency       = "국가자격"
	defaultDifficulty   = "정보없음"
	defaultTerminalName = "터미널"
)

// Fees is the fee pair found across fee records. Nil means no record carried it.
type Fees struct {
	Written   *int
	Practical *int
}

// ExtractFees scans items in order and keeps the first parseable written and
// practical fee. Scanning stops once both are found.
func ExtractFees(items []fields.Record, schema fields.Schema) Fees {
	var f Fees
	for _, item := range items {
		if f.Written == nil {
			if v, ok := schema.WrittenFee.FirstNumber(item); ok {
				f.Written = roundFee(v)
			}
		}
		if f.Practical == nil {
			if v, ok := schema.PracticalFee.FirstNumber(item); ok {
				f.Practical = roundFee(v)
			}
		}
		if f.Written != nil && f.Practical != nil {
			break
		}
	}
	return f
}

func roundFee(v float64) *int {
	n := int(math.Round(v))
	return &n
}

// MapLocations converts site records into exam locations. Sites with neither
// a name nor an address are dropped; a missing name defaults to 시험장 and
// unparseable coordinates become 0.
func MapLocations(items []fields.Record, schema fields.Schema) []models.ExamLocation {
	out := make([]models.ExamLocation, 0, len(items))
	for _, item := range items {
		loc := models.ExamLocation{Name: defaultSiteName}
		if v, ok := schema.SiteName.FirstPresent(item); ok {
			loc.Name = text(v)
		}
		if v, ok := schema.SiteAddress.FirstPresent(item); ok {
			loc.Address = text(v)
		}
		if v, ok := schema.Lat.FirstPresent(item); ok {
			loc.Lat, _ = fields.Number(v)
		}
		if v, ok := schema.Lon.FirstPresent(item); ok {
			loc.Lon, _ = fields.Number(v)
		}
		if loc.Name == "" && loc.Address == "" {
			continue
		}
		out = append(out, loc)
	}
	return out
}

// MapRound converts one schedule record into an exam round.
func MapRound(item fields.Record, fees Fees, locations []models.ExamLocation) models.ExamRound {
	r := models.ExamRound{
		Round:                      roundLabel(item),
		RegistrationStart:          fields.String(item["docRegStartDt"]),
		RegistrationEnd:            fields.String(item["docRegEndDt"]),
		WrittenExam:                firstString(item, "docExamStartDt", "docExamEndDt"),
		PracticalRegistrationStart: fields.String(item["pracRegStartDt"]),
		PracticalRegistrationEnd:   fields.String(item["pracRegEndDt"]),
		PracticalExam:              firstString(item, "pracExamStartDt", "pracExamEndDt"),
		ResultDate:                 firstString(item, "pracPassDt", "docPassDt"),
		PracticalFee:               fees.Practical,
		Locations:                  locations,
	}
	if fees.Written != nil {
		r.WrittenFee = *fees.Written
	}
	if r.Locations == nil {
		r.Locations = []models.ExamLocation{}
	}
	return r
}

// roundLabel picks description, then "{year}년 {seq}회", then "{implYy} {implSeq}".
func roundLabel(item fields.Record) string {
	if s := fields.String(item["description"]); s != "" {
		return s
	}
	if truthy(item["year"]) && truthy(item["seq"]) {
		return fmt.Sprintf("%s년 %s회", text(item["year"]), text(item["seq"]))
	}
	if s := strings.TrimSpace(text(item["implYy"]) + " " + text(item["implSeq"])); s != "" {
		return s
	}
	return defaultRoundLabel
}

// MapRounds maps schedules, drops rounds with neither a registration start
// nor a written exam date, and orders the rest by date. Rounds whose date
// does not parse sort last.
func MapRounds(schedules []fields.Record, fees Fees, locations []models.ExamLocation, loc *time.Location) []models.ExamRound {
	rounds := make([]models.ExamRound, 0, len(schedules))
	for _, item := range schedules {
		r := MapRound(item, fees, locations)
		if r.RegistrationStart == "" && r.WrittenExam == "" {
			continue
		}
		rounds = append(rounds, r)
	}
	key := func(r models.ExamRound) (time.Time, bool) {
		base := r.WrittenExam
		if base == "" {
			base = r.RegistrationStart
		}
		return dday.Parse(base, loc)
	}
	sort.SliceStable(rounds, func(i, j int) bool {
		ti, oki := key(rounds[i])
		tj, okj := key(rounds[j])
		if oki != okj {
			return oki
		}
		return oki && ti.Before(tj)
	})
	return rounds
}

// BuildCertification assembles a certification. It returns false when no
// round survives filtering.
func BuildCertification(license models.LicenseSearchResult, schedules []fields.Record, rounds []models.ExamRound) (models.Certification, bool) {
	if len(rounds) == 0 {
		return models.Certification{}, false
	}
	var first fields.Record
	if len(schedules) > 0 {
		first = schedules[0]
	}
	idSource := license.URI
	if idSource == "" {
		idSource = license.Label
	}
	desc := license.Desc
	if desc == "" {
		desc = fields.String(first["description"])
	}
	qualgb := fields.String(first["qualgbNm"])
	return models.Certification{
		ID:          EncodeID(idSource),
		Name:        license.Label,
		Category:    orDefault(qualgb, defaultCategory),
		Difficulty:  defaultDifficulty,
		Description: desc,
		Agency:      orDefault(qualgb, defaultAgency),
		Exams:       rounds,
	}, true
}

// MapTerminal converts a terminal record. Coordinates and route counts are
// not provided and stay zero.
func MapTerminal(item fields.Record) models.Terminal {
	return models.Terminal{
		ID:        text(item["id"]),
		Name:      orDefault(fields.String(item["name"]), defaultTerminalName),
		Type:      models.TerminalType,
		Address:   terminalAddress(item),
		Telephone: text(item["telephone"]),
		URL:       text(item["url"]),
	}
}

func terminalAddress(item fields.Record) string {
	var parts []string
	for _, key := range []string{"sido", "locality", "neighborhood", "streetAddress"} {
		if s := fields.String(item[key]); s != "" {
			parts = append(parts, s)
		}
	}
	if addr := strings.TrimSpace(strings.Join(parts, " ")); addr != "" {
		return addr
	}
	if s := fields.String(item["streetAddress"]); s != "" {
		return s
	}
	return fields.String(item["name"])
}

// EncodeID escapes s the way browsers escape a URI component, so IDs built
// from license URIs survive a single path segment.
func EncodeID(s string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&0x0f])
	}
	return b.String()
}

func isUnreserved(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	return strings.IndexByte("-_.!~*'()", c) >= 0
}

func firstString(item fields.Record, keys ...string) string {
	for _, k := range keys {
		if s := fields.String(item[k]); s != "" {
			return s
		}
	}
	return ""
}

// truthy reports whether v is set: non-nil, non-empty, non-zero.
func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case string:
		return x != ""
	case float64:
		return x != 0 && !math.IsNaN(x)
	case bool:
		return x
	}
	return true
}

// text renders a scalar JSON value; nil becomes "".
func text(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1e15 {
			return fmt.Sprintf("%d", int64(x))
		}
		return fmt.Sprint(x)
	}
	return fmt.Sprint(v)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
