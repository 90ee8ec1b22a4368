package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/kjstillabower/certexam-service/internal/catalog"
	"github.com/kjstillabower/certexam-service/internal/dday"
	"github.com/kjstillabower/certexam-service/internal/models"
	"github.com/kjstillabower/certexam-service/internal/region"
	"github.com/kjstillabower/certexam-service/internal/validation"
	"github.com/kjstillabower/certexam-service/internal/weather"
)

type searchHit struct {
	models.LicenseSearchResult
	CertificationID string `json:"certificationId,omitempty"`
}

type searchResponse struct {
	Query   string      `json:"query"`
	Results []searchHit `json:"results"`
}

type upcomingEntry struct {
	catalog.UpcomingExam
	Weather      *models.RegionWeatherSnapshot `json:"weather,omitempty"`
	WeatherEmoji string                        `json:"weatherEmoji,omitempty"`
}

type upcomingResponse struct {
	Exams []upcomingEntry `json:"exams"`
	Stale bool            `json:"stale"`
}

type terminalsResponse struct {
	Terminals []models.Terminal       `json:"terminals"`
	Groups    []catalog.TerminalGroup `json:"groups"`
	Count     int                     `json:"count"`
	Stale     bool                    `json:"stale"`
}

type regionResponse struct {
	Address string        `json:"address"`
	Region  region.Region `json:"region"`
	Matched bool          `json:"matched"`
}

type ddayResponse struct {
	Date      string `json:"date"`
	DaysUntil *int   `json:"daysUntil"`
	DDay      string `json:"dday"`
	Formatted string `json:"formatted"`
	Short     string `json:"short"`
}

// Search handles GET /api/search?q=. Hits that are in the catalog carry
// their certificationId. A blank query returns no results.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q, err := validation.ValidateQuery(r.URL.Query().Get("q"), h.cfg.MaxQueryLength)
	if err != nil {
		writeBadRequest(w, r, "INVALID_QUERY", err)
		return
	}
	resp := searchResponse{Query: q, Results: []searchHit{}}
	if q == "" {
		writeJSON(w, http.StatusOK, resp)
		return
	}
	hits, err := h.searcher.Search(r.Context(), q)
	if err != nil {
		h.upstreamFailed(w, r, err)
		return
	}

	byName := map[string]string{}
	if snap, _, err := h.catalog.Snapshot(r.Context()); err == nil {
		for _, c := range snap.Certifications {
			byName[c.Name] = c.ID
		}
	}
	for _, hit := range hits {
		resp.Results = append(resp.Results, searchHit{LicenseSearchResult: hit, CertificationID: byName[hit.Label]})
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetUpcoming handles GET /api/upcoming?limit=&practical=&weather=&fixedOnly=.
// Rolling-admission (상시) rounds count as D-Day unless fixedOnly=true.
// With weather=true each exam carries its best forecast; regions whose
// weather is unavailable are left without one.
func (h *Handler) GetUpcoming(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := validation.ValidateLimit(q.Get("limit"), h.cfg.UpcomingLimit, h.cfg.MaxLimit)
	if err != nil {
		writeBadRequest(w, r, "INVALID_LIMIT", err)
		return
	}
	practical, _ := strconv.ParseBool(q.Get("practical"))
	withWeather, _ := strconv.ParseBool(q.Get("weather"))
	fixedOnly, _ := strconv.ParseBool(q.Get("fixedOnly"))

	snap, stale, ok := h.snapshot(w, r)
	if !ok {
		return
	}
	exams := catalog.Upcoming(snap.Certifications, h.now(), catalog.UpcomingOptions{
		Limit:            limit,
		IncludePractical: practical,
		SkipNoFixedDate:  fixedOnly,
		DefaultRegion:    h.cfg.DefaultRegion,
	})
	out := make([]upcomingEntry, len(exams))
	for i, e := range exams {
		out[i] = upcomingEntry{UpcomingExam: e}
	}

	if withWeather && len(exams) > 0 {
		session := h.newSession(r)
		regions := make([]region.Region, len(exams))
		for i, e := range exams {
			regions[i] = e.Region
		}
		if err := session.Load(r.Context(), regions); err != nil {
			h.upstreamFailed(w, r, err)
			return
		}
		for i := range out {
			var date time.Time
			if t, ok := dday.Parse(out[i].Date, h.cfg.Location); ok {
				date = t
			}
			if best := session.Best(out[i].Region, date); best != nil {
				out[i].Weather = best
				out[i].WeatherEmoji = weather.Emoji(best.Condition)
			}
		}
	}
	writeJSON(w, http.StatusOK, upcomingResponse{Exams: out, Stale: stale})
}

// GetTerminals handles GET /api/terminals?q=&group=.
func (h *Handler) GetTerminals(w http.ResponseWriter, r *http.Request) {
	q, err := validation.ValidateQuery(r.URL.Query().Get("q"), h.cfg.MaxQueryLength)
	if err != nil {
		writeBadRequest(w, r, "INVALID_QUERY", err)
		return
	}
	group := r.URL.Query().Get("group")
	if group != "" && !knownGroup(group) {
		writeError(w, r, http.StatusBadRequest, "INVALID_GROUP", "unknown terminal group")
		return
	}
	snap, stale, ok := h.snapshot(w, r)
	if !ok {
		return
	}
	terms := catalog.FilterTerminals(snap.Terminals, q)
	groups := catalog.GroupTerminals(terms)
	if group != "" {
		for _, g := range groups {
			if g.Name == group {
				terms = g.Terminals
				groups = []catalog.TerminalGroup{g}
				break
			}
		}
	}
	writeJSON(w, http.StatusOK, terminalsResponse{Terminals: terms, Groups: groups, Count: len(terms), Stale: stale})
}

func knownGroup(name string) bool {
	for _, g := range catalog.TerminalGroupNames() {
		if g == name {
			return true
		}
	}
	return false
}

// GetRegions handles GET /api/regions and GET /api/regions?address=.
// Without an address it lists the forecast regions. An unmatched address
// resolves to the default region with matched:false.
func (h *Handler) GetRegions(w http.ResponseWriter, r *http.Request) {
	if !r.URL.Query().Has("address") {
		writeJSON(w, http.StatusOK, map[string]any{"regions": region.All(), "default": h.cfg.DefaultRegion})
		return
	}
	addr, err := validation.ValidateAddress(r.URL.Query().Get("address"), h.cfg.MaxQueryLength)
	if err != nil {
		writeBadRequest(w, r, "INVALID_ADDRESS", err)
		return
	}
	reg, matched := region.Infer(addr)
	if !matched {
		reg = h.cfg.DefaultRegion
	}
	writeJSON(w, http.StatusOK, regionResponse{Address: addr, Region: reg, Matched: matched})
}

// GetDDay handles GET /api/dday?date=. Unparseable dates return daysUntil
// null and dday "-".
func (h *Handler) GetDDay(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date == "" {
		writeBadRequest(w, r, "INVALID_DATE", validation.ErrDateEmpty)
		return
	}
	resp := ddayResponse{
		Date:      date,
		DDay:      "-",
		Formatted: dday.FormatDate(date, false),
		Short:     dday.FormatDate(date, true),
	}
	if days, ok := dday.DaysUntil(date, h.now()); ok {
		resp.DaysUntil = &days
		resp.DDay = dday.Format(days)
	}
	writeJSON(w, http.StatusOK, resp)
}
