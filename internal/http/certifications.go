package http

import (
	"net/http"
	"net/url"
	"time"

	"github.com/kjstillabower/certexam-service/internal/catalog"
	"github.com/kjstillabower/certexam-service/internal/models"
	"github.com/kjstillabower/certexam-service/internal/observability"
	"github.com/kjstillabower/certexam-service/internal/service"
	"github.com/kjstillabower/certexam-service/internal/validation"
)

type certificationSummary struct {
	models.Certification
	Emoji    string                `json:"emoji"`
	NextExam *catalog.UpcomingExam `json:"nextExam"`
}

type certificationListResponse struct {
	Certifications []certificationSummary `json:"certifications"`
	Count          int                    `json:"count"`
	Stale          bool                   `json:"stale"`
}

type certificationDetailResponse struct {
	Certification models.Certification  `json:"certification"`
	Emoji         string                `json:"emoji"`
	Rounds        []models.ExamRound    `json:"rounds"`
	Locations     []models.ExamLocation `json:"locations"`
	FeeTrend      catalog.FeeTrend      `json:"feeTrend"`
	NextExam      *catalog.UpcomingExam `json:"nextExam"`
	Stale         bool                  `json:"stale"`
}

type examWeatherResponse struct {
	CertificationID string                   `json:"certificationId"`
	Weather         []service.ExamDayWeather `json:"weather"`
}

// ListCertifications handles GET /api/certifications?q=.
func (h *Handler) ListCertifications(w http.ResponseWriter, r *http.Request) {
	q, err := validation.ValidateQuery(r.URL.Query().Get("q"), h.cfg.MaxQueryLength)
	if err != nil {
		writeBadRequest(w, r, "INVALID_QUERY", err)
		return
	}
	snap, stale, ok := h.snapshot(w, r)
	if !ok {
		return
	}
	now := h.now()
	certs := catalog.FilterCertifications(snap.Certifications, q)
	out := make([]certificationSummary, 0, len(certs))
	for _, c := range certs {
		out = append(out, certificationSummary{
			Certification: c,
			Emoji:         catalog.CategoryEmoji(c.Category),
			NextExam:      h.nextExam(c, now),
		})
	}
	writeJSON(w, http.StatusOK, certificationListResponse{Certifications: out, Count: len(out), Stale: stale})
}

// GetCertification handles GET /api/certifications/{id}.
func (h *Handler) GetCertification(w http.ResponseWriter, r *http.Request) {
	cert, stale, ok := h.findCertification(w, r)
	if !ok {
		return
	}
	rounds := catalog.SortRounds(cert.Exams)
	writeJSON(w, http.StatusOK, certificationDetailResponse{
		Certification: cert,
		Emoji:         catalog.CategoryEmoji(cert.Category),
		Rounds:        rounds,
		Locations:     catalog.DedupLocations(rounds),
		FeeTrend:      catalog.ComputeFeeTrend(rounds),
		NextExam:      h.nextExam(cert, h.now()),
		Stale:         stale,
	})
}

// GetCertificationWeather handles GET /api/certifications/{id}/weather.
// Regions whose weather is unavailable yield available:false entries.
func (h *Handler) GetCertificationWeather(w http.ResponseWriter, r *http.Request) {
	cert, _, ok := h.findCertification(w, r)
	if !ok {
		return
	}
	rounds := catalog.SortRounds(cert.Exams)
	weather, err := h.newSession(r).LoadExamWeather(r.Context(), rounds, h.cfg.DefaultRegion)
	if err != nil {
		h.upstreamFailed(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, examWeatherResponse{CertificationID: cert.ID, Weather: weather})
}

func (h *Handler) findCertification(w http.ResponseWriter, r *http.Request) (models.Certification, bool, bool) {
	id := pathVar(r, "id")
	if id == "" {
		writeError(w, r, http.StatusBadRequest, "INVALID_ID", "certification id is required")
		return models.Certification{}, false, false
	}
	snap, stale, ok := h.snapshot(w, r)
	if !ok {
		return models.Certification{}, false, false
	}
	cert, found := lookupCertification(snap.Certifications, id)
	if !found {
		observability.LoggerFrom(r.Context(), h.logger).Debug("certification not found")
		writeError(w, r, http.StatusNotFound, "NOT_FOUND", "certification not found")
		return models.Certification{}, false, false
	}
	return cert, stale, true
}

// lookupCertification matches id against stored IDs, which are URL-escaped,
// in either escaped or decoded form.
func lookupCertification(certs []models.Certification, id string) (models.Certification, bool) {
	if c, ok := catalog.FindCertification(certs, id); ok {
		return c, true
	}
	if c, ok := catalog.FindCertification(certs, catalog.EncodeID(id)); ok {
		return c, true
	}
	for _, c := range certs {
		if decoded, err := url.PathUnescape(c.ID); err == nil && decoded == id {
			return c, true
		}
	}
	return models.Certification{}, false
}

// nextExam returns the nearest dated written exam of c, nil when none is ahead.
func (h *Handler) nextExam(c models.Certification, now time.Time) *catalog.UpcomingExam {
	up := catalog.Upcoming([]models.Certification{c}, now, catalog.UpcomingOptions{
		Limit:           1,
		SkipNoFixedDate: true,
		DefaultRegion:   h.cfg.DefaultRegion,
	})
	if len(up) == 0 {
		return nil
	}
	return &up[0]
}
