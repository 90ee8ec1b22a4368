package catalog

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kjstillabower/certexam-service/internal/models"
	"github.com/kjstillabower/certexam-service/internal/region"
)

func upcomingFixture() []models.Certification {
	return []models.Certification{
		{
			ID: "a", Name: "정보처리기사", Category: "IT",
			Exams: []models.ExamRound{
				{Round: "1회", WrittenExam: "2025-01-05"},
				{Round: "2회", WrittenExam: "2025-01-20", PracticalExam: "2025-01-12",
					Locations: []models.ExamLocation{{Name: "부산 B고", Address: "부산광역시 해운대구"}}},
			},
		},
		{
			ID: "b", Name: "토익", Category: "어학",
			Exams: []models.ExamRound{
				{Round: "상시", WrittenExam: models.NoFixedDate},
				{Round: "x", WrittenExam: "미정"},
			},
		},
	}
}

func TestUpcoming_WrittenOnly(t *testing.T) {
	now := time.Date(2025, 1, 10, 15, 0, 0, 0, kst)
	got := Upcoming(upcomingFixture(), now, UpcomingOptions{Limit: 6, DefaultRegion: region.Capital})

	require.Len(t, got, 2)
	assert.Equal(t, "상시", got[0].Date)
	assert.Equal(t, 0, got[0].DaysUntil)
	assert.Equal(t, "D-Day", got[0].DDay)
	assert.Equal(t, "📚", got[0].Emoji)
	assert.Equal(t, region.Capital, got[0].Region)

	assert.Equal(t, "2025-01-20", got[1].Date)
	assert.Equal(t, 10, got[1].DaysUntil)
	assert.Equal(t, "D-10", got[1].DDay)
	assert.Equal(t, region.GyeongnamArea, got[1].Region)
	assert.Equal(t, KindWritten, got[1].Kind)
}

func TestUpcoming_PracticalAndSkipRolling(t *testing.T) {
	now := time.Date(2025, 1, 10, 0, 0, 0, 0, kst)
	got := Upcoming(upcomingFixture(), now, UpcomingOptions{
		Limit: 10, IncludePractical: true, SkipNoFixedDate: true, DefaultRegion: region.Capital,
	})

	require.Len(t, got, 2)
	assert.Equal(t, KindPractical, got[0].Kind)
	assert.Equal(t, 2, got[0].DaysUntil)
	assert.Equal(t, KindWritten, got[1].Kind)
}

func TestUpcoming_LimitAndEmpty(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, kst)
	got := Upcoming(upcomingFixture(), now, UpcomingOptions{Limit: 1})
	require.Len(t, got, 1)

	none := Upcoming(nil, now, UpcomingOptions{})
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestDedupLocations(t *testing.T) {
	rounds := []models.ExamRound{
		{Locations: []models.ExamLocation{{Name: "A", Address: "1"}, {Name: "B"}}},
		{Locations: []models.ExamLocation{{Name: "A", Address: "2"}, {Name: "C"}}},
	}
	got := DedupLocations(rounds)
	want := []models.ExamLocation{{Name: "A", Address: "1"}, {Name: "B"}, {Name: "C"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("DedupLocations() mismatch (-want +got):\n%s", diff)
	}
}

func TestSortRounds(t *testing.T) {
	in := []models.ExamRound{{Round: "제3회"}, {Round: "상시"}, {Round: "제1회"}, {Round: "10회"}, {Round: "특별"}}
	got := SortRounds(in)

	var labels []string
	for _, r := range got {
		labels = append(labels, r.Round)
	}
	assert.Equal(t, []string{"제1회", "제3회", "10회", "상시", "특별"}, labels)
	assert.Equal(t, "제3회", in[0].Round, "input is not reordered")
}

func TestComputeFeeTrend(t *testing.T) {
	rounds := []models.ExamRound{
		{Round: "1회", WrittenFee: 19400, PracticalFee: intPtr(22600)},
		{Round: "2회", WrittenFee: 20000},
		{Round: "3회", WrittenFee: 21000},
	}
	got := ComputeFeeTrend(rounds)

	assert.Equal(t, 19400, got.MinFee)
	assert.Equal(t, 21000, got.MaxFee)
	assert.Equal(t, 1600, got.Change)
	assert.InDelta(t, 8.2, got.PercentChange, 1e-9)
	assert.Equal(t, 20133, got.AverageWritten)
	assert.True(t, got.HasPractical)
	assert.Equal(t, []FeePoint{
		{Round: "1회", Written: 19400, Practical: 22600},
		{Round: "2회", Written: 20000},
		{Round: "3회", Written: 21000},
	}, got.Points)
}

func TestComputeFeeTrend_EdgeCases(t *testing.T) {
	empty := ComputeFeeTrend(nil)
	assert.Empty(t, empty.Points)
	assert.Zero(t, empty.MinFee)

	zero := ComputeFeeTrend([]models.ExamRound{{WrittenFee: 0}, {WrittenFee: 1000}})
	assert.Equal(t, 1000, zero.Change)
	assert.Zero(t, zero.PercentChange)
	assert.False(t, zero.HasPractical)
}

func TestFilterCertifications(t *testing.T) {
	certs := []models.Certification{
		{Name: "정보처리기사", Category: "IT"},
		{Name: "TOEIC", Category: "어학"},
		{Name: "전기기사", Category: "국가기술자격"},
	}
	assert.Len(t, FilterCertifications(certs, ""), 3)
	assert.Len(t, FilterCertifications(certs, "기사"), 2)
	assert.Len(t, FilterCertifications(certs, "toeic"), 1)
	assert.Len(t, FilterCertifications(certs, " it "), 1)
	assert.Empty(t, FilterCertifications(certs, "없음"))
}

func TestFilterTerminals(t *testing.T) {
	terms := []models.Terminal{
		{Name: "동서울터미널", Address: "서울 광진구"},
		{Name: "Central City", Address: "서울 서초구"},
		{Name: "해운대", Address: "부산 해운대구"},
	}
	assert.Len(t, FilterTerminals(terms, "서울"), 2)
	assert.Len(t, FilterTerminals(terms, "central"), 1)
	assert.Len(t, FilterTerminals(terms, "해운대"), 1)
}

func TestGroupTerminals(t *testing.T) {
	terms := []models.Terminal{
		{Name: "a", Address: "서울 광진구"},
		{Name: "b", Address: "인천 미추홀구"},
		{Name: "c", Address: "경남 창원시"},
		{Name: "d", Address: "광주 서구"},
		{Name: "e", Address: "어딘가"},
	}
	groups := GroupTerminals(terms)
	require.Len(t, groups, 8)
	assert.Equal(t, TerminalGroupNames()[0], groups[0].Name)

	byName := map[string]int{}
	for _, g := range groups {
		byName[g.Name] = len(g.Terminals)
		assert.NotNil(t, g.Terminals)
	}
	assert.Equal(t, 2, byName["서울/경기"])
	assert.Equal(t, 1, byName["경남"])
	assert.Equal(t, 1, byName["광주/전라"])
	assert.Equal(t, 0, byName["제주"])
}

func TestCategoryEmoji(t *testing.T) {
	tests := map[string]string{
		"IT":     "💻",
		"컴퓨터활용":  "💻",
		"어학":     "📚",
		"부동산":    "🏢",
		"교통안전":   "🚗",
		"한국사":    "📋",
		"한국역사":   "📜",
		"국가기술자격": "📋",
	}
	for category, want := range tests {
		assert.Equal(t, want, CategoryEmoji(category), category)
	}
}
