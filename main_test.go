package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sjsage522/placereview/config"
	"sjsage522/placereview/internal/model"
	"sjsage522/placereview/internal/scraper"
	apperrors "sjsage522/placereview/pkg/errors"
	"sjsage522/placereview/services/store"
)

func TestJobFlagsSpec(t *testing.T) {
	f := jobFlags{place: "https://m.place.naver.com/restaurant/1234567/review/visitor", mode: "by-count", limit: 20}
	spec, err := f.spec()
	require.NoError(t, err)
	assert.Equal(t, "1234567", spec.PlaceID)
	assert.Equal(t, model.ModeByCount, spec.Mode)
	assert.Equal(t, 20, spec.LimitCount)
	assert.Nil(t, spec.StartDate)

	f = jobFlags{place: "1234567", mode: "date-range", start: "2026-01-01", end: "2026-01-31", limit: 99}
	spec, err = f.spec()
	require.NoError(t, err)
	assert.Zero(t, spec.LimitCount, "limit is ignored outside by-count")
	require.NotNil(t, spec.StartDate)
	require.NotNil(t, spec.EndDate)
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.Local), *spec.StartDate)
	assert.Equal(t, time.Date(2026, 1, 31, 0, 0, 0, 0, time.Local), *spec.EndDate)
}

func TestJobFlagsSpecErrors(t *testing.T) {
	tests := []struct {
		name  string
		flags jobFlags
	}{
		{"bad place", jobFlags{place: "https://example.com", mode: "by-count", limit: 1}},
		{"bad mode", jobFlags{place: "1234567", mode: "weekly"}},
		{"missing limit", jobFlags{place: "1234567", mode: "by-count"}},
		{"missing start", jobFlags{place: "1234567", mode: "since-date"}},
		{"bad date", jobFlags{place: "1234567", mode: "since-date", start: "01/02/2026"}},
		{"inverted range", jobFlags{place: "1234567", mode: "date-range", start: "2026-02-01", end: "2026-01-01"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.flags.spec()
			var se *apperrors.ScrapeError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, apperrors.ErrorTypeValidation, se.Type)
		})
	}
}

func TestJoinAnalyses(t *testing.T) {
	date := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	reviews := []store.Review{
		{ID: 1, Text: "국물이 진해요", ReviewDate: date},
		{ID: 2, Text: "분석 실패한 리뷰", ReviewDate: date},
	}
	analyses := []store.Analysis{{ReviewID: 1, Sentiment: "Positive", Keywords: []string{"국물"}}}

	got := joinAnalyses(reviews, analyses)
	require.Len(t, got, 2)
	assert.Equal(t, "Positive", got[0].Sentiment)
	assert.Equal(t, "2026-03-02", got[0].Date)
	assert.Empty(t, got[1].Sentiment)
}

func TestToScrapeOutput(t *testing.T) {
	d := time.Date(2026, 3, 2, 0, 0, 0, 0, time.Local)
	out := toScrapeOutput("1234567", &scraper.Result{
		PlaceName:  "성수 커피",
		Collected:  4,
		StopReason: scraper.StopCount,
		Reviews:    []model.Review{{Text: "커피가 맛있어요", Date: &d}, {Text: "날짜 없는 리뷰"}},
	})
	assert.Equal(t, "count", out.StopReason)
	require.Len(t, out.Reviews, 2)
	assert.Equal(t, "2026-03-02", out.Reviews[0].Date)
	assert.Empty(t, out.Reviews[1].Date)
}

func TestScraperConfigFromEnv(t *testing.T) {
	t.Setenv("SCROLL_MAX_ITERATIONS", "12")
	t.Setenv("NAV_RETRIES", "4")
	t.Setenv("PLACE_REVIEW_URL_TEMPLATE", "https://example.test/place/%s/reviews")

	sc := scraperConfig(config.LoadConfig())
	assert.Equal(t, 12, sc.Scroll.MaxIterations)
	assert.Equal(t, 4, sc.NavRetries)
	assert.Equal(t, "https://example.test/place/%s/reviews", sc.URLTemplate)
	assert.Equal(t, scraper.DefaultSelectors.Containers, sc.Selectors.Containers)
}

func TestScraperConfigProductionIdleTimeout(t *testing.T) {
	assert.Equal(t, scraper.DefaultConfig().IdleTimeout, scraperConfig(config.LoadConfig()).IdleTimeout)

	t.Setenv("PLACEREVIEW_ENVIRONMENT", "production")
	sc := scraperConfig(config.LoadConfig())
	assert.Equal(t, 20*time.Second, sc.IdleTimeout)
	assert.Equal(t, 60*time.Second, sc.NavTimeout)
}
