package scraper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sjsage522/placereview/internal/browser"
)

const feedFixture = `<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>리뷰</title></head>
<body>
<ul id="_review_list">
  <li>
    <div class="pui__NMi-Dp">맛객</div>
    <div class="pui__vn15t2">분위기 좋고 음식도 맛있어요 또 올게요</div>
    <div class="pui__QKE5Pr"><time datetime="2024-01-15">1.15.월</time></div>
  </li>
  <li>
    <p>주차가 편하고 직원분들이 친절해서 다시 오고 싶어요</p>
    <div>23.1.15.일</div>
  </li>
  <li>
    <div>동네에서제일가는맛집탐험가김철수님의 리뷰</div>
    <div>국물이 진하고 면이 쫄깃해서 아주 만족스러웠습니다</div>
    <div>다음에는 가족들과 함께 와서 다른 메뉴도 꼭 먹어보고 싶네요 정말 추천합니다</div>
    <div>방금</div>
  </li>
  <li>
    <div class="pui__vn15t2">좋아요</div>
  </li>
</ul>
</body></html>`

const catchAllFixture = `<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>리뷰</title></head>
<body>
<section class="visitor_review">
  <p>사장님이 친절하시고 가게가 깔끔해서 좋았습니다</p>
  <span class="date_label">2024.3.5</span>
</section>
</body></html>`

func launchChrome(t *testing.T) browser.Page {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	page, err := browser.NewChromedpLauncher().Launch(ctx, browser.LaunchOptions{
		Headless:  true,
		Width:     browser.MobileWidth,
		Height:    browser.MobileHeight,
		ChromeBin: os.Getenv("CHROME_BIN"),
	})
	if err != nil {
		t.Skipf("Chrome is not available, skipping test: %v", err)
	}
	t.Cleanup(func() { page.Close() })
	return page
}

func fixtureServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	serve := func(body string) http.HandlerFunc {
		return func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.Write([]byte(body))
		}
	}
	mux.HandleFunc("/feed", serve(feedFixture))
	mux.HandleFunc("/catchall", serve(catchAllFixture))
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestExtractorInChrome(t *testing.T) {
	page := launchChrome(t)
	srv := fixtureServer(t)

	e, err := NewExtractor(DefaultSelectors)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	t.Run("feed", func(t *testing.T) {
		require.NoError(t, page.Navigate(ctx, srv.URL+"/feed"))

		records, err := e.Extract(ctx, page)
		require.NoError(t, err)
		require.Len(t, records, 3, "the short item is dropped")

		assert.Equal(t, RawRecord{
			Text:   "분위기 좋고 음식도 맛있어요 또 올게요",
			Date:   "1.15.월",
			Author: "맛객",
		}, records[0])

		assert.Equal(t, "주차가 편하고 직원분들이 친절해서 다시 오고 싶어요", records[1].Text)
		assert.Equal(t, "23.1.15.일", records[1].Date)

		// The profile line is long enough but is chrome; the first real
		// line wins over the longer one after it.
		assert.Equal(t, "국물이 진하고 면이 쫄깃해서 아주 만족스러웠습니다", records[2].Text)
		assert.Equal(t, "방금", records[2].Date)
	})

	t.Run("catch-all container", func(t *testing.T) {
		require.NoError(t, page.Navigate(ctx, srv.URL+"/catchall"))

		records, err := e.Extract(ctx, page)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, "사장님이 친절하시고 가게가 깔끔해서 좋았습니다", records[0].Text)
		assert.Equal(t, "2024.3.5", records[0].Date)
	})
}
