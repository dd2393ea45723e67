// Package scraper collects visitor reviews for a place from the mobile
// review feed using a pooled headless browser.
package scraper

import (
	"context"
	"fmt"
	"time"

	"sjsage522/placereview/helpers"
	"sjsage522/placereview/internal/browser"
	"sjsage522/placereview/internal/dates"
	"sjsage522/placereview/logger"
	"sjsage522/placereview/pkg/errors"
)

// Config holds the scraper's navigation and scrolling knobs.
type Config struct {
	URLTemplate   string
	NavTimeout    time.Duration
	NavRetries    int
	NavRetryDelay time.Duration
	IdleTimeout   time.Duration
	Scroll        ScrollConfig
	Selectors     SelectorTable
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		URLTemplate:   "https://m.place.naver.com/place/%s/review/visitor",
		NavTimeout:    30 * time.Second,
		NavRetries:    2,
		NavRetryDelay: 2 * time.Second,
		IdleTimeout:   10 * time.Second,
		Scroll:        DefaultScrollConfig,
		Selectors:     DefaultSelectors,
	}
}

// Scraper runs scrapes against sessions leased from a browser pool.
type Scraper struct {
	pool      *browser.Pool
	cfg       Config
	extractor *Extractor
	dates     *dates.Normalizer
}

// New creates a Scraper. normalizer may be nil to use the wall clock.
func New(pool *browser.Pool, cfg Config, normalizer *dates.Normalizer) (*Scraper, error) {
	extractor, err := NewExtractor(cfg.Selectors)
	if err != nil {
		return nil, errors.NewConfiguration("build review extractor", err)
	}
	if normalizer == nil {
		normalizer = dates.New()
	}
	return &Scraper{pool: pool, cfg: cfg, extractor: extractor, dates: normalizer}, nil
}

// Scrape opens the place's review feed, scrolls until the mode is
// satisfied and returns the filtered reviews. The browser session is
// released on every path.
func (s *Scraper) Scrape(ctx context.Context, opts Options) (*Result, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if opts.Location == nil {
		opts.Location = s.dates.Location()
	}
	log := logger.ForScraper(opts.PlaceID)

	session, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer session.Close()
	page := session.Page()

	url := fmt.Sprintf(s.cfg.URLTemplate, opts.PlaceID)
	err = helpers.Retry(ctx, s.cfg.NavRetries+1, s.cfg.NavRetryDelay, func(attempt int) error {
		navCtx, cancel := context.WithTimeout(ctx, s.cfg.NavTimeout)
		defer cancel()
		if err := page.Navigate(navCtx, url); err != nil {
			log.Warn().Err(err).Int("attempt", attempt).Str("url", url).Msg("Navigation failed")
			return err
		}
		return nil
	})
	if err != nil {
		session.MarkProxyFailed()
		return nil, errors.NewNavigation("scraper", "open "+url, err)
	}

	if err := page.WaitIdle(ctx, s.cfg.IdleTimeout); err != nil {
		log.Debug().Err(err).Msg("Network did not go idle, continuing")
	}

	placeName := s.placeName(ctx, page, log)

	ctrl := NewScrollController(page, s.extractor, s.dates, s.cfg.Selectors.LoadMore, opts, s.cfg.Scroll)
	acc, reason, err := ctrl.Run(ctx)
	if err != nil {
		return nil, err
	}

	reviews := ApplyFilter(acc.Reviews(), opts)
	log.Info().
		Str("place_name", placeName).
		Str("mode", string(opts.Mode)).
		Int("collected", acc.Len()).
		Int("kept", len(reviews)).
		Str("reason", string(reason)).
		Msg("Scrape finished")

	return &Result{
		PlaceName:  placeName,
		Reviews:    reviews,
		Collected:  acc.Len(),
		StopReason: reason,
	}, nil
}

func (s *Scraper) placeName(ctx context.Context, page browser.Page, log *logger.Logger) string {
	html, err := page.HTML(ctx)
	if err != nil {
		log.Debug().Err(err).Msg("Could not read page HTML for place name")
		return ""
	}
	if name := PlaceName(html, s.cfg.Selectors.PlaceName); name != "" {
		return name
	}
	title, err := page.Title(ctx)
	if err != nil {
		return ""
	}
	return fromTitle(title)
}
