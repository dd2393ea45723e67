package scraper

import (
	"context"
	"time"

	"sjsage522/placereview/helpers"
	"sjsage522/placereview/internal/browser"
	"sjsage522/placereview/internal/dates"
	"sjsage522/placereview/internal/model"
	"sjsage522/placereview/internal/textclean"
	"sjsage522/placereview/logger"
	"sjsage522/placereview/pkg/errors"
)

// StopReason says why the scroll loop ended.
type StopReason string

const (
	StopCount        StopReason = "count"
	StopDateBoundary StopReason = "date-boundary"
	StopStable       StopReason = "stable"
	StopMaxScrolls   StopReason = "max-scrolls"
)

// ScrollConfig tunes the infinite-scroll loop.
type ScrollConfig struct {
	Settle        time.Duration
	MaxIterations int
	StableRounds  int
}

// DefaultScrollConfig matches the production defaults.
var DefaultScrollConfig = ScrollConfig{
	Settle:        1500 * time.Millisecond,
	MaxIterations: 50,
	StableRounds:  3,
}

// Accumulator keeps reviews in first-seen order, deduplicated by
// fingerprint.
type Accumulator struct {
	seen    map[string]struct{}
	reviews []model.Review
	oldest  *time.Time
}

// NewAccumulator creates an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{seen: make(map[string]struct{})}
}

// Add appends r unless a review with the same fingerprint was seen.
func (a *Accumulator) Add(r model.Review) bool {
	fp := model.Fingerprint(r.Text)
	if _, dup := a.seen[fp]; dup {
		return false
	}
	a.seen[fp] = struct{}{}
	a.reviews = append(a.reviews, r)
	if r.Date != nil && (a.oldest == nil || r.Date.Before(*a.oldest)) {
		d := *r.Date
		a.oldest = &d
	}
	return true
}

// Len returns the number of distinct reviews.
func (a *Accumulator) Len() int { return len(a.reviews) }

// Reviews returns the reviews in first-seen order.
func (a *Accumulator) Reviews() []model.Review { return a.reviews }

// Oldest returns the earliest dated review seen so far.
func (a *Accumulator) Oldest() (time.Time, bool) {
	if a.oldest == nil {
		return time.Time{}, false
	}
	return *a.oldest, true
}

// ScrollController drives extract, scroll and settle until a stop
// condition holds.
type ScrollController struct {
	page      browser.Page
	extractor *Extractor
	dates     *dates.Normalizer
	loadMore  []string
	opts      Options
	cfg       ScrollConfig
	log       *logger.Logger
	sleep     func(context.Context, time.Duration) error
}

// NewScrollController binds a controller to an already-loaded page.
func NewScrollController(page browser.Page, extractor *Extractor, normalizer *dates.Normalizer, loadMore []string, opts Options, cfg ScrollConfig) *ScrollController {
	if opts.Location == nil {
		opts.Location = normalizer.Location()
	}
	return &ScrollController{
		page:      page,
		extractor: extractor,
		dates:     normalizer,
		loadMore:  loadMore,
		opts:      opts,
		cfg:       cfg,
		log:       logger.ForScraper(opts.PlaceID),
		sleep:     helpers.Sleep,
	}
}

// Run loops until a stop condition holds. Conditions are checked in a
// fixed order: count, date boundary, stability, iteration ceiling.
func (c *ScrollController) Run(ctx context.Context) (*Accumulator, StopReason, error) {
	acc := NewAccumulator()
	stable := 0

	for iteration := 1; ; iteration++ {
		if err := ctx.Err(); err != nil {
			return acc, "", err
		}

		records, err := c.extractor.Extract(ctx, c.page)
		if err != nil {
			if !isAnomaly(err) {
				return acc, "", err
			}
			c.log.Warn().Err(err).Int("iteration", iteration).Msg("Extraction anomaly")
		}

		added := 0
		for _, rec := range records {
			review, ok := c.normalize(rec)
			if ok && acc.Add(review) {
				added++
			}
		}
		if added == 0 {
			stable++
		} else {
			stable = 0
		}

		target := 0
		if c.opts.Mode == model.ModeByCount {
			target = c.opts.LimitCount
		}
		c.opts.report(Progress{
			Collected:     acc.Len(),
			Target:        target,
			Iteration:     iteration,
			MaxIterations: c.cfg.MaxIterations,
		})

		if reason, stop := c.shouldStop(acc, stable, iteration); stop {
			c.log.Info().
				Int("iteration", iteration).
				Int("collected", acc.Len()).
				Str("reason", string(reason)).
				Msg("Scroll loop stopped")
			return acc, reason, nil
		}

		c.log.Debug().
			Int("iteration", iteration).
			Int("collected", acc.Len()).
			Int("added", added).
			Int("stable_rounds", stable).
			Msg("Scrolling")

		if err := c.page.ScrollToBottom(ctx); err != nil {
			return acc, "", errors.NewBrowser("scroll", "scroll to bottom", err)
		}
		if err := c.sleep(ctx, c.cfg.Settle); err != nil {
			return acc, "", err
		}
		if len(c.loadMore) > 0 {
			clicked, err := c.page.ClickFirst(ctx, c.loadMore)
			if err != nil {
				c.log.Debug().Err(err).Msg("Load-more click failed")
			} else if clicked {
				c.log.Debug().Int("iteration", iteration).Msg("Clicked load-more")
			}
		}
	}
}

func (c *ScrollController) shouldStop(acc *Accumulator, stable, iteration int) (StopReason, bool) {
	if c.opts.Mode == model.ModeByCount && acc.Len() >= c.opts.LimitCount {
		return StopCount, true
	}
	if c.opts.Mode.IsDateBounded() {
		if oldest, ok := acc.Oldest(); ok && c.opts.day(oldest).Before(c.opts.day(c.opts.StartDate)) {
			return StopDateBoundary, true
		}
	}
	if stable >= c.cfg.StableRounds {
		return StopStable, true
	}
	if iteration >= c.cfg.MaxIterations {
		return StopMaxScrolls, true
	}
	return "", false
}

// normalize cleans a raw record; records whose text cleans to nothing are
// dropped.
func (c *ScrollController) normalize(rec RawRecord) (model.Review, bool) {
	text := textclean.Clean(rec.Text)
	if text == "" {
		return model.Review{}, false
	}
	return model.Review{
		Text:   text,
		Date:   c.dates.ParsePtr(rec.Date),
		Author: rec.Author,
		Rating: rec.Rating,
	}, true
}
