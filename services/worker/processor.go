package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"sjsage522/placereview/helpers"
	"sjsage522/placereview/internal/scraper"
	"sjsage522/placereview/logger"
	"sjsage522/placereview/pkg/errors"
	"sjsage522/placereview/services/analyzer"
	"sjsage522/placereview/services/cache"
	"sjsage522/placereview/services/store"
)

// Progress bands: collection fills [0,50], analysis fills [50,100].
const (
	scrapeBand   = 50
	analysisBand = 50
)

// ReviewScraper is the part of the scraper the processor needs
type ReviewScraper interface {
	Scrape(ctx context.Context, opts scraper.Options) (*scraper.Result, error)
}

// AnalysisOutcome counts per-review analysis results
type AnalysisOutcome struct {
	Succeeded int
	Failed    int
}

func (o AnalysisOutcome) add(err error) AnalysisOutcome {
	if err != nil {
		o.Failed++
	} else {
		o.Succeeded++
	}
	return o
}

// DefaultLeaseTTL is how long a job stays owned without a renewal.
const DefaultLeaseTTL = 2 * time.Minute

// Processor runs one job end to end: scrape, persist, analyze
type Processor struct {
	store    store.Store
	scraper  ReviewScraper
	analyzer analyzer.Analyzer
	progress *cache.ProgressCache
	logger   helpers.LoggerInterface
	leaseTTL time.Duration
	now      func() time.Time
}

// NewProcessor creates a processor. progress may be nil.
func NewProcessor(
	st store.Store,
	sc ReviewScraper,
	an analyzer.Analyzer,
	progress *cache.ProgressCache,
	logger helpers.LoggerInterface,
) *Processor {
	return &Processor{
		store:    st,
		scraper:  sc,
		analyzer: an,
		progress: progress,
		logger:   logger,
		leaseTTL: DefaultLeaseTTL,
		now:      time.Now,
	}
}

// WithLeaseTTL sets the job lease duration. The lease is renewed every
// third of it while the job runs.
func (p *Processor) WithLeaseTTL(ttl time.Duration) *Processor {
	if ttl > 0 {
		p.leaseTTL = ttl
	}
	return p
}

// Process handles a delivered job id. Completed and failed jobs are left
// alone. A job runs only while this processor holds its lease; a job still
// marked processing whose lease expired was interrupted and starts over.
//
// Errors for jobs left unfinished are retryable. A job recorded as failed
// returns a non-retryable error wrapping the cause.
func (p *Processor) Process(ctx context.Context, jobID string) error {
	job, err := p.store.GetJob(ctx, jobID)
	if errors.Is(err, errors.ErrJobNotFound) {
		p.logger.LogInfo("job %s no longer exists, skipping", jobID)
		return nil
	}
	if err != nil {
		return errors.NewTransient("worker", "load job "+jobID, err)
	}
	if job.Status.IsTerminal() {
		p.logger.LogInfo("job %s already %s, skipping", jobID, job.Status)
		return nil
	}

	owner := uuid.NewString()
	claimed, err := p.store.ClaimJob(ctx, jobID, owner, p.leaseTTL)
	if err != nil {
		return errors.NewTransient("worker", "claim job "+jobID, err)
	}
	if !claimed {
		p.logger.LogInfo("job %s is leased by another worker, leaving it", jobID)
		return errors.NewTransient("worker", "claim job "+jobID, errors.ErrJobBusy)
	}
	defer p.release(jobID, owner)

	if job.Status == store.StatusProcessing {
		n, err := p.store.DeleteReviews(ctx, jobID)
		if err != nil {
			return errors.NewTransient("worker", "discard partial reviews", err)
		}
		p.logger.LogInfo("job %s resumed after an expired lease, discarded %d partial reviews", jobID, n)
	}

	runCtx, cancel := context.WithCancelCause(ctx)
	beat := make(chan struct{})
	go func() {
		defer close(beat)
		p.heartbeat(runCtx, cancel, jobID, owner)
	}()
	err = p.run(runCtx, job)
	interrupted := context.Cause(runCtx) // shutdown or lost lease
	cancel(nil)
	<-beat

	if err != nil {
		if interrupted != nil {
			// the job stays processing for whoever runs it next
			return errors.NewTransient("worker", "job "+jobID+" interrupted", interrupted)
		}
		p.fail(job, err)
		return errors.NewJobFailed(jobID, err)
	}
	return nil
}

// heartbeat renews the lease until ctx ends. Losing the lease cancels the
// run so a new owner is never raced.
func (p *Processor) heartbeat(ctx context.Context, cancel context.CancelCauseFunc, jobID, owner string) {
	ticker := time.NewTicker(p.leaseTTL / 3)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		err := p.store.RenewLease(ctx, jobID, owner, p.leaseTTL)
		switch {
		case err == nil:
		case errors.Is(err, errors.ErrLeaseLost):
			p.logger.LogError("lease", fmt.Errorf("job %s: %w", jobID, err))
			cancel(err)
			return
		case ctx.Err() == nil:
			logger.ForJob(jobID).Warn().Err(err).Msg("Lease renewal failed, retrying")
		}
	}
}

func (p *Processor) release(jobID, owner string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.store.ReleaseJob(ctx, jobID, owner); err != nil {
		logger.ForJob(jobID).Warn().Err(err).Msg("Failed to release job lease")
	}
}

func (p *Processor) run(ctx context.Context, job *store.Job) error {
	log := logger.ForJob(job.ID)
	started := p.now()

	if err := p.update(ctx, job, store.JobUpdate{
		Status:        ptr(store.StatusProcessing),
		StatusMessage: ptr("collecting reviews"),
		Progress:      ptr(0),
	}); err != nil {
		return err
	}

	opts := scraper.Options{
		PlaceID:    job.PlaceID,
		Mode:       job.Mode,
		LimitCount: job.LimitCount,
		OnProgress: func(pr scraper.Progress) {
			if err := p.update(ctx, job, store.JobUpdate{
				StatusMessage: ptr(collectMessage(pr)),
				Progress:      ptr(scrapeProgress(pr)),
			}); err != nil {
				log.Warn().Err(err).Msg("Failed to record scrape progress")
			}
		},
	}
	if job.StartDate != nil {
		opts.StartDate = *job.StartDate
	}
	if job.EndDate != nil {
		opts.EndDate = *job.EndDate
	}

	res, err := p.scraper.Scrape(ctx, opts)
	if err != nil {
		return err
	}

	total := len(res.Reviews)
	log.Info().
		Str("place_name", res.PlaceName).
		Int("collected", res.Collected).
		Int("kept", total).
		Str("reason", string(res.StopReason)).
		Msg("Scrape finished")

	if total == 0 {
		return p.update(ctx, job, store.JobUpdate{
			Status:          ptr(store.StatusCompleted),
			StatusMessage:   ptr("no reviews found"),
			Progress:        ptr(100),
			TotalReviews:    ptr(0),
			AnalyzedReviews: ptr(0),
			PlaceName:       nonEmpty(res.PlaceName),
			CompletedAt:     ptr(p.now()),
		})
	}

	if err := p.update(ctx, job, store.JobUpdate{
		StatusMessage: ptr(fmt.Sprintf("saving %d reviews", total)),
		Progress:      ptr(scrapeBand),
		TotalReviews:  ptr(total),
		PlaceName:     nonEmpty(res.PlaceName),
	}); err != nil {
		return err
	}

	saved := make([]store.Review, 0, total)
	for _, r := range res.Reviews {
		row := store.Review{
			JobID:      job.ID,
			Text:       r.Text,
			ReviewDate: p.now(),
			Author:     r.Author,
			Rating:     r.Rating,
		}
		if r.Date != nil {
			row.ReviewDate = *r.Date
		}
		if err := p.store.InsertReview(ctx, &row); err != nil {
			return err
		}
		saved = append(saved, row)
	}

	outcome, err := p.analyzeAll(ctx, job, saved)
	if err != nil {
		return err
	}

	log.Info().
		Int("analyzed", outcome.Succeeded).
		Int("failed", outcome.Failed).
		Dur("elapsed", p.now().Sub(started)).
		Msg("Job completed")

	return p.update(ctx, job, store.JobUpdate{
		Status:          ptr(store.StatusCompleted),
		StatusMessage:   ptr(fmt.Sprintf("analyzed %d/%d reviews", outcome.Succeeded, total)),
		Progress:        ptr(100),
		AnalyzedReviews: ptr(outcome.Succeeded),
		CompletedAt:     ptr(p.now()),
	})
}

// analyzeAll folds the reviews into an outcome. A failed analysis is logged
// and skipped; only cancellation stops the loop.
func (p *Processor) analyzeAll(ctx context.Context, job *store.Job, reviews []store.Review) (AnalysisOutcome, error) {
	var outcome AnalysisOutcome
	for i := range reviews {
		if err := ctx.Err(); err != nil {
			return outcome, err
		}

		err := p.analyzeOne(ctx, &reviews[i])
		if err != nil {
			p.logger.LogError("analyzer", fmt.Errorf("job %s review %d: %w", job.ID, reviews[i].ID, err))
		}
		outcome = outcome.add(err)

		done := i + 1
		if err := p.update(ctx, job, store.JobUpdate{
			StatusMessage:   ptr(fmt.Sprintf("analyzing %d/%d reviews", done, len(reviews))),
			Progress:        ptr(analysisProgress(done, len(reviews))),
			AnalyzedReviews: ptr(outcome.Succeeded),
		}); err != nil {
			logger.ForJob(job.ID).Warn().Err(err).Msg("Failed to record analysis progress")
		}
	}
	return outcome, nil
}

func (p *Processor) analyzeOne(ctx context.Context, review *store.Review) error {
	res, err := p.analyzer.Analyze(ctx, review.Text)
	if err != nil {
		return err
	}

	a := store.Analysis{
		ReviewID:  review.ID,
		Sentiment: res.Sentiment,
		Keywords:  res.Keywords,
		Summary:   res.Summary,
	}
	for _, asp := range res.Aspects {
		a.Aspects = append(a.Aspects, store.Aspect{Aspect: asp.Aspect, Sentiment: asp.Sentiment})
	}
	return p.store.InsertAnalysis(ctx, &a)
}

// fail records err verbatim. It runs detached from ctx so the status is
// written even when ctx is close to its deadline.
func (p *Processor) fail(job *store.Job, cause error) {
	p.logger.LogError(job.ID, cause)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := p.update(ctx, job, store.JobUpdate{
		Status:        ptr(store.StatusFailed),
		StatusMessage: ptr("failed"),
		ErrorMessage:  ptr(cause.Error()),
		CompletedAt:   ptr(p.now()),
	}); err != nil {
		p.logger.LogError(job.ID, fmt.Errorf("mark failed: %w", err))
	}
}

// update persists u, mirrors it onto job and refreshes the cached snapshot
func (p *Processor) update(ctx context.Context, job *store.Job, u store.JobUpdate) error {
	if err := p.store.UpdateJob(ctx, job.ID, u); err != nil {
		return err
	}
	apply(job, u, p.now())
	p.progress.Save(Snapshot(job))
	return nil
}

// apply mirrors the database update semantics on an in-memory job
func apply(job *store.Job, u store.JobUpdate, now time.Time) {
	if u.Status != nil {
		job.Status = *u.Status
	}
	if u.StatusMessage != nil {
		job.StatusMessage = *u.StatusMessage
	}
	if u.Progress != nil {
		job.Progress = max(job.Progress, min(*u.Progress, 100))
	}
	if u.TotalReviews != nil {
		job.TotalReviews = fmt.Sprint(*u.TotalReviews)
	}
	if u.AnalyzedReviews != nil {
		job.AnalyzedReviews = fmt.Sprint(*u.AnalyzedReviews)
	}
	if u.ErrorMessage != nil {
		job.ErrorMessage = *u.ErrorMessage
	}
	if u.PlaceName != nil {
		job.PlaceName = *u.PlaceName
	}
	if u.CompletedAt != nil {
		job.CompletedAt = u.CompletedAt
	}
	job.UpdatedAt = now
}

// Snapshot converts a job into its cached form
func Snapshot(job *store.Job) cache.JobSnapshot {
	return cache.JobSnapshot{
		JobID:           job.ID,
		PlaceID:         job.PlaceID,
		PlaceName:       job.PlaceName,
		Status:          string(job.Status),
		StatusMessage:   job.StatusMessage,
		Progress:        job.Progress,
		TotalReviews:    job.TotalReviews,
		AnalyzedReviews: job.AnalyzedReviews,
		ErrorMessage:    job.ErrorMessage,
		UpdatedAt:       job.UpdatedAt,
	}
}

func scrapeProgress(pr scraper.Progress) int {
	var frac float64
	switch {
	case pr.Target > 0:
		frac = float64(pr.Collected) / float64(pr.Target)
	case pr.MaxIterations > 0:
		frac = float64(pr.Iteration) / float64(pr.MaxIterations)
	}
	return int(min(frac, 1) * scrapeBand)
}

func analysisProgress(done, total int) int {
	if total == 0 {
		return 100
	}
	return scrapeBand + done*analysisBand/total
}

func collectMessage(pr scraper.Progress) string {
	if pr.Target > 0 {
		return fmt.Sprintf("collected %d/%d reviews", pr.Collected, pr.Target)
	}
	return fmt.Sprintf("collected %d reviews", pr.Collected)
}

func ptr[T any](v T) *T { return &v }

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
