package worker

import (
	"context"
	"time"

	"sjsage522/placereview/internal/model"
	"sjsage522/placereview/internal/scraper"
	"sjsage522/placereview/pkg/errors"
	"sjsage522/placereview/services/cache"
	"sjsage522/placereview/services/queue"
	"sjsage522/placereview/services/store"
)

// JobSpec is what a caller asks for when submitting a job
type JobSpec struct {
	PlaceID    string
	Mode       model.Mode
	LimitCount int
	StartDate  *time.Time
	EndDate    *time.Time
}

// Validate applies the scraper's per-mode parameter rules
func (s JobSpec) Validate() error {
	opts := scraper.Options{PlaceID: s.PlaceID, Mode: s.Mode, LimitCount: s.LimitCount}
	if s.StartDate != nil {
		opts.StartDate = *s.StartDate
	}
	if s.EndDate != nil {
		opts.EndDate = *s.EndDate
	}
	return opts.Validate()
}

// Submitter creates jobs and publishes them to the queue
type Submitter struct {
	store    store.Store
	queue    queue.Queue
	progress *cache.ProgressCache
}

// NewSubmitter creates a submitter. progress may be nil.
func NewSubmitter(st store.Store, q queue.Queue, progress *cache.ProgressCache) *Submitter {
	return &Submitter{store: st, queue: q, progress: progress}
}

// Submit stores a queued job and enqueues it. If publishing fails the job
// is marked failed so it does not sit queued forever.
func (s *Submitter) Submit(ctx context.Context, spec JobSpec) (*store.Job, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	job := store.NewJob(spec.PlaceID, spec.Mode, spec.LimitCount, spec.StartDate, spec.EndDate)
	if err := s.store.CreateJob(ctx, job); err != nil {
		return nil, err
	}

	if _, err := s.queue.Enqueue(ctx, queue.JobMessage{JobID: job.ID}); err != nil {
		u := store.JobUpdate{
			Status:       ptr(store.StatusFailed),
			ErrorMessage: ptr(err.Error()),
			CompletedAt:  ptr(time.Now()),
		}
		if uerr := s.store.UpdateJob(ctx, job.ID, u); uerr == nil {
			apply(job, u, time.Now())
		}
		return job, err
	}

	s.progress.Save(Snapshot(job))
	return job, nil
}

// Retry submits a new job with the parameters of an existing one. The old
// job is left untouched.
func (s *Submitter) Retry(ctx context.Context, jobID string) (*store.Job, error) {
	old, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return s.Submit(ctx, JobSpec{
		PlaceID:    old.PlaceID,
		Mode:       old.Mode,
		LimitCount: old.LimitCount,
		StartDate:  old.StartDate,
		EndDate:    old.EndDate,
	})
}

// Status returns the cached snapshot, falling back to the database
func (s *Submitter) Status(ctx context.Context, jobID string) (cache.JobSnapshot, error) {
	if snap, ok := s.progress.Load(jobID); ok {
		return snap, nil
	}
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return cache.JobSnapshot{}, err
	}
	snap := Snapshot(job)
	s.progress.Save(snap)
	return snap, nil
}

// Delete removes a job with its reviews and analyses
func (s *Submitter) Delete(ctx context.Context, jobID string) error {
	if err := s.store.DeleteJob(ctx, jobID); err != nil {
		if errors.Is(err, errors.ErrJobNotFound) {
			s.progress.Forget(jobID)
		}
		return err
	}
	s.progress.Forget(jobID)
	return nil
}
