package worker

import (
	"context"
	"sync"
	"time"

	"sjsage522/placereview/helpers"
	"sjsage522/placereview/pkg/errors"
	"sjsage522/placereview/services/queue"
)

// JobProcessor handles a single job id
type JobProcessor interface {
	Process(ctx context.Context, jobID string) error
}

// Worker runs consumers that pull jobs off the queue
type Worker struct {
	queue       queue.Queue
	processor   JobProcessor
	logger      helpers.LoggerInterface
	concurrency int
	backoff     time.Duration
}

// NewWorker creates a new worker
func NewWorker(
	q queue.Queue,
	processor JobProcessor,
	logger helpers.LoggerInterface,
	concurrency int,
) *Worker {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Worker{
		queue:       q,
		processor:   processor,
		logger:      logger,
		concurrency: concurrency,
		backoff:     2 * time.Second,
	}
}

// Start runs the consumers and blocks until ctx is cancelled and every
// in-flight job has returned
func (w *Worker) Start(ctx context.Context) {
	w.logger.LogInfo("starting %d job consumers", w.concurrency)

	var wg sync.WaitGroup
	for i := 0; i < w.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.consume(ctx)
		}()
	}
	wg.Wait()

	w.logger.LogInfo("job consumers stopped")
}

func (w *Worker) consume(ctx context.Context) {
	for ctx.Err() == nil {
		err := w.queue.Consume(ctx, w.handle)
		if err == nil || ctx.Err() != nil {
			continue
		}

		// job failures were already reported by the processor
		var jerr *jobError
		if errors.As(err, &jerr) {
			continue
		}
		w.logger.LogError("queue", err)
		if helpers.Sleep(ctx, w.backoff) != nil {
			return
		}
	}
}

// handle acks the delivery unless the job was left unfinished. A failure
// the processor already recorded is final, so redelivering it would only
// be skipped later.
func (w *Worker) handle(ctx context.Context, d queue.Delivery) error {
	start := time.Now()
	err := w.processor.Process(ctx, d.Job.JobID)
	if err != nil && errors.IsRetryable(err) {
		return &jobError{jobID: d.Job.JobID, err: err}
	}
	outcome := "handled"
	if err != nil {
		outcome = "failed"
	}
	w.logger.LogInfo("job %s %s in %s (delivery %d)", d.Job.JobID, outcome, time.Since(start).Round(time.Millisecond), d.Attempt)
	return nil
}

type jobError struct {
	jobID string
	err   error
}

func (e *jobError) Error() string { return "job " + e.jobID + ": " + e.err.Error() }

func (e *jobError) Unwrap() error { return e.err }
