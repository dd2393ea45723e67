package store

import (
	"context"
	"time"
)

// Store persists jobs, reviews and analyses. Deleting a job removes its
// reviews, and deleting a review removes its analysis.
type Store interface {
	CreateJob(ctx context.Context, job *Job) error
	GetJob(ctx context.Context, id string) (*Job, error)
	UpdateJob(ctx context.Context, id string, update JobUpdate) error
	DeleteJob(ctx context.Context, id string) error

	// A job is run by the single worker holding its lease. An expired
	// lease can be claimed by anyone.
	ClaimJob(ctx context.Context, id, owner string, ttl time.Duration) (bool, error)
	RenewLease(ctx context.Context, id, owner string, ttl time.Duration) error
	ReleaseJob(ctx context.Context, id, owner string) error

	InsertReview(ctx context.Context, review *Review) error
	ListReviews(ctx context.Context, jobID string) ([]Review, error)
	DeleteReviews(ctx context.Context, jobID string) (int64, error)

	InsertAnalysis(ctx context.Context, analysis *Analysis) error
	ListAnalyses(ctx context.Context, jobID string) ([]Analysis, error)
	SentimentSummary(ctx context.Context, jobID string) (map[string]int, error)

	Close() error
}
