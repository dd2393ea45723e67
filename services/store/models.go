package store

import (
	"time"

	"github.com/google/uuid"

	"sjsage522/placereview/internal/model"
)

// JobStatus is the lifecycle state of a scrape job
type JobStatus string

const (
	StatusQueued     JobStatus = "queued"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
)

// IsTerminal reports whether the job will never change state again
func (s JobStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Job is a scrape-and-analyze request and its progress. Review counts are
// kept as decimal strings.
type Job struct {
	ID              string
	PlaceID         string
	PlaceName       string
	Mode            model.Mode
	LimitCount      int
	StartDate       *time.Time
	EndDate         *time.Time
	Status          JobStatus
	StatusMessage   string
	Progress        int
	TotalReviews    string
	AnalyzedReviews string
	ErrorMessage    string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	CompletedAt     *time.Time
}

// NewJob builds a queued job with a fresh id
func NewJob(placeID string, mode model.Mode, limit int, start, end *time.Time) *Job {
	return &Job{
		ID:              uuid.NewString(),
		PlaceID:         placeID,
		Mode:            mode,
		LimitCount:      limit,
		StartDate:       start,
		EndDate:         end,
		Status:          StatusQueued,
		StatusMessage:   "queued",
		TotalReviews:    "0",
		AnalyzedReviews: "0",
	}
}

// JobUpdate is a partial update; nil fields are left unchanged. Progress
// never decreases.
type JobUpdate struct {
	Status          *JobStatus
	StatusMessage   *string
	Progress        *int
	TotalReviews    *int
	AnalyzedReviews *int
	ErrorMessage    *string
	PlaceName       *string
	CompletedAt     *time.Time
}

// Review is a persisted review row
type Review struct {
	ID         int64
	JobID      string
	Text       string
	ReviewDate time.Time
	Author     string
	Rating     string
	CreatedAt  time.Time
}

// Aspect is one aspect-level sentiment, e.g. {"맛", "Positive"}
type Aspect struct {
	Aspect    string `json:"aspect"`
	Sentiment string `json:"sentiment"`
}

// Analysis is the sentiment analysis of one review
type Analysis struct {
	ID        int64
	ReviewID  int64
	Sentiment string
	Aspects   []Aspect
	Keywords  []string
	Summary   string
	CreatedAt time.Time
}
