package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// ErrorTypeNavigation represents page navigation failures
	ErrorTypeNavigation ErrorType = "navigation"
	// ErrorTypeBrowser represents browser launch/teardown failures
	ErrorTypeBrowser ErrorType = "browser"
	// ErrorTypeExtraction represents in-page extraction errors
	ErrorTypeExtraction ErrorType = "extraction"
	// ErrorTypeAnalysis represents sentiment analysis errors
	ErrorTypeAnalysis ErrorType = "analysis"
	// ErrorTypeStorage represents database errors
	ErrorTypeStorage ErrorType = "storage"
	// ErrorTypeQueue represents job queue errors
	ErrorTypeQueue ErrorType = "queue"
	// ErrorTypeCache represents cache-related errors
	ErrorTypeCache ErrorType = "cache"
	// ErrorTypeValidation represents validation errors
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeConfiguration represents configuration errors
	ErrorTypeConfiguration ErrorType = "configuration"
	// ErrorTypeTransient marks a job left unfinished; delivering it again may succeed
	ErrorTypeTransient ErrorType = "transient"
	// ErrorTypeJob marks a job that was recorded as failed
	ErrorTypeJob ErrorType = "job"
)

var (
	// ErrJobNotFound is returned when a job id does not exist
	ErrJobNotFound = stderrors.New("job not found")
	// ErrNoReviewContainer is returned when no container selector matched
	ErrNoReviewContainer = stderrors.New("no review container matched")
	// ErrMalformedExtraction is returned when the in-page script result has an unexpected shape
	ErrMalformedExtraction = stderrors.New("malformed extraction result")
	// ErrPoolClosed is returned when acquiring from a closed session pool
	ErrPoolClosed = stderrors.New("browser session pool closed")
	// ErrJobBusy is returned when another worker holds a live lease on the job
	ErrJobBusy = stderrors.New("job is leased by another worker")
	// ErrLeaseLost is returned when renewing a lease this worker no longer holds
	ErrLeaseLost = stderrors.New("job lease lost")
)

// ScrapeError represents a pipeline error tagged with its origin
type ScrapeError struct {
	Type      ErrorType
	Component string
	Message   string
	Err       error
	Time      time.Time
}

// Error implements the error interface
func (e *ScrapeError) Error() string {
	if e.Component == "" {
		if e.Err != nil {
			return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
		}
		return fmt.Sprintf("[%s] %s", e.Type, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %s - %v", e.Type, e.Component, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Type, e.Component, e.Message)
}

// Unwrap returns the underlying error
func (e *ScrapeError) Unwrap() error {
	return e.Err
}

// IsRetryable returns true if the error is retryable
func (e *ScrapeError) IsRetryable() bool {
	switch e.Type {
	case ErrorTypeNavigation, ErrorTypeBrowser, ErrorTypeTransient:
		return true
	default:
		return false
	}
}

// IsRetryable reports whether any ScrapeError in err's chain is retryable
func IsRetryable(err error) bool {
	var se *ScrapeError
	if stderrors.As(err, &se) {
		return se.IsRetryable()
	}
	return false
}

// Is mirrors the standard library so callers need a single errors import
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As mirrors the standard library so callers need a single errors import
func As(err error, target any) bool {
	return stderrors.As(err, target)
}

// New creates a new ScrapeError
func New(errType ErrorType, component, message string, err error) *ScrapeError {
	return &ScrapeError{
		Type:      errType,
		Component: component,
		Message:   message,
		Err:       err,
		Time:      time.Now(),
	}
}

// NewNavigation creates a new navigation error
func NewNavigation(component, message string, err error) *ScrapeError {
	return New(ErrorTypeNavigation, component, message, err)
}

// NewBrowser creates a new browser error
func NewBrowser(component, message string, err error) *ScrapeError {
	return New(ErrorTypeBrowser, component, message, err)
}

// NewExtraction creates a new extraction error
func NewExtraction(component, message string, err error) *ScrapeError {
	return New(ErrorTypeExtraction, component, message, err)
}

// NewAnalysis creates a new analysis error
func NewAnalysis(component, message string, err error) *ScrapeError {
	return New(ErrorTypeAnalysis, component, message, err)
}

// NewStorage creates a new storage error
func NewStorage(component, message string, err error) *ScrapeError {
	return New(ErrorTypeStorage, component, message, err)
}

// NewQueue creates a new queue error
func NewQueue(component, message string, err error) *ScrapeError {
	return New(ErrorTypeQueue, component, message, err)
}

// NewCache creates a new cache error
func NewCache(component, message string, err error) *ScrapeError {
	return New(ErrorTypeCache, component, message, err)
}

// NewTransient creates an error for work that was interrupted before the
// job reached a final state
func NewTransient(component, message string, err error) *ScrapeError {
	return New(ErrorTypeTransient, component, message, err)
}

// NewJobFailed wraps the cause recorded on a failed job
func NewJobFailed(jobID string, err error) *ScrapeError {
	return New(ErrorTypeJob, "worker", "job "+jobID+" failed", err)
}

// NewValidation creates a new validation error
func NewValidation(component, message string) *ScrapeError {
	return New(ErrorTypeValidation, component, message, nil)
}

// NewConfiguration creates a new configuration error
func NewConfiguration(message string, err error) *ScrapeError {
	return New(ErrorTypeConfiguration, "", message, err)
}
