package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScrapeErrorMessage(t *testing.T) {
	err := NewNavigation("scraper", "goto review page", fmt.Errorf("net::ERR_TIMED_OUT"))
	assert.Equal(t, "[navigation] scraper: goto review page - net::ERR_TIMED_OUT", err.Error())

	err = NewValidation("enqueue", "limitCount must be positive")
	assert.Equal(t, "[validation] enqueue: limitCount must be positive", err.Error())

	err = NewConfiguration("bad driver", nil)
	assert.Equal(t, "[configuration] bad driver", err.Error())
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, NewNavigation("scraper", "x", nil).IsRetryable())
	assert.True(t, NewBrowser("pool", "x", nil).IsRetryable())
	assert.False(t, NewExtraction("scraper", "x", nil).IsRetryable())
	assert.False(t, NewStorage("store", "x", nil).IsRetryable())

	assert.True(t, NewTransient("worker", "interrupted", ErrJobBusy).IsRetryable())

	// the outermost typed error decides
	final := NewJobFailed("42", NewNavigation("scraper", "x", nil))
	assert.False(t, IsRetryable(final))
	assert.Equal(t, "[job] worker: job 42 failed - [navigation] scraper: x", final.Error())

	wrapped := fmt.Errorf("scrape place 123: %w", NewNavigation("scraper", "x", nil))
	assert.True(t, IsRetryable(wrapped))
	assert.False(t, IsRetryable(fmt.Errorf("plain")))
}

func TestUnwrap(t *testing.T) {
	err := NewStorage("store", "get job", ErrJobNotFound)
	assert.True(t, Is(err, ErrJobNotFound))

	var se *ScrapeError
	assert.True(t, As(fmt.Errorf("outer: %w", err), &se))
	assert.Equal(t, ErrorTypeStorage, se.Type)
}
