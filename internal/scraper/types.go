package scraper

import (
	"time"

	"sjsage522/placereview/internal/model"
	"sjsage522/placereview/pkg/errors"
)

// Options describes one scrape of a place's review feed.
type Options struct {
	PlaceID    string
	Mode       model.Mode
	LimitCount int
	StartDate  time.Time
	EndDate    time.Time

	// Location is the zone whose calendar days the date bounds are compared
	// in. Nil means time.Local.
	Location *time.Location

	// OnProgress, when set, is called once per scroll iteration.
	OnProgress func(Progress)
}

// Progress reports the scroll loop's state after an iteration.
type Progress struct {
	Collected     int
	Target        int // LimitCount in ByCount mode, 0 otherwise
	Iteration     int
	MaxIterations int
}

// Result is the filtered output of a scrape.
type Result struct {
	PlaceName  string
	Reviews    []model.Review
	Collected  int
	StopReason StopReason
}

// Validate checks that the mode has the parameters it needs.
func (o Options) Validate() error {
	if o.PlaceID == "" {
		return errors.NewValidation("scraper", "placeId is required")
	}
	switch o.Mode {
	case model.ModeByCount:
		if o.LimitCount <= 0 {
			return errors.NewValidation("scraper", "limitCount must be positive in ByCount mode")
		}
	case model.ModeSinceDate:
		if o.StartDate.IsZero() {
			return errors.NewValidation("scraper", "startDate is required in SinceDate mode")
		}
	case model.ModeDateRange:
		if o.StartDate.IsZero() || o.EndDate.IsZero() {
			return errors.NewValidation("scraper", "startDate and endDate are required in DateRange mode")
		}
		if o.EndDate.Before(o.StartDate) {
			return errors.NewValidation("scraper", "endDate is before startDate")
		}
	default:
		return errors.NewValidation("scraper", "unknown mode "+string(o.Mode))
	}
	return nil
}

// day truncates t to midnight of its calendar day in the comparison zone.
func (o Options) day(t time.Time) time.Time {
	loc := o.Location
	if loc == nil {
		loc = time.Local
	}
	return model.Midnight(t.In(loc))
}

func (o Options) report(p Progress) {
	if o.OnProgress != nil {
		o.OnProgress(p)
	}
}
