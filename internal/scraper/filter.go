package scraper

import (
	"sjsage522/placereview/internal/model"
)

// ApplyFilter narrows collected reviews to what the mode asked for.
// ByCount keeps the first LimitCount in feed order. The date modes keep
// dated reviews only, with inclusive day bounds compared in opts.Location.
func ApplyFilter(reviews []model.Review, opts Options) []model.Review {
	switch opts.Mode {
	case model.ModeByCount:
		if len(reviews) > opts.LimitCount {
			return reviews[:opts.LimitCount]
		}
		return reviews

	case model.ModeSinceDate:
		start := opts.day(opts.StartDate)
		return keep(reviews, func(d model.Review) bool {
			return !opts.day(*d.Date).Before(start)
		})

	case model.ModeDateRange:
		start := opts.day(opts.StartDate)
		end := opts.day(opts.EndDate)
		return keep(reviews, func(d model.Review) bool {
			day := opts.day(*d.Date)
			return !day.Before(start) && !day.After(end)
		})
	}
	return reviews
}

func keep(reviews []model.Review, fn func(model.Review) bool) []model.Review {
	out := make([]model.Review, 0, len(reviews))
	for _, r := range reviews {
		if r.Date != nil && fn(r) {
			out = append(out, r)
		}
	}
	return out
}
