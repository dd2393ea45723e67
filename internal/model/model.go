// Package model holds the value types shared by the scraper, the store and
// the worker.
package model

import (
	"fmt"
	"strings"
	"time"
)

// Mode selects how a scrape decides it has collected enough reviews.
type Mode string

const (
	ModeByCount   Mode = "ByCount"
	ModeSinceDate Mode = "SinceDate"
	ModeDateRange Mode = "DateRange"
)

// ParseMode accepts the canonical names and the CLI spellings
// (by-count, since-date, date-range).
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), "-", "")) {
	case "bycount", "count":
		return ModeByCount, nil
	case "sincedate", "since":
		return ModeSinceDate, nil
	case "daterange", "range":
		return ModeDateRange, nil
	}
	return "", fmt.Errorf("unknown collection mode %q", s)
}

// IsDateBounded reports whether the mode filters on review dates.
func (m Mode) IsDateBounded() bool {
	return m == ModeSinceDate || m == ModeDateRange
}

// Review is a cleaned review produced by the scraper. A nil Date means the
// source date could not be parsed.
type Review struct {
	Text   string     `json:"text"`
	Date   *time.Time `json:"date,omitempty"`
	Author string     `json:"author,omitempty"`
	Rating string     `json:"rating,omitempty"`
}

// FingerprintLength is the number of leading runes used to deduplicate reviews.
const FingerprintLength = 100

// Fingerprint returns the dedup key of a cleaned review text. Distinct
// reviews sharing their first 100 characters collapse into one.
func Fingerprint(text string) string {
	r := []rune(text)
	if len(r) > FingerprintLength {
		r = r[:FingerprintLength]
	}
	return string(r)
}

// Midnight truncates t to 00:00 in t's location.
func Midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
