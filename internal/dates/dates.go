// Package dates turns the free-form Korean date strings shown next to
// reviews into calendar dates at local midnight.
package dates

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"sjsage522/placereview/internal/model"
)

// Dates outside [today-5y, today+1d] are treated as parse garbage.
const (
	maxPastYears   = 5
	maxFutureDays  = 1
	shortYearPivot = 2000
)

var (
	relativePattern   = regexp.MustCompile(`(\d+)\s*(분|시간|일|주|개월|달|년)\s*전`)
	isoPattern        = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})`)
	delimitedPattern  = regexp.MustCompile(`^(\d{4})\s*[./-]\s*(\d{1,2})\s*[./-]\s*(\d{1,2})`)
	koreanFullPattern = regexp.MustCompile(`(\d{4})\s*년\s*(\d{1,2})\s*월\s*(\d{1,2})\s*일`)
	koreanMDPattern   = regexp.MustCompile(`(\d{1,2})\s*월\s*(\d{1,2})\s*일`)
	shortPattern      = regexp.MustCompile(`^(\d{1,2})\s*[./-]\s*(\d{1,2})\.?$`)
	weekdayPattern    = regexp.MustCompile(`^(?:(\d{2})\.)?(\d{1,2})\.(\d{1,2})\.\s*[월화수목금토일]`)
)

// Normalizer parses review dates relative to a reference clock.
type Normalizer struct {
	now func() time.Time
	loc *time.Location
}

// New creates a Normalizer using the wall clock in the local time zone.
func New() *Normalizer {
	return &Normalizer{now: time.Now, loc: time.Local}
}

// NewAt creates a Normalizer whose "today" is fixed by now. The location of
// the returned times is taken from now on every call.
func NewAt(now func() time.Time) *Normalizer {
	return &Normalizer{now: now}
}

// Location returns the zone parsed dates are expressed in.
func (n *Normalizer) Location() *time.Location {
	if n.loc != nil {
		return n.loc
	}
	return n.now().Location()
}

var defaultNormalizer = New()

// Parse normalizes raw with the package default Normalizer.
func Parse(raw string) (time.Time, bool) {
	return defaultNormalizer.Parse(raw)
}

// Parse returns the calendar date described by raw at local midnight. The
// second result is false when raw matches no known form or the date falls
// outside the plausibility window.
func (n *Normalizer) Parse(raw string) (time.Time, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, false
	}

	now := n.now()
	if n.loc != nil {
		now = now.In(n.loc)
	}
	today := model.Midnight(now)

	t, ok := n.match(s, now, today)
	if !ok {
		return time.Time{}, false
	}
	t = model.Midnight(t)
	if t.Before(today.AddDate(-maxPastYears, 0, 0)) || t.After(today.AddDate(0, 0, maxFutureDays)) {
		return time.Time{}, false
	}
	return t, true
}

// ParsePtr is Parse with a nil result for unparseable input.
func (n *Normalizer) ParsePtr(raw string) *time.Time {
	t, ok := n.Parse(raw)
	if !ok {
		return nil
	}
	return &t
}

// match applies the grammar in order; the first form that matches wins.
func (n *Normalizer) match(s string, now, today time.Time) (time.Time, bool) {
	switch {
	case strings.Contains(s, "오늘"), strings.Contains(s, "방금"):
		return today, true
	case strings.Contains(s, "어제"):
		return today.AddDate(0, 0, -1), true
	}

	if m := relativePattern.FindStringSubmatch(s); m != nil {
		amount, err := strconv.Atoi(m[1])
		if err != nil {
			return time.Time{}, false
		}
		return subtract(now, amount, m[2]), true
	}

	if m := isoPattern.FindStringSubmatch(s); m != nil {
		return calendar(today, m[1], m[2], m[3])
	}
	if m := delimitedPattern.FindStringSubmatch(s); m != nil {
		return calendar(today, m[1], m[2], m[3])
	}
	if m := koreanFullPattern.FindStringSubmatch(s); m != nil {
		return calendar(today, m[1], m[2], m[3])
	}
	if m := koreanMDPattern.FindStringSubmatch(s); m != nil {
		return implicitYear(today, m[1], m[2])
	}
	if m := shortPattern.FindStringSubmatch(s); m != nil {
		return implicitYear(today, m[1], m[2])
	}
	if m := weekdayPattern.FindStringSubmatch(s); m != nil {
		if m[1] != "" {
			yy, _ := strconv.Atoi(m[1])
			return calendar(today, strconv.Itoa(shortYearPivot+yy), m[2], m[3])
		}
		return implicitYear(today, m[2], m[3])
	}
	return time.Time{}, false
}

func subtract(now time.Time, amount int, unit string) time.Time {
	switch unit {
	case "분":
		return now.Add(-time.Duration(amount) * time.Minute)
	case "시간":
		return now.Add(-time.Duration(amount) * time.Hour)
	case "일":
		return now.AddDate(0, 0, -amount)
	case "주":
		return now.AddDate(0, 0, -7*amount)
	case "개월", "달":
		return now.AddDate(0, -amount, 0)
	default: // 년
		return now.AddDate(-amount, 0, 0)
	}
}

// calendar builds a date and rejects values time.Date would silently
// normalize, such as February 30th.
func calendar(today time.Time, ys, ms, ds string) (time.Time, bool) {
	y, err1 := strconv.Atoi(ys)
	m, err2 := strconv.Atoi(ms)
	d, err3 := strconv.Atoi(ds)
	if err1 != nil || err2 != nil || err3 != nil {
		return time.Time{}, false
	}
	if m < 1 || m > 12 || d < 1 || d > 31 {
		return time.Time{}, false
	}
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, today.Location())
	if t.Year() != y || int(t.Month()) != m || t.Day() != d {
		return time.Time{}, false
	}
	return t, true
}

// implicitYear resolves a month/day without a year to the current year,
// falling back one year when that would land past tomorrow. A "12.30"
// shown in early January belongs to last December.
func implicitYear(today time.Time, ms, ds string) (time.Time, bool) {
	t, ok := calendar(today, strconv.Itoa(today.Year()), ms, ds)
	if !ok {
		return t, false
	}
	if t.After(today.AddDate(0, 0, maxFutureDays)) {
		return calendar(today, strconv.Itoa(today.Year()-1), ms, ds)
	}
	return t, true
}
