package helpers

import (
	"errors"
	"regexp"
	"strings"
)

var (
	placeIDPattern  = regexp.MustCompile(`^\d{3,}$`)
	placeURLPattern = regexp.MustCompile(`(?:place|restaurant|cafe|hairshop|hospital|accommodation|attraction)/(\d{3,})`)
)

// ExtractPlaceID accepts a bare place id or any Naver map/place URL and
// returns the numeric place id.
func ExtractPlaceID(target string) (string, error) {
	target = strings.TrimSpace(target)
	if placeIDPattern.MatchString(target) {
		return target, nil
	}
	if m := placeURLPattern.FindStringSubmatch(target); m != nil {
		return m[1], nil
	}
	return "", errors.New("no place id found")
}

// Truncate shortens s to at most n characters.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
