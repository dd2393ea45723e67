// Package textclean strips platform UI chrome (counters, buttons, bare
// dates, profile labels) from review text captured off the page.
package textclean

import (
	"regexp"
	"strings"
)

const (
	// MinLength is the shortest cleaned text, in characters, kept as a review.
	MinLength = 5
	// MaxLength caps stored review text, in characters.
	MaxLength = 2000
)

// chromeSources are matched against whole trimmed segments. They are kept
// in the subset of syntax shared by RE2 and JavaScript so the in-page
// extractor can reuse them.
var chromeSources = []string{
	`^리뷰\s*[\d,]+$`,
	`^사진\s*[\d,]+$`,
	`^동영상\s*[\d,]+$`,
	`^팔로워\s*[\d,]+$`,
	`^팔로우$`,
	`^팔로잉$`,
	`^영수증$`,
	`^인증\s*수단.*$`,
	`^예약$`,
	`^더보기$`,
	`^접기$`,
	`^펼쳐보기$`,
	`^펼쳐서 더보기$`,
	`^답글(\s*[\d,]+)?$`,
	`^댓글(\s*[\d,]+)?$`,
	`^좋아요(\s*[\d,]+)?$`,
	`^신고(하기)?$`,
	`^\(?수정됨\)?$`,
	`^작성자$`,
	`^.{1,30}님의 (리뷰|방문)$`,
	`^\d+번째 방문$`,
	`^방문일$`,
	`^(오늘|어제|방금)( 전)?$`,
	`^\d+\s*(분|시간|일|주|개월|달|년)\s*전$`,
	`^\d{2,4}[./-]\s*\d{1,2}[./-]\s*\d{1,2}\.?\s*([월화수목금토일](요일)?)?\.?$`,
	`^\d{1,2}[./-]\d{1,2}\.?\s*([월화수목금토일](요일)?)?$`,
	`^\d{4}년\s*\d{1,2}월\s*\d{1,2}일(\s*[월화수목금토일]요일)?$`,
	`^\d{1,2}월\s*\d{1,2}일(\s*[월화수목금토일]요일)?$`,
}

var (
	chromePatterns = compile(chromeSources)
	segmentSplit   = regexp.MustCompile(`[\n|·•]+`)
	whitespace     = regexp.MustCompile(`\s+`)
	trailingMore   = regexp.MustCompile(`\s*(더보기|펼쳐보기)\s*$`)
)

func compile(sources []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(sources))
	for i, s := range sources {
		out[i] = regexp.MustCompile(s)
	}
	return out
}

// Patterns returns the chrome pattern sources for use outside Go.
func Patterns() []string {
	out := make([]string, len(chromeSources))
	copy(out, chromeSources)
	return out
}

// IsChrome reports whether a single trimmed line is UI chrome.
func IsChrome(line string) bool {
	line = strings.TrimSpace(line)
	for _, p := range chromePatterns {
		if p.MatchString(line) {
			return true
		}
	}
	return false
}

// Clean removes chrome segments from raw and returns the remaining text
// joined by single spaces. It returns "" when fewer than MinLength
// characters survive.
func Clean(raw string) string {
	var kept []string
	for _, seg := range segmentSplit.Split(raw, -1) {
		seg = strings.TrimSpace(seg)
		if seg == "" || IsChrome(seg) {
			continue
		}
		kept = append(kept, seg)
	}

	text := strings.Join(kept, " ")
	text = trailingMore.ReplaceAllString(text, "")
	text = strings.TrimSpace(whitespace.ReplaceAllString(text, " "))

	r := []rune(text)
	if len(r) < MinLength {
		return ""
	}
	if len(r) > MaxLength {
		text = strings.TrimSpace(string(r[:MaxLength]))
	}
	return text
}
