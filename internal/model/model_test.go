package model

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMode(t *testing.T) {
	tests := map[string]Mode{
		"ByCount":    ModeByCount,
		"by-count":   ModeByCount,
		"since-date": ModeSinceDate,
		"SinceDate":  ModeSinceDate,
		"date-range": ModeDateRange,
		" range ":    ModeDateRange,
	}
	for in, want := range tests {
		got, err := ParseMode(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseMode("latest")
	assert.Error(t, err)
}

func TestFingerprint(t *testing.T) {
	short := "맛있어요"
	assert.Equal(t, short, Fingerprint(short))

	long := strings.Repeat("가", 150)
	fp := Fingerprint(long)
	assert.Equal(t, 100, len([]rune(fp)))
	assert.Equal(t, fp, Fingerprint(long+" 다른 꼬리"))
}

func TestMidnight(t *testing.T) {
	loc := time.FixedZone("KST", 9*60*60)
	in := time.Date(2026, 3, 4, 23, 59, 1, 5, loc)
	assert.Equal(t, time.Date(2026, 3, 4, 0, 0, 0, 0, loc), Midnight(in))
}
