package helpers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractPlaceID(t *testing.T) {
	tests := map[string]string{
		"1234567": "1234567",
		" 1234567 ": "1234567",
		"https://m.place.naver.com/restaurant/1234567/review/visitor":  "1234567",
		"https://map.naver.com/p/entry/place/38001234?c=15.00,0,0,0,dh": "38001234",
		"https://m.place.naver.com/cafe/99887766/home":                  "99887766",
	}
	for in, want := range tests {
		got, err := ExtractPlaceID(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ExtractPlaceID("https://www.naver.com/")
	assert.Error(t, err)
	_, err = ExtractPlaceID("12")
	assert.Error(t, err)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "가나다", Truncate("가나다라마", 3))
	assert.Equal(t, "abc", Truncate("abc", 10))
}
