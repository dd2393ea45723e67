package helpers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRandomMobileUserAgent(t *testing.T) {
	for i := 0; i < 20; i++ {
		ua := RandomMobileUserAgent()
		assert.Contains(t, MobileUserAgents, ua)
		assert.Contains(t, ua, "Mobile")
	}
}
