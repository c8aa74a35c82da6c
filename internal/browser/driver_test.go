package browser

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNavigationTimeoutDefault(t *testing.T) {
	assert.Equal(t, 30*time.Second, Config{}.navigationTimeout())
	assert.Equal(t, 5*time.Second, Config{NavigationTimeout: 5 * time.Second}.navigationTimeout())
}

func TestNormalizeURL(t *testing.T) {
	assert.Equal(t,
		"https://x.com/i/api/1.1/dm/user_updates.json",
		NormalizeURL("https://x.com/i/api/1.1/dm/user_updates.json?cursor=abc&include=1"))
	assert.Equal(t, "https://x.com/messages", NormalizeURL("https://x.com/messages"))
}
