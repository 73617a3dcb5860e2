// ABOUTME: Tests for the seen-key cache.
// ABOUTME: Covers TTL expiry, capacity eviction, and refresh on re-mark.

package dedupe

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCache_MarkThenSeen(t *testing.T) {
	c := New(time.Minute, 10)

	assert.False(t, c.Seen("req-1"))
	c.Mark("req-1")
	assert.True(t, c.Seen("req-1"))
	assert.False(t, c.Seen("req-2"))
}

func TestCache_TTLExpiry(t *testing.T) {
	c := New(10*time.Millisecond, 10)
	c.Mark("req-1")

	time.Sleep(20 * time.Millisecond)
	assert.False(t, c.Seen("req-1"))
}

func TestCache_CapacityEvictsOldest(t *testing.T) {
	c := New(time.Minute, 3)
	for i := 0; i < 4; i++ {
		c.Mark("req-" + strconv.Itoa(i))
	}

	assert.False(t, c.Seen("req-0"), "oldest entry should be evicted")
	assert.True(t, c.Seen("req-1"))
	assert.True(t, c.Seen("req-3"))
	assert.Equal(t, 3, c.Len())
}

func TestCache_ReMarkRefreshesPosition(t *testing.T) {
	c := New(time.Minute, 2)
	c.Mark("a")
	c.Mark("b")
	c.Mark("a") // refresh: b is now oldest
	c.Mark("c")

	assert.True(t, c.Seen("a"))
	assert.False(t, c.Seen("b"))
	assert.True(t, c.Seen("c"))
}
