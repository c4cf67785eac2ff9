package cache

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLRUCacheBasic(t *testing.T) {
	c := NewLRUCache[string, int](3, 0)

	c.Set("a", 1)
	c.Set("b", 2)

	v, ok := c.Get("a")
	require.True(t, ok)
	require.Equal(t, 1, v)

	_, ok = c.Get("missing")
	require.False(t, ok)
	require.Equal(t, 2, c.Size())
}

func TestLRUCacheEviction(t *testing.T) {
	c := NewLRUCache[string, int](3, 0)

	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("c", 3)

	// Touch "a" so "b" becomes the eviction victim.
	_, _ = c.Get("a")
	c.Set("d", 4)

	require.Equal(t, 3, c.Size())
	require.False(t, c.Contains("b"))
	require.True(t, c.Contains("a"))
	require.True(t, c.Contains("c"))
	require.True(t, c.Contains("d"))
}

func TestLRUCacheTTL(t *testing.T) {
	c := NewLRUCache[string, string](10, 0)

	c.SetWithTTL("short", "x", 10*time.Millisecond)
	c.Set("forever", "y")

	time.Sleep(30 * time.Millisecond)

	_, ok := c.Get("short")
	require.False(t, ok)
	v, ok := c.Get("forever")
	require.True(t, ok)
	require.Equal(t, "y", v)
}

func TestLRUCacheValuesOrder(t *testing.T) {
	c := NewLRUCache[string, int](10, 0)

	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("c", 3)
	_, _ = c.Get("a")

	require.Equal(t, []int{1, 3, 2}, c.Values())
}

func TestLRUCacheUpdateExisting(t *testing.T) {
	c := NewLRUCache[string, int](2, 0)

	c.Set("a", 1)
	c.Set("a", 2)

	v, ok := c.Get("a")
	require.True(t, ok)
	require.Equal(t, 2, v)
	require.Equal(t, 1, c.Size())
}

func TestLRUCacheClear(t *testing.T) {
	c := NewLRUCache[int, string](10, 0)
	for i := 0; i < 5; i++ {
		c.Set(i, fmt.Sprintf("v%d", i))
	}
	require.Equal(t, 5, c.Size())

	c.Clear()
	require.Equal(t, 0, c.Size())
	require.Empty(t, c.Values())
}
