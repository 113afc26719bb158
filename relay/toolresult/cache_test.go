package toolresult

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCachePutGet(t *testing.T) {
	c := NewCache(10)
	c.Put("toolu_1", "output one")

	got, ok := c.Get("toolu_1")
	require.True(t, ok)
	require.Equal(t, "output one", got)

	_, ok = c.Get("toolu_missing")
	require.False(t, ok)
}

func TestCacheOverwriteNotMerge(t *testing.T) {
	c := NewCache(10)
	c.Put("toolu_1", "first")
	c.Put("toolu_1", "second")

	got, _ := c.Get("toolu_1")
	require.Equal(t, "second", got)
	require.Equal(t, 1, c.Len())
}

func TestCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewCache(3)
	c.Put("a", 1)
	c.Put("b", 2)
	c.Put("c", 3)

	// Touch "a" so "b" becomes the eviction candidate.
	_, ok := c.Get("a")
	require.True(t, ok)

	c.Put("d", 4)
	_, ok = c.Get("b")
	require.False(t, ok)
	for _, id := range []string{"a", "c", "d"} {
		_, ok := c.Get(id)
		require.True(t, ok, "entry %s evicted early", id)
	}
}

func TestCacheBoundedUnderChurn(t *testing.T) {
	c := NewCache(500)
	for i := 0; i < 2000; i++ {
		c.Put(fmt.Sprintf("toolu_%d", i), i)
	}
	require.Equal(t, 500, c.Len())
}
