package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSetGetDelete(t *testing.T) {
	c := New(Config{})
	defer c.Close()

	c.Set("k", "v")
	got, ok := c.Get("k")
	require.True(t, ok)
	require.Equal(t, "v", got)

	c.Delete("k")
	_, ok = c.Get("k")
	require.False(t, ok)
}

func TestExpiredEntryIsGone(t *testing.T) {
	c := New(Config{})
	defer c.Close()

	c.SetWithTTL("k", "v", time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	_, ok := c.Get("k")
	require.False(t, ok)
}

func TestMaxItemsEvicts(t *testing.T) {
	c := New(Config{MaxItems: 2})
	defer c.Close()

	c.SetWithTTL("a", 1, time.Minute)
	c.SetWithTTL("b", 1, 2*time.Minute)
	c.SetWithTTL("c", 1, 3*time.Minute)

	// The entry closest to expiry goes first.
	_, ok := c.Get("a")
	require.False(t, ok)
	_, ok = c.Get("c")
	require.True(t, ok)
}

func TestDeleteRunsEvictionHook(t *testing.T) {
	var got string
	c := New(Config{OnEviction: func(key string, _ any) { got = key }})
	defer c.Close()

	c.Set("k", "v")
	c.Delete("k")
	require.Equal(t, "k", got)
}
