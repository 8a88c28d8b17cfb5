package chat

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateTitleTruncatesLongTitles(t *testing.T) {
	titler := &fakeTitler{title: "one two three four five six seven"}
	got := generateTitle(context.Background(), titler, "thread-id", "q", "a")
	require.Equal(t, titleMaxWords, len(strings.Fields(got)))
	require.Equal(t, "one two three four five", got)
}

func TestGenerateTitleFallbacks(t *testing.T) {
	failing := &fakeTitler{fail: true}
	require.Equal(t, "abcdefgh...", generateTitle(context.Background(), failing, "abcdefgh-1234", "q", "a"))

	empty := &fakeTitler{title: ""}
	require.Equal(t, "short", generateTitle(context.Background(), empty, "short", "q", "a"))
}
