package rag

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"
)

func TestSplitPagesFormFeed(t *testing.T) {
	pages := SplitPages("page one\fpage two\f\fpage three")
	require.Equal(t, []string{"page one", "page two", "page three"}, pages)
}

func TestSplitPagesBlankRuns(t *testing.T) {
	content := "first page line a\nfirst page line b\n\n\nsecond page"
	pages := SplitPages(content)
	require.Len(t, pages, 2)
	require.Contains(t, pages[0], "line a")
	require.Equal(t, "second page", pages[1])
}

func TestSplitPagesSingle(t *testing.T) {
	pages := SplitPages("just one paragraph\nwith two lines")
	require.Len(t, pages, 1)
}

func TestSplitPagesEmpty(t *testing.T) {
	require.Empty(t, SplitPages("   \n\n  "))
}

func TestChunkPageSmallInput(t *testing.T) {
	chunks := ChunkPage("short text", 1000, 200)
	require.Equal(t, []string{"short text"}, chunks)
}

func TestChunkPageBoundsAndOverlap(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 200; i++ {
		b.WriteString("some sentence with a few words in it. ")
	}
	text := b.String()

	size, overlap := 500, 100
	chunks := ChunkPage(text, size, overlap)
	require.Greater(t, len(chunks), 1)

	for _, c := range chunks {
		require.LessOrEqual(t, len(c), size)
		require.NotEmpty(t, c)
	}

	// Adjacent chunks share text: the tail of one reappears at the head
	// of the next.
	for i := 1; i < len(chunks); i++ {
		if len(chunks[i]) < 20 {
			continue
		}
		head := chunks[i][:20]
		require.Contains(t, chunks[i-1], head)
	}
}

func TestChunkDocumentCountsPages(t *testing.T) {
	pages, chunks := ChunkDocument("alpha\fbeta\fgamma", 1000, 200)
	require.Equal(t, 3, pages)
	require.Equal(t, []string{"alpha", "beta", "gamma"}, chunks)
}

func TestChunkPageKeepsRunesIntact(t *testing.T) {
	// No whitespace or sentence breaks, so every cut is a hard cut that
	// must still land on a rune boundary.
	page := strings.Repeat("\u4e16\u754c", 200)
	chunks := ChunkPage(page, 25, 5)
	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		require.True(t, utf8.ValidString(c))
	}
	require.Contains(t, chunks[0], "\u4e16\u754c")
}
