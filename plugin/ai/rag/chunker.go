package rag

import (
	"strings"
	"unicode/utf8"
)

const (
	// DefaultChunkSize is the maximum character count per chunk.
	DefaultChunkSize = 1000
	// DefaultChunkOverlap is the character count carried over between
	// adjacent chunks.
	DefaultChunkOverlap = 200
)

// SplitPages breaks raw artifact text into pages. Form feeds are hard page
// breaks; without any, runs of two or more blank lines separate pages.
// A document with neither is a single page.
func SplitPages(content string) []string {
	var parts []string
	if strings.ContainsRune(content, '\f') {
		parts = strings.Split(content, "\f")
	} else {
		parts = splitOnBlankRuns(content)
	}

	pages := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			pages = append(pages, p)
		}
	}
	if len(pages) == 0 && strings.TrimSpace(content) != "" {
		pages = append(pages, strings.TrimSpace(content))
	}
	return pages
}

func splitOnBlankRuns(content string) []string {
	lines := strings.Split(content, "\n")
	var parts []string
	var current []string
	blanks := 0
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			blanks++
			continue
		}
		if blanks >= 2 && len(current) > 0 {
			parts = append(parts, strings.Join(current, "\n"))
			current = current[:0]
		} else if blanks > 0 && len(current) > 0 {
			current = append(current, "")
		}
		blanks = 0
		current = append(current, line)
	}
	if len(current) > 0 {
		parts = append(parts, strings.Join(current, "\n"))
	}
	return parts
}

// ChunkPage splits one page into overlapping chunks. Boundaries prefer
// paragraph breaks, then sentence ends, then whitespace, falling back to a
// hard cut. size must be positive and overlap strictly smaller than size.
func ChunkPage(page string, size, overlap int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = DefaultChunkOverlap
		if overlap >= size {
			overlap = size / 5
		}
	}
	page = strings.TrimSpace(page)
	if page == "" {
		return nil
	}
	if len(page) <= size {
		return []string{page}
	}

	var chunks []string
	start := 0
	for start < len(page) {
		end := start + size
		if end >= len(page) {
			chunk := strings.TrimSpace(page[start:])
			if chunk != "" {
				chunks = append(chunks, chunk)
			}
			break
		}
		cut := runeStart(page, start+findBreak(page[start:end]))
		if cut <= start {
			cut = runeEnd(page, start+size)
		}
		chunk := strings.TrimSpace(page[start:cut])
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
		next := runeStart(page, cut-overlap)
		if next <= start {
			next = cut
		}
		start = next
	}
	return chunks
}

// findBreak returns the cut position within text, preferring the last
// paragraph break, then sentence end, then whitespace.
func findBreak(text string) int {
	if idx := strings.LastIndex(text, "\n\n"); idx > len(text)/2 {
		return idx
	}
	for _, sep := range []string{". ", "! ", "? ", "\n"} {
		if idx := strings.LastIndex(text, sep); idx > len(text)/2 {
			return idx + len(sep)
		}
	}
	if idx := strings.LastIndexAny(text, " \t"); idx > len(text)/2 {
		return idx + 1
	}
	return len(text)
}

// runeStart moves idx left to the nearest rune boundary so byte-offset cuts
// never split a multi-byte rune.
func runeStart(s string, idx int) int {
	for idx > 0 && idx < len(s) && !utf8.RuneStart(s[idx]) {
		idx--
	}
	return idx
}

// runeEnd moves idx right to the nearest rune boundary.
func runeEnd(s string, idx int) int {
	for idx < len(s) && !utf8.RuneStart(s[idx]) {
		idx++
	}
	return idx
}

// ChunkDocument splits artifact text into pages and pages into overlapping
// chunks, preserving document order.
func ChunkDocument(content string, size, overlap int) (pages int, chunks []string) {
	split := SplitPages(content)
	for _, page := range split {
		chunks = append(chunks, ChunkPage(page, size, overlap)...)
	}
	return len(split), chunks
}
