package rag

import (
	"math"
	"sort"
)

// Index is an in-memory vector index over one document's chunks. It is
// built once per process lifetime and read concurrently; rebuilds replace
// the whole value.
type Index struct {
	chunks  []string
	vectors [][]float32
}

// NewIndex pairs chunks with their embedding vectors. Lengths must match.
func NewIndex(chunks []string, vectors [][]float32) *Index {
	return &Index{chunks: chunks, vectors: vectors}
}

// Len returns the number of indexed chunks.
func (x *Index) Len() int {
	return len(x.chunks)
}

// Search returns the top-k chunks by cosine similarity to the query vector,
// most similar first. Equal scores keep document order.
func (x *Index) Search(query []float32, k int) []string {
	if k <= 0 || len(x.chunks) == 0 {
		return nil
	}
	type scored struct {
		idx   int
		score float64
	}
	scores := make([]scored, len(x.vectors))
	for i, v := range x.vectors {
		scores[i] = scored{idx: i, score: cosineSimilarity(query, v)}
	}
	sort.SliceStable(scores, func(i, j int) bool {
		if scores[i].score != scores[j].score {
			return scores[i].score > scores[j].score
		}
		return scores[i].idx < scores[j].idx
	})
	if k > len(scores) {
		k = len(scores)
	}
	out := make([]string, 0, k)
	for _, s := range scores[:k] {
		out = append(out, x.chunks[s.idx])
	}
	return out
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
