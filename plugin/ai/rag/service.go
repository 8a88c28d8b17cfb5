// Package rag implements the per-thread document context cache: artifact
// storage, chunking, embedding, and similarity retrieval.
package rag

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	lerrors "github.com/hrygo/loom/internal/errors"
	"github.com/hrygo/loom/store"
)

// Embedder turns texts into vectors.
type Embedder interface {
	Embeddings(ctx context.Context, texts []string) ([][]float32, error)
}

// Service owns one optional document per thread. Indexes are process-local
// and rebuilt lazily from the durable artifact after a restart.
type Service struct {
	store     *store.Store
	embedder  Embedder
	artifacts *ArtifactStore

	chunkSize    int
	chunkOverlap int

	mu      sync.RWMutex
	indexes map[string]*Index
	rebuild singleflight.Group
}

// NewService creates the document context cache.
func NewService(st *store.Store, embedder Embedder, artifacts *ArtifactStore, chunkSize, chunkOverlap int) *Service {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		chunkOverlap = DefaultChunkOverlap
	}
	return &Service{
		store:        st,
		embedder:     embedder,
		artifacts:    artifacts,
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
		indexes:      map[string]*Index{},
	}
}

// Ingest stores an uploaded document for a thread, replacing any previous
// one, and builds its index synchronously. The returned metadata reflects
// what was persisted.
func (s *Service) Ingest(ctx context.Context, threadID, filename string, content []byte) (*store.DocumentMetadata, error) {
	if threadID == "" {
		return nil, lerrors.New(lerrors.ErrCodeInvalidArgument, "thread id is required")
	}
	pages, chunks := ChunkDocument(string(content), s.chunkSize, s.chunkOverlap)
	if len(chunks) == 0 {
		return nil, lerrors.New(lerrors.ErrCodeIngestFailed, "document produced no chunks")
	}

	vectors, err := s.embedder.Embeddings(ctx, chunks)
	if err != nil {
		return nil, lerrors.Wrap(err, lerrors.ErrCodeIngestFailed, "failed to embed document chunks")
	}
	if len(vectors) != len(chunks) {
		return nil, lerrors.Newf(lerrors.ErrCodeIngestFailed, "embedding count mismatch: %d chunks, %d vectors", len(chunks), len(vectors))
	}

	path, err := s.artifacts.Save(threadID, filename, content)
	if err != nil {
		return nil, err
	}

	meta, err := s.store.UpsertDocumentMetadata(ctx, &store.DocumentMetadata{
		ThreadID:       threadID,
		Filename:       filename,
		DocumentsCount: pages,
		ChunksCount:    len(chunks),
		ArtifactPath:   path,
		UploadedTs:     time.Now().UnixMilli(),
	})
	if err != nil {
		return nil, lerrors.Wrap(err, lerrors.ErrCodePersistenceFailed, "failed to persist document metadata")
	}

	s.mu.Lock()
	s.indexes[threadID] = NewIndex(chunks, vectors)
	s.mu.Unlock()

	slog.Info("document ingested", "thread", threadID, "filename", filename,
		"pages", pages, "chunks", len(chunks))
	return meta, nil
}

// HasDocument reports whether the thread has a usable document: either a
// built in-memory index, or a metadata record whose artifact still exists
// and can therefore be rebuilt. Checked without eagerly rebuilding.
func (s *Service) HasDocument(ctx context.Context, threadID string) bool {
	s.mu.RLock()
	_, ok := s.indexes[threadID]
	s.mu.RUnlock()
	if ok {
		return true
	}
	meta, err := s.store.GetDocumentMetadata(ctx, threadID)
	if err != nil {
		slog.Warn("document metadata lookup failed", "thread", threadID, "error", err)
		return false
	}
	return meta != nil && s.artifacts.Exists(meta.ArtifactPath)
}

// Retrieve returns the top-k document snippets most similar to query.
// Returns NO_DOCUMENT when the thread never had a document and
// DOCUMENT_MISSING when metadata exists but the artifact is gone.
func (s *Service) Retrieve(ctx context.Context, query, threadID string, k int) ([]string, error) {
	index, err := s.index(ctx, threadID)
	if err != nil {
		return nil, err
	}
	vectors, err := s.embedder.Embeddings(ctx, []string{query})
	if err != nil {
		return nil, lerrors.Wrap(err, lerrors.ErrCodeIngestFailed, "failed to embed query")
	}
	if len(vectors) != 1 {
		return nil, lerrors.New(lerrors.ErrCodeIngestFailed, "embedding provider returned no query vector")
	}
	return index.Search(vectors[0], k), nil
}

// Forget drops the thread's index and artifact. Metadata removal is the
// store's concern (it cascades with thread deletion).
func (s *Service) Forget(threadID string) error {
	s.mu.Lock()
	delete(s.indexes, threadID)
	s.mu.Unlock()
	return s.artifacts.Delete(threadID)
}

// index returns the thread's index, lazily rebuilding it from the durable
// artifact. Concurrent rebuilds for the same thread are collapsed.
func (s *Service) index(ctx context.Context, threadID string) (*Index, error) {
	s.mu.RLock()
	index, ok := s.indexes[threadID]
	s.mu.RUnlock()
	if ok {
		return index, nil
	}

	v, err, _ := s.rebuild.Do(threadID, func() (any, error) {
		s.mu.RLock()
		index, ok := s.indexes[threadID]
		s.mu.RUnlock()
		if ok {
			return index, nil
		}
		return s.rebuildIndex(ctx, threadID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Index), nil
}

func (s *Service) rebuildIndex(ctx context.Context, threadID string) (*Index, error) {
	meta, err := s.store.GetDocumentMetadata(ctx, threadID)
	if err != nil {
		return nil, lerrors.Wrap(err, lerrors.ErrCodePersistenceFailed, "failed to load document metadata")
	}
	if meta == nil {
		return nil, lerrors.New(lerrors.ErrCodeNoDocument, "no document uploaded for this thread")
	}

	content, err := s.artifacts.Load(meta.ArtifactPath)
	if err != nil {
		return nil, lerrors.Wrapf(err, lerrors.ErrCodeDocumentMissing,
			"document %q recorded but artifact unavailable", meta.Filename)
	}

	_, chunks := ChunkDocument(content, s.chunkSize, s.chunkOverlap)
	if len(chunks) == 0 {
		return nil, lerrors.Newf(lerrors.ErrCodeDocumentMissing,
			"document %q artifact is empty", meta.Filename)
	}
	vectors, err := s.embedder.Embeddings(ctx, chunks)
	if err != nil {
		return nil, lerrors.Wrap(err, lerrors.ErrCodeIngestFailed, "failed to re-embed document chunks")
	}
	if len(vectors) != len(chunks) {
		return nil, lerrors.New(lerrors.ErrCodeIngestFailed, "embedding count mismatch on rebuild")
	}

	index := NewIndex(chunks, vectors)
	s.mu.Lock()
	s.indexes[threadID] = index
	s.mu.Unlock()

	slog.Info("document index rebuilt", "thread", threadID,
		"filename", meta.Filename, "chunks", len(chunks))
	return index, nil
}

// Describe summarizes the thread's document for API responses.
func (s *Service) Describe(ctx context.Context, threadID string) (*store.DocumentMetadata, error) {
	meta, err := s.store.GetDocumentMetadata(ctx, threadID)
	if err != nil {
		return nil, lerrors.Wrap(err, lerrors.ErrCodePersistenceFailed, "failed to load document metadata")
	}
	if meta == nil {
		return nil, lerrors.New(lerrors.ErrCodeNoDocument, "no document uploaded for this thread")
	}
	return meta, nil
}
