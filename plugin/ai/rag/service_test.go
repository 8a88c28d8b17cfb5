package rag

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	lerrors "github.com/hrygo/loom/internal/errors"
	"github.com/hrygo/loom/internal/profile"
	"github.com/hrygo/loom/store"
	"github.com/hrygo/loom/store/db/sqlite"
)

// hashEmbedder produces deterministic vectors from text so similarity is
// exact-match driven: identical strings embed identically.
type hashEmbedder struct {
	calls int
}

func (h *hashEmbedder) Embeddings(_ context.Context, texts []string) ([][]float32, error) {
	h.calls++
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v := make([]float32, 8)
		for j, r := range text {
			v[j%8] += float32(r%31) / 31
		}
		out[i] = v
	}
	return out, nil
}

func newTestEnv(t *testing.T) (*store.Store, *ArtifactStore, *hashEmbedder) {
	t.Helper()
	dir := t.TempDir()
	p := &profile.Profile{Mode: "dev", Driver: "sqlite", Data: dir, DSN: filepath.Join(dir, "loom_test.db")}
	driver, err := sqlite.NewDB(p)
	require.NoError(t, err)
	st := store.New(driver, p)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { _ = st.Close() })

	artifacts, err := NewArtifactStore(filepath.Join(dir, "documents"))
	require.NoError(t, err)
	return st, artifacts, &hashEmbedder{}
}

func TestIngestAndRetrieve(t *testing.T) {
	ctx := context.Background()
	st, artifacts, embedder := newTestEnv(t)
	svc := NewService(st, embedder, artifacts, 1000, 200)

	doc := "cats purr when content\f" + "dogs bark at strangers\f" + "fish swim in schools"
	meta, err := svc.Ingest(ctx, "t1", "animals.txt", []byte(doc))
	require.NoError(t, err)
	require.Equal(t, 3, meta.DocumentsCount)
	require.Equal(t, 3, meta.ChunksCount)
	require.True(t, svc.HasDocument(ctx, "t1"))

	got, err := svc.Retrieve(ctx, "dogs bark at strangers", "t1", 1)
	require.NoError(t, err)
	require.Equal(t, []string{"dogs bark at strangers"}, got)
}

func TestIngestRejectsEmptyDocument(t *testing.T) {
	st, artifacts, embedder := newTestEnv(t)
	svc := NewService(st, embedder, artifacts, 1000, 200)

	_, err := svc.Ingest(context.Background(), "t1", "empty.txt", []byte("   \n  "))
	require.Error(t, err)
	require.True(t, lerrors.IsCode(err, lerrors.ErrCodeIngestFailed))
}

func TestRetrieveWithoutDocument(t *testing.T) {
	st, artifacts, embedder := newTestEnv(t)
	svc := NewService(st, embedder, artifacts, 1000, 200)

	_, err := svc.Retrieve(context.Background(), "anything", "t1", 4)
	require.Error(t, err)
	require.True(t, lerrors.IsCode(err, lerrors.ErrCodeNoDocument))
	require.False(t, svc.HasDocument(context.Background(), "t1"))
}

func TestIndexRebuiltAfterRestart(t *testing.T) {
	ctx := context.Background()
	st, artifacts, embedder := newTestEnv(t)

	first := NewService(st, embedder, artifacts, 1000, 200)
	_, err := first.Ingest(ctx, "t1", "notes.txt", []byte("alpha facts\fbeta facts"))
	require.NoError(t, err)

	// A fresh service over the same store and artifacts simulates a
	// process restart: the in-memory index is gone.
	second := NewService(st, embedder, artifacts, 1000, 200)
	require.True(t, second.HasDocument(ctx, "t1"))

	got, err := second.Retrieve(ctx, "beta facts", "t1", 1)
	require.NoError(t, err)
	require.Equal(t, []string{"beta facts"}, got)
}

func TestRetrieveReportsMissingArtifact(t *testing.T) {
	ctx := context.Background()
	st, artifacts, embedder := newTestEnv(t)

	first := NewService(st, embedder, artifacts, 1000, 200)
	meta, err := first.Ingest(ctx, "t1", "notes.txt", []byte("some facts"))
	require.NoError(t, err)
	require.NoError(t, os.Remove(meta.ArtifactPath))

	// Restarted service: metadata says a document exists, but nothing can
	// rebuild the index.
	second := NewService(st, embedder, artifacts, 1000, 200)
	require.False(t, second.HasDocument(ctx, "t1"))
	_, err = second.Retrieve(ctx, "some facts", "t1", 1)
	require.Error(t, err)
	require.True(t, lerrors.IsCode(err, lerrors.ErrCodeDocumentMissing))
}

func TestIngestReplacesPreviousDocument(t *testing.T) {
	ctx := context.Background()
	st, artifacts, embedder := newTestEnv(t)
	svc := NewService(st, embedder, artifacts, 1000, 200)

	_, err := svc.Ingest(ctx, "t1", "old.txt", []byte("old content"))
	require.NoError(t, err)
	meta, err := svc.Ingest(ctx, "t1", "new.txt", []byte("new content"))
	require.NoError(t, err)
	require.Equal(t, "new.txt", meta.Filename)

	got, err := svc.Retrieve(ctx, "new content", "t1", 1)
	require.NoError(t, err)
	require.Equal(t, []string{"new content"}, got)

	stored, err := st.GetDocumentMetadata(ctx, "t1")
	require.NoError(t, err)
	require.Equal(t, "new.txt", stored.Filename)
}

func TestForgetDropsIndexAndArtifact(t *testing.T) {
	ctx := context.Background()
	st, artifacts, embedder := newTestEnv(t)
	svc := NewService(st, embedder, artifacts, 1000, 200)

	meta, err := svc.Ingest(ctx, "t1", "notes.txt", []byte("some facts"))
	require.NoError(t, err)
	require.NoError(t, svc.Forget("t1"))

	_, err = os.Stat(meta.ArtifactPath)
	require.True(t, os.IsNotExist(err))
}
