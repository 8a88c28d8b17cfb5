package rag

import (
	"os"
	"path/filepath"
	"strings"

	lerrors "github.com/hrygo/loom/internal/errors"
)

// ArtifactStore keeps the raw uploaded document bytes on the local
// filesystem so indexes can be rebuilt after a restart.
type ArtifactStore struct {
	root string
}

// NewArtifactStore roots artifact storage under dir (typically
// <data>/documents).
func NewArtifactStore(dir string) (*ArtifactStore, error) {
	if err := os.MkdirAll(dir, 0o770); err != nil {
		return nil, lerrors.Wrap(err, lerrors.ErrCodeIngestFailed, "failed to create artifact directory")
	}
	return &ArtifactStore{root: dir}, nil
}

// Save writes the artifact for a thread and returns its path. One document
// per thread: a new upload replaces the previous artifact.
func (a *ArtifactStore) Save(threadID, filename string, content []byte) (string, error) {
	dir := filepath.Join(a.root, threadID)
	if err := os.MkdirAll(dir, 0o770); err != nil {
		return "", lerrors.Wrap(err, lerrors.ErrCodeIngestFailed, "failed to create thread artifact directory")
	}
	// Previous artifact goes away with its parent directory contents.
	entries, err := os.ReadDir(dir)
	if err == nil {
		for _, entry := range entries {
			_ = os.Remove(filepath.Join(dir, entry.Name()))
		}
	}
	path := filepath.Join(dir, sanitizeFilename(filename))
	if err := os.WriteFile(path, content, 0o660); err != nil {
		return "", lerrors.Wrap(err, lerrors.ErrCodeIngestFailed, "failed to write artifact")
	}
	return path, nil
}

// Load reads an artifact back as text.
func (a *ArtifactStore) Load(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", lerrors.Wrap(err, lerrors.ErrCodeIngestFailed, "failed to read artifact")
	}
	return string(content), nil
}

// Exists reports whether the artifact file is still present.
func (a *ArtifactStore) Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// Delete removes a thread's artifact directory.
func (a *ArtifactStore) Delete(threadID string) error {
	if threadID == "" {
		return nil
	}
	return os.RemoveAll(filepath.Join(a.root, threadID))
}

func sanitizeFilename(name string) string {
	name = filepath.Base(name)
	name = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, name)
	if name == "" || name == "." || name == ".." {
		name = "document.txt"
	}
	return name
}
