package store

import (
	"context"
	"sort"
	"time"

	"github.com/hrygo/loom/internal/profile"
	"github.com/hrygo/loom/store/cache"
)

// Store provides database access to all raw objects.
type Store struct {
	profile *profile.Profile
	driver  Driver

	// Cache for thread titles; checkpoints are never cached.
	threadCache *cache.Cache
}

// New creates a new instance of Store.
func New(driver Driver, profile *profile.Profile) *Store {
	return &Store{
		driver:  driver,
		profile: profile,
		threadCache: cache.New(cache.Config{
			DefaultTTL:      10 * time.Minute,
			CleanupInterval: 5 * time.Minute,
			MaxItems:        1000,
		}),
	}
}

func (s *Store) GetDriver() Driver {
	return s.driver
}

func (s *Store) Close() error {
	s.threadCache.Close()
	return s.driver.Close()
}

func (s *Store) UpsertThread(ctx context.Context, upsert *Thread) (*Thread, error) {
	if upsert.Title == "" {
		upsert.Title = DefaultThreadTitle
	}
	thread, err := s.driver.UpsertThread(ctx, upsert)
	if err != nil {
		return nil, err
	}
	s.threadCache.Set(thread.ID, thread)
	return thread, nil
}

func (s *Store) GetThread(ctx context.Context, id string) (*Thread, error) {
	if v, ok := s.threadCache.Get(id); ok {
		if thread, ok := v.(*Thread); ok {
			return thread, nil
		}
	}
	thread, err := s.driver.GetThread(ctx, id)
	if err != nil {
		return nil, err
	}
	if thread != nil {
		s.threadCache.Set(id, thread)
	}
	return thread, nil
}

// ListThreads returns registry rows ordered by updated_ts descending.
func (s *Store) ListThreads(ctx context.Context, find *FindThread) ([]*Thread, error) {
	return s.driver.ListThreads(ctx, find)
}

// ListThreadsReconciled merges the registry with the set of thread ids known
// to the checkpoint table. A thread that has checkpoints but no registry row
// (orphaned) is still returned, with the default title synthesized. The two
// sources of truth can diverge and neither is assumed exhaustive.
func (s *Store) ListThreadsReconciled(ctx context.Context) ([]*Thread, error) {
	threads, err := s.driver.ListThreads(ctx, &FindThread{})
	if err != nil {
		return nil, err
	}
	known := make(map[string]bool, len(threads))
	for _, t := range threads {
		known[t.ID] = true
	}

	checkpoints, err := s.driver.ListCheckpoints(ctx, &FindCheckpoint{})
	if err != nil {
		return nil, err
	}
	for _, cp := range checkpoints {
		if known[cp.ThreadID] {
			continue
		}
		known[cp.ThreadID] = true
		threads = append(threads, &Thread{
			ID:    cp.ThreadID,
			Title: DefaultThreadTitle,
		})
	}

	sort.SliceStable(threads, func(i, j int) bool {
		return threads[i].UpdatedTs > threads[j].UpdatedTs
	})
	return threads, nil
}

// UpdateThread applies a partial update. Nil fields are left untouched.
func (s *Store) UpdateThread(ctx context.Context, update *UpdateThread) error {
	if err := s.driver.UpdateThread(ctx, update); err != nil {
		return err
	}
	s.threadCache.Delete(update.ID)
	return nil
}

// TouchThread bumps updated_ts to mark recent activity. Every touch
// strictly advances the timestamp; it never moves backwards.
func (s *Store) TouchThread(ctx context.Context, id string, updatedTs int64) error {
	if err := s.driver.TouchThread(ctx, id, updatedTs); err != nil {
		return err
	}
	s.threadCache.Delete(id)
	return nil
}

func (s *Store) UpsertCheckpoint(ctx context.Context, upsert *Checkpoint) error {
	return s.driver.UpsertCheckpoint(ctx, upsert)
}

func (s *Store) GetCheckpoint(ctx context.Context, find *FindCheckpoint) (*Checkpoint, error) {
	return s.driver.GetCheckpoint(ctx, find)
}

func (s *Store) ListCheckpoints(ctx context.Context, find *FindCheckpoint) ([]*Checkpoint, error) {
	return s.driver.ListCheckpoints(ctx, find)
}

func (s *Store) UpsertCheckpointWrites(ctx context.Context, writes []*CheckpointWrite) error {
	return s.driver.UpsertCheckpointWrites(ctx, writes)
}

func (s *Store) ListCheckpointWrites(ctx context.Context, find *FindCheckpointWrite) ([]*CheckpointWrite, error) {
	return s.driver.ListCheckpointWrites(ctx, find)
}

func (s *Store) UpsertDocumentMetadata(ctx context.Context, upsert *DocumentMetadata) (*DocumentMetadata, error) {
	return s.driver.UpsertDocumentMetadata(ctx, upsert)
}

func (s *Store) GetDocumentMetadata(ctx context.Context, threadID string) (*DocumentMetadata, error) {
	return s.driver.GetDocumentMetadata(ctx, threadID)
}

func (s *Store) DeleteDocumentMetadata(ctx context.Context, threadID string) error {
	return s.driver.DeleteDocumentMetadata(ctx, threadID)
}

// DeleteThreadData cascades across the thread row, checkpoints, writes and
// document metadata.
func (s *Store) DeleteThreadData(ctx context.Context, threadID string) error {
	if err := s.driver.DeleteThreadData(ctx, threadID); err != nil {
		return err
	}
	s.threadCache.Delete(threadID)
	return nil
}
