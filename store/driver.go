package store

import (
	"context"
	"database/sql"
)

// Driver is the interface a store database driver implements. All write
// methods are individually transactional: a concurrent reader never observes
// a half-written row.
type Driver interface {
	GetDB() *sql.DB
	Close() error

	IsInitialized(ctx context.Context) (bool, error)

	// Thread model related methods.
	UpsertThread(ctx context.Context, upsert *Thread) (*Thread, error)
	GetThread(ctx context.Context, id string) (*Thread, error)
	ListThreads(ctx context.Context, find *FindThread) ([]*Thread, error)
	UpdateThread(ctx context.Context, update *UpdateThread) error
	TouchThread(ctx context.Context, id string, updatedTs int64) error

	// Checkpoint model related methods.
	UpsertCheckpoint(ctx context.Context, upsert *Checkpoint) error
	GetCheckpoint(ctx context.Context, find *FindCheckpoint) (*Checkpoint, error)
	ListCheckpoints(ctx context.Context, find *FindCheckpoint) ([]*Checkpoint, error)

	// CheckpointWrite model related methods. UpsertCheckpointWrites applies
	// the whole batch in one transaction.
	UpsertCheckpointWrites(ctx context.Context, writes []*CheckpointWrite) error
	ListCheckpointWrites(ctx context.Context, find *FindCheckpointWrite) ([]*CheckpointWrite, error)

	// DocumentMetadata model related methods.
	UpsertDocumentMetadata(ctx context.Context, upsert *DocumentMetadata) (*DocumentMetadata, error)
	GetDocumentMetadata(ctx context.Context, threadID string) (*DocumentMetadata, error)
	DeleteDocumentMetadata(ctx context.Context, threadID string) error

	// DeleteThreadData removes the thread row, its checkpoints, checkpoint
	// writes and document metadata in a single transaction.
	DeleteThreadData(ctx context.Context, threadID string) error
}
