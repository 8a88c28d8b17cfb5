// Package checkpoint implements the durable, idempotent persistence API for
// conversation snapshots and their pending side-effect writes. It is the
// system of record for conversation state.
package checkpoint

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	lerrors "github.com/hrygo/loom/internal/errors"
	"github.com/hrygo/loom/plugin/ai/agent/state"
	"github.com/hrygo/loom/store"
)

// Ref identifies one checkpoint by its composite key.
type Ref struct {
	ThreadID     string
	Namespace    string
	CheckpointID string
}

// Tuple is one checkpoint snapshot with its decoded payloads.
type Tuple struct {
	Ref      Ref
	ParentID *string
	State    *state.ChatState
	Meta     *Metadata
}

// Write is one pending side-effect entry to record for a task.
type Write struct {
	Channel string
	Value   any
}

// StoredWrite is a decoded side-effect entry read back from the store.
type StoredWrite struct {
	TaskID  string
	Idx     int
	Channel string
	Value   json.RawMessage
}

// Saver persists and retrieves checkpoints through the store driver.
type Saver struct {
	store *store.Store
}

// NewSaver creates a Saver on top of the store.
func NewSaver(s *store.Store) *Saver {
	return &Saver{store: s}
}

// NewID returns a new time-ordered checkpoint id. UUIDv7 sorts
// lexicographically by creation time, so "latest" is resolvable with a
// plain ORDER BY.
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Put upserts one checkpoint. Saving an existing composite key replaces the
// payload and parent reference in place; the returned Ref is the resume
// config for the next step.
func (s *Saver) Put(ctx context.Context, ref Ref, parentID *string, st *state.ChatState, meta *Metadata) (Ref, error) {
	if ref.ThreadID == "" || ref.CheckpointID == "" {
		return Ref{}, lerrors.New(lerrors.ErrCodeInvalidArgument, "thread id and checkpoint id are required")
	}
	if meta == nil {
		meta = &Metadata{Source: "turn", CreatedTs: time.Now().UnixMilli()}
	}

	payload, err := EncodeState(st)
	if err != nil {
		return Ref{}, err
	}
	metaBlob, err := EncodeMetadata(meta)
	if err != nil {
		return Ref{}, err
	}

	err = s.store.UpsertCheckpoint(ctx, &store.Checkpoint{
		ThreadID:           ref.ThreadID,
		Namespace:          ref.Namespace,
		CheckpointID:       ref.CheckpointID,
		ParentCheckpointID: parentID,
		Type:               TypeChatState,
		Payload:            payload,
		Metadata:           metaBlob,
	})
	if err != nil {
		return Ref{}, lerrors.Wrap(err, lerrors.ErrCodePersistenceFailed, "failed to persist checkpoint")
	}
	return ref, nil
}

// PutWrites records the ordered side-effect entries a task produced for a
// checkpoint. Idx is the position within the input list, preserved for
// deterministic replay; the whole batch is one transaction.
func (s *Saver) PutWrites(ctx context.Context, ref Ref, taskID string, writes []Write) error {
	if len(writes) == 0 {
		return nil
	}
	rows := make([]*store.CheckpointWrite, 0, len(writes))
	for idx, w := range writes {
		value, err := json.Marshal(w.Value)
		if err != nil {
			return lerrors.Wrap(err, lerrors.ErrCodePersistenceFailed, "failed to marshal checkpoint write")
		}
		rows = append(rows, &store.CheckpointWrite{
			ThreadID:     ref.ThreadID,
			Namespace:    ref.Namespace,
			CheckpointID: ref.CheckpointID,
			TaskID:       taskID,
			Idx:          idx,
			Channel:      w.Channel,
			Type:         "json",
			Value:        value,
		})
	}
	if err := s.store.UpsertCheckpointWrites(ctx, rows); err != nil {
		return lerrors.Wrap(err, lerrors.ErrCodePersistenceFailed, "failed to persist checkpoint writes")
	}
	return nil
}

// GetTuple returns the checkpoint identified by checkpointID, or the latest
// checkpoint for the thread/namespace when checkpointID is nil. Returns
// (nil, nil) when no checkpoint exists.
func (s *Saver) GetTuple(ctx context.Context, threadID, namespace string, checkpointID *string) (*Tuple, error) {
	row, err := s.store.GetCheckpoint(ctx, &store.FindCheckpoint{
		ThreadID:     &threadID,
		Namespace:    &namespace,
		CheckpointID: checkpointID,
	})
	if err != nil {
		return nil, lerrors.Wrap(err, lerrors.ErrCodePersistenceFailed, "failed to load checkpoint")
	}
	if row == nil {
		return nil, nil
	}
	return decodeTuple(row)
}

// List returns checkpoint snapshots, all of them when find is empty,
// ordered by thread then checkpoint id descending. Every call produces a
// fresh, independent iteration.
func (s *Saver) List(ctx context.Context, threadID, namespace *string) ([]*Tuple, error) {
	rows, err := s.store.ListCheckpoints(ctx, &store.FindCheckpoint{
		ThreadID:  threadID,
		Namespace: namespace,
	})
	if err != nil {
		return nil, lerrors.Wrap(err, lerrors.ErrCodePersistenceFailed, "failed to list checkpoints")
	}
	tuples := make([]*Tuple, 0, len(rows))
	for _, row := range rows {
		t, err := decodeTuple(row)
		if err != nil {
			return nil, err
		}
		tuples = append(tuples, t)
	}
	return tuples, nil
}

// PendingWrites returns the side-effect entries recorded for a checkpoint,
// ordered by task then index.
func (s *Saver) PendingWrites(ctx context.Context, ref Ref) ([]*StoredWrite, error) {
	rows, err := s.store.ListCheckpointWrites(ctx, &store.FindCheckpointWrite{
		ThreadID:     ref.ThreadID,
		Namespace:    ref.Namespace,
		CheckpointID: ref.CheckpointID,
	})
	if err != nil {
		return nil, lerrors.Wrap(err, lerrors.ErrCodePersistenceFailed, "failed to list checkpoint writes")
	}
	writes := make([]*StoredWrite, 0, len(rows))
	for _, row := range rows {
		writes = append(writes, &StoredWrite{
			TaskID:  row.TaskID,
			Idx:     row.Idx,
			Channel: row.Channel,
			Value:   json.RawMessage(row.Value),
		})
	}
	return writes, nil
}

func decodeTuple(row *store.Checkpoint) (*Tuple, error) {
	state, err := DecodeState(row.Payload)
	if err != nil {
		return nil, err
	}
	meta, err := DecodeMetadata(row.Metadata)
	if err != nil {
		return nil, err
	}
	return &Tuple{
		Ref: Ref{
			ThreadID:     row.ThreadID,
			Namespace:    row.Namespace,
			CheckpointID: row.CheckpointID,
		},
		ParentID: row.ParentCheckpointID,
		State:    state,
		Meta:     meta,
	}, nil
}
