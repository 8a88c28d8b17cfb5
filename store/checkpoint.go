package store

// Checkpoint is a durable snapshot of a thread's conversation state at one
// step. The composite key (thread_id, checkpoint_ns, checkpoint_id) is
// unique; saving the same key again replaces the payload in place, so
// re-running a step never creates duplicates.
type Checkpoint struct {
	ThreadID           string
	Namespace          string
	CheckpointID       string
	ParentCheckpointID *string
	// Type discriminates the snapshot format, e.g. "chat_state".
	Type string
	// Payload is the serialized conversation state blob.
	Payload []byte
	// Metadata is the serialized auxiliary metadata blob (step counter,
	// source and the like).
	Metadata []byte
}

// FindCheckpoint filters checkpoint lookups. With CheckpointID nil, lookups
// resolve the latest checkpoint for the thread/namespace; checkpoint ids are
// time-ordered so descending order is well-defined.
type FindCheckpoint struct {
	ThreadID     *string
	Namespace    *string
	CheckpointID *string
}

// CheckpointWrite is a pending or completed side-effect entry emitted by a
// step before the checkpoint that consumes it is finalized. TaskID
// identifies the unit of work that produced it; Idx orders multiple writes
// from the same task.
type CheckpointWrite struct {
	ThreadID     string
	Namespace    string
	CheckpointID string
	TaskID       string
	Idx          int
	// Channel is the logical output slot name.
	Channel string
	// Type discriminates the value payload.
	Type  string
	Value []byte
}

// FindCheckpointWrite filters checkpoint-write lookups.
type FindCheckpointWrite struct {
	ThreadID     string
	Namespace    string
	CheckpointID string
	TaskID       *string
}
