package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/hrygo/loom/store"
)

func (d *DB) UpsertCheckpoint(ctx context.Context, upsert *store.Checkpoint) error {
	fields := []string{"thread_id", "checkpoint_ns", "checkpoint_id", "parent_checkpoint_id", "type", "payload", "metadata"}
	args := []any{upsert.ThreadID, upsert.Namespace, upsert.CheckpointID, upsert.ParentCheckpointID, upsert.Type, upsert.Payload, upsert.Metadata}

	stmt := `INSERT INTO checkpoint (` + strings.Join(fields, ", ") + `)
		VALUES (` + placeholders(len(args)) + `)
		ON CONFLICT (thread_id, checkpoint_ns, checkpoint_id) DO UPDATE SET
			parent_checkpoint_id = EXCLUDED.parent_checkpoint_id,
			type = EXCLUDED.type,
			payload = EXCLUDED.payload,
			metadata = EXCLUDED.metadata`
	if _, err := d.db.ExecContext(ctx, stmt, args...); err != nil {
		return fmt.Errorf("failed to upsert checkpoint: %w", err)
	}
	return nil
}

func (d *DB) GetCheckpoint(ctx context.Context, find *store.FindCheckpoint) (*store.Checkpoint, error) {
	where, args := []string{"1 = 1"}, []any{}
	if v := find.ThreadID; v != nil {
		where, args = append(where, "thread_id = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.Namespace; v != nil {
		where, args = append(where, "checkpoint_ns = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.CheckpointID; v != nil {
		where, args = append(where, "checkpoint_id = "+placeholder(len(args)+1)), append(args, *v)
	}

	query := `SELECT thread_id, checkpoint_ns, checkpoint_id, parent_checkpoint_id, type, payload, metadata
		FROM checkpoint WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY checkpoint_id DESC LIMIT 1`

	cp := &store.Checkpoint{}
	var parent, typ sql.NullString
	err := d.db.QueryRowContext(ctx, query, args...).Scan(
		&cp.ThreadID, &cp.Namespace, &cp.CheckpointID, &parent, &typ, &cp.Payload, &cp.Metadata,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get checkpoint: %w", err)
	}
	if parent.Valid {
		cp.ParentCheckpointID = &parent.String
	}
	cp.Type = typ.String
	return cp, nil
}

func (d *DB) ListCheckpoints(ctx context.Context, find *store.FindCheckpoint) ([]*store.Checkpoint, error) {
	where, args := []string{"1 = 1"}, []any{}
	if v := find.ThreadID; v != nil {
		where, args = append(where, "thread_id = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.Namespace; v != nil {
		where, args = append(where, "checkpoint_ns = "+placeholder(len(args)+1)), append(args, *v)
	}

	query := `SELECT thread_id, checkpoint_ns, checkpoint_id, parent_checkpoint_id, type, payload, metadata
		FROM checkpoint WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY thread_id, checkpoint_id DESC`
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}
	defer rows.Close()

	list := make([]*store.Checkpoint, 0)
	for rows.Next() {
		cp := &store.Checkpoint{}
		var parent, typ sql.NullString
		if err := rows.Scan(&cp.ThreadID, &cp.Namespace, &cp.CheckpointID, &parent, &typ, &cp.Payload, &cp.Metadata); err != nil {
			return nil, fmt.Errorf("failed to scan checkpoint: %w", err)
		}
		if parent.Valid {
			cp.ParentCheckpointID = &parent.String
		}
		cp.Type = typ.String
		list = append(list, cp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate checkpoints: %w", err)
	}
	return list, nil
}

func (d *DB) UpsertCheckpointWrites(ctx context.Context, writes []*store.CheckpointWrite) error {
	if len(writes) == 0 {
		return nil
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt := `INSERT INTO checkpoint_write (thread_id, checkpoint_ns, checkpoint_id, task_id, idx, channel, type, value)
		VALUES (` + placeholders(8) + `)
		ON CONFLICT (thread_id, checkpoint_ns, checkpoint_id, task_id, idx) DO UPDATE SET
			channel = EXCLUDED.channel,
			type = EXCLUDED.type,
			value = EXCLUDED.value`
	for _, w := range writes {
		if _, err := tx.ExecContext(ctx, stmt,
			w.ThreadID, w.Namespace, w.CheckpointID, w.TaskID, w.Idx, w.Channel, w.Type, w.Value,
		); err != nil {
			return fmt.Errorf("failed to upsert checkpoint write: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit checkpoint writes: %w", err)
	}
	return nil
}

func (d *DB) ListCheckpointWrites(ctx context.Context, find *store.FindCheckpointWrite) ([]*store.CheckpointWrite, error) {
	where := []string{"thread_id = $1", "checkpoint_ns = $2", "checkpoint_id = $3"}
	args := []any{find.ThreadID, find.Namespace, find.CheckpointID}
	if v := find.TaskID; v != nil {
		where, args = append(where, "task_id = "+placeholder(len(args)+1)), append(args, *v)
	}

	query := `SELECT thread_id, checkpoint_ns, checkpoint_id, task_id, idx, channel, type, value
		FROM checkpoint_write WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY task_id, idx`
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoint writes: %w", err)
	}
	defer rows.Close()

	list := make([]*store.CheckpointWrite, 0)
	for rows.Next() {
		w := &store.CheckpointWrite{}
		var typ sql.NullString
		if err := rows.Scan(&w.ThreadID, &w.Namespace, &w.CheckpointID, &w.TaskID, &w.Idx, &w.Channel, &typ, &w.Value); err != nil {
			return nil, fmt.Errorf("failed to scan checkpoint write: %w", err)
		}
		w.Type = typ.String
		list = append(list, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate checkpoint writes: %w", err)
	}
	return list, nil
}

func (d *DB) DeleteThreadData(ctx context.Context, threadID string) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		`DELETE FROM checkpoint_write WHERE thread_id = $1`,
		`DELETE FROM checkpoint WHERE thread_id = $1`,
		`DELETE FROM document WHERE thread_id = $1`,
		`DELETE FROM thread WHERE id = $1`,
	} {
		if _, err := tx.ExecContext(ctx, stmt, threadID); err != nil {
			return fmt.Errorf("failed to delete thread data: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit thread deletion: %w", err)
	}
	return nil
}
