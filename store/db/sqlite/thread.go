package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/hrygo/loom/store"
)

func (d *DB) UpsertThread(ctx context.Context, upsert *store.Thread) (*store.Thread, error) {
	fields := []string{"id", "title", "created_ts", "updated_ts"}
	args := []any{upsert.ID, upsert.Title, upsert.CreatedTs, upsert.UpdatedTs}

	stmt := `INSERT INTO thread (` + strings.Join(fields, ", ") + `)
		VALUES (` + placeholders(len(args)) + `)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			updated_ts = EXCLUDED.updated_ts`
	if _, err := d.db.ExecContext(ctx, stmt, args...); err != nil {
		return nil, fmt.Errorf("failed to upsert thread: %w", err)
	}
	return upsert, nil
}

func (d *DB) GetThread(ctx context.Context, id string) (*store.Thread, error) {
	thread := &store.Thread{}
	err := d.db.QueryRowContext(ctx,
		`SELECT id, title, created_ts, updated_ts FROM thread WHERE id = ?`, id,
	).Scan(&thread.ID, &thread.Title, &thread.CreatedTs, &thread.UpdatedTs)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get thread: %w", err)
	}
	return thread, nil
}

func (d *DB) ListThreads(ctx context.Context, find *store.FindThread) ([]*store.Thread, error) {
	where, args := []string{"1 = 1"}, []any{}
	if v := find.ID; v != nil {
		where, args = append(where, "id = "+placeholder(len(args)+1)), append(args, *v)
	}

	query := `SELECT id, title, created_ts, updated_ts FROM thread WHERE ` +
		strings.Join(where, " AND ") + ` ORDER BY updated_ts DESC`
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list threads: %w", err)
	}
	defer rows.Close()

	list := make([]*store.Thread, 0)
	for rows.Next() {
		t := &store.Thread{}
		if err := rows.Scan(&t.ID, &t.Title, &t.CreatedTs, &t.UpdatedTs); err != nil {
			return nil, fmt.Errorf("failed to scan thread: %w", err)
		}
		list = append(list, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate threads: %w", err)
	}
	return list, nil
}

func (d *DB) UpdateThread(ctx context.Context, update *store.UpdateThread) error {
	set, args := []string{}, []any{}
	if v := update.Title; v != nil {
		set, args = append(set, "title = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := update.UpdatedTs; v != nil {
		set, args = append(set, "updated_ts = "+placeholder(len(args)+1)), append(args, *v)
	}
	if len(set) == 0 {
		return nil
	}
	args = append(args, update.ID)

	stmt := `UPDATE thread SET ` + strings.Join(set, ", ") + ` WHERE id = ` + placeholder(len(args))
	if _, err := d.db.ExecContext(ctx, stmt, args...); err != nil {
		return fmt.Errorf("failed to update thread: %w", err)
	}
	return nil
}

func (d *DB) TouchThread(ctx context.Context, id string, updatedTs int64) error {
	// A touch always strictly advances updated_ts and never moves it
	// backwards, so activity ordering is stable even within one millisecond.
	stmt := `UPDATE thread SET updated_ts = MAX(updated_ts + 1, ?) WHERE id = ?`
	if _, err := d.db.ExecContext(ctx, stmt, updatedTs, id); err != nil {
		return fmt.Errorf("failed to touch thread: %w", err)
	}
	return nil
}
