package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/hrygo/loom/store"
)

func (d *DB) UpsertDocumentMetadata(ctx context.Context, upsert *store.DocumentMetadata) (*store.DocumentMetadata, error) {
	fields := []string{"thread_id", "filename", "documents_count", "chunks_count", "artifact_path", "uploaded_ts"}
	args := []any{upsert.ThreadID, upsert.Filename, upsert.DocumentsCount, upsert.ChunksCount, upsert.ArtifactPath, upsert.UploadedTs}

	stmt := `INSERT INTO document (` + strings.Join(fields, ", ") + `)
		VALUES (` + placeholders(len(args)) + `)
		ON CONFLICT (thread_id) DO UPDATE SET
			filename = EXCLUDED.filename,
			documents_count = EXCLUDED.documents_count,
			chunks_count = EXCLUDED.chunks_count,
			artifact_path = EXCLUDED.artifact_path,
			uploaded_ts = EXCLUDED.uploaded_ts`
	if _, err := d.db.ExecContext(ctx, stmt, args...); err != nil {
		return nil, fmt.Errorf("failed to upsert document metadata: %w", err)
	}
	return upsert, nil
}

func (d *DB) GetDocumentMetadata(ctx context.Context, threadID string) (*store.DocumentMetadata, error) {
	meta := &store.DocumentMetadata{}
	err := d.db.QueryRowContext(ctx,
		`SELECT thread_id, filename, documents_count, chunks_count, artifact_path, uploaded_ts
			FROM document WHERE thread_id = $1`, threadID,
	).Scan(&meta.ThreadID, &meta.Filename, &meta.DocumentsCount, &meta.ChunksCount, &meta.ArtifactPath, &meta.UploadedTs)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document metadata: %w", err)
	}
	return meta, nil
}

func (d *DB) DeleteDocumentMetadata(ctx context.Context, threadID string) error {
	if _, err := d.db.ExecContext(ctx, `DELETE FROM document WHERE thread_id = $1`, threadID); err != nil {
		return fmt.Errorf("failed to delete document metadata: %w", err)
	}
	return nil
}
