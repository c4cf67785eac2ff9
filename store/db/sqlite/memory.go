package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/waspdev/waspd/store"
)

type sqliteMemoryChunkStore struct {
	db *sql.DB
}

func (s *sqliteMemoryChunkStore) Put(ctx context.Context, chunk *store.MemoryChunk) error {
	metadata, err := json.Marshal(chunk.Metadata)
	if err != nil {
		return errors.Wrap(err, "failed to marshal chunk metadata")
	}

	query := `
		INSERT INTO memory_chunk (key, doc_id, idx, text, fingerprint, metadata, created_ts)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET
			doc_id = excluded.doc_id, idx = excluded.idx, text = excluded.text,
			fingerprint = excluded.fingerprint, metadata = excluded.metadata,
			created_ts = excluded.created_ts
	`
	_, err = s.db.ExecContext(ctx, query,
		chunk.Key,
		chunk.DocID,
		chunk.Index,
		chunk.Text,
		chunk.Fingerprint,
		string(metadata),
		chunk.CreatedTs,
	)
	if err != nil {
		return errors.Wrapf(err, "failed to put chunk %s", chunk.Key)
	}
	return nil
}

func (s *sqliteMemoryChunkStore) Get(ctx context.Context, key string) (*store.MemoryChunk, error) {
	query := `
		SELECT key, doc_id, idx, text, fingerprint, metadata, created_ts
		FROM memory_chunk WHERE key = ?
	`
	chunk, err := scanChunk(s.db.QueryRowContext(ctx, query, key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get chunk %s", key)
	}
	return chunk, nil
}

func (s *sqliteMemoryChunkStore) ListAll(ctx context.Context) ([]*store.MemoryChunk, error) {
	query := `
		SELECT key, doc_id, idx, text, fingerprint, metadata, created_ts
		FROM memory_chunk ORDER BY created_ts, key
	`
	return s.listChunks(ctx, query)
}

func (s *sqliteMemoryChunkStore) ListByDoc(ctx context.Context, docID string) ([]*store.MemoryChunk, error) {
	query := `
		SELECT key, doc_id, idx, text, fingerprint, metadata, created_ts
		FROM memory_chunk WHERE doc_id = ? ORDER BY idx
	`
	return s.listChunks(ctx, query, docID)
}

func (s *sqliteMemoryChunkStore) ListRecent(ctx context.Context, limit int) ([]*store.MemoryChunk, error) {
	query := `
		SELECT key, doc_id, idx, text, fingerprint, metadata, created_ts
		FROM memory_chunk ORDER BY created_ts DESC, key DESC LIMIT ?
	`
	return s.listChunks(ctx, query, limit)
}

func (s *sqliteMemoryChunkStore) DeleteByDoc(ctx context.Context, docID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM memory_chunk WHERE doc_id = ?`, docID); err != nil {
		return errors.Wrapf(err, "failed to delete chunks for doc %s", docID)
	}
	return nil
}

func (s *sqliteMemoryChunkStore) DeleteAll(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM memory_chunk`); err != nil {
		return errors.Wrap(err, "failed to wipe memory chunks")
	}
	return nil
}

func (s *sqliteMemoryChunkStore) UpdateText(ctx context.Context, key string, text string) error {
	result, err := s.db.ExecContext(ctx, `UPDATE memory_chunk SET text = ? WHERE key = ?`, text, key)
	if err != nil {
		return errors.Wrapf(err, "failed to update chunk %s", key)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *sqliteMemoryChunkStore) listChunks(ctx context.Context, query string, args ...any) ([]*store.MemoryChunk, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list chunks")
	}
	defer rows.Close()

	var chunks []*store.MemoryChunk
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan chunk")
		}
		chunks = append(chunks, chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate rows")
	}
	return chunks, nil
}

func scanChunk(row rowScanner) (*store.MemoryChunk, error) {
	chunk := store.MemoryChunk{}
	var metadata string
	err := row.Scan(
		&chunk.Key,
		&chunk.DocID,
		&chunk.Index,
		&chunk.Text,
		&chunk.Fingerprint,
		&metadata,
		&chunk.CreatedTs,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(metadata), &chunk.Metadata); err != nil {
		return nil, errors.Wrapf(err, "failed to unmarshal metadata for chunk %s", chunk.Key)
	}
	return &chunk, nil
}
