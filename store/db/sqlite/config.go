package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"github.com/waspdev/waspd/store"
)

type sqliteConfigStore struct {
	db *sql.DB
}

func (s *sqliteConfigStore) Get(ctx context.Context, key string) (*store.ConfigEntry, error) {
	query := `SELECT key, value, updated_ts FROM config WHERE key = ?`

	entry := store.ConfigEntry{}
	var value string
	err := s.db.QueryRowContext(ctx, query, key).Scan(&entry.Key, &value, &entry.UpdatedTs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get config %s", key)
	}
	entry.Value = []byte(value)
	return &entry, nil
}

func (s *sqliteConfigStore) Set(ctx context.Context, key string, value []byte) error {
	query := `
		INSERT INTO config (key, value, updated_ts)
		VALUES (?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_ts = excluded.updated_ts
	`
	if _, err := s.db.ExecContext(ctx, query, key, string(value), time.Now().UnixMilli()); err != nil {
		return errors.Wrapf(err, "failed to set config %s", key)
	}
	return nil
}

func (s *sqliteConfigStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM config WHERE key = ?`, key); err != nil {
		return errors.Wrapf(err, "failed to delete config %s", key)
	}
	return nil
}
