// Package sqlite implements the store.Driver interface on a local SQLite
// database file.
package sqlite

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	// Import the SQLite driver.
	_ "modernc.org/sqlite"

	"github.com/waspdev/waspd/internal/profile"
	"github.com/waspdev/waspd/store"
)

type DB struct {
	db      *sql.DB
	profile *profile.Profile
}

// NewDB opens the SQLite database named by the profile DSN.
func NewDB(profile *profile.Profile) (store.Driver, error) {
	if profile.DSN == "" {
		return nil, errors.New("dsn required")
	}

	// Connect with sane settings for a single-process store:
	// - busy_timeout guards against transient lock contention.
	// - WAL journal mode prevents reader/writer lock conflicts.
	//
	// With the `modernc.org/sqlite` driver each pragma must be prefixed
	// with `_pragma=`.
	sqliteDB, err := sql.Open("sqlite", profile.DSN+"?_pragma=foreign_keys(0)&_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open db with dsn: %s", profile.DSN)
	}

	// SQLite with WAL is happiest with a single connection.
	sqliteDB.SetMaxOpenConns(1)
	sqliteDB.SetMaxIdleConns(1)
	sqliteDB.SetConnMaxLifetime(0)
	sqliteDB.SetConnMaxIdleTime(0)

	driver := DB{db: sqliteDB, profile: profile}

	return &driver, nil
}

func (d *DB) GetDB() *sql.DB {
	return d.db
}

func (d *DB) Close() error {
	return d.db.Close()
}

const latestSchema = `
CREATE TABLE IF NOT EXISTS config (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	updated_ts INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS model (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	category TEXT NOT NULL DEFAULT '',
	size_bytes INTEGER NOT NULL DEFAULT 0,
	status TEXT NOT NULL DEFAULT 'pending',
	progress INTEGER NOT NULL DEFAULT 0,
	downloaded_ts INTEGER NOT NULL DEFAULT 0,
	is_active INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS model_weight (
	model_id TEXT PRIMARY KEY,
	data BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS memory_chunk (
	key TEXT PRIMARY KEY,
	doc_id TEXT NOT NULL,
	idx INTEGER NOT NULL,
	text TEXT NOT NULL,
	fingerprint TEXT NOT NULL,
	metadata TEXT NOT NULL DEFAULT '{}',
	created_ts INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_memory_chunk_doc_id ON memory_chunk (doc_id);
CREATE INDEX IF NOT EXISTS idx_memory_chunk_created_ts ON memory_chunk (created_ts);

CREATE TABLE IF NOT EXISTS session (
	key TEXT PRIMARY KEY,
	channel_id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	created_ts INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_session_channel_id ON session (channel_id);
CREATE INDEX IF NOT EXISTS idx_session_created_ts ON session (created_ts);
`

// Migrate creates the schema when it does not exist yet.
func (d *DB) Migrate(ctx context.Context) error {
	if _, err := d.db.ExecContext(ctx, latestSchema); err != nil {
		return errors.Wrap(err, "failed to apply schema")
	}
	return nil
}

func (d *DB) ConfigStore() store.ConfigStore {
	return &sqliteConfigStore{db: d.db}
}

func (d *DB) ModelStore() store.ModelStore {
	return &sqliteModelStore{db: d.db}
}

func (d *DB) MemoryChunkStore() store.MemoryChunkStore {
	return &sqliteMemoryChunkStore{db: d.db}
}

func (d *DB) SessionStore() store.SessionStore {
	return &sqliteSessionStore{db: d.db}
}

var _ store.Driver = (*DB)(nil)
