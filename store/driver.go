package store

import (
	"context"
	"database/sql"
)

// Driver is the storage backend contract. The only in-tree implementation is
// the sqlite driver under store/db/sqlite.
type Driver interface {
	GetDB() *sql.DB
	Close() error
	Migrate(ctx context.Context) error

	ConfigStore() ConfigStore
	ModelStore() ModelStore
	MemoryChunkStore() MemoryChunkStore
	SessionStore() SessionStore
}

// ConfigStore is durable key/value configuration.
type ConfigStore interface {
	Get(ctx context.Context, key string) (*ConfigEntry, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// ModelStore persists curated model metadata and opaque weight blobs.
type ModelStore interface {
	Upsert(ctx context.Context, model *Model) error
	Get(ctx context.Context, id string) (*Model, error)
	List(ctx context.Context) ([]*Model, error)
	Delete(ctx context.Context, id string) error

	PutWeights(ctx context.Context, modelID string, data []byte) error
	GetWeights(ctx context.Context, modelID string) ([]byte, error)
	DeleteWeights(ctx context.Context, modelID string) error
}

// MemoryChunkStore persists content-addressed memory chunks.
type MemoryChunkStore interface {
	Put(ctx context.Context, chunk *MemoryChunk) error
	Get(ctx context.Context, key string) (*MemoryChunk, error)
	ListAll(ctx context.Context) ([]*MemoryChunk, error)
	ListByDoc(ctx context.Context, docID string) ([]*MemoryChunk, error)
	ListRecent(ctx context.Context, limit int) ([]*MemoryChunk, error)
	DeleteByDoc(ctx context.Context, docID string) error
	DeleteAll(ctx context.Context) error

	// UpdateText overwrites a stored chunk's text without recomputing its
	// fingerprint. Integrity verification relies on this to detect
	// out-of-band corruption; it is not part of the normal write path.
	UpdateText(ctx context.Context, key string, text string) error
}

// SessionStore persists conversation turns.
type SessionStore interface {
	Append(ctx context.Context, msg *SessionMessage) error
	ListByConversation(ctx context.Context, channelID, userID string, limit int) ([]*SessionMessage, error)
	DeleteByChannel(ctx context.Context, channelID string) error
}
