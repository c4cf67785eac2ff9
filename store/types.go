package store

import "errors"

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// ConfigEntry is one durable key/value configuration record.
type ConfigEntry struct {
	Key       string
	Value     []byte // JSON-encoded
	UpdatedTs int64  // unix milliseconds
}

// ModelStatus is the lifecycle status of a curated model record.
type ModelStatus string

const (
	ModelStatusPending     ModelStatus = "pending"
	ModelStatusDownloading ModelStatus = "downloading"
	ModelStatusPaused      ModelStatus = "paused"
	ModelStatusCompleted   ModelStatus = "completed"
	ModelStatusError       ModelStatus = "error"
	ModelStatusCancelled   ModelStatus = "cancelled"
)

// IsValid reports whether s is a known model status.
func (s ModelStatus) IsValid() bool {
	switch s {
	case ModelStatusPending, ModelStatusDownloading, ModelStatusPaused,
		ModelStatusCompleted, ModelStatusError, ModelStatusCancelled:
		return true
	}
	return false
}

// Model is a curated model metadata record.
type Model struct {
	ID           string
	Name         string
	Category     string
	SizeBytes    int64
	Status       ModelStatus
	Progress     int // [0, 100]
	DownloadedTs int64
	IsActive     bool
}

// MemoryChunk is one content-addressed slice of a document.
// Chunks are immutable after creation; the fingerprint is the hex encoding
// of the first 16 bytes of SHA-256 over the chunk text.
type MemoryChunk struct {
	Key         string // "<docID>_chunk_<i>"
	DocID       string
	Index       int
	Text        string
	Fingerprint string // 32 hex chars
	Metadata    map[string]string
	CreatedTs   int64 // unix milliseconds
}

// SessionMessage is one stored conversation turn.
type SessionMessage struct {
	Key       string // "<sessionID>_<timestamp>"
	ChannelID string
	UserID    string
	Role      string // "user" or "assistant"
	Content   string
	CreatedTs int64 // unix milliseconds
}
