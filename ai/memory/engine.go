// Package memory implements the content-addressed conversation memory:
// sentence-aware chunking, fingerprinting, keyword-weighted retrieval,
// context assembly and turn recording.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/waspdev/waspd/ai/cache"
	"github.com/waspdev/waspd/ai/metrics"
	"github.com/waspdev/waspd/internal/profile"
	"github.com/waspdev/waspd/store"
)

const (
	// DefaultTopK is the retrieval depth used by context assembly.
	DefaultTopK = 8

	cacheCapacity = 256
)

// Engine owns the chunk collection. Writes go through the backing store,
// the in-process index and the recency cache together; chunks are
// immutable after creation, so reads take snapshot semantics.
type Engine struct {
	chunkSize int
	topK      int

	chunks   store.MemoryChunkStore
	sessions store.SessionStore
	cache    *cache.LRUCache[string, *store.MemoryChunk]
	exporter *metrics.Exporter

	mu     sync.RWMutex
	corpus map[string]*store.MemoryChunk
	order  []string // corpus keys in insertion order, ties stay stable
	df     map[string]int

	turnMu   sync.Mutex
	lastTurn map[string]int64
}

// NewEngine creates a memory engine over the given stores.
func NewEngine(profile *profile.Profile, chunks store.MemoryChunkStore, sessions store.SessionStore) *Engine {
	chunkSize := DefaultChunkSize
	topK := DefaultTopK
	if profile != nil {
		if profile.MemoryChunkSize > 0 {
			chunkSize = profile.MemoryChunkSize
		}
		if profile.MemoryTopK > 0 {
			topK = profile.MemoryTopK
		}
	}

	return &Engine{
		chunkSize: chunkSize,
		topK:      topK,
		chunks:    chunks,
		sessions:  sessions,
		cache:     cache.NewLRUCache[string, *store.MemoryChunk](cacheCapacity, 0),
		corpus:    make(map[string]*store.MemoryChunk),
		df:        make(map[string]int),
		lastTurn:  make(map[string]int64),
	}
}

// SetExporter attaches a metrics exporter. A nil exporter disables
// instrumentation.
func (e *Engine) SetExporter(exporter *metrics.Exporter) {
	e.exporter = exporter
}

// Warm loads the persisted chunks into the retrieval index and seeds the
// recency cache with the most recent ones.
func (e *Engine) Warm(ctx context.Context) error {
	all, err := e.chunks.ListAll(ctx)
	if err != nil {
		return err
	}

	e.mu.Lock()
	for _, chunk := range all {
		e.indexLocked(chunk)
	}
	e.mu.Unlock()

	recent, err := e.chunks.ListRecent(ctx, cacheCapacity)
	if err != nil {
		return err
	}
	// ListRecent is newest-first; insert oldest-first so the cache keeps
	// the newest chunks at the front.
	for i := len(recent) - 1; i >= 0; i-- {
		e.cache.Set(recent[i].Key, recent[i])
	}

	slog.Info("memory engine warmed", "chunks", len(all), "cached", len(recent))
	return nil
}

// Store chunks the document, fingerprints and persists every chunk, and
// adds them to the retrieval index. An empty docID gets a generated one.
func (e *Engine) Store(ctx context.Context, docID, text string, metadata map[string]string) ([]*store.MemoryChunk, error) {
	if docID == "" {
		docID = uuid.NewString()
	}
	texts := ChunkText(text, e.chunkSize)
	now := time.Now().UnixMilli()

	stored := make([]*store.MemoryChunk, 0, len(texts))
	for i, chunkText := range texts {
		chunk := &store.MemoryChunk{
			Key:         fmt.Sprintf("%s_chunk_%d", docID, i),
			DocID:       docID,
			Index:       i,
			Text:        chunkText,
			Fingerprint: ComputeFingerprint(chunkText).Hex(),
			Metadata:    metadata,
			CreatedTs:   now,
		}
		if err := e.chunks.Put(ctx, chunk); err != nil {
			return stored, err
		}

		e.mu.Lock()
		e.indexLocked(chunk)
		e.mu.Unlock()
		e.cache.Set(chunk.Key, chunk)

		stored = append(stored, chunk)
	}
	return stored, nil
}

// ClearDocument removes every chunk of one document from the store, the
// index and the cache.
func (e *Engine) ClearDocument(ctx context.Context, docID string) error {
	if err := e.chunks.DeleteByDoc(ctx, docID); err != nil {
		return err
	}

	e.mu.Lock()
	kept := e.order[:0]
	for _, key := range e.order {
		chunk := e.corpus[key]
		if chunk != nil && chunk.DocID == docID {
			e.unindexLocked(chunk)
			e.cache.Remove(key)
			continue
		}
		kept = append(kept, key)
	}
	e.order = kept
	e.mu.Unlock()
	return nil
}

// Wipe drops every stored chunk.
func (e *Engine) Wipe(ctx context.Context) error {
	if err := e.chunks.DeleteAll(ctx); err != nil {
		return err
	}

	e.mu.Lock()
	e.corpus = make(map[string]*store.MemoryChunk)
	e.order = nil
	e.df = make(map[string]int)
	e.mu.Unlock()
	e.cache.Clear()
	return nil
}

// ChunkCount reports the number of indexed chunks.
func (e *Engine) ChunkCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.corpus)
}

// RecordTurn appends one conversation turn. Within a (channel, user)
// pair, timestamps never go backwards even when the wall clock does.
func (e *Engine) RecordTurn(ctx context.Context, channelID, userID, role, content string) error {
	e.turnMu.Lock()
	sessionKey := channelID + "\x00" + userID
	ts := time.Now().UnixMilli()
	if last, ok := e.lastTurn[sessionKey]; ok && ts <= last {
		ts = last + 1
	}
	e.lastTurn[sessionKey] = ts
	e.turnMu.Unlock()

	msg := &store.SessionMessage{
		Key:       fmt.Sprintf("%s_%s_%d", channelID, userID, ts),
		ChannelID: channelID,
		UserID:    userID,
		Role:      role,
		Content:   content,
		CreatedTs: ts,
	}
	return e.sessions.Append(ctx, msg)
}

// History returns up to limit turns of a conversation, oldest first.
func (e *Engine) History(ctx context.Context, channelID, userID string, limit int) ([]*store.SessionMessage, error) {
	return e.sessions.ListByConversation(ctx, channelID, userID, limit)
}

// ClearSessions drops every stored turn of a channel.
func (e *Engine) ClearSessions(ctx context.Context, channelID string) error {
	return e.sessions.DeleteByChannel(ctx, channelID)
}

// indexLocked adds a chunk to the corpus and document-frequency index.
func (e *Engine) indexLocked(chunk *store.MemoryChunk) {
	if _, ok := e.corpus[chunk.Key]; ok {
		return
	}
	e.corpus[chunk.Key] = chunk
	e.order = append(e.order, chunk.Key)
	for _, w := range uniqueTokens(chunk.Text) {
		e.df[w]++
	}
}

// unindexLocked removes a chunk from the corpus and index. The caller
// maintains e.order.
func (e *Engine) unindexLocked(chunk *store.MemoryChunk) {
	if _, ok := e.corpus[chunk.Key]; !ok {
		return
	}
	delete(e.corpus, chunk.Key)
	for _, w := range uniqueTokens(chunk.Text) {
		if e.df[w] <= 1 {
			delete(e.df, w)
		} else {
			e.df[w]--
		}
	}
}
