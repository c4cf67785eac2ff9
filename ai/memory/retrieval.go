package memory

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/waspdev/waspd/store"
)

const (
	// MinScore is the retrieval relevance floor; weaker matches are
	// discarded.
	MinScore = 0.1

	contextHeader  = "--- MEMORY CONTEXT ---"
	contextFooter  = "--- END MEMORY CONTEXT ---"
	chunkSeparator = "\n\n---\n\n"
	requestPrefix  = "Current request: "
)

// tokenize case-folds, splits on whitespace and drops short tokens.
func tokenize(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	tokens := fields[:0]
	for _, f := range fields {
		if len(f) > 2 {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

func uniqueTokens(text string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, t := range tokenize(text) {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

func tokenCounts(tokens []string) map[string]int {
	counts := make(map[string]int, len(tokens))
	for _, t := range tokens {
		counts[t]++
	}
	return counts
}

type scored struct {
	chunk *store.MemoryChunk
	score float64
}

// Search ranks the indexed chunks against the query with a TF-IDF
// weighted keyword score and returns the top-k chunk texts. A verbatim
// query match in the chunk doubles the score; a match in the chunk's
// title metadata multiplies it by 1.5. Ties keep insertion order.
func (e *Engine) Search(query string, k int) []string {
	queryTokens := tokenize(query)
	if len(queryTokens) == 0 {
		return nil
	}
	queryCounts := tokenCounts(queryTokens)
	queryFolded := strings.ToLower(query)

	e.mu.RLock()
	defer e.mu.RUnlock()

	corpusSize := len(e.corpus)
	if corpusSize == 0 {
		return nil
	}

	var candidates []scored
	for _, key := range e.order {
		chunk := e.corpus[key]
		chunkTokens := tokenize(chunk.Text)
		if len(chunkTokens) == 0 {
			continue
		}
		chunkCounts := tokenCounts(chunkTokens)

		var score float64
		for w, qCount := range queryCounts {
			cCount, ok := chunkCounts[w]
			if !ok {
				continue
			}
			tf := float64(cCount) / float64(len(chunkTokens))
			idf := math.Log(float64(corpusSize) / float64(1+e.df[w]))
			score += tf * idf * float64(qCount)
		}

		if strings.Contains(strings.ToLower(chunk.Text), queryFolded) {
			score *= 2
		}
		if title, ok := chunk.Metadata["title"]; ok && strings.Contains(strings.ToLower(title), queryFolded) {
			score *= 1.5
		}

		if score < MinScore {
			continue
		}
		candidates = append(candidates, scored{chunk: chunk, score: score})
	}

	return topTexts(candidates, k)
}

// SearchSimple is the fallback scorer used before any index exists: a
// plain token-set overlap normalized by the square root of the chunk
// length, ranked over the recency cache.
func (e *Engine) SearchSimple(query string, k int) []string {
	queryTokens := uniqueTokens(query)
	if len(queryTokens) == 0 {
		return nil
	}
	querySet := make(map[string]struct{}, len(queryTokens))
	for _, t := range queryTokens {
		querySet[t] = struct{}{}
	}

	var candidates []scored
	for _, chunk := range e.cache.Values() {
		chunkTokens := tokenize(chunk.Text)
		if len(chunkTokens) == 0 {
			continue
		}

		overlap := 0
		for _, t := range uniqueTokens(chunk.Text) {
			if _, ok := querySet[t]; ok {
				overlap++
			}
		}
		if overlap == 0 {
			continue
		}
		candidates = append(candidates, scored{
			chunk: chunk,
			score: float64(overlap) / math.Sqrt(float64(len(chunkTokens))),
		})
	}

	return topTexts(candidates, k)
}

// Retrieve returns the top-k chunk texts for the query, preferring the
// TF-IDF index and falling back to the recency-cache scorer when no
// index has been built yet. Chunks whose fingerprint no longer matches
// their text are excluded.
func (e *Engine) Retrieve(query string, k int) []string {
	start := time.Now()
	defer func() { e.exporter.RecordRetrieval(time.Since(start)) }()

	if k <= 0 {
		k = e.topK
	}

	e.mu.RLock()
	indexed := len(e.corpus) > 0
	e.mu.RUnlock()

	if indexed {
		return e.Search(query, k)
	}
	return e.SearchSimple(query, k)
}

// AssembleContext wraps the retrieved chunks in context markers and
// appends the original request. With no relevant chunks the request is
// returned unchanged.
func (e *Engine) AssembleContext(ctx context.Context, query string) (string, error) {
	retrieved := e.Retrieve(query, e.topK)
	if len(retrieved) == 0 {
		return query, nil
	}

	var b strings.Builder
	b.WriteString(contextHeader)
	b.WriteString("\n")
	b.WriteString(strings.Join(retrieved, chunkSeparator))
	b.WriteString("\n")
	b.WriteString(contextFooter)
	b.WriteString("\n\n")
	b.WriteString(requestPrefix)
	b.WriteString(query)
	return b.String(), nil
}

// topTexts orders candidates by descending score, keeps insertion order
// on ties, drops integrity-violating chunks and returns up to k texts.
func topTexts(candidates []scored, k int) []string {
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	texts := make([]string, 0, k)
	for _, c := range candidates {
		if len(texts) >= k {
			break
		}
		if ComputeFingerprint(c.chunk.Text).Hex() != c.chunk.Fingerprint {
			continue
		}
		texts = append(texts, c.chunk.Text)
	}
	return texts
}
