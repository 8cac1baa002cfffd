// Package index reads chunk hashes written by the external ingestion
// pipeline. It never creates or mutates the chunk indexes.
package index

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/kailas-cloud/ragline/internal/db"
	"github.com/kailas-cloud/ragline/internal/domain/chunk"
	"github.com/kailas-cloud/ragline/internal/domain/retrieval"
)

// store is the consumer interface for chunk reads (ISP).
type store interface {
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
}

// Repo implements usecase/retrieve.Index.
type Repo struct {
	store  store
	prefix string
}

// New creates a chunk index repository. prefix namespaces every key and
// index name, e.g. "ragline:".
func New(s store, prefix string) *Repo {
	return &Repo{store: s, prefix: prefix}
}

// Search runs a KNN query against one granularity level and hydrates the
// hits into scored retrieval results.
func (r *Repo) Search(ctx context.Context, level chunk.Level, vector []float32, topK int) ([]retrieval.Result, error) {
	q := &db.KNNQuery{
		IndexName:    r.indexName(level),
		Vector:       vector,
		K:            topK,
		ReturnFields: []string{"__content", "__vector", "doc_id", "metadata", "__vector_score"},
	}

	sr, err := r.store.SearchKNN(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("search chunks %s: %w", level, err)
	}

	return r.parseResults(sr, level), nil
}

func (r *Repo) indexName(level chunk.Level) string {
	return fmt.Sprintf("%schunks:%s:idx", r.prefix, level)
}

func (r *Repo) keyPrefix(level chunk.Level) string {
	return fmt.Sprintf("%schunks:%s:", r.prefix, level)
}

func (r *Repo) parseResults(sr *db.SearchResult, level chunk.Level) []retrieval.Result {
	if sr == nil || sr.Total == 0 {
		return nil
	}

	prefix := r.keyPrefix(level)
	results := make([]retrieval.Result, 0, len(sr.Entries))

	for _, entry := range sr.Entries {
		chunkID := strings.TrimPrefix(entry.Key, prefix)
		c := parseEntryFields(chunkID, level, entry)
		results = append(results, retrieval.New(c, entry.Score))
	}

	return results
}

// parseEntryFields hydrates a chunk from flat hash fields. Malformed
// metadata is dropped rather than failing the whole query.
func parseEntryFields(chunkID string, level chunk.Level, entry db.SearchEntry) chunk.Chunk {
	var content, docID string
	var vector []float32
	var metadata map[string]string

	for k, v := range entry.Fields {
		switch k {
		case "__content":
			content = v
		case "__vector":
			vector = bytesToVector(v)
		case "doc_id":
			docID = v
		case "metadata":
			var m map[string]string
			if err := json.Unmarshal([]byte(v), &m); err == nil {
				metadata = m
			}
		}
	}

	return chunk.Reconstruct(chunkID, content, level, docID, metadata, vector)
}

// bytesToVector deserializes a binary string back to []float32.
func bytesToVector(s string) []float32 {
	b := []byte(s)
	if len(b)%4 != 0 {
		return nil
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
