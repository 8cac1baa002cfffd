// Package embedded provides an in-process vector store backed by
// chromem-go, replacing the Redis driver for local development. Chunk
// collections are read from a persisted chromem directory; memories are
// read-write.
package embedded

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"

	"github.com/kailas-cloud/ragline/internal/domain/chunk"
	"github.com/kailas-cloud/ragline/internal/domain/memory"
	"github.com/kailas-cloud/ragline/internal/domain/retrieval"
)

// Store implements usecase/retrieve.Index and usecase/memory.Store over
// chromem collections: one per chunk level plus one for memories.
type Store struct {
	db       *chromem.DB
	chunks   map[chunk.Level]*chromem.Collection
	memories *chromem.Collection

	mu     sync.Mutex
	ledger []ledgerEntry // memory insertion order, drives Trim
}

type ledgerEntry struct {
	id        string
	createdAt time.Time
}

// New opens the embedded store. A non-empty dir enables persistence
// across restarts (and is how pre-ingested chunk collections are loaded).
func New(dir string) (*Store, error) {
	var cdb *chromem.DB
	var err error
	if dir != "" {
		cdb, err = chromem.NewPersistentDB(dir, true)
		if err != nil {
			return nil, fmt.Errorf("open embedded store: %w", err)
		}
	} else {
		cdb = chromem.NewDB()
	}

	s := &Store{db: cdb, chunks: make(map[chunk.Level]*chromem.Collection)}
	for _, level := range chunk.AllLevels() {
		col, err := cdb.GetOrCreateCollection("chunks-"+string(level), nil, noEmbed)
		if err != nil {
			return nil, fmt.Errorf("open collection %s: %w", level, err)
		}
		s.chunks[level] = col
	}

	mem, err := cdb.GetOrCreateCollection("memories", nil, noEmbed)
	if err != nil {
		return nil, fmt.Errorf("open memories collection: %w", err)
	}
	s.memories = mem

	return s, nil
}

// Ping reports store availability. The embedded store is always up.
func (s *Store) Ping(_ context.Context) error { return nil }

// Search runs a KNN query against one granularity level.
func (s *Store) Search(ctx context.Context, level chunk.Level, vector []float32, topK int) ([]retrieval.Result, error) {
	col, ok := s.chunks[level]
	if !ok {
		return nil, fmt.Errorf("unknown chunk level %q", level)
	}

	hits, err := queryClamped(ctx, col, vector, topK)
	if err != nil {
		return nil, fmt.Errorf("search chunks %s: %w", level, err)
	}

	results := make([]retrieval.Result, 0, len(hits))
	for _, h := range hits {
		results = append(results, retrieval.New(hydrateChunk(h, level), float64(h.Similarity)))
	}
	return results, nil
}

// EnsureIndex is a no-op: chromem collections need no schema.
func (s *Store) EnsureIndex(_ context.Context, _ int) error { return nil }

// Append stores a new memory entry with its summary vector.
func (s *Store) Append(ctx context.Context, e memory.Entry, vector []float32) error {
	doc := chromem.Document{
		ID:        e.ID(),
		Content:   e.Summary(),
		Embedding: vector,
		Metadata: map[string]string{
			"question":   e.Question(),
			"answer":     e.Answer(),
			"created_at": e.CreatedAt().UTC().Format(time.RFC3339),
		},
	}
	if err := s.memories.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("append memory %s: %w", e.ID(), err)
	}

	s.mu.Lock()
	s.ledger = append(s.ledger, ledgerEntry{id: e.ID(), createdAt: e.CreatedAt()})
	s.mu.Unlock()
	return nil
}

// Relevant returns the topK most similar entries with their raw similarities.
func (s *Store) Relevant(ctx context.Context, vector []float32, topK int) ([]memory.Recall, error) {
	hits, err := queryClamped(ctx, s.memories, vector, topK)
	if err != nil {
		return nil, fmt.Errorf("search memories: %w", err)
	}

	recalls := make([]memory.Recall, 0, len(hits))
	for _, h := range hits {
		createdAt, _ := time.Parse(time.RFC3339, h.Metadata["created_at"])
		e := memory.Reconstruct(h.ID, h.Metadata["question"], h.Content, h.Metadata["answer"], createdAt)
		recalls = append(recalls, memory.NewRecall(e, float64(h.Similarity)))
	}
	return recalls, nil
}

// Count returns the number of stored memory entries.
func (s *Store) Count(_ context.Context) (int, error) {
	return s.memories.Count(), nil
}

// Trim deletes the oldest tracked entries until at most max remain.
// Entries loaded from a persisted directory predate the ledger and are
// not trimmed.
func (s *Store) Trim(ctx context.Context, max int) (int, error) {
	if max <= 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	excess := s.memories.Count() - max
	if excess <= 0 {
		return 0, nil
	}

	sort.SliceStable(s.ledger, func(i, j int) bool {
		return s.ledger[i].createdAt.Before(s.ledger[j].createdAt)
	})
	if excess > len(s.ledger) {
		excess = len(s.ledger)
	}
	if excess == 0 {
		return 0, nil
	}

	ids := make([]string, excess)
	for i, le := range s.ledger[:excess] {
		ids[i] = le.id
	}
	if err := s.memories.Delete(ctx, nil, nil, ids...); err != nil {
		return 0, fmt.Errorf("trim memories: %w", err)
	}
	s.ledger = s.ledger[excess:]
	return excess, nil
}

// queryClamped caps nResults at the collection size, since chromem
// rejects queries asking for more hits than stored documents.
func queryClamped(ctx context.Context, col *chromem.Collection, vector []float32, topK int) ([]chromem.Result, error) {
	n := min(topK, col.Count())
	if n <= 0 {
		return nil, nil
	}

	hits, err := col.QueryEmbedding(ctx, vector, n, nil, nil)
	if err != nil {
		// Lost a race with a concurrent Trim.
		if strings.Contains(err.Error(), "nResults must be") {
			return nil, nil
		}
		return nil, err
	}
	return hits, nil
}

func hydrateChunk(h chromem.Result, level chunk.Level) chunk.Chunk {
	docID := h.Metadata["doc_id"]
	var metadata map[string]string
	for k, v := range h.Metadata {
		if k == "doc_id" {
			continue
		}
		if metadata == nil {
			metadata = make(map[string]string)
		}
		metadata[k] = v
	}
	return chunk.Reconstruct(h.ID, h.Content, level, docID, metadata, h.Embedding)
}

// noEmbed guards the collections against implicit text embedding. Every
// document and query carries an explicit vector.
func noEmbed(_ context.Context, _ string) ([]float32, error) {
	return nil, fmt.Errorf("embedded store requires explicit vectors")
}
