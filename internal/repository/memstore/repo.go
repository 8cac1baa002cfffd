// Package memstore persists conversational memory entries as hashes with
// a vector index for similarity recall.
package memstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragline/internal/db"
	"github.com/kailas-cloud/ragline/internal/domain/memory"
)

// store is the consumer interface for memory persistence (ISP).
type store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error)
	Del(ctx context.Context, key string) error
	Scan(ctx context.Context, pattern string) ([]string, error)
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	IndexExists(ctx context.Context, name string) (bool, error)
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
	SearchCount(ctx context.Context, index, query string) (int, error)
}

// Repo implements usecase/memory.Store.
type Repo struct {
	store  store
	prefix string
	logger *zap.Logger
}

// New creates a memory repository. prefix namespaces every key and the
// index name, e.g. "ragline:".
func New(s store, prefix string, logger *zap.Logger) *Repo {
	return &Repo{store: s, prefix: prefix, logger: logger}
}

// EnsureIndex creates the memory vector index if it does not exist yet.
// Safe to call on every startup.
func (r *Repo) EnsureIndex(ctx context.Context, dim int) error {
	name := r.indexName()

	exists, err := r.store.IndexExists(ctx, name)
	if err != nil {
		return fmt.Errorf("check index %s: %w", name, err)
	}
	if exists {
		return nil
	}

	def, err := db.NewIndex(name).
		Prefix(r.keyPrefix()).
		Vector("__vector", dim, db.VectorFlat, db.DistanceCosine).
		Build()
	if err != nil {
		return fmt.Errorf("build index %s: %w", name, err)
	}

	if err := r.store.CreateIndex(ctx, def); err != nil {
		if errors.Is(err, db.ErrIndexExists) {
			return nil
		}
		return fmt.Errorf("create index %s: %w", name, err)
	}
	return nil
}

// Append stores a new memory entry with its summary vector.
func (r *Repo) Append(ctx context.Context, e memory.Entry, vector []float32) error {
	key := r.entryKey(e.ID())
	if err := r.store.HSet(ctx, key, buildHashFields(&e, vector)); err != nil {
		return fmt.Errorf("hset %s: %w", key, err)
	}
	return nil
}

// Relevant returns the topK most similar entries with their raw similarities.
func (r *Repo) Relevant(ctx context.Context, vector []float32, topK int) ([]memory.Recall, error) {
	q := &db.KNNQuery{
		IndexName:    r.indexName(),
		Vector:       vector,
		K:            topK,
		ReturnFields: []string{"__summary", "question", "answer", "created_at", "__vector_score"},
	}

	sr, err := r.store.SearchKNN(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("search memories: %w", err)
	}
	if sr == nil || sr.Total == 0 {
		return nil, nil
	}

	recalls := make([]memory.Recall, 0, len(sr.Entries))
	for _, entry := range sr.Entries {
		id := strings.TrimPrefix(entry.Key, r.keyPrefix())
		e := parseHashFields(id, entry.Fields)
		recalls = append(recalls, memory.NewRecall(e, entry.Score))
	}
	return recalls, nil
}

// Count returns the number of stored entries.
func (r *Repo) Count(ctx context.Context) (int, error) {
	n, err := r.store.SearchCount(ctx, r.indexName(), "*")
	if err != nil {
		return 0, fmt.Errorf("count memories: %w", err)
	}
	return n, nil
}

// Trim deletes the oldest entries until at most max remain. Returns how
// many were removed. Individual delete failures are logged and skipped.
func (r *Repo) Trim(ctx context.Context, max int) (int, error) {
	if max <= 0 {
		return 0, nil
	}

	count, err := r.Count(ctx)
	if err != nil {
		return 0, err
	}
	if count <= max {
		return 0, nil
	}

	keys, err := r.store.Scan(ctx, r.keyPrefix()+"*")
	if err != nil {
		return 0, fmt.Errorf("scan memories: %w", err)
	}
	if len(keys) <= max {
		return 0, nil
	}

	fields, err := r.store.HGetAllMulti(ctx, keys)
	if err != nil {
		return 0, fmt.Errorf("load memories for trim: %w", err)
	}

	type aged struct {
		key       string
		createdAt time.Time
	}
	entries := make([]aged, 0, len(keys))
	for i, key := range keys {
		ts, _ := time.Parse(time.RFC3339, fields[i]["created_at"])
		entries = append(entries, aged{key: key, createdAt: ts})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].createdAt.Before(entries[j].createdAt)
	})

	removed := 0
	for _, e := range entries[:len(entries)-max] {
		if err := r.store.Del(ctx, e.key); err != nil {
			r.logger.Warn("Failed to trim memory entry", zap.String("key", e.key), zap.Error(err))
			continue
		}
		removed++
	}
	return removed, nil
}

func (r *Repo) indexName() string {
	return r.prefix + "memories:idx"
}

func (r *Repo) keyPrefix() string {
	return r.prefix + "memories:"
}

func (r *Repo) entryKey(id string) string {
	return r.keyPrefix() + id
}
