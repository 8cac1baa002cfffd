// Package chunk holds the indexed text fragment read model.
package chunk

import "fmt"

// Level is the index granularity a chunk belongs to.
type Level string

const (
	// LevelTopic is the coarse topic/summary granularity.
	LevelTopic Level = "topic"
	// LevelChunk is the default passage granularity.
	LevelChunk Level = "chunk"
	// LevelSentence is the fine sentence granularity.
	LevelSentence Level = "sentence"
)

// AllLevels lists every granularity, coarse to fine.
func AllLevels() []Level {
	return []Level{LevelTopic, LevelChunk, LevelSentence}
}

// ParseLevel validates a level string.
func ParseLevel(s string) (Level, error) {
	switch Level(s) {
	case LevelTopic, LevelChunk, LevelSentence:
		return Level(s), nil
	default:
		return "", fmt.Errorf("unknown chunk level %q", s)
	}
}

// Chunk is an immutable fragment of an indexed document.
// The index owns chunks; this core only reads them.
type Chunk struct {
	id          string
	text        string
	level       Level
	sourceDocID string
	metadata    map[string]string
	vector      []float32
}

// New validates and creates a Chunk without a vector (synthetic chunks, tests).
func New(id, text string, level Level, sourceDocID string, metadata map[string]string) (Chunk, error) {
	if id == "" {
		return Chunk{}, fmt.Errorf("chunk ID is required")
	}
	if text == "" {
		return Chunk{}, fmt.Errorf("chunk text is required")
	}
	if _, err := ParseLevel(string(level)); err != nil {
		return Chunk{}, err
	}
	return Chunk{id: id, text: text, level: level, sourceDocID: sourceDocID, metadata: cloneMeta(metadata)}, nil
}

// Reconstruct creates a Chunk without validation (index hydration).
func Reconstruct(id, text string, level Level, sourceDocID string, metadata map[string]string, vector []float32) Chunk {
	return Chunk{id: id, text: text, level: level, sourceDocID: sourceDocID, metadata: metadata, vector: vector}
}

// ID returns the chunk identifier.
func (c Chunk) ID() string { return c.id }

// Text returns the chunk content.
func (c Chunk) Text() string { return c.text }

// Level returns the index granularity.
func (c Chunk) Level() Level { return c.level }

// SourceDocID returns the owning document identifier.
func (c Chunk) SourceDocID() string { return c.sourceDocID }

// Metadata returns the metadata fields.
func (c Chunk) Metadata() map[string]string { return c.metadata }

// Vector returns the embedding vector, when the index returned one.
func (c Chunk) Vector() []float32 { return c.vector }

func cloneMeta(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	c := make(map[string]string, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}
