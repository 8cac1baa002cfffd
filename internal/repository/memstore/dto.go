package memstore

import (
	"encoding/binary"
	"math"
	"time"

	"github.com/kailas-cloud/ragline/internal/domain/memory"
)

// buildHashFields converts a memory entry into a flat map[string]string for HSET.
func buildHashFields(e *memory.Entry, vector []float32) map[string]string {
	return map[string]string{
		"__summary":  e.Summary(),
		"__vector":   vectorToBytes(vector),
		"question":   e.Question(),
		"answer":     e.Answer(),
		"created_at": e.CreatedAt().UTC().Format(time.RFC3339),
	}
}

// parseHashFields converts a flat hash map back into a memory entry.
// A missing or malformed created_at yields the zero time, which ages the
// entry out on the next trim.
func parseHashFields(id string, m map[string]string) memory.Entry {
	createdAt, _ := time.Parse(time.RFC3339, m["created_at"])
	return memory.Reconstruct(id, m["question"], m["__summary"], m["answer"], createdAt)
}

// vectorToBytes serializes []float32 to a binary string (4 bytes per float, little-endian).
func vectorToBytes(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}
