// Package memory models conversational memory entries and their
// similarity-with-age scoring.
package memory

import (
	"errors"
	"time"
)

// AnswerKeepRunes caps how much of an answer an entry stores.
const AnswerKeepRunes = 200

// Entry is one remembered question/answer pair with its summary.
type Entry struct {
	id        string
	question  string
	summary   string
	answer    string
	createdAt time.Time
}

// New creates an Entry, truncating the answer to AnswerKeepRunes.
func New(id, question, summary, answer string, createdAt time.Time) (Entry, error) {
	if id == "" {
		return Entry{}, errors.New("memory entry id is required")
	}
	if question == "" {
		return Entry{}, errors.New("memory entry question is required")
	}
	return Entry{
		id:        id,
		question:  question,
		summary:   summary,
		answer:    truncate(answer, AnswerKeepRunes),
		createdAt: createdAt,
	}, nil
}

// Reconstruct rebuilds an Entry from storage without validation.
func Reconstruct(id, question, summary, answer string, createdAt time.Time) Entry {
	return Entry{id: id, question: question, summary: summary, answer: answer, createdAt: createdAt}
}

// ID returns the entry identifier.
func (e Entry) ID() string { return e.id }

// Question returns the remembered question.
func (e Entry) Question() string { return e.question }

// Summary returns the stored one-line summary of the exchange.
func (e Entry) Summary() string { return e.summary }

// Answer returns the stored (possibly truncated) answer.
func (e Entry) Answer() string { return e.answer }

// CreatedAt returns when the entry was stored.
func (e Entry) CreatedAt() time.Time { return e.createdAt }

// Age returns how old the entry is at the given instant.
func (e Entry) Age(now time.Time) time.Duration {
	if now.Before(e.createdAt) {
		return 0
	}
	return now.Sub(e.createdAt)
}

// Recall pairs a stored entry with its raw vector similarity, before
// any age weighting is applied.
type Recall struct {
	entry      Entry
	similarity float64
}

// NewRecall creates a raw recall hit.
func NewRecall(e Entry, similarity float64) Recall {
	return Recall{entry: e, similarity: similarity}
}

// Entry returns the recalled entry.
func (r *Recall) Entry() Entry { return r.entry }

// Similarity returns the raw vector similarity.
func (r *Recall) Similarity() float64 { return r.similarity }

// Match is an entry recalled by similarity, weighted down by its age.
type Match struct {
	entry      Entry
	similarity float64
	weight     float64
}

// Score weighs a recalled entry by similarity and age. Entries older
// than expiry are dropped (ok=false). The weight decays linearly with
// age, down to half the similarity at the expiry boundary:
//
//	weight = similarity * (1.0 - age/expiry*0.5)
func Score(e Entry, similarity float64, now time.Time, expiry time.Duration) (Match, bool) {
	if expiry <= 0 {
		return Match{}, false
	}
	age := e.Age(now)
	if age > expiry {
		return Match{}, false
	}
	if similarity < 0 {
		similarity = 0
	}
	if similarity > 1 {
		similarity = 1
	}
	weight := similarity * (1.0 - float64(age)/float64(expiry)*0.5)
	return Match{entry: e, similarity: similarity, weight: weight}, true
}

// Entry returns the recalled entry.
func (m *Match) Entry() Entry { return m.entry }

// Similarity returns the raw vector similarity in [0,1].
func (m *Match) Similarity() float64 { return m.similarity }

// Weight returns the age-decayed relevance weight.
func (m *Match) Weight() float64 { return m.weight }

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
