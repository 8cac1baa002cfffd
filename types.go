package ragline

import "time"

// AskOptions tunes a single question. The zero value of every field
// selects the documented default.
type AskOptions struct {
	// Mode is "strict" (answer only from retrieved context, the default)
	// or "hybrid" (may fall back to general model knowledge).
	Mode string
	// AllowGeneralKnowledge permits the hybrid fallback when retrieval
	// comes back empty.
	AllowGeneralKnowledge bool
	// EnableTool allows the tool fallback. nil means true.
	EnableTool *bool
	// UseAgent forces the iterative reasoning loop over the single-pass
	// chain.
	UseAgent bool
	// TopK is the retrieval candidate count (default 5, max 100).
	TopK int
	// SimilarityThreshold floors retrieval similarity (default 0.7).
	SimilarityThreshold float64
	// RerankTopN caps candidates passed to the reranker (default 10).
	RerankTopN int
	// ConfidenceThreshold is the agent's acceptance bar (default 0.7).
	ConfidenceThreshold float64
	// MaxIterations is the agent's step budget (default 5, max 20).
	MaxIterations int
}

// Answer is the pipeline output for one question.
type Answer struct {
	Text       string
	Sources    []string
	Mode       string // "strict" or "hybrid"
	Confidence float64
	UsedTool   bool
	// Exhausted marks a best-effort answer the agent produced after
	// running out of iterations.
	Exhausted bool
	// TokensUsed totals the LLM tokens this question consumed.
	TokensUsed int
}

// MemoryMatch is a recalled conversational memory entry.
type MemoryMatch struct {
	ID         string
	Question   string
	Summary    string
	Answer     string
	Similarity float64
	// Weight is the similarity discounted by entry age; recall sorts by it.
	Weight    float64
	CreatedAt time.Time
}

// HealthReport aggregates backend probe results.
type HealthReport struct {
	Status string            // "ok", "degraded" or "error"
	Checks map[string]string // probe name → "ok" or "error"
}
