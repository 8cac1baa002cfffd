package retrieve

import (
	"math"

	"github.com/kailas-cloud/ragline/internal/domain/retrieval"
)

// defaultMMRLambda balances relevance against diversity when no lambda is configured.
const defaultMMRLambda = 0.5

// selectMMR picks topK results by Maximal Marginal Relevance.
// score(d) = lambda*sim(q,d) - (1-lambda)*max(sim(d, s) for selected s).
// Candidates must arrive sorted by similarity; when any candidate is
// missing its vector the head of the list is returned unchanged.
func selectMMR(cands []retrieval.Result, topK int, lambda float64) []retrieval.Result {
	if len(cands) <= topK {
		return cands
	}
	for i := range cands {
		if len(cands[i].Chunk().Vector()) == 0 {
			return cands[:topK]
		}
	}

	remaining := make([]retrieval.Result, len(cands))
	copy(remaining, cands)

	// The most relevant candidate is always taken first.
	selected := make([]retrieval.Result, 0, topK)
	selected = append(selected, remaining[0])
	remaining = remaining[1:]

	for len(selected) < topK && len(remaining) > 0 {
		bestIdx := 0
		bestScore := math.Inf(-1)
		for i := range remaining {
			maxSim := -1.0
			for j := range selected {
				sel := selected[j].Chunk()
				cand := remaining[i].Chunk()
				if sim := cosine(cand.Vector(), sel.Vector()); sim > maxSim {
					maxSim = sim
				}
			}
			score := lambda*remaining[i].Similarity() - (1-lambda)*maxSim
			if score > bestScore {
				bestScore = score
				bestIdx = i
			}
		}
		selected = append(selected, remaining[bestIdx])
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}

	return selected
}

// cosine returns the cosine similarity of two equal-length vectors.
func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
