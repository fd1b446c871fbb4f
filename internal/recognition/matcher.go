package recognition

import (
	"math"

	"github.com/your-org/attend/internal/models"
)

// EmbeddingDim is the length of every stored and probe embedding.
const EmbeddingDim = 128

// DefaultThreshold is the maximum Euclidean distance at which two
// embeddings are considered the same person.
const DefaultThreshold = 0.6

// MatchResult is the outcome of one match pass. Identity is nil when no
// population member was strictly below the threshold.
type MatchResult struct {
	Identity *models.Identity
	Distance float64
}

// Matched reports whether the pass resolved an identity.
func (r MatchResult) Matched() bool {
	return r.Identity != nil
}

// EuclideanDistance computes the L2 distance between two vectors of equal
// length. Callers are responsible for dimension checks; mismatched inputs
// yield +Inf so they can never win a match.
func EuclideanDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return math.Inf(1)
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// Match finds the single best identity across all probes.
//
// A frame may contain several faces (one probe each), but one recognition
// event must produce at most one attendance action, so the pass selects the
// globally most confident candidate rather than one match per probe. Only
// candidates with distance strictly below threshold are accepted.
//
// Iteration order is probes first, population second, and a candidate
// replaces the current best only on strictly smaller distance, so ties
// resolve to the first probe / first population member encountered. The
// result is fully deterministic for identical inputs.
func Match(probes [][]float32, population []models.Identity, threshold float64) MatchResult {
	best := MatchResult{Distance: math.Inf(1)}
	if len(probes) == 0 || len(population) == 0 {
		return best
	}

	for _, probe := range probes {
		for i := range population {
			d := EuclideanDistance(probe, population[i].Embedding)
			if d < threshold && d < best.Distance {
				best.Identity = &population[i]
				best.Distance = d
			}
		}
	}
	return best
}
