// Package relevance computes the information-theoretic metrics behind
// persistence scoring: Shannon entropy, mutual information, reversibility,
// entropy pressure, and buffering capacity.
package relevance

import (
	"fmt"
	"math"
)

// ShannonEntropy returns -sum(p*log2(p)) over the empirical distribution of
// the token sequence. Empty input yields 0.
func ShannonEntropy(tokens []uint64) float64 {
	if len(tokens) == 0 {
		return 0
	}

	counts := make(map[uint64]int)
	for _, p := range tokens {
		counts[p]++
	}

	total := float64(len(tokens))
	var entropy float64
	for _, c := range counts {
		p := float64(c) / total
		entropy -= p * math.Log2(p)
	}
	return entropy
}

// MutualInformation estimates the mutual information between two dense
// vectors treated as probability distributions: H(p1) + H(p2) - H(joint),
// with the joint term simplified to the element-wise product under an
// independence assumption. Mismatched lengths yield 0.
func MutualInformation(p1, p2 []float64) float64 {
	if len(p1) != len(p2) {
		return 0
	}

	var h1, h2, hJoint float64
	for i := range p1 {
		if p1[i] > 0 {
			h1 -= p1[i] * math.Log2(p1[i])
		}
		if p2[i] > 0 {
			h2 -= p2[i] * math.Log2(p2[i])
		}
		if joint := p1[i] * p2[i]; joint > 0 {
			hJoint -= joint * math.Log2(joint)
		}
	}
	return h1 + h2 - hJoint
}

// Reversibility is the mean mutual information between the current dense
// vector and each historical one. With no history there are no peers to
// diverge from, so it returns 1.
func Reversibility(vector []float64, history [][]float64) float64 {
	if len(history) == 0 {
		return 1.0
	}

	var sum float64
	for _, past := range history {
		sum += MutualInformation(vector, past)
	}
	return sum / float64(len(history))
}

// EntropyPressure combines document age with update-frequency and trend-decay
// constants. The e^age term is unbounded, so pressure on very old documents
// grows without limit.
func EntropyPressure(ageDays, updateFrequency, trendDecay float64) float64 {
	return updateFrequency * trendDecay * math.Exp(ageDays)
}

// BufferingCapacity is the sum of a vector's redundancy and symmetry.
func BufferingCapacity(vector []float64) float64 {
	return redundancy(vector) + symmetry(vector)
}

// redundancy is the proportion of duplicate values, with values bucketed at
// six decimal places. Vectors of length <= 1 have no duplicates.
func redundancy(vec []float64) float64 {
	n := len(vec)
	if n <= 1 {
		return 0
	}

	buckets := make(map[string]struct{}, n)
	for _, v := range vec {
		buckets[fmt.Sprintf("%.6f", v)] = struct{}{}
	}
	return 1.0 - float64(len(buckets))/float64(n)
}

// symmetry measures how closely the vector mirrors around its midpoint,
// averaging 1 - |a-b|/max(a,b) over the first half. A pair of zeros counts
// as perfectly symmetric; length <= 1 is perfectly symmetric by definition.
func symmetry(vec []float64) float64 {
	n := len(vec)
	if n <= 1 {
		return 1.0
	}

	half := n / 2
	var score float64
	for i := 0; i < half; i++ {
		a, b := vec[i], vec[n-1-i]
		if max := math.Max(a, b); max > 0 {
			score += 1.0 - math.Abs(a-b)/max
		} else {
			score += 1.0
		}
	}
	return score / float64(half)
}

// PersistenceScore estimates how durably relevant a document remains. A
// non-positive buffering capacity collapses the score to 0; otherwise the
// score is exp(-fragility * (1-reversibility) * pressure/buffering).
func PersistenceScore(reversibility, pressure, buffering, fragility float64) float64 {
	if buffering <= 0 {
		return 0
	}
	return math.Exp(-fragility * (1.0 - reversibility) * (pressure / buffering))
}
