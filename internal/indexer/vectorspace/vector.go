// Package vectorspace implements the sparse prime-keyed vector model: L2
// normalised frequency vectors, dot products, dense projection, and the
// biorthogonal and complex-resonance scores built on top of them.
package vectorspace

import "math"

// PrimeVector maps a token's prime id to its normalised frequency weight.
// A non-empty vector always has Euclidean norm 1 within floating tolerance.
type PrimeVector map[uint64]float64

// BuildVector counts occurrences per prime and normalises the counts by
// their L2 norm. Empty input yields an empty vector.
func BuildVector(tokens []uint64) PrimeVector {
	if len(tokens) == 0 {
		return PrimeVector{}
	}

	counts := make(map[uint64]int)
	for _, p := range tokens {
		counts[p]++
	}

	var sumSq float64
	for _, c := range counts {
		sumSq += float64(c) * float64(c)
	}
	norm := math.Sqrt(sumSq)

	vec := make(PrimeVector, len(counts))
	if norm > 0 {
		for p, c := range counts {
			vec[p] = float64(c) / norm
		}
	}
	return vec
}

// Dot returns the sparse dot product of two prime vectors. Keys absent from
// either side contribute zero, so iterating the smaller map is equivalent to
// summing over the key union.
func Dot(a, b PrimeVector) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	if len(b) < len(a) {
		a, b = b, a
	}
	var dot float64
	for p, va := range a {
		if vb, ok := b[p]; ok {
			dot += va * vb
		}
	}
	return dot
}

// ToDense projects a sparse vector into a fixed-size dense array indexed by
// prime value. Primes at or above dim are dropped; the projection is only
// used for cross-document comparison, never for exact scoring.
func ToDense(v PrimeVector, dim int) []float64 {
	dense := make([]float64, dim)
	for p, val := range v {
		if p < uint64(dim) {
			dense[p] = val
		}
	}
	return dense
}

// ResonanceComplex pairs the dot product of two vectors with a decay factor
// carried as the imaginary part. The decay encodes temporal distance as a
// phase-like channel consumed downstream; no complex arithmetic happens here.
func ResonanceComplex(a, b PrimeVector, decay float64) complex128 {
	return complex(Dot(a, b), decay)
}
