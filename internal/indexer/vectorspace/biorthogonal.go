package vectorspace

import "math"

// BiorthogonalVector pairs two vectors derived from the same token multiset.
// Right perturbs each weight by a deterministic per-prime factor and is
// renormalised independently of Left.
type BiorthogonalVector struct {
	Left  PrimeVector
	Right PrimeVector
}

// BuildBiorthogonal builds the left vector with BuildVector and derives the
// right one by scaling each weight by 1 + 0.1*(prime mod 2), then
// renormalising.
func BuildBiorthogonal(tokens []uint64) BiorthogonalVector {
	left := BuildVector(tokens)

	right := make(PrimeVector, len(left))
	for p, val := range left {
		right[p] = val * (1.0 + 0.1*float64(p%2))
	}

	var sumSq float64
	for _, val := range right {
		sumSq += val * val
	}
	if norm := math.Sqrt(sumSq); norm > 0 {
		for p := range right {
			right[p] /= norm
		}
	}

	return BiorthogonalVector{Left: left, Right: right}
}

// BiorthogonalScore is the symmetric cross-term similarity
// dot(q.left, d.right) + dot(q.right, d.left).
func BiorthogonalScore(query, doc BiorthogonalVector) float64 {
	return Dot(query.Left, doc.Right) + Dot(query.Right, doc.Left)
}
