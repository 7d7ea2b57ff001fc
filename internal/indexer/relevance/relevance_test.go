package relevance

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestShannonEntropy(t *testing.T) {
	tests := []struct {
		name   string
		tokens []uint64
		want   float64
	}{
		{"empty", nil, 0},
		{"single token repeated", []uint64{3, 3, 3}, 0},
		{"two tokens uniform", []uint64{3, 3, 5, 5}, 1.0},
		{"four tokens uniform", []uint64{3, 5, 7, 11}, 2.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.InDelta(t, tt.want, ShannonEntropy(tt.tokens), 1e-12)
		})
	}
}

func TestShannonEntropy_SkewedLowerThanUniform(t *testing.T) {
	uniform := ShannonEntropy([]uint64{3, 5, 7, 11})
	skewed := ShannonEntropy([]uint64{3, 3, 3, 11})
	require.Greater(t, uniform, skewed)
}

func TestMutualInformation(t *testing.T) {
	// Identical uniform distributions: H=1 each, joint entropy 1, MI=1.
	require.InDelta(t, 1.0, MutualInformation([]float64{0.5, 0.5}, []float64{0.5, 0.5}), 1e-12)

	// Degenerate second distribution: H2=0, joint entropy 0.5, MI=0.5.
	require.InDelta(t, 0.5, MutualInformation([]float64{0.5, 0.5}, []float64{1, 0}), 1e-12)

	// Mismatched lengths carry no shared information.
	require.Zero(t, MutualInformation([]float64{0.5, 0.5}, []float64{1}))

	// All-zero vectors contribute nothing.
	require.Zero(t, MutualInformation([]float64{0, 0, 0}, []float64{0, 0, 0}))
}

func TestReversibility(t *testing.T) {
	vec := []float64{0.5, 0.5}

	// A document with no history is perfectly reversible.
	require.Equal(t, 1.0, Reversibility(vec, nil))

	// Identical history entry keeps reversibility at the MI of the pair.
	require.InDelta(t, 1.0, Reversibility(vec, [][]float64{{0.5, 0.5}}), 1e-12)

	// Averaged across a matching and a degenerate entry.
	got := Reversibility(vec, [][]float64{{0.5, 0.5}, {1, 0}})
	require.InDelta(t, 0.75, got, 1e-12)
}

func TestEntropyPressure(t *testing.T) {
	// Zero age leaves only the constant factors.
	require.InDelta(t, 0.005, EntropyPressure(0, 0.1, 0.05), 1e-12)

	// Pressure grows with age without bound.
	require.Greater(t, EntropyPressure(5, 0.1, 0.05), EntropyPressure(1, 0.1, 0.05))
	require.InDelta(t, 0.1*0.05*math.Exp(10), EntropyPressure(10, 0.1, 0.05), 1e-9)
}

func TestRedundancy(t *testing.T) {
	require.Zero(t, redundancy(nil))
	require.Zero(t, redundancy([]float64{0.3}))
	require.Zero(t, redundancy([]float64{1, 2, 3, 4}))
	require.InDelta(t, 0.75, redundancy([]float64{1, 1, 1, 1}), 1e-12)

	// Values are bucketed at six decimal places before counting duplicates.
	require.InDelta(t, 0.5, redundancy([]float64{0.1234561, 0.1234562}), 1e-12)
}

func TestSymmetry(t *testing.T) {
	require.Equal(t, 1.0, symmetry(nil))
	require.Equal(t, 1.0, symmetry([]float64{0.7}))
	require.InDelta(t, 1.0, symmetry([]float64{1, 2, 2, 1}), 1e-12)

	// Zero pairs count as symmetric, non-matching pairs are penalised.
	require.InDelta(t, 0.75, symmetry([]float64{1, 0, 0, 2}), 1e-12)
}

func TestBufferingCapacity(t *testing.T) {
	// redundancy 0.75 + symmetry 1.0
	require.InDelta(t, 1.75, BufferingCapacity([]float64{1, 1, 1, 1}), 1e-12)

	// Empty vectors fall back to symmetry's degenerate value.
	require.InDelta(t, 1.0, BufferingCapacity(nil), 1e-12)
}

func TestPersistenceScore(t *testing.T) {
	// Non-positive buffering collapses the score.
	require.Zero(t, PersistenceScore(0.5, 1.0, 0, 0.2))
	require.Zero(t, PersistenceScore(0.5, 1.0, -0.1, 0.2))

	// Perfect reversibility cancels the exponent.
	require.Equal(t, 1.0, PersistenceScore(1.0, 100.0, 0.5, 0.2))

	// Higher pressure lowers the score.
	low := PersistenceScore(0.5, 2.0, 1.0, 0.2)
	high := PersistenceScore(0.5, 1.0, 1.0, 0.2)
	require.Greater(t, high, low)

	// Spot-check the closed form.
	want := math.Exp(-0.2 * 0.5 * 2.0)
	require.InDelta(t, want, PersistenceScore(0.5, 2.0, 1.0, 0.2), 1e-12)
}
