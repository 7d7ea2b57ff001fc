package indexer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestScorerSetWeights(t *testing.T) {
	tests := []struct {
		name                           string
		set                            scorerSet
		standard, quantum, persistence float64
	}{
		{"none", scorerSet{}, 1, 0, 0},
		{"quantum only", scorerSet{quantum: true}, 0.7, 0.3, 0},
		{"persistence only", scorerSet{persistence: true}, 0.7, 0, 0.3},
		{"both", scorerSet{quantum: true, persistence: true}, 0.5, 0.25, 0.25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, q, p := tt.set.weights()
			require.Equal(t, tt.standard, s)
			require.Equal(t, tt.quantum, q)
			require.Equal(t, tt.persistence, p)
		})
	}
}

func TestAgeDays(t *testing.T) {
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	require.Zero(t, ageDays(now, now.Unix()))
	require.InDelta(t, 1.0, ageDays(now, now.Add(-24*time.Hour).Unix()), 1e-12)
	require.InDelta(t, 2.5, ageDays(now, now.Add(-60*time.Hour).Unix()), 1e-12)
}

func TestQuantumScore_DecayCapsAtHundredDays(t *testing.T) {
	e := newTestEngine(t)
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return base }
	e.EnableQuantumScoring(true)

	e.AddDocument("https://old.test/", "Old", "rust programming language")
	doc, _ := e.docs.Get("https://old.test/")

	// Past the hundred-day cap the decay channel stops growing, so a
	// 150-day-old and a 300-day-old document score identically.
	doc.Timestamp = base.Add(-150 * 24 * time.Hour).Unix()
	at150 := e.Search("rust", 1)[0].Quantum

	doc.Timestamp = base.Add(-300 * 24 * time.Hour).Unix()
	at300 := e.Search("rust", 1)[0].Quantum
	require.InDelta(t, at150, at300, 1e-12)

	// Below the cap, age still moves the score.
	doc.Timestamp = base.Add(-50 * 24 * time.Hour).Unix()
	at50 := e.Search("rust", 1)[0].Quantum
	require.Less(t, at50, at150)
}
