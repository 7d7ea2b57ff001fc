package store

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHistoryRing_AppendStopsAtCapacity(t *testing.T) {
	h := NewHistory([]float64{0})
	require.Equal(t, 1, h.Len())

	for i := 1; i < historyCap; i++ {
		require.True(t, h.Append([]float64{float64(i)}))
	}
	require.False(t, h.Append([]float64{99}))
	require.Equal(t, historyCap, h.Len())

	snaps := h.Snapshots()
	require.Len(t, snaps, historyCap)
	require.Equal(t, []float64{0}, snaps[0])
	require.Equal(t, []float64{float64(historyCap - 1)}, snaps[historyCap-1])
}

func TestHistoryRing_PushEvictsOldest(t *testing.T) {
	h := NewHistory([]float64{0})
	for i := 1; i < historyCap; i++ {
		h.Push([]float64{float64(i)})
	}
	require.Equal(t, historyCap, h.Len())

	// Push past capacity drops the oldest snapshot.
	h.Push([]float64{42})
	require.Equal(t, historyCap, h.Len())

	snaps := h.Snapshots()
	require.Equal(t, []float64{1}, snaps[0])
	require.Equal(t, []float64{42}, snaps[historyCap-1])

	// A second eviction keeps the order intact.
	h.Push([]float64{43})
	snaps = h.Snapshots()
	require.Equal(t, []float64{2}, snaps[0])
	require.Equal(t, []float64{43}, snaps[historyCap-1])
}

func TestHistoryRing_Empty(t *testing.T) {
	var h HistoryRing
	require.Equal(t, 0, h.Len())
	require.Empty(t, h.Snapshots())

	// Append into an empty ring behaves like Push.
	require.True(t, h.Append([]float64{1}))
	require.Equal(t, 1, h.Len())
}
