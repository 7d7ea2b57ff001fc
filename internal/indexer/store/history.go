package store

// historyCap bounds the dense snapshots retained per document.
const historyCap = 5

// HistoryRing is a fixed-capacity ring of dense vector snapshots. Relationship
// updates fill the free capacity with Append; feedback jumps use Push, which
// always lands and evicts the oldest snapshot once the ring is full.
type HistoryRing struct {
	slots [historyCap][]float64
	head  int
	size  int
}

// NewHistory returns a ring holding first as its only snapshot.
func NewHistory(first []float64) HistoryRing {
	var h HistoryRing
	h.Push(first)
	return h
}

// Append records a snapshot only while the ring has free capacity. It reports
// whether the snapshot was recorded.
func (h *HistoryRing) Append(dense []float64) bool {
	if h.size == historyCap {
		return false
	}
	h.slots[(h.head+h.size)%historyCap] = dense
	h.size++
	return true
}

// Push records a snapshot unconditionally, overwriting the oldest one when
// the ring is full.
func (h *HistoryRing) Push(dense []float64) {
	if h.size < historyCap {
		h.slots[(h.head+h.size)%historyCap] = dense
		h.size++
		return
	}
	h.slots[h.head] = dense
	h.head = (h.head + 1) % historyCap
}

// Len returns the number of retained snapshots.
func (h *HistoryRing) Len() int {
	return h.size
}

// Snapshots returns the retained snapshots oldest first.
func (h *HistoryRing) Snapshots() [][]float64 {
	out := make([][]float64, h.size)
	for i := 0; i < h.size; i++ {
		out[i] = h.slots[(h.head+i)%historyCap]
	}
	return out
}
