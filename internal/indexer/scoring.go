package indexer

import (
	"math"
	"time"

	"github.com/resonantlabs/crawlspace/internal/indexer/relevance"
	"github.com/resonantlabs/crawlspace/internal/indexer/store"
	"github.com/resonantlabs/crawlspace/internal/indexer/vectorspace"
)

// resonanceThreshold is the minimum query/document dot product at which a
// feedback jump considers a document relevant.
const resonanceThreshold = 0.1

// queryContext carries everything derived from the query string once per
// search: its vector, biorthogonal pair, entropy, and the scoring instant.
type queryContext struct {
	vector  vectorspace.PrimeVector
	bi      vectorspace.BiorthogonalVector
	entropy float64
	now     time.Time
}

// scorerSet names the optional scoring components active for a query. The
// combination weights are fixed per subset rather than tunable.
type scorerSet struct {
	quantum     bool
	persistence bool
}

func (s scorerSet) weights() (standard, quantum, persistence float64) {
	switch {
	case s.quantum && s.persistence:
		return 0.5, 0.25, 0.25
	case s.quantum:
		return 0.7, 0.3, 0
	case s.persistence:
		return 0.7, 0, 0.3
	default:
		return 1, 0, 0
	}
}

// standardScore is the vector match penalised by entropy mismatch.
func (e *Engine) standardScore(q *queryContext, doc *store.IndexedDocument) float64 {
	dot := vectorspace.Dot(q.vector, doc.Vector)
	return dot - math.Abs(doc.Entropy-q.entropy)*e.entropyWeight
}

// quantumScore blends complex resonance with the biorthogonal cross term.
// The imaginary channel carries an age decay capped at 100 days.
func (e *Engine) quantumScore(q *queryContext, doc *store.IndexedDocument) float64 {
	decay := 0.01 * math.Min(ageDays(q.now, doc.Timestamp), 100)
	res := vectorspace.ResonanceComplex(q.vector, doc.Vector, decay)
	bio := vectorspace.BiorthogonalScore(q.bi, doc.Biorthogonal)
	return 0.6*real(res) + 0.2*math.Abs(imag(res)) + 0.2*bio
}

// persistenceScore estimates durable relevance from the document's stored
// reversibility and buffering, discounted by entropy mismatch with the query.
func (e *Engine) persistenceScore(q *queryContext, doc *store.IndexedDocument) float64 {
	pressure := relevance.EntropyPressure(ageDays(q.now, doc.Timestamp), e.updateFreq, e.trendDecay)
	base := relevance.PersistenceScore(doc.Reversibility, pressure, doc.Buffering, e.fragility)
	return base * math.Exp(-e.entropyWeight*math.Abs(doc.Entropy-q.entropy))
}

func ageDays(now time.Time, timestamp int64) float64 {
	return float64(now.Unix()-timestamp) / 86400.0
}
