package indexer

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/resonantlabs/crawlspace/pkg/config"
	"github.com/resonantlabs/crawlspace/pkg/metrics"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	cfg := config.EngineConfig{
		DenseDimension:  1000,
		SnippetLength:   200,
		EntropyWeight:   0.1,
		Fragility:       0.2,
		TrendDecay:      0.05,
		UpdateFrequency: 0.1,
	}
	return NewEngine(cfg, metrics.Default())
}

func TestAddDocument(t *testing.T) {
	e := newTestEngine(t)

	require.True(t, e.AddDocument("https://a.test/", "Rust", "rust programming language"))
	require.Equal(t, 1, e.Len())

	doc, ok := e.docs.Get("https://a.test/")
	require.True(t, ok)
	require.Equal(t, 1.0, doc.Reversibility)
	require.Equal(t, 1, doc.History.Len())
	require.NotEmpty(t, doc.Vector)
	require.InDelta(t, math.Log2(3), doc.Entropy, 1e-9)
}

func TestAddDocument_DropsEmptyText(t *testing.T) {
	e := newTestEngine(t)

	require.False(t, e.AddDocument("https://empty.test/", "Nothing", ""))
	require.False(t, e.AddDocument("https://punct.test/", "Punctuation", "!!! ... ---"))
	require.Zero(t, e.Len())
}

func TestAddDocument_RefreshesByURL(t *testing.T) {
	e := newTestEngine(t)

	e.AddDocument("https://a.test/", "Old title", "first version of the body")
	e.AddDocument("https://b.test/", "B", "another page entirely")

	// Age the document's relationship record before the recrawl.
	before, _ := e.docs.Get("https://a.test/")
	before.Reversibility = 0.42
	before.History.Push([]float64{1, 2})

	e.AddDocument("https://a.test/", "New title", "second version of the body")

	require.Equal(t, 2, e.Len())
	doc, ok := e.docs.Get("https://a.test/")
	require.True(t, ok)
	require.Equal(t, "New title", doc.Title)

	// The refresh keeps the document's original slot and carries its
	// relationship record over.
	require.Same(t, doc, e.docs.All()[0])
	require.Equal(t, "B", e.docs.All()[1].Title)
	require.Equal(t, 0.42, doc.Reversibility)
	require.Equal(t, 2, doc.History.Len())
}

func TestSearch_RanksMatchingDocFirst(t *testing.T) {
	e := newTestEngine(t)

	e.AddDocument("https://rust.test/", "Rust", "rust programming language")
	e.AddDocument("https://synth.test/", "Synth", "modular synthesizer eurorack")

	results := e.Search("rust programming", 10)
	require.Len(t, results, 2)
	require.Equal(t, "https://rust.test/", results[0].URL)
	require.Greater(t, results[0].Score, results[1].Score)

	// The non-matching document's standard score is pure entropy penalty:
	// its resonance term is exactly zero.
	entropyGap := math.Abs(math.Log2(3) - 1.0)
	require.InDelta(t, -entropyGap*0.1, results[1].Standard, 1e-9)
	require.Negative(t, results[1].Standard)
}

func TestSearch_EmptyQuery(t *testing.T) {
	e := newTestEngine(t)
	e.AddDocument("https://a.test/", "A", "some page text")

	require.Nil(t, e.Search("", 10))
	require.Nil(t, e.Search("!!! ???", 10))
}

func TestSearch_TopK(t *testing.T) {
	e := newTestEngine(t)
	e.AddDocument("https://a.test/", "A", "alpha content here")
	e.AddDocument("https://b.test/", "B", "beta content here")
	e.AddDocument("https://c.test/", "C", "gamma content here")

	require.Len(t, e.Search("content", 2), 2)
	require.Len(t, e.Search("content", 0), 3)
}

func TestSearch_SnippetsAttached(t *testing.T) {
	e := newTestEngine(t)
	e.AddDocument("https://a.test/", "A", "resonant   search\nover crawled pages")

	results := e.Search("resonant search", 1)
	require.Len(t, results, 1)
	require.Equal(t, "resonant search over crawled pages", results[0].Snippet)
}

func TestSearch_OptionalComponentsOffByDefault(t *testing.T) {
	e := newTestEngine(t)
	e.AddDocument("https://a.test/", "A", "rust programming language")

	results := e.Search("rust", 1)
	require.Len(t, results, 1)
	require.Zero(t, results[0].Quantum)
	require.Zero(t, results[0].Persistence)
	require.InDelta(t, results[0].Standard, results[0].Score, 1e-12)
}

func TestSearch_AllComponentsCombined(t *testing.T) {
	e := newTestEngine(t)
	e.EnableQuantumScoring(true)
	e.EnablePersistenceScoring(true)

	e.AddDocument("https://a.test/", "A", "rust programming language")
	e.AddDocument("https://b.test/", "B", "modular synthesizer eurorack")

	results := e.Search("rust programming", 10)
	require.Len(t, results, 2)
	for _, r := range results {
		want := 0.5*r.Standard + 0.25*r.Quantum + 0.25*r.Persistence
		require.InDelta(t, want, r.Score, 1e-12)
	}
	require.NotZero(t, results[0].Quantum)
}

func TestUpdateDocumentRelationships(t *testing.T) {
	e := newTestEngine(t)
	e.AddDocument("https://a.test/", "A", "rust programming language")
	e.AddDocument("https://b.test/", "B", "modular synthesizer eurorack")

	e.UpdateDocumentRelationships()

	for _, doc := range e.docs.All() {
		require.NotEqual(t, 1.0, doc.Reversibility)
		require.Equal(t, 2, doc.History.Len())
	}

	// History growth stops at the ring capacity.
	for i := 0; i < 6; i++ {
		e.UpdateDocumentRelationships()
	}
	for _, doc := range e.docs.All() {
		require.Equal(t, 5, doc.History.Len())
	}
}

func TestUpdateDocumentRelationships_SingleDocUntouched(t *testing.T) {
	e := newTestEngine(t)
	e.AddDocument("https://solo.test/", "Solo", "a single page alone")

	e.UpdateDocumentRelationships()

	doc, _ := e.docs.Get("https://solo.test/")
	require.Equal(t, 1.0, doc.Reversibility)
	require.Equal(t, 1, doc.History.Len())
}

func TestApplyQuantumJump(t *testing.T) {
	e := newTestEngine(t)
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return base }

	e.AddDocument("https://rust.test/", "Rust", "rust programming language")
	e.AddDocument("https://synth.test/", "Synth", "modular synthesizer eurorack")

	// Three days later the matching document resonates with the query.
	e.now = func() time.Time { return base.Add(72 * time.Hour) }
	touched := e.ApplyQuantumJump("rust programming", 0.2)
	require.Equal(t, 1, touched)

	doc, _ := e.docs.Get("https://rust.test/")
	require.Equal(t, 2, doc.History.Len())

	// reversibility*0.9 + 0.1*(resonance*importance), resonance = 2/sqrt(6)
	res := 2.0 / math.Sqrt(6)
	require.InDelta(t, 0.9+0.1*res*0.2, doc.Reversibility, 1e-9)

	// Stale by three days, so the apparent age halves to a day and a half.
	wantTS := base.Add(72 * time.Hour).Unix() - (3*86400)/2
	require.Equal(t, wantTS, doc.Timestamp)

	// The non-resonant document is untouched.
	other, _ := e.docs.Get("https://synth.test/")
	require.Equal(t, 1.0, other.Reversibility)
	require.Equal(t, 1, other.History.Len())
	require.Equal(t, base.Unix(), other.Timestamp)
}

func TestApplyQuantumJump_FreshDocKeepsTimestamp(t *testing.T) {
	e := newTestEngine(t)
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return base }

	e.AddDocument("https://rust.test/", "Rust", "rust programming language")

	e.now = func() time.Time { return base.Add(time.Hour) }
	require.Equal(t, 1, e.ApplyQuantumJump("rust", 0.2))

	doc, _ := e.docs.Get("https://rust.test/")
	require.Equal(t, base.Unix(), doc.Timestamp)
}

func TestApplyQuantumJump_EmptyQuery(t *testing.T) {
	e := newTestEngine(t)
	e.AddDocument("https://a.test/", "A", "some page text")
	require.Zero(t, e.ApplyQuantumJump("", 0.2))
}

func TestStats(t *testing.T) {
	e := newTestEngine(t)
	e.EnablePersistenceScoring(true)
	e.AddDocument("https://a.test/", "A", "rust programming language")

	stats := e.Stats()
	require.Equal(t, 1, stats.Documents)
	require.Equal(t, 3, stats.VocabularySize)
	require.Zero(t, stats.CompressedDocs)
	require.InDelta(t, 0.1, stats.EntropyWeight, 1e-12)
	require.False(t, stats.QuantumScoring)
	require.True(t, stats.PersistenceScoring)

	_, err := e.CompressAll()
	require.NoError(t, err)
	require.Equal(t, 1, e.Stats().CompressedDocs)
}

func TestTuningSetters(t *testing.T) {
	e := newTestEngine(t)
	e.SetEntropyWeight(0.3)
	e.SetFragility(0.5)
	e.SetTrendDecay(0.02)
	e.SetUpdateFrequency(0.4)

	stats := e.Stats()
	require.InDelta(t, 0.3, stats.EntropyWeight, 1e-12)
	require.InDelta(t, 0.5, stats.Fragility, 1e-12)
	require.InDelta(t, 0.02, stats.TrendDecay, 1e-12)
	require.InDelta(t, 0.4, stats.UpdateFrequency, 1e-12)
}
