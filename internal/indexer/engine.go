// Package indexer implements the resonance engine: a prime-token vocabulary,
// sparse normalized vectors, entropy-driven relevance metrics, and feedback
// updates, with checkpoint persistence and CSV export. All public methods
// serialise access through one engine-wide lock, so a background consumer and
// interactive searches can share a single Engine.
package indexer

import (
	"log/slog"
	"runtime"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/resonantlabs/crawlspace/internal/indexer/relevance"
	"github.com/resonantlabs/crawlspace/internal/indexer/store"
	"github.com/resonantlabs/crawlspace/internal/indexer/tokenizer"
	"github.com/resonantlabs/crawlspace/internal/indexer/vectorspace"
	"github.com/resonantlabs/crawlspace/pkg/config"
	"github.com/resonantlabs/crawlspace/pkg/logger"
	"github.com/resonantlabs/crawlspace/pkg/metrics"
)

// SearchResult is one ranked document with its score breakdown.
type SearchResult struct {
	URL         string  `json:"url"`
	Title       string  `json:"title"`
	Snippet     string  `json:"snippet"`
	Score       float64 `json:"score"`
	Standard    float64 `json:"standard"`
	Quantum     float64 `json:"quantum"`
	Persistence float64 `json:"persistence"`
}

// EngineStats is a point-in-time snapshot of engine state and tuning.
type EngineStats struct {
	Documents          int     `json:"documents"`
	VocabularySize     int     `json:"vocabulary_size"`
	CompressedDocs     int     `json:"compressed_documents"`
	EntropyWeight      float64 `json:"entropy_weight"`
	Fragility          float64 `json:"fragility"`
	TrendDecay         float64 `json:"trend_decay"`
	UpdateFrequency    float64 `json:"update_frequency"`
	QuantumScoring     bool    `json:"quantum_scoring"`
	PersistenceScoring bool    `json:"persistence_scoring"`
}

type Engine struct {
	mu   sync.Mutex
	tok  *tokenizer.Tokenizer
	docs *store.Store

	cfg     config.EngineConfig
	logger  *slog.Logger
	metrics *metrics.Metrics

	entropyWeight float64
	fragility     float64
	trendDecay    float64
	updateFreq    float64

	quantumScoring     bool
	persistenceScoring bool

	now func() time.Time
}

func NewEngine(cfg config.EngineConfig, m *metrics.Metrics) *Engine {
	return &Engine{
		tok:                tokenizer.New(),
		docs:               store.New(),
		cfg:                cfg,
		logger:             logger.WithComponent("engine"),
		metrics:            m,
		entropyWeight:      cfg.EntropyWeight,
		fragility:          cfg.Fragility,
		trendDecay:         cfg.TrendDecay,
		updateFreq:         cfg.UpdateFrequency,
		quantumScoring:     cfg.QuantumScore,
		persistenceScoring: cfg.PersistScore,
		now:                time.Now,
	}
}

// AddDocument tokenizes and indexes one page. Pages with no extractable
// tokens are dropped. Re-adding a URL refreshes the stored document in
// place. It reports whether the document was indexed.
func (e *Engine) AddDocument(url, title, text string) bool {
	start := time.Now()

	e.mu.Lock()
	defer e.mu.Unlock()

	tokens := e.tok.Tokenize(text)
	if len(tokens) == 0 {
		e.metrics.DocsDroppedTotal.Inc()
		e.logger.Debug("document dropped, no extractable tokens", "url", url)
		return false
	}

	vec := vectorspace.BuildVector(tokens)
	dense := vectorspace.ToDense(vec, e.cfg.DenseDimension)

	doc := &store.IndexedDocument{
		URL:           url,
		Title:         title,
		Vector:        vec,
		Biorthogonal:  vectorspace.BuildBiorthogonal(tokens),
		Entropy:       relevance.ShannonEntropy(tokens),
		Timestamp:     e.now().Unix(),
		Reversibility: 1.0,
		Buffering:     relevance.BufferingCapacity(dense),
		History:       store.NewHistory(dense),
	}
	doc.SetText(text)

	// A recrawled URL keeps its relationship record: text, vectors, entropy,
	// and timestamp refresh, reversibility and history carry over.
	if old, ok := e.docs.Get(url); ok {
		doc.Reversibility = old.Reversibility
		doc.History = old.History
	}
	refreshed := e.docs.Upsert(doc)

	e.metrics.DocsIndexedTotal.Inc()
	e.metrics.IndexLatency.Observe(time.Since(start).Seconds())
	e.metrics.IndexedDocuments.Set(float64(e.docs.Len()))
	e.metrics.VocabularySize.Set(float64(e.tok.VocabularySize()))

	e.logger.Debug("document indexed",
		"url", url,
		"tokens", len(tokens),
		"entropy", doc.Entropy,
		"refreshed", refreshed,
	)
	return true
}

// UpdateDocumentRelationships recomputes every document's reversibility
// against the dense vectors of all other documents and grows each history
// while there is room. Search runs this before scoring so ranking always
// reflects the current corpus.
func (e *Engine) UpdateDocumentRelationships() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.updateRelationshipsLocked()
}

func (e *Engine) updateRelationshipsLocked() {
	docs := e.docs.All()
	if len(docs) < 2 {
		return
	}

	denses := make([][]float64, len(docs))
	for i, doc := range docs {
		denses[i] = vectorspace.ToDense(doc.Vector, e.cfg.DenseDimension)
	}

	// The all-pairs comparison is the hot spot at corpus scale, so stripe
	// the documents across CPUs. Each goroutine mutates only its stripe.
	workers := runtime.GOMAXPROCS(0)
	if workers > len(docs) {
		workers = len(docs)
	}
	var g errgroup.Group
	for w := 0; w < workers; w++ {
		start := w
		g.Go(func() error {
			for i := start; i < len(docs); i += workers {
				others := make([][]float64, 0, len(docs)-1)
				for j := range denses {
					if j != i {
						others = append(others, denses[j])
					}
				}
				docs[i].Reversibility = relevance.Reversibility(denses[i], others)
				docs[i].History.Append(denses[i])
			}
			return nil
		})
	}
	_ = g.Wait()
}

// Search ranks the corpus against query and returns the top topK results
// with score breakdowns and snippets. An empty or unparseable query returns
// no results.
func (e *Engine) Search(query string, topK int) []SearchResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.updateRelationshipsLocked()

	tokens := e.tok.Tokenize(query)
	if len(tokens) == 0 {
		return nil
	}

	q := &queryContext{
		vector:  vectorspace.BuildVector(tokens),
		bi:      vectorspace.BuildBiorthogonal(e.tok.TokenizeKnown(tokens)),
		entropy: relevance.ShannonEntropy(tokens),
		now:     e.now(),
	}

	set := scorerSet{quantum: e.quantumScoring, persistence: e.persistenceScoring}
	wStandard, wQuantum, wPersist := set.weights()

	docs := e.docs.All()
	type scoredDoc struct {
		doc    *store.IndexedDocument
		result SearchResult
	}
	scored := make([]scoredDoc, 0, len(docs))
	for _, doc := range docs {
		standard := e.standardScore(q, doc)
		var quantum, persist float64
		if set.quantum {
			quantum = e.quantumScore(q, doc)
		}
		if set.persistence {
			persist = e.persistenceScore(q, doc)
		}
		scored = append(scored, scoredDoc{
			doc: doc,
			result: SearchResult{
				URL:         doc.URL,
				Title:       doc.Title,
				Score:       wStandard*standard + wQuantum*quantum + wPersist*persist,
				Standard:    standard,
				Quantum:     quantum,
				Persistence: persist,
			},
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].result.Score > scored[j].result.Score
	})
	if topK > 0 && len(scored) > topK {
		scored = scored[:topK]
	}

	results := make([]SearchResult, len(scored))
	for i, sd := range scored {
		snippet, err := sd.doc.Snippet(e.cfg.SnippetLength)
		if err != nil {
			e.logger.Error("snippet generation failed", "url", sd.doc.URL, "error", err)
		}
		sd.result.Snippet = snippet
		results[i] = sd.result
	}

	e.logger.Debug("query scored",
		"query", query,
		"corpus", len(docs),
		"results", len(results),
	)
	return results
}

// ApplyQuantumJump is the post-query feedback pass. Every document resonating
// with the query above 0.1 gets a history snapshot, a reversibility blend
// toward the observed resonance, and a halved apparent age once it is more
// than a day stale. It returns the number of documents touched.
func (e *Engine) ApplyQuantumJump(query string, importance float64) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	tokens := e.tok.Tokenize(query)
	if len(tokens) == 0 {
		return 0
	}
	qVec := vectorspace.BuildVector(tokens)
	now := e.now().Unix()

	touched := 0
	for _, doc := range e.docs.All() {
		res := vectorspace.Dot(qVec, doc.Vector)
		if res <= 0.1 {
			continue
		}

		doc.History.Push(vectorspace.ToDense(doc.Vector, e.cfg.DenseDimension))
		doc.Reversibility = doc.Reversibility*0.9 + 0.1*(res*importance)
		if gap := now - doc.Timestamp; gap > 86400 {
			doc.Timestamp = now - gap/2
		}
		touched++
	}

	e.metrics.FeedbackJumpsTotal.Inc()
	e.logger.Debug("feedback jump applied",
		"query", query,
		"documents", touched,
		"importance", importance,
	)
	return touched
}

// SetEntropyWeight adjusts the entropy mismatch penalty.
func (e *Engine) SetEntropyWeight(w float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.entropyWeight = w
}

// SetFragility adjusts the persistence fragility constant.
func (e *Engine) SetFragility(f float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fragility = f
}

// SetTrendDecay adjusts the trend-decay constant feeding entropy pressure.
func (e *Engine) SetTrendDecay(d float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.trendDecay = d
}

// SetUpdateFrequency adjusts the update-frequency constant feeding entropy
// pressure.
func (e *Engine) SetUpdateFrequency(f float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.updateFreq = f
}

// EnableQuantumScoring toggles the resonance/biorthogonal score component.
func (e *Engine) EnableQuantumScoring(on bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.quantumScoring = on
}

// EnablePersistenceScoring toggles the persistence score component.
func (e *Engine) EnablePersistenceScoring(on bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.persistenceScoring = on
}

// Len returns the number of indexed documents.
func (e *Engine) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.docs.Len()
}

// DocumentMeta is the computed metadata for one indexed document, as exposed
// to the archive and stats paths.
type DocumentMeta struct {
	Entropy       float64
	Reversibility float64
	Timestamp     int64
}

// DocumentMeta reports the computed metadata of an indexed URL.
func (e *Engine) DocumentMeta(url string) (DocumentMeta, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	doc, ok := e.docs.Get(url)
	if !ok {
		return DocumentMeta{}, false
	}
	return DocumentMeta{
		Entropy:       doc.Entropy,
		Reversibility: doc.Reversibility,
		Timestamp:     doc.Timestamp,
	}, true
}

// Stats snapshots the engine state and active tuning parameters.
func (e *Engine) Stats() EngineStats {
	e.mu.Lock()
	defer e.mu.Unlock()

	compressed := 0
	for _, doc := range e.docs.All() {
		if doc.Compressed() {
			compressed++
		}
	}
	return EngineStats{
		Documents:          e.docs.Len(),
		VocabularySize:     e.tok.VocabularySize(),
		CompressedDocs:     compressed,
		EntropyWeight:      e.entropyWeight,
		Fragility:          e.fragility,
		TrendDecay:         e.trendDecay,
		UpdateFrequency:    e.updateFreq,
		QuantumScoring:     e.quantumScoring,
		PersistenceScoring: e.persistenceScoring,
	}
}
