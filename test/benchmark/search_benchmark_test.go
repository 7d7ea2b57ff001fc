package benchmark

import (
	"fmt"
	"testing"

	"github.com/resonantlabs/crawlspace/internal/indexer"
	"github.com/resonantlabs/crawlspace/internal/indexer/relevance"
	"github.com/resonantlabs/crawlspace/internal/indexer/tokenizer"
	"github.com/resonantlabs/crawlspace/internal/indexer/vectorspace"
	"github.com/resonantlabs/crawlspace/pkg/metrics"
)

// BenchmarkEngineSearch measures end-to-end ranked search, including the
// relationship update that runs before scoring.
func BenchmarkEngineSearch(b *testing.B) {
	sizes := []int{100, 1000, 5000}
	for _, numDocs := range sizes {
		b.Run(fmt.Sprintf("docs_%d", numDocs), func(b *testing.B) {
			engine := indexer.NewEngine(benchEngineConfig(), metrics.Default())
			fillEngine(b, engine, numDocs)

			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				results := engine.Search(benchTerms[i%len(benchTerms)], 10)
				_ = results
			}
		})
	}
}

// BenchmarkEngineSearchParallel measures concurrent search throughput
// through the engine's single guard.
func BenchmarkEngineSearchParallel(b *testing.B) {
	engine := indexer.NewEngine(benchEngineConfig(), metrics.Default())
	fillEngine(b, engine, 1000)

	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			results := engine.Search(benchTerms[i%len(benchTerms)], 10)
			_ = results
			i++
		}
	})
}

// BenchmarkEngineSearchScorerSubsets compares the cost of the scorer
// combinations.
func BenchmarkEngineSearchScorerSubsets(b *testing.B) {
	subsets := []struct {
		name        string
		quantum     bool
		persistence bool
	}{
		{"standard_only", false, false},
		{"with_quantum", true, false},
		{"with_persistence", false, true},
		{"all", true, true},
	}

	for _, subset := range subsets {
		b.Run(subset.name, func(b *testing.B) {
			engine := indexer.NewEngine(benchEngineConfig(), metrics.Default())
			fillEngine(b, engine, 1000)
			engine.EnableQuantumScoring(subset.quantum)
			engine.EnablePersistenceScoring(subset.persistence)

			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				results := engine.Search("crawler entropy resonance", 10)
				_ = results
			}
		})
	}
}

// BenchmarkApplyQuantumJump measures the post-query feedback pass over a
// corpus where most documents resonate with the query.
func BenchmarkApplyQuantumJump(b *testing.B) {
	engine := indexer.NewEngine(benchEngineConfig(), metrics.Default())
	for i := 0; i < 1000; i++ {
		url := fmt.Sprintf("https://bench.test/feedback-%d", i)
		engine.AddDocument(url, "shared topic", "crawler frontier entropy shared topic words")
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		engine.ApplyQuantumJump("shared topic", 0.2)
	}
}

// BenchmarkDot measures sparse dot products at increasing vector densities.
func BenchmarkDot(b *testing.B) {
	sizes := []int{10, 100, 1000}
	for _, size := range sizes {
		b.Run(fmt.Sprintf("keys_%d", size), func(b *testing.B) {
			tok := tokenizer.New()
			var text string
			for i := 0; i < size; i++ {
				text += fmt.Sprintf("word%d ", i)
			}
			tokens := tok.Tokenize(text)
			v1 := vectorspace.BuildVector(tokens)
			v2 := vectorspace.BuildVector(tokens[:len(tokens)/2+1])

			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				_ = vectorspace.Dot(v1, v2)
			}
		})
	}
}

// BenchmarkReversibility measures the mutual-information average against a
// full history ring.
func BenchmarkReversibility(b *testing.B) {
	dims := []int{100, 1000}
	for _, dim := range dims {
		b.Run(fmt.Sprintf("dim_%d", dim), func(b *testing.B) {
			current := make([]float64, dim)
			history := make([][]float64, 5)
			for i := range history {
				history[i] = make([]float64, dim)
				for j := range history[i] {
					history[i][j] = float64((i+j)%7) / 7.0
				}
			}
			for j := range current {
				current[j] = float64(j%5) / 5.0
			}

			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				_ = relevance.Reversibility(current, history)
			}
		})
	}
}

// BenchmarkBuildBiorthogonal measures the paired-vector construction used on
// every indexed page and every scored query.
func BenchmarkBuildBiorthogonal(b *testing.B) {
	tok := tokenizer.New()
	tokens := tok.Tokenize(sampleTexts["medium"])

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = vectorspace.BuildBiorthogonal(tokens)
	}
}
