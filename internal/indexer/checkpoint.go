package indexer

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/resonantlabs/crawlspace/internal/indexer/store"
	"github.com/resonantlabs/crawlspace/internal/indexer/vectorspace"
	apperrors "github.com/resonantlabs/crawlspace/pkg/errors"
)

const (
	checkpointMagic = "# Resonant Search Engine Checkpoint"

	// loadedBuffering stands in for the true buffering capacity of documents
	// restored from a checkpoint, whose vectors are placeholders until the
	// URL is re-crawled.
	loadedBuffering = 0.5
)

// SaveCheckpoint writes the index to path as a tab-separated snapshot: a
// commented header followed by url, title, entropy, reversibility, and
// timestamp per document. Text and vectors are not persisted; they come back
// only by re-crawling. The file is written to a temp path and renamed.
func (e *Engine) SaveCheckpoint(path string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.saveCheckpointLocked(path); err != nil {
		e.metrics.CheckpointsTotal.WithLabelValues("error").Inc()
		return err
	}
	e.metrics.CheckpointsTotal.WithLabelValues("ok").Inc()
	return nil
}

func (e *Engine) saveCheckpointLocked(path string) error {
	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("creating checkpoint file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	docs := e.docs.All()

	fmt.Fprintln(w, checkpointMagic)
	fmt.Fprintf(w, "# Total documents: %d\n", len(docs))
	fmt.Fprintf(w, "# Timestamp: %d\n", e.now().Unix())

	for _, doc := range docs {
		title := checkpointFieldSanitizer.Replace(doc.Title)
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n",
			doc.URL,
			title,
			strconv.FormatFloat(doc.Entropy, 'g', -1, 64),
			strconv.FormatFloat(doc.Reversibility, 'g', -1, 64),
			doc.Timestamp,
		)
	}

	if err := w.Flush(); err != nil {
		return fmt.Errorf("flushing checkpoint: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("syncing checkpoint: %w", err)
	}
	f.Close()
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming checkpoint: %w", err)
	}

	e.logger.Info("checkpoint saved", "path", path, "documents", len(docs))
	return nil
}

// LoadCheckpoint replaces the document set with placeholder documents
// reconstructed from a checkpoint file. A line with fewer than five fields
// fails the load; unparsable numeric fields silently fall back to their
// defaults (entropy 0, reversibility 1, timestamp 0).
func (e *Engine) LoadCheckpoint(path string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return apperrors.New(apperrors.ErrCheckpointNotFound, path)
		}
		return fmt.Errorf("opening checkpoint file: %w", err)
	}
	defer f.Close()

	// Placeholder tokens give restored documents a well-formed vector until
	// a re-crawl refreshes the URL.
	placeholder := e.tok.Tokenize("placeholder")
	docs := store.New()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Split(line, "\t")
		if len(fields) < 5 {
			return apperrors.Newf(apperrors.ErrCheckpointCorrupt,
				"line %d: expected 5 fields, got %d", lineNo, len(fields))
		}

		entropy, err := strconv.ParseFloat(fields[2], 64)
		if err != nil {
			entropy = 0.0
		}
		reversibility, err := strconv.ParseFloat(fields[3], 64)
		if err != nil {
			reversibility = 1.0
		}
		timestamp, err := strconv.ParseInt(fields[4], 10, 64)
		if err != nil {
			timestamp = 0
		}

		vec := vectorspace.BuildVector(placeholder)
		dense := vectorspace.ToDense(vec, e.cfg.DenseDimension)
		docs.Upsert(&store.IndexedDocument{
			URL:           fields[0],
			Title:         fields[1],
			Vector:        vec,
			Biorthogonal:  vectorspace.BuildBiorthogonal(placeholder),
			Entropy:       entropy,
			Timestamp:     timestamp,
			Reversibility: reversibility,
			Buffering:     loadedBuffering,
			History:       store.NewHistory(dense),
		})
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading checkpoint: %w", err)
	}

	e.docs = docs
	e.metrics.IndexedDocuments.Set(float64(e.docs.Len()))
	e.metrics.VocabularySize.Set(float64(e.tok.VocabularySize()))

	e.logger.Info("checkpoint loaded", "path", path, "documents", docs.Len())
	return nil
}

// ExportCSV writes the index as CSV with columns url, title, entropy,
// resonance, persistence. String fields are always double-quoted with
// embedded quotes doubled; numeric fields are bare. The resonance column
// carries reversibility and the persistence column carries buffering.
func (e *Engine) ExportCSV(path string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating export file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	fmt.Fprintln(w, "url,title,entropy,resonance,persistence")
	for _, doc := range e.docs.All() {
		fmt.Fprintf(w, "\"%s\",\"%s\",%s,%s,%s\n",
			csvEscape(doc.URL),
			csvEscape(doc.Title),
			strconv.FormatFloat(doc.Entropy, 'g', -1, 64),
			strconv.FormatFloat(doc.Reversibility, 'g', -1, 64),
			strconv.FormatFloat(doc.Buffering, 'g', -1, 64),
		)
	}

	if err := w.Flush(); err != nil {
		return fmt.Errorf("flushing export: %w", err)
	}
	e.logger.Info("index exported", "path", path, "documents", e.docs.Len())
	return nil
}

// CompressAll gzips the text of every document still holding plain text and
// returns how many were compressed. Failures skip the document and keep
// going; the first error is returned after the sweep.
func (e *Engine) CompressAll() (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	compressed := 0
	var firstErr error
	for _, doc := range e.docs.All() {
		if doc.Compressed() {
			continue
		}
		if err := doc.Compress(); err != nil {
			e.logger.Error("compressing document text failed", "url", doc.URL, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if doc.Compressed() {
			compressed++
		}
	}

	e.logger.Debug("document texts compressed", "count", compressed)
	return compressed, firstErr
}

// checkpointFieldSanitizer strips the characters that would break the
// tab-separated line framing.
var checkpointFieldSanitizer = strings.NewReplacer("\t", " ", "\n", " ", "\r", " ")

// csvEscape doubles embedded quotes per standard CSV escaping.
func csvEscape(s string) string {
	return strings.ReplaceAll(s, `"`, `""`)
}
