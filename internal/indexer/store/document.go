// Package store holds the in-memory document set behind the resonance
// engine. Documents keep their sparse and biorthogonal vectors, the scoring
// metrics attached to them, and the raw page text until it is archived into
// a gzip frame. The store is not safe for concurrent use; the engine
// serialises access.
package store

import (
	"bytes"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/resonantlabs/crawlspace/internal/indexer/vectorspace"
)

// IndexedDocument is one crawled page after vectorisation.
type IndexedDocument struct {
	URL   string
	Title string

	Vector       vectorspace.PrimeVector
	Biorthogonal vectorspace.BiorthogonalVector

	Entropy       float64
	Timestamp     int64
	Reversibility float64
	Buffering     float64

	// History holds dense vector snapshots from relationship updates and
	// feedback jumps.
	History HistoryRing

	text       string
	compressed []byte
}

// SetText stores the raw page text and clears any previous gzip frame.
func (d *IndexedDocument) SetText(text string) {
	d.text = text
	d.compressed = nil
}

// Text returns the page text. A gzip frame is inflated on demand and cached
// back into the plain-text field until the next Compress.
func (d *IndexedDocument) Text() (string, error) {
	if d.compressed == nil {
		return d.text, nil
	}

	zr, err := gzip.NewReader(bytes.NewReader(d.compressed))
	if err != nil {
		return "", err
	}
	defer zr.Close()

	raw, err := io.ReadAll(zr)
	if err != nil {
		return "", err
	}

	d.text = string(raw)
	d.compressed = nil
	return d.text, nil
}

// Compress replaces the raw text with a gzip frame. Documents that are
// already compressed or carry no text are left untouched.
func (d *IndexedDocument) Compress() error {
	if d.compressed != nil || d.text == "" {
		return nil
	}

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write([]byte(d.text)); err != nil {
		return err
	}
	if err := zw.Close(); err != nil {
		return err
	}

	d.compressed = buf.Bytes()
	d.text = ""
	return nil
}

// Compressed reports whether the text lives in a gzip frame.
func (d *IndexedDocument) Compressed() bool {
	return d.compressed != nil
}

// Snippet returns the first maxRunes characters of the text with whitespace
// runs collapsed to single spaces, appending an ellipsis when truncated.
func (d *IndexedDocument) Snippet(maxRunes int) (string, error) {
	text, err := d.Text()
	if err != nil {
		return "", err
	}

	flat := strings.Join(strings.Fields(text), " ")
	runes := []rune(flat)
	if len(runes) <= maxRunes {
		return flat, nil
	}
	return string(runes[:maxRunes]) + "...", nil
}

