// Package tokenizer maps words to unique prime numbers. Each distinct word,
// lower-cased, receives the next unassigned prime in strictly increasing
// first-seen order; the mapping is bidirectional and never changes once made.
package tokenizer

import (
	"strings"
	"unicode"
)

// Tokenizer owns the vocabulary: a bidirectional word-prime mapping and the
// cursor of the last assigned prime. It is not safe for concurrent use; the
// engine serialises access.
type Tokenizer struct {
	tokenToPrime map[string]uint64
	primeToToken map[uint64]string
	cursor       uint64
	primes       *primeSource
}

// New creates an empty Tokenizer. The cursor starts at 2, and assignment
// always takes the next prime strictly above it, so the first word maps to 3.
func New() *Tokenizer {
	return &Tokenizer{
		tokenToPrime: make(map[string]uint64),
		primeToToken: make(map[uint64]string),
		cursor:       2,
		primes:       newPrimeSource(),
	}
}

// Tokenize splits text into case-insensitive alphanumeric runs and returns
// one prime id per word occurrence, assigning fresh primes to unseen words.
// Looking up an already-seen word never advances the cursor.
func (t *Tokenizer) Tokenize(text string) []uint64 {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	ids := make([]uint64, 0, len(words))
	for _, word := range words {
		p, ok := t.tokenToPrime[word]
		if !ok {
			p = t.primes.nextAfter(t.cursor)
			t.tokenToPrime[word] = p
			t.primeToToken[p] = word
			t.cursor = p
		}
		ids = append(ids, p)
	}
	return ids
}

// TokenizeKnown passes prime ids through untouched. It exists for callers
// re-deriving a vector from ids they already hold, where running the text
// path again would grow the vocabulary.
func (t *Tokenizer) TokenizeKnown(ids []uint64) []uint64 {
	out := make([]uint64, len(ids))
	copy(out, ids)
	return out
}

// VocabularySize returns the number of distinct words assigned a prime.
func (t *Tokenizer) VocabularySize() int {
	return len(t.tokenToPrime)
}

// Token returns the word assigned to prime, if any.
func (t *Tokenizer) Token(prime uint64) (string, bool) {
	word, ok := t.primeToToken[prime]
	return word, ok
}

// Prime returns the prime assigned to word (stored lower-cased), if any.
func (t *Tokenizer) Prime(word string) (uint64, bool) {
	p, ok := t.tokenToPrime[word]
	return p, ok
}
