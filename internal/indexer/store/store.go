package store

// Store keeps documents in insertion order with URL-keyed upserts. Order is
// what checkpoints and exports iterate in, so a refresh must not move a
// document.
type Store struct {
	docs  []*IndexedDocument
	byURL map[string]int
}

func New() *Store {
	return &Store{byURL: make(map[string]int)}
}

// Upsert inserts doc, or replaces the existing document with the same URL in
// place. It reports whether an existing document was replaced.
func (s *Store) Upsert(doc *IndexedDocument) bool {
	if i, ok := s.byURL[doc.URL]; ok {
		s.docs[i] = doc
		return true
	}
	s.byURL[doc.URL] = len(s.docs)
	s.docs = append(s.docs, doc)
	return false
}

// Get returns the document stored under url.
func (s *Store) Get(url string) (*IndexedDocument, bool) {
	i, ok := s.byURL[url]
	if !ok {
		return nil, false
	}
	return s.docs[i], true
}

// All returns the backing slice in insertion order. Callers must not grow or
// reorder it.
func (s *Store) All() []*IndexedDocument {
	return s.docs
}

func (s *Store) Len() int {
	return len(s.docs)
}
