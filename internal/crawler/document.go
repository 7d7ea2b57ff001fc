package crawler

// CrawledDocument is one successfully fetched page, the sole contract
// between a crawler and the indexing consumer. Any producer emitting this
// shape can feed the engine.
type CrawledDocument struct {
	URL   string `json:"url"`
	Title string `json:"title"`
	Text  string `json:"text"`
}
