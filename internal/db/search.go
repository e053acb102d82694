package db

// KNNQuery is the input for vector similarity search.
type KNNQuery struct {
	IndexName    string
	Category     string // optional TAG pre-filter
	Vector       []float32
	K            int
	ReturnFields []string
}

// TextQuery is the input for BM25 text search. Query is passed through the
// index's query syntax, so boolean and phrase operators are honored.
type TextQuery struct {
	IndexName    string
	Query        string
	Category     string // optional TAG pre-filter
	TopK         int
	ReturnFields []string
}

// SearchResult is the output of a search operation.
type SearchResult struct {
	Total   int
	Entries []SearchEntry
}

// SearchEntry is a single document hit from a search.
type SearchEntry struct {
	Key    string
	Score  float64
	Fields map[string]string
}
