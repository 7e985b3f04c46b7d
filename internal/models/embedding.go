package models

// EmbeddedDocument is a document paired with the vector it was indexed under.
type EmbeddedDocument struct {
	Document
	Embedding []float32 `json:"-"`
}

// QueryResult is a retrieved document and its cosine similarity to the query.
type QueryResult struct {
	Document
	Score float32 `json:"score"`
}

// Answer is what the retrieval pipeline returns for a question.
type Answer struct {
	Question string        `json:"question"`
	Text     string        `json:"answer"`
	Sources  []QueryResult `json:"sources"`
}
