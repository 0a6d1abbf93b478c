package domain

// Document is the text extracted from a single source URL.
type Document struct {
	URL     string
	Title   string
	Content string
}

// Passage is one bounded-length slice of a document with its embedding.
type Passage struct {
	Title     string
	Text      string
	Embedding []float32
}

// TextChunk is the durable record published for every passage of a bundle.
// Records are immutable once created.
type TextChunk struct {
	BundleID  string    `bson:"bundleId" json:"bundleId"`
	SourceURL string    `bson:"url" json:"url"`
	Title     string    `bson:"title,omitempty" json:"title,omitempty"`
	Text      string    `bson:"text" json:"text"`
	Embedding []float32 `bson:"embedding" json:"embedding"`
}

// ScoredChunk is a retrieval hit, ranked by similarity to the query.
type ScoredChunk struct {
	BundleID string  `bson:"bundleId" json:"bundleId"`
	Text     string  `bson:"text" json:"text"`
	Score    float64 `bson:"score" json:"score"`
}
