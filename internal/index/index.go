// Package index is the nearest-neighbor abstraction over concept embeddings,
// scoped to a document and optionally to a chapter.
package index

import "context"

// Item is one embedded concept.
type Item struct {
	ID        string
	ChapterID string
	Vector    []float32
}

// Match is one nearest neighbor with its cosine similarity.
type Match struct {
	ID         string
	Similarity float64
}

// SimilarityIndex supports upsert and scoped KNN queries. Implementations
// must exclude excludeID from results and return matches in descending
// similarity order.
type SimilarityIndex interface {
	Upsert(ctx context.Context, items []Item) error
	Query(ctx context.Context, vector []float32, topK int, chapterID string, excludeID string) ([]Match, error)
}
