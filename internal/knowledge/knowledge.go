// Package knowledge is the concept store behind post-turn enrichment:
// domain concepts are held in a vector store and retrieved by embedding
// similarity to ground explanations.
package knowledge

import (
	"context"
)

// DefaultTopK is the number of similar concepts retrieved per turn.
const DefaultTopK = 5

// Concept is one stored knowledge entry.
type Concept struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// ConceptResult is a retrieved concept with its similarity score.
type ConceptResult struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Score       float32           `json:"score"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Service stores concepts and retrieves the ones nearest an embedding.
type Service interface {
	AddConcepts(ctx context.Context, concepts []Concept) error
	SearchSimilarConcepts(ctx context.Context, embedding []float32, topK int) ([]ConceptResult, error)
	Close() error
}
