package knowledge

import (
	"context"
	"errors"
	"fmt"
	"os"

	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/dialogd/internal/sanitize"
)

var chromemTracer = otel.Tracer("dialogd.knowledge.chromem")

// ChromemConfig holds configuration for the embedded chromem backend.
type ChromemConfig struct {
	// Path is the directory for persistent storage. Empty means
	// in-memory only.
	Path string `koanf:"path"`

	// Compress enables gzip compression for stored data.
	Compress bool `koanf:"compress"`

	// Collection is the collection name. Default: dialogd_concepts.
	Collection string `koanf:"collection"`

	// Tenant optionally suffixes the collection name so deployments
	// sharing a storage path keep separate corpora.
	Tenant string `koanf:"tenant"`
}

func (c *ChromemConfig) applyDefaults() {
	if c.Collection == "" {
		c.Collection = "dialogd_concepts"
	}
}

// ChromemStore implements Service on chromem-go, an embeddable pure-Go
// vector database. No external service is needed.
type ChromemStore struct {
	db         *chromem.DB
	collection *chromem.Collection
	logger     *zap.Logger
}

// NewChromemStore opens (or creates) a chromem-backed concept store.
func NewChromemStore(cfg ChromemConfig, logger *zap.Logger) (*ChromemStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.applyDefaults()

	var db *chromem.DB
	if cfg.Path == "" {
		db = chromem.NewDB()
	} else {
		if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
			return nil, fmt.Errorf("creating directory %s: %w", cfg.Path, err)
		}
		var err error
		db, err = chromem.NewPersistentDB(cfg.Path, cfg.Compress)
		if err != nil {
			return nil, fmt.Errorf("creating chromem DB: %w", err)
		}
	}

	name := sanitize.CollectionName(cfg.Collection, cfg.Tenant)
	collection, err := db.GetOrCreateCollection(name, nil, embeddingFunc())
	if err != nil {
		return nil, fmt.Errorf("getting/creating collection %s: %w", name, err)
	}

	return &ChromemStore{
		db:         db,
		collection: collection,
		logger:     logger,
	}, nil
}

// embeddingFunc adapts EmbedText for documents added without an
// explicit embedding.
func embeddingFunc() chromem.EmbeddingFunc {
	return func(_ context.Context, text string) ([]float32, error) {
		return EmbedText(text), nil
	}
}

// AddConcepts stores the concepts, embedding name and description.
func (s *ChromemStore) AddConcepts(ctx context.Context, concepts []Concept) error {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.AddConcepts")
	defer span.End()
	span.SetAttributes(attribute.Int("concept_count", len(concepts)))

	if len(concepts) == 0 {
		return errors.New("knowledge: no concepts to add")
	}

	docs := make([]chromem.Document, len(concepts))
	for i, c := range concepts {
		if c.ID == "" {
			return fmt.Errorf("knowledge: concept %q has no ID", c.Name)
		}
		metadata := map[string]string{"name": c.Name}
		for k, v := range c.Metadata {
			metadata[k] = v
		}
		docs[i] = chromem.Document{
			ID:        c.ID,
			Content:   c.Description,
			Metadata:  metadata,
			Embedding: EmbedText(c.Name + " " + c.Description),
		}
	}

	if err := s.collection.AddDocuments(ctx, docs, 1); err != nil {
		span.RecordError(err)
		return fmt.Errorf("adding concepts: %w", err)
	}

	s.logger.Debug("added concepts to chromem", zap.Int("count", len(concepts)))
	return nil
}

// SearchSimilarConcepts returns up to topK concepts nearest to the
// embedding. topK is capped at the collection size; an empty
// collection returns an empty slice.
func (s *ChromemStore) SearchSimilarConcepts(ctx context.Context, embedding []float32, topK int) ([]ConceptResult, error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.SearchSimilarConcepts")
	defer span.End()
	span.SetAttributes(attribute.Int("top_k", topK))

	if topK <= 0 {
		topK = DefaultTopK
	}

	// chromem requires nResults <= doc count
	count := s.collection.Count()
	if count == 0 {
		return []ConceptResult{}, nil
	}
	if topK > count {
		topK = count
	}

	results, err := s.collection.QueryEmbedding(ctx, embedding, topK, nil, nil)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("querying concepts: %w", err)
	}

	out := make([]ConceptResult, len(results))
	for i, r := range results {
		out[i] = ConceptResult{
			ID:          r.ID,
			Name:        r.Metadata["name"],
			Description: r.Content,
			Score:       r.Similarity,
			Metadata:    r.Metadata,
		}
	}
	span.SetAttributes(attribute.Int("results_count", len(out)))
	return out, nil
}

// Close releases the store. chromem persists on write, so Close has
// nothing to flush.
func (s *ChromemStore) Close() error {
	return nil
}
