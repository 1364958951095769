package knowledge

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/dialogd/internal/sanitize"
)

var qdrantTracer = otel.Tracer("dialogd.knowledge.qdrant")

// QdrantConfig holds configuration for the Qdrant backend.
type QdrantConfig struct {
	Host   string `koanf:"host"`
	Port   int    `koanf:"port"`
	UseTLS bool   `koanf:"use_tls"`

	// Collection is the collection name. Default: dialogd_concepts.
	Collection string `koanf:"collection"`

	// Tenant optionally suffixes the collection name so deployments
	// sharing a Qdrant server keep separate corpora.
	Tenant string `koanf:"tenant"`
}

func (c *QdrantConfig) applyDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 6334
	}
	if c.Collection == "" {
		c.Collection = "dialogd_concepts"
	}
}

// QdrantStore implements Service on a Qdrant server over gRPC, for
// deployments where the concept corpus outgrows the embedded store.
type QdrantStore struct {
	client     *qdrant.Client
	collection string
	logger     *zap.Logger
}

// NewQdrantStore connects to Qdrant and ensures the collection exists.
func NewQdrantStore(ctx context.Context, cfg QdrantConfig, logger *zap.Logger) (*QdrantStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.applyDefaults()

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to qdrant: %w", err)
	}

	s := &QdrantStore{
		client:     client,
		collection: sanitize.CollectionName(cfg.Collection, cfg.Tenant),
		logger:     logger,
	}
	if err := s.ensureCollection(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return s, nil
}

func (s *QdrantStore) ensureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("checking collection %s: %w", s.collection, err)
	}
	if exists {
		return nil
	}
	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(EmbedDim),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("creating collection %s: %w", s.collection, err)
	}
	return nil
}

// AddConcepts upserts the concepts as points. The concept ID is kept
// in the payload; the point ID is a UUID derived from it when possible.
func (s *QdrantStore) AddConcepts(ctx context.Context, concepts []Concept) error {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.AddConcepts")
	defer span.End()
	span.SetAttributes(attribute.Int("concept_count", len(concepts)))

	if len(concepts) == 0 {
		return errors.New("knowledge: no concepts to add")
	}

	points := make([]*qdrant.PointStruct, len(concepts))
	for i, c := range concepts {
		if c.ID == "" {
			return fmt.Errorf("knowledge: concept %q has no ID", c.Name)
		}

		payload := map[string]*qdrant.Value{
			"id":          {Kind: &qdrant.Value_StringValue{StringValue: c.ID}},
			"name":        {Kind: &qdrant.Value_StringValue{StringValue: c.Name}},
			"description": {Kind: &qdrant.Value_StringValue{StringValue: c.Description}},
		}
		for k, v := range c.Metadata {
			payload[k] = &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: v}}
		}

		var pointID *qdrant.PointId
		if _, err := uuid.Parse(c.ID); err == nil {
			pointID = qdrant.NewIDUUID(c.ID)
		} else {
			pointID = qdrant.NewIDUUID(uuid.NewSHA1(uuid.NameSpaceOID, []byte(c.ID)).String())
		}

		embedding := EmbedText(c.Name + " " + c.Description)
		points[i] = &qdrant.PointStruct{
			Id:      pointID,
			Vectors: qdrant.NewVectors(embedding...),
			Payload: payload,
		}
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Points:         points,
	})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("upserting concepts: %w", err)
	}

	s.logger.Debug("upserted concepts to qdrant", zap.Int("count", len(concepts)))
	return nil
}

// SearchSimilarConcepts queries the collection for the topK nearest
// points.
func (s *QdrantStore) SearchSimilarConcepts(ctx context.Context, embedding []float32, topK int) ([]ConceptResult, error) {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.SearchSimilarConcepts")
	defer span.End()
	span.SetAttributes(attribute.Int("top_k", topK))

	if topK <= 0 {
		topK = DefaultTopK
	}

	results, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(embedding...),
		Limit:          qdrant.PtrOf(uint64(topK)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("querying concepts: %w", err)
	}

	out := make([]ConceptResult, len(results))
	for i, point := range results {
		r := ConceptResult{Score: point.Score, Metadata: map[string]string{}}
		for k, v := range point.Payload {
			sv, ok := v.Kind.(*qdrant.Value_StringValue)
			if !ok {
				continue
			}
			switch k {
			case "id":
				r.ID = sv.StringValue
			case "name":
				r.Name = sv.StringValue
			case "description":
				r.Description = sv.StringValue
			default:
				r.Metadata[k] = sv.StringValue
			}
		}
		out[i] = r
	}
	span.SetAttributes(attribute.Int("results_count", len(out)))
	return out, nil
}

// Close closes the gRPC connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}
