package knowledge

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Config selects and configures the concept store backend.
type Config struct {
	// Provider is "chromem" (embedded, default) or "qdrant".
	Provider string `koanf:"provider"`

	// TopK is the number of concepts retrieved per search.
	TopK int `koanf:"top_k"`

	Chromem ChromemConfig `koanf:"chromem"`
	Qdrant  QdrantConfig  `koanf:"qdrant"`
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.Provider == "" {
		c.Provider = "chromem"
	}
	if c.TopK <= 0 {
		c.TopK = DefaultTopK
	}
}

// Validate checks the provider selection.
func (c *Config) Validate() error {
	switch c.Provider {
	case "chromem", "qdrant":
		return nil
	default:
		return fmt.Errorf("knowledge: unknown provider %q (must be chromem or qdrant)", c.Provider)
	}
}

// New builds the configured concept store.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (Service, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Provider {
	case "qdrant":
		return NewQdrantStore(ctx, cfg.Qdrant, logger)
	default:
		return NewChromemStore(cfg.Chromem, logger)
	}
}

// DefaultConcepts is the built-in seed corpus: the core vocabulary the
// explanation step links answers back to.
func DefaultConcepts() []Concept {
	return []Concept{
		{
			ID:          "concept-five-elements",
			Name:        "five elements",
			Description: "Wood, fire, earth, metal and water; the generative and controlling cycles between them shape chart balance.",
			Metadata:    map[string]string{"category": "foundation"},
		},
		{
			ID:          "concept-heavenly-stems",
			Name:        "heavenly stems",
			Description: "The ten stems that pair with earthly branches to form the sexagenary cycle used in year and day pillars.",
			Metadata:    map[string]string{"category": "foundation"},
		},
		{
			ID:          "concept-earthly-branches",
			Name:        "earthly branches",
			Description: "The twelve branches mapping to zodiac animals and two-hour periods of the day.",
			Metadata:    map[string]string{"category": "foundation"},
		},
		{
			ID:          "concept-day-master",
			Name:        "day master",
			Description: "The day stem representing the self; chart strength is read relative to it.",
			Metadata:    map[string]string{"category": "analysis"},
		},
		{
			ID:          "concept-luck-pillars",
			Name:        "luck pillars",
			Description: "Ten-year periods derived from the birth month that modulate the base chart over a lifetime.",
			Metadata:    map[string]string{"category": "analysis"},
		},
		{
			ID:          "concept-useful-god",
			Name:        "useful god",
			Description: "The element that best rebalances a chart; recommendations usually strengthen it.",
			Metadata:    map[string]string{"category": "analysis"},
		},
	}
}
