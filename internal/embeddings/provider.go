// Package embeddings turns row text into dense vectors through a remote
// embedding model.
package embeddings

import (
	"context"
	"fmt"

	"github.com/kamusis/lscope/internal/config"
)

// Provider embeds batches of text into fixed-length float vectors.
//
// Implementations must be deterministic for the same input text and model and
// must return one vector per input, in input order.
type Provider interface {
	ModelID() string
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Config contains the resolved embeddings configuration.
type Config struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string
}

// LoadConfig resolves embeddings config from environment variables first, then ~/.lscope/.env.
func LoadConfig() (*Config, error) {
	var cfg Config
	for _, f := range []struct {
		key string
		dst *string
	}{
		{"LSCOPE_EMBEDDINGS_PROVIDER", &cfg.Provider},
		{"LSCOPE_EMBEDDINGS_MODEL", &cfg.Model},
		{"LSCOPE_EMBEDDINGS_API_KEY", &cfg.APIKey},
		{"LSCOPE_EMBEDDINGS_BASE_URL", &cfg.BaseURL},
	} {
		v, err := config.GetConfigValue(f.key)
		if err != nil {
			return nil, err
		}
		*f.dst = v
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	return &cfg, nil
}

// NewFromConfig returns an embeddings provider.
func NewFromConfig(cfg *Config) (Provider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("embeddings config is nil")
	}
	if cfg.Provider == "" {
		return nil, fmt.Errorf("embeddings provider is not configured (set LSCOPE_EMBEDDINGS_PROVIDER)")
	}
	switch cfg.Provider {
	case "openai":
		return NewOpenAI(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported embeddings provider: %s", cfg.Provider)
	}
}
