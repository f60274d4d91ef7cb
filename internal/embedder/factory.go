package embedder

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/dshills/repoassist/internal/config"
)

// NewProvider creates the bare provider named by cfg, without retries
func NewProvider(cfg config.EmbeddingConfig) (Embedder, error) {
	switch strings.ToLower(cfg.Provider) {
	case ProviderOpenAI:
		return NewOpenAIProvider(cfg.APIKey, cfg.Model, cfg.BaseURL, cfg.Dimension)
	case ProviderJina:
		return NewJinaProvider(cfg.APIKey, cfg.Model, cfg.BaseURL, cfg.Dimension)
	case ProviderOllama:
		return NewOllamaProvider(cfg.BaseURL, cfg.Model, cfg.Dimension)
	case ProviderLocal:
		return NewLocalProvider(cfg.Dimension), nil
	case "":
		return nil, ErrNoProviderEnabled
	default:
		return nil, fmt.Errorf("%w: unknown provider %s", ErrUnsupportedModel, cfg.Provider)
	}
}

// RetryConfigFrom maps the embedding configuration onto retry settings
func RetryConfigFrom(cfg config.EmbeddingConfig) RetryConfig {
	rc := DefaultRetryConfig()
	if cfg.MaxAttempts > 0 {
		rc.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.BaseDelay > 0 {
		rc.BaseDelay = cfg.BaseDelay
	}
	if cfg.MaxDelay > 0 {
		rc.MaxDelay = cfg.MaxDelay
	}
	return rc
}

// New creates the configured provider wrapped with retries
func New(cfg config.EmbeddingConfig, logger *slog.Logger) (Embedder, error) {
	provider, err := NewProvider(cfg)
	if err != nil {
		return nil, err
	}
	return NewRetrying(provider, RetryConfigFrom(cfg), logger), nil
}
