package embedder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/repoassist/internal/config"
)

func TestNewProvider(t *testing.T) {
	tests := []struct {
		name     string
		cfg      config.EmbeddingConfig
		provider string
		wantErr  error
	}{
		{"openai", config.EmbeddingConfig{Provider: "openai", APIKey: "k"}, ProviderOpenAI, nil},
		{"jina upper case", config.EmbeddingConfig{Provider: "JINA", APIKey: "k"}, ProviderJina, nil},
		{"ollama", config.EmbeddingConfig{Provider: "ollama"}, ProviderOllama, nil},
		{"local", config.EmbeddingConfig{Provider: "local", Dimension: 16}, ProviderLocal, nil},
		{"openai without key", config.EmbeddingConfig{Provider: "openai"}, "", ErrNoProviderEnabled},
		{"empty", config.EmbeddingConfig{}, "", ErrNoProviderEnabled},
		{"unknown", config.EmbeddingConfig{Provider: "nope"}, "", ErrUnsupportedModel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := NewProvider(tt.cfg)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.provider, e.Provider())
		})
	}
}

func TestNew_WrapsWithRetry(t *testing.T) {
	cfg := config.Default().Embedding
	cfg.Provider = "local"
	cfg.Dimension = 8
	cfg.MaxAttempts = 5

	e, err := New(cfg, nil)
	require.NoError(t, err)
	r, ok := e.(*Retrying)
	require.True(t, ok)
	assert.Equal(t, 5, r.config.MaxAttempts)
	assert.Equal(t, cfg.BaseDelay, r.config.BaseDelay)
	assert.Equal(t, 8, e.Dimension())
}

func TestRetryConfigFrom_Defaults(t *testing.T) {
	rc := RetryConfigFrom(config.EmbeddingConfig{})
	assert.Equal(t, DefaultRetryConfig(), rc)
}
