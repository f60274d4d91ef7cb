package embedder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
)

// OllamaProvider implements Embedder using a local Ollama server through
// langchaingo.
type OllamaProvider struct {
	embedder  embeddings.Embedder
	model     string
	dimension int
	logger    *slog.Logger
}

// NewOllamaProvider creates an embedder backed by the Ollama server at serverURL
func NewOllamaProvider(serverURL, model string, dimension int) (*OllamaProvider, error) {
	if model == "" {
		model = DefaultOllamaModel
	}
	if serverURL == "" {
		serverURL = DefaultOllamaURL
	}
	if dimension == 0 {
		dimension = knownDimensions[model]
	}

	client, err := ollama.New(
		ollama.WithServerURL(serverURL),
		ollama.WithModel(model),
	)
	if err != nil {
		return nil, fmt.Errorf("create ollama client: %w", err)
	}

	// Newlines carry structure in code
	embedder, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(false))
	if err != nil {
		return nil, fmt.Errorf("create ollama embedder: %w", err)
	}

	return &OllamaProvider{
		embedder:  embedder,
		model:     model,
		dimension: dimension,
		logger:    slog.Default().With("component", "ollama-embedder"),
	}, nil
}

func (o *OllamaProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}

	o.logger.Debug("generating embedding", "length", len(req.Text))

	vectors, err := o.embedder.EmbedDocuments(ctx, []string{req.Text})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		// langchaingo does not surface status codes; treat service errors as transient
		return nil, &APIError{Provider: ProviderOllama, Err: err}
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("%w: ollama returned no embeddings", ErrProviderFailed)
	}
	if err := checkDimension(ProviderOllama, vectors[0], o.dimension); err != nil {
		return nil, err
	}

	return &Embedding{
		Vector:    vectors[0],
		Dimension: len(vectors[0]),
		Provider:  ProviderOllama,
		Model:     o.model,
	}, nil
}

func (o *OllamaProvider) Dimension() int {
	return o.dimension
}

func (o *OllamaProvider) Provider() string {
	return ProviderOllama
}

func (o *OllamaProvider) Model() string {
	return o.model
}

func (o *OllamaProvider) Close() error {
	return nil
}
