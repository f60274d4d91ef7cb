package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"math"
	"net/http"
	"strings"
	"time"
	"unicode"
)

// Provider configuration
const (
	ProviderJina   = "jina"
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
	ProviderLocal  = "local"

	// Default models
	DefaultJinaModel   = "jina-embeddings-v3"
	DefaultOpenAIModel = "text-embedding-3-large"
	DefaultOllamaModel = "nomic-embed-text"
	DefaultLocalModel  = "local-hashing"

	// Default endpoints
	DefaultJinaURL   = "https://api.jina.ai/v1"
	DefaultOpenAIURL = "https://api.openai.com/v1"
	DefaultOllamaURL = "http://localhost:11434"

	LocalDimension = 384

	// maxErrorBody bounds how much of an error response is kept
	maxErrorBody = 1024
)

// knownDimensions lists the native output size of common models
var knownDimensions = map[string]int{
	"text-embedding-3-large":       3072,
	"text-embedding-3-small":       1536,
	"text-embedding-ada-002":       1536,
	"jina-embeddings-v3":           1024,
	"jina-embeddings-v2-base-code": 768,
	"nomic-embed-text":             768,
}

// HTTPProvider implements Embedder against an OpenAI-compatible
// /embeddings endpoint. OpenAI and Jina share the wire format.
type HTTPProvider struct {
	name       string
	apiKey     string
	model      string
	baseURL    string
	dimension  int
	sendDims   bool // request a reduced dimension explicitly
	httpClient *http.Client
}

func newHTTPProvider(name, apiKey, model, baseURL, defaultModel, defaultURL string, dimension int) *HTTPProvider {
	if model == "" {
		model = defaultModel
	}
	if baseURL == "" {
		baseURL = defaultURL
	}
	native := knownDimensions[model]
	p := &HTTPProvider{
		name:      name,
		apiKey:    apiKey,
		model:     model,
		baseURL:   strings.TrimRight(baseURL, "/"),
		dimension: dimension,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
	if dimension == 0 {
		p.dimension = native
	} else if native != 0 && dimension != native {
		p.sendDims = true
	}
	return p
}

// NewOpenAIProvider creates a new OpenAI embedder
func NewOpenAIProvider(apiKey, model, baseURL string, dimension int) (*HTTPProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: OPENAI_API_KEY not set", ErrNoProviderEnabled)
	}
	return newHTTPProvider(ProviderOpenAI, apiKey, model, baseURL, DefaultOpenAIModel, DefaultOpenAIURL, dimension), nil
}

// NewJinaProvider creates a new Jina AI embedder
func NewJinaProvider(apiKey, model, baseURL string, dimension int) (*HTTPProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: JINA_API_KEY not set", ErrNoProviderEnabled)
	}
	return newHTTPProvider(ProviderJina, apiKey, model, baseURL, DefaultJinaModel, DefaultJinaURL, dimension), nil
}

func (p *HTTPProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}

	vector, model, err := p.callAPI(ctx, req.Text)
	if err != nil {
		return nil, err
	}
	if err := checkDimension(p.name, vector, p.dimension); err != nil {
		return nil, err
	}

	return &Embedding{
		Vector:    vector,
		Dimension: len(vector),
		Provider:  p.name,
		Model:     model,
	}, nil
}

func (p *HTTPProvider) callAPI(ctx context.Context, text string) ([]float32, string, error) {
	reqBody := map[string]interface{}{
		"input": []string{text},
		"model": p.model,
	}
	if p.sendDims {
		reqBody["dimensions"] = p.dimension
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, "", fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, "", &APIError{Provider: p.name, Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, "", &APIError{
			Provider:   p.name,
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(bodyBytes)),
		}
	}

	var apiResp struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		} `json:"data"`
		Model string `json:"model"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		// A truncated body is a transport problem, not a rejection
		return nil, "", &APIError{Provider: p.name, Err: fmt.Errorf("decode response: %w", err)}
	}
	if len(apiResp.Data) == 0 {
		return nil, "", fmt.Errorf("%w: %s returned no embeddings", ErrProviderFailed, p.name)
	}

	model := apiResp.Model
	if model == "" {
		model = p.model
	}
	return apiResp.Data[0].Embedding, model, nil
}

func (p *HTTPProvider) Dimension() int {
	return p.dimension
}

func (p *HTTPProvider) Provider() string {
	return p.name
}

func (p *HTTPProvider) Model() string {
	return p.model
}

func (p *HTTPProvider) Close() error {
	p.httpClient.CloseIdleConnections()
	return nil
}

// LocalProvider embeds text offline by feature hashing its identifiers into
// a fixed number of buckets. Texts sharing vocabulary score close under
// cosine similarity; it needs no network and is deterministic.
type LocalProvider struct {
	model     string
	dimension int
}

// NewLocalProvider creates a new local embedder
func NewLocalProvider(dimension int) *LocalProvider {
	if dimension <= 0 {
		dimension = LocalDimension
	}
	return &LocalProvider{
		model:     DefaultLocalModel,
		dimension: dimension,
	}
}

func (l *LocalProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vector := make([]float32, l.dimension)
	words := strings.FieldsFunc(strings.ToLower(req.Text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
	for _, w := range words {
		h := fnv.New64a()
		_, _ = h.Write([]byte(w))
		sum := h.Sum64()
		sign := float32(1)
		if sum>>63 == 1 {
			sign = -1
		}
		vector[sum%uint64(l.dimension)] += sign
	}
	vector = NormalizeVector(vector)

	return &Embedding{
		Vector:    vector,
		Dimension: l.dimension,
		Provider:  ProviderLocal,
		Model:     l.model,
	}, nil
}

func (l *LocalProvider) Dimension() int {
	return l.dimension
}

func (l *LocalProvider) Provider() string {
	return ProviderLocal
}

func (l *LocalProvider) Model() string {
	return l.model
}

func (l *LocalProvider) Close() error {
	return nil
}

// NormalizeVector normalizes a vector to unit length (for cosine similarity)
func NormalizeVector(v []float32) []float32 {
	var sum float64
	for _, val := range v {
		sum += float64(val) * float64(val)
	}

	if sum == 0 {
		return v
	}

	norm := float32(math.Sqrt(sum))
	result := make([]float32, len(v))
	for i, val := range v {
		result[i] = val / norm
	}

	return result
}
