// Package embedder generates vector embeddings for chunk text using external
// or local providers.
//
// Providers:
//   - openai: OpenAI /v1/embeddings (OPENAI_API_KEY)
//   - jina: Jina AI, same wire format (JINA_API_KEY)
//   - ollama: a local Ollama server through langchaingo (OLLAMA_HOST)
//   - local: offline feature hashing, deterministic, for tests and air-gapped use
//
// # Basic Usage
//
//	emb, err := embedder.New(cfg.Embedding, logger)
//	if err != nil {
//	    return err
//	}
//	defer emb.Close()
//
//	result, err := emb.GenerateEmbedding(ctx, embedder.EmbeddingRequest{
//	    Text: "File: main.go | Lines: 1-12\nfunc main() { ... }",
//	})
//
// # Failure Classification
//
// Providers return *APIError for service failures. Rate limiting (429),
// server errors (5xx) and transport failures are transient; other 4xx
// responses, empty input and dimension mismatches are terminal.
//
// New wraps the provider in Retrying, which retries transient failures with
// exponential backoff and random jitter up to MaxAttempts, and returns
// terminal failures at once. Both come back wrapped in ErrProviderFailed.
//
// # Caching
//
// Cached serves repeated texts from an LRU cache. The search path wraps the
// embedder with it so repeated queries cost one call.
package embedder
