package embedder

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"
)

// Retry defaults
const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = time.Second
	DefaultMaxDelay    = 20 * time.Second
	BackoffMultiplier  = 2.0
	DefaultJitter      = 0.5
)

// RetryConfig configures exponential backoff retry behavior
type RetryConfig struct {
	MaxAttempts int           // Total attempts including the first
	BaseDelay   time.Duration // Delay before the second attempt
	MaxDelay    time.Duration // Upper bound for any single delay
	Multiplier  float64       // Exponential backoff multiplier
	Jitter      float64       // Fraction of each delay that is randomized, 0..1
}

// DefaultRetryConfig returns sensible defaults for API retry
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
		MaxDelay:    DefaultMaxDelay,
		Multiplier:  BackoffMultiplier,
		Jitter:      DefaultJitter,
	}
}

// delay returns the wait before attempt n+1, where n counts from 1
func (c RetryConfig) delay(n int) time.Duration {
	d := float64(c.BaseDelay)
	for i := 1; i < n; i++ {
		d *= c.Multiplier
		if c.MaxDelay > 0 && d > float64(c.MaxDelay) {
			d = float64(c.MaxDelay)
			break
		}
	}
	if c.Jitter > 0 {
		// Scale into [1-jitter, 1]
		d *= 1 - c.Jitter*rand.Float64()
	}
	return time.Duration(d)
}

// retryWithBackoff executes fn until it succeeds, fails with a non-transient
// error, or MaxAttempts is reached. It returns the number of attempts made.
func retryWithBackoff[T any](ctx context.Context, config RetryConfig, logger *slog.Logger, fn func(context.Context) (T, error)) (T, int, error) {
	var zero T
	attempts := max(config.MaxAttempts, 1)

	for attempt := 1; ; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, attempt, nil
		}

		if ctx.Err() != nil {
			return zero, attempt, ctx.Err()
		}
		if !IsTransient(err) || attempt >= attempts {
			return zero, attempt, err
		}

		wait := config.delay(attempt)
		logger.Debug("transient embedding failure, retrying",
			"attempt", attempt, "max_attempts", attempts, "wait", wait, "error", err)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, attempt, ctx.Err()
		case <-timer.C:
		}
	}
}

// Retrying wraps an Embedder with bounded exponential backoff for
// transient failures
type Retrying struct {
	Embedder
	config RetryConfig
	logger *slog.Logger
}

// NewRetrying returns an Embedder that retries transient failures of next
func NewRetrying(next Embedder, config RetryConfig, logger *slog.Logger) *Retrying {
	if logger == nil {
		logger = slog.Default()
	}
	if config.Multiplier <= 0 {
		config.Multiplier = BackoffMultiplier
	}
	return &Retrying{
		Embedder: next,
		config:   config,
		logger:   logger.With("component", "embedder", "provider", next.Provider()),
	}
}

func (r *Retrying) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	emb, attempts, err := retryWithBackoff(ctx, r.config, r.logger, func(ctx context.Context) (*Embedding, error) {
		return r.Embedder.GenerateEmbedding(ctx, req)
	})
	if err == nil {
		return emb, nil
	}
	if ctx.Err() != nil {
		return nil, err
	}
	if IsTransient(err) {
		return nil, fmt.Errorf("%w after %d attempts: %w", ErrProviderFailed, attempts, err)
	}
	return nil, fmt.Errorf("%w: %w", ErrProviderFailed, err)
}
