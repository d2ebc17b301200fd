package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sitebrain/sitebrain/internal/core"
	"github.com/sitebrain/sitebrain/internal/metrics"
)

// RetryConfig controls the retry budget around an embedding engine.
type RetryConfig struct {
	MaxAttempts int
	BackoffBase time.Duration
}

// Retry wraps an embedding engine with exponential backoff. With the default
// budget a transient provider failure is retried after 1s then 2s then 4s;
// once the budget is exhausted the caller sees core.ErrEmbeddingFailed.
type Retry struct {
	inner  core.Embedder
	cfg    RetryConfig
	logger *zap.Logger
	sleep  func(context.Context, time.Duration) error
}

// NewRetry wraps inner with the configured retry budget.
func NewRetry(inner core.Embedder, cfg RetryConfig, logger *zap.Logger) *Retry {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retry{
		inner:  inner,
		cfg:    cfg,
		logger: logger,
		sleep:  sleepCtx,
	}
}

// Embed calls the wrapped engine, retrying transient failures. Context
// cancellation is never retried.
func (r *Retry) Embed(ctx context.Context, text string) ([]float32, error) {
	var lastErr error
	for attempt := 1; attempt <= r.cfg.MaxAttempts; attempt++ {
		vec, err := r.inner.Embed(ctx, text)
		if err == nil {
			metrics.ObserveEmbedding("success")
			return vec, nil
		}
		metrics.ObserveEmbedding("error")
		lastErr = err

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("embed: %w", err)
		}
		if attempt == r.cfg.MaxAttempts {
			break
		}

		backoff := r.cfg.BackoffBase << (attempt - 1)
		r.logger.Warn("embedding attempt failed, backing off",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)
		if err := r.sleep(ctx, backoff); err != nil {
			return nil, fmt.Errorf("embed backoff: %w", err)
		}
	}
	return nil, fmt.Errorf("%w: %d attempts: %v", core.ErrEmbeddingFailed, r.cfg.MaxAttempts, lastErr)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
