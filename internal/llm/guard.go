package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/MikeSquared-Agency/shiftbook/internal/apperr"
	"github.com/MikeSquared-Agency/shiftbook/internal/retry"
)

type GuardConfig struct {
	Timeout       time.Duration
	RatePerMinute int
	MaxAttempts   int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
}

// Guard wraps a provider with a shared rate limiter, a per-attempt timeout
// and the retry policy. Failures that survive the policy come back as
// ExternalService errors.
type Guard struct {
	completer Completer
	reader    DocumentReader
	limiter   *rate.Limiter
	timeout   time.Duration
	policy    retry.Policy
	logger    *slog.Logger
}

// NewGuard builds a Guard. Either completer or reader may be nil when the
// provider only serves one role.
func NewGuard(completer Completer, reader DocumentReader, cfg GuardConfig, logger *slog.Logger) *Guard {
	limit := rate.Inf
	burst := 1
	if cfg.RatePerMinute > 0 {
		limit = rate.Limit(float64(cfg.RatePerMinute) / 60.0)
		burst = max(1, cfg.RatePerMinute/10)
	}
	return &Guard{
		completer: completer,
		reader:    reader,
		limiter:   rate.NewLimiter(limit, burst),
		timeout:   cfg.Timeout,
		policy: retry.Policy{
			MaxAttempts: cfg.MaxAttempts,
			BaseDelay:   cfg.BaseDelay,
			MaxDelay:    cfg.MaxDelay,
			Retryable:   IsRetryable,
			Logger:      logger,
		},
		logger: logger,
	}
}

func (g *Guard) Complete(ctx context.Context, system string, messages []Message, maxTokens int) (string, error) {
	if g.completer == nil {
		return "", apperr.Internal("no structuring model configured", nil)
	}
	var out string
	err := g.run(ctx, "llm complete", func(ctx context.Context) error {
		text, err := g.completer.Complete(ctx, system, messages, maxTokens)
		out = text
		return err
	})
	return out, err
}

func (g *Guard) ReadDocument(ctx context.Context, data []byte, mimeType string) (string, error) {
	if g.reader == nil {
		return "", apperr.Internal("no document reader configured", nil)
	}
	var out string
	err := g.run(ctx, "document read", func(ctx context.Context) error {
		text, err := g.reader.ReadDocument(ctx, data, mimeType)
		out = text
		return err
	})
	return out, err
}

func (g *Guard) run(ctx context.Context, op string, fn func(context.Context) error) error {
	err := g.policy.Do(ctx, op, func(ctx context.Context) error {
		if err := g.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit wait: %w", err)
		}
		callCtx := ctx
		if g.timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, g.timeout)
			defer cancel()
		}
		return fn(callCtx)
	})
	if err != nil {
		return apperr.ExternalService(op+" failed", err)
	}
	return nil
}
