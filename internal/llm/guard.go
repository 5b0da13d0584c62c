package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"github.com/Veraticus/riskdesk/internal/common"
	"github.com/Veraticus/riskdesk/internal/metrics"
	"github.com/Veraticus/riskdesk/internal/service"
)

// GuardOptions configures a Guard. Zero values pick the defaults noted.
type GuardOptions struct {
	Name string
	// Timeout bounds each attempt (default 30s).
	Timeout time.Duration
	// RetryDelay is the pause before the single retry (default 500ms).
	RetryDelay time.Duration
	// CacheTTL enables caching of deterministic (temperature 0) requests.
	CacheTTL time.Duration
	// OpenTimeout is how long the breaker stays open (default 30s).
	OpenTimeout time.Duration
	// RateLimit is requests per minute (default 60).
	RateLimit int
	// MaxAttempts defaults to 2: one call plus one retry.
	MaxAttempts int
	// FailureThreshold is the consecutive failure count that opens the breaker (default 5).
	FailureThreshold uint32
}

// Guard wraps a Client with a per-attempt timeout, a single retry, a token
// bucket rate limiter and a circuit breaker. Every error it returns matches
// common.ErrProvider unless it is a context error from the caller.
type Guard struct {
	client  Client
	limiter *rateLimiter
	breaker *gobreaker.CircuitBreaker
	cache   *responseCache
	opts    GuardOptions
}

// NewGuard wraps client.
func NewGuard(client Client, opts GuardOptions) *Guard {
	if opts.Name == "" {
		opts.Name = "llm"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultHTTPTimeout
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 500 * time.Millisecond
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 2
	}
	if opts.FailureThreshold == 0 {
		opts.FailureThreshold = 5
	}
	if opts.OpenTimeout <= 0 {
		opts.OpenTimeout = 30 * time.Second
	}

	threshold := opts.FailureThreshold
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        opts.Name,
		MaxRequests: 1,
		Timeout:     opts.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("LLM circuit breaker state changed", "provider", name, "from", from.String(), "to", to.String())
			metrics.BreakerTransitions.WithLabelValues(name, to.String()).Inc()
		},
	})

	g := &Guard{
		client:  client,
		limiter: newRateLimiter(opts.RateLimit),
		breaker: breaker,
		opts:    opts,
	}
	if opts.CacheTTL > 0 {
		g.cache = newResponseCache(opts.CacheTTL)
	}
	return g
}

// Complete implements Client.
func (g *Guard) Complete(ctx context.Context, req Request) (Response, error) {
	cacheable := g.cache != nil && req.Temperature != nil && *req.Temperature == 0
	key := ""
	if cacheable {
		key = cacheKey(req)
		if resp, ok := g.cache.get(key); ok {
			metrics.LLMRequests.WithLabelValues(g.opts.Name, "cached").Inc()
			return resp, nil
		}
	}

	start := time.Now()
	var resp Response
	err := common.WithRetry(ctx, func() error {
		if err := g.limiter.wait(ctx); err != nil {
			return common.Permanent(err)
		}

		attemptCtx, cancel := context.WithTimeout(ctx, g.opts.Timeout)
		defer cancel()

		out, err := g.breaker.Execute(func() (any, error) {
			return g.client.Complete(attemptCtx, req)
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return common.Permanent(common.ProviderError(g.opts.Name, err))
		}
		if err != nil {
			return err
		}
		resp = out.(Response)
		return nil
	}, service.RetryOptions{
		MaxAttempts:  g.opts.MaxAttempts,
		InitialDelay: g.opts.RetryDelay,
		MaxDelay:     g.opts.RetryDelay * 4,
	})

	metrics.LLMLatency.WithLabelValues(g.opts.Name).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.LLMRequests.WithLabelValues(g.opts.Name, "error").Inc()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Response{}, fmt.Errorf("%w: %w", ctxErr, common.ProviderError(g.opts.Name, err))
		}
		return Response{}, common.ProviderError(g.opts.Name, err)
	}

	metrics.LLMRequests.WithLabelValues(g.opts.Name, "ok").Inc()
	if cacheable {
		g.cache.set(key, resp)
	}
	return resp, nil
}

// State reports the circuit breaker state.
func (g *Guard) State() gobreaker.State {
	return g.breaker.State()
}

// Close stops background goroutines.
func (g *Guard) Close() {
	g.limiter.Close()
	if g.cache != nil {
		g.cache.Close()
	}
}

func cacheKey(req Request) string {
	h := sha256.New()
	_, _ = fmt.Fprintf(h, "%s\x00%s\x00%t\x00%d", req.System, req.Prompt, req.JSON, req.MaxTokens)
	return hex.EncodeToString(h.Sum(nil))
}
