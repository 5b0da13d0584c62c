package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/riskdesk/internal/common"
)

var errFlaky = errors.New("connection reset")

func newTestGuard(client Client, opts GuardOptions) *Guard {
	if opts.RetryDelay == 0 {
		opts.RetryDelay = time.Millisecond
	}
	if opts.RateLimit == 0 {
		opts.RateLimit = 6000
	}
	return NewGuard(client, opts)
}

func TestGuard_RetriesOnce(t *testing.T) {
	tests := []struct {
		name      string
		mock      *MockClient
		wantText  string
		wantCalls int
		wantErr   bool
	}{
		{
			name:      "first attempt succeeds",
			mock:      NewMockClient("ok"),
			wantText:  "ok",
			wantCalls: 1,
		},
		{
			name:      "second attempt succeeds",
			mock:      (&MockClient{}).Fail(errFlaky).Reply("ok"),
			wantText:  "ok",
			wantCalls: 2,
		},
		{
			name:      "both attempts fail",
			mock:      (&MockClient{}).Fail(errFlaky).Fail(errFlaky).Reply("never"),
			wantCalls: 2,
			wantErr:   true,
		},
		{
			name:      "permanent failure is not retried",
			mock:      (&MockClient{}).Fail(common.Permanent(errFlaky)).Reply("never"),
			wantCalls: 1,
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newTestGuard(tt.mock, GuardOptions{Name: "test-" + tt.name})
			defer g.Close()

			resp, err := g.Complete(context.Background(), Request{Prompt: "p"})
			assert.Equal(t, tt.wantCalls, tt.mock.CallCount())
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, common.ErrProvider)
				assert.ErrorIs(t, err, errFlaky)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantText, resp.Text)
		})
	}
}

func TestGuard_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	mock := &MockClient{Responder: func(Request) (string, error) { return "", errFlaky }}
	g := newTestGuard(mock, GuardOptions{
		Name:             "breaker-test",
		MaxAttempts:      1,
		FailureThreshold: 3,
		OpenTimeout:      time.Minute,
	})
	defer g.Close()

	for i := 0; i < 3; i++ {
		_, err := g.Complete(context.Background(), Request{Prompt: "p"})
		require.Error(t, err)
	}
	assert.Equal(t, gobreaker.StateOpen, g.State())

	before := mock.CallCount()
	_, err := g.Complete(context.Background(), Request{Prompt: "p"})
	require.ErrorIs(t, err, common.ErrProvider)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, before, mock.CallCount(), "open breaker must not reach the provider")
}

func TestGuard_CachesDeterministicRequests(t *testing.T) {
	mock := NewMockClient("TRANSACTIONS", "NO_TRANSACTIONS", "third")
	g := newTestGuard(mock, GuardOptions{Name: "cache-test", CacheTTL: time.Minute})
	defer g.Close()

	deterministic := Request{Prompt: "classify me", Temperature: Temperature(0)}
	first, err := g.Complete(context.Background(), deterministic)
	require.NoError(t, err)
	second, err := g.Complete(context.Background(), deterministic)
	require.NoError(t, err)
	assert.Equal(t, first.Text, second.Text)
	assert.Equal(t, 1, mock.CallCount())

	sampled := Request{Prompt: "classify me"}
	third, err := g.Complete(context.Background(), sampled)
	require.NoError(t, err)
	assert.Equal(t, "NO_TRANSACTIONS", third.Text)
	assert.Equal(t, 2, mock.CallCount())
}

func TestGuard_CallerCancellation(t *testing.T) {
	mock := NewMockClient("unused")
	g := newTestGuard(mock, GuardOptions{Name: "cancel-test"})
	defer g.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := g.Complete(ctx, Request{Prompt: "p"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGuard_AttemptTimeout(t *testing.T) {
	slow := clientFunc(func(ctx context.Context, _ Request) (Response, error) {
		select {
		case <-ctx.Done():
			return Response{}, ctx.Err()
		case <-time.After(time.Second):
			return Response{Text: "late"}, nil
		}
	})
	g := newTestGuard(slow, GuardOptions{Name: "timeout-test", Timeout: 10 * time.Millisecond})
	defer g.Close()

	_, err := g.Complete(context.Background(), Request{Prompt: "p"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.ErrorIs(t, err, common.ErrProvider)
}

type clientFunc func(ctx context.Context, req Request) (Response, error)

func (f clientFunc) Complete(ctx context.Context, req Request) (Response, error) {
	return f(ctx, req)
}
