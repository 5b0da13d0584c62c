package llm

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// ErrNoMockResponse is returned when a MockClient runs out of scripted replies.
var ErrNoMockResponse = errors.New("mock client has no scripted response")

// MockReply is one scripted outcome.
type MockReply struct {
	Err  error
	Text string
}

// MockClient is a scripted Client for tests and offline runs. Replies are
// consumed in order; a Responder, when set, takes precedence.
type MockClient struct {
	Responder func(req Request) (string, error)
	replies   []MockReply
	calls     []Request
	mu        sync.Mutex
}

// NewMockClient returns a client that replies with texts in order.
func NewMockClient(texts ...string) *MockClient {
	m := &MockClient{}
	for _, t := range texts {
		m.replies = append(m.replies, MockReply{Text: t})
	}
	return m
}

// Reply queues a successful reply.
func (m *MockClient) Reply(text string) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replies = append(m.replies, MockReply{Text: text})
	return m
}

// Fail queues an error reply.
func (m *MockClient) Fail(err error) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replies = append(m.replies, MockReply{Err: err})
	return m
}

// Complete implements Client.
func (m *MockClient) Complete(ctx context.Context, req Request) (Response, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	responder := m.Responder
	var reply *MockReply
	if responder == nil && len(m.replies) > 0 {
		reply = &m.replies[0]
		m.replies = m.replies[1:]
	}
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return Response{}, err
	}

	if responder != nil {
		text, err := responder(req)
		if err != nil {
			return Response{}, err
		}
		return Response{Text: text, Model: "mock"}, nil
	}
	if reply == nil {
		return Response{}, ErrNoMockResponse
	}
	if reply.Err != nil {
		return Response{}, reply.Err
	}
	return Response{Text: reply.Text, Model: "mock"}, nil
}

// Calls returns a copy of the recorded requests.
func (m *MockClient) Calls() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns the number of requests seen.
func (m *MockClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// CallsContaining counts requests whose prompt contains substr.
func (m *MockClient) CallsContaining(substr string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if strings.Contains(c.Prompt, substr) {
			n++
		}
	}
	return n
}
