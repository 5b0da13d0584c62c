package cli

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// syncBuffer provides thread-safe access to a bytes.Buffer.
type syncBuffer struct {
	buf bytes.Buffer
	mu  sync.Mutex
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

func TestNewInterruptHandler_DefaultsToStdout(t *testing.T) {
	h := NewInterruptHandler(nil)
	assert.NotNil(t, h.writer)
	assert.False(t, h.WasInterrupted())
}

func TestInterruptHandler_InterruptCancelsOnce(t *testing.T) {
	out := &syncBuffer{}
	h := NewInterruptHandler(out)

	ctx, stop := h.HandleInterrupts(context.Background(), "Scored pages are cached; rerun to continue.")
	defer stop()

	require.NoError(t, ctx.Err())
	h.interrupt()
	h.interrupt()

	<-ctx.Done()
	assert.True(t, h.WasInterrupted())
	assert.Equal(t, 1, strings.Count(out.String(), "Interrupted."))
	assert.Contains(t, out.String(), "rerun to continue")
}

func TestInterruptHandler_StopCancelsWithoutMessage(t *testing.T) {
	out := &syncBuffer{}
	h := NewInterruptHandler(out)

	ctx, stop := h.HandleInterrupts(context.Background(), "")
	stop()
	stop()

	<-ctx.Done()
	assert.False(t, h.WasInterrupted())
	assert.Empty(t, out.String())
}
