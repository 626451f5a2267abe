package cli

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// syncBuffer provides thread-safe access to a bytes.Buffer.
type syncBuffer struct {
	buf bytes.Buffer
	mu  sync.Mutex
}

func (s *syncBuffer) Write(p []byte) (n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

func TestNewInterruptHandler(t *testing.T) {
	tests := []struct {
		writer io.Writer
		name   string
	}{
		{
			name:   "with custom writer",
			writer: &bytes.Buffer{},
		},
		{
			name:   "with nil writer",
			writer: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewInterruptHandler(tt.writer, nil)
			assert.NotNil(t, handler)
			assert.NotNil(t, handler.writer)
			assert.False(t, handler.WasInterrupted())
		})
	}
}

func TestHandleInterrupts_Signal(t *testing.T) {
	output := &syncBuffer{}
	var calls atomic.Int32
	handler := NewInterruptHandler(output, func() { calls.Add(1) })

	ctx := handler.HandleInterrupts(context.Background(), "receipts process rcpt-1")

	require.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGINT))

	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("context was not cancelled by SIGINT")
	}

	assert.True(t, handler.WasInterrupted())
	assert.Equal(t, int32(1), calls.Load())
	outputStr := output.String()
	assert.Contains(t, outputStr, "Extraction cancelled")
	assert.Contains(t, outputStr, "Resume with: receipts process rcpt-1")
}

func TestHandleInterrupts_ParentCancelIsQuiet(t *testing.T) {
	output := &syncBuffer{}
	handler := NewInterruptHandler(output, nil)

	parent, cancel := context.WithCancel(context.Background())
	ctx := handler.HandleInterrupts(parent, "")
	cancel()

	<-ctx.Done()
	time.Sleep(20 * time.Millisecond)

	assert.False(t, handler.WasInterrupted())
	assert.Empty(t, output.String())
}

func TestInterruptOnlyOnce(t *testing.T) {
	output := &syncBuffer{}
	var calls atomic.Int32
	handler := NewInterruptHandler(output, func() { calls.Add(1) })
	ctx := handler.HandleInterrupts(context.Background(), "")

	handler.interrupt()
	handler.interrupt()

	<-ctx.Done()
	assert.Equal(t, 1, strings.Count(output.String(), "Extraction cancelled"))
	assert.Equal(t, int32(1), calls.Load())
}

func TestShowInterruptMessage(t *testing.T) {
	tests := []struct {
		name        string
		resumeHint  string
		expected    []string
		notExpected []string
	}{
		{
			name:       "with resume hint",
			resumeHint: "receipts review rcpt-9",
			expected: []string{
				"Extraction cancelled",
				"Resume with: receipts review rcpt-9",
			},
		},
		{
			name: "without resume hint",
			expected: []string{
				"Extraction cancelled",
			},
			notExpected: []string{
				"Resume with",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var output bytes.Buffer
			handler := &InterruptHandler{
				writer:     &output,
				resumeHint: tt.resumeHint,
			}

			handler.showInterruptMessage()

			outputStr := output.String()
			for _, expected := range tt.expected {
				assert.Contains(t, outputStr, expected)
			}
			for _, notExpected := range tt.notExpected {
				assert.NotContains(t, outputStr, notExpected)
			}
		})
	}
}
