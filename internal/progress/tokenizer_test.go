package progress

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const samplePayload = "data: {\"type\":\"connected\"}\n\n" +
	"data: {\"type\":\"progress\",\"step\":\"validating_receipt\",\"message\":\"Validating\",\"progress\":5}\n\n" +
	"data: {\"type\":\"progress\",\"step\":\"invoking_ai\",\"message\":\"Reading\",\"progress\":40}\r\n\r\n" +
	"data: {\"type\":\"complete\",\"data\":{\"batch_session_id\":\"bs-1\",\"total_transactions\":3}}\n"

func tokenizeAll(chunks [][]byte) []string {
	var tok LineTokenizer
	var lines []string
	for _, chunk := range chunks {
		lines = append(lines, tok.Push(chunk)...)
	}
	if tail, ok := tok.Flush(); ok {
		lines = append(lines, tail)
	}
	return lines
}

func TestLineTokenizer_ChunkBoundaryIndependent(t *testing.T) {
	payload := []byte(samplePayload)
	want := tokenizeAll([][]byte{payload})

	// Every two-way split.
	for i := 0; i <= len(payload); i++ {
		got := tokenizeAll([][]byte{payload[:i], payload[i:]})
		assert.Equal(t, want, got, "split at %d", i)
	}

	// Byte at a time.
	var single [][]byte
	for i := range payload {
		single = append(single, payload[i:i+1])
	}
	assert.Equal(t, want, tokenizeAll(single))

	// Uneven strides.
	for _, stride := range []int{2, 3, 7, 13, 64} {
		var chunks [][]byte
		for i := 0; i < len(payload); i += stride {
			end := min(i+stride, len(payload))
			chunks = append(chunks, payload[i:end])
		}
		assert.Equal(t, want, tokenizeAll(chunks), "stride %d", stride)
	}
}

func TestLineTokenizer_HoldsPartialLine(t *testing.T) {
	var tok LineTokenizer

	assert.Empty(t, tok.Push([]byte("data: {\"type\":")))
	assert.Equal(t, []string{`data: {"type":"connected"}`}, tok.Push([]byte("\"connected\"}\nda")))
	assert.Equal(t, []string{"data: x"}, tok.Push([]byte("ta: x\r\n")))

	_, ok := tok.Flush()
	assert.False(t, ok)
}

func TestLineTokenizer_FlushReturnsTail(t *testing.T) {
	var tok LineTokenizer
	assert.Empty(t, tok.Push([]byte(`data: {"type":"error","message":"x"}`)))

	tail, ok := tok.Flush()
	assert.True(t, ok)
	assert.Equal(t, `data: {"type":"error","message":"x"}`, tail)

	_, ok = tok.Flush()
	assert.False(t, ok)
}

func TestLineTokenizer_DoesNotAliasInput(t *testing.T) {
	var tok LineTokenizer
	buf := []byte("data: abc")
	tok.Push(buf)
	copy(buf, "XXXXXXXXX")

	lines := tok.Push([]byte("\n"))
	assert.Equal(t, []string{"data: abc"}, lines)
}
