package progress

import "bytes"

// LineTokenizer splits a byte stream into newline-terminated lines.
// An unterminated tail is held until a later Push completes it or Flush releases it.
type LineTokenizer struct {
	pending []byte
}

// Push consumes one chunk and returns every line it completed, without terminators.
func (t *LineTokenizer) Push(chunk []byte) []string {
	var lines []string
	for len(chunk) > 0 {
		i := bytes.IndexByte(chunk, '\n')
		if i < 0 {
			t.pending = append(t.pending, chunk...)
			break
		}
		var line []byte
		if len(t.pending) > 0 {
			line = append(t.pending, chunk[:i]...)
			t.pending = nil
		} else {
			line = chunk[:i]
		}
		lines = append(lines, string(bytes.TrimSuffix(line, []byte{'\r'})))
		chunk = chunk[i+1:]
	}
	return lines
}

// Flush returns the unterminated tail, if any, and resets the tokenizer.
func (t *LineTokenizer) Flush() (string, bool) {
	if len(t.pending) == 0 {
		return "", false
	}
	line := string(bytes.TrimSuffix(t.pending, []byte{'\r'}))
	t.pending = nil
	return line, true
}
