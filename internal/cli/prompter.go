package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/Veraticus/the-receipts-must-flow/internal/common"
)

// Prompter asks the reviewer simple line-based questions outside the interactive reviewer.
type Prompter struct {
	reader *LineReader
	writer io.Writer
}

// NewPrompter creates a prompter reading from r and writing prompts to w.
func NewPrompter(r io.Reader, w io.Writer) *Prompter {
	return &Prompter{
		reader: NewLineReader(r),
		writer: w,
	}
}

// Token asks for an access token. An empty answer is ErrMissingField.
func (p *Prompter) Token(ctx context.Context) (string, error) {
	if _, err := fmt.Fprint(p.writer, FormatPrompt("Access token")); err != nil {
		return "", fmt.Errorf("failed to write prompt: %w", err)
	}
	token, err := p.reader.ReadLine(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to read token: %w", err)
	}
	if token == "" {
		return "", fmt.Errorf("%w: token", common.ErrMissingField)
	}
	return token, nil
}

// Confirm asks a yes/no question. An empty answer takes the default.
func (p *Prompter) Confirm(ctx context.Context, question string, defaultYes bool) (bool, error) {
	suffix := "[y/N]"
	if defaultYes {
		suffix = "[Y/n]"
	}
	if _, err := fmt.Fprint(p.writer, FormatPrompt(question+" "+suffix)); err != nil {
		return false, fmt.Errorf("failed to write prompt: %w", err)
	}

	answer, err := p.reader.ReadLine(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to read answer: %w", err)
	}

	switch strings.ToLower(answer) {
	case "":
		return defaultYes, nil
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}
