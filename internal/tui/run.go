// Package tui is the interactive reviewer for one batch session.
package tui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Veraticus/the-receipts-must-flow/internal/common"
	"github.com/Veraticus/the-receipts-must-flow/internal/review"
	"github.com/Veraticus/the-receipts-must-flow/internal/service"
)

// Run opens the reviewer over stepper and blocks until the reviewer quits or ctx is done.
// A 401 during review ends it with an error wrapping common.ErrUnauthorized.
func Run(ctx context.Context, stepper *review.Stepper, clarifications service.ClarificationBackend, opts ...Option) error {
	cfg := defaultConfig()
	cfg.Stepper = stepper
	cfg.Clarifications = clarifications
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	p := tea.NewProgram(newModel(ctx, cfg),
		tea.WithContext(ctx),
		tea.WithAltScreen(),
	)

	final, err := p.Run()
	if err != nil {
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return fmt.Errorf("%w: review", common.ErrCancelled)
		}
		return fmt.Errorf("TUI error: %w", err)
	}

	m, ok := final.(Model)
	if !ok {
		return fmt.Errorf("TUI returned unexpected model %T", final)
	}
	slog.Debug("Review closed",
		"batch_session_id", stepper.BatchSessionID(),
		"finalized", stepper.Finalized())
	return m.Err()
}
