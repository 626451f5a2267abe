package tui

import (
	"fmt"
	"time"

	"github.com/Veraticus/the-receipts-must-flow/internal/card"
	"github.com/Veraticus/the-receipts-must-flow/internal/clarify"
	"github.com/Veraticus/the-receipts-must-flow/internal/common"
	"github.com/Veraticus/the-receipts-must-flow/internal/review"
	"github.com/Veraticus/the-receipts-must-flow/internal/service"
	"github.com/Veraticus/the-receipts-must-flow/internal/tui/themes"
)

// Config holds TUI configuration.
type Config struct {
	Theme          themes.Theme
	Stepper        *review.Stepper
	Clarifications service.ClarificationBackend
	Reference      *card.Reference
	ReceiptID      string
	ResolveDelay   time.Duration
	Width          int
	Height         int
	ShowHelp       bool
}

// Option is a functional option for configuring the TUI.
type Option func(*Config)

// defaultConfig returns the default configuration.
func defaultConfig() Config {
	return Config{
		Theme:        themes.Default,
		ResolveDelay: clarify.DefaultResolveDelay,
		Width:        80,
		Height:       24,
	}
}

// WithTheme sets the color theme.
func WithTheme(theme themes.Theme) Option {
	return func(c *Config) {
		c.Theme = theme
	}
}

// WithReference sets the category and contact lists shown on the card.
func WithReference(ref *card.Reference) Option {
	return func(c *Config) {
		c.Reference = ref
	}
}

// WithResolveDelay sets the pause before a resolved clarification closes.
func WithResolveDelay(d time.Duration) Option {
	return func(c *Config) {
		c.ResolveDelay = d
	}
}

// WithReceiptID labels the review with the receipt it came from.
func WithReceiptID(id string) Option {
	return func(c *Config) {
		c.ReceiptID = id
	}
}

// WithSize sets the initial terminal dimensions.
func WithSize(width, height int) Option {
	return func(c *Config) {
		c.Width = width
		c.Height = height
	}
}

// WithFullHelp shows the full key help instead of the one-line summary.
func WithFullHelp() Option {
	return func(c *Config) {
		c.ShowHelp = true
	}
}

// Validate checks that the reviewer has everything it needs.
func (c Config) Validate() error {
	if c.Stepper == nil {
		return fmt.Errorf("%w: stepper", common.ErrNoActiveSession)
	}
	if c.Clarifications == nil {
		return fmt.Errorf("%w: clarification backend", common.ErrMissingConfig)
	}
	if c.ResolveDelay < 0 {
		return fmt.Errorf("%w: resolve delay must not be negative", common.ErrInvalidConfig)
	}
	return nil
}
