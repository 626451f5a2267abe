package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/the-receipts-must-flow/internal/service"
)

// Validation errors.
var (
	ErrNilContext      = errors.New("context cannot be nil")
	ErrEmptyString     = errors.New("string parameter cannot be empty")
	ErrInvalidDecision = errors.New("invalid decision")
)

func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

func validateDecision(d service.Decision) error {
	if strings.TrimSpace(d.BatchSessionID) == "" {
		return fmt.Errorf("%w: batch session ID is required", ErrInvalidDecision)
	}
	if d.TransactionIndex < 0 {
		return fmt.Errorf("%w: transaction index must be non-negative", ErrInvalidDecision)
	}
	switch d.Action {
	case service.DecisionApproved, service.DecisionSkipped, service.DecisionFinalized:
	default:
		return fmt.Errorf("%w: unknown action %q", ErrInvalidDecision, d.Action)
	}
	return nil
}
