package tui

import (
	"github.com/Veraticus/the-receipts-must-flow/internal/clarify"
	"github.com/Veraticus/the-receipts-must-flow/internal/model"
	"github.com/Veraticus/the-receipts-must-flow/internal/review"
)

// Operation names a backend write started from the card.
type Operation string

const (
	OpApprove  Operation = "approve"
	OpSkip     Operation = "skip"
	OpFinalize Operation = "finalize"
)

// Review operation messages.
type operationDoneMsg struct {
	err      error
	op       Operation
	outcome  review.Outcome
	position int
}

type referenceLoadedMsg struct {
	err error
}

// Clarification messages.
type clarifyOpenedMsg struct {
	err        error
	controller *clarify.Controller
}

type clarifyReplyMsg struct {
	err error
}

type clarifyResolvedMsg struct {
	entry            model.TurnEntry
	transactionIndex int
}
