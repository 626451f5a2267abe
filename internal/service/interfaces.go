// Package service defines the contracts between the review workflow and its collaborators.
package service

import (
	"context"
	"time"

	"github.com/Veraticus/the-receipts-must-flow/internal/model"
)

// Edits are the reviewer's changes applied to a proposed transaction on approval.
type Edits struct {
	Description   string `json:"description"`
	CategoryID    string `json:"categoryId"`
	Date          string `json:"date"`
	PaymentMethod string `json:"paymentMethod"`
	ContactID     string `json:"contactId,omitempty"`
}

// ApproveResult identifies the durable transaction created by an approval.
type ApproveResult struct {
	TransactionID string `json:"transactionId"`
}

// ReceiptLoader reads receipts and runs document detection.
type ReceiptLoader interface {
	GetReceipt(ctx context.Context, receiptID string) (*model.Receipt, error)
	DetectTransactions(ctx context.Context, receiptID string) (*model.Detection, error)
}

// SequentialBackend persists reviewer decisions for one batch session.
type SequentialBackend interface {
	GetBatchSession(ctx context.Context, batchSessionID string) (*model.BatchSession, error)
	Approve(ctx context.Context, batchSessionID string, transactionIndex int, edits Edits) (ApproveResult, error)
	Skip(ctx context.Context, batchSessionID string, transactionIndex int) error
	CompleteSession(ctx context.Context, batchSessionID string) (*model.BatchSession, error)
}

// ClarificationBackend exchanges clarification turns.
type ClarificationBackend interface {
	CreateClarificationSession(ctx context.Context, batchSessionID string, transactionIndex int) (string, error)
	GetClarificationSession(ctx context.Context, sessionID string) (*model.ClarificationSession, error)
	SendClarificationMessage(ctx context.Context, sessionID, message string) (*model.TurnResponse, error)
}

// ReferenceLoader reads the read-only lookup lists shown on a review card.
type ReferenceLoader interface {
	ListCategories(ctx context.Context) ([]model.Category, error)
	ListContacts(ctx context.Context) ([]model.Contact, error)
	ListBankAccounts(ctx context.Context) ([]model.BankAccount, error)
}

// Backend is everything the workflow needs from the extraction service.
type Backend interface {
	ReceiptLoader
	SequentialBackend
	ClarificationBackend
	ReferenceLoader
}

// Journal actions.
const (
	DecisionApproved  = "approved"
	DecisionSkipped   = "skipped"
	DecisionFinalized = "finalized"
)

// Decision is a reviewer outcome recorded in the local journal.
type Decision struct {
	DecidedAt        time.Time
	BatchSessionID   string
	Action           string
	TransactionID    string
	TransactionIndex int
}

// Journal records reviewer decisions locally.
type Journal interface {
	RecordDecision(ctx context.Context, decision Decision) error
	ListDecisions(ctx context.Context, batchSessionID string) ([]Decision, error)
}

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}
