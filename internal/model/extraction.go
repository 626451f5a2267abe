package model

import (
	"encoding/json"
	"time"
)

// SessionStatus represents the lifecycle of a batch session.
type SessionStatus string

const (
	// SessionInProgress indicates transactions are still awaiting review.
	SessionInProgress SessionStatus = "in_progress"
	// SessionCompleted indicates every transaction was approved or skipped.
	SessionCompleted SessionStatus = "completed"
	// SessionFailed indicates the extraction call itself failed.
	SessionFailed SessionStatus = "failed"
)

// ProcessingStatus is the reviewer's disposition of one extraction.
// The zero value means the record was never processed.
type ProcessingStatus string

const (
	// ProcessingUnset means no approve or skip was ever recorded.
	ProcessingUnset ProcessingStatus = ""
	// ProcessingApproved means a durable transaction was created.
	ProcessingApproved ProcessingStatus = "approved"
	// ProcessingSkipped means the reviewer passed over the record.
	ProcessingSkipped ProcessingStatus = "skipped"
)

// Terminal reports whether the status is approved or skipped.
// Unknown strings from the backend are preserved and count as not terminal.
func (s ProcessingStatus) Terminal() bool {
	return s == ProcessingApproved || s == ProcessingSkipped
}

// BatchSession is one extraction run over a receipt.
type BatchSession struct {
	CreatedAt      time.Time     `json:"createdAt"`
	UpdatedAt      time.Time     `json:"updatedAt"`
	ID             string        `json:"id"`
	ReceiptID      string        `json:"receiptId"`
	Status         SessionStatus `json:"status"`
	ExtractedData  ExtractedData `json:"extractedData"`
	TotalExpected  int           `json:"totalExpected"`
	TotalProcessed int           `json:"totalProcessed"`
	CurrentIndex   int           `json:"currentIndex"`
}

// ExtractedData is the per-transaction payload of a batch session.
type ExtractedData struct {
	Transactions []TransactionExtraction `json:"transactions"`
}

// Party is one side of a proposed transaction.
type Party struct {
	Name          string `json:"name"`
	AccountNumber string `json:"account_number,omitempty"`
}

// TransactionPayload is the concrete transaction the AI proposes.
type TransactionPayload struct {
	From          *Party  `json:"from,omitempty"`
	To            *Party  `json:"to,omitempty"`
	Currency      string  `json:"currency"`
	Description   string  `json:"description"`
	PaymentMethod string  `json:"payment_method"`
	Time          string  `json:"time"`
	Category      string  `json:"category"`
	Amount        float64 `json:"amount"`
}

// EnrichmentData holds backend-resolved references for a proposed transaction.
type EnrichmentData struct {
	ContactID         string `json:"contact_id,omitempty"`
	CategoryID        string `json:"category_id,omitempty"`
	FromBankAccountID string `json:"from_bank_account_id,omitempty"`
	ToBankAccountID   string `json:"to_bank_account_id,omitempty"`
	IsSelfTransaction bool   `json:"is_self_transaction"`
}

// TransactionExtraction is one AI-proposed transaction inside a batch session.
// Transaction and EnrichmentData are nil together when there is nothing concrete to render.
type TransactionExtraction struct {
	Transaction            *TransactionPayload `json:"transaction"`
	EnrichmentData         *EnrichmentData     `json:"enrichment_data"`
	ClarificationSessionID *string             `json:"clarification_session_id"`
	ProcessingStatus       ProcessingStatus    `json:"processing_status,omitempty"`
	Notes                  string              `json:"notes"`
	TransactionIndex       int                 `json:"transaction_index"`
	ConfidenceScore        float64             `json:"confidence_score"`
	NeedsClarification     bool                `json:"needs_clarification"`
	NeedsConfirmation      bool                `json:"needs_confirmation"`
}

// Renderable reports whether the record carries a concrete transaction.
func (x TransactionExtraction) Renderable() bool {
	return x.Transaction != nil && x.EnrichmentData != nil
}

// Clone returns a deep copy so drafts never alias the authoritative list.
func (x TransactionExtraction) Clone() TransactionExtraction {
	c := x
	if x.Transaction != nil {
		t := *x.Transaction
		if x.Transaction.From != nil {
			from := *x.Transaction.From
			t.From = &from
		}
		if x.Transaction.To != nil {
			to := *x.Transaction.To
			t.To = &to
		}
		c.Transaction = &t
	}
	if x.EnrichmentData != nil {
		e := *x.EnrichmentData
		c.EnrichmentData = &e
	}
	if x.ClarificationSessionID != nil {
		id := *x.ClarificationSessionID
		c.ClarificationSessionID = &id
	}
	return c
}

// ExtractionResult is the payload of the terminal "complete" progress event.
type ExtractionResult struct {
	BatchSessionID        string                  `json:"batch_session_id"`
	ProcessingNotes       string                  `json:"processing_notes"`
	Transactions          []TransactionExtraction `json:"transactions"`
	TotalTransactions     int                     `json:"total_transactions"`
	SuccessfullyInitiated int                     `json:"successfully_initiated"`
	OverallConfidence     float64                 `json:"overall_confidence"`
}

// UnmarshalJSON accepts processing_status as a string or null.
func (s *ProcessingStatus) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*s = ProcessingUnset
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = ProcessingStatus(raw)
	return nil
}
