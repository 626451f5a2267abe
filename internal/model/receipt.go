// Package model defines the receipt, batch session and extraction records exchanged with the
// extraction backend.
package model

import (
	"time"
)

// ReceiptStatus is the backend processing status of an uploaded document.
type ReceiptStatus string

const (
	ReceiptPending    ReceiptStatus = "pending"
	ReceiptProcessing ReceiptStatus = "processing"
	ReceiptProcessed  ReceiptStatus = "processed"
	ReceiptFailed     ReceiptStatus = "failed"
)

// ReceiptMetadata carries the OCR statistics recorded at extraction time.
type ReceiptMetadata struct {
	PageCount        int     `json:"pageCount"`
	OCRConfidence    float64 `json:"ocrConfidence"`
	ProcessingTimeMs int64   `json:"processingTimeMs"`
}

// Receipt is an uploaded receipt or bank statement.
// The review workflow never mutates it; ProcessingStatus only moves through backend calls.
type Receipt struct {
	CreatedAt                time.Time          `json:"createdAt"`
	RawOCRText               *string            `json:"rawOcrText"`
	Metadata                 *ReceiptMetadata   `json:"metadata,omitempty"`
	ID                       string             `json:"id"`
	ProcessingStatus         ReceiptStatus      `json:"processingStatus"`
	Transactions             []FinalTransaction `json:"transactions"`
	BatchSessions            []BatchSession     `json:"batchSessions"`
	ExpectedTransactionCount int                `json:"expectedTransactionCount"`
}

// FinalTransaction is the durable transaction created when an extraction is approved.
// The review workflow treats it as an opaque write target.
type FinalTransaction struct {
	CreatedAt   time.Time `json:"createdAt"`
	ID          string    `json:"id"`
	Description string    `json:"description"`
	Currency    string    `json:"currency"`
	Amount      float64   `json:"amount"`
}

// Detection is the document-type detection result of POST /receipt/extract/{id}.
type Detection struct {
	DocumentType     string  `json:"document_type"`
	Confidence       float64 `json:"confidence"`
	TransactionCount int     `json:"transaction_count"`
}

// Found reports whether the detector saw any transactions at all.
func (d Detection) Found() bool {
	return d.TransactionCount > 0
}
