package testutil

import (
	"fmt"
	"time"

	"github.com/Veraticus/the-receipts-must-flow/internal/model"
)

// FixtureTime is the creation time used by fixtures.
var FixtureTime = time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)

// ReadyExtraction returns a renderable record that can be approved directly.
func ReadyExtraction(index int) model.TransactionExtraction {
	return model.TransactionExtraction{
		TransactionIndex: index,
		ConfidenceScore:  0.92,
		Transaction: &model.TransactionPayload{
			Amount:        float64(10 * (index + 1)),
			Currency:      "EUR",
			Description:   fmt.Sprintf("Purchase %d", index+1),
			PaymentMethod: "card",
			Time:          "2026-09-30",
			Category:      "Groceries",
			To:            &model.Party{Name: "Corner Shop"},
		},
		EnrichmentData: &model.EnrichmentData{
			CategoryID:        "cat-groceries",
			ContactID:         "ct-shop",
			FromBankAccountID: "ba-1",
		},
	}
}

// UnclearExtraction returns a record the AI could not turn into a transaction.
func UnclearExtraction(index int) model.TransactionExtraction {
	return model.TransactionExtraction{
		TransactionIndex:   index,
		ConfidenceScore:    0.31,
		NeedsClarification: true,
		Notes:              "Who was the payee?",
	}
}

// BatchSession builds an in-progress session over the given records.
func BatchSession(id, receiptID string, txns ...model.TransactionExtraction) model.BatchSession {
	return model.BatchSession{
		ID:            id,
		ReceiptID:     receiptID,
		Status:        model.SessionInProgress,
		CreatedAt:     FixtureTime,
		UpdatedAt:     FixtureTime,
		TotalExpected: len(txns),
		ExtractedData: model.ExtractedData{Transactions: txns},
	}
}

// Receipt builds a processed receipt carrying the given sessions.
func Receipt(id string, sessions ...model.BatchSession) model.Receipt {
	expected := 0
	if len(sessions) > 0 {
		expected = len(sessions[len(sessions)-1].ExtractedData.Transactions)
	}
	return model.Receipt{
		ID:                       id,
		ProcessingStatus:         model.ReceiptProcessed,
		CreatedAt:                FixtureTime,
		ExpectedTransactionCount: expected,
		BatchSessions:            sessions,
	}
}

// Bool returns a pointer to b.
func Bool(b bool) *bool { return &b }

// String returns a pointer to s.
func String(s string) *string { return &s }
