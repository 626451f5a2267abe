package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/Veraticus/the-receipts-must-flow/internal/service"
)

var _ service.Journal = (*SQLiteStorage)(nil)

// RecordDecision appends a reviewer decision to the journal.
func (s *SQLiteStorage) RecordDecision(ctx context.Context, d service.Decision) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateDecision(d); err != nil {
		return err
	}

	var txnID sql.NullString
	if d.TransactionID != "" {
		txnID = sql.NullString{String: d.TransactionID, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO review_decisions (batch_session_id, transaction_index, action, transaction_id, decided_at)
		VALUES (?, ?, ?, ?, ?)
	`, d.BatchSessionID, d.TransactionIndex, d.Action, txnID, d.DecidedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to record decision: %w", err)
	}

	slog.Debug("Recorded review decision",
		"batch_session_id", d.BatchSessionID,
		"transaction_index", d.TransactionIndex,
		"action", d.Action)

	return nil
}

// ListDecisions returns the journal for one batch session in the order it was written.
func (s *SQLiteStorage) ListDecisions(ctx context.Context, batchSessionID string) ([]service.Decision, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(batchSessionID, "batchSessionID"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT batch_session_id, transaction_index, action, transaction_id, decided_at
		FROM review_decisions
		WHERE batch_session_id = ?
		ORDER BY id
	`, batchSessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query decisions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var decisions []service.Decision
	for rows.Next() {
		var (
			d     service.Decision
			txnID sql.NullString
		)
		if err := rows.Scan(&d.BatchSessionID, &d.TransactionIndex, &d.Action, &txnID, &d.DecidedAt); err != nil {
			return nil, fmt.Errorf("failed to scan decision: %w", err)
		}
		d.TransactionID = txnID.String
		decisions = append(decisions, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate decisions: %w", err)
	}

	return decisions, nil
}
