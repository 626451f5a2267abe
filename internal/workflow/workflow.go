// Package workflow ties session resolution, extraction and review into one receipt workflow.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Veraticus/the-receipts-must-flow/internal/common"
	"github.com/Veraticus/the-receipts-must-flow/internal/model"
	"github.com/Veraticus/the-receipts-must-flow/internal/progress"
	"github.com/Veraticus/the-receipts-must-flow/internal/review"
	"github.com/Veraticus/the-receipts-must-flow/internal/service"
	"github.com/Veraticus/the-receipts-must-flow/internal/session"
)

// Extractor starts extraction progress streams.
type Extractor interface {
	Start(ctx context.Context, receiptID, bankAccountID string, handler progress.Handler) *progress.Stream
}

// Workflow drives one receipt from session resolution through review.
type Workflow struct {
	backend     service.Backend
	extractor   Extractor
	receipt     *model.Receipt
	stream      *progress.Stream
	cancel      context.CancelFunc
	err         error
	stepperOpts []review.Option
	resolution  session.Resolution
	mu          sync.Mutex
	processing  bool
}

// Option configures a Workflow.
type Option func(*Workflow)

// WithStepperOptions passes options to every Stepper the workflow builds.
func WithStepperOptions(opts ...review.Option) Option {
	return func(w *Workflow) {
		w.stepperOpts = append(w.stepperOpts, opts...)
	}
}

// New creates a workflow.
func New(backend service.Backend, extractor Extractor, opts ...Option) *Workflow {
	w := &Workflow{
		backend:   backend,
		extractor: extractor,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Load fetches the receipt and resolves the action to offer. Nothing is cached across loads.
func (w *Workflow) Load(ctx context.Context, receiptID string) (session.Resolution, error) {
	receipt, err := w.backend.GetReceipt(ctx, receiptID)
	if err != nil {
		w.setErr(err)
		return session.Resolution{}, err
	}

	res := session.Resolve(receipt)

	w.mu.Lock()
	w.receipt = receipt
	w.resolution = res
	w.err = nil
	w.mu.Unlock()

	slog.Debug("Resolved receipt",
		"receipt_id", receiptID,
		"action", res.Action,
		"batch_sessions", len(receipt.BatchSessions))
	return res, nil
}

// Receipt returns the last loaded receipt.
func (w *Workflow) Receipt() *model.Receipt {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.receipt
}

// Resolution returns the last resolution.
func (w *Workflow) Resolution() session.Resolution {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.resolution
}

// Detect runs document-type detection on the loaded receipt. A detection with no transactions
// is a normal outcome, not an error.
func (w *Workflow) Detect(ctx context.Context) (*model.Detection, error) {
	receiptID, err := w.receiptID()
	if err != nil {
		return nil, err
	}
	detection, err := w.backend.DetectTransactions(ctx, receiptID)
	if err != nil {
		w.setErr(err)
		return nil, err
	}
	if !detection.Found() {
		slog.Info("No transactions found", "receipt_id", receiptID, "document_type", detection.DocumentType)
	}
	return detection, nil
}

// Start continues the active session when there is one, and otherwise runs a new extraction.
func (w *Workflow) Start(ctx context.Context, bankAccountID string, onEvent progress.Handler) (*review.Stepper, error) {
	if w.Resolution().Action == session.ActionContinue {
		return w.Continue(ctx)
	}
	return w.Process(ctx, bankAccountID, onEvent)
}

// Process runs a new extraction to completion and returns a Stepper over the new batch
// session. A failed or cancelled extraction leaves no batch session behind and the receipt
// can be processed again.
func (w *Workflow) Process(ctx context.Context, bankAccountID string, onEvent progress.Handler) (*review.Stepper, error) {
	receiptID, err := w.receiptID()
	if err != nil {
		return nil, err
	}
	if onEvent == nil {
		onEvent = func(progress.Event) {}
	}

	w.mu.Lock()
	if w.processing {
		w.mu.Unlock()
		return nil, common.ErrOperationInFlight
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	w.processing = true
	w.cancel = cancel
	w.err = nil
	w.mu.Unlock()

	stream := w.extractor.Start(ctx, receiptID, bankAccountID, func(ev progress.Event) {
		if ev.Terminal() {
			w.mu.Lock()
			w.processing = false
			w.mu.Unlock()
		}
		onEvent(ev)
	})

	w.mu.Lock()
	w.stream = stream
	w.mu.Unlock()

	result, err := stream.Wait()

	w.mu.Lock()
	w.stream = nil
	w.cancel = nil
	w.processing = false
	w.mu.Unlock()

	if err != nil {
		if errors.Is(err, common.ErrCancelled) {
			slog.Info("Extraction cancelled", "receipt_id", receiptID)
		}
		w.setErr(err)
		return nil, err
	}

	batch := w.loadBatch(ctx, receiptID, result)
	stepper, err := review.NewStepper(batch, w.backend, w.backend, w.stepperOpts...)
	if err != nil {
		w.setErr(err)
		return nil, err
	}

	if _, err := w.Load(ctx, receiptID); err != nil {
		slog.Warn("Failed to reload receipt after extraction", "error", err)
	}
	return stepper, nil
}

// Continue returns a Stepper over the resolved active session.
func (w *Workflow) Continue(ctx context.Context) (*review.Stepper, error) {
	res := w.Resolution()
	if res.Action != session.ActionContinue || res.ActiveSession == nil {
		return nil, common.ErrNoActiveSession
	}

	batch, err := w.backend.GetBatchSession(ctx, res.ActiveSession.ID)
	if err != nil {
		slog.Debug("Using batch session embedded in receipt", "error", err)
		batch = res.ActiveSession
	}

	stepper, err := review.NewStepper(batch, w.backend, w.backend, w.stepperOpts...)
	if err != nil {
		w.setErr(err)
		return nil, err
	}
	return stepper, nil
}

// Cancel aborts a running extraction. It is safe to call at any time.
func (w *Workflow) Cancel() {
	w.mu.Lock()
	stream, cancel := w.stream, w.cancel
	w.mu.Unlock()
	if stream != nil {
		stream.Cancel()
	}
	if cancel != nil {
		cancel()
	}
}

// IsProcessing reports whether an extraction stream is running.
func (w *Workflow) IsProcessing() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.processing
}

// Err returns the last transport or backend error, if any.
func (w *Workflow) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

func (w *Workflow) setErr(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.err = err
}

func (w *Workflow) receiptID() (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.receipt == nil {
		return "", fmt.Errorf("no receipt loaded: %w", common.ErrNotFound)
	}
	return w.receipt.ID, nil
}

// loadBatch fetches the new batch session, falling back to the stream's own result.
func (w *Workflow) loadBatch(ctx context.Context, receiptID string, result *model.ExtractionResult) *model.BatchSession {
	batch, err := w.backend.GetBatchSession(ctx, result.BatchSessionID)
	if err == nil {
		return batch
	}

	slog.Warn("Failed to load new batch session, using extraction result",
		"batch_session_id", result.BatchSessionID,
		"error", err)
	return &model.BatchSession{
		ID:            result.BatchSessionID,
		ReceiptID:     receiptID,
		Status:        model.SessionInProgress,
		TotalExpected: result.TotalTransactions,
		ExtractedData: model.ExtractedData{Transactions: result.Transactions},
	}
}
