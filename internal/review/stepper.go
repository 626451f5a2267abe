// Package review walks a reviewer through the proposed transactions of one batch session.
package review

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Veraticus/the-receipts-must-flow/internal/common"
	"github.com/Veraticus/the-receipts-must-flow/internal/model"
	"github.com/Veraticus/the-receipts-must-flow/internal/service"
)

// Outcome describes where the stepper went after a decision.
type Outcome struct {
	TransactionID string
	Index         int
	Advanced      bool
	Finalized     bool
}

// Stepper owns the transaction list of one batch session and the reviewer's position in it.
// Every mutation is a two-phase commit: a cloned draft is persisted, then swapped in only on
// success. While a backend call is outstanding all other operations are refused.
type Stepper struct {
	backend        service.SequentialBackend
	clarifications service.ClarificationBackend
	journal        service.Journal
	now            func() time.Time
	batchSessionID string
	txns           []model.TransactionExtraction
	current        int
	mu             sync.Mutex
	busy           bool
	finalized      bool
}

// Option configures a Stepper.
type Option func(*Stepper)

// WithJournal records successful decisions in j.
func WithJournal(j service.Journal) Option {
	return func(s *Stepper) {
		s.journal = j
	}
}

// WithClock overrides the time source used for journal entries.
func WithClock(now func() time.Time) Option {
	return func(s *Stepper) {
		s.now = now
	}
}

// NewStepper builds a stepper over a copy of session's transactions, positioned at the first
// record that is not yet approved.
func NewStepper(
	session *model.BatchSession,
	backend service.SequentialBackend,
	clarifications service.ClarificationBackend,
	opts ...Option,
) (*Stepper, error) {
	if session == nil || session.ID == "" {
		return nil, common.ErrNoActiveSession
	}
	if len(session.ExtractedData.Transactions) == 0 {
		return nil, fmt.Errorf("batch session %s has no transactions: %w", session.ID, common.ErrNoActiveSession)
	}

	txns := make([]model.TransactionExtraction, len(session.ExtractedData.Transactions))
	for i, x := range session.ExtractedData.Transactions {
		txns[i] = x.Clone()
	}
	sort.SliceStable(txns, func(i, j int) bool {
		return txns[i].TransactionIndex < txns[j].TransactionIndex
	})

	s := &Stepper{
		backend:        backend,
		clarifications: clarifications,
		now:            time.Now,
		batchSessionID: session.ID,
		txns:           txns,
		current:        ResumeIndex(txns),
		finalized:      session.Status == model.SessionCompleted,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// ResumeIndex returns the position of the first record that is not approved, or the last
// position when everything is approved.
func ResumeIndex(txns []model.TransactionExtraction) int {
	for i, x := range txns {
		if x.ProcessingStatus != model.ProcessingApproved {
			return i
		}
	}
	if len(txns) == 0 {
		return 0
	}
	return len(txns) - 1
}

// ValidateEdits checks the fields an approval cannot do without. Payment method and contact
// are optional; left empty, the proposed values are kept.
func ValidateEdits(e service.Edits) error {
	var missing []string
	if strings.TrimSpace(e.Description) == "" {
		missing = append(missing, "description")
	}
	if strings.TrimSpace(e.CategoryID) == "" {
		missing = append(missing, "category")
	}
	if strings.TrimSpace(e.Date) == "" {
		missing = append(missing, "date")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", common.ErrMissingField, strings.Join(missing, ", "))
	}
	return nil
}

// BatchSessionID returns the session under review.
func (s *Stepper) BatchSessionID() string {
	return s.batchSessionID
}

// Len returns the number of records.
func (s *Stepper) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.txns)
}

// CurrentIndex returns the reviewer's position (0-based, not the transaction_index).
func (s *Stepper) CurrentIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Current returns a copy of the record at the reviewer's position.
func (s *Stepper) Current() model.TransactionExtraction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.txns[s.current].Clone()
}

// Transactions returns a copy of every record.
func (s *Stepper) Transactions() []model.TransactionExtraction {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.TransactionExtraction, len(s.txns))
	for i, x := range s.txns {
		out[i] = x.Clone()
	}
	return out
}

// State returns the review state of the record at position pos.
func (s *Stepper) State(pos int) model.ReviewState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pos < 0 || pos >= len(s.txns) {
		return model.StateNeedsClarification
	}
	return model.StateOf(s.txns[pos])
}

// Busy reports whether a backend call is outstanding.
func (s *Stepper) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

// Finalized reports whether the batch session has been completed.
func (s *Stepper) Finalized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finalized
}

// Navigate moves to pos, clamped to the valid range. It never changes a processing status.
func (s *Stepper) Navigate(pos int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return s.current, common.ErrOperationInFlight
	}
	s.current = max(0, min(pos, len(s.txns)-1))
	return s.current, nil
}

// ApproveCurrent merges edits into the current record and persists the approval. It advances
// to the next position; from the last one it finalizes the batch session once every record is
// decided (see commitAndAdvance).
// On failure the record is left exactly as it was.
func (s *Stepper) ApproveCurrent(ctx context.Context, edits service.Edits) (Outcome, error) {
	if err := ValidateEdits(edits); err != nil {
		return Outcome{}, err
	}

	pos, original, err := s.begin()
	if err != nil {
		return Outcome{}, err
	}
	if original.Transaction == nil || original.NeedsClarification {
		s.release()
		return Outcome{}, common.ErrNeedsClarification
	}
	if original.ProcessingStatus == model.ProcessingApproved {
		s.release()
		return Outcome{}, common.ErrAlreadyApproved
	}

	draft := original.Clone()
	applyEdits(&draft, edits)
	draft.ProcessingStatus = model.ProcessingApproved

	result, err := s.backend.Approve(ctx, s.batchSessionID, original.TransactionIndex, edits)
	if err != nil {
		s.release()
		return Outcome{}, err
	}

	s.record(ctx, service.DecisionApproved, original.TransactionIndex, result.TransactionID)
	outcome, err := s.commitAndAdvance(ctx, pos, draft)
	outcome.TransactionID = result.TransactionID
	return outcome, err
}

// SkipCurrent marks the current record skipped and advances exactly like ApproveCurrent.
func (s *Stepper) SkipCurrent(ctx context.Context) (Outcome, error) {
	pos, original, err := s.begin()
	if err != nil {
		return Outcome{}, err
	}
	if original.ProcessingStatus == model.ProcessingApproved {
		s.release()
		return Outcome{}, common.ErrAlreadyApproved
	}

	draft := original.Clone()
	draft.ProcessingStatus = model.ProcessingSkipped

	if err := s.backend.Skip(ctx, s.batchSessionID, original.TransactionIndex); err != nil {
		s.release()
		return Outcome{}, err
	}

	s.record(ctx, service.DecisionSkipped, original.TransactionIndex, "")
	return s.commitAndAdvance(ctx, pos, draft)
}

// Finalize completes the batch session. ApproveCurrent and SkipCurrent call it once every
// record is decided; it is exported so a failed finalization can be retried. It refuses with
// ErrUndecided while any record still awaits approval or skip.
func (s *Stepper) Finalize(ctx context.Context) (Outcome, error) {
	pos, _, err := s.begin()
	if err != nil {
		return Outcome{}, err
	}
	s.mu.Lock()
	undecided := s.firstUndecided()
	s.mu.Unlock()
	if undecided >= 0 {
		s.release()
		return Outcome{Index: pos}, fmt.Errorf("%w: transaction %d", common.ErrUndecided, s.txnIndexAt(undecided)+1)
	}
	return s.finalize(ctx, pos)
}

// OpenClarification returns the clarification session of the current record, creating it on
// the backend the first time. Records that need neither clarification nor confirmation, and
// approved records, have nothing to clarify.
func (s *Stepper) OpenClarification(ctx context.Context) (string, error) {
	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		return "", common.ErrOperationInFlight
	}
	pos := s.current
	x := s.txns[pos]
	needs := x.Transaction == nil || x.NeedsClarification || x.NeedsConfirmation
	if !needs || x.ProcessingStatus == model.ProcessingApproved {
		s.mu.Unlock()
		return "", common.ErrNoClarification
	}
	if x.ClarificationSessionID != nil && *x.ClarificationSessionID != "" {
		id := *x.ClarificationSessionID
		s.mu.Unlock()
		return id, nil
	}
	s.busy = true
	s.mu.Unlock()

	id, err := s.clarifications.CreateClarificationSession(ctx, s.batchSessionID, x.TransactionIndex)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.busy = false
	if err != nil {
		return "", err
	}
	draft := s.txns[pos].Clone()
	draft.ClarificationSessionID = &id
	s.txns[pos] = draft
	slog.Debug("Created clarification session",
		"batch_session_id", s.batchSessionID,
		"transaction_index", x.TransactionIndex,
		"clarification_session_id", id)
	return id, nil
}

// Resolve merges a resolved clarification snapshot into the record with the given
// transaction_index so it reads as ready for approval.
func (s *Stepper) Resolve(transactionIndex int, entry model.TurnEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pos := -1
	for i, x := range s.txns {
		if x.TransactionIndex == transactionIndex {
			pos = i
			break
		}
	}
	if pos < 0 {
		return fmt.Errorf("transaction %d is not in batch session %s: %w", transactionIndex, s.batchSessionID, common.ErrNotFound)
	}

	draft := s.txns[pos].Clone()
	if entry.Transaction != nil {
		t := *entry.Transaction
		draft.Transaction = &t
	}
	if entry.EnrichmentData != nil {
		e := *entry.EnrichmentData
		draft.EnrichmentData = &e
	}
	if entry.Notes != nil {
		draft.Notes = *entry.Notes
	}
	draft.NeedsClarification = false
	draft.NeedsConfirmation = false
	s.txns[pos] = draft

	slog.Debug("Clarification resolved",
		"batch_session_id", s.batchSessionID,
		"transaction_index", transactionIndex,
		"state", model.StateOf(draft).String())
	return nil
}

// begin claims the stepper for one backend call and returns the current record.
func (s *Stepper) begin() (int, model.TransactionExtraction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return 0, model.TransactionExtraction{}, common.ErrOperationInFlight
	}
	if s.finalized {
		return 0, model.TransactionExtraction{}, common.ErrSessionFinalized
	}
	s.busy = true
	return s.current, s.txns[s.current], nil
}

func (s *Stepper) release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.busy = false
}

// commitAndAdvance swaps the persisted draft in and moves on. At the last position it returns
// to the first undecided record, and finalizes only once every record is approved or skipped.
// The stepper stays busy through finalization.
func (s *Stepper) commitAndAdvance(ctx context.Context, pos int, draft model.TransactionExtraction) (Outcome, error) {
	s.mu.Lock()
	s.txns[pos] = draft
	next := pos + 1
	if next >= len(s.txns) {
		next = s.firstUndecided()
	}
	if next >= 0 {
		s.current = next
		s.busy = false
		s.mu.Unlock()
		return Outcome{Index: next, Advanced: true}, nil
	}
	s.mu.Unlock()

	return s.finalize(ctx, pos)
}

// firstUndecided must be called with mu held. It returns -1 when every record is decided.
func (s *Stepper) firstUndecided() int {
	for i, x := range s.txns {
		if !x.ProcessingStatus.Terminal() {
			return i
		}
	}
	return -1
}

// finalize must be called while busy; it releases the stepper.
func (s *Stepper) finalize(ctx context.Context, pos int) (Outcome, error) {
	_, err := s.backend.CompleteSession(ctx, s.batchSessionID)

	s.mu.Lock()
	s.busy = false
	if err != nil {
		s.mu.Unlock()
		return Outcome{Index: pos}, fmt.Errorf("failed to finalize batch session: %w", err)
	}
	s.finalized = true
	s.mu.Unlock()

	s.record(ctx, service.DecisionFinalized, s.txnIndexAt(pos), "")
	slog.Info("Batch session finalized", "batch_session_id", s.batchSessionID)
	return Outcome{Index: pos, Finalized: true}, nil
}

func (s *Stepper) txnIndexAt(pos int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.txns[pos].TransactionIndex
}

// record appends to the journal. Journal failures never fail the review.
func (s *Stepper) record(ctx context.Context, action string, transactionIndex int, transactionID string) {
	if s.journal == nil {
		return
	}
	err := s.journal.RecordDecision(ctx, service.Decision{
		BatchSessionID:   s.batchSessionID,
		TransactionIndex: transactionIndex,
		Action:           action,
		TransactionID:    transactionID,
		DecidedAt:        s.now(),
	})
	if err != nil {
		common.LogError(ctx, err, "Failed to record review decision", common.Fields{
			"batch_session_id":  s.batchSessionID,
			"transaction_index": transactionIndex,
			"action":            action,
		})
	}
}

func applyEdits(x *model.TransactionExtraction, e service.Edits) {
	if x.Transaction == nil {
		x.Transaction = &model.TransactionPayload{}
	}
	x.Transaction.Description = e.Description
	// An unchanged date keeps the proposed time of day.
	if e.Date != model.DateOnly(x.Transaction.Time) {
		x.Transaction.Time = e.Date
	}
	if e.PaymentMethod != "" {
		x.Transaction.PaymentMethod = e.PaymentMethod
	}
	if x.EnrichmentData == nil {
		x.EnrichmentData = &model.EnrichmentData{}
	}
	x.EnrichmentData.CategoryID = e.CategoryID
	if e.ContactID != "" {
		x.EnrichmentData.ContactID = e.ContactID
	}
}
