package review

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/the-receipts-must-flow/internal/common"
	"github.com/Veraticus/the-receipts-must-flow/internal/model"
	"github.com/Veraticus/the-receipts-must-flow/internal/service"
	"github.com/Veraticus/the-receipts-must-flow/internal/testutil"
)

func validEdits() service.Edits {
	return service.Edits{
		Description:   "Weekly groceries",
		CategoryID:    "cat-food",
		Date:          "2026-09-30",
		PaymentMethod: "card",
		ContactID:     "ct-market",
	}
}

func newStepper(t *testing.T, txns ...model.TransactionExtraction) (*Stepper, *testutil.FakeBackend) {
	t.Helper()
	backend := testutil.NewFakeBackend()
	session := testutil.BatchSession("bs-1", "rcpt-1", txns...)
	backend.AddSession(session)

	s, err := NewStepper(&session, backend, backend)
	require.NoError(t, err)
	return s, backend
}

func TestStepper_ApproveSkipApproveFinalizes(t *testing.T) {
	ctx := context.Background()
	s, backend := newStepper(t,
		testutil.ReadyExtraction(0),
		testutil.ReadyExtraction(1),
		testutil.ReadyExtraction(2),
	)
	require.Equal(t, 0, s.CurrentIndex())

	out, err := s.ApproveCurrent(ctx, validEdits())
	require.NoError(t, err)
	assert.True(t, out.Advanced)
	assert.NotEmpty(t, out.TransactionID)
	assert.Equal(t, 1, s.CurrentIndex())

	out, err = s.SkipCurrent(ctx)
	require.NoError(t, err)
	assert.True(t, out.Advanced)
	assert.Equal(t, 2, s.CurrentIndex())

	out, err = s.ApproveCurrent(ctx, validEdits())
	require.NoError(t, err)
	assert.True(t, out.Finalized)
	assert.False(t, out.Advanced)
	assert.Equal(t, 2, s.CurrentIndex(), "must not advance past the last record")
	assert.True(t, s.Finalized())

	assert.Equal(t, model.StateApproved, s.State(0))
	assert.Equal(t, model.StateSkipped, s.State(1))
	assert.Equal(t, model.StateApproved, s.State(2))
	assert.Equal(t, 1, backend.CallCount(testutil.MethodCompleteSession))
	assert.Equal(t, model.SessionCompleted, backend.Session("bs-1").Status)

	_, err = s.SkipCurrent(ctx)
	assert.ErrorIs(t, err, common.ErrSessionFinalized)
}

func TestStepper_ApproveMergesEdits(t *testing.T) {
	s, backend := newStepper(t, testutil.ReadyExtraction(0), testutil.ReadyExtraction(1))

	edits := validEdits()
	_, err := s.ApproveCurrent(context.Background(), edits)
	require.NoError(t, err)

	approved := s.Transactions()[0]
	assert.Equal(t, model.ProcessingApproved, approved.ProcessingStatus)
	assert.Equal(t, "Weekly groceries", approved.Transaction.Description)
	assert.Equal(t, "2026-09-30", approved.Transaction.Time)
	assert.Equal(t, "cat-food", approved.EnrichmentData.CategoryID)
	assert.Equal(t, "ct-market", approved.EnrichmentData.ContactID)

	calls := backend.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, edits, calls[0].Edits)
	assert.Equal(t, 0, calls[0].TransactionIndex)
}

func TestStepper_ApproveKeepsTimeOfDay(t *testing.T) {
	ctx := context.Background()
	timed := testutil.ReadyExtraction(0)
	timed.Transaction.Time = "2026-09-30T18:45:00Z"
	moved := testutil.ReadyExtraction(1)
	moved.Transaction.Time = "2026-09-30T18:45:00Z"
	s, _ := newStepper(t, timed, moved, testutil.ReadyExtraction(2))

	_, err := s.ApproveCurrent(ctx, validEdits())
	require.NoError(t, err)
	assert.Equal(t, "2026-09-30T18:45:00Z", s.Transactions()[0].Transaction.Time)

	edits := validEdits()
	edits.Date = "2026-09-28"
	_, err = s.ApproveCurrent(ctx, edits)
	require.NoError(t, err)
	assert.Equal(t, "2026-09-28", s.Transactions()[1].Transaction.Time)
}

func TestStepper_ApproveWithoutPaymentMethodKeepsProposal(t *testing.T) {
	s, backend := newStepper(t, testutil.ReadyExtraction(0), testutil.ReadyExtraction(1))

	edits := validEdits()
	edits.PaymentMethod = ""
	edits.ContactID = ""
	_, err := s.ApproveCurrent(context.Background(), edits)
	require.NoError(t, err)

	approved := s.Transactions()[0]
	assert.Equal(t, "card", approved.Transaction.PaymentMethod)
	assert.Equal(t, "ct-shop", approved.EnrichmentData.ContactID)
	assert.Equal(t, 1, backend.CallCount(testutil.MethodApprove))
}

func TestStepper_FailedWriteLeavesRecordUntouched(t *testing.T) {
	ctx := context.Background()
	s, backend := newStepper(t, testutil.ReadyExtraction(0), testutil.ReadyExtraction(1))
	before := s.Transactions()

	backend.FailNext(testutil.MethodApprove, &common.APIError{StatusCode: 409, Message: "Transaction already exists"})
	_, err := s.ApproveCurrent(ctx, validEdits())
	require.Error(t, err)
	assert.Equal(t, "Transaction already exists", err.Error())
	assert.Equal(t, before, s.Transactions())
	assert.Equal(t, 0, s.CurrentIndex())
	assert.False(t, s.Busy())

	backend.FailNext(testutil.MethodSkip, common.Transport(errors.New("connection reset")))
	_, err = s.SkipCurrent(ctx)
	require.ErrorIs(t, err, common.ErrTransport)
	assert.Equal(t, before, s.Transactions())

	// The reviewer can retry.
	out, err := s.ApproveCurrent(ctx, validEdits())
	require.NoError(t, err)
	assert.True(t, out.Advanced)
}

func TestStepper_FinalizeFailureCanBeRetried(t *testing.T) {
	ctx := context.Background()
	s, backend := newStepper(t, testutil.ReadyExtraction(0))

	backend.FailNext(testutil.MethodCompleteSession, common.Transport(errors.New("timeout")))
	out, err := s.ApproveCurrent(ctx, validEdits())
	require.ErrorIs(t, err, common.ErrTransport)
	assert.False(t, out.Finalized)
	assert.Equal(t, model.StateApproved, s.State(0), "the approval itself was persisted")
	assert.False(t, s.Finalized())
	assert.False(t, s.Busy())

	out, err = s.Finalize(ctx)
	require.NoError(t, err)
	assert.True(t, out.Finalized)
}

func TestStepper_LastPositionWithUndecidedRecords(t *testing.T) {
	ctx := context.Background()
	s, backend := newStepper(t,
		testutil.ReadyExtraction(0),
		testutil.ReadyExtraction(1),
		testutil.ReadyExtraction(2),
	)

	_, err := s.Navigate(2)
	require.NoError(t, err)

	out, err := s.ApproveCurrent(ctx, validEdits())
	require.NoError(t, err)
	assert.False(t, out.Finalized)
	assert.True(t, out.Advanced)
	assert.Equal(t, 0, out.Index, "returns to the first undecided record")
	assert.Equal(t, 0, s.CurrentIndex())
	assert.False(t, s.Finalized())
	assert.Zero(t, backend.CallCount(testutil.MethodCompleteSession))
	assert.Equal(t, model.StateReady, s.State(0))
	assert.Equal(t, model.StateReady, s.State(1))

	_, err = s.Finalize(ctx)
	require.ErrorIs(t, err, common.ErrUndecided)
	assert.False(t, s.Busy())
	assert.Zero(t, backend.CallCount(testutil.MethodCompleteSession))

	out, err = s.SkipCurrent(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, out.Index)

	out, err = s.ApproveCurrent(ctx, validEdits())
	require.NoError(t, err)
	assert.False(t, out.Finalized)
	assert.Equal(t, 2, s.CurrentIndex())

	out, err = s.Finalize(ctx)
	require.NoError(t, err)
	assert.True(t, out.Finalized)
	assert.Equal(t, 1, backend.CallCount(testutil.MethodCompleteSession))
}

func TestStepper_LastRecordFinalizesOnceAllDecided(t *testing.T) {
	ctx := context.Background()
	skipped := testutil.ReadyExtraction(0)
	skipped.ProcessingStatus = model.ProcessingSkipped
	s, backend := newStepper(t, skipped, testutil.ReadyExtraction(1))

	_, err := s.Navigate(1)
	require.NoError(t, err)
	out, err := s.ApproveCurrent(ctx, validEdits())
	require.NoError(t, err)
	assert.True(t, out.Finalized)
	assert.Equal(t, 1, backend.CallCount(testutil.MethodCompleteSession))
}

func TestStepper_Guards(t *testing.T) {
	ctx := context.Background()

	t.Run("null transaction needs clarification", func(t *testing.T) {
		unclear := testutil.UnclearExtraction(0)
		unclear.NeedsClarification = false
		s, backend := newStepper(t, unclear)

		assert.Equal(t, model.StateNeedsClarification, s.State(0))
		_, err := s.ApproveCurrent(ctx, validEdits())
		assert.ErrorIs(t, err, common.ErrNeedsClarification)
		assert.Zero(t, backend.CallCount(testutil.MethodApprove))
		assert.False(t, s.Busy())
	})

	t.Run("missing fields", func(t *testing.T) {
		s, backend := newStepper(t, testutil.ReadyExtraction(0))
		edits := validEdits()
		edits.CategoryID = ""
		edits.Date = " "

		_, err := s.ApproveCurrent(ctx, edits)
		require.ErrorIs(t, err, common.ErrMissingField)
		assert.Contains(t, err.Error(), "category, date")
		assert.Zero(t, backend.CallCount(testutil.MethodApprove))
	})

	t.Run("already approved", func(t *testing.T) {
		approved := testutil.ReadyExtraction(0)
		approved.ProcessingStatus = model.ProcessingApproved
		s, _ := newStepper(t, approved, testutil.ReadyExtraction(1))

		_, err := s.Navigate(0)
		require.NoError(t, err)
		_, err = s.ApproveCurrent(ctx, validEdits())
		assert.ErrorIs(t, err, common.ErrAlreadyApproved)
		_, err = s.SkipCurrent(ctx)
		assert.ErrorIs(t, err, common.ErrAlreadyApproved)
	})

	t.Run("skipped record can be approved on resume", func(t *testing.T) {
		skipped := testutil.ReadyExtraction(0)
		skipped.ProcessingStatus = model.ProcessingSkipped
		s, _ := newStepper(t, skipped, testutil.ReadyExtraction(1))

		assert.Equal(t, 0, s.CurrentIndex())
		out, err := s.ApproveCurrent(ctx, validEdits())
		require.NoError(t, err)
		assert.True(t, out.Advanced)
	})
}

func TestStepper_InFlightBlocksEverything(t *testing.T) {
	ctx := context.Background()
	s, backend := newStepper(t, testutil.ReadyExtraction(0), testutil.ReadyExtraction(1))

	entered := make(chan struct{})
	release := make(chan struct{})
	backend.On(testutil.MethodApprove, func(context.Context) error {
		close(entered)
		<-release
		return nil
	})

	done := make(chan error, 1)
	go func() {
		_, err := s.ApproveCurrent(ctx, validEdits())
		done <- err
	}()
	<-entered

	assert.True(t, s.Busy())
	pos, err := s.Navigate(1)
	assert.ErrorIs(t, err, common.ErrOperationInFlight)
	assert.Equal(t, 0, pos)
	_, err = s.SkipCurrent(ctx)
	assert.ErrorIs(t, err, common.ErrOperationInFlight)
	_, err = s.ApproveCurrent(ctx, validEdits())
	assert.ErrorIs(t, err, common.ErrOperationInFlight)
	_, err = s.OpenClarification(ctx)
	assert.ErrorIs(t, err, common.ErrOperationInFlight)

	close(release)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("approve did not return")
	}
	assert.Equal(t, 1, backend.CallCount(testutil.MethodApprove))
	assert.Equal(t, 1, s.CurrentIndex())
}

func TestStepper_Navigate(t *testing.T) {
	skipped := testutil.ReadyExtraction(1)
	skipped.ProcessingStatus = model.ProcessingSkipped
	s, _ := newStepper(t, testutil.ReadyExtraction(0), skipped, testutil.ReadyExtraction(2))
	before := s.Transactions()

	tests := []struct {
		target int
		want   int
	}{
		{target: 2, want: 2},
		{target: 10, want: 2},
		{target: -3, want: 0},
		{target: 1, want: 1},
	}
	for _, tt := range tests {
		pos, err := s.Navigate(tt.target)
		require.NoError(t, err)
		assert.Equal(t, tt.want, pos)
		assert.Equal(t, tt.want, s.CurrentIndex())
	}
	assert.Equal(t, before, s.Transactions(), "navigation never mutates records")
}

func TestStepper_ResumePosition(t *testing.T) {
	approved := func(i int) model.TransactionExtraction {
		x := testutil.ReadyExtraction(i)
		x.ProcessingStatus = model.ProcessingApproved
		return x
	}
	skipped := testutil.ReadyExtraction(1)
	skipped.ProcessingStatus = model.ProcessingSkipped

	assert.Equal(t, 1, ResumeIndex([]model.TransactionExtraction{approved(0), skipped, testutil.ReadyExtraction(2)}))
	assert.Equal(t, 2, ResumeIndex([]model.TransactionExtraction{approved(0), approved(1), testutil.ReadyExtraction(2)}))
	assert.Equal(t, 1, ResumeIndex([]model.TransactionExtraction{approved(0), approved(1)}))
	assert.Equal(t, 0, ResumeIndex(nil))
}

func TestStepper_SortsByTransactionIndex(t *testing.T) {
	s, _ := newStepper(t, testutil.ReadyExtraction(2), testutil.ReadyExtraction(0), testutil.ReadyExtraction(1))
	for pos, x := range s.Transactions() {
		assert.Equal(t, pos, x.TransactionIndex)
	}
}

func TestStepper_DoesNotAliasSession(t *testing.T) {
	backend := testutil.NewFakeBackend()
	session := testutil.BatchSession("bs-1", "rcpt-1", testutil.ReadyExtraction(0), testutil.ReadyExtraction(1))
	backend.AddSession(session)

	s, err := NewStepper(&session, backend, backend)
	require.NoError(t, err)
	_, err = s.ApproveCurrent(context.Background(), validEdits())
	require.NoError(t, err)

	assert.Equal(t, model.ProcessingUnset, session.ExtractedData.Transactions[0].ProcessingStatus)
	assert.Equal(t, "Purchase 1", session.ExtractedData.Transactions[0].Transaction.Description)
}

func TestNewStepper_Errors(t *testing.T) {
	backend := testutil.NewFakeBackend()

	_, err := NewStepper(nil, backend, backend)
	require.ErrorIs(t, err, common.ErrNoActiveSession)

	empty := testutil.BatchSession("bs-empty", "rcpt-1")
	_, err = NewStepper(&empty, backend, backend)
	require.ErrorIs(t, err, common.ErrNoActiveSession)
}

func TestStepper_OpenClarification(t *testing.T) {
	ctx := context.Background()

	t.Run("creates session lazily once", func(t *testing.T) {
		s, backend := newStepper(t, testutil.UnclearExtraction(0))

		id, err := s.OpenClarification(ctx)
		require.NoError(t, err)
		assert.NotEmpty(t, id)

		again, err := s.OpenClarification(ctx)
		require.NoError(t, err)
		assert.Equal(t, id, again)
		assert.Equal(t, 1, backend.CallCount(testutil.MethodCreateClarificationSession))
		assert.Equal(t, id, *s.Current().ClarificationSessionID)
	})

	t.Run("resumes existing session", func(t *testing.T) {
		x := testutil.UnclearExtraction(0)
		x.ClarificationSessionID = testutil.String("cl-existing")
		s, backend := newStepper(t, x)

		id, err := s.OpenClarification(ctx)
		require.NoError(t, err)
		assert.Equal(t, "cl-existing", id)
		assert.Zero(t, backend.CallCount(testutil.MethodCreateClarificationSession))
	})

	t.Run("ready record has nothing to clarify", func(t *testing.T) {
		s, _ := newStepper(t, testutil.ReadyExtraction(0))
		_, err := s.OpenClarification(ctx)
		assert.ErrorIs(t, err, common.ErrNoClarification)
	})

	t.Run("confirmation can be clarified", func(t *testing.T) {
		x := testutil.ReadyExtraction(0)
		x.NeedsConfirmation = true
		s, _ := newStepper(t, x)
		_, err := s.OpenClarification(ctx)
		assert.NoError(t, err)
	})

	t.Run("creation failure leaves record unchanged", func(t *testing.T) {
		s, backend := newStepper(t, testutil.UnclearExtraction(0))
		backend.FailNext(testutil.MethodCreateClarificationSession, common.Transport(errors.New("down")))

		_, err := s.OpenClarification(ctx)
		require.ErrorIs(t, err, common.ErrTransport)
		assert.Nil(t, s.Current().ClarificationSessionID)
		assert.False(t, s.Busy())
	})
}

func TestStepper_ResolveMakesRecordReady(t *testing.T) {
	s, _ := newStepper(t, testutil.UnclearExtraction(0), testutil.ReadyExtraction(1))
	require.Equal(t, model.StateNeedsClarification, s.State(0))

	entry := model.TurnEntry{
		TransactionIndex:   0,
		NeedsClarification: testutil.Bool(false),
		NeedsConfirmation:  testutil.Bool(false),
		Notes:              testutil.String("Paid to the bakery"),
		Transaction: &model.TransactionPayload{
			Amount:      4.2,
			Currency:    "EUR",
			Description: "Bread",
		},
		EnrichmentData: &model.EnrichmentData{CategoryID: "cat-food"},
	}
	require.NoError(t, s.Resolve(0, entry))

	assert.Equal(t, model.StateReady, s.State(0))
	current := s.Current()
	assert.Equal(t, "Bread", current.Transaction.Description)
	assert.Equal(t, "Paid to the bakery", current.Notes)

	out, err := s.ApproveCurrent(context.Background(), validEdits())
	require.NoError(t, err)
	assert.True(t, out.Advanced)

	assert.ErrorIs(t, s.Resolve(42, entry), common.ErrNotFound)
}

func TestStepper_Journal(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t)
	backend := testutil.NewFakeBackend()
	session := testutil.BatchSession("bs-j", "rcpt-1", testutil.ReadyExtraction(0), testutil.ReadyExtraction(1))
	backend.AddSession(session)

	fixed := time.Date(2026, 10, 2, 8, 0, 0, 0, time.UTC)
	s, err := NewStepper(&session, backend, backend,
		WithJournal(db),
		WithClock(func() time.Time { return fixed }))
	require.NoError(t, err)

	_, err = s.SkipCurrent(ctx)
	require.NoError(t, err)
	out, err := s.ApproveCurrent(ctx, validEdits())
	require.NoError(t, err)
	require.True(t, out.Finalized)

	decisions, err := db.ListDecisions(ctx, "bs-j")
	require.NoError(t, err)
	require.Len(t, decisions, 3)
	assert.Equal(t, service.DecisionSkipped, decisions[0].Action)
	assert.Equal(t, service.DecisionApproved, decisions[1].Action)
	assert.Equal(t, out.TransactionID, decisions[1].TransactionID)
	assert.Equal(t, service.DecisionFinalized, decisions[2].Action)
	assert.True(t, fixed.Equal(decisions[0].DecidedAt))
}

type brokenJournal struct{}

func (brokenJournal) RecordDecision(context.Context, service.Decision) error {
	return errors.New("disk full")
}

func (brokenJournal) ListDecisions(context.Context, string) ([]service.Decision, error) {
	return nil, nil
}

func TestStepper_JournalFailureDoesNotFailReview(t *testing.T) {
	backend := testutil.NewFakeBackend()
	session := testutil.BatchSession("bs-1", "rcpt-1", testutil.ReadyExtraction(0), testutil.ReadyExtraction(1))
	backend.AddSession(session)

	s, err := NewStepper(&session, backend, backend, WithJournal(brokenJournal{}))
	require.NoError(t, err)

	out, err := s.ApproveCurrent(context.Background(), validEdits())
	require.NoError(t, err)
	assert.True(t, out.Advanced)
}

func TestValidateEdits(t *testing.T) {
	assert.NoError(t, ValidateEdits(validEdits()))

	err := ValidateEdits(service.Edits{})
	require.ErrorIs(t, err, common.ErrMissingField)
	assert.Contains(t, err.Error(), "description, category, date")

	optional := validEdits()
	optional.PaymentMethod = ""
	optional.ContactID = ""
	assert.NoError(t, ValidateEdits(optional))
}
