package model

// ReviewState is the per-transaction state the reviewer sees.
type ReviewState int

const (
	StateReady ReviewState = iota
	StateNeedsClarification
	StateNeedsConfirmation
	StateApproved
	StateSkipped
)

func (s ReviewState) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateNeedsClarification:
		return "needs clarification"
	case StateNeedsConfirmation:
		return "needs confirmation"
	case StateApproved:
		return "approved"
	case StateSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further reviewer action is expected in this pass.
func (s ReviewState) Terminal() bool {
	return s == StateApproved || s == StateSkipped
}

// StateOf derives the review state from the raw record flags.
// A record without a concrete transaction always needs clarification.
func StateOf(x TransactionExtraction) ReviewState {
	if x.Transaction == nil {
		return StateNeedsClarification
	}
	switch x.ProcessingStatus {
	case ProcessingApproved:
		return StateApproved
	case ProcessingSkipped:
		return StateSkipped
	}
	if x.NeedsClarification {
		return StateNeedsClarification
	}
	if x.NeedsConfirmation {
		return StateNeedsConfirmation
	}
	return StateReady
}
