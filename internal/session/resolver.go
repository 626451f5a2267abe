// Package session decides whether a receipt's extraction should be started or resumed.
package session

import (
	"sort"

	"github.com/Veraticus/the-receipts-must-flow/internal/model"
)

// Action is the primary call to action for a receipt.
type Action string

const (
	// ActionProcess starts a new extraction.
	ActionProcess Action = "process"
	// ActionContinue resumes review of the active batch session.
	ActionContinue Action = "continue"
)

// Resolution is the outcome of Resolve.
type Resolution struct {
	// ActiveSession is the newest in-progress batch session, or nil.
	ActiveSession *model.BatchSession
	Action        Action
}

// Resolve picks the active batch session of a receipt and the action to offer.
// It is a pure function of the receipt and must be re-run after every reload.
func Resolve(receipt *model.Receipt) Resolution {
	active := activeSession(receipt)
	if active == nil {
		return Resolution{Action: ActionProcess}
	}

	res := Resolution{ActiveSession: active, Action: ActionProcess}
	if HasPendingWork(active.ExtractedData.Transactions) {
		res.Action = ActionContinue
	}
	return res
}

// HasPendingWork reports whether any record still awaits a final decision. Skipped, unset
// and unrecognized statuses all count as pending; only approved records are done.
func HasPendingWork(txns []model.TransactionExtraction) bool {
	for _, x := range txns {
		if x.ProcessingStatus != model.ProcessingApproved {
			return true
		}
	}
	return false
}

// Counts summarizes record dispositions for status output.
type Counts struct {
	Approved int
	Skipped  int
	Pending  int
}

// Count tallies the records of a session.
func Count(txns []model.TransactionExtraction) Counts {
	var c Counts
	for _, x := range txns {
		switch x.ProcessingStatus {
		case model.ProcessingApproved:
			c.Approved++
		case model.ProcessingSkipped:
			c.Skipped++
		default:
			c.Pending++
		}
	}
	return c
}

func activeSession(receipt *model.Receipt) *model.BatchSession {
	if receipt == nil {
		return nil
	}

	candidates := make([]*model.BatchSession, 0, len(receipt.BatchSessions))
	for i := range receipt.BatchSessions {
		if receipt.BatchSessions[i].Status == model.SessionInProgress {
			candidates = append(candidates, &receipt.BatchSessions[i])
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].CreatedAt.After(candidates[j].CreatedAt)
	})
	return candidates[0]
}
