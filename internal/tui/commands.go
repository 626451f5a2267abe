package tui

import (
	"context"
	"log/slog"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Veraticus/the-receipts-must-flow/internal/clarify"
	"github.com/Veraticus/the-receipts-must-flow/internal/model"
	"github.com/Veraticus/the-receipts-must-flow/internal/service"
)

// loadReference loads the category and contact lists once.
func (m Model) loadReference() tea.Cmd {
	ref, ctx := m.reference, m.ctx
	if ref == nil {
		return nil
	}
	return func() tea.Msg {
		return referenceLoadedMsg{err: ref.Load(ctx)}
	}
}

// approve persists the current record with the reviewer's edits.
func (m Model) approve(edits service.Edits) tea.Cmd {
	stepper, ctx := m.stepper, m.ctx
	pos := stepper.CurrentIndex()
	return func() tea.Msg {
		outcome, err := stepper.ApproveCurrent(ctx, edits)
		return operationDoneMsg{op: OpApprove, position: pos, outcome: outcome, err: err}
	}
}

// skip marks the current record skipped.
func (m Model) skip() tea.Cmd {
	stepper, ctx := m.stepper, m.ctx
	pos := stepper.CurrentIndex()
	return func() tea.Msg {
		outcome, err := stepper.SkipCurrent(ctx)
		return operationDoneMsg{op: OpSkip, position: pos, outcome: outcome, err: err}
	}
}

// finalize retries completing the batch session.
func (m Model) finalize() tea.Cmd {
	stepper, ctx := m.stepper, m.ctx
	pos := stepper.CurrentIndex()
	return func() tea.Msg {
		outcome, err := stepper.Finalize(ctx)
		return operationDoneMsg{op: OpFinalize, position: pos, outcome: outcome, err: err}
	}
}

// openClarification creates or reuses the clarification session of the current record and
// loads its history.
func (m Model) openClarification() tea.Cmd {
	stepper, backend, ctx := m.stepper, m.clarifications, m.ctx
	delay, resolutions := m.config.ResolveDelay, m.resolutions
	index := stepper.Current().TransactionIndex
	return func() tea.Msg {
		id, err := stepper.OpenClarification(ctx)
		if err != nil {
			return clarifyOpenedMsg{err: err}
		}
		controller := clarify.NewController(backend, id, index,
			clarify.WithResolveDelay(delay),
			clarify.WithOnResolved(func(entry model.TurnEntry) {
				select {
				case resolutions <- clarifyResolvedMsg{transactionIndex: index, entry: entry}:
				default:
					slog.Warn("Dropped clarification resolution", "transaction_index", index)
				}
			}),
		)
		if err := controller.Open(ctx); err != nil {
			return clarifyOpenedMsg{err: err}
		}
		return clarifyOpenedMsg{controller: controller}
	}
}

// sendClarification runs one clarification turn.
func sendClarification(ctx context.Context, controller *clarify.Controller, message string) tea.Cmd {
	return func() tea.Msg {
		return clarifyReplyMsg{err: controller.Send(ctx, message)}
	}
}

// retryClarification resends the last failed clarification message.
func retryClarification(ctx context.Context, controller *clarify.Controller) tea.Cmd {
	return func() tea.Msg {
		return clarifyReplyMsg{err: controller.Retry(ctx)}
	}
}

// waitForResolution delivers the next resolved clarification.
func waitForResolution(resolutions <-chan clarifyResolvedMsg) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-resolutions
		if !ok {
			return nil
		}
		return msg
	}
}
