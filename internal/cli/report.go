package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/Veraticus/the-receipts-must-flow/internal/model"
	"github.com/Veraticus/the-receipts-must-flow/internal/service"
	"github.com/Veraticus/the-receipts-must-flow/internal/session"
)

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(SubtleStyle).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return TableHeaderStyle
			}
			return TableCellStyle
		}).
		Headers(headers...)
}

// RenderStatus prints a receipt summary with the action the reviewer should take next.
func RenderStatus(w io.Writer, receipt *model.Receipt, res session.Resolution) error {
	var b strings.Builder
	b.WriteString(FormatTitle("Receipt " + receipt.ID))
	b.WriteString("\n")
	fmt.Fprintf(&b, "Status:   %s\n", receipt.ProcessingStatus)
	fmt.Fprintf(&b, "Sessions: %d\n", len(receipt.BatchSessions))

	if res.ActiveSession == nil {
		b.WriteString(FormatInfo("No active session. Next: receipts process " + receipt.ID))
		b.WriteString("\n")
		_, err := io.WriteString(w, b.String())
		return err
	}

	txns := res.ActiveSession.ExtractedData.Transactions
	counts := session.Count(txns)
	fmt.Fprintf(&b, "Active:   %s (%d approved, %d skipped, %d pending)\n",
		res.ActiveSession.ID, counts.Approved, counts.Skipped, counts.Pending)

	t := newTable("#", "State", "Description", "Amount")
	for _, x := range txns {
		desc, amount := "(needs clarification)", ""
		if x.Transaction != nil {
			desc = x.Transaction.Description
			amount = strconv.FormatFloat(x.Transaction.Amount, 'f', 2, 64) + " " + x.Transaction.Currency
		}
		t.Row(strconv.Itoa(x.TransactionIndex+1), FormatState(model.StateOf(x)), desc, strings.TrimSpace(amount))
	}
	b.WriteString(t.Render())
	b.WriteString("\n")

	switch res.Action {
	case session.ActionContinue:
		b.WriteString(FormatInfo("Next: receipts review " + receipt.ID))
	default:
		b.WriteString(FormatInfo("Next: receipts process " + receipt.ID))
	}
	b.WriteString("\n")

	_, err := io.WriteString(w, b.String())
	return err
}

// RenderDetection prints a document-type detection result.
func RenderDetection(w io.Writer, receiptID string, d *model.Detection) error {
	if !d.Found() {
		_, err := fmt.Fprintln(w, FormatWarning("No transactions detected in "+receiptID))
		return err
	}
	_, err := fmt.Fprintln(w, FormatSuccess(fmt.Sprintf("%s: %s with %d transaction(s)",
		receiptID, d.DocumentType, d.TransactionCount)))
	return err
}

// RenderHistory prints the local decision journal for one batch session.
func RenderHistory(w io.Writer, batchSessionID string, decisions []service.Decision) error {
	if len(decisions) == 0 {
		_, err := fmt.Fprintln(w, FormatInfo("No decisions recorded for "+batchSessionID))
		return err
	}

	t := newTable("When", "#", "Decision", "Transaction")
	for _, d := range decisions {
		index := ""
		if d.Action != service.DecisionFinalized {
			index = strconv.Itoa(d.TransactionIndex + 1)
		}
		t.Row(d.DecidedAt.Local().Format("2006-01-02 15:04"), index, d.Action, d.TransactionID)
	}

	_, err := fmt.Fprintln(w, FormatTitle("History "+batchSessionID)+"\n"+t.Render())
	return err
}
