package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/Veraticus/the-receipts-must-flow/internal/card"
	"github.com/Veraticus/the-receipts-must-flow/internal/cli"
	"github.com/Veraticus/the-receipts-must-flow/internal/model"
)

// View renders the UI.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if m.stepper == nil || m.stepper.Len() == 0 {
		return m.theme.Subtitle.Render("Nothing to review.")
	}

	sections := []string{
		m.renderHeader(),
		m.renderStrip(),
		m.renderCard(),
	}
	if m.mode == ModeClarify && m.controller != nil {
		sections = append(sections, m.renderClarification())
	}
	sections = append(sections, m.renderStatus(), m.help.View(m.keymap))

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) renderHeader() string {
	title := cli.ReceiptIcon + " Receipt review"
	if m.config.ReceiptID != "" {
		title += " · " + m.config.ReceiptID
	}
	subtitle := fmt.Sprintf("Transaction %d of %d · session %s",
		m.stepper.CurrentIndex()+1, m.stepper.Len(), m.stepper.BatchSessionID())
	if m.stepper.Finalized() {
		subtitle += " · completed"
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		m.theme.Title.Render(title),
		m.theme.Subtitle.Render(subtitle),
	)
}

// renderStrip shows one marker per record so the reviewer sees what is left.
func (m Model) renderStrip() string {
	markers := make([]string, 0, m.stepper.Len())
	for i, n := 0, m.stepper.Len(); i < n; i++ {
		state := m.stepper.State(i)
		marker := fmt.Sprintf(" %d %s ", i+1, cli.StateIcon(state))
		if i == m.stepper.CurrentIndex() {
			markers = append(markers, m.theme.Selected.Render(marker))
			continue
		}
		markers = append(markers, cli.StateStyle(state).Render(marker))
	}
	return strings.Join(markers, " ")
}

func (m Model) renderCard() string {
	c := m.binder.Card()
	x := m.stepper.Current()

	var rows []string
	rows = append(rows, cli.FormatState(c.State))

	if !x.Renderable() {
		rows = append(rows, "", m.theme.StatusWarning.Render("The assistant could not read this transaction."))
		if c.Notes != "" {
			rows = append(rows, m.theme.Subtitle.Render(c.Notes))
		}
		rows = append(rows, "", m.theme.Subtitle.Render("Press c to clarify it, or s to skip."))
		return m.box().Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
	}

	rows = append(rows,
		m.row("Amount", fmt.Sprintf("%.2f %s", c.Amount, c.Currency)),
		m.row("Counterparty", c.Counterparty),
		m.row("Confidence", fmt.Sprintf("%.0f%%", c.Confidence*100)),
		"",
	)
	for i, f := range card.Fields {
		rows = append(rows, m.fieldRow(i, f, c))
	}
	if c.Notes != "" {
		rows = append(rows, "", m.theme.Subtitle.Render(c.Notes))
	}

	return m.box().Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func (m Model) box() lipgloss.Style {
	style := m.theme.RoundedBox
	if m.mode == ModeEdit {
		style = m.theme.FocusedBox
	}
	if m.width > 4 {
		style = style.Width(min(m.width-4, 90))
	}
	return style
}

func (m Model) row(label, value string) string {
	if value == "" {
		value = m.theme.StatusPending.Render("-")
	}
	return m.theme.Label.Render(label) + m.theme.Normal.Render(value)
}

func (m Model) fieldRow(i int, f card.Field, c *card.Card) string {
	if m.mode == ModeEdit && i == m.field {
		return m.theme.Label.Render(f.String()) + m.input.View()
	}

	value := c.Get(f)
	switch f {
	case card.FieldCategory:
		if c.CategoryName != "" {
			value = c.CategoryName
		}
	case card.FieldContact:
		if m.reference != nil && value != "" {
			value = m.reference.ContactName(value)
		}
	}
	return m.row(f.String(), value)
}

func (m Model) renderClarification() string {
	var lines []string
	for _, msg := range m.controller.Messages() {
		switch msg.Role {
		case model.RoleUser:
			line := m.theme.UserMessage.Render("You: ") + msg.Content
			if msg.Failed {
				line += " " + m.theme.StatusError.Render(cli.ErrorIcon+" not sent, Ctrl+R to retry")
			}
			lines = append(lines, line)
		default:
			lines = append(lines, m.theme.AssistantMessage.Render(cli.RobotIcon+" "+msg.Content))
		}
	}
	if len(lines) == 0 {
		lines = append(lines, m.theme.Subtitle.Render("Tell the assistant what this transaction is."))
	}
	if m.controller.Resolved() {
		lines = append(lines, m.theme.StatusSuccess.Render(cli.SuccessIcon+" Resolved"))
	}
	lines = append(lines, "", m.input.View())

	return m.theme.FocusedBox.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func (m Model) renderStatus() string {
	switch {
	case m.busy:
		return m.spinner.View() + " " + m.theme.StatusPending.Render("Working...")
	case m.lastError != nil:
		return m.theme.StatusError.Render(cli.ErrorIcon + " " + m.lastError.Error())
	case m.status != "":
		return m.theme.StatusSuccess.Render(m.status)
	default:
		return ""
	}
}
