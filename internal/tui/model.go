package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Veraticus/the-receipts-must-flow/internal/card"
	"github.com/Veraticus/the-receipts-must-flow/internal/clarify"
	"github.com/Veraticus/the-receipts-must-flow/internal/common"
	"github.com/Veraticus/the-receipts-must-flow/internal/model"
	"github.com/Veraticus/the-receipts-must-flow/internal/review"
	"github.com/Veraticus/the-receipts-must-flow/internal/service"
	"github.com/Veraticus/the-receipts-must-flow/internal/tui/themes"
)

// Mode is what the keyboard currently drives.
type Mode int

const (
	ModeCard Mode = iota
	ModeEdit
	ModeClarify
)

// Model holds the reviewer state.
type Model struct {
	ctx            context.Context
	fatal          error
	lastError      error
	clarifications service.ClarificationBackend
	stepper        *review.Stepper
	reference      *card.Reference
	binder         *card.Binder
	controller     *clarify.Controller
	resolutions    chan clarifyResolvedMsg
	theme          themes.Theme
	status         string
	config         Config
	keymap         KeyMap
	help           help.Model
	input          textinput.Model
	spinner        spinner.Model
	field          int
	width          int
	height         int
	mode           Mode
	busy           bool
	quitting       bool
}

// newModel creates a new model with the given configuration.
func newModel(ctx context.Context, cfg Config) Model {
	input := textinput.New()
	input.CharLimit = 500

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(cfg.Theme.Primary)

	h := help.New()
	h.ShowAll = cfg.ShowHelp

	m := Model{
		ctx:            ctx,
		config:         cfg,
		theme:          cfg.Theme,
		stepper:        cfg.Stepper,
		clarifications: cfg.Clarifications,
		reference:      cfg.Reference,
		binder:         card.NewBinder(cfg.Reference),
		resolutions:    make(chan clarifyResolvedMsg, 8),
		keymap:         DefaultKeyMap(),
		help:           h,
		input:          input,
		spinner:        s,
		width:          cfg.Width,
		height:         cfg.Height,
	}
	m.syncCard()
	return m
}

// Init starts the spinner, loads reference lists and listens for resolved clarifications.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		m.loadReference(),
		waitForResolution(m.resolutions),
	)
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case referenceLoadedMsg:
		if msg.err != nil {
			m.lastError = fmt.Errorf("failed to load categories and contacts: %w", msg.err)
			return m, nil
		}
		m.reference.Complete(m.binder.Card())
		return m, nil

	case operationDoneMsg:
		return m.handleOperationDone(msg)

	case clarifyOpenedMsg:
		m.busy = false
		if msg.err != nil {
			return m.fail(msg.err)
		}
		m.lastError = nil
		m.controller = msg.controller
		m.mode = ModeClarify
		m.input.Reset()
		m.input.Placeholder = "Reply to the assistant..."
		m.input.Focus()
		return m, nil

	case clarifyReplyMsg:
		m.busy = false
		if msg.err != nil {
			return m.fail(msg.err)
		}
		m.lastError = nil
		return m, nil

	case clarifyResolvedMsg:
		m.handleResolved(msg)
		return m, waitForResolution(m.resolutions)

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

// Err returns the error that ended the review early, if any.
func (m Model) Err() error {
	return m.fatal
}

// Mode returns what the keyboard currently drives.
func (m Model) Mode() Mode {
	return m.mode
}

// Busy reports whether a backend operation is in flight.
func (m Model) Busy() bool {
	return m.busy
}

// LastError returns the most recent recoverable error shown to the reviewer.
func (m Model) LastError() error {
	return m.lastError
}

// Card returns the card under review.
func (m Model) Card() card.Card {
	return *m.binder.Card()
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keymap.ForceQuit) {
		return m.quit()
	}
	// Every control is disabled while a write or a clarification turn is in flight.
	if m.busy {
		return m, nil
	}

	switch m.mode {
	case ModeEdit:
		return m.handleEditKey(msg)
	case ModeClarify:
		return m.handleClarifyKey(msg)
	default:
		return m.handleCardKey(msg)
	}
}

func (m Model) handleCardKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keymap.Quit):
		return m.quit()

	case key.Matches(msg, m.keymap.Help):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil

	case key.Matches(msg, m.keymap.Prev):
		return m.navigate(m.stepper.CurrentIndex() - 1)

	case key.Matches(msg, m.keymap.Next):
		return m.navigate(m.stepper.CurrentIndex() + 1)
	}

	if m.stepper.Finalized() {
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keymap.Approve):
		edits, err := m.binder.Card().Edits()
		if err != nil {
			return m.fail(err)
		}
		return m.start(m.approve(edits))

	case key.Matches(msg, m.keymap.Skip):
		return m.start(m.skip())

	case key.Matches(msg, m.keymap.Finalize):
		if !m.allDecided() {
			m.status = "Approve or skip every transaction before finalizing"
			return m, nil
		}
		return m.start(m.finalize())

	case key.Matches(msg, m.keymap.Edit):
		if m.binder.Card().State == model.StateApproved {
			return m.fail(common.ErrAlreadyApproved)
		}
		m.mode = ModeEdit
		m.field = 0
		m.loadField()
		return m, nil

	case key.Matches(msg, m.keymap.Clarify):
		return m.start(m.openClarification())
	}

	return m, nil
}

func (m Model) handleEditKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keymap.Close):
		m.mode = ModeCard
		m.input.Blur()
		m.lastError = nil
		return m, nil

	case key.Matches(msg, m.keymap.NextField), key.Matches(msg, m.keymap.Submit):
		if err := m.commitField(); err != nil {
			return m.fail(err)
		}
		if m.field == len(card.Fields)-1 && key.Matches(msg, m.keymap.Submit) {
			m.mode = ModeCard
			m.input.Blur()
			return m, nil
		}
		m.field = (m.field + 1) % len(card.Fields)
		m.loadField()
		return m, nil

	case key.Matches(msg, m.keymap.PrevField):
		if err := m.commitField(); err != nil {
			return m.fail(err)
		}
		m.field = (m.field + len(card.Fields) - 1) % len(card.Fields)
		m.loadField()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleClarifyKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keymap.Close):
		m.closeClarification()
		return m, nil

	case key.Matches(msg, m.keymap.Submit):
		text := strings.TrimSpace(m.input.Value())
		if text == "" || m.controller.Sending() {
			return m, nil
		}
		m.input.Reset()
		return m.start(sendClarification(m.ctx, m.controller, text))

	case key.Matches(msg, m.keymap.Retry):
		return m.start(retryClarification(m.ctx, m.controller))
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleOperationDone(msg operationDoneMsg) (tea.Model, tea.Cmd) {
	m.busy = false
	m.syncCard()
	if msg.err != nil {
		return m.fail(msg.err)
	}

	m.lastError = nil
	switch {
	case msg.outcome.Finalized:
		m.status = "All transactions reviewed. Batch session complete."
	case msg.op == OpApprove:
		m.status = fmt.Sprintf("Approved transaction %d", msg.position+1)
	case msg.op == OpSkip:
		m.status = fmt.Sprintf("Skipped transaction %d", msg.position+1)
	}
	return m, nil
}

func (m *Model) handleResolved(msg clarifyResolvedMsg) {
	if err := m.stepper.Resolve(msg.transactionIndex, msg.entry); err != nil {
		m.lastError = err
		return
	}
	if m.stepper.Current().TransactionIndex == msg.transactionIndex {
		m.binder.Reset(m.stepper.BatchSessionID(), m.stepper.Current())
	}
	if m.controller != nil && m.controller.TransactionIndex() == msg.transactionIndex {
		m.closeClarification()
	}
	m.status = fmt.Sprintf("Transaction %d clarified and ready to approve", msg.transactionIndex+1)
}

func (m Model) navigate(pos int) (tea.Model, tea.Cmd) {
	if _, err := m.stepper.Navigate(pos); err != nil {
		return m.fail(err)
	}
	m.syncCard()
	m.status = ""
	return m, nil
}

func (m Model) start(cmd tea.Cmd) (tea.Model, tea.Cmd) {
	m.busy = true
	m.lastError = nil
	m.status = ""
	return m, cmd
}

// fail shows a recoverable error. An expired session ends the review.
func (m Model) fail(err error) (tea.Model, tea.Cmd) {
	m.lastError = err
	if errors.Is(err, common.ErrUnauthorized) {
		m.fatal = err
		return m.quit()
	}
	return m, nil
}

func (m Model) quit() (tea.Model, tea.Cmd) {
	m.closeClarification()
	m.quitting = true
	return m, tea.Quit
}

func (m *Model) closeClarification() {
	if m.controller != nil {
		m.controller.Close()
		m.controller = nil
	}
	if m.mode == ModeClarify {
		m.mode = ModeCard
		m.input.Blur()
	}
}

func (m *Model) syncCard() {
	if m.stepper == nil || m.stepper.Len() == 0 {
		return
	}
	m.binder.Sync(m.stepper.BatchSessionID(), m.stepper.Current())
}

func (m Model) allDecided() bool {
	for i, n := 0, m.stepper.Len(); i < n; i++ {
		if !m.stepper.State(i).Terminal() {
			return false
		}
	}
	return true
}

// loadField puts the focused field's current value into the input.
func (m *Model) loadField() {
	c := m.binder.Card()
	f := card.Fields[m.field]
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
	m.input.Reset()
	m.input.Placeholder = f.String()
	m.input.SetValue(value)
	m.input.CursorEnd()
	m.input.Focus()
}

// commitField validates the input and writes it to the card.
func (m *Model) commitField() error {
	c := m.binder.Card()
	f := card.Fields[m.field]
	value := strings.TrimSpace(m.input.Value())

	switch f {
	case card.FieldCategory:
		if value == "" {
			c.Set(f, "")
			c.CategoryName = ""
			return nil
		}
		if m.reference == nil || len(m.reference.Categories()) == 0 {
			c.Set(f, value)
			c.CategoryName = value
			return nil
		}
		id, ok := m.reference.MatchCategory(value)
		if !ok {
			return common.NewUserError(fmt.Sprintf("unknown category %q", value), nil)
		}
		c.Set(f, id)
		c.CategoryName = m.reference.CategoryName(id)
		return nil

	case card.FieldContact:
		if value == "" || m.reference == nil || len(m.reference.Contacts()) == 0 {
			c.Set(f, value)
			return nil
		}
		id, ok := m.reference.MatchContact(value)
		if !ok {
			return common.NewUserError(fmt.Sprintf("unknown contact %q", value), nil)
		}
		c.Set(f, id)
		return nil

	case card.FieldDate:
		if value != "" {
			if _, err := time.Parse(time.DateOnly, value); err != nil {
				return common.NewUserError("date must be YYYY-MM-DD", nil)
			}
		}
	}

	c.Set(f, value)
	return nil
}
