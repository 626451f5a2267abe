// Package progress consumes the extraction progress stream.
package progress

import (
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/Veraticus/the-receipts-must-flow/internal/model"
)

// EventType discriminates progress events.
type EventType string

const (
	EventConnected EventType = "connected"
	EventProgress  EventType = "progress"
	EventComplete  EventType = "complete"
	EventError     EventType = "error"
)

// Step names an extraction phase. Steps are informational: they may repeat or arrive out
// of order, and only EventComplete and EventError end a stream.
type Step string

const (
	StepValidatingReceipt     Step = "validating_receipt"
	StepFetchingUserData      Step = "fetching_user_data"
	StepCheckingSession       Step = "checking_session"
	StepInvokingAI            Step = "invoking_ai"
	StepAnalyzingTransactions Step = "analyzing_transactions"
	StepExecutingTools        Step = "executing_tools"
	StepCreatingSession       Step = "creating_session"
	StepEnrichingData         Step = "enriching_data"
	StepFinalizingExtraction  Step = "finalizing_extraction"
	StepComplete              Step = "complete"
)

var stepLabels = map[Step]string{
	StepValidatingReceipt:     "Validating receipt",
	StepFetchingUserData:      "Fetching account data",
	StepCheckingSession:       "Checking for an existing session",
	StepInvokingAI:            "Reading the document",
	StepAnalyzingTransactions: "Analyzing transactions",
	StepExecutingTools:        "Matching contacts and categories",
	StepCreatingSession:       "Creating review session",
	StepEnrichingData:         "Enriching transactions",
	StepFinalizingExtraction:  "Finalizing",
	StepComplete:              "Done",
}

// Label is a human-readable name for the step. Unknown steps are shown as sent.
func (s Step) Label() string {
	if label, ok := stepLabels[s]; ok {
		return label
	}
	return string(s)
}

const dataPrefix = "data: "

// Event is one normalized message from the progress stream.
type Event struct {
	// Err classifies a terminal error event: common.ErrCancelled, common.ErrTransport,
	// or a *common.APIError carrying the backend's message.
	Err      error                   `json:"-"`
	Data     *model.ExtractionResult `json:"data,omitempty"`
	Type     EventType               `json:"type"`
	Step     Step                    `json:"step,omitempty"`
	Message  string                  `json:"message,omitempty"`
	Progress float64                 `json:"progress,omitempty"`
}

// Terminal reports whether the event ends the stream.
func (e Event) Terminal() bool {
	return e.Type == EventComplete || e.Type == EventError
}

// Percent returns the progress clamped to 0..100.
func (e Event) Percent() int {
	switch {
	case e.Progress < 0:
		return 0
	case e.Progress > 100:
		return 100
	default:
		return int(e.Progress)
	}
}

// ParseLine decodes one stream line. Lines without the data prefix and malformed JSON are
// skipped; malformed JSON is logged.
func ParseLine(line string) (Event, bool) {
	if !strings.HasPrefix(line, dataPrefix) {
		return Event{}, false
	}
	payload := strings.TrimSpace(strings.TrimPrefix(line, dataPrefix))
	if payload == "" {
		return Event{}, false
	}

	var ev Event
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		slog.Warn("Skipping malformed progress event", "error", err, "line", truncate(payload, 120))
		return Event{}, false
	}

	switch ev.Type {
	case EventConnected, EventProgress, EventComplete, EventError:
		return ev, true
	default:
		slog.Debug("Skipping unknown progress event", "type", ev.Type)
		return Event{}, false
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
