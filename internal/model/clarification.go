package model

import (
	"encoding/json"
	"log/slog"
	"time"
)

// Role identifies the author of a clarification message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one displayable line of a clarification thread.
type Message struct {
	CreatedAt time.Time
	Role      Role
	Content   string
	// Failed marks a user message whose turn was rejected; it stays in the thread for retry.
	Failed bool
}

// StoredMessage is a clarification message as persisted by the backend.
// Assistant MessageText is a JSON document; user MessageText is plain text.
type StoredMessage struct {
	CreatedAt   time.Time `json:"createdAt"`
	Role        Role      `json:"role"`
	MessageText string    `json:"messageText"`
}

// ClarificationSession is the stored history of one clarification thread.
type ClarificationSession struct {
	ID                    string          `json:"id"`
	ClarificationMessages []StoredMessage `json:"clarificationMessages"`
}

// Display converts a stored message into its displayable form.
// Assistant messages are unwrapped to their notes field; a parse failure yields an empty body.
func (m StoredMessage) Display() Message {
	msg := Message{
		Role:      m.Role,
		CreatedAt: m.CreatedAt,
	}
	if m.Role != RoleAssistant {
		msg.Content = m.MessageText
		return msg
	}

	var body struct {
		Notes string `json:"notes"`
	}
	if err := json.Unmarshal([]byte(m.MessageText), &body); err != nil {
		slog.Warn("Unparsable assistant message in clarification history", "error", err)
		return msg
	}
	msg.Content = body.Notes
	return msg
}

// CompletionFlag is the backend's is_complete field, which arrives as the string "true" or
// "false" rather than a JSON boolean. The raw string is preserved; only "true" completes.
// TODO: switch to a plain bool once the clarification turn endpoint emits a JSON boolean.
type CompletionFlag struct {
	Raw   string
	IsSet bool
}

// Complete reports whether the backend sent exactly the string "true".
func (f CompletionFlag) Complete() bool {
	return f.IsSet && f.Raw == "true"
}

// UnmarshalJSON keeps string values verbatim; any other JSON kind is recorded but never completes.
func (f *CompletionFlag) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = CompletionFlag{}
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		slog.Debug("Non-string is_complete value", "value", string(data))
		*f = CompletionFlag{}
		return nil
	}
	*f = CompletionFlag{Raw: raw, IsSet: true}
	return nil
}

// MarshalJSON writes the preserved string form.
func (f CompletionFlag) MarshalJSON() ([]byte, error) {
	if !f.IsSet {
		return []byte("null"), nil
	}
	return json.Marshal(f.Raw)
}

// TurnEntry is one transaction snapshot returned by a clarification turn.
// The boolean flags are pointers because an absent flag is not the same as false.
type TurnEntry struct {
	Transaction        *TransactionPayload `json:"transaction"`
	EnrichmentData     *EnrichmentData     `json:"enrichment_data"`
	NeedsClarification *bool               `json:"needs_clarification"`
	NeedsConfirmation  *bool               `json:"needs_confirmation"`
	Notes              *string             `json:"notes"`
	IsComplete         CompletionFlag      `json:"is_complete"`
	TransactionIndex   int                 `json:"transaction_index"`
}

// Resolved reports whether the entry closes its clarification: both flags explicitly false and
// is_complete exactly "true".
func (e TurnEntry) Resolved() bool {
	return e.NeedsClarification != nil && !*e.NeedsClarification &&
		e.NeedsConfirmation != nil && !*e.NeedsConfirmation &&
		e.IsComplete.Complete()
}

// TurnResponse is the body of POST /clarification/session/{id}/message.
type TurnResponse struct {
	Transactions []TurnEntry `json:"transactions"`
}

// Find returns the entry bound to the given transaction index.
func (r TurnResponse) Find(index int) (TurnEntry, bool) {
	for _, entry := range r.Transactions {
		if entry.TransactionIndex == index {
			return entry, true
		}
	}
	return TurnEntry{}, false
}
