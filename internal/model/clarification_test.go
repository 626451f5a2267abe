package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoredMessage_Display(t *testing.T) {
	tests := []struct {
		name    string
		message StoredMessage
		want    string
	}{
		{
			name:    "assistant notes are unwrapped",
			message: StoredMessage{Role: RoleAssistant, MessageText: `{"notes":"Please confirm the payee"}`},
			want:    "Please confirm the payee",
		},
		{
			name:    "assistant parse failure yields empty body",
			message: StoredMessage{Role: RoleAssistant, MessageText: "Please confirm the payee"},
			want:    "",
		},
		{
			name:    "assistant without notes",
			message: StoredMessage{Role: RoleAssistant, MessageText: `{"transactions":[]}`},
			want:    "",
		},
		{
			name:    "user text is verbatim",
			message: StoredMessage{Role: RoleUser, MessageText: `{"notes":"not parsed"}`},
			want:    `{"notes":"not parsed"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.message.Display()
			assert.Equal(t, tt.want, got.Content)
			assert.Equal(t, tt.message.Role, got.Role)
		})
	}
}

func TestTurnEntry_Resolved(t *testing.T) {
	tests := []struct {
		name string
		body string
		want bool
	}{
		{"all conditions met", `{"transaction_index":0,"needs_clarification":false,"needs_confirmation":false,"is_complete":"true"}`, true},
		{"is_complete false string", `{"transaction_index":0,"needs_clarification":false,"needs_confirmation":false,"is_complete":"false"}`, false},
		{"is_complete boolean", `{"transaction_index":0,"needs_clarification":false,"needs_confirmation":false,"is_complete":true}`, false},
		{"is_complete missing", `{"transaction_index":0,"needs_clarification":false,"needs_confirmation":false}`, false},
		{"still needs clarification", `{"transaction_index":0,"needs_clarification":true,"needs_confirmation":false,"is_complete":"true"}`, false},
		{"still needs confirmation", `{"transaction_index":0,"needs_clarification":false,"needs_confirmation":true,"is_complete":"true"}`, false},
		{"flags absent", `{"transaction_index":0,"is_complete":"true"}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var entry TurnEntry
			require.NoError(t, json.Unmarshal([]byte(tt.body), &entry))
			assert.Equal(t, tt.want, entry.Resolved())
		})
	}
}

func TestTurnResponse_Find(t *testing.T) {
	var resp TurnResponse
	require.NoError(t, json.Unmarshal([]byte(`{"transactions":[
		{"transaction_index":0,"notes":"first"},
		{"transaction_index":2,"notes":"third"}
	]}`), &resp))

	entry, ok := resp.Find(2)
	require.True(t, ok)
	require.NotNil(t, entry.Notes)
	assert.Equal(t, "third", *entry.Notes)

	_, ok = resp.Find(1)
	assert.False(t, ok)
}

func TestProcessingStatus_UnmarshalNull(t *testing.T) {
	var x TransactionExtraction
	require.NoError(t, json.Unmarshal([]byte(`{"transaction_index":3,"processing_status":null,"transaction":null,"enrichment_data":null}`), &x))
	assert.Equal(t, ProcessingUnset, x.ProcessingStatus)
	assert.False(t, x.ProcessingStatus.Terminal())
	assert.False(t, x.Renderable())

	require.NoError(t, json.Unmarshal([]byte(`{"processing_status":"skipped"}`), &x))
	assert.True(t, x.ProcessingStatus.Terminal())
}
