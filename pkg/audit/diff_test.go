package audit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateChangeSummary(t *testing.T) {
	tests := []struct {
		name     string
		oldValue map[string]interface{}
		newValue map[string]interface{}
		expected string
	}{
		{
			name:     "single field changed",
			oldValue: map[string]interface{}{"status": "open"},
			newValue: map[string]interface{}{"status": "closed"},
			expected: `Status changed from "open" to "closed"`,
		},
		{
			name:     "field added",
			oldValue: map[string]interface{}{},
			newValue: map[string]interface{}{"assigned_to": float64(42)},
			expected: "Assigned To set to 42",
		},
		{
			name:     "field removed",
			oldValue: map[string]interface{}{"court_room": "3B"},
			newValue: map[string]interface{}{},
			expected: `Court Room removed (was "3B")`,
		},
		{
			name: "multiple changes joined and sorted by key",
			oldValue: map[string]interface{}{
				"case_number": "A-100",
				"status":      "open",
			},
			newValue: map[string]interface{}{
				"case_number": "A-101",
				"status":      "closed",
			},
			expected: `Case Number changed from "A-100" to "A-101". Status changed from "open" to "closed"`,
		},
		{
			name:     "unchanged fields skipped",
			oldValue: map[string]interface{}{"title": "Estate of Smith", "status": "open"},
			newValue: map[string]interface{}{"title": "Estate of Smith", "status": "closed"},
			expected: `Status changed from "open" to "closed"`,
		},
		{
			name:     "sensitive keys excluded",
			oldValue: map[string]interface{}{"password_hash": "aaa", "api_key": "old", "status": "open"},
			newValue: map[string]interface{}{"password_hash": "bbb", "api_key": "new", "status": "closed"},
			expected: `Status changed from "open" to "closed"`,
		},
		{
			name:     "sensitive match is case-insensitive substring",
			oldValue: map[string]interface{}{"RefreshToken": "a"},
			newValue: map[string]interface{}{"RefreshToken": "b"},
			expected: "",
		},
		{
			name:     "no changes yields empty summary",
			oldValue: map[string]interface{}{"status": "open"},
			newValue: map[string]interface{}{"status": "open"},
			expected: "",
		},
		{
			name:     "empty string rendered as empty",
			oldValue: map[string]interface{}{"notes": "call client"},
			newValue: map[string]interface{}{"notes": ""},
			expected: `Notes changed from "call client" to empty`,
		},
		{
			name:     "nested values compared by content",
			oldValue: map[string]interface{}{"parties": []interface{}{"smith"}},
			newValue: map[string]interface{}{"parties": []interface{}{"smith"}},
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, GenerateChangeSummary(tt.oldValue, tt.newValue))
		})
	}
}

func TestDefaultSummary(t *testing.T) {
	user := UserSnapshot{ID: 7, Name: "Jane Doe", Role: "employee"}

	tests := []struct {
		action   ActionType
		entity   EntityType
		expected string
	}{
		{ActionCreate, EntityCase, "Case created by Jane Doe"},
		{ActionDelete, EntityDocument, "Document deleted by Jane Doe"},
		{ActionUpload, EntityDocument, "Document uploaded by Jane Doe"},
		{ActionRestore, EntityDocument, "Document restored by Jane Doe"},
		{ActionLogin, EntitySession, "Jane Doe logged in"},
		{ActionLogout, EntitySession, "Jane Doe logged out"},
		{ActionGrant, EntityCase, "Permissions granted on case by Jane Doe"},
		{ActionView, EntityCase, "Case view by Jane Doe"},
	}

	for _, tt := range tests {
		t.Run(string(tt.action), func(t *testing.T) {
			got := defaultSummary(Event{Action: tt.action, EntityType: tt.entity, User: user})
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestHumanizeKey(t *testing.T) {
	assert.Equal(t, "Case Number", humanizeKey("case_number"))
	assert.Equal(t, "Status", humanizeKey("status"))
	assert.Equal(t, "Assigned To", humanizeKey("assigned_to"))
}
