package audit

import (
	"time"
)

// ActionType categorizes the recorded action
type ActionType string

const (
	ActionCreate  ActionType = "CREATE"
	ActionUpdate  ActionType = "UPDATE"
	ActionDelete  ActionType = "DELETE"
	ActionView    ActionType = "VIEW"
	ActionLogin   ActionType = "LOGIN"
	ActionLogout  ActionType = "LOGOUT"
	ActionUpload  ActionType = "UPLOAD"
	ActionRestore ActionType = "RESTORE"
	ActionGrant   ActionType = "GRANT"
	ActionRevoke  ActionType = "REVOKE"
)

// EntityType is the uppercase noun naming the audited entity
type EntityType string

const (
	EntityCase         EntityType = "CASE"
	EntityDocument     EntityType = "DOCUMENT"
	EntityHearing      EntityType = "HEARING"
	EntityClient       EntityType = "CLIENT"
	EntityCourt        EntityType = "COURT"
	EntityEmployee     EntityType = "EMPLOYEE"
	EntityOrganization EntityType = "ORGANIZATION"
	EntitySubscription EntityType = "SUBSCRIPTION"
	EntityPermission   EntityType = "PERMISSION"
	EntitySession      EntityType = "SESSION"
)

// UserSnapshot freezes the acting user's identity at record time, so the
// log stays meaningful after renames or departures.
type UserSnapshot struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

// Event is the input to Record. OldValue/NewValue are optional snapshots;
// when both are present for an UPDATE the recorder derives the summary from
// their diff unless Summary is set explicitly.
type Event struct {
	OrganizationID int64
	User           UserSnapshot
	ModuleName     string
	EntityType     EntityType
	EntityID       int64
	Action         ActionType
	Summary        string // optional override; generated when empty
	OldValue       map[string]interface{}
	NewValue       map[string]interface{}
	IPAddress      string
	UserAgent      string
}

// Entry is a persisted audit log row. Immutable once written: application
// code never updates or deletes entries.
type Entry struct {
	ID             int64                  `json:"id"`
	OrganizationID int64                  `json:"organization_id"`
	UserID         int64                  `json:"user_id"`
	UserName       string                 `json:"user_name"`
	UserRole       string                 `json:"user_role"`
	ModuleName     string                 `json:"module_name"`
	EntityType     EntityType             `json:"entity_type"`
	EntityID       int64                  `json:"entity_id"`
	Action         ActionType             `json:"action_type"`
	Summary        string                 `json:"action_summary"`
	OldValue       map[string]interface{} `json:"old_value,omitempty"`
	NewValue       map[string]interface{} `json:"new_value,omitempty"`
	IPAddress      string                 `json:"ip_address,omitempty"`
	UserAgent      string                 `json:"user_agent,omitempty"`
	LogHash        string                 `json:"log_hash"`
	CreatedAt      time.Time              `json:"created_at"`
}

// SearchFilter narrows audit entry queries
type SearchFilter struct {
	OrganizationID *int64
	UserID         *int64
	EntityType     EntityType
	EntityID       *int64
	Action         ActionType
	StartTime      *time.Time
	EndTime        *time.Time
	Limit          int
	Offset         int
}

// VerifyResult reports the outcome of a chain walk
type VerifyResult struct {
	OrganizationID int64 `json:"organization_id"`
	EntriesChecked int   `json:"entries_checked"`
	Valid          bool  `json:"valid"`
	// FirstBadEntry is the id of the first entry whose stored hash does
	// not match recomputation; zero when the chain is valid.
	FirstBadEntry int64 `json:"first_bad_entry,omitempty"`
}
