package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// hashPayload is the canonical hash input. Field order is fixed by struct
// declaration order, which encoding/json preserves, so the digest is
// reproducible across processes.
type hashPayload struct {
	OrganizationID int64      `json:"organization_id"`
	UserID         int64      `json:"user_id"`
	EntityType     EntityType `json:"entity_type"`
	EntityID       int64      `json:"entity_id"`
	ActionType     ActionType `json:"action_type"`
	ActionSummary  string     `json:"action_summary"`
	Timestamp      string     `json:"timestamp"`
}

// ComputeHash derives an entry's log_hash from the previous entry's hash
// (empty string for the first entry of an organization) and the entry's
// core fields. The result is a 64-character lowercase hex SHA-256 digest.
//
// The timestamp is truncated to microseconds before hashing: timestamptz
// keeps microsecond precision, and the hash must survive a database round
// trip for chain verification to recompute it.
func ComputeHash(previousHash string, entry *Entry) string {
	payload := hashPayload{
		OrganizationID: entry.OrganizationID,
		UserID:         entry.UserID,
		EntityType:     entry.EntityType,
		EntityID:       entry.EntityID,
		ActionType:     entry.Action,
		ActionSummary:  entry.Summary,
		Timestamp:      entry.CreatedAt.UTC().Truncate(time.Microsecond).Format(time.RFC3339Nano),
	}

	// Marshal of a flat struct with string/int fields cannot fail.
	data, _ := json.Marshal(payload)

	sum := sha256.Sum256(append([]byte(previousHash), data...))
	return hex.EncodeToString(sum[:])
}
