// internal/model/audit_entry.go
package model

import "time"

// ActionChange is the action kind recorded for every mutating
// administrative action in this core.
const ActionChange = "CHANGE"

// AuditEntry is an immutable log record of a mutating administrative
// action: who did what to which entity, with a free-text summary
// (serialized field deltas, or "Sent Test Message ..." style notices).
type AuditEntry struct {
	ID                int       `db:"id" json:"id"`
	UserID            int       `db:"user_id" json:"user_id"`
	EntityType        string    `db:"entity_type" json:"entity_type"`
	EntityID          int       `db:"entity_id" json:"entity_id"`
	EntityDescription string    `db:"entity_description" json:"entity_description"`
	ActionKind        string    `db:"action_kind" json:"action_kind"`
	ChangeMessage     string    `db:"change_message" json:"change_message"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
}
