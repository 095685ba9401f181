// internal/model/template.go
package model

import "time"

// Template is the renderable content for a Sendable. A template is either
// shared (FrozenForSendableID nil, referenced by any number of Sendables) or
// frozen (a private copy owned by exactly one Sendable). Freezing is
// one-directional: edits to a frozen copy never propagate back.
type Template struct {
	ID                  int        `db:"id" json:"id"`
	Name                string     `db:"name" json:"name"`
	Subject             string     `db:"subject" json:"subject"`
	Body                string     `db:"body" json:"body"`
	FrozenForSendableID *int       `db:"frozen_for_sendable_id" json:"frozen_for_sendable_id,omitempty"`
	CreatedAt           time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt           *time.Time `db:"updated_at" json:"updated_at,omitempty"`
}

// IsFrozen reports whether this template is a private per-Sendable copy.
func (t *Template) IsFrozen() bool {
	return t.FrozenForSendableID != nil
}
