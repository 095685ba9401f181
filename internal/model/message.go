// internal/model/message.go
package model

import "time"

const (
	MessageStatusQueued = "queued"
	MessageStatusSent   = "sent"
	MessageStatusFailed = "failed"
)

// Message is the immutable record of what was actually transmitted for a
// Sendable. It is created on the first delivery attempt and never deleted.
type Message struct {
	ID                int        `db:"id" json:"id"`
	SendableID        int        `db:"sendable_id" json:"sendable_id"`
	Status            string     `db:"status" json:"status"` // queued, sent, failed
	ProviderMessageID string     `db:"provider_message_id" json:"provider_message_id,omitempty"`
	Recipients        []string   `db:"recipients" json:"recipients"`
	Subject           string     `db:"subject" json:"subject"`
	Body              string     `db:"body" json:"body"`
	LastError         string     `db:"last_error" json:"last_error,omitempty"`
	SentAt            *time.Time `db:"sent_at" json:"sent_at,omitempty"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
}
