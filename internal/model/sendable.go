// internal/model/sendable.go
package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Sendable is one schedulable, renderable outbound message instance.
// ScheduledSendTime nil means the record is an unscheduled draft.
type Sendable struct {
	ID                  int               `db:"id" json:"id"`
	Ref                 uuid.UUID         `db:"ref" json:"ref"`
	Kind                string            `db:"kind" json:"kind"`
	ScheduledSendTime   *time.Time        `db:"scheduled_send_time" json:"scheduled_send_time,omitempty"`
	CancelledAtSendTime bool              `db:"cancelled_at_send_time" json:"cancelled_at_send_time"`
	IsSent              bool              `db:"is_sent" json:"is_sent"`
	MessageID           *int              `db:"message_id" json:"message_id,omitempty"`
	Message             *Message          `db:"-" json:"message,omitempty"`
	TemplateID          int               `db:"template_id" json:"template_id"`
	TransportName       string            `db:"transport_name" json:"transport_name"`
	Recipients          []string          `db:"recipients" json:"recipients"`
	RenderContext       map[string]string `db:"render_context" json:"render_context,omitempty"`
	CreatedAt           time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt           *time.Time        `db:"updated_at" json:"updated_at,omitempty"`
}

// MarkSent flips IsSent and attaches the transmitted message record.
// IsSent is monotonic: a sent Sendable stays sent, and the attached
// message must itself be in status SENT.
func (s *Sendable) MarkSent(msg *Message) error {
	if s.IsSent {
		return fmt.Errorf("sendable %d is already sent", s.ID)
	}
	if msg == nil {
		return fmt.Errorf("sendable %d cannot be marked sent without a message record", s.ID)
	}
	if msg.Status != MessageStatusSent {
		return fmt.Errorf("sendable %d cannot be marked sent with message in status %q", s.ID, msg.Status)
	}
	if s.CancelledAtSendTime {
		return fmt.Errorf("sendable %d is cancelled at send time", s.ID)
	}
	s.IsSent = true
	s.MessageID = &msg.ID
	s.Message = msg
	return nil
}

// Description is the human-readable label used in audit entries.
func (s *Sendable) Description() string {
	return fmt.Sprintf("%s Sendable %s", s.Kind, s.Ref)
}
