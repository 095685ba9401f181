// internal/service/sender.go
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	appErrors "github.com/gitter-badger/grapevine-go/internal/errors"
	"github.com/gitter-badger/grapevine-go/internal/model"
	"github.com/gitter-badger/grapevine-go/internal/render"
	"github.com/gitter-badger/grapevine-go/internal/repository"
	"github.com/gitter-badger/grapevine-go/internal/transport"
)

// SendService is the orchestrator for operator-triggered sends, test or
// real. Privilege and test-address checks run before any other work;
// rendering and transport failures are caught here and reported in the
// outcome rather than propagated.
type SendService struct {
	SendableRepo repository.SendableRepositoryInterface
	TemplateRepo repository.TemplateRepositoryInterface
	MessageRepo  repository.MessageRepositoryInterface
	AuditRepo    repository.AuditRepositoryInterface
	Transport    transport.Transport
	FromAddress  string
}

// SendOutcome is what the operator sees after a send attempt: either a
// success notice (naming the recipient when targeted) or an error notice.
type SendOutcome struct {
	Sent              bool     `json:"sent"`
	IsTest            bool     `json:"is_test"`
	Recipients        []string `json:"recipients"`
	ProviderMessageID string   `json:"provider_message_id,omitempty"`
	Notice            string   `json:"notice,omitempty"`
	Error             string   `json:"error,omitempty"`
}

// SendMessage sends the Sendable's rendered content, as a test or for real.
// recipientOverride targets a single address; empty means the Sendable's
// own recipient list. Repeated failures never flip IsSent; a repeated real
// send against an already-sent Sendable is a new physical send, so callers
// should consult IsSent and warn first.
func (s *SendService) SendMessage(ctx context.Context, operator *model.Operator, sendableID int, isTest bool, recipientOverride string) (*SendOutcome, error) {
	if !operator.CanSend() {
		return nil, appErrors.ErrAccessDenied
	}
	if isTest && operator.Email == "" {
		return nil, appErrors.ErrMissingOperatorAddress
	}

	sendable, err := s.SendableRepo.GetByID(sendableID)
	if err != nil {
		return nil, err
	}

	locked, err := s.SendableRepo.TryBeginSend(sendable.ID)
	if err != nil {
		return nil, err
	}
	if !locked {
		return nil, appErrors.ErrSendInProgress
	}
	defer func() {
		if err := s.SendableRepo.EndSend(sendable.ID); err != nil {
			log.Error().Err(err).Int("sendable_id", sendable.ID).Msg("failed to release send guard")
		}
	}()

	// Recipient resolution: explicit override, else the production list,
	// else empty (the adapter then no-ops rather than erroring).
	recipients := sendable.Recipients
	if recipientOverride != "" {
		recipients = []string{recipientOverride}
	}

	outcome := &SendOutcome{IsTest: isTest, Recipients: recipients}

	tpl, err := s.TemplateRepo.GetByID(sendable.TemplateID)
	if err != nil {
		return nil, err
	}
	rendered, err := render.Render(tpl, sendable.RenderContext)
	if err != nil {
		// Rendering failure is surfaced as diagnostic text, not a fault.
		outcome.Error = err.Error()
		return outcome, nil
	}

	result, err := s.Transport.Send(ctx, &transport.EmailMessage{
		From:       s.FromAddress,
		Recipients: recipients,
		Subject:    rendered.Subject,
		Body:       rendered.Body,
	})
	if err != nil {
		log.Warn().Err(err).Int("sendable_id", sendable.ID).Bool("is_test", isTest).Msg("send failed")
		outcome.Error = fmt.Sprintf("Problem sending message: %v", err)
		return outcome, nil
	}
	if !result.Sent {
		outcome.Error = "Problem sending message."
		return outcome, nil
	}

	outcome.Sent = true
	outcome.ProviderMessageID = result.ProviderMessageID

	prefix := ""
	if isTest {
		prefix = "Test "
	}
	outcome.Notice = fmt.Sprintf("%sMessage sent", prefix)
	if recipientOverride != "" {
		outcome.Notice += fmt.Sprintf(" to %s", recipientOverride)
	}

	if !isTest {
		if err := s.recordRealSend(sendable, recipients, rendered, result); err != nil {
			return nil, err
		}
	}

	entry := &model.AuditEntry{
		UserID:            operator.ID,
		EntityType:        "sendable",
		EntityID:          sendable.ID,
		EntityDescription: sendable.Description(),
		ActionKind:        model.ActionChange,
		ChangeMessage:     fmt.Sprintf("Sent %sMessage %s for Sendable Id: %d", prefix, result.ProviderMessageID, sendable.ID),
	}
	if err := s.AuditRepo.Create(entry); err != nil {
		log.Error().Err(err).Int("sendable_id", sendable.ID).Msg("failed to write audit entry")
	}

	return outcome, nil
}

// recordRealSend persists the message record and marks the Sendable sent.
// An already-sent Sendable keeps its original message reference: IsSent is
// monotonic and MessageID always names the first successful transmission.
func (s *SendService) recordRealSend(sendable *model.Sendable, recipients []string, rendered *render.Rendered, result *transport.SendResult) error {
	now := time.Now()
	msg := &model.Message{
		SendableID:        sendable.ID,
		Status:            model.MessageStatusSent,
		ProviderMessageID: result.ProviderMessageID,
		Recipients:        recipients,
		Subject:           rendered.Subject,
		Body:              rendered.Body,
		SentAt:            &now,
	}
	if err := s.MessageRepo.Create(msg); err != nil {
		return err
	}
	if sendable.IsSent {
		return nil
	}
	// A manual real send is an operator override: it clears a standing
	// cancellation rather than coexisting with it.
	sendable.CancelledAtSendTime = false
	if err := sendable.MarkSent(msg); err != nil {
		return err
	}
	return s.SendableRepo.Update(sendable)
}
