// internal/service/dispatcher.go
package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	appErrors "github.com/gitter-badger/grapevine-go/internal/errors"
	"github.com/gitter-badger/grapevine-go/internal/model"
	"github.com/gitter-badger/grapevine-go/internal/render"
	"github.com/gitter-badger/grapevine-go/internal/repository"
	"github.com/gitter-badger/grapevine-go/internal/transport"
)

// Dispatcher is the time-triggered delivery path: it consumes due Sendable
// ids (from the in-process queue or AMQP) and performs the production send.
// Unlike an operator-triggered send, the cancellation flag is authoritative
// here: a cancelled Sendable is always skipped.
type Dispatcher struct {
	SendableRepo repository.SendableRepositoryInterface
	TemplateRepo repository.TemplateRepositoryInterface
	MessageRepo  repository.MessageRepositoryInterface
	Transport    transport.Transport
	FromAddress  string
}

// Dispatch delivers one due Sendable. A nil return means the job is done
// (sent, skipped, or permanently unprocessable); a non-nil return asks the
// queue to retry.
func (d *Dispatcher) Dispatch(ctx context.Context, sendableID int) error {
	sendable, err := d.SendableRepo.GetByID(sendableID)
	if err != nil {
		var notFound *appErrors.ErrSendableNotFound
		if errors.As(err, &notFound) {
			log.Warn().Int("sendable_id", sendableID).Msg("dispatch skipped, sendable not found")
			return nil
		}
		return err
	}

	if sendable.CancelledAtSendTime {
		log.Info().Int("sendable_id", sendable.ID).Msg("dispatch skipped, cancelled at send time")
		return nil
	}
	if sendable.IsSent {
		log.Info().Int("sendable_id", sendable.ID).Msg("dispatch skipped, already sent")
		return nil
	}

	locked, err := d.SendableRepo.TryBeginSend(sendable.ID)
	if err != nil {
		return err
	}
	if !locked {
		return appErrors.ErrSendInProgress
	}
	defer func() {
		if err := d.SendableRepo.EndSend(sendable.ID); err != nil {
			log.Error().Err(err).Int("sendable_id", sendable.ID).Msg("failed to release send guard")
		}
	}()

	tpl, err := d.TemplateRepo.GetByID(sendable.TemplateID)
	if err != nil {
		return err
	}
	rendered, err := render.Render(tpl, sendable.RenderContext)
	if err != nil {
		// Rendering is deterministic, a retry cannot help. Record and move on.
		log.Error().Err(err).Int("sendable_id", sendable.ID).Msg("render failed during dispatch")
		d.recordFailure(sendable, nil, "", "", err.Error())
		return nil
	}

	result, err := d.Transport.Send(ctx, &transport.EmailMessage{
		From:       d.FromAddress,
		Recipients: sendable.Recipients,
		Subject:    rendered.Subject,
		Body:       rendered.Body,
	})
	if err != nil {
		d.recordFailure(sendable, rendered, "", "", err.Error())
		return err
	}
	if !result.Sent {
		// Fail-silently transport or an empty recipient list: not sent, no retry.
		log.Warn().Int("sendable_id", sendable.ID).Msg("dispatch produced no send")
		return nil
	}

	now := time.Now()
	msg := &model.Message{
		SendableID:        sendable.ID,
		Status:            model.MessageStatusSent,
		ProviderMessageID: result.ProviderMessageID,
		Recipients:        sendable.Recipients,
		Subject:           rendered.Subject,
		Body:              rendered.Body,
		SentAt:            &now,
	}
	if err := d.MessageRepo.Create(msg); err != nil {
		return err
	}
	if err := sendable.MarkSent(msg); err != nil {
		return err
	}
	if err := d.SendableRepo.Update(sendable); err != nil {
		return err
	}

	log.Info().Int("sendable_id", sendable.ID).Str("provider_message_id", result.ProviderMessageID).Msg("dispatched")
	return nil
}

func (d *Dispatcher) recordFailure(sendable *model.Sendable, rendered *render.Rendered, subject, body, lastError string) {
	if rendered != nil {
		subject, body = rendered.Subject, rendered.Body
	}
	msg := &model.Message{
		SendableID: sendable.ID,
		Status:     model.MessageStatusFailed,
		Recipients: sendable.Recipients,
		Subject:    subject,
		Body:       body,
		LastError:  lastError,
	}
	if err := d.MessageRepo.Create(msg); err != nil {
		log.Error().Err(err).Int("sendable_id", sendable.ID).Msg("failed to record failed message")
	}
}

// Run drains Sendable ids from jobs until the channel closes or the context
// is cancelled. Used for in-process dispatch and tests.
func (d *Dispatcher) Run(ctx context.Context, jobs <-chan int) {
	for {
		select {
		case <-ctx.Done():
			return
		case id, ok := <-jobs:
			if !ok {
				return
			}
			if err := d.Dispatch(ctx, id); err != nil {
				log.Error().Err(err).Int("sendable_id", id).Msg("dispatch failed")
			}
		}
	}
}
