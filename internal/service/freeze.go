// internal/service/freeze.go
package service

import (
	"context"
	"fmt"

	appErrors "github.com/gitter-badger/grapevine-go/internal/errors"
	"github.com/gitter-badger/grapevine-go/internal/model"
	"github.com/gitter-badger/grapevine-go/internal/repository"
)

// FreezeService forks a Sendable's shared template into a private copy so
// it can be customized without touching any other Sendable.
type FreezeService struct {
	SendableRepo repository.SendableRepositoryInterface
	TemplateRepo repository.TemplateRepositoryInterface
	AuditRepo    repository.AuditRepositoryInterface
}

// FreezeTemplate copies the template currently referenced by the Sendable,
// rebinds the Sendable to the copy and audits the original template id.
// Freezing twice is rejected: the Sendable already owns a private copy.
func (s *FreezeService) FreezeTemplate(ctx context.Context, operator *model.Operator, sendableID int) (*model.Template, error) {
	if !operator.CanSend() {
		return nil, appErrors.ErrAccessDenied
	}

	sendable, err := s.SendableRepo.GetByID(sendableID)
	if err != nil {
		return nil, err
	}

	original, err := s.TemplateRepo.GetByID(sendable.TemplateID)
	if err != nil {
		return nil, err
	}
	if original.IsFrozen() {
		return nil, appErrors.ErrAlreadyFrozen
	}

	frozen := &model.Template{
		Name:                fmt.Sprintf("%s (frozen for %s)", original.Name, sendable.Ref),
		Subject:             original.Subject,
		Body:                original.Body,
		FrozenForSendableID: &sendable.ID,
	}
	if err := s.TemplateRepo.Create(frozen); err != nil {
		return nil, err
	}
	if err := s.SendableRepo.UpdateTemplateID(sendable.ID, frozen.ID); err != nil {
		return nil, err
	}

	entry := &model.AuditEntry{
		UserID:            operator.ID,
		EntityType:        "sendable",
		EntityID:          sendable.ID,
		EntityDescription: sendable.Description(),
		ActionKind:        model.ActionChange,
		ChangeMessage:     fmt.Sprintf("Froze TemplateId:%d for customization", original.ID),
	}
	if err := s.AuditRepo.Create(entry); err != nil {
		return nil, err
	}

	return frozen, nil
}
