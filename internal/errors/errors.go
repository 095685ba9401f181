// internal/errors/errors.go
package appErrors

import (
	"errors"
	"fmt"
)

// Sentinels checked before any side effect occurs. A request that fails one
// of these mutates nothing.
var (
	ErrAccessDenied           = errors.New("operator lacks required privilege")
	ErrMissingOperatorAddress = errors.New("operator has no email address on file")
	ErrAlreadyFrozen          = errors.New("template is already frozen for this sendable")
	ErrSendInProgress         = errors.New("a send is already in flight for this sendable")
)

// ErrSendableNotFound is returned when a Sendable id resolves to nothing.
type ErrSendableNotFound struct {
	SendableID int
}

func (e *ErrSendableNotFound) Error() string {
	return fmt.Sprintf("sendable with ID %d not found", e.SendableID)
}

// Helper constructor
func NewSendableNotFound(id int) error {
	return &ErrSendableNotFound{SendableID: id}
}

// ErrTemplateNotFound is returned when a template id resolves to nothing.
type ErrTemplateNotFound struct {
	TemplateID int
}

func (e *ErrTemplateNotFound) Error() string {
	return fmt.Sprintf("template with ID %d not found", e.TemplateID)
}

func NewTemplateNotFound(id int) error {
	return &ErrTemplateNotFound{TemplateID: id}
}

// ValidationError marks malformed operator input, chiefly an unparsable
// combined date/time in a bulk edit. It aborts the whole batch.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// TransportFault is a network-level failure reaching the delivery provider.
type TransportFault struct {
	Err error
}

func (e *TransportFault) Error() string {
	return fmt.Sprintf("transport fault contacting delivery provider: %v", e.Err)
}

func (e *TransportFault) Unwrap() error {
	return e.Err
}

// ProviderRejected is a non-success response from the delivery provider.
// Body is the diagnostic payload: the provider's JSON error body augmented
// with the HTTP status and re-serialized.
type ProviderRejected struct {
	Status int
	Body   string
}

func (e *ProviderRejected) Error() string {
	return fmt.Sprintf("delivery provider rejected request (status %d): %s", e.Status, e.Body)
}
