// internal/transport/transport.go
package transport

import "context"

// EmailMessage is a fully-composed message handed to a delivery provider.
type EmailMessage struct {
	From       string
	Recipients []string
	Subject    string
	Body       string
}

// SendResult reports the outcome of one delivery attempt. ProviderMessageID
// is set when the provider assigned one; Sent false with a nil error means
// the adapter was running in fail-silently mode, or there was nothing to
// send (empty recipient list).
type SendResult struct {
	Sent              bool
	ProviderMessageID string
	StatusCode        int
}

// Transport dispatches a composed message through one delivery channel.
// Implementations make exactly one outbound call per invocation and never
// retry internally.
type Transport interface {
	Send(ctx context.Context, msg *EmailMessage) (*SendResult, error)
}
