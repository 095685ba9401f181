// internal/transport/mailgun.go
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gitter-badger/grapevine-go/internal/config"
	appErrors "github.com/gitter-badger/grapevine-go/internal/errors"
)

// Mailgun sends messages through the Mailgun HTTP API: one multipart POST
// to {APIBase}/{ServerName}/messages.mime per invocation, basic auth with
// the fixed "api" user, the raw RFC 5322 message as a file part.
//
// With FailSilently enabled, every failure category is swallowed and
// reported as Sent false; the diagnostic for the most recent failure stays
// retrievable through LastFailure.
type Mailgun struct {
	cfg    config.MailgunConfig
	client *http.Client

	mu          sync.Mutex
	lastFailure string
}

// NewMailgun builds the adapter from an explicit config struct. The HTTP
// client carries the configured bounded timeout.
func NewMailgun(cfg config.MailgunConfig) *Mailgun {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Mailgun{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

// Send dispatches one message. An empty recipient list is a no-op, not an
// error: the result reports not-sent and no HTTP call is made.
func (m *Mailgun) Send(ctx context.Context, msg *EmailMessage) (*SendResult, error) {
	if len(msg.Recipients) == 0 {
		return &SendResult{Sent: false}, nil
	}

	from, err := sanitizeAddress(msg.From)
	if err != nil {
		return nil, &appErrors.ValidationError{Field: "from", Reason: err.Error()}
	}
	recipients := make([]string, 0, len(msg.Recipients))
	for _, addr := range msg.Recipients {
		clean, err := sanitizeAddress(addr)
		if err != nil {
			return nil, &appErrors.ValidationError{Field: "recipient", Reason: err.Error()}
		}
		recipients = append(recipients, clean)
	}

	body, contentType, err := m.multipartBody(from, recipients, msg)
	if err != nil {
		return nil, fmt.Errorf("failed to build request body: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages.mime", strings.TrimRight(m.cfg.APIBase, "/"), m.cfg.ServerName)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.SetBasicAuth("api", m.cfg.AccessKey)

	resp, err := m.client.Do(req)
	if err != nil {
		m.recordFailure(fmt.Sprintf(`{"error":%q}`, err.Error()))
		if m.cfg.FailSilently {
			log.Warn().Err(err).Msg("mailgun request failed, failing silently")
			return &SendResult{Sent: false}, nil
		}
		return nil, &appErrors.TransportFault{Err: err}
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		diagnostic := m.diagnosticFor(resp.StatusCode, respBody)
		m.recordFailure(diagnostic)
		if m.cfg.FailSilently {
			log.Warn().Int("status", resp.StatusCode).Msg("mailgun rejected request, failing silently")
			return &SendResult{Sent: false, StatusCode: resp.StatusCode}, nil
		}
		return nil, &appErrors.ProviderRejected{Status: resp.StatusCode, Body: diagnostic}
	}

	result := &SendResult{Sent: true, StatusCode: resp.StatusCode}
	var ok struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(respBody, &ok); err == nil {
		result.ProviderMessageID = ok.ID
	}
	return result, nil
}

// LastFailure returns the diagnostic for the most recent failed send, or ""
// when no send has failed yet.
func (m *Mailgun) LastFailure() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastFailure
}

func (m *Mailgun) recordFailure(diagnostic string) {
	m.mu.Lock()
	m.lastFailure = diagnostic
	m.mu.Unlock()
}

// diagnosticFor augments the provider's JSON error body with the HTTP
// status and re-serializes it. A non-JSON body is carried as raw text.
func (m *Mailgun) diagnosticFor(status int, body []byte) string {
	failure := map[string]any{}
	if err := json.Unmarshal(body, &failure); err != nil {
		failure["message"] = string(body)
	}
	failure["status"] = status
	out, err := json.Marshal(failure)
	if err != nil {
		return fmt.Sprintf(`{"status":%d}`, status)
	}
	return string(out)
}

func (m *Mailgun) multipartBody(from string, recipients []string, msg *EmailMessage) (*bytes.Buffer, string, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)

	if err := w.WriteField("to", strings.Join(recipients, ", ")); err != nil {
		return nil, "", err
	}
	if err := w.WriteField("from", from); err != nil {
		return nil, "", err
	}

	part, err := w.CreateFormFile("message", "message.mime")
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write([]byte(buildMIME(from, recipients, msg))); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf, w.FormDataContentType(), nil
}

// buildMIME composes the raw RFC 5322 message carried in the file part.
func buildMIME(from string, recipients []string, msg *EmailMessage) string {
	sanitizeHeader := func(s string) string {
		return strings.ReplaceAll(strings.ReplaceAll(s, "\r", ""), "\n", "")
	}

	headers := []string{
		fmt.Sprintf("From: %s", sanitizeHeader(from)),
		fmt.Sprintf("To: %s", sanitizeHeader(strings.Join(recipients, ", "))),
		fmt.Sprintf("Subject: %s", sanitizeHeader(msg.Subject)),
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=UTF-8",
	}
	return fmt.Sprintf("%s\r\n\r\n%s", strings.Join(headers, "\r\n"), msg.Body)
}

// sanitizeAddress parses and normalizes one address before transmission.
func sanitizeAddress(input string) (string, error) {
	addr, err := mail.ParseAddress(input)
	if err != nil {
		return "", fmt.Errorf("unparsable address %q: %w", input, err)
	}
	if addr.Name != "" {
		return addr.String(), nil
	}
	return addr.Address, nil
}

var _ Transport = (*Mailgun)(nil)
