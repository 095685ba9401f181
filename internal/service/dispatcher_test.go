package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/gitter-badger/grapevine-go/internal/errors"
	"github.com/gitter-badger/grapevine-go/internal/model"
	"github.com/gitter-badger/grapevine-go/internal/service"
	"github.com/gitter-badger/grapevine-go/internal/transport"
)

func newDispatcher(sendableRepo *MockSendableRepo, templateRepo *MockTemplateRepo, tp *MockTransport) (*service.Dispatcher, *MockMessageRepo) {
	messageRepo := &MockMessageRepo{}
	return &service.Dispatcher{
		SendableRepo: sendableRepo,
		TemplateRepo: templateRepo,
		MessageRepo:  messageRepo,
		Transport:    tp,
		FromAddress:  "noreply@example.com",
	}, messageRepo
}

func TestDispatchSkipsCancelledSendable(t *testing.T) {
	s := newSendable(1, 1, []string{"a@x.com"})
	s.CancelledAtSendTime = true
	repo := NewMockSendableRepo(s)
	tp := &MockTransport{}
	d, messageRepo := newDispatcher(repo, NewMockTemplateRepo(welcomeTemplate(1)), tp)

	err := d.Dispatch(context.Background(), 1)
	require.NoError(t, err)

	// The cancellation flag is authoritative for the time-triggered path.
	assert.False(t, s.IsSent)
	assert.Equal(t, 0, tp.Calls())
	assert.Empty(t, messageRepo.messages)
}

func TestDispatchSkipsAlreadySent(t *testing.T) {
	s := newSendable(1, 1, []string{"a@x.com"})
	s.IsSent = true
	repo := NewMockSendableRepo(s)
	tp := &MockTransport{}
	d, _ := newDispatcher(repo, NewMockTemplateRepo(welcomeTemplate(1)), tp)

	require.NoError(t, d.Dispatch(context.Background(), 1))
	assert.Equal(t, 0, tp.Calls())
}

func TestDispatchMissingSendableIsNotRetried(t *testing.T) {
	repo := NewMockSendableRepo()
	tp := &MockTransport{}
	d, _ := newDispatcher(repo, NewMockTemplateRepo(welcomeTemplate(1)), tp)

	require.NoError(t, d.Dispatch(context.Background(), 42))
}

func TestDispatchSuccess(t *testing.T) {
	s := newSendable(1, 1, []string{"a@x.com", "b@x.com"})
	repo := NewMockSendableRepo(s)
	tp := &MockTransport{result: &transport.SendResult{Sent: true, ProviderMessageID: "msg-9"}}
	d, messageRepo := newDispatcher(repo, NewMockTemplateRepo(welcomeTemplate(1)), tp)

	require.NoError(t, d.Dispatch(context.Background(), 1))

	assert.True(t, s.IsSent)
	require.Len(t, messageRepo.messages, 1)
	msg := messageRepo.messages[0]
	assert.Equal(t, model.MessageStatusSent, msg.Status)
	assert.Equal(t, "msg-9", msg.ProviderMessageID)
	assert.Equal(t, []string{"a@x.com", "b@x.com"}, msg.Recipients)
	require.NotNil(t, s.MessageID)
	assert.Equal(t, msg.ID, *s.MessageID)
}

func TestDispatchTransportFailureTriggersRetry(t *testing.T) {
	s := newSendable(1, 1, []string{"a@x.com"})
	repo := NewMockSendableRepo(s)
	tp := &MockTransport{err: &appErrors.TransportFault{Err: context.DeadlineExceeded}}
	d, messageRepo := newDispatcher(repo, NewMockTemplateRepo(welcomeTemplate(1)), tp)

	err := d.Dispatch(context.Background(), 1)
	require.Error(t, err)

	assert.False(t, s.IsSent)
	require.Len(t, messageRepo.messages, 1)
	assert.Equal(t, model.MessageStatusFailed, messageRepo.messages[0].Status)
	assert.NotEmpty(t, messageRepo.messages[0].LastError)
}

func TestDispatcherRunDrainsJobChannel(t *testing.T) {
	s := newSendable(1, 1, []string{"a@x.com"})
	repo := NewMockSendableRepo(s)
	tp := &MockTransport{}
	d, _ := newDispatcher(repo, NewMockTemplateRepo(welcomeTemplate(1)), tp)

	jobs := make(chan int, 1)
	jobs <- 1
	close(jobs)

	done := make(chan struct{})
	go func() {
		d.Run(context.Background(), jobs)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher did not drain the job channel")
	}

	assert.True(t, s.IsSent)
}
