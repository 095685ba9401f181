package service_test

import (
	"context"
	"sync"

	"github.com/google/uuid"

	appErrors "github.com/gitter-badger/grapevine-go/internal/errors"
	"github.com/gitter-badger/grapevine-go/internal/model"
	"github.com/gitter-badger/grapevine-go/internal/repository"
	"github.com/gitter-badger/grapevine-go/internal/transport"
)

// --- Mock Repositories ---

type MockSendableRepo struct {
	mu         sync.Mutex
	sendables  map[int]*model.Sendable
	inProgress map[int]bool
	updated    []int

	bulkCalls   int
	lastBulkIDs []int
	lastChanges repository.BulkChanges
	lastDeltas  string
	lastUserID  int
}

func NewMockSendableRepo(sendables ...*model.Sendable) *MockSendableRepo {
	m := &MockSendableRepo{
		sendables:  map[int]*model.Sendable{},
		inProgress: map[int]bool{},
	}
	for _, s := range sendables {
		m.sendables[s.ID] = s
	}
	return m
}

func (m *MockSendableRepo) GetByID(id int) (*model.Sendable, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sendables[id]
	if !ok {
		return nil, appErrors.NewSendableNotFound(id)
	}
	return s, nil
}

func (m *MockSendableRepo) List(offset, limit int, kind, state string) ([]*model.Sendable, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := []*model.Sendable{}
	for _, s := range m.sendables {
		all = append(all, s)
	}
	return all, len(all), nil
}

func (m *MockSendableRepo) Update(s *model.Sendable) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendables[s.ID] = s
	m.updated = append(m.updated, s.ID)
	return nil
}

func (m *MockSendableRepo) UpdateTemplateID(sendableID, templateID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sendables[sendableID]; ok {
		s.TemplateID = templateID
	}
	return nil
}

func (m *MockSendableRepo) TryBeginSend(id int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.inProgress[id] {
		return false, nil
	}
	m.inProgress[id] = true
	return true, nil
}

func (m *MockSendableRepo) EndSend(id int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inProgress[id] = false
	return nil
}

func (m *MockSendableRepo) BulkUpdate(ctx context.Context, ids []int, changes repository.BulkChanges, userID int, deltasJSON string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bulkCalls++
	m.lastBulkIDs = ids
	m.lastChanges = changes
	m.lastDeltas = deltasJSON
	m.lastUserID = userID

	affected := 0
	for _, id := range ids {
		s, ok := m.sendables[id]
		if !ok {
			continue
		}
		if changes.ScheduledSendTime != nil {
			t := *changes.ScheduledSendTime
			s.ScheduledSendTime = &t
		}
		if changes.CancelledAtSendTime != nil {
			s.CancelledAtSendTime = *changes.CancelledAtSendTime
		}
		if changes.TransportName != nil {
			s.TransportName = *changes.TransportName
		}
		affected++
	}
	return affected, nil
}

var _ repository.SendableRepositoryInterface = (*MockSendableRepo)(nil)

type MockTemplateRepo struct {
	mu        sync.Mutex
	templates map[int]*model.Template
	nextID    int
}

func NewMockTemplateRepo(templates ...*model.Template) *MockTemplateRepo {
	m := &MockTemplateRepo{templates: map[int]*model.Template{}, nextID: 1}
	for _, t := range templates {
		m.templates[t.ID] = t
		if t.ID >= m.nextID {
			m.nextID = t.ID + 1
		}
	}
	return m
}

func (m *MockTemplateRepo) GetByID(id int) (*model.Template, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.templates[id]
	if !ok {
		return nil, appErrors.NewTemplateNotFound(id)
	}
	return t, nil
}

func (m *MockTemplateRepo) Create(t *model.Template) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t.ID = m.nextID
	m.nextID++
	m.templates[t.ID] = t
	return nil
}

func (m *MockTemplateRepo) Update(t *model.Template) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.templates[t.ID] = t
	return nil
}

var _ repository.TemplateRepositoryInterface = (*MockTemplateRepo)(nil)

type MockMessageRepo struct {
	mu       sync.Mutex
	messages []*model.Message
}

func (m *MockMessageRepo) Create(msg *model.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg.ID = len(m.messages) + 1
	m.messages = append(m.messages, msg)
	return nil
}

func (m *MockMessageRepo) GetByID(id int) (*model.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range m.messages {
		if msg.ID == id {
			return msg, nil
		}
	}
	return nil, nil
}

func (m *MockMessageRepo) UpdateStatus(id int, status, lastError string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range m.messages {
		if msg.ID == id {
			msg.Status = status
			msg.LastError = lastError
		}
	}
	return nil
}

var _ repository.MessageRepositoryInterface = (*MockMessageRepo)(nil)

type MockAuditRepo struct {
	mu      sync.Mutex
	entries []*model.AuditEntry
}

func (m *MockAuditRepo) Create(entry *model.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry.ID = len(m.entries) + 1
	m.entries = append(m.entries, entry)
	return nil
}

func (m *MockAuditRepo) ListForEntity(entityType string, entityID int) ([]model.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.AuditEntry{}
	for _, e := range m.entries {
		if e.EntityType == entityType && e.EntityID == entityID {
			out = append(out, *e)
		}
	}
	return out, nil
}

var _ repository.AuditRepositoryInterface = (*MockAuditRepo)(nil)

// --- Mock Transport ---

type MockTransport struct {
	mu       sync.Mutex
	result   *transport.SendResult
	err      error
	messages []*transport.EmailMessage
}

func (m *MockTransport) Send(ctx context.Context, msg *transport.EmailMessage) (*transport.SendResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
	if m.err != nil {
		return nil, m.err
	}
	if m.result != nil {
		return m.result, nil
	}
	return &transport.SendResult{Sent: true, ProviderMessageID: "msg-1"}, nil
}

func (m *MockTransport) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.messages)
}

var _ transport.Transport = (*MockTransport)(nil)

// --- Fixtures ---

func staffOperator() *model.Operator {
	return &model.Operator{ID: 7, Name: "Ada Admin", Email: "ada@example.com", IsStaff: true}
}

func newSendable(id int, templateID int, recipients []string) *model.Sendable {
	return &model.Sendable{
		ID:            id,
		Ref:           uuid.New(),
		Kind:          "email",
		TemplateID:    templateID,
		TransportName: "mailgun",
		Recipients:    recipients,
		RenderContext: map[string]string{"first_name": "Alice", "location": "Nairobi"},
	}
}

func welcomeTemplate(id int) *model.Template {
	return &model.Template{
		ID:      id,
		Name:    "welcome",
		Subject: "Welcome, {{.first_name}}!",
		Body:    "Hi {{.first_name}}, greetings from {{.location}}.",
	}
}
