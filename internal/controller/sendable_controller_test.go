package controller_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitter-badger/grapevine-go/internal/controller"
	appErrors "github.com/gitter-badger/grapevine-go/internal/errors"
	"github.com/gitter-badger/grapevine-go/internal/model"
	"github.com/gitter-badger/grapevine-go/internal/repository"
	"github.com/gitter-badger/grapevine-go/internal/service"
	"github.com/gitter-badger/grapevine-go/internal/transport"
)

// --- Mock Repositories ---

type MockSendableRepo struct {
	sendables map[int]*model.Sendable
}

func (m *MockSendableRepo) GetByID(id int) (*model.Sendable, error) {
	s, ok := m.sendables[id]
	if !ok {
		return nil, appErrors.NewSendableNotFound(id)
	}
	return s, nil
}

func (m *MockSendableRepo) List(offset, limit int, kind, state string) ([]*model.Sendable, int, error) {
	out := []*model.Sendable{}
	for _, s := range m.sendables {
		out = append(out, s)
	}
	return out, len(out), nil
}

func (m *MockSendableRepo) Update(s *model.Sendable) error                 { return nil }
func (m *MockSendableRepo) UpdateTemplateID(sendableID, tplID int) error   { return nil }
func (m *MockSendableRepo) TryBeginSend(id int) (bool, error)              { return true, nil }
func (m *MockSendableRepo) EndSend(id int) error                           { return nil }
func (m *MockSendableRepo) BulkUpdate(ctx context.Context, ids []int, changes repository.BulkChanges, userID int, deltasJSON string) (int, error) {
	return len(ids), nil
}

type MockTemplateRepo struct {
	templates map[int]*model.Template
}

func (m *MockTemplateRepo) GetByID(id int) (*model.Template, error) {
	t, ok := m.templates[id]
	if !ok {
		return nil, appErrors.NewTemplateNotFound(id)
	}
	return t, nil
}
func (m *MockTemplateRepo) Create(t *model.Template) error { t.ID = 99; return nil }
func (m *MockTemplateRepo) Update(t *model.Template) error { return nil }

type MockOperatorRepo struct {
	operators map[int]*model.Operator
}

func (m *MockOperatorRepo) GetByID(id int) (*model.Operator, error) {
	return m.operators[id], nil
}

type MockAuditRepo struct{}

func (m *MockAuditRepo) Create(entry *model.AuditEntry) error { return nil }
func (m *MockAuditRepo) ListForEntity(entityType string, entityID int) ([]model.AuditEntry, error) {
	return []model.AuditEntry{}, nil
}

type MockMessageRepo struct{}

func (m *MockMessageRepo) Create(msg *model.Message) error { msg.ID = 1; return nil }
func (m *MockMessageRepo) GetByID(id int) (*model.Message, error) {
	return nil, nil
}
func (m *MockMessageRepo) UpdateStatus(id int, status, lastError string) error { return nil }

type MockTransport struct{}

func (m *MockTransport) Send(ctx context.Context, msg *transport.EmailMessage) (*transport.SendResult, error) {
	return &transport.SendResult{Sent: true, ProviderMessageID: "msg-1"}, nil
}

// --- Test setup ---

func newRouter(broken bool) *chi.Mux {
	body := "Hi {{.first_name}}!"
	if broken {
		body = "Hi {{.first_name"
	}

	sendableRepo := &MockSendableRepo{sendables: map[int]*model.Sendable{
		1: {
			ID:            1,
			Kind:          "email",
			TemplateID:    1,
			Recipients:    []string{"a@x.com"},
			RenderContext: map[string]string{"first_name": "Alice"},
		},
	}}
	templateRepo := &MockTemplateRepo{templates: map[int]*model.Template{
		1: {ID: 1, Name: "welcome", Subject: "Welcome", Body: body},
	}}
	operatorRepo := &MockOperatorRepo{operators: map[int]*model.Operator{
		7: {ID: 7, Name: "Ada Admin", Email: "ada@example.com", IsStaff: true},
		8: {ID: 8, Name: "Eve Editor", Email: "", IsStaff: true},
	}}
	auditRepo := &MockAuditRepo{}

	ctrl := &controller.SendableController{
		SendableRepo: sendableRepo,
		TemplateRepo: templateRepo,
		OperatorRepo: operatorRepo,
		AuditRepo:    auditRepo,
		SendService: &service.SendService{
			SendableRepo: sendableRepo,
			TemplateRepo: templateRepo,
			MessageRepo:  &MockMessageRepo{},
			AuditRepo:    auditRepo,
			Transport:    &MockTransport{},
			FromAddress:  "noreply@example.com",
		},
		BulkEditService: &service.BulkEditService{SendableRepo: sendableRepo},
		FreezeService: &service.FreezeService{
			SendableRepo: sendableRepo,
			TemplateRepo: templateRepo,
			AuditRepo:    auditRepo,
		},
	}

	r := chi.NewRouter()
	r.Get("/sendables/{id}/render", ctrl.RenderPreview)
	r.Post("/sendables/{id}/send-test", ctrl.SendTest)
	r.Post("/sendables/bulk-edits", ctrl.BulkEdits)
	return r
}

func TestRenderPreviewHandler(t *testing.T) {
	r := newRouter(false)

	req := httptest.NewRequest("GET", "/sendables/1/render", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Hi Alice!")
}

func TestRenderPreviewHandlerSurfacesFailureText(t *testing.T) {
	r := newRouter(true)

	req := httptest.NewRequest("GET", "/sendables/1/render", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	// Mirrors the admin preview: the diagnostic is the response body.
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "TemplateParseError")
}

func TestSendTestHandlerWithoutOperator(t *testing.T) {
	r := newRouter(false)

	req := httptest.NewRequest("POST", "/sendables/1/send-test", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestSendTestHandlerWithoutOperatorEmail(t *testing.T) {
	r := newRouter(false)

	req := httptest.NewRequest("POST", "/sendables/1/send-test", nil)
	req.Header.Set("X-Operator-Id", "8")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestSendTestHandlerSuccess(t *testing.T) {
	r := newRouter(false)

	payload, _ := json.Marshal(map[string]string{"recipient_address": "ada@example.com"})
	req := httptest.NewRequest("POST", "/sendables/1/send-test", bytes.NewReader(payload))
	req.Header.Set("X-Operator-Id", "7")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var outcome service.SendOutcome
	require.NoError(t, json.NewDecoder(w.Body).Decode(&outcome))
	assert.True(t, outcome.Sent)
	assert.Contains(t, outcome.Notice, "ada@example.com")
}

func TestBulkEditsHandlerRejectsMalformedDate(t *testing.T) {
	r := newRouter(false)

	payload, _ := json.Marshal(map[string]interface{}{
		"ids":                 []int{1},
		"scheduled_send_date": "2024-01-01",
		// time component missing
	})
	req := httptest.NewRequest("POST", "/sendables/bulk-edits", bytes.NewReader(payload))
	req.Header.Set("X-Operator-Id", "7")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBulkEditsHandlerSuccess(t *testing.T) {
	r := newRouter(false)

	payload, _ := json.Marshal(map[string]interface{}{
		"ids":                 []int{1},
		"scheduled_send_date": "2024-01-01",
		"scheduled_send_time": "10:00:00",
	})
	req := httptest.NewRequest("POST", "/sendables/bulk-edits", bytes.NewReader(payload))
	req.Header.Set("X-Operator-Id", "7")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var summary service.EditSummary
	require.NoError(t, json.NewDecoder(w.Body).Decode(&summary))
	assert.Equal(t, 1, summary.Affected)
}
