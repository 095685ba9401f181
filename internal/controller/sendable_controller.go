// internal/controller/sendable_controller.go
package controller

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	appErrors "github.com/gitter-badger/grapevine-go/internal/errors"
	"github.com/gitter-badger/grapevine-go/internal/model"
	"github.com/gitter-badger/grapevine-go/internal/queue"
	"github.com/gitter-badger/grapevine-go/internal/render"
	"github.com/gitter-badger/grapevine-go/internal/repository"
	"github.com/gitter-badger/grapevine-go/internal/service"
)

type SendableController struct {
	SendableRepo repository.SendableRepositoryInterface
	TemplateRepo repository.TemplateRepositoryInterface
	OperatorRepo repository.OperatorRepositoryInterface
	AuditRepo    repository.AuditRepositoryInterface

	SendService     *service.SendService
	BulkEditService *service.BulkEditService
	FreezeService   *service.FreezeService
	Queue           queue.Queue
}

// operatorFrom resolves the acting operator from the X-Operator-Id header.
// Authentication is the host platform's concern; this only maps an id that
// the host already verified onto an operator record.
func (c *SendableController) operatorFrom(r *http.Request) (*model.Operator, error) {
	idStr := r.Header.Get("X-Operator-Id")
	if idStr == "" {
		return nil, nil
	}
	id, err := strconv.Atoi(idStr)
	if err != nil {
		return nil, nil
	}
	return c.OperatorRepo.GetByID(id)
}

func (c *SendableController) ListSendables(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	kind := r.URL.Query().Get("kind")
	state := r.URL.Query().Get("state")

	sendables, total, err := c.SendableRepo.List((page-1)*pageSize, pageSize, kind, state)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	totalPages := (total + pageSize - 1) / pageSize
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"data": sendables,
		"pagination": map[string]int{
			"page":        page,
			"page_size":   pageSize,
			"total_count": total,
			"total_pages": totalPages,
		},
	})
}

func (c *SendableController) GetSendable(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid sendable id", http.StatusBadRequest)
		return
	}

	sendable, err := c.SendableRepo.GetByID(id)
	if err != nil {
		writeError(w, err)
		return
	}

	audit, err := c.AuditRepo.ListForEntity("sendable", sendable.ID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"sendable": sendable,
		"audit":    audit,
	})
}

// RenderPreview returns the rendered content for one Sendable. A rendering
// failure comes back as "Category: message" text rather than a server error,
// so operators can see exactly what broke in the template.
func (c *SendableController) RenderPreview(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid sendable id", http.StatusBadRequest)
		return
	}

	sendable, err := c.SendableRepo.GetByID(id)
	if err != nil {
		writeError(w, err)
		return
	}
	tpl, err := c.TemplateRepo.GetByID(sendable.TemplateID)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	rendered, err := render.Render(tpl, sendable.RenderContext)
	if err != nil {
		w.Write([]byte(err.Error()))
		return
	}
	w.Write([]byte(rendered.Subject + "\n\n" + rendered.Body))
}

func (c *SendableController) SendTest(w http.ResponseWriter, r *http.Request) {
	c.send(w, r, true)
}

func (c *SendableController) SendReal(w http.ResponseWriter, r *http.Request) {
	c.send(w, r, false)
}

func (c *SendableController) send(w http.ResponseWriter, r *http.Request, isTest bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid sendable id", http.StatusBadRequest)
		return
	}

	var body struct {
		RecipientAddress string `json:"recipient_address"`
	}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid body", http.StatusBadRequest)
			return
		}
	}

	operator, err := c.operatorFrom(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	outcome, err := c.SendService.SendMessage(r.Context(), operator, id, isTest, body.RecipientAddress)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(outcome)
}

func (c *SendableController) FreezeTemplate(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid sendable id", http.StatusBadRequest)
		return
	}

	operator, err := c.operatorFrom(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	frozen, err := c.FreezeService.FreezeTemplate(r.Context(), operator, id)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(frozen)
}

func (c *SendableController) BulkEdits(w http.ResponseWriter, r *http.Request) {
	var body struct {
		IDs []int `json:"ids"`
		service.BulkEditBatch
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	operator, err := c.operatorFrom(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	summary, err := c.BulkEditService.ApplyBulkEdits(r.Context(), operator, body.BulkEditBatch, body.IDs)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(summary)
}

// EnqueueDispatch is the entry point for the host's scheduler: it queues a
// due Sendable for the time-triggered delivery path.
func (c *SendableController) EnqueueDispatch(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid sendable id", http.StatusBadRequest)
		return
	}

	if err := c.Queue.Publish(queue.TopicSendableDispatch, id); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]interface{}{"queued": id})
}

func writeError(w http.ResponseWriter, err error) {
	var (
		notFoundSendable *appErrors.ErrSendableNotFound
		notFoundTemplate *appErrors.ErrTemplateNotFound
		validation       *appErrors.ValidationError
	)
	switch {
	case errors.Is(err, appErrors.ErrAccessDenied):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, appErrors.ErrMissingOperatorAddress):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, appErrors.ErrAlreadyFrozen):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, appErrors.ErrSendInProgress):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.As(err, &notFoundSendable), errors.As(err, &notFoundTemplate):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.As(err, &validation):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
