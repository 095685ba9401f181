package repository

import (
	"database/sql"

	appErrors "github.com/gitter-badger/grapevine-go/internal/errors"
	"github.com/gitter-badger/grapevine-go/internal/model"
)

type TemplateRepositoryInterface interface {
	GetByID(id int) (*model.Template, error)
	Create(t *model.Template) error
	Update(t *model.Template) error
}

type TemplateRepository struct {
	DB *sql.DB
}

func (r *TemplateRepository) GetByID(id int) (*model.Template, error) {
	query := `
        SELECT id, name, subject, body, frozen_for_sendable_id, created_at, updated_at
        FROM templates WHERE id=$1
    `
	var t model.Template
	err := r.DB.QueryRow(query, id).Scan(
		&t.ID, &t.Name, &t.Subject, &t.Body, &t.FrozenForSendableID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewTemplateNotFound(id)
		}
		return nil, err
	}
	return &t, nil
}

func (r *TemplateRepository) Create(t *model.Template) error {
	query := `
        INSERT INTO templates (name, subject, body, frozen_for_sendable_id, created_at)
        VALUES ($1, $2, $3, $4, NOW())
        RETURNING id, created_at
    `
	return r.DB.QueryRow(query, t.Name, t.Subject, t.Body, t.FrozenForSendableID).
		Scan(&t.ID, &t.CreatedAt)
}

func (r *TemplateRepository) Update(t *model.Template) error {
	query := `
        UPDATE templates
        SET name=$1, subject=$2, body=$3, updated_at=NOW()
        WHERE id=$4
    `
	_, err := r.DB.Exec(query, t.Name, t.Subject, t.Body, t.ID)
	return err
}

var _ TemplateRepositoryInterface = (*TemplateRepository)(nil)
