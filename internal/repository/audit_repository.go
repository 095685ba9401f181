package repository

import (
	"database/sql"
	"time"

	"github.com/gitter-badger/grapevine-go/internal/model"
)

type AuditRepositoryInterface interface {
	Create(entry *model.AuditEntry) error
	ListForEntity(entityType string, entityID int) ([]model.AuditEntry, error)
}

type AuditRepository struct {
	DB *sql.DB
}

// Create appends one immutable audit entry.
func (r *AuditRepository) Create(entry *model.AuditEntry) error {
	entry.CreatedAt = time.Now()
	if entry.ActionKind == "" {
		entry.ActionKind = model.ActionChange
	}
	query := `
        INSERT INTO audit_entries (user_id, entity_type, entity_id, entity_description, action_kind, change_message, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        RETURNING id
    `
	return r.DB.QueryRow(
		query,
		entry.UserID,
		entry.EntityType,
		entry.EntityID,
		entry.EntityDescription,
		entry.ActionKind,
		entry.ChangeMessage,
		entry.CreatedAt,
	).Scan(&entry.ID)
}

// ListForEntity returns the audit trail for one entity, newest first.
func (r *AuditRepository) ListForEntity(entityType string, entityID int) ([]model.AuditEntry, error) {
	query := `
        SELECT id, user_id, entity_type, entity_id, entity_description, action_kind, change_message, created_at
        FROM audit_entries
        WHERE entity_type=$1 AND entity_id=$2
        ORDER BY id DESC
    `
	rows, err := r.DB.Query(query, entityType, entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []model.AuditEntry{}
	for rows.Next() {
		var e model.AuditEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.EntityType, &e.EntityID, &e.EntityDescription,
			&e.ActionKind, &e.ChangeMessage, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

var _ AuditRepositoryInterface = (*AuditRepository)(nil)
