package repository

import (
	"database/sql"
	"time"

	"github.com/lib/pq"

	"github.com/gitter-badger/grapevine-go/internal/model"
)

type MessageRepositoryInterface interface {
	Create(msg *model.Message) error
	GetByID(id int) (*model.Message, error)
	UpdateStatus(id int, status, lastError string) error
}

type MessageRepository struct {
	DB *sql.DB
}

// Create inserts a new message record and fills in the generated ID.
func (r *MessageRepository) Create(msg *model.Message) error {
	msg.CreatedAt = time.Now()
	query := `
        INSERT INTO messages (sendable_id, status, provider_message_id, recipients, subject, body, last_error, sent_at, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        RETURNING id
    `
	return r.DB.QueryRow(
		query,
		msg.SendableID,
		msg.Status,
		msg.ProviderMessageID,
		pq.Array(msg.Recipients),
		msg.Subject,
		msg.Body,
		msg.LastError,
		msg.SentAt,
		msg.CreatedAt,
	).Scan(&msg.ID)
}

func (r *MessageRepository) GetByID(id int) (*model.Message, error) {
	query := `
        SELECT id, sendable_id, status, provider_message_id, recipients, subject, body, last_error, sent_at, created_at
        FROM messages
        WHERE id=$1
    `
	var msg model.Message
	err := r.DB.QueryRow(query, id).Scan(
		&msg.ID,
		&msg.SendableID,
		&msg.Status,
		&msg.ProviderMessageID,
		pq.Array(&msg.Recipients),
		&msg.Subject,
		&msg.Body,
		&msg.LastError,
		&msg.SentAt,
		&msg.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &msg, nil
}

func (r *MessageRepository) UpdateStatus(id int, status, lastError string) error {
	query := `UPDATE messages SET status=$1, last_error=$2 WHERE id=$3`
	_, err := r.DB.Exec(query, status, lastError, id)
	return err
}

var _ MessageRepositoryInterface = (*MessageRepository)(nil)
