package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	appErrors "github.com/gitter-badger/grapevine-go/internal/errors"
	"github.com/gitter-badger/grapevine-go/internal/model"
)

// BulkChanges is the enumerated set of bulk-editable Sendable fields. A nil
// field means "leave unchanged"; there is no way to clear a value through a
// bulk edit.
type BulkChanges struct {
	ScheduledSendTime   *time.Time
	CancelledAtSendTime *bool
	TransportName       *string
}

// Empty reports whether the batch carries no field values at all.
func (c BulkChanges) Empty() bool {
	return c.ScheduledSendTime == nil && c.CancelledAtSendTime == nil && c.TransportName == nil
}

type SendableRepositoryInterface interface {
	GetByID(id int) (*model.Sendable, error)
	List(offset, limit int, kind, state string) ([]*model.Sendable, int, error)
	Update(s *model.Sendable) error
	UpdateTemplateID(sendableID, templateID int) error

	// Per-sendable send guard
	TryBeginSend(id int) (bool, error)
	EndSend(id int) error

	// Bulk edits
	BulkUpdate(ctx context.Context, ids []int, changes BulkChanges, userID int, deltasJSON string) (int, error)
}

type SendableRepository struct {
	DB *sql.DB
}

const sendableColumns = `id, ref, kind, scheduled_send_time, cancelled_at_send_time, is_sent,
       message_id, template_id, transport_name, recipients, render_context, created_at, updated_at`

func (r *SendableRepository) GetByID(id int) (*model.Sendable, error) {
	query := `SELECT ` + sendableColumns + ` FROM sendables WHERE id=$1`
	s, err := scanSendable(r.DB.QueryRow(query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewSendableNotFound(id)
		}
		return nil, err
	}
	return s, nil
}

// List returns one page of Sendables plus the unpaged total. state filters
// on "sent", "unsent", "scheduled" or "draft"; empty means everything.
func (r *SendableRepository) List(offset, limit int, kind, state string) ([]*model.Sendable, int, error) {
	where := ` WHERE 1=1`
	args := []interface{}{}
	argPos := 1

	if kind != "" {
		where += fmt.Sprintf(" AND kind=$%d", argPos)
		args = append(args, kind)
		argPos++
	}
	switch state {
	case "sent":
		where += " AND is_sent=true"
	case "unsent":
		where += " AND is_sent=false"
	case "scheduled":
		where += " AND scheduled_send_time IS NOT NULL"
	case "draft":
		where += " AND scheduled_send_time IS NULL"
	}

	query := `SELECT ` + sendableColumns + ` FROM sendables` + where +
		fmt.Sprintf(" ORDER BY id DESC LIMIT $%d OFFSET $%d", argPos, argPos+1)
	rows, err := r.DB.Query(query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	sendables := []*model.Sendable{}
	for rows.Next() {
		s, err := scanSendable(rows)
		if err != nil {
			return nil, 0, err
		}
		sendables = append(sendables, s)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int
	if err := r.DB.QueryRow(`SELECT COUNT(*) FROM sendables`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	return sendables, total, nil
}

func (r *SendableRepository) Update(s *model.Sendable) error {
	ctx, err := json.Marshal(s.RenderContext)
	if err != nil {
		return err
	}
	query := `
        UPDATE sendables
        SET scheduled_send_time=$1, cancelled_at_send_time=$2, is_sent=$3, message_id=$4,
            template_id=$5, transport_name=$6, recipients=$7, render_context=$8, updated_at=NOW()
        WHERE id=$9
    `
	_, err = r.DB.Exec(query,
		s.ScheduledSendTime, s.CancelledAtSendTime, s.IsSent, s.MessageID,
		s.TemplateID, s.TransportName, pq.Array(s.Recipients), ctx, s.ID,
	)
	return err
}

func (r *SendableRepository) UpdateTemplateID(sendableID, templateID int) error {
	query := `UPDATE sendables SET template_id=$1, updated_at=NOW() WHERE id=$2`
	_, err := r.DB.Exec(query, templateID, sendableID)
	return err
}

// TryBeginSend is a compare-and-swap on the send_in_progress flag: at most
// one in-flight send per Sendable. Returns false when another send holds
// the flag.
func (r *SendableRepository) TryBeginSend(id int) (bool, error) {
	res, err := r.DB.Exec(
		`UPDATE sendables SET send_in_progress=true WHERE id=$1 AND send_in_progress=false`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *SendableRepository) EndSend(id int) error {
	_, err := r.DB.Exec(`UPDATE sendables SET send_in_progress=false WHERE id=$1`, id)
	return err
}

// BulkUpdate applies one batch of field values to every existing Sendable in
// ids, all-or-nothing, and writes one audit entry per affected row inside
// the same transaction. Missing ids are simply not counted. Returns the
// number of Sendables affected.
func (r *SendableRepository) BulkUpdate(ctx context.Context, ids []int, changes BulkChanges, userID int, deltasJSON string) (int, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		`SELECT id, kind, ref, is_sent FROM sendables WHERE id = ANY($1) FOR UPDATE`, pq.Array(ids))
	if err != nil {
		return 0, err
	}

	type lockedRow struct {
		id     int
		kind   string
		ref    string
		isSent bool
	}
	affected := []lockedRow{}
	for rows.Next() {
		var lr lockedRow
		if err := rows.Scan(&lr.id, &lr.kind, &lr.ref, &lr.isSent); err != nil {
			rows.Close()
			return 0, err
		}
		affected = append(affected, lr)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	if len(affected) == 0 {
		// Nothing matched: trivially successful.
		return 0, tx.Commit()
	}

	set := ""
	args := []interface{}{}
	argPos := 1
	if changes.ScheduledSendTime != nil {
		set += fmt.Sprintf("scheduled_send_time=$%d, ", argPos)
		args = append(args, *changes.ScheduledSendTime)
		argPos++
	}
	if changes.CancelledAtSendTime != nil {
		set += fmt.Sprintf("cancelled_at_send_time=$%d, ", argPos)
		args = append(args, *changes.CancelledAtSendTime)
		argPos++
	}
	if changes.TransportName != nil {
		set += fmt.Sprintf("transport_name=$%d, ", argPos)
		args = append(args, *changes.TransportName)
		argPos++
	}

	query := fmt.Sprintf(`UPDATE sendables SET %supdated_at=NOW() WHERE id = ANY($%d)`, set, argPos)
	args = append(args, pq.Array(ids))
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return 0, err
	}

	for _, lr := range affected {
		sentState := "UNSENT"
		if lr.isSent {
			sentState = "SENT"
		}
		changeMessage := fmt.Sprintf("Applied %s to %s Sendable Id: %d", deltasJSON, sentState, lr.id)
		_, err := tx.ExecContext(ctx, `
            INSERT INTO audit_entries (user_id, entity_type, entity_id, entity_description, action_kind, change_message, created_at)
            VALUES ($1, $2, $3, $4, $5, $6, NOW())
        `, userID, "sendable", lr.id, fmt.Sprintf("%s Sendable %s", lr.kind, lr.ref), model.ActionChange, changeMessage)
		if err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(affected), nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSendable(row rowScanner) (*model.Sendable, error) {
	var s model.Sendable
	var renderContext []byte
	err := row.Scan(
		&s.ID, &s.Ref, &s.Kind, &s.ScheduledSendTime, &s.CancelledAtSendTime, &s.IsSent,
		&s.MessageID, &s.TemplateID, &s.TransportName, pq.Array(&s.Recipients),
		&renderContext, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(renderContext) > 0 {
		if err := json.Unmarshal(renderContext, &s.RenderContext); err != nil {
			return nil, fmt.Errorf("bad render_context for sendable %d: %w", s.ID, err)
		}
	}
	return &s, nil
}

var _ SendableRepositoryInterface = (*SendableRepository)(nil)
