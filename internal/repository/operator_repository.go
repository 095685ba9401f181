package repository

import (
	"database/sql"

	"github.com/gitter-badger/grapevine-go/internal/model"
)

// OperatorRepositoryInterface defines methods used by services
type OperatorRepositoryInterface interface {
	GetByID(id int) (*model.Operator, error)
}

// OperatorRepository is the concrete implementation
type OperatorRepository struct {
	DB *sql.DB
}

// GetByID fetches an operator by ID
func (r *OperatorRepository) GetByID(id int) (*model.Operator, error) {
	query := `
        SELECT id, name, email, is_staff
        FROM operators
        WHERE id = $1
    `
	row := r.DB.QueryRow(query, id)

	var o model.Operator
	if err := row.Scan(&o.ID, &o.Name, &o.Email, &o.IsStaff); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // not found
		}
		return nil, err
	}
	return &o, nil
}

var _ OperatorRepositoryInterface = (*OperatorRepository)(nil)
