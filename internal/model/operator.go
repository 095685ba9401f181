// internal/model/operator.go
package model

// Operator is the staff user performing an administrative action.
// Authentication itself is the host platform's concern; this record only
// carries what the dispatch core needs to gate and audit actions.
type Operator struct {
	ID      int    `db:"id" json:"id"`
	Name    string `db:"name" json:"name"`
	Email   string `db:"email" json:"email"`
	IsStaff bool   `db:"is_staff" json:"is_staff"`
}

// CanSend reports whether the operator holds the elevated privilege
// required for any mutating dispatch action.
func (o *Operator) CanSend() bool {
	return o != nil && o.IsStaff
}
