// Package staff is the clinic staff directory. The check-in flow consumes it
// read-only (which doctors are on duty, which room they sit in); the rota
// endpoints let an admin flip duty state during the day.
package staff

import (
	"time"

	"github.com/google/uuid"
)

// Staff roles.
const (
	RoleDoctor    = "DOCTOR"
	RoleFrontDesk = "FRONT_DESK"
	RoleAdmin     = "ADMIN"
)

// Account maps to the staff_account table.
type Account struct {
	ID         uuid.UUID `db:"id" json:"id"`
	UserID     string    `db:"user_id" json:"user_id"`
	Name       string    `db:"name" json:"name"`
	Role       string    `db:"role" json:"role"`
	RoomNumber *string   `db:"room_number" json:"room_number,omitempty"`
	IsOnDuty   bool      `db:"is_on_duty" json:"is_on_duty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// IsDoctor reports whether the account is a doctor.
func (a *Account) IsDoctor() bool { return a.Role == RoleDoctor }
