// Package cover owns the insurance-cover linking workflow and the approval
// gate derived from it. Patients submit link requests; reviewers approve or
// reject them; the gate reduces a user's request history to a single decision
// that the rest of the check-in flow keys off.
package cover

import (
	"time"

	"github.com/google/uuid"
)

// Link request statuses.
const (
	StatusPending  = "PENDING"
	StatusApproved = "APPROVED"
	StatusRejected = "REJECTED"
)

// Gate states. REJECTED is deliberately absent: a rejected request sends the
// patient back to the submission path, so the gate reports NONE.
const (
	GateNone     = "NONE"
	GatePending  = "PENDING"
	GateApproved = "APPROVED"
	GateError    = "ERROR"
)

// LinkRequest maps to the cover_link_request table.
type LinkRequest struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	UserID        string     `db:"user_id" json:"user_id"`
	UserEmail     string     `db:"user_email" json:"user_email"`
	Country       string     `db:"country" json:"country"`
	InsuranceName string     `db:"insurance_name" json:"insurance_name"`
	MemberNumber  string     `db:"member_number" json:"member_number"`
	Status        string     `db:"status" json:"status"`
	SubmittedAt   time.Time  `db:"submitted_at" json:"submitted_at"`
	ReviewedAt    *time.Time `db:"reviewed_at" json:"reviewed_at,omitempty"`
	ReviewNote    *string    `db:"review_note" json:"review_note,omitempty"`
	ReviewedBy    *string    `db:"reviewed_by" json:"reviewed_by,omitempty"`
}

// Decision is the gate's answer for one user. InsuranceName and MemberNumber
// are only set when State is APPROVED.
type Decision struct {
	State         string `json:"state"`
	InsuranceName string `json:"insurance_name,omitempty"`
	MemberNumber  string `json:"member_number,omitempty"`
	Reason        string `json:"reason,omitempty"`
}
