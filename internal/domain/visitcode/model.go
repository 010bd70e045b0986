// Package visitcode issues and verifies the short-lived, single-use codes
// patients present at the front desk. A code is usable only while it is
// active, unused and unexpired; once any of those flips, the code is terminal.
// Codes are never deleted.
package visitcode

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Visit purposes.
const (
	PurposeConsultation = "CONSULTATION"
	PurposePharmacy     = "PHARMACY"
	PurposeGeneralVisit = "GENERAL_VISIT"
)

var validPurposes = map[string]bool{
	PurposeConsultation: true, PurposePharmacy: true, PurposeGeneralVisit: true,
}

// ParsePurpose validates a purpose string at the boundary. Unknown values
// are rejected rather than stored.
func ParsePurpose(s string) (string, error) {
	if !validPurposes[s] {
		return "", fmt.Errorf("invalid visit purpose: %q", s)
	}
	return s, nil
}

// VisitCode maps to the visit_code table.
type VisitCode struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	Code        string     `db:"code" json:"code"`
	UserID      string     `db:"user_id" json:"user_id"`
	Purpose     string     `db:"purpose" json:"purpose"`
	GeneratedAt time.Time  `db:"generated_at" json:"generated_at"`
	ExpiresAt   time.Time  `db:"expires_at" json:"expires_at"`
	UsedAt      *time.Time `db:"used_at" json:"used_at,omitempty"`
	IsActive    bool       `db:"is_active" json:"is_active"`
}

// Usable reports whether the code can still be consumed at the given instant.
func (v *VisitCode) Usable(now time.Time) bool {
	return v.IsActive && v.UsedAt == nil && now.Before(v.ExpiresAt)
}

// SecondsRemaining returns the whole seconds until expiry, floored at zero.
func (v *VisitCode) SecondsRemaining(now time.Time) int {
	remaining := int(v.ExpiresAt.Sub(now).Seconds())
	if remaining < 0 {
		return 0
	}
	return remaining
}
