package visitcode

import (
	"context"
	"time"
)

type Repository interface {
	Create(ctx context.Context, vc *VisitCode) error
	GetByCode(ctx context.Context, code string) (*VisitCode, error)
	// ActiveByUser returns the user's single usable code at the given
	// instant, or nil when none exists.
	ActiveByUser(ctx context.Context, userID string, now time.Time) (*VisitCode, error)
	// ActiveCodeExists reports whether the code value collides with any
	// still-usable code (collision check at generation time).
	ActiveCodeExists(ctx context.Context, code string, now time.Time) (bool, error)
	// ConsumeIfUsable stamps used_at in a single conditional update and
	// reports whether this call won the consumption.
	ConsumeIfUsable(ctx context.Context, code string, now time.Time) (bool, error)
	// Deactivate clears is_active; idempotent.
	Deactivate(ctx context.Context, code string) error
	// DeactivateAllForUser retires every usable code the user holds.
	DeactivateAllForUser(ctx context.Context, userID string, now time.Time) error
	// DeactivateExpired retires codes past their expiry and returns how many.
	DeactivateExpired(ctx context.Context, now time.Time) (int64, error)
}
