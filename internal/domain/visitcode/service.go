package visitcode

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/cliniq/cliniq/internal/platform/clock"
)

// maxGenerateAttempts bounds the collision-retry loop. With a 31-character
// alphabet and 6 positions a collision against the handful of concurrently
// active codes is already vanishingly rare.
const maxGenerateAttempts = 5

// DefaultTTL is the visit code lifetime when none is configured.
const DefaultTTL = 15 * time.Minute

type Issuer struct {
	repo   Repository
	clock  clock.Clock
	ttl    time.Duration
	logger zerolog.Logger
}

func NewIssuer(repo Repository, clk clock.Clock, ttl time.Duration, logger zerolog.Logger) *Issuer {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Issuer{repo: repo, clock: clk, ttl: ttl, logger: logger}
}

// Generate issues a fresh code for the user. Any still-usable code the user
// holds is retired first, so at most one usable code exists per user.
func (i *Issuer) Generate(ctx context.Context, userID, purpose string) (*VisitCode, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("user id is required")
	}
	purpose, err := ParsePurpose(purpose)
	if err != nil {
		return nil, err
	}

	now := i.clock.Now()
	if err := i.repo.DeactivateAllForUser(ctx, userID, now); err != nil {
		return nil, fmt.Errorf("%w: retire previous codes: %v", ErrStore, err)
	}

	for attempt := 0; attempt < maxGenerateAttempts; attempt++ {
		code, err := newCode()
		if err != nil {
			return nil, err
		}
		taken, err := i.repo.ActiveCodeExists(ctx, code, now)
		if err != nil {
			return nil, fmt.Errorf("%w: collision check: %v", ErrStore, err)
		}
		if taken {
			continue
		}

		vc := &VisitCode{
			Code:        code,
			UserID:      userID,
			Purpose:     purpose,
			GeneratedAt: now,
			ExpiresAt:   now.Add(i.ttl),
			IsActive:    true,
		}
		if err := i.repo.Create(ctx, vc); err != nil {
			return nil, fmt.Errorf("%w: persist code: %v", ErrStore, err)
		}

		i.logger.Info().
			Str("user_id", userID).
			Str("purpose", purpose).
			Time("expires_at", vc.ExpiresAt).
			Msg("visit code generated")
		return vc, nil
	}
	return nil, fmt.Errorf("%w: could not find a free code after %d attempts", ErrStore, maxGenerateAttempts)
}

// Verify consumes the code exactly once. When the conditional update loses,
// the failure is classified in a fixed order so callers get a stable reason:
// unknown code, manually invalidated, already used, expired.
func (i *Issuer) Verify(ctx context.Context, code string) (*VisitCode, error) {
	now := i.clock.Now()
	won, err := i.repo.ConsumeIfUsable(ctx, code, now)
	if err != nil {
		return nil, fmt.Errorf("%w: consume: %v", ErrStore, err)
	}
	if !won {
		vc, err := i.repo.GetByCode(ctx, code)
		if err != nil {
			return nil, err
		}
		reason := classify(vc, now)
		if reason == nil {
			// The row became usable again between the losing update and this
			// reload (a regenerated code drawing the same token). The update
			// lost, so nothing was consumed on behalf of this caller.
			reason = ErrAlreadyUsed
		}
		return nil, reason
	}

	vc, err := i.repo.GetByCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: reload consumed code: %v", ErrStore, err)
	}
	return vc, nil
}

// Peek classifies a code without consuming it. The front desk uses this for
// the first phase of its two-phase check.
func (i *Issuer) Peek(ctx context.Context, code string) (*VisitCode, error) {
	vc, err := i.repo.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if err := classify(vc, i.clock.Now()); err != nil {
		return nil, err
	}
	return vc, nil
}

func classify(vc *VisitCode, now time.Time) error {
	switch {
	case !vc.IsActive:
		return ErrInactive
	case vc.UsedAt != nil:
		return ErrAlreadyUsed
	case !now.Before(vc.ExpiresAt):
		return ErrExpired
	default:
		return nil
	}
}

// Invalidate retires a code regardless of state. Calling it twice is fine.
func (i *Issuer) Invalidate(ctx context.Context, code string) error {
	if err := i.repo.Deactivate(ctx, code); err != nil {
		return fmt.Errorf("%w: deactivate: %v", ErrStore, err)
	}
	return nil
}

// GetActive returns the user's usable code, or nil when none exists.
func (i *Issuer) GetActive(ctx context.Context, userID string) (*VisitCode, error) {
	vc, err := i.repo.ActiveByUser(ctx, userID, i.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("%w: active lookup: %v", ErrStore, err)
	}
	return vc, nil
}

// SweepExpired retires every code past its expiry. Expiry is enforced at
// read/verify time regardless; the sweep just keeps the table honest for
// reporting and the active-code index small.
func (i *Issuer) SweepExpired(ctx context.Context) (int64, error) {
	n, err := i.repo.DeactivateExpired(ctx, i.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("%w: sweep expired: %v", ErrStore, err)
	}
	if n > 0 {
		i.logger.Info().Int64("count", n).Msg("expired visit codes retired")
	}
	return n, nil
}
