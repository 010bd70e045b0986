package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/cliniq/cliniq/internal/platform/auth"
)

// RateLimitConfig caps the request rate per caller identity.
type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
	// StaffBurstFactor widens the burst for staff accounts. Doctor and desk
	// screens poll queue boards far more often than a patient refreshes a
	// check-in session. Values below 2 leave staff on the patient burst.
	StaffBurstFactor int
}

// DefaultRateLimitConfig is the fallback when no limits are configured.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 100,
		BurstSize:         200,
		StaffBurstFactor:  2,
	}
}

// budget is a token bucket refilled lazily on each probe.
type budget struct {
	mu       sync.Mutex
	level    float64
	capacity float64
	perSec   float64
	refilled time.Time
}

// take spends one token. When the budget is empty it reports how long the
// caller should wait for the next token to land.
func (b *budget) take(now time.Time) (bool, time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.level += now.Sub(b.refilled).Seconds() * b.perSec
	if b.level > b.capacity {
		b.level = b.capacity
	}
	b.refilled = now

	if b.level >= 1 {
		b.level--
		return true, 0
	}
	if b.perSec <= 0 {
		return false, time.Second
	}
	return false, time.Duration((1 - b.level) / b.perSec * float64(time.Second))
}

// RateLimit enforces a per-caller token budget. Callers are keyed by the
// authenticated account when the auth middleware identified one, by remote
// address otherwise; staff accounts get a wider burst.
func RateLimit(cfg RateLimitConfig) echo.MiddlewareFunc {
	var (
		mu      sync.Mutex
		budgets = make(map[string]*budget)
	)

	acquire := func(key string, staff bool) *budget {
		mu.Lock()
		defer mu.Unlock()
		if b, ok := budgets[key]; ok {
			return b
		}
		capacity := float64(cfg.BurstSize)
		if staff && cfg.StaffBurstFactor > 1 {
			capacity *= float64(cfg.StaffBurstFactor)
		}
		b := &budget{
			level:    capacity,
			capacity: capacity,
			perSec:   cfg.RequestsPerSecond,
			refilled: time.Now(),
		}
		budgets[key] = b
		return b
	}

	limitHeader := strconv.FormatFloat(cfg.RequestsPerSecond, 'f', -1, 64)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key, staff := callerIdentity(c)

			ok, wait := acquire(key, staff).take(time.Now())
			c.Response().Header().Set("X-RateLimit-Limit", limitHeader)
			if !ok {
				c.Response().Header().Set("Retry-After", strconv.Itoa(int(wait/time.Second)+1))
				c.Response().Header().Set("X-RateLimit-Remaining", "0")
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			return next(c)
		}
	}
}

// callerIdentity keys the budget by account id, falling back to the remote
// address for unauthenticated probes of public routes. The second return
// reports whether the account holds a staff role.
func callerIdentity(c echo.Context) (string, bool) {
	uid, _ := c.Get("user_id").(string)
	if uid == "" {
		return "addr:" + c.RealIP(), false
	}
	roles, _ := c.Get("user_roles").([]string)
	staff := auth.HasRole(roles, auth.RoleDoctor) || auth.HasRole(roles, auth.RoleFrontDesk)
	return "acct:" + uid, staff
}
