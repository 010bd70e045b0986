package visitcode

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cliniq/cliniq/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) db.Queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const codeCols = `id, code, user_id, purpose, generated_at, expires_at, used_at, is_active`

func scanCode(row pgx.Row) (*VisitCode, error) {
	var vc VisitCode
	err := row.Scan(&vc.ID, &vc.Code, &vc.UserID, &vc.Purpose, &vc.GeneratedAt,
		&vc.ExpiresAt, &vc.UsedAt, &vc.IsActive)
	return &vc, err
}

func (r *repoPG) Create(ctx context.Context, vc *VisitCode) error {
	vc.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO visit_code (id, code, user_id, purpose, generated_at, expires_at, is_active)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		vc.ID, vc.Code, vc.UserID, vc.Purpose, vc.GeneratedAt, vc.ExpiresAt, vc.IsActive)
	return err
}

func (r *repoPG) GetByCode(ctx context.Context, code string) (*VisitCode, error) {
	vc, err := scanCode(r.conn(ctx).QueryRow(ctx, `
		SELECT `+codeCols+` FROM visit_code
		WHERE code = $1 ORDER BY generated_at DESC LIMIT 1`, code))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return vc, err
}

func (r *repoPG) ActiveByUser(ctx context.Context, userID string, now time.Time) (*VisitCode, error) {
	vc, err := scanCode(r.conn(ctx).QueryRow(ctx, `
		SELECT `+codeCols+` FROM visit_code
		WHERE user_id = $1 AND is_active AND used_at IS NULL AND expires_at > $2
		ORDER BY generated_at DESC LIMIT 1`, userID, now))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return vc, err
}

func (r *repoPG) ActiveCodeExists(ctx context.Context, code string, now time.Time) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM visit_code
			WHERE code = $1 AND is_active AND used_at IS NULL AND expires_at > $2
		)`, code, now).Scan(&exists)
	return exists, err
}

// ConsumeIfUsable relies on a single conditional UPDATE so two concurrent
// verifications of the same code cannot both succeed.
func (r *repoPG) ConsumeIfUsable(ctx context.Context, code string, now time.Time) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE visit_code SET used_at = $2
		WHERE code = $1 AND is_active AND used_at IS NULL AND expires_at > $2`,
		code, now)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *repoPG) Deactivate(ctx context.Context, code string) error {
	_, err := r.conn(ctx).Exec(ctx,
		`UPDATE visit_code SET is_active = FALSE WHERE code = $1`, code)
	return err
}

func (r *repoPG) DeactivateAllForUser(ctx context.Context, userID string, now time.Time) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE visit_code SET is_active = FALSE
		WHERE user_id = $1 AND is_active AND used_at IS NULL AND expires_at > $2`,
		userID, now)
	return err
}

func (r *repoPG) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE visit_code SET is_active = FALSE
		WHERE is_active AND used_at IS NULL AND expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
