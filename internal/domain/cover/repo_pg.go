package cover

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

const linkCols = `id, user_id, user_email, country, insurance_name, member_number,
	status, submitted_at, reviewed_at, review_note, reviewed_by`

func scanLinkRequest(row pgx.Row) (*LinkRequest, error) {
	var lr LinkRequest
	err := row.Scan(&lr.ID, &lr.UserID, &lr.UserEmail, &lr.Country, &lr.InsuranceName,
		&lr.MemberNumber, &lr.Status, &lr.SubmittedAt, &lr.ReviewedAt, &lr.ReviewNote,
		&lr.ReviewedBy)
	return &lr, err
}

func (r *repoPG) Create(ctx context.Context, req *LinkRequest) error {
	req.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO cover_link_request
			(id, user_id, user_email, country, insurance_name, member_number, status, submitted_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		req.ID, req.UserID, req.UserEmail, req.Country, req.InsuranceName,
		req.MemberNumber, req.Status, req.SubmittedAt)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*LinkRequest, error) {
	lr, err := scanLinkRequest(r.conn(ctx).QueryRow(ctx,
		`SELECT `+linkCols+` FROM cover_link_request WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return lr, err
}

func (r *repoPG) LatestByUser(ctx context.Context, userID string) (*LinkRequest, error) {
	lr, err := scanLinkRequest(r.conn(ctx).QueryRow(ctx, `
		SELECT `+linkCols+` FROM cover_link_request
		WHERE user_id = $1 ORDER BY submitted_at DESC LIMIT 1`, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return lr, err
}

func (r *repoPG) ListByUser(ctx context.Context, userID string) ([]*LinkRequest, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+linkCols+` FROM cover_link_request
		WHERE user_id = $1 ORDER BY submitted_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*LinkRequest
	for rows.Next() {
		lr, err := scanLinkRequest(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, lr)
	}
	return items, rows.Err()
}

func (r *repoPG) ListPending(ctx context.Context, limit, offset int) ([]*LinkRequest, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM cover_link_request WHERE status = $1`, StatusPending).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+linkCols+` FROM cover_link_request
		WHERE status = $1 ORDER BY submitted_at ASC LIMIT $2 OFFSET $3`,
		StatusPending, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*LinkRequest
	for rows.Next() {
		lr, err := scanLinkRequest(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, lr)
	}
	return items, total, rows.Err()
}

func (r *repoPG) MarkReviewed(ctx context.Context, id uuid.UUID, status, note, reviewerID string, at time.Time) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE cover_link_request
		SET status = $2, review_note = NULLIF($3, ''), reviewed_by = $4, reviewed_at = $5
		WHERE id = $1 AND status = $6`,
		id, status, note, reviewerID, at, StatusPending)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
