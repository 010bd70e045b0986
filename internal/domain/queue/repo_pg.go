package queue

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

const entryCols = `id, patient_user_id, patient_name, patient_email, visit_code_id,
	purpose, insurance_name, member_number, doctor_id, doctor_name, room_number,
	status, queue_position, assigned_at, called_at, completed_at, date`

func scanEntry(row pgx.Row) (*Entry, error) {
	var e Entry
	err := row.Scan(&e.ID, &e.PatientUserID, &e.PatientName, &e.PatientEmail,
		&e.VisitCodeID, &e.Purpose, &e.InsuranceName, &e.MemberNumber,
		&e.DoctorID, &e.DoctorName, &e.RoomNumber, &e.Status, &e.QueuePosition,
		&e.AssignedAt, &e.CalledAt, &e.CompletedAt, &e.Date)
	return &e, err
}

func collectEntries(rows pgx.Rows) ([]*Entry, error) {
	defer rows.Close()
	var out []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *repoPG) Create(ctx context.Context, e *Entry) error {
	e.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO queue_entry (id, patient_user_id, patient_name, patient_email,
			visit_code_id, purpose, insurance_name, member_number, doctor_id,
			doctor_name, room_number, status, queue_position, assigned_at, date)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		e.ID, e.PatientUserID, e.PatientName, e.PatientEmail, e.VisitCodeID,
		e.Purpose, e.InsuranceName, e.MemberNumber, e.DoctorID, e.DoctorName,
		e.RoomNumber, e.Status, e.QueuePosition, e.AssignedAt, e.Date)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Entry, error) {
	e, err := scanEntry(r.conn(ctx).QueryRow(ctx,
		`SELECT `+entryCols+` FROM queue_entry WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return e, err
}

func (r *repoPG) ListActive(ctx context.Context, doctorID uuid.UUID, date string) ([]*Entry, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+entryCols+` FROM queue_entry
		WHERE doctor_id = $1 AND date = $2 AND status <> $3
		ORDER BY queue_position ASC`, doctorID, date, StatusDone)
	if err != nil {
		return nil, err
	}
	return collectEntries(rows)
}

func (r *repoPG) ListCompleted(ctx context.Context, doctorID uuid.UUID, date string) ([]*Entry, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+entryCols+` FROM queue_entry
		WHERE doctor_id = $1 AND date = $2 AND status = $3
		ORDER BY completed_at ASC`, doctorID, date, StatusDone)
	if err != nil {
		return nil, err
	}
	return collectEntries(rows)
}

func (r *repoPG) ActiveByPatient(ctx context.Context, patientUserID, date string) (*Entry, error) {
	e, err := scanEntry(r.conn(ctx).QueryRow(ctx, `
		SELECT `+entryCols+` FROM queue_entry
		WHERE patient_user_id = $1 AND date = $2 AND status <> $3
		LIMIT 1`, patientUserID, date, StatusDone))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return e, err
}

func (r *repoPG) MaxActivePosition(ctx context.Context, doctorID uuid.UUID, date string) (int, error) {
	var max int
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COALESCE(MAX(queue_position), 0) FROM queue_entry
		WHERE doctor_id = $1 AND date = $2 AND status <> $3`,
		doctorID, date, StatusDone).Scan(&max)
	return max, err
}

func (r *repoPG) SetDone(ctx context.Context, id uuid.UUID, completedAt time.Time) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE queue_entry SET status = $2, completed_at = $3 WHERE id = $1`,
		id, StatusDone, completedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) SetInProgress(ctx context.Context, id uuid.UUID, calledAt time.Time, position int) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE queue_entry SET status = $2, called_at = $3, queue_position = $4
		WHERE id = $1`, id, StatusInProgress, calledAt, position)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) SetPosition(ctx context.Context, id uuid.UUID, position int) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE queue_entry SET queue_position = $2 WHERE id = $1`, id, position)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) ListStaleInProgress(ctx context.Context, calledBefore time.Time) ([]*Entry, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+entryCols+` FROM queue_entry
		WHERE status = $1 AND called_at < $2
		ORDER BY called_at ASC`, StatusInProgress, calledBefore)
	if err != nil {
		return nil, err
	}
	return collectEntries(rows)
}

func (r *repoPG) Transact(ctx context.Context, fn func(ctx context.Context) error) error {
	return db.WithTx(ctx, r.pool, fn)
}
