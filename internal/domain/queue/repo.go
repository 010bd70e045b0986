package queue

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, e *Entry) error
	GetByID(ctx context.Context, id uuid.UUID) (*Entry, error)
	// ListActive returns the non-DONE entries of a partition ordered by
	// queue_position ascending.
	ListActive(ctx context.Context, doctorID uuid.UUID, date string) ([]*Entry, error)
	// ListCompleted returns the DONE entries of a partition ordered by
	// completed_at ascending.
	ListCompleted(ctx context.Context, doctorID uuid.UUID, date string) ([]*Entry, error)
	// ActiveByPatient returns the patient's non-DONE entry for the given day,
	// or nil when none exists.
	ActiveByPatient(ctx context.Context, patientUserID, date string) (*Entry, error)
	// MaxActivePosition returns the highest position among non-DONE entries of
	// a partition, or 0 when the partition is empty.
	MaxActivePosition(ctx context.Context, doctorID uuid.UUID, date string) (int, error)
	SetDone(ctx context.Context, id uuid.UUID, completedAt time.Time) error
	SetInProgress(ctx context.Context, id uuid.UUID, calledAt time.Time, position int) error
	SetPosition(ctx context.Context, id uuid.UUID, position int) error
	// ListStaleInProgress returns IN_PROGRESS entries called before the cutoff,
	// across all partitions. The sweeper logs them for the front desk.
	ListStaleInProgress(ctx context.Context, calledBefore time.Time) ([]*Entry, error)
	// Transact runs fn with every repository call inside one transaction.
	Transact(ctx context.Context, fn func(ctx context.Context) error) error
}
