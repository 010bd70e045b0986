package queue

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cliniq/cliniq/internal/platform/clock"
	"github.com/cliniq/cliniq/internal/platform/events"
)

// Coordinator owns queue mutations. Every mutation of a (doctor, day)
// partition runs under that partition's mutex, so position arithmetic never
// races; repo_pg additionally wraps complete/call in a transaction.
type Coordinator struct {
	repo   Repository
	bus    events.Publisher
	clock  clock.Clock
	loc    *time.Location
	logger zerolog.Logger
	locks  *keyedMutex
}

func NewCoordinator(repo Repository, bus events.Publisher, clk clock.Clock, loc *time.Location, logger zerolog.Logger) *Coordinator {
	if loc == nil {
		loc = time.UTC
	}
	return &Coordinator{
		repo:   repo,
		bus:    bus,
		clock:  clk,
		loc:    loc,
		logger: logger,
		locks:  newKeyedMutex(),
	}
}

// Today returns the current clinic-local queue day.
func (c *Coordinator) Today() string {
	return c.clock.Now().In(c.loc).Format(DateLayout)
}

func partitionKey(doctorID uuid.UUID, date string) string {
	return doctorID.String() + "|" + date
}

// EnqueueInput carries everything the front desk knows at check-in time.
type EnqueueInput struct {
	PatientUserID string
	PatientName   string
	PatientEmail  string
	VisitCodeID   uuid.UUID
	Purpose       string
	InsuranceName string
	MemberNumber  string
	DoctorID      uuid.UUID
	DoctorName    string
	RoomNumber    string
}

// Enqueue appends the patient to the doctor's queue for today. The position
// is max(active positions)+1, computed under the partition lock. A patient
// with a non-DONE entry today is rejected with ErrAlreadyQueued.
func (c *Coordinator) Enqueue(ctx context.Context, in EnqueueInput) (*Entry, error) {
	if strings.TrimSpace(in.PatientUserID) == "" {
		return nil, fmt.Errorf("patient user id is required")
	}
	if in.DoctorID == uuid.Nil {
		return nil, ErrNoDoctor
	}

	date := c.Today()
	unlock := c.locks.lock(partitionKey(in.DoctorID, date))
	defer unlock()

	existing, err := c.repo.ActiveByPatient(ctx, in.PatientUserID, date)
	if err != nil {
		return nil, fmt.Errorf("%w: active-by-patient: %v", ErrStore, err)
	}
	if existing != nil {
		return nil, ErrAlreadyQueued
	}

	maxPos, err := c.repo.MaxActivePosition(ctx, in.DoctorID, date)
	if err != nil {
		return nil, fmt.Errorf("%w: max position: %v", ErrStore, err)
	}

	entry := &Entry{
		PatientUserID: in.PatientUserID,
		PatientName:   in.PatientName,
		PatientEmail:  in.PatientEmail,
		VisitCodeID:   in.VisitCodeID,
		Purpose:       in.Purpose,
		InsuranceName: in.InsuranceName,
		MemberNumber:  in.MemberNumber,
		DoctorID:      in.DoctorID,
		DoctorName:    in.DoctorName,
		RoomNumber:    in.RoomNumber,
		Status:        StatusWaiting,
		QueuePosition: maxPos + 1,
		AssignedAt:    c.clock.Now(),
		Date:          date,
	}
	if err := c.repo.Create(ctx, entry); err != nil {
		return nil, fmt.Errorf("%w: create entry: %v", ErrStore, err)
	}

	c.logger.Info().
		Str("patient_user_id", entry.PatientUserID).
		Str("doctor_id", entry.DoctorID.String()).
		Int("position", entry.QueuePosition).
		Msg("patient enqueued")
	c.publish(KindEnqueued, entry)
	return entry, nil
}

// Complete marks the entry DONE and advances the queue: the first WAITING
// entry becomes IN_PROGRESS at position 1, the rest renumber to 2..N from
// sort order alone. Re-running after a partial failure converges to the same
// state, so completing an already-DONE entry just re-heals the partition.
func (c *Coordinator) Complete(ctx context.Context, entryID uuid.UUID) (*Entry, error) {
	entry, err := c.repo.GetByID(ctx, entryID)
	if err != nil {
		return nil, err
	}

	unlock := c.locks.lock(partitionKey(entry.DoctorID, entry.Date))
	defer unlock()

	var promoted *Entry
	var moved []*Entry
	err = c.repo.Transact(ctx, func(ctx context.Context) error {
		if entry.Status != StatusDone {
			if err := c.repo.SetDone(ctx, entry.ID, c.clock.Now()); err != nil {
				return fmt.Errorf("mark done: %w", err)
			}
			entry.Status = StatusDone
		}
		promoted, moved, err = c.advance(ctx, entry.DoctorID, entry.Date)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: complete: %v", ErrStore, err)
	}

	c.logger.Info().
		Str("entry_id", entry.ID.String()).
		Str("doctor_id", entry.DoctorID.String()).
		Msg("consultation completed")
	c.publish(KindCompleted, entry)
	if promoted != nil {
		c.publish(KindCalled, promoted)
	}
	for _, m := range moved {
		c.publish(KindPositionChanged, m)
	}
	return promoted, nil
}

// Call promotes a WAITING entry out of order. A partition with an entry
// already IN_PROGRESS rejects the call; calling the entry that is already
// in progress is a no-op.
func (c *Coordinator) Call(ctx context.Context, entryID uuid.UUID) (*Entry, error) {
	entry, err := c.repo.GetByID(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if entry.Status == StatusInProgress {
		return entry, nil
	}
	if entry.Status == StatusDone {
		return nil, ErrNotFound
	}

	unlock := c.locks.lock(partitionKey(entry.DoctorID, entry.Date))
	defer unlock()

	active, err := c.repo.ListActive(ctx, entry.DoctorID, entry.Date)
	if err != nil {
		return nil, fmt.Errorf("%w: list active: %v", ErrStore, err)
	}
	for _, e := range active {
		if e.Status == StatusInProgress {
			return nil, ErrDoctorBusy
		}
	}

	var moved []*Entry
	now := c.clock.Now()
	err = c.repo.Transact(ctx, func(ctx context.Context) error {
		if err := c.repo.SetInProgress(ctx, entry.ID, now, 1); err != nil {
			return fmt.Errorf("promote: %w", err)
		}
		pos := 2
		for _, e := range active {
			if e.ID == entry.ID {
				continue
			}
			if e.QueuePosition != pos {
				if err := c.repo.SetPosition(ctx, e.ID, pos); err != nil {
					return fmt.Errorf("renumber: %w", err)
				}
				e.QueuePosition = pos
				moved = append(moved, e)
			}
			pos++
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: call: %v", ErrStore, err)
	}

	entry.Status = StatusInProgress
	entry.CalledAt = &now
	entry.QueuePosition = 1

	c.logger.Info().
		Str("entry_id", entry.ID.String()).
		Str("doctor_id", entry.DoctorID.String()).
		Msg("patient called")
	c.publish(KindCalled, entry)
	for _, m := range moved {
		c.publish(KindPositionChanged, m)
	}
	return entry, nil
}

// advance promotes and renumbers a partition so the active entries read
// IN_PROGRESS at 1 followed by WAITING at 2..N. Positions are recomputed
// purely from the current sort order. Caller holds the partition lock.
func (c *Coordinator) advance(ctx context.Context, doctorID uuid.UUID, date string) (*Entry, []*Entry, error) {
	active, err := c.repo.ListActive(ctx, doctorID, date)
	if err != nil {
		return nil, nil, fmt.Errorf("list active: %w", err)
	}
	if len(active) == 0 {
		return nil, nil, nil
	}

	// At most one IN_PROGRESS exists; put it first, keep WAITING order.
	ordered := make([]*Entry, 0, len(active))
	for _, e := range active {
		if e.Status == StatusInProgress {
			ordered = append(ordered, e)
		}
	}
	var promoted *Entry
	if len(ordered) == 0 {
		promoted = active[0]
		now := c.clock.Now()
		if err := c.repo.SetInProgress(ctx, promoted.ID, now, 1); err != nil {
			return nil, nil, fmt.Errorf("promote next: %w", err)
		}
		promoted.Status = StatusInProgress
		promoted.CalledAt = &now
		promoted.QueuePosition = 1
		ordered = append(ordered, promoted)
	}
	for _, e := range active {
		if e.Status == StatusWaiting {
			ordered = append(ordered, e)
		}
	}

	var moved []*Entry
	for i, e := range ordered {
		want := i + 1
		if e.QueuePosition == want {
			continue
		}
		if err := c.repo.SetPosition(ctx, e.ID, want); err != nil {
			return nil, nil, fmt.Errorf("renumber: %w", err)
		}
		e.QueuePosition = want
		if e != promoted {
			moved = append(moved, e)
		}
	}
	return promoted, moved, nil
}

// ListForDoctor returns the doctor's active board for a day (today when date
// is blank), ordered by position.
func (c *Coordinator) ListForDoctor(ctx context.Context, doctorID uuid.UUID, date string) ([]*Entry, error) {
	if date == "" {
		date = c.Today()
	}
	entries, err := c.repo.ListActive(ctx, doctorID, date)
	if err != nil {
		return nil, fmt.Errorf("%w: list active: %v", ErrStore, err)
	}
	return entries, nil
}

// CompletedToday returns the doctor's finished consultations for today.
func (c *Coordinator) CompletedToday(ctx context.Context, doctorID uuid.UUID) ([]*Entry, error) {
	entries, err := c.repo.ListCompleted(ctx, doctorID, c.Today())
	if err != nil {
		return nil, fmt.Errorf("%w: list completed: %v", ErrStore, err)
	}
	return entries, nil
}

// ActiveForPatient returns the patient's live entry for today, or nil.
func (c *Coordinator) ActiveForPatient(ctx context.Context, patientUserID string) (*Entry, error) {
	entry, err := c.repo.ActiveByPatient(ctx, patientUserID, c.Today())
	if err != nil {
		return nil, fmt.Errorf("%w: active-by-patient: %v", ErrStore, err)
	}
	return entry, nil
}

// LogStaleInProgress reports consultations running longer than maxAge. The
// scheduled sweep calls it; queue state is left alone, the doctor decides.
func (c *Coordinator) LogStaleInProgress(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := c.clock.Now().Add(-maxAge)
	stale, err := c.repo.ListStaleInProgress(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("%w: list stale: %v", ErrStore, err)
	}
	for _, e := range stale {
		c.logger.Warn().
			Str("entry_id", e.ID.String()).
			Str("doctor_id", e.DoctorID.String()).
			Time("called_at", *e.CalledAt).
			Msg("consultation running unusually long")
	}
	return len(stale), nil
}

func (c *Coordinator) publish(kind string, e *Entry) {
	if c.bus == nil {
		return
	}
	data := map[string]interface{}{
		"entry_id": e.ID.String(),
		"status":   e.Status,
		"position": e.QueuePosition,
	}
	at := c.clock.Now()
	c.bus.Publish(events.Event{Topic: PatientTopic(e.PatientUserID), Kind: kind, At: at, Data: data})
	c.bus.Publish(events.Event{Topic: DoctorTopic(e.DoctorID), Kind: kind, At: at, Data: data})
}
