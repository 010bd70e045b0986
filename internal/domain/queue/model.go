// Package queue coordinates the per-doctor, per-day visit queues. Entries
// move WAITING -> IN_PROGRESS -> DONE; positions of non-DONE entries within a
// (doctor, day) partition stay contiguous from 1, and at most one entry per
// partition is IN_PROGRESS at a time.
package queue

import (
	"time"

	"github.com/google/uuid"
)

// Entry statuses.
const (
	StatusWaiting    = "WAITING"
	StatusInProgress = "IN_PROGRESS"
	StatusDone       = "DONE"
)

// DateLayout is the partition-day format (doctor-local calendar day).
const DateLayout = "2006-01-02"

// Entry maps to the queue_entry table. Patient and doctor details are
// denormalized at enqueue time so the board reads without joins.
type Entry struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	PatientUserID string     `db:"patient_user_id" json:"patient_user_id"`
	PatientName   string     `db:"patient_name" json:"patient_name"`
	PatientEmail  string     `db:"patient_email" json:"patient_email"`
	VisitCodeID   uuid.UUID  `db:"visit_code_id" json:"visit_code_id"`
	Purpose       string     `db:"purpose" json:"purpose"`
	InsuranceName string     `db:"insurance_name" json:"insurance_name"`
	MemberNumber  string     `db:"member_number" json:"member_number"`
	DoctorID      uuid.UUID  `db:"doctor_id" json:"doctor_id"`
	DoctorName    string     `db:"doctor_name" json:"doctor_name"`
	RoomNumber    string     `db:"room_number" json:"room_number"`
	Status        string     `db:"status" json:"status"`
	QueuePosition int        `db:"queue_position" json:"queue_position"`
	AssignedAt    time.Time  `db:"assigned_at" json:"assigned_at"`
	CalledAt      *time.Time `db:"called_at" json:"called_at,omitempty"`
	CompletedAt   *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	Date          string     `db:"date" json:"date"`
}

// Active reports whether the entry still occupies a queue position.
func (e *Entry) Active() bool { return e.Status != StatusDone }

// PatientTopic is the change-bus topic carrying one patient's queue events.
func PatientTopic(patientUserID string) string { return "queue/" + patientUserID }

// DoctorTopic is the change-bus topic carrying one doctor's board events.
func DoctorTopic(doctorID uuid.UUID) string { return "queue/doctor/" + doctorID.String() }

// Event kinds published on the change bus.
const (
	KindEnqueued        = "queue.enqueued"
	KindCalled          = "queue.called"
	KindCompleted       = "queue.completed"
	KindPositionChanged = "queue.position_changed"
)
