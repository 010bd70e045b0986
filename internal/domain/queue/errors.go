package queue

import "errors"

var (
	// ErrAlreadyQueued means the patient already holds a non-DONE entry today.
	ErrAlreadyQueued = errors.New("patient is already in a queue today")
	// ErrNotFound means the queue entry does not exist.
	ErrNotFound = errors.New("queue entry not found")
	// ErrDoctorBusy means the partition already has an IN_PROGRESS entry.
	ErrDoctorBusy = errors.New("doctor already has a consultation in progress")
	// ErrNoDoctor means no doctor is on duty to receive the patient.
	ErrNoDoctor = errors.New("no doctor on duty")
	// ErrStore wraps unexpected storage failures.
	ErrStore = errors.New("queue store failure")
)
