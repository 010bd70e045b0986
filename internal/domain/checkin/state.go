// Package checkin drives the patient-side check-in flow as a per-user session
// state machine: an insurance-gate state, a visit-code state with a live
// countdown, and a projection of the patient's queue entry. Sessions hold no
// authoritative data; every state is recomputed from the stores, and the
// change bus only tells a session when to look again.
package checkin

import "time"

// Gate states. APPROVED, PENDING, NONE and ERROR mirror the cover gate;
// CHECKING covers the window before the first evaluation lands.
const (
	GateChecking = "CHECKING"
	GateApproved = "APPROVED"
	GatePending  = "PENDING"
	GateNone     = "NONE"
	GateError    = "ERROR"
)

// Code states.
const (
	CodeIdle             = "IDLE"
	CodeGenerating       = "GENERATING"
	CodeReady            = "READY"
	CodeExpired          = "EXPIRED"
	CodeGenerationFailed = "GENERATION_FAILED"
)

// Queue projection states.
const (
	QueueNotQueued = "NOT_QUEUED"
	QueueWaiting   = "WAITING"
	QueueYourTurn  = "YOUR_TURN"
	QueueDone      = "DONE"
)

// Session transition topic and kinds published on the change bus (and relayed
// to the patient's websocket).
func SessionTopic(userID string) string { return "checkin/" + userID }

const (
	KindGateChanged  = "checkin.gate_changed"
	KindCodeChanged  = "checkin.code_changed"
	KindQueueChanged = "checkin.queue_changed"
)

// GateView is the gate portion of a snapshot.
type GateView struct {
	State         string `json:"state"`
	InsuranceName string `json:"insurance_name,omitempty"`
	MemberNumber  string `json:"member_number,omitempty"`
	Reason        string `json:"reason,omitempty"`
}

// CodeView is the visit-code portion of a snapshot.
type CodeView struct {
	State            string     `json:"state"`
	Code             string     `json:"code,omitempty"`
	Purpose          string     `json:"purpose,omitempty"`
	SecondsRemaining int        `json:"seconds_remaining"`
	ExpiresAt        *time.Time `json:"expires_at,omitempty"`
}

// QueueView is the queue projection portion of a snapshot.
type QueueView struct {
	State      string `json:"state"`
	Position   int    `json:"position,omitempty"`
	DoctorName string `json:"doctor_name,omitempty"`
	RoomNumber string `json:"room_number,omitempty"`
	Purpose    string `json:"purpose,omitempty"`
}

// Snapshot is the full session state handed to the client.
type Snapshot struct {
	UserID string    `json:"user_id"`
	Gate   GateView  `json:"gate"`
	Code   CodeView  `json:"code"`
	Queue  QueueView `json:"queue"`
}
