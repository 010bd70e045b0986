package checkin

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cliniq/cliniq/internal/domain/cover"
	"github.com/cliniq/cliniq/internal/domain/queue"
	"github.com/cliniq/cliniq/internal/domain/visitcode"
	"github.com/cliniq/cliniq/internal/platform/events"
)

var (
	// ErrGateNotApproved means code generation was attempted before the
	// insurance gate cleared.
	ErrGateNotApproved = errors.New("insurance cover is not approved")
	// ErrAlreadyCheckedIn means the patient already holds a live queue entry.
	ErrAlreadyCheckedIn = errors.New("already checked in")
)

// Session is one patient's live check-in state. All fields are projections:
// the stores stay authoritative and the session re-reads them when the change
// bus signals. A session owns at most two goroutines, the code countdown and
// the change-bus watcher, both bound to cancel functions held under the lock.
type Session struct {
	userID string
	m      *Manager

	mu        sync.Mutex
	gate      GateView
	codeState string
	code      *visitcode.VisitCode
	queue     QueueView

	cancelCountdown func()
	cancelWatch     func()
}

func newSession(userID string, m *Manager) *Session {
	return &Session{
		userID:    userID,
		m:         m,
		gate:      GateView{State: GateChecking},
		codeState: CodeIdle,
		queue:     QueueView{State: QueueNotQueued},
	}
}

// Snapshot returns the current session state. The countdown value is computed
// from the clock at call time, not from the last tick.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	code := CodeView{State: s.codeState}
	if s.code != nil && s.codeState == CodeReady {
		code.Code = s.code.Code
		code.Purpose = s.code.Purpose
		code.SecondsRemaining = s.code.SecondsRemaining(s.m.clock.Now())
		expires := s.code.ExpiresAt
		code.ExpiresAt = &expires
	}
	return Snapshot{
		UserID: s.userID,
		Gate:   s.gate,
		Code:   code,
		Queue:  s.queue,
	}
}

// RefreshGate re-evaluates the insurance gate and publishes a transition when
// the state moved.
func (s *Session) RefreshGate(ctx context.Context) {
	d := s.m.gate.Evaluate(ctx, s.userID)

	view := GateView{State: d.State}
	switch d.State {
	case cover.GateApproved:
		view.InsuranceName = d.InsuranceName
		view.MemberNumber = d.MemberNumber
	case cover.GateError:
		view.Reason = d.Reason
	}

	s.mu.Lock()
	changed := s.gate.State != view.State
	s.gate = view
	s.mu.Unlock()

	if changed {
		s.publish(KindGateChanged, view.State)
	}
}

// RefreshQueue re-reads the patient's queue entry and updates the projection.
// A live entry disappearing after the patient was queued reads as DONE.
func (s *Session) RefreshQueue(ctx context.Context) {
	entry, err := s.m.queues.ActiveForPatient(ctx, s.userID)
	if err != nil {
		s.m.logger.Warn().Err(err).Str("user_id", s.userID).Msg("queue projection refresh failed")
		return
	}

	s.mu.Lock()
	prev := s.queue.State
	var next QueueView
	switch {
	case entry == nil:
		if prev == QueueWaiting || prev == QueueYourTurn {
			next = QueueView{State: QueueDone}
		} else {
			next = QueueView{State: prev}
		}
	case entry.Status == queue.StatusInProgress:
		next = QueueView{
			State:      QueueYourTurn,
			DoctorName: entry.DoctorName,
			RoomNumber: entry.RoomNumber,
			Purpose:    entry.Purpose,
		}
	default:
		next = QueueView{
			State:      QueueWaiting,
			Position:   entry.QueuePosition,
			DoctorName: entry.DoctorName,
			RoomNumber: entry.RoomNumber,
			Purpose:    entry.Purpose,
		}
	}
	changed := next.State != prev || next.Position != s.queue.Position
	s.queue = next
	s.mu.Unlock()

	if changed {
		s.publish(KindQueueChanged, next.State)
	}
}

// Generate issues a fresh visit code for the session. The gate must read
// APPROVED and the patient must not already hold a live queue entry. A prior
// countdown is cancelled before the new code takes over.
func (s *Session) Generate(ctx context.Context, purpose string) (Snapshot, error) {
	s.mu.Lock()
	gateState := s.gate.State
	s.mu.Unlock()
	if gateState == GateChecking {
		s.RefreshGate(ctx)
		s.mu.Lock()
		gateState = s.gate.State
		s.mu.Unlock()
	}
	if gateState != GateApproved {
		return s.Snapshot(), ErrGateNotApproved
	}

	entry, err := s.m.queues.ActiveForPatient(ctx, s.userID)
	if err != nil {
		return s.Snapshot(), fmt.Errorf("queue lookup: %w", err)
	}
	if entry != nil {
		return s.Snapshot(), ErrAlreadyCheckedIn
	}

	s.mu.Lock()
	s.stopCountdownLocked()
	s.codeState = CodeGenerating
	s.code = nil
	s.mu.Unlock()
	s.publish(KindCodeChanged, CodeGenerating)

	vc, err := s.m.codes.Generate(ctx, s.userID, purpose)
	if err != nil {
		s.mu.Lock()
		s.codeState = CodeGenerationFailed
		s.mu.Unlock()
		s.publish(KindCodeChanged, CodeGenerationFailed)
		return s.Snapshot(), err
	}

	s.mu.Lock()
	s.codeState = CodeReady
	s.code = vc
	s.startCountdownLocked(vc)
	s.mu.Unlock()
	s.publish(KindCodeChanged, CodeReady)
	return s.Snapshot(), nil
}

// Reset is the session's single exit point: it cancels the countdown and the
// change-bus watcher and returns the machine to its initial code and queue
// states. Safe to call repeatedly.
func (s *Session) Reset() {
	s.mu.Lock()
	s.stopCountdownLocked()
	if s.cancelWatch != nil {
		s.cancelWatch()
		s.cancelWatch = nil
	}
	s.codeState = CodeIdle
	s.code = nil
	s.queue = QueueView{State: QueueNotQueued}
	s.mu.Unlock()
}

// restore rebuilds code state from the store so a returning client lands on
// its still-usable code instead of an IDLE machine.
func (s *Session) restore(ctx context.Context) {
	vc, err := s.m.codes.GetActive(ctx, s.userID)
	if err != nil || vc == nil {
		return
	}
	s.mu.Lock()
	s.codeState = CodeReady
	s.code = vc
	s.startCountdownLocked(vc)
	s.mu.Unlock()
}

func (s *Session) stopCountdownLocked() {
	if s.cancelCountdown != nil {
		s.cancelCountdown()
		s.cancelCountdown = nil
	}
}

func (s *Session) startCountdownLocked(vc *visitcode.VisitCode) {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancelCountdown = cancel
	go s.countdown(ctx, vc)
}

// countdown watches the code's remaining lifetime and flips READY to EXPIRED
// at zero, then exits. It also exits quietly when a newer code displaced the
// one it was started for.
func (s *Session) countdown(ctx context.Context, vc *visitcode.VisitCode) {
	ticker := time.NewTicker(s.m.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			if s.codeState != CodeReady || s.code == nil || s.code.ID != vc.ID {
				s.mu.Unlock()
				return
			}
			if s.code.SecondsRemaining(s.m.clock.Now()) > 0 {
				s.mu.Unlock()
				continue
			}
			s.codeState = CodeExpired
			s.cancelCountdown = nil
			s.mu.Unlock()
			s.publish(KindCodeChanged, CodeExpired)
			return
		}
	}
}

// watch re-projects session state whenever the cover or queue topic signals.
func (s *Session) watch(ctx context.Context, coverCh, queueCh <-chan events.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-coverCh:
			if !ok {
				return
			}
			s.RefreshGate(context.Background())
		case _, ok := <-queueCh:
			if !ok {
				return
			}
			s.RefreshQueue(context.Background())
		}
	}
}

func (s *Session) publish(kind, state string) {
	if s.m.pub == nil {
		return
	}
	s.m.pub.Publish(events.Event{
		Topic: SessionTopic(s.userID),
		Kind:  kind,
		At:    s.m.clock.Now(),
		Data:  map[string]string{"state": state},
	})
}
