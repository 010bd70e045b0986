package checkin

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cliniq/cliniq/internal/domain/cover"
	"github.com/cliniq/cliniq/internal/domain/queue"
	"github.com/cliniq/cliniq/internal/domain/visitcode"
	"github.com/cliniq/cliniq/internal/platform/clock"
	"github.com/cliniq/cliniq/internal/platform/events"
)

// The manager depends on narrow slices of the neighbouring domains so tests
// can stand in fakes without touching a store.

type GateEvaluator interface {
	Evaluate(ctx context.Context, userID string) cover.Decision
}

type CodeIssuer interface {
	Generate(ctx context.Context, userID, purpose string) (*visitcode.VisitCode, error)
	GetActive(ctx context.Context, userID string) (*visitcode.VisitCode, error)
}

type QueueReader interface {
	ActiveForPatient(ctx context.Context, patientUserID string) (*queue.Entry, error)
}

type Subscriber interface {
	Subscribe(topic string) (<-chan events.Event, func())
}

// Manager owns the live sessions, one per user id.
type Manager struct {
	gate   GateEvaluator
	codes  CodeIssuer
	queues QueueReader
	bus    Subscriber
	pub    events.Publisher
	clock  clock.Clock
	logger zerolog.Logger
	tick   time.Duration

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewManager(gate GateEvaluator, codes CodeIssuer, queues QueueReader, bus Subscriber, pub events.Publisher, clk clock.Clock, logger zerolog.Logger) *Manager {
	return &Manager{
		gate:     gate,
		codes:    codes,
		queues:   queues,
		bus:      bus,
		pub:      pub,
		clock:    clk,
		logger:   logger,
		tick:     time.Second,
		sessions: make(map[string]*Session),
	}
}

// Session returns the user's live session, creating and priming it on first
// use: gate evaluated, code state restored from the store, queue projected,
// and the change-bus watcher started.
func (m *Manager) Session(ctx context.Context, userID string) *Session {
	m.mu.Lock()
	s, ok := m.sessions[userID]
	if !ok {
		s = newSession(userID, m)
		m.sessions[userID] = s
	}
	m.mu.Unlock()
	if ok {
		return s
	}

	s.RefreshGate(ctx)
	s.restore(ctx)
	s.RefreshQueue(ctx)
	m.startWatcher(s)

	m.logger.Debug().Str("user_id", userID).Msg("check-in session started")
	return s
}

// End tears down the user's session if one exists.
func (m *Manager) End(userID string) {
	m.mu.Lock()
	s, ok := m.sessions[userID]
	if ok {
		delete(m.sessions, userID)
	}
	m.mu.Unlock()
	if ok {
		s.Reset()
		m.logger.Debug().Str("user_id", userID).Msg("check-in session ended")
	}
}

// SessionCount reports how many sessions are live.
func (m *Manager) SessionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *Manager) startWatcher(s *Session) {
	if m.bus == nil {
		return
	}
	coverCh, cancelCover := m.bus.Subscribe(cover.Topic(s.userID))
	queueCh, cancelQueue := m.bus.Subscribe(queue.PatientTopic(s.userID))
	ctx, cancel := context.WithCancel(context.Background())

	var once sync.Once
	s.mu.Lock()
	s.cancelWatch = func() {
		once.Do(func() {
			cancel()
			cancelCover()
			cancelQueue()
		})
	}
	s.mu.Unlock()

	go s.watch(ctx, coverCh, queueCh)
}
