// Package authstate owns the canonical in-memory auth state and its
// transition rules. All mutation flows through one serialized entry
// point: a command channel drained by a single goroutine. Components
// never reach into session fields directly, which is what makes the
// one-terminal-transition invariant enforceable.
package authstate

import (
	stderrors "errors"
	"sync"

	"github.com/rs/zerolog"

	"go.peddle.app/authcore/domain"
)

// ErrInvalidTransition reports a transition the current state does not
// admit. The machine stays put; callers treat it as a harmless race
// unless they know better.
var ErrInvalidTransition = stderrors.New("invalid auth state transition")

// Snapshot is a consistent view of the machine. Every field reflects the
// same completed transition; readers never observe a half-applied one.
type Snapshot struct {
	State        domain.State
	Session      *domain.Session
	ProfileReady bool
	Initialized  bool
	LastEvent    string
	Message      string // user-facing detail, set only in StateError
}

type command struct {
	apply func(*Snapshot) error
	done  chan error
}

// Machine is the auth state actor.
type Machine struct {
	cmds   chan command
	stop   chan struct{}
	once   sync.Once
	logger zerolog.Logger

	mu      sync.RWMutex
	current Snapshot

	subMu sync.Mutex
	subs  []chan Snapshot
}

// NewMachine creates and starts a machine in the anonymous state.
func NewMachine(logger zerolog.Logger) *Machine {
	m := &Machine{
		cmds:    make(chan command),
		stop:    make(chan struct{}),
		logger:  logger,
		current: Snapshot{State: domain.StateAnonymous},
	}
	go m.run()
	return m
}

func (m *Machine) run() {
	for {
		select {
		case cmd := <-m.cmds:
			m.mu.Lock()
			next := m.current
			err := cmd.apply(&next)
			if err == nil {
				prev := m.current.State
				m.current = next
				m.mu.Unlock()
				if prev != next.State {
					m.logger.Info().
						Str("from", string(prev)).
						Str("to", string(next.State)).
						Str("event", next.LastEvent).
						Msg("auth state transition")
					m.broadcast(next)
				}
			} else {
				m.mu.Unlock()
			}
			cmd.done <- err
		case <-m.stop:
			return
		}
	}
}

func (m *Machine) do(apply func(*Snapshot) error) error {
	cmd := command{apply: apply, done: make(chan error, 1)}
	select {
	case m.cmds <- cmd:
		return <-cmd.done
	case <-m.stop:
		return stderrors.New("auth state machine stopped")
	}
}

// Snapshot returns the machine's current consistent view.
func (m *Machine) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// CurrentSession returns the live session, or nil.
func (m *Machine) CurrentSession() *domain.Session {
	return m.Snapshot().Session
}

// Updates returns a channel of post-transition snapshots. Slow receivers
// miss intermediate states, never the latest.
func (m *Machine) Updates() <-chan Snapshot {
	ch := make(chan Snapshot, 8)
	m.subMu.Lock()
	m.subs = append(m.subs, ch)
	m.subMu.Unlock()
	return ch
}

func (m *Machine) broadcast(snap Snapshot) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	for _, ch := range m.subs {
		select {
		case ch <- snap:
		default:
			// Drop for a full subscriber; it will see the next one.
		}
	}
}

// Close stops the actor. Pending and later calls fail.
func (m *Machine) Close() {
	m.once.Do(func() { close(m.stop) })
}

// BeginRestore enters initializing while the last-known session is being
// restored. Valid only from anonymous.
func (m *Machine) BeginRestore() error {
	return m.do(func(s *Snapshot) error {
		if s.State != domain.StateAnonymous {
			return ErrInvalidTransition
		}
		s.State = domain.StateInitializing
		s.LastEvent = "restore_started"
		return nil
	})
}

// CompleteRestore settles the initializing state from a restore outcome.
// A restore error is fatal-but-recoverable: the machine returns to
// anonymous with everything cleared, it never surfaces a crash.
func (m *Machine) CompleteRestore(session *domain.Session, profileReady bool, restoreErr error) error {
	return m.do(func(s *Snapshot) error {
		if s.State != domain.StateInitializing {
			return ErrInvalidTransition
		}
		s.Initialized = true
		switch {
		case restoreErr != nil:
			*s = Snapshot{State: domain.StateAnonymous, Initialized: true, LastEvent: "restore_corrupted"}
		case session == nil:
			*s = Snapshot{State: domain.StateAnonymous, Initialized: true, LastEvent: "restore_empty"}
		case session.Verified && profileReady:
			s.State = domain.StateReady
			s.Session = session
			s.ProfileReady = true
			s.LastEvent = "restore_ready"
		case session.Verified:
			s.State = domain.StateVerifiedUnprovisioned
			s.Session = session
			s.ProfileReady = false
			s.LastEvent = "restore_unprovisioned"
		default:
			s.State = domain.StateAwaitingVerification
			s.Session = session
			s.ProfileReady = false
			s.LastEvent = "restore_unverified"
		}
		return nil
	})
}

// SignUpPending records a successful sign-up that still needs
// verification before the provider issues a usable session.
func (m *Machine) SignUpPending(session *domain.Session) error {
	return m.do(func(s *Snapshot) error {
		if s.State != domain.StateAnonymous && s.State != domain.StateInitializing {
			return ErrInvalidTransition
		}
		s.State = domain.StateAwaitingVerification
		s.Session = session
		s.ProfileReady = false
		s.LastEvent = "sign_up"
		return nil
	})
}

// ApplyVerified records an observed verification event with its session.
// Already-verified states absorb the call silently; the callback router
// and the watcher race here by design.
func (m *Machine) ApplyVerified(session *domain.Session) error {
	return m.do(func(s *Snapshot) error {
		if session == nil || !session.Verified {
			return ErrInvalidTransition
		}
		switch s.State {
		case domain.StateVerifiedUnprovisioned, domain.StateReady:
			return nil
		case domain.StateAwaitingVerification, domain.StateAnonymous, domain.StateInitializing:
			s.State = domain.StateVerifiedUnprovisioned
			s.Session = session
			s.LastEvent = "verified"
			return nil
		default:
			return ErrInvalidTransition
		}
	})
}

// MarkProvisioned completes the flow once the provisioning coordinator
// reported success. Ready is reachable only with a verified session, so
// the ready invariant holds by construction.
func (m *Machine) MarkProvisioned() error {
	return m.do(func(s *Snapshot) error {
		if s.State == domain.StateReady {
			return nil
		}
		if s.State != domain.StateVerifiedUnprovisioned {
			return ErrInvalidTransition
		}
		if s.Session == nil || !s.Session.Verified {
			return ErrInvalidTransition
		}
		s.State = domain.StateReady
		s.ProfileReady = true
		s.LastEvent = "provisioned"
		return nil
	})
}

// SignOut clears the session and every derived flag atomically with the
// transition to anonymous. Valid from any state.
func (m *Machine) SignOut() error {
	return m.do(func(s *Snapshot) error {
		*s = Snapshot{State: domain.StateAnonymous, Initialized: s.Initialized, LastEvent: "sign_out"}
		return nil
	})
}

// Fail enters the error state with a user-facing message. A later
// sign-out still returns the machine to anonymous.
func (m *Machine) Fail(message string) error {
	return m.do(func(s *Snapshot) error {
		s.State = domain.StateError
		s.Message = message
		s.LastEvent = "failed"
		return nil
	})
}
