package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"pricepulse-client-go/internal/domain/eventbus"
	"pricepulse-client-go/internal/domain/session/model"
)

type (
	// UserProfile re-exports the shared session entity for callers.
	UserProfile = model.UserProfile
	// Snapshot re-exports the read view of the session.
	Snapshot = model.Snapshot
	// Logger re-exports the logging interface used across the domain.
	Logger = model.Logger
)

// ErrInvalidTransition is returned when an event is not legal in the current
// state. The transition table in this file is the complete set of permitted
// moves; nothing else changes session state.
var ErrInvalidTransition = errors.New("session transition not permitted")

// Event names a session transition trigger.
type Event string

const (
	EventBeginBootstrap     Event = "begin_bootstrap"
	EventBootstrapSucceeded Event = "bootstrap_succeeded"
	EventBootstrapFailed    Event = "bootstrap_failed"
	EventLoginSucceeded     Event = "login_succeeded"
	EventProfileUpdated     Event = "profile_updated"
	EventLogout             Event = "logout"
	EventRefreshFailed      Event = "refresh_failed"
)

// transitions lists every legal (state, event) -> state move. Logout and the
// failure events are also legal while already Anonymous: concurrent 401s can
// report expiry after the first one has already torn the session down.
var transitions = map[model.State]map[Event]model.State{
	model.StateUninitialized: {
		EventBeginBootstrap: model.StateBootstrapping,
	},
	model.StateBootstrapping: {
		EventBootstrapSucceeded: model.StateAuthenticated,
		EventBootstrapFailed:    model.StateAnonymous,
		EventRefreshFailed:      model.StateAnonymous,
	},
	model.StateAnonymous: {
		EventLoginSucceeded:  model.StateAuthenticated,
		EventLogout:          model.StateAnonymous,
		EventRefreshFailed:   model.StateAnonymous,
		EventBootstrapFailed: model.StateAnonymous,
	},
	model.StateAuthenticated: {
		EventProfileUpdated: model.StateAuthenticated,
		EventLogout:         model.StateAnonymous,
		EventRefreshFailed:  model.StateAnonymous,
	},
}

// CredentialClearer is the narrow slice of the credential store the machine
// needs to honor its "entering Anonymous clears the credential" invariant.
type CredentialClearer interface {
	Clear(ctx context.Context) error
}

// Bus publishes state change notifications to interested subscribers.
type Bus interface {
	Publish(topic string, args ...interface{})
}

// Options encapsulates the dependencies required to construct a Machine.
type Options struct {
	Credentials CredentialClearer
	Logger      Logger
	Bus         Bus
}

// Machine owns the session state and enforces the transition table. All
// writes to session state in the process go through its methods.
type Machine struct {
	mu         sync.RWMutex
	state      model.State
	user       *model.UserProfile
	lastErr    error
	generation uint64

	creds  CredentialClearer
	logger Logger
	bus    Bus
}

// NewMachine wires a Machine using the supplied options.
func NewMachine(opts Options) (*Machine, error) {
	if opts.Credentials == nil {
		return nil, errors.New("session machine requires a credential store")
	}
	if opts.Logger == nil {
		return nil, errors.New("session machine requires a logger")
	}
	return &Machine{
		state:  model.StateUninitialized,
		creds:  opts.Credentials,
		logger: opts.Logger,
		bus:    opts.Bus,
	}, nil
}

// Snapshot returns a point-in-time copy of the session.
func (m *Machine) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Snapshot{State: m.state, User: m.user, Err: m.lastErr}
}

// Generation increments whenever the session identity changes. Callers
// holding async responses compare generations to discard stale results.
func (m *Machine) Generation() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.generation
}

// BeginBootstrap marks the start of session restoration on application start.
func (m *Machine) BeginBootstrap(ctx context.Context) error {
	return m.apply(ctx, EventBeginBootstrap, nil, nil)
}

// BootstrapSucceeded installs the restored profile.
func (m *Machine) BootstrapSucceeded(ctx context.Context, user *UserProfile) error {
	return m.apply(ctx, EventBootstrapSucceeded, user, nil)
}

// BootstrapFailed degrades to Anonymous; cause is retained on the snapshot.
func (m *Machine) BootstrapFailed(ctx context.Context, cause error) error {
	return m.apply(ctx, EventBootstrapFailed, nil, cause)
}

// LoginSucceeded installs the profile returned by login, registration, or a
// completed OAuth callback.
func (m *Machine) LoginSucceeded(ctx context.Context, user *UserProfile) error {
	return m.apply(ctx, EventLoginSucceeded, user, nil)
}

// ProfileUpdated replaces the profile wholesale without changing state.
func (m *Machine) ProfileUpdated(ctx context.Context, user *UserProfile) error {
	return m.apply(ctx, EventProfileUpdated, user, nil)
}

// Logout tears the session down after explicit sign-out or account deletion.
func (m *Machine) Logout(ctx context.Context) error {
	return m.apply(ctx, EventLogout, nil, nil)
}

// RefreshFailed tears the session down after an unrecoverable credential
// refresh failure.
func (m *Machine) RefreshFailed(ctx context.Context, cause error) error {
	return m.apply(ctx, EventRefreshFailed, nil, cause)
}

func (m *Machine) apply(ctx context.Context, event Event, user *UserProfile, cause error) error {
	m.mu.Lock()

	next, ok := transitions[m.state][event]
	if !ok {
		from := m.state
		m.mu.Unlock()
		return fmt.Errorf("%w: %s on %s", ErrInvalidTransition, event, from)
	}
	if next == model.StateAuthenticated && user == nil {
		m.mu.Unlock()
		return fmt.Errorf("authenticated state requires a profile (%s)", event)
	}

	from := m.state
	m.state = next

	switch next {
	case model.StateAuthenticated:
		if user != nil {
			m.user = user
		}
		m.lastErr = nil
		if from != model.StateAuthenticated {
			m.generation++
		}
	case model.StateAnonymous:
		m.user = nil
		m.lastErr = cause
		if from != model.StateAnonymous {
			m.generation++
		}
	}
	changed := from != next || event == EventProfileUpdated
	snap := Snapshot{State: m.state, User: m.user, Err: m.lastErr}
	m.mu.Unlock()

	if next == model.StateAnonymous {
		if err := m.creds.Clear(ctx); err != nil {
			m.logger.Warn("failed to clear credential on %s: %v", event, err)
		}
	}

	m.logger.Debug("session %s: %s -> %s", event, from, snap.State)
	if changed {
		m.publish(event, snap)
	}
	return nil
}

// publish runs outside the state lock so subscribers may read the machine.
func (m *Machine) publish(event Event, snap Snapshot) {
	if m.bus == nil {
		return
	}
	m.bus.Publish(eventbus.EventSessionState, snap)
	switch event {
	case EventLoginSucceeded, EventBootstrapSucceeded:
		m.bus.Publish(eventbus.EventSessionLogin, snap)
	case EventLogout, EventRefreshFailed:
		m.bus.Publish(eventbus.EventSessionLogout, snap)
	}
}
