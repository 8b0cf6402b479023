package session

import (
	"context"
	"errors"
	"sync"
	"testing"

	"pricepulse-client-go/internal/domain/eventbus"
	"pricepulse-client-go/internal/domain/session/model"
)

type fakeCreds struct {
	mu     sync.Mutex
	clears int
}

func (f *fakeCreds) Clear(context.Context) error {
	f.mu.Lock()
	f.clears++
	f.mu.Unlock()
	return nil
}

func (f *fakeCreds) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.clears
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

type recordingBus struct {
	mu     sync.Mutex
	topics []string
}

func (b *recordingBus) Publish(topic string, _ ...interface{}) {
	b.mu.Lock()
	b.topics = append(b.topics, topic)
	b.mu.Unlock()
}

func (b *recordingBus) published() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.topics...)
}

func newTestMachine(t *testing.T) (*Machine, *fakeCreds, *recordingBus) {
	t.Helper()
	creds := &fakeCreds{}
	bus := &recordingBus{}
	m, err := NewMachine(Options{Credentials: creds, Logger: nopLogger{}, Bus: bus})
	if err != nil {
		t.Fatalf("NewMachine error: %v", err)
	}
	return m, creds, bus
}

func customer() *UserProfile {
	return &UserProfile{ID: "u1", Name: "Ada", Email: "ada@example.com", Role: model.RoleCustomer}
}

func TestBootstrapToAuthenticated(t *testing.T) {
	ctx := context.Background()
	m, creds, _ := newTestMachine(t)

	if err := m.BeginBootstrap(ctx); err != nil {
		t.Fatalf("BeginBootstrap error: %v", err)
	}
	if got := m.Snapshot().State; got != model.StateBootstrapping {
		t.Fatalf("expected bootstrapping, got %s", got)
	}

	if err := m.BootstrapSucceeded(ctx, customer()); err != nil {
		t.Fatalf("BootstrapSucceeded error: %v", err)
	}
	snap := m.Snapshot()
	if !snap.Authenticated() {
		t.Fatalf("expected authenticated snapshot, got %s", snap.State)
	}
	if snap.User.Email != "ada@example.com" {
		t.Fatalf("unexpected profile: %+v", snap.User)
	}
	if creds.count() != 0 {
		t.Fatalf("no credential clear expected, got %d", creds.count())
	}
}

func TestBootstrapFailureDegradesToAnonymous(t *testing.T) {
	ctx := context.Background()
	m, creds, _ := newTestMachine(t)

	cause := errors.New("profile fetch failed")
	if err := m.BeginBootstrap(ctx); err != nil {
		t.Fatalf("BeginBootstrap error: %v", err)
	}
	if err := m.BootstrapFailed(ctx, cause); err != nil {
		t.Fatalf("BootstrapFailed error: %v", err)
	}

	snap := m.Snapshot()
	if snap.State != model.StateAnonymous {
		t.Fatalf("expected anonymous, got %s", snap.State)
	}
	if snap.User != nil {
		t.Fatalf("anonymous snapshot must not carry a profile")
	}
	if !errors.Is(snap.Err, cause) {
		t.Fatalf("expected retained cause, got %v", snap.Err)
	}
	if creds.count() != 1 {
		t.Fatalf("entering anonymous must clear the credential, clears=%d", creds.count())
	}
}

func TestAuthenticatedRequiresProfile(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newTestMachine(t)

	if err := m.BeginBootstrap(ctx); err != nil {
		t.Fatalf("BeginBootstrap error: %v", err)
	}
	if err := m.BootstrapSucceeded(ctx, nil); err == nil {
		t.Fatal("expected error installing authenticated state without a profile")
	}
}

func TestInvalidTransitionsRejected(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newTestMachine(t)

	if err := m.LoginSucceeded(ctx, customer()); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("login before bootstrap should be rejected, got %v", err)
	}
	if err := m.BeginBootstrap(ctx); err != nil {
		t.Fatalf("BeginBootstrap error: %v", err)
	}
	if err := m.BeginBootstrap(ctx); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("double bootstrap should be rejected, got %v", err)
	}
}

func TestLogoutIsIdempotent(t *testing.T) {
	ctx := context.Background()
	m, creds, _ := newTestMachine(t)

	if err := m.BeginBootstrap(ctx); err != nil {
		t.Fatalf("BeginBootstrap error: %v", err)
	}
	if err := m.BootstrapSucceeded(ctx, customer()); err != nil {
		t.Fatalf("BootstrapSucceeded error: %v", err)
	}
	if err := m.Logout(ctx); err != nil {
		t.Fatalf("Logout error: %v", err)
	}
	// Concurrent 401 handlers may report expiry after logout already ran.
	if err := m.RefreshFailed(ctx, errors.New("late refresh failure")); err != nil {
		t.Fatalf("RefreshFailed after logout should be accepted: %v", err)
	}
	if err := m.Logout(ctx); err != nil {
		t.Fatalf("repeated Logout should be accepted: %v", err)
	}
	if creds.count() < 1 {
		t.Fatalf("logout must clear the credential")
	}
	if got := m.Snapshot().State; got != model.StateAnonymous {
		t.Fatalf("expected anonymous, got %s", got)
	}
}

func TestProfileUpdateKeepsState(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newTestMachine(t)

	if err := m.BeginBootstrap(ctx); err != nil {
		t.Fatalf("BeginBootstrap error: %v", err)
	}
	if err := m.BootstrapSucceeded(ctx, customer()); err != nil {
		t.Fatalf("BootstrapSucceeded error: %v", err)
	}

	gen := m.Generation()
	updated := customer()
	updated.Name = "Ada Lovelace"
	if err := m.ProfileUpdated(ctx, updated); err != nil {
		t.Fatalf("ProfileUpdated error: %v", err)
	}

	snap := m.Snapshot()
	if snap.State != model.StateAuthenticated {
		t.Fatalf("profile update must not change state, got %s", snap.State)
	}
	if snap.User.Name != "Ada Lovelace" {
		t.Fatalf("expected replaced profile, got %+v", snap.User)
	}
	if m.Generation() != gen {
		t.Fatalf("profile update must not change the session generation")
	}
}

func TestProfileUpdateRequiresProfile(t *testing.T) {
	ctx := context.Background()
	m, _, bus := newTestMachine(t)

	if err := m.BeginBootstrap(ctx); err != nil {
		t.Fatalf("BeginBootstrap error: %v", err)
	}
	if err := m.BootstrapSucceeded(ctx, customer()); err != nil {
		t.Fatalf("BootstrapSucceeded error: %v", err)
	}

	published := len(bus.published())
	if err := m.ProfileUpdated(ctx, nil); err == nil {
		t.Fatal("expected error installing a nil profile")
	}
	snap := m.Snapshot()
	if snap.User == nil || snap.User.ID != "u1" {
		t.Fatalf("rejected update must keep the profile, got %+v", snap.User)
	}
	if len(bus.published()) != published {
		t.Fatal("rejected update must not publish a change event")
	}
}

func TestGenerationAdvancesOnIdentityChange(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newTestMachine(t)

	start := m.Generation()
	if err := m.BeginBootstrap(ctx); err != nil {
		t.Fatalf("BeginBootstrap error: %v", err)
	}
	if err := m.BootstrapSucceeded(ctx, customer()); err != nil {
		t.Fatalf("BootstrapSucceeded error: %v", err)
	}
	afterLogin := m.Generation()
	if afterLogin == start {
		t.Fatal("entering authenticated must advance the generation")
	}
	if err := m.Logout(ctx); err != nil {
		t.Fatalf("Logout error: %v", err)
	}
	if m.Generation() == afterLogin {
		t.Fatal("entering anonymous must advance the generation")
	}
}

func TestTransitionsPublishEvents(t *testing.T) {
	ctx := context.Background()
	m, _, bus := newTestMachine(t)

	if err := m.BeginBootstrap(ctx); err != nil {
		t.Fatalf("BeginBootstrap error: %v", err)
	}
	if err := m.BootstrapSucceeded(ctx, customer()); err != nil {
		t.Fatalf("BootstrapSucceeded error: %v", err)
	}
	if err := m.Logout(ctx); err != nil {
		t.Fatalf("Logout error: %v", err)
	}

	var logins, logouts int
	for _, topic := range bus.published() {
		switch topic {
		case eventbus.EventSessionLogin:
			logins++
		case eventbus.EventSessionLogout:
			logouts++
		}
	}
	if logins != 1 || logouts != 1 {
		t.Fatalf("expected one login and one logout event, got %d/%d", logins, logouts)
	}
}
