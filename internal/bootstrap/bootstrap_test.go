package bootstrap

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"pricepulse-client-go/internal/domain/routeguard"
	"pricepulse-client-go/internal/domain/session"
	"pricepulse-client-go/internal/domain/session/model"
)

func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	contents := fmt.Sprintf(`
api:
  base_url: http://localhost:59999/api
credential:
  driver: sqlite
  sqlite_path: %s
log:
  level: error
`, filepath.Join(dir, "client.db"))
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestInitGraphDependenciesOrdered(t *testing.T) {
	steps := initGraph(Options{})
	want := []string{
		"config:load",
		"logging:init",
		"storage:open",
		"credential:init",
		"session:init",
		"api:init",
		"auth:init",
		"cart:init",
	}
	if len(steps) != len(want) {
		t.Fatalf("unexpected step count: got %d want %d", len(steps), len(want))
	}
	done := map[string]bool{}
	for i, step := range steps {
		if step.ID != want[i] {
			t.Fatalf("step %d: got %s want %s", i, step.ID, want[i])
		}
		for _, dep := range step.DependsOn {
			if !done[dep] {
				t.Fatalf("step %s depends on %s which runs later", step.ID, dep)
			}
		}
		done[step.ID] = true
	}
}

func TestRunAssemblesCore(t *testing.T) {
	ctx := context.Background()
	core, err := Run(ctx, Options{ConfigPath: writeTestConfig(t)})
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	defer core.Close(ctx)

	if core.Config == nil || core.Logger == nil || core.DB == nil {
		t.Fatal("platform components missing")
	}
	if core.Credentials == nil || core.Sessions == nil || core.API == nil {
		t.Fatal("core components missing")
	}
	if core.Auth == nil || core.Cart == nil {
		t.Fatal("domain components missing")
	}
	if got := core.Sessions.Snapshot().State; got != model.StateUninitialized {
		t.Fatalf("session must start uninitialized, got %s", got)
	}
}

func TestWarmupWithoutCredentialStaysOffline(t *testing.T) {
	ctx := context.Background()
	// The configured server is unreachable; warmup must still succeed
	// because no credential means no network call.
	core, err := Run(ctx, Options{ConfigPath: writeTestConfig(t)})
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	defer core.Close(ctx)

	if err := core.Warmup(ctx); err != nil {
		t.Fatalf("Warmup error: %v", err)
	}
	if got := core.Sessions.Snapshot().State; got != model.StateAnonymous {
		t.Fatalf("expected anonymous after warmup, got %s", got)
	}
}

func TestGuardRouteUsesLiveState(t *testing.T) {
	ctx := context.Background()
	core, err := Run(ctx, Options{ConfigPath: writeTestConfig(t)})
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	defer core.Close(ctx)

	if err := core.Warmup(ctx); err != nil {
		t.Fatalf("Warmup error: %v", err)
	}
	d := core.GuardRoute(routeguard.Requirement{RequiresAuth: true})
	if d.Allowed || d.RedirectTo != routeguard.LoginRoute {
		t.Fatalf("unexpected decision: %+v", d)
	}

	user := &session.UserProfile{ID: "u1", Role: model.RoleCustomer}
	if err := core.Sessions.LoginSucceeded(ctx, user); err != nil {
		t.Fatalf("LoginSucceeded error: %v", err)
	}
	if d := core.GuardRoute(routeguard.Requirement{RequiresAuth: true}); !d.Allowed {
		t.Fatalf("expected entry after login, got %+v", d)
	}

	d = core.GuardRoute(routeguard.Requirement{RequiresAuth: true, RequiresNonEmptyCart: true})
	if d.Allowed || d.RedirectTo != routeguard.CartRoute {
		t.Fatalf("empty cart must redirect, got %+v", d)
	}
}

func TestLogoutResetsCartMirror(t *testing.T) {
	ctx := context.Background()
	core, err := Run(ctx, Options{ConfigPath: writeTestConfig(t)})
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	defer core.Close(ctx)

	if err := core.Warmup(ctx); err != nil {
		t.Fatalf("Warmup error: %v", err)
	}
	user := &session.UserProfile{ID: "u1", Role: model.RoleCustomer}
	if err := core.Sessions.LoginSucceeded(ctx, user); err != nil {
		t.Fatalf("LoginSucceeded error: %v", err)
	}

	// The cart reset runs inside the logout event dispatch; the logout must
	// still return promptly.
	done := make(chan error, 1)
	go func() {
		done <- core.Sessions.Logout(ctx)
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Logout error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("logout did not complete")
	}
	if !core.Cart.Snapshot().Empty() {
		t.Fatal("logout must leave the cart mirror empty")
	}
}
