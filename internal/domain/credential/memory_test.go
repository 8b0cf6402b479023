package credential

import (
	"context"
	"sync"
	"testing"
)

func TestMemoryStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	token, err := store.Get(ctx)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if token != "" {
		t.Fatalf("expected empty slot, got %q", token)
	}

	if err := store.Set(ctx, "tok-1"); err != nil {
		t.Fatalf("Set error: %v", err)
	}
	if err := store.Set(ctx, "tok-2"); err != nil {
		t.Fatalf("Set error: %v", err)
	}

	token, err = store.Get(ctx)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if token != "tok-2" {
		t.Fatalf("expected replacement to win, got %q", token)
	}

	if err := store.Clear(ctx); err != nil {
		t.Fatalf("Clear error: %v", err)
	}
	if err := store.Clear(ctx); err != nil {
		t.Fatalf("repeated Clear should be safe: %v", err)
	}

	token, err = store.Get(ctx)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if token != "" {
		t.Fatalf("expected cleared slot, got %q", token)
	}
}

func TestMemoryStoreConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = store.Set(ctx, "tok")
			_, _ = store.Get(ctx)
			_ = store.Clear(ctx)
		}()
	}
	wg.Wait()
}
