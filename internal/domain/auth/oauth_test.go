package auth

import (
	"context"
	"errors"
	"net/url"
	"testing"

	"pricepulse-client-go/internal/core/api"
	"pricepulse-client-go/internal/domain/session/model"
)

func TestOAuthCallbackSignsIn(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)
	f.toAnonymous(t, ctx)

	query := url.Values{
		"token": {mintToken(t, "u1")},
		"next":  {"/checkout"},
	}
	next, err := f.service.HandleOAuthCallback(ctx, query.Encode())
	if err != nil {
		t.Fatalf("HandleOAuthCallback error: %v", err)
	}
	if next != "/checkout" {
		t.Fatalf("expected preserved destination, got %q", next)
	}
	snap := f.machine.Snapshot()
	if !snap.Authenticated() || snap.User.ID != "u1" {
		t.Fatalf("expected signed-in session, got %+v", snap)
	}
}

func TestOAuthCallbackDefaultsDestination(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)
	f.toAnonymous(t, ctx)

	query := url.Values{"token": {mintToken(t, "u1")}}
	next, err := f.service.HandleOAuthCallback(ctx, query.Encode())
	if err != nil {
		t.Fatalf("HandleOAuthCallback error: %v", err)
	}
	if next != HomeRoute {
		t.Fatalf("expected home destination, got %q", next)
	}
}

func TestOAuthCallbackMissingToken(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)
	f.toAnonymous(t, ctx)

	next, err := f.service.HandleOAuthCallback(ctx, "next=%2Fcheckout")
	if !errors.Is(err, api.ErrAuthRejected) {
		t.Fatalf("expected auth rejection, got %v", err)
	}
	if next != LoginRoute {
		t.Fatalf("expected login destination, got %q", next)
	}
	if f.machine.Snapshot().State != model.StateAnonymous {
		t.Fatal("missing token must not authenticate")
	}
}

func TestOAuthCallbackRejectedToken(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)
	f.toAnonymous(t, ctx)

	query := url.Values{"token": {"garbage"}}
	next, err := f.service.HandleOAuthCallback(ctx, query.Encode())
	if !errors.Is(err, api.ErrAuthRejected) {
		t.Fatalf("expected auth rejection, got %v", err)
	}
	if next != LoginRoute {
		t.Fatalf("expected login destination, got %q", next)
	}
	if token, _ := f.creds.Get(ctx); token != "" {
		t.Fatalf("rejected token must not remain stored, got %q", token)
	}
}

func TestSanitizeNext(t *testing.T) {
	cases := map[string]string{
		"":                    HomeRoute,
		"/orders":             "/orders",
		"//evil.example.com":  HomeRoute,
		"https://evil.exa/mp": HomeRoute,
		"checkout":            HomeRoute,
	}
	for input, want := range cases {
		if got := sanitizeNext(input); got != want {
			t.Fatalf("sanitizeNext(%q) = %q, want %q", input, got, want)
		}
	}
}
