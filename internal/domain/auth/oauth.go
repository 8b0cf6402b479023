package auth

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"pricepulse-client-go/internal/core/api"
)

const (
	// LoginRoute is where a failed callback lands the user.
	LoginRoute = "/login"
	// HomeRoute is the default post-login destination.
	HomeRoute = "/"
)

// HandleOAuthCallback completes a provider sign-in. The provider redirects
// back with the credential and the intended destination in the query string;
// the credential is stored, the profile confirmed, and the destination
// returned. Every failure path lands on the login route.
func (s *Service) HandleOAuthCallback(ctx context.Context, rawQuery string) (string, error) {
	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		return LoginRoute, fmt.Errorf("%w: malformed callback query", api.ErrAuthRejected)
	}

	token := values.Get("token")
	if token == "" {
		return LoginRoute, fmt.Errorf("%w: callback missing token", api.ErrAuthRejected)
	}

	if err := s.creds.Set(ctx, token); err != nil {
		return LoginRoute, fmt.Errorf("persist credential: %w", err)
	}

	// Confirm the credential before declaring the session live.
	user, err := s.fetchProfile(ctx)
	if err != nil {
		if clearErr := s.creds.Clear(ctx); clearErr != nil {
			s.logger.Warn("failed to clear credential after callback rejection: %v", clearErr)
		}
		return LoginRoute, err
	}
	if err := s.sessions.LoginSucceeded(ctx, user); err != nil {
		return LoginRoute, err
	}
	s.cacheProfile(ctx, user)

	return sanitizeNext(values.Get("next")), nil
}

// sanitizeNext keeps the destination inside the application: relative paths
// only, no protocol-relative URLs.
func sanitizeNext(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") {
		return HomeRoute
	}
	return next
}
