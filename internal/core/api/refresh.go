package api

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"golang.org/x/sync/singleflight"
)

// refreshKey collapses every concurrent refresh need onto one execution.
const refreshKey = "credential"

// RefreshOptions encapsulates the dependencies of a RefreshCoordinator.
type RefreshOptions struct {
	BaseURL     string
	HTTPClient  *http.Client
	Credentials CredentialStore
	Timeout     time.Duration
	Logger      Logger
}

// RefreshCoordinator guarantees that at most one refresh network call is
// outstanding at any instant. Every caller that needs a refresh while one is
// in flight joins the pending operation and shares its outcome.
type RefreshCoordinator struct {
	group   singleflight.Group
	base    string
	http    *http.Client
	creds   CredentialStore
	timeout time.Duration
	logger  Logger
}

// NewRefreshCoordinator wires a coordinator over the shared HTTP client.
func NewRefreshCoordinator(opts RefreshOptions) *RefreshCoordinator {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultRefreshTimeout
	}
	return &RefreshCoordinator{
		base:    opts.BaseURL,
		http:    opts.HTTPClient,
		creds:   opts.Credentials,
		timeout: timeout,
		logger:  opts.Logger,
	}
}

// Refresh returns the credential produced by the one outstanding refresh
// attempt, starting it if none is in flight. A caller whose context ends
// while waiting detaches with the context error; the shared attempt keeps
// running for the remaining waiters.
func (r *RefreshCoordinator) Refresh(ctx context.Context) (string, error) {
	ch := r.group.DoChan(refreshKey, func() (any, error) {
		return r.refresh()
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (r *RefreshCoordinator) refresh() (any, error) {
	// The outcome is shared by every waiter, so the attempt runs on its own
	// bounded context rather than any single caller's.
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.base+RefreshPath, nil)
	if err != nil {
		return nil, r.fail(ctx, newStatusError(0, err.Error(), ErrRefreshFailed))
	}
	req.Header.Set("Accept", "application/json")
	if token, err := r.creds.Get(ctx); err == nil && token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := r.http.Do(req)
	if err != nil {
		// A timed-out refresh counts as a refresh failure.
		return nil, r.fail(ctx, &Error{class: ErrRefreshFailed, cause: err})
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, r.fail(ctx, &Error{class: ErrRefreshFailed, cause: err})
	}
	if resp.StatusCode != http.StatusOK {
		return nil, r.fail(ctx, newStatusError(resp.StatusCode, serverMessage(body), ErrRefreshFailed))
	}

	var payload struct {
		Token string `json:"token"`
	}
	if err := sonic.Unmarshal(body, &payload); err != nil || payload.Token == "" {
		return nil, r.fail(ctx, newStatusError(resp.StatusCode, "refresh response missing token", ErrRefreshFailed))
	}

	if err := r.creds.Set(ctx, payload.Token); err != nil {
		return nil, r.fail(ctx, &Error{class: ErrRefreshFailed, cause: err})
	}
	r.logger.Debug("credential refreshed")
	return payload.Token, nil
}

// fail leaves the credential store cleared so no caller replays with the
// rejected credential.
func (r *RefreshCoordinator) fail(ctx context.Context, ferr *Error) error {
	if err := r.creds.Clear(ctx); err != nil {
		r.logger.Warn("failed to clear credential after refresh failure: %v", err)
	}
	r.logger.Info("credential refresh failed: %v", ferr)
	return ferr
}
