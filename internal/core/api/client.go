package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
)

// RefreshPath is the one endpoint the interceptor never refreshes for.
const RefreshPath = "/auth/refresh"

const (
	defaultTimeout        = 30 * time.Second
	defaultRefreshTimeout = 10 * time.Second
	maxResponseBody       = 4 << 20
)

// CredentialStore is the slice of the credential domain the client needs.
type CredentialStore interface {
	Get(ctx context.Context) (string, error)
	Set(ctx context.Context, token string) error
	Clear(ctx context.Context) error
}

// SessionReporter receives unrecoverable authentication failures so the
// session can degrade to anonymous. The client never writes session state
// directly.
type SessionReporter interface {
	RefreshFailed(ctx context.Context, cause error) error
}

// Logger provides the minimal logging contract required by the client.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Config captures client tuning knobs.
type Config struct {
	BaseURL        string
	Timeout        time.Duration
	RefreshTimeout time.Duration
}

// Options encapsulates the dependencies required to construct a Client.
type Options struct {
	Config      Config
	Credentials CredentialStore
	Logger      Logger
	HTTPClient  *http.Client
}

// Client centralizes credential attachment and failure-driven refresh for
// every outbound call. A single logical call is attempted at most twice:
// the original send plus one replay after a successful refresh.
type Client struct {
	base      string
	http      *http.Client
	creds     CredentialStore
	refresher *RefreshCoordinator
	sessions  SessionReporter
	logger    Logger
}

// NewClient wires a Client using the supplied options.
func NewClient(opts Options) (*Client, error) {
	if opts.Credentials == nil {
		return nil, fmt.Errorf("api client requires a credential store")
	}
	if opts.Logger == nil {
		return nil, fmt.Errorf("api client requires a logger")
	}
	base, err := normalizeBaseURL(opts.Config.BaseURL)
	if err != nil {
		return nil, err
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		// The refresh credential travels in an httpOnly cookie, so the
		// shared client must carry a jar.
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("cookie jar: %w", err)
		}
		timeout := opts.Config.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout, Jar: jar}
	}

	c := &Client{
		base:   base,
		http:   httpClient,
		creds:  opts.Credentials,
		logger: opts.Logger,
	}
	c.refresher = NewRefreshCoordinator(RefreshOptions{
		BaseURL:     base,
		HTTPClient:  httpClient,
		Credentials: opts.Credentials,
		Timeout:     opts.Config.RefreshTimeout,
		Logger:      opts.Logger,
	})
	return c, nil
}

// SetSessionReporter installs the session sink. Wired after construction
// because the session machine and the client are built independently.
func (c *Client) SetSessionReporter(r SessionReporter) {
	c.sessions = r
}

// Refresher exposes the coordinator, mainly for tests.
func (c *Client) Refresher() *RefreshCoordinator {
	return c.refresher
}

// Do executes one logical API call. The request body is JSON-encoded when
// non-nil; a 2xx response body is decoded into out when out is non-nil.
// On 401 it refreshes the credential through the coordinator and replays
// the call exactly once, provided a credential was attached, this call has
// not been replayed yet, and the call is not itself the refresh call.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	token, err := c.creds.Get(ctx)
	if err != nil {
		return fmt.Errorf("read credential: %w", err)
	}

	var payload []byte
	if body != nil {
		payload, err = sonic.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
	}

	res, err := c.send(ctx, method, path, payload, token)
	if err != nil {
		return err
	}

	if res.status == http.StatusUnauthorized {
		if token == "" || path == RefreshPath {
			return c.rejectAuth(ctx, res)
		}

		// Single replay: refresh once, resend once. The refresh is shared
		// across every call failing in the same window.
		newToken, refreshErr := c.refresher.Refresh(ctx)
		if refreshErr != nil {
			// A waiter that detached with its own context error must not
			// tear the session down: the shared refresh is still running
			// and may install a fresh credential.
			if !errors.Is(refreshErr, ErrRefreshFailed) {
				return refreshErr
			}
			return c.rejectAuth(ctx, res)
		}
		res, err = c.send(ctx, method, path, payload, newToken)
		if err != nil {
			return err
		}
		if res.status == http.StatusUnauthorized {
			return c.rejectAuth(ctx, res)
		}
	}

	if res.status >= 400 {
		return classify(res.status, res.message)
	}
	if out != nil && len(res.body) > 0 {
		if err := sonic.Unmarshal(res.body, out); err != nil {
			return fmt.Errorf("decode response body: %w", err)
		}
	}
	return nil
}

// Get is shorthand for a body-less GET.
func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.Do(ctx, http.MethodGet, path, nil, out)
}

// Post is shorthand for a JSON POST.
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPost, path, body, out)
}

// Put is shorthand for a JSON PUT.
func (c *Client) Put(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPut, path, body, out)
}

// Delete is shorthand for a body-less DELETE.
func (c *Client) Delete(ctx context.Context, path string, out any) error {
	return c.Do(ctx, http.MethodDelete, path, nil, out)
}

type response struct {
	status  int
	body    []byte
	message string
}

func (c *Client) send(ctx context.Context, method, path string, payload []byte, token string) (*response, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, newTransportError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, newTransportError(err)
	}
	return &response{
		status:  resp.StatusCode,
		body:    body,
		message: serverMessage(body),
	}, nil
}

// rejectAuth ends the session: credential cleared, machine told to degrade,
// and the caller handed the generic sign-in-again signal.
func (c *Client) rejectAuth(ctx context.Context, res *response) error {
	rejection := newStatusError(res.status, res.message, ErrAuthRejected)
	if err := c.creds.Clear(ctx); err != nil {
		c.logger.Warn("failed to clear credential after rejection: %v", err)
	}
	if c.sessions != nil {
		if err := c.sessions.RefreshFailed(ctx, rejection); err != nil {
			c.logger.Warn("session not notified of auth rejection: %v", err)
		}
	}
	return rejection
}

func serverMessage(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	var envelope struct {
		Message string `json:"message"`
	}
	if err := sonic.Unmarshal(body, &envelope); err != nil {
		return ""
	}
	return envelope.Message
}

func normalizeBaseURL(raw string) (string, error) {
	if raw == "" {
		return "", fmt.Errorf("api client requires a base URL")
	}
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", fmt.Errorf("invalid base URL %q", raw)
	}
	return strings.TrimRight(raw, "/"), nil
}
