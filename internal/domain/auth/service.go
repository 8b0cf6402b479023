package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
	"gorm.io/datatypes"

	"pricepulse-client-go/internal/core/api"
	"pricepulse-client-go/internal/domain/session"
	"pricepulse-client-go/internal/domain/session/model"
	"pricepulse-client-go/internal/platform/storage"
)

// Endpoints owned by the auth domain.
const (
	loginPath          = "/auth/login"
	registerPath       = "/auth/register"
	profilePath        = "/auth/me"
	updateProfilePath  = "/auth/profile"
	logoutPath         = "/auth/logout"
	deleteAccountPath  = "/auth/profile"
	forgotPasswordPath = "/auth/password/forgot"
	verifyOTPPath      = "/auth/password/verify"
	resetPasswordPath  = "/auth/password/reset"
)

// API is the slice of the HTTP client the auth domain uses.
type API interface {
	Get(ctx context.Context, path string, out any) error
	Post(ctx context.Context, path string, body, out any) error
	Put(ctx context.Context, path string, body, out any) error
	Delete(ctx context.Context, path string, out any) error
}

// CredentialStore persists the access credential between runs.
type CredentialStore interface {
	Get(ctx context.Context) (string, error)
	Set(ctx context.Context, token string) error
	Clear(ctx context.Context) error
}

// SessionControl is the slice of the session machine the auth flows drive.
type SessionControl interface {
	BeginBootstrap(ctx context.Context) error
	BootstrapSucceeded(ctx context.Context, user *session.UserProfile) error
	BootstrapFailed(ctx context.Context, cause error) error
	LoginSucceeded(ctx context.Context, user *session.UserProfile) error
	ProfileUpdated(ctx context.Context, user *session.UserProfile) error
	Logout(ctx context.Context) error
}

// ProfileCache persists the last confirmed profile for warm display on the
// next start. Optional; a nil cache disables it.
type ProfileCache interface {
	Save(ctx context.Context, profile storage.CachedProfile) error
	Latest(ctx context.Context) (storage.CachedProfile, error)
	Clear(ctx context.Context) error
}

// Options encapsulates the dependencies required to construct a Service.
type Options struct {
	API         API
	Credentials CredentialStore
	Sessions    SessionControl
	Cache       ProfileCache
	Logger      session.Logger
}

// Service implements the identity lifecycle: registration, login, session
// restoration, profile maintenance, sign-out, and password recovery.
type Service struct {
	api      API
	creds    CredentialStore
	sessions SessionControl
	cache    ProfileCache
	logger   session.Logger
}

// NewService wires a Service using the supplied options.
func NewService(opts Options) (*Service, error) {
	if opts.API == nil {
		return nil, errors.New("auth service requires an API client")
	}
	if opts.Credentials == nil {
		return nil, errors.New("auth service requires a credential store")
	}
	if opts.Sessions == nil {
		return nil, errors.New("auth service requires a session control")
	}
	if opts.Logger == nil {
		return nil, errors.New("auth service requires a logger")
	}
	return &Service{
		api:      opts.API,
		creds:    opts.Credentials,
		sessions: opts.Sessions,
		cache:    opts.Cache,
		logger:   opts.Logger,
	}, nil
}

// authPayload is the server envelope for login and registration.
type authPayload struct {
	User  session.UserProfile `json:"user"`
	Token string              `json:"token"`
}

// userPayload is the server envelope for profile reads and writes.
type userPayload struct {
	User session.UserProfile `json:"user"`
}

// Login exchanges credentials for a session. On success the credential is
// persisted and the session machine moves to authenticated.
func (s *Service) Login(ctx context.Context, email, password string) (*session.UserProfile, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, fmt.Errorf("%w: email and password are required", api.ErrValidationFailed)
	}

	var payload authPayload
	err := s.api.Post(ctx, loginPath, map[string]string{
		"email":    email,
		"password": password,
	}, &payload)
	if err != nil {
		return nil, err
	}
	return s.installSession(ctx, payload)
}

// Register creates an account and signs the new user in.
func (s *Service) Register(ctx context.Context, name, email, password string) (*session.UserProfile, error) {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)
	if name == "" || email == "" || password == "" {
		return nil, fmt.Errorf("%w: name, email and password are required", api.ErrValidationFailed)
	}

	var payload authPayload
	err := s.api.Post(ctx, registerPath, map[string]string{
		"name":     name,
		"email":    email,
		"password": password,
	}, &payload)
	if err != nil {
		return nil, err
	}
	return s.installSession(ctx, payload)
}

func (s *Service) installSession(ctx context.Context, payload authPayload) (*session.UserProfile, error) {
	if payload.Token == "" {
		return nil, fmt.Errorf("%w: response missing token", api.ErrServerFault)
	}
	if err := s.creds.Set(ctx, payload.Token); err != nil {
		return nil, fmt.Errorf("persist credential: %w", err)
	}
	user := payload.User
	if err := s.sessions.LoginSucceeded(ctx, &user); err != nil {
		return nil, err
	}
	s.cacheProfile(ctx, &user)
	return &user, nil
}

// Bootstrap restores the session on application start. Without a stored
// credential it degrades to anonymous immediately, with no network call.
func (s *Service) Bootstrap(ctx context.Context) error {
	if err := s.sessions.BeginBootstrap(ctx); err != nil {
		return err
	}

	token, err := s.creds.Get(ctx)
	if err != nil {
		s.logger.Warn("credential read failed during bootstrap: %v", err)
		return s.sessions.BootstrapFailed(ctx, err)
	}
	if token == "" {
		return s.sessions.BootstrapFailed(ctx, nil)
	}

	user, err := s.fetchProfile(ctx)
	if err != nil {
		s.logger.Info("session restore failed: %v", err)
		return s.sessions.BootstrapFailed(ctx, err)
	}
	if err := s.sessions.BootstrapSucceeded(ctx, user); err != nil {
		return err
	}
	s.cacheProfile(ctx, user)
	return nil
}

// Profile fetches the current profile from the server.
func (s *Service) Profile(ctx context.Context) (*session.UserProfile, error) {
	return s.fetchProfile(ctx)
}

// ProfileUpdate carries the mutable profile fields.
type ProfileUpdate struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

// UpdateProfile pushes profile changes and installs the server's version of
// the result.
func (s *Service) UpdateProfile(ctx context.Context, update ProfileUpdate) (*session.UserProfile, error) {
	var payload userPayload
	if err := s.api.Put(ctx, updateProfilePath, update, &payload); err != nil {
		return nil, err
	}
	user := payload.User
	if err := s.sessions.ProfileUpdated(ctx, &user); err != nil {
		return nil, err
	}
	s.cacheProfile(ctx, &user)
	return &user, nil
}

// Logout signs out. The server call is best effort: local teardown happens
// regardless so the credential never outlives the user's intent.
func (s *Service) Logout(ctx context.Context) error {
	if err := s.api.Post(ctx, logoutPath, nil, nil); err != nil {
		s.logger.Warn("server logout failed, tearing down locally: %v", err)
	}
	s.clearCache(ctx)
	return s.sessions.Logout(ctx)
}

// DeleteAccount removes the account server-side and tears the session down.
func (s *Service) DeleteAccount(ctx context.Context) error {
	if err := s.api.Delete(ctx, deleteAccountPath, nil); err != nil {
		return err
	}
	s.clearCache(ctx)
	return s.sessions.Logout(ctx)
}

// RequestPasswordReset asks the server to email a one-time code.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return fmt.Errorf("%w: email is required", api.ErrValidationFailed)
	}
	return s.api.Post(ctx, forgotPasswordPath, map[string]string{"email": email}, nil)
}

// VerifyResetOTP checks the one-time code before the new password is chosen.
func (s *Service) VerifyResetOTP(ctx context.Context, email, otp string) error {
	if strings.TrimSpace(email) == "" || strings.TrimSpace(otp) == "" {
		return fmt.Errorf("%w: email and code are required", api.ErrValidationFailed)
	}
	return s.api.Post(ctx, verifyOTPPath, map[string]string{
		"email": email,
		"otp":   otp,
	}, nil)
}

// ResetPassword completes recovery with the verified code.
func (s *Service) ResetPassword(ctx context.Context, email, otp, password string) error {
	if strings.TrimSpace(email) == "" || strings.TrimSpace(otp) == "" || password == "" {
		return fmt.Errorf("%w: email, code and password are required", api.ErrValidationFailed)
	}
	return s.api.Post(ctx, resetPasswordPath, map[string]string{
		"email":    email,
		"otp":      otp,
		"password": password,
	}, nil)
}

// CachedProfile returns the last confirmed profile for warm display before
// bootstrap completes.
func (s *Service) CachedProfile(ctx context.Context) (*session.UserProfile, error) {
	if s.cache == nil {
		return nil, storage.ErrNoCachedProfile
	}
	record, err := s.cache.Latest(ctx)
	if err != nil {
		return nil, err
	}
	user := &session.UserProfile{
		ID:           record.UserID,
		Name:         record.Name,
		Email:        record.Email,
		Role:         model.Role(record.Role),
		IsSuperAdmin: record.IsSuperAdmin,
	}
	if len(record.Privileges) > 0 {
		if err := sonic.Unmarshal(record.Privileges, &user.Privileges); err != nil {
			s.logger.Warn("cached privileges unreadable: %v", err)
		}
	}
	return user, nil
}

func (s *Service) fetchProfile(ctx context.Context) (*session.UserProfile, error) {
	var payload userPayload
	if err := s.api.Get(ctx, profilePath, &payload); err != nil {
		return nil, err
	}
	user := payload.User
	return &user, nil
}

func (s *Service) cacheProfile(ctx context.Context, user *session.UserProfile) {
	if s.cache == nil {
		return
	}
	privileges, err := sonic.Marshal(user.Privileges)
	if err != nil {
		s.logger.Warn("profile privileges not cacheable: %v", err)
		privileges = []byte("[]")
	}
	record := storage.CachedProfile{
		UserID:       user.ID,
		Name:         user.Name,
		Email:        user.Email,
		Role:         string(user.Role),
		IsSuperAdmin: user.IsSuperAdmin,
		Privileges:   datatypes.JSON(privileges),
	}
	if err := s.cache.Save(ctx, record); err != nil {
		s.logger.Warn("profile cache write failed: %v", err)
	}
}

func (s *Service) clearCache(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Clear(ctx); err != nil {
		s.logger.Warn("profile cache clear failed: %v", err)
	}
}
