package model

// Role identifies the access tier of a user account.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
)

// State enumerates the session lifecycle.
type State uint8

const (
	StateUninitialized State = iota
	StateBootstrapping
	StateAnonymous
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateBootstrapping:
		return "bootstrapping"
	case StateAnonymous:
		return "anonymous"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// UserProfile is the server-owned identity attached to an authenticated
// session. The client replaces it wholesale; it never mutates fields.
type UserProfile struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Email        string   `json:"email"`
	Role         Role     `json:"role"`
	IsSuperAdmin bool     `json:"isSuperAdmin"`
	Privileges   []string `json:"privileges,omitempty"`
}

// Snapshot is a point-in-time copy of the session visible to callers.
type Snapshot struct {
	State State
	User  *UserProfile
	Err   error
}

// Authenticated reports whether the snapshot carries a signed-in identity.
func (s Snapshot) Authenticated() bool {
	return s.State == StateAuthenticated && s.User != nil
}

// Logger provides the minimal logging contract required by the session domain.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}
