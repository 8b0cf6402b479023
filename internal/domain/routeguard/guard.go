// Package routeguard decides whether a navigation target may be entered
// given the current session and cart. Decisions are pure: the guard never
// performs IO and never mutates session or cart state.
package routeguard

import (
	"pricepulse-client-go/internal/domain/cart"
	"pricepulse-client-go/internal/domain/session"
	"pricepulse-client-go/internal/domain/session/model"
)

// Redirect targets.
const (
	LoginRoute = "/login"
	CartRoute  = "/cart"
	HomeRoute  = "/"
)

// Requirement describes what a route demands of the visitor.
type Requirement struct {
	// RequiresAuth gates the route behind a signed-in session.
	RequiresAuth bool
	// RequiresNonEmptyCart gates checkout-style routes behind cart contents.
	RequiresNonEmptyCart bool
	// AllowedRoles, when non-empty, restricts the route to the listed roles.
	// A super admin passes regardless of role.
	AllowedRoles []model.Role
}

// Decision is the guard's verdict for one navigation attempt.
type Decision struct {
	// Allowed reports whether the navigation may proceed.
	Allowed bool
	// RedirectTo is the route to land on instead, when not allowed.
	RedirectTo string
	// PreserveIntent marks redirects that should remember the original
	// destination so it can be resumed after sign-in.
	PreserveIntent bool
}

var allow = Decision{Allowed: true}

// Decide evaluates a requirement against the current session and cart.
// Checks run in a fixed order: authentication, then cart, then role; the
// first unmet requirement determines the redirect.
func Decide(req Requirement, sess session.Snapshot, contents cart.Snapshot) Decision {
	if req.RequiresAuth && !sess.Authenticated() {
		return Decision{RedirectTo: LoginRoute, PreserveIntent: true}
	}
	if req.RequiresNonEmptyCart && contents.Empty() {
		return Decision{RedirectTo: CartRoute}
	}
	if len(req.AllowedRoles) > 0 && !roleAllowed(req.AllowedRoles, sess.User) {
		return Decision{RedirectTo: HomeRoute}
	}
	return allow
}

func roleAllowed(roles []model.Role, user *session.UserProfile) bool {
	if user == nil {
		return false
	}
	if user.IsSuperAdmin {
		return true
	}
	for _, role := range roles {
		if user.Role == role {
			return true
		}
	}
	return false
}
