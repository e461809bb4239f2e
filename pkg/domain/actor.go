package domain

import (
	"strings"

	dErrors "scholarship/pkg/domain-errors"
)

// Role is the capability class of an authenticated caller.
type Role string

const (
	RoleStudent  Role = "student"
	RoleVerifier Role = "verifier"
	RoleAdmin    Role = "admin"
	// RoleSystem is used by background jobs such as the expiry sweep.
	RoleSystem Role = "system"
)

// ParseRole validates a role taken from a token claim. System is never accepted
// from outside the process.
func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleStudent, RoleVerifier, RoleAdmin:
		return r, nil
	default:
		return "", dErrors.New(dErrors.CodeInvalidInput, "unknown role")
	}
}

// Actor identifies who performs an operation.
type Actor struct {
	ID   UserID
	Role Role
}

// SystemActor is the actor used by in-process jobs.
func SystemActor() Actor {
	return Actor{Role: RoleSystem}
}

func (a Actor) Is(role Role) bool {
	return a.Role == role
}

// Authenticated reports whether the actor carries an identity.
func (a Actor) Authenticated() bool {
	return a.Role == RoleSystem || (!a.ID.IsNil() && a.Role != "")
}
