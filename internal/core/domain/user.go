package domain

import (
	"time"

	"github.com/google/uuid"
)

// Role represents the clinical role assigned to a user.
type Role string

const (
	RoleObstetra Role = "OBSTETRA"
	RoleAuditor  Role = "AUDITOR"
	RoleAdmin    Role = "ADMIN"
)

// ValidRole reports whether r is one of the known roles.
func ValidRole(r Role) bool {
	switch r {
	case RoleObstetra, RoleAuditor, RoleAdmin:
		return true
	}
	return false
}

// User represents a registered principal in the system.
type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"` // Never expose
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	Role         Role      `json:"role"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// FullName returns the user's display name.
func (u *User) FullName() string {
	return u.FirstName + " " + u.LastName
}

// CanQueryAudit reports whether the user's role grants access to the
// audit ledger.
func (u *User) CanQueryAudit() bool {
	return u.Role == RoleAuditor || u.Role == RoleAdmin
}
