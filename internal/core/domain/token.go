package domain

import (
	"time"

	"github.com/google/uuid"
)

// RefreshTokenTTL is the lifetime of a refresh token.
const RefreshTokenTTL = 7 * 24 * time.Hour

// RefreshToken is a long-lived opaque credential exchanged for fresh access
// tokens. Rows are never deleted: revoked and expired tokens remain for
// forensics. A token only moves forward: active -> revoked, active -> expired.
type RefreshToken struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Token     string    `json:"-"` // Bearer secret, never expose
	ExpiresAt time.Time `json:"expires_at"`
	Revoked   bool      `json:"revoked"`
	CreatedAt time.Time `json:"created_at"`
}

// IsExpired reports whether the token's lifetime has elapsed at instant now.
func (t *RefreshToken) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// IsValid reports whether the token can still be exchanged: not revoked and
// not expired.
func (t *RefreshToken) IsValid(now time.Time) bool {
	return !t.Revoked && !t.IsExpired(now)
}
