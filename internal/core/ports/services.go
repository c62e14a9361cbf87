package ports

import (
	"context"
	"time"

	"clinic-auth-service/internal/core/domain"

	"github.com/google/uuid"
)

// HashService handles password hashing (Argon2id).
type HashService interface {
	Hash(password string) (string, error)
	Verify(password string, hash string) (bool, error)
}

// TokenService handles signed access token operations. Both operations are
// pure computation over (secret, claims, clock); neither touches storage.
type TokenService interface {
	Generate(userID uuid.UUID, email string, role domain.Role) (string, time.Time, error)
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims holds the parsed access token claims.
type TokenClaims struct {
	UserID uuid.UUID
	Email  string
	Role   domain.Role
}

// EventPublisher publishes auditable events to the topic exchange.
// Publishing is best-effort relative to the triggering transaction: callers
// log failures and carry on.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.AuditableEvent) error
}

// --- Service Ports (Business Logic) ---

// AuthService defines the identity/session use cases.
type AuthService interface {
	Register(ctx context.Context, req RegisterRequest) (*domain.User, error)
	Login(ctx context.Context, req LoginRequest) (*TokenPair, error)
	Refresh(ctx context.Context, refreshTokenValue string) (*TokenPair, error)
}

// RegisterRequest holds validated input for user registration.
type RegisterRequest struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Role      domain.Role
}

// LoginRequest holds credentials plus request metadata carried into the
// audit event.
type LoginRequest struct {
	Email    string
	Password string
	ClientIP string
}

// TokenPair is the result of a successful login or refresh.
type TokenPair struct {
	AccessToken   string
	AccessExpiry  time.Time
	RefreshToken  string
	RefreshExpiry time.Time
}

// AuditService defines audit ingestion and query use cases.
type AuditService interface {
	// Record projects an event into the ledger. Redelivery of an already
	// recorded eventId returns nil without creating a duplicate. A
	// persistence failure is returned so the caller can dead-letter the
	// delivery instead of acknowledging it.
	Record(ctx context.Context, event domain.AuditableEvent) error
	Query(ctx context.Context, filter AuditFilter, page PageRequest) ([]domain.AuditRecord, int64, error)
}
