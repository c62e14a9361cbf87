package ports

import (
	"context"
	"time"

	"clinic-auth-service/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// UserRepository defines persistence operations for users.
// GetByIDForUpdate locks the user row inside a transaction; refresh-token
// rotation serializes per user on that lock.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.User, error)
}

// RefreshTokenRepository defines persistence for refresh tokens. Tokens are
// never deleted; revocation only flips the revoked flag forward.
// Methods accepting pgx.Tx run inside the per-user rotation transaction.
type RefreshTokenRepository interface {
	Create(ctx context.Context, tx pgx.Tx, token *domain.RefreshToken) error
	GetByToken(ctx context.Context, value string) (*domain.RefreshToken, error)
	GetByTokenForUpdate(ctx context.Context, tx pgx.Tx, value string) (*domain.RefreshToken, error)
	RevokeAllByUserID(ctx context.Context, tx pgx.Tx, userID uuid.UUID) error
	CountActiveByUserID(ctx context.Context, userID uuid.UUID) (int64, error)
}

// AuditRecordRepository defines persistence for the append-only audit ledger.
type AuditRecordRepository interface {
	// Create persists a record. Inserting a record whose event_id already
	// exists is a no-op and returns (false, nil); the first insert returns
	// (true, nil). Errors must be surfaced so the consumer can dead-letter.
	Create(ctx context.Context, record *domain.AuditRecord) (bool, error)
	List(ctx context.Context, filter AuditFilter, page PageRequest) ([]domain.AuditRecord, int64, error)
}

// AuditFilter holds the optional, AND-combined query predicates. A nil field
// matches everything.
type AuditFilter struct {
	UserID       *uuid.UUID
	ResourceID   *uuid.UUID
	ResourceType *string
	Action       *string
	From         *time.Time // inclusive lower bound on occurred_on
	To           *time.Time // inclusive upper bound on occurred_on
}

// PageRequest holds pagination parameters. Results are always ordered by
// occurred_on descending with event_id as tiebreak, so pages are stable.
type PageRequest struct {
	Page     int // 1-based
	PageSize int
}

// Offset returns the row offset for the page.
func (p PageRequest) Offset() int {
	if p.Page < 1 {
		return 0
	}
	return (p.Page - 1) * p.PageSize
}

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}
