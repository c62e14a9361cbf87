package postgres

import (
	"context"
	"errors"
	"fmt"

	"clinic-auth-service/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// RefreshTokenRepo implements ports.RefreshTokenRepository. Rows are never
// deleted; revocation and expiry leave them in place for forensics.
type RefreshTokenRepo struct {
	pool Pool
}

// NewRefreshTokenRepo creates a new RefreshTokenRepo.
func NewRefreshTokenRepo(pool Pool) *RefreshTokenRepo {
	return &RefreshTokenRepo{pool: pool}
}

const refreshTokenColumns = `id, user_id, token, expires_at, revoked, created_at`

// Create inserts a refresh token within the rotation transaction.
func (r *RefreshTokenRepo) Create(ctx context.Context, tx pgx.Tx, t *domain.RefreshToken) error {
	query := `INSERT INTO refresh_tokens (id, user_id, token, expires_at, revoked, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := tx.Exec(ctx, query, t.ID, t.UserID, t.Token, t.ExpiresAt, t.Revoked, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert refresh token: %w", err)
	}
	return nil
}

// GetByToken fetches a refresh token by its opaque value. Returns nil, nil
// when not found.
func (r *RefreshTokenRepo) GetByToken(ctx context.Context, value string) (*domain.RefreshToken, error) {
	query := `SELECT ` + refreshTokenColumns + ` FROM refresh_tokens WHERE token = $1`
	return scanRefreshToken(r.pool.QueryRow(ctx, query, value), "get refresh token")
}

// GetByTokenForUpdate re-reads a refresh token under the rotation lock so a
// concurrently revoked token is seen as revoked.
func (r *RefreshTokenRepo) GetByTokenForUpdate(ctx context.Context, tx pgx.Tx, value string) (*domain.RefreshToken, error) {
	query := `SELECT ` + refreshTokenColumns + ` FROM refresh_tokens WHERE token = $1 FOR UPDATE`
	return scanRefreshToken(tx.QueryRow(ctx, query, value), "lock refresh token")
}

// RevokeAllByUserID flips every active token of the user to revoked. The
// transition is one-way; already revoked rows are untouched.
func (r *RefreshTokenRepo) RevokeAllByUserID(ctx context.Context, tx pgx.Tx, userID uuid.UUID) error {
	query := `UPDATE refresh_tokens SET revoked = TRUE WHERE user_id = $1 AND revoked = FALSE`

	if _, err := tx.Exec(ctx, query, userID); err != nil {
		return fmt.Errorf("revoke refresh tokens: %w", err)
	}
	return nil
}

// CountActiveByUserID counts tokens that are neither revoked nor expired.
// Used by tests and operational checks of the single-active-token invariant.
func (r *RefreshTokenRepo) CountActiveByUserID(ctx context.Context, userID uuid.UUID) (int64, error) {
	query := `SELECT COUNT(*) FROM refresh_tokens WHERE user_id = $1 AND revoked = FALSE AND expires_at > NOW()`

	var count int64
	if err := r.pool.QueryRow(ctx, query, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count active refresh tokens: %w", err)
	}
	return count, nil
}

func scanRefreshToken(row pgx.Row, op string) (*domain.RefreshToken, error) {
	t := &domain.RefreshToken{}
	err := row.Scan(&t.ID, &t.UserID, &t.Token, &t.ExpiresAt, &t.Revoked, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return t, nil
}
