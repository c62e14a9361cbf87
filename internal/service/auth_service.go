package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"clinic-auth-service/internal/core/domain"
	"clinic-auth-service/internal/core/ports"
	"clinic-auth-service/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const sourceService = "auth-service"

// AuthServiceImpl implements ports.AuthService.
type AuthServiceImpl struct {
	userRepo       ports.UserRepository
	tokenRepo      ports.RefreshTokenRepository
	transactor     ports.DBTransactor
	hashSvc        ports.HashService
	tokenSvc       ports.TokenService
	publisher      ports.EventPublisher
	publishTimeout time.Duration
	log            zerolog.Logger
}

// NewAuthService creates a new AuthServiceImpl.
func NewAuthService(
	userRepo ports.UserRepository,
	tokenRepo ports.RefreshTokenRepository,
	transactor ports.DBTransactor,
	hashSvc ports.HashService,
	tokenSvc ports.TokenService,
	publisher ports.EventPublisher,
	publishTimeout time.Duration,
	log zerolog.Logger,
) *AuthServiceImpl {
	if publishTimeout <= 0 {
		publishTimeout = 5 * time.Second
	}
	return &AuthServiceImpl{
		userRepo:       userRepo,
		tokenRepo:      tokenRepo,
		transactor:     transactor,
		hashSvc:        hashSvc,
		tokenSvc:       tokenSvc,
		publisher:      publisher,
		publishTimeout: publishTimeout,
		log:            log,
	}
}

// Register creates a new user account. It does not log the user in.
func (s *AuthServiceImpl) Register(ctx context.Context, req ports.RegisterRequest) (*domain.User, error) {
	if !domain.ValidRole(req.Role) {
		return nil, apperror.Validation(fmt.Sprintf("unknown role %q", req.Role))
	}

	existing, err := s.userRepo.GetByEmail(ctx, req.Email)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("check email: %w", err))
	}
	if existing != nil {
		return nil, apperror.ErrEmailExists()
	}

	passwordHash, err := s.hashSvc.Hash(req.Password)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("hash password: %w", err))
	}

	now := time.Now().UTC()
	user := &domain.User{
		ID:           uuid.New(),
		Email:        req.Email,
		PasswordHash: passwordHash,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Role:         req.Role,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		// Two concurrent registers can both pass the existence check; the
		// unique index on email decides the winner.
		if errors.Is(err, domain.ErrDuplicateKey) {
			return nil, apperror.ErrEmailExists()
		}
		return nil, apperror.InternalError(fmt.Errorf("create user: %w", err))
	}

	s.publish(ctx, domain.NewAuditableEvent(
		domain.EventTypeUserCreated,
		user.ID, user.Email,
		"CREATE", "USUARIO", &user.ID,
		nil, nil, "", sourceService,
	))

	return user, nil
}

// Login verifies credentials, rotates the refresh token and mints an access
// token. Unknown email, inactive account and wrong password all return the
// same generic error.
func (s *AuthServiceImpl) Login(ctx context.Context, req ports.LoginRequest) (*ports.TokenPair, error) {
	user, err := s.userRepo.GetByEmail(ctx, req.Email)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("find user: %w", err))
	}
	if user == nil || !user.Active {
		return nil, apperror.ErrInvalidCredentials()
	}

	valid, err := s.hashSvc.Verify(req.Password, user.PasswordHash)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("verify password: %w", err))
	}
	if !valid {
		return nil, apperror.ErrInvalidCredentials()
	}

	refreshToken, err := s.rotateRefreshToken(ctx, user.ID, "")
	if err != nil {
		return nil, err
	}

	accessToken, accessExpiry, err := s.tokenSvc.Generate(user.ID, user.Email, user.Role)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("generate access token: %w", err))
	}

	s.publish(ctx, domain.NewAuditableEvent(
		domain.EventTypeUserLogin,
		user.ID, user.Email,
		"LOGIN", "USUARIO", &user.ID,
		nil, nil, req.ClientIP, sourceService,
	))

	return &ports.TokenPair{
		AccessToken:   accessToken,
		AccessExpiry:  accessExpiry,
		RefreshToken:  refreshToken.Token,
		RefreshExpiry: refreshToken.ExpiresAt,
	}, nil
}

// Refresh exchanges a valid refresh token for a fresh token pair, revoking
// the presented token. Unlike Login it emits no audit event; the original
// system behaves the same way and the asymmetry is kept on purpose.
func (s *AuthServiceImpl) Refresh(ctx context.Context, refreshTokenValue string) (*ports.TokenPair, error) {
	current, err := s.tokenRepo.GetByToken(ctx, refreshTokenValue)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("find refresh token: %w", err))
	}
	if current == nil || !current.IsValid(time.Now().UTC()) {
		return nil, apperror.ErrInvalidRefreshToken()
	}

	user, err := s.userRepo.GetByID(ctx, current.UserID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("find user: %w", err))
	}
	if user == nil {
		return nil, apperror.ErrInvalidRefreshToken()
	}

	refreshToken, err := s.rotateRefreshToken(ctx, user.ID, refreshTokenValue)
	if err != nil {
		return nil, err
	}

	accessToken, accessExpiry, err := s.tokenSvc.Generate(user.ID, user.Email, user.Role)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("generate access token: %w", err))
	}

	return &ports.TokenPair{
		AccessToken:   accessToken,
		AccessExpiry:  accessExpiry,
		RefreshToken:  refreshToken.Token,
		RefreshExpiry: refreshToken.ExpiresAt,
	}, nil
}

// rotateRefreshToken revokes every active token for the user and issues a
// new one as a single transaction. The user row lock serializes concurrent
// rotations per principal: the loser of a refresh race re-reads its token
// after the winner committed the revocation and fails.
//
// presentedValue is the refresh token being exchanged, empty on login.
func (s *AuthServiceImpl) rotateRefreshToken(ctx context.Context, userID uuid.UUID, presentedValue string) (*domain.RefreshToken, error) {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	// Serialize per principal.
	lockedUser, err := s.userRepo.GetByIDForUpdate(ctx, dbTx, userID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock user: %w", err))
	}
	if lockedUser == nil {
		return nil, apperror.ErrInvalidRefreshToken()
	}

	if presentedValue != "" {
		// Re-check under the lock: a concurrent rotation may have revoked
		// the presented token after the optimistic pre-check.
		presented, err := s.tokenRepo.GetByTokenForUpdate(ctx, dbTx, presentedValue)
		if err != nil {
			return nil, apperror.InternalError(fmt.Errorf("reload refresh token: %w", err))
		}
		if presented == nil || !presented.IsValid(time.Now().UTC()) {
			return nil, apperror.ErrInvalidRefreshToken()
		}
	}

	if err := s.tokenRepo.RevokeAllByUserID(ctx, dbTx, userID); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("revoke tokens: %w", err))
	}

	value, err := generateTokenValue()
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("generate token value: %w", err))
	}

	now := time.Now().UTC()
	token := &domain.RefreshToken{
		ID:        uuid.New(),
		UserID:    userID,
		Token:     value,
		ExpiresAt: now.Add(domain.RefreshTokenTTL),
		Revoked:   false,
		CreatedAt: now,
	}

	if err := s.tokenRepo.Create(ctx, dbTx, token); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create refresh token: %w", err))
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit rotation: %w", err))
	}

	return token, nil
}

// publish delivers an audit event to the broker, best-effort. A failure is
// logged and never propagated: the business operation already committed.
func (s *AuthServiceImpl) publish(ctx context.Context, event domain.AuditableEvent) {
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.publishTimeout)
	defer cancel()

	if err := s.publisher.Publish(pubCtx, event); err != nil {
		s.log.Warn().Err(apperror.ErrPublishFailure(err)).
			Str("event_type", event.EventType).
			Str("event_id", event.EventID.String()).
			Msg("failed to publish audit event")
	}
}

// generateTokenValue draws a 32-byte refresh token secret from the CSPRNG.
func generateTokenValue() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
