package service

import (
	"context"
	"testing"
	"time"

	"clinic-auth-service/internal/core/domain"
	"clinic-auth-service/internal/core/ports"
	"clinic-auth-service/internal/core/ports/mocks"
	"clinic-auth-service/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type authTestDeps struct {
	svc        *AuthServiceImpl
	userRepo   *mocks.MockUserRepository
	tokenRepo  *mocks.MockRefreshTokenRepository
	transactor *mocks.MockDBTransactor
	hashSvc    *mocks.MockHashService
	tokenSvc   *mocks.MockTokenService
	publisher  *mocks.MockEventPublisher
	ctrl       *gomock.Controller
}

func setupAuthService(t *testing.T) *authTestDeps {
	ctrl := gomock.NewController(t)
	d := &authTestDeps{
		userRepo:   mocks.NewMockUserRepository(ctrl),
		tokenRepo:  mocks.NewMockRefreshTokenRepository(ctrl),
		transactor: mocks.NewMockDBTransactor(ctrl),
		hashSvc:    mocks.NewMockHashService(ctrl),
		tokenSvc:   mocks.NewMockTokenService(ctrl),
		publisher:  mocks.NewMockEventPublisher(ctrl),
		ctrl:       ctrl,
	}
	d.svc = NewAuthService(
		d.userRepo, d.tokenRepo, d.transactor,
		d.hashSvc, d.tokenSvc, d.publisher,
		time.Second, zerolog.Nop(),
	)
	return d
}

// mockTx implements pgx.Tx for testing
type mockTx struct{ pgx.Tx }

func (m *mockTx) Rollback(_ context.Context) error { return nil }
func (m *mockTx) Commit(_ context.Context) error   { return nil }

func assertAppError(t *testing.T, err error, expectedCode string) {
	t.Helper()
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, expectedCode, appErr.Code)
}

// ==================== Register Tests ====================

func TestAuthService_Register_Success(t *testing.T) {
	d := setupAuthService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	req := ports.RegisterRequest{
		Email:     "ana@clinic.pe",
		Password:  "password123",
		FirstName: "Ana",
		LastName:  "Torres",
		Role:      domain.RoleObstetra,
	}

	d.userRepo.EXPECT().GetByEmail(ctx, "ana@clinic.pe").Return(nil, nil)
	d.hashSvc.EXPECT().Hash("password123").Return("$argon2id$hash", nil)
	d.userRepo.EXPECT().Create(ctx, gomock.Any()).
		DoAndReturn(func(_ context.Context, u *domain.User) error {
			assert.Equal(t, "ana@clinic.pe", u.Email)
			assert.Equal(t, "$argon2id$hash", u.PasswordHash)
			assert.Equal(t, domain.RoleObstetra, u.Role)
			assert.True(t, u.Active)
			return nil
		})
	d.publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, e domain.AuditableEvent) error {
			assert.Equal(t, domain.EventTypeUserCreated, e.EventType)
			assert.Equal(t, "CREATE", e.Action)
			assert.Equal(t, "USUARIO", e.ResourceType)
			return nil
		})

	user, err := d.svc.Register(ctx, req)
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "ana@clinic.pe", user.Email)
	assert.NotEqual(t, uuid.Nil, user.ID)
}

func TestAuthService_Register_InvalidRole(t *testing.T) {
	d := setupAuthService(t)
	defer d.ctrl.Finish()

	user, err := d.svc.Register(context.Background(), ports.RegisterRequest{
		Email:    "ana@clinic.pe",
		Password: "password123",
		Role:     "SUPERUSER",
	})
	assert.Nil(t, user)
	assertAppError(t, err, "VAL_001")
}

func TestAuthService_Register_EmailExists(t *testing.T) {
	d := setupAuthService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	d.userRepo.EXPECT().GetByEmail(ctx, "taken@clinic.pe").Return(&domain.User{ID: uuid.New()}, nil)

	user, err := d.svc.Register(ctx, ports.RegisterRequest{
		Email:    "taken@clinic.pe",
		Password: "password123",
		Role:     domain.RoleObstetra,
	})
	assert.Nil(t, user)
	assertAppError(t, err, "AUTH_002")
}

func TestAuthService_Register_RaceOnUniqueIndex(t *testing.T) {
	d := setupAuthService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	// Existence pre-check passes, but a concurrent register wins the insert.
	d.userRepo.EXPECT().GetByEmail(ctx, "race@clinic.pe").Return(nil, nil)
	d.hashSvc.EXPECT().Hash(gomock.Any()).Return("$argon2id$hash", nil)
	d.userRepo.EXPECT().Create(ctx, gomock.Any()).Return(domain.ErrDuplicateKey)

	user, err := d.svc.Register(ctx, ports.RegisterRequest{
		Email:    "race@clinic.pe",
		Password: "password123",
		Role:     domain.RoleObstetra,
	})
	assert.Nil(t, user)
	assertAppError(t, err, "AUTH_002")
}

func TestAuthService_Register_PublishFailureDoesNotFail(t *testing.T) {
	d := setupAuthService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	d.userRepo.EXPECT().GetByEmail(ctx, gomock.Any()).Return(nil, nil)
	d.hashSvc.EXPECT().Hash(gomock.Any()).Return("$argon2id$hash", nil)
	d.userRepo.EXPECT().Create(ctx, gomock.Any()).Return(nil)
	d.publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(assert.AnError)

	user, err := d.svc.Register(ctx, ports.RegisterRequest{
		Email:    "ana@clinic.pe",
		Password: "password123",
		Role:     domain.RoleObstetra,
	})
	require.NoError(t, err)
	require.NotNil(t, user)
}

// ==================== Login Tests ====================

func activeUser(email string) *domain.User {
	now := time.Now().UTC()
	return &domain.User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: "$argon2id$hash",
		FirstName:    "Ana",
		LastName:     "Torres",
		Role:         domain.RoleObstetra,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func expectRotation(t *testing.T, d *authTestDeps, userID uuid.UUID, user *domain.User) {
	tx := &mockTx{}
	d.transactor.EXPECT().Begin(gomock.Any()).Return(tx, nil)
	d.userRepo.EXPECT().GetByIDForUpdate(gomock.Any(), tx, userID).Return(user, nil)
	revoked := false
	d.tokenRepo.EXPECT().RevokeAllByUserID(gomock.Any(), tx, userID).
		DoAndReturn(func(_ context.Context, _ pgx.Tx, _ uuid.UUID) error {
			revoked = true
			return nil
		})
	d.tokenRepo.EXPECT().Create(gomock.Any(), tx, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ pgx.Tx, tok *domain.RefreshToken) error {
			// Old tokens must be revoked before the new one exists.
			assert.True(t, revoked)
			return nil
		})
}

func TestAuthService_Login_Success(t *testing.T) {
	d := setupAuthService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	user := activeUser("ana@clinic.pe")
	accessExpiry := time.Now().Add(15 * time.Minute)

	d.userRepo.EXPECT().GetByEmail(ctx, "ana@clinic.pe").Return(user, nil)
	d.hashSvc.EXPECT().Verify("password123", user.PasswordHash).Return(true, nil)
	expectRotation(t, d, user.ID, user)
	d.tokenSvc.EXPECT().Generate(user.ID, user.Email, user.Role).Return("jwt_access", accessExpiry, nil)
	d.publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, e domain.AuditableEvent) error {
			assert.Equal(t, domain.EventTypeUserLogin, e.EventType)
			assert.Equal(t, "10.0.0.1", e.SourceIP)
			return nil
		})

	pair, err := d.svc.Login(ctx, ports.LoginRequest{
		Email:    "ana@clinic.pe",
		Password: "password123",
		ClientIP: "10.0.0.1",
	})
	require.NoError(t, err)
	require.NotNil(t, pair)
	assert.Equal(t, "jwt_access", pair.AccessToken)
	assert.Equal(t, accessExpiry, pair.AccessExpiry)
	assert.Len(t, pair.RefreshToken, 64) // 32 random bytes, hex encoded
	assert.WithinDuration(t, time.Now().Add(domain.RefreshTokenTTL), pair.RefreshExpiry, 5*time.Second)
}

func TestAuthService_Login_UnknownEmail(t *testing.T) {
	d := setupAuthService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	d.userRepo.EXPECT().GetByEmail(ctx, "ghost@clinic.pe").Return(nil, nil)

	pair, err := d.svc.Login(ctx, ports.LoginRequest{Email: "ghost@clinic.pe", Password: "x"})
	assert.Nil(t, pair)
	assertAppError(t, err, "AUTH_001")
}

func TestAuthService_Login_InactiveAccount(t *testing.T) {
	d := setupAuthService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	user := activeUser("ana@clinic.pe")
	user.Active = false
	d.userRepo.EXPECT().GetByEmail(ctx, "ana@clinic.pe").Return(user, nil)

	pair, err := d.svc.Login(ctx, ports.LoginRequest{Email: "ana@clinic.pe", Password: "password123"})
	assert.Nil(t, pair)
	// Same code as unknown email; callers cannot probe account status.
	assertAppError(t, err, "AUTH_001")
}

func TestAuthService_Login_WrongPassword(t *testing.T) {
	d := setupAuthService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	user := activeUser("ana@clinic.pe")
	d.userRepo.EXPECT().GetByEmail(ctx, "ana@clinic.pe").Return(user, nil)
	d.hashSvc.EXPECT().Verify("wrong", user.PasswordHash).Return(false, nil)

	pair, err := d.svc.Login(ctx, ports.LoginRequest{Email: "ana@clinic.pe", Password: "wrong"})
	assert.Nil(t, pair)
	assertAppError(t, err, "AUTH_001")
}

// ==================== Refresh Tests ====================

func validRefreshToken(userID uuid.UUID, value string) *domain.RefreshToken {
	now := time.Now().UTC()
	return &domain.RefreshToken{
		ID:        uuid.New(),
		UserID:    userID,
		Token:     value,
		ExpiresAt: now.Add(24 * time.Hour),
		Revoked:   false,
		CreatedAt: now.Add(-time.Hour),
	}
}

func TestAuthService_Refresh_Success(t *testing.T) {
	d := setupAuthService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	user := activeUser("ana@clinic.pe")
	presented := validRefreshToken(user.ID, "old_value")
	accessExpiry := time.Now().Add(15 * time.Minute)

	d.tokenRepo.EXPECT().GetByToken(ctx, "old_value").Return(presented, nil)
	d.userRepo.EXPECT().GetByID(ctx, user.ID).Return(user, nil)

	tx := &mockTx{}
	d.transactor.EXPECT().Begin(gomock.Any()).Return(tx, nil)
	d.userRepo.EXPECT().GetByIDForUpdate(gomock.Any(), tx, user.ID).Return(user, nil)
	d.tokenRepo.EXPECT().GetByTokenForUpdate(gomock.Any(), tx, "old_value").Return(presented, nil)
	d.tokenRepo.EXPECT().RevokeAllByUserID(gomock.Any(), tx, user.ID).Return(nil)
	d.tokenRepo.EXPECT().Create(gomock.Any(), tx, gomock.Any()).Return(nil)

	d.tokenSvc.EXPECT().Generate(user.ID, user.Email, user.Role).Return("new_access", accessExpiry, nil)
	// No Publish expectation: refresh emits no audit event.

	pair, err := d.svc.Refresh(ctx, "old_value")
	require.NoError(t, err)
	require.NotNil(t, pair)
	assert.Equal(t, "new_access", pair.AccessToken)
	assert.NotEqual(t, "old_value", pair.RefreshToken)
}

func TestAuthService_Refresh_UnknownToken(t *testing.T) {
	d := setupAuthService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	d.tokenRepo.EXPECT().GetByToken(ctx, "missing").Return(nil, nil)

	pair, err := d.svc.Refresh(ctx, "missing")
	assert.Nil(t, pair)
	assertAppError(t, err, "AUTH_004")
}

func TestAuthService_Refresh_RevokedToken(t *testing.T) {
	d := setupAuthService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tok := validRefreshToken(uuid.New(), "revoked_value")
	tok.Revoked = true
	d.tokenRepo.EXPECT().GetByToken(ctx, "revoked_value").Return(tok, nil)

	pair, err := d.svc.Refresh(ctx, "revoked_value")
	assert.Nil(t, pair)
	assertAppError(t, err, "AUTH_004")
}

func TestAuthService_Refresh_ExpiredToken(t *testing.T) {
	d := setupAuthService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tok := validRefreshToken(uuid.New(), "expired_value")
	tok.ExpiresAt = time.Now().UTC().Add(-time.Minute)
	d.tokenRepo.EXPECT().GetByToken(ctx, "expired_value").Return(tok, nil)

	pair, err := d.svc.Refresh(ctx, "expired_value")
	assert.Nil(t, pair)
	assertAppError(t, err, "AUTH_004")
}

func TestAuthService_Refresh_LosesRaceUnderLock(t *testing.T) {
	d := setupAuthService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	user := activeUser("ana@clinic.pe")
	presented := validRefreshToken(user.ID, "contended_value")

	// Optimistic pre-check still sees the token as valid.
	d.tokenRepo.EXPECT().GetByToken(ctx, "contended_value").Return(presented, nil)
	d.userRepo.EXPECT().GetByID(ctx, user.ID).Return(user, nil)

	tx := &mockTx{}
	d.transactor.EXPECT().Begin(gomock.Any()).Return(tx, nil)
	d.userRepo.EXPECT().GetByIDForUpdate(gomock.Any(), tx, user.ID).Return(user, nil)
	// Under the lock the token is already revoked: a concurrent rotation won.
	revokedNow := *presented
	revokedNow.Revoked = true
	d.tokenRepo.EXPECT().GetByTokenForUpdate(gomock.Any(), tx, "contended_value").Return(&revokedNow, nil)

	pair, err := d.svc.Refresh(ctx, "contended_value")
	assert.Nil(t, pair)
	assertAppError(t, err, "AUTH_004")
}

func TestAuthService_Refresh_UserDeleted(t *testing.T) {
	d := setupAuthService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tok := validRefreshToken(uuid.New(), "orphan_value")
	d.tokenRepo.EXPECT().GetByToken(ctx, "orphan_value").Return(tok, nil)
	d.userRepo.EXPECT().GetByID(ctx, tok.UserID).Return(nil, nil)

	pair, err := d.svc.Refresh(ctx, "orphan_value")
	assert.Nil(t, pair)
	assertAppError(t, err, "AUTH_004")
}

func TestGenerateTokenValue_UniqueAndHex(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		v, err := generateTokenValue()
		require.NoError(t, err)
		assert.Len(t, v, 64)
		assert.False(t, seen[v], "token values must not repeat")
		seen[v] = true
	}
}
