package integration

import (
	"context"
	"sort"
	"sync"

	"clinic-auth-service/internal/core/domain"
	"clinic-auth-service/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// --- In-Memory User Repo ---

type inMemoryUserRepo struct {
	mu    sync.RWMutex
	users map[uuid.UUID]*domain.User
}

func newInMemoryUserRepo() *inMemoryUserRepo {
	return &inMemoryUserRepo{users: make(map[uuid.UUID]*domain.User)}
}

func (r *inMemoryUserRepo) Create(ctx context.Context, u *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if existing.Email == u.Email {
			return domain.ErrDuplicateKey
		}
	}
	cp := *u
	r.users[u.ID] = &cp
	return nil
}

func (r *inMemoryUserRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (r *inMemoryUserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *inMemoryUserRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.User, error) {
	// Mutual exclusion comes from the locking transactor.
	return r.GetByID(ctx, id)
}

// --- In-Memory Refresh Token Repo ---

type inMemoryRefreshTokenRepo struct {
	mu     sync.RWMutex
	tokens map[string]*domain.RefreshToken // keyed by opaque value
}

func newInMemoryRefreshTokenRepo() *inMemoryRefreshTokenRepo {
	return &inMemoryRefreshTokenRepo{tokens: make(map[string]*domain.RefreshToken)}
}

func (r *inMemoryRefreshTokenRepo) Create(ctx context.Context, tx pgx.Tx, t *domain.RefreshToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *t
	r.tokens[t.Token] = &cp
	return nil
}

func (r *inMemoryRefreshTokenRepo) GetByToken(ctx context.Context, value string) (*domain.RefreshToken, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tokens[value]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (r *inMemoryRefreshTokenRepo) GetByTokenForUpdate(ctx context.Context, tx pgx.Tx, value string) (*domain.RefreshToken, error) {
	return r.GetByToken(ctx, value)
}

func (r *inMemoryRefreshTokenRepo) RevokeAllByUserID(ctx context.Context, tx pgx.Tx, userID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tokens {
		if t.UserID == userID {
			t.Revoked = true
		}
	}
	return nil
}

func (r *inMemoryRefreshTokenRepo) CountActiveByUserID(ctx context.Context, userID uuid.UUID) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var count int64
	for _, t := range r.tokens {
		if t.UserID == userID && !t.Revoked {
			count++
		}
	}
	return count, nil
}

// --- In-Memory Audit Record Repo ---

type inMemoryAuditRepo struct {
	mu      sync.RWMutex
	byEvent map[uuid.UUID]struct{}
	records []domain.AuditRecord
}

func newInMemoryAuditRepo() *inMemoryAuditRepo {
	return &inMemoryAuditRepo{byEvent: make(map[uuid.UUID]struct{})}
}

func (r *inMemoryAuditRepo) Create(ctx context.Context, rec *domain.AuditRecord) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.byEvent[rec.EventID]; dup {
		return false, nil
	}
	r.byEvent[rec.EventID] = struct{}{}
	r.records = append(r.records, *rec)
	return true, nil
}

func (r *inMemoryAuditRepo) List(ctx context.Context, filter ports.AuditFilter, page ports.PageRequest) ([]domain.AuditRecord, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []domain.AuditRecord
	for _, rec := range r.records {
		if filter.UserID != nil && rec.UserID != *filter.UserID {
			continue
		}
		if filter.ResourceID != nil && (rec.ResourceID == nil || *rec.ResourceID != *filter.ResourceID) {
			continue
		}
		if filter.ResourceType != nil && rec.ResourceType != *filter.ResourceType {
			continue
		}
		if filter.Action != nil && rec.Action != *filter.Action {
			continue
		}
		if filter.From != nil && rec.OccurredOn.Before(*filter.From) {
			continue
		}
		if filter.To != nil && rec.OccurredOn.After(*filter.To) {
			continue
		}
		matched = append(matched, rec)
	}

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].OccurredOn.Equal(matched[j].OccurredOn) {
			return matched[i].OccurredOn.After(matched[j].OccurredOn)
		}
		return matched[i].EventID.String() > matched[j].EventID.String()
	})

	total := int64(len(matched))
	start := page.Offset()
	if start >= len(matched) {
		return []domain.AuditRecord{}, total, nil
	}
	end := start + page.PageSize
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, nil
}

// --- Locking Transactor ---

// lockingTransactor serializes transactions the way the user-row lock does
// in PostgreSQL: Begin blocks until the previous transaction finishes, so a
// refresh race loser re-reads its token only after the winner committed.
type lockingTransactor struct {
	mu sync.Mutex
}

func newLockingTransactor() *lockingTransactor {
	return &lockingTransactor{}
}

func (t *lockingTransactor) Begin(ctx context.Context) (pgx.Tx, error) {
	t.mu.Lock()
	tx := &lockingTx{}
	tx.release = func() { t.mu.Unlock() }
	return tx, nil
}

// lockingTx holds the transactor lock until Commit or Rollback, whichever
// comes first.
type lockingTx struct {
	once    sync.Once
	release func()
}

func (t *lockingTx) Commit(ctx context.Context) error {
	t.once.Do(t.release)
	return nil
}

func (t *lockingTx) Rollback(ctx context.Context) error {
	t.once.Do(t.release)
	return nil
}

func (t *lockingTx) Begin(ctx context.Context) (pgx.Tx, error) { return t, nil }
func (t *lockingTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (t *lockingTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }
func (t *lockingTx) LargeObjects() pgx.LargeObjects                               { return pgx.LargeObjects{} }
func (t *lockingTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (t *lockingTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(""), nil
}
func (t *lockingTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}
func (t *lockingTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return nil
}
func (t *lockingTx) Conn() *pgx.Conn { return nil }

// --- In-Memory Event Bus ---

// inMemoryEventBus stands in for the topic exchange plus audit consumer: a
// published event is projected straight into the ledger.
type inMemoryEventBus struct {
	auditSvc ports.AuditService
}

func newInMemoryEventBus(auditSvc ports.AuditService) *inMemoryEventBus {
	return &inMemoryEventBus{auditSvc: auditSvc}
}

func (b *inMemoryEventBus) Publish(ctx context.Context, event domain.AuditableEvent) error {
	return b.auditSvc.Record(ctx, event)
}
