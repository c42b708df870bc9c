package repository

import (
	"context"
	"sync"
	"time"

	"github.com/FilipeAphrody/sentinel-identity/internal/domain"
)

// AuditEvent is a security event kept by MemoryAccountRepo.
type AuditEvent struct {
	AccountID string
	EventType string
	Metadata  map[string]interface{}
	CreatedAt time.Time
}

// MemoryAccountRepo is an in-process domain.AccountRepository for local runs
// and tests. It honours the same uniqueness and version semantics as Postgres.
type MemoryAccountRepo struct {
	mu       sync.Mutex
	accounts map[string]*domain.Account
	byEmail  map[string]string
	events   []AuditEvent
}

func NewMemoryAccountRepo() *MemoryAccountRepo {
	return &MemoryAccountRepo{
		accounts: make(map[string]*domain.Account),
		byEmail:  make(map[string]string),
	}
}

func (r *MemoryAccountRepo) FindByEmail(ctx context.Context, email string) (*domain.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byEmail[domain.NormalizeEmail(email)]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	return cloneAccount(r.accounts[id]), nil
}

func (r *MemoryAccountRepo) FindByID(ctx context.Context, id string) (*domain.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	account, ok := r.accounts[id]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	return cloneAccount(account), nil
}

func (r *MemoryAccountRepo) Insert(ctx context.Context, account *domain.Account) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	key := domain.NormalizeEmail(account.Email)
	if _, exists := r.byEmail[key]; exists {
		return "", domain.ErrDuplicateAccount
	}
	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now().UTC()
	}
	account.Version = 1

	r.accounts[account.ID] = cloneAccount(account)
	r.byEmail[key] = account.ID
	return account.ID, nil
}

func (r *MemoryAccountRepo) Update(ctx context.Context, account *domain.Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.accounts[account.ID]
	if !ok {
		return domain.ErrAccountNotFound
	}
	if stored.Version != account.Version {
		return domain.ErrConcurrencyConflict
	}

	oldKey, newKey := domain.NormalizeEmail(stored.Email), domain.NormalizeEmail(account.Email)
	if oldKey != newKey {
		if _, taken := r.byEmail[newKey]; taken {
			return domain.ErrDuplicateAccount
		}
		delete(r.byEmail, oldKey)
		r.byEmail[newKey] = account.ID
	}

	account.Version++
	r.accounts[account.ID] = cloneAccount(account)
	return nil
}

func (r *MemoryAccountRepo) LogSecurityEvent(ctx context.Context, accountID, eventType string, metadata map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = append(r.events, AuditEvent{
		AccountID: accountID,
		EventType: eventType,
		Metadata:  metadata,
		CreatedAt: time.Now().UTC(),
	})
	return nil
}

// Events returns a copy of the recorded audit trail.
func (r *MemoryAccountRepo) Events() []AuditEvent {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]AuditEvent, len(r.events))
	copy(out, r.events)
	return out
}

func cloneAccount(a *domain.Account) *domain.Account {
	cp := *a
	cp.PasswordHash = append([]byte(nil), a.PasswordHash...)
	cp.PasswordSalt = append([]byte(nil), a.PasswordSalt...)
	if a.RefreshTokenExpiry != nil {
		t := *a.RefreshTokenExpiry
		cp.RefreshTokenExpiry = &t
	}
	if a.LastLoginAt != nil {
		t := *a.LastLoginAt
		cp.LastLoginAt = &t
	}
	return &cp
}
