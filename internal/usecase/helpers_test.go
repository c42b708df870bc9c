package usecase

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/FilipeAphrody/sentinel-identity/internal/domain"
	"github.com/FilipeAphrody/sentinel-identity/internal/repository"
	"github.com/FilipeAphrody/sentinel-identity/pkg/security"
)

const testSecret = "test-secret-key-that-is-long-enough-32"

var testHashParams = security.HashParams{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type sentMessage struct {
	kind  string
	email string
	token string
}

// captureNotifier records the plain tokens the lifecycle hands out.
type captureNotifier struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (n *captureNotifier) SendVerificationLink(_ context.Context, email, token string) error {
	return n.record("verify", email, token)
}

func (n *captureNotifier) SendPasswordResetLink(_ context.Context, email, token string) error {
	return n.record("reset", email, token)
}

func (n *captureNotifier) record(kind, email, token string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, sentMessage{kind: kind, email: email, token: token})
	return nil
}

func (n *captureNotifier) last(t *testing.T, kind, email string) string {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.sent) - 1; i >= 0; i-- {
		if n.sent[i].kind == kind && n.sent[i].email == email {
			return n.sent[i].token
		}
	}
	t.Fatalf("no %s message sent to %s", kind, email)
	return ""
}

func (n *captureNotifier) count(kind string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	total := 0
	for _, m := range n.sent {
		if m.kind == kind {
			total++
		}
	}
	return total
}

type harness struct {
	uc       *AuthUsecase
	accounts *repository.MemoryAccountRepo
	redis    *miniredis.Miniredis
	notifier *captureNotifier
	clock    *testClock
	totp     *security.TOTPEngine
	issuer   *security.TokenIssuer
}

func defaultOptions() Options {
	return Options{
		AccessTokenTTL:       15 * time.Minute,
		RefreshTokenTTL:      7 * 24 * time.Hour,
		VerificationTokenTTL: 24 * time.Hour,
		ResetTokenTTL:        time.Hour,
		TOTPIssuer:           "SentinelIdentity",
		ConflictRetries:      3,
	}
}

func newHarness(t *testing.T, mods ...func(*Options)) *harness {
	t.Helper()
	return newHarnessWithRepo(t, repository.NewMemoryAccountRepo(), nil, mods...)
}

// newHarnessWithRepo lets a test wrap the in-memory store; accounts may be nil
// to use mem directly.
func newHarnessWithRepo(t *testing.T, mem *repository.MemoryAccountRepo, accounts domain.AccountRepository, mods ...func(*Options)) *harness {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	opts := defaultOptions()
	for _, mod := range mods {
		mod(&opts)
	}
	if accounts == nil {
		accounts = mem
	}

	clock := &testClock{now: time.Date(2026, 3, 1, 12, 0, 10, 0, time.UTC)}
	issuer := security.NewTokenIssuer(testSecret, opts.AccessTokenTTL).WithClock(clock.Now)
	engine := security.NewTOTPEngine(1)
	notifier := &captureNotifier{}

	uc, err := NewAuthUsecase(Deps{
		Accounts: accounts,
		Tokens:   repository.NewRedisTokenRepo(client),
		Notifier: notifier,
		Hasher:   security.NewPasswordHasherWithParams(testHashParams),
		Issuer:   issuer,
		TOTP:     engine,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Clock:    clock.Now,
	}, opts)
	require.NoError(t, err)

	return &harness{
		uc:       uc,
		accounts: mem,
		redis:    mr,
		notifier: notifier,
		clock:    clock,
		totp:     engine,
		issuer:   issuer,
	}
}

func (h *harness) register(t *testing.T, email, password string) string {
	t.Helper()
	res, err := h.uc.Register(context.Background(), RegisterRequest{
		FirstName:       "Alice",
		LastName:        "Liddell",
		Email:           email,
		Password:        password,
		ConfirmPassword: password,
	})
	require.NoError(t, err)
	require.NoError(t, res.Warning)
	return res.AccountID
}

// registerVerified registers an account and redeems its verification link.
func (h *harness) registerVerified(t *testing.T, email, password string) string {
	t.Helper()
	id := h.register(t, email, password)
	token := h.notifier.last(t, "verify", domain.NormalizeEmail(email))
	require.NoError(t, h.uc.VerifyEmail(context.Background(), email, token))
	return id
}

func (h *harness) enableTwoFactor(t *testing.T, accountID string) string {
	t.Helper()
	ctx := context.Background()
	setup, err := h.uc.SetupTwoFactor(ctx, accountID)
	require.NoError(t, err)
	code, err := h.totp.GenerateCode(setup.Secret, h.clock.Now())
	require.NoError(t, err)
	require.NoError(t, h.uc.ConfirmTwoFactor(ctx, accountID, code))
	return setup.Secret
}

func (h *harness) account(t *testing.T, id string) *domain.Account {
	t.Helper()
	a, err := h.accounts.FindByID(context.Background(), id)
	require.NoError(t, err)
	return a
}

// conflictingRepo fails the first conflicts updates with a version conflict.
type conflictingRepo struct {
	*repository.MemoryAccountRepo
	mu        sync.Mutex
	conflicts int
	updates   int
}

func (r *conflictingRepo) Update(ctx context.Context, account *domain.Account) error {
	r.mu.Lock()
	r.updates++
	if r.conflicts != 0 {
		if r.conflicts > 0 {
			r.conflicts--
		}
		r.mu.Unlock()
		return domain.ErrConcurrencyConflict
	}
	r.mu.Unlock()
	return r.MemoryAccountRepo.Update(ctx, account)
}

func (r *conflictingRepo) failNext(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conflicts = n
	r.updates = 0
}

func (r *conflictingRepo) updateCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.updates
}
