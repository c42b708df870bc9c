package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FilipeAphrody/sentinel-identity/internal/domain"
)

func TestMemoryAccountRepo_InsertAndFind(t *testing.T) {
	repo := NewMemoryAccountRepo()
	ctx := context.Background()

	id, err := repo.Insert(ctx, &domain.Account{ID: "acc-1", Email: "Alice@X.com", PasswordHash: []byte("h")})
	require.NoError(t, err)
	assert.Equal(t, "acc-1", id)

	byEmail, err := repo.FindByEmail(ctx, "alice@x.com")
	require.NoError(t, err)
	assert.Equal(t, "acc-1", byEmail.ID)
	assert.Equal(t, int64(1), byEmail.Version)

	// Returned values are copies.
	byEmail.PasswordHash[0] = 'x'
	byID, err := repo.FindByID(ctx, "acc-1")
	require.NoError(t, err)
	assert.Equal(t, "h", string(byID.PasswordHash))

	_, err = repo.FindByID(ctx, "ghost")
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestMemoryAccountRepo_DuplicateEmail(t *testing.T) {
	repo := NewMemoryAccountRepo()
	ctx := context.Background()

	_, err := repo.Insert(ctx, &domain.Account{ID: "acc-1", Email: "alice@x.com"})
	require.NoError(t, err)
	_, err = repo.Insert(ctx, &domain.Account{ID: "acc-2", Email: "ALICE@x.com"})
	assert.ErrorIs(t, err, domain.ErrDuplicateAccount)

	_, err = repo.FindByID(ctx, "acc-2")
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestMemoryAccountRepo_OptimisticUpdate(t *testing.T) {
	repo := NewMemoryAccountRepo()
	ctx := context.Background()
	_, err := repo.Insert(ctx, &domain.Account{ID: "acc-1", Email: "alice@x.com"})
	require.NoError(t, err)

	first, _ := repo.FindByID(ctx, "acc-1")
	second, _ := repo.FindByID(ctx, "acc-1")

	first.SetRefreshToken("one", time.Now().Add(time.Hour))
	require.NoError(t, repo.Update(ctx, first))
	assert.Equal(t, int64(2), first.Version)

	second.SetRefreshToken("two", time.Now().Add(time.Hour))
	assert.ErrorIs(t, repo.Update(ctx, second), domain.ErrConcurrencyConflict)

	stored, _ := repo.FindByID(ctx, "acc-1")
	assert.Equal(t, "one", stored.RefreshTokenHash)
}

func TestMemoryAccountRepo_UpdateEmailKeepsIndex(t *testing.T) {
	repo := NewMemoryAccountRepo()
	ctx := context.Background()
	_, _ = repo.Insert(ctx, &domain.Account{ID: "acc-1", Email: "alice@x.com"})
	_, _ = repo.Insert(ctx, &domain.Account{ID: "acc-2", Email: "bob@x.com"})

	acc, _ := repo.FindByID(ctx, "acc-1")
	acc.Email = "bob@x.com"
	assert.ErrorIs(t, repo.Update(ctx, acc), domain.ErrDuplicateAccount)

	acc.Email = "carol@x.com"
	require.NoError(t, repo.Update(ctx, acc))
	_, err := repo.FindByEmail(ctx, "alice@x.com")
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
	found, err := repo.FindByEmail(ctx, "carol@x.com")
	require.NoError(t, err)
	assert.Equal(t, "acc-1", found.ID)
}

func TestMemoryAccountRepo_CancelledContext(t *testing.T) {
	repo := NewMemoryAccountRepo()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := repo.Insert(ctx, &domain.Account{ID: "acc-1", Email: "alice@x.com"})
	assert.ErrorIs(t, err, context.Canceled)
	_, err = repo.FindByID(context.Background(), "acc-1")
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestMemoryAccountRepo_Events(t *testing.T) {
	repo := NewMemoryAccountRepo()
	require.NoError(t, repo.LogSecurityEvent(context.Background(), "acc-1", domain.EventLogout, nil))

	events := repo.Events()
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventLogout, events[0].EventType)
}
