package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/FilipeAphrody/sentinel-identity/internal/domain"
)

// RedisTokenRepo implements domain.OneTimeTokenRepository using Redis.
type RedisTokenRepo struct {
	client redis.UniversalClient
}

// NewRedisTokenRepo creates a new repository instance.
func NewRedisTokenRepo(client redis.UniversalClient) *RedisTokenRepo {
	return &RedisTokenRepo{client: client}
}

// The key pattern is "auth:<purpose>:<email>:<digest>"; binding the email into
// the key means a token redeemed for another account simply does not exist.
func tokenKey(purpose domain.TokenPurpose, email, digest string) string {
	return fmt.Sprintf("auth:%s:%s:%s", purpose, domain.NormalizeEmail(email), digest)
}

// Store saves a token digest in Redis with a specific Time-To-Live (TTL).
func (r *RedisTokenRepo) Store(ctx context.Context, purpose domain.TokenPurpose, email, digest string, ttl time.Duration) error {
	err := r.client.Set(ctx, tokenKey(purpose, email, digest), time.Now().UTC().Unix(), ttl).Err()
	if err != nil {
		return errors.Wrap(err, "failed to store token in redis")
	}
	return nil
}

// Consume removes the token in one round trip (GETDEL), so two concurrent
// redemptions cannot both succeed. Expired tokens are already gone.
func (r *RedisTokenRepo) Consume(ctx context.Context, purpose domain.TokenPurpose, email, digest string) (bool, error) {
	err := r.client.GetDel(ctx, tokenKey(purpose, email, digest)).Err()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, errors.Wrap(err, "redis error")
	}
	return true, nil
}

// MarkTOTPUsed records that a TOTP step was consumed for the account. The
// first caller wins; later callers with the same step get false.
func (r *RedisTokenRepo) MarkTOTPUsed(ctx context.Context, accountID string, counter int64, ttl time.Duration) (bool, error) {
	key := fmt.Sprintf("auth:totp:%s:%d", accountID, counter)
	ok, err := r.client.SetNX(ctx, key, 1, ttl).Result()
	if err != nil {
		return false, errors.Wrap(err, "redis error")
	}
	return ok, nil
}
