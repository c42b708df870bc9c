package notify

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// DefaultStream is the Redis stream consumed by the mail worker.
const DefaultStream = "notifications:email"

const (
	KindVerification  = "verify_email"
	KindPasswordReset = "reset_password"
)

// RedisStreamNotifier enqueues email jobs on a Redis stream (XADD). A separate
// worker owns delivery and retries, so a slow mail provider never blocks a request.
type RedisStreamNotifier struct {
	client redis.UniversalClient
	stream string
	maxLen int64
	links  LinkBuilder
}

func NewRedisStreamNotifier(client redis.UniversalClient, stream string, links LinkBuilder) *RedisStreamNotifier {
	if stream == "" {
		stream = DefaultStream
	}
	return &RedisStreamNotifier{client: client, stream: stream, maxLen: 100000, links: links}
}

func (n *RedisStreamNotifier) SendVerificationLink(ctx context.Context, email, token string) error {
	return n.enqueue(ctx, KindVerification, email, n.links.VerificationLink(email, token))
}

func (n *RedisStreamNotifier) SendPasswordResetLink(ctx context.Context, email, token string) error {
	return n.enqueue(ctx, KindPasswordReset, email, n.links.PasswordResetLink(email, token))
}

func (n *RedisStreamNotifier) enqueue(ctx context.Context, kind, email, link string) error {
	err := n.client.XAdd(ctx, &redis.XAddArgs{
		Stream: n.stream,
		MaxLen: n.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"kind":        kind,
			"to":          email,
			"link":        link,
			"enqueued_at": time.Now().UTC().Format(time.RFC3339),
		},
	}).Err()
	if err != nil {
		return errors.Wrapf(err, "enqueue %s email", kind)
	}
	return nil
}
