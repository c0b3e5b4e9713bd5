package ratelimit

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

const lockKeyPrefix = "shikkha:lock:"

// Compare-and-delete, so a lease that outlived its TTL cannot drop the lock
// a newer holder took.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

var (
	ErrLockKeyEmpty   = errors.New("lock_key_empty")
	ErrLockTTLInvalid = errors.New("lock_ttl_invalid")
)

// Locker hands out single-owner leases on redis keys. A nil Locker grants
// every lease, which is the single-process mode.
type Locker struct {
	client *redis.Client
}

func NewLocker(client *redis.Client) *Locker {
	if client == nil {
		return nil
	}
	return &Locker{client: client}
}

// Acquire takes the lease on name for ttl. acquired is false when another
// holder has it. The returned release is never nil and is safe to call when
// nothing was acquired.
func (l *Locker) Acquire(ctx context.Context, name string, ttl time.Duration) (release func(), acquired bool, err error) {
	noop := func() {}
	if l == nil || l.client == nil {
		return noop, true, nil
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return noop, false, ErrLockKeyEmpty
	}
	if ttl <= 0 {
		return noop, false, ErrLockTTLInvalid
	}

	key := lockKeyPrefix + name
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil || !ok {
		return noop, false, err
	}

	return func() {
		// The caller's context may already be cancelled when the work ends.
		_ = releaseScript.Run(context.WithoutCancel(ctx), l.client, []string{key}, token).Err()
	}, true, nil
}
