package repo

import (
	"context"
	"errors"
	"time"
)

// ErrLockNotAcquired means the lock key is held by someone else.
var ErrLockNotAcquired = errors.New("lock not acquired")

// Unlock releases a lock obtained from AcquireLock.
type Unlock func(ctx context.Context) error

// releaseScript deletes the key only if it still holds our token, so an
// expired lock re-acquired by another holder is left alone.
const releaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`

// AcquireLock takes a Redis lock on key that expires after ttl. Without a
// Redis client it always succeeds.
func (r *Repository) AcquireLock(ctx context.Context, key string, ttl time.Duration) (Unlock, error) {
	if r.rdb == nil {
		return func(context.Context) error { return nil }, nil
	}
	token := r.newToken()
	ok, err := r.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLockNotAcquired
	}
	return func(ctx context.Context) error {
		return r.rdb.Eval(ctx, releaseScript, []string{key}, token).Err()
	}, nil
}
