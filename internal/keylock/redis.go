package keylock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const lockReleaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

const lockRenewScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`

const (
	defaultLockTTL    = 30 * time.Second
	defaultRetryDelay = 50 * time.Millisecond
	releaseTimeout    = 2 * time.Second
)

// RedisLocker extends LocalLocker with a SET NX lease so several instances can share
// the same key space. A held lease is extended every ttl/3 until unlock, so it only
// expires after ttl if its holder dies.
type RedisLocker struct {
	local   *LocalLocker
	client  *redis.Client
	release *redis.Script
	renew   *redis.Script
	ttl     time.Duration
	retry   time.Duration
	log     *zap.Logger
}

var _ Locker = (*RedisLocker)(nil)

func NewRedisLocker(client *redis.Client, ttl time.Duration, log *zap.Logger) *RedisLocker {
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &RedisLocker{
		local:   NewLocalLocker(),
		client:  client,
		release: redis.NewScript(lockReleaseScript),
		renew:   redis.NewScript(lockRenewScript),
		ttl:     ttl,
		retry:   defaultRetryDelay,
		log:     log.Named("keylock.redis"),
	}
}

// TTL is the lease length set on acquire and on each renewal.
func (l *RedisLocker) TTL() time.Duration { return l.ttl }

func (l *RedisLocker) Lock(ctx context.Context, key string) (Unlock, error) {
	if l == nil || l.client == nil {
		return nil, ErrLockNotConfigured
	}

	unlockLocal, err := l.local.Lock(ctx, key)
	if err != nil {
		return nil, err
	}

	token, err := l.acquire(ctx, key)
	if err != nil {
		unlockLocal()
		return nil, err
	}

	stopRenew := l.keepAlive(key, token)
	var once sync.Once
	return func() {
		once.Do(func() {
			stopRenew()
			releaseCtx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
			defer cancel()
			if err := l.Release(releaseCtx, key, token); err != nil {
				l.log.Warn("failed to release lock", zap.String("key", key), zap.Error(err))
			}
			unlockLocal()
		})
	}, nil
}

// keepAlive extends the lease while it is held. The returned func stops renewal and
// waits for the renewing goroutine to exit.
func (l *RedisLocker) keepAlive(key, token string) func() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(l.ttl / 3)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			held, err := l.Renew(ctx, key, token)
			switch {
			case ctx.Err() != nil:
				return
			case err != nil:
				l.log.Warn("failed to renew lock", zap.String("key", key), zap.Error(err))
			case !held:
				l.log.Error("lock lease lost before unlock", zap.String("key", key))
				return
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

// Renew resets the lease on key to ttl while it still holds token.
func (l *RedisLocker) Renew(ctx context.Context, key, token string) (bool, error) {
	if l == nil || l.client == nil {
		return false, ErrLockNotConfigured
	}
	n, err := l.renew.Run(ctx, l.client, []string{key}, token, l.ttl.Milliseconds()).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (l *RedisLocker) acquire(ctx context.Context, key string) (string, error) {
	ticker := time.NewTicker(l.retry)
	defer ticker.Stop()

	for {
		token, ok, err := l.TryLock(ctx, key, l.ttl)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return "", ctxErr
			}
			return "", fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			return token, nil
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}
	}
}

// TryLock sets key to a fresh token if it is unset.
func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	if l == nil || l.client == nil {
		return "", false, ErrLockNotConfigured
	}
	if key == "" {
		return "", false, ErrEmptyKey
	}
	if ttl <= 0 {
		return "", false, errors.New("lock ttl must be positive")
	}

	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return "", false, err
	}
	return token, ok, nil
}

// Release deletes key only while it still holds token.
func (l *RedisLocker) Release(ctx context.Context, key, token string) error {
	if l == nil || l.client == nil {
		return nil
	}
	if key == "" || token == "" {
		return nil
	}
	return l.release.Run(ctx, l.client, []string{key}, token).Err()
}
