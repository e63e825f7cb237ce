package keylock

import (
	"context"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/chargeback/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("keylock",
	fx.Provide(NewLocker),
)

type Params struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    config.Config
	Sync      *config.SyncConfigHolder `optional:"true"`
	Log       *zap.Logger
}

// NewLocker returns a redis-backed locker when REDIS_ADDR is set, else an in-process one.
func NewLocker(p Params) Locker {
	log := p.Log
	addr := strings.TrimSpace(p.Config.Redis.Addr)
	if addr == "" {
		log.Info("chargeback lock is in-process only")
		return NewLocalLocker()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(p.Config.Redis.Password),
		DB:       p.Config.Redis.DB,
	})
	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		},
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})

	var syncTimeout time.Duration
	if p.Sync != nil {
		syncTimeout = p.Sync.Get().Timeout
	}
	ttl := leaseTTL(time.Duration(p.Config.Redis.LockTTL)*time.Second, syncTimeout)
	log.Info("chargeback lock uses redis", zap.String("addr", addr), zap.Duration("lease_ttl", ttl))
	return NewRedisLocker(client, ttl, log)
}

// leaseTTL keeps the initial lease at least twice the authority call timeout, since the
// call runs while the lock is held. Renewal covers timeouts raised later at runtime.
func leaseTTL(configured, syncTimeout time.Duration) time.Duration {
	if configured <= 0 {
		configured = defaultLockTTL
	}
	return max(configured, 2*syncTimeout)
}
