package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	defaultLockExpiry = 10 * time.Second
	defaultLockTries  = 32
	lockRetryDelay    = 50 * time.Millisecond
	unlockTimeout     = 5 * time.Second
)

// RedisLocker implements Locker with redsync mutexes.
type RedisLocker struct {
	rs     *redsync.Redsync
	prefix string
	expiry time.Duration
	tries  int
	logger *zap.Logger
}

type RedisOption func(*RedisLocker)

func WithExpiry(d time.Duration) RedisOption {
	return func(l *RedisLocker) {
		if d > 0 {
			l.expiry = d
		}
	}
}

func WithTries(n int) RedisOption {
	return func(l *RedisLocker) {
		if n > 0 {
			l.tries = n
		}
	}
}

func WithLogger(logger *zap.Logger) RedisOption {
	return func(l *RedisLocker) {
		if logger != nil {
			l.logger = logger
		}
	}
}

func NewRedisLocker(client redis.UniversalClient, opts ...RedisOption) *RedisLocker {
	l := &RedisLocker{
		rs:     redsync.New(goredis.NewPool(client)),
		prefix: "license-lock:",
		expiry: defaultLockExpiry,
		tries:  defaultLockTries,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	mutex := l.rs.NewMutex(l.prefix+key,
		redsync.WithExpiry(l.expiry),
		redsync.WithTries(l.tries),
		redsync.WithRetryDelay(lockRetryDelay),
	)
	if err := mutex.LockContext(ctx); err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", key, err)
	}

	released := false
	return func() {
		if released {
			return
		}
		released = true

		ctx, cancel := context.WithTimeout(context.Background(), unlockTimeout)
		defer cancel()
		if ok, err := mutex.UnlockContext(ctx); err != nil || !ok {
			l.logger.Warn("failed to release lock", zap.String("key", key), zap.Bool("released", ok), zap.Error(err))
		}
	}, nil
}
