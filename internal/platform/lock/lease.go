// Package lock provides a Redis-backed lease so that periodic jobs run on
// one replica at a time.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrNotHeld is returned by Release when the lease expired or was taken over.
var ErrNotHeld = errors.New("lease not held")

// releaseScript deletes the key only while it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker hands out leases. A nil Locker grants every request, which is the
// single-replica configuration.
type Locker interface {
	Acquire(ctx context.Context, name string, ttl time.Duration) (*Lease, error)
}

type RedisLocker struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisLocker(client redis.UniversalClient, prefix string) *RedisLocker {
	if prefix == "" {
		prefix = "clinic:lock:"
	}
	return &RedisLocker{client: client, prefix: prefix}
}

// Lease is a held lock. Release it when the job finishes; otherwise it
// expires after its TTL.
type Lease struct {
	client redis.UniversalClient
	key    string
	token  string
}

// Acquire tries once to take the named lease. It returns (nil, nil) when
// another holder owns it.
func (l *RedisLocker) Acquire(ctx context.Context, name string, ttl time.Duration) (*Lease, error) {
	key := l.prefix + name
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lease %s: %w", name, err)
	}
	if !ok {
		return nil, nil
	}
	return &Lease{client: l.client, key: key, token: token}, nil
}

func (l *Lease) Release(ctx context.Context) error {
	if l == nil {
		return nil
	}
	n, err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Int()
	if err != nil {
		return fmt.Errorf("release lease %s: %w", l.key, err)
	}
	if n == 0 {
		return ErrNotHeld
	}
	return nil
}

// NewRedisClient parses a redis:// URL and verifies connectivity.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}
