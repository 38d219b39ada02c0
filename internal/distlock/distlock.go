// Package distlock provides the per-(org,entity) exclusive lock required
// by the ledger's read-check-write triple (spec §5 Shared-resource
// discipline). A process-local implementation is always available; a
// Redis-backed implementation is wired in when REDIS_ADDR is configured,
// so multiple broker instances sharing one data root still serialize
// writers per ledger.
package distlock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// Locker acquires an exclusive hold on key for the duration of the
// returned release function's lifetime.
type Locker interface {
	Lock(ctx context.Context, key string) (release func(), err error)
}

// Local serializes writers within a single process using one mutex per
// key, created on first use.
type Local struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewLocal builds a process-local Locker.
func NewLocal() *Local {
	return &Local{locks: make(map[string]*sync.Mutex)}
}

func (l *Local) keyMutex(key string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	return m
}

func (l *Local) Lock(ctx context.Context, key string) (func(), error) {
	m := l.keyMutex(key)
	m.Lock()
	return m.Unlock, nil
}

// Redis implements a simple SETNX-with-expiry distributed lock, for
// brokers sharing a data root across processes or hosts.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
	retry  time.Duration
}

// NewRedis builds a Redis-backed Locker against addr.
func NewRedis(addr string) *Redis {
	return &Redis{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		ttl:    30 * time.Second,
		retry:  25 * time.Millisecond,
	}
}

func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	lockKey := fmt.Sprintf("broker:lock:%s", key)
	for {
		ok, err := r.client.SetNX(ctx, lockKey, 1, r.ttl).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(r.retry):
		}
	}
	release := func() {
		r.client.Del(context.Background(), lockKey)
	}
	return release, nil
}
