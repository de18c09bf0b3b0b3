// Package lock provides keyed mutual exclusion, in-process or across replicas via Redis.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/orderflow-backend/pkg/logger"
)

// ErrNotAcquired is returned when the key stayed held for the whole wait budget.
var ErrNotAcquired = errors.New("lock not acquired")

// Locker serializes work per key. The returned release func is safe to call more than once.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// Local is an in-process keyed mutex. Entries are dropped once no caller holds or waits on them.
type Local struct {
	mu      sync.Mutex
	entries map[string]*localEntry
}

type localEntry struct {
	sem  chan struct{}
	refs int
}

func NewLocal() *Local {
	return &Local{entries: make(map[string]*localEntry)}
}

func (l *Local) Acquire(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	entry, ok := l.entries[key]
	if !ok {
		entry = &localEntry{sem: make(chan struct{}, 1)}
		l.entries[key] = entry
	}
	entry.refs++
	l.mu.Unlock()

	select {
	case entry.sem <- struct{}{}:
	case <-ctx.Done():
		l.unref(key, entry)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-entry.sem
			l.unref(key, entry)
		})
	}, nil
}

func (l *Local) unref(key string, entry *localEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry.refs--
	if entry.refs == 0 {
		delete(l.entries, key)
	}
}

// Store is the subset of the redis client the distributed locker needs.
type Store interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	DelIfValue(ctx context.Context, key, value string) (bool, error)
	LockKey(scope, id string) string
}

const (
	defaultTTL          = 30 * time.Second
	defaultWait         = 5 * time.Second
	defaultPollInterval = 25 * time.Millisecond
	releaseTimeout      = 2 * time.Second
)

// Redis implements Locker with SETNX + TTL; the TTL bounds how long a crashed holder blocks others.
type Redis struct {
	store Store
	scope string
	ttl   time.Duration
	wait  time.Duration
	poll  time.Duration
	logg  *logger.Logger
}

// RedisParams configure the distributed locker. Logger receives release
// failures and lost leases; without one they are dropped.
type RedisParams struct {
	Store  Store
	Scope  string
	TTL    time.Duration
	Wait   time.Duration
	Poll   time.Duration
	Logger *logger.Logger
}

func NewRedis(p RedisParams) (*Redis, error) {
	if p.Store == nil {
		return nil, errors.New("redis store required for lock")
	}
	if p.Scope == "" {
		return nil, errors.New("lock scope is required")
	}
	if p.TTL <= 0 {
		p.TTL = defaultTTL
	}
	if p.Wait <= 0 {
		p.Wait = defaultWait
	}
	if p.Poll <= 0 {
		p.Poll = defaultPollInterval
	}
	return &Redis{store: p.Store, scope: p.Scope, ttl: p.TTL, wait: p.Wait, poll: p.Poll, logg: p.Logger}, nil
}

func (l *Redis) Acquire(ctx context.Context, key string) (func(), error) {
	redisKey := l.store.LockKey(l.scope, key)
	owner := uuid.NewString()
	deadline := time.Now().Add(l.wait)

	for {
		ok, err := l.store.SetNX(ctx, redisKey, owner, l.ttl)
		if err != nil {
			return nil, fmt.Errorf("setnx: %w", err)
		}
		if ok {
			break
		}
		if !time.Now().Before(deadline) {
			return nil, ErrNotAcquired
		}
		timer := time.NewTimer(l.poll)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	releaseCtx := context.WithoutCancel(ctx)
	var once sync.Once
	return func() {
		once.Do(func() {
			rctx, cancel := context.WithTimeout(releaseCtx, releaseTimeout)
			defer cancel()
			l.release(rctx, redisKey, owner)
		})
	}, nil
}

// release deletes the key only while the owner value still matches, so a
// holder whose TTL lapsed cannot free a lock another replica now owns. A failed
// delete leaves the lease held until its TTL runs out.
func (l *Redis) release(ctx context.Context, key, owner string) {
	deleted, err := l.store.DelIfValue(ctx, key, owner)
	if l.logg == nil {
		return
	}
	logCtx := l.logg.WithField(ctx, "lock_key", key)
	switch {
	case err != nil:
		l.logg.Error(l.logg.WithField(logCtx, "ttl_ms", l.ttl.Milliseconds()), "lock.release_failed", fmt.Errorf("release lock: %w", err))
	case !deleted:
		l.logg.Warn(logCtx, "lock.lease_lost")
	}
}
