package cron

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/angelmondragon/orderflow-backend/pkg/lock"
)

// Lock coordinates exclusive cron runs.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// CycleLock holds one key of a lock.Locker for the length of a cron cycle.
type CycleLock struct {
	locker  lock.Locker
	key     string
	mu      sync.Mutex
	release func()
}

// NewCycleLock builds a cycle lock on the given key.
func NewCycleLock(locker lock.Locker, key string) (*CycleLock, error) {
	if locker == nil {
		return nil, errors.New("locker required for cron lock")
	}
	if key == "" {
		return nil, errors.New("lock key is required")
	}
	return &CycleLock{locker: locker, key: key}, nil
}

// Acquire reports false when another replica already runs the cycle.
func (l *CycleLock) Acquire(ctx context.Context) (bool, error) {
	release, err := l.locker.Acquire(ctx, l.key)
	if err != nil {
		if errors.Is(err, lock.ErrNotAcquired) {
			return false, nil
		}
		return false, fmt.Errorf("acquire cron lock: %w", err)
	}
	l.mu.Lock()
	l.release = release
	l.mu.Unlock()
	return true, nil
}

// Release frees the lock if this instance holds it.
func (l *CycleLock) Release(context.Context) error {
	l.mu.Lock()
	release := l.release
	l.release = nil
	l.mu.Unlock()
	if release != nil {
		release()
	}
	return nil
}
