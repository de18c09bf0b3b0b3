// Package idempotency remembers which external events were already applied,
// such as gateway payment callbacks that clients may relay more than once.
package idempotency

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/angelmondragon/orderflow-backend/pkg/redis"
)

const (
	processedScope = "evt:processed"
	// releaseTimeout bounds the cleanup after a failed handler.
	releaseTimeout = 2 * time.Second
)

// Store is the Redis surface the guard needs.
type Store interface {
	SetNX(context.Context, string, any, time.Duration) (bool, error)
	Del(context.Context, ...string) error
	IdempotencyKey(scope, id string) string
}

var _ Store = (redis.IdempotencyStore)(nil)

// Guard marks events per consumer with SETNX under
// of:idempotency:evt:processed:<consumer>:<id>. A mark outlives the TTL only
// if the event was applied; failures clear it.
type Guard struct {
	store Store
	ttl   time.Duration
}

// NewGuard builds a guard whose marks expire after ttl. Zero keeps them forever.
func NewGuard(store Store, ttl time.Duration) (*Guard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	return &Guard{store: store, ttl: ttl}, nil
}

// ProcessOnce runs fn unless the event was already claimed. It reports
// duplicate=true without calling fn for a repeat. When fn fails the claim is
// dropped so a later delivery can try again.
func (g *Guard) ProcessOnce(ctx context.Context, consumer, eventID string, fn func(context.Context) error) (duplicate bool, err error) {
	key, err := g.key(consumer, eventID)
	if err != nil {
		return false, err
	}
	claimed, err := g.store.SetNX(ctx, key, "1", g.ttl)
	if err != nil {
		return false, err
	}
	if !claimed {
		return true, nil
	}

	if err := fn(ctx); err != nil {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
		defer cancel()
		if delErr := g.store.Del(releaseCtx, key); delErr != nil {
			return false, errors.Join(err, delErr)
		}
		return false, err
	}
	return false, nil
}

func (g *Guard) key(consumer, eventID string) (string, error) {
	consumer = strings.TrimSpace(consumer)
	eventID = strings.TrimSpace(eventID)
	if consumer == "" {
		return "", errors.New("consumer name is required")
	}
	if eventID == "" {
		return "", errors.New("event id is required")
	}
	return g.store.IdempotencyKey(processedScope+":"+consumer, eventID), nil
}
