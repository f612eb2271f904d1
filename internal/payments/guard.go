package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mercaline/storefront-backend/pkg/redis"
)

// CallbackGuard deduplicates gateway callbacks at the edge. It is an
// optimization only; the ledger's unique reference index remains the
// authoritative replay barrier.
type CallbackGuard struct {
	store redis.IdempotencyStore
	ttl   time.Duration
	scope string
}

func NewCallbackGuard(store redis.IdempotencyStore, ttl time.Duration, scope string) (*CallbackGuard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	if scope == "" {
		return nil, errors.New("scope is required")
	}
	return &CallbackGuard{
		store: store,
		ttl:   ttl,
		scope: scope,
	}, nil
}

func (g *CallbackGuard) CheckAndMark(ctx context.Context, paymentID string) (bool, error) {
	if paymentID == "" {
		return false, errors.New("payment id is required")
	}
	key := g.store.IdempotencyKey(g.scope, paymentID)
	set, err := g.store.SetNX(ctx, key, "1", g.ttl)
	if err != nil {
		return false, fmt.Errorf("set idempotency key: %w", err)
	}
	return !set, nil
}

func (g *CallbackGuard) Delete(ctx context.Context, paymentID string) error {
	if paymentID == "" {
		return errors.New("payment id is required")
	}
	key := g.store.IdempotencyKey(g.scope, paymentID)
	return g.store.Del(ctx, key)
}
