package cache

import (
	"context"
	"time"
)

// BalanceCache is a read-side cache for on-hand quantities, used by dashboard
// style endpoints. It is never consulted inside a sale: availability checks
// always go against the authoritative balance rows. Writers invalidate after
// commit, so the cache is at worst briefly stale.
type BalanceCache interface {
	Get(ctx context.Context, productID string) (int, bool, error)
	Set(ctx context.Context, productID string, quantity int, ttl time.Duration) error
	Invalidate(ctx context.Context, productIDs ...string) error
}

type NoopBalanceCache struct{}

func (NoopBalanceCache) Get(_ context.Context, _ string) (int, bool, error) {
	return 0, false, nil
}

func (NoopBalanceCache) Set(_ context.Context, _ string, _ int, _ time.Duration) error {
	return nil
}

func (NoopBalanceCache) Invalidate(_ context.Context, _ ...string) error {
	return nil
}
