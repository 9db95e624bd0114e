package cache

import (
	"context"
	"time"

	"poscore/backend/internal/domain"
)

// BalanceCache holds derived cash-session balances. Entries are copies of a
// value recomputed from the movement log and are dropped on every change.
//
// Every session carries a generation that Invalidate bumps. A reader takes the
// generation before it reads the log and hands it back to Set, which stores
// nothing once the generation has moved on. A fill that raced a committed
// movement is therefore discarded instead of outliving the invalidation.
type BalanceCache interface {
	Get(ctx context.Context, sessionID string) (*domain.CashBalance, bool, error)
	Generation(ctx context.Context, sessionID string) (int64, error)
	Set(ctx context.Context, balance domain.CashBalance, generation int64, ttl time.Duration) error
	Invalidate(ctx context.Context, sessionID string) error
}

type NoopBalanceCache struct{}

func (NoopBalanceCache) Get(_ context.Context, _ string) (*domain.CashBalance, bool, error) {
	return nil, false, nil
}

func (NoopBalanceCache) Generation(_ context.Context, _ string) (int64, error) {
	return 0, nil
}

func (NoopBalanceCache) Set(_ context.Context, _ domain.CashBalance, _ int64, _ time.Duration) error {
	return nil
}

func (NoopBalanceCache) Invalidate(_ context.Context, _ string) error {
	return nil
}

func balanceKey(sessionID string) string {
	return "poscore:cash-balance:" + sessionID
}

func generationKey(sessionID string) string {
	return "poscore:cash-balance-gen:" + sessionID
}
