package cache

import (
	"context"
	"sync"
	"time"

	"poscore/backend/internal/domain"
)

// MemoryBalanceCache keeps balances in process. It only suits a single
// instance running against the in-memory store.
type MemoryBalanceCache struct {
	mu          sync.Mutex
	now         func() time.Time
	entries     map[string]memoryEntry
	generations map[string]int64
}

type memoryEntry struct {
	balance   domain.CashBalance
	expiresAt time.Time
}

func NewMemoryBalanceCache() *MemoryBalanceCache {
	return &MemoryBalanceCache{
		now:         time.Now,
		entries:     make(map[string]memoryEntry),
		generations: make(map[string]int64),
	}
}

func (c *MemoryBalanceCache) Get(_ context.Context, sessionID string) (*domain.CashBalance, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[sessionID]
	if !ok {
		return nil, false, nil
	}
	if !e.expiresAt.IsZero() && !c.now().Before(e.expiresAt) {
		delete(c.entries, sessionID)
		return nil, false, nil
	}
	b := e.balance
	return &b, true, nil
}

func (c *MemoryBalanceCache) Generation(_ context.Context, sessionID string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generations[sessionID], nil
}

func (c *MemoryBalanceCache) Set(_ context.Context, balance domain.CashBalance, generation int64, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generations[balance.SessionID] != generation {
		return nil
	}
	e := memoryEntry{balance: balance}
	if ttl > 0 {
		e.expiresAt = c.now().Add(ttl)
	}
	c.entries[balance.SessionID] = e
	return nil
}

func (c *MemoryBalanceCache) Invalidate(_ context.Context, sessionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generations[sessionID]++
	delete(c.entries, sessionID)
	return nil
}
