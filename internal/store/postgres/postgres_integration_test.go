//go:build integration

package postgres

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"poscore/backend/internal/domain"
	"poscore/backend/internal/store"
	"poscore/backend/internal/xid"
)

// newIntegrationStore connects to POSCORE_TEST_DATABASE_URL when set and
// starts a throwaway postgres container otherwise.
func newIntegrationStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()

	dsn := os.Getenv("POSCORE_TEST_DATABASE_URL")
	if dsn == "" {
		container, err := tcpostgres.Run(ctx,
			"postgres:16-alpine",
			tcpostgres.WithDatabase("poscore_test"),
			tcpostgres.WithUsername("postgres"),
			tcpostgres.WithPassword("postgres"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(60*time.Second)),
		)
		require.NoError(t, err, "start postgres container")
		t.Cleanup(func() { _ = container.Terminate(context.Background()) })

		dsn, err = container.ConnectionString(ctx, "sslmode=disable")
		require.NoError(t, err)
	}

	s, err := New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, Migrate(ctx, s.DB()))
	return s
}

func seedProduct(t *testing.T, s *Store, stock int64) domain.Product {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()
	p := domain.Product{
		ID:        xid.New("prd"),
		SKU:       xid.New("SKU"),
		Name:      "Integration product",
		Stock:     decimal.NewFromInt(stock),
		SalePrice: decimal.RequireFromString("2.50"),
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, s.InTx(ctx, func(tx store.Tx) error { return tx.CreateProduct(ctx, p) }))
	return p
}

func TestIntegrationRollbackLeavesNoTrace(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()
	p := seedProduct(t, s, 10)

	err := s.InTx(ctx, func(tx store.Tx) error {
		if _, err := tx.LockProduct(ctx, p.ID); err != nil {
			return err
		}
		if err := tx.SetProductStock(ctx, p.ID, decimal.NewFromInt(4)); err != nil {
			return err
		}
		if err := tx.InsertMovement(ctx, domain.InventoryMovement{
			ID: xid.New("mov"), ProductID: p.ID, Kind: domain.MovementOut,
			Quantity: decimal.NewFromInt(6), Delta: decimal.NewFromInt(-6), StockAfter: decimal.NewFromInt(4),
			ActorID: "it", CreatedAt: time.Now().UTC(),
		}); err != nil {
			return err
		}
		return domain.Validation("abort")
	})
	require.ErrorIs(t, err, domain.ErrValidation)

	got, err := s.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, got.Stock.Equal(decimal.NewFromInt(10)))
	movements, err := s.ListProductMovements(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, movements)
}

func TestIntegrationNegativeStockRejectedByCheck(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()
	p := seedProduct(t, s, 1)

	err := s.InTx(ctx, func(tx store.Tx) error {
		return tx.SetProductStock(ctx, p.ID, decimal.NewFromInt(-1))
	})
	require.Error(t, err)
}

func TestIntegrationOneOpenSessionPerActor(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()
	actor := xid.New("actor")

	open := func() error {
		return s.InTx(ctx, func(tx store.Tx) error {
			return tx.InsertCashSession(ctx, domain.CashSession{
				ID: xid.New("cs"), ActorID: actor, OpenedAt: time.Now().UTC(),
				OpeningFloat: decimal.NewFromInt(100), State: domain.CashSessionOpen,
			})
		})
	}
	require.NoError(t, open())
	assert.ErrorIs(t, open(), domain.ErrSessionAlreadyOpen)
}

func TestIntegrationConcurrentDecrementsSerializeOnRowLock(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()
	p := seedProduct(t, s, 5)

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.InTx(ctx, func(tx store.Tx) error {
				locked, err := tx.LockProduct(ctx, p.ID)
				if err != nil {
					return err
				}
				if locked.Stock.LessThan(decimal.NewFromInt(1)) {
					return domain.InsufficientStock(p.ID, locked.Stock, decimal.NewFromInt(1))
				}
				return tx.SetProductStock(ctx, p.ID, locked.Stock.Sub(decimal.NewFromInt(1)))
			})
		}()
	}
	wg.Wait()
	close(errs)

	succeeded, rejected := 0, 0
	for err := range errs {
		switch {
		case err == nil:
			succeeded++
		case assert.ErrorIs(t, err, domain.ErrInsufficientStock):
			rejected++
		}
	}
	assert.Equal(t, 5, succeeded)
	assert.Equal(t, 5, rejected)

	got, err := s.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, got.Stock.IsZero())
}

func TestIntegrationSaleRoundTripWithLines(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()
	p := seedProduct(t, s, 5)
	now := time.Now().UTC()

	sale := domain.Sale{
		ID: xid.New("sale"), InvoiceNumber: xid.New("F"), PaymentMethodID: "pm-cash", ActorID: "it",
		Subtotal: decimal.RequireFromString("5.00"), Total: decimal.RequireFromString("5.00"),
		State: domain.SaleCompleted, CreatedAt: now, CompletedAt: &now,
		Lines: []domain.SaleLine{{
			ID: xid.New("sl"), ProductID: p.ID, Quantity: decimal.NewFromInt(2),
			UnitPrice: decimal.RequireFromString("2.50"), Subtotal: decimal.RequireFromString("5.00"),
		}},
	}
	require.NoError(t, s.InTx(ctx, func(tx store.Tx) error { return tx.InsertSale(ctx, sale) }))

	got, err := s.GetSale(ctx, sale.ID)
	require.NoError(t, err)
	require.Len(t, got.Lines, 1)
	assert.True(t, got.Lines[0].Quantity.Equal(decimal.NewFromInt(2)))
	assert.Equal(t, "pm-cash", got.PaymentMethodID)
	assert.Empty(t, got.CashSessionID)
}
