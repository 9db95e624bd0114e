package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"poscore/backend/internal/domain"
	"poscore/backend/internal/store"
	"poscore/backend/internal/store/memory"
)

var fixedNow = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func setup(t *testing.T, stock int64) (*memory.Store, *Ledger, string) {
	t.Helper()
	ctx := context.Background()
	repo := memory.New()
	l := New(func() time.Time { return fixedNow })
	id := "prd-1"
	require.NoError(t, repo.InTx(ctx, func(tx store.Tx) error {
		if err := tx.CreateProduct(ctx, domain.Product{ID: id, SKU: "SKU-1", Name: "Widget", Stock: decimal.NewFromInt(stock), Active: true}); err != nil {
			return err
		}
		if stock == 0 {
			return nil
		}
		_, err := l.RecordTrace(ctx, tx, MovementInput{ProductID: id, Kind: domain.MovementIn, Quantity: decimal.NewFromInt(stock), ActorID: "test"})
		return err
	}))
	return repo, l, id
}

func apply(repo *memory.Store, l *Ledger, in MovementInput) (domain.InventoryMovement, error) {
	ctx := context.Background()
	var out domain.InventoryMovement
	err := repo.InTx(ctx, func(tx store.Tx) error {
		var err error
		out, err = l.ApplyMovement(ctx, tx, in)
		return err
	})
	return out, err
}

func stockOf(t *testing.T, repo *memory.Store, id string) decimal.Decimal {
	t.Helper()
	p, err := repo.GetProduct(context.Background(), id)
	require.NoError(t, err)
	return p.Stock
}

func TestApplyMovementOutRejectsOverdraw(t *testing.T) {
	repo, l, id := setup(t, 5)

	m, err := apply(repo, l, MovementInput{ProductID: id, Kind: domain.MovementOut, Quantity: decimal.NewFromInt(5), ActorID: "ana"})
	require.NoError(t, err)
	assert.True(t, m.Delta.Equal(decimal.NewFromInt(-5)))
	assert.True(t, m.Quantity.Equal(decimal.NewFromInt(5)))
	assert.True(t, m.StockAfter.IsZero())

	_, err = apply(repo, l, MovementInput{ProductID: id, Kind: domain.MovementOut, Quantity: decimal.NewFromInt(1), ActorID: "ana"})
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)
	assert.True(t, stockOf(t, repo, id).IsZero())

	movements, err := repo.ListProductMovements(context.Background(), id)
	require.NoError(t, err)
	assert.Len(t, movements, 2)
}

func TestApplyMovementAdjustStoresSignedDelta(t *testing.T) {
	repo, l, id := setup(t, 10)

	m, err := apply(repo, l, MovementInput{ProductID: id, Kind: domain.MovementAdjust, Quantity: decimal.NewFromInt(7), Reason: "count"})
	require.NoError(t, err)
	assert.True(t, m.Delta.Equal(decimal.NewFromInt(-3)))
	assert.True(t, m.Quantity.Equal(decimal.NewFromInt(3)))
	assert.True(t, stockOf(t, repo, id).Equal(decimal.NewFromInt(7)))

	m, err = apply(repo, l, MovementInput{ProductID: id, Kind: domain.MovementAdjust, Quantity: decimal.NewFromInt(12)})
	require.NoError(t, err)
	assert.True(t, m.Delta.Equal(decimal.NewFromInt(5)))

	_, err = apply(repo, l, MovementInput{ProductID: id, Kind: domain.MovementAdjust, Quantity: decimal.NewFromInt(-1)})
	assert.ErrorIs(t, err, domain.ErrInvalidAdjustment)
	assert.True(t, stockOf(t, repo, id).Equal(decimal.NewFromInt(12)))
}

func TestApplyMovementValidatesInput(t *testing.T) {
	repo, l, id := setup(t, 1)

	cases := []MovementInput{
		{ProductID: id, Kind: domain.MovementIn, Quantity: decimal.Zero},
		{ProductID: id, Kind: domain.MovementOut, Quantity: decimal.NewFromInt(-2)},
		{ProductID: id, Kind: "MOVE", Quantity: decimal.NewFromInt(1)},
		{ProductID: "", Kind: domain.MovementIn, Quantity: decimal.NewFromInt(1)},
		{ProductID: id, Kind: domain.MovementIn, Quantity: decimal.RequireFromString("0.0004")},
	}
	for _, in := range cases {
		_, err := apply(repo, l, in)
		assert.ErrorIs(t, err, domain.ErrValidation, "input %+v", in)
	}

	_, err := apply(repo, l, MovementInput{ProductID: "ghost", Kind: domain.MovementIn, Quantity: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRecordTraceLeavesStockAlone(t *testing.T) {
	repo, l, id := setup(t, 4)
	ctx := context.Background()

	require.NoError(t, repo.InTx(ctx, func(tx store.Tx) error {
		if err := tx.SetProductStock(ctx, id, decimal.NewFromInt(1)); err != nil {
			return err
		}
		m, err := l.RecordTrace(ctx, tx, MovementInput{ProductID: id, Kind: domain.MovementOut, Quantity: decimal.NewFromInt(3)})
		if err != nil {
			return err
		}
		assert.True(t, m.StockAfter.Equal(decimal.NewFromInt(1)))
		return nil
	}))
	assert.True(t, stockOf(t, repo, id).Equal(decimal.NewFromInt(1)))

	err := repo.InTx(ctx, func(tx store.Tx) error {
		_, err := l.RecordTrace(ctx, tx, MovementInput{ProductID: id, Kind: domain.MovementAdjust, Quantity: decimal.NewFromInt(1)})
		return err
	})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestRejectedMovementRollsBackEarlierWrites(t *testing.T) {
	repo, l, id := setup(t, 2)
	ctx := context.Background()

	err := repo.InTx(ctx, func(tx store.Tx) error {
		if _, err := l.ApplyMovement(ctx, tx, MovementInput{ProductID: id, Kind: domain.MovementIn, Quantity: decimal.NewFromInt(3)}); err != nil {
			return err
		}
		_, err := l.ApplyMovement(ctx, tx, MovementInput{ProductID: id, Kind: domain.MovementOut, Quantity: decimal.NewFromInt(9)})
		return err
	})
	require.True(t, errors.Is(err, domain.ErrInsufficientStock))
	assert.True(t, stockOf(t, repo, id).Equal(decimal.NewFromInt(2)))

	movements, err := repo.ListProductMovements(ctx, id)
	require.NoError(t, err)
	assert.Len(t, movements, 1)
}

func TestRandomSequencesKeepStockNonNegativeAndReconciled(t *testing.T) {
	faker := gofakeit.New(42)
	kinds := []string{string(domain.MovementIn), string(domain.MovementOut), string(domain.MovementAdjust)}

	for run := 0; run < 20; run++ {
		repo, l, id := setup(t, int64(faker.Number(0, 20)))
		for step := 0; step < 60; step++ {
			kind := domain.MovementKind(faker.RandomString(kinds))
			qty := decimal.NewFromFloat(faker.Float64Range(0, 15)).Round(3)
			if kind != domain.MovementAdjust && !qty.IsPositive() {
				qty = decimal.NewFromInt(1)
			}
			before := stockOf(t, repo, id)

			_, err := apply(repo, l, MovementInput{ProductID: id, Kind: kind, Quantity: qty, ActorID: "fuzz"})
			after := stockOf(t, repo, id)
			if err != nil {
				require.ErrorIs(t, err, domain.ErrInsufficientStock)
				assert.True(t, after.Equal(before), "rejected movement changed stock")
			}
			require.False(t, after.IsNegative(), "stock went negative at run %d step %d", run, step)
		}

		product, err := repo.GetProduct(context.Background(), id)
		require.NoError(t, err)
		movements, err := repo.ListProductMovements(context.Background(), id)
		require.NoError(t, err)
		rec := Reconcile(*product, movements)
		assert.True(t, rec.Consistent, "run %d: stock %s ledger %s", run, rec.Stock, rec.LedgerStock)
	}
}

func TestReconcileReportsDrift(t *testing.T) {
	product := domain.Product{ID: "p", Stock: decimal.NewFromInt(4)}
	movements := []domain.InventoryMovement{
		{ProductID: "p", Delta: decimal.NewFromInt(5)},
		{ProductID: "p", Delta: decimal.NewFromInt(-2)},
		{ProductID: "other", Delta: decimal.NewFromInt(100)},
	}

	rec := Reconcile(product, movements)
	assert.False(t, rec.Consistent)
	assert.True(t, rec.LedgerStock.Equal(decimal.NewFromInt(3)))
	assert.True(t, rec.Difference.Equal(decimal.NewFromInt(1)))
	assert.Equal(t, 2, rec.Movements)
}
