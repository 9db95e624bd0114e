package discount

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"poscore/backend/internal/domain"
	"poscore/backend/internal/store"
	"poscore/backend/internal/store/memory"
)

var now = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

func ptrTime(t time.Time) *time.Time { return &t }
func ptrInt(n int) *int              { return &n }

func newValidator(t *testing.T, codes ...domain.DiscountCode) (*Validator, *memory.Store) {
	t.Helper()
	ctx := context.Background()
	repo := memory.New()
	require.NoError(t, repo.InTx(ctx, func(tx store.Tx) error {
		for _, c := range codes {
			if err := tx.CreateDiscount(ctx, c); err != nil {
				return err
			}
		}
		return nil
	}))
	return NewValidator(repo, func() time.Time { return now }), repo
}

func TestValidateReasonsInOrder(t *testing.T) {
	v, _ := newValidator(t,
		domain.DiscountCode{ID: "d1", Code: "OFF", Active: false, StartsAt: ptrTime(now.Add(time.Hour))},
		domain.DiscountCode{ID: "d2", Code: "SOON", Active: true, StartsAt: ptrTime(now.Add(time.Hour)), EndsAt: ptrTime(now.Add(-time.Hour))},
		domain.DiscountCode{ID: "d3", Code: "OLD", Active: true, EndsAt: ptrTime(now.Add(-time.Second)), UsageCap: ptrInt(1), UsageCount: 1},
		domain.DiscountCode{ID: "d4", Code: "FULL", Active: true, UsageCap: ptrInt(2), UsageCount: 2},
		domain.DiscountCode{ID: "d5", Code: "EDGE", Active: true, StartsAt: ptrTime(now), EndsAt: ptrTime(now)},
	)
	ctx := context.Background()

	cases := map[string]string{
		"missing": domain.DiscountReasonNotFound,
		"off":     domain.DiscountReasonInactive,
		"soon":    domain.DiscountReasonNotYetValid,
		"old":     domain.DiscountReasonExpired,
		"full":    domain.DiscountReasonCapReached,
	}
	for code, reason := range cases {
		res, err := v.Validate(ctx, code)
		require.NoError(t, err)
		assert.False(t, res.Valid, code)
		assert.Equal(t, reason, res.Reason, code)
	}

	res, err := v.Validate(ctx, " edge ")
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Equal(t, "d5", res.Discount.ID)
}

func TestComputeAmount(t *testing.T) {
	pct := domain.DiscountCode{Kind: domain.DiscountPercentage, Value: decimal.NewFromInt(15)}
	fixed := domain.DiscountCode{Kind: domain.DiscountFixed, Value: decimal.NewFromInt(50)}

	assert.Equal(t, "15.02", ComputeAmount(pct, decimal.RequireFromString("100.10")).StringFixed(2))
	assert.Equal(t, "50.00", ComputeAmount(fixed, decimal.NewFromInt(80)).StringFixed(2))
	assert.Equal(t, "30.00", ComputeAmount(fixed, decimal.NewFromInt(30)).StringFixed(2))
	assert.True(t, ComputeAmount(fixed, decimal.Zero).IsZero())

	over := domain.DiscountCode{Kind: domain.DiscountPercentage, Value: decimal.NewFromInt(150)}
	assert.Equal(t, "20.00", ComputeAmount(over, decimal.NewFromInt(20)).StringFixed(2))
}

func TestUsageCounterSymmetryAndFloor(t *testing.T) {
	v, repo := newValidator(t, domain.DiscountCode{ID: "d1", Code: "CAP3", Active: true, UsageCap: ptrInt(3)})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, v.IncrementUsage(ctx, nil, "d1"))
	}
	assert.ErrorIs(t, v.IncrementUsage(ctx, nil, "d1"), domain.ErrDiscountInvalid)

	for i := 0; i < 5; i++ {
		require.NoError(t, v.DecrementUsage(ctx, nil, "d1"))
	}
	d, err := repo.GetDiscountByCode(ctx, "cap3")
	require.NoError(t, err)
	assert.Equal(t, 0, d.UsageCount)
}

func TestIncrementJoinsCallerTransaction(t *testing.T) {
	v, repo := newValidator(t, domain.DiscountCode{ID: "d1", Code: "TX", Active: true})
	ctx := context.Background()

	err := repo.InTx(ctx, func(tx store.Tx) error {
		if err := v.IncrementUsage(ctx, tx, "d1"); err != nil {
			return err
		}
		res, err := v.ValidateInTx(ctx, tx, "tx")
		if err != nil {
			return err
		}
		assert.True(t, res.Valid)
		return domain.InvalidState("abort")
	})
	require.ErrorIs(t, err, domain.ErrInvalidState)

	d, err := repo.GetDiscountByCode(ctx, "TX")
	require.NoError(t, err)
	assert.Equal(t, 0, d.UsageCount)
}

func TestRevalidateByIDAppliesCurrentClock(t *testing.T) {
	v, repo := newValidator(t,
		domain.DiscountCode{ID: "d1", Code: "LIVE", Active: true, EndsAt: ptrTime(now.Add(time.Minute))},
		domain.DiscountCode{ID: "d2", Code: "GONE", Active: true, EndsAt: ptrTime(now.Add(-time.Minute))},
	)
	ctx := context.Background()

	err := repo.InTx(ctx, func(tx store.Tx) error {
		live, err := v.RevalidateInTx(ctx, tx, "d1")
		require.NoError(t, err)
		assert.True(t, live.Valid)

		gone, err := v.RevalidateInTx(ctx, tx, "d2")
		require.NoError(t, err)
		assert.False(t, gone.Valid)
		assert.Equal(t, domain.DiscountReasonExpired, gone.Reason)

		missing, err := v.RevalidateInTx(ctx, tx, "d9")
		require.NoError(t, err)
		assert.Equal(t, domain.DiscountReasonNotFound, missing.Reason)
		return nil
	})
	require.NoError(t, err)
}
