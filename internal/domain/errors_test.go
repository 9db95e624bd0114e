package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorsMatchByKind(t *testing.T) {
	err := InsufficientStock("p-1", decimal.NewFromInt(0), decimal.NewFromInt(1))

	assert.ErrorIs(t, err, ErrInsufficientStock)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, fmt.Errorf("sale: %w", err), ErrInsufficientStock)
	assert.Equal(t, KindInsufficientStock, KindOf(fmt.Errorf("wrapped: %w", err)))
}

func TestDiscountInvalidCarriesReason(t *testing.T) {
	err := DiscountInvalid(DiscountReasonExpired)

	var de *Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, DiscountReasonExpired, de.Reason)
	assert.Equal(t, "discount code has expired", de.Error())
}

func TestAsErrorHidesForeignErrors(t *testing.T) {
	cause := errors.New("pq: relation \"sales\" does not exist")
	err := AsError(cause)

	assert.Equal(t, KindInternal, KindOf(err))
	assert.Equal(t, "internal error", err.Error())
	assert.ErrorIs(t, err, cause)

	domainErr := Validation("quantity must be positive")
	assert.Same(t, domainErr, AsError(domainErr))
	assert.NoError(t, AsError(nil))
}

func TestPaginate(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}

	page := Paginate(items, ListFilter{Page: 2, Limit: 2})
	assert.Equal(t, []int{3, 4}, page.Items)
	assert.Equal(t, 5, page.Total)

	beyond := Paginate(items, ListFilter{Page: 9, Limit: 2})
	assert.Empty(t, beyond.Items)
	assert.Equal(t, DefaultPageLimit, Paginate(items, ListFilter{}).Limit)
}

func TestCashMovementEffect(t *testing.T) {
	amount := decimal.RequireFromString("20.00")

	assert.True(t, CashMovement{Kind: CashSale, Amount: amount}.Effect().Equal(amount))
	assert.True(t, CashMovement{Kind: CashDeposit, Amount: amount}.Effect().Equal(amount))
	assert.True(t, CashMovement{Kind: CashReturn, Amount: amount}.Effect().Equal(amount.Neg()))
	assert.True(t, CashMovement{Kind: CashWithdrawal, Amount: amount}.Effect().Equal(amount.Neg()))
}
