package validation

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"poscore/backend/internal/domain"
)

func TestStructAcceptsValidSale(t *testing.T) {
	v := New()
	err := v.Struct(domain.SaleCreateRequest{
		Lines: []domain.SaleLineRequest{{ProductID: "prd-1", Quantity: decimal.NewFromInt(2)}},
	})
	assert.NoError(t, err)
}

func TestStructRejectsNonPositiveQuantity(t *testing.T) {
	v := New()
	err := v.Struct(domain.SaleCreateRequest{
		Lines: []domain.SaleLineRequest{{ProductID: "prd-1", Quantity: decimal.Zero}},
	})
	require.ErrorIs(t, err, domain.ErrValidation)
	assert.Contains(t, err.Error(), "lines[0].quantity")
	assert.Contains(t, err.Error(), "greater than zero")
}

func TestStructRejectsNegativeAmount(t *testing.T) {
	v := New()
	err := v.Struct(domain.CashSessionOpenRequest{OpeningFloat: decimal.RequireFromString("-0.01")})
	require.ErrorIs(t, err, domain.ErrValidation)
	assert.Contains(t, err.Error(), "opening_float")
}

func TestStructRejectsUnknownCashKind(t *testing.T) {
	v := New()
	err := v.Struct(domain.CashMovementRequest{Kind: domain.CashSale, Amount: decimal.NewFromInt(5), Concept: "float top-up"})
	require.ErrorIs(t, err, domain.ErrValidation)
	assert.Contains(t, err.Error(), "kind")
}

func TestStructRequiresLines(t *testing.T) {
	v := New()
	err := v.Struct(domain.PurchaseCreateRequest{SupplierID: "sup-1"})
	require.ErrorIs(t, err, domain.ErrValidation)
	assert.Contains(t, err.Error(), "lines")
}

func TestStructRejectsQuantityBeyondStoredScale(t *testing.T) {
	v := New()
	err := v.Struct(domain.SaleCreateRequest{
		Lines: []domain.SaleLineRequest{{ProductID: "prd-1", Quantity: decimal.RequireFromString("0.0005")}},
	})
	require.ErrorIs(t, err, domain.ErrValidation)
	assert.Contains(t, err.Error(), "lines[0].quantity")
	assert.Contains(t, err.Error(), "at most 3 decimal places")

	err = v.Struct(domain.PurchaseCreateRequest{
		SupplierID: "sup-1",
		Lines:      []domain.PurchaseLineRequest{{ProductID: "prd-1", Quantity: decimal.RequireFromString("1.2345"), UnitCost: decimal.NewFromInt(1)}},
	})
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestStructAcceptsTrailingZerosWithinScale(t *testing.T) {
	v := New()
	err := v.Struct(domain.SaleCreateRequest{
		Lines: []domain.SaleLineRequest{{ProductID: "prd-1", Quantity: decimal.RequireFromString("1.5000")}},
	})
	assert.NoError(t, err)
}

func TestStructRejectsMoneyBeyondCents(t *testing.T) {
	v := New()
	err := v.Struct(domain.CashMovementRequest{Kind: domain.CashDeposit, Amount: decimal.RequireFromString("10.005"), Concept: "float top-up"})
	require.ErrorIs(t, err, domain.ErrValidation)
	assert.Contains(t, err.Error(), "amount")
	assert.Contains(t, err.Error(), "at most 2 decimal places")

	err = v.Struct(domain.CashSessionOpenRequest{OpeningFloat: decimal.RequireFromString("100.50")})
	assert.NoError(t, err)
}
