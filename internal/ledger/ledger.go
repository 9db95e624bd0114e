// Package ledger is the only writer of product stock. Every change goes
// through ApplyMovement, or is traced with RecordTrace, inside the caller's
// transaction.
package ledger

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"poscore/backend/internal/domain"
	"poscore/backend/internal/store"
	"poscore/backend/internal/xid"
)

type Ledger struct {
	now func() time.Time
}

func New(now func() time.Time) *Ledger {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Ledger{now: now}
}

// MovementInput describes one stock event. For ADJUST, Quantity is the target
// absolute stock rather than a change.
type MovementInput struct {
	ProductID   string
	Kind        domain.MovementKind
	Quantity    decimal.Decimal
	Reason      string
	ReferenceID string
	ActorID     string
}

// ApplyMovement locks the product, mutates its stock and appends the ledger
// entry. A rejected movement writes nothing.
func (l *Ledger) ApplyMovement(ctx context.Context, tx store.Tx, in MovementInput) (domain.InventoryMovement, error) {
	if err := checkInput(in); err != nil {
		return domain.InventoryMovement{}, err
	}
	if in.Kind == domain.MovementAdjust && in.Quantity.IsNegative() {
		return domain.InventoryMovement{}, domain.InvalidAdjustment("adjustment target stock cannot be negative")
	}

	product, err := tx.LockProduct(ctx, in.ProductID)
	if err != nil {
		return domain.InventoryMovement{}, err
	}

	var delta decimal.Decimal
	switch in.Kind {
	case domain.MovementIn:
		delta = in.Quantity
	case domain.MovementOut:
		delta = in.Quantity.Neg()
	case domain.MovementAdjust:
		delta = in.Quantity.Sub(product.Stock)
	}
	after := product.Stock.Add(delta)
	if after.IsNegative() {
		return domain.InventoryMovement{}, domain.InsufficientStock(product.ID, product.Stock, in.Quantity)
	}

	if err := tx.SetProductStock(ctx, product.ID, after); err != nil {
		return domain.InventoryMovement{}, err
	}
	movement := l.movement(in, delta, after)
	if err := tx.InsertMovement(ctx, movement); err != nil {
		return domain.InventoryMovement{}, err
	}
	return movement, nil
}

// RecordTrace appends an IN or OUT entry for a stock change the caller has
// already written, leaving stock untouched.
func (l *Ledger) RecordTrace(ctx context.Context, tx store.Tx, in MovementInput) (domain.InventoryMovement, error) {
	if err := checkInput(in); err != nil {
		return domain.InventoryMovement{}, err
	}
	if in.Kind == domain.MovementAdjust {
		return domain.InventoryMovement{}, domain.Validation("adjustments cannot be traced, apply them instead")
	}
	product, err := tx.GetProduct(ctx, in.ProductID)
	if err != nil {
		return domain.InventoryMovement{}, err
	}

	delta := in.Quantity
	if in.Kind == domain.MovementOut {
		delta = delta.Neg()
	}
	movement := l.movement(in, delta, product.Stock)
	if err := tx.InsertMovement(ctx, movement); err != nil {
		return domain.InventoryMovement{}, err
	}
	return movement, nil
}

func (l *Ledger) movement(in MovementInput, delta decimal.Decimal, after decimal.Decimal) domain.InventoryMovement {
	return domain.InventoryMovement{
		ID:          xid.New("mov"),
		ProductID:   in.ProductID,
		Kind:        in.Kind,
		Quantity:    delta.Abs(),
		Delta:       delta,
		StockAfter:  after,
		Reason:      strings.TrimSpace(in.Reason),
		ReferenceID: in.ReferenceID,
		ActorID:     in.ActorID,
		CreatedAt:   l.now(),
	}
}

func checkInput(in MovementInput) error {
	if strings.TrimSpace(in.ProductID) == "" {
		return domain.Validation("product_id is required")
	}
	if !in.Kind.Valid() {
		return domain.Validation("unknown movement kind %q", in.Kind)
	}
	if in.Kind != domain.MovementAdjust && !in.Quantity.IsPositive() {
		return domain.Validation("quantity must be positive")
	}
	if !in.Quantity.Round(3).Equal(in.Quantity) {
		return domain.Validation("quantity must have at most 3 decimal places")
	}
	return nil
}

// Reconcile replays the signed deltas of a product's movements and compares
// the result with the stored stock.
func Reconcile(product domain.Product, movements []domain.InventoryMovement) domain.StockReconciliation {
	ledgerStock := decimal.Zero
	counted := 0
	for _, m := range movements {
		if m.ProductID != product.ID {
			continue
		}
		ledgerStock = ledgerStock.Add(m.Delta)
		counted++
	}
	diff := product.Stock.Sub(ledgerStock)
	return domain.StockReconciliation{
		ProductID:   product.ID,
		Stock:       product.Stock,
		LedgerStock: ledgerStock,
		Difference:  diff,
		Movements:   counted,
		Consistent:  diff.IsZero(),
	}
}
