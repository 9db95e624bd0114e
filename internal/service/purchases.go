package service

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"poscore/backend/internal/domain"
	"poscore/backend/internal/ledger"
	"poscore/backend/internal/store"
	"poscore/backend/internal/xid"
)

// CreatePurchase records an order. Stock is untouched until it is received.
func (s *Service) CreatePurchase(ctx context.Context, req domain.PurchaseCreateRequest) (domain.Purchase, error) {
	defer s.metrics.Observe("purchase_create", time.Now())

	var purchase domain.Purchase
	err := func() error {
		actor, err := s.actor(ctx)
		if err != nil {
			return err
		}
		req.SupplierID = strings.TrimSpace(req.SupplierID)
		req.InvoiceNumber = strings.TrimSpace(req.InvoiceNumber)
		if err := s.validate(req); err != nil {
			return err
		}
		taxPct, err := s.taxPercent(req.TaxPercent)
		if err != nil {
			return err
		}

		return s.repo.InTx(ctx, func(tx store.Tx) error {
			supplier, err := tx.GetSupplier(ctx, req.SupplierID)
			if err != nil {
				return err
			}
			if !supplier.Active {
				return domain.NotFound("supplier", req.SupplierID)
			}

			purchase = domain.Purchase{
				ID:            xid.New("pur"),
				InvoiceNumber: req.InvoiceNumber,
				SupplierID:    supplier.ID,
				ActorID:       actor.Username,
				TaxPercent:    taxPct,
				State:         domain.PurchasePending,
				Notes:         strings.TrimSpace(req.Notes),
				CreatedAt:     s.now(),
			}
			subtotal := decimal.Zero
			for _, lr := range req.Lines {
				product, err := tx.GetProduct(ctx, strings.TrimSpace(lr.ProductID))
				if err != nil {
					return err
				}
				if !product.Active {
					return domain.NotFound("product", product.ID)
				}
				line := domain.PurchaseLine{
					ID:         xid.New("pl"),
					PurchaseID: purchase.ID,
					ProductID:  product.ID,
					Quantity:   lr.Quantity,
					UnitCost:   domain.RoundMoney(lr.UnitCost),
					Subtotal:   domain.RoundMoney(lr.UnitCost.Mul(lr.Quantity)),
				}
				purchase.Lines = append(purchase.Lines, line)
				subtotal = subtotal.Add(line.Subtotal)
			}
			purchase.Subtotal = subtotal
			purchase.TaxAmount = domain.PercentOf(subtotal, taxPct)
			purchase.Total = subtotal.Add(purchase.TaxAmount)
			return tx.InsertPurchase(ctx, purchase)
		})
	}()
	if err != nil {
		return domain.Purchase{}, s.fail(ctx, "purchase_create", err)
	}
	s.metrics.Purchase(string(purchase.State))
	return purchase, nil
}

// ReceivePurchase brings the ordered quantities into stock and sets each
// product's cost to the unit cost it was bought at.
func (s *Service) ReceivePurchase(ctx context.Context, id string) (domain.Purchase, error) {
	defer s.metrics.Observe("purchase_receive", time.Now())

	var purchase domain.Purchase
	err := s.repo.InTx(ctx, func(tx store.Tx) error {
		actor, err := s.actor(ctx)
		if err != nil {
			return err
		}
		current, err := tx.LockPurchase(ctx, strings.TrimSpace(id))
		if err != nil {
			return err
		}
		if current.State != domain.PurchasePending {
			return domain.InvalidState("purchase %s is %s and cannot be received", current.ID, current.State)
		}
		products, err := lockProducts(ctx, tx, purchaseProductIDs(current))
		if err != nil {
			return err
		}

		reason := "purchase received " + purchaseLabel(current)
		for _, line := range current.Lines {
			if _, err := s.ledger.ApplyMovement(ctx, tx, ledger.MovementInput{
				ProductID:   line.ProductID,
				Kind:        domain.MovementIn,
				Quantity:    line.Quantity,
				Reason:      reason,
				ReferenceID: current.ID,
				ActorID:     actor.Username,
			}); err != nil {
				return err
			}
			product := products[line.ProductID]
			if !product.AverageCost.Equal(line.UnitCost) {
				if err := tx.SetProductCost(ctx, line.ProductID, line.UnitCost); err != nil {
					return err
				}
				product.AverageCost = line.UnitCost
			}
		}

		receivedAt := s.now()
		current.State = domain.PurchaseCompleted
		current.ReceivedAt = &receivedAt
		purchase = *current
		s.countAfterCommit(tx, domain.MovementIn, len(current.Lines), "", false)
		return tx.UpdatePurchase(ctx, purchase)
	})
	if err != nil {
		return domain.Purchase{}, s.fail(ctx, "purchase_receive", err)
	}
	s.metrics.Purchase(string(purchase.State))
	return purchase, nil
}

// CancelPurchase cancels a pending or completed purchase. A completed one
// takes its stock back out, which fails when that stock has been consumed.
func (s *Service) CancelPurchase(ctx context.Context, id string) (domain.Purchase, error) {
	defer s.metrics.Observe("purchase_cancel", time.Now())

	var purchase domain.Purchase
	err := s.repo.InTx(ctx, func(tx store.Tx) error {
		actor, err := s.actor(ctx)
		if err != nil {
			return err
		}
		current, err := tx.LockPurchase(ctx, strings.TrimSpace(id))
		if err != nil {
			return err
		}
		if current.State == domain.PurchaseCancelled {
			return domain.InvalidState("purchase %s is already cancelled", current.ID)
		}

		if current.State == domain.PurchaseCompleted {
			if _, err := lockProducts(ctx, tx, purchaseProductIDs(current)); err != nil {
				return err
			}
			reason := "purchase cancelled " + purchaseLabel(current)
			for _, line := range current.Lines {
				if _, err := s.ledger.ApplyMovement(ctx, tx, ledger.MovementInput{
					ProductID:   line.ProductID,
					Kind:        domain.MovementOut,
					Quantity:    line.Quantity,
					Reason:      reason,
					ReferenceID: current.ID,
					ActorID:     actor.Username,
				}); err != nil {
					return err
				}
			}
			s.countAfterCommit(tx, domain.MovementOut, len(current.Lines), "", false)
		}

		cancelledAt := s.now()
		current.State = domain.PurchaseCancelled
		current.CancelledAt = &cancelledAt
		purchase = *current
		return tx.UpdatePurchase(ctx, purchase)
	})
	if err != nil {
		return domain.Purchase{}, s.fail(ctx, "purchase_cancel", err)
	}
	s.metrics.Purchase(string(purchase.State))
	return purchase, nil
}

func purchaseProductIDs(p *domain.Purchase) []string {
	ids := make([]string, 0, len(p.Lines))
	for _, line := range p.Lines {
		ids = append(ids, line.ProductID)
	}
	return ids
}

func purchaseLabel(p *domain.Purchase) string {
	if p.InvoiceNumber != "" {
		return p.InvoiceNumber
	}
	return p.ID
}
