package service

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"poscore/backend/internal/cash"
	"poscore/backend/internal/discount"
	"poscore/backend/internal/docnum"
	"poscore/backend/internal/domain"
	"poscore/backend/internal/ledger"
	"poscore/backend/internal/store"
	"poscore/backend/internal/xid"
)

// CreateSale prices the lines, applies manual and coupon discounts and issues
// the invoice number. A completed sale (the default) also takes its stock,
// redeems its coupon and posts cash, all in the same transaction.
func (s *Service) CreateSale(ctx context.Context, req domain.SaleCreateRequest) (domain.Sale, error) {
	defer s.metrics.Observe("sale_create", time.Now())

	sale, err := s.createSale(ctx, req)
	if err != nil {
		return domain.Sale{}, s.fail(ctx, "sale_create", err)
	}
	s.metrics.Sale(string(sale.State))
	return sale, nil
}

func (s *Service) createSale(ctx context.Context, req domain.SaleCreateRequest) (domain.Sale, error) {
	actor, err := s.actor(ctx)
	if err != nil {
		return domain.Sale{}, err
	}
	req.ClientID = strings.TrimSpace(req.ClientID)
	req.PaymentMethodID = strings.TrimSpace(req.PaymentMethodID)
	req.DiscountCode = strings.TrimSpace(req.DiscountCode)
	if req.State == "" {
		req.State = domain.SaleCompleted
	}
	if err := s.validate(req); err != nil {
		return domain.Sale{}, err
	}
	taxPct, err := s.taxPercent(req.TaxPercent)
	if err != nil {
		return domain.Sale{}, err
	}

	var sale domain.Sale
	err = s.repo.InTx(ctx, func(tx store.Tx) error {
		if req.ClientID != "" {
			client, err := tx.GetClient(ctx, req.ClientID)
			if err != nil {
				return err
			}
			if !client.Active {
				return domain.NotFound("client", req.ClientID)
			}
		}
		if req.PaymentMethodID != "" {
			if _, err := activePaymentMethod(ctx, tx, req.PaymentMethodID); err != nil {
				return err
			}
		}

		ids := make([]string, 0, len(req.Lines))
		for _, line := range req.Lines {
			ids = append(ids, strings.TrimSpace(line.ProductID))
		}
		products, err := lockProducts(ctx, tx, ids)
		if err != nil {
			return err
		}

		now := s.now()
		sale = domain.Sale{
			ID:              xid.New("sale"),
			ClientID:        req.ClientID,
			PaymentMethodID: req.PaymentMethodID,
			ActorID:         actor.Username,
			ManualDiscount:  domain.RoundMoney(req.ManualDiscount),
			CouponDiscount:  decimal.Zero,
			TaxPercent:      taxPct,
			State:           req.State,
			Notes:           strings.TrimSpace(req.Notes),
			CreatedAt:       now,
		}

		requested := make(map[string]decimal.Decimal, len(products))
		subtotal := decimal.Zero
		for _, lr := range req.Lines {
			product := products[strings.TrimSpace(lr.ProductID)]
			if !product.Active {
				return domain.NotFound("product", product.ID)
			}
			gross := domain.RoundMoney(product.SalePrice.Mul(lr.Quantity))
			lineDiscount := domain.RoundMoney(lr.LineDiscount)
			if lineDiscount.GreaterThan(gross) {
				return domain.Validation("line_discount of product %s exceeds the line amount", product.ID)
			}
			line := domain.SaleLine{
				ID:           xid.New("sl"),
				SaleID:       sale.ID,
				ProductID:    product.ID,
				Quantity:     lr.Quantity,
				UnitPrice:    product.SalePrice,
				LineDiscount: lineDiscount,
				Subtotal:     gross.Sub(lineDiscount),
			}
			sale.Lines = append(sale.Lines, line)
			subtotal = subtotal.Add(line.Subtotal)
			requested[product.ID] = requested[product.ID].Add(lr.Quantity)
		}
		for id, qty := range requested {
			if products[id].Stock.LessThan(qty) {
				return domain.InsufficientStock(id, products[id].Stock, qty)
			}
		}
		sale.Subtotal = subtotal

		if req.DiscountCode != "" {
			res, err := s.discounts.ValidateInTx(ctx, tx, req.DiscountCode)
			if err != nil {
				return err
			}
			if !res.Valid {
				return domain.DiscountInvalid(res.Reason)
			}
			sale.DiscountID = res.Discount.ID
			sale.CouponDiscount = discount.ComputeAmount(*res.Discount, subtotal)
		}
		price(&sale)

		last, err := tx.MaxSaleNumber(ctx, docnum.DayPrefix(docnum.InvoicePrefix, now))
		if err != nil {
			return err
		}
		sale.InvoiceNumber, err = docnum.Next(docnum.DayPrefix(docnum.InvoicePrefix, now), last)
		if err != nil {
			return err
		}

		if sale.State == domain.SaleCompleted {
			if err := s.completeSale(ctx, tx, &sale, actor); err != nil {
				return err
			}
		}
		return tx.InsertSale(ctx, sale)
	})
	if err != nil {
		return domain.Sale{}, err
	}
	return sale, nil
}

// price fills the order level amounts from the line subtotal and both
// discounts. Discounts are additive; only the discounted subtotal is clamped.
func price(sale *domain.Sale) {
	totalDiscount := sale.ManualDiscount.Add(sale.CouponDiscount)
	effective := sale.Subtotal.Sub(totalDiscount)
	if effective.IsNegative() {
		effective = decimal.Zero
	}
	sale.DiscountAmount = sale.Subtotal.Sub(effective)
	sale.TaxAmount = domain.PercentOf(effective, sale.TaxPercent)
	sale.Total = effective.Add(sale.TaxAmount)
}

// completeSale applies the stock, coupon and cash effects of a sale. The
// caller persists the returned state.
func (s *Service) completeSale(ctx context.Context, tx store.Tx, sale *domain.Sale, actor domain.Actor) error {
	reason := "sale " + sale.InvoiceNumber
	for _, line := range sale.Lines {
		if _, err := s.ledger.ApplyMovement(ctx, tx, ledger.MovementInput{
			ProductID:   line.ProductID,
			Kind:        domain.MovementOut,
			Quantity:    line.Quantity,
			Reason:      reason,
			ReferenceID: sale.ID,
			ActorID:     actor.Username,
		}); err != nil {
			return err
		}
	}
	if sale.DiscountID != "" {
		if err := s.discounts.IncrementUsage(ctx, tx, sale.DiscountID); err != nil {
			return err
		}
	}

	paidInCash, err := isCashPayment(ctx, tx, sale.PaymentMethodID)
	if err != nil {
		return err
	}
	if paidInCash {
		movement, err := s.cash.PostToOpenSession(ctx, tx, cash.MovementInput{
			Kind:        domain.CashSale,
			Amount:      sale.Total,
			Concept:     reason,
			ReferenceID: sale.ID,
			ActorID:     actor.Username,
		})
		if err != nil {
			return err
		}
		if movement != nil {
			sale.CashSessionID = movement.SessionID
		}
	}

	completedAt := s.now()
	sale.State = domain.SaleCompleted
	sale.CompletedAt = &completedAt
	s.countAfterCommit(tx, domain.MovementOut, len(sale.Lines), domain.CashSale, sale.CashSessionID != "")
	return nil
}

// countAfterCommit records ledger and cash counters once tx has committed.
func (s *Service) countAfterCommit(tx store.Tx, kind domain.MovementKind, movements int, cashKind domain.CashMovementKind, cashPosted bool) {
	tx.AfterCommit(func() {
		for i := 0; i < movements; i++ {
			s.metrics.StockMovement(string(kind))
		}
		if cashPosted {
			s.metrics.CashMovement(string(cashKind))
		}
	})
}

// ConfirmSale completes a draft or pending sale. Its coupon must still be
// valid at confirmation; the amount priced into the draft is kept.
func (s *Service) ConfirmSale(ctx context.Context, id string) (domain.Sale, error) {
	defer s.metrics.Observe("sale_confirm", time.Now())

	var sale domain.Sale
	err := s.repo.InTx(ctx, func(tx store.Tx) error {
		actor, err := s.actor(ctx)
		if err != nil {
			return err
		}
		current, err := tx.LockSale(ctx, strings.TrimSpace(id))
		if err != nil {
			return err
		}
		if current.State != domain.SaleDraft && current.State != domain.SalePending {
			return domain.InvalidState("sale %s is %s and cannot be confirmed", current.ID, current.State)
		}
		ids := make([]string, 0, len(current.Lines))
		for _, line := range current.Lines {
			ids = append(ids, line.ProductID)
		}
		if _, err := lockProducts(ctx, tx, ids); err != nil {
			return err
		}
		if current.DiscountID != "" {
			res, err := s.discounts.RevalidateInTx(ctx, tx, current.DiscountID)
			if err != nil {
				return err
			}
			if !res.Valid {
				return domain.DiscountInvalid(res.Reason)
			}
		}
		if err := s.completeSale(ctx, tx, current, actor); err != nil {
			return err
		}
		sale = *current
		return tx.UpdateSale(ctx, sale)
	})
	if err != nil {
		return domain.Sale{}, s.fail(ctx, "sale_confirm", err)
	}
	s.metrics.Sale(string(sale.State))
	return sale, nil
}

// CancelSale cancels any non-cancelled sale. A completed sale gives its stock
// back, releases its coupon redemption and refunds cash it took through a
// drawer. A sale with processed returns must have them cancelled first.
func (s *Service) CancelSale(ctx context.Context, id string, req domain.SaleCancelRequest) (domain.Sale, error) {
	defer s.metrics.Observe("sale_cancel", time.Now())

	var sale domain.Sale
	err := s.repo.InTx(ctx, func(tx store.Tx) error {
		actor, err := s.actor(ctx)
		if err != nil {
			return err
		}
		if err := s.validate(req); err != nil {
			return err
		}
		current, err := tx.LockSale(ctx, strings.TrimSpace(id))
		if err != nil {
			return err
		}
		if current.State == domain.SaleCancelled {
			return domain.InvalidState("sale %s is already cancelled", current.ID)
		}

		if current.State == domain.SaleCompleted {
			if err := s.reverseSale(ctx, tx, current, actor); err != nil {
				return err
			}
		}

		cancelledAt := s.now()
		current.State = domain.SaleCancelled
		current.CancelledAt = &cancelledAt
		current.CancelReason = strings.TrimSpace(req.Reason)
		sale = *current
		return tx.UpdateSale(ctx, sale)
	})
	if err != nil {
		return domain.Sale{}, s.fail(ctx, "sale_cancel", err)
	}
	s.metrics.Sale(string(sale.State))
	return sale, nil
}

func (s *Service) reverseSale(ctx context.Context, tx store.Tx, sale *domain.Sale, actor domain.Actor) error {
	returned, err := tx.ReturnedQuantities(ctx, sale.ID)
	if err != nil {
		return err
	}
	for _, qty := range returned {
		if qty.IsPositive() {
			return domain.InvalidState("sale %s has processed returns, cancel them first", sale.ID)
		}
	}

	ids := make([]string, 0, len(sale.Lines))
	for _, line := range sale.Lines {
		ids = append(ids, line.ProductID)
	}
	if _, err := lockProducts(ctx, tx, ids); err != nil {
		return err
	}
	reason := "sale cancelled " + sale.InvoiceNumber
	for _, line := range sale.Lines {
		if _, err := s.ledger.ApplyMovement(ctx, tx, ledger.MovementInput{
			ProductID:   line.ProductID,
			Kind:        domain.MovementIn,
			Quantity:    line.Quantity,
			Reason:      reason,
			ReferenceID: sale.ID,
			ActorID:     actor.Username,
		}); err != nil {
			return err
		}
	}
	if sale.DiscountID != "" {
		if err := s.discounts.DecrementUsage(ctx, tx, sale.DiscountID); err != nil {
			return err
		}
	}
	var refund *domain.CashMovement
	if sale.CashSessionID != "" {
		refund, err = s.cash.PostToOpenSession(ctx, tx, cash.MovementInput{
			Kind:        domain.CashReturn,
			Amount:      sale.Total,
			Concept:     reason,
			ReferenceID: sale.ID,
			ActorID:     actor.Username,
		})
		if err != nil {
			return err
		}
	}
	s.countAfterCommit(tx, domain.MovementIn, len(sale.Lines), domain.CashReturn, refund != nil)
	return nil
}

func activePaymentMethod(ctx context.Context, r store.Reader, id string) (*domain.PaymentMethod, error) {
	method, err := r.GetPaymentMethod(ctx, id)
	if err != nil {
		return nil, err
	}
	if !method.Active {
		return nil, domain.NotFound("payment method", id)
	}
	return method, nil
}

// isCashPayment treats a sale without a payment method as paid in cash.
func isCashPayment(ctx context.Context, r store.Reader, methodID string) (bool, error) {
	if methodID == "" {
		return true, nil
	}
	method, err := r.GetPaymentMethod(ctx, methodID)
	if err != nil {
		return false, err
	}
	return method.Kind == domain.PaymentKindCash, nil
}
