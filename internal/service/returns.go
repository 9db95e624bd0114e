package service

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"poscore/backend/internal/cash"
	"poscore/backend/internal/docnum"
	"poscore/backend/internal/domain"
	"poscore/backend/internal/ledger"
	"poscore/backend/internal/store"
	"poscore/backend/internal/xid"
)

// CreateReturn takes goods back against a completed sale. Each sale line can
// only be returned up to its sold quantity net of processed returns; the
// refund is priced at the sale's unit price snapshot.
func (s *Service) CreateReturn(ctx context.Context, req domain.ReturnCreateRequest) (domain.Return, error) {
	defer s.metrics.Observe("return_create", time.Now())

	var ret domain.Return
	err := func() error {
		actor, err := s.actor(ctx)
		if err != nil {
			return err
		}
		req.SaleID = strings.TrimSpace(req.SaleID)
		if err := s.validate(req); err != nil {
			return err
		}
		return s.repo.InTx(ctx, func(tx store.Tx) error {
			ret, err = s.createReturn(ctx, tx, req, actor)
			return err
		})
	}()
	if err != nil {
		return domain.Return{}, s.fail(ctx, "return_create", err)
	}
	s.metrics.Return(string(ret.Kind))
	return ret, nil
}

func (s *Service) createReturn(ctx context.Context, tx store.Tx, req domain.ReturnCreateRequest, actor domain.Actor) (domain.Return, error) {
	sale, err := tx.LockSale(ctx, req.SaleID)
	if err != nil {
		return domain.Return{}, err
	}
	if sale.State != domain.SaleCompleted {
		return domain.Return{}, domain.InvalidState("sale %s is %s, only completed sales can be returned", sale.ID, sale.State)
	}
	returned, err := tx.ReturnedQuantities(ctx, sale.ID)
	if err != nil {
		return domain.Return{}, err
	}

	// Requests naming the same sale line are merged before the bound check.
	order := make([]string, 0, len(req.Lines))
	requested := make(map[string]decimal.Decimal, len(req.Lines))
	for _, lr := range req.Lines {
		lineID := strings.TrimSpace(lr.SaleLineID)
		saleLine, ok := sale.Line(lineID)
		if !ok {
			return domain.Return{}, domain.NotFound("sale line", lineID)
		}
		if !lr.Quantity.IsPositive() {
			return domain.Return{}, domain.ReturnExceedsAvailable(lineID, available(saleLine, returned), lr.Quantity)
		}
		if _, seen := requested[lineID]; !seen {
			order = append(order, lineID)
		}
		requested[lineID] = requested[lineID].Add(lr.Quantity)
	}

	now := s.now()
	ret := domain.Return{
		ID:        xid.New("ret"),
		SaleID:    sale.ID,
		ActorID:   actor.Username,
		Reason:    strings.TrimSpace(req.Reason),
		State:     domain.ReturnProcessed,
		CreatedAt: now,
	}
	refund := decimal.Zero
	productIDs := make([]string, 0, len(order))
	for _, lineID := range order {
		saleLine, _ := sale.Line(lineID)
		qty := requested[lineID]
		if avail := available(saleLine, returned); qty.GreaterThan(avail) {
			return domain.Return{}, domain.ReturnExceedsAvailable(lineID, avail, qty)
		}
		line := domain.ReturnLine{
			ID:         xid.New("rl"),
			ReturnID:   ret.ID,
			SaleLineID: saleLine.ID,
			ProductID:  saleLine.ProductID,
			Quantity:   qty,
			UnitPrice:  saleLine.UnitPrice,
			Subtotal:   domain.RoundMoney(saleLine.UnitPrice.Mul(qty)),
		}
		ret.Lines = append(ret.Lines, line)
		refund = refund.Add(line.Subtotal)
		productIDs = append(productIDs, line.ProductID)
	}
	ret.RefundAmount = refund

	returnedTotal := decimal.Zero
	for _, qty := range returned {
		returnedTotal = returnedTotal.Add(qty)
	}
	for _, qty := range requested {
		returnedTotal = returnedTotal.Add(qty)
	}
	ret.Kind = domain.ReturnPartial
	if returnedTotal.Equal(sale.SoldQuantity()) {
		ret.Kind = domain.ReturnTotal
	}

	prefix := docnum.DayPrefix(docnum.ReturnPrefix, now)
	last, err := tx.MaxReturnNumber(ctx, prefix)
	if err != nil {
		return domain.Return{}, err
	}
	if ret.ReturnNumber, err = docnum.Next(prefix, last); err != nil {
		return domain.Return{}, err
	}

	if _, err := lockProducts(ctx, tx, productIDs); err != nil {
		return domain.Return{}, err
	}
	reason := "return " + ret.ReturnNumber
	for _, line := range ret.Lines {
		if _, err := s.ledger.ApplyMovement(ctx, tx, ledger.MovementInput{
			ProductID:   line.ProductID,
			Kind:        domain.MovementIn,
			Quantity:    line.Quantity,
			Reason:      reason,
			ReferenceID: ret.ID,
			ActorID:     actor.Username,
		}); err != nil {
			return domain.Return{}, err
		}
	}

	movement, err := s.cash.PostToOpenSession(ctx, tx, cash.MovementInput{
		Kind:        domain.CashReturn,
		Amount:      ret.RefundAmount,
		Concept:     reason,
		ReferenceID: ret.ID,
		ActorID:     actor.Username,
	})
	if err != nil {
		return domain.Return{}, err
	}
	if movement != nil {
		ret.CashSessionID = movement.SessionID
	}
	s.countAfterCommit(tx, domain.MovementIn, len(ret.Lines), domain.CashReturn, movement != nil)

	if err := tx.InsertReturn(ctx, ret); err != nil {
		return domain.Return{}, err
	}
	return ret, nil
}

func available(line domain.SaleLine, returned map[string]decimal.Decimal) decimal.Decimal {
	return line.Quantity.Sub(returned[line.ID])
}

// CancelReturn takes the returned goods back out of stock and, when the refund
// went through a drawer, offsets it with a deposit. The return then no longer
// counts toward the sale's returned quantities.
func (s *Service) CancelReturn(ctx context.Context, id string) (domain.Return, error) {
	defer s.metrics.Observe("return_cancel", time.Now())

	var ret domain.Return
	err := s.repo.InTx(ctx, func(tx store.Tx) error {
		actor, err := s.actor(ctx)
		if err != nil {
			return err
		}
		current, err := tx.LockReturn(ctx, strings.TrimSpace(id))
		if err != nil {
			return err
		}
		if current.State != domain.ReturnProcessed {
			return domain.InvalidState("return %s is already cancelled", current.ID)
		}

		ids := make([]string, 0, len(current.Lines))
		for _, line := range current.Lines {
			ids = append(ids, line.ProductID)
		}
		if _, err := lockProducts(ctx, tx, ids); err != nil {
			return err
		}
		reason := "return cancelled " + current.ReturnNumber
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

		var deposit *domain.CashMovement
		if current.CashSessionID != "" {
			deposit, err = s.cash.PostToOpenSession(ctx, tx, cash.MovementInput{
				Kind:        domain.CashDeposit,
				Amount:      current.RefundAmount,
				Concept:     reason,
				ReferenceID: current.ID,
				ActorID:     actor.Username,
			})
			if err != nil {
				return err
			}
		}
		s.countAfterCommit(tx, domain.MovementOut, len(current.Lines), domain.CashDeposit, deposit != nil)

		cancelledAt := s.now()
		current.State = domain.ReturnCancelled
		current.CancelledAt = &cancelledAt
		ret = *current
		return tx.UpdateReturn(ctx, ret)
	})
	if err != nil {
		return domain.Return{}, s.fail(ctx, "return_cancel", err)
	}
	return ret, nil
}
