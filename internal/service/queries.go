package service

import (
	"context"
	"strings"

	"poscore/backend/internal/domain"
)

func (s *Service) GetSale(ctx context.Context, id string) (domain.Sale, error) {
	sale, err := s.repo.GetSale(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Sale{}, s.fail(ctx, "sale_get", err)
	}
	return *sale, nil
}

func (s *Service) ListSales(ctx context.Context, filter domain.ListFilter) (domain.Page[domain.Sale], error) {
	page, err := s.repo.ListSales(ctx, filter.Normalize())
	if err != nil {
		return domain.Page[domain.Sale]{}, s.fail(ctx, "sale_list", err)
	}
	return page, nil
}

func (s *Service) GetPurchase(ctx context.Context, id string) (domain.Purchase, error) {
	purchase, err := s.repo.GetPurchase(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Purchase{}, s.fail(ctx, "purchase_get", err)
	}
	return *purchase, nil
}

func (s *Service) ListPurchases(ctx context.Context, filter domain.ListFilter) (domain.Page[domain.Purchase], error) {
	page, err := s.repo.ListPurchases(ctx, filter.Normalize())
	if err != nil {
		return domain.Page[domain.Purchase]{}, s.fail(ctx, "purchase_list", err)
	}
	return page, nil
}

func (s *Service) GetReturn(ctx context.Context, id string) (domain.Return, error) {
	ret, err := s.repo.GetReturn(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Return{}, s.fail(ctx, "return_get", err)
	}
	return *ret, nil
}

func (s *Service) ListReturns(ctx context.Context, filter domain.ListFilter) (domain.Page[domain.Return], error) {
	page, err := s.repo.ListReturns(ctx, filter.Normalize())
	if err != nil {
		return domain.Page[domain.Return]{}, s.fail(ctx, "return_list", err)
	}
	return page, nil
}

func (s *Service) ListCashSessions(ctx context.Context, filter domain.ListFilter) (domain.Page[domain.CashSession], error) {
	page, err := s.repo.ListCashSessions(ctx, filter.Normalize())
	if err != nil {
		return domain.Page[domain.CashSession]{}, s.fail(ctx, "cash_list", err)
	}
	return page, nil
}

func (s *Service) ListMovements(ctx context.Context, filter domain.MovementFilter) (domain.Page[domain.InventoryMovement], error) {
	filter.ListFilter = filter.ListFilter.Normalize()
	filter.ProductID = strings.TrimSpace(filter.ProductID)
	if filter.Kind != "" && !filter.Kind.Valid() {
		return domain.Page[domain.InventoryMovement]{}, s.fail(ctx, "movement_list", domain.Validation("unknown movement kind %q", filter.Kind))
	}
	page, err := s.repo.ListMovements(ctx, filter)
	if err != nil {
		return domain.Page[domain.InventoryMovement]{}, s.fail(ctx, "movement_list", err)
	}
	return page, nil
}
