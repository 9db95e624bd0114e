package service

import (
	"context"

	"github.com/shopspring/decimal"

	"poscore/backend/internal/discount"
	"poscore/backend/internal/domain"
	"poscore/backend/internal/store"
	"poscore/backend/internal/xid"
)

func (s *Service) CreateDiscount(ctx context.Context, req domain.DiscountCreateRequest) (domain.DiscountCode, error) {
	req.Code = discount.Normalize(req.Code)
	if err := s.validate(req); err != nil {
		return domain.DiscountCode{}, s.fail(ctx, "discount_create", err)
	}
	if req.Kind == domain.DiscountPercentage && req.Value.GreaterThan(decimal.NewFromInt(100)) {
		return domain.DiscountCode{}, s.fail(ctx, "discount_create", domain.Validation("value must be at most 100 for percentage discounts"))
	}
	if req.StartsAt != nil && req.EndsAt != nil && req.EndsAt.Before(*req.StartsAt) {
		return domain.DiscountCode{}, s.fail(ctx, "discount_create", domain.Validation("ends_at must not be before starts_at"))
	}

	code := domain.DiscountCode{
		ID:        xid.New("dsc"),
		Code:      req.Code,
		Kind:      req.Kind,
		Value:     req.Value,
		StartsAt:  req.StartsAt,
		EndsAt:    req.EndsAt,
		Active:    true,
		UsageCap:  req.UsageCap,
		CreatedAt: s.now(),
	}
	if code.Kind == domain.DiscountFixed {
		code.Value = domain.RoundMoney(code.Value)
	}
	err := s.repo.InTx(ctx, func(tx store.Tx) error {
		return tx.CreateDiscount(ctx, code)
	})
	if err != nil {
		return domain.DiscountCode{}, s.fail(ctx, "discount_create", err)
	}
	return code, nil
}

func (s *Service) ListDiscounts(ctx context.Context) ([]domain.DiscountCode, error) {
	codes, err := s.repo.ListDiscounts(ctx)
	if err != nil {
		return nil, s.fail(ctx, "discount_list", err)
	}
	return codes, nil
}

// ValidateDiscount is the read-only check a register runs before checkout.
// It does not count as a redemption.
func (s *Service) ValidateDiscount(ctx context.Context, code string) (domain.DiscountValidation, error) {
	res, err := s.discounts.Validate(ctx, discount.Normalize(code))
	if err != nil {
		return domain.DiscountValidation{}, s.fail(ctx, "discount_validate", err)
	}
	return res, nil
}
