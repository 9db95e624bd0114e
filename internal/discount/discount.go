package discount

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"poscore/backend/internal/domain"
	"poscore/backend/internal/store"
)

// Validator checks coupon codes and keeps their usage counters. Its write
// operations join the caller's transaction when one is given.
type Validator struct {
	repo store.Repository
	now  func() time.Time
}

func NewValidator(repo store.Repository, now func() time.Time) *Validator {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Validator{repo: repo, now: now}
}

// Validate runs the checks outside any transaction. The first failing check
// is reported as the reason.
func (v *Validator) Validate(ctx context.Context, code string) (domain.DiscountValidation, error) {
	discount, err := v.repo.GetDiscountByCode(ctx, code)
	return v.evaluate(discount, err)
}

// ValidateInTx does the same checks on a row locked for the rest of tx, so a
// usage increment that follows cannot race past the cap.
func (v *Validator) ValidateInTx(ctx context.Context, tx store.Tx, code string) (domain.DiscountValidation, error) {
	discount, err := tx.LockDiscountByCode(ctx, code)
	return v.evaluate(discount, err)
}

// RevalidateInTx checks an already applied coupon again by id, on its locked
// row. A coupon that expired or was deactivated since it was applied fails.
func (v *Validator) RevalidateInTx(ctx context.Context, tx store.Tx, id string) (domain.DiscountValidation, error) {
	discount, err := tx.LockDiscount(ctx, id)
	return v.evaluate(discount, err)
}

func (v *Validator) evaluate(discount *domain.DiscountCode, err error) (domain.DiscountValidation, error) {
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.DiscountValidation{Reason: domain.DiscountReasonNotFound}, nil
		}
		return domain.DiscountValidation{}, err
	}
	if reason := check(*discount, v.now()); reason != "" {
		return domain.DiscountValidation{Discount: discount, Reason: reason}, nil
	}
	return domain.DiscountValidation{Valid: true, Discount: discount}, nil
}

func check(d domain.DiscountCode, now time.Time) string {
	switch {
	case !d.Active:
		return domain.DiscountReasonInactive
	case d.StartsAt != nil && now.Before(*d.StartsAt):
		return domain.DiscountReasonNotYetValid
	case d.EndsAt != nil && now.After(*d.EndsAt):
		return domain.DiscountReasonExpired
	case d.UsageCap != nil && d.UsageCount >= *d.UsageCap:
		return domain.DiscountReasonCapReached
	}
	return ""
}

// ComputeAmount never returns more than subtotal.
func ComputeAmount(d domain.DiscountCode, subtotal decimal.Decimal) decimal.Decimal {
	if !subtotal.IsPositive() || !d.Value.IsPositive() {
		return decimal.Zero
	}
	var amount decimal.Decimal
	switch d.Kind {
	case domain.DiscountPercentage:
		amount = domain.PercentOf(subtotal, d.Value)
	case domain.DiscountFixed:
		amount = domain.RoundMoney(d.Value)
	default:
		return decimal.Zero
	}
	return decimal.Min(amount, subtotal)
}

// IncrementUsage records one redemption. The cap is enforced again on the
// locked row.
func (v *Validator) IncrementUsage(ctx context.Context, tx store.Tx, id string) error {
	return v.within(ctx, tx, func(tx store.Tx) error {
		d, err := tx.LockDiscount(ctx, id)
		if err != nil {
			return err
		}
		if d.UsageCap != nil && d.UsageCount >= *d.UsageCap {
			return domain.DiscountInvalid(domain.DiscountReasonCapReached)
		}
		return tx.SetDiscountUsage(ctx, id, d.UsageCount+1)
	})
}

// DecrementUsage undoes one redemption and stays at zero once there.
func (v *Validator) DecrementUsage(ctx context.Context, tx store.Tx, id string) error {
	return v.within(ctx, tx, func(tx store.Tx) error {
		d, err := tx.LockDiscount(ctx, id)
		if err != nil {
			return err
		}
		if d.UsageCount <= 0 {
			return nil
		}
		return tx.SetDiscountUsage(ctx, id, d.UsageCount-1)
	})
}

func (v *Validator) within(ctx context.Context, tx store.Tx, fn func(tx store.Tx) error) error {
	if tx != nil {
		return fn(tx)
	}
	return v.repo.InTx(ctx, fn)
}

// Normalize is how codes are stored and looked up.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
