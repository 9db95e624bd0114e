package postgres

import (
	"context"
	"database/sql"
	"strings"

	"github.com/shopspring/decimal"

	"poscore/backend/internal/domain"
	"poscore/backend/internal/store"
)

type pgTx struct {
	queries
	tx    *sql.Tx
	hooks []func()
}

var _ store.Tx = (*pgTx)(nil)

func (t *pgTx) AfterCommit(fn func()) {
	t.hooks = append(t.hooks, fn)
}

func (t *pgTx) LockProduct(ctx context.Context, id string) (*domain.Product, error) {
	p, err := scanProduct(t.tx.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, notFoundOr(err, "product", id)
	}
	return &p, nil
}

func (t *pgTx) CreateProduct(ctx context.Context, p domain.Product) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO products (id, sku, name, stock, min_stock, sale_price, average_cost, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, p.ID, p.SKU, p.Name, p.Stock, p.MinStock, p.SalePrice, p.AverageCost, p.Active, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.InvalidState("sku %s already exists", p.SKU)
		}
		return err
	}
	return nil
}

func (t *pgTx) UpdateProduct(ctx context.Context, p domain.Product) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE products
		SET name = $2, min_stock = $3, sale_price = $4, active = $5, updated_at = $6
		WHERE id = $1
	`, p.ID, p.Name, p.MinStock, p.SalePrice, p.Active, p.UpdatedAt)
	if err != nil {
		return err
	}
	return expectAffected(res, "product", p.ID)
}

func (t *pgTx) SetProductStock(ctx context.Context, id string, stock decimal.Decimal) error {
	res, err := t.tx.ExecContext(ctx, `UPDATE products SET stock = $2, updated_at = now() WHERE id = $1`, id, stock)
	if err != nil {
		return err
	}
	return expectAffected(res, "product", id)
}

func (t *pgTx) SetProductCost(ctx context.Context, id string, cost decimal.Decimal) error {
	res, err := t.tx.ExecContext(ctx, `UPDATE products SET average_cost = $2, updated_at = now() WHERE id = $1`, id, cost)
	if err != nil {
		return err
	}
	return expectAffected(res, "product", id)
}

func (t *pgTx) InsertMovement(ctx context.Context, m domain.InventoryMovement) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO inventory_movements (id, product_id, kind, quantity, delta, stock_after, reason, reference_id, actor_id, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, m.ID, m.ProductID, string(m.Kind), m.Quantity, m.Delta, m.StockAfter, m.Reason, nullIfEmpty(m.ReferenceID), m.ActorID, m.CreatedAt)
	return err
}

func (t *pgTx) CreateClient(ctx context.Context, c domain.Client) error {
	_, err := t.tx.ExecContext(ctx, `INSERT INTO clients (id, name, active, created_at) VALUES ($1,$2,$3,$4)`,
		c.ID, c.Name, c.Active, c.CreatedAt)
	return err
}

func (t *pgTx) CreateSupplier(ctx context.Context, s domain.Supplier) error {
	_, err := t.tx.ExecContext(ctx, `INSERT INTO suppliers (id, name, active, created_at) VALUES ($1,$2,$3,$4)`,
		s.ID, s.Name, s.Active, s.CreatedAt)
	return err
}

func (t *pgTx) CreatePaymentMethod(ctx context.Context, m domain.PaymentMethod) error {
	_, err := t.tx.ExecContext(ctx, `INSERT INTO payment_methods (id, name, kind, active, created_at) VALUES ($1,$2,$3,$4,$5)`,
		m.ID, m.Name, m.Kind, m.Active, m.CreatedAt)
	return err
}

func (t *pgTx) CreateDiscount(ctx context.Context, d domain.DiscountCode) error {
	var usageCap any
	if d.UsageCap != nil {
		usageCap = *d.UsageCap
	}
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO discount_codes (id, code, kind, value, starts_at, ends_at, active, usage_cap, usage_count, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, d.ID, normalizeCode(d.Code), string(d.Kind), d.Value, nullTime(d.StartsAt), nullTime(d.EndsAt), d.Active, usageCap, d.UsageCount, d.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.InvalidState("discount code %s already exists", d.Code)
		}
		return err
	}
	return nil
}

func (t *pgTx) LockDiscount(ctx context.Context, id string) (*domain.DiscountCode, error) {
	d, err := scanDiscount(t.tx.QueryRowContext(ctx, `SELECT `+discountColumns+` FROM discount_codes WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, notFoundOr(err, "discount", id)
	}
	return &d, nil
}

func (t *pgTx) LockDiscountByCode(ctx context.Context, code string) (*domain.DiscountCode, error) {
	d, err := scanDiscount(t.tx.QueryRowContext(ctx, `SELECT `+discountColumns+` FROM discount_codes WHERE code = $1 FOR UPDATE`, normalizeCode(code)))
	if err != nil {
		return nil, notFoundOr(err, "discount code", code)
	}
	return &d, nil
}

func (t *pgTx) SetDiscountUsage(ctx context.Context, id string, usage int) error {
	res, err := t.tx.ExecContext(ctx, `UPDATE discount_codes SET usage_count = $2 WHERE id = $1`, id, usage)
	if err != nil {
		return err
	}
	return expectAffected(res, "discount", id)
}

// maxNumber serializes numbering per prefix with a transaction scoped
// advisory lock, then reads the highest number issued so far.
func (t *pgTx) maxNumber(ctx context.Context, table string, column string, prefix string) (string, error) {
	if _, err := t.tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, table+":"+prefix); err != nil {
		return "", err
	}
	var last sql.NullString
	err := t.tx.QueryRowContext(ctx, `SELECT MAX(`+column+`) FROM `+table+` WHERE `+column+` LIKE $1`,
		escapeLike(prefix)+"%").Scan(&last)
	if err != nil {
		return "", err
	}
	return last.String, nil
}

func (t *pgTx) MaxSaleNumber(ctx context.Context, prefix string) (string, error) {
	return t.maxNumber(ctx, "sales", "invoice_number", prefix)
}

func (t *pgTx) MaxReturnNumber(ctx context.Context, prefix string) (string, error) {
	return t.maxNumber(ctx, "returns", "return_number", prefix)
}

func (t *pgTx) InsertSale(ctx context.Context, s domain.Sale) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO sales (id, invoice_number, client_id, payment_method_id, actor_id, subtotal, manual_discount,
			coupon_discount, discount_amount, tax_percent, tax_amount, total, discount_id, cash_session_id,
			state, notes, cancel_reason, created_at, completed_at, cancelled_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
	`, s.ID, s.InvoiceNumber, nullIfEmpty(s.ClientID), nullIfEmpty(s.PaymentMethodID), s.ActorID, s.Subtotal, s.ManualDiscount,
		s.CouponDiscount, s.DiscountAmount, s.TaxPercent, s.TaxAmount, s.Total, nullIfEmpty(s.DiscountID), nullIfEmpty(s.CashSessionID),
		string(s.State), s.Notes, s.CancelReason, s.CreatedAt, nullTime(s.CompletedAt), nullTime(s.CancelledAt))
	if err != nil {
		return err
	}
	for i, l := range s.Lines {
		_, err := t.tx.ExecContext(ctx, `
			INSERT INTO sale_lines (id, sale_id, product_id, quantity, unit_price, line_discount, subtotal, position)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		`, l.ID, s.ID, l.ProductID, l.Quantity, l.UnitPrice, l.LineDiscount, l.Subtotal, i)
		if err != nil {
			return err
		}
	}
	return nil
}

func (t *pgTx) LockSale(ctx context.Context, id string) (*domain.Sale, error) {
	return t.getSale(ctx, id, true)
}

func (t *pgTx) UpdateSale(ctx context.Context, s domain.Sale) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE sales
		SET state = $2, cash_session_id = $3, completed_at = $4, cancelled_at = $5, cancel_reason = $6
		WHERE id = $1
	`, s.ID, string(s.State), nullIfEmpty(s.CashSessionID), nullTime(s.CompletedAt), nullTime(s.CancelledAt), s.CancelReason)
	if err != nil {
		return err
	}
	return expectAffected(res, "sale", s.ID)
}

func (t *pgTx) InsertPurchase(ctx context.Context, p domain.Purchase) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO purchases (id, invoice_number, supplier_id, actor_id, subtotal, tax_percent, tax_amount, total,
			state, notes, created_at, received_at, cancelled_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`, p.ID, nullIfEmpty(p.InvoiceNumber), p.SupplierID, p.ActorID, p.Subtotal, p.TaxPercent, p.TaxAmount, p.Total,
		string(p.State), p.Notes, p.CreatedAt, nullTime(p.ReceivedAt), nullTime(p.CancelledAt))
	if err != nil {
		return err
	}
	for i, l := range p.Lines {
		_, err := t.tx.ExecContext(ctx, `
			INSERT INTO purchase_lines (id, purchase_id, product_id, quantity, unit_cost, subtotal, position)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
		`, l.ID, p.ID, l.ProductID, l.Quantity, l.UnitCost, l.Subtotal, i)
		if err != nil {
			return err
		}
	}
	return nil
}

func (t *pgTx) LockPurchase(ctx context.Context, id string) (*domain.Purchase, error) {
	return t.getPurchase(ctx, id, true)
}

func (t *pgTx) UpdatePurchase(ctx context.Context, p domain.Purchase) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE purchases SET state = $2, received_at = $3, cancelled_at = $4 WHERE id = $1
	`, p.ID, string(p.State), nullTime(p.ReceivedAt), nullTime(p.CancelledAt))
	if err != nil {
		return err
	}
	return expectAffected(res, "purchase", p.ID)
}

func (t *pgTx) InsertReturn(ctx context.Context, r domain.Return) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO returns (id, return_number, sale_id, actor_id, reason, kind, refund_amount, state, cash_session_id,
			created_at, cancelled_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, r.ID, r.ReturnNumber, r.SaleID, r.ActorID, r.Reason, string(r.Kind), r.RefundAmount, string(r.State),
		nullIfEmpty(r.CashSessionID), r.CreatedAt, nullTime(r.CancelledAt))
	if err != nil {
		return err
	}
	for i, l := range r.Lines {
		_, err := t.tx.ExecContext(ctx, `
			INSERT INTO return_lines (id, return_id, sale_line_id, product_id, quantity, unit_price, subtotal, position)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		`, l.ID, r.ID, l.SaleLineID, l.ProductID, l.Quantity, l.UnitPrice, l.Subtotal, i)
		if err != nil {
			return err
		}
	}
	return nil
}

func (t *pgTx) LockReturn(ctx context.Context, id string) (*domain.Return, error) {
	return t.getReturn(ctx, id, true)
}

func (t *pgTx) UpdateReturn(ctx context.Context, r domain.Return) error {
	res, err := t.tx.ExecContext(ctx, `UPDATE returns SET state = $2, cancelled_at = $3 WHERE id = $1`,
		r.ID, string(r.State), nullTime(r.CancelledAt))
	if err != nil {
		return err
	}
	return expectAffected(res, "return", r.ID)
}

func (t *pgTx) InsertCashSession(ctx context.Context, s domain.CashSession) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO cash_sessions (id, actor_id, opened_at, closed_at, opening_float, counted_amount, expected_amount,
			variance, state, notes)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, s.ID, s.ActorID, s.OpenedAt, nullTime(s.ClosedAt), s.OpeningFloat, nullDecimal(s.CountedAmount),
		nullDecimal(s.ExpectedAmount), nullDecimal(s.Variance), string(s.State), s.Notes)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.SessionAlreadyOpen(s.ActorID)
		}
		return err
	}
	return nil
}

func (t *pgTx) LockCashSession(ctx context.Context, id string) (*domain.CashSession, error) {
	s, err := scanSession(t.tx.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM cash_sessions WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, notFoundOr(err, "cash session", id)
	}
	return &s, nil
}

func (t *pgTx) LockOpenCashSession(ctx context.Context, actorID string) (*domain.CashSession, error) {
	s, err := scanSession(t.tx.QueryRowContext(ctx, `
		SELECT `+sessionColumns+` FROM cash_sessions WHERE actor_id = $1 AND state = 'open' FOR UPDATE`, actorID))
	if err != nil {
		return nil, notFoundOr(err, "open cash session for actor", actorID)
	}
	return &s, nil
}

func (t *pgTx) UpdateCashSession(ctx context.Context, s domain.CashSession) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE cash_sessions
		SET closed_at = $2, counted_amount = $3, expected_amount = $4, variance = $5, state = $6, notes = $7
		WHERE id = $1
	`, s.ID, nullTime(s.ClosedAt), nullDecimal(s.CountedAmount), nullDecimal(s.ExpectedAmount), nullDecimal(s.Variance),
		string(s.State), s.Notes)
	if err != nil {
		return err
	}
	return expectAffected(res, "cash session", s.ID)
}

func (t *pgTx) InsertCashMovement(ctx context.Context, m domain.CashMovement) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO cash_movements (id, session_id, kind, amount, concept, reference_id, actor_id, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, m.ID, m.SessionID, string(m.Kind), m.Amount, m.Concept, nullIfEmpty(m.ReferenceID), m.ActorID, m.CreatedAt)
	return err
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
