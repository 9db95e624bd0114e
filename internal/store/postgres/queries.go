package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"poscore/backend/internal/domain"
)

type queries struct {
	q querier
}

type rowScanner interface {
	Scan(dest ...any) error
}

const productColumns = `id, sku, name, stock, min_stock, sale_price, average_cost, active, created_at, updated_at`

func scanProduct(row rowScanner) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.SKU, &p.Name, &p.Stock, &p.MinStock, &p.SalePrice, &p.AverageCost, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, err
}

func (r queries) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	p, err := scanProduct(r.q.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if err != nil {
		return nil, notFoundOr(err, "product", id)
	}
	return &p, nil
}

func (r queries) ListProducts(ctx context.Context, lowStockOnly bool) ([]domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products`
	if lowStockOnly {
		query += ` WHERE active = true AND stock <= min_stock`
	}
	query += ` ORDER BY name, id`

	rows, err := r.q.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 64)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

const movementColumns = `id, product_id, kind, quantity, delta, stock_after, reason, reference_id, actor_id, created_at`

func scanMovements(rows *sql.Rows) ([]domain.InventoryMovement, error) {
	defer rows.Close()
	movements := make([]domain.InventoryMovement, 0, 32)
	for rows.Next() {
		var m domain.InventoryMovement
		var reference sql.NullString
		if err := rows.Scan(&m.ID, &m.ProductID, &m.Kind, &m.Quantity, &m.Delta, &m.StockAfter, &m.Reason, &reference, &m.ActorID, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.ReferenceID = reference.String
		m.CreatedAt = m.CreatedAt.UTC()
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

func (r queries) ListProductMovements(ctx context.Context, productID string) ([]domain.InventoryMovement, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT `+movementColumns+`
		FROM inventory_movements
		WHERE product_id = $1
		ORDER BY seq ASC
	`, productID)
	if err != nil {
		return nil, err
	}
	return scanMovements(rows)
}

func (r queries) ListMovements(ctx context.Context, filter domain.MovementFilter) (domain.Page[domain.InventoryMovement], error) {
	base := filter.ListFilter
	base.State = ""
	w := newWhere(base, "created_at", "actor_id", "")
	if filter.ProductID != "" {
		w.add("product_id = ?", filter.ProductID)
	}
	if filter.Kind != "" {
		w.add("kind = ?", string(filter.Kind))
	}

	page := domain.Page[domain.InventoryMovement]{}
	total, err := r.count(ctx, "inventory_movements", w)
	if err != nil {
		return page, err
	}
	n := filter.ListFilter.Normalize()
	rows, err := r.q.QueryContext(ctx, `
		SELECT `+movementColumns+`
		FROM inventory_movements`+w.sql()+`
		ORDER BY seq DESC`+w.limit(n), w.args...)
	if err != nil {
		return page, err
	}
	items, err := scanMovements(rows)
	if err != nil {
		return page, err
	}
	return domain.Page[domain.InventoryMovement]{Items: items, Total: total, Page: n.Page, Limit: n.Limit}, nil
}

func (r queries) GetClient(ctx context.Context, id string) (*domain.Client, error) {
	var c domain.Client
	err := r.q.QueryRowContext(ctx, `SELECT id, name, active, created_at FROM clients WHERE id = $1`, id).
		Scan(&c.ID, &c.Name, &c.Active, &c.CreatedAt)
	if err != nil {
		return nil, notFoundOr(err, "client", id)
	}
	return &c, nil
}

func (r queries) ListClients(ctx context.Context) ([]domain.Client, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT id, name, active, created_at FROM clients ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	clients := make([]domain.Client, 0, 16)
	for rows.Next() {
		var c domain.Client
		if err := rows.Scan(&c.ID, &c.Name, &c.Active, &c.CreatedAt); err != nil {
			return nil, err
		}
		clients = append(clients, c)
	}
	return clients, rows.Err()
}

func (r queries) GetSupplier(ctx context.Context, id string) (*domain.Supplier, error) {
	var s domain.Supplier
	err := r.q.QueryRowContext(ctx, `SELECT id, name, active, created_at FROM suppliers WHERE id = $1`, id).
		Scan(&s.ID, &s.Name, &s.Active, &s.CreatedAt)
	if err != nil {
		return nil, notFoundOr(err, "supplier", id)
	}
	return &s, nil
}

func (r queries) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT id, name, active, created_at FROM suppliers ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	suppliers := make([]domain.Supplier, 0, 16)
	for rows.Next() {
		var s domain.Supplier
		if err := rows.Scan(&s.ID, &s.Name, &s.Active, &s.CreatedAt); err != nil {
			return nil, err
		}
		suppliers = append(suppliers, s)
	}
	return suppliers, rows.Err()
}

func (r queries) GetPaymentMethod(ctx context.Context, id string) (*domain.PaymentMethod, error) {
	var m domain.PaymentMethod
	err := r.q.QueryRowContext(ctx, `SELECT id, name, kind, active, created_at FROM payment_methods WHERE id = $1`, id).
		Scan(&m.ID, &m.Name, &m.Kind, &m.Active, &m.CreatedAt)
	if err != nil {
		return nil, notFoundOr(err, "payment method", id)
	}
	return &m, nil
}

func (r queries) ListPaymentMethods(ctx context.Context) ([]domain.PaymentMethod, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT id, name, kind, active, created_at FROM payment_methods ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	methods := make([]domain.PaymentMethod, 0, 8)
	for rows.Next() {
		var m domain.PaymentMethod
		if err := rows.Scan(&m.ID, &m.Name, &m.Kind, &m.Active, &m.CreatedAt); err != nil {
			return nil, err
		}
		methods = append(methods, m)
	}
	return methods, rows.Err()
}

const discountColumns = `id, code, kind, value, starts_at, ends_at, active, usage_cap, usage_count, created_at`

func scanDiscount(row rowScanner) (domain.DiscountCode, error) {
	var d domain.DiscountCode
	var startsAt, endsAt sql.NullTime
	var usageCap sql.NullInt64
	if err := row.Scan(&d.ID, &d.Code, &d.Kind, &d.Value, &startsAt, &endsAt, &d.Active, &usageCap, &d.UsageCount, &d.CreatedAt); err != nil {
		return d, err
	}
	d.StartsAt = timePtr(startsAt)
	d.EndsAt = timePtr(endsAt)
	if usageCap.Valid {
		limit := int(usageCap.Int64)
		d.UsageCap = &limit
	}
	return d, nil
}

func (r queries) GetDiscountByCode(ctx context.Context, code string) (*domain.DiscountCode, error) {
	d, err := scanDiscount(r.q.QueryRowContext(ctx, `SELECT `+discountColumns+` FROM discount_codes WHERE code = $1`, normalizeCode(code)))
	if err != nil {
		return nil, notFoundOr(err, "discount code", code)
	}
	return &d, nil
}

func (r queries) ListDiscounts(ctx context.Context) ([]domain.DiscountCode, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT `+discountColumns+` FROM discount_codes ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	discounts := make([]domain.DiscountCode, 0, 16)
	for rows.Next() {
		d, err := scanDiscount(rows)
		if err != nil {
			return nil, err
		}
		discounts = append(discounts, d)
	}
	return discounts, rows.Err()
}

const saleColumns = `id, invoice_number, client_id, payment_method_id, actor_id, subtotal, manual_discount,
	coupon_discount, discount_amount, tax_percent, tax_amount, total, discount_id, cash_session_id,
	state, notes, cancel_reason, created_at, completed_at, cancelled_at`

func scanSale(row rowScanner) (domain.Sale, error) {
	var s domain.Sale
	var clientID, methodID, discountID, sessionID sql.NullString
	var completedAt, cancelledAt sql.NullTime
	err := row.Scan(&s.ID, &s.InvoiceNumber, &clientID, &methodID, &s.ActorID, &s.Subtotal, &s.ManualDiscount,
		&s.CouponDiscount, &s.DiscountAmount, &s.TaxPercent, &s.TaxAmount, &s.Total, &discountID, &sessionID,
		&s.State, &s.Notes, &s.CancelReason, &s.CreatedAt, &completedAt, &cancelledAt)
	if err != nil {
		return s, err
	}
	s.ClientID = clientID.String
	s.PaymentMethodID = methodID.String
	s.DiscountID = discountID.String
	s.CashSessionID = sessionID.String
	s.CreatedAt = s.CreatedAt.UTC()
	s.CompletedAt = timePtr(completedAt)
	s.CancelledAt = timePtr(cancelledAt)
	return s, nil
}

func (r queries) getSale(ctx context.Context, id string, lock bool) (*domain.Sale, error) {
	query := `SELECT ` + saleColumns + ` FROM sales WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}
	sale, err := scanSale(r.q.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFoundOr(err, "sale", id)
	}
	lines, err := r.saleLines(ctx, []string{sale.ID})
	if err != nil {
		return nil, err
	}
	sale.Lines = lines[sale.ID]
	return &sale, nil
}

func (r queries) GetSale(ctx context.Context, id string) (*domain.Sale, error) {
	return r.getSale(ctx, id, false)
}

func (r queries) saleLines(ctx context.Context, saleIDs []string) (map[string][]domain.SaleLine, error) {
	out := make(map[string][]domain.SaleLine, len(saleIDs))
	if len(saleIDs) == 0 {
		return out, nil
	}
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, sale_id, product_id, quantity, unit_price, line_discount, subtotal
		FROM sale_lines
		WHERE sale_id = ANY($1)
		ORDER BY sale_id, position
	`, saleIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var l domain.SaleLine
		if err := rows.Scan(&l.ID, &l.SaleID, &l.ProductID, &l.Quantity, &l.UnitPrice, &l.LineDiscount, &l.Subtotal); err != nil {
			return nil, err
		}
		out[l.SaleID] = append(out[l.SaleID], l)
	}
	return out, rows.Err()
}

func (r queries) ListSales(ctx context.Context, filter domain.ListFilter) (domain.Page[domain.Sale], error) {
	w := newWhere(filter, "created_at", "actor_id", "state")
	page := domain.Page[domain.Sale]{}
	total, err := r.count(ctx, "sales", w)
	if err != nil {
		return page, err
	}
	n := filter.Normalize()
	rows, err := r.q.QueryContext(ctx, `SELECT `+saleColumns+` FROM sales`+w.sql()+`
		ORDER BY created_at DESC, invoice_number DESC`+w.limit(n), w.args...)
	if err != nil {
		return page, err
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, n.Limit)
	ids := make([]string, 0, n.Limit)
	for rows.Next() {
		s, err := scanSale(rows)
		if err != nil {
			return page, err
		}
		sales = append(sales, s)
		ids = append(ids, s.ID)
	}
	if err := rows.Err(); err != nil {
		return page, err
	}
	lines, err := r.saleLines(ctx, ids)
	if err != nil {
		return page, err
	}
	for i := range sales {
		sales[i].Lines = lines[sales[i].ID]
	}
	return domain.Page[domain.Sale]{Items: sales, Total: total, Page: n.Page, Limit: n.Limit}, nil
}

const purchaseColumns = `id, invoice_number, supplier_id, actor_id, subtotal, tax_percent, tax_amount, total,
	state, notes, created_at, received_at, cancelled_at`

func scanPurchase(row rowScanner) (domain.Purchase, error) {
	var p domain.Purchase
	var invoice sql.NullString
	var receivedAt, cancelledAt sql.NullTime
	err := row.Scan(&p.ID, &invoice, &p.SupplierID, &p.ActorID, &p.Subtotal, &p.TaxPercent, &p.TaxAmount, &p.Total,
		&p.State, &p.Notes, &p.CreatedAt, &receivedAt, &cancelledAt)
	if err != nil {
		return p, err
	}
	p.InvoiceNumber = invoice.String
	p.CreatedAt = p.CreatedAt.UTC()
	p.ReceivedAt = timePtr(receivedAt)
	p.CancelledAt = timePtr(cancelledAt)
	return p, nil
}

func (r queries) getPurchase(ctx context.Context, id string, lock bool) (*domain.Purchase, error) {
	query := `SELECT ` + purchaseColumns + ` FROM purchases WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}
	purchase, err := scanPurchase(r.q.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFoundOr(err, "purchase", id)
	}
	lines, err := r.purchaseLines(ctx, []string{purchase.ID})
	if err != nil {
		return nil, err
	}
	purchase.Lines = lines[purchase.ID]
	return &purchase, nil
}

func (r queries) GetPurchase(ctx context.Context, id string) (*domain.Purchase, error) {
	return r.getPurchase(ctx, id, false)
}

func (r queries) purchaseLines(ctx context.Context, purchaseIDs []string) (map[string][]domain.PurchaseLine, error) {
	out := make(map[string][]domain.PurchaseLine, len(purchaseIDs))
	if len(purchaseIDs) == 0 {
		return out, nil
	}
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, purchase_id, product_id, quantity, unit_cost, subtotal
		FROM purchase_lines
		WHERE purchase_id = ANY($1)
		ORDER BY purchase_id, position
	`, purchaseIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var l domain.PurchaseLine
		if err := rows.Scan(&l.ID, &l.PurchaseID, &l.ProductID, &l.Quantity, &l.UnitCost, &l.Subtotal); err != nil {
			return nil, err
		}
		out[l.PurchaseID] = append(out[l.PurchaseID], l)
	}
	return out, rows.Err()
}

func (r queries) ListPurchases(ctx context.Context, filter domain.ListFilter) (domain.Page[domain.Purchase], error) {
	w := newWhere(filter, "created_at", "actor_id", "state")
	page := domain.Page[domain.Purchase]{}
	total, err := r.count(ctx, "purchases", w)
	if err != nil {
		return page, err
	}
	n := filter.Normalize()
	rows, err := r.q.QueryContext(ctx, `SELECT `+purchaseColumns+` FROM purchases`+w.sql()+`
		ORDER BY created_at DESC, id DESC`+w.limit(n), w.args...)
	if err != nil {
		return page, err
	}
	defer rows.Close()

	purchases := make([]domain.Purchase, 0, n.Limit)
	ids := make([]string, 0, n.Limit)
	for rows.Next() {
		p, err := scanPurchase(rows)
		if err != nil {
			return page, err
		}
		purchases = append(purchases, p)
		ids = append(ids, p.ID)
	}
	if err := rows.Err(); err != nil {
		return page, err
	}
	lines, err := r.purchaseLines(ctx, ids)
	if err != nil {
		return page, err
	}
	for i := range purchases {
		purchases[i].Lines = lines[purchases[i].ID]
	}
	return domain.Page[domain.Purchase]{Items: purchases, Total: total, Page: n.Page, Limit: n.Limit}, nil
}

const returnColumns = `id, return_number, sale_id, actor_id, reason, kind, refund_amount, state, cash_session_id,
	created_at, cancelled_at`

func scanReturn(row rowScanner) (domain.Return, error) {
	var ret domain.Return
	var sessionID sql.NullString
	var cancelledAt sql.NullTime
	err := row.Scan(&ret.ID, &ret.ReturnNumber, &ret.SaleID, &ret.ActorID, &ret.Reason, &ret.Kind, &ret.RefundAmount,
		&ret.State, &sessionID, &ret.CreatedAt, &cancelledAt)
	if err != nil {
		return ret, err
	}
	ret.CashSessionID = sessionID.String
	ret.CreatedAt = ret.CreatedAt.UTC()
	ret.CancelledAt = timePtr(cancelledAt)
	return ret, nil
}

func (r queries) getReturn(ctx context.Context, id string, lock bool) (*domain.Return, error) {
	query := `SELECT ` + returnColumns + ` FROM returns WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}
	ret, err := scanReturn(r.q.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFoundOr(err, "return", id)
	}
	lines, err := r.returnLines(ctx, []string{ret.ID})
	if err != nil {
		return nil, err
	}
	ret.Lines = lines[ret.ID]
	return &ret, nil
}

func (r queries) GetReturn(ctx context.Context, id string) (*domain.Return, error) {
	return r.getReturn(ctx, id, false)
}

func (r queries) returnLines(ctx context.Context, returnIDs []string) (map[string][]domain.ReturnLine, error) {
	out := make(map[string][]domain.ReturnLine, len(returnIDs))
	if len(returnIDs) == 0 {
		return out, nil
	}
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, return_id, sale_line_id, product_id, quantity, unit_price, subtotal
		FROM return_lines
		WHERE return_id = ANY($1)
		ORDER BY return_id, position
	`, returnIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var l domain.ReturnLine
		if err := rows.Scan(&l.ID, &l.ReturnID, &l.SaleLineID, &l.ProductID, &l.Quantity, &l.UnitPrice, &l.Subtotal); err != nil {
			return nil, err
		}
		out[l.ReturnID] = append(out[l.ReturnID], l)
	}
	return out, rows.Err()
}

func (r queries) ListReturns(ctx context.Context, filter domain.ListFilter) (domain.Page[domain.Return], error) {
	w := newWhere(filter, "created_at", "actor_id", "state")
	page := domain.Page[domain.Return]{}
	total, err := r.count(ctx, "returns", w)
	if err != nil {
		return page, err
	}
	n := filter.Normalize()
	rows, err := r.q.QueryContext(ctx, `SELECT `+returnColumns+` FROM returns`+w.sql()+`
		ORDER BY created_at DESC, return_number DESC`+w.limit(n), w.args...)
	if err != nil {
		return page, err
	}
	defer rows.Close()

	returns := make([]domain.Return, 0, n.Limit)
	ids := make([]string, 0, n.Limit)
	for rows.Next() {
		ret, err := scanReturn(rows)
		if err != nil {
			return page, err
		}
		returns = append(returns, ret)
		ids = append(ids, ret.ID)
	}
	if err := rows.Err(); err != nil {
		return page, err
	}
	lines, err := r.returnLines(ctx, ids)
	if err != nil {
		return page, err
	}
	for i := range returns {
		returns[i].Lines = lines[returns[i].ID]
	}
	return domain.Page[domain.Return]{Items: returns, Total: total, Page: n.Page, Limit: n.Limit}, nil
}

func (r queries) ReturnedQuantities(ctx context.Context, saleID string) (map[string]decimal.Decimal, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT rl.sale_line_id, SUM(rl.quantity)
		FROM return_lines rl
		JOIN returns r ON r.id = rl.return_id
		WHERE r.sale_id = $1 AND r.state = 'processed'
		GROUP BY rl.sale_line_id
	`, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	returned := make(map[string]decimal.Decimal)
	for rows.Next() {
		var lineID string
		var qty decimal.Decimal
		if err := rows.Scan(&lineID, &qty); err != nil {
			return nil, err
		}
		returned[lineID] = qty
	}
	return returned, rows.Err()
}

const sessionColumns = `id, actor_id, opened_at, closed_at, opening_float, counted_amount, expected_amount,
	variance, state, notes`

func scanSession(row rowScanner) (domain.CashSession, error) {
	var s domain.CashSession
	var closedAt sql.NullTime
	var counted, expected, variance decimal.NullDecimal
	err := row.Scan(&s.ID, &s.ActorID, &s.OpenedAt, &closedAt, &s.OpeningFloat, &counted, &expected, &variance, &s.State, &s.Notes)
	if err != nil {
		return s, err
	}
	s.OpenedAt = s.OpenedAt.UTC()
	s.ClosedAt = timePtr(closedAt)
	s.CountedAmount = decimalPtr(counted)
	s.ExpectedAmount = decimalPtr(expected)
	s.Variance = decimalPtr(variance)
	return s, nil
}

func (r queries) GetCashSession(ctx context.Context, id string) (*domain.CashSession, error) {
	s, err := scanSession(r.q.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM cash_sessions WHERE id = $1`, id))
	if err != nil {
		return nil, notFoundOr(err, "cash session", id)
	}
	return &s, nil
}

func (r queries) GetOpenCashSession(ctx context.Context, actorID string) (*domain.CashSession, error) {
	s, err := scanSession(r.q.QueryRowContext(ctx, `
		SELECT `+sessionColumns+` FROM cash_sessions WHERE actor_id = $1 AND state = 'open'`, actorID))
	if err != nil {
		return nil, notFoundOr(err, "open cash session for actor", actorID)
	}
	return &s, nil
}

func (r queries) ListCashSessions(ctx context.Context, filter domain.ListFilter) (domain.Page[domain.CashSession], error) {
	w := newWhere(filter, "opened_at", "actor_id", "state")
	page := domain.Page[domain.CashSession]{}
	total, err := r.count(ctx, "cash_sessions", w)
	if err != nil {
		return page, err
	}
	n := filter.Normalize()
	rows, err := r.q.QueryContext(ctx, `SELECT `+sessionColumns+` FROM cash_sessions`+w.sql()+`
		ORDER BY opened_at DESC, id DESC`+w.limit(n), w.args...)
	if err != nil {
		return page, err
	}
	defer rows.Close()

	sessions := make([]domain.CashSession, 0, n.Limit)
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return page, err
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return page, err
	}
	return domain.Page[domain.CashSession]{Items: sessions, Total: total, Page: n.Page, Limit: n.Limit}, nil
}

func (r queries) ListCashMovements(ctx context.Context, sessionID string) ([]domain.CashMovement, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, session_id, kind, amount, concept, reference_id, actor_id, created_at
		FROM cash_movements
		WHERE session_id = $1
		ORDER BY seq ASC
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	movements := make([]domain.CashMovement, 0, 32)
	for rows.Next() {
		var m domain.CashMovement
		var reference sql.NullString
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Kind, &m.Amount, &m.Concept, &reference, &m.ActorID, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.ReferenceID = reference.String
		m.CreatedAt = m.CreatedAt.UTC()
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

func (r queries) count(ctx context.Context, table string, w *where) (int, error) {
	var total int
	err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table+w.sql(), w.args...).Scan(&total)
	return total, err
}

// where accumulates AND-ed conditions written with ? placeholders and
// renumbers them to $n.
type where struct {
	conds []string
	args  []any
}

func newWhere(f domain.ListFilter, timeCol string, actorCol string, stateCol string) *where {
	w := &where{}
	if f.From != nil {
		w.add(timeCol+" >= ?", *f.From)
	}
	if f.To != nil {
		w.add(timeCol+" < ?", *f.To)
	}
	if f.ActorID != "" && actorCol != "" {
		w.add(actorCol+" = ?", f.ActorID)
	}
	if f.State != "" && stateCol != "" {
		w.add(stateCol+" = ?", f.State)
	}
	return w
}

func (w *where) add(cond string, arg any) {
	w.args = append(w.args, arg)
	w.conds = append(w.conds, strings.Replace(cond, "?", fmt.Sprintf("$%d", len(w.args)), 1))
}

func (w *where) sql() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

func (w *where) limit(f domain.ListFilter) string {
	return fmt.Sprintf(" LIMIT %d OFFSET %d", f.Limit, f.Offset())
}

func decimalPtr(val decimal.NullDecimal) *decimal.Decimal {
	if !val.Valid {
		return nil
	}
	d := val.Decimal
	return &d
}

func nullDecimal(val *decimal.Decimal) any {
	if val == nil {
		return nil
	}
	return *val
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
