package memory

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"

	"poscore/backend/internal/domain"
)

// reader answers queries against state. Callers hold the store lock.
type reader struct {
	st *state
}

func (r reader) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	product, ok := r.st.products[id]
	if !ok {
		return nil, domain.NotFound("product", id)
	}
	return &product, nil
}

func (r reader) ListProducts(_ context.Context, lowStockOnly bool) ([]domain.Product, error) {
	products := make([]domain.Product, 0, len(r.st.products))
	for _, product := range r.st.products {
		if lowStockOnly && (!product.Active || !product.LowStock()) {
			continue
		}
		products = append(products, product)
	}
	sort.Slice(products, func(i, j int) bool {
		if products[i].Name != products[j].Name {
			return products[i].Name < products[j].Name
		}
		return products[i].ID < products[j].ID
	})
	return products, nil
}

func (r reader) ListProductMovements(_ context.Context, productID string) ([]domain.InventoryMovement, error) {
	movements := make([]domain.InventoryMovement, 0, 16)
	for _, movement := range r.st.movements {
		if movement.ProductID == productID {
			movements = append(movements, movement)
		}
	}
	return movements, nil
}

func (r reader) ListMovements(_ context.Context, filter domain.MovementFilter) (domain.Page[domain.InventoryMovement], error) {
	base := filter.ListFilter
	base.State = ""
	matched := make([]domain.InventoryMovement, 0, 32)
	for i := len(r.st.movements) - 1; i >= 0; i-- {
		movement := r.st.movements[i]
		if filter.ProductID != "" && movement.ProductID != filter.ProductID {
			continue
		}
		if filter.Kind != "" && movement.Kind != filter.Kind {
			continue
		}
		if !base.Matches(movement.CreatedAt, movement.ActorID, "") {
			continue
		}
		matched = append(matched, movement)
	}
	return domain.Paginate(matched, filter.ListFilter), nil
}

func (r reader) GetClient(_ context.Context, id string) (*domain.Client, error) {
	client, ok := r.st.clients[id]
	if !ok {
		return nil, domain.NotFound("client", id)
	}
	return &client, nil
}

func (r reader) ListClients(_ context.Context) ([]domain.Client, error) {
	clients := make([]domain.Client, 0, len(r.st.clients))
	for _, client := range r.st.clients {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i].Name < clients[j].Name })
	return clients, nil
}

func (r reader) GetSupplier(_ context.Context, id string) (*domain.Supplier, error) {
	supplier, ok := r.st.suppliers[id]
	if !ok {
		return nil, domain.NotFound("supplier", id)
	}
	return &supplier, nil
}

func (r reader) ListSuppliers(_ context.Context) ([]domain.Supplier, error) {
	suppliers := make([]domain.Supplier, 0, len(r.st.suppliers))
	for _, supplier := range r.st.suppliers {
		suppliers = append(suppliers, supplier)
	}
	sort.Slice(suppliers, func(i, j int) bool { return suppliers[i].Name < suppliers[j].Name })
	return suppliers, nil
}

func (r reader) GetPaymentMethod(_ context.Context, id string) (*domain.PaymentMethod, error) {
	method, ok := r.st.paymentMethods[id]
	if !ok {
		return nil, domain.NotFound("payment method", id)
	}
	return &method, nil
}

func (r reader) ListPaymentMethods(_ context.Context) ([]domain.PaymentMethod, error) {
	methods := make([]domain.PaymentMethod, 0, len(r.st.paymentMethods))
	for _, method := range r.st.paymentMethods {
		methods = append(methods, method)
	}
	sort.Slice(methods, func(i, j int) bool { return methods[i].Name < methods[j].Name })
	return methods, nil
}

func (r reader) GetDiscountByCode(_ context.Context, code string) (*domain.DiscountCode, error) {
	id, ok := r.st.discountByCode[normalizeCode(code)]
	if !ok {
		return nil, domain.NotFound("discount code", code)
	}
	discount := r.st.discounts[id]
	return &discount, nil
}

func (r reader) ListDiscounts(_ context.Context) ([]domain.DiscountCode, error) {
	discounts := make([]domain.DiscountCode, 0, len(r.st.discounts))
	for _, discount := range r.st.discounts {
		discounts = append(discounts, discount)
	}
	sort.Slice(discounts, func(i, j int) bool { return discounts[i].Code < discounts[j].Code })
	return discounts, nil
}

func (r reader) GetSale(_ context.Context, id string) (*domain.Sale, error) {
	sale, ok := r.st.sales[id]
	if !ok {
		return nil, domain.NotFound("sale", id)
	}
	out := cloneSale(sale)
	return &out, nil
}

func (r reader) ListSales(_ context.Context, filter domain.ListFilter) (domain.Page[domain.Sale], error) {
	matched := make([]domain.Sale, 0, 32)
	for _, sale := range r.st.sales {
		if filter.Matches(sale.CreatedAt, sale.ActorID, string(sale.State)) {
			matched = append(matched, cloneSale(sale))
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].InvoiceNumber > matched[j].InvoiceNumber
	})
	return domain.Paginate(matched, filter), nil
}

func (r reader) GetPurchase(_ context.Context, id string) (*domain.Purchase, error) {
	purchase, ok := r.st.purchases[id]
	if !ok {
		return nil, domain.NotFound("purchase", id)
	}
	out := clonePurchase(purchase)
	return &out, nil
}

func (r reader) ListPurchases(_ context.Context, filter domain.ListFilter) (domain.Page[domain.Purchase], error) {
	matched := make([]domain.Purchase, 0, 32)
	for _, purchase := range r.st.purchases {
		if filter.Matches(purchase.CreatedAt, purchase.ActorID, string(purchase.State)) {
			matched = append(matched, clonePurchase(purchase))
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})
	return domain.Paginate(matched, filter), nil
}

func (r reader) GetReturn(_ context.Context, id string) (*domain.Return, error) {
	ret, ok := r.st.returns[id]
	if !ok {
		return nil, domain.NotFound("return", id)
	}
	out := cloneReturn(ret)
	return &out, nil
}

func (r reader) ListReturns(_ context.Context, filter domain.ListFilter) (domain.Page[domain.Return], error) {
	matched := make([]domain.Return, 0, 32)
	for _, ret := range r.st.returns {
		if filter.Matches(ret.CreatedAt, ret.ActorID, string(ret.State)) {
			matched = append(matched, cloneReturn(ret))
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ReturnNumber > matched[j].ReturnNumber
	})
	return domain.Paginate(matched, filter), nil
}

func (r reader) ReturnedQuantities(_ context.Context, saleID string) (map[string]decimal.Decimal, error) {
	returned := make(map[string]decimal.Decimal)
	for _, ret := range r.st.returns {
		if ret.SaleID != saleID || ret.State != domain.ReturnProcessed {
			continue
		}
		for _, line := range ret.Lines {
			returned[line.SaleLineID] = returned[line.SaleLineID].Add(line.Quantity)
		}
	}
	return returned, nil
}

func (r reader) GetCashSession(_ context.Context, id string) (*domain.CashSession, error) {
	session, ok := r.st.sessions[id]
	if !ok {
		return nil, domain.NotFound("cash session", id)
	}
	return &session, nil
}

func (r reader) GetOpenCashSession(_ context.Context, actorID string) (*domain.CashSession, error) {
	id, ok := r.st.openSessions[actorID]
	if !ok {
		return nil, domain.NotFound("open cash session for actor", actorID)
	}
	session := r.st.sessions[id]
	return &session, nil
}

func (r reader) ListCashSessions(_ context.Context, filter domain.ListFilter) (domain.Page[domain.CashSession], error) {
	matched := make([]domain.CashSession, 0, 16)
	for _, session := range r.st.sessions {
		if filter.Matches(session.OpenedAt, session.ActorID, string(session.State)) {
			matched = append(matched, session)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].OpenedAt.Equal(matched[j].OpenedAt) {
			return matched[i].OpenedAt.After(matched[j].OpenedAt)
		}
		return matched[i].ID > matched[j].ID
	})
	return domain.Paginate(matched, filter), nil
}

func (r reader) ListCashMovements(_ context.Context, sessionID string) ([]domain.CashMovement, error) {
	movements := make([]domain.CashMovement, 0, 16)
	for _, movement := range r.st.cashMovements {
		if movement.SessionID == sessionID {
			movements = append(movements, movement)
		}
	}
	return movements, nil
}

// The Store read methods take the read lock and delegate to reader.

func (s *Store) read() (reader, func()) {
	s.mu.RLock()
	return reader{st: s.st}, s.mu.RUnlock
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	r, done := s.read()
	defer done()
	return r.GetProduct(ctx, id)
}

func (s *Store) ListProducts(ctx context.Context, lowStockOnly bool) ([]domain.Product, error) {
	r, done := s.read()
	defer done()
	return r.ListProducts(ctx, lowStockOnly)
}

func (s *Store) ListProductMovements(ctx context.Context, productID string) ([]domain.InventoryMovement, error) {
	r, done := s.read()
	defer done()
	return r.ListProductMovements(ctx, productID)
}

func (s *Store) ListMovements(ctx context.Context, filter domain.MovementFilter) (domain.Page[domain.InventoryMovement], error) {
	r, done := s.read()
	defer done()
	return r.ListMovements(ctx, filter)
}

func (s *Store) GetClient(ctx context.Context, id string) (*domain.Client, error) {
	r, done := s.read()
	defer done()
	return r.GetClient(ctx, id)
}

func (s *Store) ListClients(ctx context.Context) ([]domain.Client, error) {
	r, done := s.read()
	defer done()
	return r.ListClients(ctx)
}

func (s *Store) GetSupplier(ctx context.Context, id string) (*domain.Supplier, error) {
	r, done := s.read()
	defer done()
	return r.GetSupplier(ctx, id)
}

func (s *Store) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	r, done := s.read()
	defer done()
	return r.ListSuppliers(ctx)
}

func (s *Store) GetPaymentMethod(ctx context.Context, id string) (*domain.PaymentMethod, error) {
	r, done := s.read()
	defer done()
	return r.GetPaymentMethod(ctx, id)
}

func (s *Store) ListPaymentMethods(ctx context.Context) ([]domain.PaymentMethod, error) {
	r, done := s.read()
	defer done()
	return r.ListPaymentMethods(ctx)
}

func (s *Store) GetDiscountByCode(ctx context.Context, code string) (*domain.DiscountCode, error) {
	r, done := s.read()
	defer done()
	return r.GetDiscountByCode(ctx, code)
}

func (s *Store) ListDiscounts(ctx context.Context) ([]domain.DiscountCode, error) {
	r, done := s.read()
	defer done()
	return r.ListDiscounts(ctx)
}

func (s *Store) GetSale(ctx context.Context, id string) (*domain.Sale, error) {
	r, done := s.read()
	defer done()
	return r.GetSale(ctx, id)
}

func (s *Store) ListSales(ctx context.Context, filter domain.ListFilter) (domain.Page[domain.Sale], error) {
	r, done := s.read()
	defer done()
	return r.ListSales(ctx, filter)
}

func (s *Store) GetPurchase(ctx context.Context, id string) (*domain.Purchase, error) {
	r, done := s.read()
	defer done()
	return r.GetPurchase(ctx, id)
}

func (s *Store) ListPurchases(ctx context.Context, filter domain.ListFilter) (domain.Page[domain.Purchase], error) {
	r, done := s.read()
	defer done()
	return r.ListPurchases(ctx, filter)
}

func (s *Store) GetReturn(ctx context.Context, id string) (*domain.Return, error) {
	r, done := s.read()
	defer done()
	return r.GetReturn(ctx, id)
}

func (s *Store) ListReturns(ctx context.Context, filter domain.ListFilter) (domain.Page[domain.Return], error) {
	r, done := s.read()
	defer done()
	return r.ListReturns(ctx, filter)
}

func (s *Store) ReturnedQuantities(ctx context.Context, saleID string) (map[string]decimal.Decimal, error) {
	r, done := s.read()
	defer done()
	return r.ReturnedQuantities(ctx, saleID)
}

func (s *Store) GetCashSession(ctx context.Context, id string) (*domain.CashSession, error) {
	r, done := s.read()
	defer done()
	return r.GetCashSession(ctx, id)
}

func (s *Store) GetOpenCashSession(ctx context.Context, actorID string) (*domain.CashSession, error) {
	r, done := s.read()
	defer done()
	return r.GetOpenCashSession(ctx, actorID)
}

func (s *Store) ListCashSessions(ctx context.Context, filter domain.ListFilter) (domain.Page[domain.CashSession], error) {
	r, done := s.read()
	defer done()
	return r.ListCashSessions(ctx, filter)
}

func (s *Store) ListCashMovements(ctx context.Context, sessionID string) ([]domain.CashMovement, error) {
	r, done := s.read()
	defer done()
	return r.ListCashMovements(ctx, sessionID)
}
