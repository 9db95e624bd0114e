package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"poscore/backend/internal/domain"
	"poscore/backend/internal/store"
)

// Store keeps everything in maps behind one RWMutex. A transaction holds the
// write lock for its whole lifetime and undoes its writes on failure, so
// transactions are fully serialized.
type Store struct {
	mu sync.RWMutex
	st *state
}

type state struct {
	products       map[string]domain.Product
	movements      []domain.InventoryMovement
	clients        map[string]domain.Client
	suppliers      map[string]domain.Supplier
	paymentMethods map[string]domain.PaymentMethod
	discounts      map[string]domain.DiscountCode
	discountByCode map[string]string
	sales          map[string]domain.Sale
	saleNumbers    map[string]string
	purchases      map[string]domain.Purchase
	returns        map[string]domain.Return
	returnNumbers  map[string]string
	sessions       map[string]domain.CashSession
	openSessions   map[string]string
	cashMovements  []domain.CashMovement
	users          map[string]domain.UserAccount
}

var _ store.Repository = (*Store)(nil)

func New() *Store {
	return &Store{st: &state{
		products:       make(map[string]domain.Product),
		movements:      make([]domain.InventoryMovement, 0, 64),
		clients:        make(map[string]domain.Client),
		suppliers:      make(map[string]domain.Supplier),
		paymentMethods: make(map[string]domain.PaymentMethod),
		discounts:      make(map[string]domain.DiscountCode),
		discountByCode: make(map[string]string),
		sales:          make(map[string]domain.Sale),
		saleNumbers:    make(map[string]string),
		purchases:      make(map[string]domain.Purchase),
		returns:        make(map[string]domain.Return),
		returnNumbers:  make(map[string]string),
		sessions:       make(map[string]domain.CashSession),
		openSessions:   make(map[string]string),
		cashMovements:  make([]domain.CashMovement, 0, 64),
		users:          make(map[string]domain.UserAccount),
	}}
}

func (s *Store) InTx(ctx context.Context, fn func(tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tx, err := s.run(ctx, fn)
	if err != nil {
		return err
	}
	for _, hook := range tx.hooks {
		hook()
	}
	return nil
}

func (s *Store) run(ctx context.Context, fn func(tx store.Tx) error) (*memTx, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{reader: reader{st: s.st}}
	committed := false
	defer func() {
		if !committed {
			tx.rollback()
		}
	}()

	if err := fn(tx); err != nil {
		return nil, err
	}
	// A caller that gave up while we were working gets a rollback, never a
	// half-applied commit.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	committed = true
	return tx, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" {
		return domain.Validation("username is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.st.users[user.Username]; exists {
		return domain.InvalidState("user %s already exists", user.Username)
	}
	s.st.users[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.st.users))
	for _, user := range s.st.users {
		users = append(users, user)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.st.users[username]
	if !ok {
		return domain.NotFound("user", username)
	}
	user.Password = password
	s.st.users[username] = user
	return nil
}

// memTx writes straight into the shared state and records how to undo each write.
type memTx struct {
	reader
	undo  []func()
	hooks []func()
}

var _ store.Tx = (*memTx)(nil)

func (t *memTx) AfterCommit(fn func()) {
	t.hooks = append(t.hooks, fn)
}

func (t *memTx) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

func put[K comparable, V any](t *memTx, m map[K]V, key K, value V) {
	prev, existed := m[key]
	m[key] = value
	t.undo = append(t.undo, func() {
		if existed {
			m[key] = prev
		} else {
			delete(m, key)
		}
	})
}

func (t *memTx) LockProduct(ctx context.Context, id string) (*domain.Product, error) {
	return t.GetProduct(ctx, id)
}

func (t *memTx) CreateProduct(_ context.Context, product domain.Product) error {
	if _, exists := t.st.products[product.ID]; exists {
		return domain.InvalidState("product %s already exists", product.ID)
	}
	for _, existing := range t.st.products {
		if product.SKU != "" && existing.SKU == product.SKU {
			return domain.InvalidState("sku %s already exists", product.SKU)
		}
	}
	put(t, t.st.products, product.ID, product)
	return nil
}

func (t *memTx) UpdateProduct(_ context.Context, product domain.Product) error {
	current, ok := t.st.products[product.ID]
	if !ok {
		return domain.NotFound("product", product.ID)
	}
	// Stock and cost have their own entry points.
	product.Stock = current.Stock
	product.AverageCost = current.AverageCost
	put(t, t.st.products, product.ID, product)
	return nil
}

func (t *memTx) SetProductStock(_ context.Context, id string, stock decimal.Decimal) error {
	product, ok := t.st.products[id]
	if !ok {
		return domain.NotFound("product", id)
	}
	if stock.IsNegative() {
		return fmt.Errorf("product %s stock would become %s", id, stock)
	}
	product.Stock = stock
	put(t, t.st.products, id, product)
	return nil
}

func (t *memTx) SetProductCost(_ context.Context, id string, cost decimal.Decimal) error {
	product, ok := t.st.products[id]
	if !ok {
		return domain.NotFound("product", id)
	}
	product.AverageCost = cost
	put(t, t.st.products, id, product)
	return nil
}

func (t *memTx) InsertMovement(_ context.Context, movement domain.InventoryMovement) error {
	if _, ok := t.st.products[movement.ProductID]; !ok {
		return domain.NotFound("product", movement.ProductID)
	}
	n := len(t.st.movements)
	t.st.movements = append(t.st.movements, movement)
	t.undo = append(t.undo, func() { t.st.movements = t.st.movements[:n] })
	return nil
}

func (t *memTx) CreateClient(_ context.Context, client domain.Client) error {
	put(t, t.st.clients, client.ID, client)
	return nil
}

func (t *memTx) CreateSupplier(_ context.Context, supplier domain.Supplier) error {
	put(t, t.st.suppliers, supplier.ID, supplier)
	return nil
}

func (t *memTx) CreatePaymentMethod(_ context.Context, method domain.PaymentMethod) error {
	put(t, t.st.paymentMethods, method.ID, method)
	return nil
}

func (t *memTx) CreateDiscount(_ context.Context, discount domain.DiscountCode) error {
	key := normalizeCode(discount.Code)
	if _, exists := t.st.discountByCode[key]; exists {
		return domain.InvalidState("discount code %s already exists", discount.Code)
	}
	put(t, t.st.discounts, discount.ID, discount)
	put(t, t.st.discountByCode, key, discount.ID)
	return nil
}

func (t *memTx) LockDiscount(_ context.Context, id string) (*domain.DiscountCode, error) {
	discount, ok := t.st.discounts[id]
	if !ok {
		return nil, domain.NotFound("discount", id)
	}
	return &discount, nil
}

func (t *memTx) LockDiscountByCode(ctx context.Context, code string) (*domain.DiscountCode, error) {
	return t.GetDiscountByCode(ctx, code)
}

func (t *memTx) SetDiscountUsage(_ context.Context, id string, usage int) error {
	discount, ok := t.st.discounts[id]
	if !ok {
		return domain.NotFound("discount", id)
	}
	if usage < 0 {
		return fmt.Errorf("discount %s usage would become %d", id, usage)
	}
	discount.UsageCount = usage
	put(t, t.st.discounts, id, discount)
	return nil
}

func (t *memTx) MaxSaleNumber(_ context.Context, prefix string) (string, error) {
	return maxWithPrefix(t.st.saleNumbers, prefix), nil
}

func (t *memTx) MaxReturnNumber(_ context.Context, prefix string) (string, error) {
	return maxWithPrefix(t.st.returnNumbers, prefix), nil
}

func (t *memTx) InsertSale(_ context.Context, sale domain.Sale) error {
	if _, exists := t.st.saleNumbers[sale.InvoiceNumber]; exists {
		return fmt.Errorf("invoice number %s already issued", sale.InvoiceNumber)
	}
	put(t, t.st.sales, sale.ID, cloneSale(sale))
	put(t, t.st.saleNumbers, sale.InvoiceNumber, sale.ID)
	return nil
}

func (t *memTx) LockSale(ctx context.Context, id string) (*domain.Sale, error) {
	return t.GetSale(ctx, id)
}

// UpdateSale persists the mutable part of a sale: its state and the fields
// that go with state transitions. Financial fields and lines are kept.
func (t *memTx) UpdateSale(_ context.Context, sale domain.Sale) error {
	current, ok := t.st.sales[sale.ID]
	if !ok {
		return domain.NotFound("sale", sale.ID)
	}
	current.State = sale.State
	current.CashSessionID = sale.CashSessionID
	current.CompletedAt = sale.CompletedAt
	current.CancelledAt = sale.CancelledAt
	current.CancelReason = sale.CancelReason
	put(t, t.st.sales, sale.ID, current)
	return nil
}

func (t *memTx) InsertPurchase(_ context.Context, purchase domain.Purchase) error {
	put(t, t.st.purchases, purchase.ID, clonePurchase(purchase))
	return nil
}

func (t *memTx) LockPurchase(ctx context.Context, id string) (*domain.Purchase, error) {
	return t.GetPurchase(ctx, id)
}

func (t *memTx) UpdatePurchase(_ context.Context, purchase domain.Purchase) error {
	current, ok := t.st.purchases[purchase.ID]
	if !ok {
		return domain.NotFound("purchase", purchase.ID)
	}
	current.State = purchase.State
	current.ReceivedAt = purchase.ReceivedAt
	current.CancelledAt = purchase.CancelledAt
	put(t, t.st.purchases, purchase.ID, current)
	return nil
}

func (t *memTx) InsertReturn(_ context.Context, ret domain.Return) error {
	if _, exists := t.st.returnNumbers[ret.ReturnNumber]; exists {
		return fmt.Errorf("return number %s already issued", ret.ReturnNumber)
	}
	put(t, t.st.returns, ret.ID, cloneReturn(ret))
	put(t, t.st.returnNumbers, ret.ReturnNumber, ret.ID)
	return nil
}

func (t *memTx) LockReturn(ctx context.Context, id string) (*domain.Return, error) {
	return t.GetReturn(ctx, id)
}

func (t *memTx) UpdateReturn(_ context.Context, ret domain.Return) error {
	current, ok := t.st.returns[ret.ID]
	if !ok {
		return domain.NotFound("return", ret.ID)
	}
	current.State = ret.State
	current.CancelledAt = ret.CancelledAt
	put(t, t.st.returns, ret.ID, current)
	return nil
}

func (t *memTx) InsertCashSession(_ context.Context, session domain.CashSession) error {
	if session.State == domain.CashSessionOpen {
		if _, exists := t.st.openSessions[session.ActorID]; exists {
			return domain.SessionAlreadyOpen(session.ActorID)
		}
		put(t, t.st.openSessions, session.ActorID, session.ID)
	}
	put(t, t.st.sessions, session.ID, session)
	return nil
}

func (t *memTx) LockCashSession(ctx context.Context, id string) (*domain.CashSession, error) {
	return t.GetCashSession(ctx, id)
}

func (t *memTx) LockOpenCashSession(ctx context.Context, actorID string) (*domain.CashSession, error) {
	return t.GetOpenCashSession(ctx, actorID)
}

func (t *memTx) UpdateCashSession(_ context.Context, session domain.CashSession) error {
	current, ok := t.st.sessions[session.ID]
	if !ok {
		return domain.NotFound("cash session", session.ID)
	}
	if current.State == domain.CashSessionOpen && session.State != domain.CashSessionOpen {
		prev := t.st.openSessions[current.ActorID]
		delete(t.st.openSessions, current.ActorID)
		t.undo = append(t.undo, func() { t.st.openSessions[current.ActorID] = prev })
	}
	put(t, t.st.sessions, session.ID, session)
	return nil
}

func (t *memTx) InsertCashMovement(_ context.Context, movement domain.CashMovement) error {
	if _, ok := t.st.sessions[movement.SessionID]; !ok {
		return domain.NotFound("cash session", movement.SessionID)
	}
	n := len(t.st.cashMovements)
	t.st.cashMovements = append(t.st.cashMovements, movement)
	t.undo = append(t.undo, func() { t.st.cashMovements = t.st.cashMovements[:n] })
	return nil
}

func maxWithPrefix(numbers map[string]string, prefix string) string {
	last := ""
	for number := range numbers {
		if strings.HasPrefix(number, prefix) && number > last {
			last = number
		}
	}
	return last
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func cloneSale(src domain.Sale) domain.Sale {
	dst := src
	dst.Lines = append([]domain.SaleLine(nil), src.Lines...)
	return dst
}

func clonePurchase(src domain.Purchase) domain.Purchase {
	dst := src
	dst.Lines = append([]domain.PurchaseLine(nil), src.Lines...)
	return dst
}

func cloneReturn(src domain.Return) domain.Return {
	dst := src
	dst.Lines = append([]domain.ReturnLine(nil), src.Lines...)
	return dst
}
