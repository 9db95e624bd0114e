package store

import (
	"context"

	"github.com/shopspring/decimal"

	"poscore/backend/internal/domain"
)

// Repository is the storage boundary of the engine. Every mutation of stock,
// ledger, documents, discount usage or cash happens inside InTx.
type Repository interface {
	Reader
	UserStore

	// InTx runs fn inside one transaction. fn's error rolls everything back and
	// is returned unchanged. Hooks registered through Tx.AfterCommit run only
	// once the commit succeeded.
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// Reader is the read side shared by the repository and open transactions.
type Reader interface {
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	ListProducts(ctx context.Context, lowStockOnly bool) ([]domain.Product, error)
	ListProductMovements(ctx context.Context, productID string) ([]domain.InventoryMovement, error)
	ListMovements(ctx context.Context, filter domain.MovementFilter) (domain.Page[domain.InventoryMovement], error)

	GetClient(ctx context.Context, id string) (*domain.Client, error)
	ListClients(ctx context.Context) ([]domain.Client, error)
	GetSupplier(ctx context.Context, id string) (*domain.Supplier, error)
	ListSuppliers(ctx context.Context) ([]domain.Supplier, error)
	GetPaymentMethod(ctx context.Context, id string) (*domain.PaymentMethod, error)
	ListPaymentMethods(ctx context.Context) ([]domain.PaymentMethod, error)

	GetDiscountByCode(ctx context.Context, code string) (*domain.DiscountCode, error)
	ListDiscounts(ctx context.Context) ([]domain.DiscountCode, error)

	GetSale(ctx context.Context, id string) (*domain.Sale, error)
	ListSales(ctx context.Context, filter domain.ListFilter) (domain.Page[domain.Sale], error)
	GetPurchase(ctx context.Context, id string) (*domain.Purchase, error)
	ListPurchases(ctx context.Context, filter domain.ListFilter) (domain.Page[domain.Purchase], error)
	GetReturn(ctx context.Context, id string) (*domain.Return, error)
	ListReturns(ctx context.Context, filter domain.ListFilter) (domain.Page[domain.Return], error)
	// ReturnedQuantities sums processed return quantities per sale line id.
	ReturnedQuantities(ctx context.Context, saleID string) (map[string]decimal.Decimal, error)

	GetCashSession(ctx context.Context, id string) (*domain.CashSession, error)
	GetOpenCashSession(ctx context.Context, actorID string) (*domain.CashSession, error)
	ListCashSessions(ctx context.Context, filter domain.ListFilter) (domain.Page[domain.CashSession], error)
	ListCashMovements(ctx context.Context, sessionID string) ([]domain.CashMovement, error)
}

// Tx is a live unit of work handed to every transaction-scoped collaborator.
// Lock* methods take a row lock held until the transaction ends.
type Tx interface {
	Reader

	LockProduct(ctx context.Context, id string) (*domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) error
	UpdateProduct(ctx context.Context, product domain.Product) error
	SetProductStock(ctx context.Context, id string, stock decimal.Decimal) error
	SetProductCost(ctx context.Context, id string, cost decimal.Decimal) error
	InsertMovement(ctx context.Context, movement domain.InventoryMovement) error

	CreateClient(ctx context.Context, client domain.Client) error
	CreateSupplier(ctx context.Context, supplier domain.Supplier) error
	CreatePaymentMethod(ctx context.Context, method domain.PaymentMethod) error

	CreateDiscount(ctx context.Context, discount domain.DiscountCode) error
	LockDiscount(ctx context.Context, id string) (*domain.DiscountCode, error)
	LockDiscountByCode(ctx context.Context, code string) (*domain.DiscountCode, error)
	SetDiscountUsage(ctx context.Context, id string, usage int) error

	// MaxSaleNumber and MaxReturnNumber return the highest number issued under
	// prefix, or "" when there is none. They serialize numbering per prefix
	// until the transaction ends.
	MaxSaleNumber(ctx context.Context, prefix string) (string, error)
	MaxReturnNumber(ctx context.Context, prefix string) (string, error)

	InsertSale(ctx context.Context, sale domain.Sale) error
	LockSale(ctx context.Context, id string) (*domain.Sale, error)
	UpdateSale(ctx context.Context, sale domain.Sale) error

	InsertPurchase(ctx context.Context, purchase domain.Purchase) error
	LockPurchase(ctx context.Context, id string) (*domain.Purchase, error)
	UpdatePurchase(ctx context.Context, purchase domain.Purchase) error

	InsertReturn(ctx context.Context, ret domain.Return) error
	LockReturn(ctx context.Context, id string) (*domain.Return, error)
	UpdateReturn(ctx context.Context, ret domain.Return) error

	InsertCashSession(ctx context.Context, session domain.CashSession) error
	LockCashSession(ctx context.Context, id string) (*domain.CashSession, error)
	LockOpenCashSession(ctx context.Context, actorID string) (*domain.CashSession, error)
	UpdateCashSession(ctx context.Context, session domain.CashSession) error
	InsertCashMovement(ctx context.Context, movement domain.CashMovement) error

	AfterCommit(fn func())
}

type UserStore interface {
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
