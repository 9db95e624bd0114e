package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Actor struct {
	Username string `json:"username"`
	Role     string `json:"role"`
}

const (
	RoleAdmin   = "admin"
	RoleCashier = "cashier"
)

type UserAccount struct {
	Username  string    `json:"username"`
	Password  string    `json:"-"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type CashierCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type CashierUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

// Product stock is only ever changed through the inventory ledger.
type Product struct {
	ID          string          `json:"id"`
	SKU         string          `json:"sku"`
	Name        string          `json:"name"`
	Stock       decimal.Decimal `json:"stock"`
	MinStock    decimal.Decimal `json:"min_stock"`
	SalePrice   decimal.Decimal `json:"sale_price"`
	AverageCost decimal.Decimal `json:"average_cost"`
	Active      bool            `json:"active"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func (p Product) LowStock() bool {
	return p.Stock.LessThanOrEqual(p.MinStock)
}

type ProductCreateRequest struct {
	SKU          string          `json:"sku" validate:"required,max=64"`
	Name         string          `json:"name" validate:"required,max=200"`
	SalePrice    decimal.Decimal `json:"sale_price" validate:"dgte0,dscale=2"`
	AverageCost  decimal.Decimal `json:"average_cost" validate:"dgte0,dscale=4"`
	MinStock     decimal.Decimal `json:"min_stock" validate:"dgte0,dscale=3"`
	InitialStock decimal.Decimal `json:"initial_stock" validate:"dgte0,dscale=3"`
}

type ProductUpdateRequest struct {
	Name      *string          `json:"name,omitempty"`
	SalePrice *decimal.Decimal `json:"sale_price,omitempty" validate:"omitempty,dgte0,dscale=2"`
	MinStock  *decimal.Decimal `json:"min_stock,omitempty" validate:"omitempty,dgte0,dscale=3"`
	Active    *bool            `json:"active,omitempty"`
}

type MovementKind string

const (
	MovementIn     MovementKind = "IN"
	MovementOut    MovementKind = "OUT"
	MovementAdjust MovementKind = "ADJUST"
)

func (k MovementKind) Valid() bool {
	switch k {
	case MovementIn, MovementOut, MovementAdjust:
		return true
	}
	return false
}

// InventoryMovement is an immutable ledger entry. Quantity is the positive
// magnitude of the change, Delta carries its sign.
type InventoryMovement struct {
	ID          string          `json:"id"`
	ProductID   string          `json:"product_id"`
	Kind        MovementKind    `json:"kind"`
	Quantity    decimal.Decimal `json:"quantity"`
	Delta       decimal.Decimal `json:"delta"`
	StockAfter  decimal.Decimal `json:"stock_after"`
	Reason      string          `json:"reason"`
	ReferenceID string          `json:"reference_id,omitempty"`
	ActorID     string          `json:"actor_id"`
	CreatedAt   time.Time       `json:"created_at"`
}

// StockMovementRequest drives a manual ledger entry. For ADJUST, Quantity is
// the counted absolute stock.
type StockMovementRequest struct {
	Kind     MovementKind    `json:"kind" validate:"required,oneof=IN OUT ADJUST"`
	Quantity decimal.Decimal `json:"quantity" validate:"dscale=3"`
	Reason   string          `json:"reason" validate:"max=500"`
}

type StockReconciliation struct {
	ProductID   string          `json:"product_id"`
	Stock       decimal.Decimal `json:"stock"`
	LedgerStock decimal.Decimal `json:"ledger_stock"`
	Difference  decimal.Decimal `json:"difference"`
	Movements   int             `json:"movements"`
	Consistent  bool            `json:"consistent"`
}

type Client struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

type Supplier struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

const (
	PaymentKindCash     = "cash"
	PaymentKindCard     = "card"
	PaymentKindTransfer = "transfer"
)

type PaymentMethod struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Kind      string    `json:"kind"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

type MasterCreateRequest struct {
	Name string `json:"name" validate:"required,max=200"`
}

type PaymentMethodCreateRequest struct {
	Name string `json:"name" validate:"required,max=200"`
	Kind string `json:"kind" validate:"required,oneof=cash card transfer"`
}

type DiscountKind string

const (
	DiscountPercentage DiscountKind = "percentage"
	DiscountFixed      DiscountKind = "fixed"
)

// DiscountCode is valid on [StartsAt, EndsAt]. A nil bound is open.
type DiscountCode struct {
	ID         string          `json:"id"`
	Code       string          `json:"code"`
	Kind       DiscountKind    `json:"kind"`
	Value      decimal.Decimal `json:"value"`
	StartsAt   *time.Time      `json:"starts_at,omitempty"`
	EndsAt     *time.Time      `json:"ends_at,omitempty"`
	Active     bool            `json:"active"`
	UsageCap   *int            `json:"usage_cap,omitempty"`
	UsageCount int             `json:"usage_count"`
	CreatedAt  time.Time       `json:"created_at"`
}

type DiscountCreateRequest struct {
	Code     string          `json:"code" validate:"required,max=64"`
	Kind     DiscountKind    `json:"kind" validate:"required,oneof=percentage fixed"`
	Value    decimal.Decimal `json:"value" validate:"dpos,dscale=2"`
	StartsAt *time.Time      `json:"starts_at,omitempty"`
	EndsAt   *time.Time      `json:"ends_at,omitempty"`
	UsageCap *int            `json:"usage_cap,omitempty" validate:"omitempty,min=1"`
}

type DiscountValidation struct {
	Valid    bool          `json:"valid"`
	Discount *DiscountCode `json:"discount,omitempty"`
	Reason   string        `json:"reason,omitempty"`
}

type SaleState string

const (
	SaleDraft     SaleState = "draft"
	SalePending   SaleState = "pending"
	SaleCompleted SaleState = "completed"
	SaleCancelled SaleState = "cancelled"
)

type Sale struct {
	ID              string          `json:"id"`
	InvoiceNumber   string          `json:"invoice_number"`
	ClientID        string          `json:"client_id,omitempty"`
	PaymentMethodID string          `json:"payment_method_id,omitempty"`
	ActorID         string          `json:"actor_id"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	ManualDiscount  decimal.Decimal `json:"manual_discount"`
	CouponDiscount  decimal.Decimal `json:"coupon_discount"`
	DiscountAmount  decimal.Decimal `json:"discount_amount"`
	TaxPercent      decimal.Decimal `json:"tax_percent"`
	TaxAmount       decimal.Decimal `json:"tax_amount"`
	Total           decimal.Decimal `json:"total"`
	DiscountID      string          `json:"discount_id,omitempty"`
	CashSessionID   string          `json:"cash_session_id,omitempty"`
	State           SaleState       `json:"state"`
	Notes           string          `json:"notes,omitempty"`
	CancelReason    string          `json:"cancel_reason,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
	CancelledAt     *time.Time      `json:"cancelled_at,omitempty"`
	Lines           []SaleLine      `json:"lines"`
}

func (s Sale) SoldQuantity() decimal.Decimal {
	total := decimal.Zero
	for _, line := range s.Lines {
		total = total.Add(line.Quantity)
	}
	return total
}

func (s Sale) Line(id string) (SaleLine, bool) {
	for _, line := range s.Lines {
		if line.ID == id {
			return line, true
		}
	}
	return SaleLine{}, false
}

type SaleLine struct {
	ID           string          `json:"id"`
	SaleID       string          `json:"sale_id"`
	ProductID    string          `json:"product_id"`
	Quantity     decimal.Decimal `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	LineDiscount decimal.Decimal `json:"line_discount"`
	Subtotal     decimal.Decimal `json:"subtotal"`
}

type SaleLineRequest struct {
	ProductID    string          `json:"product_id" validate:"required"`
	Quantity     decimal.Decimal `json:"quantity" validate:"dpos,dscale=3"`
	LineDiscount decimal.Decimal `json:"line_discount" validate:"dgte0,dscale=2"`
}

type SaleCreateRequest struct {
	ClientID        string            `json:"client_id,omitempty"`
	PaymentMethodID string            `json:"payment_method_id,omitempty"`
	Lines           []SaleLineRequest `json:"lines" validate:"required,min=1,dive"`
	ManualDiscount  decimal.Decimal   `json:"manual_discount" validate:"dgte0,dscale=2"`
	DiscountCode    string            `json:"discount_code,omitempty"`
	TaxPercent      *decimal.Decimal  `json:"tax_percent,omitempty"`
	State           SaleState         `json:"state,omitempty" validate:"omitempty,oneof=draft pending completed"`
	Notes           string            `json:"notes,omitempty" validate:"max=500"`
}

type SaleCancelRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type PurchaseState string

const (
	PurchasePending   PurchaseState = "pending"
	PurchaseCompleted PurchaseState = "completed"
	PurchaseCancelled PurchaseState = "cancelled"
)

type Purchase struct {
	ID            string          `json:"id"`
	InvoiceNumber string          `json:"invoice_number,omitempty"`
	SupplierID    string          `json:"supplier_id"`
	ActorID       string          `json:"actor_id"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	TaxPercent    decimal.Decimal `json:"tax_percent"`
	TaxAmount     decimal.Decimal `json:"tax_amount"`
	Total         decimal.Decimal `json:"total"`
	State         PurchaseState   `json:"state"`
	Notes         string          `json:"notes,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	ReceivedAt    *time.Time      `json:"received_at,omitempty"`
	CancelledAt   *time.Time      `json:"cancelled_at,omitempty"`
	Lines         []PurchaseLine  `json:"lines"`
}

type PurchaseLine struct {
	ID         string          `json:"id"`
	PurchaseID string          `json:"purchase_id"`
	ProductID  string          `json:"product_id"`
	Quantity   decimal.Decimal `json:"quantity"`
	UnitCost   decimal.Decimal `json:"unit_cost"`
	Subtotal   decimal.Decimal `json:"subtotal"`
}

type PurchaseLineRequest struct {
	ProductID string          `json:"product_id" validate:"required"`
	Quantity  decimal.Decimal `json:"quantity" validate:"dpos,dscale=3"`
	UnitCost  decimal.Decimal `json:"unit_cost" validate:"dgte0,dscale=4"`
}

type PurchaseCreateRequest struct {
	SupplierID    string                `json:"supplier_id" validate:"required"`
	InvoiceNumber string                `json:"invoice_number,omitempty" validate:"max=64"`
	Lines         []PurchaseLineRequest `json:"lines" validate:"required,min=1,dive"`
	TaxPercent    *decimal.Decimal      `json:"tax_percent,omitempty"`
	Notes         string                `json:"notes,omitempty" validate:"max=500"`
}

type ReturnKind string

const (
	ReturnPartial ReturnKind = "partial"
	ReturnTotal   ReturnKind = "total"
)

type ReturnState string

const (
	ReturnProcessed ReturnState = "processed"
	ReturnCancelled ReturnState = "cancelled"
)

type Return struct {
	ID            string          `json:"id"`
	ReturnNumber  string          `json:"return_number"`
	SaleID        string          `json:"sale_id"`
	ActorID       string          `json:"actor_id"`
	Reason        string          `json:"reason"`
	Kind          ReturnKind      `json:"kind"`
	RefundAmount  decimal.Decimal `json:"refund_amount"`
	State         ReturnState     `json:"state"`
	CashSessionID string          `json:"cash_session_id,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	CancelledAt   *time.Time      `json:"cancelled_at,omitempty"`
	Lines         []ReturnLine    `json:"lines"`
}

type ReturnLine struct {
	ID         string          `json:"id"`
	ReturnID   string          `json:"return_id"`
	SaleLineID string          `json:"sale_line_id"`
	ProductID  string          `json:"product_id"`
	Quantity   decimal.Decimal `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	Subtotal   decimal.Decimal `json:"subtotal"`
}

// ReturnLineRequest.Quantity only carries a scale rule: a non-positive
// quantity is reported as ReturnExceedsAvailable, not as a validation error.
type ReturnLineRequest struct {
	SaleLineID string          `json:"sale_line_id" validate:"required"`
	Quantity   decimal.Decimal `json:"quantity" validate:"dscale=3"`
}

type ReturnCreateRequest struct {
	SaleID string              `json:"sale_id" validate:"required"`
	Reason string              `json:"reason" validate:"max=500"`
	Lines  []ReturnLineRequest `json:"lines" validate:"required,min=1,dive"`
}

type CashSessionState string

const (
	CashSessionOpen   CashSessionState = "open"
	CashSessionClosed CashSessionState = "closed"
)

type CashSession struct {
	ID             string           `json:"id"`
	ActorID        string           `json:"actor_id"`
	OpenedAt       time.Time        `json:"opened_at"`
	ClosedAt       *time.Time       `json:"closed_at,omitempty"`
	OpeningFloat   decimal.Decimal  `json:"opening_float"`
	CountedAmount  *decimal.Decimal `json:"counted_amount,omitempty"`
	ExpectedAmount *decimal.Decimal `json:"expected_amount,omitempty"`
	Variance       *decimal.Decimal `json:"variance,omitempty"`
	State          CashSessionState `json:"state"`
	Notes          string           `json:"notes,omitempty"`
}

type CashMovementKind string

const (
	CashSale       CashMovementKind = "SALE"
	CashReturn     CashMovementKind = "RETURN"
	CashWithdrawal CashMovementKind = "WITHDRAWAL"
	CashDeposit    CashMovementKind = "DEPOSIT"
)

func (k CashMovementKind) Valid() bool {
	switch k {
	case CashSale, CashReturn, CashWithdrawal, CashDeposit:
		return true
	}
	return false
}

// Sign is +1 for money entering the drawer and -1 for money leaving it.
func (k CashMovementKind) Sign() int64 {
	if k == CashReturn || k == CashWithdrawal {
		return -1
	}
	return 1
}

type CashMovement struct {
	ID          string           `json:"id"`
	SessionID   string           `json:"session_id"`
	Kind        CashMovementKind `json:"kind"`
	Amount      decimal.Decimal  `json:"amount"`
	Concept     string           `json:"concept"`
	ReferenceID string           `json:"reference_id,omitempty"`
	ActorID     string           `json:"actor_id"`
	CreatedAt   time.Time        `json:"created_at"`
}

func (m CashMovement) Effect() decimal.Decimal {
	return m.Amount.Mul(decimal.NewFromInt(m.Kind.Sign()))
}

type CashSessionOpenRequest struct {
	OpeningFloat decimal.Decimal `json:"opening_float" validate:"dgte0,dscale=2"`
	Notes        string          `json:"notes,omitempty" validate:"max=500"`
}

type CashSessionCloseRequest struct {
	CountedAmount decimal.Decimal `json:"counted_amount" validate:"dgte0,dscale=2"`
	Notes         string          `json:"notes,omitempty" validate:"max=500"`
}

type CashMovementRequest struct {
	Kind    CashMovementKind `json:"kind" validate:"required,oneof=DEPOSIT WITHDRAWAL"`
	Amount  decimal.Decimal  `json:"amount" validate:"dpos,dscale=2"`
	Concept string           `json:"concept" validate:"required,max=200"`
}

type CashBalance struct {
	SessionID    string          `json:"session_id"`
	OpeningFloat decimal.Decimal `json:"opening_float"`
	Sales        decimal.Decimal `json:"sales"`
	Deposits     decimal.Decimal `json:"deposits"`
	Returns      decimal.Decimal `json:"returns"`
	Withdrawals  decimal.Decimal `json:"withdrawals"`
	Balance      decimal.Decimal `json:"balance"`
	Movements    int             `json:"movements"`
}

type CashSessionDetail struct {
	Session   CashSession    `json:"session"`
	Movements []CashMovement `json:"movements"`
	Balance   CashBalance    `json:"balance"`
}

// RoundMoney rounds to cents, half away from zero.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// PercentOf returns amount * pct / 100 rounded to cents.
func PercentOf(amount decimal.Decimal, pct decimal.Decimal) decimal.Decimal {
	return RoundMoney(amount.Mul(pct).Div(decimal.NewFromInt(100)))
}
