package memory

import (
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"poscore/backend/internal/domain"
	"poscore/backend/internal/xid"
)

// NewSeeded returns a store with demo users, products, masters and payment
// methods. Seed passwords come from SEED_ADMIN_PASSWORD and
// SEED_CASHIER_PASSWORD and fall back to dev defaults.
func NewSeeded(log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	s := New()
	now := time.Now().UTC()

	users, err := seedUsers(log, now)
	if err != nil {
		return nil, err
	}
	s.st.users = users

	for _, p := range []struct {
		sku, name        string
		price, cost, min string
		stock            int64
	}{
		{"SKU-COFFEE-01", "Ground Coffee 500g", "8.90", "5.10", "5", 40},
		{"SKU-MILK-01", "Whole Milk 1L", "1.35", "0.80", "12", 60},
		{"SKU-BREAD-01", "Sliced Bread", "2.10", "1.20", "10", 25},
		{"SKU-EGGS-12", "Eggs x12", "3.40", "2.05", "6", 30},
		{"SKU-WATER-06", "Mineral Water 600ml", "0.75", "0.30", "24", 120},
		{"SKU-SOAP-01", "Bath Soap", "1.60", "0.90", "8", 4},
	} {
		product := domain.Product{
			ID:          xid.New("prd"),
			SKU:         p.sku,
			Name:        p.name,
			Stock:       decimal.NewFromInt(p.stock),
			MinStock:    decimal.RequireFromString(p.min),
			SalePrice:   decimal.RequireFromString(p.price),
			AverageCost: decimal.RequireFromString(p.cost),
			Active:      true,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		s.st.products[product.ID] = product
		s.st.movements = append(s.st.movements, domain.InventoryMovement{
			ID:         xid.New("mov"),
			ProductID:  product.ID,
			Kind:       domain.MovementIn,
			Quantity:   product.Stock,
			Delta:      product.Stock,
			StockAfter: product.Stock,
			Reason:     "initial stock",
			ActorID:    "system",
			CreatedAt:  now,
		})
	}

	for _, name := range []string{"Walk-in Customer", "Corner Cafe Ltd"} {
		c := domain.Client{ID: xid.New("cli"), Name: name, Active: true, CreatedAt: now}
		s.st.clients[c.ID] = c
	}
	for _, name := range []string{"Fresh Foods Wholesale", "Northside Dairy"} {
		sup := domain.Supplier{ID: xid.New("sup"), Name: name, Active: true, CreatedAt: now}
		s.st.suppliers[sup.ID] = sup
	}
	for _, m := range []domain.PaymentMethod{
		{ID: "pm-cash", Name: "Cash", Kind: domain.PaymentKindCash},
		{ID: "pm-card", Name: "Card", Kind: domain.PaymentKindCard},
		{ID: "pm-transfer", Name: "Bank Transfer", Kind: domain.PaymentKindTransfer},
	} {
		m.Active = true
		m.CreatedAt = now
		s.st.paymentMethods[m.ID] = m
	}
	return s, nil
}

func seedUsers(log *zap.Logger, now time.Time) (map[string]domain.UserAccount, error) {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Warn("using default dev credentials for seeded users; set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override")
	}

	users := make(map[string]domain.UserAccount, 2)
	for _, u := range []struct {
		username, password, role string
	}{
		{"admin", adminPwd, domain.RoleAdmin},
		{"cashier", cashierPwd, domain.RoleCashier},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hash seed password for %s: %w", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
