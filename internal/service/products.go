package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"poscore/backend/internal/domain"
	"poscore/backend/internal/ledger"
	"poscore/backend/internal/store"
	"poscore/backend/internal/xid"
)

func (s *Service) ListProducts(ctx context.Context, lowStockOnly bool) ([]domain.Product, error) {
	products, err := s.repo.ListProducts(ctx, lowStockOnly)
	if err != nil {
		return nil, s.fail(ctx, "list_products", err)
	}
	return products, nil
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	product, err := s.repo.GetProduct(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Product{}, s.fail(ctx, "get_product", err)
	}
	return *product, nil
}

// CreateProduct registers a product together with the IN entry that explains
// its initial stock.
func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	product, err := s.createProduct(ctx, req)
	if err != nil {
		return domain.Product{}, s.fail(ctx, "create_product", err)
	}
	return product, nil
}

func (s *Service) createProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	actor, err := s.actor(ctx)
	if err != nil {
		return domain.Product{}, err
	}
	req.SKU = strings.ToUpper(strings.TrimSpace(req.SKU))
	req.Name = strings.TrimSpace(req.Name)
	if err := s.validate(req); err != nil {
		return domain.Product{}, err
	}

	now := s.now()
	product := domain.Product{
		ID:          xid.New("prd"),
		SKU:         req.SKU,
		Name:        req.Name,
		Stock:       req.InitialStock,
		MinStock:    req.MinStock,
		SalePrice:   domain.RoundMoney(req.SalePrice),
		AverageCost: domain.RoundMoney(req.AverageCost),
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err = s.repo.InTx(ctx, func(tx store.Tx) error {
		if err := tx.CreateProduct(ctx, product); err != nil {
			return err
		}
		if !product.Stock.IsPositive() {
			return nil
		}
		_, err := s.ledger.RecordTrace(ctx, tx, ledger.MovementInput{
			ProductID: product.ID,
			Kind:      domain.MovementIn,
			Quantity:  product.Stock,
			Reason:    "initial stock",
			ActorID:   actor.Username,
		})
		return err
	})
	if err != nil {
		return domain.Product{}, err
	}
	if product.Stock.IsPositive() {
		s.metrics.StockMovement(string(domain.MovementIn))
	}
	return product, nil
}

// UpdateProduct edits catalog metadata. Stock is not reachable from here.
func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	var updated domain.Product
	err := s.repo.InTx(ctx, func(tx store.Tx) error {
		if _, err := s.actor(ctx); err != nil {
			return err
		}
		if err := s.validate(req); err != nil {
			return err
		}
		current, err := tx.LockProduct(ctx, strings.TrimSpace(id))
		if err != nil {
			return err
		}
		updated = *current
		if req.Name != nil {
			name := strings.TrimSpace(*req.Name)
			if name == "" {
				return domain.Validation("name is required")
			}
			updated.Name = name
		}
		if req.SalePrice != nil {
			updated.SalePrice = *req.SalePrice
		}
		if req.MinStock != nil {
			updated.MinStock = *req.MinStock
		}
		if req.Active != nil {
			updated.Active = *req.Active
		}
		updated.UpdatedAt = s.now()
		return tx.UpdateProduct(ctx, updated)
	})
	if err != nil {
		return domain.Product{}, s.fail(ctx, "update_product", err)
	}
	return updated, nil
}

// ApplyStockMovement records a manual IN, OUT or ADJUST. For ADJUST the
// quantity is the counted stock.
func (s *Service) ApplyStockMovement(ctx context.Context, productID string, req domain.StockMovementRequest) (domain.InventoryMovement, error) {
	defer s.metrics.Observe("stock_movement", time.Now())

	var movement domain.InventoryMovement
	err := func() error {
		actor, err := s.actor(ctx)
		if err != nil {
			return err
		}
		req.Kind = domain.MovementKind(strings.ToUpper(strings.TrimSpace(string(req.Kind))))
		if err := s.validate(req); err != nil {
			return err
		}
		return s.repo.InTx(ctx, func(tx store.Tx) error {
			movement, err = s.ledger.ApplyMovement(ctx, tx, ledger.MovementInput{
				ProductID: strings.TrimSpace(productID),
				Kind:      req.Kind,
				Quantity:  req.Quantity,
				Reason:    req.Reason,
				ActorID:   actor.Username,
			})
			return err
		})
	}()
	if err != nil {
		return domain.InventoryMovement{}, s.fail(ctx, "stock_movement", err)
	}
	s.metrics.StockMovement(string(movement.Kind))
	return movement, nil
}

func (s *Service) ProductMovements(ctx context.Context, productID string) ([]domain.InventoryMovement, error) {
	productID = strings.TrimSpace(productID)
	if _, err := s.repo.GetProduct(ctx, productID); err != nil {
		return nil, s.fail(ctx, "product_movements", err)
	}
	movements, err := s.repo.ListProductMovements(ctx, productID)
	if err != nil {
		return nil, s.fail(ctx, "product_movements", err)
	}
	return movements, nil
}

// ReconcileProduct replays the product's ledger against its stored stock.
// Both are read inside one transaction so the comparison is not torn by a
// concurrent movement.
func (s *Service) ReconcileProduct(ctx context.Context, productID string) (domain.StockReconciliation, error) {
	var rec domain.StockReconciliation
	err := s.repo.InTx(ctx, func(tx store.Tx) error {
		product, err := tx.LockProduct(ctx, strings.TrimSpace(productID))
		if err != nil {
			return err
		}
		movements, err := tx.ListProductMovements(ctx, product.ID)
		if err != nil {
			return err
		}
		rec = ledger.Reconcile(*product, movements)
		return nil
	})
	if err != nil {
		return domain.StockReconciliation{}, s.fail(ctx, "reconcile_product", err)
	}
	if !rec.Consistent {
		s.logger(ctx).Warn("stock drifted from ledger",
			zap.String("product_id", rec.ProductID),
			zap.String("difference", rec.Difference.String()))
	}
	return rec, nil
}
