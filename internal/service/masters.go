package service

import (
	"context"
	"strings"

	"poscore/backend/internal/domain"
	"poscore/backend/internal/store"
	"poscore/backend/internal/xid"
)

func (s *Service) CreateClient(ctx context.Context, req domain.MasterCreateRequest) (domain.Client, error) {
	req.Name = strings.TrimSpace(req.Name)
	if err := s.validate(req); err != nil {
		return domain.Client{}, s.fail(ctx, "client_create", err)
	}
	client := domain.Client{ID: xid.New("cli"), Name: req.Name, Active: true, CreatedAt: s.now()}
	err := s.repo.InTx(ctx, func(tx store.Tx) error {
		return tx.CreateClient(ctx, client)
	})
	if err != nil {
		return domain.Client{}, s.fail(ctx, "client_create", err)
	}
	return client, nil
}

func (s *Service) ListClients(ctx context.Context) ([]domain.Client, error) {
	clients, err := s.repo.ListClients(ctx)
	if err != nil {
		return nil, s.fail(ctx, "client_list", err)
	}
	return clients, nil
}

func (s *Service) CreateSupplier(ctx context.Context, req domain.MasterCreateRequest) (domain.Supplier, error) {
	req.Name = strings.TrimSpace(req.Name)
	if err := s.validate(req); err != nil {
		return domain.Supplier{}, s.fail(ctx, "supplier_create", err)
	}
	supplier := domain.Supplier{ID: xid.New("sup"), Name: req.Name, Active: true, CreatedAt: s.now()}
	err := s.repo.InTx(ctx, func(tx store.Tx) error {
		return tx.CreateSupplier(ctx, supplier)
	})
	if err != nil {
		return domain.Supplier{}, s.fail(ctx, "supplier_create", err)
	}
	return supplier, nil
}

func (s *Service) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	suppliers, err := s.repo.ListSuppliers(ctx)
	if err != nil {
		return nil, s.fail(ctx, "supplier_list", err)
	}
	return suppliers, nil
}

func (s *Service) CreatePaymentMethod(ctx context.Context, req domain.PaymentMethodCreateRequest) (domain.PaymentMethod, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Kind = strings.ToLower(strings.TrimSpace(req.Kind))
	if err := s.validate(req); err != nil {
		return domain.PaymentMethod{}, s.fail(ctx, "payment_method_create", err)
	}
	method := domain.PaymentMethod{ID: xid.New("pm"), Name: req.Name, Kind: req.Kind, Active: true, CreatedAt: s.now()}
	err := s.repo.InTx(ctx, func(tx store.Tx) error {
		return tx.CreatePaymentMethod(ctx, method)
	})
	if err != nil {
		return domain.PaymentMethod{}, s.fail(ctx, "payment_method_create", err)
	}
	return method, nil
}

func (s *Service) ListPaymentMethods(ctx context.Context) ([]domain.PaymentMethod, error) {
	methods, err := s.repo.ListPaymentMethods(ctx)
	if err != nil {
		return nil, s.fail(ctx, "payment_method_list", err)
	}
	return methods, nil
}
