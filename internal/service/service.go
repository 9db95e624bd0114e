package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"poscore/backend/internal/cache"
	"poscore/backend/internal/cash"
	"poscore/backend/internal/discount"
	"poscore/backend/internal/domain"
	"poscore/backend/internal/ledger"
	"poscore/backend/internal/lock"
	"poscore/backend/internal/logger"
	"poscore/backend/internal/metrics"
	"poscore/backend/internal/store"
	"poscore/backend/internal/validation"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Options struct {
	DefaultTaxPercent decimal.Decimal
	Metrics           *metrics.Metrics
	Logger            *zap.Logger
	Now               func() time.Time
	Cache             cache.BalanceCache
	Locker            lock.Locker
	BalanceTTL        time.Duration
}

// Service orchestrates sales, purchases and returns over the ledger, the
// discount validator and the cash manager. Every mutation runs in exactly one
// repository transaction.
type Service struct {
	repo       store.Repository
	ledger     *ledger.Ledger
	discounts  *discount.Validator
	cash       *cash.Manager
	validator  *validation.Validator
	metrics    *metrics.Metrics
	log        *zap.Logger
	now        func() time.Time
	defaultTax decimal.Decimal
}

func New(repo store.Repository, opts Options) *Service {
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return &Service{
		repo:      repo,
		ledger:    ledger.New(opts.Now),
		discounts: discount.NewValidator(repo, opts.Now),
		cash: cash.NewManager(repo, cash.Options{
			Cache:      opts.Cache,
			Locker:     opts.Locker,
			BalanceTTL: opts.BalanceTTL,
			Now:        opts.Now,
			Logger:     opts.Logger,
		}),
		validator:  validation.New(),
		metrics:    opts.Metrics,
		log:        opts.Logger,
		now:        opts.Now,
		defaultTax: opts.DefaultTaxPercent,
	}
}

func (s *Service) actor(ctx context.Context) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || strings.TrimSpace(actor.Username) == "" {
		return domain.Actor{}, domain.Validation("actor is required")
	}
	return actor, nil
}

func (s *Service) logger(ctx context.Context) *zap.Logger {
	return logger.FromContextOr(ctx, s.log)
}

// fail is the error boundary of every exported operation: domain errors pass
// through, anything else becomes an internal error whose cause is logged.
func (s *Service) fail(ctx context.Context, op string, err error) error {
	if err == nil {
		return nil
	}
	err = domain.AsError(err)
	kind := domain.KindOf(err)
	s.metrics.DomainError(string(kind))
	if kind == domain.KindInternal {
		cause := errors.Unwrap(err)
		if cause == nil {
			cause = err
		}
		s.logger(ctx).Error("operation failed", zap.String("operation", op), zap.Error(cause))
	}
	return err
}

func (s *Service) validate(req any) error {
	return s.validator.Struct(req)
}

func (s *Service) taxPercent(requested *decimal.Decimal) (decimal.Decimal, error) {
	if requested == nil {
		return s.defaultTax, nil
	}
	pct := *requested
	if pct.IsNegative() || pct.GreaterThan(decimal.NewFromInt(100)) {
		return decimal.Zero, domain.Validation("tax_percent must be within 0..100")
	}
	if !pct.Round(2).Equal(pct) {
		return decimal.Zero, domain.Validation("tax_percent must have at most 2 decimal places")
	}
	return pct, nil
}

// lockProducts takes the product row locks in id order so that concurrent
// documents touching the same products cannot deadlock.
func lockProducts(ctx context.Context, tx store.Tx, ids []string) (map[string]*domain.Product, error) {
	unique := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	sort.Strings(unique)

	products := make(map[string]*domain.Product, len(unique))
	for _, id := range unique {
		p, err := tx.LockProduct(ctx, id)
		if err != nil {
			return nil, err
		}
		products[id] = p
	}
	return products, nil
}
