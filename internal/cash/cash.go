package cash

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"poscore/backend/internal/cache"
	"poscore/backend/internal/domain"
	"poscore/backend/internal/lock"
	"poscore/backend/internal/store"
	"poscore/backend/internal/xid"
)

const drawerLockTTL = 10 * time.Second

type Options struct {
	Cache      cache.BalanceCache
	Locker     lock.Locker
	BalanceTTL time.Duration
	Now        func() time.Time
	Logger     *zap.Logger
}

// Manager owns cash sessions and their movement log. Balances are always
// derived from the log; the cache only holds copies.
type Manager struct {
	repo       store.Repository
	cache      cache.BalanceCache
	locker     lock.Locker
	balanceTTL time.Duration
	now        func() time.Time
	log        *zap.Logger
}

func NewManager(repo store.Repository, opts Options) *Manager {
	if opts.Cache == nil {
		opts.Cache = cache.NoopBalanceCache{}
	}
	if opts.Locker == nil {
		opts.Locker = lock.NewLocalLocker()
	}
	if opts.BalanceTTL <= 0 {
		opts.BalanceTTL = 30 * time.Second
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Manager{
		repo:       repo,
		cache:      opts.Cache,
		locker:     opts.Locker,
		balanceTTL: opts.BalanceTTL,
		now:        opts.Now,
		log:        opts.Logger,
	}
}

type MovementInput struct {
	SessionID   string
	Kind        domain.CashMovementKind
	Amount      decimal.Decimal
	Concept     string
	ReferenceID string
	ActorID     string
}

func (m *Manager) Open(ctx context.Context, actorID string, openingFloat decimal.Decimal, notes string) (domain.CashSession, error) {
	if actorID == "" {
		return domain.CashSession{}, domain.Validation("actor is required")
	}
	if openingFloat.IsNegative() {
		return domain.CashSession{}, domain.Validation("opening_float cannot be negative")
	}

	release, err := m.acquire(ctx, actorID)
	if err != nil {
		return domain.CashSession{}, err
	}
	defer m.release(release, actorID)

	session := domain.CashSession{
		ID:           xid.New("cs"),
		ActorID:      actorID,
		OpenedAt:     m.now(),
		OpeningFloat: domain.RoundMoney(openingFloat),
		State:        domain.CashSessionOpen,
		Notes:        strings.TrimSpace(notes),
	}
	err = m.repo.InTx(ctx, func(tx store.Tx) error {
		if _, err := tx.LockOpenCashSession(ctx, actorID); err == nil {
			return domain.SessionAlreadyOpen(actorID)
		} else if !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return tx.InsertCashSession(ctx, session)
	})
	if err != nil {
		return domain.CashSession{}, err
	}
	return session, nil
}

// RegisterMovement appends to an open session inside tx. The session row
// stays locked until tx ends.
func (m *Manager) RegisterMovement(ctx context.Context, tx store.Tx, in MovementInput) (domain.CashMovement, error) {
	if !in.Kind.Valid() {
		return domain.CashMovement{}, domain.Validation("unknown cash movement kind %q", in.Kind)
	}
	if !in.Amount.IsPositive() {
		return domain.CashMovement{}, domain.Validation("amount must be positive")
	}
	session, err := tx.LockCashSession(ctx, in.SessionID)
	if err != nil {
		return domain.CashMovement{}, err
	}
	if session.State != domain.CashSessionOpen {
		return domain.CashMovement{}, domain.SessionNotOpen(session.ID)
	}
	return m.insert(ctx, tx, session.ID, in)
}

// PostToOpenSession registers a movement against the actor's open session and
// returns nil when the actor has none.
func (m *Manager) PostToOpenSession(ctx context.Context, tx store.Tx, in MovementInput) (*domain.CashMovement, error) {
	if !in.Amount.IsPositive() {
		return nil, nil
	}
	session, err := tx.LockOpenCashSession(ctx, in.ActorID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !in.Kind.Valid() {
		return nil, domain.Validation("unknown cash movement kind %q", in.Kind)
	}
	movement, err := m.insert(ctx, tx, session.ID, in)
	if err != nil {
		return nil, err
	}
	return &movement, nil
}

func (m *Manager) insert(ctx context.Context, tx store.Tx, sessionID string, in MovementInput) (domain.CashMovement, error) {
	movement := domain.CashMovement{
		ID:          xid.New("cm"),
		SessionID:   sessionID,
		Kind:        in.Kind,
		Amount:      domain.RoundMoney(in.Amount),
		Concept:     strings.TrimSpace(in.Concept),
		ReferenceID: in.ReferenceID,
		ActorID:     in.ActorID,
		CreatedAt:   m.now(),
	}
	if err := tx.InsertCashMovement(ctx, movement); err != nil {
		return domain.CashMovement{}, err
	}
	tx.AfterCommit(func() { m.invalidate(sessionID) })
	return movement, nil
}

// Close computes expected and variance from the full movement log.
func (m *Manager) Close(ctx context.Context, sessionID string, counted decimal.Decimal, notes string) (domain.CashSession, error) {
	if counted.IsNegative() {
		return domain.CashSession{}, domain.Validation("counted_amount cannot be negative")
	}
	current, err := m.repo.GetCashSession(ctx, sessionID)
	if err != nil {
		return domain.CashSession{}, err
	}
	release, err := m.acquire(ctx, current.ActorID)
	if err != nil {
		return domain.CashSession{}, err
	}
	defer m.release(release, current.ActorID)

	var closed domain.CashSession
	err = m.repo.InTx(ctx, func(tx store.Tx) error {
		session, err := tx.LockCashSession(ctx, sessionID)
		if err != nil {
			return err
		}
		if session.State != domain.CashSessionOpen {
			return domain.SessionNotOpen(session.ID)
		}
		movements, err := tx.ListCashMovements(ctx, session.ID)
		if err != nil {
			return err
		}
		expected := Summarize(*session, movements).Balance
		countedAmount := domain.RoundMoney(counted)
		variance := countedAmount.Sub(expected)
		closedAt := m.now()

		session.State = domain.CashSessionClosed
		session.ClosedAt = &closedAt
		session.CountedAmount = &countedAmount
		session.ExpectedAmount = &expected
		session.Variance = &variance
		if n := strings.TrimSpace(notes); n != "" {
			session.Notes = n
		}
		if err := tx.UpdateCashSession(ctx, *session); err != nil {
			return err
		}
		tx.AfterCommit(func() { m.invalidate(session.ID) })
		closed = *session
		return nil
	})
	if err != nil {
		return domain.CashSession{}, err
	}
	return closed, nil
}

// Balance serves a cached copy when there is one and recomputes otherwise.
// The recomputed value is cached only if no invalidation happened meanwhile.
func (m *Manager) Balance(ctx context.Context, sessionID string) (domain.CashBalance, error) {
	cached, ok, err := m.cache.Get(ctx, sessionID)
	if err != nil {
		m.log.Warn("balance cache read failed", zap.String("session_id", sessionID), zap.Error(err))
	}
	if ok && cached != nil {
		return *cached, nil
	}

	// The generation is read before the log so that a movement committed in
	// between invalidates this fill.
	gen, genErr := m.cache.Generation(ctx, sessionID)
	if genErr != nil {
		m.log.Warn("balance cache generation read failed", zap.String("session_id", sessionID), zap.Error(genErr))
	}
	session, err := m.repo.GetCashSession(ctx, sessionID)
	if err != nil {
		return domain.CashBalance{}, err
	}
	movements, err := m.repo.ListCashMovements(ctx, sessionID)
	if err != nil {
		return domain.CashBalance{}, err
	}
	balance := Summarize(*session, movements)
	if genErr != nil {
		return balance, nil
	}
	if err := m.cache.Set(ctx, balance, gen, m.balanceTTL); err != nil {
		m.log.Warn("balance cache write failed", zap.String("session_id", sessionID), zap.Error(err))
	}
	return balance, nil
}

func (m *Manager) ActiveSession(ctx context.Context, actorID string) (domain.CashSession, error) {
	session, err := m.repo.GetOpenCashSession(ctx, actorID)
	if err != nil {
		return domain.CashSession{}, err
	}
	return *session, nil
}

// Summarize folds a session's movements into its derived balance:
// opening float + SALE + DEPOSIT - RETURN - WITHDRAWAL.
func Summarize(session domain.CashSession, movements []domain.CashMovement) domain.CashBalance {
	b := domain.CashBalance{
		SessionID:    session.ID,
		OpeningFloat: session.OpeningFloat,
		Sales:        decimal.Zero,
		Deposits:     decimal.Zero,
		Returns:      decimal.Zero,
		Withdrawals:  decimal.Zero,
	}
	for _, mv := range movements {
		if mv.SessionID != session.ID {
			continue
		}
		switch mv.Kind {
		case domain.CashSale:
			b.Sales = b.Sales.Add(mv.Amount)
		case domain.CashDeposit:
			b.Deposits = b.Deposits.Add(mv.Amount)
		case domain.CashReturn:
			b.Returns = b.Returns.Add(mv.Amount)
		case domain.CashWithdrawal:
			b.Withdrawals = b.Withdrawals.Add(mv.Amount)
		default:
			continue
		}
		b.Movements++
	}
	b.Balance = session.OpeningFloat.Add(b.Sales).Add(b.Deposits).Sub(b.Returns).Sub(b.Withdrawals)
	return b
}

func (m *Manager) acquire(ctx context.Context, actorID string) (func(context.Context) error, error) {
	release, err := m.locker.Acquire(ctx, "cash-session:"+actorID, drawerLockTTL)
	if errors.Is(err, lock.ErrBusy) {
		return nil, domain.InvalidState("cash drawer of %s is busy, retry shortly", actorID)
	}
	return release, err
}

func (m *Manager) release(release func(context.Context) error, actorID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := release(ctx); err != nil {
		m.log.Warn("drawer lock release failed", zap.String("actor_id", actorID), zap.Error(err))
	}
}

func (m *Manager) invalidate(sessionID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := m.cache.Invalidate(ctx, sessionID); err != nil {
		m.log.Warn("balance cache invalidation failed", zap.String("session_id", sessionID), zap.Error(err))
	}
}
