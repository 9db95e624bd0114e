package service

import (
	"context"
	"strings"
	"time"

	"poscore/backend/internal/cash"
	"poscore/backend/internal/domain"
	"poscore/backend/internal/store"
)

func (s *Service) OpenCashSession(ctx context.Context, req domain.CashSessionOpenRequest) (domain.CashSession, error) {
	var session domain.CashSession
	err := func() error {
		actor, err := s.actor(ctx)
		if err != nil {
			return err
		}
		if err := s.validate(req); err != nil {
			return err
		}
		session, err = s.cash.Open(ctx, actor.Username, req.OpeningFloat, req.Notes)
		return err
	}()
	if err != nil {
		return domain.CashSession{}, s.fail(ctx, "cash_open", err)
	}
	return session, nil
}

// CloseCashSession closes a session. Cashiers may only close their own;
// admins may close any.
func (s *Service) CloseCashSession(ctx context.Context, id string, req domain.CashSessionCloseRequest) (domain.CashSession, error) {
	defer s.metrics.Observe("cash_close", time.Now())

	var session domain.CashSession
	err := func() error {
		actor, err := s.actor(ctx)
		if err != nil {
			return err
		}
		if err := s.validate(req); err != nil {
			return err
		}
		if err := s.checkSessionOwner(ctx, actor, strings.TrimSpace(id)); err != nil {
			return err
		}
		session, err = s.cash.Close(ctx, strings.TrimSpace(id), req.CountedAmount, req.Notes)
		return err
	}()
	if err != nil {
		return domain.CashSession{}, s.fail(ctx, "cash_close", err)
	}
	return session, nil
}

// RegisterCashMovement records a manual DEPOSIT or WITHDRAWAL.
func (s *Service) RegisterCashMovement(ctx context.Context, sessionID string, req domain.CashMovementRequest) (domain.CashMovement, error) {
	var movement domain.CashMovement
	err := func() error {
		actor, err := s.actor(ctx)
		if err != nil {
			return err
		}
		req.Kind = domain.CashMovementKind(strings.ToUpper(strings.TrimSpace(string(req.Kind))))
		req.Concept = strings.TrimSpace(req.Concept)
		if err := s.validate(req); err != nil {
			return err
		}
		sessionID = strings.TrimSpace(sessionID)
		if err := s.checkSessionOwner(ctx, actor, sessionID); err != nil {
			return err
		}
		return s.repo.InTx(ctx, func(tx store.Tx) error {
			movement, err = s.cash.RegisterMovement(ctx, tx, cash.MovementInput{
				SessionID: sessionID,
				Kind:      req.Kind,
				Amount:    req.Amount,
				Concept:   req.Concept,
				ActorID:   actor.Username,
			})
			return err
		})
	}()
	if err != nil {
		return domain.CashMovement{}, s.fail(ctx, "cash_movement", err)
	}
	s.metrics.CashMovement(string(movement.Kind))
	return movement, nil
}

func (s *Service) CashBalance(ctx context.Context, sessionID string) (domain.CashBalance, error) {
	balance, err := s.cash.Balance(ctx, strings.TrimSpace(sessionID))
	if err != nil {
		return domain.CashBalance{}, s.fail(ctx, "cash_balance", err)
	}
	return balance, nil
}

// CashSessionDetail recomputes the balance from the log rather than the cache.
func (s *Service) CashSessionDetail(ctx context.Context, sessionID string) (domain.CashSessionDetail, error) {
	sessionID = strings.TrimSpace(sessionID)
	session, err := s.repo.GetCashSession(ctx, sessionID)
	if err != nil {
		return domain.CashSessionDetail{}, s.fail(ctx, "cash_detail", err)
	}
	movements, err := s.repo.ListCashMovements(ctx, sessionID)
	if err != nil {
		return domain.CashSessionDetail{}, s.fail(ctx, "cash_detail", err)
	}
	return domain.CashSessionDetail{
		Session:   *session,
		Movements: movements,
		Balance:   cash.Summarize(*session, movements),
	}, nil
}

func (s *Service) ActiveCashSession(ctx context.Context) (domain.CashSession, error) {
	actor, err := s.actor(ctx)
	if err != nil {
		return domain.CashSession{}, s.fail(ctx, "cash_active", err)
	}
	session, err := s.cash.ActiveSession(ctx, actor.Username)
	if err != nil {
		return domain.CashSession{}, s.fail(ctx, "cash_active", err)
	}
	return session, nil
}

func (s *Service) checkSessionOwner(ctx context.Context, actor domain.Actor, sessionID string) error {
	session, err := s.repo.GetCashSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if actor.Role != domain.RoleAdmin && session.ActorID != actor.Username {
		return domain.InvalidState("cash session %s belongs to another cashier", session.ID)
	}
	return nil
}
