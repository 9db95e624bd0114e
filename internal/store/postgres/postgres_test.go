package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"poscore/backend/internal/domain"
	"poscore/backend/internal/store"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewFromDB(db), mock
}

func TestInTxCommitsAndRunsHooks(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE products SET stock").
		WithArgs("p1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	hookRan := false
	err := s.InTx(ctx, func(tx store.Tx) error {
		tx.AfterCommit(func() { hookRan = true })
		return tx.SetProductStock(ctx, "p1", decimal.NewFromInt(3))
	})
	require.NoError(t, err)
	assert.True(t, hookRan)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInTxRollsBackOnError(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE products SET stock").
		WithArgs("missing", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	hookRan := false
	err := s.InTx(ctx, func(tx store.Tx) error {
		tx.AfterCommit(func() { hookRan = true })
		return tx.SetProductStock(ctx, "missing", decimal.NewFromInt(3))
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.False(t, hookRan)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInTxReturnsCommitFailure(t *testing.T) {
	s, mock := newMockStore(t)
	commitErr := errors.New("connection reset")

	mock.ExpectBegin()
	mock.ExpectCommit().WillReturnError(commitErr)

	hookRan := false
	err := s.InTx(context.Background(), func(tx store.Tx) error {
		tx.AfterCommit(func() { hookRan = true })
		return nil
	})
	assert.ErrorIs(t, err, commitErr)
	assert.False(t, hookRan)
}

func TestInsertCashSessionMapsUniqueViolation(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO cash_sessions").
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "cash_sessions_one_open_per_actor"})
	mock.ExpectRollback()

	err := s.InTx(ctx, func(tx store.Tx) error {
		return tx.InsertCashSession(ctx, domain.CashSession{ID: "cs-1", ActorID: "ana", State: domain.CashSessionOpen})
	})
	assert.ErrorIs(t, err, domain.ErrSessionAlreadyOpen)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMaxSaleNumberTakesAdvisoryLock(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec(`SELECT pg_advisory_xact_lock\(hashtext\(\$1\)\)`).
		WithArgs("sales:F240101").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT MAX\(invoice_number\) FROM sales WHERE invoice_number LIKE \$1`).
		WithArgs("F240101%").
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow("F2401010007"))
	mock.ExpectCommit()

	var last string
	err := s.InTx(ctx, func(tx store.Tx) error {
		var err error
		last, err = tx.MaxSaleNumber(ctx, "F240101")
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, "F2401010007", last)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetProductNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("FROM products WHERE id = ").
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := s.GetProduct(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListSalesAppliesFilterAndPaging(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM sales WHERE actor_id = \$1 AND state = \$2`).
		WithArgs("ana", "completed").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(`FROM sales WHERE actor_id = \$1 AND state = \$2 ORDER BY created_at DESC, invoice_number DESC LIMIT 10 OFFSET 10`).
		WithArgs("ana", "completed").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	page, err := s.ListSales(context.Background(), domain.ListFilter{ActorID: "ana", State: "completed", Page: 2, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 0, page.Total)
	assert.Equal(t, 2, page.Page)
	assert.Empty(t, page.Items)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `F\_24\%`, escapeLike("F_24%"))
}
