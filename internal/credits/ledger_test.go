package credits

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockLedger(t *testing.T) (*PostgresLedger, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresLedger(sqlx.NewDb(db, "postgres")), mock
}

func accountRow(userID string, credit int64) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{"id", "user_id", "credit", "created_at", "updated_at"}).
		AddRow(uuid.New(), userID, credit, now, now)
}

func TestGetOrCreateAccountReturnsExisting(t *testing.T) {
	ledger, mock := newMockLedger(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM credit_accounts WHERE user_id = $1")).
		WithArgs("user-1").
		WillReturnRows(accountRow("user-1", 25))

	account, err := ledger.GetOrCreateAccount(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", account.UserID)
	assert.Equal(t, int64(25), account.Credit)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetOrCreateAccountCreatesMissing(t *testing.T) {
	ledger, mock := newMockLedger(t)

	selectQuery := regexp.QuoteMeta("SELECT * FROM credit_accounts WHERE user_id = $1")
	mock.ExpectQuery(selectQuery).WithArgs("user-2").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "credit", "created_at", "updated_at"}))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO credit_accounts")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(selectQuery).WithArgs("user-2").
		WillReturnRows(accountRow("user-2", 0))

	account, err := ledger.GetOrCreateAccount(context.Background(), "user-2")
	require.NoError(t, err)
	assert.Equal(t, int64(0), account.Credit)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestChargeZeroAmountIsNoOp(t *testing.T) {
	ledger, mock := newMockLedger(t)

	err := ledger.Charge(context.Background(), "user-1", 1, 0)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestChargeDebitsAccountOnce(t *testing.T) {
	ledger, mock := newMockLedger(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO credit_entries")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE credit_accounts SET credit = credit - $1")).
		WithArgs(int64(4), "user-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := ledger.Charge(context.Background(), "user-1", 7, 4)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestChargeDuplicateIsSkipped(t *testing.T) {
	ledger, mock := newMockLedger(t)

	mock.ExpectBegin()
	// The (task_id, kind) conflict means the task was already charged.
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO credit_entries")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := ledger.Charge(context.Background(), "user-1", 7, 4)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestChargeInsufficientCredit(t *testing.T) {
	ledger, mock := newMockLedger(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO credit_entries")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE credit_accounts SET credit = credit - $1")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := ledger.Charge(context.Background(), "user-1", 7, 100)
	assert.ErrorIs(t, err, ErrInsufficientCredit)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRefundWithoutChargeIsNoOp(t *testing.T) {
	ledger, mock := newMockLedger(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT -amount FROM credit_entries WHERE task_id = $1 AND kind = 'charge'")).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"amount"}))
	mock.ExpectRollback()

	err := ledger.Refund(context.Background(), "user-1", 7)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRefundCreditsBackTheCharge(t *testing.T) {
	ledger, mock := newMockLedger(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT -amount FROM credit_entries WHERE task_id = $1 AND kind = 'charge'")).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"amount"}).AddRow(int64(4)))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO credit_entries")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE credit_accounts SET credit = credit + $1")).
		WithArgs(int64(4), "user-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := ledger.Refund(context.Background(), "user-1", 7)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRefundAlreadyRefundedIsNoOp(t *testing.T) {
	ledger, mock := newMockLedger(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT -amount FROM credit_entries WHERE task_id = $1 AND kind = 'charge'")).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"amount"}).AddRow(int64(4)))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO credit_entries")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := ledger.Refund(context.Background(), "user-1", 7)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
