package account

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/numgate/numgate/pkg/domain"
	"github.com/numgate/numgate/pkg/money"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func newMockRepo(t *testing.T) (*repository, sqlmock.Sqlmock) {
	t.Helper()
	mockDb, mock, err := sqlmock.New()
	require.NoError(t, err)
	dialector := postgres.New(postgres.Config{
		Conn:       mockDb,
		DriverName: "postgres",
	})
	db, err := gorm.Open(dialector, &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)
	return New(db), mock
}

func accountRows(userID uuid.UUID, balance int64) *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows([]string{
		"user_id", "balance", "currency", "total_deposited", "total_spent",
		"last_tx_at", "created_at", "updated_at",
	}).AddRow(userID, balance, "USD", balance, 0, now, now, now)
}

func TestAccountRepository_DebitIfSufficient(t *testing.T) {
	repo, mock := newMockRepo(t)
	userID := uuid.New()

	mock.ExpectExec(`UPDATE "accounts"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT \* FROM "accounts"`).
		WillReturnRows(accountRows(userID, 0))

	acct, err := repo.DebitIfSufficient(context.Background(), userID, money.Must(1.00, money.USD))
	require.NoError(t, err)
	assert.Equal(t, int64(0), acct.Balance.Amount())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepository_DebitInsufficientBalance(t *testing.T) {
	repo, mock := newMockRepo(t)
	userID := uuid.New()

	// Guarded update touches no row; the follow-up read finds the account,
	// so the failure is a short balance rather than a missing account.
	mock.ExpectExec(`UPDATE "accounts"`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT \* FROM "accounts"`).
		WillReturnRows(accountRows(userID, 50))

	_, err := repo.DebitIfSufficient(context.Background(), userID, money.Must(1.00, money.USD))
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepository_DebitMissingAccount(t *testing.T) {
	repo, mock := newMockRepo(t)
	userID := uuid.New()

	mock.ExpectExec(`UPDATE "accounts"`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT \* FROM "accounts"`).
		WillReturnError(gorm.ErrRecordNotFound)

	_, err := repo.DebitIfSufficient(context.Background(), userID, money.Must(1.00, money.USD))
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepository_CreditDeposit(t *testing.T) {
	repo, mock := newMockRepo(t)
	userID := uuid.New()

	mock.ExpectExec(`UPDATE "accounts"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT \* FROM "accounts"`).
		WillReturnRows(accountRows(userID, 1000))

	acct, err := repo.CreditDeposit(context.Background(), userID, money.Must(10.00, money.USD))
	require.NoError(t, err)
	assert.Equal(t, int64(1000), acct.Balance.Amount())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepository_GetForUpdate_CreatesMissing(t *testing.T) {
	repo, mock := newMockRepo(t)
	userID := uuid.New()

	mock.ExpectQuery(`SELECT \* FROM "accounts" .*FOR UPDATE`).
		WillReturnError(gorm.ErrRecordNotFound)
	mock.ExpectExec(`INSERT INTO "accounts"`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	acct, err := repo.GetForUpdate(context.Background(), userID, money.USD)
	require.NoError(t, err)
	assert.Equal(t, userID, acct.UserID)
	assert.True(t, acct.Balance.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}
