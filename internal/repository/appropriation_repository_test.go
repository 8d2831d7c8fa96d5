package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/bfm-api/internal/models"
)

func newAppropriationRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestAppropriationRepositoryCreateStartsFullyAvailable(t *testing.T) {
	db, mock, cleanup := newAppropriationRepoMock(t)
	defer cleanup()
	repo := NewAppropriationRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO appropriations")).
		WithArgs(sqlmock.AnyArg(), "0100-2026-OM", 2026, "ANNUAL",
			decimal.NewFromInt(1_000_000), decimal.Zero, decimal.NewFromInt(1_000_000),
			sqlmock.AnyArg(), "", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	a := &models.Appropriation{
		Code:           "0100-2026-OM",
		FiscalYear:     2026,
		Type:           models.AppropriationTypeAnnual,
		TotalAmount:    decimal.NewFromInt(1_000_000),
		ExpirationDate: time.Date(2026, 9, 30, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, repo.Create(context.Background(), a))
	require.NotEmpty(t, a.ID)
	require.True(t, a.AvailableAmount.Equal(a.TotalAmount))
	require.True(t, a.AllocatedAmount.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppropriationRepositoryAllocateGuard(t *testing.T) {
	db, mock, cleanup := newAppropriationRepoMock(t)
	defer cleanup()
	repo := NewAppropriationRepository(db)
	amount := decimal.NewFromInt(400)

	const query = `UPDATE appropriations
		SET available_amount = available_amount - $2,
		    allocated_amount = allocated_amount + $2,
		    updated_at = $3
		WHERE id = $1 AND available_amount >= $2`

	mock.ExpectExec(regexp.QuoteMeta(query)).
		WithArgs("appr-1", amount, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Allocate(context.Background(), "appr-1", amount))

	// The conditional WHERE matched nothing: balance short or row missing.
	mock.ExpectExec(regexp.QuoteMeta(query)).
		WithArgs("appr-1", amount, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	err := repo.Allocate(context.Background(), "appr-1", amount)
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppropriationRepositoryDeallocateClamps(t *testing.T) {
	db, mock, cleanup := newAppropriationRepoMock(t)
	defer cleanup()
	repo := NewAppropriationRepository(db)
	amount := decimal.NewFromInt(250)

	mock.ExpectExec(regexp.QuoteMeta("SET allocated_amount = GREATEST(allocated_amount - $2, 0)")).
		WithArgs("appr-1", amount, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Deallocate(context.Background(), "appr-1", amount))

	mock.ExpectExec(regexp.QuoteMeta("SET allocated_amount = GREATEST(allocated_amount - $2, 0)")).
		WithArgs("missing", amount, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	err := repo.Deallocate(context.Background(), "missing", amount)
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppropriationRepositoryGetByCode(t *testing.T) {
	db, mock, cleanup := newAppropriationRepoMock(t)
	defer cleanup()
	repo := NewAppropriationRepository(db)

	rows := sqlmock.NewRows([]string{"id", "code", "fiscal_year", "type", "total_amount", "allocated_amount", "available_amount", "expiration_date", "restrictions", "created_at", "updated_at"}).
		AddRow("appr-1", "0100-2026-OM", 2026, "ANNUAL", "1000000", "250000", "750000", time.Date(2026, 9, 30, 0, 0, 0, 0, time.UTC), "", time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, code, fiscal_year, type, total_amount, allocated_amount, available_amount, expiration_date, restrictions, created_at, updated_at FROM appropriations WHERE code = $1 AND fiscal_year = $2")).
		WithArgs("0100-2026-OM", 2026).
		WillReturnRows(rows)

	a, err := repo.GetByCode(context.Background(), "0100-2026-OM", 2026)
	require.NoError(t, err)
	require.True(t, a.AvailableAmount.Equal(decimal.NewFromInt(750_000)))
	require.NoError(t, mock.ExpectationsWereMet())
}
