package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/bfm-api/internal/dto"
	"github.com/noah-isme/bfm-api/internal/models"
	appErrors "github.com/noah-isme/bfm-api/pkg/errors"
)

type appropriationStoreStub struct {
	appropriations map[string]*models.Appropriation
	seq            int
}

func newAppropriationStoreStub() *appropriationStoreStub {
	return &appropriationStoreStub{appropriations: make(map[string]*models.Appropriation)}
}

func (s *appropriationStoreStub) Create(ctx context.Context, a *models.Appropriation) error {
	s.seq++
	a.ID = fmt.Sprintf("appr-%d", s.seq)
	a.AvailableAmount = a.TotalAmount
	a.AllocatedAmount = decimal.Zero
	copy := *a
	s.appropriations[a.ID] = &copy
	return nil
}

func (s *appropriationStoreStub) GetByID(ctx context.Context, id string) (*models.Appropriation, error) {
	if a, ok := s.appropriations[id]; ok {
		copy := *a
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (s *appropriationStoreStub) GetByCode(ctx context.Context, code string, fiscalYear int) (*models.Appropriation, error) {
	for _, a := range s.appropriations {
		if a.Code == code && a.FiscalYear == fiscalYear {
			copy := *a
			return &copy, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *appropriationStoreStub) List(ctx context.Context, filter models.AppropriationFilter) ([]models.Appropriation, error) {
	var out []models.Appropriation
	for _, a := range s.appropriations {
		if filter.FiscalYear != 0 && a.FiscalYear != filter.FiscalYear {
			continue
		}
		out = append(out, *a)
	}
	return out, nil
}

// Allocate mirrors the repository's conditional update: no row moves unless
// the available balance covers the amount.
func (s *appropriationStoreStub) Allocate(ctx context.Context, id string, amount decimal.Decimal) error {
	a, ok := s.appropriations[id]
	if !ok || a.AvailableAmount.LessThan(amount) {
		return sql.ErrNoRows
	}
	a.AvailableAmount = a.AvailableAmount.Sub(amount)
	a.AllocatedAmount = a.AllocatedAmount.Add(amount)
	return nil
}

func (s *appropriationStoreStub) Deallocate(ctx context.Context, id string, amount decimal.Decimal) error {
	a, ok := s.appropriations[id]
	if !ok {
		return sql.ErrNoRows
	}
	released := amount
	if a.AllocatedAmount.LessThan(amount) {
		released = a.AllocatedAmount
	}
	a.AllocatedAmount = a.AllocatedAmount.Sub(released)
	a.AvailableAmount = a.AvailableAmount.Add(released)
	return nil
}

func newLedgerForTest(t *testing.T) (*AppropriationService, *appropriationStoreStub, *auditStub) {
	t.Helper()
	store := newAppropriationStoreStub()
	audit := &auditStub{}
	return NewAppropriationService(store, audit, zap.NewNop()), store, audit
}

func seedAppropriation(t *testing.T, svc *AppropriationService, code string, total int64) *models.Appropriation {
	t.Helper()
	a, err := svc.Create(context.Background(), dto.CreateAppropriationRequest{
		Code:           code,
		FiscalYear:     2026,
		Type:           models.AppropriationTypeAnnual,
		TotalAmount:    decimal.NewFromInt(total),
		ExpirationDate: time.Now().UTC().Add(365 * 24 * time.Hour),
	}, "officer-1")
	require.NoError(t, err)
	return a
}

func TestAppropriationCreateStartsFullyAvailable(t *testing.T) {
	svc, _, _ := newLedgerForTest(t)

	a := seedAppropriation(t, svc, "0100-2026-OM", 1_000_000)
	assert.True(t, a.AvailableAmount.Equal(decimal.NewFromInt(1_000_000)))
	assert.True(t, a.AllocatedAmount.IsZero())
}

func TestAppropriationCreateRejectsDuplicateCode(t *testing.T) {
	svc, _, _ := newLedgerForTest(t)
	seedAppropriation(t, svc, "0100-2026-OM", 500)

	_, err := svc.Create(context.Background(), dto.CreateAppropriationRequest{
		Code:           "0100-2026-OM",
		FiscalYear:     2026,
		Type:           models.AppropriationTypeAnnual,
		TotalAmount:    decimal.NewFromInt(500),
		ExpirationDate: time.Now().UTC().Add(24 * time.Hour),
	}, "officer-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestAppropriationCreateRejectsNegativeAmount(t *testing.T) {
	svc, _, _ := newLedgerForTest(t)

	_, err := svc.Create(context.Background(), dto.CreateAppropriationRequest{
		Code:           "0200-2026-RDTE",
		FiscalYear:     2026,
		Type:           models.AppropriationTypeMultiYear,
		TotalAmount:    decimal.NewFromInt(-1),
		ExpirationDate: time.Now().UTC().Add(24 * time.Hour),
	}, "officer-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestCheckAvailabilityReportsShortage(t *testing.T) {
	svc, _, _ := newLedgerForTest(t)
	seedAppropriation(t, svc, "0100-2026-OM", 100)

	result, err := svc.CheckAvailability(context.Background(), dto.CheckAvailabilityRequest{
		Code: "0100-2026-OM", FiscalYear: 2026, Amount: decimal.NewFromInt(80),
	})
	require.NoError(t, err)
	assert.True(t, result.Available)
	assert.True(t, result.Shortage.IsZero())

	result, err = svc.CheckAvailability(context.Background(), dto.CheckAvailabilityRequest{
		Code: "0100-2026-OM", FiscalYear: 2026, Amount: decimal.NewFromInt(130),
	})
	require.NoError(t, err)
	assert.False(t, result.Available)
	assert.True(t, result.Shortage.Equal(decimal.NewFromInt(30)))
}

func TestCheckAvailabilityExpiredFund(t *testing.T) {
	svc, store, _ := newLedgerForTest(t)
	a := seedAppropriation(t, svc, "0100-2024-OM", 100)
	store.appropriations[a.ID].ExpirationDate = time.Now().UTC().Add(-time.Hour)

	_, err := svc.CheckAvailability(context.Background(), dto.CheckAvailabilityRequest{
		Code: "0100-2024-OM", FiscalYear: 2026, Amount: decimal.NewFromInt(1),
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrExpired.Code, appErrors.FromError(err).Code)
}

func TestValidateReportsEachFailureReason(t *testing.T) {
	svc, store, _ := newLedgerForTest(t)

	result, err := svc.Validate(context.Background(), "missing", 2026)
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, "appropriation not found", result.Reason)

	a := seedAppropriation(t, svc, "0100-2026-OM", 100)
	result, err = svc.Validate(context.Background(), "0100-2026-OM", 2026)
	require.NoError(t, err)
	assert.True(t, result.Valid)

	store.appropriations[a.ID].AvailableAmount = decimal.Zero
	result, err = svc.Validate(context.Background(), "0100-2026-OM", 2026)
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, "no available balance", result.Reason)

	store.appropriations[a.ID].ExpirationDate = time.Now().UTC().Add(-time.Hour)
	result, err = svc.Validate(context.Background(), "0100-2026-OM", 2026)
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, "appropriation expired", result.Reason)
}

func TestAllocateMovesBalancesAndAudits(t *testing.T) {
	svc, _, audit := newLedgerForTest(t)
	a := seedAppropriation(t, svc, "0100-2026-OM", 1000)

	updated, err := svc.Allocate(context.Background(), a.ID, decimal.NewFromInt(400), "officer-1")
	require.NoError(t, err)
	assert.True(t, updated.AvailableAmount.Equal(decimal.NewFromInt(600)))
	assert.True(t, updated.AllocatedAmount.Equal(decimal.NewFromInt(400)))
	assert.NotEmpty(t, audit.logs)
	assert.Equal(t, models.AuditActionFundsAllocate, audit.logs[len(audit.logs)-1].Action)
}

func TestAllocateInsufficientFundsLeavesBalancesUntouched(t *testing.T) {
	svc, store, _ := newLedgerForTest(t)
	a := seedAppropriation(t, svc, "0100-2026-OM", 100)

	_, err := svc.Allocate(context.Background(), a.ID, decimal.NewFromInt(101), "officer-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInsufficientFunds.Code, appErrors.FromError(err).Code)
	assert.True(t, store.appropriations[a.ID].AvailableAmount.Equal(decimal.NewFromInt(100)))
	assert.True(t, store.appropriations[a.ID].AllocatedAmount.IsZero())
}

func TestAllocateRejectsExpiredAndNonPositive(t *testing.T) {
	svc, store, _ := newLedgerForTest(t)
	a := seedAppropriation(t, svc, "0100-2024-OM", 100)

	_, err := svc.Allocate(context.Background(), a.ID, decimal.Zero, "officer-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	store.appropriations[a.ID].ExpirationDate = time.Now().UTC().Add(-time.Hour)
	_, err = svc.Allocate(context.Background(), a.ID, decimal.NewFromInt(10), "officer-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrExpired.Code, appErrors.FromError(err).Code)
}

func TestDeallocateClampsAtZeroAllocated(t *testing.T) {
	svc, _, audit := newLedgerForTest(t)
	a := seedAppropriation(t, svc, "0100-2026-OM", 1000)
	_, err := svc.Allocate(context.Background(), a.ID, decimal.NewFromInt(300), "officer-1")
	require.NoError(t, err)

	// Releasing more than is allocated clamps instead of going negative.
	updated, err := svc.Deallocate(context.Background(), a.ID, decimal.NewFromInt(500), "officer-1")
	require.NoError(t, err)
	assert.True(t, updated.AllocatedAmount.IsZero())
	assert.True(t, updated.AvailableAmount.Equal(decimal.NewFromInt(1000)))
	assert.Equal(t, models.AuditActionFundsDeallocate, audit.logs[len(audit.logs)-1].Action)
}

func TestAllocateByCodeResolvesCode(t *testing.T) {
	svc, _, _ := newLedgerForTest(t)
	seedAppropriation(t, svc, "0100-2026-OM", 1000)

	updated, err := svc.AllocateByCode(context.Background(), "0100-2026-OM", 2026, decimal.NewFromInt(250), "officer-1")
	require.NoError(t, err)
	assert.True(t, updated.AllocatedAmount.Equal(decimal.NewFromInt(250)))

	_, err = svc.AllocateByCode(context.Background(), "no-such-code", 2026, decimal.NewFromInt(1), "officer-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestDeallocateByCodeUnknownCode(t *testing.T) {
	svc, _, _ := newLedgerForTest(t)

	_, err := svc.DeallocateByCode(context.Background(), "no-such-code", 2026, decimal.NewFromInt(1), "officer-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
