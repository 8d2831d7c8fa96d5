package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/bfm-api/internal/dto"
	"github.com/noah-isme/bfm-api/internal/models"
	"github.com/noah-isme/bfm-api/internal/repository"
	appErrors "github.com/noah-isme/bfm-api/pkg/errors"
)

type expenditureStoreStub struct {
	expenditures map[string]*models.Expenditure
	aggregates   []repository.StatusAggregate
	seq          int
}

func newExpenditureStoreStub() *expenditureStoreStub {
	return &expenditureStoreStub{expenditures: make(map[string]*models.Expenditure)}
}

func (s *expenditureStoreStub) Create(ctx context.Context, e *models.Expenditure) error {
	s.seq++
	e.ID = fmt.Sprintf("exp-%d", s.seq)
	copy := *e
	s.expenditures[e.ID] = &copy
	return nil
}

func (s *expenditureStoreStub) GetByID(ctx context.Context, id string) (*models.Expenditure, error) {
	if e, ok := s.expenditures[id]; ok {
		copy := *e
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (s *expenditureStoreStub) List(ctx context.Context, filter models.ExpenditureFilter) ([]models.Expenditure, error) {
	var out []models.Expenditure
	for _, e := range s.expenditures {
		if filter.BudgetID != "" && e.BudgetID != filter.BudgetID {
			continue
		}
		out = append(out, *e)
	}
	return out, nil
}

func (s *expenditureStoreStub) UpdateStatus(ctx context.Context, id string, from, to models.ExpenditureStatus) error {
	e, ok := s.expenditures[id]
	if !ok || e.Status != from {
		return sql.ErrNoRows
	}
	e.Status = to
	return nil
}

func (s *expenditureStoreStub) SummarizeByBudget(ctx context.Context, budgetID string) ([]repository.StatusAggregate, error) {
	return s.aggregates, nil
}

// SettledAmount sums PAID rows referencing the obligation, like the grouped
// SQL aggregation does.
func (s *expenditureStoreStub) SettledAmount(ctx context.Context, obligationID string) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, e := range s.expenditures {
		if e.ObligationID != nil && *e.ObligationID == obligationID && e.Status == models.ExpenditureStatusPaid {
			total = total.Add(e.Amount)
		}
	}
	return total, nil
}

type obligationReaderStub struct {
	obligation *models.Obligation
}

func (s *obligationReaderStub) GetByID(ctx context.Context, id string) (*models.Obligation, error) {
	if s.obligation == nil || s.obligation.ID != id {
		return nil, sql.ErrNoRows
	}
	copy := *s.obligation
	return &copy, nil
}

func newExpenditureServiceForTest(t *testing.T) (*ExpenditureService, *expenditureStoreStub, *obligationReaderStub) {
	t.Helper()
	store := newExpenditureStoreStub()
	obligations := &obligationReaderStub{}
	return NewExpenditureService(store, obligations, &auditStub{}, zap.NewNop()), store, obligations
}

func TestExpenditureCreateDefaultsPaidAt(t *testing.T) {
	svc, _, _ := newExpenditureServiceForTest(t)

	expenditure, err := svc.Create(context.Background(), dto.CreateExpenditureRequest{
		BudgetID: "bud-1",
		Amount:   decimal.NewFromInt(250),
		Vendor:   "ACME Logistics",
	}, "officer-1")
	require.NoError(t, err)
	assert.Equal(t, models.ExpenditureStatusPaid, expenditure.Status)
	assert.False(t, expenditure.PaidAt.IsZero())
	assert.Nil(t, expenditure.ObligationID)
}

func TestExpenditureSettlementStaysWithinObligation(t *testing.T) {
	svc, _, obligations := newExpenditureServiceForTest(t)
	obligations.obligation = &models.Obligation{
		ID:     "obl-1",
		Amount: decimal.NewFromInt(1_000),
		Status: models.ObligationStatusObligated,
	}

	first, err := svc.Create(context.Background(), dto.CreateExpenditureRequest{
		BudgetID:     "bud-1",
		ObligationID: "obl-1",
		Amount:       decimal.NewFromInt(700),
	}, "officer-1")
	require.NoError(t, err)
	require.NotNil(t, first.ObligationID)

	// 700 settled, another 400 would overshoot the 1000 obligation.
	_, err = svc.Create(context.Background(), dto.CreateExpenditureRequest{
		BudgetID:     "bud-1",
		ObligationID: "obl-1",
		Amount:       decimal.NewFromInt(400),
	}, "officer-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Contains(t, err.Error(), "would settle")

	// Exactly up to the obligated amount is fine.
	_, err = svc.Create(context.Background(), dto.CreateExpenditureRequest{
		BudgetID:     "bud-1",
		ObligationID: "obl-1",
		Amount:       decimal.NewFromInt(300),
	}, "officer-1")
	require.NoError(t, err)
}

func TestExpenditureRequiresObligatedStatus(t *testing.T) {
	svc, _, obligations := newExpenditureServiceForTest(t)
	obligations.obligation = &models.Obligation{
		ID:     "obl-1",
		Amount: decimal.NewFromInt(1_000),
		Status: models.ObligationStatusDeobligated,
	}

	_, err := svc.Create(context.Background(), dto.CreateExpenditureRequest{
		BudgetID:     "bud-1",
		ObligationID: "obl-1",
		Amount:       decimal.NewFromInt(100),
	}, "officer-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestExpenditureUnknownObligation(t *testing.T) {
	svc, _, _ := newExpenditureServiceForTest(t)

	_, err := svc.Create(context.Background(), dto.CreateExpenditureRequest{
		BudgetID:     "bud-1",
		ObligationID: "missing",
		Amount:       decimal.NewFromInt(100),
	}, "officer-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestExpenditureCancelReleasesSettledAmount(t *testing.T) {
	svc, store, obligations := newExpenditureServiceForTest(t)
	obligations.obligation = &models.Obligation{
		ID:     "obl-1",
		Amount: decimal.NewFromInt(500),
		Status: models.ObligationStatusObligated,
	}

	expenditure, err := svc.Create(context.Background(), dto.CreateExpenditureRequest{
		BudgetID:     "bud-1",
		ObligationID: "obl-1",
		Amount:       decimal.NewFromInt(500),
	}, "officer-1")
	require.NoError(t, err)

	cancelled, err := svc.Cancel(context.Background(), expenditure.ID, "officer-1")
	require.NoError(t, err)
	assert.Equal(t, models.ExpenditureStatusCancelled, cancelled.Status)

	_, err = svc.Cancel(context.Background(), expenditure.ID, "officer-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)

	// The cancelled payment no longer counts toward the settled total.
	settled, err := store.SettledAmount(context.Background(), "obl-1")
	require.NoError(t, err)
	assert.True(t, settled.IsZero())

	_, err = svc.Create(context.Background(), dto.CreateExpenditureRequest{
		BudgetID:     "bud-1",
		ObligationID: "obl-1",
		Amount:       decimal.NewFromInt(500),
	}, "officer-1")
	require.NoError(t, err)
}

func TestExpenditureSummaryGroupsByStatus(t *testing.T) {
	svc, store, _ := newExpenditureServiceForTest(t)
	store.aggregates = []repository.StatusAggregate{
		{Status: string(models.ExpenditureStatusPaid), Total: decimal.NewFromInt(3_200), Count: 4},
		{Status: string(models.ExpenditureStatusCancelled), Total: decimal.NewFromInt(150), Count: 1},
	}

	summary, err := svc.Summary(context.Background(), "bud-1")
	require.NoError(t, err)
	assert.Equal(t, 5, summary.Count)
	assert.True(t, summary.TotalAmount.Equal(decimal.NewFromInt(3_350)))
	assert.True(t, summary.ByStatus[models.ExpenditureStatusPaid].Equal(decimal.NewFromInt(3_200)))
}

func TestExpenditureRejectsNonPositiveAmount(t *testing.T) {
	svc, _, _ := newExpenditureServiceForTest(t)

	_, err := svc.Create(context.Background(), dto.CreateExpenditureRequest{
		BudgetID: "bud-1",
		Amount:   decimal.NewFromInt(-5),
	}, "officer-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestExpenditurePendingCreateThenPay(t *testing.T) {
	svc, store, obligations := newExpenditureServiceForTest(t)
	obligations.obligation = &models.Obligation{
		ID:     "obl-1",
		Amount: decimal.NewFromInt(1_000),
		Status: models.ObligationStatusObligated,
	}

	pending, err := svc.Create(context.Background(), dto.CreateExpenditureRequest{
		BudgetID:     "bud-1",
		ObligationID: "obl-1",
		Amount:       decimal.NewFromInt(400),
		Pending:      true,
	}, "officer-1")
	require.NoError(t, err)
	assert.Equal(t, models.ExpenditureStatusPending, pending.Status)

	paid, err := svc.Pay(context.Background(), pending.ID, "officer-2")
	require.NoError(t, err)
	assert.Equal(t, models.ExpenditureStatusPaid, paid.Status)
	assert.Equal(t, models.ExpenditureStatusPaid, store.expenditures[pending.ID].Status)
}

func TestExpenditurePayRechecksObligationCap(t *testing.T) {
	svc, _, obligations := newExpenditureServiceForTest(t)
	obligations.obligation = &models.Obligation{
		ID:     "obl-1",
		Amount: decimal.NewFromInt(1_000),
		Status: models.ObligationStatusObligated,
	}

	pending, err := svc.Create(context.Background(), dto.CreateExpenditureRequest{
		BudgetID:     "bud-1",
		ObligationID: "obl-1",
		Amount:       decimal.NewFromInt(400),
		Pending:      true,
	}, "officer-1")
	require.NoError(t, err)

	// A direct payment lands while ours waits, leaving only 300 of headroom.
	_, err = svc.Create(context.Background(), dto.CreateExpenditureRequest{
		BudgetID:     "bud-1",
		ObligationID: "obl-1",
		Amount:       decimal.NewFromInt(700),
	}, "officer-1")
	require.NoError(t, err)

	_, err = svc.Pay(context.Background(), pending.ID, "officer-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Contains(t, err.Error(), "would settle")
}

func TestExpenditurePayRequiresPending(t *testing.T) {
	svc, _, _ := newExpenditureServiceForTest(t)

	paid, err := svc.Create(context.Background(), dto.CreateExpenditureRequest{
		BudgetID: "bud-1",
		Amount:   decimal.NewFromInt(250),
	}, "officer-1")
	require.NoError(t, err)

	_, err = svc.Pay(context.Background(), paid.ID, "officer-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}
