package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/bfm-api/internal/models"
	"github.com/noah-isme/bfm-api/internal/repository"
	appErrors "github.com/noah-isme/bfm-api/pkg/errors"
)

type analyticsRepoStub struct {
	lineActuals  []repository.LineItemActual
	budgetActual decimal.Decimal
	fyActuals    map[string]decimal.Decimal
	calls        int
}

func (s *analyticsRepoStub) LineItemActuals(ctx context.Context, budgetID string) ([]repository.LineItemActual, error) {
	return s.lineActuals, nil
}

func (s *analyticsRepoStub) BudgetActual(ctx context.Context, budgetID string) (decimal.Decimal, error) {
	s.calls++
	return s.budgetActual, nil
}

func (s *analyticsRepoStub) FiscalYearActuals(ctx context.Context, fiscalYear int) (map[string]decimal.Decimal, error) {
	return s.fyActuals, nil
}

type budgetReaderStub struct {
	budgets map[string]*models.Budget
	items   []models.LineItem
}

func (s *budgetReaderStub) GetByID(ctx context.Context, id string) (*models.Budget, error) {
	if b, ok := s.budgets[id]; ok {
		return b, nil
	}
	return nil, sql.ErrNoRows
}

func (s *budgetReaderStub) List(ctx context.Context, filter models.BudgetFilter) ([]models.Budget, error) {
	var out []models.Budget
	for _, b := range s.budgets {
		out = append(out, *b)
	}
	return out, nil
}

func (s *budgetReaderStub) ListLineItems(ctx context.Context, budgetID string) ([]models.LineItem, error) {
	return s.items, nil
}

type memoryCacheRepo struct {
	entries map[string][]byte
}

func newMemoryCacheRepo() *memoryCacheRepo {
	return &memoryCacheRepo{entries: make(map[string][]byte)}
}

func (r *memoryCacheRepo) Get(ctx context.Context, key string, dest interface{}) error {
	raw, ok := r.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (r *memoryCacheRepo) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	r.entries[key] = raw
	return nil
}

func (r *memoryCacheRepo) DeleteByPattern(ctx context.Context, pattern string) error {
	delete(r.entries, pattern)
	return nil
}

func newAnalyticsServiceForTest(t *testing.T) (*AnalyticsService, *analyticsRepoStub, *budgetReaderStub, *memoryCacheRepo) {
	t.Helper()
	repo := &analyticsRepoStub{fyActuals: map[string]decimal.Decimal{}}
	budgets := &budgetReaderStub{budgets: map[string]*models.Budget{}}
	cacheRepo := newMemoryCacheRepo()
	cache := NewCacheService(cacheRepo, nil, time.Minute, zap.NewNop(), true)
	return NewAnalyticsService(repo, budgets, cache, nil, zap.NewNop()), repo, budgets, cacheRepo
}

func TestCalculateVarianceClassification(t *testing.T) {
	cases := []struct {
		name    string
		planned int64
		actual  int64
		status  models.VarianceStatus
		percent string
	}{
		{"within band overspend", 100, 105, models.VarianceNeutral, "5"},
		{"within band underspend", 100, 95, models.VarianceNeutral, "-5"},
		{"underspend at band edge", 100, 90, models.VarianceFavorable, "-10"},
		{"underspend", 100, 85, models.VarianceFavorable, "-15"},
		{"overspend at band edge", 100, 110, models.VarianceUnfavorable, "10"},
		{"overspend", 100, 115, models.VarianceUnfavorable, "15"},
		{"critical overspend", 100, 125, models.VarianceCritical, "25"},
		{"critical underspend", 100, 75, models.VarianceCritical, "-25"},
		{"exact", 100, 100, models.VarianceNeutral, "0"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := CalculateVariance(decimal.NewFromInt(tc.planned), decimal.NewFromInt(tc.actual))
			assert.Equal(t, tc.status, v.Status)
			assert.True(t, v.Percent.Equal(decimal.RequireFromString(tc.percent)), "percent %s", v.Percent)
		})
	}
}

func TestCalculateVarianceZeroPlanned(t *testing.T) {
	v := CalculateVariance(decimal.Zero, decimal.NewFromInt(50))
	assert.Equal(t, models.VarianceCritical, v.Status)
	assert.True(t, v.Percent.Equal(decimal.NewFromInt(100)))

	v = CalculateVariance(decimal.Zero, decimal.Zero)
	assert.Equal(t, models.VarianceNeutral, v.Status)
	assert.True(t, v.Percent.IsZero())
}

func TestVarianceReportCoversLineItems(t *testing.T) {
	svc, repo, budgets, _ := newAnalyticsServiceForTest(t)
	budgets.budgets["bud-1"] = &models.Budget{ID: "bud-1", Amount: decimal.NewFromInt(1_000)}
	budgets.items = []models.LineItem{
		{ID: "li-1", BudgetID: "bud-1", Name: "Travel", PlannedAmount: decimal.NewFromInt(400)},
		{ID: "li-2", BudgetID: "bud-1", Name: "Equipment", PlannedAmount: decimal.NewFromInt(600)},
	}
	repo.budgetActual = decimal.NewFromInt(850)
	repo.lineActuals = []repository.LineItemActual{
		{LineItemID: "li-1", Actual: decimal.NewFromInt(460)},
	}

	report, err := svc.VarianceReport(context.Background(), "bud-1")
	require.NoError(t, err)
	assert.Equal(t, models.VarianceFavorable, report.Overall.Status)
	require.Len(t, report.LineItems, 2)
	assert.Equal(t, models.VarianceUnfavorable, report.LineItems[0].Variance.Status)
	// No payments attributed to li-2 yet: full underspend.
	assert.Equal(t, models.VarianceCritical, report.LineItems[1].Variance.Status)
	assert.True(t, report.LineItems[1].Variance.ActualAmount.IsZero())
}

func TestVarianceReportServedFromCache(t *testing.T) {
	svc, repo, budgets, _ := newAnalyticsServiceForTest(t)
	budgets.budgets["bud-1"] = &models.Budget{ID: "bud-1", Amount: decimal.NewFromInt(100)}
	repo.budgetActual = decimal.NewFromInt(90)

	_, err := svc.VarianceReport(context.Background(), "bud-1")
	require.NoError(t, err)
	_, err = svc.VarianceReport(context.Background(), "bud-1")
	require.NoError(t, err)
	assert.Equal(t, 1, repo.calls)

	svc.InvalidateBudget(context.Background(), "bud-1")
	_, err = svc.VarianceReport(context.Background(), "bud-1")
	require.NoError(t, err)
	assert.Equal(t, 2, repo.calls)
}

func TestFiscalYearVarianceWorstDeviationFirst(t *testing.T) {
	svc, repo, budgets, _ := newAnalyticsServiceForTest(t)
	budgets.budgets["bud-a"] = &models.Budget{ID: "bud-a", FiscalYear: 2026, Amount: decimal.NewFromInt(100)}
	budgets.budgets["bud-b"] = &models.Budget{ID: "bud-b", FiscalYear: 2026, Amount: decimal.NewFromInt(100)}
	budgets.budgets["bud-c"] = &models.Budget{ID: "bud-c", FiscalYear: 2026, Amount: decimal.NewFromInt(100)}
	repo.fyActuals = map[string]decimal.Decimal{
		"bud-a": decimal.NewFromInt(105),
		"bud-b": decimal.NewFromInt(60),
		"bud-c": decimal.NewFromInt(115),
	}

	reports, err := svc.FiscalYearVariance(context.Background(), 2026)
	require.NoError(t, err)
	require.Len(t, reports, 3)
	assert.Equal(t, "bud-b", reports[0].BudgetID)
	assert.Equal(t, "bud-c", reports[1].BudgetID)
	assert.Equal(t, "bud-a", reports[2].BudgetID)
}

func TestSystemMetricsWithoutInstrumentation(t *testing.T) {
	svc, _, _, _ := newAnalyticsServiceForTest(t)
	assert.Zero(t, svc.SystemMetrics())
}
