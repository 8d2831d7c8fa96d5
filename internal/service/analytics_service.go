package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/noah-isme/bfm-api/internal/models"
	"github.com/noah-isme/bfm-api/internal/repository"
	appErrors "github.com/noah-isme/bfm-api/pkg/errors"
)

var (
	varianceBandPct  = decimal.NewFromInt(10)
	varianceAlarmPct = decimal.NewFromInt(20)
	hundred          = decimal.NewFromInt(100)
)

// AnalyticsRepository describes the aggregation queries the analytics
// service reads from.
type AnalyticsRepository interface {
	LineItemActuals(ctx context.Context, budgetID string) ([]repository.LineItemActual, error)
	BudgetActual(ctx context.Context, budgetID string) (decimal.Decimal, error)
	FiscalYearActuals(ctx context.Context, fiscalYear int) (map[string]decimal.Decimal, error)
}

type lineItemReader interface {
	GetByID(ctx context.Context, id string) (*models.Budget, error)
	List(ctx context.Context, filter models.BudgetFilter) ([]models.Budget, error)
	ListLineItems(ctx context.Context, budgetID string) ([]models.LineItem, error)
}

// AnalyticsService computes planned-versus-actual variance with cache
// integration. Reports are derived from transactional rows, never from
// denormalized counters.
type AnalyticsService struct {
	repo    AnalyticsRepository
	budgets lineItemReader
	cache   *CacheService
	metrics *MetricsService
	logger  *zap.Logger
	now     func() time.Time
}

// NewAnalyticsService constructs an analytics service.
func NewAnalyticsService(repo AnalyticsRepository, budgets lineItemReader, cache *CacheService, metrics *MetricsService, logger *zap.Logger) *AnalyticsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnalyticsService{
		repo:    repo,
		budgets: budgets,
		cache:   cache,
		metrics: metrics,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// CalculateVariance classifies one planned-versus-actual pair. Deviation
// within 10 percent either way is neutral, overspend of 10 percent or more is
// unfavorable, underspend of 10 percent or more is favorable, and any
// deviation of 20 percent or more is critical regardless of direction.
func CalculateVariance(planned, actual decimal.Decimal) models.Variance {
	v := models.Variance{
		PlannedAmount: planned,
		ActualAmount:  actual,
		Amount:        actual.Sub(planned),
		Status:        models.VarianceNeutral,
	}
	if planned.IsZero() {
		if !actual.IsZero() {
			v.Percent = hundred
			v.Status = models.VarianceCritical
		}
		return v
	}
	v.Percent = v.Amount.Div(planned).Mul(hundred)

	switch {
	case v.Percent.Abs().GreaterThanOrEqual(varianceAlarmPct):
		v.Status = models.VarianceCritical
	case v.Percent.GreaterThanOrEqual(varianceBandPct):
		v.Status = models.VarianceUnfavorable
	case v.Percent.LessThanOrEqual(varianceBandPct.Neg()):
		v.Status = models.VarianceFavorable
	}
	return v
}

// VarianceReport computes the overall and per-line-item variance of one
// budget. The result is cached briefly under a per-budget key.
func (s *AnalyticsService) VarianceReport(ctx context.Context, budgetID string) (*models.VarianceReport, error) {
	cacheKey := fmt.Sprintf("analytics:variance:%s", budgetID)
	var cached models.VarianceReport
	if hit, err := s.cache.Get(ctx, cacheKey, &cached); err == nil && hit {
		return &cached, nil
	}

	budget, err := s.budgets.GetByID(ctx, budgetID)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	actual, err := s.repo.BudgetActual(ctx, budgetID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sum budget actuals")
	}
	items, err := s.budgets.ListLineItems(ctx, budgetID)
	if err != nil {
		return nil, err
	}
	lineActuals, err := s.repo.LineItemActuals(ctx, budgetID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sum line item actuals")
	}
	if s.metrics != nil {
		s.metrics.ObserveDBQuery("analytics_variance", time.Since(start))
	}

	byLineItem := make(map[string]decimal.Decimal, len(lineActuals))
	for _, la := range lineActuals {
		byLineItem[la.LineItemID] = la.Actual
	}

	report := &models.VarianceReport{
		BudgetID:    budgetID,
		Overall:     CalculateVariance(budget.Amount, actual),
		LineItems:   make([]models.LineItemVariance, 0, len(items)),
		GeneratedAt: s.now(),
	}
	for _, item := range items {
		report.LineItems = append(report.LineItems, models.LineItemVariance{
			LineItemID:     item.ID,
			Name:           item.Name,
			ProgramElement: item.ProgramElement,
			Variance:       CalculateVariance(item.PlannedAmount, byLineItem[item.ID]),
		})
	}

	if err := s.cache.Set(ctx, cacheKey, report, 0); err != nil {
		s.logger.Warn("cache variance report", zap.String("budget_id", budgetID), zap.Error(err))
	}
	return report, nil
}

// FiscalYearVariance computes the overall variance of every budget in one
// fiscal year, worst deviation first.
func (s *AnalyticsService) FiscalYearVariance(ctx context.Context, fiscalYear int) ([]models.VarianceReport, error) {
	budgets, err := s.budgets.List(ctx, models.BudgetFilter{FiscalYear: fiscalYear, Limit: 200})
	if err != nil {
		return nil, err
	}
	actuals, err := s.repo.FiscalYearActuals(ctx, fiscalYear)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sum fiscal year actuals")
	}

	reports := make([]models.VarianceReport, 0, len(budgets))
	for _, budget := range budgets {
		reports = append(reports, models.VarianceReport{
			BudgetID:    budget.ID,
			Overall:     CalculateVariance(budget.Amount, actuals[budget.ID]),
			GeneratedAt: s.now(),
		})
	}
	sort.Slice(reports, func(i, j int) bool {
		return reports[i].Overall.Percent.Abs().GreaterThan(reports[j].Overall.Percent.Abs())
	})
	return reports, nil
}

// SystemMetrics returns a snapshot of runtime instrumentation.
func (s *AnalyticsService) SystemMetrics() models.SystemMetrics {
	if s.metrics == nil {
		return models.SystemMetrics{}
	}
	return s.metrics.Snapshot()
}

// InvalidateBudget drops cached analytics for one budget.
func (s *AnalyticsService) InvalidateBudget(ctx context.Context, budgetID string) {
	if err := s.cache.Invalidate(ctx, fmt.Sprintf("analytics:variance:%s", budgetID)); err != nil {
		s.logger.Warn("invalidate variance cache", zap.String("budget_id", budgetID), zap.Error(err))
	}
}
