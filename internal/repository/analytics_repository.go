package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// AnalyticsRepository exposes read-optimised aggregation queries for variance
// reporting. All totals are recomputed from transactional rows on every call.
type AnalyticsRepository struct {
	db *sqlx.DB
}

// NewAnalyticsRepository instantiates the repository.
func NewAnalyticsRepository(db *sqlx.DB) *AnalyticsRepository {
	return &AnalyticsRepository{db: db}
}

// LineItemActual carries the paid total attributed to one line item.
type LineItemActual struct {
	LineItemID string          `db:"line_item_id"`
	Actual     decimal.Decimal `db:"actual"`
}

// LineItemActuals sums paid expenditures per line item of a budget,
// attributed through the obligation each payment settles.
func (r *AnalyticsRepository) LineItemActuals(ctx context.Context, budgetID string) ([]LineItemActual, error) {
	const query = `SELECT o.line_item_id AS line_item_id, COALESCE(SUM(e.amount), 0) AS actual
	FROM expenditures e
	JOIN obligations o ON o.id = e.obligation_id
	WHERE o.budget_id = $1 AND e.status = 'PAID' AND o.line_item_id IS NOT NULL
	GROUP BY o.line_item_id`
	var actuals []LineItemActual
	if err := r.db.SelectContext(ctx, &actuals, query, budgetID); err != nil {
		return nil, fmt.Errorf("sum line item actuals: %w", err)
	}
	return actuals, nil
}

// BudgetActual sums every paid expenditure of a budget, including payments
// not attributed to a line item.
func (r *AnalyticsRepository) BudgetActual(ctx context.Context, budgetID string) (decimal.Decimal, error) {
	const query = `SELECT COALESCE(SUM(amount), 0) FROM expenditures WHERE budget_id = $1 AND status = 'PAID'`
	var total decimal.Decimal
	if err := r.db.GetContext(ctx, &total, query, budgetID); err != nil {
		return decimal.Zero, fmt.Errorf("sum budget actuals: %w", err)
	}
	return total, nil
}

// FiscalYearActuals sums paid expenditures per budget for one fiscal year.
func (r *AnalyticsRepository) FiscalYearActuals(ctx context.Context, fiscalYear int) (map[string]decimal.Decimal, error) {
	const query = `SELECT e.budget_id AS budget_id, COALESCE(SUM(e.amount), 0) AS actual
	FROM expenditures e
	JOIN budgets b ON b.id = e.budget_id
	WHERE b.fiscal_year = $1 AND e.status = 'PAID'
	GROUP BY e.budget_id`
	var rows []struct {
		BudgetID string          `db:"budget_id"`
		Actual   decimal.Decimal `db:"actual"`
	}
	if err := r.db.SelectContext(ctx, &rows, query, fiscalYear); err != nil {
		return nil, fmt.Errorf("sum fiscal year actuals: %w", err)
	}
	actuals := make(map[string]decimal.Decimal, len(rows))
	for _, row := range rows {
		actuals[row.BudgetID] = row.Actual
	}
	return actuals, nil
}
