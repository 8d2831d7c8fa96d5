package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/bfm-api/internal/models"
)

const obligationColumns = `id, budget_id, line_item_id, appropriation_code, fiscal_year, amount, status, description, vendor, obligated_at, created_by, created_at, updated_at`

// ObligationRepository persists obligations. Amounts are immutable after
// insert; only the status column transitions.
type ObligationRepository struct {
	db *sqlx.DB
}

// NewObligationRepository constructs the repository.
func NewObligationRepository(db *sqlx.DB) *ObligationRepository {
	return &ObligationRepository{db: db}
}

// Create inserts a new obligation row.
func (r *ObligationRepository) Create(ctx context.Context, o *models.Obligation) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	o.CreatedAt = now
	o.UpdatedAt = now
	if o.ObligatedAt.IsZero() {
		o.ObligatedAt = now
	}
	if o.Status == "" {
		o.Status = models.ObligationStatusPending
	}
	const query = `INSERT INTO obligations
	(id, budget_id, line_item_id, appropriation_code, fiscal_year, amount, status, description, vendor, obligated_at, created_by, created_at, updated_at)
	VALUES (:id, :budget_id, :line_item_id, :appropriation_code, :fiscal_year, :amount, :status, :description, :vendor, :obligated_at, :created_by, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, o); err != nil {
		return fmt.Errorf("create obligation: %w", err)
	}
	return nil
}

// GetByID fetches an obligation by identifier.
func (r *ObligationRepository) GetByID(ctx context.Context, id string) (*models.Obligation, error) {
	query := fmt.Sprintf(`SELECT %s FROM obligations WHERE id = $1`, obligationColumns)
	var o models.Obligation
	if err := r.db.GetContext(ctx, &o, query, id); err != nil {
		return nil, err
	}
	return &o, nil
}

// List returns obligations matching the filter, latest first.
func (r *ObligationRepository) List(ctx context.Context, filter models.ObligationFilter) ([]models.Obligation, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 5)
	builder.WriteString(fmt.Sprintf(`SELECT %s FROM obligations`, obligationColumns))

	conditions := make([]string, 0, 4)
	if filter.BudgetID != "" {
		args = append(args, filter.BudgetID)
		conditions = append(conditions, fmt.Sprintf("budget_id = $%d", len(args)))
	}
	if filter.AppropriationCode != "" {
		args = append(args, filter.AppropriationCode)
		conditions = append(conditions, fmt.Sprintf("appropriation_code = $%d", len(args)))
	}
	if filter.FiscalYear != 0 {
		args = append(args, filter.FiscalYear)
		conditions = append(conditions, fmt.Sprintf("fiscal_year = $%d", len(args)))
	}
	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY obligated_at DESC")

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var obligations []models.Obligation
	if err := r.db.SelectContext(ctx, &obligations, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list obligations: %w", err)
	}
	return obligations, nil
}

// UpdateStatus transitions the obligation status with a guard on the status
// the caller read, so concurrent transitions cannot both succeed.
func (r *ObligationRepository) UpdateStatus(ctx context.Context, id string, from, to models.ObligationStatus) error {
	const query = `UPDATE obligations SET status = $3, updated_at = $4 WHERE id = $1 AND status = $2`
	result, err := r.db.ExecContext(ctx, query, id, from, to, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update obligation status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check obligation status rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// StatusAggregate is one SUM/COUNT bucket of a grouped aggregation query.
type StatusAggregate struct {
	Status string          `db:"status"`
	Total  decimal.Decimal `db:"total"`
	Count  int             `db:"count"`
}

// SummarizeByBudget recomputes obligation totals for one budget from the
// authoritative rows, grouped by status.
func (r *ObligationRepository) SummarizeByBudget(ctx context.Context, budgetID string) ([]StatusAggregate, error) {
	const query = `SELECT status, COALESCE(SUM(amount), 0) AS total, COUNT(*) AS count
	FROM obligations WHERE budget_id = $1 GROUP BY status`
	var aggregates []StatusAggregate
	if err := r.db.SelectContext(ctx, &aggregates, query, budgetID); err != nil {
		return nil, fmt.Errorf("summarize obligations: %w", err)
	}
	return aggregates, nil
}
