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

const expenditureColumns = `id, budget_id, obligation_id, amount, status, description, vendor, paid_at, created_by, created_at, updated_at`

// ExpenditureRepository persists expenditures. Amounts are immutable after
// insert; only the status column transitions.
type ExpenditureRepository struct {
	db *sqlx.DB
}

// NewExpenditureRepository constructs the repository.
func NewExpenditureRepository(db *sqlx.DB) *ExpenditureRepository {
	return &ExpenditureRepository{db: db}
}

// Create inserts a new expenditure row.
func (r *ExpenditureRepository) Create(ctx context.Context, e *models.Expenditure) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	e.CreatedAt = now
	e.UpdatedAt = now
	if e.PaidAt.IsZero() {
		e.PaidAt = now
	}
	if e.Status == "" {
		e.Status = models.ExpenditureStatusPending
	}
	const query = `INSERT INTO expenditures
	(id, budget_id, obligation_id, amount, status, description, vendor, paid_at, created_by, created_at, updated_at)
	VALUES (:id, :budget_id, :obligation_id, :amount, :status, :description, :vendor, :paid_at, :created_by, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, e); err != nil {
		return fmt.Errorf("create expenditure: %w", err)
	}
	return nil
}

// GetByID fetches an expenditure by identifier.
func (r *ExpenditureRepository) GetByID(ctx context.Context, id string) (*models.Expenditure, error) {
	query := fmt.Sprintf(`SELECT %s FROM expenditures WHERE id = $1`, expenditureColumns)
	var e models.Expenditure
	if err := r.db.GetContext(ctx, &e, query, id); err != nil {
		return nil, err
	}
	return &e, nil
}

// List returns expenditures matching the filter, latest first.
func (r *ExpenditureRepository) List(ctx context.Context, filter models.ExpenditureFilter) ([]models.Expenditure, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 4)
	builder.WriteString(fmt.Sprintf(`SELECT %s FROM expenditures`, expenditureColumns))

	conditions := make([]string, 0, 3)
	if filter.BudgetID != "" {
		args = append(args, filter.BudgetID)
		conditions = append(conditions, fmt.Sprintf("budget_id = $%d", len(args)))
	}
	if filter.ObligationID != "" {
		args = append(args, filter.ObligationID)
		conditions = append(conditions, fmt.Sprintf("obligation_id = $%d", len(args)))
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
	builder.WriteString(" ORDER BY paid_at DESC")

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var expenditures []models.Expenditure
	if err := r.db.SelectContext(ctx, &expenditures, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list expenditures: %w", err)
	}
	return expenditures, nil
}

// UpdateStatus transitions the expenditure status with a guard on the status
// the caller read.
func (r *ExpenditureRepository) UpdateStatus(ctx context.Context, id string, from, to models.ExpenditureStatus) error {
	const query = `UPDATE expenditures SET status = $3, updated_at = $4 WHERE id = $1 AND status = $2`
	result, err := r.db.ExecContext(ctx, query, id, from, to, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update expenditure status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check expenditure status rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SummarizeByBudget recomputes expenditure totals for one budget from the
// authoritative rows, grouped by status.
func (r *ExpenditureRepository) SummarizeByBudget(ctx context.Context, budgetID string) ([]StatusAggregate, error) {
	const query = `SELECT status, COALESCE(SUM(amount), 0) AS total, COUNT(*) AS count
	FROM expenditures WHERE budget_id = $1 GROUP BY status`
	var aggregates []StatusAggregate
	if err := r.db.SelectContext(ctx, &aggregates, query, budgetID); err != nil {
		return nil, fmt.Errorf("summarize expenditures: %w", err)
	}
	return aggregates, nil
}

// SettledAmount returns the sum of non-cancelled expenditures referencing an
// obligation, used to cap settlement at the obligated amount.
func (r *ExpenditureRepository) SettledAmount(ctx context.Context, obligationID string) (decimal.Decimal, error) {
	const query = `SELECT COALESCE(SUM(amount), 0) FROM expenditures WHERE obligation_id = $1 AND status <> $2`
	var total decimal.Decimal
	if err := r.db.GetContext(ctx, &total, query, obligationID, models.ExpenditureStatusCancelled); err != nil {
		return decimal.Zero, fmt.Errorf("sum settled expenditures: %w", err)
	}
	return total, nil
}
