package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/bfm-api/internal/models"
)

const budgetColumns = `id, name, fiscal_year, appropriation_code, amount, status, approval_state, version, description, owner_id, created_at, updated_at`

// BudgetRepository persists budgets, their append-only version snapshots and
// line items. Version rows are never updated or deleted.
type BudgetRepository struct {
	db *sqlx.DB
}

// NewBudgetRepository constructs the repository.
func NewBudgetRepository(db *sqlx.DB) *BudgetRepository {
	return &BudgetRepository{db: db}
}

// Create inserts a new budget at version 1 together with its first snapshot.
func (r *BudgetRepository) Create(ctx context.Context, budget *models.Budget) (err error) {
	if budget.ID == "" {
		budget.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	budget.CreatedAt = now
	budget.UpdatedAt = now
	budget.Version = 1

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin budget transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const insertQuery = `INSERT INTO budgets
	(id, name, fiscal_year, appropriation_code, amount, status, approval_state, version, description, owner_id, created_at, updated_at)
	VALUES (:id, :name, :fiscal_year, :appropriation_code, :amount, :status, :approval_state, :version, :description, :owner_id, :created_at, :updated_at)`
	if _, err = tx.NamedExecContext(ctx, insertQuery, budget); err != nil {
		return fmt.Errorf("create budget: %w", err)
	}
	if err = insertBudgetVersion(ctx, tx, budget, budget.OwnerID); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit budget create: %w", err)
	}
	return nil
}

// GetByID fetches a budget by identifier.
func (r *BudgetRepository) GetByID(ctx context.Context, id string) (*models.Budget, error) {
	query := fmt.Sprintf(`SELECT %s FROM budgets WHERE id = $1`, budgetColumns)
	var budget models.Budget
	if err := r.db.GetContext(ctx, &budget, query, id); err != nil {
		return nil, err
	}
	return &budget, nil
}

// List returns budgets matching the filter, latest first.
func (r *BudgetRepository) List(ctx context.Context, filter models.BudgetFilter) ([]models.Budget, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 4)
	builder.WriteString(fmt.Sprintf(`SELECT %s FROM budgets`, budgetColumns))

	conditions := make([]string, 0, 3)
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
	if filter.OwnerID != "" {
		args = append(args, filter.OwnerID)
		conditions = append(conditions, fmt.Sprintf("owner_id = $%d", len(args)))
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY created_at DESC")

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var budgets []models.Budget
	if err := r.db.SelectContext(ctx, &budgets, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list budgets: %w", err)
	}
	return budgets, nil
}

// UpdateVersioned persists a mutated budget, bumping the version counter with
// an optimistic check against the version the caller read. The new snapshot
// is appended in the same transaction. Returns sql.ErrNoRows on a lost race.
func (r *BudgetRepository) UpdateVersioned(ctx context.Context, budget *models.Budget, changedBy string) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin budget transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	readVersion := budget.Version
	budget.Version++
	budget.UpdatedAt = time.Now().UTC()

	const updateQuery = `UPDATE budgets
	SET name = :name, amount = :amount, status = :status, approval_state = :approval_state,
	    version = :version, description = :description, updated_at = :updated_at
	WHERE id = :id AND version = :read_version`
	result, err := tx.NamedExecContext(ctx, updateQuery, map[string]interface{}{
		"id":             budget.ID,
		"name":           budget.Name,
		"amount":         budget.Amount,
		"status":         budget.Status,
		"approval_state": budget.ApprovalState,
		"version":        budget.Version,
		"description":    budget.Description,
		"updated_at":     budget.UpdatedAt,
		"read_version":   readVersion,
	})
	if err != nil {
		return fmt.Errorf("update budget: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check budget update rows: %w", err)
	}
	if rows == 0 {
		err = sql.ErrNoRows
		return err
	}
	if err = insertBudgetVersion(ctx, tx, budget, changedBy); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit budget update: %w", err)
	}
	return nil
}

// UpdateStatus transitions budget lifecycle and approval state without
// touching the version counter (driven by the approval workflow engine).
func (r *BudgetRepository) UpdateStatus(ctx context.Context, id string, status models.BudgetStatus, approvalState models.ApprovalState) error {
	const query = `UPDATE budgets SET status = $2, approval_state = $3, updated_at = $4 WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, status, approvalState, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update budget status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check budget status rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// insertBudgetVersion snapshots the budget as it was just written, so the
// embedded version always matches the budget_versions.version column.
func insertBudgetVersion(ctx context.Context, tx *sqlx.Tx, budget *models.Budget, changedBy string) error {
	snapshot, err := json.Marshal(budget)
	if err != nil {
		return fmt.Errorf("snapshot budget %s: %w", budget.ID, err)
	}
	version := models.BudgetVersion{
		ID:        uuid.NewString(),
		BudgetID:  budget.ID,
		Version:   budget.Version,
		Snapshot:  snapshot,
		Amount:    budget.Amount,
		ChangedBy: changedBy,
		CreatedAt: time.Now().UTC(),
	}
	const query = `INSERT INTO budget_versions (id, budget_id, version, snapshot, amount, changed_by, created_at)
	VALUES (:id, :budget_id, :version, :snapshot, :amount, :changed_by, :created_at)`
	if _, err := tx.NamedExecContext(ctx, query, version); err != nil {
		return fmt.Errorf("create budget version: %w", err)
	}
	return nil
}

// ListVersions returns all snapshots of a budget in ascending version order.
func (r *BudgetRepository) ListVersions(ctx context.Context, budgetID string) ([]models.BudgetVersion, error) {
	const query = `SELECT id, budget_id, version, snapshot, amount, changed_by, created_at
	FROM budget_versions WHERE budget_id = $1 ORDER BY version ASC`
	var versions []models.BudgetVersion
	if err := r.db.SelectContext(ctx, &versions, query, budgetID); err != nil {
		return nil, fmt.Errorf("list budget versions: %w", err)
	}
	return versions, nil
}

// GetVersion fetches one snapshot of a budget.
func (r *BudgetRepository) GetVersion(ctx context.Context, budgetID string, version int) (*models.BudgetVersion, error) {
	const query = `SELECT id, budget_id, version, snapshot, amount, changed_by, created_at
	FROM budget_versions WHERE budget_id = $1 AND version = $2`
	var v models.BudgetVersion
	if err := r.db.GetContext(ctx, &v, query, budgetID, version); err != nil {
		return nil, err
	}
	return &v, nil
}

// CreateLineItem inserts a planned spending position for a budget.
func (r *BudgetRepository) CreateLineItem(ctx context.Context, item *models.LineItem) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	item.CreatedAt = now
	item.UpdatedAt = now
	const query = `INSERT INTO line_items (id, budget_id, name, program_element, planned_amount, actual_amount, created_at, updated_at)
	VALUES (:id, :budget_id, :name, :program_element, :planned_amount, :actual_amount, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, item); err != nil {
		return fmt.Errorf("create line item: %w", err)
	}
	return nil
}

// ListLineItems returns the line items of a budget.
func (r *BudgetRepository) ListLineItems(ctx context.Context, budgetID string) ([]models.LineItem, error) {
	const query = `SELECT id, budget_id, name, program_element, planned_amount, actual_amount, created_at, updated_at
	FROM line_items WHERE budget_id = $1 ORDER BY name ASC`
	var items []models.LineItem
	if err := r.db.SelectContext(ctx, &items, query, budgetID); err != nil {
		return nil, fmt.Errorf("list line items: %w", err)
	}
	return items, nil
}
