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

const appropriationColumns = `id, code, fiscal_year, type, total_amount, allocated_amount, available_amount, expiration_date, restrictions, created_at, updated_at`

// AppropriationRepository persists fund balances. Balance columns move only
// through Allocate/Deallocate, each a single conditional UPDATE so that
// concurrent allocations against the same row serialize on the database.
type AppropriationRepository struct {
	db *sqlx.DB
}

// NewAppropriationRepository constructs the repository.
func NewAppropriationRepository(db *sqlx.DB) *AppropriationRepository {
	return &AppropriationRepository{db: db}
}

// Create inserts a new appropriation with the full amount available.
func (r *AppropriationRepository) Create(ctx context.Context, a *models.Appropriation) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now
	a.AvailableAmount = a.TotalAmount
	a.AllocatedAmount = decimal.Zero

	const query = `INSERT INTO appropriations
	(id, code, fiscal_year, type, total_amount, allocated_amount, available_amount, expiration_date, restrictions, created_at, updated_at)
	VALUES (:id, :code, :fiscal_year, :type, :total_amount, :allocated_amount, :available_amount, :expiration_date, :restrictions, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, a); err != nil {
		return fmt.Errorf("create appropriation: %w", err)
	}
	return nil
}

// GetByID fetches an appropriation by identifier.
func (r *AppropriationRepository) GetByID(ctx context.Context, id string) (*models.Appropriation, error) {
	query := fmt.Sprintf(`SELECT %s FROM appropriations WHERE id = $1`, appropriationColumns)
	var a models.Appropriation
	if err := r.db.GetContext(ctx, &a, query, id); err != nil {
		return nil, err
	}
	return &a, nil
}

// GetByCode fetches an appropriation by fund code and fiscal year.
func (r *AppropriationRepository) GetByCode(ctx context.Context, code string, fiscalYear int) (*models.Appropriation, error) {
	query := fmt.Sprintf(`SELECT %s FROM appropriations WHERE code = $1 AND fiscal_year = $2`, appropriationColumns)
	var a models.Appropriation
	if err := r.db.GetContext(ctx, &a, query, code, fiscalYear); err != nil {
		return nil, err
	}
	return &a, nil
}

// List returns appropriations matching the filter.
func (r *AppropriationRepository) List(ctx context.Context, filter models.AppropriationFilter) ([]models.Appropriation, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 3)
	builder.WriteString(fmt.Sprintf(`SELECT %s FROM appropriations`, appropriationColumns))

	conditions := make([]string, 0, 3)
	if filter.Code != "" {
		args = append(args, filter.Code)
		conditions = append(conditions, fmt.Sprintf("code = $%d", len(args)))
	}
	if filter.FiscalYear != 0 {
		args = append(args, filter.FiscalYear)
		conditions = append(conditions, fmt.Sprintf("fiscal_year = $%d", len(args)))
	}
	if filter.Type != "" {
		args = append(args, filter.Type)
		conditions = append(conditions, fmt.Sprintf("type = $%d", len(args)))
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY fiscal_year DESC, code ASC")

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var appropriations []models.Appropriation
	if err := r.db.SelectContext(ctx, &appropriations, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list appropriations: %w", err)
	}
	return appropriations, nil
}

// Allocate atomically moves amount from available to allocated. The guard
// `available_amount >= amount` is part of the statement: two concurrent
// allocations whose sum exceeds the available balance cannot both match.
// Returns sql.ErrNoRows when the row is missing or the balance is short;
// callers distinguish the two by re-reading the row.
func (r *AppropriationRepository) Allocate(ctx context.Context, id string, amount decimal.Decimal) error {
	const query = `UPDATE appropriations
	SET available_amount = available_amount - $2,
	    allocated_amount = allocated_amount + $2,
	    updated_at = $3
	WHERE id = $1 AND available_amount >= $2`
	result, err := r.db.ExecContext(ctx, query, id, amount, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("allocate appropriation: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check allocate rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Deallocate reverses an allocation, clamping allocated at zero so corrected
// records can over-deallocate without failing. The available balance is
// recomputed from total so available + allocated == total holds throughout.
func (r *AppropriationRepository) Deallocate(ctx context.Context, id string, amount decimal.Decimal) error {
	const query = `UPDATE appropriations
	SET allocated_amount = GREATEST(allocated_amount - $2, 0),
	    available_amount = total_amount - GREATEST(allocated_amount - $2, 0),
	    updated_at = $3
	WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, amount, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("deallocate appropriation: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check deallocate rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
