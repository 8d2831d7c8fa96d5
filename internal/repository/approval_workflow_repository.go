package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/bfm-api/internal/models"
)

// ApprovalWorkflowRepository persists workflow definitions and their ordered
// steps. Definitions referenced by in-flight requests are never edited in
// place; changes deactivate the old row and insert a new one.
type ApprovalWorkflowRepository struct {
	db *sqlx.DB
}

// NewApprovalWorkflowRepository constructs the repository.
func NewApprovalWorkflowRepository(db *sqlx.DB) *ApprovalWorkflowRepository {
	return &ApprovalWorkflowRepository{db: db}
}

// Create inserts a workflow with its steps in one transaction.
func (r *ApprovalWorkflowRepository) Create(ctx context.Context, workflow *models.ApprovalWorkflow) (err error) {
	if workflow.ID == "" {
		workflow.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	workflow.CreatedAt = now
	workflow.UpdatedAt = now
	workflow.Active = true

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin workflow transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const workflowQuery = `INSERT INTO approval_workflows (id, name, entity_type, active, created_by, created_at, updated_at)
	VALUES (:id, :name, :entity_type, :active, :created_by, :created_at, :updated_at)`
	if _, err = tx.NamedExecContext(ctx, workflowQuery, workflow); err != nil {
		return fmt.Errorf("create workflow: %w", err)
	}

	const stepQuery = `INSERT INTO approval_steps (id, workflow_id, step_order, required_role, approver_id, auto_approve_threshold)
	VALUES (:id, :workflow_id, :step_order, :required_role, :approver_id, :auto_approve_threshold)`
	for i := range workflow.Steps {
		step := &workflow.Steps[i]
		if step.ID == "" {
			step.ID = uuid.NewString()
		}
		step.WorkflowID = workflow.ID
		if _, err = tx.NamedExecContext(ctx, stepQuery, step); err != nil {
			return fmt.Errorf("create workflow step: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit workflow create: %w", err)
	}
	return nil
}

// GetByID fetches a workflow including its ordered steps.
func (r *ApprovalWorkflowRepository) GetByID(ctx context.Context, id string) (*models.ApprovalWorkflow, error) {
	const query = `SELECT id, name, entity_type, active, created_by, created_at, updated_at FROM approval_workflows WHERE id = $1`
	var workflow models.ApprovalWorkflow
	if err := r.db.GetContext(ctx, &workflow, query, id); err != nil {
		return nil, err
	}
	steps, err := r.listSteps(ctx, workflow.ID)
	if err != nil {
		return nil, err
	}
	workflow.Steps = steps
	return &workflow, nil
}

// FindActiveByEntityType returns the active workflow for an entity type,
// including its ordered steps. sql.ErrNoRows when none is defined.
func (r *ApprovalWorkflowRepository) FindActiveByEntityType(ctx context.Context, entityType models.ApprovalEntityType) (*models.ApprovalWorkflow, error) {
	const query = `SELECT id, name, entity_type, active, created_by, created_at, updated_at
	FROM approval_workflows WHERE entity_type = $1 AND active = TRUE ORDER BY created_at DESC LIMIT 1`
	var workflow models.ApprovalWorkflow
	if err := r.db.GetContext(ctx, &workflow, query, entityType); err != nil {
		return nil, err
	}
	steps, err := r.listSteps(ctx, workflow.ID)
	if err != nil {
		return nil, err
	}
	workflow.Steps = steps
	return &workflow, nil
}

// List returns all workflows, optionally filtered by entity type.
func (r *ApprovalWorkflowRepository) List(ctx context.Context, entityType models.ApprovalEntityType) ([]models.ApprovalWorkflow, error) {
	var workflows []models.ApprovalWorkflow
	if entityType != "" {
		const query = `SELECT id, name, entity_type, active, created_by, created_at, updated_at
		FROM approval_workflows WHERE entity_type = $1 ORDER BY created_at DESC`
		if err := r.db.SelectContext(ctx, &workflows, query, entityType); err != nil {
			return nil, fmt.Errorf("list workflows: %w", err)
		}
	} else {
		const query = `SELECT id, name, entity_type, active, created_by, created_at, updated_at
		FROM approval_workflows ORDER BY created_at DESC`
		if err := r.db.SelectContext(ctx, &workflows, query); err != nil {
			return nil, fmt.Errorf("list workflows: %w", err)
		}
	}
	for i := range workflows {
		steps, err := r.listSteps(ctx, workflows[i].ID)
		if err != nil {
			return nil, err
		}
		workflows[i].Steps = steps
	}
	return workflows, nil
}

// Deactivate retires a workflow so future requests no longer bind to it.
func (r *ApprovalWorkflowRepository) Deactivate(ctx context.Context, id string) error {
	const query = `UPDATE approval_workflows SET active = FALSE, updated_at = $2 WHERE id = $1 AND active = TRUE`
	result, err := r.db.ExecContext(ctx, query, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("deactivate workflow: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check deactivate rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (r *ApprovalWorkflowRepository) listSteps(ctx context.Context, workflowID string) ([]models.ApprovalStep, error) {
	const query = `SELECT id, workflow_id, step_order, required_role, approver_id, auto_approve_threshold
	FROM approval_steps WHERE workflow_id = $1 ORDER BY step_order ASC`
	var steps []models.ApprovalStep
	if err := r.db.SelectContext(ctx, &steps, query, workflowID); err != nil {
		return nil, fmt.Errorf("list workflow steps: %w", err)
	}
	return steps, nil
}
