package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/bfm-api/internal/models"
)

const approvalRequestColumns = `id, workflow_id, entity_type, entity_id, amount, current_step, step_count, status, requested_by, created_at, completed_at`

// ApprovalRequestRepository persists approval requests and their append-only
// action trail. Request progress updates carry a compare-and-swap guard on
// the non-terminal statuses so two simultaneous decisions cannot both land.
type ApprovalRequestRepository struct {
	db *sqlx.DB
}

// NewApprovalRequestRepository constructs the repository.
func NewApprovalRequestRepository(db *sqlx.DB) *ApprovalRequestRepository {
	return &ApprovalRequestRepository{db: db}
}

// Create inserts a new approval request.
func (r *ApprovalRequestRepository) Create(ctx context.Context, request *models.ApprovalRequest) error {
	if request.ID == "" {
		request.ID = uuid.NewString()
	}
	if request.Status == "" {
		request.Status = models.RequestStatusPending
	}
	if request.CreatedAt.IsZero() {
		request.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO approval_requests
	(id, workflow_id, entity_type, entity_id, amount, current_step, step_count, status, requested_by, created_at, completed_at)
	VALUES (:id, :workflow_id, :entity_type, :entity_id, :amount, :current_step, :step_count, :status, :requested_by, :created_at, :completed_at)`
	if _, err := r.db.NamedExecContext(ctx, query, request); err != nil {
		return fmt.Errorf("create approval request: %w", err)
	}
	return nil
}

// GetByID fetches an approval request by identifier.
func (r *ApprovalRequestRepository) GetByID(ctx context.Context, id string) (*models.ApprovalRequest, error) {
	query := fmt.Sprintf(`SELECT %s FROM approval_requests WHERE id = $1`, approvalRequestColumns)
	var request models.ApprovalRequest
	if err := r.db.GetContext(ctx, &request, query, id); err != nil {
		return nil, err
	}
	return &request, nil
}

// FindActiveByEntity returns the single non-terminal request for an entity,
// or sql.ErrNoRows when none is in flight.
func (r *ApprovalRequestRepository) FindActiveByEntity(ctx context.Context, entityType models.ApprovalEntityType, entityID string) (*models.ApprovalRequest, error) {
	query := fmt.Sprintf(`SELECT %s FROM approval_requests
	WHERE entity_type = $1 AND entity_id = $2 AND status IN ($3, $4) LIMIT 1`, approvalRequestColumns)
	var request models.ApprovalRequest
	if err := r.db.GetContext(ctx, &request, query, entityType, entityID, models.RequestStatusPending, models.RequestStatusInReview); err != nil {
		return nil, err
	}
	return &request, nil
}

// List returns approval requests matching the filter, latest first.
func (r *ApprovalRequestRepository) List(ctx context.Context, filter models.ApprovalRequestFilter) ([]models.ApprovalRequest, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 5)
	builder.WriteString(fmt.Sprintf(`SELECT %s FROM approval_requests`, approvalRequestColumns))

	conditions := make([]string, 0, 4)
	if filter.EntityType != "" {
		args = append(args, filter.EntityType)
		conditions = append(conditions, fmt.Sprintf("entity_type = $%d", len(args)))
	}
	if filter.EntityID != "" {
		args = append(args, filter.EntityID)
		conditions = append(conditions, fmt.Sprintf("entity_id = $%d", len(args)))
	}
	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.RequestedBy != "" {
		args = append(args, filter.RequestedBy)
		conditions = append(conditions, fmt.Sprintf("requested_by = $%d", len(args)))
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

	var requests []models.ApprovalRequest
	if err := r.db.SelectContext(ctx, &requests, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list approval requests: %w", err)
	}
	return requests, nil
}

// ListPendingForApprover returns non-terminal requests whose current step is
// authorized for the given approver, via a join on the pinned workflow steps.
func (r *ApprovalRequestRepository) ListPendingForApprover(ctx context.Context, approverID string, role models.UserRole) ([]models.ApprovalRequest, error) {
	const query = `SELECT r.id, r.workflow_id, r.entity_type, r.entity_id, r.amount, r.current_step, r.step_count, r.status, r.requested_by, r.created_at, r.completed_at
	FROM approval_requests r
	JOIN approval_steps s ON s.workflow_id = r.workflow_id AND s.step_order = r.current_step
	WHERE r.status IN ($1, $2)
	  AND (s.approver_id = $3 OR (COALESCE(s.approver_id, '') = '' AND s.required_role = $4))
	ORDER BY r.created_at ASC`
	var requests []models.ApprovalRequest
	if err := r.db.SelectContext(ctx, &requests, query, models.RequestStatusPending, models.RequestStatusInReview, approverID, role); err != nil {
		return nil, fmt.Errorf("list pending approvals: %w", err)
	}
	return requests, nil
}

// UpdateProgressParams groups the mutable request columns for one transition.
type UpdateProgressParams struct {
	ID          string
	Status      models.RequestStatus
	CurrentStep int
	CompletedAt *time.Time
}

// UpdateProgress advances or finalizes a request. The WHERE clause restricts
// the update to non-terminal rows; sql.ErrNoRows signals the transition lost
// a race or the request was already finalized.
func (r *ApprovalRequestRepository) UpdateProgress(ctx context.Context, params UpdateProgressParams) error {
	const query = `UPDATE approval_requests
	SET status = $2, current_step = $3, completed_at = $4
	WHERE id = $1 AND status IN ($5, $6)`
	result, err := r.db.ExecContext(ctx, query,
		params.ID, params.Status, params.CurrentStep, params.CompletedAt,
		models.RequestStatusPending, models.RequestStatusInReview,
	)
	if err != nil {
		return fmt.Errorf("update approval request: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check approval update rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// AppendAction stores one immutable decision record. There is deliberately
// no update or delete for approval actions.
func (r *ApprovalRequestRepository) AppendAction(ctx context.Context, action *models.ApprovalAction) error {
	if action.ID == "" {
		action.ID = uuid.NewString()
	}
	if action.CreatedAt.IsZero() {
		action.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO approval_actions (id, request_id, step, approver_id, decision, comments, created_at)
	VALUES (:id, :request_id, :step, :approver_id, :decision, :comments, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, action); err != nil {
		return fmt.Errorf("append approval action: %w", err)
	}
	return nil
}

// ListActions returns the audit trail of a request in decision order.
func (r *ApprovalRequestRepository) ListActions(ctx context.Context, requestID string) ([]models.ApprovalAction, error) {
	const query = `SELECT id, request_id, step, approver_id, decision, comments, created_at
	FROM approval_actions WHERE request_id = $1 ORDER BY created_at ASC`
	var actions []models.ApprovalAction
	if err := r.db.SelectContext(ctx, &actions, query, requestID); err != nil {
		return nil, fmt.Errorf("list approval actions: %w", err)
	}
	return actions, nil
}
