package dto

import (
	"github.com/shopspring/decimal"

	"github.com/noah-isme/bfm-api/internal/models"
)

// WorkflowStepInput describes one sign-off step of a workflow definition.
type WorkflowStepInput struct {
	StepOrder            int              `json:"stepOrder" validate:"min=0"`
	RequiredRole         models.UserRole  `json:"requiredRole" validate:"required"`
	ApproverID           string           `json:"approverId"`
	AutoApproveThreshold *decimal.Decimal `json:"autoApproveThreshold,omitempty"`
}

// CreateWorkflowRequest registers an ordered approval workflow for an entity type.
type CreateWorkflowRequest struct {
	Name       string                    `json:"name" validate:"required"`
	EntityType models.ApprovalEntityType `json:"entityType" validate:"required"`
	Steps      []WorkflowStepInput       `json:"steps" validate:"required,min=1"`
}

// CreateApprovalRequest opens an approval request for one entity.
type CreateApprovalRequest struct {
	EntityType models.ApprovalEntityType `json:"entityType" validate:"required"`
	EntityID   string                    `json:"entityId" validate:"required"`
	Amount     decimal.Decimal           `json:"amount"`
}

// DecisionRequest carries one approver decision for the current step.
type DecisionRequest struct {
	Decision models.Decision `json:"decision" validate:"required"`
	Comments string          `json:"comments"`
}

// ApprovalQuery mirrors supported request listing filters.
type ApprovalQuery struct {
	EntityType models.ApprovalEntityType
	EntityID   string
	Status     []models.RequestStatus
	Limit      int
	Offset     int
}
