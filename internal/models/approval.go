package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ApprovalEntityType scopes a workflow to one kind of entity.
type ApprovalEntityType string

const (
	ApprovalEntityBudget    ApprovalEntityType = "BUDGET"
	ApprovalEntityProgram   ApprovalEntityType = "PROGRAM"
	ApprovalEntityExecution ApprovalEntityType = "EXECUTION"
	ApprovalEntityLineItem  ApprovalEntityType = "LINE_ITEM"
)

// ApprovalWorkflow is a named, ordered sequence of sign-off steps for one
// entity type. A workflow is never edited once referenced by a request;
// changes deactivate the old definition and create a new one.
type ApprovalWorkflow struct {
	ID         string             `db:"id" json:"id"`
	Name       string             `db:"name" json:"name"`
	EntityType ApprovalEntityType `db:"entity_type" json:"entityType"`
	Active     bool               `db:"active" json:"active"`
	CreatedBy  string             `db:"created_by" json:"createdBy"`
	CreatedAt  time.Time          `db:"created_at" json:"createdAt"`
	UpdatedAt  time.Time          `db:"updated_at" json:"updatedAt"`

	Steps []ApprovalStep `db:"-" json:"steps,omitempty"`
}

// ApprovalStep is one required sign-off inside a workflow. A step is
// satisfied by exactly one decision from any approver authorized for it.
type ApprovalStep struct {
	ID                   string           `db:"id" json:"id"`
	WorkflowID           string           `db:"workflow_id" json:"workflowId"`
	StepOrder            int              `db:"step_order" json:"stepOrder"`
	RequiredRole         UserRole         `db:"required_role" json:"requiredRole"`
	ApproverID           *string          `db:"approver_id" json:"approverId,omitempty"`
	AutoApproveThreshold *decimal.Decimal `db:"auto_approve_threshold" json:"autoApproveThreshold,omitempty"`
}

// Authorizes reports whether the given approver may decide this step.
func (s ApprovalStep) Authorizes(approverID string, role UserRole) bool {
	if s.ApproverID != nil && *s.ApproverID != "" {
		return *s.ApproverID == approverID
	}
	return s.RequiredRole == role
}

// RequestStatus captures approval request states. PENDING is a true
// pre-review state; decisions are accepted only while IN_REVIEW.
type RequestStatus string

const (
	RequestStatusPending   RequestStatus = "PENDING"
	RequestStatusInReview  RequestStatus = "IN_REVIEW"
	RequestStatusApproved  RequestStatus = "APPROVED"
	RequestStatusRejected  RequestStatus = "REJECTED"
	RequestStatusCancelled RequestStatus = "CANCELLED"
)

// Terminal reports whether the status accepts no further actions.
func (s RequestStatus) Terminal() bool {
	switch s {
	case RequestStatusApproved, RequestStatusRejected, RequestStatusCancelled:
		return true
	}
	return false
}

// Decision enumerates valid approval decisions.
type Decision string

const (
	DecisionApproved Decision = "APPROVED"
	DecisionRejected Decision = "REJECTED"
)

// ApprovalRequest links one workflow instance to one entity instance.
// Exactly one non-terminal request may exist per entity at a time.
type ApprovalRequest struct {
	ID          string             `db:"id" json:"id"`
	WorkflowID  string             `db:"workflow_id" json:"workflowId"`
	EntityType  ApprovalEntityType `db:"entity_type" json:"entityType"`
	EntityID    string             `db:"entity_id" json:"entityId"`
	Amount      decimal.Decimal    `db:"amount" json:"amount"`
	CurrentStep int                `db:"current_step" json:"currentStep"`
	StepCount   int                `db:"step_count" json:"stepCount"`
	Status      RequestStatus      `db:"status" json:"status"`
	RequestedBy string             `db:"requested_by" json:"requestedBy"`
	CreatedAt   time.Time          `db:"created_at" json:"createdAt"`
	CompletedAt *time.Time         `db:"completed_at" json:"completedAt,omitempty"`

	Actions []ApprovalAction `db:"-" json:"actions,omitempty"`
}

// ApprovalAction is one immutable decision record, append-only by contract.
type ApprovalAction struct {
	ID         string    `db:"id" json:"id"`
	RequestID  string    `db:"request_id" json:"requestId"`
	Step       int       `db:"step" json:"step"`
	ApproverID string    `db:"approver_id" json:"approverId"`
	Decision   Decision  `db:"decision" json:"decision"`
	Comments   string    `db:"comments" json:"comments,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`
}

// ApprovalRequestFilter constrains request listing queries.
type ApprovalRequestFilter struct {
	EntityType  ApprovalEntityType
	EntityID    string
	Status      []RequestStatus
	RequestedBy string
	Limit       int
	Offset      int
}
