package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/bfm-api/internal/dto"
	"github.com/noah-isme/bfm-api/internal/models"
	"github.com/noah-isme/bfm-api/internal/repository"
	appErrors "github.com/noah-isme/bfm-api/pkg/errors"
)

type approvalWorkflowStore interface {
	Create(ctx context.Context, workflow *models.ApprovalWorkflow) error
	GetByID(ctx context.Context, id string) (*models.ApprovalWorkflow, error)
	FindActiveByEntityType(ctx context.Context, entityType models.ApprovalEntityType) (*models.ApprovalWorkflow, error)
	List(ctx context.Context, entityType models.ApprovalEntityType) ([]models.ApprovalWorkflow, error)
	Deactivate(ctx context.Context, id string) error
}

type approvalRequestStore interface {
	Create(ctx context.Context, request *models.ApprovalRequest) error
	GetByID(ctx context.Context, id string) (*models.ApprovalRequest, error)
	FindActiveByEntity(ctx context.Context, entityType models.ApprovalEntityType, entityID string) (*models.ApprovalRequest, error)
	List(ctx context.Context, filter models.ApprovalRequestFilter) ([]models.ApprovalRequest, error)
	ListPendingForApprover(ctx context.Context, approverID string, role models.UserRole) ([]models.ApprovalRequest, error)
	UpdateProgress(ctx context.Context, params repository.UpdateProgressParams) error
	AppendAction(ctx context.Context, action *models.ApprovalAction) error
	ListActions(ctx context.Context, requestID string) ([]models.ApprovalAction, error)
}

// Notifier delivers fire-and-forget notifications. Errors are logged by the
// engine and never surfaced to callers.
type Notifier interface {
	Notify(ctx context.Context, userID string, kind models.NotificationType, title, message, entityRef string, priority models.NotificationPriority)
}

// ApprovalFinalizer runs the terminal side effect when a request reaches
// APPROVED or a terminal rejection/cancellation, keyed by entity type. For
// budgets this marks the budget approved and allocates appropriated funds.
type ApprovalFinalizer interface {
	Finalize(ctx context.Context, request *models.ApprovalRequest, outcome models.RequestStatus) error
}

// ApprovalFinalizerFunc allows using plain functions as finalizers.
type ApprovalFinalizerFunc func(ctx context.Context, request *models.ApprovalRequest, outcome models.RequestStatus) error

// Finalize implements ApprovalFinalizer.
func (f ApprovalFinalizerFunc) Finalize(ctx context.Context, request *models.ApprovalRequest, outcome models.RequestStatus) error {
	return f(ctx, request, outcome)
}

// ApprovalService drives entities through ordered, role-gated approval
// workflows. All transitions are caller-initiated and run to completion; the
// terminal-state guard is enforced by the store's compare-and-swap update.
type ApprovalService struct {
	workflows  approvalWorkflowStore
	requests   approvalRequestStore
	audit      auditLogger
	notifier   Notifier
	finalizers map[models.ApprovalEntityType]ApprovalFinalizer
	logger     *zap.Logger
	now        func() time.Time
}

// ApprovalServiceOption configures the service.
type ApprovalServiceOption func(*ApprovalService)

// WithFinalizers sets the finalizer map keyed by entity type.
func WithFinalizers(finalizers map[models.ApprovalEntityType]ApprovalFinalizer) ApprovalServiceOption {
	return func(s *ApprovalService) {
		for k, v := range finalizers {
			s.finalizers[k] = v
		}
	}
}

// WithNotifier sets the notification sink.
func WithNotifier(notifier Notifier) ApprovalServiceOption {
	return func(s *ApprovalService) {
		if notifier != nil {
			s.notifier = notifier
		}
	}
}

// NewApprovalService constructs the workflow engine.
func NewApprovalService(workflows approvalWorkflowStore, requests approvalRequestStore, audit auditLogger, logger *zap.Logger, opts ...ApprovalServiceOption) *ApprovalService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &ApprovalService{
		workflows:  workflows,
		requests:   requests,
		audit:      audit,
		finalizers: make(map[models.ApprovalEntityType]ApprovalFinalizer),
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// RegisterFinalizer binds a terminal side effect to an entity type.
func (s *ApprovalService) RegisterFinalizer(entityType models.ApprovalEntityType, finalizer ApprovalFinalizer) {
	if finalizer != nil {
		s.finalizers[entityType] = finalizer
	}
}

// CreateWorkflow registers an ordered approval workflow for an entity type.
// An existing active workflow for the same entity type is deactivated so
// in-flight requests keep their pinned definition while future requests bind
// to the new one.
func (s *ApprovalService) CreateWorkflow(ctx context.Context, req dto.CreateWorkflowRequest, actorID string) (*models.ApprovalWorkflow, error) {
	if req.Name == "" || req.EntityType == "" || len(req.Steps) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "name, entityType, and at least one step are required")
	}
	steps := make([]models.ApprovalStep, len(req.Steps))
	seen := make(map[int]bool, len(req.Steps))
	for i, input := range req.Steps {
		if input.RequiredRole == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "every step requires a role")
		}
		if seen[input.StepOrder] {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("duplicate step order %d", input.StepOrder))
		}
		seen[input.StepOrder] = true
		steps[i] = models.ApprovalStep{
			StepOrder:            input.StepOrder,
			RequiredRole:         input.RequiredRole,
			AutoApproveThreshold: input.AutoApproveThreshold,
		}
		if input.ApproverID != "" {
			approverID := input.ApproverID
			steps[i].ApproverID = &approverID
		}
	}

	if existing, err := s.workflows.FindActiveByEntityType(ctx, req.EntityType); err == nil {
		if err := s.workflows.Deactivate(ctx, existing.ID); err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to retire previous workflow")
		}
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing workflow")
	}

	workflow := &models.ApprovalWorkflow{
		Name:       req.Name,
		EntityType: req.EntityType,
		CreatedBy:  actorID,
		Steps:      steps,
	}
	if err := s.workflows.Create(ctx, workflow); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create workflow")
	}
	return workflow, nil
}

// ListWorkflows returns workflow definitions, optionally for one entity type.
func (s *ApprovalService) ListWorkflows(ctx context.Context, entityType models.ApprovalEntityType) ([]models.ApprovalWorkflow, error) {
	workflows, err := s.workflows.List(ctx, entityType)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list workflows")
	}
	return workflows, nil
}

// CreateRequest opens an approval request for one entity against the active
// workflow of its type. Exactly one non-terminal request may exist per
// entity; steps whose auto-approve threshold covers the amount are satisfied
// immediately at creation.
func (s *ApprovalService) CreateRequest(ctx context.Context, req dto.CreateApprovalRequest, requesterID string) (*models.ApprovalRequest, error) {
	if req.EntityType == "" || req.EntityID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "entityType and entityId are required")
	}
	workflow, err := s.workflows.FindActiveByEntityType(ctx, req.EntityType)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNoWorkflowDefined
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to find workflow")
	}
	if len(workflow.Steps) == 0 {
		return nil, appErrors.Clone(appErrors.ErrNoWorkflowDefined, "workflow has no steps")
	}
	if _, err := s.requests.FindActiveByEntity(ctx, req.EntityType, req.EntityID); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "an approval request is already in flight for this entity")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check active requests")
	}

	request := &models.ApprovalRequest{
		WorkflowID:  workflow.ID,
		EntityType:  req.EntityType,
		EntityID:    req.EntityID,
		Amount:      req.Amount,
		CurrentStep: workflow.Steps[0].StepOrder,
		StepCount:   len(workflow.Steps),
		Status:      models.RequestStatusPending,
		RequestedBy: requesterID,
	}
	if err := s.requests.Create(ctx, request); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create approval request")
	}
	s.emitAudit(ctx, requesterID, models.AuditActionApprovalCreate, request, nil)
	s.notifyStepApprover(ctx, workflow.Steps[0], request)

	// Leading steps covered by an auto-approve threshold are satisfied
	// without waiting for a human decision.
	for _, step := range workflow.Steps {
		if step.StepOrder != request.CurrentStep {
			continue
		}
		if step.AutoApproveThreshold == nil || request.Amount.GreaterThan(*step.AutoApproveThreshold) {
			break
		}
		updated, err := s.applyDecision(ctx, request, workflow, step, models.DecisionApproved, "system", "auto-approved under threshold")
		if err != nil {
			s.logger.Warn("auto-approve step failed", zap.String("request_id", request.ID), zap.Error(err))
			break
		}
		request = updated
		if request.Status.Terminal() {
			break
		}
	}
	return request, nil
}

// Get returns an approval request together with its action trail.
func (s *ApprovalService) Get(ctx context.Context, id string) (*models.ApprovalRequest, error) {
	request, err := s.requests.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load approval request")
	}
	actions, err := s.requests.ListActions(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load approval actions")
	}
	request.Actions = actions
	return request, nil
}

// List returns approval requests matching the query.
func (s *ApprovalService) List(ctx context.Context, query dto.ApprovalQuery) ([]models.ApprovalRequest, error) {
	requests, err := s.requests.List(ctx, models.ApprovalRequestFilter{
		EntityType: query.EntityType,
		EntityID:   query.EntityID,
		Status:     query.Status,
		Limit:      query.Limit,
		Offset:     query.Offset,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list approval requests")
	}
	return requests, nil
}

// GetPendingApprovals returns non-terminal requests awaiting a decision from
// the given approver.
func (s *ApprovalService) GetPendingApprovals(ctx context.Context, approverID string, role models.UserRole) ([]models.ApprovalRequest, error) {
	requests, err := s.requests.ListPendingForApprover(ctx, approverID, role)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list pending approvals")
	}
	return requests, nil
}

// StartReview moves a PENDING request into IN_REVIEW. Only the approver
// authorized for the first step may start the review.
func (s *ApprovalService) StartReview(ctx context.Context, requestID, actorID string, role models.UserRole) (*models.ApprovalRequest, error) {
	request, err := s.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if request.Status.Terminal() {
		return nil, appErrors.ErrAlreadyFinalized
	}
	if request.Status != models.RequestStatusPending {
		return nil, appErrors.Clone(appErrors.ErrConflict, "request is already in review")
	}
	workflow, err := s.workflows.GetByID(ctx, request.WorkflowID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load workflow")
	}
	step, err := stepAt(workflow, request.CurrentStep)
	if err != nil {
		return nil, err
	}
	if !step.Authorizes(actorID, role) {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "approver is not bound to the current step")
	}
	if err := s.requests.UpdateProgress(ctx, repository.UpdateProgressParams{
		ID:          request.ID,
		Status:      models.RequestStatusInReview,
		CurrentStep: request.CurrentStep,
	}); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrAlreadyFinalized
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to start review")
	}
	request.Status = models.RequestStatusInReview
	return request, nil
}

// ProcessApproval records one decision for the current step and advances the
// state machine. The action row is appended before the request mutates, so
// the audit trail always covers the decision even if the transition loses a
// race to a concurrent finalization.
func (s *ApprovalService) ProcessApproval(ctx context.Context, requestID string, decision models.Decision, approverID string, role models.UserRole, comments string) (*models.ApprovalRequest, error) {
	if decision != models.DecisionApproved && decision != models.DecisionRejected {
		return nil, appErrors.ErrInvalidAction
	}
	request, err := s.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if request.Status.Terminal() {
		return nil, appErrors.ErrAlreadyFinalized
	}
	if request.Status != models.RequestStatusInReview {
		return nil, appErrors.Clone(appErrors.ErrConflict, "request has not entered review")
	}
	workflow, err := s.workflows.GetByID(ctx, request.WorkflowID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load workflow")
	}
	step, err := stepAt(workflow, request.CurrentStep)
	if err != nil {
		return nil, err
	}
	if !step.Authorizes(approverID, role) {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "approver is not bound to the current step")
	}
	return s.applyDecision(ctx, request, workflow, step, decision, approverID, comments)
}

// Cancel terminates a non-terminal request on behalf of the requester.
func (s *ApprovalService) Cancel(ctx context.Context, requestID, actorID string) (*models.ApprovalRequest, error) {
	request, err := s.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if request.Status.Terminal() {
		return nil, appErrors.ErrAlreadyFinalized
	}
	completedAt := s.now()
	if err := s.requests.UpdateProgress(ctx, repository.UpdateProgressParams{
		ID:          request.ID,
		Status:      models.RequestStatusCancelled,
		CurrentStep: request.CurrentStep,
		CompletedAt: &completedAt,
	}); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrAlreadyFinalized
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel request")
	}
	request.Status = models.RequestStatusCancelled
	request.CompletedAt = &completedAt

	s.emitAudit(ctx, actorID, models.AuditActionApprovalCancel, request, nil)
	s.runFinalizer(ctx, request, models.RequestStatusCancelled)
	if s.notifier != nil {
		s.notifier.Notify(ctx, request.RequestedBy, models.NotificationApprovalCancelled,
			"Approval cancelled",
			fmt.Sprintf("Approval request for %s %s was cancelled", request.EntityType, request.EntityID),
			request.EntityID, models.NotificationPriorityNormal)
	}
	return request, nil
}

// applyDecision appends the action record, then advances, finalizes, or
// rejects the request. Decisions are evaluated strictly in step order.
func (s *ApprovalService) applyDecision(ctx context.Context, request *models.ApprovalRequest, workflow *models.ApprovalWorkflow, step models.ApprovalStep, decision models.Decision, approverID, comments string) (*models.ApprovalRequest, error) {
	action := &models.ApprovalAction{
		RequestID:  request.ID,
		Step:       step.StepOrder,
		ApproverID: approverID,
		Decision:   decision,
		Comments:   comments,
	}
	if err := s.requests.AppendAction(ctx, action); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record approval action")
	}

	params := repository.UpdateProgressParams{ID: request.ID, CurrentStep: request.CurrentStep}
	var outcome models.RequestStatus

	switch decision {
	case models.DecisionRejected:
		completedAt := s.now()
		params.Status = models.RequestStatusRejected
		params.CompletedAt = &completedAt
		outcome = models.RequestStatusRejected
	case models.DecisionApproved:
		next, ok := nextStep(workflow, step.StepOrder)
		if !ok {
			completedAt := s.now()
			params.Status = models.RequestStatusApproved
			params.CompletedAt = &completedAt
			outcome = models.RequestStatusApproved
		} else {
			params.Status = models.RequestStatusInReview
			params.CurrentStep = next.StepOrder
			outcome = models.RequestStatusInReview
		}
	}

	if err := s.requests.UpdateProgress(ctx, params); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrAlreadyFinalized
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update approval request")
	}

	request.Status = params.Status
	request.CurrentStep = params.CurrentStep
	request.CompletedAt = params.CompletedAt
	s.emitAudit(ctx, approverID, models.AuditActionApprovalDecision, request, action)

	switch outcome {
	case models.RequestStatusApproved:
		s.runFinalizer(ctx, request, models.RequestStatusApproved)
		if s.notifier != nil {
			s.notifier.Notify(ctx, request.RequestedBy, models.NotificationApprovalApproved,
				"Approval complete",
				fmt.Sprintf("Approval request for %s %s was fully approved", request.EntityType, request.EntityID),
				request.EntityID, models.NotificationPriorityHigh)
		}
	case models.RequestStatusRejected:
		s.runFinalizer(ctx, request, models.RequestStatusRejected)
		if s.notifier != nil {
			s.notifier.Notify(ctx, request.RequestedBy, models.NotificationApprovalRejected,
				"Approval rejected",
				fmt.Sprintf("Approval request for %s %s was rejected at step %d", request.EntityType, request.EntityID, step.StepOrder),
				request.EntityID, models.NotificationPriorityHigh)
		}
	case models.RequestStatusInReview:
		if next, ok := nextStepAt(workflow, request.CurrentStep); ok {
			s.notifyStepApprover(ctx, next, request)
		}
	}
	return request, nil
}

// runFinalizer executes the terminal side effect for the request's entity
// type. A finalizer failure is surfaced in logs and audit, never to the
// approver: the workflow transition has already committed.
func (s *ApprovalService) runFinalizer(ctx context.Context, request *models.ApprovalRequest, outcome models.RequestStatus) {
	finalizer, ok := s.finalizers[request.EntityType]
	if !ok {
		return
	}
	if err := finalizer.Finalize(ctx, request, outcome); err != nil {
		s.logger.Error("approval finalizer failed",
			zap.String("request_id", request.ID),
			zap.String("entity_type", string(request.EntityType)),
			zap.String("entity_id", request.EntityID),
			zap.Error(err),
		)
	}
}

func (s *ApprovalService) notifyStepApprover(ctx context.Context, step models.ApprovalStep, request *models.ApprovalRequest) {
	if s.notifier == nil {
		return
	}
	recipient := ""
	if step.ApproverID != nil {
		recipient = *step.ApproverID
	}
	if recipient == "" {
		// Role-bound steps have no single recipient; the pending-approvals
		// feed is the delivery channel for those.
		return
	}
	s.notifier.Notify(ctx, recipient, models.NotificationApprovalRequested,
		"Approval awaiting your decision",
		fmt.Sprintf("%s %s requires your sign-off at step %d", request.EntityType, request.EntityID, step.StepOrder),
		request.EntityID, models.NotificationPriorityNormal)
}

func (s *ApprovalService) emitAudit(ctx context.Context, actorID, auditAction string, request *models.ApprovalRequest, action *models.ApprovalAction) {
	if s.audit == nil {
		return
	}
	payload := map[string]interface{}{
		"status":      request.Status,
		"currentStep": request.CurrentStep,
	}
	if action != nil {
		payload["decision"] = action.Decision
		payload["step"] = action.Step
	}
	raw, _ := json.Marshal(payload)
	log := &models.AuditLog{
		Action:     auditAction,
		Resource:   "approval_request",
		ResourceID: &request.ID,
		NewValues:  raw,
		Outcome:    string(request.Status),
		IPAddress:  "system",
		UserAgent:  "approval-service",
	}
	if actorID != "" {
		log.UserID = &actorID
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to persist audit log", zap.Error(err))
	}
}

func stepAt(workflow *models.ApprovalWorkflow, order int) (models.ApprovalStep, error) {
	for _, step := range workflow.Steps {
		if step.StepOrder == order {
			return step, nil
		}
	}
	return models.ApprovalStep{}, appErrors.Clone(appErrors.ErrInternal, fmt.Sprintf("workflow %s has no step %d", workflow.ID, order))
}

func nextStep(workflow *models.ApprovalWorkflow, currentOrder int) (models.ApprovalStep, bool) {
	best := models.ApprovalStep{}
	found := false
	for _, step := range workflow.Steps {
		if step.StepOrder <= currentOrder {
			continue
		}
		if !found || step.StepOrder < best.StepOrder {
			best = step
			found = true
		}
	}
	return best, found
}

func nextStepAt(workflow *models.ApprovalWorkflow, order int) (models.ApprovalStep, bool) {
	for _, step := range workflow.Steps {
		if step.StepOrder == order {
			return step, true
		}
	}
	return models.ApprovalStep{}, false
}
