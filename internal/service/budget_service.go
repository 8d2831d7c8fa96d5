package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/noah-isme/bfm-api/internal/dto"
	"github.com/noah-isme/bfm-api/internal/models"
	"github.com/noah-isme/bfm-api/internal/repository"
	appErrors "github.com/noah-isme/bfm-api/pkg/errors"
)

const budgetSummaryTTL = 5 * time.Minute

type budgetStore interface {
	Create(ctx context.Context, budget *models.Budget) error
	GetByID(ctx context.Context, id string) (*models.Budget, error)
	List(ctx context.Context, filter models.BudgetFilter) ([]models.Budget, error)
	UpdateVersioned(ctx context.Context, budget *models.Budget, changedBy string) error
	UpdateStatus(ctx context.Context, id string, status models.BudgetStatus, approvalState models.ApprovalState) error
	ListVersions(ctx context.Context, budgetID string) ([]models.BudgetVersion, error)
	GetVersion(ctx context.Context, budgetID string, version int) (*models.BudgetVersion, error)
	CreateLineItem(ctx context.Context, item *models.LineItem) error
	ListLineItems(ctx context.Context, budgetID string) ([]models.LineItem, error)
}

type budgetSummarizer interface {
	SummarizeByBudget(ctx context.Context, budgetID string) ([]repository.StatusAggregate, error)
}

type summaryCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// approvalOpener opens an approval request when a budget is submitted.
type approvalOpener interface {
	CreateRequest(ctx context.Context, req dto.CreateApprovalRequest, requesterID string) (*models.ApprovalRequest, error)
}

// fundLedger is the slice of the appropriation ledger the budget lifecycle
// needs: pre-flight validation and code-addressed allocation.
type fundLedger interface {
	Validate(ctx context.Context, code string, fiscalYear int) (*models.ValidationResult, error)
	AllocateByCode(ctx context.Context, code string, fiscalYear int, amount decimal.Decimal, actorID string) (*models.Appropriation, error)
	DeallocateByCode(ctx context.Context, code string, fiscalYear int, amount decimal.Decimal, actorID string) (*models.Appropriation, error)
}

// BudgetService owns the budget lifecycle: draft, versioned edits, submission
// into the approval workflow, and the transition to APPROVED/ACTIVE that
// commits appropriated funds.
type BudgetService struct {
	repo         budgetStore
	obligations  budgetSummarizer
	expenditures budgetSummarizer
	approvals    approvalOpener
	ledger       fundLedger
	cache        summaryCache
	audit        auditLogger
	validator    *validator.Validate
	logger       *zap.Logger
	now          func() time.Time
}

// NewBudgetService constructs the service. approvals, ledger, and cache may
// be nil in reduced configurations; the affected operations degrade or fail
// explicitly.
func NewBudgetService(repo budgetStore, obligations, expenditures budgetSummarizer, approvals approvalOpener, ledger fundLedger, cache summaryCache, audit auditLogger, logger *zap.Logger) *BudgetService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BudgetService{
		repo:         repo,
		obligations:  obligations,
		expenditures: expenditures,
		approvals:    approvals,
		ledger:       ledger,
		cache:        cache,
		audit:        audit,
		validator:    validator.New(),
		logger:       logger,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Create opens a new draft budget at version 1. The appropriation reference
// is validated up front so drafts never point at unknown or expired funds.
func (s *BudgetService) Create(ctx context.Context, req dto.CreateBudgetRequest, ownerID string) (*models.Budget, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid budget payload")
	}
	if !req.Amount.IsPositive() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "amount must be positive")
	}
	if s.ledger != nil {
		result, err := s.ledger.Validate(ctx, req.AppropriationCode, req.FiscalYear)
		if err != nil {
			return nil, err
		}
		if !result.Valid {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("appropriation %s: %s", req.AppropriationCode, result.Reason))
		}
	}

	budget := &models.Budget{
		Name:              req.Name,
		FiscalYear:        req.FiscalYear,
		AppropriationCode: req.AppropriationCode,
		Amount:            req.Amount,
		Status:            models.BudgetStatusDraft,
		ApprovalState:     models.ApprovalStatePending,
		Description:       req.Description,
		OwnerID:           ownerID,
	}
	if err := s.repo.Create(ctx, budget); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create budget")
	}
	s.emitAudit(ctx, ownerID, models.AuditActionBudgetCreate, budget)
	return budget, nil
}

// Get fetches one budget.
func (s *BudgetService) Get(ctx context.Context, id string) (*models.Budget, error) {
	budget, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load budget")
	}
	return budget, nil
}

// List returns budgets matching the query.
func (s *BudgetService) List(ctx context.Context, query dto.BudgetQuery) ([]models.Budget, error) {
	budgets, err := s.repo.List(ctx, models.BudgetFilter{
		FiscalYear: query.FiscalYear,
		Status:     query.Status,
		OwnerID:    query.OwnerID,
		Limit:      query.Limit,
		Offset:     query.Offset,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list budgets")
	}
	return budgets, nil
}

// Update applies a partial edit to a mutable budget. Every accepted update
// bumps the version counter and appends a snapshot; a concurrent writer loses
// with a conflict rather than silently overwriting.
func (s *BudgetService) Update(ctx context.Context, id string, req dto.UpdateBudgetRequest, actorID string) (*models.Budget, error) {
	budget, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !budget.Mutable() {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("budget in status %s cannot be edited", budget.Status))
	}

	if req.Name != nil {
		budget.Name = *req.Name
	}
	if req.Amount != nil {
		if !req.Amount.IsPositive() {
			return nil, appErrors.Clone(appErrors.ErrValidation, "amount must be positive")
		}
		budget.Amount = *req.Amount
	}
	if req.Description != nil {
		budget.Description = *req.Description
	}
	// A rejected budget re-enters the draft pool on its next edit.
	if budget.Status == models.BudgetStatusRejected {
		budget.Status = models.BudgetStatusDraft
		budget.ApprovalState = models.ApprovalStatePending
	}

	if err := s.repo.UpdateVersioned(ctx, budget, actorID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "budget was modified concurrently, reload and retry")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update budget")
	}
	s.invalidateSummary(ctx, budget.ID)
	s.emitAudit(ctx, actorID, models.AuditActionBudgetUpdate, budget)
	return budget, nil
}

// Submit moves a draft into the approval workflow. The appropriation is
// re-validated at submission time; an approval request for the BUDGET entity
// type is opened against the active workflow.
func (s *BudgetService) Submit(ctx context.Context, id, actorID string) (*models.Budget, *models.ApprovalRequest, error) {
	budget, err := s.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if budget.Status != models.BudgetStatusDraft {
		return nil, nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("budget in status %s cannot be submitted", budget.Status))
	}
	if s.ledger != nil {
		result, err := s.ledger.Validate(ctx, budget.AppropriationCode, budget.FiscalYear)
		if err != nil {
			return nil, nil, err
		}
		if !result.Valid {
			return nil, nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("appropriation %s: %s", budget.AppropriationCode, result.Reason))
		}
	}
	if s.approvals == nil {
		return nil, nil, appErrors.ErrNoWorkflowDefined
	}

	request, err := s.approvals.CreateRequest(ctx, dto.CreateApprovalRequest{
		EntityType: models.ApprovalEntityBudget,
		EntityID:   budget.ID,
		Amount:     budget.Amount,
	}, actorID)
	if err != nil {
		return nil, nil, err
	}

	// The request may already be terminal when every step auto-approved.
	if !request.Status.Terminal() {
		if err := s.repo.UpdateStatus(ctx, budget.ID, models.BudgetStatusSubmitted, models.ApprovalStatePending); err != nil {
			return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark budget submitted")
		}
		budget.Status = models.BudgetStatusSubmitted
		budget.ApprovalState = models.ApprovalStatePending
	} else {
		refreshed, err := s.Get(ctx, budget.ID)
		if err == nil {
			budget = refreshed
		}
	}
	s.emitAudit(ctx, actorID, models.AuditActionBudgetSubmit, budget)
	return budget, request, nil
}

// FinalizeApproval implements the BUDGET entity finalizer of the approval
// engine. On full approval the budget is marked APPROVED and the planned
// amount is committed against its appropriation; a rejection returns the
// budget to its owner for rework.
func (s *BudgetService) FinalizeApproval(ctx context.Context, request *models.ApprovalRequest, outcome models.RequestStatus) error {
	budget, err := s.Get(ctx, request.EntityID)
	if err != nil {
		return err
	}
	switch outcome {
	case models.RequestStatusApproved:
		if s.ledger != nil {
			if _, err := s.ledger.AllocateByCode(ctx, budget.AppropriationCode, budget.FiscalYear, budget.Amount, request.RequestedBy); err != nil {
				// The approval stands; funding failed. The budget stays
				// SUBMITTED so the officer can retry allocation explicitly.
				return fmt.Errorf("allocate funds for budget %s: %w", budget.ID, err)
			}
		}
		if err := s.repo.UpdateStatus(ctx, budget.ID, models.BudgetStatusApproved, models.ApprovalStateApproved); err != nil {
			return fmt.Errorf("mark budget approved: %w", err)
		}
	case models.RequestStatusRejected:
		if err := s.repo.UpdateStatus(ctx, budget.ID, models.BudgetStatusRejected, models.ApprovalStateRejected); err != nil {
			return fmt.Errorf("mark budget rejected: %w", err)
		}
	case models.RequestStatusCancelled:
		if err := s.repo.UpdateStatus(ctx, budget.ID, models.BudgetStatusDraft, models.ApprovalStatePending); err != nil {
			return fmt.Errorf("return budget to draft: %w", err)
		}
	default:
		return nil
	}
	s.invalidateSummary(ctx, budget.ID)
	return nil
}

// Activate transitions an approved budget into execution.
func (s *BudgetService) Activate(ctx context.Context, id, actorID string) (*models.Budget, error) {
	budget, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if budget.Status != models.BudgetStatusApproved {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("budget in status %s cannot be activated", budget.Status))
	}
	if err := s.repo.UpdateStatus(ctx, id, models.BudgetStatusActive, budget.ApprovalState); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to activate budget")
	}
	budget.Status = models.BudgetStatusActive
	s.emitAudit(ctx, actorID, models.AuditActionBudgetUpdate, budget)
	return budget, nil
}

// Close ends execution of an active budget and releases the unspent balance
// back to the appropriation.
func (s *BudgetService) Close(ctx context.Context, id, actorID string) (*models.Budget, error) {
	budget, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if budget.Status != models.BudgetStatusActive {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("budget in status %s cannot be closed", budget.Status))
	}

	if s.ledger != nil {
		summary, err := s.Summary(ctx, id)
		if err != nil {
			return nil, err
		}
		unspent := budget.Amount.Sub(summary.ExpendedAmount)
		if unspent.IsPositive() {
			if _, err := s.ledger.DeallocateByCode(ctx, budget.AppropriationCode, budget.FiscalYear, unspent, actorID); err != nil {
				return nil, err
			}
		}
	}

	if err := s.repo.UpdateStatus(ctx, id, models.BudgetStatusClosed, budget.ApprovalState); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to close budget")
	}
	budget.Status = models.BudgetStatusClosed
	s.invalidateSummary(ctx, id)
	s.emitAudit(ctx, actorID, models.AuditActionBudgetUpdate, budget)
	return budget, nil
}

// ListVersions returns the full snapshot history of a budget.
func (s *BudgetService) ListVersions(ctx context.Context, budgetID string) ([]models.BudgetVersion, error) {
	if _, err := s.Get(ctx, budgetID); err != nil {
		return nil, err
	}
	versions, err := s.repo.ListVersions(ctx, budgetID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list budget versions")
	}
	return versions, nil
}

// Rollback restores the field values of an earlier version as a NEW version.
// History is never rewritten: rolling back version 3 to version 1 produces
// version 4 carrying version 1's values.
func (s *BudgetService) Rollback(ctx context.Context, id string, req dto.RollbackBudgetRequest, actorID string) (*models.Budget, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid rollback payload")
	}
	budget, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !budget.Mutable() {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("budget in status %s cannot be rolled back", budget.Status))
	}
	if req.ToVersion >= budget.Version {
		return nil, appErrors.Clone(appErrors.ErrValidation, "target version must precede the current version")
	}

	target, err := s.repo.GetVersion(ctx, id, req.ToVersion)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("version %d not found", req.ToVersion))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load budget version")
	}

	var restored models.Budget
	if err := json.Unmarshal(target.Snapshot, &restored); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to decode budget snapshot")
	}
	budget.Name = restored.Name
	budget.Amount = restored.Amount
	budget.Description = restored.Description

	if err := s.repo.UpdateVersioned(ctx, budget, actorID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "budget was modified concurrently, reload and retry")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to roll back budget")
	}
	s.invalidateSummary(ctx, id)
	s.emitAudit(ctx, actorID, models.AuditActionBudgetRollback, budget)
	return budget, nil
}

// AddLineItem appends a planned spending position to a mutable budget.
func (s *BudgetService) AddLineItem(ctx context.Context, budgetID string, req dto.CreateLineItemRequest) (*models.LineItem, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid line item payload")
	}
	budget, err := s.Get(ctx, budgetID)
	if err != nil {
		return nil, err
	}
	if !budget.Mutable() {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("budget in status %s cannot accept line items", budget.Status))
	}
	item := &models.LineItem{
		BudgetID:       budgetID,
		Name:           req.Name,
		ProgramElement: req.ProgramElement,
		PlannedAmount:  req.PlannedAmount,
		ActualAmount:   decimal.Zero,
	}
	if err := s.repo.CreateLineItem(ctx, item); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create line item")
	}
	s.invalidateSummary(ctx, budgetID)
	return item, nil
}

// ListLineItems returns the line items of a budget.
func (s *BudgetService) ListLineItems(ctx context.Context, budgetID string) ([]models.LineItem, error) {
	if _, err := s.Get(ctx, budgetID); err != nil {
		return nil, err
	}
	items, err := s.repo.ListLineItems(ctx, budgetID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list line items")
	}
	return items, nil
}

// Summary recomputes execution totals from authoritative obligation and
// expenditure rows. Results are cached briefly; every mutation path
// invalidates the cache key.
func (s *BudgetService) Summary(ctx context.Context, budgetID string) (*models.BudgetSummary, error) {
	cacheKey := summaryCacheKey(budgetID)
	if s.cache != nil {
		var cached models.BudgetSummary
		if err := s.cache.Get(ctx, cacheKey, &cached); err == nil {
			return &cached, nil
		} else if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("budget summary cache read failed", zap.String("budget_id", budgetID), zap.Error(err))
		}
	}

	budget, err := s.Get(ctx, budgetID)
	if err != nil {
		return nil, err
	}
	summary := &models.BudgetSummary{
		BudgetID:      budget.ID,
		FiscalYear:    budget.FiscalYear,
		PlannedAmount: budget.Amount,
		GeneratedAt:   s.now(),
	}

	obligated, err := s.obligations.SummarizeByBudget(ctx, budgetID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to summarize obligations")
	}
	for _, agg := range obligated {
		if agg.Status == string(models.ObligationStatusObligated) {
			summary.ObligatedAmount = summary.ObligatedAmount.Add(agg.Total)
			summary.ObligationCount += agg.Count
		}
	}

	expended, err := s.expenditures.SummarizeByBudget(ctx, budgetID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to summarize expenditures")
	}
	for _, agg := range expended {
		if agg.Status == string(models.ExpenditureStatusPaid) {
			summary.ExpendedAmount = summary.ExpendedAmount.Add(agg.Total)
			summary.ExpenditureCount += agg.Count
		}
	}
	summary.RemainingAmount = summary.PlannedAmount.Sub(summary.ObligatedAmount)

	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, summary, budgetSummaryTTL); err != nil {
			s.logger.Warn("budget summary cache write failed", zap.String("budget_id", budgetID), zap.Error(err))
		}
	}
	return summary, nil
}

func (s *BudgetService) invalidateSummary(ctx context.Context, budgetID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, summaryCacheKey(budgetID)); err != nil {
		s.logger.Warn("budget summary cache invalidation failed", zap.String("budget_id", budgetID), zap.Error(err))
	}
}

func summaryCacheKey(budgetID string) string {
	return fmt.Sprintf("budget:summary:%s", budgetID)
}

func (s *BudgetService) emitAudit(ctx context.Context, actorID, action string, budget *models.Budget) {
	if s.audit == nil {
		return
	}
	payload, _ := json.Marshal(map[string]interface{}{
		"status":  budget.Status,
		"version": budget.Version,
		"amount":  budget.Amount.String(),
	})
	log := &models.AuditLog{
		Action:     action,
		Resource:   "budget",
		ResourceID: &budget.ID,
		NewValues:  payload,
		Outcome:    string(budget.Status),
		IPAddress:  "system",
		UserAgent:  "budget-service",
	}
	if actorID != "" {
		log.UserID = &actorID
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to persist audit log", zap.Error(err))
	}
}
