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

type obligationStore interface {
	Create(ctx context.Context, o *models.Obligation) error
	GetByID(ctx context.Context, id string) (*models.Obligation, error)
	List(ctx context.Context, filter models.ObligationFilter) ([]models.Obligation, error)
	UpdateStatus(ctx context.Context, id string, from, to models.ObligationStatus) error
	SummarizeByBudget(ctx context.Context, budgetID string) ([]repository.StatusAggregate, error)
}

// ObligationService records commitments to pay and keeps the appropriation
// ledger in step: every obligated amount is drawn from its appropriation, and
// deobligation or cancellation returns it.
type ObligationService struct {
	repo      obligationStore
	ledger    fundLedger
	audit     auditLogger
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewObligationService constructs the service.
func NewObligationService(repo obligationStore, ledger fundLedger, audit auditLogger, logger *zap.Logger) *ObligationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ObligationService{
		repo:      repo,
		ledger:    ledger,
		audit:     audit,
		validator: validator.New(),
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Create records an obligation. The amount is drawn from the appropriation
// first; an obligation row only exists if the funds were actually reserved.
func (s *ObligationService) Create(ctx context.Context, req dto.CreateObligationRequest, actorID string) (*models.Obligation, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid obligation payload")
	}
	if !req.Amount.IsPositive() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "amount must be positive")
	}

	// A pending commitment reserves nothing; funds are drawn when it is
	// obligated.
	status := models.ObligationStatusObligated
	if req.Pending {
		status = models.ObligationStatusPending
	} else if s.ledger != nil {
		if _, err := s.ledger.AllocateByCode(ctx, req.AppropriationCode, req.FiscalYear, req.Amount, actorID); err != nil {
			return nil, err
		}
	}

	obligatedAt := req.ObligatedAt
	if obligatedAt.IsZero() {
		obligatedAt = s.now()
	}
	obligation := &models.Obligation{
		BudgetID:          req.BudgetID,
		AppropriationCode: req.AppropriationCode,
		FiscalYear:        req.FiscalYear,
		Amount:            req.Amount,
		Status:            status,
		Description:       req.Description,
		Vendor:            req.Vendor,
		ObligatedAt:       obligatedAt,
		CreatedBy:         actorID,
	}
	if req.LineItemID != "" {
		lineItemID := req.LineItemID
		obligation.LineItemID = &lineItemID
	}
	if err := s.repo.Create(ctx, obligation); err != nil {
		// Funds were reserved but the row failed to persist; release them so
		// the ledger does not leak the amount.
		if !req.Pending && s.ledger != nil {
			if _, releaseErr := s.ledger.DeallocateByCode(ctx, req.AppropriationCode, req.FiscalYear, req.Amount, actorID); releaseErr != nil {
				s.logger.Error("failed to release funds after obligation create failure",
					zap.String("appropriation_code", req.AppropriationCode), zap.Error(releaseErr))
			}
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create obligation")
	}
	s.emitAudit(ctx, actorID, models.AuditActionObligationCreate, obligation)
	return obligation, nil
}

// Get fetches one obligation.
func (s *ObligationService) Get(ctx context.Context, id string) (*models.Obligation, error) {
	obligation, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load obligation")
	}
	return obligation, nil
}

// List returns obligations matching the query.
func (s *ObligationService) List(ctx context.Context, query dto.ObligationQuery) ([]models.Obligation, error) {
	obligations, err := s.repo.List(ctx, models.ObligationFilter{
		BudgetID:          query.BudgetID,
		AppropriationCode: query.AppropriationCode,
		FiscalYear:        query.FiscalYear,
		Status:            query.Status,
		Limit:             query.Limit,
		Offset:            query.Offset,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list obligations")
	}
	return obligations, nil
}

// Obligate completes a pending commitment: funds are drawn from the
// appropriation and the row moves PENDING -> OBLIGATED. The status guard is a
// compare-and-swap, so a concurrent obligate or cancel leaves one winner; on
// a lost race the reserved funds are returned.
func (s *ObligationService) Obligate(ctx context.Context, id, actorID string) (*models.Obligation, error) {
	obligation, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if obligation.Status != models.ObligationStatusPending {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("obligation in status %s cannot be obligated", obligation.Status))
	}

	if s.ledger != nil {
		if _, err := s.ledger.AllocateByCode(ctx, obligation.AppropriationCode, obligation.FiscalYear, obligation.Amount, actorID); err != nil {
			return nil, err
		}
	}
	if err := s.repo.UpdateStatus(ctx, id, models.ObligationStatusPending, models.ObligationStatusObligated); err != nil {
		if s.ledger != nil {
			if _, releaseErr := s.ledger.DeallocateByCode(ctx, obligation.AppropriationCode, obligation.FiscalYear, obligation.Amount, actorID); releaseErr != nil {
				s.logger.Error("failed to return funds after lost obligate race",
					zap.String("obligation_id", id), zap.Error(releaseErr))
			}
		}
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "obligation status changed concurrently")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update obligation status")
	}

	obligation.Status = models.ObligationStatusObligated
	s.emitAudit(ctx, actorID, models.AuditActionObligationUpdate, obligation)
	return obligation, nil
}

// Deobligate releases a commitment and returns its amount to the
// appropriation. Only OBLIGATED rows can be deobligated; the status guard is
// a compare-and-swap so concurrent transitions resolve to one winner.
func (s *ObligationService) Deobligate(ctx context.Context, id, actorID string) (*models.Obligation, error) {
	return s.release(ctx, id, actorID, models.ObligationStatusDeobligated)
}

// Cancel voids an obligation. An OBLIGATED row returns its amount to the
// appropriation; a PENDING row never drew funds, so nothing comes back.
func (s *ObligationService) Cancel(ctx context.Context, id, actorID string) (*models.Obligation, error) {
	obligation, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if obligation.Status == models.ObligationStatusPending {
		if err := s.repo.UpdateStatus(ctx, id, models.ObligationStatusPending, models.ObligationStatusCancelled); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrConflict, "obligation status changed concurrently")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel obligation")
		}
		obligation.Status = models.ObligationStatusCancelled
		s.emitAudit(ctx, actorID, models.AuditActionObligationUpdate, obligation)
		return obligation, nil
	}
	return s.release(ctx, id, actorID, models.ObligationStatusCancelled)
}

func (s *ObligationService) release(ctx context.Context, id, actorID string, to models.ObligationStatus) (*models.Obligation, error) {
	obligation, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if obligation.Status != models.ObligationStatusObligated {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("obligation in status %s cannot transition to %s", obligation.Status, to))
	}
	if err := s.repo.UpdateStatus(ctx, id, models.ObligationStatusObligated, to); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "obligation status changed concurrently")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update obligation status")
	}
	if s.ledger != nil {
		if _, err := s.ledger.DeallocateByCode(ctx, obligation.AppropriationCode, obligation.FiscalYear, obligation.Amount, actorID); err != nil {
			s.logger.Error("failed to return funds after obligation release",
				zap.String("obligation_id", id), zap.Error(err))
		}
	}
	obligation.Status = to
	s.emitAudit(ctx, actorID, models.AuditActionObligationUpdate, obligation)
	return obligation, nil
}

// Summary aggregates a budget's obligations by status, recomputed on read.
func (s *ObligationService) Summary(ctx context.Context, budgetID string) (*models.ObligationSummary, error) {
	aggregates, err := s.repo.SummarizeByBudget(ctx, budgetID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to summarize obligations")
	}
	summary := &models.ObligationSummary{
		BudgetID:    budgetID,
		ByStatus:    make(map[models.ObligationStatus]decimal.Decimal, len(aggregates)),
		GeneratedAt: s.now(),
	}
	for _, agg := range aggregates {
		status := models.ObligationStatus(agg.Status)
		summary.ByStatus[status] = summary.ByStatus[status].Add(agg.Total)
		summary.TotalAmount = summary.TotalAmount.Add(agg.Total)
		summary.Count += agg.Count
	}
	return summary, nil
}

func (s *ObligationService) emitAudit(ctx context.Context, actorID, action string, obligation *models.Obligation) {
	if s.audit == nil {
		return
	}
	payload, _ := json.Marshal(map[string]string{
		"amount": obligation.Amount.String(),
		"status": string(obligation.Status),
	})
	log := &models.AuditLog{
		Action:     action,
		Resource:   "obligation",
		ResourceID: &obligation.ID,
		NewValues:  payload,
		Outcome:    string(obligation.Status),
		IPAddress:  "system",
		UserAgent:  "obligation-service",
	}
	if actorID != "" {
		log.UserID = &actorID
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to persist audit log", zap.Error(err))
	}
}
