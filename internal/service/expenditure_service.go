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

type expenditureStore interface {
	Create(ctx context.Context, e *models.Expenditure) error
	GetByID(ctx context.Context, id string) (*models.Expenditure, error)
	List(ctx context.Context, filter models.ExpenditureFilter) ([]models.Expenditure, error)
	UpdateStatus(ctx context.Context, id string, from, to models.ExpenditureStatus) error
	SummarizeByBudget(ctx context.Context, budgetID string) ([]repository.StatusAggregate, error)
	SettledAmount(ctx context.Context, obligationID string) (decimal.Decimal, error)
}

type obligationReader interface {
	GetByID(ctx context.Context, id string) (*models.Obligation, error)
}

// ExpenditureService records actual payments. A payment settling an
// obligation may never drive the settled total past the obligated amount.
type ExpenditureService struct {
	repo        expenditureStore
	obligations obligationReader
	audit       auditLogger
	validator   *validator.Validate
	logger      *zap.Logger
	now         func() time.Time
}

// NewExpenditureService constructs the service.
func NewExpenditureService(repo expenditureStore, obligations obligationReader, audit auditLogger, logger *zap.Logger) *ExpenditureService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExpenditureService{
		repo:        repo,
		obligations: obligations,
		audit:       audit,
		validator:   validator.New(),
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Create records a payment. When it references an obligation, the obligation
// must be OBLIGATED and the settled total including this payment must stay
// within the obligated amount.
func (s *ExpenditureService) Create(ctx context.Context, req dto.CreateExpenditureRequest, actorID string) (*models.Expenditure, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid expenditure payload")
	}
	if !req.Amount.IsPositive() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "amount must be positive")
	}

	status := models.ExpenditureStatusPaid
	if req.Pending {
		status = models.ExpenditureStatusPending
	}
	expenditure := &models.Expenditure{
		BudgetID:    req.BudgetID,
		Amount:      req.Amount,
		Status:      status,
		Description: req.Description,
		Vendor:      req.Vendor,
		CreatedBy:   actorID,
	}
	expenditure.PaidAt = req.PaidAt
	if expenditure.PaidAt.IsZero() {
		expenditure.PaidAt = s.now()
	}

	if req.ObligationID != "" {
		obligation, err := s.obligations.GetByID(ctx, req.ObligationID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "obligation not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load obligation")
		}
		if obligation.Status != models.ObligationStatusObligated {
			return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("obligation in status %s cannot be settled", obligation.Status))
		}
		settled, err := s.repo.SettledAmount(ctx, req.ObligationID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sum settled expenditures")
		}
		if settled.Add(req.Amount).GreaterThan(obligation.Amount) {
			return nil, appErrors.Clone(appErrors.ErrValidation,
				fmt.Sprintf("payment would settle %s against an obligation of %s", settled.Add(req.Amount), obligation.Amount))
		}
		obligationID := req.ObligationID
		expenditure.ObligationID = &obligationID
	}

	if err := s.repo.Create(ctx, expenditure); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create expenditure")
	}
	s.emitAudit(ctx, actorID, models.AuditActionExpenditureCreate, expenditure)
	return expenditure, nil
}

// Get fetches one expenditure.
func (s *ExpenditureService) Get(ctx context.Context, id string) (*models.Expenditure, error) {
	expenditure, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load expenditure")
	}
	return expenditure, nil
}

// List returns expenditures matching the query.
func (s *ExpenditureService) List(ctx context.Context, query dto.ExpenditureQuery) ([]models.Expenditure, error) {
	expenditures, err := s.repo.List(ctx, models.ExpenditureFilter{
		BudgetID:     query.BudgetID,
		ObligationID: query.ObligationID,
		Status:       query.Status,
		Limit:        query.Limit,
		Offset:       query.Offset,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list expenditures")
	}
	return expenditures, nil
}

// Pay settles a pending expenditure. The obligation cap is re-checked at
// settlement time because other payments may have landed since intake.
func (s *ExpenditureService) Pay(ctx context.Context, id, actorID string) (*models.Expenditure, error) {
	expenditure, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if expenditure.Status != models.ExpenditureStatusPending {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("expenditure in status %s cannot be paid", expenditure.Status))
	}

	if expenditure.ObligationID != nil {
		obligation, err := s.obligations.GetByID(ctx, *expenditure.ObligationID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load obligation")
		}
		if obligation.Status != models.ObligationStatusObligated {
			return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("obligation in status %s cannot be settled", obligation.Status))
		}
		settled, err := s.repo.SettledAmount(ctx, *expenditure.ObligationID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sum settled expenditures")
		}
		if settled.Add(expenditure.Amount).GreaterThan(obligation.Amount) {
			return nil, appErrors.Clone(appErrors.ErrValidation,
				fmt.Sprintf("payment would settle %s against an obligation of %s", settled.Add(expenditure.Amount), obligation.Amount))
		}
	}

	if err := s.repo.UpdateStatus(ctx, id, models.ExpenditureStatusPending, models.ExpenditureStatusPaid); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "expenditure status changed concurrently")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to pay expenditure")
	}
	expenditure.Status = models.ExpenditureStatusPaid
	s.emitAudit(ctx, actorID, models.AuditActionExpenditureUpdate, expenditure)
	return expenditure, nil
}

// Cancel voids a paid expenditure, releasing its amount from the settled
// total of its obligation.
func (s *ExpenditureService) Cancel(ctx context.Context, id, actorID string) (*models.Expenditure, error) {
	expenditure, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if expenditure.Status == models.ExpenditureStatusCancelled {
		return nil, appErrors.Clone(appErrors.ErrConflict, "expenditure is already cancelled")
	}
	if err := s.repo.UpdateStatus(ctx, id, expenditure.Status, models.ExpenditureStatusCancelled); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "expenditure status changed concurrently")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel expenditure")
	}
	expenditure.Status = models.ExpenditureStatusCancelled
	s.emitAudit(ctx, actorID, models.AuditActionExpenditureUpdate, expenditure)
	return expenditure, nil
}

// Summary aggregates a budget's expenditures by status, recomputed on read.
func (s *ExpenditureService) Summary(ctx context.Context, budgetID string) (*models.ExpenditureSummary, error) {
	aggregates, err := s.repo.SummarizeByBudget(ctx, budgetID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to summarize expenditures")
	}
	summary := &models.ExpenditureSummary{
		BudgetID:    budgetID,
		ByStatus:    make(map[models.ExpenditureStatus]decimal.Decimal, len(aggregates)),
		GeneratedAt: s.now(),
	}
	for _, agg := range aggregates {
		status := models.ExpenditureStatus(agg.Status)
		summary.ByStatus[status] = summary.ByStatus[status].Add(agg.Total)
		summary.TotalAmount = summary.TotalAmount.Add(agg.Total)
		summary.Count += agg.Count
	}
	return summary, nil
}

func (s *ExpenditureService) emitAudit(ctx context.Context, actorID, action string, expenditure *models.Expenditure) {
	if s.audit == nil {
		return
	}
	payload, _ := json.Marshal(map[string]string{
		"amount": expenditure.Amount.String(),
		"status": string(expenditure.Status),
	})
	log := &models.AuditLog{
		Action:     action,
		Resource:   "expenditure",
		ResourceID: &expenditure.ID,
		NewValues:  payload,
		Outcome:    string(expenditure.Status),
		IPAddress:  "system",
		UserAgent:  "expenditure-service",
	}
	if actorID != "" {
		log.UserID = &actorID
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to persist audit log", zap.Error(err))
	}
}
