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
	appErrors "github.com/noah-isme/bfm-api/pkg/errors"
)

type appropriationStore interface {
	Create(ctx context.Context, a *models.Appropriation) error
	GetByID(ctx context.Context, id string) (*models.Appropriation, error)
	GetByCode(ctx context.Context, code string, fiscalYear int) (*models.Appropriation, error)
	List(ctx context.Context, filter models.AppropriationFilter) ([]models.Appropriation, error)
	Allocate(ctx context.Context, id string, amount decimal.Decimal) error
	Deallocate(ctx context.Context, id string, amount decimal.Decimal) error
}

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// AppropriationService is the fund-control ledger. Every obligation of funds
// passes through Allocate; the availability invariant lives in the store's
// conditional update, the legal checks (expiration, existence) live here.
type AppropriationService struct {
	repo      appropriationStore
	audit     auditLogger
	logger    *zap.Logger
	validator *validator.Validate
	now       func() time.Time
}

// NewAppropriationService constructs the service.
func NewAppropriationService(repo appropriationStore, audit auditLogger, logger *zap.Logger) *AppropriationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AppropriationService{
		repo:      repo,
		audit:     audit,
		logger:    logger,
		validator: validator.New(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Create registers a fund for a fiscal year with its full amount available.
func (s *AppropriationService) Create(ctx context.Context, req dto.CreateAppropriationRequest, actorID string) (*models.Appropriation, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid appropriation payload")
	}
	if req.TotalAmount.IsNegative() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "totalAmount must not be negative")
	}
	if existing, err := s.repo.GetByCode(ctx, req.Code, req.FiscalYear); err == nil && existing != nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("appropriation %s already exists for FY%d", req.Code, req.FiscalYear))
	} else if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check appropriation code")
	}

	appropriation := &models.Appropriation{
		Code:           req.Code,
		FiscalYear:     req.FiscalYear,
		Type:           req.Type,
		TotalAmount:    req.TotalAmount,
		ExpirationDate: req.ExpirationDate,
		Restrictions:   req.Restrictions,
	}
	if err := s.repo.Create(ctx, appropriation); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create appropriation")
	}
	return appropriation, nil
}

// Get returns an appropriation by identifier.
func (s *AppropriationService) Get(ctx context.Context, id string) (*models.Appropriation, error) {
	appropriation, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load appropriation")
	}
	return appropriation, nil
}

// List returns appropriations matching the query.
func (s *AppropriationService) List(ctx context.Context, query dto.AppropriationQuery) ([]models.Appropriation, error) {
	appropriations, err := s.repo.List(ctx, models.AppropriationFilter{
		Code:       query.Code,
		FiscalYear: query.FiscalYear,
		Type:       query.Type,
		Limit:      query.Limit,
		Offset:     query.Offset,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list appropriations")
	}
	return appropriations, nil
}

// CheckAvailability is a read-only anti-deficiency check: whether the amount
// could be drawn from the fund right now, and by how much it falls short.
func (s *AppropriationService) CheckAvailability(ctx context.Context, req dto.CheckAvailabilityRequest) (*models.AvailabilityResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid availability payload")
	}
	if req.Amount.IsNegative() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "amount must not be negative")
	}
	appropriation, err := s.repo.GetByCode(ctx, req.Code, req.FiscalYear)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load appropriation")
	}
	if appropriation.Expired(s.now()) {
		return nil, appErrors.ErrExpired
	}

	result := &models.AvailabilityResult{Shortage: decimal.Zero}
	if appropriation.AvailableAmount.GreaterThanOrEqual(req.Amount) {
		result.Available = true
	} else {
		result.Shortage = req.Amount.Sub(appropriation.AvailableAmount)
	}
	return result, nil
}

// Validate runs the composite pre-flight gate: existence, non-expiration,
// and a positive available balance.
func (s *AppropriationService) Validate(ctx context.Context, code string, fiscalYear int) (*models.ValidationResult, error) {
	appropriation, err := s.repo.GetByCode(ctx, code, fiscalYear)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &models.ValidationResult{Valid: false, Reason: "appropriation not found"}, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load appropriation")
	}
	if appropriation.Expired(s.now()) {
		return &models.ValidationResult{Valid: false, Reason: "appropriation expired"}, nil
	}
	if !appropriation.AvailableAmount.IsPositive() {
		return &models.ValidationResult{Valid: false, Reason: "no available balance"}, nil
	}
	return &models.ValidationResult{Valid: true}, nil
}

// Allocate atomically reserves an amount against the appropriation. Failure
// modes: NotFound, Expired, InsufficientFunds. Balances are untouched on
// every failure path.
func (s *AppropriationService) Allocate(ctx context.Context, id string, amount decimal.Decimal, actorID string) (*models.Appropriation, error) {
	if !amount.IsPositive() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "amount must be positive")
	}
	appropriation, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if appropriation.Expired(s.now()) {
		return nil, appErrors.ErrExpired
	}

	if err := s.repo.Allocate(ctx, id, amount); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// The conditional update matched no row: the balance was short,
			// possibly because a concurrent allocation won the race.
			return nil, appErrors.ErrInsufficientFunds
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to allocate funds")
	}

	updated, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.emitAudit(ctx, actorID, models.AuditActionFundsAllocate, updated.ID, amount)
	return updated, nil
}

// AllocateByCode resolves a code and fiscal year to an appropriation and
// reserves the amount against it.
func (s *AppropriationService) AllocateByCode(ctx context.Context, code string, fiscalYear int, amount decimal.Decimal, actorID string) (*models.Appropriation, error) {
	appropriation, err := s.repo.GetByCode(ctx, code, fiscalYear)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load appropriation")
	}
	return s.Allocate(ctx, appropriation.ID, amount, actorID)
}

// DeallocateByCode resolves a code and fiscal year and releases the amount.
func (s *AppropriationService) DeallocateByCode(ctx context.Context, code string, fiscalYear int, amount decimal.Decimal, actorID string) (*models.Appropriation, error) {
	appropriation, err := s.repo.GetByCode(ctx, code, fiscalYear)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load appropriation")
	}
	return s.Deallocate(ctx, appropriation.ID, amount, actorID)
}

// Deallocate reverses an allocation. Over-deallocation from corrected records
// clamps allocated at zero instead of failing.
func (s *AppropriationService) Deallocate(ctx context.Context, id string, amount decimal.Decimal, actorID string) (*models.Appropriation, error) {
	if !amount.IsPositive() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "amount must be positive")
	}
	if err := s.repo.Deallocate(ctx, id, amount); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deallocate funds")
	}
	updated, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.emitAudit(ctx, actorID, models.AuditActionFundsDeallocate, updated.ID, amount)
	return updated, nil
}

func (s *AppropriationService) emitAudit(ctx context.Context, actorID, action, appropriationID string, amount decimal.Decimal) {
	if s.audit == nil {
		return
	}
	payload, _ := json.Marshal(map[string]string{"amount": amount.String()})
	log := &models.AuditLog{
		Action:     action,
		Resource:   "appropriation",
		ResourceID: &appropriationID,
		NewValues:  payload,
		IPAddress:  "system",
		UserAgent:  "appropriation-service",
	}
	if actorID != "" {
		log.UserID = &actorID
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to persist audit log", zap.Error(err))
	}
}
