package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/bfm-api/internal/models"
)

// CreateObligationRequest records a commitment to pay against an appropriation.
type CreateObligationRequest struct {
	BudgetID          string          `json:"budgetId" validate:"required"`
	LineItemID        string          `json:"lineItemId"`
	AppropriationCode string          `json:"appropriationCode" validate:"required"`
	FiscalYear        int             `json:"fiscalYear" validate:"required"`
	Amount            decimal.Decimal `json:"amount" validate:"required"`
	Description       string          `json:"description"`
	Vendor            string          `json:"vendor"`
	ObligatedAt       time.Time       `json:"obligatedAt"`
	// Pending records the commitment without drawing appropriation funds;
	// a later obligate call completes it.
	Pending bool `json:"pending"`
}

// UpdateObligationStatusRequest transitions an obligation's status.
type UpdateObligationStatusRequest struct {
	Status models.ObligationStatus `json:"status" validate:"required"`
}

// CreateExpenditureRequest records an actual payment, optionally settling an obligation.
type CreateExpenditureRequest struct {
	BudgetID     string          `json:"budgetId" validate:"required"`
	ObligationID string          `json:"obligationId"`
	Amount       decimal.Decimal `json:"amount" validate:"required"`
	Description  string          `json:"description"`
	Vendor       string          `json:"vendor"`
	PaidAt       time.Time       `json:"paidAt"`
	// Pending queues the payment for later settlement via pay.
	Pending bool `json:"pending"`
}

// UpdateExpenditureStatusRequest transitions an expenditure's status.
type UpdateExpenditureStatusRequest struct {
	Status models.ExpenditureStatus `json:"status" validate:"required"`
}

// ObligationQuery mirrors supported listing filters.
type ObligationQuery struct {
	BudgetID          string
	AppropriationCode string
	FiscalYear        int
	Status            []models.ObligationStatus
	Limit             int
	Offset            int
}

// ExpenditureQuery mirrors supported listing filters.
type ExpenditureQuery struct {
	BudgetID     string
	ObligationID string
	Status       []models.ExpenditureStatus
	Limit        int
	Offset       int
}
