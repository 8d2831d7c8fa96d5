package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/bfm-api/internal/models"
)

// CreateAppropriationRequest payload for registering a fund for a fiscal year.
type CreateAppropriationRequest struct {
	Code           string                   `json:"code" validate:"required"`
	FiscalYear     int                      `json:"fiscalYear" validate:"required,min=1900"`
	Type           models.AppropriationType `json:"type" validate:"required"`
	TotalAmount    decimal.Decimal          `json:"totalAmount" validate:"required"`
	ExpirationDate time.Time                `json:"expirationDate" validate:"required"`
	Restrictions   string                   `json:"restrictions"`
}

// CheckAvailabilityRequest asks whether an amount can be drawn from a fund.
type CheckAvailabilityRequest struct {
	Code       string          `json:"code" validate:"required"`
	FiscalYear int             `json:"fiscalYear" validate:"required"`
	Amount     decimal.Decimal `json:"amount" validate:"required"`
}

// AllocationRequest moves an amount between available and allocated balances.
type AllocationRequest struct {
	Amount decimal.Decimal `json:"amount" validate:"required"`
}

// AppropriationQuery mirrors supported listing filters.
type AppropriationQuery struct {
	Code       string
	FiscalYear int
	Type       models.AppropriationType
	Limit      int
	Offset     int
}
