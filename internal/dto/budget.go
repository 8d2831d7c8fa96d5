package dto

import (
	"github.com/shopspring/decimal"

	"github.com/noah-isme/bfm-api/internal/models"
)

// CreateBudgetRequest payload for opening a new draft budget.
type CreateBudgetRequest struct {
	Name              string          `json:"name" validate:"required"`
	FiscalYear        int             `json:"fiscalYear" validate:"required,min=1900"`
	AppropriationCode string          `json:"appropriationCode" validate:"required"`
	Amount            decimal.Decimal `json:"amount" validate:"required"`
	Description       string          `json:"description"`
}

// UpdateBudgetRequest mutates a draft budget. Every accepted update bumps the
// version counter and snapshots the previous state.
type UpdateBudgetRequest struct {
	Name        *string          `json:"name,omitempty"`
	Amount      *decimal.Decimal `json:"amount,omitempty"`
	Description *string          `json:"description,omitempty"`
}

// RollbackBudgetRequest restores the field values of an earlier version.
type RollbackBudgetRequest struct {
	ToVersion int `json:"toVersion" validate:"required,min=1"`
}

// CreateLineItemRequest adds a planned spending position to a budget.
type CreateLineItemRequest struct {
	Name           string          `json:"name" validate:"required"`
	ProgramElement string          `json:"programElement"`
	PlannedAmount  decimal.Decimal `json:"plannedAmount" validate:"required"`
}

// BudgetQuery mirrors supported listing filters.
type BudgetQuery struct {
	FiscalYear int
	Status     []models.BudgetStatus
	OwnerID    string
	Limit      int
	Offset     int
}
