package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ObligationStatus enumerates the small status set for obligations.
// Amounts are immutable once created; only the status transitions.
type ObligationStatus string

const (
	ObligationStatusPending     ObligationStatus = "PENDING"
	ObligationStatusObligated   ObligationStatus = "OBLIGATED"
	ObligationStatusDeobligated ObligationStatus = "DEOBLIGATED"
	ObligationStatusCancelled   ObligationStatus = "CANCELLED"
)

// ExpenditureStatus enumerates expenditure states.
type ExpenditureStatus string

const (
	ExpenditureStatusPending   ExpenditureStatus = "PENDING"
	ExpenditureStatusPaid      ExpenditureStatus = "PAID"
	ExpenditureStatusCancelled ExpenditureStatus = "CANCELLED"
)

// Obligation is a recorded commitment to pay, drawn against an appropriation.
type Obligation struct {
	ID                string           `db:"id" json:"id"`
	BudgetID          string           `db:"budget_id" json:"budgetId"`
	LineItemID        *string          `db:"line_item_id" json:"lineItemId,omitempty"`
	AppropriationCode string           `db:"appropriation_code" json:"appropriationCode"`
	FiscalYear        int              `db:"fiscal_year" json:"fiscalYear"`
	Amount            decimal.Decimal  `db:"amount" json:"amount"`
	Status            ObligationStatus `db:"status" json:"status"`
	Description       string           `db:"description" json:"description,omitempty"`
	Vendor            string           `db:"vendor" json:"vendor,omitempty"`
	ObligatedAt       time.Time        `db:"obligated_at" json:"obligatedAt"`
	CreatedBy         string           `db:"created_by" json:"createdBy"`
	CreatedAt         time.Time        `db:"created_at" json:"createdAt"`
	UpdatedAt         time.Time        `db:"updated_at" json:"updatedAt"`
}

// Expenditure is an actual payment, typically settling a prior obligation.
type Expenditure struct {
	ID           string            `db:"id" json:"id"`
	BudgetID     string            `db:"budget_id" json:"budgetId"`
	ObligationID *string           `db:"obligation_id" json:"obligationId,omitempty"`
	Amount       decimal.Decimal   `db:"amount" json:"amount"`
	Status       ExpenditureStatus `db:"status" json:"status"`
	Description  string            `db:"description" json:"description,omitempty"`
	Vendor       string            `db:"vendor" json:"vendor,omitempty"`
	PaidAt       time.Time         `db:"paid_at" json:"paidAt"`
	CreatedBy    string            `db:"created_by" json:"createdBy"`
	CreatedAt    time.Time         `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time         `db:"updated_at" json:"updatedAt"`
}

// ObligationFilter constrains obligation listing queries.
type ObligationFilter struct {
	BudgetID          string
	AppropriationCode string
	FiscalYear        int
	Status            []ObligationStatus
	Limit             int
	Offset            int
}

// ExpenditureFilter constrains expenditure listing queries.
type ExpenditureFilter struct {
	BudgetID     string
	ObligationID string
	Status       []ExpenditureStatus
	Limit        int
	Offset       int
}

// ObligationSummary aggregates obligations for one budget, recomputed on read.
type ObligationSummary struct {
	BudgetID    string                               `json:"budgetId"`
	TotalAmount decimal.Decimal                      `json:"totalAmount"`
	Count       int                                  `json:"count"`
	ByStatus    map[ObligationStatus]decimal.Decimal `json:"byStatus"`
	GeneratedAt time.Time                            `json:"generatedAt"`
}

// ExpenditureSummary aggregates expenditures for one budget, recomputed on read.
type ExpenditureSummary struct {
	BudgetID    string                                `json:"budgetId"`
	TotalAmount decimal.Decimal                       `json:"totalAmount"`
	Count       int                                   `json:"count"`
	ByStatus    map[ExpenditureStatus]decimal.Decimal `json:"byStatus"`
	GeneratedAt time.Time                             `json:"generatedAt"`
}
