package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// AppropriationType describes the availability period of a fund.
type AppropriationType string

const (
	AppropriationTypeAnnual    AppropriationType = "ANNUAL"
	AppropriationTypeMultiYear AppropriationType = "MULTI_YEAR"
	AppropriationTypeNoYear    AppropriationType = "NO_YEAR"
)

// Appropriation is a legally bounded fund allotment for one fiscal year.
// Balances move only through allocate/deallocate; available + allocated == total.
type Appropriation struct {
	ID              string            `db:"id" json:"id"`
	Code            string            `db:"code" json:"code"`
	FiscalYear      int               `db:"fiscal_year" json:"fiscalYear"`
	Type            AppropriationType `db:"type" json:"type"`
	TotalAmount     decimal.Decimal   `db:"total_amount" json:"totalAmount"`
	AllocatedAmount decimal.Decimal   `db:"allocated_amount" json:"allocatedAmount"`
	AvailableAmount decimal.Decimal   `db:"available_amount" json:"availableAmount"`
	ExpirationDate  time.Time         `db:"expiration_date" json:"expirationDate"`
	Restrictions    string            `db:"restrictions" json:"restrictions,omitempty"`
	CreatedAt       time.Time         `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time         `db:"updated_at" json:"updatedAt"`
}

// Expired reports whether the appropriation can no longer accept allocations.
func (a *Appropriation) Expired(now time.Time) bool {
	return now.After(a.ExpirationDate)
}

// AppropriationFilter constrains listing queries.
type AppropriationFilter struct {
	Code       string
	FiscalYear int
	Type       AppropriationType
	Limit      int
	Offset     int
}

// AvailabilityResult is the outcome of a fund availability check.
type AvailabilityResult struct {
	Available bool            `json:"available"`
	Shortage  decimal.Decimal `json:"shortage"`
}

// ValidationResult is the outcome of a composite appropriation pre-flight check.
type ValidationResult struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}
