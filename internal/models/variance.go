package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// VarianceStatus classifies planned-vs-actual deviation.
type VarianceStatus string

const (
	VarianceFavorable   VarianceStatus = "FAVORABLE"
	VarianceUnfavorable VarianceStatus = "UNFAVORABLE"
	VarianceCritical    VarianceStatus = "CRITICAL"
	VarianceNeutral     VarianceStatus = "NEUTRAL"
)

// Variance is the signed difference between planned and actual amounts.
type Variance struct {
	PlannedAmount decimal.Decimal `json:"plannedAmount"`
	ActualAmount  decimal.Decimal `json:"actualAmount"`
	Amount        decimal.Decimal `json:"amount"`
	Percent       decimal.Decimal `json:"percent"`
	Status        VarianceStatus  `json:"status"`
}

// LineItemVariance pairs a line item with its computed variance.
type LineItemVariance struct {
	LineItemID     string   `json:"lineItemId"`
	Name           string   `json:"name"`
	ProgramElement string   `json:"programElement,omitempty"`
	Variance       Variance `json:"variance"`
}

// VarianceReport covers every line item of one budget.
type VarianceReport struct {
	BudgetID    string             `json:"budgetId"`
	Overall     Variance           `json:"overall"`
	LineItems   []LineItemVariance `json:"lineItems"`
	GeneratedAt time.Time          `json:"generatedAt"`
}

// SystemMetrics is a lightweight snapshot of runtime instrumentation.
type SystemMetrics struct {
	CacheHitRatio            float64   `json:"cacheHitRatio"`
	CacheHits                uint64    `json:"cacheHits"`
	CacheMisses              uint64    `json:"cacheMisses"`
	RequestsTotal            uint64    `json:"requestsTotal"`
	AverageRequestDurationMs float64   `json:"averageRequestDurationMs"`
	DBQueryCount             uint64    `json:"dbQueryCount"`
	AverageDBQueryDurationMs float64   `json:"averageDbQueryDurationMs"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generatedAt"`
}
