package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// BudgetStatus captures the lifecycle phase of a budget.
type BudgetStatus string

const (
	BudgetStatusDraft     BudgetStatus = "DRAFT"
	BudgetStatusSubmitted BudgetStatus = "SUBMITTED"
	BudgetStatusApproved  BudgetStatus = "APPROVED"
	BudgetStatusRejected  BudgetStatus = "REJECTED"
	BudgetStatusActive    BudgetStatus = "ACTIVE"
	BudgetStatusClosed    BudgetStatus = "CLOSED"
)

// ApprovalState mirrors the state of the budget's active approval request.
type ApprovalState string

const (
	ApprovalStatePending  ApprovalState = "PENDING"
	ApprovalStateInReview ApprovalState = "IN_REVIEW"
	ApprovalStateApproved ApprovalState = "APPROVED"
	ApprovalStateRejected ApprovalState = "REJECTED"
)

// Budget is the entity under approval. Version increments on every mutation
// and each version produces an immutable BudgetVersion snapshot.
type Budget struct {
	ID                string          `db:"id" json:"id"`
	Name              string          `db:"name" json:"name"`
	FiscalYear        int             `db:"fiscal_year" json:"fiscalYear"`
	AppropriationCode string          `db:"appropriation_code" json:"appropriationCode"`
	Amount            decimal.Decimal `db:"amount" json:"amount"`
	Status            BudgetStatus    `db:"status" json:"status"`
	ApprovalState     ApprovalState   `db:"approval_state" json:"approvalState"`
	Version           int             `db:"version" json:"version"`
	Description       string          `db:"description" json:"description,omitempty"`
	OwnerID           string          `db:"owner_id" json:"ownerId"`
	CreatedAt         time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt         time.Time       `db:"updated_at" json:"updatedAt"`
}

// Mutable reports whether the budget still accepts direct edits by its owner.
func (b *Budget) Mutable() bool {
	return b.Status == BudgetStatusDraft || b.Status == BudgetStatusRejected
}

// BudgetVersion is an immutable snapshot of a budget at one version number.
// Rows are append-only; the storage layer rejects updates and deletes.
type BudgetVersion struct {
	ID        string          `db:"id" json:"id"`
	BudgetID  string          `db:"budget_id" json:"budgetId"`
	Version   int             `db:"version" json:"version"`
	Snapshot  []byte          `db:"snapshot" json:"snapshot"`
	Amount    decimal.Decimal `db:"amount" json:"amount"`
	ChangedBy string          `db:"changed_by" json:"changedBy"`
	CreatedAt time.Time       `db:"created_at" json:"createdAt"`
}

// LineItem is one planned spending position inside a budget.
type LineItem struct {
	ID             string          `db:"id" json:"id"`
	BudgetID       string          `db:"budget_id" json:"budgetId"`
	Name           string          `db:"name" json:"name"`
	ProgramElement string          `db:"program_element" json:"programElement,omitempty"`
	PlannedAmount  decimal.Decimal `db:"planned_amount" json:"plannedAmount"`
	ActualAmount   decimal.Decimal `db:"actual_amount" json:"actualAmount"`
	CreatedAt      time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updatedAt"`
}

// BudgetFilter constrains budget listing queries.
type BudgetFilter struct {
	FiscalYear int
	Status     []BudgetStatus
	OwnerID    string
	Limit      int
	Offset     int
}

// BudgetSummary is recomputed from authoritative obligation and expenditure
// rows on every read; no denormalized counters are trusted.
type BudgetSummary struct {
	BudgetID         string          `json:"budgetId"`
	FiscalYear       int             `json:"fiscalYear"`
	PlannedAmount    decimal.Decimal `json:"plannedAmount"`
	ObligatedAmount  decimal.Decimal `json:"obligatedAmount"`
	ExpendedAmount   decimal.Decimal `json:"expendedAmount"`
	RemainingAmount  decimal.Decimal `json:"remainingAmount"`
	ObligationCount  int             `json:"obligationCount"`
	ExpenditureCount int             `json:"expenditureCount"`
	GeneratedAt      time.Time       `json:"generatedAt"`
}
