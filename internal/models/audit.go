package models

import "time"

// AuditAction constants represent actions to be logged.
const (
	AuditActionLogin             = "LOGIN"
	AuditActionLogout            = "LOGOUT"
	AuditActionUserCreate        = "USER_CREATE"
	AuditActionUserUpdate        = "USER_UPDATE"
	AuditActionUserDelete        = "USER_DELETE"
	AuditActionBudgetCreate      = "BUDGET_CREATE"
	AuditActionBudgetUpdate      = "BUDGET_UPDATE"
	AuditActionBudgetSubmit      = "BUDGET_SUBMIT"
	AuditActionBudgetRollback    = "BUDGET_ROLLBACK"
	AuditActionApprovalCreate    = "APPROVAL_CREATE"
	AuditActionApprovalDecision  = "APPROVAL_DECISION"
	AuditActionApprovalCancel    = "APPROVAL_CANCEL"
	AuditActionFundsAllocate     = "FUNDS_ALLOCATE"
	AuditActionFundsDeallocate   = "FUNDS_DEALLOCATE"
	AuditActionObligationCreate  = "OBLIGATION_CREATE"
	AuditActionObligationUpdate  = "OBLIGATION_UPDATE"
	AuditActionExpenditureCreate = "EXPENDITURE_CREATE"
	AuditActionExpenditureUpdate = "EXPENDITURE_UPDATE"
)

// AuditLog represents an audit trail record. Rows are append-only.
type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	UserID     *string   `db:"user_id" json:"user_id,omitempty"`
	Action     string    `db:"action" json:"action"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID *string   `db:"resource_id" json:"resource_id,omitempty"`
	OldValues  []byte    `db:"old_values" json:"old_values,omitempty"`
	NewValues  []byte    `db:"new_values" json:"new_values,omitempty"`
	Outcome    string    `db:"outcome" json:"outcome,omitempty"`
	IPAddress  string    `db:"ip_address" json:"ip_address"`
	UserAgent  string    `db:"user_agent" json:"user_agent"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
