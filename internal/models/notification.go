package models

import "time"

// NotificationType categorizes outbound notifications.
type NotificationType string

const (
	NotificationApprovalRequested NotificationType = "APPROVAL_REQUESTED"
	NotificationApprovalAdvanced  NotificationType = "APPROVAL_ADVANCED"
	NotificationApprovalApproved  NotificationType = "APPROVAL_APPROVED"
	NotificationApprovalRejected  NotificationType = "APPROVAL_REJECTED"
	NotificationApprovalCancelled NotificationType = "APPROVAL_CANCELLED"
	NotificationFundsAllocated    NotificationType = "FUNDS_ALLOCATED"
)

// NotificationPriority orders notifications for the recipient.
type NotificationPriority string

const (
	NotificationPriorityLow    NotificationPriority = "LOW"
	NotificationPriorityNormal NotificationPriority = "NORMAL"
	NotificationPriorityHigh   NotificationPriority = "HIGH"
)

// Notification is delivered fire-and-forget; delivery failures never roll
// back the workflow transition that produced them.
type Notification struct {
	ID        string               `db:"id" json:"id"`
	UserID    string               `db:"user_id" json:"userId"`
	Type      NotificationType     `db:"type" json:"type"`
	Title     string               `db:"title" json:"title"`
	Message   string               `db:"message" json:"message"`
	EntityRef string               `db:"entity_ref" json:"entityRef,omitempty"`
	Priority  NotificationPriority `db:"priority" json:"priority"`
	Read      bool                 `db:"read" json:"read"`
	CreatedAt time.Time            `db:"created_at" json:"createdAt"`
}
