package domain

import "time"

type NotificationType string

const (
	NotificationBillingReminder NotificationType = "billing_reminder"
	NotificationPreDue          NotificationType = "pre_due"
	NotificationDueDate         NotificationType = "due_date"
	NotificationOverdue         NotificationType = "overdue"
)

// NotificationHistory is insert-only and exists purely to prevent a milestone
// from firing twice for the same loan and billing period.
type NotificationHistory struct {
	ID        int64
	LoanID    int64
	Type      NotificationType
	PeriodKey string
	Sent      bool
	Error     *string
	CreatedAt time.Time
}

// PeriodKey computes the duplicate-prevention key for a milestone run.
// Overdue escalations can fire more than once a month at different day
// offsets, so they are keyed by day; the other milestones by month.
func PeriodKey(t NotificationType, at time.Time) string {
	if t == NotificationOverdue {
		return at.Format("2006-01-02")
	}
	return at.Format("2006-01")
}
