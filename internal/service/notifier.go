package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"loanster-core/internal/domain"
	"loanster-core/internal/repository"
)

type NotifierLoanStore interface {
	ForMilestone(ctx context.Context, milestone domain.NotificationType, now time.Time, daysAhead int) ([]domain.Loan, error)
	ChatChannelForLoan(ctx context.Context, loanID int64) (string, error)
}

type NotificationHistoryStore interface {
	Exists(ctx context.Context, loanID int64, typ domain.NotificationType, periodKey string) (bool, error)
	Insert(ctx context.Context, h *domain.NotificationHistory) error
}

// Messenger is the external chat-dispatch collaborator. Message formatting
// for the channel lives on the other side of this interface.
type Messenger interface {
	Send(ctx context.Context, channel, text string) error
}

// DedupeCache is the redis fast path in front of the notification history
// table. A nil cache is fine; the history unique index still prevents
// duplicates on its own.
type DedupeCache interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
}

// RunSummary is the structured result of one milestone run. The scheduler
// never throws for a single bad loan; it counts.
type RunSummary struct {
	Milestone domain.NotificationType `json:"milestone"`
	PeriodKey string                  `json:"period_key"`
	Processed int                     `json:"processed"`
	Sent      int                     `json:"sent"`
	Skipped   int                     `json:"skipped"`
	Failed    int                     `json:"failed"`
	Errors    []string                `json:"errors,omitempty"`
}

// NotifierService selects the loans due a billing milestone and dispatches at
// most one message per (loan, milestone, period). The notification_history
// unique index is the dedupe backstop; redis fronts it to keep repeated runs
// cheap.
type NotifierService struct {
	loans     NotifierLoanStore
	history   NotificationHistoryStore
	messenger Messenger
	redis     DedupeCache

	reminderDaysAhead int
	preDueDaysAhead   int
}

func NewNotifierService(loans NotifierLoanStore, history NotificationHistoryStore, messenger Messenger, redis DedupeCache, reminderDaysAhead, preDueDaysAhead int) *NotifierService {
	return &NotifierService{
		loans:             loans,
		history:           history,
		messenger:         messenger,
		redis:             redis,
		reminderDaysAhead: reminderDaysAhead,
		preDueDaysAhead:   preDueDaysAhead,
	}
}

const dedupeCacheTTL = 48 * time.Hour

func (s *NotifierService) Run(ctx context.Context, milestone domain.NotificationType, now time.Time) (*RunSummary, error) {
	daysAhead := 0
	switch milestone {
	case domain.NotificationBillingReminder:
		daysAhead = s.reminderDaysAhead
	case domain.NotificationPreDue:
		daysAhead = s.preDueDaysAhead
	case domain.NotificationDueDate, domain.NotificationOverdue:
	default:
		return nil, &domain.ValidationError{Field: "milestone", Message: fmt.Sprintf("unknown milestone %q", milestone)}
	}

	period := domain.PeriodKey(milestone, now)
	summary := &RunSummary{Milestone: milestone, PeriodKey: period}

	loans, err := s.loans.ForMilestone(ctx, milestone, now, daysAhead)
	if err != nil {
		return nil, &domain.ProcessingError{Op: "select loans for " + string(milestone), Cause: err}
	}

	for _, loan := range loans {
		summary.Processed++
		s.notifyLoan(ctx, &loan, milestone, period, summary)
	}

	log.Printf("notifier %s %s: processed=%d sent=%d skipped=%d failed=%d",
		milestone, period, summary.Processed, summary.Sent, summary.Skipped, summary.Failed)
	return summary, nil
}

// notifyLoan handles one loan in isolation: its failure lands in the summary
// and never aborts the batch.
func (s *NotifierService) notifyLoan(ctx context.Context, loan *domain.Loan, milestone domain.NotificationType, period string, summary *RunSummary) {
	var dedupeKey string
	if s.redis != nil {
		dedupeKey = fmt.Sprintf("notify:%d:%s:%s", loan.ID, milestone, period)
		fresh, err := s.redis.SetNX(ctx, dedupeKey, "1", dedupeCacheTTL)
		if err != nil {
			// cache down, the history table still protects us
			log.Printf("notifier %s: redis dedupe check failed for loan %d: %v", milestone, loan.ID, err)
			dedupeKey = ""
		} else if !fresh {
			summary.Skipped++
			return
		}
	}

	exists, err := s.history.Exists(ctx, loan.ID, milestone, period)
	if err != nil {
		s.releaseDedupe(ctx, dedupeKey)
		summary.Failed++
		summary.Errors = append(summary.Errors, fmt.Sprintf("loan %d: history check: %v", loan.ID, err))
		return
	}
	if exists {
		summary.Skipped++
		return
	}

	channel, err := s.loans.ChatChannelForLoan(ctx, loan.ID)
	if err != nil || channel == "" {
		s.releaseDedupe(ctx, dedupeKey)
		summary.Failed++
		summary.Errors = append(summary.Errors, fmt.Sprintf("loan %d: no chat channel", loan.ID))
		log.Printf("notifier %s: loan %d has no chat channel, skipping", milestone, loan.ID)
		return
	}

	text := renderMilestoneMessage(milestone, loan)
	sendErr := s.messenger.Send(ctx, channel, text)

	h := &domain.NotificationHistory{
		LoanID:    loan.ID,
		Type:      milestone,
		PeriodKey: period,
		Sent:      sendErr == nil,
	}
	if sendErr != nil {
		msg := sendErr.Error()
		h.Error = &msg
	}

	if err := s.history.Insert(ctx, h); err != nil {
		if errors.Is(err, repository.ErrDuplicateNotification) {
			// a concurrent run of the same job got there first
			summary.Skipped++
			return
		}
		s.releaseDedupe(ctx, dedupeKey)
		summary.Failed++
		summary.Errors = append(summary.Errors, fmt.Sprintf("loan %d: record history: %v", loan.ID, err))
		return
	}

	if sendErr != nil {
		summary.Failed++
		summary.Errors = append(summary.Errors, fmt.Sprintf("loan %d: dispatch: %v", loan.ID, sendErr))
		return
	}
	summary.Sent++
}

// releaseDedupe frees a cache slot claimed before the outcome was known. A
// failure that recorded no history row must leave the next run free to try
// again; only a written history row (sent or not) keeps the slot.
func (s *NotifierService) releaseDedupe(ctx context.Context, key string) {
	if s.redis == nil || key == "" {
		return
	}
	if err := s.redis.Del(ctx, key); err != nil {
		log.Printf("notifier: failed to release dedupe key %s: %v", key, err)
	}
}

func renderMilestoneMessage(milestone domain.NotificationType, loan *domain.Loan) string {
	balance := loan.OutstandingBalance.StringFixed(2)
	switch milestone {
	case domain.NotificationBillingReminder:
		return fmt.Sprintf("Reminder: your loan %s has an upcoming payment. Outstanding balance: %s.", loan.Number, balance)
	case domain.NotificationPreDue:
		return fmt.Sprintf("Your loan %s payment is due soon (day %d). Outstanding balance: %s.", loan.Number, loan.DueDay, balance)
	case domain.NotificationDueDate:
		return fmt.Sprintf("Your loan %s payment is due today. Outstanding balance: %s.", loan.Number, balance)
	case domain.NotificationOverdue:
		return fmt.Sprintf("Your loan %s is overdue. Outstanding balance: %s. Please pay as soon as possible.", loan.Number, balance)
	default:
		return fmt.Sprintf("Update on your loan %s. Outstanding balance: %s.", loan.Number, balance)
	}
}
