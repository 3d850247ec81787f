package jobs

import (
	"context"
	"fmt"
	"log"
	"time"

	"loanster-core/internal/config"
	"loanster-core/internal/domain"
	"loanster-core/internal/service"

	"github.com/robfig/cron/v3"
)

type Notifier interface {
	Run(ctx context.Context, milestone domain.NotificationType, now time.Time) (*service.RunSummary, error)
}

const jobTimeout = 5 * time.Minute

// Scheduler owns the cron instance driving the four notification milestones.
// It is created and stopped by the composition root; there is no package
// level job state.
type Scheduler struct {
	cron     *cron.Cron
	notifier Notifier
}

func NewScheduler(notifier Notifier, cfg config.ScheduleConfig) (*Scheduler, error) {
	s := &Scheduler{
		cron:     cron.New(),
		notifier: notifier,
	}

	entries := []struct {
		spec      string
		milestone domain.NotificationType
	}{
		{cfg.BillingReminder, domain.NotificationBillingReminder},
		{cfg.PreDue, domain.NotificationPreDue},
		{cfg.DueDate, domain.NotificationDueDate},
		{cfg.Overdue, domain.NotificationOverdue},
	}

	for _, e := range entries {
		milestone := e.milestone
		if _, err := s.cron.AddFunc(e.spec, func() { s.runMilestone(milestone) }); err != nil {
			return nil, fmt.Errorf("schedule %s (%q): %w", milestone, e.spec, err)
		}
	}

	return s, nil
}

func (s *Scheduler) runMilestone(milestone domain.NotificationType) {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	summary, err := s.notifier.Run(ctx, milestone, time.Now())
	if err != nil {
		log.Printf("scheduler %s: run failed: %v", milestone, err)
		return
	}
	if summary.Failed > 0 {
		log.Printf("scheduler %s: %d loans failed: %v", milestone, summary.Failed, summary.Errors)
	}
}

func (s *Scheduler) Start() {
	s.cron.Start()
	log.Printf("notification scheduler started with %d jobs", len(s.cron.Entries()))
}

// Stop halts scheduling and returns a context that is done once in-flight
// jobs finish.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
