package rest

import (
	"net/http"
	"time"

	"loanster-core/internal/domain"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) runNotificationJob(w http.ResponseWriter, r *http.Request) {
	milestone := domain.NotificationType(chi.URLParam(r, "milestone"))
	switch milestone {
	case domain.NotificationBillingReminder, domain.NotificationPreDue, domain.NotificationDueDate, domain.NotificationOverdue:
	default:
		ErrorBadRequest(w, "unknown milestone")
		return
	}

	summary, err := h.notifier.Run(r.Context(), milestone, time.Now())
	if err != nil {
		RespondDomainError(w, err)
		return
	}
	Success(w, "notification run complete", summary)
}
