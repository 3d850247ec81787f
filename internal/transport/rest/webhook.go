package rest

import (
	"errors"
	"log"
	"net/http"

	"loanster-core/internal/domain"
)

// receiveWebhook accepts a verified bank-transfer event. The provider always
// gets a success acknowledgement for a well-formed event, including when
// processing failed internally: failures are staged or logged here, never
// bounced back to trigger a retry storm.
func (h *Handler) receiveWebhook(w http.ResponseWriter, r *http.Request) {
	vp, err := ValidateWebhookEvent(r)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	outcome, err := h.webhook.HandleVerifiedPayment(r.Context(), *vp)
	if err != nil {
		var valErr *domain.ValidationError
		if errors.As(err, &valErr) {
			RespondDomainError(w, err)
			return
		}
		// acknowledge anyway; the event is logged for operators
		log.Printf("webhook %s: unhandled processing error: %v", vp.ReferenceID, err)
		Success(w, "event received", map[string]string{"status": "failed"})
		return
	}

	Success(w, "event received", outcome)
}
