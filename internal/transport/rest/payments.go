package rest

import (
	"net/http"
)

// submitPayment applies a manually entered payment through the ledger. A
// replayed reference ID returns the original result with duplicate=true.
func (h *Handler) submitPayment(w http.ResponseWriter, r *http.Request) {
	req, err := ValidatePaymentRequest(r)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	result, err := h.ledger.ProcessPayment(r.Context(), *req)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	if result.Duplicate {
		Success(w, "payment already processed", result)
		return
	}
	Success(w, "payment processed", result)
}
