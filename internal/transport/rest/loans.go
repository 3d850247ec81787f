package rest

import (
	"net/http"
)

func (h *Handler) getLoan(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r, "loan_id")
	if !ok {
		ErrorBadRequest(w, "invalid loan id")
		return
	}

	loan, err := h.loans.GetByID(r.Context(), id)
	if err != nil {
		RespondDomainError(w, err)
		return
	}
	Success(w, "loan", loan)
}

func (h *Handler) listLoanTransactions(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r, "loan_id")
	if !ok {
		ErrorBadRequest(w, "invalid loan id")
		return
	}

	if _, err := h.loans.GetByID(r.Context(), id); err != nil {
		RespondDomainError(w, err)
		return
	}

	txns, err := h.transactions.ListByLoan(r.Context(), id)
	if err != nil {
		RespondDomainError(w, err)
		return
	}
	Success(w, "loan transactions", txns)
}
