package rest

import (
	"encoding/json"
	"net/http"

	"loanster-core/internal/domain"
)

func (h *Handler) listPending(w http.ResponseWriter, r *http.Request) {
	var status *domain.PendingPaymentStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		s := domain.PendingPaymentStatus(raw)
		switch s {
		case domain.PendingStatusUnmatched, domain.PendingStatusMatched, domain.PendingStatusProcessed, domain.PendingStatusRejected:
			status = &s
		default:
			ErrorBadRequest(w, "unknown status filter")
			return
		}
	}

	items, err := h.pending.List(r.Context(), status)
	if err != nil {
		RespondDomainError(w, err)
		return
	}
	Success(w, "pending payments", items)
}

func (h *Handler) getPending(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r, "pending_id")
	if !ok {
		ErrorBadRequest(w, "invalid pending payment id")
		return
	}

	p, err := h.pending.Get(r.Context(), id)
	if err != nil {
		RespondDomainError(w, err)
		return
	}
	Success(w, "pending payment", p)
}

type matchRequest struct {
	LoanID     int64   `json:"loan_id"`
	OperatorID int64   `json:"operator_id"`
	Notes      *string `json:"notes,omitempty"`
}

func (h *Handler) matchPending(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r, "pending_id")
	if !ok {
		ErrorBadRequest(w, "invalid pending payment id")
		return
	}

	var body matchRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		ErrorBadRequest(w, "invalid JSON payload")
		return
	}
	if body.LoanID <= 0 {
		ErrorBadRequest(w, "loan_id is required")
		return
	}
	if body.OperatorID <= 0 {
		ErrorBadRequest(w, "operator_id is required")
		return
	}

	p, err := h.pending.Match(r.Context(), id, body.LoanID, body.OperatorID, body.Notes)
	if err != nil {
		RespondDomainError(w, err)
		return
	}
	Success(w, "pending payment matched", p)
}

type processRequest struct {
	OperatorID int64 `json:"operator_id"`
}

func (h *Handler) processPending(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r, "pending_id")
	if !ok {
		ErrorBadRequest(w, "invalid pending payment id")
		return
	}

	var body processRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		ErrorBadRequest(w, "invalid JSON payload")
		return
	}
	if body.OperatorID <= 0 {
		ErrorBadRequest(w, "operator_id is required")
		return
	}

	result, err := h.pending.Process(r.Context(), id, body.OperatorID)
	if err != nil {
		RespondDomainError(w, err)
		return
	}
	Success(w, "pending payment processed", result)
}

type rejectRequest struct {
	OperatorID int64  `json:"operator_id"`
	Reason     string `json:"reason"`
}

func (h *Handler) rejectPending(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r, "pending_id")
	if !ok {
		ErrorBadRequest(w, "invalid pending payment id")
		return
	}

	var body rejectRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		ErrorBadRequest(w, "invalid JSON payload")
		return
	}
	if body.OperatorID <= 0 {
		ErrorBadRequest(w, "operator_id is required")
		return
	}

	p, err := h.pending.Reject(r.Context(), id, body.OperatorID, body.Reason)
	if err != nil {
		RespondDomainError(w, err)
		return
	}
	Success(w, "pending payment rejected", p)
}
