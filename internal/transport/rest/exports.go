package rest

import (
	"encoding/json"
	"net/http"
	"time"

	"loanster-core/internal/domain"
	"loanster-core/internal/repository"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) listExports(w http.ResponseWriter, r *http.Request) {
	exports, err := h.exports.GetExports(r.Context())
	if err != nil {
		RespondDomainError(w, err)
		return
	}
	Success(w, "exports", exports)
}

func (h *Handler) getExport(w http.ResponseWriter, r *http.Request) {
	exportID := chi.URLParam(r, "export_id")
	if exportID == "" {
		ErrorBadRequest(w, "invalid export id")
		return
	}

	status, err := h.exports.GetExport(r.Context(), exportID)
	if err != nil {
		RespondDomainError(w, err)
		return
	}
	Success(w, "export", status)
}

type transactionsExportRequest struct {
	LoanID   *int64  `json:"loan_id,omitempty"`
	Source   *string `json:"source,omitempty"`
	FromDate *string `json:"from_date,omitempty"`
	ToDate   *string `json:"to_date,omitempty"`
}

func (h *Handler) exportTransactions(w http.ResponseWriter, r *http.Request) {
	var body transactionsExportRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		ErrorBadRequest(w, "invalid JSON payload")
		return
	}

	filter := repository.TransactionsFilter{
		LoanID: body.LoanID,
		Source: body.Source,
	}
	var err error
	if filter.FromDate, err = parseOptionalDate(body.FromDate); err != nil {
		ErrorBadRequest(w, "from_date: expected YYYY-MM-DD or RFC3339")
		return
	}
	if filter.ToDate, err = parseOptionalDate(body.ToDate); err != nil {
		ErrorBadRequest(w, "to_date: expected YYYY-MM-DD or RFC3339")
		return
	}

	exportID, err := h.exports.StartTransactionsExport(r.Context(), filter)
	if err != nil {
		RespondDomainError(w, err)
		return
	}
	SuccessAccepted(w, "export started", map[string]string{"export_id": exportID})
}

type pendingExportRequest struct {
	Status *string `json:"status,omitempty"`
}

func (h *Handler) exportPending(w http.ResponseWriter, r *http.Request) {
	var body pendingExportRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		ErrorBadRequest(w, "invalid JSON payload")
		return
	}

	var status *domain.PendingPaymentStatus
	if body.Status != nil {
		s := domain.PendingPaymentStatus(*body.Status)
		switch s {
		case domain.PendingStatusUnmatched, domain.PendingStatusMatched, domain.PendingStatusProcessed, domain.PendingStatusRejected:
			status = &s
		default:
			ErrorBadRequest(w, "unknown status filter")
			return
		}
	}

	exportID, err := h.exports.StartPendingExport(r.Context(), status)
	if err != nil {
		RespondDomainError(w, err)
		return
	}
	SuccessAccepted(w, "export started", map[string]string{"export_id": exportID})
}

func parseOptionalDate(s *string) (*time.Time, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	t, err := parseDate(*s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
