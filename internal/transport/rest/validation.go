package rest

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"loanster-core/internal/domain"
	"loanster-core/internal/service"

	"github.com/shopspring/decimal"
)

type paymentRequestBody struct {
	ReferenceID string          `json:"reference_id"`
	LoanID      int64           `json:"loan_id"`
	Amount      decimal.Decimal `json:"amount"`
	PaymentDate string          `json:"payment_date"`
	Method      string          `json:"method,omitempty"`
	Source      string          `json:"source,omitempty"`
	Notes       string          `json:"notes,omitempty"`
	OperatorID  *int64          `json:"operator_id,omitempty"`
}

// ValidatePaymentRequest decodes and validates a manual payment submission.
// Deep validation (amount sign, reference presence) belongs to the ledger;
// this layer only rejects what cannot even be parsed.
func ValidatePaymentRequest(r *http.Request) (*service.PaymentRequest, error) {
	var body paymentRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return nil, &domain.ValidationError{Field: "body", Message: "invalid JSON payload"}
	}

	paymentDate, err := parseDate(body.PaymentDate)
	if err != nil {
		return nil, &domain.ValidationError{Field: "payment_date", Message: "expected YYYY-MM-DD or RFC3339"}
	}

	source := body.Source
	if source == "" {
		source = "manual"
	}

	return &service.PaymentRequest{
		ReferenceID: body.ReferenceID,
		LoanID:      body.LoanID,
		Amount:      body.Amount,
		PaymentDate: paymentDate,
		Method:      body.Method,
		Source:      source,
		Notes:       body.Notes,
		OperatorID:  body.OperatorID,
	}, nil
}

type webhookEventBody struct {
	ReferenceID     string          `json:"reference_id"`
	Amount          decimal.Decimal `json:"amount"`
	PaidAt          string          `json:"paid_at"`
	SenderName      string          `json:"sender_name,omitempty"`
	SenderAccount   string          `json:"sender_account,omitempty"`
	ReceiverAccount string          `json:"receiver_account,omitempty"`
	BankCode        string          `json:"bank_code,omitempty"`
	Narrative       string          `json:"narrative,omitempty"`
}

// ValidateWebhookEvent decodes a verified-payment event, keeping the raw
// payload for the reconciliation queue.
func ValidateWebhookEvent(r *http.Request) (*domain.VerifiedPayment, error) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, &domain.ValidationError{Field: "body", Message: "failed to read payload"}
	}

	var body webhookEventBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, &domain.ValidationError{Field: "body", Message: "invalid JSON payload"}
	}

	paidAt, err := parseDate(body.PaidAt)
	if err != nil {
		return nil, &domain.ValidationError{Field: "paid_at", Message: "expected YYYY-MM-DD or RFC3339"}
	}

	return &domain.VerifiedPayment{
		ReferenceID:     body.ReferenceID,
		Amount:          body.Amount,
		PaidAt:          paidAt,
		SenderName:      body.SenderName,
		SenderAccount:   body.SenderAccount,
		ReceiverAccount: body.ReceiverAccount,
		BankCode:        body.BankCode,
		Narrative:       body.Narrative,
		RawPayload:      raw,
	}, nil
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}
