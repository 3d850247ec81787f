package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"loanster-core/internal/domain"
	"loanster-core/internal/repository"
	"loanster-core/internal/service"

	"github.com/shopspring/decimal"
)

type stubLedger struct {
	result *service.PaymentResult
	err    error
	last   *service.PaymentRequest
}

func (s *stubLedger) ProcessPayment(ctx context.Context, req service.PaymentRequest) (*service.PaymentResult, error) {
	s.last = &req
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

type stubWebhook struct {
	outcome *service.WebhookOutcome
	err     error
}

func (s *stubWebhook) HandleVerifiedPayment(ctx context.Context, vp domain.VerifiedPayment) (*service.WebhookOutcome, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.outcome, nil
}

type stubPending struct {
	item *domain.PendingPayment
	err  error
}

func (s *stubPending) List(ctx context.Context, status *domain.PendingPaymentStatus) ([]domain.PendingPayment, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.item == nil {
		return nil, nil
	}
	return []domain.PendingPayment{*s.item}, nil
}

func (s *stubPending) Get(ctx context.Context, id int64) (*domain.PendingPayment, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.item, nil
}

func (s *stubPending) Match(ctx context.Context, id, loanID, operatorID int64, notes *string) (*domain.PendingPayment, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.item, nil
}

func (s *stubPending) Process(ctx context.Context, id, operatorID int64) (*service.PaymentResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &service.PaymentResult{}, nil
}

func (s *stubPending) Reject(ctx context.Context, id, operatorID int64, reason string) (*domain.PendingPayment, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.item, nil
}

type stubNotifier struct {
	summary *service.RunSummary
	err     error
}

func (s *stubNotifier) Run(ctx context.Context, milestone domain.NotificationType, now time.Time) (*service.RunSummary, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.summary, nil
}

type stubLoans struct {
	loan *domain.Loan
}

func (s *stubLoans) GetByID(ctx context.Context, id int64) (*domain.Loan, error) {
	if s.loan == nil {
		return nil, &domain.NotFoundError{Entity: "loan", ID: "99"}
	}
	return s.loan, nil
}

type stubTransactions struct{}

func (s *stubTransactions) ListByLoan(ctx context.Context, loanID int64) ([]domain.Transaction, error) {
	return nil, nil
}

type stubExporter struct{}

func (s *stubExporter) StartTransactionsExport(ctx context.Context, filter repository.TransactionsFilter) (string, error) {
	return "exports:abc", nil
}

func (s *stubExporter) StartPendingExport(ctx context.Context, status *domain.PendingPaymentStatus) (string, error) {
	return "exports:def", nil
}

func (s *stubExporter) GetExports(ctx context.Context) ([]service.ExportStatus, error) {
	return nil, nil
}

func (s *stubExporter) GetExport(ctx context.Context, exportID string) (*service.ExportStatus, error) {
	return &service.ExportStatus{Key: exportID}, nil
}

type testDeps struct {
	ledger   *stubLedger
	webhook  *stubWebhook
	pending  *stubPending
	notifier *stubNotifier
	loans    *stubLoans
}

func newTestRouter(deps testDeps) http.Handler {
	if deps.ledger == nil {
		deps.ledger = &stubLedger{result: &service.PaymentResult{}}
	}
	if deps.webhook == nil {
		deps.webhook = &stubWebhook{outcome: &service.WebhookOutcome{Status: service.WebhookOutcomeProcessed}}
	}
	if deps.pending == nil {
		deps.pending = &stubPending{}
	}
	if deps.notifier == nil {
		deps.notifier = &stubNotifier{summary: &service.RunSummary{}}
	}
	if deps.loans == nil {
		deps.loans = &stubLoans{}
	}
	h := NewHandler(deps.ledger, deps.webhook, deps.pending, deps.notifier, deps.loans, &stubTransactions{}, &stubExporter{})
	return h.InitRouter()
}

func doJSON(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestSubmitPayment_OK(t *testing.T) {
	ledger := &stubLedger{result: &service.PaymentResult{
		BalanceAfter: decimal.RequireFromString("9123.29"),
		NewStatus:    domain.LoanStatusActive,
	}}
	router := newTestRouter(testDeps{ledger: ledger})

	rec := doJSON(t, router, http.MethodPost, "/payments",
		`{"reference_id":"BT-001","loan_id":1,"amount":"1000","payment_date":"2026-01-31"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d; want 200; body %s", rec.Code, rec.Body.String())
	}
	if ledger.last == nil {
		t.Fatal("ledger not called")
	}
	if ledger.last.ReferenceID != "BT-001" || ledger.last.Source != "manual" {
		t.Errorf("unexpected request: %+v", ledger.last)
	}
}

func TestSubmitPayment_DomainErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"validation", &domain.ValidationError{Field: "amount", Message: "must be positive"}, http.StatusBadRequest},
		{"not found", &domain.NotFoundError{Entity: "loan", ID: "9"}, http.StatusNotFound},
		{"closed loan", &domain.InvalidStatusError{Entity: "loan", Status: "closed", Reason: "no payments"}, http.StatusConflict},
		{"processing", &domain.ProcessingError{Op: "apply payment"}, http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := newTestRouter(testDeps{ledger: &stubLedger{err: tc.err}})
			rec := doJSON(t, router, http.MethodPost, "/payments",
				`{"reference_id":"BT-001","loan_id":1,"amount":"1000","payment_date":"2026-01-31"}`)
			if rec.Code != tc.want {
				t.Errorf("status = %d; want %d", rec.Code, tc.want)
			}
		})
	}
}

func TestSubmitPayment_MalformedBody(t *testing.T) {
	router := newTestRouter(testDeps{})
	rec := doJSON(t, router, http.MethodPost, "/payments", `{not json`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d; want 400", rec.Code)
	}
}

func TestReceiveWebhook_AlwaysAcks(t *testing.T) {
	body := `{"reference_id":"BT-100","amount":"500","paid_at":"2026-03-01","narrative":"LN-10042"}`

	cases := []struct {
		name    string
		webhook *stubWebhook
		status  string
	}{
		{"processed", &stubWebhook{outcome: &service.WebhookOutcome{Status: service.WebhookOutcomeProcessed}}, "processed"},
		{"duplicate", &stubWebhook{outcome: &service.WebhookOutcome{Status: service.WebhookOutcomeDuplicate}}, "duplicate"},
		{"pending", &stubWebhook{outcome: &service.WebhookOutcome{Status: service.WebhookOutcomePending}}, "pending"},
		{"internal failure", &stubWebhook{err: context.DeadlineExceeded}, "failed"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := newTestRouter(testDeps{webhook: tc.webhook})
			rec := doJSON(t, router, http.MethodPost, "/webhooks/bank-transfer", body)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d; the provider must always get 200 for a well-formed event", rec.Code)
			}
			if !strings.Contains(rec.Body.String(), tc.status) {
				t.Errorf("body %s does not carry outcome %q", rec.Body.String(), tc.status)
			}
		})
	}
}

func TestReceiveWebhook_MalformedEventRejected(t *testing.T) {
	router := newTestRouter(testDeps{})
	rec := doJSON(t, router, http.MethodPost, "/webhooks/bank-transfer", `{"amount":"oops"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d; want 400", rec.Code)
	}
}

func TestMatchPending_RequiresLoanAndOperator(t *testing.T) {
	router := newTestRouter(testDeps{})

	rec := doJSON(t, router, http.MethodPost, "/pending/1/match", `{"operator_id":42}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing loan_id: status = %d; want 400", rec.Code)
	}

	rec = doJSON(t, router, http.MethodPost, "/pending/1/match", `{"loan_id":10}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing operator_id: status = %d; want 400", rec.Code)
	}
}

func TestListPending_StatusFilter(t *testing.T) {
	router := newTestRouter(testDeps{})

	rec := doJSON(t, router, http.MethodGet, "/pending/?status=unmatched", "")
	if rec.Code != http.StatusOK {
		t.Errorf("valid filter: status = %d; want 200", rec.Code)
	}

	rec = doJSON(t, router, http.MethodGet, "/pending/?status=bogus", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bogus filter: status = %d; want 400", rec.Code)
	}
}

func TestRunNotificationJob_MilestoneValidation(t *testing.T) {
	notifier := &stubNotifier{summary: &service.RunSummary{Milestone: domain.NotificationDueDate, Sent: 3}}
	router := newTestRouter(testDeps{notifier: notifier})

	rec := doJSON(t, router, http.MethodPost, "/notifications/run/due_date", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d; want 200; body %s", rec.Code, rec.Body.String())
	}

	var resp APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "success" {
		t.Errorf("status = %s; want success", resp.Status)
	}

	rec = doJSON(t, router, http.MethodPost, "/notifications/run/quarterly", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown milestone: status = %d; want 400", rec.Code)
	}
}

func TestGetLoan_NotFound(t *testing.T) {
	router := newTestRouter(testDeps{loans: &stubLoans{}})

	rec := doJSON(t, router, http.MethodGet, "/loans/99", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d; want 404", rec.Code)
	}

	rec = doJSON(t, router, http.MethodGet, "/loans/abc", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("non-numeric id: status = %d; want 400", rec.Code)
	}
}

func TestExportTransactions_Accepted(t *testing.T) {
	router := newTestRouter(testDeps{})

	rec := doJSON(t, router, http.MethodPost, "/exports/transactions", `{"loan_id":1,"from_date":"2026-01-01"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d; want 202; body %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "exports:abc") {
		t.Errorf("body %s does not carry the export id", rec.Body.String())
	}
}
