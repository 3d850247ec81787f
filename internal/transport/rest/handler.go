package rest

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"loanster-core/internal/domain"
	"loanster-core/internal/repository"
	"loanster-core/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type PaymentProcessor interface {
	ProcessPayment(ctx context.Context, req service.PaymentRequest) (*service.PaymentResult, error)
}

type WebhookReceiver interface {
	HandleVerifiedPayment(ctx context.Context, vp domain.VerifiedPayment) (*service.WebhookOutcome, error)
}

type PendingAdmin interface {
	List(ctx context.Context, status *domain.PendingPaymentStatus) ([]domain.PendingPayment, error)
	Get(ctx context.Context, id int64) (*domain.PendingPayment, error)
	Match(ctx context.Context, id, loanID, operatorID int64, notes *string) (*domain.PendingPayment, error)
	Process(ctx context.Context, id, operatorID int64) (*service.PaymentResult, error)
	Reject(ctx context.Context, id, operatorID int64, reason string) (*domain.PendingPayment, error)
}

type NotificationRunner interface {
	Run(ctx context.Context, milestone domain.NotificationType, now time.Time) (*service.RunSummary, error)
}

type LoanQuery interface {
	GetByID(ctx context.Context, id int64) (*domain.Loan, error)
}

type TransactionQuery interface {
	ListByLoan(ctx context.Context, loanID int64) ([]domain.Transaction, error)
}

type Exporter interface {
	StartTransactionsExport(ctx context.Context, filter repository.TransactionsFilter) (string, error)
	StartPendingExport(ctx context.Context, status *domain.PendingPaymentStatus) (string, error)
	GetExports(ctx context.Context) ([]service.ExportStatus, error)
	GetExport(ctx context.Context, exportID string) (*service.ExportStatus, error)
}

type Handler struct {
	ledger       PaymentProcessor
	webhook      WebhookReceiver
	pending      PendingAdmin
	notifier     NotificationRunner
	loans        LoanQuery
	transactions TransactionQuery
	exports      Exporter
}

func NewHandler(ledger PaymentProcessor, webhook WebhookReceiver, pending PendingAdmin, notifier NotificationRunner, loans LoanQuery, transactions TransactionQuery, exports Exporter) *Handler {
	return &Handler{
		ledger:       ledger,
		webhook:      webhook,
		pending:      pending,
		notifier:     notifier,
		loans:        loans,
		transactions: transactions,
		exports:      exports,
	}
}

func (h *Handler) InitRouter() *chi.Mux {
	return h.InitRouterWithAuth(nil)
}

func (h *Handler) InitRouterWithAuth(authMiddleware func(http.Handler) http.Handler) *chi.Mux {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Logger,
		middleware.Recoverer,
		middleware.Timeout(60*time.Second),
	)

	if authMiddleware != nil {
		r.Use(authMiddleware)
	}

	r.Post("/payments", h.submitPayment)
	r.Post("/webhooks/bank-transfer", h.receiveWebhook)

	r.Route("/loans", func(r chi.Router) {
		r.Get("/{loan_id}", h.getLoan)
		r.Get("/{loan_id}/transactions", h.listLoanTransactions)
	})

	r.Route("/pending", func(r chi.Router) {
		r.Get("/", h.listPending)
		r.Get("/{pending_id}", h.getPending)
		r.Post("/{pending_id}/match", h.matchPending)
		r.Post("/{pending_id}/process", h.processPending)
		r.Post("/{pending_id}/reject", h.rejectPending)
	})

	r.Post("/notifications/run/{milestone}", h.runNotificationJob)

	r.Route("/exports", func(r chi.Router) {
		r.Get("/", h.listExports)
		r.Get("/{export_id}", h.getExport)
		r.Post("/transactions", h.exportTransactions)
		r.Post("/pending", h.exportPending)
	})

	return r
}

func parseID(r *http.Request, param string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
