package service

import (
	"context"
	"strconv"

	"loanster-core/internal/domain"

	"github.com/google/uuid"
)

type PendingRepository interface {
	GetByID(ctx context.Context, id int64) (*domain.PendingPayment, error)
	List(ctx context.Context, status *domain.PendingPaymentStatus) ([]domain.PendingPayment, error)
	MarkMatched(ctx context.Context, id, loanID, operatorID int64, notes *string) error
	MarkProcessed(ctx context.Context, id int64, transactionID uuid.UUID) error
	MarkRejected(ctx context.Context, id, operatorID int64, reason string) error
}

type LoanReader interface {
	GetByID(ctx context.Context, id int64) (*domain.Loan, error)
}

// PendingService drives the admin resolution workflow over the manual
// reconciliation queue: match a staged payment to a loan, process it through
// the ledger under its original reference ID, or reject it.
type PendingService struct {
	repo   PendingRepository
	loans  LoanReader
	ledger PaymentProcessor
}

func NewPendingService(repo PendingRepository, loans LoanReader, ledger PaymentProcessor) *PendingService {
	return &PendingService{repo: repo, loans: loans, ledger: ledger}
}

func (s *PendingService) List(ctx context.Context, status *domain.PendingPaymentStatus) ([]domain.PendingPayment, error) {
	return s.repo.List(ctx, status)
}

func (s *PendingService) Get(ctx context.Context, id int64) (*domain.PendingPayment, error) {
	return s.repo.GetByID(ctx, id)
}

// Match attributes a staged payment to a loan. Unmatched payments can be
// matched and a matched payment can be rematched while it has not been
// processed; terminal states cannot.
func (s *PendingService) Match(ctx context.Context, id, loanID, operatorID int64, notes *string) (*domain.PendingPayment, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Status != domain.PendingStatusUnmatched && p.Status != domain.PendingStatusMatched {
		return nil, &domain.InvalidStatusError{
			Entity: "pending payment",
			Status: string(p.Status),
			Reason: "only unmatched or matched payments can be matched",
		}
	}

	if _, err := s.loans.GetByID(ctx, loanID); err != nil {
		return nil, err
	}

	if err := s.repo.MarkMatched(ctx, id, loanID, operatorID, notes); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, id)
}

// Process re-submits a matched payment through the ledger, carrying the
// original reference ID so ledger idempotency still applies: a replay of an
// already-processed reference converges on the same transaction.
func (s *PendingService) Process(ctx context.Context, id, operatorID int64) (*PaymentResult, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Status != domain.PendingStatusMatched || p.MatchedLoanID == nil {
		return nil, &domain.InvalidStatusError{
			Entity: "pending payment",
			Status: string(p.Status),
			Reason: "payment must be matched to a loan before processing",
		}
	}

	notes := ""
	if p.Notes != nil {
		notes = *p.Notes
	}

	result, err := s.ledger.ProcessPayment(ctx, PaymentRequest{
		ReferenceID: p.ReferenceID,
		LoanID:      *p.MatchedLoanID,
		Amount:      p.Amount,
		PaymentDate: p.PaidAt,
		Method:      "bank_transfer",
		Source:      "pending_reconciliation",
		Notes:       notes,
		OperatorID:  &operatorID,
	})
	if err != nil {
		return nil, err
	}

	if err := s.repo.MarkProcessed(ctx, id, result.TransactionID); err != nil {
		// The ledger write is committed; failing to flip the queue row is a
		// bookkeeping error, not a payment failure.
		return nil, &domain.ProcessingError{Op: "mark pending payment " + strconv.FormatInt(id, 10) + " processed", Cause: err}
	}
	return result, nil
}

// Reject closes a staged payment with a mandatory reason. Processed payments
// can never be rejected.
func (s *PendingService) Reject(ctx context.Context, id, operatorID int64, reason string) (*domain.PendingPayment, error) {
	if reason == "" {
		return nil, &domain.ValidationError{Field: "reason", Message: "a rejection reason is required"}
	}

	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Status == domain.PendingStatusProcessed || p.Status == domain.PendingStatusRejected {
		return nil, &domain.InvalidStatusError{
			Entity: "pending payment",
			Status: string(p.Status),
			Reason: "payment is already resolved",
		}
	}

	if err := s.repo.MarkRejected(ctx, id, operatorID, reason); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, id)
}
