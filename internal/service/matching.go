package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"

	"loanster-core/internal/clients"
	"loanster-core/internal/domain"
)

type MatcherStore interface {
	GetByNumber(ctx context.Context, number string) (*domain.Loan, error)
	OpenBySenderAccount(ctx context.Context, account string) ([]domain.Loan, error)
}

type PendingStore interface {
	Create(ctx context.Context, p *domain.PendingPayment) (*domain.PendingPayment, error)
}

type PaymentProcessor interface {
	ProcessPayment(ctx context.Context, req PaymentRequest) (*PaymentResult, error)
}

const (
	WebhookOutcomeProcessed = "processed"
	WebhookOutcomeDuplicate = "duplicate"
	WebhookOutcomePending   = "pending"
	WebhookOutcomeFailed    = "failed"
)

// WebhookOutcome is what a verified-payment event resolved to. It is always
// an acknowledgement: even Failed means "received, logged", never a delivery
// failure the upstream provider should retry.
type WebhookOutcome struct {
	Status  string                 `json:"status"`
	Result  *PaymentResult         `json:"result,omitempty"`
	Pending *domain.PendingPayment `json:"-"`

	PendingID *int64 `json:"pending_id,omitempty"`
}

// MatchingService attributes externally verified payments to loans. Matching
// is deterministic: an explicit loan number in the transfer narrative wins,
// then a sender account registered to exactly one open loan. Anything less
// confident goes to the manual reconciliation queue.
type MatchingService struct {
	loans   MatcherStore
	pending PendingStore
	ledger  PaymentProcessor
	ops     *clients.OpsFeedClient

	loanRef *regexp.Regexp
}

func NewMatchingService(loans MatcherStore, pending PendingStore, ledger PaymentProcessor, ops *clients.OpsFeedClient, refPrefix string) *MatchingService {
	if refPrefix == "" {
		refPrefix = "LN"
	}
	return &MatchingService{
		loans:   loans,
		pending: pending,
		ledger:  ledger,
		ops:     ops,
		loanRef: regexp.MustCompile(fmt.Sprintf(`\b%s-?\d{3,}\b`, regexp.QuoteMeta(refPrefix))),
	}
}

// Match finds the single loan a verified payment is intended for, or returns
// a MatchingError.
func (s *MatchingService) Match(ctx context.Context, vp domain.VerifiedPayment) (*domain.Loan, error) {
	if number := s.loanRef.FindString(vp.Narrative); number != "" {
		loan, err := s.loans.GetByNumber(ctx, number)
		var notFound *domain.NotFoundError
		if err != nil && !errors.As(err, &notFound) {
			return nil, err
		}
		if loan != nil {
			return loan, nil
		}
		// fall through: the narrative mentioned something loan-shaped
		// that does not exist, try the sender account instead
	}

	if vp.SenderAccount != "" {
		loans, err := s.loans.OpenBySenderAccount(ctx, vp.SenderAccount)
		if err != nil {
			return nil, err
		}
		switch len(loans) {
		case 1:
			return &loans[0], nil
		case 0:
			return nil, &domain.MatchingError{ReferenceID: vp.ReferenceID, Reason: "no open loan for sender account"}
		default:
			return nil, &domain.MatchingError{
				ReferenceID: vp.ReferenceID,
				Reason:      fmt.Sprintf("sender account maps to %d open loans", len(loans)),
			}
		}
	}

	return nil, &domain.MatchingError{ReferenceID: vp.ReferenceID, Reason: "no loan reference and no sender account"}
}

// HandleVerifiedPayment runs the full webhook path: match, apply through the
// ledger, or stage for manual reconciliation. The returned outcome is always
// an acknowledgement; internal failures are carried in the outcome and
// logged, never surfaced as delivery errors.
func (s *MatchingService) HandleVerifiedPayment(ctx context.Context, vp domain.VerifiedPayment) (*WebhookOutcome, error) {
	if vp.ReferenceID == "" {
		return nil, &domain.ValidationError{Field: "reference_id", Message: "reference_id is required"}
	}
	if vp.Amount.Sign() <= 0 {
		return nil, &domain.ValidationError{Field: "amount", Message: "amount must be positive"}
	}
	if vp.PaidAt.IsZero() {
		return nil, &domain.ValidationError{Field: "paid_at", Message: "paid_at is required"}
	}

	loan, err := s.Match(ctx, vp)
	if err != nil {
		var matchErr *domain.MatchingError
		if errors.As(err, &matchErr) {
			return s.stage(ctx, vp, matchErr.Reason)
		}
		log.Printf("webhook %s: match lookup error: %v", vp.ReferenceID, err)
		return &WebhookOutcome{Status: WebhookOutcomeFailed}, nil
	}

	result, err := s.ledger.ProcessPayment(ctx, PaymentRequest{
		ReferenceID: vp.ReferenceID,
		LoanID:      loan.ID,
		Amount:      vp.Amount,
		PaymentDate: vp.PaidAt,
		Method:      "bank_transfer",
		Source:      "webhook",
	})
	if err != nil {
		// A ledger failure is the final outcome for this event; the
		// provider still gets an acknowledgement.
		log.Printf("webhook %s: ledger error for loan %d: %v", vp.ReferenceID, loan.ID, err)
		return &WebhookOutcome{Status: WebhookOutcomeFailed}, nil
	}

	status := WebhookOutcomeProcessed
	if result.Duplicate {
		status = WebhookOutcomeDuplicate
	}
	return &WebhookOutcome{Status: status, Result: result}, nil
}

func (s *MatchingService) stage(ctx context.Context, vp domain.VerifiedPayment, reason string) (*WebhookOutcome, error) {
	p := &domain.PendingPayment{
		ReferenceID: vp.ReferenceID,
		Amount:      vp.Amount,
		PaidAt:      vp.PaidAt,
		RawPayload:  vp.RawPayload,
		Status:      domain.PendingStatusUnmatched,
	}
	if vp.SenderName != "" {
		p.SenderName = &vp.SenderName
	}
	if vp.SenderAccount != "" {
		p.SenderAccount = &vp.SenderAccount
	}
	if vp.ReceiverAccount != "" {
		p.ReceiverAccount = &vp.ReceiverAccount
	}
	if vp.BankCode != "" {
		p.BankCode = &vp.BankCode
	}
	note := "unmatched: " + reason
	p.Notes = &note

	staged, err := s.pending.Create(ctx, p)
	if err != nil {
		log.Printf("webhook %s: failed to stage pending payment: %v", vp.ReferenceID, err)
		return &WebhookOutcome{Status: WebhookOutcomeFailed}, nil
	}

	if s.ops != nil {
		s.ops.PendingPaymentStaged(staged)
	}

	log.Printf("webhook %s: staged for manual reconciliation (%s)", vp.ReferenceID, reason)
	id := staged.ID
	return &WebhookOutcome{Status: WebhookOutcomePending, Pending: staged, PendingID: &id}, nil
}
