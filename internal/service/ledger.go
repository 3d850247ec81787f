package service

import (
	"context"
	"errors"
	"log"
	"time"

	"loanster-core/internal/domain"
	"loanster-core/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type LedgerStore interface {
	ExecTx(ctx context.Context, fn func(tx repository.LedgerTx) error) error
	TransactionByReference(ctx context.Context, refID string) (*domain.Transaction, error)
}

type PaymentRequest struct {
	ReferenceID string
	LoanID      int64
	Amount      decimal.Decimal
	PaymentDate time.Time
	Method      string
	Source      string
	Notes       string
	OperatorID  *int64
}

type PaymentResult struct {
	TransactionID uuid.UUID         `json:"transaction_id"`
	Allocation    domain.Allocation `json:"allocation"`
	BalanceAfter  decimal.Decimal   `json:"balance_after"`
	NewStatus     domain.LoanStatus `json:"new_status"`

	// Duplicate marks an idempotent replay: the reference ID had already
	// been committed and this result was rebuilt from the existing
	// transaction. No ledger state changed on this call.
	Duplicate bool `json:"duplicate"`
}

// PostCommitHook runs after the ledger commit, outside the transaction
// boundary. Hooks are best-effort: a failing hook is logged and never undoes
// or fails the committed payment.
type PostCommitHook func(ctx context.Context, loan *domain.Loan, txn *domain.Transaction) error

// LedgerService turns a payment request into exactly one committed
// transaction plus one loan update, or fails with no partial effect.
type LedgerService struct {
	store LedgerStore
	hooks []PostCommitHook
}

func NewLedgerService(store LedgerStore) *LedgerService {
	return &LedgerService{store: store}
}

// AfterCommit registers post-commit hooks in execution order.
func (s *LedgerService) AfterCommit(hooks ...PostCommitHook) {
	s.hooks = append(s.hooks, hooks...)
}

func (s *LedgerService) ProcessPayment(ctx context.Context, req PaymentRequest) (*PaymentResult, error) {
	if err := validatePaymentRequest(req); err != nil {
		return nil, err
	}

	var (
		committedLoan *domain.Loan
		committedTxn  *domain.Transaction
	)

	err := s.store.ExecTx(ctx, func(tx repository.LedgerTx) error {
		existing, err := tx.TransactionByReference(ctx, req.ReferenceID)
		if err != nil {
			return err
		}
		if existing != nil {
			return &domain.DuplicateTransactionError{ReferenceID: req.ReferenceID, Existing: existing}
		}

		loan, err := tx.LoanForUpdate(ctx, req.LoanID)
		if err != nil {
			return err
		}
		if loan.Status == domain.LoanStatusClosed {
			return &domain.InvalidStatusError{
				Entity: "loan",
				Status: string(loan.Status),
				Reason: "closed loans do not accept payments",
			}
		}

		txn := applyPayment(loan, req)

		if err := tx.UpdateLoan(ctx, loan); err != nil {
			return err
		}
		// Insert last so the reference unique index backstops the race
		// where two deliveries pass the existence check concurrently.
		if err := tx.InsertTransaction(ctx, txn); err != nil {
			return err
		}

		committedLoan = loan
		committedTxn = txn
		return nil
	})
	if err != nil {
		return s.resolveError(ctx, req.ReferenceID, err)
	}

	s.runHooks(ctx, committedLoan, committedTxn)

	return resultFromTransaction(committedTxn, false), nil
}

// applyPayment mutates the locked loan in place and builds the transaction
// record. Pure except for clock reads.
func applyPayment(loan *domain.Loan, req PaymentRequest) *domain.Transaction {
	anchor := loan.AccrualAnchor()
	days := domain.DaysBetween(anchor, req.PaymentDate)
	accrued := domain.AccrueInterest(loan.OutstandingBalance, loan.InterestRate, anchor, req.PaymentDate)

	alloc := domain.Allocate(req.Amount, loan.PenaltiesOutstanding, accrued, loan.OutstandingBalance)

	newBalance := loan.OutstandingBalance.Sub(alloc.ToPrincipal)
	remainingOverdue := loan.PenaltiesOutstanding.Sub(alloc.ToPenalties).
		Add(accrued.Sub(alloc.ToInterest))
	newStatus := domain.ResolveStatus(loan.Status, newBalance, remainingOverdue)

	now := time.Now().UTC()

	loan.OutstandingBalance = newBalance
	loan.PenaltiesOutstanding = loan.PenaltiesOutstanding.Sub(alloc.ToPenalties)
	loan.PrincipalPaid = loan.PrincipalPaid.Add(alloc.ToPrincipal)
	loan.InterestPaid = loan.InterestPaid.Add(alloc.ToInterest)
	loan.PenaltiesPaid = loan.PenaltiesPaid.Add(alloc.ToPenalties)
	paymentDate := req.PaymentDate
	loan.LastPaymentDate = &paymentDate
	loan.LastPaymentAmount = req.Amount

	if newStatus != loan.Status {
		prev := loan.Status
		loan.PreviousStatus = &prev
		loan.StatusChangedAt = &now
		loan.Status = newStatus
	}

	txn := &domain.Transaction{
		ID:             uuid.New(),
		ReferenceID:    req.ReferenceID,
		LoanID:         loan.ID,
		Type:           domain.TransactionTypePayment,
		Amount:         req.Amount,
		ToPenalties:    alloc.ToPenalties,
		ToInterest:     alloc.ToInterest,
		ToPrincipal:    alloc.ToPrincipal,
		Remaining:      alloc.Remaining,
		BalanceAfter:   newBalance,
		PenaltiesAfter: loan.PenaltiesOutstanding,
		StatusAfter:    loan.Status,
		PaymentDate:    req.PaymentDate,
		DaysSincePrior: days,
		RateApplied:    loan.InterestRate,
		CreatedAt:      now,
	}
	if req.Method != "" {
		txn.Method = &req.Method
	}
	if req.Source != "" {
		txn.Source = &req.Source
	}
	if req.Notes != "" {
		txn.Notes = &req.Notes
	}
	txn.OperatorID = req.OperatorID

	return txn
}

// resolveError turns a duplicate into the idempotent success path and wraps
// anything unexpected into a processing error.
func (s *LedgerService) resolveError(ctx context.Context, refID string, err error) (*PaymentResult, error) {
	var dup *domain.DuplicateTransactionError
	if errors.As(err, &dup) {
		existing := dup.Existing
		if existing == nil {
			existing, err = s.store.TransactionByReference(ctx, refID)
			if err != nil {
				return nil, &domain.ProcessingError{Op: "load duplicate transaction", Cause: err}
			}
			if existing == nil {
				return nil, &domain.ProcessingError{Op: "load duplicate transaction", Cause: dup}
			}
		}
		return resultFromTransaction(existing, true), nil
	}

	var (
		valErr    *domain.ValidationError
		notFound  *domain.NotFoundError
		badStatus *domain.InvalidStatusError
		procErr   *domain.ProcessingError
	)
	if errors.As(err, &valErr) || errors.As(err, &notFound) || errors.As(err, &badStatus) || errors.As(err, &procErr) {
		return nil, err
	}
	return nil, &domain.ProcessingError{Op: "apply payment", Cause: err}
}

func (s *LedgerService) runHooks(ctx context.Context, loan *domain.Loan, txn *domain.Transaction) {
	for _, hook := range s.hooks {
		if err := hook(ctx, loan, txn); err != nil {
			log.Printf("ledger %s: post-commit hook error: %v", txn.ReferenceID, err)
		}
	}
}

func resultFromTransaction(txn *domain.Transaction, duplicate bool) *PaymentResult {
	return &PaymentResult{
		TransactionID: txn.ID,
		Allocation: domain.Allocation{
			ToPenalties: txn.ToPenalties,
			ToInterest:  txn.ToInterest,
			ToPrincipal: txn.ToPrincipal,
			Remaining:   txn.Remaining,
		},
		BalanceAfter: txn.BalanceAfter,
		NewStatus:    txn.StatusAfter,
		Duplicate:    duplicate,
	}
}

func validatePaymentRequest(req PaymentRequest) error {
	if req.ReferenceID == "" {
		return &domain.ValidationError{Field: "reference_id", Message: "reference_id is required"}
	}
	if req.LoanID <= 0 {
		return &domain.ValidationError{Field: "loan_id", Message: "loan_id is required"}
	}
	if req.Amount.Sign() <= 0 {
		return &domain.ValidationError{Field: "amount", Message: "amount must be positive"}
	}
	if req.PaymentDate.IsZero() {
		return &domain.ValidationError{Field: "payment_date", Message: "payment_date is required"}
	}
	return nil
}
