package service

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"loanster-core/internal/domain"
	"loanster-core/internal/repository"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

// memLedgerStore is an in-memory LedgerStore. ExecTx stages copies and only
// publishes them when fn succeeds, mirroring rollback semantics.
type memLedgerStore struct {
	loans map[int64]*domain.Loan
	txns  map[string]*domain.Transaction

	insertErr error
}

func newMemLedgerStore(loans ...*domain.Loan) *memLedgerStore {
	s := &memLedgerStore{
		loans: make(map[int64]*domain.Loan),
		txns:  make(map[string]*domain.Transaction),
	}
	for _, l := range loans {
		cp := *l
		s.loans[l.ID] = &cp
	}
	return s
}

func (s *memLedgerStore) ExecTx(ctx context.Context, fn func(tx repository.LedgerTx) error) error {
	staged := &memLedgerTx{
		loans:     make(map[int64]*domain.Loan, len(s.loans)),
		txns:      make(map[string]*domain.Transaction, len(s.txns)),
		insertErr: s.insertErr,
	}
	for id, l := range s.loans {
		cp := *l
		staged.loans[id] = &cp
	}
	for ref, t := range s.txns {
		cp := *t
		staged.txns[ref] = &cp
	}

	if err := fn(staged); err != nil {
		return err
	}
	s.loans = staged.loans
	s.txns = staged.txns
	return nil
}

func (s *memLedgerStore) TransactionByReference(ctx context.Context, refID string) (*domain.Transaction, error) {
	if t, ok := s.txns[refID]; ok {
		cp := *t
		return &cp, nil
	}
	return nil, nil
}

type memLedgerTx struct {
	loans map[int64]*domain.Loan
	txns  map[string]*domain.Transaction

	insertErr error
}

func (tx *memLedgerTx) TransactionByReference(ctx context.Context, refID string) (*domain.Transaction, error) {
	if t, ok := tx.txns[refID]; ok {
		return t, nil
	}
	return nil, nil
}

func (tx *memLedgerTx) LoanForUpdate(ctx context.Context, loanID int64) (*domain.Loan, error) {
	loan, ok := tx.loans[loanID]
	if !ok {
		return nil, &domain.NotFoundError{Entity: "loan", ID: strconv.FormatInt(loanID, 10)}
	}
	return loan, nil
}

func (tx *memLedgerTx) UpdateLoan(ctx context.Context, loan *domain.Loan) error {
	tx.loans[loan.ID] = loan
	return nil
}

func (tx *memLedgerTx) InsertTransaction(ctx context.Context, txn *domain.Transaction) error {
	if tx.insertErr != nil {
		return tx.insertErr
	}
	if existing, ok := tx.txns[txn.ReferenceID]; ok {
		return &domain.DuplicateTransactionError{ReferenceID: txn.ReferenceID, Existing: existing}
	}
	tx.txns[txn.ReferenceID] = txn
	return nil
}

func activeLoan(id int64, balance, rate string, start string) *domain.Loan {
	return &domain.Loan{
		ID:                 id,
		Number:             "LN-10042",
		ClientID:           7,
		ApprovedAmount:     d(balance),
		InterestRate:       d(rate),
		OutstandingBalance: d(balance),
		Status:             domain.LoanStatusActive,
		DueDay:             15,
		StartDate:          day(start),
	}
}

func TestProcessPayment_WaterfallAllocation(t *testing.T) {
	// 10000 at 15% annual, 30 days since contract start:
	// accrued = 10000 * 0.15 * 30/365 = 123.29
	store := newMemLedgerStore(activeLoan(1, "10000", "15", "2026-01-01"))
	svc := NewLedgerService(store)

	result, err := svc.ProcessPayment(context.Background(), PaymentRequest{
		ReferenceID: "BT-001",
		LoanID:      1,
		Amount:      d("1000"),
		PaymentDate: day("2026-01-31"),
		Source:      "manual",
	})
	if err != nil {
		t.Fatalf("ProcessPayment: %v", err)
	}

	if !result.Allocation.ToInterest.Equal(d("123.29")) {
		t.Errorf("ToInterest = %s; want 123.29", result.Allocation.ToInterest)
	}
	if !result.Allocation.ToPrincipal.Equal(d("876.71")) {
		t.Errorf("ToPrincipal = %s; want 876.71", result.Allocation.ToPrincipal)
	}
	if !result.BalanceAfter.Equal(d("9123.29")) {
		t.Errorf("BalanceAfter = %s; want 9123.29", result.BalanceAfter)
	}
	if result.NewStatus != domain.LoanStatusActive {
		t.Errorf("NewStatus = %s; want active", result.NewStatus)
	}
	if result.Duplicate {
		t.Error("fresh payment reported as duplicate")
	}

	loan := store.loans[1]
	if !loan.OutstandingBalance.Equal(d("9123.29")) {
		t.Errorf("loan balance = %s; want 9123.29", loan.OutstandingBalance)
	}
	if !loan.InterestPaid.Equal(d("123.29")) {
		t.Errorf("InterestPaid = %s; want 123.29", loan.InterestPaid)
	}
	if loan.LastPaymentDate == nil || !loan.LastPaymentDate.Equal(day("2026-01-31")) {
		t.Errorf("LastPaymentDate = %v; want 2026-01-31", loan.LastPaymentDate)
	}
}

func TestProcessPayment_PenaltiesFirst(t *testing.T) {
	loan := activeLoan(1, "5000", "0", "2026-01-01")
	loan.Status = domain.LoanStatusOverdue
	loan.PenaltiesOutstanding = d("200")
	store := newMemLedgerStore(loan)
	svc := NewLedgerService(store)

	result, err := svc.ProcessPayment(context.Background(), PaymentRequest{
		ReferenceID: "BT-002",
		LoanID:      1,
		Amount:      d("150"),
		PaymentDate: day("2026-02-01"),
	})
	if err != nil {
		t.Fatalf("ProcessPayment: %v", err)
	}

	if !result.Allocation.ToPenalties.Equal(d("150")) {
		t.Errorf("ToPenalties = %s; want 150", result.Allocation.ToPenalties)
	}
	if !result.Allocation.ToPrincipal.IsZero() {
		t.Errorf("ToPrincipal = %s; want 0", result.Allocation.ToPrincipal)
	}
	// 50 of penalties remain, so the loan stays overdue
	if result.NewStatus != domain.LoanStatusOverdue {
		t.Errorf("NewStatus = %s; want overdue", result.NewStatus)
	}
	if !store.loans[1].PenaltiesOutstanding.Equal(d("50")) {
		t.Errorf("PenaltiesOutstanding = %s; want 50", store.loans[1].PenaltiesOutstanding)
	}
}

func TestProcessPayment_OverdueBackToActive(t *testing.T) {
	loan := activeLoan(1, "5000", "0", "2026-01-01")
	loan.Status = domain.LoanStatusOverdue
	loan.PenaltiesOutstanding = d("200")
	store := newMemLedgerStore(loan)
	svc := NewLedgerService(store)

	result, err := svc.ProcessPayment(context.Background(), PaymentRequest{
		ReferenceID: "BT-003",
		LoanID:      1,
		Amount:      d("300"),
		PaymentDate: day("2026-02-01"),
	})
	if err != nil {
		t.Fatalf("ProcessPayment: %v", err)
	}

	if result.NewStatus != domain.LoanStatusActive {
		t.Errorf("NewStatus = %s; want active", result.NewStatus)
	}
	got := store.loans[1]
	if got.PreviousStatus == nil || *got.PreviousStatus != domain.LoanStatusOverdue {
		t.Errorf("PreviousStatus = %v; want overdue", got.PreviousStatus)
	}
	if got.StatusChangedAt == nil {
		t.Error("StatusChangedAt not set on transition")
	}
}

func TestProcessPayment_OverpaymentClosesLoan(t *testing.T) {
	store := newMemLedgerStore(activeLoan(1, "100", "0", "2026-01-01"))
	svc := NewLedgerService(store)

	var hookStatus domain.LoanStatus
	hookCalls := 0
	svc.AfterCommit(func(ctx context.Context, loan *domain.Loan, txn *domain.Transaction) error {
		hookCalls++
		hookStatus = txn.StatusAfter
		return errors.New("dispatch down") // must not undo the payment
	})

	result, err := svc.ProcessPayment(context.Background(), PaymentRequest{
		ReferenceID: "BT-004",
		LoanID:      1,
		Amount:      d("150"),
		PaymentDate: day("2026-01-10"),
	})
	if err != nil {
		t.Fatalf("ProcessPayment: %v", err)
	}

	if result.NewStatus != domain.LoanStatusClosed {
		t.Errorf("NewStatus = %s; want closed", result.NewStatus)
	}
	if !result.Allocation.ToPrincipal.Equal(d("100")) {
		t.Errorf("ToPrincipal = %s; want 100", result.Allocation.ToPrincipal)
	}
	if !result.Allocation.Remaining.Equal(d("50")) {
		t.Errorf("Remaining = %s; want 50", result.Allocation.Remaining)
	}
	if hookCalls != 1 {
		t.Errorf("hook ran %d times; want 1", hookCalls)
	}
	if hookStatus != domain.LoanStatusClosed {
		t.Errorf("hook saw status %s; want closed", hookStatus)
	}
	if store.loans[1].Status != domain.LoanStatusClosed {
		t.Errorf("loan status = %s; want closed", store.loans[1].Status)
	}
}

func TestProcessPayment_IdempotentReplay(t *testing.T) {
	store := newMemLedgerStore(activeLoan(1, "10000", "15", "2026-01-01"))
	svc := NewLedgerService(store)

	req := PaymentRequest{
		ReferenceID: "BT-005",
		LoanID:      1,
		Amount:      d("1000"),
		PaymentDate: day("2026-01-31"),
	}

	first, err := svc.ProcessPayment(context.Background(), req)
	if err != nil {
		t.Fatalf("first ProcessPayment: %v", err)
	}

	balanceAfterFirst := store.loans[1].OutstandingBalance

	second, err := svc.ProcessPayment(context.Background(), req)
	if err != nil {
		t.Fatalf("replay ProcessPayment: %v", err)
	}

	if !second.Duplicate {
		t.Error("replay not marked duplicate")
	}
	if second.TransactionID != first.TransactionID {
		t.Errorf("replay transaction id %s; want %s", second.TransactionID, first.TransactionID)
	}
	if !second.BalanceAfter.Equal(first.BalanceAfter) {
		t.Errorf("replay BalanceAfter = %s; want %s", second.BalanceAfter, first.BalanceAfter)
	}
	if !store.loans[1].OutstandingBalance.Equal(balanceAfterFirst) {
		t.Errorf("replay changed loan balance: %s", store.loans[1].OutstandingBalance)
	}
	if len(store.txns) != 1 {
		t.Errorf("ledger holds %d transactions; want 1", len(store.txns))
	}
}

func TestProcessPayment_UniqueIndexBackstop(t *testing.T) {
	// Two concurrent deliveries both pass the existence check; the second
	// insert hits the unique index. The caller still gets the committed
	// result, not an error.
	store := newMemLedgerStore(activeLoan(1, "10000", "15", "2026-01-01"))
	svc := NewLedgerService(store)

	req := PaymentRequest{
		ReferenceID: "BT-006",
		LoanID:      1,
		Amount:      d("1000"),
		PaymentDate: day("2026-01-31"),
	}
	first, err := svc.ProcessPayment(context.Background(), req)
	if err != nil {
		t.Fatalf("first ProcessPayment: %v", err)
	}

	store.insertErr = &domain.DuplicateTransactionError{ReferenceID: req.ReferenceID}

	second, err := svc.ProcessPayment(context.Background(), req)
	if err != nil {
		t.Fatalf("racing ProcessPayment: %v", err)
	}
	if !second.Duplicate {
		t.Error("racing delivery not marked duplicate")
	}
	if second.TransactionID != first.TransactionID {
		t.Errorf("racing delivery rebuilt wrong transaction: %s", second.TransactionID)
	}
}

func TestProcessPayment_ClosedLoanRejected(t *testing.T) {
	loan := activeLoan(1, "0", "15", "2026-01-01")
	loan.Status = domain.LoanStatusClosed
	store := newMemLedgerStore(loan)
	svc := NewLedgerService(store)

	_, err := svc.ProcessPayment(context.Background(), PaymentRequest{
		ReferenceID: "BT-007",
		LoanID:      1,
		Amount:      d("100"),
		PaymentDate: day("2026-02-01"),
	})

	var badStatus *domain.InvalidStatusError
	if !errors.As(err, &badStatus) {
		t.Fatalf("expected InvalidStatusError, got %v", err)
	}
	if len(store.txns) != 0 {
		t.Error("closed loan still recorded a transaction")
	}
}

func TestProcessPayment_Validation(t *testing.T) {
	svc := NewLedgerService(newMemLedgerStore())

	cases := []struct {
		name string
		req  PaymentRequest
	}{
		{"missing reference", PaymentRequest{LoanID: 1, Amount: d("100"), PaymentDate: day("2026-01-01")}},
		{"missing loan", PaymentRequest{ReferenceID: "BT-1", Amount: d("100"), PaymentDate: day("2026-01-01")}},
		{"zero amount", PaymentRequest{ReferenceID: "BT-1", LoanID: 1, Amount: d("0"), PaymentDate: day("2026-01-01")}},
		{"negative amount", PaymentRequest{ReferenceID: "BT-1", LoanID: 1, Amount: d("-5"), PaymentDate: day("2026-01-01")}},
		{"missing date", PaymentRequest{ReferenceID: "BT-1", LoanID: 1, Amount: d("100")}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.ProcessPayment(context.Background(), tc.req)
			var valErr *domain.ValidationError
			if !errors.As(err, &valErr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
		})
	}
}

func TestProcessPayment_UnknownLoan(t *testing.T) {
	svc := NewLedgerService(newMemLedgerStore())

	_, err := svc.ProcessPayment(context.Background(), PaymentRequest{
		ReferenceID: "BT-008",
		LoanID:      99,
		Amount:      d("100"),
		PaymentDate: day("2026-01-01"),
	})

	var notFound *domain.NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestProcessPayment_AccrualAnchorMovesWithPayments(t *testing.T) {
	// Second payment accrues from the first payment date, not contract start.
	store := newMemLedgerStore(activeLoan(1, "10000", "15", "2026-01-01"))
	svc := NewLedgerService(store)

	if _, err := svc.ProcessPayment(context.Background(), PaymentRequest{
		ReferenceID: "BT-009",
		LoanID:      1,
		Amount:      d("1000"),
		PaymentDate: day("2026-01-31"),
	}); err != nil {
		t.Fatalf("first ProcessPayment: %v", err)
	}

	// 10 days on 9123.29 at 15%: 9123.29 * 0.15 * 10/365 = 37.49
	result, err := svc.ProcessPayment(context.Background(), PaymentRequest{
		ReferenceID: "BT-010",
		LoanID:      1,
		Amount:      d("500"),
		PaymentDate: day("2026-02-10"),
	})
	if err != nil {
		t.Fatalf("second ProcessPayment: %v", err)
	}

	if !result.Allocation.ToInterest.Equal(d("37.49")) {
		t.Errorf("ToInterest = %s; want 37.49", result.Allocation.ToInterest)
	}
	if !result.Allocation.ToPrincipal.Equal(d("462.51")) {
		t.Errorf("ToPrincipal = %s; want 462.51", result.Allocation.ToPrincipal)
	}
}
