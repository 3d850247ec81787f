package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"loanster-core/internal/domain"

	"github.com/jackc/pgx/v5/pgconn"
)

// LedgerTx is the unit-of-work surface the transaction ledger runs inside.
// Every method operates within one database transaction; the loan row stays
// exclusively locked until commit or rollback.
type LedgerTx interface {
	TransactionByReference(ctx context.Context, refID string) (*domain.Transaction, error)
	LoanForUpdate(ctx context.Context, loanID int64) (*domain.Loan, error)
	UpdateLoan(ctx context.Context, loan *domain.Loan) error
	InsertTransaction(ctx context.Context, txn *domain.Transaction) error
}

type LedgerStore struct {
	db *sql.DB
}

func NewLedgerStore(db *sql.DB) *LedgerStore {
	return &LedgerStore{db: db}
}

// ExecTx runs fn inside a database transaction. Any error from fn rolls the
// whole unit back; the loan update and the transaction insert either both
// land or neither does.
func (s *LedgerStore) ExecTx(ctx context.Context, fn func(tx LedgerTx) error) error {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(&ledgerTx{tx: dbTx}); err != nil {
		_ = dbTx.Rollback()
		return err
	}

	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// TransactionByReference is the out-of-transaction read used to rebuild the
// result of an already-committed payment on duplicate delivery.
func (s *LedgerStore) TransactionByReference(ctx context.Context, refID string) (*domain.Transaction, error) {
	return queryTransactionByReference(ctx, s.db, refID)
}

type ledgerTx struct {
	tx *sql.Tx
}

func (t *ledgerTx) TransactionByReference(ctx context.Context, refID string) (*domain.Transaction, error) {
	return queryTransactionByReference(ctx, t.tx, refID)
}

// LoanForUpdate loads the loan row with an exclusive lock so concurrent
// ledger writes against the same loan serialize behind this transaction.
func (t *ledgerTx) LoanForUpdate(ctx context.Context, loanID int64) (*domain.Loan, error) {
	query := `SELECT ` + loanColumns + ` FROM loans l WHERE l.id = $1 AND l.deleted_at IS NULL FOR UPDATE`

	loan, err := scanLoan(t.tx.QueryRowContext(ctx, query, loanID))
	if err == sql.ErrNoRows {
		return nil, &domain.NotFoundError{Entity: "loan", ID: strconv.FormatInt(loanID, 10)}
	}
	if err != nil {
		return nil, err
	}
	return loan, nil
}

func (t *ledgerTx) UpdateLoan(ctx context.Context, loan *domain.Loan) error {
	query := `UPDATE loans SET
		outstanding_balance = $1,
		penalties_outstanding = $2,
		principal_paid = $3,
		interest_paid = $4,
		penalties_paid = $5,
		last_payment_date = $6,
		last_payment_amount = $7,
		status = $8,
		previous_status = $9,
		status_changed_at = $10,
		updated_at = NOW()
		WHERE id = $11`

	var prevStatus any
	if loan.PreviousStatus != nil {
		prevStatus = string(*loan.PreviousStatus)
	}

	res, err := t.tx.ExecContext(ctx, query,
		loan.OutstandingBalance,
		loan.PenaltiesOutstanding,
		loan.PrincipalPaid,
		loan.InterestPaid,
		loan.PenaltiesPaid,
		loan.LastPaymentDate,
		loan.LastPaymentAmount,
		string(loan.Status),
		prevStatus,
		loan.StatusChangedAt,
		loan.ID,
	)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return &domain.NotFoundError{Entity: "loan", ID: strconv.FormatInt(loan.ID, 10)}
	}
	return nil
}

// InsertTransaction writes the immutable transaction row. The unique index
// on reference_id is the final idempotency backstop: a violation surfaces as
// a duplicate-transaction error, not a storage failure.
func (t *ledgerTx) InsertTransaction(ctx context.Context, txn *domain.Transaction) error {
	query := `INSERT INTO transactions (
		id, reference_id, loan_id, type,
		amount, to_penalties, to_interest, to_principal, remaining,
		balance_after, penalties_after, status_after,
		method, source, notes, operator_id,
		payment_date, days_since_prior, rate_applied, created_at
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)`

	_, err := t.tx.ExecContext(ctx, query,
		txn.ID,
		txn.ReferenceID,
		txn.LoanID,
		string(txn.Type),
		txn.Amount,
		txn.ToPenalties,
		txn.ToInterest,
		txn.ToPrincipal,
		txn.Remaining,
		txn.BalanceAfter,
		txn.PenaltiesAfter,
		string(txn.StatusAfter),
		txn.Method,
		txn.Source,
		txn.Notes,
		txn.OperatorID,
		txn.PaymentDate,
		txn.DaysSincePrior,
		txn.RateApplied,
		txn.CreatedAt,
	)
	if isUniqueViolation(err) {
		return &domain.DuplicateTransactionError{ReferenceID: txn.ReferenceID}
	}
	return err
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const transactionColumns = `t.id, t.reference_id, t.loan_id, t.type, t.amount, t.to_penalties, t.to_interest, t.to_principal, t.remaining, t.balance_after, t.penalties_after, t.status_after, t.method, t.source, t.notes, t.operator_id, t.payment_date, t.days_since_prior, t.rate_applied, t.created_at`

func queryTransactionByReference(ctx context.Context, q queryer, refID string) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions t WHERE t.reference_id = $1`

	txn, err := scanTransaction(q.QueryRowContext(ctx, query, refID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return txn, nil
}

func scanTransaction(row rowScanner) (*domain.Transaction, error) {
	var txn domain.Transaction
	var method, source, notes sql.NullString
	var operatorID sql.NullInt64

	err := row.Scan(
		&txn.ID,
		&txn.ReferenceID,
		&txn.LoanID,
		&txn.Type,
		&txn.Amount,
		&txn.ToPenalties,
		&txn.ToInterest,
		&txn.ToPrincipal,
		&txn.Remaining,
		&txn.BalanceAfter,
		&txn.PenaltiesAfter,
		&txn.StatusAfter,
		&method,
		&source,
		&notes,
		&operatorID,
		&txn.PaymentDate,
		&txn.DaysSincePrior,
		&txn.RateApplied,
		&txn.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if method.Valid {
		txn.Method = &method.String
	}
	if source.Valid {
		txn.Source = &source.String
	}
	if notes.Valid {
		txn.Notes = &notes.String
	}
	if operatorID.Valid {
		v := operatorID.Int64
		txn.OperatorID = &v
	}

	return &txn, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
