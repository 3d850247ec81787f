package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"loanster-core/internal/domain"
)

type TransactionsFilter struct {
	LoanID   *int64
	Source   *string
	FromDate *time.Time
	ToDate   *time.Time
}

// TransactionRepository serves the read side: payment history queries and
// reconciliation exports. Writes go through the ledger store only.
type TransactionRepository struct {
	db *sql.DB
}

func NewTransactionRepository(db *sql.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func (r *TransactionRepository) List(ctx context.Context, f TransactionsFilter) ([]domain.Transaction, error) {
	base := `SELECT ` + transactionColumns + ` FROM transactions t`

	where := []string{"1=1"}
	args := []any{}
	i := 1

	if f.LoanID != nil {
		where = append(where, fmt.Sprintf("t.loan_id = $%d", i))
		args = append(args, *f.LoanID)
		i++
	}
	if f.Source != nil && *f.Source != "" {
		where = append(where, fmt.Sprintf("t.source = $%d", i))
		args = append(args, *f.Source)
		i++
	}
	if f.FromDate != nil {
		where = append(where, fmt.Sprintf("t.payment_date >= $%d", i))
		args = append(args, *f.FromDate)
		i++
	}
	if f.ToDate != nil {
		where = append(where, fmt.Sprintf("t.payment_date <= $%d", i))
		args = append(args, *f.ToDate)
		i++
	}

	query := base + " WHERE " + strings.Join(where, " AND ") + " ORDER BY t.payment_date, t.created_at"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *txn)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *TransactionRepository) ListByLoan(ctx context.Context, loanID int64) ([]domain.Transaction, error) {
	return r.List(ctx, TransactionsFilter{LoanID: &loanID})
}
