package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"loanster-core/internal/domain"
)

const loanColumns = `l.id, l.number, l.client_id, l.approved_amount, l.interest_rate, l.term_months, l.outstanding_balance, l.penalties_outstanding, l.principal_paid, l.interest_paid, l.penalties_paid, l.last_payment_date, l.last_payment_amount, l.status, l.previous_status, l.status_changed_at, l.due_day, l.start_date, l.created_at, l.updated_at, l.deleted_at`

type LoanRepository struct {
	db *sql.DB
}

func NewLoanRepository(db *sql.DB) *LoanRepository {
	return &LoanRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLoan(row rowScanner) (*domain.Loan, error) {
	var l domain.Loan
	var lastPaymentDate, statusChangedAt sql.NullTime
	var prevStatus sql.NullString

	err := row.Scan(
		&l.ID,
		&l.Number,
		&l.ClientID,
		&l.ApprovedAmount,
		&l.InterestRate,
		&l.TermMonths,
		&l.OutstandingBalance,
		&l.PenaltiesOutstanding,
		&l.PrincipalPaid,
		&l.InterestPaid,
		&l.PenaltiesPaid,
		&lastPaymentDate,
		&l.LastPaymentAmount,
		&l.Status,
		&prevStatus,
		&statusChangedAt,
		&l.DueDay,
		&l.StartDate,
		&l.CreatedAt,
		&l.UpdatedAt,
		&l.DeletedAt,
	)
	if err != nil {
		return nil, err
	}

	if lastPaymentDate.Valid {
		t := lastPaymentDate.Time
		l.LastPaymentDate = &t
	}
	if prevStatus.Valid {
		s := domain.LoanStatus(prevStatus.String)
		l.PreviousStatus = &s
	}
	if statusChangedAt.Valid {
		t := statusChangedAt.Time
		l.StatusChangedAt = &t
	}

	return &l, nil
}

func (r *LoanRepository) GetByID(ctx context.Context, id int64) (*domain.Loan, error) {
	query := `SELECT ` + loanColumns + ` FROM loans l WHERE l.id = $1 AND l.deleted_at IS NULL`

	loan, err := scanLoan(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, &domain.NotFoundError{Entity: "loan", ID: strconv.FormatInt(id, 10)}
	}
	if err != nil {
		return nil, err
	}
	return loan, nil
}

func (r *LoanRepository) GetByNumber(ctx context.Context, number string) (*domain.Loan, error) {
	query := `SELECT ` + loanColumns + ` FROM loans l WHERE l.number = $1 AND l.deleted_at IS NULL`

	loan, err := scanLoan(r.db.QueryRowContext(ctx, query, number))
	if err == sql.ErrNoRows {
		return nil, &domain.NotFoundError{Entity: "loan", ID: number}
	}
	if err != nil {
		return nil, err
	}
	return loan, nil
}

// OpenBySenderAccount returns non-closed loans whose client has the given
// bank account registered. Matching treats the result as confident only when
// exactly one row comes back.
func (r *LoanRepository) OpenBySenderAccount(ctx context.Context, account string) ([]domain.Loan, error) {
	query := `SELECT ` + loanColumns + ` FROM loans l
		JOIN clients c ON c.id = l.client_id
		WHERE c.bank_account = $1 AND l.status != 'closed' AND l.deleted_at IS NULL`

	rows, err := r.db.QueryContext(ctx, query, account)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectLoans(rows)
}

// ForMilestone selects the loans eligible for a notification milestone run.
// Reminder milestones look ahead by the configured day offset and match on
// the contractual due day; overdue matches the loan status directly.
func (r *LoanRepository) ForMilestone(ctx context.Context, milestone domain.NotificationType, now time.Time, daysAhead int) ([]domain.Loan, error) {
	var query string
	var args []any

	switch milestone {
	case domain.NotificationOverdue:
		query = `SELECT ` + loanColumns + ` FROM loans l WHERE l.status = 'overdue' AND l.deleted_at IS NULL`
	case domain.NotificationBillingReminder, domain.NotificationPreDue, domain.NotificationDueDate:
		target := now.AddDate(0, 0, daysAhead)
		query = `SELECT ` + loanColumns + ` FROM loans l WHERE l.status = 'active' AND l.due_day = $1 AND l.deleted_at IS NULL`
		args = append(args, target.Day())
	default:
		return nil, fmt.Errorf("unknown milestone %q", milestone)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectLoans(rows)
}

// ChatChannelForLoan resolves the messaging-channel identity of the loan's
// client. Empty result means the client never linked a channel.
func (r *LoanRepository) ChatChannelForLoan(ctx context.Context, loanID int64) (string, error) {
	query := `SELECT COALESCE(c.chat_channel_id, '') FROM loans l
		JOIN clients c ON c.id = l.client_id
		WHERE l.id = $1`

	var channel string
	if err := r.db.QueryRowContext(ctx, query, loanID).Scan(&channel); err != nil {
		if err == sql.ErrNoRows {
			return "", &domain.NotFoundError{Entity: "loan", ID: strconv.FormatInt(loanID, 10)}
		}
		return "", err
	}
	return channel, nil
}

func collectLoans(rows *sql.Rows) ([]domain.Loan, error) {
	var out []domain.Loan
	for rows.Next() {
		loan, err := scanLoan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *loan)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
