package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"loanster-core/internal/domain"

	"github.com/google/uuid"
)

const pendingColumns = `p.id, p.reference_id, p.amount, p.paid_at, p.sender_name, p.sender_account, p.receiver_account, p.bank_code, p.raw_payload, p.status, p.matched_loan_id, p.matched_by, p.notes, p.reject_reason, p.transaction_id, p.created_at, p.matched_at, p.resolved_at`

type PendingPaymentRepository struct {
	db *sql.DB
}

func NewPendingPaymentRepository(db *sql.DB) *PendingPaymentRepository {
	return &PendingPaymentRepository{db: db}
}

// Create stages an unmatched payment. The unique index on reference_id makes
// repeated webhook deliveries converge on one row: a violation returns the
// row staged by the first delivery.
func (r *PendingPaymentRepository) Create(ctx context.Context, p *domain.PendingPayment) (*domain.PendingPayment, error) {
	query := `INSERT INTO pending_payments (
		reference_id, amount, paid_at,
		sender_name, sender_account, receiver_account, bank_code, raw_payload,
		status, notes, created_at
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,NOW())
	RETURNING id, created_at`

	err := r.db.QueryRowContext(ctx, query,
		p.ReferenceID,
		p.Amount,
		p.PaidAt,
		p.SenderName,
		p.SenderAccount,
		p.ReceiverAccount,
		p.BankCode,
		p.RawPayload,
		string(p.Status),
		p.Notes,
	).Scan(&p.ID, &p.CreatedAt)
	if isUniqueViolation(err) {
		return r.GetByReference(ctx, p.ReferenceID)
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *PendingPaymentRepository) GetByID(ctx context.Context, id int64) (*domain.PendingPayment, error) {
	query := `SELECT ` + pendingColumns + ` FROM pending_payments p WHERE p.id = $1`

	p, err := scanPendingPayment(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, &domain.NotFoundError{Entity: "pending payment", ID: strconv.FormatInt(id, 10)}
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *PendingPaymentRepository) GetByReference(ctx context.Context, refID string) (*domain.PendingPayment, error) {
	query := `SELECT ` + pendingColumns + ` FROM pending_payments p WHERE p.reference_id = $1`

	p, err := scanPendingPayment(r.db.QueryRowContext(ctx, query, refID))
	if err == sql.ErrNoRows {
		return nil, &domain.NotFoundError{Entity: "pending payment", ID: refID}
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *PendingPaymentRepository) List(ctx context.Context, status *domain.PendingPaymentStatus) ([]domain.PendingPayment, error) {
	base := `SELECT ` + pendingColumns + ` FROM pending_payments p`

	where := []string{"1=1"}
	args := []any{}
	if status != nil {
		where = append(where, fmt.Sprintf("p.status = $%d", len(args)+1))
		args = append(args, string(*status))
	}

	query := base + " WHERE " + strings.Join(where, " AND ") + " ORDER BY p.created_at DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.PendingPayment
	for rows.Next() {
		p, err := scanPendingPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *PendingPaymentRepository) MarkMatched(ctx context.Context, id, loanID, operatorID int64, notes *string) error {
	query := `UPDATE pending_payments SET
		status = $1, matched_loan_id = $2, matched_by = $3, notes = COALESCE($4, notes), matched_at = NOW()
		WHERE id = $5`

	return r.exec(ctx, query, string(domain.PendingStatusMatched), loanID, operatorID, notes, id)
}

func (r *PendingPaymentRepository) MarkProcessed(ctx context.Context, id int64, transactionID uuid.UUID) error {
	query := `UPDATE pending_payments SET
		status = $1, transaction_id = $2, resolved_at = NOW()
		WHERE id = $3`

	return r.exec(ctx, query, string(domain.PendingStatusProcessed), transactionID, id)
}

func (r *PendingPaymentRepository) MarkRejected(ctx context.Context, id, operatorID int64, reason string) error {
	query := `UPDATE pending_payments SET
		status = $1, reject_reason = $2, matched_by = $3, resolved_at = NOW()
		WHERE id = $4`

	return r.exec(ctx, query, string(domain.PendingStatusRejected), reason, operatorID, id)
}

func (r *PendingPaymentRepository) exec(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return &domain.NotFoundError{Entity: "pending payment", ID: fmt.Sprint(args[len(args)-1])}
	}
	return nil
}

func scanPendingPayment(row rowScanner) (*domain.PendingPayment, error) {
	var p domain.PendingPayment
	var senderName, senderAccount, receiverAccount, bankCode, notes, rejectReason sql.NullString
	var matchedLoanID, matchedBy sql.NullInt64
	var txnID uuid.NullUUID
	var matchedAt, resolvedAt sql.NullTime

	err := row.Scan(
		&p.ID,
		&p.ReferenceID,
		&p.Amount,
		&p.PaidAt,
		&senderName,
		&senderAccount,
		&receiverAccount,
		&bankCode,
		&p.RawPayload,
		&p.Status,
		&matchedLoanID,
		&matchedBy,
		&notes,
		&rejectReason,
		&txnID,
		&p.CreatedAt,
		&matchedAt,
		&resolvedAt,
	)
	if err != nil {
		return nil, err
	}

	if senderName.Valid {
		p.SenderName = &senderName.String
	}
	if senderAccount.Valid {
		p.SenderAccount = &senderAccount.String
	}
	if receiverAccount.Valid {
		p.ReceiverAccount = &receiverAccount.String
	}
	if bankCode.Valid {
		p.BankCode = &bankCode.String
	}
	if notes.Valid {
		p.Notes = &notes.String
	}
	if rejectReason.Valid {
		p.RejectReason = &rejectReason.String
	}
	if matchedLoanID.Valid {
		v := matchedLoanID.Int64
		p.MatchedLoanID = &v
	}
	if matchedBy.Valid {
		v := matchedBy.Int64
		p.MatchedBy = &v
	}
	if txnID.Valid {
		v := txnID.UUID
		p.TransactionID = &v
	}
	if matchedAt.Valid {
		t := matchedAt.Time
		p.MatchedAt = &t
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time
		p.ResolvedAt = &t
	}

	return &p, nil
}
