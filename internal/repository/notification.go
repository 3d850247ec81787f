package repository

import (
	"context"
	"database/sql"
	"errors"

	"loanster-core/internal/domain"
)

// ErrDuplicateNotification reports that a history row for the same
// (loan, type, period) already exists. The unique index is the backstop
// against two concurrent runs of the same milestone job.
var ErrDuplicateNotification = errors.New("notification already recorded for this period")

type NotificationHistoryRepository struct {
	db *sql.DB
}

func NewNotificationHistoryRepository(db *sql.DB) *NotificationHistoryRepository {
	return &NotificationHistoryRepository{db: db}
}

func (r *NotificationHistoryRepository) Exists(ctx context.Context, loanID int64, typ domain.NotificationType, periodKey string) (bool, error) {
	query := `SELECT EXISTS (
		SELECT 1 FROM notification_history
		WHERE loan_id = $1 AND type = $2 AND period_key = $3
	)`

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, loanID, string(typ), periodKey).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (r *NotificationHistoryRepository) Insert(ctx context.Context, h *domain.NotificationHistory) error {
	query := `INSERT INTO notification_history (loan_id, type, period_key, sent, error, created_at)
		VALUES ($1,$2,$3,$4,$5,NOW())
		RETURNING id, created_at`

	err := r.db.QueryRowContext(ctx, query,
		h.LoanID,
		string(h.Type),
		h.PeriodKey,
		h.Sent,
		h.Error,
	).Scan(&h.ID, &h.CreatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicateNotification
	}
	return err
}
