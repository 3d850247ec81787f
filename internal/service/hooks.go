package service

import (
	"context"
	"fmt"

	"loanster-core/internal/clients"
	"loanster-core/internal/domain"
)

// PaymentConfirmationHook sends the borrower a confirmation of the applied
// payment. Runs post-commit: a dispatch failure is logged by the ledger, the
// payment stays committed.
func PaymentConfirmationHook(loans NotifierLoanStore, messenger Messenger) PostCommitHook {
	return func(ctx context.Context, loan *domain.Loan, txn *domain.Transaction) error {
		channel, err := loans.ChatChannelForLoan(ctx, loan.ID)
		if err != nil {
			return fmt.Errorf("resolve chat channel: %w", err)
		}
		if channel == "" {
			return fmt.Errorf("loan %d has no chat channel", loan.ID)
		}

		text := fmt.Sprintf("Payment of %s received for loan %s. Outstanding balance: %s.",
			txn.Amount.StringFixed(2), loan.Number, txn.BalanceAfter.StringFixed(2))
		return messenger.Send(ctx, channel, text)
	}
}

// LoanPaidOffHook sends the "loan paid off" message when a payment closed
// the loan.
func LoanPaidOffHook(loans NotifierLoanStore, messenger Messenger) PostCommitHook {
	return func(ctx context.Context, loan *domain.Loan, txn *domain.Transaction) error {
		if txn.StatusAfter != domain.LoanStatusClosed {
			return nil
		}

		channel, err := loans.ChatChannelForLoan(ctx, loan.ID)
		if err != nil {
			return fmt.Errorf("resolve chat channel: %w", err)
		}
		if channel == "" {
			return fmt.Errorf("loan %d has no chat channel", loan.ID)
		}

		text := fmt.Sprintf("Congratulations! Your loan %s is fully paid off.", loan.Number)
		return messenger.Send(ctx, channel, text)
	}
}

// OpsFeedHook pushes the applied payment to the back-office feed.
func OpsFeedHook(ops *clients.OpsFeedClient) PostCommitHook {
	return func(ctx context.Context, loan *domain.Loan, txn *domain.Transaction) error {
		ops.PaymentApplied(loan, txn)
		if txn.StatusAfter == domain.LoanStatusClosed {
			ops.LoanClosed(loan)
		}
		return nil
	}
}
