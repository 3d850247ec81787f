package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"loanster-core/internal/clients"
	"loanster-core/internal/domain"
)

type ReceiptStorage interface {
	Save(ctx context.Context, fileName string, data []byte) (string, error)
	GetURL(fileName string) string
}

// ReceiptService materializes a receipt artifact for each committed payment.
// Document rendering lives elsewhere; this stores the structured receipt the
// renderer (and the borrower-facing download link) works from.
type ReceiptService struct {
	storage ReceiptStorage
	s3      *clients.S3Client
}

func NewReceiptService(storage ReceiptStorage, s3 *clients.S3Client) *ReceiptService {
	return &ReceiptService{storage: storage, s3: s3}
}

type receiptDocument struct {
	TransactionID string `json:"transaction_id"`
	ReferenceID   string `json:"reference_id"`
	LoanNumber    string `json:"loan_number"`
	PaymentDate   string `json:"payment_date"`

	Amount      string `json:"amount"`
	ToPenalties string `json:"to_penalties"`
	ToInterest  string `json:"to_interest"`
	ToPrincipal string `json:"to_principal"`
	Overpayment string `json:"overpayment"`

	BalanceAfter string `json:"balance_after"`
	LoanStatus   string `json:"loan_status"`
	IssuedAt     string `json:"issued_at"`
}

// StoreReceipt writes the receipt locally and mirrors it to object storage
// when configured. Returns the public URL of the stored artifact.
func (s *ReceiptService) StoreReceipt(ctx context.Context, loan *domain.Loan, txn *domain.Transaction) (string, error) {
	doc := receiptDocument{
		TransactionID: txn.ID.String(),
		ReferenceID:   txn.ReferenceID,
		LoanNumber:    loan.Number,
		PaymentDate:   txn.PaymentDate.Format("2006-01-02"),
		Amount:        txn.Amount.StringFixed(2),
		ToPenalties:   txn.ToPenalties.StringFixed(2),
		ToInterest:    txn.ToInterest.StringFixed(2),
		ToPrincipal:   txn.ToPrincipal.StringFixed(2),
		Overpayment:   txn.Remaining.StringFixed(2),
		BalanceAfter:  txn.BalanceAfter.StringFixed(2),
		LoanStatus:    string(txn.StatusAfter),
		IssuedAt:      time.Now().UTC().Format(time.RFC3339),
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal receipt: %w", err)
	}

	fileName := fmt.Sprintf("receipt_%s.json", txn.ID)
	saved, err := s.storage.Save(ctx, fileName, data)
	if err != nil {
		return "", fmt.Errorf("save receipt: %w", err)
	}

	if s.s3 != nil {
		if _, err := s.s3.Upload(ctx, saved, "application/json", data); err != nil {
			// retention mirror only; the local copy is already served
			log.Printf("receipt %s: s3 mirror failed: %v", txn.ReferenceID, err)
		}
	}

	return s.storage.GetURL(saved), nil
}

// Hook adapts the service into a ledger post-commit hook.
func (s *ReceiptService) Hook() PostCommitHook {
	return func(ctx context.Context, loan *domain.Loan, txn *domain.Transaction) error {
		_, err := s.StoreReceipt(ctx, loan, txn)
		return err
	}
}
