package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"sort"
	"time"

	"loanster-core/internal/clients"
	"loanster-core/internal/domain"
	"loanster-core/internal/repository"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
)

type TransactionLister interface {
	List(ctx context.Context, f repository.TransactionsFilter) ([]domain.Transaction, error)
}

type PendingLister interface {
	List(ctx context.Context, status *domain.PendingPaymentStatus) ([]domain.PendingPayment, error)
}

type ExportStatus struct {
	Key      string         `json:"key"`
	Type     string         `json:"type"`
	Filters  map[string]any `json:"filters"`
	Progress float64        `json:"progress"`
	FileURL  *string        `json:"file_url"`
	Error    *string        `json:"error,omitempty"`
	Created  time.Time      `json:"created"`
}

const (
	exportTTL    = 24 * time.Hour
	exportSetKey = "export_ids"
)

// ExportService produces xlsx reconciliation reports for the back office:
// the transaction ledger (filterable by loan and period) and the pending
// payment queue. Reports build asynchronously; progress is tracked in redis
// and streamed over the ops feed.
type ExportService struct {
	txns    TransactionLister
	pending PendingLister
	redis   *clients.RedisClient
	storage ReceiptStorage
	ops     *clients.OpsFeedClient
}

func NewExportService(txns TransactionLister, pending PendingLister, redis *clients.RedisClient, storage ReceiptStorage, ops *clients.OpsFeedClient) *ExportService {
	return &ExportService{txns: txns, pending: pending, redis: redis, storage: storage, ops: ops}
}

type transactionColumn struct {
	Header string
	Value  func(t domain.Transaction) any
}

var transactionColumns = []transactionColumn{
	{"Transaction ID", func(t domain.Transaction) any { return t.ID.String() }},
	{"Reference", func(t domain.Transaction) any { return t.ReferenceID }},
	{"Loan ID", func(t domain.Transaction) any { return t.LoanID }},
	{"Type", func(t domain.Transaction) any { return string(t.Type) }},
	{"Payment date", func(t domain.Transaction) any { return t.PaymentDate.Format("2006-01-02") }},
	{"Amount", func(t domain.Transaction) any { return t.Amount.StringFixed(2) }},
	{"To penalties", func(t domain.Transaction) any { return t.ToPenalties.StringFixed(2) }},
	{"To interest", func(t domain.Transaction) any { return t.ToInterest.StringFixed(2) }},
	{"To principal", func(t domain.Transaction) any { return t.ToPrincipal.StringFixed(2) }},
	{"Overpayment", func(t domain.Transaction) any { return t.Remaining.StringFixed(2) }},
	{"Balance after", func(t domain.Transaction) any { return t.BalanceAfter.StringFixed(2) }},
	{"Status after", func(t domain.Transaction) any { return string(t.StatusAfter) }},
	{"Method", func(t domain.Transaction) any { return strOrEmpty(t.Method) }},
	{"Source", func(t domain.Transaction) any { return strOrEmpty(t.Source) }},
	{"Days since prior", func(t domain.Transaction) any { return t.DaysSincePrior }},
	{"Rate applied", func(t domain.Transaction) any { return t.RateApplied.StringFixed(2) }},
}

type pendingColumn struct {
	Header string
	Value  func(p domain.PendingPayment) any
}

var pendingExportColumns = []pendingColumn{
	{"ID", func(p domain.PendingPayment) any { return p.ID }},
	{"Reference", func(p domain.PendingPayment) any { return p.ReferenceID }},
	{"Amount", func(p domain.PendingPayment) any { return p.Amount.StringFixed(2) }},
	{"Paid at", func(p domain.PendingPayment) any { return p.PaidAt.Format("2006-01-02 15:04:05") }},
	{"Sender", func(p domain.PendingPayment) any { return strOrEmpty(p.SenderName) }},
	{"Sender account", func(p domain.PendingPayment) any { return strOrEmpty(p.SenderAccount) }},
	{"Bank", func(p domain.PendingPayment) any { return strOrEmpty(p.BankCode) }},
	{"Status", func(p domain.PendingPayment) any { return string(p.Status) }},
	{"Matched loan", func(p domain.PendingPayment) any {
		if p.MatchedLoanID == nil {
			return ""
		}
		return *p.MatchedLoanID
	}},
	{"Notes", func(p domain.PendingPayment) any { return strOrEmpty(p.Notes) }},
	{"Reject reason", func(p domain.PendingPayment) any { return strOrEmpty(p.RejectReason) }},
	{"Created", func(p domain.PendingPayment) any { return p.CreatedAt.Format("2006-01-02 15:04:05") }},
}

func strOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (s *ExportService) StartTransactionsExport(ctx context.Context, filter repository.TransactionsFilter) (string, error) {
	exportID := fmt.Sprintf("exports:%s", uuid.NewString())

	status := &ExportStatus{
		Key:     exportID,
		Type:    "transactions",
		Filters: transactionsFilterMap(filter),
		Created: time.Now(),
	}
	_ = s.saveStatus(ctx, status)

	go s.runTransactionsExport(context.Background(), status, filter)

	return exportID, nil
}

func (s *ExportService) StartPendingExport(ctx context.Context, pendingStatus *domain.PendingPaymentStatus) (string, error) {
	exportID := fmt.Sprintf("exports:%s", uuid.NewString())

	filters := map[string]any{"status": nil}
	if pendingStatus != nil {
		filters["status"] = string(*pendingStatus)
	}

	status := &ExportStatus{
		Key:     exportID,
		Type:    "pending_payments",
		Filters: filters,
		Created: time.Now(),
	}
	_ = s.saveStatus(ctx, status)

	go s.runPendingExport(context.Background(), status, pendingStatus)

	return exportID, nil
}

func (s *ExportService) runTransactionsExport(ctx context.Context, status *ExportStatus, filter repository.TransactionsFilter) {
	txns, err := s.txns.List(ctx, filter)
	if err != nil {
		s.fail(ctx, status, fmt.Sprintf("list transactions: %v", err))
		return
	}

	f := excelize.NewFile()
	sheet := "Transactions"
	f.SetSheetName(f.GetSheetName(0), sheet)

	for i, col := range transactionColumns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, col.Header)
	}

	total := len(txns)
	for i, txn := range txns {
		for colIdx, col := range transactionColumns {
			cell, _ := excelize.CoordinatesToCellName(colIdx+1, i+2)
			_ = f.SetCellValue(sheet, cell, col.Value(txn))
		}
		if (i+1)%1000 == 0 || i == total-1 {
			s.progress(ctx, status, buildProgress(i+1, total))
		}
	}

	s.finish(ctx, status, f, fmt.Sprintf("transactions_%s.xlsx", time.Now().Format("20060102_150405")))
}

func (s *ExportService) runPendingExport(ctx context.Context, status *ExportStatus, pendingStatus *domain.PendingPaymentStatus) {
	items, err := s.pending.List(ctx, pendingStatus)
	if err != nil {
		s.fail(ctx, status, fmt.Sprintf("list pending payments: %v", err))
		return
	}

	f := excelize.NewFile()
	sheet := "Pending payments"
	f.SetSheetName(f.GetSheetName(0), sheet)

	for i, col := range pendingExportColumns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, col.Header)
	}

	total := len(items)
	for i, p := range items {
		for colIdx, col := range pendingExportColumns {
			cell, _ := excelize.CoordinatesToCellName(colIdx+1, i+2)
			_ = f.SetCellValue(sheet, cell, col.Value(p))
		}
		if (i+1)%1000 == 0 || i == total-1 {
			s.progress(ctx, status, buildProgress(i+1, total))
		}
	}

	s.finish(ctx, status, f, fmt.Sprintf("pending_payments_%s.xlsx", time.Now().Format("20060102_150405")))
}

func buildProgress(done, total int) float64 {
	if total == 0 {
		return 95
	}
	p := math.Round(float64(done) / float64(total) * 100.0)
	if p >= 100 {
		p = 95
	}
	return p
}

func (s *ExportService) finish(ctx context.Context, status *ExportStatus, f *excelize.File, fileName string) {
	buf, err := f.WriteToBuffer()
	if err != nil {
		s.fail(ctx, status, fmt.Sprintf("write workbook: %v", err))
		return
	}

	saved, err := s.storage.Save(ctx, fileName, buf.Bytes())
	if err != nil {
		s.fail(ctx, status, fmt.Sprintf("save export: %v", err))
		return
	}

	url := s.storage.GetURL(saved)
	status.FileURL = &url
	status.Progress = 100
	_ = s.saveStatus(ctx, status)

	s.ops.ExportProgress(status.Key, 100, "ready")
	s.ops.ExportComplete(status.Key, url, fileName)
}

func (s *ExportService) fail(ctx context.Context, status *ExportStatus, errStr string) {
	log.Printf("export %s: %s", status.Key, errStr)
	status.Error = &errStr
	status.Progress = 100
	_ = s.saveStatus(ctx, status)
	s.ops.ExportFailed(status.Key, errStr)
}

func (s *ExportService) progress(ctx context.Context, status *ExportStatus, p float64) {
	status.Progress = p
	_ = s.saveStatus(ctx, status)
	s.ops.ExportProgress(status.Key, p, "generating")
}

func (s *ExportService) saveStatus(ctx context.Context, st *ExportStatus) error {
	if s.redis == nil {
		return nil
	}
	data, err := json.Marshal(st)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, st.Key, string(data), exportTTL); err != nil {
		return err
	}
	return s.redis.SAdd(ctx, exportSetKey, st.Key)
}

func (s *ExportService) GetExports(ctx context.Context) ([]ExportStatus, error) {
	if s.redis == nil {
		return nil, errors.New("redis client not configured")
	}

	keys, err := s.redis.SMembers(ctx, exportSetKey)
	if err != nil {
		return nil, fmt.Errorf("failed to get export keys: %w", err)
	}

	var statuses []ExportStatus
	for _, key := range keys {
		data, err := s.redis.Get(ctx, key)
		if err != nil {
			continue
		}

		var status ExportStatus
		if err := json.Unmarshal([]byte(data), &status); err != nil {
			continue
		}
		statuses = append(statuses, status)
	}

	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].Created.After(statuses[j].Created)
	})

	return statuses, nil
}

func (s *ExportService) GetExport(ctx context.Context, exportID string) (*ExportStatus, error) {
	if s.redis == nil {
		return nil, errors.New("redis client not configured")
	}

	data, err := s.redis.Get(ctx, exportID)
	if err != nil {
		return nil, &domain.NotFoundError{Entity: "export", ID: exportID}
	}

	var status ExportStatus
	if err := json.Unmarshal([]byte(data), &status); err != nil {
		return nil, fmt.Errorf("corrupt export status: %w", err)
	}
	return &status, nil
}

func transactionsFilterMap(f repository.TransactionsFilter) map[string]any {
	m := map[string]any{}
	if f.LoanID != nil {
		m["loan_id"] = *f.LoanID
	} else {
		m["loan_id"] = nil
	}
	if f.Source != nil {
		m["source"] = *f.Source
	} else {
		m["source"] = nil
	}
	if f.FromDate != nil {
		m["from_date"] = f.FromDate.Format("2006-01-02")
	} else {
		m["from_date"] = nil
	}
	if f.ToDate != nil {
		m["to_date"] = f.ToDate.Format("2006-01-02")
	} else {
		m["to_date"] = nil
	}
	return m
}
