package clients

import (
	"loanster-core/internal/domain"
	ws "loanster-core/internal/transport/websocket"
)

// OpsFeedClient pushes ledger and reconciliation events to the back-office
// feed. Every method is nil-safe and fire-and-forget.
type OpsFeedClient struct {
	hub *ws.Hub
}

func NewOpsFeedClient(hub *ws.Hub) *OpsFeedClient {
	return &OpsFeedClient{hub: hub}
}

func (c *OpsFeedClient) PaymentApplied(loan *domain.Loan, txn *domain.Transaction) {
	if c == nil || c.hub == nil {
		return
	}
	c.hub.Broadcast(&ws.Event{
		Type: "payment_applied",
		Data: map[string]interface{}{
			"loan_id":       loan.ID,
			"loan_number":   loan.Number,
			"reference_id":  txn.ReferenceID,
			"amount":        txn.Amount,
			"balance_after": txn.BalanceAfter,
			"status":        loan.Status,
		},
	})
}

func (c *OpsFeedClient) LoanClosed(loan *domain.Loan) {
	if c == nil || c.hub == nil {
		return
	}
	c.hub.Broadcast(&ws.Event{
		Type: "loan_closed",
		Data: map[string]interface{}{
			"loan_id":     loan.ID,
			"loan_number": loan.Number,
		},
	})
}

func (c *OpsFeedClient) PendingPaymentStaged(p *domain.PendingPayment) {
	if c == nil || c.hub == nil {
		return
	}
	c.hub.Broadcast(&ws.Event{
		Type: "pending_payment_staged",
		Data: map[string]interface{}{
			"pending_id":   p.ID,
			"reference_id": p.ReferenceID,
			"amount":       p.Amount,
		},
	})
}

func (c *OpsFeedClient) ExportProgress(exportID string, progress float64, stage string) {
	if c == nil || c.hub == nil {
		return
	}
	data := map[string]interface{}{
		"id":       exportID,
		"progress": progress,
	}
	if stage != "" {
		data["stage"] = stage
	}
	c.hub.Broadcast(&ws.Event{Type: "export_progress", Data: data})
}

func (c *OpsFeedClient) ExportComplete(exportID, url, fileName string) {
	if c == nil || c.hub == nil {
		return
	}
	c.hub.Broadcast(&ws.Event{
		Type: "export_complete",
		Data: map[string]interface{}{
			"id":       exportID,
			"file_url": url,
			"filename": fileName,
		},
	})
}

func (c *OpsFeedClient) ExportFailed(exportID, errMsg string) {
	if c == nil || c.hub == nil {
		return
	}
	c.hub.Broadcast(&ws.Event{
		Type: "export_failed",
		Data: map[string]interface{}{
			"id":    exportID,
			"error": errMsg,
		},
	})
}
