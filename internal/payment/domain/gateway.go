package domain

import (
	"context"
	"strings"
)

const TransactionStatusCompleted = "Completed"

type CreatePaymentRequest struct {
	// Amount is in minor units.
	Amount                int64
	Currency              string
	PayerReference        string
	CallbackURL           string
	MerchantInvoiceNumber string
}

type CreatePaymentResponse struct {
	PaymentID         string
	RedirectURL       string
	TransactionStatus string
	StatusCode        string
	StatusMessage     string
	Raw               []byte
}

// GatewayPayment is the gateway view of a payment after execute or query.
type GatewayPayment struct {
	PaymentID             string
	TrxID                 string
	TransactionStatus     string
	Amount                string
	Currency              string
	MerchantInvoiceNumber string
	StatusCode            string
	StatusMessage         string
	Raw                   []byte
}

// Completed reports whether the gateway confirmed the funds.
func (p *GatewayPayment) Completed() bool {
	if p == nil {
		return false
	}
	return p.StatusCode == StatusCodeSuccess &&
		strings.EqualFold(strings.TrimSpace(p.TransactionStatus), TransactionStatusCompleted)
}

type RefundRequest struct {
	PaymentID string
	TrxID     string
	// Amount is in minor units.
	Amount int64
	SKU    string
	Reason string
}

type RefundResponse struct {
	OriginalTrxID     string
	RefundTrxID       string
	TransactionStatus string
	Amount            string
	StatusCode        string
	StatusMessage     string
	Raw               []byte
}

// Gateway is the outbound payment provider.
type Gateway interface {
	CreatePayment(ctx context.Context, req CreatePaymentRequest) (*CreatePaymentResponse, error)
	ExecutePayment(ctx context.Context, paymentID string) (*GatewayPayment, error)
	QueryPayment(ctx context.Context, paymentID string) (*GatewayPayment, error)
	RefundPayment(ctx context.Context, req RefundRequest) (*RefundResponse, error)
}
