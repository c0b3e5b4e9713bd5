package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/shikkha/pkg/db/pagination"
)

type CreateRecordRequest struct {
	UserID         string
	CourseID       snowflake.ID
	Amount         int64
	Currency       string
	PaymentChannel string
	TransactionID  string
}

type SuccessRequest struct {
	PaymentID        snowflake.ID
	GatewayPaymentID string
	GatewayTrxID     string
	Payload          []byte
}

type CheckoutRequest struct {
	UserID   string
	CourseID string
}

type CheckoutResult struct {
	Payment     PaymentRecord `json:"payment"`
	RedirectURL string        `json:"redirect_url"`
}

const (
	CallbackStatusSuccess = "success"
	CallbackStatusFailure = "failure"
	CallbackStatusCancel  = "cancel"
)

type CallbackRequest struct {
	GatewayPaymentID string
	Status           string
}

type CallbackResult struct {
	Payment PaymentRecord
	// Enrolled is false when the enrollment was deferred to the grant retry.
	Enrolled bool
}

type RefundPaymentRequest struct {
	PaymentID string
	Reason    string
}

type ListPaymentsRequest struct {
	Status    string
	UserID    string
	CourseID  string
	PageToken string
	PageSize  int
}

type ListPaymentsResponse struct {
	Payments []PaymentRecord    `json:"payments"`
	PageInfo pagination.PageInfo `json:"page_info"`
}

type ReconcileResult struct {
	Checked    int `json:"checked"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
	Skipped    int `json:"skipped"`
}

type GrantResult struct {
	Processed int `json:"processed"`
	Enrolled  int `json:"enrolled"`
	Retried   int `json:"retried"`
}

type Receipt struct {
	Payment     PaymentRecord
	CourseTitle string
	PayerName   string
	PayerEmail  string
	Document    []byte
}

type Service interface {
	CreatePaymentRecord(ctx context.Context, req CreateRecordRequest) (PaymentRecord, error)
	ProcessSuccessfulPayment(ctx context.Context, req SuccessRequest) (PaymentRecord, bool, error)
	ProcessFailedPayment(ctx context.Context, paymentID snowflake.ID, reason string, payload []byte) (PaymentRecord, error)

	Checkout(ctx context.Context, req CheckoutRequest) (CheckoutResult, error)
	HandleCallback(ctx context.Context, req CallbackRequest) (CallbackResult, error)
	Refund(ctx context.Context, req RefundPaymentRequest) (PaymentRecord, error)

	Get(ctx context.Context, id string) (PaymentRecord, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]PaymentRecord, error)
	List(ctx context.Context, req ListPaymentsRequest) (ListPaymentsResponse, error)
	Receipt(ctx context.Context, userID, paymentID string) (Receipt, error)

	Reconcile(ctx context.Context, limit int) (ReconcileResult, error)
	ProcessDueGrants(ctx context.Context, limit int) (GrantResult, error)
}
