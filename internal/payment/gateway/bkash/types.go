package bkash

import (
	"encoding/json"
	"strconv"
	"strings"
)

// envelope holds the status fields bKash returns on every response. Error
// responses use errorCode/errorMessage instead.
type envelope struct {
	StatusCode    string `json:"statusCode"`
	StatusMessage string `json:"statusMessage"`
	ErrorCode     string `json:"errorCode"`
	ErrorMessage  string `json:"errorMessage"`
}

func (e envelope) code() string {
	if e.StatusCode != "" {
		return e.StatusCode
	}
	return e.ErrorCode
}

func (e envelope) message() string {
	if e.StatusMessage != "" {
		return e.StatusMessage
	}
	return e.ErrorMessage
}

type grantRequest struct {
	AppKey    string `json:"app_key"`
	AppSecret string `json:"app_secret"`
}

type grantResponse struct {
	envelope
	IDToken      string     `json:"id_token"`
	RefreshToken string     `json:"refresh_token"`
	TokenType    string     `json:"token_type"`
	ExpiresIn    flexNumber `json:"expires_in"`
}

type createRequest struct {
	Mode                  string `json:"mode"`
	PayerReference        string `json:"payerReference"`
	CallbackURL           string `json:"callbackURL"`
	Amount                string `json:"amount"`
	Currency              string `json:"currency"`
	Intent                string `json:"intent"`
	MerchantInvoiceNumber string `json:"merchantInvoiceNumber"`
}

type createResponse struct {
	envelope
	PaymentID             string `json:"paymentID"`
	BkashURL              string `json:"bkashURL"`
	CallbackURL           string `json:"callbackURL"`
	Amount                string `json:"amount"`
	Intent                string `json:"intent"`
	Currency              string `json:"currency"`
	PaymentCreateTime     string `json:"paymentCreateTime"`
	TransactionStatus     string `json:"transactionStatus"`
	MerchantInvoiceNumber string `json:"merchantInvoiceNumber"`
}

type paymentIDRequest struct {
	PaymentID string `json:"paymentID"`
}

type paymentResponse struct {
	envelope
	PaymentID             string `json:"paymentID"`
	TrxID                 string `json:"trxID"`
	TransactionStatus     string `json:"transactionStatus"`
	Amount                string `json:"amount"`
	Currency              string `json:"currency"`
	Intent                string `json:"intent"`
	PaymentExecuteTime    string `json:"paymentExecuteTime"`
	MerchantInvoiceNumber string `json:"merchantInvoiceNumber"`
	CustomerMsisdn        string `json:"customerMsisdn"`
}

type refundRequest struct {
	PaymentID string `json:"paymentID"`
	Amount    string `json:"amount"`
	TrxID     string `json:"trxID"`
	SKU       string `json:"sku"`
	Reason    string `json:"reason"`
}

type refundResponse struct {
	envelope
	CompletedTime     string `json:"completedTime"`
	TransactionStatus string `json:"transactionStatus"`
	OriginalTrxID     string `json:"originalTrxID"`
	RefundTrxID       string `json:"refundTrxID"`
	Amount            string `json:"amount"`
	Currency          string `json:"currency"`
	Charge            string `json:"charge"`
}

// flexNumber accepts both 3600 and "3600".
type flexNumber string

func (n *flexNumber) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(string(data), `"`)
	if raw == "null" {
		raw = ""
	}
	*n = flexNumber(raw)
	return nil
}

func (n flexNumber) Int64() int64 {
	v, err := strconv.ParseInt(string(n), 10, 64)
	if err != nil {
		return 0
	}
	return v
}

var _ json.Unmarshaler = (*flexNumber)(nil)
