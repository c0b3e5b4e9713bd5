package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidAmount        = errors.New("invalid_amount")
	ErrMissingCallback      = errors.New("missing_callback_url")
	ErrTokenUnavailable     = errors.New("token_unavailable")
	ErrGateway              = errors.New("gateway_error")
	ErrDatabase             = errors.New("database_error")
	ErrPaymentNotFound      = errors.New("payment_not_found")
	ErrAlreadyProcessed     = errors.New("payment_already_processed")
	ErrInvalidTransition    = errors.New("invalid_payment_transition")
	ErrDuplicateTransaction = errors.New("duplicate_transaction_id")
	ErrAlreadyEnrolled      = errors.New("already_enrolled")
	ErrCourseNotPurchasable = errors.New("course_not_purchasable")
	ErrInvalidRequest       = errors.New("invalid_payment_request")
	ErrRateLimited          = errors.New("checkout_rate_limited")
	ErrRefundInProgress     = errors.New("refund_in_progress")
)

const (
	StatusCodeSuccess       = "0000"
	StatusCodeMinimumAmount = "2065"
)

// StatusError carries the gateway status code alongside the sentinel it
// unwraps to.
type StatusError struct {
	Code    string
	Message string
	Err     error
}

func (e *StatusError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code == "" {
		return fmt.Sprintf("%v: %s", e.Err, e.Message)
	}
	return fmt.Sprintf("%v: %s (%s)", e.Err, e.Message, e.Code)
}

func (e *StatusError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// GatewayError marks errors produced by the remote gateway as retryable for
// the scheduler.
func (e *StatusError) GatewayError() bool {
	return e != nil && errors.Is(e.Err, ErrGateway)
}

func NewMinimumAmountError() *StatusError {
	return &StatusError{
		Code:    StatusCodeMinimumAmount,
		Message: "minimum amount 1",
		Err:     ErrInvalidAmount,
	}
}

// RateLimitError unwraps to ErrRateLimited and carries the wait hint from the
// bucket.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return ErrRateLimited.Error()
}

func (e *RateLimitError) Unwrap() error {
	return ErrRateLimited
}
