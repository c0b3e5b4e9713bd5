package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

const (
	StatusPending    = "pending"
	StatusSuccessful = "successful"
	StatusFailed     = "failed"
	StatusRefunded   = "refunded"
)

const (
	ProviderBkash = "bkash"
	ChannelBkash  = "bkash"
)

const (
	GrantStatusPending = "pending"
	GrantStatusDone    = "done"
)

const (
	FailureReasonAbandoned = "abandoned"
	FailureReasonCancelled = "cancelled_by_user"
	FailureReasonDeclined  = "declined"
	FailureReasonGateway   = "gateway_error"
)

// PaymentRecord tracks one checkout attempt. Amount is in minor units.
type PaymentRecord struct {
	ID               snowflake.ID   `gorm:"primaryKey" json:"id"`
	UserID           string         `gorm:"size:64;not null;index" json:"user_id"`
	CourseID         snowflake.ID   `gorm:"not null" json:"course_id"`
	Amount           int64          `gorm:"not null" json:"amount"`
	Currency         string         `gorm:"size:3;not null;default:BDT" json:"currency"`
	PaymentChannel   string         `gorm:"size:32;not null" json:"payment_channel"`
	Status           string         `gorm:"size:16;not null;default:pending;index:idx_payments_status_created_at,priority:1" json:"status"`
	TransactionID    string         `gorm:"size:64;not null;uniqueIndex:ux_payments_transaction_id" json:"transaction_id"`
	GatewayPaymentID *string        `gorm:"size:128;uniqueIndex:ux_payments_gateway_payment_id" json:"gateway_payment_id,omitempty"`
	GatewayURL       *string        `json:"gateway_url,omitempty"`
	GatewayTrxID     *string        `gorm:"size:128" json:"gateway_trx_id,omitempty"`
	GatewayPayload   datatypes.JSON `json:"-"`
	IsVerified       bool           `gorm:"not null;default:false" json:"is_verified"`
	PaidAt           *time.Time     `json:"paid_at,omitempty"`
	FailureReason    *string        `json:"failure_reason,omitempty"`
	RefundClaimedAt  *time.Time     `json:"-"`
	CreatedAt        time.Time      `gorm:"not null;index:idx_payments_status_created_at,priority:2" json:"created_at"`
	UpdatedAt        *time.Time     `json:"updated_at,omitempty"`
}

func (PaymentRecord) TableName() string { return "payments" }

func (p PaymentRecord) IsTerminal() bool {
	return p.Status != StatusPending
}

// EnrollmentGrant is the outbox row that guarantees a paid enrollment is
// eventually written.
type EnrollmentGrant struct {
	ID            snowflake.ID `gorm:"primaryKey" json:"id"`
	PaymentID     snowflake.ID `gorm:"not null;uniqueIndex:ux_enrollment_grants_payment_id" json:"payment_id"`
	UserID        string       `gorm:"size:64;not null" json:"user_id"`
	CourseID      snowflake.ID `gorm:"not null" json:"course_id"`
	Status        string       `gorm:"size:16;not null;default:pending;index:idx_enrollment_grants_due,priority:1" json:"status"`
	Attempts      int          `gorm:"not null;default:0" json:"attempts"`
	LastError     *string      `json:"last_error,omitempty"`
	NextAttemptAt time.Time    `gorm:"not null;index:idx_enrollment_grants_due,priority:2" json:"next_attempt_at"`
	CreatedAt     time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt     time.Time    `gorm:"not null" json:"updated_at"`
}

func (EnrollmentGrant) TableName() string { return "enrollment_grants" }

// CachedToken is the persisted gateway access token. Version increases on
// every refresh and guards concurrent writers.
type CachedToken struct {
	Provider     string    `gorm:"primaryKey;size:32" json:"provider"`
	IDToken      string    `gorm:"not null" json:"-"`
	RefreshToken string    `gorm:"not null;default:''" json:"-"`
	TokenType    string    `gorm:"size:32;not null;default:''" json:"token_type"`
	ExpiresIn    int64     `gorm:"not null;default:0" json:"expires_in"`
	Version      int64     `gorm:"not null;default:1" json:"version"`
	UpdatedAt    time.Time `gorm:"not null" json:"updated_at"`
}

func (CachedToken) TableName() string { return "gateway_tokens" }

// Fresh reports whether the token is still inside its validity window.
func (t *CachedToken) Fresh(now time.Time, ttl time.Duration) bool {
	if t == nil || t.IDToken == "" {
		return false
	}
	return now.Sub(t.UpdatedAt) < ttl
}
