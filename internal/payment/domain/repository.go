package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ListFilter struct {
	Status   string
	UserID   string
	CourseID snowflake.ID
	// BeforeID pages backwards through snowflake ids.
	BeforeID snowflake.ID
	Limit    int
}

type GatewayUpdate struct {
	GatewayPaymentID string
	GatewayURL       string
	GatewayTrxID     string
	Payload          datatypes.JSON
}

// Repository persists payment records. Conditional updates report false when
// the row was not in the expected state.
type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, record *PaymentRecord) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*PaymentRecord, error)
	FindByTransactionID(ctx context.Context, db *gorm.DB, transactionID string) (*PaymentRecord, error)
	FindByGatewayPaymentID(ctx context.Context, db *gorm.DB, gatewayPaymentID string) (*PaymentRecord, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*PaymentRecord, error)
	ListPendingBefore(ctx context.Context, db *gorm.DB, before time.Time, limit int) ([]*PaymentRecord, error)

	AttachGateway(ctx context.Context, db *gorm.DB, id snowflake.ID, update GatewayUpdate, now time.Time) (bool, error)
	MarkSuccessful(ctx context.Context, db *gorm.DB, id snowflake.ID, update GatewayUpdate, paidAt time.Time) (bool, error)
	MarkFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, reason string, payload datatypes.JSON, now time.Time) (bool, error)
	// ClaimRefund marks a successful payment as being refunded. It reports
	// false while another claim newer than staleBefore is held.
	ClaimRefund(ctx context.Context, db *gorm.DB, id snowflake.ID, now, staleBefore time.Time) (bool, error)
	ReleaseRefundClaim(ctx context.Context, db *gorm.DB, id snowflake.ID) error
	MarkRefunded(ctx context.Context, db *gorm.DB, id snowflake.ID, payload datatypes.JSON, now time.Time) (bool, error)
}

type GrantRepository interface {
	// Insert reports false when a grant for the payment already exists.
	Insert(ctx context.Context, db *gorm.DB, grant *EnrollmentGrant) (bool, error)
	FindByPaymentID(ctx context.Context, db *gorm.DB, paymentID snowflake.ID) (*EnrollmentGrant, error)
	ListDue(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]*EnrollmentGrant, error)
	MarkDone(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) error
	MarkRetry(ctx context.Context, db *gorm.DB, id snowflake.ID, attempts int, lastError string, nextAttemptAt, now time.Time) error
}

type TokenRepository interface {
	Find(ctx context.Context, db *gorm.DB, provider string) (*CachedToken, error)
	// Save writes the token only if the stored version still equals
	// expectedVersion (0 means no row yet). It reports false when another
	// writer got there first.
	Save(ctx context.Context, db *gorm.DB, token *CachedToken, expectedVersion int64) (bool, error)
}
