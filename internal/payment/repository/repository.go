package repository

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/shikkha/internal/payment/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const paymentColumns = `id, user_id, course_id, amount, currency, payment_channel, status,
	transaction_id, gateway_payment_id, gateway_url, gateway_trx_id, gateway_payload,
	is_verified, paid_at, failure_reason, created_at, updated_at`

func (r *repo) Insert(ctx context.Context, db *gorm.DB, record *domain.PaymentRecord) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO payments (`+paymentColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID,
		record.UserID,
		record.CourseID,
		record.Amount,
		record.Currency,
		record.PaymentChannel,
		record.Status,
		record.TransactionID,
		record.GatewayPaymentID,
		record.GatewayURL,
		record.GatewayTrxID,
		record.GatewayPayload,
		record.IsVerified,
		record.PaidAt,
		record.FailureReason,
		record.CreatedAt,
		record.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.PaymentRecord, error) {
	return r.findOne(ctx, db, `id = ?`, id)
}

func (r *repo) FindByTransactionID(ctx context.Context, db *gorm.DB, transactionID string) (*domain.PaymentRecord, error) {
	return r.findOne(ctx, db, `transaction_id = ?`, transactionID)
}

func (r *repo) FindByGatewayPaymentID(ctx context.Context, db *gorm.DB, gatewayPaymentID string) (*domain.PaymentRecord, error) {
	return r.findOne(ctx, db, `gateway_payment_id = ?`, gatewayPaymentID)
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, where string, arg any) (*domain.PaymentRecord, error) {
	var record domain.PaymentRecord
	err := db.WithContext(ctx).Raw(
		`SELECT `+paymentColumns+` FROM payments WHERE `+where,
		arg,
	).Scan(&record).Error
	if err != nil {
		return nil, err
	}
	if record.ID == 0 {
		return nil, nil
	}
	return &record, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]*domain.PaymentRecord, error) {
	clauses := []string{}
	args := []any{}
	if filter.Status != "" {
		clauses = append(clauses, `status = ?`)
		args = append(args, filter.Status)
	}
	if filter.UserID != "" {
		clauses = append(clauses, `user_id = ?`)
		args = append(args, filter.UserID)
	}
	if filter.CourseID != 0 {
		clauses = append(clauses, `course_id = ?`)
		args = append(args, filter.CourseID)
	}
	if filter.BeforeID != 0 {
		clauses = append(clauses, `id < ?`)
		args = append(args, filter.BeforeID)
	}

	query := `SELECT ` + paymentColumns + ` FROM payments`
	if len(clauses) > 0 {
		query += ` WHERE ` + strings.Join(clauses, ` AND `)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, filter.Limit)

	var records []*domain.PaymentRecord
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

func (r *repo) ListPendingBefore(ctx context.Context, db *gorm.DB, before time.Time, limit int) ([]*domain.PaymentRecord, error) {
	var records []*domain.PaymentRecord
	err := db.WithContext(ctx).Raw(
		`SELECT `+paymentColumns+`
		 FROM payments
		 WHERE status = ? AND created_at < ?
		 ORDER BY created_at ASC, id ASC
		 LIMIT ?`,
		domain.StatusPending,
		before,
		limit,
	).Scan(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (r *repo) AttachGateway(ctx context.Context, db *gorm.DB, id snowflake.ID, update domain.GatewayUpdate, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE payments
		 SET gateway_payment_id = ?, gateway_url = ?, gateway_payload = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		nullable(update.GatewayPaymentID),
		nullable(update.GatewayURL),
		payloadOrEmpty(update.Payload),
		now,
		id,
		domain.StatusPending,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) MarkSuccessful(ctx context.Context, db *gorm.DB, id snowflake.ID, update domain.GatewayUpdate, paidAt time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE payments
		 SET status = ?,
			is_verified = ?,
			paid_at = ?,
			gateway_payment_id = COALESCE(?, gateway_payment_id),
			gateway_trx_id = ?,
			gateway_payload = ?,
			updated_at = ?
		 WHERE id = ? AND status = ?`,
		domain.StatusSuccessful,
		true,
		paidAt,
		nullable(update.GatewayPaymentID),
		nullable(update.GatewayTrxID),
		payloadOrEmpty(update.Payload),
		paidAt,
		id,
		domain.StatusPending,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) MarkFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, reason string, payload datatypes.JSON, now time.Time) (bool, error) {
	query := `UPDATE payments
		 SET status = ?, failure_reason = ?, updated_at = ?
		 WHERE id = ? AND status = ?`
	args := []any{domain.StatusFailed, nullable(reason), now, id, domain.StatusPending}
	if len(payload) > 0 {
		query = `UPDATE payments
		 SET status = ?, failure_reason = ?, updated_at = ?, gateway_payload = ?
		 WHERE id = ? AND status = ?`
		args = []any{domain.StatusFailed, nullable(reason), now, payload, id, domain.StatusPending}
	}
	res := db.WithContext(ctx).Exec(query, args...)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) ClaimRefund(ctx context.Context, db *gorm.DB, id snowflake.ID, now, staleBefore time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE payments
		 SET refund_claimed_at = ?
		 WHERE id = ? AND status = ?
		   AND (refund_claimed_at IS NULL OR refund_claimed_at < ?)`,
		now,
		id,
		domain.StatusSuccessful,
		staleBefore,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) ReleaseRefundClaim(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`UPDATE payments SET refund_claimed_at = NULL WHERE id = ? AND status = ?`,
		id,
		domain.StatusSuccessful,
	).Error
}

func (r *repo) MarkRefunded(ctx context.Context, db *gorm.DB, id snowflake.ID, payload datatypes.JSON, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE payments
		 SET status = ?, gateway_payload = ?, updated_at = ?, refund_claimed_at = NULL
		 WHERE id = ? AND status = ?`,
		domain.StatusRefunded,
		payloadOrEmpty(payload),
		now,
		id,
		domain.StatusSuccessful,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func nullable(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}

func payloadOrEmpty(payload datatypes.JSON) datatypes.JSON {
	if len(payload) == 0 {
		return datatypes.JSON("{}")
	}
	return payload
}
