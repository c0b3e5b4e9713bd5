package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/shikkha/internal/payment/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type grantRepo struct{}

func ProvideGrants() domain.GrantRepository {
	return &grantRepo{}
}

const grantColumns = `id, payment_id, user_id, course_id, status, attempts, last_error, next_attempt_at, created_at, updated_at`

func (r *grantRepo) Insert(ctx context.Context, db *gorm.DB, grant *domain.EnrollmentGrant) (bool, error) {
	res := db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "payment_id"}},
		DoNothing: true,
	}).Create(grant)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *grantRepo) FindByPaymentID(ctx context.Context, db *gorm.DB, paymentID snowflake.ID) (*domain.EnrollmentGrant, error) {
	var grant domain.EnrollmentGrant
	err := db.WithContext(ctx).Raw(
		`SELECT `+grantColumns+` FROM enrollment_grants WHERE payment_id = ?`,
		paymentID,
	).Scan(&grant).Error
	if err != nil {
		return nil, err
	}
	if grant.ID == 0 {
		return nil, nil
	}
	return &grant, nil
}

func (r *grantRepo) ListDue(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]*domain.EnrollmentGrant, error) {
	var grants []*domain.EnrollmentGrant
	err := db.WithContext(ctx).Raw(
		`SELECT `+grantColumns+`
		 FROM enrollment_grants
		 WHERE status = ? AND next_attempt_at <= ?
		 ORDER BY next_attempt_at ASC, id ASC
		 LIMIT ?`,
		domain.GrantStatusPending,
		now,
		limit,
	).Scan(&grants).Error
	if err != nil {
		return nil, err
	}
	return grants, nil
}

func (r *grantRepo) MarkDone(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE enrollment_grants
		 SET status = ?, last_error = NULL, updated_at = ?
		 WHERE id = ?`,
		domain.GrantStatusDone,
		now,
		id,
	).Error
}

func (r *grantRepo) MarkRetry(ctx context.Context, db *gorm.DB, id snowflake.ID, attempts int, lastError string, nextAttemptAt, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE enrollment_grants
		 SET attempts = ?, last_error = ?, next_attempt_at = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		attempts,
		lastError,
		nextAttemptAt,
		now,
		id,
		domain.GrantStatusPending,
	).Error
}
