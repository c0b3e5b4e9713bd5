package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/shikkha/internal/enrollment/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, enrollment *domain.Enrollment) (bool, error) {
	res := db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "course_id"}},
		DoNothing: true,
	}).Create(enrollment)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) Find(ctx context.Context, db *gorm.DB, userID string, courseID snowflake.ID) (*domain.Enrollment, error) {
	var enrollment domain.Enrollment
	err := db.WithContext(ctx).Raw(
		`SELECT id, user_id, course_id, source, payment_id, enrolled_at
		 FROM user_courses
		 WHERE user_id = ? AND course_id = ?`,
		userID,
		courseID,
	).Scan(&enrollment).Error
	if err != nil {
		return nil, err
	}
	if enrollment.ID == 0 {
		return nil, nil
	}
	return &enrollment, nil
}

func (r *repo) ListByUser(ctx context.Context, db *gorm.DB, userID string) ([]*domain.Enrollment, error) {
	var items []*domain.Enrollment
	err := db.WithContext(ctx).Raw(
		`SELECT id, user_id, course_id, source, payment_id, enrolled_at
		 FROM user_courses
		 WHERE user_id = ?
		 ORDER BY enrolled_at DESC, id DESC`,
		userID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListByCourse(ctx context.Context, db *gorm.DB, courseID snowflake.ID, limit, offset int) ([]*domain.Enrollment, error) {
	var items []*domain.Enrollment
	err := db.WithContext(ctx).Raw(
		`SELECT id, user_id, course_id, source, payment_id, enrolled_at
		 FROM user_courses
		 WHERE course_id = ?
		 ORDER BY enrolled_at DESC, id DESC
		 LIMIT ? OFFSET ?`,
		courseID,
		limit,
		offset,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
