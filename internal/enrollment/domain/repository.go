package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// Insert reports false when the (user_id, course_id) pair already exists.
	Insert(ctx context.Context, db *gorm.DB, enrollment *Enrollment) (bool, error)
	Find(ctx context.Context, db *gorm.DB, userID string, courseID snowflake.ID) (*Enrollment, error)
	ListByUser(ctx context.Context, db *gorm.DB, userID string) ([]*Enrollment, error)
	ListByCourse(ctx context.Context, db *gorm.DB, courseID snowflake.ID, limit, offset int) ([]*Enrollment, error)
}
