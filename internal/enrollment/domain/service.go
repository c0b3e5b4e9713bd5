package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type EnrollRequest struct {
	UserID    string
	CourseID  snowflake.ID
	Source    string
	PaymentID *snowflake.ID
}

// EnrollResult carries the stored row and whether this call created it.
type EnrollResult struct {
	Enrollment Enrollment
	Created    bool
}

type Service interface {
	Enroll(ctx context.Context, req EnrollRequest) (EnrollResult, error)
	IsEnrolled(ctx context.Context, userID string, courseID snowflake.ID) (bool, error)
	ListByUser(ctx context.Context, userID string) ([]Enrollment, error)
	ListByCourse(ctx context.Context, courseID snowflake.ID, limit, offset int) ([]Enrollment, error)
}

var (
	ErrInvalidUser   = errors.New("invalid_user_id")
	ErrInvalidCourse = errors.New("invalid_course_id")
	ErrInvalidSource = errors.New("invalid_enrollment_source")
)
