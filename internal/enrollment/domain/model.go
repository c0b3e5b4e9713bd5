package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

const (
	SourcePayment = "payment"
	SourceManual  = "manual"
)

// Enrollment grants a user access to a course. (user_id, course_id) is unique.
type Enrollment struct {
	ID         snowflake.ID  `gorm:"primaryKey" json:"id"`
	UserID     string        `gorm:"size:64;not null;uniqueIndex:ux_user_courses_user_course,priority:1" json:"user_id"`
	CourseID   snowflake.ID  `gorm:"not null;uniqueIndex:ux_user_courses_user_course,priority:2;index" json:"course_id"`
	Source     string        `gorm:"size:16;not null;default:payment" json:"source"`
	PaymentID  *snowflake.ID `json:"payment_id,omitempty"`
	EnrolledAt time.Time     `gorm:"not null" json:"enrolled_at"`
}

func (Enrollment) TableName() string { return "user_courses" }
