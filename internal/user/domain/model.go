package domain

import "time"

const (
	RoleStudent = "student"
	RoleAdmin   = "admin"
)

// User mirrors an account of the hosted auth service. ID is the auth subject.
type User struct {
	ID        string    `gorm:"primaryKey;size:64" json:"id"`
	Email     string    `gorm:"size:255;not null;default:''" json:"email"`
	Name      string    `gorm:"size:255;not null;default:''" json:"name"`
	Role      string    `gorm:"size:32;not null;default:student" json:"role"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (User) TableName() string { return "users" }

func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
