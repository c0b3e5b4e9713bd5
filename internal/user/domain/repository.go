package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	Upsert(ctx context.Context, db *gorm.DB, user *User) error
	FindByID(ctx context.Context, db *gorm.DB, id string) (*User, error)
	List(ctx context.Context, db *gorm.DB, limit, offset int) ([]*User, error)
	UpdateRole(ctx context.Context, db *gorm.DB, id, role string) (bool, error)
}
