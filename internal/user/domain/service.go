package domain

import (
	"context"
	"errors"
)

type EnsureUserRequest struct {
	ID    string
	Email string
	Name  string
	Role  string
}

type ListUsersRequest struct {
	Limit  int
	Offset int
}

type Service interface {
	EnsureUser(ctx context.Context, req EnsureUserRequest) (User, error)
	GetByID(ctx context.Context, id string) (User, error)
	List(ctx context.Context, req ListUsersRequest) ([]User, error)
	SetRole(ctx context.Context, id, role string) (User, error)
}

var (
	ErrInvalidID   = errors.New("invalid_user_id")
	ErrInvalidRole = errors.New("invalid_role")
	ErrNotFound    = errors.New("user_not_found")
)
