package service

import (
	"context"
	"strings"

	"github.com/smallbiznis/shikkha/internal/clock"
	"github.com/smallbiznis/shikkha/internal/user/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock
	repo  domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("user.service"),
		clock: p.Clock,
		repo:  p.Repo,
	}
}

// EnsureUser creates the local user row on the first authenticated request.
// The role is only applied on creation.
func (s *Service) EnsureUser(ctx context.Context, req domain.EnsureUserRequest) (domain.User, error) {
	id := strings.TrimSpace(req.ID)
	if id == "" {
		return domain.User{}, domain.ErrInvalidID
	}
	role := strings.ToLower(strings.TrimSpace(req.Role))
	if role == "" {
		role = domain.RoleStudent
	}
	if !validRole(role) {
		return domain.User{}, domain.ErrInvalidRole
	}

	now := s.clock.Now()
	user := domain.User{
		ID:        id,
		Email:     strings.TrimSpace(req.Email),
		Name:      strings.TrimSpace(req.Name),
		Role:      role,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Upsert(ctx, s.db, &user); err != nil {
		s.log.Error("failed to upsert user", zap.String("user_id", id), zap.Error(err))
		return domain.User{}, err
	}

	stored, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.User{}, err
	}
	if stored == nil {
		return domain.User{}, domain.ErrNotFound
	}
	return *stored, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (domain.User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.User{}, domain.ErrInvalidID
	}
	user, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.User{}, err
	}
	if user == nil {
		return domain.User{}, domain.ErrNotFound
	}
	return *user, nil
}

func (s *Service) List(ctx context.Context, req domain.ListUsersRequest) ([]domain.User, error) {
	limit := req.Limit
	if limit <= 0 || limit > 250 {
		limit = 50
	}
	offset := req.Offset
	if offset < 0 {
		offset = 0
	}

	items, err := s.repo.List(ctx, s.db, limit, offset)
	if err != nil {
		return nil, err
	}
	users := make([]domain.User, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		users = append(users, *item)
	}
	return users, nil
}

func (s *Service) SetRole(ctx context.Context, id, role string) (domain.User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.User{}, domain.ErrInvalidID
	}
	role = strings.ToLower(strings.TrimSpace(role))
	if !validRole(role) {
		return domain.User{}, domain.ErrInvalidRole
	}

	updated, err := s.repo.UpdateRole(ctx, s.db, id, role)
	if err != nil {
		return domain.User{}, err
	}
	if !updated {
		return domain.User{}, domain.ErrNotFound
	}
	s.log.Info("user role changed", zap.String("user_id", id), zap.String("role", role))
	return s.GetByID(ctx, id)
}

func validRole(role string) bool {
	switch role {
	case domain.RoleStudent, domain.RoleAdmin:
		return true
	default:
		return false
	}
}
