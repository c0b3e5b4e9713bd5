package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/shikkha/internal/clock"
	"github.com/smallbiznis/shikkha/internal/enrollment/domain"
	"github.com/smallbiznis/shikkha/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Clock   clock.Clock
	GenID   *snowflake.Node
	Repo    domain.Repository
	Metrics *metrics.Metrics `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	clock   clock.Clock
	genID   *snowflake.Node
	repo    domain.Repository
	metrics *metrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("enrollment.service"),
		clock:   p.Clock,
		genID:   p.GenID,
		repo:    p.Repo,
		metrics: p.Metrics,
	}
}

// Enroll is idempotent on (user_id, course_id). A repeated call returns the
// existing row with Created=false.
func (s *Service) Enroll(ctx context.Context, req domain.EnrollRequest) (domain.EnrollResult, error) {
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return domain.EnrollResult{}, domain.ErrInvalidUser
	}
	if req.CourseID == 0 {
		return domain.EnrollResult{}, domain.ErrInvalidCourse
	}
	source := strings.TrimSpace(req.Source)
	if source == "" {
		source = domain.SourcePayment
	}
	if source != domain.SourcePayment && source != domain.SourceManual {
		return domain.EnrollResult{}, domain.ErrInvalidSource
	}

	enrollment := domain.Enrollment{
		ID:         s.genID.Generate(),
		UserID:     userID,
		CourseID:   req.CourseID,
		Source:     source,
		PaymentID:  req.PaymentID,
		EnrolledAt: s.clock.Now(),
	}

	created, err := s.repo.Insert(ctx, s.db, &enrollment)
	if err != nil {
		s.metrics.RecordEnrollment(ctx, source, "error")
		s.log.Error("failed to insert enrollment",
			zap.String("user_id", userID),
			zap.String("course_id", req.CourseID.String()),
			zap.Error(err),
		)
		return domain.EnrollResult{}, err
	}

	stored, err := s.repo.Find(ctx, s.db, userID, req.CourseID)
	if err != nil {
		return domain.EnrollResult{}, err
	}
	if stored == nil {
		// Only reachable if the row was removed between the insert and the read.
		stored = &enrollment
	}

	outcome := "created"
	if !created {
		outcome = "existing"
	}
	s.metrics.RecordEnrollment(ctx, source, outcome)
	s.log.Info("enrollment ensured",
		zap.String("user_id", userID),
		zap.String("course_id", req.CourseID.String()),
		zap.String("source", source),
		zap.Bool("created", created),
	)
	return domain.EnrollResult{Enrollment: *stored, Created: created}, nil
}

func (s *Service) IsEnrolled(ctx context.Context, userID string, courseID snowflake.ID) (bool, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" || courseID == 0 {
		return false, nil
	}
	enrollment, err := s.repo.Find(ctx, s.db, userID, courseID)
	if err != nil {
		return false, err
	}
	return enrollment != nil, nil
}

func (s *Service) ListByUser(ctx context.Context, userID string) ([]domain.Enrollment, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, domain.ErrInvalidUser
	}
	items, err := s.repo.ListByUser(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	return flatten(items), nil
}

func (s *Service) ListByCourse(ctx context.Context, courseID snowflake.ID, limit, offset int) ([]domain.Enrollment, error) {
	if courseID == 0 {
		return nil, domain.ErrInvalidCourse
	}
	if limit <= 0 || limit > 250 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	items, err := s.repo.ListByCourse(ctx, s.db, courseID, limit, offset)
	if err != nil {
		return nil, err
	}
	return flatten(items), nil
}

func flatten(items []*domain.Enrollment) []domain.Enrollment {
	out := make([]domain.Enrollment, 0, len(items))
	for _, item := range items {
		if item != nil {
			out = append(out, *item)
		}
	}
	return out
}
