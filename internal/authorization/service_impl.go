package authorization

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	ObjectCourse     = "course"
	ObjectLesson     = "lesson"
	ObjectEnrollment = "enrollment"
	ObjectPayment    = "payment"
	ObjectUser       = "user"
)

const (
	ActionCourseView   = "course.view"
	ActionCourseCreate = "course.create"
	ActionCourseUpdate = "course.update"

	ActionLessonView = "lesson.view"

	ActionEnrollmentView    = "enrollment.view"
	ActionEnrollmentViewAll = "enrollment.view_all"
	ActionEnrollmentCreate  = "enrollment.create"

	ActionPaymentCheckout = "payment.checkout"
	ActionPaymentView     = "payment.view"
	ActionPaymentViewAll  = "payment.view_all"
	ActionPaymentRefund   = "payment.refund"

	ActionUserView   = "user.view"
	ActionUserUpdate = "user.update"
)

const (
	RoleStudent = "student"
	RoleAdmin   = "admin"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
}

type ServiceImpl struct {
	db       *gorm.DB
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
}

func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	if err := enforcer.BuildRoleLinks(); err != nil {
		return nil, err
	}
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		db:       p.DB,
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, userID string, role string, object string, action string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ErrInvalidActor
	}
	role = strings.ToLower(strings.TrimSpace(role))
	if role == "" {
		role = RoleStudent
	}
	if role != RoleStudent && role != RoleAdmin {
		return ErrInvalidRole
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	subject := fmt.Sprintf("user:%s", userID)
	if err := s.ensureGrouping(subject, fmt.Sprintf("role:%s", role)); err != nil {
		return err
	}

	allowed, err := s.enforcer.Enforce(subject, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.log.Info("authorization denied",
			zap.String("subject", subject),
			zap.String("object", object),
			zap.String("action", action),
		)
		return ErrForbidden
	}
	return nil
}

// ensureGrouping keeps exactly one role link per subject, so a role change
// takes effect on the next request.
func (s *ServiceImpl) ensureGrouping(subject string, roleName string) error {
	existing, err := s.enforcer.GetFilteredGroupingPolicy(0, subject)
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) < 2 || rule[1] == roleName {
			continue
		}
		params := make([]interface{}, 0, len(rule))
		for _, value := range rule {
			params = append(params, value)
		}
		if _, err := s.enforcer.RemoveGroupingPolicy(params...); err != nil {
			return err
		}
	}

	has, err := s.enforcer.HasGroupingPolicy(subject, roleName)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	_, err = s.enforcer.AddGroupingPolicy(subject, roleName)
	return err
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	studentPolicies := [][]string{
		{ObjectCourse, ActionCourseView},
		{ObjectLesson, ActionLessonView},
		{ObjectEnrollment, ActionEnrollmentView},
		{ObjectPayment, ActionPaymentCheckout},
		{ObjectPayment, ActionPaymentView},
	}
	adminOnly := [][]string{
		{ObjectCourse, ActionCourseCreate},
		{ObjectCourse, ActionCourseUpdate},
		{ObjectEnrollment, ActionEnrollmentCreate},
		{ObjectEnrollment, ActionEnrollmentViewAll},
		{ObjectPayment, ActionPaymentViewAll},
		{ObjectPayment, ActionPaymentRefund},
		{ObjectUser, ActionUserView},
		{ObjectUser, ActionUserUpdate},
	}

	policies := make([][]string, 0, 2*len(studentPolicies)+len(adminOnly))
	for _, p := range studentPolicies {
		policies = append(policies, []string{"role:student", p[0], p[1]})
		policies = append(policies, []string{"role:admin", p[0], p[1]})
	}
	for _, p := range adminOnly {
		policies = append(policies, []string{"role:admin", p[0], p[1]})
	}

	for _, policy := range policies {
		has, err := enforcer.HasPolicy(policy)
		if err != nil {
			return err
		}
		if has {
			continue
		}
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	return nil
}
