package authorization

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (Service, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:authz_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	enforcer, err := NewEnforcer(db)
	require.NoError(t, err)
	return NewService(Params{DB: db, Log: zap.NewNop(), Enforcer: enforcer}), db
}

func TestStudentPermissions(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	assert.NoError(t, svc.Authorize(ctx, "u-1", RoleStudent, ObjectPayment, ActionPaymentCheckout))
	assert.NoError(t, svc.Authorize(ctx, "u-1", "", ObjectLesson, ActionLessonView))
	assert.ErrorIs(t, svc.Authorize(ctx, "u-1", RoleStudent, ObjectPayment, ActionPaymentRefund), ErrForbidden)
	assert.ErrorIs(t, svc.Authorize(ctx, "u-1", RoleStudent, ObjectCourse, ActionCourseCreate), ErrForbidden)
}

func TestAdminInheritsStudentPermissions(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	assert.NoError(t, svc.Authorize(ctx, "admin-1", RoleAdmin, ObjectPayment, ActionPaymentRefund))
	assert.NoError(t, svc.Authorize(ctx, "admin-1", RoleAdmin, ObjectPayment, ActionPaymentCheckout))
	assert.NoError(t, svc.Authorize(ctx, "admin-1", RoleAdmin, ObjectUser, ActionUserView))
}

func TestRoleChangeReplacesGrouping(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Authorize(ctx, "u-2", RoleAdmin, ObjectCourse, ActionCourseUpdate))
	assert.ErrorIs(t, svc.Authorize(ctx, "u-2", RoleStudent, ObjectCourse, ActionCourseUpdate), ErrForbidden)
}

func TestAuthorizeValidatesInput(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	assert.ErrorIs(t, svc.Authorize(ctx, "", RoleStudent, ObjectCourse, ActionCourseView), ErrInvalidActor)
	assert.ErrorIs(t, svc.Authorize(ctx, "u", "owner", ObjectCourse, ActionCourseView), ErrInvalidRole)
	assert.ErrorIs(t, svc.Authorize(ctx, "u", RoleStudent, "", ActionCourseView), ErrInvalidObject)
	assert.ErrorIs(t, svc.Authorize(ctx, "u", RoleStudent, ObjectCourse, " "), ErrInvalidAction)
}

func TestSeedIsIdempotent(t *testing.T) {
	_, db := newTestService(t)
	enforcer, err := NewEnforcer(db)
	require.NoError(t, err)
	policies, err := enforcer.GetPolicy()
	require.NoError(t, err)

	var stored int64
	require.NoError(t, db.Table("casbin_rule").Where("ptype = ?", "p").Count(&stored).Error)
	assert.Equal(t, int64(len(policies)), stored)
}
