package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestIsDuplicateKeyErr(t *testing.T) {
	assert.False(t, IsDuplicateKeyErr(nil))
	assert.True(t, IsDuplicateKeyErr(fmt.Errorf("insert: %w", gorm.ErrDuplicatedKey)))
	assert.True(t, IsDuplicateKeyErr(errors.New(`ERROR: duplicate key value violates unique constraint "payments_transaction_id_key"`)))
	assert.True(t, IsDuplicateKeyErr(errors.New("Error 1062: Duplicate entry")))
	assert.True(t, IsDuplicateKeyErr(errors.New("UNIQUE constraint failed: user_courses.user_id, user_courses.course_id")))
	assert.False(t, IsDuplicateKeyErr(errors.New("connection refused")))
}

func TestIsDuplicateKeyErrReadsPgCode(t *testing.T) {
	assert.True(t, IsDuplicateKeyErr(&pgconn.PgError{Code: "23505"}))
	assert.False(t, IsDuplicateKeyErr(&pgconn.PgError{Code: "40001"}))
}

func TestViolatesConstraint(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "ux_courses_slug"}
	assert.True(t, ViolatesConstraint(fmt.Errorf("insert course: %w", pgErr), "ux_courses_slug", "slug"))
	assert.False(t, ViolatesConstraint(pgErr, "ux_payments_transaction_id", "transaction_id"))

	sqliteErr := errors.New("UNIQUE constraint failed: courses.slug")
	assert.True(t, ViolatesConstraint(sqliteErr, "ux_courses_slug", "courses.slug"))
	assert.False(t, ViolatesConstraint(sqliteErr, "ux_payments_transaction_id", "payments.transaction_id"))

	assert.True(t, ViolatesConstraint(gorm.ErrDuplicatedKey, "ux_courses_slug", "courses.slug"))
	assert.False(t, ViolatesConstraint(errors.New("connection reset"), "ux_courses_slug", "courses.slug"))
}
