package repository

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/shikkha/internal/enrollment/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

func TestInsertBuildsMySQLUpsert(t *testing.T) {
	db, err := gorm.Open(mysql.New(mysql.Config{
		DSN:                       "shikkha:shikkha@tcp(127.0.0.1:3306)/shikkha?parseTime=true",
		SkipInitializeWithVersion: true,
	}), &gorm.Config{DryRun: true, DisableAutomaticPing: true})
	require.NoError(t, err)

	var statement string
	require.NoError(t, db.Callback().Create().After("gorm:create").Register("test:capture_sql", func(tx *gorm.DB) {
		statement = tx.Statement.SQL.String()
	}))

	_, err = Provide().Insert(context.Background(), db, &domain.Enrollment{
		ID:         1,
		UserID:     "student-1",
		CourseID:   2,
		Source:     domain.SourceManual,
		EnrolledAt: time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	assert.Contains(t, statement, "INSERT INTO `user_courses`")
	assert.Contains(t, statement, "ON DUPLICATE KEY UPDATE")
	assert.NotContains(t, statement, "ON CONFLICT")
}
