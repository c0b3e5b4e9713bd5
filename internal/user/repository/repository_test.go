package repository

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/smallbiznis/shikkha/internal/user/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

func TestUpsertBuildsMySQLUpsertWithoutRole(t *testing.T) {
	db, err := gorm.Open(mysql.New(mysql.Config{
		DSN:                       "shikkha:shikkha@tcp(127.0.0.1:3306)/shikkha?parseTime=true",
		SkipInitializeWithVersion: true,
	}), &gorm.Config{DryRun: true, DisableAutomaticPing: true})
	require.NoError(t, err)

	var statement string
	require.NoError(t, db.Callback().Create().After("gorm:create").Register("test:capture_sql", func(tx *gorm.DB) {
		statement = tx.Statement.SQL.String()
	}))

	now := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	require.NoError(t, Provide().Upsert(context.Background(), db, &domain.User{
		ID:        "auth-1",
		Email:     "s1@example.com",
		Name:      "Rafi",
		Role:      domain.RoleStudent,
		CreatedAt: now,
		UpdatedAt: now,
	}))

	assert.NotContains(t, statement, "ON CONFLICT")
	_, update, found := strings.Cut(statement, "ON DUPLICATE KEY UPDATE")
	require.True(t, found, statement)
	assert.Contains(t, update, "`email`=")
	assert.NotContains(t, update, "`role`")
}
