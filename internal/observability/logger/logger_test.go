package logger

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/shikkha/internal/observability/context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func TestOperationFromSQL(t *testing.T) {
	cases := map[string]string{
		"SELECT id FROM payments":                     "SELECT",
		"  insert into user_courses (id) values (1)":  "INSERT",
		"WITH due AS (SELECT 1) UPDATE payments SET": "UPDATE",
		"":                                            "UNKNOWN",
		"VACUUM":                                      "UNKNOWN",
	}
	for sql, want := range cases {
		assert.Equal(t, want, operationFromSQL(sql), sql)
	}
}

func TestNewRejectsInvalidLevel(t *testing.T) {
	_, err := New(nil, Config{Level: "loud"})
	require.Error(t, err)
}

func TestGinMiddlewarePropagatesRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var seen string

	r := gin.New()
	r.Use(GinMiddleware(MiddlewareConfig{}))
	r.GET("/health", func(c *gin.Context) {
		seen = obscontext.RequestIDFromContext(c.Request.Context())
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-Id", "req-42")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "req-42", seen)
	assert.Equal(t, "req-42", w.Header().Get("X-Request-Id"))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))
}

func TestTableFromSQL(t *testing.T) {
	cases := map[string]string{
		`SELECT id FROM "payments" WHERE id = ?`:       "payments",
		"INSERT INTO user_courses (id) VALUES (1)":     "user_courses",
		"UPDATE enrollment_grants SET status = 'done'": "enrollment_grants",
		"SELECT 1":                                     "",
	}
	for sql, want := range cases {
		assert.Equal(t, want, tableFromSQL(sql), sql)
	}
}

func TestGormLoggerConfigFromEnv(t *testing.T) {
	cfg := GormLoggerConfigFromEnv("INFO", 0)
	assert.Equal(t, gormlogger.Info, cfg.Level)
	assert.Equal(t, 200*time.Millisecond, cfg.SlowThreshold)
	assert.True(t, cfg.IgnoreRecordNotFound)

	assert.Equal(t, gormlogger.Warn, GormLoggerConfigFromEnv("chatty", time.Second).Level)
	assert.Equal(t, gormlogger.Silent, GormLoggerConfigFromEnv("off", time.Second).Level)
}

func TestWithContextOmitsEmptyFields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	base := zap.New(core)

	WithContext(context.Background(), base).Info("plain")
	ctx := obscontext.WithActor(obscontext.WithRequestID(context.Background(), "req-7"), "user", "auth-1")
	WithContext(ctx, base).Info("scoped")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Empty(t, entries[0].ContextMap())
	assert.Equal(t, map[string]interface{}{
		"request_id": "req-7",
		"actor_type": "user",
		"actor_id":   "auth-1",
	}, entries[1].ContextMap())
}

func TestRequestLevel(t *testing.T) {
	assert.Equal(t, zap.ErrorLevel, requestLevel(http.StatusBadGateway, "gateway_error", true))
	assert.Equal(t, zap.DebugLevel, requestLevel(http.StatusOK, "", true))
	assert.Equal(t, zap.DebugLevel, requestLevel(http.StatusBadRequest, "validation_error", false))
	assert.Equal(t, zap.WarnLevel, requestLevel(http.StatusTooManyRequests, "rate_limited", false))
	assert.Equal(t, zap.InfoLevel, requestLevel(http.StatusFound, "", false))
}
