package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"gorm.io/gorm"
)

type fakeGatewayError struct{}

func (fakeGatewayError) Error() string      { return "gateway down" }
func (fakeGatewayError) GatewayError() bool { return true }

func TestClassifySchedulerJobReason(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "deadline",
			err:  context.DeadlineExceeded,
			want: SchedulerJobReasonDeadlineExceeded,
		},
		{
			name: "db_lock_timeout",
			err:  &pgconn.PgError{Code: "55P03"},
			want: SchedulerJobReasonDBLockTimeout,
		},
		{
			name: "serialization_failure",
			err:  &pgconn.PgError{Code: "40001"},
			want: SchedulerJobReasonSerializationFailure,
		},
		{
			name: "unique_violation",
			err:  gorm.ErrDuplicatedKey,
			want: SchedulerJobReasonUniqueViolation,
		},
		{
			name: "gateway",
			err:  errors.Join(errors.New("execute"), fakeGatewayError{}),
			want: SchedulerJobReasonGateway,
		},
		{
			name: "unknown",
			err:  errors.New("boom"),
			want: SchedulerJobReasonUnknown,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifySchedulerJobReason(tc.err); got != tc.want {
				t.Fatalf("expected reason %q, got %q", tc.want, got)
			}
		})
	}
}

func TestIsSchedulerErrorRetryable(t *testing.T) {
	if IsSchedulerErrorRetryable(nil) {
		t.Fatalf("nil error must not be retryable")
	}
	if !IsSchedulerErrorRetryable(fakeGatewayError{}) {
		t.Fatalf("gateway errors should be retryable")
	}
	if IsSchedulerErrorRetryable(gorm.ErrRecordNotFound) {
		t.Fatalf("record not found should not be retryable")
	}
}

func TestAddBatchProcessed(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := newSchedulerMetrics(registry, Config{
		ServiceName: "shikkha",
		Environment: "test",
	})

	metrics.AddBatchProcessed("enrollment_grants", "grants", 3)
	metrics.ObserveRunLoopLag(-time.Second)

	got := testutil.ToFloat64(metrics.batchProcessed.WithLabelValues("enrollment_grants", "grants"))
	if got != 3 {
		t.Fatalf("expected processed count 3, got %v", got)
	}
}

func TestNewSchedulerMetricsReusesRegisteredCollectors(t *testing.T) {
	registry := prometheus.NewRegistry()
	first := newSchedulerMetrics(registry, Config{ServiceName: "shikkha", Environment: "test"})
	second := newSchedulerMetrics(registry, Config{ServiceName: "shikkha", Environment: "test"})

	first.IncJobRun("reconcile_payments")
	second.IncJobRun("reconcile_payments")

	got := testutil.ToFloat64(first.jobRuns.WithLabelValues("reconcile_payments"))
	if got != 2 {
		t.Fatalf("expected shared counter value 2, got %v", got)
	}
}
