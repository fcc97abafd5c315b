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

func TestAddBatchProcessed(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := newSchedulerMetrics(registry, Config{
		ServiceName: "listingcraft",
		Environment: "test",
	})

	metrics.AddBatchProcessed("sweep_incomplete", "subscriptions", 3)

	got := testutil.ToFloat64(metrics.batchProcessed.WithLabelValues("sweep_incomplete", "subscriptions"))
	if got != 3 {
		t.Fatalf("expected processed count 3, got %v", got)
	}
}

func TestHTTPMetricsObserveRequest(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := newHTTPMetrics(registry, Config{
		ServiceName: "listingcraft",
		Environment: "test",
	})

	m.ObserveRequest("GET", "/v1/plans", 200, 15*time.Millisecond)
	m.ObserveRequest("GET", "", 404, time.Millisecond)

	got := testutil.ToFloat64(m.requests.WithLabelValues("GET", "/v1/plans", "200"))
	if got != 1 {
		t.Fatalf("expected 1 request on /v1/plans, got %v", got)
	}
	got = testutil.ToFloat64(m.requests.WithLabelValues("GET", "unmatched", "404"))
	if got != 1 {
		t.Fatalf("expected 1 unmatched request, got %v", got)
	}
}
