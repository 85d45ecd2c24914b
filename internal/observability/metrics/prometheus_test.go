package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSweeperMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewSweeperMetrics(reg, Config{ServiceName: "sponsorship", Environment: "test"})

	m.ObserveRun(10 * time.Millisecond)
	m.AddReleased(3)
	m.AddReleased(0)
	m.IncSkipped(SweeperSkipLockHeld)
	m.IncError(context.DeadlineExceeded)
	m.IncError(errors.New("boom"))

	if got := testutil.ToFloat64(m.runs); got != 1 {
		t.Fatalf("expected 1 run, got %v", got)
	}
	if got := testutil.ToFloat64(m.released); got != 3 {
		t.Fatalf("expected 3 released, got %v", got)
	}
	if got := testutil.ToFloat64(m.skipped.WithLabelValues(SweeperSkipLockHeld)); got != 1 {
		t.Fatalf("expected 1 skip, got %v", got)
	}
	if got := testutil.ToFloat64(m.errors.WithLabelValues(SweeperErrorTimeout)); got != 1 {
		t.Fatalf("expected 1 timeout, got %v", got)
	}
	if got := testutil.ToFloat64(m.errors.WithLabelValues(SweeperErrorOther)); got != 1 {
		t.Fatalf("expected 1 error, got %v", got)
	}
}

func TestHTTPMetricsMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	reg := prometheus.NewRegistry()
	m := NewHTTPMetricsWithRegisterer(reg, Config{})

	r := gin.New()
	r.Use(GinMiddleware(m))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	}

	got := testutil.ToFloat64(m.requests.WithLabelValues("/ping", http.MethodGet, fmt.Sprint(http.StatusNoContent)))
	if got != 2 {
		t.Fatalf("expected 2 requests, got %v", got)
	}
}
