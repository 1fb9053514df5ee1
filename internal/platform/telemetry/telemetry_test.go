package telemetry

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/hms/hms/internal/platform/audit"
)

type nopRecorder struct{}

func (nopRecorder) Record(context.Context, audit.Entry) {}

func TestMiddleware_CountsRealStatus(t *testing.T) {
	m := New()
	e := echo.New()
	e.Use(m.Middleware())

	e.GET("/ok", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	e.GET("/denied", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusForbidden, "access denied")
	})
	e.GET("/broken", func(c echo.Context) error {
		return errors.New("boom")
	})

	for _, path := range []string{"/ok", "/denied", "/broken"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
	}

	cases := []struct {
		route  string
		status string
	}{
		{"/ok", "200"},
		{"/denied", "403"},
		{"/broken", "500"},
	}
	for _, tc := range cases {
		got := testutil.ToFloat64(m.httpRequests.WithLabelValues(http.MethodGet, tc.route, tc.status))
		if got != 1 {
			t.Errorf("http_requests_total{route=%q,status=%s} = %v, want 1", tc.route, tc.status, got)
		}
	}

	// The error responses must not have been counted as 200.
	if got := testutil.ToFloat64(m.httpRequests.WithLabelValues(http.MethodGet, "/denied", "200")); got != 0 {
		t.Errorf("denied route counted as 200: %v", got)
	}
}

func TestHookRecorder_CountsSecurityEvents(t *testing.T) {
	m := New()
	rec := m.HookRecorder(nopRecorder{})
	ctx := context.Background()

	rec.Record(ctx, audit.LoginSucceeded("a@hospital.com"))
	rec.Record(ctx, audit.LoginFailed("b@hospital.com", "bad password"))
	rec.Record(ctx, audit.LoginFailed("b@hospital.com", "bad password"))

	if got := testutil.ToFloat64(m.LoginAttempts.WithLabelValues("success")); got != 1 {
		t.Errorf("login success counter = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.LoginAttempts.WithLabelValues("failure")); got != 2 {
		t.Errorf("login failure counter = %v, want 2", got)
	}
}
