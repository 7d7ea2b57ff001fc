package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func fixed(status Status, msg string) Check {
	return func(ctx context.Context) ComponentHealth {
		return ComponentHealth{Status: status, Message: msg}
	}
}

func TestRunAggregatesWorstStatus(t *testing.T) {
	c := NewChecker()
	c.Register("index", fixed(StatusUp, ""))
	c.Register("cache", fixed(StatusDegraded, "uncached"))

	report := c.Run(context.Background())
	require.Equal(t, StatusDegraded, report.Status)
	require.Len(t, report.Components, 2)
	require.Equal(t, "uncached", report.Components["cache"].Message)
	require.NotEmpty(t, report.Components["index"].Took)
	require.NotEmpty(t, report.CheckedAt)
}

func TestRunDownBeatsDegraded(t *testing.T) {
	c := NewChecker()
	c.Register("a", fixed(StatusDegraded, ""))
	c.Register("b", fixed(StatusDown, "unreachable"))
	c.Register("c", fixed(StatusUp, ""))

	require.Equal(t, StatusDown, c.Run(context.Background()).Status)
}

func TestRegisterReplacesByName(t *testing.T) {
	c := NewChecker()
	c.Register("index", fixed(StatusDown, "stale"))
	c.Register("index", fixed(StatusUp, "fresh"))

	report := c.Run(context.Background())
	require.Equal(t, StatusUp, report.Status)
	require.Equal(t, "fresh", report.Components["index"].Message)
}

func TestPingCheck(t *testing.T) {
	up := PingCheck(func(ctx context.Context) error { return nil })
	require.Equal(t, StatusUp, up(context.Background()).Status)

	down := PingCheck(func(ctx context.Context) error { return errors.New("refused") })
	got := down(context.Background())
	require.Equal(t, StatusDown, got.Status)
	require.Equal(t, "refused", got.Message)
}

func TestReadyHandlerServesWhileDegraded(t *testing.T) {
	c := NewChecker()
	c.Register("cache", fixed(StatusDegraded, "uncached"))

	rec := httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var report Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	require.Equal(t, StatusDegraded, report.Status)
}

func TestReadyHandlerRefusesWhenDown(t *testing.T) {
	c := NewChecker()
	c.Register("postgres", fixed(StatusDown, "connection refused"))

	rec := httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestLiveHandlerIgnoresChecks(t *testing.T) {
	c := NewChecker()
	c.Register("doomed", fixed(StatusDown, ""))

	rec := httptest.NewRecorder()
	c.LiveHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"alive"}`, rec.Body.String())
}
