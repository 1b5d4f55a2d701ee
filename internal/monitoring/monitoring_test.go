package monitoring_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/exiloncms/exiloncms/internal/database/testutil"
	"github.com/exiloncms/exiloncms/internal/monitoring"
	"github.com/exiloncms/exiloncms/internal/monitoring/checks"
	"github.com/exiloncms/exiloncms/internal/realtime"
	"github.com/exiloncms/exiloncms/pkg/metrics"
)

func TestHealthManagerEvaluate(t *testing.T) {
	manager := monitoring.NewHealthManager()
	manager.RegisterReadiness(monitoring.NewCheck("database", func(ctx context.Context) monitoring.ProbeResult {
		return monitoring.ProbeResult{Status: monitoring.StatusUp}
	}))
	manager.RegisterReadiness(monitoring.NewCheck("redis", func(ctx context.Context) monitoring.ProbeResult {
		return monitoring.ProbeResult{Status: monitoring.StatusDown, Details: "connection refused"}
	}))
	manager.RegisterLiveness(monitoring.NewCheck("panicky", func(ctx context.Context) monitoring.ProbeResult {
		panic("boom")
	}))

	ready := manager.EvaluateReadiness(context.Background())
	require.False(t, ready.Success)
	require.Equal(t, monitoring.StatusDown, ready.Status)
	require.Len(t, ready.Checks, 2)
	require.Equal(t, "redis", ready.Checks[1].Component)

	live := manager.EvaluateLiveness(context.Background())
	require.Equal(t, monitoring.StatusDown, live.Status)
	require.Equal(t, "boom", live.Checks[0].Details)
	require.Equal(t, "panicky", live.Checks[0].Component)

	merged := monitoring.MergeReports(live, ready)
	require.Len(t, merged.Checks, 3)
	require.False(t, merged.Success)

	empty := monitoring.NewHealthManager().EvaluateReadiness(context.Background())
	require.True(t, empty.Success)
	require.Equal(t, monitoring.StatusUp, empty.Status)
}

func TestResultFromError(t *testing.T) {
	require.Equal(t, monitoring.StatusUp, monitoring.ResultFromError("db", nil, time.Second).Status)
	require.Equal(t, monitoring.StatusDown, monitoring.ResultFromError("db", errors.New("refused"), 0).Status)
	require.Equal(t, monitoring.StatusDegraded, monitoring.ResultFromError("db", context.DeadlineExceeded, 0).Status)
}

func TestMaintenanceCheck(t *testing.T) {
	tracker := monitoring.NewJobTracker()
	tracker.Register("update_check")

	result := checks.Maintenance(tracker, 0).Run(context.Background())
	require.Equal(t, monitoring.StatusUp, result.Status)

	tracker.Record("update_check", nil, time.Second)
	tracker.Record("backup", errors.New("disk full"), time.Second)
	result = checks.Maintenance(tracker, 0).Run(context.Background())
	require.Equal(t, monitoring.StatusDegraded, result.Status)
	require.Contains(t, result.Details, "disk full")

	tracker.Record("backup", errors.New("disk full"), time.Second)
	result = checks.Maintenance(tracker, 0).Run(context.Background())
	require.Equal(t, monitoring.StatusDown, result.Status)

	tracker.Record("backup", nil, time.Second)
	result = checks.Maintenance(tracker, 0).Run(context.Background())
	require.Equal(t, monitoring.StatusUp, result.Status)

	jobs := tracker.Snapshot()
	require.Len(t, jobs, 2)
	require.Equal(t, "backup", jobs[0].Job)
	require.Equal(t, uint64(3), jobs[0].TotalRuns)
	require.Equal(t, uint64(2), jobs[0].Failures)
	require.Zero(t, jobs[0].ConsecutiveFailures)
}

func TestDatabaseAndRealtimeChecks(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	dbResult := checks.Database(db, 10*time.Second).Run(context.Background())
	require.Equal(t, monitoring.StatusUp, dbResult.Status)
	require.Contains(t, dbResult.Details, "sqlite:")
	require.Equal(t, monitoring.StatusDown, checks.Database(nil, 0).Run(context.Background()).Status)

	require.Equal(t, monitoring.StatusUp, checks.Redis(nil, false, 0).Run(context.Background()).Status)
	require.Equal(t, monitoring.StatusDegraded, checks.Redis(nil, true, 0).Run(context.Background()).Status)

	result := checks.Realtime(realtime.NewHub()).Run(context.Background())
	require.Equal(t, monitoring.StatusUp, result.Status)
	require.Contains(t, result.Details, "0 notification subscribers")
	require.Equal(t, monitoring.StatusDegraded, checks.Realtime(nil).Run(context.Background()).Status)
}

func TestDirectoriesCheck(t *testing.T) {
	dir := t.TempDir()
	require.Equal(t, monitoring.StatusUp, checks.Directories(map[string]string{"plugins": dir}).Run(context.Background()).Status)

	file := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
	result := checks.Directories(map[string]string{
		"plugins": dir,
		"themes":  filepath.Join(dir, "missing"),
		"backups": file,
	}).Run(context.Background())
	require.Equal(t, monitoring.StatusDown, result.Status)
	require.Contains(t, result.Details, "themes:")
	require.Contains(t, result.Details, "backups:")
}

func TestModuleHandlerServesMetrics(t *testing.T) {
	metrics.UpdateChecks.WithLabelValues("github", "success").Inc()

	srv := httptest.NewServer(monitoring.NewModule().Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(body), "exiloncms_update_checks_total")
}
