package checks

import (
	"context"
	"strings"
	"time"

	"github.com/exiloncms/exiloncms/internal/monitoring"
)

const defaultMaintenanceMaxAge = 26 * time.Hour

// JobSource exposes scheduled job history.
type JobSource interface {
	Snapshot() []monitoring.JobSummary
}

// Maintenance degrades when a scheduled job has not run within maxAge and
// fails when a job keeps failing.
func Maintenance(source JobSource, maxAge time.Duration) monitoring.Check {
	if maxAge <= 0 {
		maxAge = defaultMaintenanceMaxAge
	}

	return monitoring.NewCheck("maintenance", func(ctx context.Context) monitoring.ProbeResult {
		if source == nil {
			return monitoring.ProbeResult{Status: monitoring.StatusUp, Details: "scheduler disabled"}
		}

		jobs := source.Snapshot()
		if len(jobs) == 0 {
			return monitoring.ProbeResult{Status: monitoring.StatusUp, Details: "no maintenance jobs registered"}
		}

		now := time.Now()
		status := monitoring.StatusUp
		var problems []string

		for _, job := range jobs {
			if job.TotalRuns == 0 {
				continue
			}
			if job.ConsecutiveFailures > 1 {
				status = monitoring.Worst(status, monitoring.StatusDown)
				problems = append(problems, job.Job+": "+job.LastError)
			} else if job.ConsecutiveFailures == 1 {
				status = monitoring.Worst(status, monitoring.StatusDegraded)
				problems = append(problems, job.Job+": "+job.LastError)
			}
			if now.Sub(job.LastRunAt) > maxAge {
				status = monitoring.Worst(status, monitoring.StatusDegraded)
				problems = append(problems, job.Job+": stale run "+job.LastRunAt.UTC().Format(time.RFC3339))
			}
		}

		return monitoring.ProbeResult{Status: status, Details: strings.Join(problems, "; ")}
	})
}
