package checks

import (
	"context"
	"fmt"

	"github.com/exiloncms/exiloncms/internal/monitoring"
	"github.com/exiloncms/exiloncms/internal/realtime"
)

// SubscriberCounter is satisfied by *realtime.Hub.
type SubscriberCounter interface {
	Subscribers(stream string) int
}

// Realtime reports the number of admin clients listening for notifications.
func Realtime(hub SubscriberCounter) monitoring.Check {
	return monitoring.NewCheck("realtime", func(ctx context.Context) monitoring.ProbeResult {
		if hub == nil {
			return monitoring.ProbeResult{Status: monitoring.StatusDegraded, Details: "realtime hub unavailable"}
		}
		return monitoring.ProbeResult{
			Status: monitoring.StatusUp,
			Details: fmt.Sprintf("%d notification subscribers, %d extension subscribers",
				hub.Subscribers(realtime.StreamNotifications),
				hub.Subscribers(realtime.StreamExtensions)),
		}
	})
}
