package realtime

// Streams pushed to admin clients.
const (
	StreamNotifications = "notifications"
	// StreamExtensions carries plugin/theme lifecycle events (enabled, installed, updates found).
	StreamExtensions = "extensions"
)

// DefaultStreams is subscribed when a client does not name any.
var DefaultStreams = []string{StreamNotifications, StreamExtensions}
