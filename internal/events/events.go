// Package events publishes extension lifecycle events to external consumers.
package events

import (
	"context"
	"time"
)

// Event types emitted by the extension lifecycle.
const (
	PluginEnabled     = "plugin.enabled"
	PluginDisabled    = "plugin.disabled"
	PluginInstalled   = "plugin.installed"
	PluginUpdated     = "plugin.updated"
	PluginUninstalled = "plugin.uninstalled"
	ThemeActivated    = "theme.activated"
	ThemeDeactivated  = "theme.deactivated"
	ThemeInstalled    = "theme.installed"
	ThemeUpdated      = "theme.updated"
	ThemeUninstalled  = "theme.uninstalled"
	UpdatesAvailable  = "updates.available"
)

// Event is the JSON document written for each lifecycle change.
type Event struct {
	Type        string         `json:"type"`
	Kind        string         `json:"kind,omitempty"`
	ExtensionID string         `json:"extension_id,omitempty"`
	Version     string         `json:"version,omitempty"`
	ActorID     string         `json:"actor_id,omitempty"`
	Data        map[string]any `json:"data,omitempty"`
	OccurredAt  time.Time      `json:"occurred_at"`
}

// Key partitions events so every change to one extension stays ordered.
func (e Event) Key() string {
	if e.ExtensionID == "" {
		return e.Type
	}
	return e.Kind + ":" + e.ExtensionID
}

// Publisher delivers lifecycle events.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// NopPublisher discards events.
type NopPublisher struct{}

// Publish implements Publisher.
func (NopPublisher) Publish(context.Context, Event) error { return nil }

// Close implements Publisher.
func (NopPublisher) Close() error { return nil }
