// Package updates looks up newer releases of installed extensions and of the
// CMS itself on GitHub and on the marketplace.
package updates

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrNoRelease is returned when a source has nothing published for a target.
var ErrNoRelease = errors.New("updates: no release published")

// Target identifies something that can be updated.
type Target struct {
	Kind           string
	ID             string
	Name           string
	CurrentVersion string
	// GitHub is an "owner/repo" reference.
	GitHub string
	// MarketplaceID is the marketplace resource id.
	MarketplaceID string
}

// Release is the latest version a source knows about.
type Release struct {
	Version     string    `json:"version"`
	DownloadURL string    `json:"download_url,omitempty"`
	Changelog   string    `json:"changelog,omitempty"`
	PageURL     string    `json:"page_url,omitempty"`
	PublishedAt time.Time `json:"published_at,omitempty"`
}

// Source resolves the latest release for a target.
type Source interface {
	Name() string
	Supports(target Target) bool
	Latest(ctx context.Context, target Target) (*Release, error)
}

func normaliseRepo(ref string) string {
	ref = strings.TrimSpace(ref)
	ref = strings.TrimPrefix(ref, "https://github.com/")
	ref = strings.TrimSuffix(ref, ".git")
	return strings.Trim(ref, "/")
}

func validRepo(ref string) bool {
	parts := strings.Split(normaliseRepo(ref), "/")
	return len(parts) == 2 && parts[0] != "" && parts[1] != ""
}
