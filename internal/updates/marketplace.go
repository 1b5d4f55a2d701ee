package updates

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/exiloncms/exiloncms/internal/marketplace"
)

// ResourceGetter is the marketplace lookup the source needs.
type ResourceGetter interface {
	GetResource(ctx context.Context, id string) (*marketplace.Resource, error)
}

// MarketplaceSource reads versions from the marketplace API.
type MarketplaceSource struct {
	client ResourceGetter
}

// NewMarketplaceSource wraps a marketplace client.
func NewMarketplaceSource(client ResourceGetter) *MarketplaceSource {
	return &MarketplaceSource{client: client}
}

// Name implements Source.
func (s *MarketplaceSource) Name() string { return "marketplace" }

// Supports implements Source.
func (s *MarketplaceSource) Supports(target Target) bool {
	return s.client != nil && strings.TrimSpace(target.MarketplaceID) != ""
}

// Latest implements Source.
func (s *MarketplaceSource) Latest(ctx context.Context, target Target) (*Release, error) {
	resource, err := s.client.GetResource(ctx, target.MarketplaceID)
	if err != nil {
		if errors.Is(err, marketplace.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNoRelease, target.MarketplaceID)
		}
		return nil, err
	}
	if strings.TrimSpace(resource.Version) == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoRelease, target.MarketplaceID)
	}
	return &Release{
		Version:     strings.TrimPrefix(strings.TrimSpace(resource.Version), "v"),
		DownloadURL: resource.DownloadURL,
		Changelog:   resource.Changelog,
		PublishedAt: resource.UpdatedAt,
	}, nil
}
