package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/exiloncms/exiloncms/internal/cache"
	"github.com/exiloncms/exiloncms/internal/extensions"
	"github.com/exiloncms/exiloncms/internal/marketplace"
	apperrors "github.com/exiloncms/exiloncms/pkg/errors"
	"github.com/exiloncms/exiloncms/pkg/logger"
)

const marketplaceCacheTTL = 15 * time.Minute

// MarketplaceCatalog is the subset of the marketplace client used for browsing.
type MarketplaceCatalog interface {
	ListResources(ctx context.Context, resourceType string) ([]marketplace.Resource, error)
	GetResource(ctx context.Context, id string) (*marketplace.Resource, error)
}

// MarketplaceService lists remote plugins and themes and installs them.
// Remote failures degrade to empty listings.
type MarketplaceService struct {
	catalog MarketplaceCatalog
	store   cache.Store
	plugins *PluginService
	themes  *ThemeService
	log     *zap.Logger
}

// NewMarketplaceService constructs a MarketplaceService. A nil catalog
// means the marketplace is disabled.
func NewMarketplaceService(catalog MarketplaceCatalog, store cache.Store, plugins *PluginService, themes *ThemeService) *MarketplaceService {
	return &MarketplaceService{
		catalog: catalog,
		store:   store,
		plugins: plugins,
		themes:  themes,
		log:     logger.WithModule("marketplace"),
	}
}

// Browse returns marketplace resources of the given kind.
func (s *MarketplaceService) Browse(ctx context.Context, kind extensions.Kind) []marketplace.Resource {
	ctx = ensureContext(ctx)
	if s.catalog == nil {
		return []marketplace.Resource{}
	}

	key := "marketplace:" + string(kind)
	if s.store != nil {
		if cached, ok, err := cache.GetJSON[[]marketplace.Resource](ctx, s.store, key); err == nil && ok {
			return cached
		}
	}

	resources, err := s.catalog.ListResources(ctx, string(kind))
	if err != nil {
		s.log.Warn("marketplace listing unavailable", zap.String("kind", string(kind)), zap.Error(err))
		return []marketplace.Resource{}
	}
	if resources == nil {
		resources = []marketplace.Resource{}
	}
	if s.store != nil {
		if err := cache.SetJSON(ctx, s.store, key, resources, marketplaceCacheTTL); err != nil {
			s.log.Warn("marketplace cache write failed", zap.Error(err))
		}
	}
	return resources
}

// Install downloads a marketplace resource and installs it.
func (s *MarketplaceService) Install(ctx context.Context, id string) (*ExtensionDTO, error) {
	ctx = ensureContext(ctx)
	if s.catalog == nil {
		return nil, apperrors.NewBadRequest("the marketplace is disabled")
	}

	resource, err := s.catalog.GetResource(ctx, strings.TrimSpace(id))
	if err != nil {
		if errors.Is(err, marketplace.ErrNotFound) {
			return nil, apperrors.NewNotFound("marketplace resource")
		}
		return nil, apperrors.ErrBadRequest.WithMessage("the marketplace is unavailable").WithInternal(err)
	}
	if strings.TrimSpace(resource.DownloadURL) == "" {
		return nil, apperrors.NewBadRequest("this resource has no downloadable archive")
	}

	opts := InstallOptions{Source: SourceMarketplace}
	kind, err := extensions.ParseKind(resource.Type)
	if err != nil {
		kind = extensions.KindPlugin
	}
	if kind == extensions.KindTheme {
		return s.themes.InstallFromURL(ctx, resource.DownloadURL, opts)
	}
	return s.plugins.InstallFromURL(ctx, resource.DownloadURL, opts)
}
