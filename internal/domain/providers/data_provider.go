package providers

import (
	"context"

	"github.com/junohealth/marketexplorer/internal/domain/entities"
)

// ListRequest describes one list panel fetch
type ListRequest struct {
	Mode    entities.ViewMode
	Filters entities.FilterSet
	Page    entities.Pagination
	// QuickView scopes the list to one site and replaces Filters
	QuickView *entities.QuickViewScope
	// Fresh skips the cache read; the response is still stored
	Fresh bool
}

// DataProvider is the cached read path the explorer sessions fetch through
type DataProvider interface {
	FetchList(ctx context.Context, req ListRequest) (*entities.EntityPage, error)
	FetchMarkers(ctx context.Context, filters entities.FilterSet, fresh bool) (*entities.MarkerSet, error)
	SitesForProvider(ctx context.Context, providerID string) ([]entities.Site, error)
	SitesForProviderGroup(ctx context.Context, groupName string) ([]entities.Site, error)
	InvalidateAll(ctx context.Context) error
}
