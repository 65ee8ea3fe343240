package providers

import (
	"context"

	"github.com/junohealth/marketexplorer/internal/domain/entities"
)

// RelationKind names the entity a site relationship lookup starts from
type RelationKind string

const (
	RelationProvider      RelationKind = "provider"
	RelationProviderGroup RelationKind = "provider_group"
)

// ClaimsSource reads explorer data from the claims backend. Implementations return
// apperrors DATA_UNAVAILABLE for transport failures and INVALID_RESPONSE for undecodable
// payloads.
type ClaimsSource interface {
	// ListEntities returns one page of sites, providers or groups matching filters
	ListEntities(ctx context.Context, kind entities.ViewMode, filters entities.FilterSet, page entities.Pagination) (*entities.EntityPage, error)

	// MapMarkers returns every site matching filters, unpaginated
	MapMarkers(ctx context.Context, filters entities.FilterSet) (*entities.MarkerSet, error)

	// SiteScoped returns the kind entities linked to one site
	SiteScoped(ctx context.Context, kind entities.ViewMode, siteID string, page entities.Pagination) (*entities.EntityPage, error)

	// SitesFor returns the sites a provider or provider group practises at
	SitesFor(ctx context.Context, kind RelationKind, id string) ([]entities.Site, error)

	// FilterOptions returns the distinct values for the filter dropdowns
	FilterOptions(ctx context.Context) (*entities.FilterOptions, error)
}
