package query

import (
	"net/url"

	"github.com/junohealth/marketexplorer/internal/domain/entities"
	"github.com/junohealth/marketexplorer/internal/domain/providers"
)

// Claims API endpoints, relative to the configured base URL
const (
	EndpointSites          = "/sites"
	EndpointProviders      = "/providers"
	EndpointProviderGroups = "/provider-groups"
	EndpointMapMarkers     = "/map-markers"
	EndpointFilterOptions  = "/filter-options"
)

// ListEndpoints are the endpoints whose responses depend on the filter set
var ListEndpoints = []string{EndpointSites, EndpointProviders, EndpointProviderGroups, EndpointMapMarkers}

// ListEndpoint returns the list endpoint for a view mode
func ListEndpoint(kind entities.ViewMode) string {
	switch kind {
	case entities.ViewModeProviders:
		return EndpointProviders
	case entities.ViewModeGroups:
		return EndpointProviderGroups
	default:
		return EndpointSites
	}
}

// SiteScopedEndpoint returns the endpoint listing kind entities linked to one site.
// In Sites mode that is the site record itself.
func SiteScopedEndpoint(kind entities.ViewMode, siteID string) string {
	base := EndpointSites + "/" + url.PathEscape(siteID)
	switch kind {
	case entities.ViewModeProviders:
		return base + "/providers"
	case entities.ViewModeGroups:
		return base + "/provider-groups"
	default:
		return base + "/site-details"
	}
}

// RelationEndpoint returns the endpoint listing the sites of a provider or provider group
func RelationEndpoint(kind providers.RelationKind, id string) string {
	if kind == providers.RelationProviderGroup {
		return EndpointProviderGroups + "/" + url.PathEscape(id) + "/sites"
	}
	return EndpointProviders + "/" + url.PathEscape(id) + "/sites"
}
