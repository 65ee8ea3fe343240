package entities

import (
	"slices"
	"strings"
)

// FilterSet holds the user's geographic and attribute filters. A nil field or empty slice is
// unconstrained. Field order is significant: the query encoder emits keys in this order.
type FilterSet struct {
	// Geographic
	Geomarket []string `json:"geomarket,omitempty"`
	City      []string `json:"city,omitempty"`
	County    []string `json:"county,omitempty"`
	North     *float64 `json:"north,omitempty"`
	South     *float64 `json:"south,omitempty"`
	East      *float64 `json:"east,omitempty"`
	West      *float64 `json:"west,omitempty"`

	// Provider
	Specialty         []string `json:"specialty,omitempty"`
	ServiceLine       []string `json:"service_line,omitempty"`
	ProviderGroup     []string `json:"provider_group,omitempty"`
	MinProviderVisits *int     `json:"min_provider_visits,omitempty"`

	// Provider group
	MinGroupVisits *int `json:"min_group_visits,omitempty"`
	MinGroupSites  *int `json:"min_group_sites,omitempty"`

	// Site
	SiteType       []string `json:"site_type,omitempty"`
	MinSiteVisits  *int     `json:"min_site_visits,omitempty"`
	MinProviders   *int     `json:"min_providers,omitempty"`
	HasCoordinates *bool    `json:"has_coordinates,omitempty"`

	// Service flags
	HasOncology  *bool `json:"has_oncology,omitempty"`
	HasSurgery   *bool `json:"has_surgery,omitempty"`
	HasInpatient *bool `json:"has_inpatient,omitempty"`

	Search string `json:"search,omitempty"`

	// Legacy visit bounds still accepted by the backend
	MinVisits *int `json:"min_visits,omitempty"`
	MaxVisits *int `json:"max_visits,omitempty"`
}

// Normalize trims array values, drops blanks and replaces empty arrays with nil so an
// absent filter has exactly one representation.
func (f FilterSet) Normalize() FilterSet {
	out := f.Clone()
	out.Geomarket = compact(out.Geomarket)
	out.City = compact(out.City)
	out.County = compact(out.County)
	out.Specialty = compact(out.Specialty)
	out.ServiceLine = compact(out.ServiceLine)
	out.ProviderGroup = compact(out.ProviderGroup)
	out.SiteType = compact(out.SiteType)
	out.Search = strings.TrimSpace(out.Search)
	return out
}

// Clone returns a deep copy
func (f FilterSet) Clone() FilterSet {
	out := f
	out.Geomarket = slices.Clone(f.Geomarket)
	out.City = slices.Clone(f.City)
	out.County = slices.Clone(f.County)
	out.Specialty = slices.Clone(f.Specialty)
	out.ServiceLine = slices.Clone(f.ServiceLine)
	out.ProviderGroup = slices.Clone(f.ProviderGroup)
	out.SiteType = slices.Clone(f.SiteType)
	out.North = clonePtr(f.North)
	out.South = clonePtr(f.South)
	out.East = clonePtr(f.East)
	out.West = clonePtr(f.West)
	out.MinProviderVisits = clonePtr(f.MinProviderVisits)
	out.MinGroupVisits = clonePtr(f.MinGroupVisits)
	out.MinGroupSites = clonePtr(f.MinGroupSites)
	out.MinSiteVisits = clonePtr(f.MinSiteVisits)
	out.MinProviders = clonePtr(f.MinProviders)
	out.HasCoordinates = clonePtr(f.HasCoordinates)
	out.HasOncology = clonePtr(f.HasOncology)
	out.HasSurgery = clonePtr(f.HasSurgery)
	out.HasInpatient = clonePtr(f.HasInpatient)
	out.MinVisits = clonePtr(f.MinVisits)
	out.MaxVisits = clonePtr(f.MaxVisits)
	return out
}

// Bounds returns the viewport rectangle when all four edges are set
func (f FilterSet) Bounds() *MapBounds {
	if f.North == nil || f.South == nil || f.East == nil || f.West == nil {
		return nil
	}
	return &MapBounds{North: *f.North, South: *f.South, East: *f.East, West: *f.West}
}

// WithBounds returns a copy constrained to the viewport b; a nil b clears the viewport.
func (f FilterSet) WithBounds(b *MapBounds) FilterSet {
	out := f.Clone()
	if b == nil {
		out.North, out.South, out.East, out.West = nil, nil, nil, nil
		return out
	}
	out.North = Float(b.North)
	out.South = Float(b.South)
	out.East = Float(b.East)
	out.West = Float(b.West)
	return out
}

// IsZero reports whether no filter is set
func (f FilterSet) IsZero() bool {
	n := f.Normalize()
	return n.Geomarket == nil && n.City == nil && n.County == nil &&
		n.North == nil && n.South == nil && n.East == nil && n.West == nil &&
		n.Specialty == nil && n.ServiceLine == nil && n.ProviderGroup == nil &&
		n.MinProviderVisits == nil && n.MinGroupVisits == nil && n.MinGroupSites == nil &&
		n.SiteType == nil && n.MinSiteVisits == nil && n.MinProviders == nil &&
		n.HasCoordinates == nil && n.HasOncology == nil && n.HasSurgery == nil &&
		n.HasInpatient == nil && n.Search == "" && n.MinVisits == nil && n.MaxVisits == nil
}

// Float returns a pointer to v
func Float(v float64) *float64 { return &v }

// Int returns a pointer to v
func Int(v int) *int { return &v }

// Bool returns a pointer to v
func Bool(v bool) *bool { return &v }

func compact(values []string) []string {
	var out []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
