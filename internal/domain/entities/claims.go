package entities

// Entity is a Site, Provider or ProviderGroup record
type Entity interface {
	// EntityKey is the identity used for selection: the id for sites and providers, the name for groups.
	EntityKey() string
	EntityKind() ViewMode
}

// Site represents a site of service
type Site struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	City          string   `json:"city,omitempty"`
	County        string   `json:"county,omitempty"`
	SiteType      string   `json:"site_type,omitempty"`
	Geomarket     string   `json:"geomarket,omitempty"`
	Latitude      *float64 `json:"latitude,omitempty"`
	Longitude     *float64 `json:"longitude,omitempty"`
	TotalVisits   int      `json:"total_visits"`
	ProviderCount int      `json:"provider_count"`
}

func (s Site) EntityKey() string    { return s.ID }
func (s Site) EntityKind() ViewMode { return ViewModeSites }

// HasCoordinates reports whether the site is geocoded
func (s Site) HasCoordinates() bool {
	return s.Latitude != nil && s.Longitude != nil
}

// Marker projects the site onto the fields the map renders
func (s Site) Marker() MapMarker {
	return MapMarker{
		ID:            s.ID,
		Name:          s.Name,
		Latitude:      s.Latitude,
		Longitude:     s.Longitude,
		TotalVisits:   s.TotalVisits,
		ProviderCount: s.ProviderCount,
		SiteType:      s.SiteType,
		City:          s.City,
		Geomarket:     s.Geomarket,
	}
}

// Provider represents a rendering provider from claims data
type Provider struct {
	ID              string   `json:"id"`
	NPI             string   `json:"npi"`
	Name            string   `json:"name"`
	Specialty       string   `json:"specialty"`
	ProviderGroup   string   `json:"provider_group,omitempty"`
	Geomarket       string   `json:"geomarket,omitempty"`
	City            string   `json:"city,omitempty"`
	TotalVisits     int      `json:"total_visits"`
	TopSiteID       string   `json:"top_site_id,omitempty"`
	TopSiteName     string   `json:"top_site_name,omitempty"`
	TopPayer        string   `json:"top_payer,omitempty"`
	TopPayerPercent *float64 `json:"top_payer_percent,omitempty"`
	TopReferringOrg string   `json:"top_referring_org,omitempty"`
}

func (p Provider) EntityKey() string    { return p.ID }
func (p Provider) EntityKind() ViewMode { return ViewModeProviders }

// ProviderGroup aggregates providers sharing a group name. Groups have no id of their own;
// two backend groups with the same name are indistinguishable here.
type ProviderGroup struct {
	Name          string   `json:"name"`
	ProviderCount int      `json:"provider_count"`
	TotalVisits   int      `json:"total_visits"`
	Specialties   []string `json:"specialties"`
	Geomarkets    []string `json:"geomarkets"`
	TopSites      []string `json:"top_sites,omitempty"`
	SiteCount     int      `json:"site_count,omitempty"`
}

func (g ProviderGroup) EntityKey() string    { return g.Name }
func (g ProviderGroup) EntityKind() ViewMode { return ViewModeGroups }

// Statistics summarises the entity collection a list response was drawn from
type Statistics struct {
	TotalVisits              int     `json:"total_visits"`
	TotalProviders           int     `json:"total_providers"`
	TotalSites               int     `json:"total_sites"`
	AverageVisitsPerSite     float64 `json:"average_visits_per_site"`
	AverageVisitsPerProvider float64 `json:"average_visits_per_provider"`
}

// Pagination is a requested page of a list
type Pagination struct {
	Page    int `json:"page"`
	PerPage int `json:"per_page"`
}

// DefaultPagination returns page 1 with the given page size
func DefaultPagination(perPage int) Pagination {
	return Pagination{Page: 1, PerPage: perPage}
}

// Offset returns the zero-based index of the first row on the page
func (p Pagination) Offset() int {
	if p.Page < 1 {
		return 0
	}
	return (p.Page - 1) * p.PerPage
}

// PaginationMeta describes the page a list response holds
type PaginationMeta struct {
	Page       int  `json:"page"`
	PerPage    int  `json:"per_page"`
	TotalItems int  `json:"total_items"`
	TotalPages int  `json:"total_pages"`
	HasNext    bool `json:"has_next"`
	HasPrev    bool `json:"has_prev"`
}

// NewPaginationMeta derives page metadata from a request and a total row count
func NewPaginationMeta(p Pagination, total int) PaginationMeta {
	pages := 0
	if p.PerPage > 0 {
		pages = (total + p.PerPage - 1) / p.PerPage
	}
	return PaginationMeta{
		Page:       p.Page,
		PerPage:    p.PerPage,
		TotalItems: total,
		TotalPages: pages,
		HasNext:    p.Page*p.PerPage < total,
		HasPrev:    p.Page > 1,
	}
}

// EntityPage is one page of a list panel. Exactly one of Sites, Providers or Groups is populated,
// matching Kind.
type EntityPage struct {
	Kind       ViewMode        `json:"kind"`
	Sites      []Site          `json:"sites,omitempty"`
	Providers  []Provider      `json:"providers,omitempty"`
	Groups     []ProviderGroup `json:"groups,omitempty"`
	Meta       PaginationMeta  `json:"meta"`
	Statistics Statistics      `json:"statistics"`
}

// Items returns the page's records as entities
func (p *EntityPage) Items() []Entity {
	if p == nil {
		return nil
	}
	var items []Entity
	switch p.Kind {
	case ViewModeSites:
		items = make([]Entity, 0, len(p.Sites))
		for _, s := range p.Sites {
			items = append(items, s)
		}
	case ViewModeProviders:
		items = make([]Entity, 0, len(p.Providers))
		for _, pr := range p.Providers {
			items = append(items, pr)
		}
	case ViewModeGroups:
		items = make([]Entity, 0, len(p.Groups))
		for _, g := range p.Groups {
			items = append(items, g)
		}
	}
	return items
}

// Len returns the number of records on the page
func (p *EntityPage) Len() int {
	if p == nil {
		return 0
	}
	switch p.Kind {
	case ViewModeSites:
		return len(p.Sites)
	case ViewModeProviders:
		return len(p.Providers)
	case ViewModeGroups:
		return len(p.Groups)
	}
	return 0
}

// FilterOptions holds the distinct values offered by the filter dropdowns
type FilterOptions struct {
	Geomarkets     []string `json:"geomarkets"`
	Cities         []string `json:"cities"`
	Counties       []string `json:"counties"`
	Specialties    []string `json:"specialties"`
	ProviderGroups []string `json:"provider_groups"`
	SiteTypes      []string `json:"site_types"`
	ServiceLines   []string `json:"service_lines"`
}
