// Package query turns explorer filters into the canonical request parameters shared by the
// claims transport and the response cache key.
package query

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/junohealth/marketexplorer/internal/domain/entities"
)

// Param is a single key/value request parameter
type Param struct {
	Key   string
	Value string
}

// Params is an ordered parameter list. Order is part of the value: two Params with the same
// pairs in different order encode differently.
type Params []Param

// Encode builds the canonical parameters for a filter set and optional page.
//
// Keys are emitted in FilterSet declaration order, then page and per_page. Array values are
// repeated keys in the order given. Booleans are emitted when set, numbers verbatim; unset
// fields, empty arrays and a blank search are never emitted.
func Encode(filters entities.FilterSet, page *entities.Pagination) Params {
	f := filters.Normalize()
	var p Params

	p = p.addAll("geomarket", f.Geomarket)
	p = p.addAll("city", f.City)
	p = p.addAll("county", f.County)
	p = p.addFloat("north", f.North)
	p = p.addFloat("south", f.South)
	p = p.addFloat("east", f.East)
	p = p.addFloat("west", f.West)

	p = p.addAll("specialty", f.Specialty)
	p = p.addAll("service_line", f.ServiceLine)
	p = p.addAll("provider_group", f.ProviderGroup)
	p = p.addInt("min_provider_visits", f.MinProviderVisits)

	p = p.addInt("min_group_visits", f.MinGroupVisits)
	p = p.addInt("min_group_sites", f.MinGroupSites)

	p = p.addAll("site_type", f.SiteType)
	p = p.addInt("min_site_visits", f.MinSiteVisits)
	p = p.addInt("min_providers", f.MinProviders)
	p = p.addBool("has_coordinates", f.HasCoordinates)

	p = p.addBool("has_oncology", f.HasOncology)
	p = p.addBool("has_surgery", f.HasSurgery)
	p = p.addBool("has_inpatient", f.HasInpatient)

	if f.Search != "" {
		p = append(p, Param{Key: "search", Value: f.Search})
	}

	p = p.addInt("min_visits", f.MinVisits)
	p = p.addInt("max_visits", f.MaxVisits)

	if page != nil {
		p = append(p,
			Param{Key: "page", Value: strconv.Itoa(page.Page)},
			Param{Key: "per_page", Value: strconv.Itoa(page.PerPage)},
		)
	}
	return p
}

// EncodePage builds parameters carrying only pagination
func EncodePage(page *entities.Pagination) Params {
	return Encode(entities.FilterSet{}, page)
}

// Encode renders the parameters as a query string, preserving order
func (p Params) Encode() string {
	var b strings.Builder
	for i, param := range p {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(param.Key))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(param.Value))
	}
	return b.String()
}

// Values converts the parameters to url.Values
func (p Params) Values() url.Values {
	v := make(url.Values, len(p))
	for _, param := range p {
		v.Add(param.Key, param.Value)
	}
	return v
}

// Get returns the first value for key, or ""
func (p Params) Get(key string) string {
	for _, param := range p {
		if param.Key == key {
			return param.Value
		}
	}
	return ""
}

// All returns every value for key in order
func (p Params) All(key string) []string {
	var out []string
	for _, param := range p {
		if param.Key == key {
			out = append(out, param.Value)
		}
	}
	return out
}

// CacheKey joins an endpoint and its canonical parameters
func CacheKey(endpoint string, p Params) string {
	return endpoint + "?" + p.Encode()
}

// EndpointPrefix is the key prefix shared by every cached request to endpoint
func EndpointPrefix(endpoint string) string {
	return endpoint + "?"
}

func (p Params) addAll(key string, values []string) Params {
	for _, v := range values {
		p = append(p, Param{Key: key, Value: v})
	}
	return p
}

func (p Params) addInt(key string, v *int) Params {
	if v == nil {
		return p
	}
	return append(p, Param{Key: key, Value: strconv.Itoa(*v)})
}

func (p Params) addFloat(key string, v *float64) Params {
	if v == nil {
		return p
	}
	return append(p, Param{Key: key, Value: strconv.FormatFloat(*v, 'f', -1, 64)})
}

func (p Params) addBool(key string, v *bool) Params {
	if v == nil {
		return p
	}
	return append(p, Param{Key: key, Value: strconv.FormatBool(*v)})
}
