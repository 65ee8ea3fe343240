package query

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/junohealth/marketexplorer/internal/domain/entities"
	"github.com/junohealth/marketexplorer/internal/domain/providers"
)

func TestEncode_DeclarationOrder(t *testing.T) {
	f := entities.FilterSet{
		Search:        "mercy",
		SiteType:      []string{"Hospital", "Clinic"},
		MinSiteVisits: entities.Int(500),
		Geomarket:     []string{"Central"},
	}

	p := Encode(f, &entities.Pagination{Page: 2, PerPage: 50})

	assert.Equal(t,
		"geomarket=Central&site_type=Hospital&site_type=Clinic&min_site_visits=500&search=mercy&page=2&per_page=50",
		p.Encode())
}

func TestEncode_IndependentOfAssignmentOrder(t *testing.T) {
	var a entities.FilterSet
	a.City = []string{"Austin"}
	a.HasOncology = entities.Bool(true)
	a.MinProviders = entities.Int(3)

	var b entities.FilterSet
	b.MinProviders = entities.Int(3)
	b.HasOncology = entities.Bool(true)
	b.City = []string{"Austin"}

	assert.Equal(t, Encode(a, nil).Encode(), Encode(b, nil).Encode())
}

func TestEncode_DistinctFiltersDoNotCollide(t *testing.T) {
	cases := []entities.FilterSet{
		{},
		{City: []string{"Austin"}},
		{County: []string{"Austin"}},
		{Geomarket: []string{"Austin"}},
		{Specialty: []string{"Austin"}},
		{MinSiteVisits: entities.Int(500)},
		{MinProviders: entities.Int(500)},
		{MinVisits: entities.Int(500)},
		{HasSurgery: entities.Bool(true)},
		{HasSurgery: entities.Bool(false)},
		{HasInpatient: entities.Bool(true)},
		{City: []string{"Austin", "Dallas"}},
		{City: []string{"Dallas", "Austin"}},
		{Search: "Austin"},
		{North: entities.Float(30.5)},
		{South: entities.Float(30.5)},
	}

	seen := make(map[string]int)
	for i, f := range cases {
		key := CacheKey("/sites", Encode(f, nil))
		if prev, dup := seen[key]; dup {
			t.Fatalf("filters %d and %d collide on %q", prev, i, key)
		}
		seen[key] = i
	}
}

func TestEncode_OmitsUnsetAndEmpty(t *testing.T) {
	f := entities.FilterSet{
		City:     []string{},
		SiteType: []string{" "},
		Search:   "   ",
	}

	assert.Empty(t, Encode(f, nil))
	assert.Equal(t, "/map-markers?", CacheKey("/map-markers", Encode(f, nil)))
}

func TestEncode_BoundsVerbatim(t *testing.T) {
	f := entities.FilterSet{}.WithBounds(&entities.MapBounds{North: 30.51234567, South: 30, East: -97.25, West: -98})

	p := Encode(f, nil)

	assert.Equal(t, "30.51234567", p.Get("north"))
	assert.Equal(t, "30", p.Get("south"))
	assert.Equal(t, "-97.25", p.Get("east"))
	assert.Equal(t, "-98", p.Get("west"))
}

func TestEncode_EscapesValues(t *testing.T) {
	f := entities.FilterSet{ProviderGroup: []string{"Smith & Jones, P.A."}}

	assert.Equal(t, "provider_group=Smith+%26+Jones%2C+P.A.", Encode(f, nil).Encode())
	assert.Equal(t, []string{"Smith & Jones, P.A."}, Encode(f, nil).Values()["provider_group"])
}

func TestParams_All(t *testing.T) {
	p := Encode(entities.FilterSet{SiteType: []string{"Hospital", "Clinic"}}, nil)
	assert.Equal(t, []string{"Hospital", "Clinic"}, p.All("site_type"))
	assert.Equal(t, "", p.Get("city"))
}

func TestEncodePage(t *testing.T) {
	assert.Equal(t, "page=1&per_page=100", EncodePage(&entities.Pagination{Page: 1, PerPage: 100}).Encode())
}

func TestEndpoints(t *testing.T) {
	assert.Equal(t, "/provider-groups", ListEndpoint(entities.ViewModeGroups))
	assert.Equal(t, "/sites", ListEndpoint(entities.ViewModeSites))
	assert.Equal(t, "/sites/S1/providers", SiteScopedEndpoint(entities.ViewModeProviders, "S1"))
	assert.Equal(t, "/sites/S1/site-details", SiteScopedEndpoint(entities.ViewModeSites, "S1"))
	assert.Equal(t, "/provider-groups/Austin%20Ortho/sites", RelationEndpoint(providers.RelationProviderGroup, "Austin Ortho"))
	assert.Equal(t, "/providers/P1/sites", RelationEndpoint(providers.RelationProvider, "P1"))
}
