package explorer_test

import (
	"context"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/junohealth/marketexplorer/internal/adapters/cache"
	"github.com/junohealth/marketexplorer/internal/application/explorer"
	"github.com/junohealth/marketexplorer/internal/application/services"
	"github.com/junohealth/marketexplorer/internal/domain/entities"
	"github.com/junohealth/marketexplorer/internal/domain/providers"
)

// fixtureSource serves a small claims dataset from memory
type fixtureSource struct {
	mu     sync.Mutex
	sites  []entities.Site
	groups map[string][]string // site id -> group names
	links  map[string][]string // provider id -> site ids
	calls  map[string]int
}

func newFixtureSource() *fixtureSource {
	lat := func(v float64) *float64 { return &v }
	return &fixtureSource{
		sites: []entities.Site{
			{ID: "H1", Name: "Mercy Hospital", SiteType: "Hospital", TotalVisits: 900, Latitude: lat(41.1), Longitude: lat(-81.5)},
			{ID: "H2", Name: "St. Luke", SiteType: "Hospital", TotalVisits: 520, Latitude: lat(41.4), Longitude: lat(-81.7)},
			{ID: "H3", Name: "County General", SiteType: "Hospital", TotalVisits: 120, Latitude: lat(41.0), Longitude: lat(-81.2)},
			{ID: "C1", Name: "Main St Clinic", SiteType: "Clinic", TotalVisits: 2000, Latitude: lat(41.2), Longitude: lat(-81.3)},
		},
		groups: map[string][]string{
			"H1": {"Lakeside Ortho", "Summit Cardiology"},
			"H2": {"Summit Cardiology"},
		},
		links: map[string][]string{"P": {"H1", "H2"}},
		calls: map[string]int{},
	}
}

func (s *fixtureSource) count(op string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[op]++
}

func (s *fixtureSource) callCount(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

func (s *fixtureSource) match(f entities.FilterSet) []entities.Site {
	var out []entities.Site
	for _, site := range s.sites {
		if len(f.SiteType) > 0 && !slices.Contains(f.SiteType, site.SiteType) {
			continue
		}
		if f.MinSiteVisits != nil && site.TotalVisits < *f.MinSiteVisits {
			continue
		}
		out = append(out, site)
	}
	return out
}

func (s *fixtureSource) ListEntities(ctx context.Context, kind entities.ViewMode, f entities.FilterSet, page entities.Pagination) (*entities.EntityPage, error) {
	s.count("list")
	out := &entities.EntityPage{Kind: kind}
	switch kind {
	case entities.ViewModeSites:
		out.Sites = s.match(f)
	case entities.ViewModeGroups:
		seen := map[string]bool{}
		for _, site := range s.match(f) {
			for _, g := range s.groups[site.ID] {
				if !seen[g] {
					seen[g] = true
					out.Groups = append(out.Groups, entities.ProviderGroup{Name: g})
				}
			}
		}
	}
	out.Meta = entities.NewPaginationMeta(page, out.Len())
	return out, nil
}

func (s *fixtureSource) MapMarkers(ctx context.Context, f entities.FilterSet) (*entities.MarkerSet, error) {
	s.count("markers")
	set := &entities.MarkerSet{Markers: []entities.MapMarker{}}
	for _, site := range s.match(f) {
		set.Markers = append(set.Markers, site.Marker())
	}
	set.TotalCount = len(set.Markers)
	return set, nil
}

func (s *fixtureSource) SiteScoped(ctx context.Context, kind entities.ViewMode, siteID string, page entities.Pagination) (*entities.EntityPage, error) {
	s.count("site_scoped")
	out := &entities.EntityPage{Kind: kind}
	if kind == entities.ViewModeGroups {
		for _, g := range s.groups[siteID] {
			out.Groups = append(out.Groups, entities.ProviderGroup{Name: g})
		}
	}
	return out, nil
}

func (s *fixtureSource) SitesFor(ctx context.Context, kind providers.RelationKind, id string) ([]entities.Site, error) {
	s.count("sites_for")
	var out []entities.Site
	for _, siteID := range s.links[id] {
		out = append(out, entities.Site{ID: siteID})
	}
	return out, nil
}

func (s *fixtureSource) FilterOptions(ctx context.Context) (*entities.FilterOptions, error) {
	return &entities.FilterOptions{}, nil
}

func newScenario(t *testing.T, mode entities.ViewMode) (*explorer.Orchestrator, *fixtureSource) {
	t.Helper()
	source := newFixtureSource()
	facade := services.NewDataProviderService(source, cache.NewMemoryAdapter(), cache.NewMemoryAdapter(), services.DataProviderConfig{
		LookupWait: time.Millisecond,
	}, nil)
	nop := zerolog.Nop()
	o, err := explorer.NewOrchestrator(facade, explorer.Options{ViewMode: mode, Logger: &nop})
	require.NoError(t, err)
	t.Cleanup(func() {
		o.Close()
		o.Wait()
	})
	return o, source
}

func TestScenario_HospitalsWithMinimumVisits(t *testing.T) {
	o, _ := newScenario(t, entities.ViewModeSites)

	require.NoError(t, o.SetFilters(entities.FilterSet{SiteType: []string{"Hospital"}, MinSiteVisits: entities.Int(500)}))
	o.Wait()

	state := o.State()
	require.Equal(t, explorer.StatusReady, state.Status)
	var listIDs []string
	for _, s := range state.List.Sites {
		assert.Equal(t, "Hospital", s.SiteType)
		assert.GreaterOrEqual(t, s.TotalVisits, 500)
		listIDs = append(listIDs, s.ID)
	}
	assert.Equal(t, []string{"H1", "H2"}, listIDs)
	assert.Equal(t, listIDs, state.Markers.IDs())
}

func TestScenario_ProviderSelectionHighlightsSites(t *testing.T) {
	o, _ := newScenario(t, entities.ViewModeProviders)
	require.NoError(t, o.Load())
	o.Wait()

	require.NoError(t, o.SelectEntity("P"))
	o.Wait()

	state := o.State()
	assert.Equal(t, entities.HighlightState{SiteIDs: []string{"H1", "H2"}, Mode: entities.HighlightMultiple}, state.Highlight)
}

func TestScenario_QuickViewOnGroups(t *testing.T) {
	o, _ := newScenario(t, entities.ViewModeGroups)
	require.NoError(t, o.Load())
	o.Wait()
	require.Len(t, o.State().List.Groups, 2)

	require.NoError(t, o.EnterQuickView("H2", "St. Luke"))
	o.Wait()

	state := o.State()
	require.Len(t, state.List.Groups, 1)
	assert.Equal(t, "Summit Cardiology", state.List.Groups[0].Name)
	assert.Equal(t, entities.SingleHighlight("H2"), state.Highlight)

	require.NoError(t, o.ExitQuickView())
	o.Wait()

	state = o.State()
	assert.Len(t, state.List.Groups, 2)
	assert.Equal(t, entities.HighlightNone, state.Highlight.Mode)
}

func TestScenario_CachedUntilRefresh(t *testing.T) {
	o, source := newScenario(t, entities.ViewModeSites)

	require.NoError(t, o.Load())
	o.Wait()
	require.NoError(t, o.Load())
	o.Wait()
	assert.Equal(t, 1, source.callCount("list"))
	assert.Equal(t, 1, source.callCount("markers"))

	require.NoError(t, o.Refresh())
	o.Wait()
	assert.Equal(t, 2, source.callCount("list"))
	assert.Equal(t, 2, source.callCount("markers"))
}
