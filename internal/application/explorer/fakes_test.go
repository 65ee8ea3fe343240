package explorer_test

import (
	"context"
	"slices"
	"sync"

	"github.com/junohealth/marketexplorer/internal/domain/entities"
	"github.com/junohealth/marketexplorer/internal/domain/providers"
)

// fakeData is a scriptable DataProvider. Unset funcs return empty payloads.
type fakeData struct {
	mu sync.Mutex

	listFn    func(ctx context.Context, req providers.ListRequest) (*entities.EntityPage, error)
	markersFn func(ctx context.Context, filters entities.FilterSet, fresh bool) (*entities.MarkerSet, error)
	sitesFn   func(ctx context.Context, kind providers.RelationKind, id string) ([]entities.Site, error)

	listCalls     []providers.ListRequest
	markerCalls   []entities.FilterSet
	freshMarkers  int
	lookups       []string
	invalidations int
}

var _ providers.DataProvider = (*fakeData)(nil)

func (f *fakeData) FetchList(ctx context.Context, req providers.ListRequest) (*entities.EntityPage, error) {
	f.mu.Lock()
	f.listCalls = append(f.listCalls, req)
	fn := f.listFn
	f.mu.Unlock()
	if fn == nil {
		return &entities.EntityPage{Kind: req.Mode}, nil
	}
	return fn(ctx, req)
}

func (f *fakeData) FetchMarkers(ctx context.Context, filters entities.FilterSet, fresh bool) (*entities.MarkerSet, error) {
	f.mu.Lock()
	f.markerCalls = append(f.markerCalls, filters)
	if fresh {
		f.freshMarkers++
	}
	fn := f.markersFn
	f.mu.Unlock()
	if fn == nil {
		return &entities.MarkerSet{Markers: []entities.MapMarker{}}, nil
	}
	return fn(ctx, filters, fresh)
}

func (f *fakeData) SitesForProvider(ctx context.Context, providerID string) ([]entities.Site, error) {
	return f.sitesFor(ctx, providers.RelationProvider, providerID)
}

func (f *fakeData) SitesForProviderGroup(ctx context.Context, groupName string) ([]entities.Site, error) {
	return f.sitesFor(ctx, providers.RelationProviderGroup, groupName)
}

func (f *fakeData) sitesFor(ctx context.Context, kind providers.RelationKind, id string) ([]entities.Site, error) {
	f.mu.Lock()
	f.lookups = append(f.lookups, string(kind)+":"+id)
	fn := f.sitesFn
	f.mu.Unlock()
	if fn == nil {
		return nil, nil
	}
	return fn(ctx, kind, id)
}

func (f *fakeData) InvalidateAll(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidations++
	return nil
}

func (f *fakeData) lastList() providers.ListRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls[len(f.listCalls)-1]
}

func (f *fakeData) listCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.listCalls)
}

func (f *fakeData) lookupCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.lookups)
}

func sitesPage(ids ...string) *entities.EntityPage {
	page := &entities.EntityPage{Kind: entities.ViewModeSites, Sites: []entities.Site{}}
	for _, id := range ids {
		page.Sites = append(page.Sites, entities.Site{ID: id, Name: "Site " + id})
	}
	return page
}

func markerSet(ids ...string) *entities.MarkerSet {
	set := &entities.MarkerSet{Markers: []entities.MapMarker{}, TotalCount: len(ids)}
	for i, id := range ids {
		lat, lon := 41.0+float64(i), -81.0-float64(i)
		set.Markers = append(set.Markers, entities.MapMarker{ID: id, Name: "Site " + id, Latitude: &lat, Longitude: &lon})
	}
	return set
}

func sites(ids ...string) []entities.Site {
	out := make([]entities.Site, 0, len(ids))
	for _, id := range ids {
		out = append(out, entities.Site{ID: id})
	}
	return out
}

// gate blocks a fake call until released or the fetch context ends
type gate chan struct{}

func (g gate) wait(ctx context.Context) error {
	select {
	case <-g:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
