package services_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/junohealth/marketexplorer/internal/adapters/cache"
	"github.com/junohealth/marketexplorer/internal/application/services"
	"github.com/junohealth/marketexplorer/internal/domain/entities"
	"github.com/junohealth/marketexplorer/internal/domain/providers"
	"github.com/junohealth/marketexplorer/internal/query"
	apperrors "github.com/junohealth/marketexplorer/pkg/errors"
)

// MockClaimsSource for testing
type MockClaimsSource struct {
	mock.Mock
}

func (m *MockClaimsSource) ListEntities(ctx context.Context, kind entities.ViewMode, filters entities.FilterSet, page entities.Pagination) (*entities.EntityPage, error) {
	args := m.Called(ctx, kind, filters, page)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.EntityPage), args.Error(1)
}

func (m *MockClaimsSource) MapMarkers(ctx context.Context, filters entities.FilterSet) (*entities.MarkerSet, error) {
	args := m.Called(ctx, filters)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.MarkerSet), args.Error(1)
}

func (m *MockClaimsSource) SiteScoped(ctx context.Context, kind entities.ViewMode, siteID string, page entities.Pagination) (*entities.EntityPage, error) {
	args := m.Called(ctx, kind, siteID, page)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.EntityPage), args.Error(1)
}

func (m *MockClaimsSource) SitesFor(ctx context.Context, kind providers.RelationKind, id string) ([]entities.Site, error) {
	args := m.Called(ctx, kind, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entities.Site), args.Error(1)
}

func (m *MockClaimsSource) FilterOptions(ctx context.Context) (*entities.FilterOptions, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.FilterOptions), args.Error(1)
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type facadeFixture struct {
	source    *MockClaimsSource
	clock     *testClock
	responses *cache.MemoryAdapter
	relations *cache.MemoryAdapter
	service   *services.DataProviderService
}

func newFacadeFixture() *facadeFixture {
	clock := &testClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
	f := &facadeFixture{
		source:    new(MockClaimsSource),
		clock:     clock,
		responses: cache.NewMemoryAdapter(cache.WithClock(clock.Now)),
		relations: cache.NewMemoryAdapter(cache.WithClock(clock.Now)),
	}
	f.service = services.NewDataProviderService(f.source, f.responses, f.relations, services.DataProviderConfig{
		ResponseTTL: 5 * time.Minute,
		RelationTTL: 30 * time.Minute,
	}, nil)
	return f
}

func intPtr(v int) *int { return &v }

func hospitalFilters() entities.FilterSet {
	return entities.FilterSet{SiteType: []string{"Hospital"}, MinSiteVisits: intPtr(500)}
}

func sitePage(ids ...string) *entities.EntityPage {
	page := &entities.EntityPage{Kind: entities.ViewModeSites}
	for _, id := range ids {
		page.Sites = append(page.Sites, entities.Site{ID: id, Name: "Site " + id, TotalVisits: 600})
	}
	page.Meta = entities.NewPaginationMeta(entities.DefaultPagination(100), len(ids))
	return page
}

func TestDataProviderService_FetchList_CachesWithinTTL(t *testing.T) {
	f := newFacadeFixture()
	ctx := context.Background()
	req := providers.ListRequest{Mode: entities.ViewModeSites, Filters: hospitalFilters(), Page: entities.DefaultPagination(100)}

	f.source.On("ListEntities", mock.Anything, entities.ViewModeSites, mock.Anything, req.Page).
		Return(sitePage("A", "B"), nil)

	first, err := f.service.FetchList(ctx, req)
	require.NoError(t, err)
	f.clock.Advance(5 * time.Minute)
	second, err := f.service.FetchList(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, first.Sites, second.Sites)
	f.source.AssertNumberOfCalls(t, "ListEntities", 1)
}

func TestDataProviderService_FetchList_RefetchesAfterTTL(t *testing.T) {
	f := newFacadeFixture()
	ctx := context.Background()
	req := providers.ListRequest{Mode: entities.ViewModeSites, Filters: hospitalFilters(), Page: entities.DefaultPagination(100)}

	f.source.On("ListEntities", mock.Anything, entities.ViewModeSites, mock.Anything, req.Page).
		Return(sitePage("A"), nil)

	_, err := f.service.FetchList(ctx, req)
	require.NoError(t, err)
	f.clock.Advance(5*time.Minute + time.Millisecond)
	_, err = f.service.FetchList(ctx, req)
	require.NoError(t, err)

	f.source.AssertNumberOfCalls(t, "ListEntities", 2)
}

func TestDataProviderService_FetchList_FilterOrderSharesCacheEntry(t *testing.T) {
	f := newFacadeFixture()
	ctx := context.Background()

	f.source.On("ListEntities", mock.Anything, entities.ViewModeSites, mock.Anything, mock.Anything).
		Return(sitePage("A"), nil)

	var a entities.FilterSet
	a.SiteType = []string{"Hospital"}
	a.Geomarket = []string{"North"}
	var b entities.FilterSet
	b.Geomarket = []string{"North"}
	b.SiteType = []string{"Hospital"}

	_, err := f.service.FetchList(ctx, providers.ListRequest{Mode: entities.ViewModeSites, Filters: a, Page: entities.DefaultPagination(50)})
	require.NoError(t, err)
	_, err = f.service.FetchList(ctx, providers.ListRequest{Mode: entities.ViewModeSites, Filters: b, Page: entities.DefaultPagination(50)})
	require.NoError(t, err)

	f.source.AssertNumberOfCalls(t, "ListEntities", 1)
}

func TestDataProviderService_FetchList_FailureNotCached(t *testing.T) {
	f := newFacadeFixture()
	ctx := context.Background()
	req := providers.ListRequest{Mode: entities.ViewModeProviders, Page: entities.DefaultPagination(100)}

	f.source.On("ListEntities", mock.Anything, entities.ViewModeProviders, mock.Anything, mock.Anything).
		Return(nil, apperrors.NewDataUnavailableError("claims api returned 503", nil)).Once()
	f.source.On("ListEntities", mock.Anything, entities.ViewModeProviders, mock.Anything, mock.Anything).
		Return(&entities.EntityPage{Kind: entities.ViewModeProviders}, nil).Once()

	_, err := f.service.FetchList(ctx, req)
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeDataUnavailable))
	assert.Equal(t, 0, f.responses.Len())

	page, err := f.service.FetchList(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, entities.ViewModeProviders, page.Kind)
	f.source.AssertNumberOfCalls(t, "ListEntities", 2)
}

func TestDataProviderService_FetchList_WrapsUntypedErrors(t *testing.T) {
	f := newFacadeFixture()
	f.source.On("ListEntities", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("dial tcp: connection refused"))

	_, err := f.service.FetchList(context.Background(), providers.ListRequest{Mode: entities.ViewModeGroups})

	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeDataUnavailable))
}

func TestDataProviderService_FetchList_InvalidMode(t *testing.T) {
	f := newFacadeFixture()

	_, err := f.service.FetchList(context.Background(), providers.ListRequest{Mode: "clinics"})

	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))
	f.source.AssertNotCalled(t, "ListEntities", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestDataProviderService_FetchList_FreshBypassesRead(t *testing.T) {
	f := newFacadeFixture()
	ctx := context.Background()
	req := providers.ListRequest{Mode: entities.ViewModeSites, Page: entities.DefaultPagination(100)}

	f.source.On("ListEntities", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(sitePage("A"), nil).Once()
	f.source.On("ListEntities", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(sitePage("A", "B"), nil).Once()

	_, err := f.service.FetchList(ctx, req)
	require.NoError(t, err)

	req.Fresh = true
	page, err := f.service.FetchList(ctx, req)
	require.NoError(t, err)
	assert.Len(t, page.Sites, 2)

	// the fresh response replaced the cached one
	req.Fresh = false
	page, err = f.service.FetchList(ctx, req)
	require.NoError(t, err)
	assert.Len(t, page.Sites, 2)
	f.source.AssertNumberOfCalls(t, "ListEntities", 2)
}

func TestDataProviderService_FetchList_QuickViewScopesToSite(t *testing.T) {
	f := newFacadeFixture()
	ctx := context.Background()
	groups := &entities.EntityPage{
		Kind:   entities.ViewModeGroups,
		Groups: []entities.ProviderGroup{{Name: "Lakeside Ortho", ProviderCount: 4}},
	}
	f.source.On("SiteScoped", mock.Anything, entities.ViewModeGroups, "S1", entities.DefaultPagination(100)).
		Return(groups, nil).Once()

	req := providers.ListRequest{
		Mode:      entities.ViewModeGroups,
		Filters:   hospitalFilters(),
		Page:      entities.DefaultPagination(100),
		QuickView: &entities.QuickViewScope{SiteID: "S1", SiteName: "Mercy"},
	}
	page, err := f.service.FetchList(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "Lakeside Ortho", page.Groups[0].Name)

	// filters do not take part in a site-scoped key
	req.Filters = entities.FilterSet{}
	_, err = f.service.FetchList(ctx, req)
	require.NoError(t, err)

	f.source.AssertExpectations(t)
	f.source.AssertNotCalled(t, "ListEntities", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestDataProviderService_FetchMarkers(t *testing.T) {
	f := newFacadeFixture()
	ctx := context.Background()
	lat, lon := 41.5, -81.6
	markers := &entities.MarkerSet{
		Markers:    []entities.MapMarker{{ID: "A", Latitude: &lat, Longitude: &lon}, {ID: "B"}},
		TotalCount: 2,
	}
	f.source.On("MapMarkers", mock.Anything, mock.Anything).Return(markers, nil).Once()

	got, err := f.service.FetchMarkers(ctx, hospitalFilters(), false)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, got.IDs())

	_, err = f.service.FetchMarkers(ctx, hospitalFilters(), false)
	require.NoError(t, err)
	f.source.AssertNumberOfCalls(t, "MapMarkers", 1)
}

func TestDataProviderService_FilterOptions(t *testing.T) {
	f := newFacadeFixture()
	f.source.On("FilterOptions", mock.Anything).
		Return(&entities.FilterOptions{SiteTypes: []string{"Hospital", "ASC"}}, nil).Once()

	opts, err := f.service.FilterOptions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Hospital", "ASC"}, opts.SiteTypes)

	_, err = f.service.FilterOptions(context.Background())
	require.NoError(t, err)
	f.source.AssertExpectations(t)
}

func TestDataProviderService_InvalidatePrefix_IsAnchored(t *testing.T) {
	f := newFacadeFixture()
	ctx := context.Background()

	f.source.On("ListEntities", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(sitePage("A"), nil)
	f.source.On("SiteScoped", mock.Anything, entities.ViewModeProviders, "S1", mock.Anything).
		Return(&entities.EntityPage{Kind: entities.ViewModeProviders}, nil)

	_, err := f.service.FetchList(ctx, providers.ListRequest{Mode: entities.ViewModeSites, Page: entities.DefaultPagination(100)})
	require.NoError(t, err)
	_, err = f.service.FetchList(ctx, providers.ListRequest{
		Mode:      entities.ViewModeProviders,
		Page:      entities.DefaultPagination(100),
		QuickView: &entities.QuickViewScope{SiteID: "S1"},
	})
	require.NoError(t, err)
	require.Equal(t, 2, f.responses.Len())

	require.NoError(t, f.service.InvalidatePrefix(ctx, query.EndpointSites))

	assert.Equal(t, 1, f.responses.Len())
	_, err = f.responses.Get(ctx, query.CacheKey(query.SiteScopedEndpoint(entities.ViewModeProviders, "S1"), query.EncodePage(&entities.Pagination{Page: 1, PerPage: 100})))
	assert.NoError(t, err)
}

func TestDataProviderService_SitesForProvider(t *testing.T) {
	f := newFacadeFixture()
	ctx := context.Background()
	sites := []entities.Site{{ID: "A"}, {ID: "B"}}
	f.source.On("SitesFor", mock.Anything, providers.RelationProvider, "P1").Return(sites, nil).Once()

	got, err := f.service.SitesForProvider(ctx, "P1")
	require.NoError(t, err)
	assert.Equal(t, sites, got)

	got, err = f.service.SitesForProvider(ctx, "P1")
	require.NoError(t, err)
	assert.Equal(t, sites, got)
	f.source.AssertExpectations(t)
}

func TestDataProviderService_RelationsSurviveInvalidateAll(t *testing.T) {
	f := newFacadeFixture()
	ctx := context.Background()
	f.source.On("SitesFor", mock.Anything, providers.RelationProviderGroup, "Lakeside Ortho").
		Return([]entities.Site{{ID: "A"}}, nil).Once()

	_, err := f.service.SitesForProviderGroup(ctx, "Lakeside Ortho")
	require.NoError(t, err)

	require.NoError(t, f.service.InvalidateAll(ctx))

	got, err := f.service.SitesForProviderGroup(ctx, "Lakeside Ortho")
	require.NoError(t, err)
	assert.Equal(t, "A", got[0].ID)
	f.source.AssertNumberOfCalls(t, "SitesFor", 1)
}

func TestDataProviderService_InvalidateRelations(t *testing.T) {
	f := newFacadeFixture()
	ctx := context.Background()
	f.source.On("SitesFor", mock.Anything, providers.RelationProvider, "P1").Return([]entities.Site{{ID: "A"}}, nil)

	_, err := f.service.SitesForProvider(ctx, "P1")
	require.NoError(t, err)
	require.NoError(t, f.service.InvalidateRelations(ctx))
	_, err = f.service.SitesForProvider(ctx, "P1")
	require.NoError(t, err)

	f.source.AssertNumberOfCalls(t, "SitesFor", 2)
}

func TestDataProviderService_RelationTTLOutlivesResponses(t *testing.T) {
	f := newFacadeFixture()
	ctx := context.Background()
	f.source.On("SitesFor", mock.Anything, providers.RelationProvider, "P1").Return([]entities.Site{{ID: "A"}}, nil)

	_, err := f.service.SitesForProvider(ctx, "P1")
	require.NoError(t, err)
	f.clock.Advance(10 * time.Minute)
	_, err = f.service.SitesForProvider(ctx, "P1")
	require.NoError(t, err)
	f.source.AssertNumberOfCalls(t, "SitesFor", 1)

	f.clock.Advance(21 * time.Minute)
	_, err = f.service.SitesForProvider(ctx, "P1")
	require.NoError(t, err)
	f.source.AssertNumberOfCalls(t, "SitesFor", 2)
}

func TestDataProviderService_SitesFor_LookupFailed(t *testing.T) {
	f := newFacadeFixture()
	f.source.On("SitesFor", mock.Anything, providers.RelationProvider, "P9").
		Return(nil, apperrors.NewDataUnavailableError("timeout", nil))

	_, err := f.service.SitesForProvider(context.Background(), "P9")

	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeLookupFailed))
	assert.Equal(t, 0, f.relations.Len())
}

func TestDataProviderService_SitesFor_CoalescesConcurrentLookups(t *testing.T) {
	f := newFacadeFixture()
	f.source.On("SitesFor", mock.Anything, providers.RelationProvider, "P1").
		Return([]entities.Site{{ID: "A"}}, nil).
		After(20 * time.Millisecond)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sites, err := f.service.SitesForProvider(context.Background(), "P1")
			assert.NoError(t, err)
			assert.Len(t, sites, 1)
		}()
	}
	wg.Wait()

	// concurrent callers share a batch; a late arrival may still hit the cache or start one more
	assert.LessOrEqual(t, len(f.source.Calls), 2)
}

// slowRelationSource answers relationship lookups after a delay, failing if its context ended
type slowRelationSource struct {
	*MockClaimsSource
	delay time.Duration
}

func (s *slowRelationSource) SitesFor(ctx context.Context, kind providers.RelationKind, id string) ([]entities.Site, error) {
	select {
	case <-time.After(s.delay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return []entities.Site{{ID: "site-" + id}}, nil
}

func TestDataProviderService_SitesFor_BatchSurvivesFirstCallerCancel(t *testing.T) {
	source := &slowRelationSource{MockClaimsSource: new(MockClaimsSource), delay: 30 * time.Millisecond}
	service := services.NewDataProviderService(source, cache.NewMemoryAdapter(), cache.NewMemoryAdapter(), services.DataProviderConfig{
		LookupWait: 50 * time.Millisecond,
	}, nil)

	ctxA, cancelA := context.WithCancel(context.Background())
	defer cancelA()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, _ = service.SitesForProvider(ctxA, "PA")
	}()

	var sitesB []entities.Site
	var errB error
	go func() {
		defer wg.Done()
		time.Sleep(5 * time.Millisecond)
		sitesB, errB = service.SitesForProvider(context.Background(), "PB")
	}()

	// the first session goes away while the shared batch is still collecting keys
	time.Sleep(20 * time.Millisecond)
	cancelA()
	wg.Wait()

	require.NoError(t, errB)
	require.Len(t, sitesB, 1)
	assert.Equal(t, "site-PB", sitesB[0].ID)
}
