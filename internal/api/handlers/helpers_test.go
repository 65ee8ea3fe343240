package handlers_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/junohealth/marketexplorer/internal/application/services"
	"github.com/junohealth/marketexplorer/internal/domain/entities"
	"github.com/junohealth/marketexplorer/internal/domain/providers"
	apperrors "github.com/junohealth/marketexplorer/pkg/errors"
)

// stubData serves fixed payloads; listErr fails every list fetch
type stubData struct {
	mu      sync.Mutex
	listErr error
	lists   []providers.ListRequest
}

func (s *stubData) FetchList(ctx context.Context, req providers.ListRequest) (*entities.EntityPage, error) {
	s.mu.Lock()
	s.lists = append(s.lists, req)
	err := s.listErr
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return &entities.EntityPage{Kind: req.Mode, Sites: []entities.Site{{ID: "A", Name: "Mercy"}}}, nil
}

func (s *stubData) FetchMarkers(ctx context.Context, filters entities.FilterSet, fresh bool) (*entities.MarkerSet, error) {
	lat, lon := 41.1, -81.5
	return &entities.MarkerSet{
		Markers:    []entities.MapMarker{{ID: "A", Name: "Mercy", Latitude: &lat, Longitude: &lon}},
		TotalCount: 1,
	}, nil
}

func (s *stubData) SitesForProvider(ctx context.Context, providerID string) ([]entities.Site, error) {
	return []entities.Site{{ID: "A"}, {ID: "B"}}, nil
}

func (s *stubData) SitesForProviderGroup(ctx context.Context, groupName string) ([]entities.Site, error) {
	return []entities.Site{{ID: "A"}}, nil
}

func (s *stubData) InvalidateAll(ctx context.Context) error { return nil }

type stubOptions struct {
	err error
}

func (s stubOptions) FilterOptions(ctx context.Context) (*entities.FilterOptions, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &entities.FilterOptions{SiteTypes: []string{"ASC", "Hospital"}}, nil
}

var errBackendDown = apperrors.NewDataUnavailableError("claims api returned 503", nil)

func newTestRegistry(t *testing.T, data providers.DataProvider) *services.SessionRegistry {
	t.Helper()
	registry := services.NewSessionRegistry(data, services.SessionConfig{TTL: time.Minute}, nil)
	t.Cleanup(registry.Close)
	return registry
}
