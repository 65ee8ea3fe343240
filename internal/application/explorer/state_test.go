package explorer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/junohealth/marketexplorer/internal/domain/entities"
	apperrors "github.com/junohealth/marketexplorer/pkg/errors"
)

func newState() State {
	return State{
		ViewMode:  entities.ViewModeSites,
		Page:      entities.DefaultPagination(100),
		Highlight: entities.NoHighlight(),
		Status:    StatusIdle,
	}
}

func TestState_SwitchViewMode(t *testing.T) {
	s := newState()
	s.Filters = entities.FilterSet{City: []string{"Akron"}}
	s.SelectedID = "A"
	s.Highlight = entities.SingleHighlight("A")
	s.Page.Page = 3

	changed, err := s.switchViewMode(entities.ViewModeGroups)
	require.NoError(t, err)

	assert.True(t, changed)
	assert.Equal(t, entities.ViewModeGroups, s.ViewMode)
	assert.Empty(t, s.SelectedID)
	assert.Equal(t, entities.NoHighlight(), s.Highlight)
	assert.Equal(t, 1, s.Page.Page)
	assert.Equal(t, []string{"Akron"}, s.Filters.City)
}

func TestState_SwitchViewModeSameMode(t *testing.T) {
	s := newState()
	s.SelectedID = "A"

	changed, err := s.switchViewMode(entities.ViewModeSites)

	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, "A", s.SelectedID)
}

func TestState_SwitchViewModeInvalid(t *testing.T) {
	s := newState()

	_, err := s.switchViewMode("")

	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))
	assert.Equal(t, entities.ViewModeSites, s.ViewMode)
}

func TestState_QuickViewLifecycle(t *testing.T) {
	s := newState()
	s.ViewMode = entities.ViewModeProviders
	s.SelectedID = "P"
	s.Highlight = entities.NewHighlight([]string{"A", "B"}, entities.HighlightMultiple)

	require.NoError(t, s.enterQuickView("S", "Mercy"))
	assert.Equal(t, entities.SingleHighlight("S"), s.Highlight)
	assert.Equal(t, entities.ViewModeProviders, s.ViewMode)
	assert.Equal(t, entities.SingleHighlight("S"), s.baselineHighlight())

	changed, err := s.switchViewMode(entities.ViewModeGroups)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.NotNil(t, s.QuickView)
	assert.Equal(t, entities.SingleHighlight("S"), s.Highlight)

	assert.True(t, s.exitQuickView())
	assert.Nil(t, s.QuickView)
	assert.Equal(t, entities.NoHighlight(), s.Highlight)
	assert.False(t, s.exitQuickView())
}

func TestState_EnterQuickViewSupersedes(t *testing.T) {
	s := newState()
	require.NoError(t, s.enterQuickView("S1", "Mercy"))
	require.NoError(t, s.enterQuickView("S2", "St. Luke"))

	assert.Equal(t, &entities.QuickViewScope{SiteID: "S2", SiteName: "St. Luke"}, s.QuickView)
	assert.Equal(t, entities.SingleHighlight("S2"), s.Highlight)
}

func TestState_HighlightedMarkers(t *testing.T) {
	s := newState()
	s.Markers = &entities.MarkerSet{Markers: []entities.MapMarker{{ID: "A"}, {ID: "B"}, {ID: "C"}}}
	assert.Nil(t, s.HighlightedMarkers())

	s.Highlight = entities.NewHighlight([]string{"C", "A"}, entities.HighlightMultiple)
	got := s.HighlightedMarkers()

	require.Len(t, got, 2)
	assert.Equal(t, "A", got[0].ID)
	assert.Equal(t, "C", got[1].ID)
}

func TestNewPanelError(t *testing.T) {
	typed := newPanelError(apperrors.NewInvalidResponseError("bad json", nil))
	assert.Equal(t, apperrors.ErrorTypeInvalidResponse, typed.Type)

	untyped := newPanelError(assert.AnError)
	assert.Equal(t, apperrors.ErrorTypeDataUnavailable, untyped.Type)
}
