package explorer

import (
	"slices"

	"github.com/junohealth/marketexplorer/internal/domain/entities"
	apperrors "github.com/junohealth/marketexplorer/pkg/errors"
)

// Status is the fetch status of the latest generation
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusReady   Status = "ready"
	StatusError   Status = "error"
)

// PanelError is a failure confined to one panel
type PanelError struct {
	Type    apperrors.ErrorType `json:"type"`
	Message string              `json:"message"`
}

func newPanelError(err error) *PanelError {
	t := apperrors.TypeOf(err)
	if t == "" {
		t = apperrors.ErrorTypeDataUnavailable
	}
	return &PanelError{Type: t, Message: err.Error()}
}

// State is a snapshot of one explorer session. Snapshots are copies; mutating one has no effect
// on the session.
type State struct {
	ViewMode   entities.ViewMode        `json:"view_mode"`
	Filters    entities.FilterSet       `json:"filters"`
	Viewport   *entities.MapBounds      `json:"viewport,omitempty"`
	Page       entities.Pagination      `json:"page"`
	SelectedID string                   `json:"selected_id,omitempty"`
	Highlight  entities.HighlightState  `json:"highlight"`
	QuickView  *entities.QuickViewScope `json:"quick_view,omitempty"`

	Status     Status `json:"status"`
	Generation uint64 `json:"generation"`

	List      *entities.EntityPage `json:"list,omitempty"`
	Markers   *entities.MarkerSet  `json:"markers,omitempty"`
	ListError *PanelError          `json:"list_error,omitempty"`
	MapError  *PanelError          `json:"map_error,omitempty"`
}

// Clone returns a deep copy of the session-owned fields. Fetched payloads are shared; they are
// replaced, never mutated, once applied.
func (s State) Clone() State {
	out := s
	out.Filters = s.Filters.Clone()
	out.Highlight = s.Highlight.Clone()
	if s.Viewport != nil {
		v := *s.Viewport
		out.Viewport = &v
	}
	if s.QuickView != nil {
		q := *s.QuickView
		out.QuickView = &q
	}
	if s.ListError != nil {
		e := *s.ListError
		out.ListError = &e
	}
	if s.MapError != nil {
		e := *s.MapError
		out.MapError = &e
	}
	return out
}

// HighlightedMarkers returns the markers the map should emphasise
func (s State) HighlightedMarkers() []entities.MapMarker {
	if s.Markers == nil || s.Highlight.Mode == entities.HighlightNone {
		return nil
	}
	var out []entities.MapMarker
	for _, m := range s.Markers.Markers {
		if slices.Contains(s.Highlight.SiteIDs, m.ID) {
			out = append(out, m)
		}
	}
	return out
}

// EventType names a session notification
type EventType string

const (
	// EventState carries a new state snapshot
	EventState EventType = "state"
	// EventBoundsFitRequested asks the map to fit the new marker bounds, once
	EventBoundsFitRequested EventType = "bounds_fit_requested"
)

// Event is delivered to session subscribers
type Event struct {
	Type       EventType           `json:"type"`
	Generation uint64              `json:"generation"`
	State      *State              `json:"state,omitempty"`
	Bounds     *entities.MapBounds `json:"bounds,omitempty"`
}
