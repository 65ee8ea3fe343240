package handlers

import (
	"context"
	"net/http"

	"github.com/junohealth/marketexplorer/internal/application/explorer"
	"github.com/junohealth/marketexplorer/internal/application/services"
	"github.com/junohealth/marketexplorer/internal/domain/entities"
	"github.com/junohealth/marketexplorer/internal/infrastructure/observability"
)

// FilterOptionsSource supplies the filter dropdown values
type FilterOptionsSource interface {
	FilterOptions(ctx context.Context) (*entities.FilterOptions, error)
}

// ExplorerHandler exposes explorer session commands over HTTP. Commands return the session
// state right after the command was applied; fetch results follow on the event stream.
type ExplorerHandler struct {
	registry *services.SessionRegistry
	options  FilterOptionsSource
}

// NewExplorerHandler creates a new explorer handler
func NewExplorerHandler(registry *services.SessionRegistry, options FilterOptionsSource) *ExplorerHandler {
	return &ExplorerHandler{
		registry: registry,
		options:  options,
	}
}

type createSessionRequest struct {
	ViewMode entities.ViewMode  `json:"view_mode"`
	Filters  entities.FilterSet `json:"filters"`
}

type sessionResponse struct {
	SessionID string         `json:"session_id"`
	State     explorer.State `json:"state"`
}

type viewModeRequest struct {
	ViewMode entities.ViewMode `json:"view_mode"`
}

type selectionRequest struct {
	ID string `json:"id"`
}

type quickViewRequest struct {
	SiteID   string `json:"site_id"`
	SiteName string `json:"site_name"`
}

// CreateSession handles POST /api/sessions
func (h *ExplorerHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithAppError(w, r, err)
		return
	}

	id, session, err := h.registry.Create(req.ViewMode, req.Filters)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, sessionResponse{SessionID: id, State: session.State()})
}

// GetSession handles GET /api/sessions/{id}
func (h *ExplorerHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	h.withSession(w, r, func(*explorer.Orchestrator) error { return nil })
}

// DeleteSession handles DELETE /api/sessions/{id}
func (h *ExplorerHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.registry.Delete(r.PathValue("id")); err != nil {
		respondWithAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetFilters handles PUT /api/sessions/{id}/filters
func (h *ExplorerHandler) SetFilters(w http.ResponseWriter, r *http.Request) {
	var filters entities.FilterSet
	if err := decodeJSON(r, &filters); err != nil {
		respondWithAppError(w, r, err)
		return
	}
	h.withSession(w, r, func(o *explorer.Orchestrator) error {
		return o.SetFilters(filters)
	})
}

// SetViewMode handles PUT /api/sessions/{id}/view-mode
func (h *ExplorerHandler) SetViewMode(w http.ResponseWriter, r *http.Request) {
	var req viewModeRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithAppError(w, r, err)
		return
	}
	h.withSession(w, r, func(o *explorer.Orchestrator) error {
		return o.SetViewMode(req.ViewMode)
	})
}

// SelectEntity handles POST /api/sessions/{id}/selection
func (h *ExplorerHandler) SelectEntity(w http.ResponseWriter, r *http.Request) {
	var req selectionRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithAppError(w, r, err)
		return
	}
	h.withSession(w, r, func(o *explorer.Orchestrator) error {
		return o.SelectEntity(req.ID)
	})
}

// EnterQuickView handles POST /api/sessions/{id}/quick-view
func (h *ExplorerHandler) EnterQuickView(w http.ResponseWriter, r *http.Request) {
	var req quickViewRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithAppError(w, r, err)
		return
	}
	h.withSession(w, r, func(o *explorer.Orchestrator) error {
		return o.EnterQuickView(req.SiteID, req.SiteName)
	})
}

// ExitQuickView handles DELETE /api/sessions/{id}/quick-view
func (h *ExplorerHandler) ExitQuickView(w http.ResponseWriter, r *http.Request) {
	h.withSession(w, r, func(o *explorer.Orchestrator) error {
		return o.ExitQuickView()
	})
}

// SetMapBounds handles PUT /api/sessions/{id}/bounds. A null or empty body clears the viewport.
func (h *ExplorerHandler) SetMapBounds(w http.ResponseWriter, r *http.Request) {
	var bounds *entities.MapBounds
	if err := decodeJSON(r, &bounds); err != nil {
		respondWithAppError(w, r, err)
		return
	}
	h.withSession(w, r, func(o *explorer.Orchestrator) error {
		return o.SetMapBounds(bounds)
	})
}

// SetPage handles PUT /api/sessions/{id}/page
func (h *ExplorerHandler) SetPage(w http.ResponseWriter, r *http.Request) {
	var page entities.Pagination
	if err := decodeJSON(r, &page); err != nil {
		respondWithAppError(w, r, err)
		return
	}
	h.withSession(w, r, func(o *explorer.Orchestrator) error {
		return o.SetPage(page)
	})
}

// Refresh handles POST /api/sessions/{id}/refresh
func (h *ExplorerHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	h.withSession(w, r, func(o *explorer.Orchestrator) error {
		return o.Refresh()
	})
}

// GetFilterOptions handles GET /api/filter-options
func (h *ExplorerHandler) GetFilterOptions(w http.ResponseWriter, r *http.Request) {
	options, err := h.options.FilterOptions(r.Context())
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, options)
}

// withSession runs cmd against the session named in the path and responds with its state
func (h *ExplorerHandler) withSession(w http.ResponseWriter, r *http.Request, cmd func(*explorer.Orchestrator) error) {
	id := r.PathValue("id")
	if id == "" {
		respondWithError(w, http.StatusBadRequest, "session ID is required")
		return
	}

	session, err := h.registry.Get(id)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	if err := cmd(session); err != nil {
		respondWithAppError(w, r, err)
		return
	}

	observability.LoggerFromContext(r.Context()).Debug().
		Str("session_id", id).
		Str("route", r.Pattern).
		Msg("Session command applied")
	respondWithJSON(w, http.StatusOK, sessionResponse{SessionID: id, State: session.State()})
}
