package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/junohealth/marketexplorer/internal/application/explorer"
	"github.com/junohealth/marketexplorer/internal/application/services"
	"github.com/junohealth/marketexplorer/internal/infrastructure/observability"
)

// DefaultHeartbeatInterval is the keep-alive period of an event stream
const DefaultHeartbeatInterval = 30 * time.Second

// SSEHandler streams explorer session events as Server-Sent Events
type SSEHandler struct {
	registry  *services.SessionRegistry
	heartbeat time.Duration
}

// NewSSEHandler creates a new SSE handler
func NewSSEHandler(registry *services.SessionRegistry, heartbeat time.Duration) *SSEHandler {
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeatInterval
	}
	return &SSEHandler{
		registry:  registry,
		heartbeat: heartbeat,
	}
}

// StreamSession handles GET /api/sessions/{id}/events. The stream opens with the current
// state, then relays state and bounds_fit_requested events until the client leaves or the
// session closes. Heartbeats keep the session from idling out.
func (h *SSEHandler) StreamSession(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	if sessionID == "" {
		respondWithError(w, http.StatusBadRequest, "session ID is required")
		return
	}

	session, err := h.registry.Get(sessionID)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondWithError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	logger := observability.LoggerFromContext(r.Context()).With().Str("session_id", sessionID).Logger()

	events, unsubscribe := session.Subscribe()
	defer unsubscribe()

	// Set headers for SSE
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	state := session.State()
	h.sendEvent(w, string(explorer.EventState), explorer.Event{
		Type:       explorer.EventState,
		Generation: state.Generation,
		State:      &state,
	})
	flusher.Flush()
	logger.Debug().Msg("Event stream opened")

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			logger.Debug().Msg("Client disconnected from event stream")
			return
		case <-ticker.C:
			if !h.registry.Touch(sessionID) {
				h.sendEvent(w, "closed", map[string]string{"session_id": sessionID})
				flusher.Flush()
				return
			}
			h.sendEvent(w, "heartbeat", map[string]interface{}{
				"timestamp": time.Now(),
			})
			flusher.Flush()
		case ev, ok := <-events:
			if !ok {
				h.sendEvent(w, "closed", map[string]string{"session_id": sessionID})
				flusher.Flush()
				return
			}
			h.sendEvent(w, string(ev.Type), ev)
			flusher.Flush()
		}
	}
}

// sendEvent sends an SSE event to the client
func (h *SSEHandler) sendEvent(w http.ResponseWriter, eventType string, data interface{}) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		observability.GetLogger().Error().Err(err).Str("event", eventType).Msg("Failed to marshal event data")
		return
	}

	fmt.Fprintf(w, "event: %s\n", eventType)
	fmt.Fprintf(w, "data: %s\n\n", jsonData)
}
