package entities

import (
	"time"

	"github.com/google/uuid"
)

// DataEventType identifies a change to the claims data behind the explorer
type DataEventType string

const (
	// DataEventClaimsReloaded is published after a claims load replaces visit data
	DataEventClaimsReloaded DataEventType = "claims.reloaded"
	// DataEventRelationshipsChanged is published when provider/site/group links change
	DataEventRelationshipsChanged DataEventType = "relationships.changed"
)

// DataEvent notifies explorer processes that cached claims responses are out of date
type DataEvent struct {
	ID        string        `json:"id"`
	Type      DataEventType `json:"type"`
	Endpoints []string      `json:"endpoints,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// NewDataEvent creates an event; endpoints optionally narrows invalidation to those endpoints.
func NewDataEvent(eventType DataEventType, endpoints ...string) *DataEvent {
	return &DataEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Endpoints: endpoints,
		Timestamp: time.Now(),
	}
}
