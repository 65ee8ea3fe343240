package services

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog/log"

	"github.com/junohealth/marketexplorer/internal/application/explorer"
	"github.com/junohealth/marketexplorer/internal/domain/entities"
	"github.com/junohealth/marketexplorer/internal/domain/providers"
	"github.com/junohealth/marketexplorer/internal/infrastructure/observability"
	apperrors "github.com/junohealth/marketexplorer/pkg/errors"
)

// DefaultSessionTTL is how long an untouched explorer session lives
const DefaultSessionTTL = 30 * time.Minute

// SessionConfig configures explorer sessions
type SessionConfig struct {
	TTL         time.Duration
	PageSize    int
	EventBuffer int
}

// SessionRegistry holds the live explorer sessions. A session expires after TTL without
// access; expiry and deletion close its orchestrator.
type SessionRegistry struct {
	data     providers.DataProvider
	cfg      SessionConfig
	metrics  *observability.Metrics
	sessions *gocache.Cache
}

// NewSessionRegistry creates a new session registry
func NewSessionRegistry(data providers.DataProvider, cfg SessionConfig, metrics *observability.Metrics) *SessionRegistry {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultSessionTTL
	}
	sessions := gocache.New(cfg.TTL, cfg.TTL/2)
	sessions.OnEvicted(func(id string, v interface{}) {
		if o, ok := v.(*explorer.Orchestrator); ok {
			o.Close()
		}
		log.Debug().Str("session_id", id).Msg("Explorer session evicted")
	})
	return &SessionRegistry{
		data:     data,
		cfg:      cfg,
		metrics:  metrics,
		sessions: sessions,
	}
}

// Create starts a new session and issues its first fetch cycle
func (r *SessionRegistry) Create(mode entities.ViewMode, filters entities.FilterSet) (string, *explorer.Orchestrator, error) {
	id := uuid.New().String()
	logger := observability.SessionLogger(id)

	o, err := explorer.NewOrchestrator(r.data, explorer.Options{
		ViewMode:    mode,
		Filters:     filters,
		PageSize:    r.cfg.PageSize,
		EventBuffer: r.cfg.EventBuffer,
		Logger:      &logger,
		Metrics:     r.metrics,
	})
	if err != nil {
		return "", nil, err
	}
	if err := o.Load(); err != nil {
		o.Close()
		return "", nil, apperrors.NewInternalError("failed to start session", err)
	}

	r.sessions.SetDefault(id, o)
	logger.Info().Str("view_mode", string(o.State().ViewMode)).Msg("Explorer session created")
	return id, o, nil
}

// Get returns a session and restarts its idle timer
func (r *SessionRegistry) Get(id string) (*explorer.Orchestrator, error) {
	v, ok := r.sessions.Get(id)
	if !ok {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("session %s not found", id))
	}
	o := v.(*explorer.Orchestrator)
	// Replace fails once a concurrent Delete or eviction removed the entry, so a closed
	// session is never written back.
	if o.Closed() || r.sessions.Replace(id, o, gocache.DefaultExpiration) != nil {
		r.sessions.Delete(id)
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("session %s not found", id))
	}
	return o, nil
}

// Touch restarts a session's idle timer; reports whether the session exists
func (r *SessionRegistry) Touch(id string) bool {
	_, err := r.Get(id)
	return err == nil
}

// Delete closes and removes a session
func (r *SessionRegistry) Delete(id string) error {
	if _, ok := r.sessions.Get(id); !ok {
		return apperrors.NewNotFoundError(fmt.Sprintf("session %s not found", id))
	}
	r.sessions.Delete(id)
	return nil
}

// Count returns the number of live sessions
func (r *SessionRegistry) Count() int {
	return r.sessions.ItemCount()
}

// Close closes every session
func (r *SessionRegistry) Close() {
	for id := range r.sessions.Items() {
		r.sessions.Delete(id)
	}
}
