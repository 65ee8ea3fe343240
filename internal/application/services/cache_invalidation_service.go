package services

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/junohealth/marketexplorer/internal/domain/entities"
	"github.com/junohealth/marketexplorer/internal/domain/providers"
)

// CacheInvalidator is the part of the data provider facade driven by data events
type CacheInvalidator interface {
	InvalidateAll(ctx context.Context) error
	InvalidatePrefix(ctx context.Context, endpoint string) error
	InvalidateRelations(ctx context.Context) error
}

// CacheInvalidationService drops cached claims responses when a loader announces new data
type CacheInvalidationService struct {
	cache    CacheInvalidator
	eventBus providers.EventBus
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewCacheInvalidationService creates a new cache invalidation service
func NewCacheInvalidationService(cache CacheInvalidator, eventBus providers.EventBus) *CacheInvalidationService {
	ctx, cancel := context.WithCancel(context.Background())
	return &CacheInvalidationService{
		cache:    cache,
		eventBus: eventBus,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

// Start begins listening for data events
func (s *CacheInvalidationService) Start() error {
	eventChan, err := s.eventBus.Subscribe(s.ctx, providers.EventChannelClaimsData)
	if err != nil {
		return fmt.Errorf("failed to subscribe to claims data events: %w", err)
	}

	go s.processEvents(eventChan)
	log.Info().Str("channel", providers.EventChannelClaimsData).Msg("Cache invalidation service started")
	return nil
}

// Stop stops the cache invalidation service and waits for the event loop to exit
func (s *CacheInvalidationService) Stop() {
	s.cancel()
	<-s.done
	log.Info().Msg("Cache invalidation service stopped")
}

func (s *CacheInvalidationService) processEvents(eventChan <-chan *entities.DataEvent) {
	defer close(s.done)
	for {
		select {
		case <-s.ctx.Done():
			return
		case event, ok := <-eventChan:
			if !ok {
				return
			}
			if event == nil {
				continue
			}
			s.HandleEvent(event)
		}
	}
}

// HandleEvent applies one data event to the caches
func (s *CacheInvalidationService) HandleEvent(event *entities.DataEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	logger := log.With().Str("event_id", event.ID).Str("type", string(event.Type)).Logger()

	switch event.Type {
	case entities.DataEventClaimsReloaded:
		if len(event.Endpoints) == 0 {
			if err := s.cache.InvalidateAll(ctx); err != nil {
				logger.Warn().Err(err).Msg("Failed to flush response cache")
				return
			}
			logger.Info().Msg("Response cache flushed after claims reload")
			return
		}
		for _, endpoint := range event.Endpoints {
			if err := s.cache.InvalidatePrefix(ctx, endpoint); err != nil {
				logger.Warn().Err(err).Str("endpoint", endpoint).Msg("Failed to invalidate endpoint")
				continue
			}
		}
		logger.Info().Strs("endpoints", event.Endpoints).Msg("Endpoints invalidated after claims reload")

	case entities.DataEventRelationshipsChanged:
		if err := s.cache.InvalidateRelations(ctx); err != nil {
			logger.Warn().Err(err).Msg("Failed to flush relationship cache")
			return
		}
		logger.Info().Msg("Relationship cache flushed")

	default:
		logger.Debug().Msg("Ignoring unknown data event")
	}
}
