package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/graph-gophers/dataloader/v7"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"

	"github.com/junohealth/marketexplorer/internal/domain/entities"
	"github.com/junohealth/marketexplorer/internal/domain/providers"
	"github.com/junohealth/marketexplorer/internal/infrastructure/observability"
	"github.com/junohealth/marketexplorer/internal/query"
	apperrors "github.com/junohealth/marketexplorer/pkg/errors"
)

// Default TTLs
const (
	DefaultResponseTTL = 5 * time.Minute
	DefaultRelationTTL = 30 * time.Minute

	DefaultLookupTimeout = 10 * time.Second
)

// DataProviderConfig holds cache lifetimes for the facade
type DataProviderConfig struct {
	ResponseTTL time.Duration
	RelationTTL time.Duration
	// LookupWait is how long the relationship loader collects keys before dispatching
	LookupWait time.Duration
	// LookupTimeout bounds one relationship batch, which runs detached from any caller's cancellation
	LookupTimeout time.Duration
}

// DataProviderService is the single path for explorer reads. Responses are memoized in the
// response cache under endpoint + canonical parameters; relationship lookups live in their
// own cache, untouched by InvalidateAll.
type DataProviderService struct {
	source    providers.ClaimsSource
	responses providers.CacheProvider
	relations providers.CacheProvider
	cfg       DataProviderConfig
	metrics   *observability.Metrics

	loadersMu sync.Mutex
	loaders   map[providers.RelationKind]*dataloader.Loader[string, []entities.Site]
}

// NewDataProviderService creates a new data provider facade
func NewDataProviderService(
	source providers.ClaimsSource,
	responses providers.CacheProvider,
	relations providers.CacheProvider,
	cfg DataProviderConfig,
	metrics *observability.Metrics,
) *DataProviderService {
	if cfg.ResponseTTL <= 0 {
		cfg.ResponseTTL = DefaultResponseTTL
	}
	if cfg.RelationTTL <= 0 {
		cfg.RelationTTL = DefaultRelationTTL
	}
	if cfg.LookupWait <= 0 {
		cfg.LookupWait = 2 * time.Millisecond
	}
	if cfg.LookupTimeout <= 0 {
		cfg.LookupTimeout = DefaultLookupTimeout
	}
	return &DataProviderService{
		source:    source,
		responses: responses,
		relations: relations,
		cfg:       cfg,
		metrics:   metrics,
		loaders:   make(map[providers.RelationKind]*dataloader.Loader[string, []entities.Site]),
	}
}

var _ providers.DataProvider = (*DataProviderService)(nil)

// FetchList returns the list panel page for req
func (s *DataProviderService) FetchList(ctx context.Context, req providers.ListRequest) (*entities.EntityPage, error) {
	if !req.Mode.Valid() {
		return nil, apperrors.NewValidationError(fmt.Sprintf("unknown view mode %q", req.Mode))
	}

	if req.QuickView != nil {
		siteID := req.QuickView.SiteID
		endpoint := query.SiteScopedEndpoint(req.Mode, siteID)
		var params query.Params
		if req.Mode != entities.ViewModeSites {
			params = query.EncodePage(&req.Page)
		}
		return cachedFetch(ctx, s, endpoint, params, req.Fresh, func(ctx context.Context) (*entities.EntityPage, error) {
			return s.source.SiteScoped(ctx, req.Mode, siteID, req.Page)
		})
	}

	endpoint := query.ListEndpoint(req.Mode)
	return cachedFetch(ctx, s, endpoint, query.Encode(req.Filters, &req.Page), req.Fresh, func(ctx context.Context) (*entities.EntityPage, error) {
		return s.source.ListEntities(ctx, req.Mode, req.Filters, req.Page)
	})
}

// FetchMarkers returns every map marker for filters
func (s *DataProviderService) FetchMarkers(ctx context.Context, filters entities.FilterSet, fresh bool) (*entities.MarkerSet, error) {
	return cachedFetch(ctx, s, query.EndpointMapMarkers, query.Encode(filters, nil), fresh, func(ctx context.Context) (*entities.MarkerSet, error) {
		return s.source.MapMarkers(ctx, filters)
	})
}

// FilterOptions returns the filter dropdown values
func (s *DataProviderService) FilterOptions(ctx context.Context) (*entities.FilterOptions, error) {
	return cachedFetch(ctx, s, query.EndpointFilterOptions, nil, false, func(ctx context.Context) (*entities.FilterOptions, error) {
		return s.source.FilterOptions(ctx)
	})
}

// SitesForProvider returns the sites a provider has visits at
func (s *DataProviderService) SitesForProvider(ctx context.Context, providerID string) ([]entities.Site, error) {
	return s.sitesFor(ctx, providers.RelationProvider, providerID)
}

// SitesForProviderGroup returns the sites a provider group has visits at
func (s *DataProviderService) SitesForProviderGroup(ctx context.Context, groupName string) ([]entities.Site, error) {
	return s.sitesFor(ctx, providers.RelationProviderGroup, groupName)
}

// InvalidateAll drops every cached response. Relationship lookups are kept.
func (s *DataProviderService) InvalidateAll(ctx context.Context) error {
	if err := s.responses.Flush(ctx); err != nil {
		return apperrors.NewInternalError("failed to flush response cache", err)
	}
	log.Debug().Msg("Response cache flushed")
	return nil
}

// InvalidatePrefix drops cached responses for one endpoint. Only keys of the form
// "endpoint?..." match, so /sites leaves /sites/{id}/providers alone.
func (s *DataProviderService) InvalidatePrefix(ctx context.Context, endpoint string) error {
	if err := s.responses.DeletePrefix(ctx, query.EndpointPrefix(endpoint)); err != nil {
		return apperrors.NewInternalError(fmt.Sprintf("failed to invalidate %s", endpoint), err)
	}
	log.Debug().Str("endpoint", endpoint).Msg("Response cache entries invalidated")
	return nil
}

// InvalidateRelations drops every cached relationship lookup
func (s *DataProviderService) InvalidateRelations(ctx context.Context) error {
	if err := s.relations.Flush(ctx); err != nil {
		return apperrors.NewInternalError("failed to flush relationship cache", err)
	}
	log.Debug().Msg("Relationship cache flushed")
	return nil
}

func relationKey(kind providers.RelationKind, id string) string {
	return string(kind) + ":" + id
}

func (s *DataProviderService) sitesFor(ctx context.Context, kind providers.RelationKind, id string) ([]entities.Site, error) {
	key := relationKey(kind, id)

	if data, err := s.relations.Get(ctx, key); err == nil {
		var sites []entities.Site
		if err := json.Unmarshal(data, &sites); err == nil {
			observability.RecordCacheHit(ctx, s.metrics, "relation:"+string(kind))
			return sites, nil
		}
		log.Warn().Str("key", key).Msg("Discarding undecodable relationship cache entry")
	} else if !errors.Is(err, providers.ErrCacheMiss) {
		log.Warn().Err(err).Str("key", key).Msg("Relationship cache read failed")
	}
	observability.RecordCacheMiss(ctx, s.metrics, "relation:"+string(kind))

	loader := s.loader(kind)
	sites, err := loader.Load(ctx, id)()
	// The loader only coalesces in-flight lookups; s.relations is the cache.
	loader.Clear(ctx, id)
	if err != nil {
		return nil, apperrors.NewLookupFailedError(fmt.Sprintf("failed to resolve sites for %s %q", kind, id), err)
	}
	return sites, nil
}

func (s *DataProviderService) loader(kind providers.RelationKind) *dataloader.Loader[string, []entities.Site] {
	s.loadersMu.Lock()
	defer s.loadersMu.Unlock()

	if l, ok := s.loaders[kind]; ok {
		return l
	}
	l := dataloader.NewBatchedLoader(func(ctx context.Context, ids []string) []*dataloader.Result[[]entities.Site] {
		// A batch carries the first caller's context but serves every session that joined it,
		// so one session closing must not cancel the others' lookups.
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.LookupTimeout)
		defer cancel()

		results := make([]*dataloader.Result[[]entities.Site], len(ids))
		for i, id := range ids {
			sites, err := s.source.SitesFor(ctx, kind, id)
			if err != nil {
				results[i] = &dataloader.Result[[]entities.Site]{Error: err}
				continue
			}
			if data, err := json.Marshal(sites); err == nil {
				if err := s.relations.Set(ctx, relationKey(kind, id), data, s.cfg.RelationTTL); err != nil {
					log.Warn().Err(err).Str("kind", string(kind)).Str("id", id).Msg("Failed to cache relationship lookup")
				}
			}
			results[i] = &dataloader.Result[[]entities.Site]{Data: sites}
		}
		return results
	}, dataloader.WithWait[string, []entities.Site](s.cfg.LookupWait))
	s.loaders[kind] = l
	return l
}

// cachedFetch is the read-through path shared by every endpoint. Failures are never cached.
func cachedFetch[T any](
	ctx context.Context,
	s *DataProviderService,
	endpoint string,
	params query.Params,
	fresh bool,
	fetch func(ctx context.Context) (T, error),
) (T, error) {
	var zero T
	key := query.CacheKey(endpoint, params)

	ctx, span := observability.StartSpan(ctx, "claims.fetch")
	defer span.End()
	observability.SetSpanAttributes(span,
		attribute.String("claims.endpoint", endpoint),
		attribute.Bool("cache.bypass", fresh),
	)

	if !fresh {
		data, err := s.responses.Get(ctx, key)
		switch {
		case err == nil:
			var v T
			if err := json.Unmarshal(data, &v); err == nil {
				observability.RecordCacheHit(ctx, s.metrics, endpoint)
				log.Debug().Str("key", key).Msg("Response cache hit")
				return v, nil
			}
			log.Warn().Str("key", key).Msg("Discarding undecodable response cache entry")
		case !errors.Is(err, providers.ErrCacheMiss):
			log.Warn().Err(err).Str("key", key).Msg("Response cache read failed")
		}
	}
	observability.RecordCacheMiss(ctx, s.metrics, endpoint)
	log.Debug().Str("key", key).Bool("fresh", fresh).Msg("Response cache miss")

	start := time.Now()
	v, err := fetch(ctx)
	observability.RecordFetchMetric(ctx, s.metrics, endpoint, time.Since(start), err)
	if err != nil {
		observability.RecordError(span, err)
		log.Warn().Err(err).Str("endpoint", endpoint).Msg("Claims fetch failed")
		var appErr *apperrors.AppError
		if !errors.As(err, &appErr) {
			err = apperrors.NewDataUnavailableError(fmt.Sprintf("fetch %s failed", endpoint), err)
		}
		return zero, err
	}

	data, err := json.Marshal(v)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Failed to encode response for cache")
		return v, nil
	}
	if err := s.responses.Set(ctx, key, data, s.cfg.ResponseTTL); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Failed to cache response")
	}
	return v, nil
}
