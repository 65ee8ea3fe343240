// Package claimsapi is the REST transport for the claims backend.
package claimsapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/junohealth/marketexplorer/internal/domain/entities"
	"github.com/junohealth/marketexplorer/internal/domain/providers"
	"github.com/junohealth/marketexplorer/internal/query"
	apperrors "github.com/junohealth/marketexplorer/pkg/errors"
)

// Config configures the HTTP client
type Config struct {
	BaseURL string
	Timeout time.Duration
	// BreakerFailures consecutive transport failures open the circuit for BreakerTimeout
	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

// HTTPClient reads explorer data from the claims REST API
type HTTPClient struct {
	http    *resty.Client
	breaker *gobreaker.CircuitBreaker
}

var _ providers.ClaimsSource = (*HTTPClient)(nil)

type listResponse[T any] struct {
	Items      []T                     `json:"items"`
	Meta       entities.PaginationMeta `json:"meta"`
	Statistics entities.Statistics     `json:"statistics"`
}

// NewClient creates a claims API client
func NewClient(cfg Config) *HTTPClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json")

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "claims-api",
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		// Only transport failures count against the backend; a caller giving up says nothing about it
		IsSuccessful: func(err error) bool {
			if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return true
			}
			return !apperrors.IsType(err, apperrors.ErrorTypeDataUnavailable)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("Circuit breaker state changed")
		},
	})

	return &HTTPClient{http: client, breaker: breaker}
}

// ListEntities returns one page of sites, providers or groups matching filters
func (c *HTTPClient) ListEntities(ctx context.Context, kind entities.ViewMode, filters entities.FilterSet, page entities.Pagination) (*entities.EntityPage, error) {
	return c.listPage(ctx, kind, query.ListEndpoint(kind), query.Encode(filters, &page))
}

// SiteScoped returns the kind entities linked to one site
func (c *HTTPClient) SiteScoped(ctx context.Context, kind entities.ViewMode, siteID string, page entities.Pagination) (*entities.EntityPage, error) {
	var params query.Params
	if kind != entities.ViewModeSites {
		params = query.EncodePage(&page)
	}
	return c.listPage(ctx, kind, query.SiteScopedEndpoint(kind, siteID), params)
}

func (c *HTTPClient) listPage(ctx context.Context, kind entities.ViewMode, endpoint string, params query.Params) (*entities.EntityPage, error) {
	out := &entities.EntityPage{Kind: kind}
	switch kind {
	case entities.ViewModeSites:
		var resp listResponse[entities.Site]
		if err := c.getJSON(ctx, endpoint, params, &resp); err != nil {
			return nil, err
		}
		out.Sites, out.Meta, out.Statistics = nonNil(resp.Items), resp.Meta, resp.Statistics
	case entities.ViewModeProviders:
		var resp listResponse[entities.Provider]
		if err := c.getJSON(ctx, endpoint, params, &resp); err != nil {
			return nil, err
		}
		out.Providers, out.Meta, out.Statistics = nonNil(resp.Items), resp.Meta, resp.Statistics
	case entities.ViewModeGroups:
		var resp listResponse[entities.ProviderGroup]
		if err := c.getJSON(ctx, endpoint, params, &resp); err != nil {
			return nil, err
		}
		out.Groups, out.Meta, out.Statistics = nonNil(resp.Items), resp.Meta, resp.Statistics
	default:
		return nil, apperrors.NewValidationError(fmt.Sprintf("unknown view mode %q", kind))
	}
	return out, nil
}

// MapMarkers returns every site matching filters, unpaginated
func (c *HTTPClient) MapMarkers(ctx context.Context, filters entities.FilterSet) (*entities.MarkerSet, error) {
	var resp entities.MarkerSet
	if err := c.getJSON(ctx, query.EndpointMapMarkers, query.Encode(filters, nil), &resp); err != nil {
		return nil, err
	}
	resp.Markers = nonNil(resp.Markers)
	return &resp, nil
}

// SitesFor returns the sites a provider or provider group practises at
func (c *HTTPClient) SitesFor(ctx context.Context, kind providers.RelationKind, id string) ([]entities.Site, error) {
	var resp listResponse[entities.Site]
	if err := c.getJSON(ctx, query.RelationEndpoint(kind, id), nil, &resp); err != nil {
		return nil, err
	}
	return nonNil(resp.Items), nil
}

// FilterOptions returns the distinct values for the filter dropdowns
func (c *HTTPClient) FilterOptions(ctx context.Context) (*entities.FilterOptions, error) {
	var resp entities.FilterOptions
	if err := c.getJSON(ctx, query.EndpointFilterOptions, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// BreakerState reports the circuit breaker state for health checks
func (c *HTTPClient) BreakerState() string {
	return c.breaker.State().String()
}

func (c *HTTPClient) getJSON(ctx context.Context, endpoint string, params query.Params, target interface{}) error {
	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.get(ctx, endpoint, params)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return apperrors.NewDataUnavailableError("claims API circuit open", err)
		}
		return err
	}

	body := result.([]byte)
	if err := json.Unmarshal(body, target); err != nil {
		return apperrors.NewInvalidResponseError(fmt.Sprintf("malformed response from %s", endpoint), err)
	}
	return nil
}

func (c *HTTPClient) get(ctx context.Context, endpoint string, params query.Params) ([]byte, error) {
	// The raw query keeps canonical parameter order; SetQueryParams would re-sort keys.
	path := endpoint
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	resp, err := c.http.R().SetContext(ctx).Get(path)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("claims API request to %s abandoned: %w", endpoint, ctxErr)
		}
		log.Warn().Err(err).Str("endpoint", endpoint).Msg("Claims API request failed")
		return nil, apperrors.NewDataUnavailableError(fmt.Sprintf("claims API request to %s failed", endpoint), err)
	}

	status := resp.StatusCode()
	switch {
	case status >= http.StatusInternalServerError:
		log.Warn().Int("status", status).Str("endpoint", endpoint).Msg("Claims API server error")
		return nil, apperrors.NewDataUnavailableError(fmt.Sprintf("claims API %s returned %d", endpoint, status), nil)
	case status == http.StatusNotFound:
		// e.g. a quick view on a site the backend does not know; panels only report data errors
		return nil, apperrors.NewInvalidResponseError(fmt.Sprintf("claims API has no resource %s", endpoint), nil)
	case status >= http.StatusBadRequest:
		return nil, apperrors.NewInvalidResponseError(fmt.Sprintf("claims API rejected %s with %d: %s", endpoint, status, truncate(resp.String(), 200)), nil)
	}
	return resp.Body(), nil
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
