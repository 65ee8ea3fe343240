package explorer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"

	"github.com/junohealth/marketexplorer/internal/domain/entities"
	"github.com/junohealth/marketexplorer/internal/domain/providers"
	"github.com/junohealth/marketexplorer/internal/infrastructure/observability"
	apperrors "github.com/junohealth/marketexplorer/pkg/errors"
)

const (
	DefaultPageSize    = 100
	MaxPageSize        = 500
	DefaultEventBuffer = 32
)

const (
	panelList = "list"
	panelMap  = "map"
)

// ErrClosed is returned by commands issued after Close
var ErrClosed = errors.New("explorer session closed")

// Options configures an Orchestrator
type Options struct {
	ViewMode    entities.ViewMode
	Filters     entities.FilterSet
	PageSize    int
	EventBuffer int
	Logger      *zerolog.Logger
	Metrics     *observability.Metrics
}

// Orchestrator owns one explorer session: the view mode, filters, selection, highlight and
// quick view, plus the list and map payloads fetched for them. Every command bumps or keeps the
// fetch generation; a fetch result is applied only while its generation is current.
type Orchestrator struct {
	data     providers.DataProvider
	resolver *HighlightResolver
	metrics  *observability.Metrics
	logger   zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu             sync.Mutex
	state          State
	pending        int
	fitRequested   bool
	selectionToken uint64
	subscribers    map[uint64]chan Event
	nextSubscriber uint64
	bufferSize     int
	closed         bool
}

// NewOrchestrator creates an idle session. Call Load to issue the first fetch cycle.
func NewOrchestrator(data providers.DataProvider, opts Options) (*Orchestrator, error) {
	mode := opts.ViewMode
	if mode == "" {
		mode = entities.ViewModeSites
	}
	if !mode.Valid() {
		return nil, apperrors.NewValidationError(fmt.Sprintf("unknown view mode %q", mode))
	}
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	pageSize = min(pageSize, MaxPageSize)
	buffer := opts.EventBuffer
	if buffer <= 0 {
		buffer = DefaultEventBuffer
	}
	logger := log.Logger
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	filters, viewport := splitViewport(opts.Filters)
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		data:     data,
		resolver: NewHighlightResolver(data, logger),
		metrics:  opts.Metrics,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		state: State{
			ViewMode:  mode,
			Filters:   filters,
			Viewport:  viewport,
			Page:      entities.DefaultPagination(pageSize),
			Highlight: entities.NoHighlight(),
			Status:    StatusIdle,
		},
		subscribers: make(map[uint64]chan Event),
		bufferSize:  buffer,
	}, nil
}

// splitViewport separates a complete set of map bounds from the user's filters
func splitViewport(f entities.FilterSet) (entities.FilterSet, *entities.MapBounds) {
	f = f.Normalize()
	viewport := f.Bounds()
	if viewport == nil {
		return f, nil
	}
	return f.WithBounds(nil), viewport
}

// State returns a snapshot of the session
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state.Clone()
}

// Load issues a fetch cycle for the current state without changing it
func (o *Orchestrator) Load() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrClosed
	}
	o.startCycleLocked("load", true, false)
	return nil
}

// SetFilters replaces the filter set. Selection and highlight reset, pagination returns to
// page 1, an active quick view is kept. Complete map bounds in filters replace the viewport.
func (o *Orchestrator) SetFilters(filters entities.FilterSet) error {
	filters, viewport := splitViewport(filters)
	if viewport != nil && !viewport.Valid() {
		return apperrors.NewValidationError("invalid map bounds")
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrClosed
	}
	o.state.Filters = filters
	if viewport != nil {
		o.state.Viewport = viewport
	}
	o.resetSelectionLocked()
	o.state.Page.Page = 1
	o.startCycleLocked("filters", true, false)
	return nil
}

// SetViewMode switches the list entity type
func (o *Orchestrator) SetViewMode(mode entities.ViewMode) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrClosed
	}
	changed, err := o.state.switchViewMode(mode)
	if err != nil || !changed {
		return err
	}
	o.selectionToken++
	o.startCycleLocked("view_mode", true, false)
	return nil
}

// SelectEntity selects id in the current view mode and recomputes the highlight. An empty id
// deselects. During a quick view the selection is recorded but the highlight is untouched.
func (o *Orchestrator) SelectEntity(id string) error {
	id = strings.TrimSpace(id)

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrClosed
	}

	if id == "" {
		o.resetSelectionLocked()
		o.notifyLocked()
		return nil
	}

	o.state.SelectedID = id
	if o.state.QuickView != nil {
		o.notifyLocked()
		return nil
	}

	o.selectionToken++
	mode := o.state.ViewMode
	if !NeedsLookup(mode) {
		o.state.Highlight = o.resolver.Resolve(o.ctx, mode, id, nil, o.state.Highlight)
		o.notifyLocked()
		return nil
	}

	// nothing stays emphasised while the lookup is outstanding
	o.state.Highlight = entities.NoHighlight()
	o.notifyLocked()

	token := o.selectionToken
	o.wg.Add(1)
	go o.resolveHighlight(token, mode, id)
	return nil
}

// EnterQuickView scopes the list to one site and emphasises it
func (o *Orchestrator) EnterQuickView(siteID, siteName string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrClosed
	}
	if err := o.state.enterQuickView(siteID, siteName); err != nil {
		return err
	}
	o.selectionToken++
	o.startCycleLocked("quick_view_enter", true, false)
	return nil
}

// ExitQuickView leaves the quick view. Nothing happens when none is active.
func (o *Orchestrator) ExitQuickView() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrClosed
	}
	if !o.state.exitQuickView() {
		return nil
	}
	o.selectionToken++
	o.startCycleLocked("quick_view_exit", true, false)
	return nil
}

// SetMapBounds constrains both panels to the map viewport; nil removes the constraint.
// Selection and highlight are kept and no bounds fit is requested.
func (o *Orchestrator) SetMapBounds(bounds *entities.MapBounds) error {
	if bounds != nil && !bounds.Valid() {
		return apperrors.NewValidationError("invalid map bounds")
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrClosed
	}
	if bounds != nil {
		b := *bounds
		bounds = &b
	}
	o.state.Viewport = bounds
	o.state.Page.Page = 1
	o.startCycleLocked("bounds", false, false)
	return nil
}

// SetPage moves the list to another page. A zero PerPage keeps the current page size.
func (o *Orchestrator) SetPage(page entities.Pagination) error {
	if page.Page < 1 {
		return apperrors.NewValidationError("page must be at least 1")
	}
	if page.PerPage < 0 || page.PerPage > MaxPageSize {
		return apperrors.NewValidationError(fmt.Sprintf("per_page must be between 1 and %d", MaxPageSize))
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrClosed
	}
	o.state.Page.Page = page.Page
	if page.PerPage > 0 {
		o.state.Page.PerPage = page.PerPage
	}
	o.startCycleLocked("page", false, false)
	return nil
}

// Refresh drops every cached response and refetches both panels, bypassing the cache
func (o *Orchestrator) Refresh() error {
	o.mu.Lock()
	closed := o.closed
	o.mu.Unlock()
	if closed {
		return ErrClosed
	}

	if err := o.data.InvalidateAll(o.ctx); err != nil {
		o.logger.Warn().Err(err).Msg("Cache invalidation failed during refresh")
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrClosed
	}
	o.startCycleLocked("refresh", true, true)
	return nil
}

// Subscribe registers an observer. Delivery never blocks the session: events beyond the
// buffer are dropped for that subscriber. The returned func unsubscribes and closes the channel.
func (o *Orchestrator) Subscribe() (<-chan Event, func()) {
	o.mu.Lock()
	defer o.mu.Unlock()

	ch := make(chan Event, o.bufferSize)
	if o.closed {
		close(ch)
		return ch, func() {}
	}
	id := o.nextSubscriber
	o.nextSubscriber++
	o.subscribers[id] = ch

	return ch, func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		if c, ok := o.subscribers[id]; ok {
			delete(o.subscribers, id)
			close(c)
		}
	}
}

// Closed reports whether Close has been called
func (o *Orchestrator) Closed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}

// Wait blocks until every fetch and lookup started so far has finished
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// Close cancels in-flight fetches and closes every subscriber channel. Results arriving
// afterwards are dropped.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	o.closed = true
	o.cancel()
	for id, ch := range o.subscribers {
		delete(o.subscribers, id)
		close(ch)
	}
	o.logger.Debug().Uint64("generation", o.state.Generation).Msg("Explorer session closed")
}

func (o *Orchestrator) resetSelectionLocked() {
	o.selectionToken++
	o.state.clearSelection()
}

// startCycleLocked bumps the generation and fetches markers and the list for the new state.
// Results of earlier generations still in flight will be discarded.
func (o *Orchestrator) startCycleLocked(reason string, fitBounds, fresh bool) {
	o.state.Generation++
	gen := o.state.Generation
	o.state.Status = StatusLoading
	o.state.ListError = nil
	o.state.MapError = nil
	o.pending = 2
	o.fitRequested = fitBounds

	filters := o.state.Filters
	if o.state.Viewport != nil {
		filters = filters.WithBounds(o.state.Viewport)
	}
	req := providers.ListRequest{
		Mode:    o.state.ViewMode,
		Filters: filters.Clone(),
		Page:    o.state.Page,
		Fresh:   fresh,
	}
	if o.state.QuickView != nil {
		qv := *o.state.QuickView
		req.QuickView = &qv
	}

	o.logger.Debug().
		Uint64("generation", gen).
		Str("reason", reason).
		Str("view_mode", string(o.state.ViewMode)).
		Bool("quick_view", req.QuickView != nil).
		Bool("fresh", fresh).
		Msg("Starting fetch cycle")

	o.notifyLocked()

	o.wg.Add(2)
	go o.fetchMarkers(gen, filters.Clone(), fresh)
	go o.fetchList(gen, req)
}

func (o *Orchestrator) fetchList(gen uint64, req providers.ListRequest) {
	defer o.wg.Done()

	ctx, span := observability.StartSpan(o.ctx, "explorer.fetch_list")
	defer span.End()
	observability.SetSpanAttributes(span,
		attribute.Int64("explorer.generation", int64(gen)),
		attribute.String("explorer.view_mode", string(req.Mode)),
	)

	page, err := o.data.FetchList(ctx, req)

	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.currentLocked(ctx, gen, panelList) {
		return
	}
	if err != nil {
		observability.RecordError(span, err)
		o.logger.Warn().Err(err).Uint64("generation", gen).Msg("List fetch failed")
		o.state.List = nil
		o.state.ListError = newPanelError(err)
	} else {
		o.state.List = page
	}
	o.completeLocked()
}

func (o *Orchestrator) fetchMarkers(gen uint64, filters entities.FilterSet, fresh bool) {
	defer o.wg.Done()

	ctx, span := observability.StartSpan(o.ctx, "explorer.fetch_markers")
	defer span.End()
	observability.SetSpanAttributes(span, attribute.Int64("explorer.generation", int64(gen)))

	markers, err := o.data.FetchMarkers(ctx, filters, fresh)

	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.currentLocked(ctx, gen, panelMap) {
		return
	}
	if err != nil {
		observability.RecordError(span, err)
		o.logger.Warn().Err(err).Uint64("generation", gen).Msg("Map marker fetch failed")
		o.state.Markers = nil
		o.state.MapError = newPanelError(err)
		o.completeLocked()
		return
	}

	o.state.Markers = markers
	o.completeLocked()

	if o.fitRequested {
		o.fitRequested = false
		if bounds := markers.FitBounds(); bounds != nil {
			o.publishLocked(Event{Type: EventBoundsFitRequested, Generation: gen, Bounds: bounds})
		}
	}
}

// currentLocked reports whether a result for gen may be applied
func (o *Orchestrator) currentLocked(ctx context.Context, gen uint64, panel string) bool {
	if o.closed {
		return false
	}
	if gen != o.state.Generation {
		o.logger.Debug().
			Uint64("generation", gen).
			Uint64("current", o.state.Generation).
			Str("panel", panel).
			Msg("Discarding stale result")
		observability.RecordStaleDiscard(ctx, o.metrics, panel)
		return false
	}
	return true
}

func (o *Orchestrator) completeLocked() {
	o.pending--
	if o.pending <= 0 {
		o.pending = 0
		if o.state.ListError != nil || o.state.MapError != nil {
			o.state.Status = StatusError
		} else {
			o.state.Status = StatusReady
		}
	}
	o.notifyLocked()
}

func (o *Orchestrator) resolveHighlight(token uint64, mode entities.ViewMode, id string) {
	defer o.wg.Done()

	h := o.resolver.Resolve(o.ctx, mode, id, nil, entities.NoHighlight())

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed || token != o.selectionToken || o.state.QuickView != nil {
		o.logger.Debug().Str("selected_id", id).Msg("Discarding superseded highlight lookup")
		return
	}
	o.state.Highlight = h
	o.notifyLocked()
}

func (o *Orchestrator) notifyLocked() {
	snapshot := o.state.Clone()
	o.publishLocked(Event{Type: EventState, Generation: snapshot.Generation, State: &snapshot})
}

func (o *Orchestrator) publishLocked(ev Event) {
	for id, ch := range o.subscribers {
		select {
		case ch <- ev:
		default:
			o.logger.Debug().Uint64("subscriber", id).Str("event", string(ev.Type)).Msg("Subscriber buffer full, dropping event")
		}
	}
}
