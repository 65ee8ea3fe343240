package explorer

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/junohealth/marketexplorer/internal/domain/entities"
)

// SiteLookup resolves the sites behind a provider or provider group
type SiteLookup interface {
	SitesForProvider(ctx context.Context, providerID string) ([]entities.Site, error)
	SitesForProviderGroup(ctx context.Context, groupName string) ([]entities.Site, error)
}

// HighlightResolver computes which map markers a list selection emphasises
type HighlightResolver struct {
	lookup SiteLookup
	logger zerolog.Logger
}

// NewHighlightResolver creates a resolver backed by lookup
func NewHighlightResolver(lookup SiteLookup, logger zerolog.Logger) *HighlightResolver {
	return &HighlightResolver{lookup: lookup, logger: logger}
}

// NeedsLookup reports whether resolving a selection in mode requires a relationship fetch
func NeedsLookup(mode entities.ViewMode) bool {
	return mode == entities.ViewModeProviders || mode == entities.ViewModeGroups
}

// Resolve returns the highlight for selecting selectedID in mode. An active quick view
// keeps current unchanged. Lookup failures yield no highlight; Resolve never returns an error.
func (r *HighlightResolver) Resolve(
	ctx context.Context,
	mode entities.ViewMode,
	selectedID string,
	quickView *entities.QuickViewScope,
	current entities.HighlightState,
) entities.HighlightState {
	if quickView != nil {
		return current.Clone()
	}
	if selectedID == "" {
		return entities.NoHighlight()
	}

	switch mode {
	case entities.ViewModeSites:
		return entities.SingleHighlight(selectedID)

	case entities.ViewModeProviders:
		sites, err := r.lookup.SitesForProvider(ctx, selectedID)
		if err != nil {
			r.logger.Warn().Err(err).Str("provider_id", selectedID).Msg("Provider site lookup failed, clearing highlight")
			return entities.NoHighlight()
		}
		ids := siteIDs(sites)
		h := entities.NewHighlight(ids, entities.HighlightMultiple)
		if len(h.SiteIDs) == 1 {
			h.Mode = entities.HighlightSingle
		}
		return h

	case entities.ViewModeGroups:
		sites, err := r.lookup.SitesForProviderGroup(ctx, selectedID)
		if err != nil {
			r.logger.Warn().Err(err).Str("group", selectedID).Msg("Provider group site lookup failed, clearing highlight")
			return entities.NoHighlight()
		}
		// groups always read as multi-site, even with one site
		return entities.NewHighlight(siteIDs(sites), entities.HighlightMultiple)
	}

	return entities.NoHighlight()
}

func siteIDs(sites []entities.Site) []string {
	ids := make([]string, 0, len(sites))
	for _, s := range sites {
		ids = append(ids, s.ID)
	}
	return ids
}
