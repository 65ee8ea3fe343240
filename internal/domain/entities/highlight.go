package entities

import "slices"

// HighlightMode controls how map markers are emphasised
type HighlightMode string

const (
	// HighlightNone renders every marker uniformly
	HighlightNone HighlightMode = "none"
	// HighlightSingle emphasises one site
	HighlightSingle HighlightMode = "single"
	// HighlightMultiple emphasises a set of sites
	HighlightMultiple HighlightMode = "multiple"
)

// HighlightState lists the emphasised markers. Markers outside SiteIDs are dimmed, not hidden.
// Mode is None exactly when SiteIDs is empty.
type HighlightState struct {
	SiteIDs []string      `json:"site_ids"`
	Mode    HighlightMode `json:"mode"`
}

// NoHighlight returns the uniform state
func NoHighlight() HighlightState {
	return HighlightState{SiteIDs: []string{}, Mode: HighlightNone}
}

// SingleHighlight emphasises one site
func SingleHighlight(siteID string) HighlightState {
	return HighlightState{SiteIDs: []string{siteID}, Mode: HighlightSingle}
}

// NewHighlight builds a state for ids, deduplicated in first-seen order. An empty set always
// yields None regardless of the requested mode.
func NewHighlight(ids []string, mode HighlightMode) HighlightState {
	seen := make(map[string]struct{}, len(ids))
	unique := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	if len(unique) == 0 || mode == HighlightNone {
		return NoHighlight()
	}
	return HighlightState{SiteIDs: unique, Mode: mode}
}

// Contains reports whether siteID is emphasised
func (h HighlightState) Contains(siteID string) bool {
	return slices.Contains(h.SiteIDs, siteID)
}

// Clone returns a copy safe to hand to observers
func (h HighlightState) Clone() HighlightState {
	out := h
	out.SiteIDs = slices.Clone(h.SiteIDs)
	if out.SiteIDs == nil {
		out.SiteIDs = []string{}
	}
	return out
}

// QuickViewScope pins the list panel to one site's universe
type QuickViewScope struct {
	SiteID   string `json:"site_id"`
	SiteName string `json:"site_name"`
}
