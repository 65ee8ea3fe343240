package explorer

import (
	"strings"

	"github.com/junohealth/marketexplorer/internal/domain/entities"
	apperrors "github.com/junohealth/marketexplorer/pkg/errors"
)

// enterQuickView pins the list to siteID's universe. The site is emphasised regardless of any
// selection highlight; the view mode is left alone. Entering over an existing quick view
// replaces it.
func (s *State) enterQuickView(siteID, siteName string) error {
	siteID = strings.TrimSpace(siteID)
	if siteID == "" {
		return apperrors.NewValidationError("quick view requires a site id")
	}
	s.QuickView = &entities.QuickViewScope{SiteID: siteID, SiteName: siteName}
	s.Highlight = entities.SingleHighlight(siteID)
	s.Page.Page = 1
	return nil
}

// exitQuickView removes the quick view scope. The prior selection is not restored: the
// selection is cleared and the highlight goes to None. Reports whether a quick view was active.
func (s *State) exitQuickView() bool {
	if s.QuickView == nil {
		return false
	}
	s.QuickView = nil
	s.clearSelection()
	s.Page.Page = 1
	return true
}

// baselineHighlight is the highlight with nothing selected
func (s *State) baselineHighlight() entities.HighlightState {
	if s.QuickView != nil {
		return entities.SingleHighlight(s.QuickView.SiteID)
	}
	return entities.NoHighlight()
}
