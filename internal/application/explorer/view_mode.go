package explorer

import (
	"fmt"

	"github.com/junohealth/marketexplorer/internal/domain/entities"
	apperrors "github.com/junohealth/marketexplorer/pkg/errors"
)

// switchViewMode makes mode the active list entity type. The selection is cleared, the
// highlight returns to its baseline and the list goes back to page 1. Filters survive, and so
// does an active quick view: its list is re-derived for the new mode. Reports whether the mode
// changed.
func (s *State) switchViewMode(mode entities.ViewMode) (bool, error) {
	if !mode.Valid() {
		return false, apperrors.NewValidationError(fmt.Sprintf("unknown view mode %q", mode))
	}
	if mode == s.ViewMode {
		return false, nil
	}
	s.ViewMode = mode
	s.clearSelection()
	s.Page.Page = 1
	return true, nil
}

// clearSelection drops the selected entity and resets the highlight to its baseline
func (s *State) clearSelection() {
	s.SelectedID = ""
	s.Highlight = s.baselineHighlight()
}
