package entities

import (
	"fmt"
	"strings"
)

// ViewMode selects which entity collection populates the list panel
type ViewMode string

const (
	ViewModeSites     ViewMode = "sites"
	ViewModeProviders ViewMode = "providers"
	ViewModeGroups    ViewMode = "groups"
)

// ViewModes lists every view mode in display order
var ViewModes = []ViewMode{ViewModeSites, ViewModeProviders, ViewModeGroups}

// Valid reports whether m is one of the known view modes
func (m ViewMode) Valid() bool {
	switch m {
	case ViewModeSites, ViewModeProviders, ViewModeGroups:
		return true
	}
	return false
}

// ParseViewMode parses a view mode name case-insensitively
func ParseViewMode(s string) (ViewMode, error) {
	m := ViewMode(strings.ToLower(strings.TrimSpace(s)))
	if !m.Valid() {
		return "", fmt.Errorf("unknown view mode %q", s)
	}
	return m, nil
}
