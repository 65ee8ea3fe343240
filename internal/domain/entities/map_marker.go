package entities

// MapMarker is the map projection of a Site. Markers without coordinates stay in the
// result set but are never rendered.
type MapMarker struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Latitude      *float64 `json:"latitude,omitempty"`
	Longitude     *float64 `json:"longitude,omitempty"`
	TotalVisits   int      `json:"total_visits"`
	ProviderCount int      `json:"provider_count"`
	SiteType      string   `json:"site_type,omitempty"`
	City          string   `json:"city,omitempty"`
	Geomarket     string   `json:"geomarket,omitempty"`
}

// HasCoordinates reports whether the marker can be placed on the map
func (m MapMarker) HasCoordinates() bool {
	return m.Latitude != nil && m.Longitude != nil
}

// MapBounds is a viewport rectangle in degrees
type MapBounds struct {
	North float64 `json:"north"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	West  float64 `json:"west"`
}

// Valid reports whether the rectangle is not inverted
func (b MapBounds) Valid() bool {
	return b.North >= b.South && b.North <= 90 && b.South >= -90 &&
		b.East <= 180 && b.West >= -180
}

// MarkerSet is the map panel payload
type MarkerSet struct {
	Markers    []MapMarker `json:"markers"`
	TotalCount int         `json:"total_count"`
	Bounds     *MapBounds  `json:"bounds,omitempty"`
}

// IDs returns the ids of every marker, rendered or not
func (s *MarkerSet) IDs() []string {
	if s == nil {
		return nil
	}
	ids := make([]string, 0, len(s.Markers))
	for _, m := range s.Markers {
		ids = append(ids, m.ID)
	}
	return ids
}

// FitBounds returns the smallest rectangle containing every marker with coordinates,
// or nil when none has any.
func (s *MarkerSet) FitBounds() *MapBounds {
	if s == nil {
		return nil
	}
	var b *MapBounds
	for _, m := range s.Markers {
		if !m.HasCoordinates() {
			continue
		}
		lat, lon := *m.Latitude, *m.Longitude
		if b == nil {
			b = &MapBounds{North: lat, South: lat, East: lon, West: lon}
			continue
		}
		b.North = max(b.North, lat)
		b.South = min(b.South, lat)
		b.East = max(b.East, lon)
		b.West = min(b.West, lon)
	}
	return b
}
