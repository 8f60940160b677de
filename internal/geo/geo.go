// Package geo holds the WGS84 value types shared by tile generation, the
// viewer configuration and the pyramid inventory.
package geo

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

var ErrInvalidBounds = errors.New("invalid bounds")

// LatLng is a WGS84 coordinate in degrees.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (p LatLng) Validate() error {
	if math.IsNaN(p.Lat) || p.Lat < -90 || p.Lat > 90 {
		return fmt.Errorf("latitude %v out of range [-90, 90]", p.Lat)
	}
	if math.IsNaN(p.Lng) || p.Lng < -180 || p.Lng > 180 {
		return fmt.Errorf("longitude %v out of range [-180, 180]", p.Lng)
	}
	return nil
}

// Bounds is a geographic bounding box in degrees.
type Bounds struct {
	South float64 `json:"south"`
	West  float64 `json:"west"`
	North float64 `json:"north"`
	East  float64 `json:"east"`
}

func (b Bounds) SouthWest() LatLng { return LatLng{Lat: b.South, Lng: b.West} }
func (b Bounds) NorthEast() LatLng { return LatLng{Lat: b.North, Lng: b.East} }

// Validate reports whether both corners are valid latitude/longitude pairs
// and the box is not inverted.
func (b Bounds) Validate() error {
	if err := b.SouthWest().Validate(); err != nil {
		return fmt.Errorf("%w: south-west corner: %v", ErrInvalidBounds, err)
	}
	if err := b.NorthEast().Validate(); err != nil {
		return fmt.Errorf("%w: north-east corner: %v", ErrInvalidBounds, err)
	}
	if b.South > b.North {
		return fmt.Errorf("%w: south %v is north of north %v", ErrInvalidBounds, b.South, b.North)
	}
	if b.West > b.East {
		return fmt.Errorf("%w: west %v is east of east %v", ErrInvalidBounds, b.West, b.East)
	}
	return nil
}

func (b Bounds) Center() LatLng {
	return LatLng{
		Lat: (b.South + b.North) / 2,
		Lng: (b.West + b.East) / 2,
	}
}

// Span returns the latitude and longitude extents in degrees.
func (b Bounds) Span() (lat, lng float64) {
	return b.North - b.South, b.East - b.West
}

// Union returns the smallest box containing both b and o.
func (b Bounds) Union(o Bounds) Bounds {
	return Bounds{
		South: math.Min(b.South, o.South),
		West:  math.Min(b.West, o.West),
		North: math.Max(b.North, o.North),
		East:  math.Max(b.East, o.East),
	}
}

// UnionAll folds every box into one. ok is false for an empty slice.
func UnionAll(all []Bounds) (Bounds, bool) {
	if len(all) == 0 {
		return Bounds{}, false
	}
	out := all[0]
	for _, b := range all[1:] {
		out = out.Union(b)
	}
	return out, true
}

// LeafletPair is the [[south, west], [north, east]] form Leaflet takes for
// LatLngBounds.
func (b Bounds) LeafletPair() [2][2]float64 {
	return [2][2]float64{{b.South, b.West}, {b.North, b.East}}
}

func BoundsFromLeafletPair(p [2][2]float64) Bounds {
	return Bounds{South: p[0][0], West: p[0][1], North: p[1][0], East: p[1][1]}
}

// Orb converts to an orb.Bound (x = longitude, y = latitude).
func (b Bounds) Orb() orb.Bound {
	return orb.Bound{
		Min: orb.Point{b.West, b.South},
		Max: orb.Point{b.East, b.North},
	}
}

func BoundsFromOrb(o orb.Bound) Bounds {
	return Bounds{South: o.Min.Lat(), West: o.Min.Lon(), North: o.Max.Lat(), East: o.Max.Lon()}
}

// BoundsFromRing returns the envelope of a GeoJSON style ring of [lng, lat]
// positions.
func BoundsFromRing(ring [][]float64) (Bounds, error) {
	var r orb.Ring
	for _, pos := range ring {
		if len(pos) < 2 {
			return Bounds{}, fmt.Errorf("%w: position has %d ordinates", ErrInvalidBounds, len(pos))
		}
		r = append(r, orb.Point{pos[0], pos[1]})
	}
	if len(r) == 0 {
		return Bounds{}, fmt.Errorf("%w: empty ring", ErrInvalidBounds)
	}
	return BoundsFromOrb(r.Bound()), nil
}
