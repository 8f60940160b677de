package geo

import (
	"fmt"
	"math"
)

const (
	// MetersPerPixelZoom0 is the Web Mercator ground resolution at the
	// equator for zoom 0 with 256px tiles.
	MetersPerPixelZoom0 = 156543.03392804097

	MinZoom = 0
	MaxZoom = 22

	// Zoom levels generated below and above the native resolution.
	zoomOutLevels = 8
	zoomInLevels  = 4

	// Very high resolution sources fall back to this range.
	fallbackMinZoom = 10
	fallbackMaxZoom = 22
	fallbackTrigger = 18
)

// ZoomRange is an inclusive pair of zoom levels.
type ZoomRange struct {
	Min int `json:"min" yaml:"min"`
	Max int `json:"max" yaml:"max"`
}

func (z ZoomRange) Validate() error {
	if z.Min < MinZoom || z.Max > MaxZoom {
		return fmt.Errorf("zoom range %d-%d outside %d-%d", z.Min, z.Max, MinZoom, MaxZoom)
	}
	if z.Min > z.Max {
		return fmt.Errorf("zoom range min %d greater than max %d", z.Min, z.Max)
	}
	return nil
}

// Contains reports whether z lies in the inclusive range.
func (z ZoomRange) Contains(zoom int) bool {
	return zoom >= z.Min && zoom <= z.Max
}

// Clamp pins zoom into the range.
func (z ZoomRange) Clamp(zoom int) int {
	if zoom < z.Min {
		return z.Min
	}
	if zoom > z.Max {
		return z.Max
	}
	return zoom
}

func (z ZoomRange) String() string {
	return fmt.Sprintf("%d-%d", z.Min, z.Max)
}

// OptimalZoom is the zoom whose ground resolution matches pixelSize meters.
func OptimalZoom(pixelSize float64) (float64, error) {
	ps := math.Abs(pixelSize)
	if ps == 0 || math.IsNaN(ps) || math.IsInf(ps, 0) {
		return 0, fmt.Errorf("pixel size %v is not usable", pixelSize)
	}
	return math.Log2(MetersPerPixelZoom0 / ps), nil
}

// ZoomRangeForPixelSize picks the zoom levels to render for a raster whose
// pixels are pixelSize map units wide: eight levels out and four levels in
// from the native resolution, capped to [1, 22].
func ZoomRangeForPixelSize(pixelSize float64) (ZoomRange, error) {
	optimal, err := OptimalZoom(pixelSize)
	if err != nil {
		return ZoomRange{}, err
	}
	if math.IsInf(optimal, 0) || math.IsNaN(optimal) {
		return ZoomRange{}, fmt.Errorf("pixel size %v is not usable", pixelSize)
	}
	native := int(optimal)

	lo := max(1, native-zoomOutLevels)
	hi := min(MaxZoom, native+zoomInLevels)
	if lo > hi {
		lo, hi = hi, lo
	}
	if lo > fallbackTrigger {
		return ZoomRange{Min: fallbackMinZoom, Max: fallbackMaxZoom}, nil
	}
	return ZoomRange{Min: lo, Max: hi}, nil
}

// InitialZoom estimates a zoom level that fits b on screen. Degenerate boxes
// (a single point) get fallback.
func InitialZoom(b Bounds, fallback int) int {
	latSpan, lngSpan := b.Span()
	span := math.Max(latSpan, lngSpan)
	if span <= 0 || math.IsNaN(span) {
		return fallback
	}
	return max(1, int(10-math.Log2(span*10)))
}
