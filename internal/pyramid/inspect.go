package pyramid

import (
	"context"

	"github.com/jasonAVM/Map-Viewer/internal/geo"
	"github.com/jasonAVM/Map-Viewer/internal/mapconfig"
)

// Coverage compares one zoom level against the tiles its bounds need.
type Coverage struct {
	Zoom     int   `json:"zoom"`
	Present  int   `json:"present"`
	Expected int64 `json:"expected"`
}

// Ratio is Present/Expected, or 0 when nothing is expected.
func (c Coverage) Ratio() float64 {
	if c.Expected <= 0 {
		return 0
	}
	return float64(c.Present) / float64(c.Expected)
}

// Report describes one layer as the viewer sees it and as it exists on disk.
type Report struct {
	Layer string `json:"layer"`
	// Configured is false for pyramids on disk the viewer does not list.
	Configured bool           `json:"configured"`
	Bounds     *geo.Bounds    `json:"bounds"`
	Zoom       *geo.ZoomRange `json:"zoom"`
	Tiles      int            `json:"tiles"`
	Bytes      int64          `json:"bytes"`
	Coverage   []Coverage     `json:"coverage,omitempty"`
}

// Missing reports a configured layer with no tiles on disk.
func (r Report) Missing() bool { return r.Configured && r.Tiles == 0 }

// Inspect scans tilesDir and joins the result with the viewer configuration.
// Configured layers come first in config order, followed by orphaned
// pyramids.
func Inspect(ctx context.Context, cfg mapconfig.Config, tilesDir string) ([]Report, error) {
	inventories, err := Scan(ctx, tilesDir)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]Inventory, len(inventories))
	for _, inv := range inventories {
		byName[inv.Layer] = inv
	}

	reports := make([]Report, 0, len(cfg.OrthoLayers)+len(inventories))
	for _, l := range cfg.OrthoLayers {
		r := Report{Layer: l.Name, Configured: true}
		if l.Bounds != nil {
			b := geo.BoundsFromLeafletPair(*l.Bounds)
			r.Bounds = &b
		}
		if inv, ok := byName[l.Name]; ok {
			r.fill(inv)
			delete(byName, l.Name)
		}
		reports = append(reports, r)
	}
	for _, inv := range inventories {
		if _, ok := byName[inv.Layer]; !ok {
			continue
		}
		r := Report{Layer: inv.Layer}
		r.fill(inv)
		reports = append(reports, r)
	}
	return reports, nil
}

func (r *Report) fill(inv Inventory) {
	r.Tiles = inv.Tiles
	r.Bytes = inv.Bytes
	if zr, ok := inv.ZoomRange(); ok {
		r.Zoom = &zr
	}
	for _, z := range inv.Levels() {
		c := Coverage{Zoom: z, Present: inv.Zooms[z]}
		if r.Bounds != nil {
			c.Expected = ExpectedTiles(*r.Bounds, z)
		}
		r.Coverage = append(r.Coverage, c)
	}
}
