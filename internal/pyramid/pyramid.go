// Package pyramid inspects tile pyramids on disk: which zoom levels exist,
// how many tiles each holds and how much of the layer's extent they cover.
package pyramid

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
	"golang.org/x/sync/errgroup"

	"github.com/jasonAVM/Map-Viewer/internal/geo"
)

// MaxLatitude is the Web Mercator cutoff.
const MaxLatitude = 85.05112878

// Inventory counts the tiles of one layer directory.
type Inventory struct {
	Layer string
	// Zooms maps a zoom level to the number of tiles present at it.
	Zooms map[int]int
	Tiles int
	Bytes int64
}

// ZoomRange returns the lowest and highest zoom levels present.
func (inv Inventory) ZoomRange() (geo.ZoomRange, bool) {
	if len(inv.Zooms) == 0 {
		return geo.ZoomRange{}, false
	}
	zr := geo.ZoomRange{Min: math.MaxInt, Max: math.MinInt}
	for z := range inv.Zooms {
		zr.Min = min(zr.Min, z)
		zr.Max = max(zr.Max, z)
	}
	return zr, true
}

// Levels returns the zoom levels present in ascending order.
func (inv Inventory) Levels() []int {
	levels := make([]int, 0, len(inv.Zooms))
	for z := range inv.Zooms {
		levels = append(levels, z)
	}
	sort.Ints(levels)
	return levels
}

// Scan inventories every layer directory under tilesDir. A missing tilesDir
// yields an empty result.
func Scan(ctx context.Context, tilesDir string) ([]Inventory, error) {
	entries, err := os.ReadDir(tilesDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read tiles dir: %w", err)
	}

	var (
		mu  sync.Mutex
		out []Inventory
	)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		name := e.Name()
		g.Go(func() error {
			inv, err := ScanLayer(ctx, filepath.Join(tilesDir, name))
			if err != nil {
				return err
			}
			inv.Layer = name
			mu.Lock()
			out = append(out, inv)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Layer < out[j].Layer })
	return out, nil
}

// ScanLayer counts the <z>/<x>/<y>.png files under one layer directory.
// Anything that does not fit that layout is ignored.
func ScanLayer(ctx context.Context, dir string) (Inventory, error) {
	inv := Inventory{Layer: filepath.Base(dir), Zooms: map[int]int{}}
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		z, ok := tileZoom(rel)
		if !ok {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		inv.Zooms[z]++
		inv.Tiles++
		inv.Bytes += fi.Size()
		return nil
	})
	if err != nil {
		return Inventory{}, fmt.Errorf("scan %s: %w", inv.Layer, err)
	}
	return inv, nil
}

func tileZoom(rel string) (int, bool) {
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) != 3 || !strings.EqualFold(filepath.Ext(parts[2]), ".png") {
		return 0, false
	}
	z, err := strconv.Atoi(parts[0])
	if err != nil || z < geo.MinZoom || z > geo.MaxZoom {
		return 0, false
	}
	if _, err := strconv.ParseUint(parts[1], 10, 32); err != nil {
		return 0, false
	}
	if _, err := strconv.ParseUint(strings.TrimSuffix(parts[2], filepath.Ext(parts[2])), 10, 32); err != nil {
		return 0, false
	}
	return z, true
}

// TileRange returns the north-west and south-east tiles covering b at zoom z.
func TileRange(b geo.Bounds, z int) (nw, se maptile.Tile) {
	zoom := maptile.Zoom(z)
	north := clampLat(b.North)
	south := clampLat(b.South)
	nw = clampTile(maptile.At(orb.Point{b.West, north}, zoom))
	se = clampTile(maptile.At(orb.Point{b.East, south}, zoom))
	return nw, se
}

// ExpectedTiles is the number of tiles a full pyramid level needs to cover b.
func ExpectedTiles(b geo.Bounds, z int) int64 {
	nw, se := TileRange(b, z)
	cols := int64(se.X) - int64(nw.X) + 1
	rows := int64(se.Y) - int64(nw.Y) + 1
	if cols <= 0 || rows <= 0 {
		return 0
	}
	return cols * rows
}

func clampLat(lat float64) float64 {
	return math.Max(-MaxLatitude, math.Min(MaxLatitude, lat))
}

func clampTile(t maptile.Tile) maptile.Tile {
	last := uint32(1)<<uint32(t.Z) - 1
	t.X = min(t.X, last)
	t.Y = min(t.Y, last)
	return t
}
