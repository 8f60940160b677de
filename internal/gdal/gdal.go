// Package gdal drives the GDAL command line tools that inspect GeoTIFFs and
// cut them into tile pyramids.
package gdal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jasonAVM/Map-Viewer/internal/geo"
)

var (
	ErrToolsMissing  = errors.New("GDAL tools not found")
	ErrNotGeographic = errors.New("raster extent is not geographic")
)

// InstallHint is printed alongside ErrToolsMissing.
const InstallHint = `Please install GDAL:
  Ubuntu/Debian: sudo apt-get install gdal-bin
  macOS: brew install gdal
  Windows: Install OSGeo4W or use conda`

// Tools locates the GDAL binaries and runs them through a Runner.
type Tools struct {
	InfoBin  string
	TilesBin string
	Runner   Runner
}

func NewTools(infoBin, tilesBin string, r Runner) *Tools {
	if strings.TrimSpace(infoBin) == "" {
		infoBin = "gdalinfo"
	}
	if strings.TrimSpace(tilesBin) == "" {
		tilesBin = "gdal2tiles.py"
	}
	if r == nil {
		r = ExecRunner{}
	}
	return &Tools{InfoBin: infoBin, TilesBin: tilesBin, Runner: r}
}

// Check verifies both tools run and returns the gdalinfo version banner.
func (t *Tools) Check(ctx context.Context) (string, error) {
	out, err := t.Runner.Output(ctx, t.InfoBin, "--version")
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrToolsMissing, t.InfoBin, err)
	}
	if _, err := t.Runner.Output(ctx, t.TilesBin, "--help"); err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrToolsMissing, t.TilesBin, err)
	}
	return strings.TrimSpace(string(out)), nil
}

// RasterInfo is the subset of gdalinfo -json output tile generation needs.
type RasterInfo struct {
	Path   string
	Width  int
	Height int
	// PixelSize is the pixel width in the raster's map units.
	PixelSize float64
	// Extent spans the lower-left and upper-right corners in map units.
	Extent geo.Bounds
	// WGS84 is reported by GDAL when the raster's CRS is known.
	WGS84 *geo.Bounds
}

// GeographicBounds returns the extent as WGS84 degrees. GDAL's own
// wgs84Extent is preferred; otherwise the corner coordinates are used when
// they already are valid latitude/longitude pairs.
func (ri RasterInfo) GeographicBounds() (geo.Bounds, error) {
	if ri.WGS84 != nil {
		if err := ri.WGS84.Validate(); err != nil {
			return geo.Bounds{}, fmt.Errorf("%w: %w", ErrNotGeographic, err)
		}
		return *ri.WGS84, nil
	}
	if err := ri.Extent.Validate(); err != nil {
		return geo.Bounds{}, fmt.Errorf("%w: %w", ErrNotGeographic, err)
	}
	return ri.Extent, nil
}

type gdalInfoJSON struct {
	Size              []int     `json:"size"`
	GeoTransform      []float64 `json:"geoTransform"`
	CornerCoordinates struct {
		LowerLeft  []float64 `json:"lowerLeft"`
		UpperRight []float64 `json:"upperRight"`
	} `json:"cornerCoordinates"`
	WGS84Extent *struct {
		Type        string        `json:"type"`
		Coordinates [][][]float64 `json:"coordinates"`
	} `json:"wgs84Extent"`
}

// Info runs gdalinfo -json on path.
func (t *Tools) Info(ctx context.Context, path string) (RasterInfo, error) {
	out, err := t.Runner.Output(ctx, t.InfoBin, "-json", path)
	if err != nil {
		return RasterInfo{}, fmt.Errorf("gdalinfo %s: %w", path, err)
	}
	ri, err := ParseInfo(out)
	if err != nil {
		return RasterInfo{}, fmt.Errorf("parse gdalinfo output for %s: %w", path, err)
	}
	ri.Path = path
	return ri, nil
}

// ParseInfo decodes gdalinfo -json output.
func ParseInfo(b []byte) (RasterInfo, error) {
	var raw gdalInfoJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return RasterInfo{}, err
	}

	if len(raw.Size) < 2 {
		return RasterInfo{}, errors.New("missing size")
	}
	if len(raw.GeoTransform) < 6 {
		return RasterInfo{}, errors.New("missing geoTransform")
	}
	ll, ur := raw.CornerCoordinates.LowerLeft, raw.CornerCoordinates.UpperRight
	if len(ll) < 2 || len(ur) < 2 {
		return RasterInfo{}, errors.New("missing cornerCoordinates")
	}

	ri := RasterInfo{
		Width:     raw.Size[0],
		Height:    raw.Size[1],
		PixelSize: raw.GeoTransform[1],
		Extent: geo.Bounds{
			West:  ll[0],
			South: ll[1],
			East:  ur[0],
			North: ur[1],
		},
	}

	if raw.WGS84Extent != nil && len(raw.WGS84Extent.Coordinates) > 0 {
		b, err := geo.BoundsFromRing(raw.WGS84Extent.Coordinates[0])
		if err != nil {
			return RasterInfo{}, fmt.Errorf("wgs84Extent: %w", err)
		}
		ri.WGS84 = &b
	}
	return ri, nil
}

// TilesRequest describes one gdal2tiles invocation.
type TilesRequest struct {
	Source    string
	OutputDir string
	Zoom      geo.ZoomRange
	Processes int
	// XYZ selects the XYZ (Google/OSM) tile numbering over TMS.
	XYZ        bool
	Resampling string
}

// Args renders the gdal2tiles argument list. No web viewer is generated.
func (r TilesRequest) Args() []string {
	args := []string{"-z", r.Zoom.String(), "-w", "none"}
	if r.Processes > 0 {
		args = append(args, "--processes="+strconv.Itoa(r.Processes))
	}
	if r.XYZ {
		args = append(args, "--xyz")
	}
	if r.Resampling != "" {
		args = append(args, "-r", r.Resampling)
	}
	return append(args, r.Source, r.OutputDir)
}

// Tiles runs gdal2tiles for req.
func (t *Tools) Tiles(ctx context.Context, req TilesRequest) error {
	if err := req.Zoom.Validate(); err != nil {
		return fmt.Errorf("gdal2tiles %s: %w", req.Source, err)
	}
	if err := t.Runner.Run(ctx, t.TilesBin, req.Args()...); err != nil {
		return fmt.Errorf("gdal2tiles %s: %w", req.Source, err)
	}
	return nil
}
