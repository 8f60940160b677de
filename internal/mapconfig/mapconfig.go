// Package mapconfig builds, validates and writes the viewer configuration:
// the initial view, the zoom bounds and one tile layer per ortho.
package mapconfig

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jasonAVM/Map-Viewer/internal/geo"
)

var (
	ErrNoValidBounds = errors.New("no valid ortho bounds found")
	ErrInvalidConfig = errors.New("invalid viewer configuration")
)

// View is the map's starting position.
type View struct {
	Lat  float64 `json:"lat"`
	Lng  float64 `json:"lng"`
	Zoom int     `json:"zoom"`
}

// Layer is one ortho tile layer. Bounds is [[south, west], [north, east]]
// or null when the ortho's extent is unknown.
type Layer struct {
	Name   string         `json:"name"`
	URL    string         `json:"url"`
	Bounds *[2][2]float64 `json:"bounds"`
}

// BaseLayer is the OpenStreetMap layer drawn under the orthos.
type BaseLayer struct {
	URL         string  `json:"url"`
	Attribution string  `json:"attribution"`
	Opacity     float64 `json:"opacity"`
	MaxZoom     int     `json:"maxZoom"`
}

type Config struct {
	InitialView View          `json:"initialView"`
	ZoomLevels  geo.ZoomRange `json:"zoomLevels"`
	OrthoLayers []Layer       `json:"orthoLayers"`

	BaseLayer   BaseLayer `json:"baseLayer"`
	TMS         bool      `json:"tms"`
	GeneratedAt time.Time `json:"generatedAt,omitzero"`
}

// LayerSpec is what Build needs to know about a processed ortho. Zoom is nil
// when tile generation for the ortho failed.
type LayerSpec struct {
	Name   string
	Bounds *geo.Bounds
	Zoom   *geo.ZoomRange
}

type Options struct {
	// TileURLPrefix is joined with "<name>/{z}/{x}/{y}.png".
	TileURLPrefix string
	TMS           bool
	BaseLayer     BaseLayer
	// DefaultZoom applies when no ortho reported a zoom range.
	DefaultZoom geo.ZoomRange
	Now         func() time.Time
}

func DefaultOptions() Options {
	return Options{
		TileURLPrefix: "../tiles",
		BaseLayer: BaseLayer{
			URL:         "https://{s}.tile.openstreetmap.org/{z}/{x}/{y}.png",
			Attribution: "© OpenStreetMap contributors",
			Opacity:     0.5,
			MaxZoom:     19,
		},
		DefaultZoom: geo.ZoomRange{Min: 5, Max: 18},
	}
}

// TileURL returns the tile URL template for a layer.
func TileURL(prefix, name string) string {
	prefix = strings.TrimRight(prefix, "/")
	return prefix + "/" + name + "/{z}/{x}/{y}.png"
}

// Build derives the viewer configuration from the processed orthos. The
// initial view centers on the union of every valid layer extent; the zoom
// bounds span every layer's zoom range. Layers without valid bounds are kept
// with null bounds. ErrNoValidBounds is returned when no layer has any.
func Build(specs []LayerSpec, opts Options) (Config, error) {
	if opts.Now == nil {
		opts.Now = time.Now
	}

	var all []geo.Bounds
	var zoom *geo.ZoomRange
	layers := make([]Layer, 0, len(specs))

	for _, s := range specs {
		l := Layer{
			Name: s.Name,
			URL:  TileURL(opts.TileURLPrefix, s.Name),
		}
		if s.Bounds != nil && s.Bounds.Validate() == nil {
			all = append(all, *s.Bounds)
			pair := s.Bounds.LeafletPair()
			l.Bounds = &pair
		}
		if s.Zoom != nil {
			if zoom == nil {
				z := *s.Zoom
				zoom = &z
			} else {
				zoom.Min = min(zoom.Min, s.Zoom.Min)
				zoom.Max = max(zoom.Max, s.Zoom.Max)
			}
		}
		layers = append(layers, l)
	}

	union, ok := geo.UnionAll(all)
	if !ok {
		return Config{}, ErrNoValidBounds
	}

	zr := opts.DefaultZoom
	if zoom != nil {
		zr = *zoom
	}

	center := union.Center()
	cfg := Config{
		InitialView: View{
			Lat:  center.Lat,
			Lng:  center.Lng,
			Zoom: zr.Clamp(geo.InitialZoom(union, zr.Max)),
		},
		ZoomLevels:  zr,
		OrthoLayers: layers,
		BaseLayer:   opts.BaseLayer,
		TMS:         opts.TMS,
		GeneratedAt: opts.Now().UTC(),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that every coordinate is a valid latitude/longitude pair
// and the zoom settings are consistent.
func (c Config) Validate() error {
	var errs []error

	if err := c.ZoomLevels.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("zoomLevels: %w", err))
	} else if !c.ZoomLevels.Contains(c.InitialView.Zoom) {
		errs = append(errs, fmt.Errorf("initialView.zoom %d outside zoomLevels %s", c.InitialView.Zoom, c.ZoomLevels))
	}
	if err := (geo.LatLng{Lat: c.InitialView.Lat, Lng: c.InitialView.Lng}).Validate(); err != nil {
		errs = append(errs, fmt.Errorf("initialView: %w", err))
	}

	seen := make(map[string]struct{}, len(c.OrthoLayers))
	for i, l := range c.OrthoLayers {
		if strings.TrimSpace(l.Name) == "" {
			errs = append(errs, fmt.Errorf("orthoLayers[%d]: empty name", i))
		} else if _, dup := seen[l.Name]; dup {
			errs = append(errs, fmt.Errorf("orthoLayers[%d]: duplicate name %q", i, l.Name))
		}
		seen[l.Name] = struct{}{}

		for _, ph := range []string{"{z}", "{x}", "{y}"} {
			if !strings.Contains(l.URL, ph) {
				errs = append(errs, fmt.Errorf("orthoLayers[%d] (%s): url %q lacks %s", i, l.Name, l.URL, ph))
			}
		}
		if l.Bounds != nil {
			if err := geo.BoundsFromLeafletPair(*l.Bounds).Validate(); err != nil {
				errs = append(errs, fmt.Errorf("orthoLayers[%d] (%s): %w", i, l.Name, err))
			}
		}
	}

	if c.BaseLayer.Opacity < 0 || c.BaseLayer.Opacity > 1 {
		errs = append(errs, fmt.Errorf("baseLayer.opacity %v outside [0, 1]", c.BaseLayer.Opacity))
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
}

// Layer looks up an ortho layer by name.
func (c Config) Layer(name string) (Layer, bool) {
	for _, l := range c.OrthoLayers {
		if l.Name == name {
			return l, true
		}
	}
	return Layer{}, false
}

// Load reads a config.json written by WriteFiles and validates it.
func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	var c Config
	if err := json.Unmarshal(b, &c); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}
