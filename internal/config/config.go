// Package config loads mapviewer settings.
//
// Precedence is env > file > defaults. The YAML file is parsed strictly so a
// misspelled key fails loudly instead of silently falling back to a default.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/jasonAVM/Map-Viewer/internal/geo"
)

var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	// ProjectDir anchors the relative directories below.
	ProjectDir string `yaml:"project_dir"`
	OrthosDir  string `yaml:"orthos_dir"`
	TilesDir   string `yaml:"tiles_dir"`
	WebDir     string `yaml:"web_dir"`

	Log    LogConfig    `yaml:"log"`
	HTTP   HTTPConfig   `yaml:"http"`
	Tiles  TilesConfig  `yaml:"tiles"`
	Viewer ViewerConfig `yaml:"viewer"`
	Deploy DeployConfig `yaml:"deploy"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

type HTTPConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// APIRequestsPerMinute limits /api per client IP. Zero disables it.
	APIRequestsPerMinute int `yaml:"api_requests_per_minute"`
}

type TilesConfig struct {
	GDALInfoBin   string `yaml:"gdalinfo_bin"`
	GDAL2TilesBin string `yaml:"gdal2tiles_bin"`
	// Processes is handed to gdal2tiles --processes.
	Processes int `yaml:"processes"`
	// Workers is the number of GeoTIFFs processed concurrently.
	Workers int    `yaml:"workers"`
	Preset  string `yaml:"preset"`
	// Scheme is "xyz" (gdal2tiles --xyz, Leaflet tms=false) or "tms".
	Scheme string `yaml:"scheme"`
	// Zoom, when set, replaces the per-raster zoom heuristic.
	Zoom          *geo.ZoomRange `yaml:"zoom"`
	Timeout       time.Duration  `yaml:"timeout"`
	WatchDebounce time.Duration  `yaml:"watch_debounce"`
}

type ViewerConfig struct {
	TileURLPrefix   string  `yaml:"tile_url_prefix"`
	BaseURL         string  `yaml:"base_url"`
	BaseAttribution string  `yaml:"base_attribution"`
	BaseOpacity     float64 `yaml:"base_opacity"`
	BaseMaxZoom     int     `yaml:"base_max_zoom"`
	DefaultMinZoom  int     `yaml:"default_min_zoom"`
	DefaultMaxZoom  int     `yaml:"default_max_zoom"`
}

type DeployConfig struct {
	// CLI is the cloud command line binary, "aws" by default.
	CLI     string         `yaml:"cli"`
	Bucket  string         `yaml:"bucket"`
	Profile string         `yaml:"profile"`
	Delete  bool           `yaml:"delete"`
	DryRun  bool           `yaml:"dry_run"`
	Targets []DeployTarget `yaml:"targets"`
}

type DeployTarget struct {
	Name        string   `yaml:"name"`
	Source      string   `yaml:"source"`
	Destination string   `yaml:"destination"`
	Include     []string `yaml:"include"`
	Exclude     []string `yaml:"exclude"`
	Delete      *bool    `yaml:"delete"`
}

const (
	SchemeXYZ = "xyz"
	SchemeTMS = "tms"
)

// Default returns the built-in configuration rooted at the working directory.
func Default() Config {
	return Config{
		ProjectDir: ".",
		OrthosDir:  "orthos",
		TilesDir:   "tiles",
		WebDir:     "web",
		Log: LogConfig{
			Level: "info",
		},
		HTTP: HTTPConfig{
			Addr:                 ":8080",
			ShutdownTimeout:      10 * time.Second,
			APIRequestsPerMinute: 120,
		},
		Tiles: TilesConfig{
			GDALInfoBin:   "gdalinfo",
			GDAL2TilesBin: "gdal2tiles.py",
			Processes:     4,
			Workers:       2,
			Preset:        "normal",
			Scheme:        SchemeXYZ,
			Timeout:       2 * time.Hour,
			WatchDebounce: 2 * time.Second,
		},
		Viewer: ViewerConfig{
			TileURLPrefix:   "../tiles",
			BaseURL:         "https://{s}.tile.openstreetmap.org/{z}/{x}/{y}.png",
			BaseAttribution: "© OpenStreetMap contributors",
			BaseOpacity:     0.5,
			BaseMaxZoom:     19,
			DefaultMinZoom:  5,
			DefaultMaxZoom:  18,
		},
		Deploy: DeployConfig{
			CLI: "aws",
		},
	}
}

// Path resolves dir against ProjectDir unless it is absolute.
func (c Config) Path(dir string) string {
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(c.ProjectDir, dir)
}

func (c Config) OrthosPath() string { return c.Path(c.OrthosDir) }
func (c Config) TilesPath() string  { return c.Path(c.TilesDir) }
func (c Config) WebPath() string    { return c.Path(c.WebDir) }

// Validate checks every section and joins all problems into one error.
func Validate(c Config) error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if strings.TrimSpace(c.ProjectDir) == "" {
		add("project_dir must not be empty")
	}
	for key, dir := range map[string]string{"orthos_dir": c.OrthosDir, "tiles_dir": c.TilesDir, "web_dir": c.WebDir} {
		if strings.TrimSpace(dir) == "" {
			add("%s must not be empty", key)
		}
	}

	if c.Tiles.Processes < 1 {
		add("tiles.processes must be >= 1 (got %d)", c.Tiles.Processes)
	}
	if c.Tiles.Workers < 1 {
		add("tiles.workers must be >= 1 (got %d)", c.Tiles.Workers)
	}
	switch c.Tiles.Scheme {
	case SchemeXYZ, SchemeTMS:
	default:
		add("tiles.scheme must be %q or %q (got %q)", SchemeXYZ, SchemeTMS, c.Tiles.Scheme)
	}
	if c.Tiles.Zoom != nil {
		if err := c.Tiles.Zoom.Validate(); err != nil {
			add("tiles.zoom: %v", err)
		}
	}
	if c.Tiles.Timeout < 0 {
		add("tiles.timeout must not be negative")
	}

	if c.Viewer.BaseOpacity < 0 || c.Viewer.BaseOpacity > 1 {
		add("viewer.base_opacity must be within [0, 1] (got %v)", c.Viewer.BaseOpacity)
	}
	if err := (geo.ZoomRange{Min: c.Viewer.DefaultMinZoom, Max: c.Viewer.DefaultMaxZoom}).Validate(); err != nil {
		add("viewer default zoom: %v", err)
	}
	if strings.TrimSpace(c.Viewer.TileURLPrefix) == "" {
		add("viewer.tile_url_prefix must not be empty")
	}

	if c.HTTP.ShutdownTimeout <= 0 {
		add("http.shutdown_timeout must be positive (got %s)", c.HTTP.ShutdownTimeout)
	}
	if c.HTTP.APIRequestsPerMinute < 0 {
		add("http.api_requests_per_minute must not be negative")
	}

	seen := make(map[string]struct{}, len(c.Deploy.Targets))
	for i, t := range c.Deploy.Targets {
		if strings.TrimSpace(t.Name) == "" {
			add("deploy.targets[%d].name must not be empty", i)
			continue
		}
		if _, dup := seen[t.Name]; dup {
			add("deploy.targets[%d]: duplicate name %q", i, t.Name)
		}
		seen[t.Name] = struct{}{}
		if strings.TrimSpace(t.Source) == "" {
			add("deploy.targets[%d] (%s): source must not be empty", i, t.Name)
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
}
