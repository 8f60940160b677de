package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/jasonAVM/Map-Viewer/internal/config"
	"github.com/jasonAVM/Map-Viewer/internal/gdal"
	"github.com/jasonAVM/Map-Viewer/internal/geo"
	"github.com/jasonAVM/Map-Viewer/internal/mapconfig"
	"github.com/jasonAVM/Map-Viewer/internal/metrics"
	"github.com/jasonAVM/Map-Viewer/internal/tilegen"
	"github.com/jasonAVM/Map-Viewer/internal/web"
)

// zoomFlag parses "min-max" into a zoom range.
type zoomFlag struct{ zr *geo.ZoomRange }

func (z *zoomFlag) String() string {
	if z == nil || z.zr == nil {
		return ""
	}
	return z.zr.String()
}

func (z *zoomFlag) Set(s string) error {
	zr, err := parseZoomRange(s)
	if err != nil {
		return err
	}
	z.zr = &zr
	return nil
}

func parseZoomRange(s string) (geo.ZoomRange, error) {
	lo, hi, ok := strings.Cut(strings.TrimSpace(s), "-")
	if !ok {
		return geo.ZoomRange{}, fmt.Errorf("zoom range %q: want min-max", s)
	}
	minZ, err := strconv.Atoi(strings.TrimSpace(lo))
	if err != nil {
		return geo.ZoomRange{}, fmt.Errorf("zoom range %q: %w", s, err)
	}
	maxZ, err := strconv.Atoi(strings.TrimSpace(hi))
	if err != nil {
		return geo.ZoomRange{}, fmt.Errorf("zoom range %q: %w", s, err)
	}
	zr := geo.ZoomRange{Min: minZ, Max: maxZ}
	return zr, zr.Validate()
}

func runGenerate(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("mapviewer generate", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		common    commonFlags
		orthos    string
		tiles     string
		webDir    string
		workers   int
		processes int
		preset    string
		scheme    string
		zoom      zoomFlag
		skipCheck bool
		verbose   bool
		strict    bool
	)
	common.register(fs)
	fs.StringVar(&orthos, "orthos", "", "directory of input GeoTIFFs")
	fs.StringVar(&tiles, "tiles", "", "output directory for tile pyramids")
	fs.StringVar(&webDir, "web", "", "viewer directory receiving map.js and config.json")
	fs.IntVar(&workers, "workers", 0, "GeoTIFFs processed concurrently")
	fs.IntVar(&processes, "processes", 0, "gdal2tiles --processes per GeoTIFF")
	fs.StringVar(&preset, "preset", "", "fast, normal or quality")
	fs.StringVar(&scheme, "scheme", "", "tile scheme: xyz or tms")
	fs.Var(&zoom, "zoom", "zoom range min-max for every layer (default: from pixel size)")
	fs.BoolVar(&skipCheck, "skip-check", false, "skip the GDAL availability check")
	fs.BoolVar(&verbose, "v", false, "stream gdal2tiles output")
	fs.BoolVar(&strict, "strict", false, "exit non-zero when any layer fails")

	if code, ok := parseFlags(fs, args); !ok {
		return code
	}

	cfg, err := common.load(func(c *config.Config) {
		if orthos != "" {
			c.OrthosDir = orthos
		}
		if tiles != "" {
			c.TilesDir = tiles
		}
		if webDir != "" {
			c.WebDir = webDir
		}
		if workers > 0 {
			c.Tiles.Workers = workers
		}
		if processes > 0 {
			c.Tiles.Processes = processes
		}
		if preset != "" {
			c.Tiles.Preset = preset
		}
		if scheme != "" {
			c.Tiles.Scheme = strings.ToLower(scheme)
		}
		if zoom.zr != nil {
			c.Tiles.Zoom = zoom.zr
		}
	})
	if err != nil {
		fmt.Fprintf(stderr, "Configuration error: %v\n", err)
		return exitFailure
	}
	log := newLogger(cfg, stderr)

	var gdalOut io.Writer = io.Discard
	if verbose {
		gdalOut = stderr
	}

	fmt.Fprintln(stdout, "GeoTIFF to Web Tiles Generator")
	fmt.Fprintln(stdout, strings.Repeat("=", 40))

	run, written, err := generate(ctx, cfg, log, gdal.ExecRunner{Stdout: gdalOut}, nil, skipCheck)
	printRun(stdout, run)
	if err != nil {
		switch {
		case errors.Is(err, gdal.ErrToolsMissing):
			fmt.Fprintf(stderr, "Error: %v\n%s\n", err, gdal.InstallHint)
		case errors.Is(err, tilegen.ErrNoInputs):
			fmt.Fprintf(stderr, "No GeoTIFF files found in %s\n", cfg.OrthosPath())
			fmt.Fprintf(stderr, "Please place your .tif or .tiff files in the %s/ directory\n", cfg.OrthosDir)
		default:
			fmt.Fprintf(stderr, "Error: %v\n", err)
		}
		return exitFailure
	}

	fmt.Fprintln(stdout)
	fmt.Fprintf(stdout, "✓ Tile generation complete!\n")
	fmt.Fprintf(stdout, "✓ Generated tiles in: %s\n", cfg.TilesPath())
	fmt.Fprintf(stdout, "✓ Updated map configuration\n")
	fmt.Fprintf(stdout, "  Center: %.6f, %.6f\n", written.InitialView.Lat, written.InitialView.Lng)
	fmt.Fprintf(stdout, "  Initial zoom: %d\n", written.InitialView.Zoom)
	fmt.Fprintf(stdout, "  Zoom range: %s\n", written.ZoomLevels)
	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, "To view your map:")
	fmt.Fprintln(stdout, "  mapviewer serve          preview locally")
	fmt.Fprintln(stdout, "  mapviewer deploy         upload web/ and tiles/ to the bucket")

	if strict && run.Failed() > 0 {
		return exitFailure
	}
	return exitOK
}

// generate runs one full pass: scaffold the viewer, tile every GeoTIFF and
// write the viewer configuration. It backs both the generate command and
// serve -watch.
func generate(ctx context.Context, cfg config.Config, log zerolog.Logger, runner gdal.Runner, m *metrics.Metrics, skipCheck bool) (tilegen.Run, mapconfig.Config, error) {
	created, err := web.Scaffold(cfg.WebPath())
	if err != nil {
		return tilegen.Run{}, mapconfig.Config{}, err
	}
	for _, p := range created {
		log.Debug().Str("file", p).Msg("viewer asset created")
	}

	tools := gdal.NewTools(cfg.Tiles.GDALInfoBin, cfg.Tiles.GDAL2TilesBin, runner)
	gen := tilegen.New(log, tools, tilegen.Options{
		OrthosDir: cfg.OrthosPath(),
		TilesDir:  cfg.TilesPath(),
		Workers:   cfg.Tiles.Workers,
		Processes: cfg.Tiles.Processes,
		Preset:    cfg.Tiles.Preset,
		XYZ:       cfg.Tiles.Scheme != config.SchemeTMS,
		Zoom:      cfg.Tiles.Zoom,
		Timeout:   cfg.Tiles.Timeout,
		SkipCheck: skipCheck,
	}, m)

	run, err := gen.Run(ctx)
	if err != nil {
		return run, mapconfig.Config{}, err
	}

	viewer, err := mapconfig.Build(run.LayerSpecs(), viewerOptions(cfg))
	if err != nil {
		return run, mapconfig.Config{}, err
	}
	if err := viewer.WriteFiles(cfg.WebPath()); err != nil {
		return run, mapconfig.Config{}, err
	}
	log.Info().
		Str("run_id", run.ID).
		Int("layers", len(viewer.OrthoLayers)).
		Str("zoom", viewer.ZoomLevels.String()).
		Msg("viewer configuration written")
	return run, viewer, nil
}

func viewerOptions(cfg config.Config) mapconfig.Options {
	return mapconfig.Options{
		TileURLPrefix: cfg.Viewer.TileURLPrefix,
		TMS:           cfg.Tiles.Scheme == config.SchemeTMS,
		BaseLayer: mapconfig.BaseLayer{
			URL:         cfg.Viewer.BaseURL,
			Attribution: cfg.Viewer.BaseAttribution,
			Opacity:     cfg.Viewer.BaseOpacity,
			MaxZoom:     cfg.Viewer.BaseMaxZoom,
		},
		DefaultZoom: geo.ZoomRange{Min: cfg.Viewer.DefaultMinZoom, Max: cfg.Viewer.DefaultMaxZoom},
	}
}

func printRun(w io.Writer, run tilegen.Run) {
	if len(run.Layers) == 0 {
		return
	}
	fmt.Fprintf(w, "Processed %d GeoTIFF files:\n", len(run.Layers))
	for i, l := range run.Layers {
		if !l.OK() {
			fmt.Fprintf(w, "  %d. %s ✗ %v\n", i+1, l.SourceFile, l.Err)
			continue
		}
		fmt.Fprintf(w, "  %d. %s ✓ %s zoom %s", i+1, l.SourceFile, l.Name, l.Zoom)
		if l.Bounds == nil {
			fmt.Fprintf(w, " (no bounds: %s)", l.Warning)
		}
		fmt.Fprintln(w)
	}
	for _, s := range run.Skipped {
		fmt.Fprintf(w, "  skipped %s\n", s)
	}
}
