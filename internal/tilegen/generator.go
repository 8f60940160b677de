// Package tilegen turns a directory of GeoTIFFs into tile pyramids, one
// gdal2tiles invocation per file on a bounded worker pool.
package tilegen

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jasonAVM/Map-Viewer/internal/gdal"
	"github.com/jasonAVM/Map-Viewer/internal/geo"
	"github.com/jasonAVM/Map-Viewer/internal/mapconfig"
	"github.com/jasonAVM/Map-Viewer/internal/metrics"
)

// Tiler is the GDAL surface the generator needs. *gdal.Tools satisfies it.
type Tiler interface {
	Check(ctx context.Context) (string, error)
	Info(ctx context.Context, path string) (gdal.RasterInfo, error)
	Tiles(ctx context.Context, req gdal.TilesRequest) error
}

// LayerResult is the outcome for one GeoTIFF.
type LayerResult struct {
	Name       string
	SourceFile string
	// Bounds is nil when the raster extent is not a valid geographic box
	// or the raster could not be read.
	Bounds *geo.Bounds
	Zoom   geo.ZoomRange
	// Warning explains a nil Bounds on an otherwise successful layer.
	Warning  string
	Duration time.Duration
	Err      error
}

func (r LayerResult) OK() bool { return r.Err == nil }

// Run summarizes one generation pass.
type Run struct {
	ID          string
	Preset      string
	ToolVersion string
	StartedAt   time.Time
	Duration    time.Duration
	Layers      []LayerResult
	Skipped     []string
}

func (r Run) Succeeded() int {
	n := 0
	for _, l := range r.Layers {
		if l.OK() {
			n++
		}
	}
	return n
}

func (r Run) Failed() int { return len(r.Layers) - r.Succeeded() }

// LayerSpecs converts the run into viewer layer specs. Failed layers stay in
// the list so their tiles, if any, remain reachable, but carry neither bounds
// nor a zoom range.
func (r Run) LayerSpecs() []mapconfig.LayerSpec {
	specs := make([]mapconfig.LayerSpec, 0, len(r.Layers))
	for _, l := range r.Layers {
		spec := mapconfig.LayerSpec{Name: l.Name}
		if l.OK() {
			zoom := l.Zoom
			spec.Zoom = &zoom
			spec.Bounds = l.Bounds
		}
		specs = append(specs, spec)
	}
	return specs
}

type Generator struct {
	log        zerolog.Logger
	tiler      Tiler
	orthosDir  string
	tilesDir   string
	workers    int
	processes  int
	preset     string
	resampling string
	xyz        bool
	zoom       *geo.ZoomRange
	timeout    time.Duration
	skipCheck  bool
	metrics    *metrics.Metrics
}

type Options struct {
	OrthosDir string
	TilesDir  string
	// Workers is how many GeoTIFFs are processed at once.
	Workers int
	// Processes is passed to gdal2tiles --processes.
	Processes  int
	Preset     string
	Resampling string
	XYZ        bool
	// Zoom overrides the per-raster zoom heuristic.
	Zoom *geo.ZoomRange
	// Timeout bounds a single file's gdal2tiles run.
	Timeout   time.Duration
	SkipCheck bool
}

func New(log zerolog.Logger, tiler Tiler, opts Options, m *metrics.Metrics) *Generator {
	orthos := opts.OrthosDir
	if strings.TrimSpace(orthos) == "" {
		orthos = "orthos"
	}
	tiles := opts.TilesDir
	if strings.TrimSpace(tiles) == "" {
		tiles = "tiles"
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = 2
	}
	processes := opts.Processes
	if processes <= 0 {
		processes = 4
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Hour
	}

	return &Generator{
		log:        log,
		tiler:      tiler,
		orthosDir:  orthos,
		tilesDir:   tiles,
		workers:    workers,
		processes:  processes,
		preset:     canonicalizePreset(opts.Preset),
		resampling: strings.TrimSpace(opts.Resampling),
		xyz:        opts.XYZ,
		zoom:       opts.Zoom,
		timeout:    timeout,
		skipCheck:  opts.SkipCheck,
		metrics:    m,
	}
}

// Run discovers every GeoTIFF and tiles it. A failure on one file is
// recorded in its LayerResult and does not stop the others; the returned
// error covers only problems that prevent the run as a whole.
func (g *Generator) Run(ctx context.Context) (Run, error) {
	run := Run{
		ID:        uuid.NewString(),
		Preset:    g.preset,
		StartedAt: time.Now(),
	}
	log := g.log.With().Str("run_id", run.ID).Logger()

	if !g.skipCheck {
		version, err := g.tiler.Check(ctx)
		if err != nil {
			return run, err
		}
		run.ToolVersion = version
		log.Debug().Str("gdal", version).Msg("gdal tools available")
	}

	sources, skipped, err := Discover(g.orthosDir)
	run.Skipped = skipped
	for _, s := range skipped {
		log.Warn().Str("file", s).Msg("skipping file without a usable layer name")
	}
	if err != nil {
		return run, err
	}

	g.metrics.IncGenerationRun()
	defer func() {
		g.metrics.ObserveGenerationRunDuration(time.Since(run.StartedAt))
	}()

	settings := applyPreset(g, g.preset)
	log.Info().
		Int("files", len(sources)).
		Str("preset", g.preset).
		Int("workers", settings.workers).
		Int("processes", settings.processes).
		Msg("tile generation started")

	run.Layers = g.processAll(ctx, log, sources, settings)
	run.Duration = time.Since(run.StartedAt)

	log.Info().
		Int("succeeded", run.Succeeded()).
		Int("failed", run.Failed()).
		Dur("duration", run.Duration).
		Msg("tile generation finished")

	if err := ctx.Err(); err != nil {
		return run, err
	}
	return run, nil
}

func (g *Generator) processAll(ctx context.Context, log zerolog.Logger, sources []Source, s presetSettings) []LayerResult {
	results := make([]LayerResult, len(sources))

	type job struct {
		idx int
		src Source
	}
	jobs := make(chan job)
	wg := sync.WaitGroup{}

	worker := func() {
		defer wg.Done()
		for j := range jobs {
			results[j.idx] = g.processFile(ctx, log, j.src, s)
		}
	}

	workers := minInt(s.workers, len(sources))
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go worker()
	}

	next := 0
feed:
	for ; next < len(sources); next++ {
		select {
		case <-ctx.Done():
			break feed
		case jobs <- job{idx: next, src: sources[next]}:
		}
	}
	close(jobs)
	wg.Wait()

	for i := next; i < len(sources); i++ {
		results[i] = LayerResult{
			Name:       sources[i].Layer,
			SourceFile: filepath.Base(sources[i].Path),
			Err:        ctx.Err(),
		}
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Name < results[j].Name })
	return results
}

func (g *Generator) processFile(ctx context.Context, log zerolog.Logger, src Source, s presetSettings) LayerResult {
	start := time.Now()
	res := LayerResult{
		Name:       src.Layer,
		SourceFile: filepath.Base(src.Path),
	}
	log = log.With().Str("layer", src.Layer).Logger()

	res.Err = g.tileOne(ctx, log, src, s, &res)
	res.Duration = time.Since(start)

	if res.Err != nil {
		g.metrics.IncGenerationLayer("failed")
		log.Error().Err(res.Err).Msg("layer failed")
		return res
	}
	g.metrics.IncGenerationLayer("ok")
	ev := log.Info().Str("zoom", res.Zoom.String()).Dur("duration", res.Duration)
	if res.Bounds != nil {
		ev = ev.Interface("bounds", res.Bounds)
	}
	ev.Msg("tiles generated")
	return res
}

func (g *Generator) tileOne(ctx context.Context, log zerolog.Logger, src Source, s presetSettings, res *LayerResult) error {
	info, err := g.tiler.Info(ctx, src.Path)
	if err != nil {
		return err
	}

	if b, err := info.GeographicBounds(); err != nil {
		res.Warning = err.Error()
		log.Warn().Err(err).Msg("layer bounds unavailable; the viewer will not clip this layer")
	} else {
		res.Bounds = &b
	}

	if g.zoom != nil {
		res.Zoom = *g.zoom
	} else {
		z, err := geo.ZoomRangeForPixelSize(info.PixelSize)
		if err != nil {
			return fmt.Errorf("zoom levels for %s: %w", res.SourceFile, err)
		}
		res.Zoom = z
	}
	log.Debug().
		Int("width", info.Width).
		Int("height", info.Height).
		Float64("pixel_size", info.PixelSize).
		Str("zoom", res.Zoom.String()).
		Msg("raster inspected")

	outDir := filepath.Join(g.tilesDir, src.Layer)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("create tile dir: %w", err)
	}

	tileCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	err = g.tiler.Tiles(tileCtx, gdal.TilesRequest{
		Source:     src.Path,
		OutputDir:  outDir,
		Zoom:       res.Zoom,
		Processes:  s.processes,
		XYZ:        g.xyz,
		Resampling: s.resampling,
	})
	if err != nil && errors.Is(tileCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return fmt.Errorf("gdal2tiles exceeded %s: %w", g.timeout, err)
	}
	return err
}
