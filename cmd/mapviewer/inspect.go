package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"text/tabwriter"

	"github.com/jasonAVM/Map-Viewer/internal/mapconfig"
	"github.com/jasonAVM/Map-Viewer/internal/pyramid"
)

func runInspect(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	flags := flag.NewFlagSet("mapviewer inspect", flag.ContinueOnError)
	flags.SetOutput(stderr)

	var (
		common commonFlags
		asJSON bool
	)
	common.register(flags)
	flags.BoolVar(&asJSON, "json", false, "print the report as JSON")

	if code, ok := parseFlags(flags, args); !ok {
		return code
	}

	cfg, err := common.load(nil)
	if err != nil {
		fmt.Fprintf(stderr, "Configuration error: %v\n", err)
		return exitFailure
	}

	viewer, err := mapconfig.Load(filepath.Join(cfg.WebPath(), mapconfig.JSONPath))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitFailure
	}

	reports, err := pyramid.Inspect(ctx, viewer, cfg.TilesPath())
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitFailure
	}

	if asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(reports); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return exitFailure
		}
		return exitOK
	}

	if len(reports) == 0 {
		fmt.Fprintf(stdout, "No layers configured and no tile pyramids in %s\n", cfg.TilesPath())
		return exitOK
	}

	tw := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "LAYER\tSTATUS\tZOOM\tTILES\tSIZE\tCOVERAGE")
	for _, r := range reports {
		zoom := "-"
		if r.Zoom != nil {
			zoom = r.Zoom.String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n", r.Layer, status(r), zoom, r.Tiles, humanBytes(r.Bytes), coverageSummary(r))
	}
	if err := tw.Flush(); err != nil {
		return exitFailure
	}
	return exitOK
}

func status(r pyramid.Report) string {
	switch {
	case r.Missing():
		return "missing"
	case !r.Configured:
		return "orphaned"
	case r.Bounds == nil:
		return "unbounded"
	default:
		return "ok"
	}
}

// coverageSummary reports the deepest zoom level's coverage, where gaps
// show first.
func coverageSummary(r pyramid.Report) string {
	if len(r.Coverage) == 0 {
		return "-"
	}
	c := r.Coverage[len(r.Coverage)-1]
	if c.Expected == 0 {
		return fmt.Sprintf("z%d: %d tiles", c.Zoom, c.Present)
	}
	return fmt.Sprintf("z%d: %d/%d (%.0f%%)", c.Zoom, c.Present, c.Expected, c.Ratio()*100)
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
