package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/jasonAVM/Map-Viewer/internal/config"
	"github.com/jasonAVM/Map-Viewer/internal/deploy"
	"github.com/jasonAVM/Map-Viewer/internal/gdal"
	"github.com/jasonAVM/Map-Viewer/internal/metrics"
)

func runDeploy(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("mapviewer deploy", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		common  commonFlags
		bucket  string
		profile string
		cli     string
		dryRun  bool
		del     bool
		list    bool
	)
	common.register(fs)
	fs.StringVar(&bucket, "bucket", "", "destination bucket, e.g. s3://my-map")
	fs.StringVar(&profile, "profile", "", "cloud CLI profile")
	fs.StringVar(&cli, "cli", "", "cloud CLI binary (default aws)")
	fs.BoolVar(&dryRun, "dry-run", false, "show what would be uploaded")
	fs.BoolVar(&del, "delete", false, "remove remote files that no longer exist locally")
	fs.BoolVar(&list, "list", false, "print the configured targets and exit")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "Usage: mapviewer deploy [flags] [target...]")
		fmt.Fprintln(stderr, "Targets default to every configured target (web, tiles).")
		fs.PrintDefaults()
	}

	if code, ok := parseFlags(fs, args); !ok {
		return code
	}

	cfg, err := common.load(func(c *config.Config) {
		if bucket != "" {
			c.Deploy.Bucket = bucket
		}
		if profile != "" {
			c.Deploy.Profile = profile
		}
		if cli != "" {
			c.Deploy.CLI = cli
		}
		if dryRun {
			c.Deploy.DryRun = true
		}
		if del {
			c.Deploy.Delete = true
		}
	})
	if err != nil {
		fmt.Fprintf(stderr, "Configuration error: %v\n", err)
		return exitFailure
	}
	log := newLogger(cfg, stderr)

	targets, err := deploy.TargetsFromConfig(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v (set deploy.bucket, MAPVIEWER_BUCKET or -bucket)\n", err)
		return exitFailure
	}

	syncer := deploy.New(log, gdal.ExecRunner{Stdout: stdout}, deploy.Options{
		CLI:     cfg.Deploy.CLI,
		Profile: cfg.Deploy.Profile,
		DryRun:  cfg.Deploy.DryRun,
		Targets: targets,
	}, metrics.New())

	if list {
		for _, t := range syncer.Targets() {
			fmt.Fprintf(stdout, "%-8s %s -> %s\n", t.Name, t.Source, t.Destination)
		}
		return exitOK
	}

	err = syncer.Run(ctx, stdout, fs.Args()...)
	if errors.Is(err, deploy.ErrUnknownTarget) {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitUsage
	}
	return deploy.ExitCode(err)
}
