// mapviewer generates, previews and publishes a Leaflet viewer for
// GDAL tile pyramids cut from a directory of GeoTIFFs.
//
// Usage:
//
//	mapviewer generate [flags]
//	mapviewer serve [flags]
//	mapviewer deploy [flags] [target...]
//	mapviewer inspect [flags]
//	mapviewer version
//
// Exit codes:
//   - 0: success
//   - 1: failure
//   - 2: usage error
//   - deploy: the sync command's own exit code
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/jasonAVM/Map-Viewer/internal/config"
	"github.com/jasonAVM/Map-Viewer/internal/httpapi"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

// defaultConfigFile is loaded from the working directory when neither
// -config nor MAPVIEWER_CONFIG names a file.
const defaultConfigFile = "mapviewer.yaml"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		printUsage(stderr)
		return exitUsage
	}

	switch args[0] {
	case "generate":
		return runGenerate(ctx, args[1:], stdout, stderr)
	case "serve":
		return runServe(ctx, args[1:], stdout, stderr)
	case "deploy":
		return runDeploy(ctx, args[1:], stdout, stderr)
	case "inspect":
		return runInspect(ctx, args[1:], stdout, stderr)
	case "version", "-version", "--version":
		fmt.Fprintf(stdout, "mapviewer %s (commit: %s, built: %s)\n", version, commit, buildDate)
		return exitOK
	case "help", "-h", "-help", "--help":
		printUsage(stdout)
		return exitOK
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n\n", args[0])
		printUsage(stderr)
		return exitUsage
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  mapviewer generate [-config file] [-orthos dir] [-tiles dir] [-web dir] [-zoom min-max] [-preset fast|normal|quality]")
	fmt.Fprintln(w, "  mapviewer serve    [-config file] [-addr :8080] [-watch]")
	fmt.Fprintln(w, "  mapviewer deploy   [-config file] [-bucket name] [-dry-run] [web] [tiles]")
	fmt.Fprintln(w, "  mapviewer inspect  [-config file] [-json]")
	fmt.Fprintln(w, "  mapviewer version")
}

// commonFlags are accepted by every command that reads the configuration.
type commonFlags struct {
	configPath string
	projectDir string
	logLevel   string
	pretty     bool
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.configPath, "config", envOr("MAPVIEWER_CONFIG", ""), "path to YAML configuration file")
	fs.StringVar(&c.configPath, "c", envOr("MAPVIEWER_CONFIG", ""), "path to YAML configuration file (shorthand)")
	fs.StringVar(&c.projectDir, "project", "", "project directory holding orthos/, tiles/ and web/")
	fs.StringVar(&c.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	fs.BoolVar(&c.pretty, "pretty", false, "human readable log output")
}

// load reads the configuration and applies the common overrides. apply may
// set command specific overrides before validation.
func (c *commonFlags) load(apply func(*config.Config)) (config.Config, error) {
	path := strings.TrimSpace(c.configPath)
	if path == "" {
		if _, err := os.Stat(defaultConfigFile); err == nil {
			path = defaultConfigFile
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, err
	}
	if c.projectDir != "" {
		cfg.ProjectDir = c.projectDir
	}
	if c.logLevel != "" {
		cfg.Log.Level = c.logLevel
	}
	if c.pretty {
		cfg.Log.Pretty = true
	}
	if apply != nil {
		apply(&cfg)
	}
	if err := config.Validate(cfg); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func newLogger(cfg config.Config, w io.Writer) zerolog.Logger {
	return httpapi.NewLogger(w, cfg.Log.Level, cfg.Log.Pretty)
}

// parseFlags parses args into fs. It reports the exit code to use when
// parsing ends the command.
func parseFlags(fs *flag.FlagSet, args []string) (int, bool) {
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return exitOK, false
		}
		return exitUsage, false
	}
	return exitOK, true
}

func envOr(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}
