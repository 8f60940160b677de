package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix namespaces every mapviewer environment variable.
const EnvPrefix = "MAPVIEWER_"

// Load builds the effective configuration: defaults, then the YAML file at
// path (skipped when path is empty), then environment overrides. The result
// is validated.
func Load(path string) (Config, error) {
	cfg := Default()

	if strings.TrimSpace(path) != "" {
		if err := mergeFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}

	if err := ApplyEnv(&cfg, os.LookupEnv); err != nil {
		return Config{}, err
	}

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func mergeFile(cfg *Config, path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %q: %w", path, err)
	}
	if err := decodeStrict(b, cfg); err != nil {
		return fmt.Errorf("parse config file %q: %w", path, err)
	}
	return nil
}

// decodeStrict unmarshals YAML on top of cfg, rejecting unknown keys.
func decodeStrict(b []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	return nil
}

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// ApplyEnv overrides cfg from the environment. HTTP_ADDR and LOG_LEVEL are
// honored without the prefix for parity with the other services.
func ApplyEnv(cfg *Config, lookup LookupFunc) error {
	e := envReader{lookup: lookup}

	e.str(&cfg.HTTP.Addr, "HTTP_ADDR")
	e.str(&cfg.Log.Level, "LOG_LEVEL")

	e.str(&cfg.ProjectDir, EnvPrefix+"PROJECT_DIR")
	e.str(&cfg.OrthosDir, EnvPrefix+"ORTHOS_DIR")
	e.str(&cfg.TilesDir, EnvPrefix+"TILES_DIR")
	e.str(&cfg.WebDir, EnvPrefix+"WEB_DIR")

	e.str(&cfg.Log.Level, EnvPrefix+"LOG_LEVEL")
	e.boolean(&cfg.Log.Pretty, EnvPrefix+"LOG_PRETTY")

	e.str(&cfg.HTTP.Addr, EnvPrefix+"HTTP_ADDR")
	e.integer(&cfg.HTTP.APIRequestsPerMinute, EnvPrefix+"API_RPM")

	e.str(&cfg.Tiles.GDALInfoBin, EnvPrefix+"GDALINFO_BIN")
	e.str(&cfg.Tiles.GDAL2TilesBin, EnvPrefix+"GDAL2TILES_BIN")
	e.integer(&cfg.Tiles.Processes, EnvPrefix+"PROCESSES")
	e.integer(&cfg.Tiles.Workers, EnvPrefix+"WORKERS")
	e.str(&cfg.Tiles.Preset, EnvPrefix+"PRESET")
	e.str(&cfg.Tiles.Scheme, EnvPrefix+"SCHEME")
	e.duration(&cfg.Tiles.Timeout, EnvPrefix+"TILES_TIMEOUT")

	e.str(&cfg.Viewer.TileURLPrefix, EnvPrefix+"TILE_URL_PREFIX")

	e.str(&cfg.Deploy.CLI, EnvPrefix+"DEPLOY_CLI")
	e.str(&cfg.Deploy.Bucket, EnvPrefix+"BUCKET")
	e.str(&cfg.Deploy.Profile, EnvPrefix+"AWS_PROFILE")
	e.boolean(&cfg.Deploy.DryRun, EnvPrefix+"DRY_RUN")

	return errors.Join(e.errs...)
}

type envReader struct {
	lookup LookupFunc
	errs   []error
}

func (e *envReader) get(key string) (string, bool) {
	v, ok := e.lookup(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func (e *envReader) str(dst *string, key string) {
	if v, ok := e.get(key); ok {
		*dst = v
	}
}

func (e *envReader) integer(dst *int, key string) {
	v, ok := e.get(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %q is not an integer", key, v))
		return
	}
	*dst = n
}

func (e *envReader) boolean(dst *bool, key string) {
	v, ok := e.get(key)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %q is not a boolean", key, v))
		return
	}
	*dst = b
}

func (e *envReader) duration(dst *time.Duration, key string) {
	v, ok := e.get(key)
	if !ok {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %q is not a duration", key, v))
		return
	}
	*dst = d
}
