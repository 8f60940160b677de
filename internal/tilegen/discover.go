package tilegen

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jasonAVM/Map-Viewer/internal/naming"
)

var ErrNoInputs = errors.New("no GeoTIFF files found")

// Source is one GeoTIFF and the layer it becomes.
type Source struct {
	Layer string
	Path  string
}

func isGeoTIFF(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".tif", ".tiff":
		return true
	}
	return false
}

// Discover lists the GeoTIFFs directly inside dir and assigns each a unique
// layer name. Files whose names cannot be turned into a layer name are
// returned in skipped.
func Discover(dir string) (sources []Source, skipped []string, err error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("read orthos dir: %w", err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() || !isGeoTIFF(e.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}

	assigned, skipped := naming.AssignLayerNames(paths)
	if len(assigned) == 0 {
		return nil, skipped, fmt.Errorf("%w in %s", ErrNoInputs, dir)
	}

	sources = make([]Source, 0, len(assigned))
	for _, c := range assigned {
		sources = append(sources, Source{Layer: c.Name, Path: c.Source})
	}
	return sources, skipped, nil
}
