package mapconfig

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"text/template"

	"github.com/google/renameio/v2"

	"github.com/jasonAVM/Map-Viewer/internal/web"
)

const (
	// ScriptPath and JSONPath are relative to the web directory.
	ScriptPath = "js/map.js"
	JSONPath   = "config.json"
)

var templateFuncs = template.FuncMap{
	"coord": func(v float64) string {
		return strconv.FormatFloat(v, 'f', 6, 64)
	},
	"jsString": func(s string) (string, error) {
		b, err := json.Marshal(s)
		return string(b), err
	},
	"bounds": func(b *[2][2]float64) string {
		if b == nil {
			return "null"
		}
		f := func(v float64) string { return strconv.FormatFloat(v, 'f', 6, 64) }
		return fmt.Sprintf("[[%s, %s], [%s, %s]]", f(b[0][0]), f(b[0][1]), f(b[1][0]), f(b[1][1]))
	},
}

// RenderJS writes the map.js bootstrap: the CONFIG literal followed by the
// Leaflet calls that build the map from it.
func (c Config) RenderJS(w io.Writer) error {
	tmpl, err := web.MapTemplate(templateFuncs)
	if err != nil {
		return fmt.Errorf("parse map.js template: %w", err)
	}
	if err := tmpl.Execute(w, c); err != nil {
		return fmt.Errorf("render map.js: %w", err)
	}
	return nil
}

// WriteFiles atomically replaces js/map.js and config.json under webDir.
func (c Config) WriteFiles(webDir string) error {
	if err := c.Validate(); err != nil {
		return err
	}

	scriptPath := filepath.Join(webDir, filepath.FromSlash(ScriptPath))
	if err := os.MkdirAll(filepath.Dir(scriptPath), 0o755); err != nil {
		return fmt.Errorf("create script dir: %w", err)
	}
	if err := writeAtomic(scriptPath, c.RenderJS); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	data = append(data, '\n')
	if err := renameio.WriteFile(filepath.Join(webDir, JSONPath), data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", JSONPath, err)
	}
	return nil
}

func writeAtomic(path string, render func(io.Writer) error) error {
	pending, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o644))
	if err != nil {
		return fmt.Errorf("create pending %s: %w", filepath.Base(path), err)
	}
	// No-op once committed.
	defer func() { _ = pending.Cleanup() }()

	if err := render(pending); err != nil {
		return err
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("replace %s: %w", filepath.Base(path), err)
	}
	return nil
}
