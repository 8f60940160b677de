// Package web embeds the browser side of the viewer: the page shell, its
// stylesheet, the keyboard shortcut handler and the map.js template the
// configuration writer renders.
package web

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"text/template"
)

//go:embed assets
var assets embed.FS

//go:embed map.js.tmpl
var mapTemplate string

// Assets returns the static viewer files rooted at the web directory layout
// (index.html, css/, js/).
func Assets() fs.FS {
	sub, err := fs.Sub(assets, "assets")
	if err != nil {
		panic(err)
	}
	return sub
}

// MapTemplate parses the map.js template with funcs installed.
func MapTemplate(funcs template.FuncMap) (*template.Template, error) {
	return template.New("map.js").Funcs(funcs).Parse(mapTemplate)
}

// Scaffold copies every embedded asset that does not yet exist under dir.
// Existing files are left alone so local edits survive regeneration. It
// returns the paths it wrote.
func Scaffold(dir string) ([]string, error) {
	src := Assets()
	var written []string
	err := fs.WalkDir(src, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		dst := filepath.Join(dir, filepath.FromSlash(path))
		if d.IsDir() {
			return os.MkdirAll(dst, 0o755)
		}
		if _, err := os.Stat(dst); err == nil {
			return nil
		} else if !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		b, err := fs.ReadFile(src, path)
		if err != nil {
			return err
		}
		if err := os.WriteFile(dst, b, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", dst, err)
		}
		written = append(written, dst)
		return nil
	})
	if err != nil {
		return written, fmt.Errorf("scaffold web dir: %w", err)
	}
	return written, nil
}
