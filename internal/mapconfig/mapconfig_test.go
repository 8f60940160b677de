package mapconfig

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jasonAVM/Map-Viewer/internal/geo"
)

var fixedNow = func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) }

func testOptions() Options {
	opts := DefaultOptions()
	opts.Now = fixedNow
	return opts
}

func zr(min, max int) *geo.ZoomRange { return &geo.ZoomRange{Min: min, Max: max} }

func sampleSpecs() []LayerSpec {
	return []LayerSpec{
		{Name: "east_field", Bounds: &geo.Bounds{South: 0, West: 0.125, North: 0.0625, East: 0.25}, Zoom: zr(7, 19)},
		{Name: "west_field", Bounds: &geo.Bounds{South: 0, West: 0, North: 0.125, East: 0.125}, Zoom: zr(9, 21)},
	}
}

func TestBuild(t *testing.T) {
	cfg, err := Build(sampleSpecs(), testOptions())
	require.NoError(t, err)

	// union is 0..0.125 lat, 0..0.25 lng; span 0.25 gives 10 - log2(2.5) = 8
	assert.Equal(t, View{Lat: 0.0625, Lng: 0.125, Zoom: 8}, cfg.InitialView)
	assert.Equal(t, geo.ZoomRange{Min: 7, Max: 21}, cfg.ZoomLevels)
	require.Len(t, cfg.OrthoLayers, 2)
	assert.Equal(t, "../tiles/east_field/{z}/{x}/{y}.png", cfg.OrthoLayers[0].URL)
	assert.Equal(t, &[2][2]float64{{0, 0.125}, {0.0625, 0.25}}, cfg.OrthoLayers[0].Bounds)
	assert.Equal(t, fixedNow(), cfg.GeneratedAt)
	assert.False(t, cfg.TMS)
}

func TestBuild_FailedAndUnboundedLayers(t *testing.T) {
	specs := append(sampleSpecs(),
		LayerSpec{Name: "failed"},
		LayerSpec{Name: "utm", Bounds: &geo.Bounds{South: 5000000, West: 500000, North: 5000400, East: 500400}, Zoom: zr(12, 22)},
	)

	cfg, err := Build(specs, testOptions())
	require.NoError(t, err)
	require.Len(t, cfg.OrthoLayers, 4)

	failed, ok := cfg.Layer("failed")
	require.True(t, ok)
	assert.Nil(t, failed.Bounds)

	utm, ok := cfg.Layer("utm")
	require.True(t, ok)
	assert.Nil(t, utm.Bounds, "projected extents never reach the viewer")

	// zoom still takes the bounded-less layer's successful range into account
	assert.Equal(t, geo.ZoomRange{Min: 7, Max: 22}, cfg.ZoomLevels)
	// center ignores layers without valid bounds
	assert.Equal(t, 0.0625, cfg.InitialView.Lat)
}

func TestBuild_NoValidBounds(t *testing.T) {
	_, err := Build([]LayerSpec{{Name: "a"}, {Name: "b", Zoom: zr(5, 10)}}, testOptions())
	assert.ErrorIs(t, err, ErrNoValidBounds)

	_, err = Build(nil, testOptions())
	assert.ErrorIs(t, err, ErrNoValidBounds)
}

func TestBuild_DefaultZoomAndClamp(t *testing.T) {
	// bounds survive but every zoom range is missing
	cfg, err := Build([]LayerSpec{
		{Name: "a", Bounds: &geo.Bounds{South: -40, West: -80, North: 40, East: 80}},
	}, testOptions())
	require.NoError(t, err)
	assert.Equal(t, geo.ZoomRange{Min: 5, Max: 18}, cfg.ZoomLevels)
	// geo.InitialZoom gives 1 for a continent, pinned up to the minimum
	assert.Equal(t, 5, cfg.InitialView.Zoom)

	point, err := Build([]LayerSpec{
		{Name: "p", Bounds: &geo.Bounds{South: 1, West: 1, North: 1, East: 1}, Zoom: zr(10, 16)},
	}, testOptions())
	require.NoError(t, err)
	assert.Equal(t, 16, point.InitialView.Zoom)
}

func TestTileURL(t *testing.T) {
	assert.Equal(t, "tiles/a/{z}/{x}/{y}.png", TileURL("tiles", "a"))
	assert.Equal(t, "https://cdn.example.com/tiles/a/{z}/{x}/{y}.png", TileURL("https://cdn.example.com/tiles/", "a"))
}

func TestValidate(t *testing.T) {
	cfg, err := Build(sampleSpecs(), testOptions())
	require.NoError(t, err)

	bad := cfg
	bad.OrthoLayers = append([]Layer(nil), cfg.OrthoLayers...)
	bad.OrthoLayers[1].Name = bad.OrthoLayers[0].Name
	bad.OrthoLayers[1].URL = "tiles/x.png"
	bad.OrthoLayers[0].Bounds = &[2][2]float64{{95, 0}, {96, 1}}
	bad.InitialView.Zoom = 30
	bad.BaseLayer.Opacity = 1.5

	err = bad.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	for _, want := range []string{"duplicate name", "lacks {z}", "latitude 95", "initialView.zoom 30", "opacity"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestRenderJS(t *testing.T) {
	specs := append(sampleSpecs(), LayerSpec{Name: "failed"})
	cfg, err := Build(specs, testOptions())
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, cfg.RenderJS(&buf))
	js := buf.String()

	for _, want := range []string{
		"const CONFIG = {",
		"lat: 0.062500,",
		"lng: 0.125000,",
		"zoom: 8",
		"min: 7,",
		"max: 21",
		`name: "east_field",`,
		`url: "../tiles/east_field/{z}/{x}/{y}.png",`,
		"bounds: [[0.000000, 0.125000], [0.062500, 0.250000]]",
		"bounds: null",
		"const map = L.map('map')",
		`L.tileLayer("https://{s}.tile.openstreetmap.org/{z}/{x}/{y}.png", {`,
		"opacity: 0.5,",
		"maxZoom: 19",
		"tms: false,",
		"map.options.minZoom = CONFIG.zoomLevels.min;",
	} {
		assert.Contains(t, js, want)
	}
	assert.Equal(t, 3, strings.Count(js, "name: "))
}

func TestWriteFilesAndLoad(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Build(sampleSpecs(), testOptions())
	require.NoError(t, err)

	require.NoError(t, cfg.WriteFiles(dir))

	js, err := os.ReadFile(filepath.Join(dir, "js", "map.js"))
	require.NoError(t, err)
	assert.Contains(t, string(js), "const CONFIG")

	raw, err := os.ReadFile(filepath.Join(dir, JSONPath))
	require.NoError(t, err)
	var generic map[string]any
	require.NoError(t, json.Unmarshal(raw, &generic))
	assert.Contains(t, generic, "initialView")
	assert.Contains(t, generic, "zoomLevels")
	assert.Contains(t, generic, "orthoLayers")

	loaded, err := Load(filepath.Join(dir, JSONPath))
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)

	// a second write replaces the first
	cfg.InitialView.Zoom = 9
	require.NoError(t, cfg.WriteFiles(dir))
	loaded, err = Load(filepath.Join(dir, JSONPath))
	require.NoError(t, err)
	assert.Equal(t, 9, loaded.InitialView.Zoom)
}

func TestWriteFiles_RefusesInvalid(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{ZoomLevels: geo.ZoomRange{Min: 10, Max: 5}}
	assert.ErrorIs(t, cfg.WriteFiles(dir), ErrInvalidConfig)
	assert.NoFileExists(t, filepath.Join(dir, "js", "map.js"))
}

func TestLoad_RejectsInvalidBounds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
  "initialView": {"lat": 10, "lng": 10, "zoom": 6},
  "zoomLevels": {"min": 5, "max": 18},
  "orthoLayers": [{"name": "a", "url": "tiles/a/{z}/{x}/{y}.png", "bounds": [[10, 200], [11, 201]]}],
  "baseLayer": {"opacity": 0.5}
}`), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), "longitude 200")
}
