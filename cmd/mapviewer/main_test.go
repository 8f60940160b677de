package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jasonAVM/Map-Viewer/internal/geo"
	"github.com/jasonAVM/Map-Viewer/internal/mapconfig"
	"github.com/jasonAVM/Map-Viewer/internal/tilegen"
)

const fakeGDALInfo = `#!/bin/sh
if [ "$1" = "--version" ]; then
  echo "GDAL 3.8.4, released 2024/02/08"
  exit 0
fi
cat <<'JSON'
{"size":[1000,1000],
 "geoTransform":[-123.0,0.0001,0,45.2,0,-0.0001],
 "cornerCoordinates":{"lowerLeft":[-123.0,45.1],"upperRight":[-122.9,45.2]},
 "wgs84Extent":{"type":"Polygon","coordinates":[[[-123.0,45.2],[-123.0,45.1],[-122.9,45.1],[-122.9,45.2],[-123.0,45.2]]]}}
JSON
`

const fakeGDAL2Tiles = `#!/bin/sh
if [ "$1" = "--help" ]; then
  exit 0
fi
for out; do :; done
mkdir -p "$out/10/163"
printf 'png' > "$out/10/163/366.png"
`

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not executable on windows")
	}
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o755))
	return path
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRun_Usage(t *testing.T) {
	code, _, stderr := runCLI(t)
	assert.Equal(t, exitUsage, code)
	assert.Contains(t, stderr, "Usage:")

	code, _, stderr = runCLI(t, "frobnicate")
	assert.Equal(t, exitUsage, code)
	assert.Contains(t, stderr, "Unknown command: frobnicate")

	code, _, _ = runCLI(t, "generate", "-no-such-flag")
	assert.Equal(t, exitUsage, code)

	code, stdout, _ := runCLI(t, "help")
	assert.Equal(t, exitOK, code)
	assert.Contains(t, stdout, "mapviewer deploy")
}

func TestRun_Version(t *testing.T) {
	code, stdout, _ := runCLI(t, "version")
	assert.Equal(t, exitOK, code)
	assert.True(t, strings.HasPrefix(stdout, "mapviewer dev"))
}

func TestParseZoomRange(t *testing.T) {
	zr, err := parseZoomRange(" 12-20 ")
	require.NoError(t, err)
	assert.Equal(t, geo.ZoomRange{Min: 12, Max: 20}, zr)

	for _, bad := range []string{"12", "a-b", "20-12", "0-30"} {
		_, err := parseZoomRange(bad)
		assert.Error(t, err, bad)
	}
}

func TestGenerate_EndToEnd(t *testing.T) {
	project := t.TempDir()
	bin := t.TempDir()
	t.Setenv("MAPVIEWER_GDALINFO_BIN", writeScript(t, bin, "gdalinfo", fakeGDALInfo))
	t.Setenv("MAPVIEWER_GDAL2TILES_BIN", writeScript(t, bin, "gdal2tiles.py", fakeGDAL2Tiles))

	require.NoError(t, os.MkdirAll(filepath.Join(project, "orthos"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(project, "orthos", "North Field.tif"), []byte("II*\x00"), 0o644))

	code, stdout, stderr := runCLI(t, "generate", "-project", project, "-processes", "1")
	require.Equal(t, exitOK, code, "stdout:\n%s\nstderr:\n%s", stdout, stderr)
	assert.Contains(t, stdout, "Tile generation complete")
	assert.Contains(t, stdout, "Zoom range: 10-22")

	assert.FileExists(t, filepath.Join(project, "web", "index.html"))
	assert.FileExists(t, filepath.Join(project, "web", "js", "shortcuts.js"))
	assert.FileExists(t, filepath.Join(project, "tiles", "North_Field", "10", "163", "366.png"))

	cfg, err := mapconfig.Load(filepath.Join(project, "web", mapconfig.JSONPath))
	require.NoError(t, err)
	require.Len(t, cfg.OrthoLayers, 1)
	layer := cfg.OrthoLayers[0]
	assert.Equal(t, "North_Field", layer.Name)
	assert.Equal(t, "../tiles/North_Field/{z}/{x}/{y}.png", layer.URL)
	require.NotNil(t, layer.Bounds)
	assert.Equal(t, [2][2]float64{{45.1, -123.0}, {45.2, -122.9}}, *layer.Bounds)

	js, err := os.ReadFile(filepath.Join(project, "web", "js", "map.js"))
	require.NoError(t, err)
	assert.Contains(t, string(js), `name: "North_Field",`)

	// inspect sees the pyramid just written
	code, stdout, _ = runCLI(t, "inspect", "-project", project, "-json")
	require.Equal(t, exitOK, code)
	var reports []map[string]any
	require.NoError(t, json.Unmarshal([]byte(stdout), &reports))
	require.Len(t, reports, 1)
	assert.Equal(t, "North_Field", reports[0]["layer"])
	assert.EqualValues(t, 1, reports[0]["tiles"])
}

func TestGenerate_ToolsMissing(t *testing.T) {
	project := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(project, "orthos"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(project, "orthos", "a.tif"), []byte("II*\x00"), 0o644))
	t.Setenv("MAPVIEWER_GDALINFO_BIN", filepath.Join(project, "no-such-gdalinfo"))

	code, _, stderr := runCLI(t, "generate", "-project", project)
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, stderr, "Please install GDAL")
}

func TestGenerate_NoInputs(t *testing.T) {
	project := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(project, "orthos"), 0o755))

	code, _, stderr := runCLI(t, "generate", "-project", project, "-skip-check")
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, stderr, "No GeoTIFF files found")
}

func TestDeploy_PropagatesExitCode(t *testing.T) {
	project := t.TempDir()
	bin := t.TempDir()
	argsFile := filepath.Join(bin, "args")
	cli := writeScript(t, bin, "aws", "#!/bin/sh\necho \"$@\" >> "+argsFile+"\nexit 3\n")

	code, stdout, _ := runCLI(t, "deploy", "-project", project, "-bucket", "survey-map", "-cli", cli, "tiles")
	assert.Equal(t, 3, code)
	assert.Contains(t, stdout, "tiles deployment failed (exit code 3)")

	recorded, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	assert.Equal(t,
		"s3 sync "+filepath.Join(project, "tiles")+" s3://survey-map/tiles --exclude * --exclude *.aux.xml --exclude *.kml --exclude *.html --include *.png",
		strings.TrimSpace(string(recorded)))
}

func TestDeploy_Success(t *testing.T) {
	project := t.TempDir()
	cli := writeScript(t, t.TempDir(), "aws", "#!/bin/sh\nexit 0\n")

	code, stdout, _ := runCLI(t, "deploy", "-project", project, "-bucket", "survey-map", "-cli", cli)
	assert.Equal(t, exitOK, code)
	assert.Contains(t, stdout, "web deployed to s3://survey-map/web")
	assert.Contains(t, stdout, "tiles deployed to s3://survey-map/tiles")
}

func TestDeploy_Errors(t *testing.T) {
	project := t.TempDir()

	code, _, stderr := runCLI(t, "deploy", "-project", project)
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, stderr, "bucket")

	code, _, stderr = runCLI(t, "deploy", "-project", project, "-bucket", "b", "docs")
	assert.Equal(t, exitUsage, code)
	assert.Contains(t, stderr, "unknown deploy target")
}

func TestDeployScripts_PropagateExitCode(t *testing.T) {
	if _, err := exec.LookPath("bash"); err != nil {
		t.Skip("bash not available")
	}
	bin := t.TempDir()
	argsFile := filepath.Join(bin, "args")
	fake := writeScript(t, bin, "mapviewer", "#!/bin/sh\necho \"$@\" >> "+argsFile+"\nexit \"${FAKE_STATUS:-0}\"\n")

	cases := []struct {
		script, target, status, message string
	}{
		{"deploy-web.sh", "web", "0", "Web deployment successful"},
		{"deploy-tiles.sh", "tiles", "0", "Tiles deployment successful"},
		{"deploy-web.sh", "web", "4", "Web deployment failed (exit code 4)"},
		{"deploy-tiles.sh", "tiles", "255", "Tiles deployment failed (exit code 255)"},
	}
	for _, tc := range cases {
		t.Run(tc.script+"/"+tc.status, func(t *testing.T) {
			require.NoError(t, os.RemoveAll(argsFile))
			cmd := exec.Command("bash", filepath.Join("..", "..", "scripts", tc.script), "--dry-run")
			cmd.Env = append(os.Environ(), "MAPVIEWER="+fake, "FAKE_STATUS="+tc.status)
			out, err := cmd.CombinedOutput()

			code := 0
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				code = exitErr.ExitCode()
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tc.status, strconv.Itoa(code))
			assert.Contains(t, string(out), tc.message)

			recorded, err := os.ReadFile(argsFile)
			require.NoError(t, err)
			assert.Equal(t, "deploy --dry-run "+tc.target, strings.TrimSpace(string(recorded)))
		})
	}
}

func TestWatchOrthos_MissingDirKeepsServing(t *testing.T) {
	var logs bytes.Buffer
	log := zerolog.New(&logs)
	missing := filepath.Join(t.TempDir(), "orthos")
	w := tilegen.NewWatcher(log, missing, 10*time.Millisecond, func(context.Context) error { return nil })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	assert.NoError(t, watchOrthos(ctx, log, w), "a watcher that cannot start must not stop serve")
	assert.Contains(t, logs.String(), "watch disabled")
	assert.Contains(t, logs.String(), "orthos")
	assert.NoError(t, ctx.Err(), "returns as soon as the watcher fails")
}
