package gdal

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jasonAVM/Map-Viewer/internal/geo"
)

type call struct {
	Name string
	Args []string
}

type fakeRunner struct {
	outputFn func(name string, args []string) ([]byte, error)
	runFn    func(name string, args []string) error
	calls    []call
}

func (f *fakeRunner) Output(_ context.Context, name string, args ...string) ([]byte, error) {
	f.calls = append(f.calls, call{Name: name, Args: args})
	if f.outputFn == nil {
		return nil, nil
	}
	return f.outputFn(name, args)
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) error {
	f.calls = append(f.calls, call{Name: name, Args: args})
	if f.runFn == nil {
		return nil
	}
	return f.runFn(name, args)
}

const projectedInfo = `{
  "description": "field.tif",
  "size": [12000, 8000],
  "geoTransform": [500000.0, 0.05, 0.0, 5000400.0, 0.0, -0.05],
  "cornerCoordinates": {
    "upperLeft": [500000.0, 5000400.0],
    "lowerLeft": [500000.0, 5000000.0],
    "lowerRight": [500600.0, 5000000.0],
    "upperRight": [500600.0, 5000400.0],
    "center": [500300.0, 5000200.0]
  },
  "wgs84Extent": {
    "type": "Polygon",
    "coordinates": [[
      [-123.0, 45.1639], [-123.0, 45.1603], [-122.9924, 45.1603], [-122.9924, 45.1639], [-123.0, 45.1639]
    ]]
  }
}`

const geographicInfo = `{
  "size": [1000, 500],
  "geoTransform": [-122.9, 0.0001, 0.0, 45.2, 0.0, -0.0001],
  "cornerCoordinates": {
    "lowerLeft": [-122.9, 45.15],
    "upperRight": [-122.8, 45.2]
  }
}`

func TestParseInfo_PrefersWGS84Extent(t *testing.T) {
	ri, err := ParseInfo([]byte(projectedInfo))
	require.NoError(t, err)

	assert.Equal(t, 12000, ri.Width)
	assert.Equal(t, 8000, ri.Height)
	assert.Equal(t, 0.05, ri.PixelSize)
	assert.Equal(t, geo.Bounds{South: 5000000, West: 500000, North: 5000400, East: 500600}, ri.Extent)
	require.NotNil(t, ri.WGS84)

	b, err := ri.GeographicBounds()
	require.NoError(t, err)
	assert.Equal(t, geo.Bounds{South: 45.1603, West: -123.0, North: 45.1639, East: -122.9924}, b)
}

func TestParseInfo_CornerCoordinatesFallback(t *testing.T) {
	ri, err := ParseInfo([]byte(geographicInfo))
	require.NoError(t, err)
	assert.Nil(t, ri.WGS84)

	b, err := ri.GeographicBounds()
	require.NoError(t, err)
	assert.Equal(t, geo.Bounds{South: 45.15, West: -122.9, North: 45.2, East: -122.8}, b)
}

func TestGeographicBounds_ProjectedWithoutCRS(t *testing.T) {
	ri, err := ParseInfo([]byte(strings.Replace(projectedInfo, `"wgs84Extent"`, `"ignored"`, 1)))
	require.NoError(t, err)

	_, err = ri.GeographicBounds()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotGeographic)
	assert.ErrorIs(t, err, geo.ErrInvalidBounds)
}

func TestParseInfo_Malformed(t *testing.T) {
	for name, body := range map[string]string{
		"not json":        "gdalinfo failed",
		"no size":         `{"geoTransform":[0,1,0,0,0,-1],"cornerCoordinates":{"lowerLeft":[0,0],"upperRight":[1,1]}}`,
		"no geotransform": `{"size":[1,1],"cornerCoordinates":{"lowerLeft":[0,0],"upperRight":[1,1]}}`,
		"no corners":      `{"size":[1,1],"geoTransform":[0,1,0,0,0,-1]}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseInfo([]byte(body))
			assert.Error(t, err)
		})
	}
}

func TestTools_Info(t *testing.T) {
	r := &fakeRunner{outputFn: func(name string, args []string) ([]byte, error) {
		return []byte(geographicInfo), nil
	}}
	tools := NewTools("", "", r)

	ri, err := tools.Info(context.Background(), "/orthos/a.tif")
	require.NoError(t, err)
	assert.Equal(t, "/orthos/a.tif", ri.Path)
	require.Len(t, r.calls, 1)
	assert.Equal(t, call{Name: "gdalinfo", Args: []string{"-json", "/orthos/a.tif"}}, r.calls[0])
}

func TestTools_Tiles(t *testing.T) {
	r := &fakeRunner{}
	tools := NewTools("gdalinfo", "/opt/gdal/gdal2tiles.py", r)

	err := tools.Tiles(context.Background(), TilesRequest{
		Source:     "orthos/a.tif",
		OutputDir:  "tiles/a",
		Zoom:       geo.ZoomRange{Min: 12, Max: 22},
		Processes:  4,
		XYZ:        true,
		Resampling: "lanczos",
	})
	require.NoError(t, err)
	require.Len(t, r.calls, 1)
	assert.Equal(t, "/opt/gdal/gdal2tiles.py", r.calls[0].Name)
	assert.Equal(t, []string{
		"-z", "12-22", "-w", "none", "--processes=4", "--xyz", "-r", "lanczos", "orthos/a.tif", "tiles/a",
	}, r.calls[0].Args)
}

func TestTools_TilesRejectsBadZoom(t *testing.T) {
	r := &fakeRunner{}
	err := NewTools("", "", r).Tiles(context.Background(), TilesRequest{Zoom: geo.ZoomRange{Min: 9, Max: 3}})
	require.Error(t, err)
	assert.Empty(t, r.calls)
}

func TestTools_CheckReportsMissingTool(t *testing.T) {
	r := &fakeRunner{outputFn: func(name string, args []string) ([]byte, error) {
		if name == "gdal2tiles.py" {
			return nil, &CommandError{Name: name, Args: args, Err: errors.New("executable file not found in $PATH")}
		}
		return []byte("GDAL 3.8.4, released 2024/02/08\n"), nil
	}}

	_, err := NewTools("", "", r).Check(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrToolsMissing)
	assert.Contains(t, err.Error(), "gdal2tiles.py")
}

func TestTools_CheckReturnsVersion(t *testing.T) {
	r := &fakeRunner{outputFn: func(name string, args []string) ([]byte, error) {
		return []byte("GDAL 3.8.4, released 2024/02/08\n"), nil
	}}
	v, err := NewTools("", "", r).Check(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "GDAL 3.8.4, released 2024/02/08", v)
}

func TestExecRunner_ExitCodeAndStderr(t *testing.T) {
	err := ExecRunner{}.Run(context.Background(), "sh", "-c", "echo boom >&2; exit 3")
	require.Error(t, err)

	var ce *CommandError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, 3, ce.ExitCode)
	assert.Equal(t, "boom", ce.Stderr)
	assert.Contains(t, err.Error(), "exit status 3")
}

func TestExecRunner_Output(t *testing.T) {
	out, err := ExecRunner{}.Output(context.Background(), "sh", "-c", "printf hello")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(out))
}

func TestTailBuffer_KeepsTail(t *testing.T) {
	tb := &tailBuffer{max: 4}
	_, _ = tb.Write([]byte("abc"))
	_, _ = tb.Write([]byte("defg"))
	assert.Equal(t, "defg", tb.String())
}
