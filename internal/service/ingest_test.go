package service

import (
	"context"
	"errors"
	"image"
	"io"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-overlay/internal/raster"
	"github.com/joeblew999/plat-overlay/internal/raster/rastertest"
)

const pointCollection = `{"type":"FeatureCollection","features":[
	{"type":"Feature","geometry":{"type":"Point","coordinates":[7.67,45.07]},"properties":{"color":"#ff0000"}}
]}`

type countingSaver struct {
	calls int
	err   error
}

func (s *countingSaver) Save(ctx context.Context) error {
	s.calls++
	return s.err
}

type brokenFile struct{ name string }

func (f brokenFile) Name() string                 { return f.name }
func (f brokenFile) Open() (io.ReadCloser, error) { return nil, errors.New("unreadable") }

func newTestIngester(opts ...Option) (*Ingester, *Registry, *countingSaver) {
	reg, _ := newTestRegistry(opts...)
	saver := &countingSaver{}
	return NewIngester(reg, saver, nil, quietLogger()), reg, saver
}

func TestHandleFiles_ValidAndInvalid(t *testing.T) {
	in, reg, saver := newTestIngester()

	var results []IngestResult
	assert.NotPanics(t, func() {
		results = in.HandleFiles(context.Background(), []File{
			BytesFile{FileName: "stations.geojson", Data: []byte(pointCollection)},
			BytesFile{FileName: "broken.json", Data: []byte(`{"type": "FeatureCollection", "features": [`)},
		})
	})

	require.Len(t, results, 2)
	assert.Equal(t, StatusAdded, results[0].Status)
	assert.Equal(t, StatusFailed, results[1].Status)
	assert.Error(t, results[1].Err)

	require.Equal(t, 1, reg.Len())
	l := reg.List()[0]
	assert.Equal(t, "stations", l.Name)
	assert.Equal(t, results[0].LayerID, l.ID)
	assert.Equal(t, 1, saver.calls, "one save per batch")
}

func TestHandleFiles_Classification(t *testing.T) {
	in, reg, _ := newTestIngester()

	results := in.HandleFiles(context.Background(), []File{
		BytesFile{FileName: "UPPER.GEOJSON", Data: []byte(pointCollection)},
		BytesFile{FileName: "feature.json", Data: []byte(`{"type":"Feature","geometry":null,"properties":{}}`)},
		BytesFile{FileName: "notes.txt", Data: []byte("hello")},
		BytesFile{FileName: "archive.zip"},
		brokenFile{name: "gone.geojson"},
		BytesFile{FileName: "dem.tif", Data: []byte("not a tiff")},
	})

	statuses := make([]string, len(results))
	for i, r := range results {
		statuses[i] = r.Status
	}
	assert.Equal(t, []string{
		StatusAdded, StatusFailed, StatusSkipped, StatusSkipped, StatusFailed, StatusFailed,
	}, statuses)

	assert.ErrorIs(t, results[1].Err, ErrNotFeatureCollection)
	assert.ErrorIs(t, results[2].Err, ErrUnsupportedExtension)
	assert.ErrorIs(t, results[5].Err, ErrRasterUnsupported)
	assert.Equal(t, 1, reg.Len())
}

func TestHandleFiles_Raster(t *testing.T) {
	bus := NewEventBus()
	ch := bus.Subscribe()
	defer bus.Unsubscribe(ch)

	reg, view := newTestRegistry(WithRasterDecoder(raster.Decoder{}))
	in := NewIngester(reg, nil, bus, quietLogger())

	bound := orb.Bound{Min: orb.Point{7, 45}, Max: orb.Point{8, 46}}
	data := rastertest.GeoTIFF(image.NewGray(image.Rect(0, 0, 2, 2)), bound)

	results := in.HandleFiles(context.Background(), []File{
		BytesFile{FileName: "elevation.tiff", Data: data},
	})
	require.Len(t, results, 1)
	require.Equal(t, StatusAdded, results[0].Status, "err: %v", results[0].Err)
	assert.Equal(t, KindRaster, results[0].Kind)

	l, ok := reg.Get(results[0].LayerID)
	require.True(t, ok)
	assert.Equal(t, "elevation", l.Name)
	assert.Equal(t, bound, view.State().LastFit.Bound)

	var actions []string
	for len(ch) > 0 {
		ev := <-ch
		if ev.Resource == ResourceRaster {
			actions = append(actions, ev.Action)
		}
	}
	assert.Equal(t, []string{ActionLoading, ActionLoaded}, actions)
}

func TestHandleFiles_SaveErrorDoesNotPanic(t *testing.T) {
	reg, _ := newTestRegistry()
	saver := &countingSaver{err: errors.New("disk full")}
	in := NewIngester(reg, saver, nil, quietLogger())

	results := in.HandleFiles(context.Background(), []File{
		BytesFile{FileName: "a.geojson", Data: []byte(pointCollection)},
	})
	assert.Equal(t, StatusAdded, results[0].Status)
	assert.Equal(t, 1, saver.calls)
}

func TestHandleFiles_Canceled(t *testing.T) {
	in, reg, _ := newTestIngester()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := in.HandleFiles(ctx, []File{
		BytesFile{FileName: "a.geojson", Data: []byte(pointCollection)},
	})
	assert.Equal(t, StatusFailed, results[0].Status)
	assert.ErrorIs(t, results[0].Err, context.Canceled)
	assert.Zero(t, reg.Len())
}

func TestHandleFiles_ResolvedStyle(t *testing.T) {
	in, reg, _ := newTestIngester()
	in.HandleFiles(context.Background(), []File{
		BytesFile{FileName: "red.geojson", Data: []byte(pointCollection)},
	})

	l := reg.List()[0]
	vr, ok := l.Renderable.(*VectorRenderable)
	require.True(t, ok)
	require.Len(t, vr.Features, 1)
	assert.Equal(t, "#ff0000", vr.Features[0].Style.Color)
	assert.Equal(t, "#3399ff", vr.Features[0].Style.FillColor)
	assert.Empty(t, vr.Features[0].Popup, "style keys are not shown")
}

func TestDisplayName(t *testing.T) {
	tests := map[string]string{
		"parks.geojson":      "parks",
		"roads.v2.json":      "roads.v2",
		"dir/sub/dem.tif":    "dem",
		"noext":              "noext",
		"trailing.":          "trailing.",
		"Mixed Case.GeoJSON": "Mixed Case",
	}
	for in, want := range tests {
		assert.Equal(t, want, DisplayName(in), in)
	}
}

func TestParseDocument(t *testing.T) {
	data := []byte(pointCollection)
	doc, err := ParseDocument(data)
	require.NoError(t, err)
	assert.Len(t, doc.Collection.Features, 1)
	assert.JSONEq(t, pointCollection, string(doc.Raw))

	data[0] = 'X'
	assert.JSONEq(t, pointCollection, string(doc.Raw), "raw bytes are copied")

	_, err = ParseDocument([]byte(`[]`))
	assert.Error(t, err)

	_, err = ParseDocument([]byte(`{"type":"GeometryCollection","geometries":[]}`))
	assert.ErrorIs(t, err, ErrNotFeatureCollection)
}
