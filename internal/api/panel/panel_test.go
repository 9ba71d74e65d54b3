package panel

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/starfederation/datastar-go/datastar"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-overlay/internal/humastar"
	"github.com/joeblew999/plat-overlay/internal/service"
	"github.com/joeblew999/plat-overlay/internal/store"
	"github.com/joeblew999/plat-overlay/internal/templates"
)

type fixture struct {
	api     humatest.TestAPI
	handler *Handler
	reg     *service.Registry
	view    *service.Viewport
	bridge  *service.Bridge
	store   *store.MemoryStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := log.New(io.Discard)
	bus := service.NewEventBus()
	view := service.NewViewport(bus)
	reg := service.NewRegistry(view, service.WithBus(bus), service.WithLogger(logger))
	st := store.NewMemoryStore()
	bridge := service.NewBridge(reg, st, logger)
	bridge.Attach()

	renderer, err := templates.Default()
	require.NoError(t, err)

	h := NewHandler(Deps{
		Registry: reg,
		View:     view,
		Ingester: service.NewIngester(reg, bridge, bus, logger),
		Saver:    bridge,
		Bus:      bus,
		Logger:   logger,
	}, renderer)

	api := humatest.Wrap(t, humago.New(http.NewServeMux(), huma.DefaultConfig("panel test", "0.0.0")))
	h.RegisterRoutes(api)
	return &fixture{api: api, handler: h, reg: reg, view: view, bridge: bridge, store: st}
}

func points(pts ...orb.Point) *service.Document {
	fc := geojson.NewFeatureCollection()
	for _, p := range pts {
		fc.Append(geojson.NewFeature(p))
	}
	data, err := json.Marshal(fc)
	if err != nil {
		panic(err)
	}
	doc, err := service.ParseDocument(data)
	if err != nil {
		panic(err)
	}
	return doc
}

func TestBuildList(t *testing.T) {
	f := newFixture(t)

	list := BuildList(f.reg)
	assert.Empty(t, list.Items)
	assert.True(t, list.HeaderVisible)

	a := f.reg.AddVector("alpha", points(orb.Point{0, 0}))
	b := f.reg.AddVector("beta", points(orb.Point{1, 1}))
	f.reg.SetVisible(b, false)

	list = BuildList(f.reg)
	assert.False(t, list.HeaderVisible)
	assert.Equal(t, []Item{
		{ID: a, Name: "alpha", Kind: service.KindVector, Visible: true},
		{ID: b, Name: "beta", Kind: service.KindVector, Visible: false},
	}, list.Items)
}

func TestCommands(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	c := NewCommands(f.reg, f.bridge, log.New(io.Discard))
	id := f.reg.AddVector("roads", points(orb.Point{0, 0}))

	require.True(t, c.OnToggle(ctx, id, false))
	raw, ok, err := f.store.Get(ctx, service.SnapshotKey)
	require.NoError(t, err)
	require.True(t, ok, "toggle persists")
	assert.Contains(t, string(raw), `"visible":false`)

	require.True(t, c.OnRename(ctx, id, "  highways "))
	l, _ := f.reg.Get(id)
	assert.Equal(t, "highways", l.Name)

	require.True(t, c.OnZoom(id))
	require.True(t, c.OnDelete(ctx, id))

	assert.False(t, c.OnToggle(ctx, id, true))
	assert.False(t, c.OnRename(ctx, id, "x"))
	assert.False(t, c.OnZoom(id))
	assert.False(t, c.OnDelete(ctx, id))
}

func TestListLayers(t *testing.T) {
	f := newFixture(t)

	resp := f.api.Get("/api/v1/panel/layers")
	require.Equal(t, http.StatusOK, resp.Code)
	body := resp.Body.String()
	assert.Contains(t, body, "datastar-patch-elements")
	assert.Contains(t, body, "No layers")

	f.reg.AddVector("parks & gardens", points(orb.Point{0, 0}))
	body = f.api.Get("/api/v1/panel/layers").Body.String()
	assert.Contains(t, body, "parks &amp; gardens")
	assert.NotContains(t, body, "No layers")
}

func TestSetVisibility(t *testing.T) {
	f := newFixture(t)
	id := f.reg.AddVector("a", points(orb.Point{0, 0}))

	resp := f.api.Patch("/api/v1/panel/layers/" + id + "/visibility?visible=false")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), "layer-"+id)

	l, _ := f.reg.Get(id)
	assert.False(t, l.Visible)
	assert.False(t, f.view.IsAttached(id))

	resp = f.api.Patch("/api/v1/panel/layers/missing/visibility?visible=true")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), "Layer not found")
}

func TestRename(t *testing.T) {
	f := newFixture(t)
	id := f.reg.AddVector("old", points(orb.Point{0, 0}))

	resp := f.api.Put("/api/v1/panel/layers/"+id+"/name", map[string]any{"layername": "  new name "})
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), "new name")

	l, _ := f.reg.Get(id)
	assert.Equal(t, "new name", l.Name)

	f.api.Put("/api/v1/panel/layers/"+id+"/name", map[string]any{"layername": "   "})
	l, _ = f.reg.Get(id)
	assert.Equal(t, "new name", l.Name)
}

func TestDelete(t *testing.T) {
	f := newFixture(t)
	id := f.reg.AddVector("doomed", points(orb.Point{0, 0}))

	resp := f.api.Delete("/api/v1/panel/layers/" + id)
	require.Equal(t, http.StatusOK, resp.Code)
	body := resp.Body.String()
	assert.Contains(t, body, "#layer-"+id)
	assert.Contains(t, body, "No layers", "empty list is re-rendered")
	assert.Zero(t, f.reg.Len())

	raw, ok, err := f.store.Get(context.Background(), service.SnapshotKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"layers":[]}`, string(raw))
}

func TestZoom(t *testing.T) {
	f := newFixture(t)
	id := f.reg.AddVector("a", points(orb.Point{1, 2}, orb.Point{3, 4}))
	f.reg.AddVector("b", points(orb.Point{50, 50}))

	resp := f.api.Post("/api/v1/panel/layers/" + id + "/zoom")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), "view-fit")
	assert.Equal(t, orb.Bound{Min: orb.Point{1, 2}, Max: orb.Point{3, 4}}, f.view.State().LastFit.Bound)
}

func TestUpload(t *testing.T) {
	f := newFixture(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, content := range map[string]string{
		"parks.geojson": `{"type":"FeatureCollection","features":[{"type":"Feature","geometry":{"type":"Point","coordinates":[1,2]},"properties":{}}]}`,
		"broken.json":   `{"type":`,
	} {
		w, err := mw.CreateFormFile("file", name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	resp := f.api.Post("/api/v1/panel/upload", "Content-Type: "+mw.FormDataContentType(), &buf)
	require.Equal(t, http.StatusOK, resp.Code)
	body := resp.Body.String()
	assert.Contains(t, body, "parks")
	assert.Contains(t, body, "Added 1 of 2 file(s)")

	require.Equal(t, 1, f.reg.Len())
	assert.Equal(t, "parks", f.reg.List()[0].Name)

	_, ok, err := f.store.Get(context.Background(), service.SnapshotKey)
	require.NoError(t, err)
	assert.True(t, ok, "batch is saved")
}

func TestHandleEvent(t *testing.T) {
	f := newFixture(t)
	f.reg.AddVector("streamed", points(orb.Point{0, 0}))

	tests := []struct {
		name  string
		event service.Event
		want  []string
	}{
		{"layers", service.Event{Resource: service.ResourceLayers, Action: service.ActionCreated}, []string{"streamed", "resource-changed"}},
		{"view", service.Event{Resource: service.ResourceView, Action: service.ActionFit}, []string{"view-fit"}},
		{"raster loading", service.Event{Resource: service.ResourceRaster, Action: service.ActionLoading}, []string{"loading-overlay", "resource-changed"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/api/v1/panel/events", nil)
			sse := humastar.SSE{ServerSentEventGenerator: datastar.NewSSE(rec, req)}

			f.handler.handleEvent(sse, tt.event)
			for _, w := range tt.want {
				assert.Contains(t, rec.Body.String(), w)
			}
		})
	}
}
