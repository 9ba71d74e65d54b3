package panel

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"

	"github.com/charmbracelet/log"
	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-overlay/internal/humastar"
	"github.com/joeblew999/plat-overlay/internal/service"
	"github.com/joeblew999/plat-overlay/internal/templates"
)

// Element selectors the panel page provides.
const (
	listSelector    = "#layer-list"
	headerSelector  = "#panel-header"
	loadingSelector = "#loading"
	resultsSelector = "#ingest-results"
)

// Handler serves the panel endpoints.
type Handler struct {
	humastar.Handler
	commands *Commands
	registry *service.Registry
	view     *service.Viewport
	ingester *service.Ingester
	bus      *service.EventBus
	logger   *log.Logger
}

// Deps are the collaborators of the panel handler.
type Deps struct {
	Registry *service.Registry
	View     *service.Viewport
	Ingester *service.Ingester
	Saver    service.Saver
	Bus      *service.EventBus
	Logger   *log.Logger
}

// NewHandler creates the panel handler.
func NewHandler(d Deps, renderer *templates.Renderer) *Handler {
	logger := d.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{
		Handler:  humastar.Handler{Renderer: renderer},
		commands: NewCommands(d.Registry, d.Saver, logger),
		registry: d.Registry,
		view:     d.View,
		ingester: d.Ingester,
		bus:      d.Bus,
		logger:   logger,
	}
}

func (h *Handler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/panel/layers", h.ListLayers, huma.OperationTags("panel"))
	huma.Patch(api, "/api/v1/panel/layers/{id}/visibility", h.SetVisibility, huma.OperationTags("panel"))
	huma.Put(api, "/api/v1/panel/layers/{id}/name", h.Rename, huma.OperationTags("panel"))
	huma.Delete(api, "/api/v1/panel/layers/{id}", h.Delete, huma.OperationTags("panel"))
	huma.Post(api, "/api/v1/panel/layers/{id}/zoom", h.Zoom, huma.OperationTags("panel"))
	huma.Post(api, "/api/v1/panel/upload", h.Upload, huma.OperationTags("panel"))
	huma.Get(api, "/api/v1/panel/events", h.Events, huma.OperationTags("panel"))
}

func (h *Handler) ListLayers(ctx context.Context, input *humastar.EmptyInput) (*huma.StreamResponse, error) {
	return h.Stream(func(sse humastar.SSE) {
		h.patchList(sse)
	}), nil
}

type VisibilityInput struct {
	ID      string `path:"id" doc:"Layer ID"`
	Visible bool   `query:"visible" doc:"Show (true) or hide (false) the layer"`
}

func (h *Handler) SetVisibility(ctx context.Context, input *VisibilityInput) (*huma.StreamResponse, error) {
	return h.Stream(func(sse humastar.SSE) {
		if !h.commands.OnToggle(ctx, input.ID, input.Visible) {
			h.gone(sse, input.ID)
			return
		}
		h.replaceItem(sse, input.ID)
	}), nil
}

type RenameInput struct {
	ID      string `path:"id" doc:"Layer ID"`
	RawBody []byte
}

func (h *Handler) Rename(ctx context.Context, input *RenameInput) (*huma.StreamResponse, error) {
	signals, err := humastar.ParseSignals(input.RawBody)
	if err != nil {
		return nil, huma.Error400BadRequest("Invalid request data: " + err.Error())
	}
	if !signals.Has("layername") {
		return nil, huma.Error400BadRequest("layername signal is required")
	}
	name := signals.String("layername")

	return h.Stream(func(sse humastar.SSE) {
		sse.Signals(map[string]any{"renaming": "", "layername": ""})
		if !h.commands.OnRename(ctx, input.ID, name) {
			h.gone(sse, input.ID)
			return
		}
		h.replaceItem(sse, input.ID)
	}), nil
}

type IDInput struct {
	ID string `path:"id" doc:"Layer ID"`
}

func (h *Handler) Delete(ctx context.Context, input *IDInput) (*huma.StreamResponse, error) {
	return h.Stream(func(sse humastar.SSE) {
		if !h.commands.OnDelete(ctx, input.ID) {
			h.gone(sse, input.ID)
			return
		}
		sse.RemoveElementByID("layer-" + input.ID)
		if h.registry.Len() == 0 {
			h.patchList(sse)
		}
		h.dispatchFit(sse)
	}), nil
}

func (h *Handler) Zoom(ctx context.Context, input *IDInput) (*huma.StreamResponse, error) {
	return h.Stream(func(sse humastar.SSE) {
		if !h.commands.OnZoom(input.ID) {
			h.gone(sse, input.ID)
			return
		}
		h.dispatchFit(sse)
	}), nil
}

type UploadInput struct {
	RawBody multipart.Form
}

func (h *Handler) Upload(ctx context.Context, input *UploadInput) (*huma.StreamResponse, error) {
	return h.Stream(func(sse humastar.SSE) {
		headers := input.RawBody.File["file"]
		if len(headers) == 0 {
			sse.Error("No file provided")
			return
		}
		files := make([]service.File, len(headers))
		for i, fh := range headers {
			files[i] = service.MultipartFile{Header: fh}
		}

		results := h.ingester.HandleFiles(ctx, files)
		added := 0
		var buf bytes.Buffer
		for _, res := range results {
			if res.Status == service.StatusAdded {
				added++
			}
			h.Renderer.RenderToBuffer(&buf, "ingest-result", resultView(res))
		}

		h.patchList(sse)
		sse.Patch(buf.String(), resultsSelector)
		if added == len(results) {
			sse.Success(fmt.Sprintf("Added %d layer(s)", added))
		} else {
			sse.Error(fmt.Sprintf("Added %d of %d file(s)", added, len(results)))
		}
		h.dispatchFit(sse)
	}), nil
}

// Events streams registry changes until the client goes away.
func (h *Handler) Events(ctx context.Context, input *humastar.EmptyInput) (*huma.StreamResponse, error) {
	return h.Stream(func(sse humastar.SSE) {
		ch := h.bus.Subscribe()
		defer h.bus.Unsubscribe(ch)

		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-ch:
				h.handleEvent(sse, ev)
			}
		}
	}), nil
}

func (h *Handler) handleEvent(sse humastar.SSE, ev service.Event) {
	switch ev.Resource {
	case service.ResourceLayers:
		h.patchList(sse)
	case service.ResourceView:
		h.dispatchFit(sse)
	case service.ResourceRaster:
		html, err := h.Renderer.Render("loading", ev.Action == service.ActionLoading)
		if err == nil {
			sse.Replace(html, loadingSelector)
		}
	}
	sse.DispatchCustomEvent("resource-changed", map[string]any{
		"resource": ev.Resource,
		"action":   ev.Action,
		"id":       ev.ID,
	})
}

func (h *Handler) patchList(sse humastar.SSE) {
	list := BuildList(h.registry)
	sse.Patch(h.RenderList("layer-item", list.anyItems(), "No layers", "Drop GeoJSON or GeoTIFF files to add layers"), listSelector)
	if html, err := h.Renderer.Render("panel-header", list.HeaderVisible); err == nil {
		sse.Replace(html, headerSelector)
	}
}

func (h *Handler) replaceItem(sse humastar.SSE, id string) {
	l, ok := h.registry.Get(id)
	if !ok {
		return
	}
	html, err := h.Renderer.Render("layer-item", Item{ID: l.ID, Name: l.Name, Kind: l.Kind, Visible: l.Visible})
	if err != nil {
		h.logger.Error("rendering layer item", "id", id, "err", err)
		return
	}
	sse.Replace(html, "#layer-"+id)
	h.dispatchFit(sse)
}

// gone drops a stale row from the page.
func (h *Handler) gone(sse humastar.SSE, id string) {
	sse.RemoveElementByID("layer-" + id)
	sse.Error("Layer not found")
}

// dispatchFit tells the browser map to apply the latest fit request.
func (h *Handler) dispatchFit(sse humastar.SSE) {
	if h.view == nil {
		return
	}
	fit := h.view.State().LastFit
	if fit == nil {
		return
	}
	sse.DispatchCustomEvent("view-fit", map[string]any{
		"bbox":    fit.BBox(),
		"padding": fit.Padding,
	})
}

type resultData struct {
	File   string
	Status string
	Error  string
}

func resultView(res service.IngestResult) resultData {
	d := resultData{File: res.File, Status: res.Status}
	if res.Err != nil {
		d.Error = res.Err.Error()
	}
	return d
}
