// Package api defines the Huma API routes and handlers.
package api

import (
	"context"
	"mime/multipart"

	"github.com/danielgtaylor/huma/v2"
	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/plat-overlay/internal/humastar"
	"github.com/joeblew999/plat-overlay/internal/service"
	"github.com/joeblew999/plat-overlay/internal/style"
)

// Services holds the service dependencies for API handlers.
type Services struct {
	Registry *service.Registry
	View     *service.Viewport
	Bridge   *service.Bridge
	Ingester *service.Ingester
}

// Types

type IDInput struct {
	ID string `path:"id" doc:"Layer ID" example:"3f2b8c1e-6a1d-4c57-9d0e-2b7f1a9c4e10"`
}

type ListInput struct {
	Offset int `query:"offset" minimum:"0" default:"0" doc:"Number of layers to skip"`
	Limit  int `query:"limit" minimum:"1" maximum:"100" default:"20" doc:"Page size"`
}

// LayerBody is the REST view of a layer.
type LayerBody struct {
	ID       string       `json:"id" doc:"Layer ID"`
	Name     string       `json:"name" doc:"Display name" example:"parks"`
	Kind     service.Kind `json:"kind" enum:"vector,raster" doc:"Layer kind"`
	Visible  bool         `json:"visible" doc:"Whether the layer is on the map"`
	BBox     []float64    `json:"bbox,omitempty" doc:"Extent as [west, south, east, north]"`
	Features int          `json:"features,omitempty" doc:"Number of features (vector layers)"`
}

var layerActions = []humastar.ActionDef{
	{Rel: "edit", Pattern: "/api/v1/layers/%s", Method: "PATCH", Title: "Rename layer"},
	{Rel: "zoom", Pattern: "/api/v1/layers/%s/zoom", Method: "POST", Title: "Zoom to layer"},
	{Rel: "delete", Pattern: "/api/v1/layers/%s", Method: "DELETE", Title: "Remove layer"},
}

// Actions implements humastar.Actor. The toggle action flips with the
// current visibility.
func (b LayerBody) Actions() []humastar.Action {
	toggle := humastar.Action{Rel: "show", Href: "/api/v1/layers/" + b.ID, Method: "PATCH", Title: "Show layer"}
	if b.Visible {
		toggle.Rel, toggle.Title = "hide", "Hide layer"
	}
	actions := append([]humastar.Action{toggle}, humastar.ActionsFor(b.ID, layerActions)...)
	if b.Kind == service.KindVector {
		actions = append(actions, humastar.Action{Rel: "features", Href: "/api/v1/layers/" + b.ID + "/features", Method: "GET"})
	} else {
		actions = append(actions, humastar.Action{Rel: "image", Href: "/api/v1/layers/" + b.ID + "/image", Method: "GET"})
	}
	return actions
}

func layerBody(l service.Layer) LayerBody {
	b := LayerBody{ID: l.ID, Name: l.Name, Kind: l.Kind, Visible: l.Visible}
	if bound, ok := l.Renderable.Bound(); ok {
		b.BBox = []float64{bound.Min[0], bound.Min[1], bound.Max[0], bound.Max[1]}
	}
	if vr, ok := l.Renderable.(*service.VectorRenderable); ok {
		b.Features = len(vr.Features)
	}
	return b
}

type LayerOutput struct {
	Body LayerBody
}

type LayersOutput struct {
	Body humastar.PageBody[LayerBody]
}

type PatchLayerInput struct {
	IDInput
	Body struct {
		Name    *string `json:"name,omitempty" doc:"New display name; blank names are ignored"`
		Visible *bool   `json:"visible,omitempty" doc:"Show or hide the layer"`
	}
}

type UploadInput struct {
	RawBody multipart.Form
}

type IngestResultBody struct {
	File    string       `json:"file" doc:"Uploaded file name"`
	Status  string       `json:"status" enum:"added,skipped,failed" doc:"Outcome"`
	LayerID string       `json:"layer_id,omitempty" doc:"ID of the created layer"`
	Kind    service.Kind `json:"kind,omitempty" doc:"Layer kind, when recognised"`
	Error   string       `json:"error,omitempty" doc:"Why the file was not added"`
}

type UploadOutput struct {
	Body struct {
		Added   int                `json:"added" doc:"Number of layers created"`
		Results []IngestResultBody `json:"results" doc:"Per-file outcome, in upload order"`
	}
}

type FeaturesOutput struct {
	Body struct {
		ID       string                  `json:"id" doc:"Layer ID"`
		Features []service.StyledFeature `json:"features" doc:"Styled features"`
	}
}

type ImageOutput struct {
	ContentType string `header:"Content-Type"`
	Body        []byte
}

type FitBody struct {
	BBox    [4]float64 `json:"bbox" doc:"Framed extent as [west, south, east, north]"`
	Padding [2]int     `json:"padding" doc:"Pixel padding (x, y)"`
}

type ViewBody struct {
	Attached []string `json:"attached" doc:"IDs of layers on the map, in attach order"`
	Fits     int      `json:"fits" doc:"Number of fit requests so far"`
	LastFit  *FitBody `json:"last_fit,omitempty" doc:"Most recent fit request"`
}

type ViewOutput struct {
	Body ViewBody
}

type FitOutput struct {
	Body struct {
		Fitted bool     `json:"fitted" doc:"False when no visible layer has bounds"`
		View   ViewBody `json:"view" doc:"Viewport after the request"`
	}
}

type StateOutput struct {
	Body service.Snapshot
}

type PutStateInput struct {
	RawBody []byte `contentType:"application/json"`
}

type PutStateOutput struct {
	Body struct {
		Restored []string `json:"restored" doc:"IDs of the restored layers"`
	}
}

type StyleInput struct {
	RawBody []byte `contentType:"application/json"`
}

type StyleOutput struct {
	Body struct {
		Style     style.Style        `json:"style" doc:"Resolved style"`
		Highlight style.Style        `json:"highlight" doc:"Hover style"`
		Popup     []style.PopupEntry `json:"popup" doc:"Popup lines"`
	}
}

type MessageBody struct {
	Message string `json:"message" doc:"Result message"`
}

type HealthBody struct {
	Status  string `json:"status" doc:"Health status" example:"ok"`
	Version string `json:"version" doc:"API version" example:"1.0.0"`
}

// APIHandler holds all REST API handlers. Methods named Register* are
// auto-discovered by huma.AutoRegister.
type APIHandler struct {
	svc *Services
}

func NewAPIHandler(svc *Services) *APIHandler {
	return &APIHandler{svc: svc}
}

// RegisterHealth registers health check routes.
func (h *APIHandler) RegisterHealth(api huma.API) {
	huma.Get(api, "/health", h.GetHealth, huma.OperationTags("health"))
}

// RegisterLayers registers layer routes.
func (h *APIHandler) RegisterLayers(api huma.API) {
	huma.Get(api, "/api/v1/layers", h.GetLayers, huma.OperationTags("layers"))
	huma.Post(api, "/api/v1/layers/upload", h.Upload, huma.OperationTags("layers"))
	huma.Get(api, "/api/v1/layers/{id}", h.GetLayer, huma.OperationTags("layers"))
	huma.Patch(api, "/api/v1/layers/{id}", h.PatchLayer, huma.OperationTags("layers"))
	huma.Delete(api, "/api/v1/layers/{id}", h.DeleteLayer, huma.OperationTags("layers"))
	huma.Post(api, "/api/v1/layers/{id}/zoom", h.ZoomLayer, huma.OperationTags("layers"))
	huma.Get(api, "/api/v1/layers/{id}/features", h.GetFeatures, huma.OperationTags("layers"))
	huma.Get(api, "/api/v1/layers/{id}/image", h.GetImage, huma.OperationTags("layers"))
}

// RegisterView registers viewport routes.
func (h *APIHandler) RegisterView(api huma.API) {
	huma.Get(api, "/api/v1/view", h.GetView, huma.OperationTags("view"))
	huma.Post(api, "/api/v1/view/fit", h.FitView, huma.OperationTags("view"))
}

// RegisterState registers snapshot routes.
func (h *APIHandler) RegisterState(api huma.API) {
	huma.Get(api, "/api/v1/state", h.GetState, huma.OperationTags("state"))
	huma.Put(api, "/api/v1/state", h.PutState, huma.OperationTags("state"))
}

// RegisterStyle registers the style resolver route.
func (h *APIHandler) RegisterStyle(api huma.API) {
	huma.Post(api, "/api/v1/style", h.ResolveStyle, huma.OperationTags("style"))
}

// Handlers

func (h *APIHandler) GetHealth(ctx context.Context, input *struct{}) (*struct{ Body HealthBody }, error) {
	return &struct{ Body HealthBody }{Body: HealthBody{Status: "ok", Version: "1.0.0"}}, nil
}

func (h *APIHandler) GetLayers(ctx context.Context, input *ListInput) (*LayersOutput, error) {
	layers := h.svc.Registry.List()
	page := humastar.PageBody[LayerBody]{
		Total:  len(layers),
		Offset: input.Offset,
		Limit:  input.Limit,
		Data:   []LayerBody{},
	}
	if input.Offset < len(layers) {
		end := min(input.Offset+input.Limit, len(layers))
		for _, l := range layers[input.Offset:end] {
			page.Data = append(page.Data, layerBody(l))
		}
	}
	return &LayersOutput{Body: page}, nil
}

func (h *APIHandler) Upload(ctx context.Context, input *UploadInput) (*UploadOutput, error) {
	headers := input.RawBody.File["file"]
	if len(headers) == 0 {
		return nil, huma.Error400BadRequest("No file provided")
	}
	files := make([]service.File, len(headers))
	for i, fh := range headers {
		files[i] = service.MultipartFile{Header: fh}
	}

	out := &UploadOutput{}
	out.Body.Results = make([]IngestResultBody, 0, len(files))
	for _, res := range h.svc.Ingester.HandleFiles(ctx, files) {
		rb := IngestResultBody{File: res.File, Status: res.Status, LayerID: res.LayerID, Kind: res.Kind}
		if res.Err != nil {
			rb.Error = res.Err.Error()
		}
		if res.Status == service.StatusAdded {
			out.Body.Added++
		}
		out.Body.Results = append(out.Body.Results, rb)
	}
	return out, nil
}

func (h *APIHandler) GetLayer(ctx context.Context, input *IDInput) (*LayerOutput, error) {
	l, ok := h.svc.Registry.Get(input.ID)
	if !ok {
		return nil, huma.Error404NotFound("layer not found")
	}
	return &LayerOutput{Body: layerBody(l)}, nil
}

func (h *APIHandler) PatchLayer(ctx context.Context, input *PatchLayerInput) (*LayerOutput, error) {
	if _, ok := h.svc.Registry.Get(input.ID); !ok {
		return nil, huma.Error404NotFound("layer not found")
	}
	if input.Body.Name != nil && !h.svc.Registry.Rename(ctx, input.ID, *input.Body.Name) {
		return nil, huma.Error404NotFound("layer not found")
	}
	if input.Body.Visible != nil {
		if !h.svc.Registry.SetVisible(input.ID, *input.Body.Visible) {
			return nil, huma.Error404NotFound("layer not found")
		}
		if err := h.svc.Bridge.Save(ctx); err != nil {
			return nil, huma.Error500InternalServerError("Failed to save state", err)
		}
	}
	return h.GetLayer(ctx, &input.IDInput)
}

func (h *APIHandler) DeleteLayer(ctx context.Context, input *IDInput) (*struct{ Body MessageBody }, error) {
	if !h.svc.Registry.Remove(ctx, input.ID) {
		return nil, huma.Error404NotFound("layer not found")
	}
	return &struct{ Body MessageBody }{Body: MessageBody{Message: "Layer deleted"}}, nil
}

func (h *APIHandler) ZoomLayer(ctx context.Context, input *IDInput) (*ViewOutput, error) {
	if !h.svc.Registry.ZoomTo(input.ID) {
		return nil, huma.Error404NotFound("layer not found")
	}
	return &ViewOutput{Body: h.viewBody()}, nil
}

func (h *APIHandler) GetFeatures(ctx context.Context, input *IDInput) (*FeaturesOutput, error) {
	l, ok := h.svc.Registry.Get(input.ID)
	if !ok {
		return nil, huma.Error404NotFound("layer not found")
	}
	vr, ok := l.Renderable.(*service.VectorRenderable)
	if !ok {
		return nil, huma.Error400BadRequest("layer is not a vector layer")
	}
	out := &FeaturesOutput{}
	out.Body.ID = l.ID
	out.Body.Features = vr.Features
	return out, nil
}

func (h *APIHandler) GetImage(ctx context.Context, input *IDInput) (*ImageOutput, error) {
	l, ok := h.svc.Registry.Get(input.ID)
	if !ok {
		return nil, huma.Error404NotFound("layer not found")
	}
	rr, ok := l.Renderable.(*service.RasterRenderable)
	if !ok || rr.Image == nil {
		return nil, huma.Error400BadRequest("layer is not a raster layer")
	}
	return &ImageOutput{ContentType: "image/png", Body: rr.Image.PNG}, nil
}

func (h *APIHandler) GetView(ctx context.Context, input *struct{}) (*ViewOutput, error) {
	return &ViewOutput{Body: h.viewBody()}, nil
}

func (h *APIHandler) FitView(ctx context.Context, input *struct{}) (*FitOutput, error) {
	out := &FitOutput{}
	out.Body.Fitted = h.svc.Registry.FitAll()
	out.Body.View = h.viewBody()
	return out, nil
}

func (h *APIHandler) viewBody() ViewBody {
	st := h.svc.View.State()
	vb := ViewBody{Attached: st.Attached, Fits: st.Fits}
	if vb.Attached == nil {
		vb.Attached = []string{}
	}
	if st.LastFit != nil {
		vb.LastFit = &FitBody{BBox: st.LastFit.BBox(), Padding: st.LastFit.Padding}
	}
	return vb
}

func (h *APIHandler) GetState(ctx context.Context, input *struct{}) (*StateOutput, error) {
	return &StateOutput{Body: h.svc.Bridge.Serialize()}, nil
}

// PutState replaces every layer with the layers of the posted snapshot.
func (h *APIHandler) PutState(ctx context.Context, input *PutStateInput) (*PutStateOutput, error) {
	snap, ok := h.svc.Bridge.DecodeSnapshot(input.RawBody)
	if !ok {
		return nil, huma.Error400BadRequest("body is not a snapshot")
	}
	ids, err := h.svc.Bridge.Replace(ctx, snap)
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to save state", err)
	}

	out := &PutStateOutput{}
	out.Body.Restored = ids
	return out, nil
}

func (h *APIHandler) ResolveStyle(ctx context.Context, input *StyleInput) (*StyleOutput, error) {
	f, err := geojson.UnmarshalFeature(input.RawBody)
	if err != nil {
		return nil, huma.Error422UnprocessableEntity("body is not a GeoJSON Feature", err)
	}
	out := &StyleOutput{}
	out.Body.Style = style.Resolve(f)
	out.Body.Highlight = style.Highlight(out.Body.Style)
	out.Body.Popup = style.Popup(f.Properties)
	if out.Body.Popup == nil {
		out.Body.Popup = []style.PopupEntry{}
	}
	return out, nil
}

// RegisterRoutes registers every REST route.
func RegisterRoutes(api huma.API, svc *Services) {
	huma.AutoRegister(api, NewAPIHandler(svc))
}
