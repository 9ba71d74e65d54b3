package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-overlay/internal/service"
)

// Version is reported by /api/v1/info.
const Version = "0.1.0"

type InfoHandler struct {
	dataDir  string
	backend  string
	registry *service.Registry
}

func NewInfoHandler(dataDir, backend string, reg *service.Registry) *InfoHandler {
	return &InfoHandler{dataDir: dataDir, backend: backend, registry: reg}
}

func (h *InfoHandler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/info", h.GetInfo, huma.OperationTags("health"))
}

type InfoBody struct {
	Name     string   `json:"name" doc:"Service name"`
	Version  string   `json:"version" doc:"Service version"`
	DataDir  string   `json:"data_dir" doc:"Data directory path"`
	Store    string   `json:"store" enum:"file,duckdb,sqlite,memory" doc:"Snapshot store backend"`
	Layers   int      `json:"layers" doc:"Number of layers in the registry"`
	Features []string `json:"features" doc:"Accepted upload formats"`
}

func (h *InfoHandler) GetInfo(ctx context.Context, input *struct{}) (*struct{ Body InfoBody }, error) {
	return &struct{ Body InfoBody }{Body: InfoBody{
		Name:     "plat-overlay",
		Version:  Version,
		DataDir:  h.dataDir,
		Store:    h.backend,
		Layers:   h.registry.Len(),
		Features: []string{"geojson", "geotiff"},
	}}, nil
}
