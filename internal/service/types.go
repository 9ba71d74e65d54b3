// Package service contains the overlay core: the layer registry, the map
// view it drives, snapshot persistence and file ingestion.
package service

import (
	"encoding/json"

	"github.com/paulmach/orb/geojson"
)

// Kind distinguishes vector layers from rasters.
type Kind string

const (
	KindVector Kind = "vector"
	KindRaster Kind = "raster"
)

// Document is a GeoJSON FeatureCollection as it was received. Raw is
// persisted untouched; Collection is the parsed form the renderable is
// built from and drops anything orb does not model, such as elevations.
type Document struct {
	Raw        json.RawMessage
	Collection *geojson.FeatureCollection
}

// Layer is one overlay in the registry. Data is the document the layer was
// created from and is nil for rasters.
type Layer struct {
	ID         string
	Name       string
	Kind       Kind
	Renderable Renderable
	Data       *Document
	Visible    bool
}

// SnapshotKey is the fixed store key the snapshot lives under.
const SnapshotKey = "mapOverLayer:lastState"

// Snapshot is the persisted state: vector layers only, in registry order.
type Snapshot struct {
	Layers []SnapshotLayer `json:"layers" doc:"Persisted vector layers in display order"`
}

// SnapshotLayer is one persisted vector layer.
type SnapshotLayer struct {
	Name    string          `json:"name" doc:"Display name" example:"parks"`
	Data    json.RawMessage `json:"data" doc:"GeoJSON FeatureCollection, byte for byte as uploaded"`
	Visible bool            `json:"visible" doc:"Whether the layer is shown"`
}

// Event resources and actions published on the EventBus.
const (
	ResourceLayers = "layers"
	ResourceView   = "view"
	ResourceRaster = "raster"

	ActionCreated = "created"
	ActionUpdated = "updated"
	ActionDeleted = "deleted"
	ActionFit     = "fit"
	ActionLoading = "loading"
	ActionLoaded  = "loaded"
)
