package service

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/plat-overlay/internal/raster"
	"github.com/joeblew999/plat-overlay/internal/style"
)

// Renderable is what the map view draws for a layer. The registry only
// needs its kind and bounds.
type Renderable interface {
	Kind() Kind
	// Bound returns the geographic extent; ok is false when there is none.
	Bound() (b orb.Bound, ok bool)
}

// StyledFeature is a feature plus everything the viewer needs to draw and
// interact with it.
type StyledFeature struct {
	Feature   *geojson.Feature   `json:"feature" doc:"Source GeoJSON feature"`
	Style     style.Style        `json:"style" doc:"Resolved style, reapplied on hover-out"`
	Highlight style.Style        `json:"highlight" doc:"Hover-in style"`
	Popup     []style.PopupEntry `json:"popup" doc:"Popup key/value lines"`
}

// VectorRenderable is a styled FeatureCollection.
type VectorRenderable struct {
	Features []StyledFeature
	bound    orb.Bound
	valid    bool
}

// NewVectorRenderable resolves styles and popups for every feature of fc.
// The collection itself is not modified.
func NewVectorRenderable(fc *geojson.FeatureCollection) *VectorRenderable {
	r := &VectorRenderable{}
	if fc == nil {
		return r
	}

	r.Features = make([]StyledFeature, 0, len(fc.Features))
	for _, f := range fc.Features {
		if f == nil {
			continue
		}
		s := style.Resolve(f)
		r.Features = append(r.Features, StyledFeature{
			Feature:   f,
			Style:     s,
			Highlight: style.Highlight(s),
			Popup:     style.Popup(f.Properties),
		})
		r.extend(f.Geometry)
	}
	return r
}

func (r *VectorRenderable) extend(g orb.Geometry) {
	if g == nil {
		return
	}
	b := g.Bound()
	if b.IsEmpty() {
		return
	}
	if !r.valid {
		r.bound, r.valid = b, true
		return
	}
	r.bound = r.bound.Union(b)
}

func (r *VectorRenderable) Kind() Kind { return KindVector }

func (r *VectorRenderable) Bound() (orb.Bound, bool) { return r.bound, r.valid }

// RasterRenderable wraps a decoded raster image.
type RasterRenderable struct {
	Image *raster.Image
}

func (r *RasterRenderable) Kind() Kind { return KindRaster }

func (r *RasterRenderable) Bound() (orb.Bound, bool) {
	if r.Image == nil || r.Image.Bound.IsEmpty() {
		return orb.Bound{}, false
	}
	return r.Image.Bound, true
}
