// Package style maps GeoJSON features to the visual styles the viewer draws
// them with, and builds the popup and hover behaviour attached to each feature.
package style

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/paulmach/orb/geojson"
)

// Policy names the styling branch a feature fell into.
type Policy string

const (
	PolicyPoint    Policy = "point"
	PolicyLine     Policy = "line"
	PolicyPolygon  Policy = "polygon"
	PolicyFallback Policy = "fallback"
)

// Property keys that override style fields. They are also hidden from popups.
const (
	KeyRadius      = "radius"
	KeyColor       = "color"
	KeyFillColor   = "fillColor"
	KeyWeight      = "weight"
	KeyOpacity     = "opacity"
	KeyFillOpacity = "fillOpacity"
)

// Style is a Leaflet-compatible path style. Which fields are meaningful
// depends on Policy: lines carry no fill, only points carry a radius.
type Style struct {
	Policy      Policy
	Radius      float64
	Color       string
	FillColor   string
	Weight      float64
	Opacity     float64
	FillOpacity float64
}

// HasFill reports whether the style paints an interior.
func (s Style) HasFill() bool {
	return s.Policy != PolicyLine
}

// MarshalJSON emits only the fields that belong to the style's policy.
func (s Style) MarshalJSON() ([]byte, error) {
	out := map[string]any{
		"color":   s.Color,
		"weight":  s.Weight,
		"opacity": s.Opacity,
	}
	if s.Policy == PolicyPoint {
		out["radius"] = s.Radius
	}
	if s.HasFill() {
		out["fillColor"] = s.FillColor
		out["fillOpacity"] = s.FillOpacity
	}
	return json.Marshal(out)
}

var (
	pointDefaults = Style{
		Policy: PolicyPoint, Radius: 6, Color: "#0066cc", FillColor: "#3399ff",
		Weight: 2, Opacity: 1, FillOpacity: 0.8,
	}
	lineDefaults = Style{
		Policy: PolicyLine, Color: "#ff8800", Weight: 3, Opacity: 0.9,
	}
	polygonDefaults = Style{
		Policy: PolicyPolygon, Color: "#0f550f", Weight: 2, Opacity: 0.8,
		FillColor: "#109310", FillOpacity: 0.3,
	}
	fallbackDefaults = Style{
		Policy: PolicyFallback, Color: "#444", Weight: 2, Opacity: 0.8,
		FillColor: "#888", FillOpacity: 0.2,
	}
)

// Defaults returns the unmodified style for a GeoJSON geometry type name.
func Defaults(geomType string) Style {
	switch geomType {
	case "Point", "MultiPoint":
		return pointDefaults
	case "LineString", "MultiLineString":
		return lineDefaults
	case "Polygon", "MultiPolygon":
		return polygonDefaults
	default:
		return fallbackDefaults
	}
}

// Resolve returns the style for f. Each field takes the same-named feature
// property when it is present and usable, else the policy default.
func Resolve(f *geojson.Feature) Style {
	if f == nil {
		return fallbackDefaults
	}
	return ResolveType(geometryType(f), f.Properties)
}

// ResolveType is Resolve for callers that only hold a geometry type name
// and a property map.
func ResolveType(geomType string, props map[string]any) Style {
	s := Defaults(geomType)

	s.Color = stringProp(props, KeyColor, s.Color)
	s.Weight = numberProp(props, KeyWeight, s.Weight)
	s.Opacity = numberProp(props, KeyOpacity, s.Opacity)

	if s.Policy == PolicyPoint {
		s.Radius = numberProp(props, KeyRadius, s.Radius)
	}
	if s.HasFill() {
		s.FillColor = stringProp(props, KeyFillColor, s.FillColor)
		s.FillOpacity = numberProp(props, KeyFillOpacity, s.FillOpacity)
	}
	return s
}

func geometryType(f *geojson.Feature) string {
	if f.Geometry == nil {
		return ""
	}
	return f.Geometry.GeoJSONType()
}

// stringProp only takes string overrides; Style.Color is typed, so a
// number or object under a colour key keeps the default.
func stringProp(props map[string]any, key, def string) string {
	if v, ok := props[key].(string); ok {
		return v
	}
	return def
}

func numberProp(props map[string]any, key string, def float64) float64 {
	switch v := props[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return f
		}
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f
		}
	}
	return def
}

// IsStyleKey reports whether key is one of the style override properties.
func IsStyleKey(key string) bool {
	switch key {
	case KeyRadius, KeyColor, KeyFillColor, KeyWeight, KeyOpacity, KeyFillOpacity:
		return true
	}
	return false
}
