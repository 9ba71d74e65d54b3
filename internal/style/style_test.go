package style

import (
	"encoding/json"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func feature(g orb.Geometry, props map[string]any) *geojson.Feature {
	f := geojson.NewFeature(g)
	for k, v := range props {
		f.Properties[k] = v
	}
	return f
}

func TestResolve_Defaults(t *testing.T) {
	tests := []struct {
		name string
		geom orb.Geometry
		want Style
	}{
		{"point", orb.Point{7.67, 45.06}, pointDefaults},
		{"multipoint", orb.MultiPoint{{1, 2}}, pointDefaults},
		{"line", orb.LineString{{0, 0}, {1, 1}}, lineDefaults},
		{"multiline", orb.MultiLineString{{{0, 0}, {1, 1}}}, lineDefaults},
		{"polygon", orb.Polygon{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}}, polygonDefaults},
		{"multipolygon", orb.MultiPolygon{{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}}}, polygonDefaults},
		{"collection", orb.Collection{orb.Point{0, 0}}, fallbackDefaults},
		{"nil geometry", nil, fallbackDefaults},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Resolve(feature(tt.geom, nil)))
		})
	}
}

func TestResolve_PointColorOverride(t *testing.T) {
	s := Resolve(feature(orb.Point{0, 0}, map[string]any{"color": "#ff0000"}))

	assert.Equal(t, "#ff0000", s.Color)
	assert.Equal(t, "#3399ff", s.FillColor)
	assert.Equal(t, 6.0, s.Radius)
}

func TestResolve_IndependentOverrides(t *testing.T) {
	s := Resolve(feature(orb.Polygon{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}}, map[string]any{
		"weight":      5.0,
		"fillOpacity": "0.55",
		"opacity":     nil,
		"fillColor":   42.0,
	}))

	assert.Equal(t, 5.0, s.Weight)
	assert.Equal(t, 0.55, s.FillOpacity)
	assert.Equal(t, polygonDefaults.Opacity, s.Opacity, "null keeps default")
	assert.Equal(t, polygonDefaults.FillColor, s.FillColor, "non-string colour keeps default")
	assert.Equal(t, polygonDefaults.Color, s.Color)
}

func TestResolve_LineIgnoresFill(t *testing.T) {
	s := Resolve(feature(orb.LineString{{0, 0}, {1, 1}}, map[string]any{
		"fillColor": "#000000",
		"radius":    12.0,
	}))

	assert.Empty(t, s.FillColor)
	assert.Zero(t, s.Radius)
	assert.False(t, s.HasFill())
}

func TestResolve_NilFeature(t *testing.T) {
	assert.Equal(t, fallbackDefaults, Resolve(nil))
}

func TestStyleMarshalJSON(t *testing.T) {
	t.Run("line has no fill", func(t *testing.T) {
		b, err := json.Marshal(lineDefaults)
		require.NoError(t, err)

		var got map[string]any
		require.NoError(t, json.Unmarshal(b, &got))
		assert.NotContains(t, got, "fillColor")
		assert.NotContains(t, got, "fillOpacity")
		assert.NotContains(t, got, "radius")
		assert.Equal(t, "#ff8800", got["color"])
	})

	t.Run("point has radius", func(t *testing.T) {
		b, err := json.Marshal(pointDefaults)
		require.NoError(t, err)

		var got map[string]any
		require.NoError(t, json.Unmarshal(b, &got))
		assert.Equal(t, 6.0, got["radius"])
		assert.Equal(t, 0.8, got["fillOpacity"])
	})
}

func TestPopup(t *testing.T) {
	entries := Popup(map[string]any{
		"name":    "Mole Antonelliana",
		"height":  167.5,
		"color":   "#ff0000",
		"empty":   "",
		"missing": nil,
		"tags":    []any{"museum", "tower"},
	})

	assert.Equal(t, []PopupEntry{
		{Key: "height", Value: "167.5"},
		{Key: "name", Value: "Mole Antonelliana"},
		{Key: "tags", Value: `["museum","tower"]`},
	}, entries)
}

func TestPopup_Empty(t *testing.T) {
	assert.Empty(t, Popup(nil))
	assert.Empty(t, Popup(map[string]any{"weight": 3.0}))
}

func TestHighlight(t *testing.T) {
	base := Resolve(feature(orb.Point{0, 0}, map[string]any{"weight": 1.0, "opacity": 0.2}))
	hover := Highlight(base)

	assert.Equal(t, 4.0, hover.Weight)
	assert.Equal(t, 1.0, hover.Opacity)
	assert.Equal(t, base.Color, hover.Color)
	assert.Equal(t, 1.0, base.Weight, "base style untouched")
}
