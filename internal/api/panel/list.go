// Package panel serves the layer list panel as Datastar SSE fragments.
package panel

import (
	"github.com/joeblew999/plat-overlay/internal/service"
)

// Item is one row of the layer list.
type Item struct {
	ID      string
	Name    string
	Kind    service.Kind
	Visible bool
}

// List is the rendered state of the panel. The drop hint header is shown
// only while there are no layers.
type List struct {
	Items         []Item
	HeaderVisible bool
}

// Source lists layers in display order.
type Source interface {
	List() []service.Layer
}

// BuildList derives the panel state from src.
func BuildList(src Source) List {
	layers := src.List()
	items := make([]Item, 0, len(layers))
	for _, l := range layers {
		items = append(items, Item{ID: l.ID, Name: l.Name, Kind: l.Kind, Visible: l.Visible})
	}
	return List{Items: items, HeaderVisible: len(items) == 0}
}

func (l List) anyItems() []any {
	out := make([]any, len(l.Items))
	for i, it := range l.Items {
		out[i] = it
	}
	return out
}
