package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/paulmach/orb"

	"github.com/joeblew999/plat-overlay/internal/raster"
)

// ErrRasterUnsupported is returned by AddRaster when no decoder is configured.
var ErrRasterUnsupported = errors.New("raster layers not supported")

// RasterDecoder turns a raster file into a georeferenced image.
type RasterDecoder interface {
	Decode(ctx context.Context, r io.Reader) (*raster.Image, error)
}

// Registry is the ordered set of layers shown on a MapView.
//
// Operations on an unknown ID do nothing; their bool result reports whether
// the ID was known so callers can diagnose stale IDs if they care to.
type Registry struct {
	mu      sync.RWMutex
	order   []string
	layers  map[string]*Layer
	view    MapView
	decoder RasterDecoder
	bus     *EventBus
	logger  *log.Logger
	persist func(ctx context.Context)
}

// Option configures a Registry.
type Option func(*Registry)

// WithBus publishes layer events on b.
func WithBus(b *EventBus) Option {
	return func(r *Registry) { r.bus = b }
}

// WithLogger sets the registry logger.
func WithLogger(l *log.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// WithRasterDecoder enables AddRaster.
func WithRasterDecoder(d RasterDecoder) Option {
	return func(r *Registry) { r.decoder = d }
}

// NewRegistry creates an empty registry drawing on view.
func NewRegistry(view MapView, opts ...Option) *Registry {
	r := &Registry{
		layers: make(map[string]*Layer),
		view:   view,
		logger: log.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SetPersistHook sets the function called after mutations that must be
// persisted (remove, rename).
func (r *Registry) SetPersistHook(fn func(ctx context.Context)) {
	r.mu.Lock()
	r.persist = fn
	r.mu.Unlock()
}

// AddVector registers a visible vector layer built from doc, refits the
// view to all layers and returns the new layer's ID.
func (r *Registry) AddVector(name string, doc *Document) string {
	id := uuid.NewString()
	rend := NewVectorRenderable(doc.Collection)

	r.mu.Lock()
	r.layers[id] = &Layer{
		ID:         id,
		Name:       name,
		Kind:       KindVector,
		Renderable: rend,
		Data:       doc,
		Visible:    true,
	}
	r.order = append(r.order, id)
	r.view.Attach(id, rend)
	r.mu.Unlock()

	r.logger.Debug("vector layer added", "id", id, "name", name, "features", len(rend.Features))
	r.bus.Publish(Event{Resource: ResourceLayers, Action: ActionCreated, ID: id})
	r.FitAll()
	return id
}

// AddRaster decodes a raster from src and registers it. No raw data is
// kept, so raster layers are never persisted. The view is fitted to the
// raster alone.
func (r *Registry) AddRaster(ctx context.Context, name string, src io.Reader) (string, error) {
	if r.decoder == nil {
		return "", ErrRasterUnsupported
	}
	img, err := r.decoder.Decode(ctx, src)
	if err != nil {
		return "", fmt.Errorf("decoding raster %q: %w", name, err)
	}

	id := uuid.NewString()
	rend := &RasterRenderable{Image: img}

	r.mu.Lock()
	r.layers[id] = &Layer{
		ID:         id,
		Name:       name,
		Kind:       KindRaster,
		Renderable: rend,
		Visible:    true,
	}
	r.order = append(r.order, id)
	r.view.Attach(id, rend)
	r.mu.Unlock()

	r.logger.Debug("raster layer added", "id", id, "name", name, "width", img.Width, "height", img.Height)
	r.bus.Publish(Event{Resource: ResourceLayers, Action: ActionCreated, ID: id})
	if b, ok := rend.Bound(); ok {
		r.view.FitBounds(b, Padding{})
	}
	return id, nil
}

// Remove detaches and deletes a layer, refits the view and persists.
func (r *Registry) Remove(ctx context.Context, id string) bool {
	r.mu.Lock()
	if _, ok := r.layers[id]; !ok {
		r.mu.Unlock()
		return false
	}
	r.view.Detach(id)
	delete(r.layers, id)
	r.order = slices.DeleteFunc(r.order, func(s string) bool { return s == id })
	r.mu.Unlock()

	r.bus.Publish(Event{Resource: ResourceLayers, Action: ActionDeleted, ID: id})
	r.FitAll()
	r.runPersist(ctx)
	return true
}

// Clear removes every layer without persisting and returns how many were
// removed. The view is left where it was.
func (r *Registry) Clear() int {
	r.mu.Lock()
	ids := r.order
	for _, id := range ids {
		r.view.Detach(id)
	}
	r.order = nil
	r.layers = make(map[string]*Layer)
	r.mu.Unlock()

	for _, id := range ids {
		r.bus.Publish(Event{Resource: ResourceLayers, Action: ActionDeleted, ID: id})
	}
	return len(ids)
}

// SetVisible attaches or detaches a layer without removing it and refits
// the view. It does not persist.
func (r *Registry) SetVisible(id string, visible bool) bool {
	r.mu.Lock()
	l, ok := r.layers[id]
	if !ok {
		r.mu.Unlock()
		return false
	}
	if visible {
		r.view.Attach(id, l.Renderable)
	} else {
		r.view.Detach(id)
	}
	l.Visible = visible
	r.mu.Unlock()

	r.bus.Publish(Event{Resource: ResourceLayers, Action: ActionUpdated, ID: id})
	r.FitAll()
	return true
}

// Rename sets the display name to the trimmed name when it is non-empty
// and differs from the current one, then persists.
func (r *Registry) Rename(ctx context.Context, id, name string) bool {
	trimmed := strings.TrimSpace(name)

	r.mu.Lock()
	l, ok := r.layers[id]
	if !ok {
		r.mu.Unlock()
		return false
	}
	if trimmed == "" || trimmed == l.Name {
		r.mu.Unlock()
		return true
	}
	l.Name = trimmed
	r.mu.Unlock()

	r.bus.Publish(Event{Resource: ResourceLayers, Action: ActionUpdated, ID: id})
	r.runPersist(ctx)
	return true
}

// ZoomTo fits the view to a single layer's bounds.
func (r *Registry) ZoomTo(id string) bool {
	r.mu.RLock()
	l, ok := r.layers[id]
	var rend Renderable
	if ok {
		rend = l.Renderable
	}
	r.mu.RUnlock()
	if !ok {
		return false
	}

	if b, valid := rend.Bound(); valid {
		r.view.FitBounds(b, DefaultPadding)
	}
	return true
}

// FitAll fits the view to the union of the bounds of all visible layers.
// It returns false, without touching the view, when no visible layer has
// valid bounds.
func (r *Registry) FitAll() bool {
	b, ok := r.visibleBound()
	if !ok {
		return false
	}
	r.view.FitBounds(b, DefaultPadding)
	return true
}

func (r *Registry) visibleBound() (orb.Bound, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var union orb.Bound
	found := false
	for _, id := range r.order {
		l := r.layers[id]
		if !l.Visible {
			continue
		}
		b, ok := l.Renderable.Bound()
		if !ok {
			continue
		}
		if !found {
			union, found = b, true
			continue
		}
		union = union.Union(b)
	}
	return union, found
}

// Get returns a copy of the layer with id.
func (r *Registry) Get(id string) (Layer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	l, ok := r.layers[id]
	if !ok {
		return Layer{}, false
	}
	return *l, true
}

// List returns copies of all layers in registry order.
func (r *Registry) List() []Layer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Layer, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.layers[id])
	}
	return out
}

// Len returns the number of layers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

func (r *Registry) runPersist(ctx context.Context) {
	r.mu.RLock()
	fn := r.persist
	r.mu.RUnlock()
	if fn != nil {
		fn(ctx)
	}
}
