package service

import (
	"slices"
	"sync"

	"github.com/paulmach/orb"
)

// Padding is the pixel inset kept around fitted bounds (x, y).
type Padding [2]int

// DefaultPadding is used by FitAll and ZoomTo.
var DefaultPadding = Padding{20, 20}

// MapView is the map the registry draws on. Implementations must be safe
// for concurrent use.
type MapView interface {
	Attach(id string, r Renderable)
	Detach(id string)
	FitBounds(b orb.Bound, padding Padding)
}

// FitRequest is one request to frame the view.
type FitRequest struct {
	Bound   orb.Bound
	Padding Padding
}

// BBox returns the bound as [west, south, east, north].
func (f FitRequest) BBox() [4]float64 {
	return [4]float64{f.Bound.Min[0], f.Bound.Min[1], f.Bound.Max[0], f.Bound.Max[1]}
}

// ViewState is a copy of the viewport's state.
type ViewState struct {
	Attached []string    // layer IDs currently on the map, in attach order
	LastFit  *FitRequest // nil until the first fit
	Fits     int         // number of fit requests so far
}

// Viewport is the server-side MapView. It records what is attached and
// the latest fit so browsers can replay it, and announces fits on the bus.
type Viewport struct {
	mu       sync.RWMutex
	attached []string
	last     *FitRequest
	fits     int
	bus      *EventBus
}

// NewViewport creates a viewport publishing on bus (which may be nil).
func NewViewport(bus *EventBus) *Viewport {
	return &Viewport{bus: bus}
}

func (v *Viewport) Attach(id string, r Renderable) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !slices.Contains(v.attached, id) {
		v.attached = append(v.attached, id)
	}
}

func (v *Viewport) Detach(id string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.attached = slices.DeleteFunc(v.attached, func(s string) bool { return s == id })
}

func (v *Viewport) FitBounds(b orb.Bound, padding Padding) {
	v.mu.Lock()
	v.last = &FitRequest{Bound: b, Padding: padding}
	v.fits++
	v.mu.Unlock()

	v.bus.Publish(Event{Resource: ResourceView, Action: ActionFit})
}

// State returns a snapshot of the viewport.
func (v *Viewport) State() ViewState {
	v.mu.RLock()
	defer v.mu.RUnlock()

	s := ViewState{Attached: slices.Clone(v.attached), Fits: v.fits}
	if v.last != nil {
		last := *v.last
		s.LastFit = &last
	}
	return s
}

// IsAttached reports whether id is on the map.
func (v *Viewport) IsAttached(id string) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return slices.Contains(v.attached, id)
}
