package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/joeblew999/plat-overlay/internal/store"
)

// Bridge mirrors the registry's vector layers to a key-value store.
type Bridge struct {
	registry *Registry
	store    store.Store
	logger   *log.Logger
}

// NewBridge creates a bridge between reg and st.
func NewBridge(reg *Registry, st store.Store, logger *log.Logger) *Bridge {
	if logger == nil {
		logger = log.Default()
	}
	return &Bridge{registry: reg, store: st, logger: logger}
}

// Attach makes the registry save through this bridge after removals and
// renames. Save errors are logged.
func (b *Bridge) Attach() {
	b.registry.SetPersistHook(func(ctx context.Context) {
		if err := b.Save(ctx); err != nil {
			b.logger.Error("saving snapshot", "err", err)
		}
	})
}

// Serialize snapshots every vector layer in registry order. Each entry's
// data is the document the layer was created from. Rasters are left out:
// they keep no raw data.
func (b *Bridge) Serialize() Snapshot {
	snap := Snapshot{Layers: []SnapshotLayer{}}
	for _, l := range b.registry.List() {
		if l.Kind != KindVector || l.Data == nil {
			continue
		}
		snap.Layers = append(snap.Layers, SnapshotLayer{
			Name:    l.Name,
			Data:    l.Data.Raw,
			Visible: l.Visible,
		})
	}
	return snap
}

// Save writes the current snapshot under SnapshotKey, replacing any
// previous one.
func (b *Bridge) Save(ctx context.Context) error {
	data, err := json.Marshal(b.Serialize())
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	if err := b.store.Put(ctx, SnapshotKey, data); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}
	return nil
}

// Restore replays each snapshot entry as AddVector followed by
// SetVisible with the recorded visibility, in array order. Entries whose
// data is missing or not a FeatureCollection are skipped. It returns the
// new layer IDs.
func (b *Bridge) Restore(snap Snapshot) []string {
	ids := make([]string, 0, len(snap.Layers))
	for i, l := range snap.Layers {
		if len(l.Data) == 0 {
			b.logger.Warn("skipping snapshot entry without data", "index", i, "name", l.Name)
			continue
		}
		doc, err := ParseDocument(l.Data)
		if err != nil {
			b.logger.Warn("skipping snapshot entry with invalid data", "index", i, "name", l.Name, "err", err)
			continue
		}
		id := b.registry.AddVector(l.Name, doc)
		b.registry.SetVisible(id, l.Visible)
		ids = append(ids, id)
	}
	return ids
}

// Replace drops every current layer, restores snap and saves once.
func (b *Bridge) Replace(ctx context.Context, snap Snapshot) ([]string, error) {
	b.registry.Clear()
	ids := b.Restore(snap)
	return ids, b.Save(ctx)
}

// rawSnapshot defers entry decoding so one bad entry does not sink the rest.
type rawSnapshot struct {
	Layers []json.RawMessage `json:"layers"`
}

type rawSnapshotLayer struct {
	Name    string          `json:"name"`
	Data    json.RawMessage `json:"data"`
	Visible *bool           `json:"visible"`
}

// DecodeSnapshot parses raw into a Snapshot, carrying each entry's data
// through as raw bytes. A malformed document yields ok=false; malformed
// entries are dropped. Missing visibility means visible.
func (b *Bridge) DecodeSnapshot(raw []byte) (Snapshot, bool) {
	var rs rawSnapshot
	if err := json.Unmarshal(raw, &rs); err != nil {
		b.logger.Warn("ignoring malformed snapshot", "err", err)
		return Snapshot{}, false
	}
	if rs.Layers == nil {
		return Snapshot{}, false
	}

	snap := Snapshot{Layers: make([]SnapshotLayer, 0, len(rs.Layers))}
	for i, entry := range rs.Layers {
		var rl rawSnapshotLayer
		if err := json.Unmarshal(entry, &rl); err != nil {
			b.logger.Warn("skipping malformed snapshot entry", "index", i, "err", err)
			continue
		}
		if len(rl.Data) == 0 || string(rl.Data) == "null" {
			b.logger.Warn("skipping snapshot entry without data", "index", i, "name", rl.Name)
			continue
		}
		visible := true
		if rl.Visible != nil {
			visible = *rl.Visible
		}
		snap.Layers = append(snap.Layers, SnapshotLayer{Name: rl.Name, Data: rl.Data, Visible: visible})
	}
	return snap, true
}

// RestoreBytes decodes and restores raw. Malformed input is a no-op.
func (b *Bridge) RestoreBytes(raw []byte) []string {
	snap, ok := b.DecodeSnapshot(raw)
	if !ok {
		return nil
	}
	return b.Restore(snap)
}

// Load restores the stored snapshot, if any. A missing snapshot is a no-op;
// only store failures are returned.
func (b *Bridge) Load(ctx context.Context) ([]string, error) {
	raw, ok, err := b.store.Get(ctx, SnapshotKey)
	if err != nil {
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}
	if !ok {
		b.logger.Debug("no stored snapshot")
		return nil, nil
	}
	ids := b.RestoreBytes(raw)
	b.logger.Info("restored layers", "count", len(ids))
	return ids, nil
}
