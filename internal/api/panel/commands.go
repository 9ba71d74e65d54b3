package panel

import (
	"context"

	"github.com/charmbracelet/log"

	"github.com/joeblew999/plat-overlay/internal/service"
)

// Commands are the user actions available from a layer row. Each returns
// false when the layer ID is no longer known.
type Commands struct {
	registry *service.Registry
	saver    service.Saver
	logger   *log.Logger
}

// NewCommands creates the row commands. saver may be nil.
func NewCommands(reg *service.Registry, saver service.Saver, logger *log.Logger) *Commands {
	if logger == nil {
		logger = log.Default()
	}
	return &Commands{registry: reg, saver: saver, logger: logger}
}

// OnToggle shows or hides a layer, then saves.
func (c *Commands) OnToggle(ctx context.Context, id string, visible bool) bool {
	if !c.registry.SetVisible(id, visible) {
		c.logger.Debug("toggle on unknown layer", "id", id)
		return false
	}
	if c.saver != nil {
		if err := c.saver.Save(ctx); err != nil {
			c.logger.Error("saving snapshot", "err", err)
		}
	}
	return true
}

// OnRename commits an edited name. Blank names are ignored by the registry.
func (c *Commands) OnRename(ctx context.Context, id, name string) bool {
	return c.registry.Rename(ctx, id, name)
}

// OnDelete removes the layer.
func (c *Commands) OnDelete(ctx context.Context, id string) bool {
	return c.registry.Remove(ctx, id)
}

// OnZoom frames the layer.
func (c *Commands) OnZoom(id string) bool {
	return c.registry.ZoomTo(id)
}
