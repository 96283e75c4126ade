package connection

import (
	"context"
	"errors"
)

// coordinator translates environment signals into manager commands.
// It is registered once per Manager and removed by Close.
type coordinator struct {
	m *Manager
}

// VisibilityChanged suspends on background and resumes on foreground.
func (c coordinator) VisibilityChanged(visible bool) {
	c.m.command(context.Background(), event{kind: evVisibility, visible: visible})
}

// ShutdownRequested stops the manager, waiting at most ShutdownTimeout
// for the channel to close.
func (c coordinator) ShutdownRequested() {
	ctx, cancel := context.WithTimeout(context.Background(), c.m.cfg.ShutdownTimeout)
	defer cancel()

	if err := c.m.command(ctx, event{kind: evShutdown}); err != nil && !errors.Is(err, ErrManagerClosed) {
		c.m.logger.Warn("shutdown teardown incomplete", "error", err)
	}
}
