package cloud

import (
	"context"
	"log/slog"
)

// Cleaner undoes sub-node acquisitions. It is best-effort and never fails: it
// runs on paths that are already failing.
type Cleaner struct {
	registry Registry
	log      *slog.Logger
}

func NewCleaner(registry Registry, logger *slog.Logger) *Cleaner {
	return &Cleaner{registry: registry, log: logger}
}

// Cleanup terminates and deregisters every sub-node in results. Nodes that fail
// to terminate stay registered. Nil results and nodes that are no longer
// registered are skipped.
func (c *Cleaner) Cleanup(ctx context.Context, results []*SubNodeResult) {
	// Keep cleaning even if the caller is shutting down
	ctx = context.WithoutCancel(ctx)

	for _, result := range results {
		if result == nil {
			continue
		}

		node, ok := c.registry.Get(result.Node)
		if !ok {
			c.log.Debug("Node already gone, nothing to clean up", "node", result.Node, "role", result.Role)
			continue
		}

		if terminator, ok := node.(Terminator); ok {
			c.log.Warn("Terminating node", "node", result.Node, "role", result.Role)
			if err := terminator.Terminate(ctx); err != nil {
				// Still running, keep it registered so it can be reclaimed later
				c.log.Warn("Failed to terminate node, leaving it registered", "node", result.Node, "role", result.Role, "error", err)
				continue
			}
		} else {
			c.log.Warn("Removing node", "node", result.Node, "role", result.Role)
		}

		if err := c.registry.Remove(node); err != nil {
			c.log.Warn("Failed to remove node", "node", result.Node, "role", result.Role, "error", err)
		}
	}
}
