package local

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/docker/docker/api/types/container"
	"github.com/gammadia/compound/backend/internal"
	"github.com/gammadia/compound/cloud"
)

// Node is a sub-node running as a Docker container.
type Node struct {
	internal.Retention

	name        string
	label       string
	image       string
	containerID string

	backend    *Backend
	terminated atomic.Bool

	log *slog.Logger
}

// Node implements cloud.Node, cloud.Retainer and cloud.Terminator
var (
	_ cloud.Node       = (*Node)(nil)
	_ cloud.Retainer   = (*Node)(nil)
	_ cloud.Terminator = (*Node)(nil)
)

func (n *Node) Name() string { return n.name }
func (n *Node) Label() string { return n.label }
func (n *Node) Image() string { return n.image }
func (n *Node) ContainerID() string { return n.containerID }

// Terminate removes the container. It is safe to call more than once.
func (n *Node) Terminate(ctx context.Context) error {
	if !n.terminated.CompareAndSwap(false, true) {
		return nil
	}
	defer n.backend.forget(n)

	n.log.Info("Removing container")
	if err := internal.Retry(ctx, 3, func() error {
		return n.backend.docker.ContainerRemove(ctx, n.containerID, container.RemoveOptions{RemoveVolumes: true, Force: true})
	}); err != nil {
		return fmt.Errorf("failed to remove container of node '%s': %w", n.name, err)
	}
	return nil
}
