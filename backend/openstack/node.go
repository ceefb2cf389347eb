package openstack

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/gammadia/compound/backend/internal"
	"github.com/gammadia/compound/cloud"
	"github.com/gophercloud/gophercloud"
	"github.com/gophercloud/gophercloud/openstack/compute/v2/servers"
)

// Node is a sub-node running as an OpenStack server.
type Node struct {
	internal.Retention

	name     string
	label    string
	serverID string

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
func (n *Node) ServerID() string { return n.serverID }

// Terminate deletes the server. It is safe to call more than once.
func (n *Node) Terminate(ctx context.Context) error {
	if !n.terminated.CompareAndSwap(false, true) {
		return nil
	}
	defer n.backend.forget(n)

	n.log.Info("Deleting server")
	return n.backend.deleteServer(ctx, n.name, n.serverID)
}

func isNotFound(err error) bool {
	var notFound gophercloud.ErrDefault404
	return errors.As(err, &notFound)
}

func (b *Backend) deleteServer(ctx context.Context, name, id string) error {
	if err := internal.Retry(ctx, 3, func() error {
		if err := servers.Delete(b.client, id).ExtractErr(); err != nil && !isNotFound(err) {
			return err
		}
		return nil
	}); err != nil {
		return fmt.Errorf("failed to delete server '%s': %w", name, err)
	}
	return nil
}
