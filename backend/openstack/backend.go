package openstack

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/gammadia/compound/backend/internal"
	"github.com/gammadia/compound/cloud"
	"github.com/gophercloud/gophercloud"
	"github.com/gophercloud/gophercloud/openstack"
	"github.com/gophercloud/gophercloud/openstack/compute/v2/extensions/keypairs"
	"github.com/gophercloud/gophercloud/openstack/compute/v2/servers"
	"github.com/samber/lo"
)

const Name = "openstack"

// Backend provisions sub-nodes as OpenStack servers.
type Backend struct {
	config Config
	client *gophercloud.ServiceClient
	log    *slog.Logger

	mutex sync.Mutex
	nodes map[string]*Node
}

// Backend implements cloud.Backend
var _ cloud.Backend = (*Backend)(nil)

// New authenticates against OpenStack using the standard OS_* environment variables.
func New(config Config) (*Backend, error) {
	opts, err := openstack.AuthOptionsFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to get auth options from env: %w", err)
	}

	provider, err := openstack.AuthenticatedClient(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to get authenticated client: %w", err)
	}

	client, err := openstack.NewComputeV2(provider, gophercloud.EndpointOpts{
		Region: os.Getenv("OS_REGION_NAME"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get compute client: %w", err)
	}

	return NewWithClient(config, client), nil
}

func NewWithClient(config Config, client *gophercloud.ServiceClient) *Backend {
	if config.ReadyTimeout <= 0 {
		config.ReadyTimeout = defaultReadyTimeout
	}
	if config.PollInterval <= 0 {
		config.PollInterval = defaultPollInterval
	}

	return &Backend{
		config: config,
		client: client,
		log:    lo.Ternary(config.Logger != nil, config.Logger, slog.Default()).With("backend", Name),
		nodes:  make(map[string]*Node),
	}
}

func (b *Backend) Name() string {
	return Name
}

// Provision creates count servers for label. The returned nodes resolve once
// their server is active.
func (b *Backend) Provision(ctx context.Context, label string, count int) ([]cloud.PendingNode, error) {
	image, _ := lo.Coalesce(b.config.Images[label], b.config.Image)
	if image == "" {
		return nil, fmt.Errorf("no image configured for label '%s'", label)
	}
	flavor, _ := lo.Coalesce(b.config.Flavors[label], b.config.Flavor)
	if flavor == "" {
		return nil, fmt.Errorf("no flavor configured for label '%s'", label)
	}

	return lo.Times(count, func(_ int) cloud.PendingNode {
		node := &Node{
			name:    internal.NodeName(lo.Must(lo.Coalesce(b.config.Prefix, "compound")), label),
			label:   label,
			backend: b,
		}
		node.log = b.log.With("node", node.name)

		return cloud.PendingNode{
			Name: node.name,
			Node: cloud.Go(func() (cloud.Node, error) {
				if err := b.create(ctx, node, image, flavor); err != nil {
					return nil, err
				}
				return node, nil
			}),
			Executors: 1,
		}
	}), nil
}

func (b *Backend) createOpts(node *Node, image, flavor string) servers.CreateOptsBuilder {
	opts := servers.CreateOpts{
		Name:           node.name,
		ImageRef:       image,
		FlavorRef:      flavor,
		SecurityGroups: b.config.SecurityGroups,
		Metadata: map[string]string{
			"compound-label":          node.label,
			"compound-provisioned-at": time.Now().Format(time.RFC3339),
		},
	}
	if len(b.config.Networks) > 0 {
		opts.Networks = b.config.Networks
	}

	if b.config.KeyName == "" {
		return opts
	}
	return keypairs.CreateOptsExt{
		CreateOptsBuilder: opts,
		KeyName:           b.config.KeyName,
	}
}

func (b *Backend) create(ctx context.Context, node *Node, image, flavor string) (err error) {
	server, err := servers.Create(b.client, b.createOpts(node, image, flavor)).Extract()
	if err != nil {
		return fmt.Errorf("failed to create server '%s': %w", node.name, err)
	}
	node.serverID = server.ID

	defer func() {
		if err != nil {
			// Uses context.Background() so the server is deleted even if ctx is cancelled
			if deleteErr := b.deleteServer(context.Background(), node.name, server.ID); deleteErr != nil {
				node.log.Warn("Failed to delete server", "error", deleteErr)
			}
		}
	}()

	node.log.Debug("Created server, waiting for it to become ready", "wait", b.config.ReadyTimeout)
	if err = b.waitForActive(ctx, node); err != nil {
		return err
	}

	b.mutex.Lock()
	b.nodes[node.name] = node
	b.mutex.Unlock()

	node.log.Info("Server active", "server", server.ID)
	return nil
}

func (b *Backend) waitForActive(ctx context.Context, node *Node) error {
	ctx, cancel := context.WithTimeout(ctx, b.config.ReadyTimeout)
	defer cancel()

	ticker := time.NewTicker(b.config.PollInterval)
	defer ticker.Stop()

	for {
		server, err := servers.Get(b.client, node.serverID).Extract()
		if err != nil {
			return fmt.Errorf("failed to get server '%s': %w", node.name, err)
		}

		switch server.Status {
		case "ACTIVE":
			return nil
		case "ERROR":
			return fmt.Errorf("server '%s' is in error state", node.name)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("failed while waiting for server '%s' to become ready (status %s): %w", node.name, server.Status, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (b *Backend) forget(node *Node) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	delete(b.nodes, node.name)
}

// Nodes returns the active sub-nodes.
func (b *Backend) Nodes() []*Node {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return lo.Values(b.nodes)
}

// Shutdown deletes every active server that is not retained by the cloud.
func (b *Backend) Shutdown(ctx context.Context) error {
	var errs []error
	for _, node := range b.Nodes() {
		if !node.Reclaimable() {
			continue
		}
		if err := node.Terminate(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
