package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/gammadia/compound/backend/internal"
	"github.com/gammadia/compound/cloud"
	"github.com/samber/lo"
)

const Name = "local"

// Backend provisions sub-nodes as containers on the local Docker daemon.
type Backend struct {
	config Config
	docker DockerClient
	log    *slog.Logger

	// Serializes image pulls, so that concurrent sub-nodes do not pull the same image twice
	pullMutex sync.Mutex

	mutex sync.Mutex
	nodes map[string]*Node
}

// Backend implements cloud.Backend
var _ cloud.Backend = (*Backend)(nil)

func New(config Config) (*Backend, error) {
	docker, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to init docker client: %w", err)
	}
	return NewWithClient(config, docker), nil
}

func NewWithClient(config Config, docker DockerClient) *Backend {
	return &Backend{
		config: config,
		docker: docker,
		log:    lo.Ternary(config.Logger != nil, config.Logger, slog.Default()).With("backend", Name),
		nodes:  make(map[string]*Node),
	}
}

func (b *Backend) Name() string {
	return Name
}

func (b *Backend) imageFor(label string) string {
	image, _ := lo.Coalesce(b.config.Images[label], b.config.Image)
	return image
}

// Provision starts count containers for label. The returned nodes resolve once
// their container is running.
func (b *Backend) Provision(ctx context.Context, label string, count int) ([]cloud.PendingNode, error) {
	image := b.imageFor(label)
	if image == "" {
		return nil, fmt.Errorf("no image configured for label '%s'", label)
	}

	return lo.Times(count, func(_ int) cloud.PendingNode {
		node := &Node{
			name:    internal.NodeName(lo.Must(lo.Coalesce(b.config.Prefix, "compound")), label),
			label:   label,
			image:   image,
			backend: b,
		}
		node.log = b.log.With("node", node.name, "image", image)

		return cloud.PendingNode{
			Name: node.name,
			Node: cloud.Go(func() (cloud.Node, error) {
				if err := b.start(ctx, node); err != nil {
					return nil, err
				}
				return node, nil
			}),
			Executors: 1,
		}
	}), nil
}

func (b *Backend) start(ctx context.Context, node *Node) error {
	if err := b.ensureImage(ctx, node.image); err != nil {
		return err
	}

	resp, err := internal.RetryResult(ctx, 3, func() (container.CreateResponse, error) {
		return b.docker.ContainerCreate(
			ctx,
			&container.Config{
				Image: node.image,
				Cmd:   b.config.Command,
				Labels: map[string]string{
					labelKey: node.label,
					nodeKey:  node.name,
				},
			},
			&container.HostConfig{},
			nil,
			nil,
			node.name,
		)
	})
	if err != nil {
		return fmt.Errorf("failed to create container for node '%s': %w", node.name, err)
	}
	node.containerID = resp.ID

	if err := internal.Retry(ctx, 3, func() error {
		return b.docker.ContainerStart(ctx, resp.ID, container.StartOptions{})
	}); err != nil {
		// Uses context.Background() so the container is removed even if ctx is cancelled
		if removeErr := b.docker.ContainerRemove(context.Background(), resp.ID, container.RemoveOptions{RemoveVolumes: true, Force: true}); removeErr != nil {
			node.log.Warn("Failed to remove container", "error", removeErr)
		}
		return fmt.Errorf("failed to start container for node '%s': %w", node.name, err)
	}

	b.mutex.Lock()
	b.nodes[node.name] = node
	b.mutex.Unlock()

	node.log.Info("Container started", "container", resp.ID)
	return nil
}

func (b *Backend) ensureImage(ctx context.Context, ref string) error {
	b.pullMutex.Lock()
	defer b.pullMutex.Unlock()

	list, err := internal.RetryResult(ctx, 3, func() ([]image.Summary, error) {
		return b.docker.ImageList(ctx, image.ListOptions{
			Filters: filters.NewArgs(filters.Arg("reference", ref)),
		})
	})
	if err != nil {
		return fmt.Errorf("failed to list docker images: %w", err)
	}
	if len(list) > 0 {
		return nil
	}

	b.log.Debug("Pulling image", "image", ref)
	reader, err := internal.RetryResult(ctx, 4, func() (io.ReadCloser, error) {
		return b.docker.ImagePull(ctx, ref, image.PullOptions{})
	})
	if err != nil {
		return fmt.Errorf("failed to pull docker image '%s': %w", ref, err)
	}
	defer reader.Close()

	// The pull completes once its progress stream is drained
	if _, err := io.Copy(io.Discard, reader); err != nil {
		return fmt.Errorf("failed to pull docker image '%s': %w", ref, err)
	}
	return nil
}

func (b *Backend) forget(node *Node) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	delete(b.nodes, node.name)
}

// Nodes returns the running sub-nodes.
func (b *Backend) Nodes() []*Node {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return lo.Values(b.nodes)
}

// Shutdown terminates every running sub-node that is not retained by the cloud.
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
