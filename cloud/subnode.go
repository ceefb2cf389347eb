package cloud

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/samber/lo"
)

// subNodeProvisioner acquires the sub-nodes of a single role.
type subNodeProvisioner struct {
	backend      Backend
	registry     Registry
	cleaner      *Cleaner
	defaultLabel RoleLabelResolver

	// releases tracks the nodes that are terminated once ready
	releases *sync.WaitGroup
}

func (p *subNodeProvisioner) labelFor(requirement SlaveRequirement) string {
	if requirement.Label != "" {
		return requirement.Label
	}
	if p.defaultLabel == nil {
		return ""
	}
	return p.defaultLabel(requirement.Role)
}

// acquire provisions requirement.Count nodes and registers them. Either every
// node is acquired, or the ones that were are cleaned up and an error is returned.
func (p *subNodeProvisioner) acquire(ctx context.Context, log *slog.Logger, requirement SlaveRequirement) ([]*SubNodeResult, error) {
	label := p.labelFor(requirement)
	log = log.With("role", requirement.Role, "label", label)

	if label == "" {
		return nil, &RequirementError{
			Role:      requirement.Role,
			Requested: requirement.Count,
			Err:       ErrNoLabelForRole,
		}
	}

	// Nil entries mark failed slots
	var results []*SubNodeResult

	// One node per call, the backend is free to provision them concurrently
	var pending []PendingNode
	for i := 0; i < requirement.Count; i++ {
		nodes, err := p.backend.Provision(ctx, label, 1)
		if err != nil {
			log.Error("Backend refused to provision node", "error", err)
			results = append(results, nil)
			continue
		}
		pending = append(pending, nodes...)
	}

	for _, pendingNode := range pending {
		results = append(results, p.await(ctx, log, requirement.Role, pendingNode))
	}

	acquired := lo.Filter(results, func(result *SubNodeResult, _ int) bool {
		return result != nil
	})

	var err error
	if len(acquired) != len(results) {
		err = ErrSubProvisionPartialFailure
	} else if len(acquired) != requirement.Count {
		log.Warn("Backend failed to fulfill request", "requested", requirement.Count, "provisioned", len(acquired))
		err = ErrSubProvisionCountMismatch
	}

	if err != nil {
		log.Warn("Provisioning failed, cleaning up", "acquired", len(acquired))
		p.cleaner.Cleanup(ctx, acquired)
		return nil, &RequirementError{
			Label:     label,
			Role:      requirement.Role,
			Requested: requirement.Count,
			Acquired:  len(acquired),
			Err:       err,
		}
	}

	return acquired, nil
}

// await waits for a pending node and registers it. It returns nil if the node
// could not be acquired.
func (p *subNodeProvisioner) await(ctx context.Context, log *slog.Logger, role string, pending PendingNode) *SubNodeResult {
	node, err := pending.Node.Get(ctx)
	if err != nil {
		if ctx.Err() != nil {
			log.Error("Interrupted while waiting for node", "node", pending.Name, "error", err)
			p.releases.Add(1)
			go func() {
				defer p.releases.Done()
				p.terminateWhenReady(pending)
			}()
		} else {
			log.Error("Provisioning failed", "node", pending.Name, "error", err)
		}
		return nil
	}

	// Keep the backend from reclaiming the node until the compound node is assembled
	if retainer, ok := node.(Retainer); ok {
		retainer.SetRetention(RetentionAlways)
	}

	if err := p.registry.Add(node); err != nil {
		log.Error("Failed to add node to registry", "node", node.Name(), "error", fmt.Errorf("%w: %w", ErrRegistryAdd, err))
		// The cleaner only knows about registered nodes
		p.terminate(log, node)
		return nil
	}

	log.Debug("Sub-node online", "node", node.Name())
	return &SubNodeResult{Node: node.Name(), Role: role}
}

// terminateWhenReady releases a node we stopped waiting for, should it come up anyway.
func (p *subNodeProvisioner) terminateWhenReady(pending PendingNode) {
	node, err := pending.Node.Get(context.Background())
	if err != nil {
		return
	}
	p.terminate(p.cleaner.log, node)
}

func (p *subNodeProvisioner) terminate(log *slog.Logger, node Node) {
	terminator, ok := node.(Terminator)
	if !ok {
		return
	}
	if err := terminator.Terminate(context.Background()); err != nil {
		log.Warn("Failed to terminate node", "node", node.Name(), "error", err)
	}
}
