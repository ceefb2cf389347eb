package cloud

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gammadia/compound/label"
	"github.com/samber/lo"
)

// Cloud provisions compound nodes by delegating the provisioning of their
// sub-nodes to a backend.
type Cloud struct {
	config   Config
	backend  Backend
	registry Registry
	log      *slog.Logger

	counter  *NodeCounter
	backoff  *FailureBackoffTracker
	cleaner  *Cleaner
	subNodes *subNodeProvisioner

	inFlight atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(config Config, backend Backend, registry Registry) (*Cloud, error) {
	return newCloud(config, backend, registry, 0)
}

func newCloud(config Config, backend Backend, registry Registry, seed int64) (*Cloud, error) {
	if err := Validate(config); err != nil {
		return nil, fmt.Errorf("invalid cloud config: %w", err)
	}

	logger := lo.Ternary(config.Logger != nil, config.Logger, slog.Default()).With("cloud", config.Name)
	cleaner := NewCleaner(registry, logger)
	ctx, cancel := context.WithCancel(context.Background())

	c := &Cloud{
		config:   config,
		backend:  backend,
		registry: registry,
		log:      logger,

		counter: NewNodeCounter(seed),
		backoff: NewFailureBackoffTracker(config.RetryTimeout, config.Clock),
		cleaner: cleaner,

		ctx:    ctx,
		cancel: cancel,
	}
	c.subNodes = &subNodeProvisioner{
		backend:      backend,
		registry:     registry,
		cleaner:      cleaner,
		defaultLabel: config.DefaultLabelForRole,
		releases:     &c.wg,
	}
	return c, nil
}

// Reconfigure returns a new cloud using config, the same backend and the same
// registry. When the name is unchanged, the node counter carries over so that
// node names stay unique. This is best-effort: nodes planned by the receiver
// after the call may reuse numbers.
func (c *Cloud) Reconfigure(config Config) (*Cloud, error) {
	seed := int64(0)
	if config.Name == c.config.Name {
		seed = c.counter.Current()
	}
	return newCloud(config, c.backend, c.registry, seed)
}

func (c *Cloud) Name() string { return c.config.Name }
func (c *Cloud) Backend() string { return c.config.Backend }
func (c *Cloud) Configuration() []*ConfigurationEntry { return c.config.Entries }
func (c *Cloud) RetryTimeout() time.Duration { return c.config.RetryTimeout }
func (c *Cloud) NodesProvisioned() int64 { return c.counter.Current() }

// CanProvision reports whether some configuration matches the requested label.
func (c *Cloud) CanProvision(requested string) bool {
	expr, err := label.Parse(requested)
	if err != nil {
		return false
	}
	return c.match(expr) != nil
}

func (c *Cloud) match(expr label.Expression) *ConfigurationEntry {
	// First match wins, in declaration order
	entry, _ := lo.Find(c.config.Entries, func(entry *ConfigurationEntry) bool {
		return entry.Matches(expr)
	})
	return entry
}

// registered counts the compound nodes of this cloud known to the registry.
func (c *Cloud) registered() int {
	return lo.CountBy(c.registry.List(), func(node Node) bool {
		compound, ok := node.(*CompoundNode)
		return ok && compound.Cloud() == c.config.Name
	})
}

// reserve claims an in-flight slot. It fails when the registered and in-flight
// compound nodes have reached the instance cap.
func (c *Cloud) reserve() error {
	for {
		inFlight := c.inFlight.Load()
		if c.config.MaxInstances > 0 {
			// A node being registered may be counted twice, never zero times
			if instances := c.registered() + int(inFlight); instances >= c.config.MaxInstances {
				return fmt.Errorf("%w (%d/%d)", ErrCapacityReached, instances, c.config.MaxInstances)
			}
		}
		if c.inFlight.CompareAndSwap(inFlight, inFlight+1) {
			return nil
		}
	}
}

// Provision plans a compound node for the requested label. Refusals are logged
// and result in no planned node.
func (c *Cloud) Provision(requested string, excessWorkload int) []*PlannedNode {
	planned, err := c.Plan(requested, excessWorkload)
	if err != nil {
		c.log.Warn("Not provisioning compound node", "label", requested, "error", err)
		return nil
	}
	if planned == nil {
		return nil
	}
	return []*PlannedNode{planned}
}

// Plan is like Provision but returns the reason a node was not planned.
// It returns nil and no error when there is no excess workload.
func (c *Cloud) Plan(requested string, excessWorkload int) (*PlannedNode, error) {
	if c.ctx.Err() != nil {
		return nil, ErrShutdown
	}
	if excessWorkload < 1 {
		c.log.Debug("No excess workload, nothing to provision", "label", requested)
		return nil, nil
	}

	expr, err := label.Parse(requested)
	if err != nil {
		return nil, fmt.Errorf("%w for label '%s': %w", ErrNoMatchingConfiguration, requested, err)
	}

	entry := c.match(expr)
	if entry == nil {
		return nil, fmt.Errorf("%w for label '%s'", ErrNoMatchingConfiguration, requested)
	}

	if err := c.reserve(); err != nil {
		return nil, err
	}

	if inBackoff, remaining := c.backoff.InBackoff(entry); inBackoff {
		c.inFlight.Add(-1)
		return nil, fmt.Errorf("%w, will wait until timeout of %s to retry (%s left)", ErrConfigInBackoff, c.config.RetryTimeout, remaining.Round(time.Second))
	}

	number := c.counter.Next()
	name := fmt.Sprintf("%s-%s_%d", c.config.Name, entry.MatchLabel, number)

	c.wg.Add(1)
	future := Go(func() (*CompoundNode, error) {
		defer c.wg.Done()
		defer c.inFlight.Add(-1)

		node, err := c.assemble(entry, requested, name)
		if err != nil {
			c.backoff.RecordFailure(entry)
			return nil, err
		}
		return node, nil
	})

	// Compound nodes are single-use
	return &PlannedNode{Name: name, Capacity: 1, future: future}, nil
}

type requirementOutcome struct {
	index   int
	results []*SubNodeResult
	err     error
}

func (c *Cloud) assemble(entry *ConfigurationEntry, requested, name string) (*CompoundNode, error) {
	log := c.log.With("node", name, "configuration", entry.MatchLabel)
	log.Info("Starting provisioning of compound node", "sub-nodes", entry.TotalCount())

	outcomes := make(chan requirementOutcome, len(entry.Requirements))
	for i, requirement := range entry.Requirements {
		go func() {
			results, err := c.subNodes.acquire(c.ctx, log, requirement)
			outcomes <- requirementOutcome{index: i, results: results, err: err}
		}()
	}

	// Wait for every role before deciding anything, late successes must not be orphaned
	grouped := make([][]*SubNodeResult, len(entry.Requirements))
	errs := make([]error, len(entry.Requirements))
	for range entry.Requirements {
		outcome := <-outcomes
		grouped[outcome.index] = outcome.results
		errs[outcome.index] = outcome.err
		if outcome.err != nil {
			log.Error("Sub-node provisioning failed", "error", outcome.err)
		}
	}

	results := lo.Flatten(grouped)
	errs = lo.Filter(errs, func(err error, _ int) bool { return err != nil })

	if len(errs) == 0 {
		node := newCompoundNode(name, entry.MatchLabel, c.config.Name, results)
		if err := c.registry.Add(node); err != nil {
			errs = append(errs, fmt.Errorf("%w '%s': %w", ErrRegistryAdd, name, err))
		} else {
			// From now on, sub-nodes follow their own lifecycle
			c.resetRetention(results)
			log.Info("Compound node online", "roles", node.Mapping())
			return node, nil
		}
	}

	log.Error("Deployment failed, cleaning up", "acquired", len(results))
	c.cleaner.Cleanup(c.ctx, results)

	return nil, &AssemblyError{
		Node:          name,
		Label:         requested,
		Configuration: entry.MatchLabel,
		Errs:          errs,
	}
}

func (c *Cloud) resetRetention(results []*SubNodeResult) {
	for _, result := range results {
		node, ok := c.registry.Get(result.Node)
		if !ok {
			continue
		}
		if retainer, ok := node.(Retainer); ok {
			retainer.SetRetention(RetentionDefault)
		}
	}
}

// Shutdown stops the cloud from planning new nodes. Assemblies in progress stop
// waiting for their sub-nodes and roll back.
func (c *Cloud) Shutdown() {
	c.cancel()
}

// Wait blocks until every assembly in progress has completed, and every sub-node
// it stopped waiting for has come up and been terminated, or failed.
func (c *Cloud) Wait() {
	c.wg.Wait()
}
