package cloud

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/samber/lo"
)

var silentLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// --- Mock node ---

type mockNode struct {
	name string

	mu           sync.Mutex
	retentions   []RetentionPolicy
	terminated   bool
	terminateErr error
}

func newMockNode(name string) *mockNode {
	return &mockNode{name: name}
}

func (n *mockNode) Name() string { return n.name }

func (n *mockNode) SetRetention(policy RetentionPolicy) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.retentions = append(n.retentions, policy)
}

func (n *mockNode) Terminate(context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.terminated = true
	return n.terminateErr
}

func (n *mockNode) isTerminated() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.terminated
}

func (n *mockNode) getRetentions() []RetentionPolicy {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]RetentionPolicy(nil), n.retentions...)
}

// plainNode has no optional capability.
type plainNode struct{ name string }

func (n plainNode) Name() string { return n.name }

// --- Mock backend ---

type mockBackend struct {
	// provisionFunc overrides the default behavior, which is to return one ready node.
	provisionFunc func(ctx context.Context, label string, call int) ([]PendingNode, error)

	mu    sync.Mutex
	calls []string
	nodes map[string]*mockNode
}

func newMockBackend() *mockBackend {
	return &mockBackend{nodes: make(map[string]*mockNode)}
}

func (b *mockBackend) Name() string { return "mock" }

func (b *mockBackend) Provision(ctx context.Context, label string, count int) ([]PendingNode, error) {
	if count != 1 {
		return nil, fmt.Errorf("unexpected count %d", count)
	}

	b.mu.Lock()
	b.calls = append(b.calls, label)
	call := len(b.calls)
	b.mu.Unlock()

	if b.provisionFunc != nil {
		return b.provisionFunc(ctx, label, call)
	}
	return []PendingNode{b.ready(label, call)}, nil
}

// newNode creates a node and remembers it for later assertions.
func (b *mockBackend) newNode(label string, call int) *mockNode {
	node := newMockNode(fmt.Sprintf("%s-%d", label, call))
	b.mu.Lock()
	b.nodes[node.name] = node
	b.mu.Unlock()
	return node
}

func (b *mockBackend) ready(label string, call int) PendingNode {
	node := b.newNode(label, call)
	return PendingNode{Name: node.name, Node: Resolved[Node](node, nil), Executors: 1}
}

func (b *mockBackend) failed(label string, call int) PendingNode {
	name := fmt.Sprintf("%s-%d", label, call)
	return PendingNode{Name: name, Node: Resolved[Node](nil, errors.New("quota exceeded")), Executors: 1}
}

func (b *mockBackend) getCalls() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.calls...)
}

func (b *mockBackend) getNodes() []*mockNode {
	b.mu.Lock()
	defer b.mu.Unlock()
	return lo.Values(b.nodes)
}

func (b *mockBackend) getNode(name string) *mockNode {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.nodes[name]
}

// --- Mock registry ---

type mockRegistry struct {
	addFunc func(node Node) error

	mu      sync.Mutex
	nodes   map[string]Node
	removed []string
}

func newMockRegistry() *mockRegistry {
	return &mockRegistry{nodes: make(map[string]Node)}
}

func (r *mockRegistry) Add(node Node) error {
	if r.addFunc != nil {
		if err := r.addFunc(node); err != nil {
			return err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nodes[node.Name()] = node
	return nil
}

func (r *mockRegistry) Get(name string) (Node, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	node, ok := r.nodes[name]
	return node, ok
}

func (r *mockRegistry) Remove(node Node) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.nodes, node.Name())
	r.removed = append(r.removed, node.Name())
	return nil
}

func (r *mockRegistry) List() []Node {
	r.mu.Lock()
	defer r.mu.Unlock()
	return lo.Values(r.nodes)
}

func (r *mockRegistry) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return lo.Keys(r.nodes)
}

func (r *mockRegistry) getRemoved() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.removed...)
}

// --- Clock ---

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// --- Helpers ---

func newTestConfig(clock *testClock, entries ...*ConfigurationEntry) Config {
	return Config{
		Name:         "test",
		Backend:      "mock",
		RetryTimeout: 5 * time.Minute,
		Entries:      entries,
		DefaultLabelForRole: func(role string) string {
			return "default-" + role
		},
		Logger: silentLogger,
		Clock:  clock.Now,
	}
}

func waitPlanned(t *testing.T, planned *PlannedNode) (*CompoundNode, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	node, err := planned.Wait(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("timed out waiting for planned node '%s'", planned.Name)
	}
	return node, err
}
