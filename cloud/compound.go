package cloud

import (
	"context"
	"fmt"

	"github.com/samber/lo"
)

// SubNodeResult pairs an acquired sub-node with the role it was acquired for.
type SubNodeResult struct {
	Node string
	Role string
}

func (r SubNodeResult) String() string {
	return fmt.Sprintf("%s(%s)", r.Node, r.Role)
}

// CompoundNode is a single-use node made of sub-nodes, grouped by role.
type CompoundNode struct {
	name        string
	description string
	label       string
	cloud       string

	roles map[string][]string
	order []string
}

// CompoundNode implements Node
var _ Node = (*CompoundNode)(nil)

func newCompoundNode(name, label, cloud string, results []*SubNodeResult) *CompoundNode {
	node := &CompoundNode{
		name:        name,
		description: fmt.Sprintf("Dynamically-created compound node for label %s", label),
		label:       label,
		cloud:       cloud,
		roles:       make(map[string][]string),
	}

	for _, result := range results {
		if _, ok := node.roles[result.Role]; !ok {
			node.order = append(node.order, result.Role)
		}
		node.roles[result.Role] = append(node.roles[result.Role], result.Node)
	}

	return node
}

func (n *CompoundNode) Name() string { return n.name }
func (n *CompoundNode) Description() string { return n.description }
func (n *CompoundNode) Label() string { return n.label }
func (n *CompoundNode) Cloud() string { return n.cloud }

// Executors is always 1: compound nodes are single-use.
func (n *CompoundNode) Executors() int { return 1 }

// Roles returns the roles of the node, in declaration order.
func (n *CompoundNode) Roles() []string {
	return append([]string(nil), n.order...)
}

// SubNodes returns the names of the sub-nodes acquired for role.
func (n *CompoundNode) SubNodes(role string) []string {
	return append([]string(nil), n.roles[role]...)
}

// Mapping returns a copy of the role to sub-node names mapping.
func (n *CompoundNode) Mapping() map[string][]string {
	return lo.MapValues(n.roles, func(nodes []string, _ string) []string {
		return append([]string(nil), nodes...)
	})
}

// Results flattens the node back into the sub-node results it was built from.
func (n *CompoundNode) Results() []*SubNodeResult {
	var results []*SubNodeResult
	for _, role := range n.order {
		for _, node := range n.roles[role] {
			results = append(results, &SubNodeResult{Node: node, Role: role})
		}
	}
	return results
}

// PlannedNode is a compound node being assembled.
type PlannedNode struct {
	Name     string
	Capacity int

	future *Future[*CompoundNode]
}

// Wait blocks until the node is assembled, its assembly failed, or ctx is done.
func (p *PlannedNode) Wait(ctx context.Context) (*CompoundNode, error) {
	return p.future.Get(ctx)
}

func (p *PlannedNode) Done() <-chan struct{} {
	return p.future.Done()
}
