// Package registry keeps track of the nodes known to the host.
package registry

import (
	"fmt"
	"sync"

	"github.com/gammadia/compound/cloud"
	"github.com/samber/lo"
)

// Registry is an in-memory node registry, safe for concurrent use.
type Registry struct {
	mutex sync.RWMutex
	nodes map[string]cloud.Node
}

// Registry implements cloud.Registry
var _ cloud.Registry = (*Registry)(nil)

func New() *Registry {
	return &Registry{nodes: make(map[string]cloud.Node)}
}

func (r *Registry) Add(node cloud.Node) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, ok := r.nodes[node.Name()]; ok {
		return fmt.Errorf("node '%s' is already registered", node.Name())
	}
	r.nodes[node.Name()] = node
	return nil
}

func (r *Registry) Get(name string) (cloud.Node, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	node, ok := r.nodes[name]
	return node, ok
}

func (r *Registry) Remove(node cloud.Node) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, ok := r.nodes[node.Name()]; !ok {
		return fmt.Errorf("node '%s' is not registered", node.Name())
	}
	delete(r.nodes, node.Name())
	return nil
}

func (r *Registry) List() []cloud.Node {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	return lo.Values(r.nodes)
}

func (r *Registry) Len() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	return len(r.nodes)
}
