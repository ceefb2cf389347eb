package cloud

import (
	"context"
)

type RetentionPolicy string

const (
	// RetentionDefault leaves the node to its backend's own lifecycle (idle reaping, ...).
	RetentionDefault RetentionPolicy = "default"
	// RetentionAlways keeps the node alive whatever its backend would decide.
	RetentionAlways RetentionPolicy = "always"
)

// Node is anything the registry can track: sub-nodes provided by a backend, and
// the compound nodes assembled from them.
type Node interface {
	Name() string
}

// Retainer is implemented by nodes whose retention policy can be changed.
type Retainer interface {
	SetRetention(policy RetentionPolicy)
}

// Terminator is implemented by nodes that can be terminated through their backend.
// Terminating a node releases its backend resources; it does not deregister it.
type Terminator interface {
	Terminate(ctx context.Context) error
}

// PendingNode is a node a backend has accepted to provision.
type PendingNode struct {
	Name      string
	Node      *Future[Node]
	Executors int
}

type Backend interface {
	Name() string
	// Provision requests count nodes matching label. The returned nodes may still
	// be provisioning; their futures resolve once they are usable or have failed.
	Provision(ctx context.Context, label string, count int) ([]PendingNode, error)
}

// Registry tracks live nodes. Implementations must be safe for concurrent use.
type Registry interface {
	Add(node Node) error
	Get(name string) (Node, bool)
	Remove(node Node) error
	List() []Node
}
