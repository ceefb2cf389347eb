package cloud

import "sync/atomic"

// NodeCounter hands out the sequence numbers used in compound node names.
type NodeCounter struct {
	n atomic.Int64
}

func NewNodeCounter(seed int64) *NodeCounter {
	c := &NodeCounter{}
	c.n.Store(seed)
	return c
}

func (c *NodeCounter) Next() int64 {
	return c.n.Add(1)
}

func (c *NodeCounter) Current() int64 {
	return c.n.Load()
}
