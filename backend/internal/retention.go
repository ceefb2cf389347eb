package internal

import (
	"sync/atomic"

	"github.com/gammadia/compound/cloud"
)

// Retention holds the retention policy of a sub-node. The zero value is
// cloud.RetentionDefault. Embed it to implement cloud.Retainer.
type Retention struct {
	policy atomic.Value
}

func (r *Retention) SetRetention(policy cloud.RetentionPolicy) {
	r.policy.Store(policy)
}

func (r *Retention) Retention() cloud.RetentionPolicy {
	if policy, ok := r.policy.Load().(cloud.RetentionPolicy); ok {
		return policy
	}
	return cloud.RetentionDefault
}

// Reclaimable reports whether the backend may terminate the node on its own.
// Nodes retained by the cloud are cleaned up by the cloud.
func (r *Retention) Reclaimable() bool {
	return r.Retention() != cloud.RetentionAlways
}
