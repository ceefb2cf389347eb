package cloud

import (
	"sync/atomic"
	"time"

	"github.com/gammadia/compound/label"
)

// SlaveRequirement describes the sub-nodes needed for one role of a compound node.
type SlaveRequirement struct {
	Role string `json:"role" yaml:"role"`
	// Label used to provision the sub-nodes; the role default is used when empty.
	Label string `json:"label,omitempty" yaml:"label,omitempty"`
	Count int    `json:"count" yaml:"count"`
}

// ConfigurationEntry is one deployable kind of compound node.
type ConfigurationEntry struct {
	MatchLabel   string             `json:"label" yaml:"label"`
	Requirements []SlaveRequirement `json:"slaves" yaml:"slaves"`

	// unix nanoseconds, updated without locking: a lost update only shifts one backoff window
	lastFailureAt atomic.Int64
}

func NewConfigurationEntry(matchLabel string, requirements ...SlaveRequirement) *ConfigurationEntry {
	return &ConfigurationEntry{
		MatchLabel:   matchLabel,
		Requirements: requirements,
	}
}

// Matches reports whether the requested label expression is satisfied by this entry's label.
func (e *ConfigurationEntry) Matches(expr label.Expression) bool {
	return expr.Matches(e.MatchLabel)
}

// LastFailureAt returns the zero time if provisioning never failed.
func (e *ConfigurationEntry) LastFailureAt() time.Time {
	nanos := e.lastFailureAt.Load()
	if nanos == 0 {
		return time.Time{}
	}
	return time.Unix(0, nanos)
}

// TotalCount is the number of sub-nodes a compound node of this kind is made of.
func (e *ConfigurationEntry) TotalCount() int {
	total := 0
	for _, requirement := range e.Requirements {
		total += requirement.Count
	}
	return total
}
