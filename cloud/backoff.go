package cloud

import "time"

// FailureBackoffTracker refuses new provisioning attempts for a configuration
// during a fixed window following its last failure.
type FailureBackoffTracker struct {
	window time.Duration
	now    func() time.Time
}

func NewFailureBackoffTracker(window time.Duration, now func() time.Time) *FailureBackoffTracker {
	if now == nil {
		now = time.Now
	}
	return &FailureBackoffTracker{window: window, now: now}
}

// InBackoff reports whether the entry failed less than one window ago, and if so
// how long remains until the window expires.
func (t *FailureBackoffTracker) InBackoff(entry *ConfigurationEntry) (bool, time.Duration) {
	elapsed := t.now().Sub(entry.LastFailureAt())
	if elapsed < t.window {
		return true, t.window - elapsed
	}
	return false, 0
}

func (t *FailureBackoffTracker) RecordFailure(entry *ConfigurationEntry) {
	entry.lastFailureAt.Store(t.now().UnixNano())
}
