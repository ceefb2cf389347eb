package cloud

import (
	"fmt"
	"log/slog"
	"time"
)

// RoleLabelResolver returns the label used to provision a role that has no explicit label.
type RoleLabelResolver func(role string) string

type Config struct {
	Name                string                `json:"name"`
	Backend             string                `json:"backend"`
	MaxInstances        int                   `json:"max-instances"`
	RetryTimeout        time.Duration         `json:"retry-timeout"`
	Entries             []*ConfigurationEntry `json:"configurations"`
	DefaultLabelForRole RoleLabelResolver     `json:"-"`
	Logger              *slog.Logger          `json:"-"`
	Clock               func() time.Time      `json:"-"`
}

func Validate(config Config) error {
	if config.Name == "" {
		return fmt.Errorf("name is required")
	}
	if config.MaxInstances < 0 {
		return fmt.Errorf("max-instances must not be negative")
	}
	if config.RetryTimeout < 0 {
		return fmt.Errorf("retry-timeout must not be negative")
	}
	if len(config.Entries) < 1 {
		return fmt.Errorf("at least one configuration is required")
	}

	for i, entry := range config.Entries {
		if entry == nil {
			return fmt.Errorf("configurations[%d] is empty", i)
		}
		if entry.MatchLabel == "" {
			return fmt.Errorf("configurations[%d].label is required", i)
		}
		if len(entry.Requirements) < 1 {
			return fmt.Errorf("configurations[%d].slaves must not be empty", i)
		}
		for j, requirement := range entry.Requirements {
			if requirement.Role == "" {
				return fmt.Errorf("configurations[%d].slaves[%d].role is required", i, j)
			}
			if requirement.Count < 1 {
				return fmt.Errorf("configurations[%d].slaves[%d].count must be greater than 0", i, j)
			}
		}
	}

	return nil
}
