package cloudfile

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/gammadia/compound/cloud"
	"github.com/samber/lo"
)

const CloudfileVersion = "1"

var Backends = []string{"local", "openstack"}

// DefaultRetryTimeout applies when the cloudfile does not set retry-timeout.
const DefaultRetryTimeout = 1 * time.Minute

type Cloudfile struct {
	Version        string                      `yaml:"version"`
	Name           string                      `yaml:"name,omitempty"`
	Backend        string                      `yaml:"backend,omitempty"`
	MaxInstances   int                         `yaml:"max-instances,omitempty"`
	RetryTimeout   string                      `yaml:"retry-timeout,omitempty"`
	Roles          map[string]string           `yaml:"roles,omitempty"`
	Configurations []*cloud.ConfigurationEntry `yaml:"configurations"`
}

var nameRegex = regexp.MustCompile(`^[a-z][a-z0-9_-]+$`)
var roleRegex = regexp.MustCompile(`^[a-z][a-z0-9_-]*$`)

func (cloudfile Cloudfile) Validate() error {
	if cloudfile.Version != CloudfileVersion {
		return fmt.Errorf("unsupported version '%s'", cloudfile.Version)
	}

	if cloudfile.Name != "" && !nameRegex.MatchString(cloudfile.Name) {
		return fmt.Errorf("name must be a valid identifier")
	}

	if cloudfile.Backend != "" && !lo.Contains(Backends, cloudfile.Backend) {
		return fmt.Errorf("backend must be one of %v", Backends)
	}

	if _, err := parseRetryTimeout(cloudfile.RetryTimeout); err != nil {
		return fmt.Errorf("retry-timeout must be a duration or a number of seconds")
	}

	for role, label := range cloudfile.Roles {
		if !roleRegex.MatchString(role) {
			return fmt.Errorf("roles[%s] must be a valid identifier", role)
		}
		if label == "" {
			return fmt.Errorf("roles[%s] must not be empty", role)
		}
	}

	// Roles without an explicit label must have a default one
	for i, entry := range cloudfile.Configurations {
		if entry == nil {
			continue
		}
		for j, requirement := range entry.Requirements {
			if requirement.Label == "" && requirement.Role != "" && cloudfile.Roles[requirement.Role] == "" {
				return fmt.Errorf("configurations[%d].slaves[%d].label is required, role '%s' has no default label", i, j, requirement.Role)
			}
		}
	}

	// The name is checked above, callers provide a default one
	return cloud.Validate(cloudfile.Config("default"))
}

// parseRetryTimeout accepts Go durations ("5m") and plain numbers of seconds ("300").
func parseRetryTimeout(value string) (time.Duration, error) {
	if value == "" {
		return DefaultRetryTimeout, nil
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second, nil
	}
	return time.ParseDuration(value)
}

// Config converts the cloudfile to a cloud configuration. defaultName is used
// when the cloudfile has no name.
func (cloudfile Cloudfile) Config(defaultName string) cloud.Config {
	retryTimeout, _ := parseRetryTimeout(cloudfile.RetryTimeout)
	name, _ := lo.Coalesce(cloudfile.Name, defaultName)

	return cloud.Config{
		Name:         name,
		Backend:      cloudfile.Backend,
		MaxInstances: cloudfile.MaxInstances,
		RetryTimeout: retryTimeout,
		Entries:      cloudfile.Configurations,
		DefaultLabelForRole: func(role string) string {
			return cloudfile.Roles[role]
		},
	}
}
