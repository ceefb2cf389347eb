package openstack

import (
	"log/slog"
	"time"

	"github.com/gophercloud/gophercloud/openstack/compute/v2/servers"
)

type Config struct {
	Logger *slog.Logger
	// Prefix of the server names
	Prefix string

	Image          string
	Images         map[string]string
	Flavor         string
	Flavors        map[string]string
	Networks       []servers.Network
	SecurityGroups []string
	// Name of an existing keypair injected into the servers
	KeyName string

	// How long a server may take to become active
	ReadyTimeout time.Duration
	// How often the server status is polled while waiting
	PollInterval time.Duration
}

const (
	defaultReadyTimeout = 2 * time.Minute
	defaultPollInterval = 5 * time.Second
)
