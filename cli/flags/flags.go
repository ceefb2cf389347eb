package flags

import (
	"strings"
	"time"

	"github.com/samber/lo"
	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	LogFormat   = "log-format"
	LogLevel    = "log-level"
	LogSource   = "log-source"
	Cloudfile   = "cloudfile"
	Backend     = "backend"
	WaitTimeout = "wait-timeout"

	LocalImage   = "local-image"
	LocalImages  = "local-images"
	LocalCommand = "local-command"

	OpenstackImage          = "openstack-image"
	OpenstackImages         = "openstack-images"
	OpenstackFlavor         = "openstack-flavor"
	OpenstackFlavors        = "openstack-flavors"
	OpenstackNetworks       = "openstack-networks"
	OpenstackSecurityGroups = "openstack-security-groups"
	OpenstackKeyName        = "openstack-key-name"
	OpenstackReadyTimeout   = "openstack-ready-timeout"
)

// Register defines the global flags on flags and binds them into viper, so that
// every flag can also be set with a COMPOUND_ environment variable.
func Register(flags *flag.FlagSet) {
	// Compound
	flags.String(LogFormat, "text", "log format (json, text)")
	flags.String(LogLevel, "WARN", "minimum log level")
	flags.Bool(LogSource, false, "add source code location to logs")
	flags.StringP(Cloudfile, "f", "cloudfile.yaml", "cloud configuration file")
	flags.String(Backend, "", "backend to use when the cloudfile has none (local, openstack)")
	flags.Duration(WaitTimeout, 10*time.Minute, "how long to wait for a compound node to be assembled")

	// Local
	flags.String(LocalImage, "ubuntu:24.04", "image of the containers for labels without a specific image")
	flags.StringToString(LocalImages, nil, "images of the containers per label (LABEL=IMAGE)")
	flags.StringSlice(LocalCommand, []string{"sleep", "infinity"}, "command run by the containers")

	// Openstack
	flags.String(OpenstackImage, "", "image to use for provisioning")
	flags.StringToString(OpenstackImages, nil, "images per label (LABEL=IMAGE)")
	flags.String(OpenstackFlavor, "", "flavor to use for provisioning")
	flags.StringToString(OpenstackFlavors, nil, "flavors per label (LABEL=FLAVOR)")
	flags.StringSlice(OpenstackNetworks, nil, "networks attached to the nodes")
	flags.StringSlice(OpenstackSecurityGroups, nil, "security groups defined for the nodes")
	flags.String(OpenstackKeyName, "", "existing keypair injected into the nodes")
	flags.Duration(OpenstackReadyTimeout, 2*time.Minute, "how long a node may take to become active")

	// Init
	viper.SetEnvPrefix("compound")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	lo.Must0(viper.BindPFlags(flags))
}
