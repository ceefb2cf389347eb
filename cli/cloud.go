package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/gammadia/compound/backend/local"
	"github.com/gammadia/compound/backend/openstack"
	"github.com/gammadia/compound/cli/cloudfile"
	"github.com/gammadia/compound/cli/flags"
	"github.com/gammadia/compound/cli/log"
	"github.com/gammadia/compound/cloud"
	"github.com/gammadia/compound/namegen"
	"github.com/gophercloud/gophercloud/openstack/compute/v2/servers"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// reclaimer is implemented by backends that can release the sub-nodes they still hold.
type reclaimer interface {
	Shutdown(ctx context.Context) error
}

func readCloudfile(cmd *cobra.Command) (*cloudfile.Cloudfile, error) {
	file := viper.GetString(flags.Cloudfile)
	cf, err := cloudfile.Read(file, cloudfile.ReadOptions{
		Params: parseParams(lo.Must(cmd.Flags().GetStringArray("param"))),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read cloudfile '%s': %w", file, err)
	}

	if cf.Name == "" {
		cf.Name = namegen.CloudName()
	}
	if cf.Backend == "" {
		cf.Backend = lo.Must(lo.Coalesce(viper.GetString(flags.Backend), local.Name))
	}

	log.Debug("Cloudfile read", "file", file, "name", cf.Name, "backend", cf.Backend)
	return cf, nil
}

// parseParams turns KEY=VALUE items into template parameters. An item without
// '=' sets an empty value; later items win.
func parseParams(items []string) map[string]string {
	return lo.SliceToMap(items, func(item string) (key, value string) {
		key, value, _ = strings.Cut(item, "=")
		return
	})
}

func cloudConfig(cf *cloudfile.Cloudfile) cloud.Config {
	config := cf.Config(cf.Name)
	config.Logger = log.Component("cloud")
	return config
}

func createBackend(name string) (cloud.Backend, error) {
	logger := log.Component("backend")
	switch name {
	case local.Name:
		config := local.Config{
			Logger:  logger,
			Image:   viper.GetString(flags.LocalImage),
			Images:  viper.GetStringMapString(flags.LocalImages),
			Command: viper.GetStringSlice(flags.LocalCommand),
		}
		logger.Debug("Backend config", "backend", name, "image", config.Image, "command", config.Command)
		backend, err := local.New(config)
		if err != nil {
			return nil, err
		}
		return backend, nil

	case openstack.Name:
		config := openstack.Config{
			Logger:  logger,
			Image:   viper.GetString(flags.OpenstackImage),
			Images:  viper.GetStringMapString(flags.OpenstackImages),
			Flavor:  viper.GetString(flags.OpenstackFlavor),
			Flavors: viper.GetStringMapString(flags.OpenstackFlavors),
			Networks: lo.Map(
				viper.GetStringSlice(flags.OpenstackNetworks),
				func(s string, _ int) servers.Network {
					return servers.Network{UUID: s}
				},
			),
			SecurityGroups: viper.GetStringSlice(flags.OpenstackSecurityGroups),
			KeyName:        viper.GetString(flags.OpenstackKeyName),
			ReadyTimeout:   viper.GetDuration(flags.OpenstackReadyTimeout),
		}
		logger.Debug("Backend config", "backend", name, "image", config.Image, "flavor", config.Flavor)
		backend, err := openstack.New(config)
		if err != nil {
			return nil, err
		}
		return backend, nil

	default:
		return nil, fmt.Errorf("unknown backend '%s'", name)
	}
}
