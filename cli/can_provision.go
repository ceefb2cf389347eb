package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/gammadia/compound/cloud"
	"github.com/gammadia/compound/registry"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

var canProvisionCmd = &cobra.Command{
	Use:   "can-provision LABEL...",
	Short: "Tells whether the cloud can provision compound nodes for label expressions",
	Args:  cobra.MinimumNArgs(1),

	RunE: func(cmd *cobra.Command, args []string) error {
		cf, err := readCloudfile(cmd)
		if err != nil {
			return err
		}

		// No backend is needed to match labels
		c, err := cloud.New(cloudConfig(cf), nil, registry.New())
		if err != nil {
			return err
		}

		refused := lo.Filter(args, func(requested string, _ int) bool {
			if c.CanProvision(requested) {
				cmd.Printf("%s %s\n", color.HiGreenString("✓"), requested)
				return false
			}
			cmd.Printf("%s %s\n", color.HiRedString("✗"), requested)
			return true
		})

		if len(refused) > 0 {
			return fmt.Errorf("cloud '%s' cannot provision %d of %d labels", c.Name(), len(refused), len(args))
		}
		return nil
	},
}
