package main

import (
	"github.com/gammadia/compound/cli/ui"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Shows the evaluated cloudfile",
	Args:  cobra.NoArgs,

	RunE: func(cmd *cobra.Command, args []string) error {
		cf, err := readCloudfile(cmd)
		if err != nil {
			return err
		}

		cmd.Println(ui.SectionHeaderColor.Sprint("  Cloudfile  "))
		return yaml.NewEncoder(cmd.OutOrStdout()).Encode(cf)
	},
}
