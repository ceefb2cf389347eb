package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/gammadia/compound/cli/flags"
	"github.com/gammadia/compound/cli/log"
	"github.com/gammadia/compound/cli/ui"
	"github.com/gammadia/compound/cloud"
	"github.com/gammadia/compound/registry"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var provisionCmd = &cobra.Command{
	Use:   "provision LABEL",
	Short: "Provisions a compound node for a label expression",
	Args:  cobra.ExactArgs(1),

	RunE: func(cmd *cobra.Command, args []string) error {
		requested := args[0]

		spinner := ui.NewSpinner("Reading cloudfile")
		cf, err := readCloudfile(cmd)
		if err != nil {
			spinner.Fail()
			return err
		}
		backend, err := createBackend(cf.Backend)
		if err != nil {
			spinner.Fail()
			return fmt.Errorf("unable to create backend '%s': %w", cf.Backend, err)
		}
		nodes := registry.New()
		c, err := cloud.New(cloudConfig(cf), backend, nodes)
		if err != nil {
			spinner.Fail()
			return err
		}
		spinner.Success(fmt.Sprintf("Cloud %s ready (%s backend)", color.HiCyanString(c.Name()), c.Backend()))

		spinner = ui.NewSpinner(fmt.Sprintf("Provisioning compound node for label %s", requested))
		planned, err := c.Plan(requested, 1)
		if err != nil {
			spinner.Fail()
			return err
		}
		spinner.UpdateMessage(fmt.Sprintf("Assembling %s", planned.Name))

		ctx, cancel := context.WithTimeout(cmd.Context(), viper.GetDuration(flags.WaitTimeout))
		defer cancel()

		node, err := planned.Wait(ctx)
		if err != nil {
			// Roll back whatever is still being provisioned, sub-nodes the
			// backend is still creating are released once they are up
			spinner.UpdateMessage(fmt.Sprintf("Rolling back %s", planned.Name))
			c.Shutdown()
			c.Wait()
			if ctx.Err() != nil {
				spinner.Warn(fmt.Sprintf("Gave up waiting for %s", planned.Name))
				return fmt.Errorf("compound node '%s' was not assembled: %w", planned.Name, ctx.Err())
			}
			spinner.Fail()
			return err
		}
		spinner.Success(fmt.Sprintf("Compound node %s online", color.HiCyanString(node.Name())))
		c.Shutdown()

		printCompoundNode(cmd, node)

		if lo.Must(cmd.Flags().GetBool("release")) {
			return release(cmd.Context(), backend, nodes, node)
		}
		return nil
	},
}

func init() {
	provisionCmd.Flags().Bool("release", false, "terminate the compound node once it is assembled")
}

func printCompoundNode(cmd *cobra.Command, node *cloud.CompoundNode) {
	cmd.Println()
	cmd.Printf("%-12s %s\n", "Node:", color.HiCyanString(node.Name()))
	cmd.Printf("%-12s %s\n", "Description:", node.Description())
	for _, role := range node.Roles() {
		for _, subNode := range node.SubNodes(role) {
			cmd.Printf("  %-10s %s\n", role, subNode)
		}
	}
}

func release(ctx context.Context, backend cloud.Backend, nodes *registry.Registry, node *cloud.CompoundNode) error {
	spinner := ui.NewSpinner(fmt.Sprintf("Releasing %s", node.Name()))

	cloud.NewCleaner(nodes, log.Component("cloud")).Cleanup(ctx, node.Results())
	err := nodes.Remove(node)

	// Anything the cleaner could not terminate is still held by the backend
	if r, ok := backend.(reclaimer); ok {
		err = errors.Join(err, r.Shutdown(context.WithoutCancel(ctx)))
	}

	if err != nil {
		spinner.Fail()
		return fmt.Errorf("failed to release compound node '%s': %w", node.Name(), err)
	}
	spinner.Success()
	return nil
}
