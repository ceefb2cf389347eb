package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/gammadia/compound/cli/flags"
	"github.com/gammadia/compound/cli/log"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

// Versioning information set at build time
var version, commit = "dev", "n/a"

var compoundCmd = &cobra.Command{
	Use:   "compound",
	Short: "Compound provisions worker nodes made of several sub-nodes.",

	SilenceUsage:  true,
	SilenceErrors: true,

	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return log.Init()
	},
}

func init() {
	compoundCmd.AddCommand(canProvisionCmd)
	compoundCmd.AddCommand(configCmd)
	compoundCmd.AddCommand(provisionCmd)
	compoundCmd.AddCommand(versionCmd)

	flags.Register(compoundCmd.PersistentFlags())
	compoundCmd.PersistentFlags().StringArrayP("param", "p", nil, "cloudfile template parameter (KEY=VALUE)")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	compoundCmd.SetOut(os.Stdout)
	if err := compoundCmd.ExecuteContext(ctx); err != nil {
		lo.Must(fmt.Fprintln(os.Stderr, color.HiRedString(fmt.Sprint(err))))
		os.Exit(1)
	}
}
