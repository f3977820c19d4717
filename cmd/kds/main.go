package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const appName = "kds"

// Version info set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           appName,
		Short:         "Kitchen display for the Appetite order queue",
		Long:          "kds follows the kitchen order queue live, changes order status and submits new orders against the Appetite backend.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().String("token", "", "bearer token (overrides auth.token)")
	cmd.PersistentFlags().String("role", "", "staff role: administrador, cocinero, mesero or cajero (overrides auth.role)")
	cmd.PersistentFlags().StringArray("config-arg", nil, "argument passed through to the configuration loader")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newOrderCmd())
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s (commit: %s)\n", appName, Version, Commit)
		},
	}
}

func execute(cmd *cobra.Command) int {
	if err := cmd.Execute(); err != nil {
		printFailure(cmd, err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(execute(newRootCmd()))
}
