package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/appetiteclub/appetite-client/internal/kitchen"
	"github.com/spf13/cobra"
)

func newWatchCmd() *cobra.Command {
	var (
		table  int64
		filter string
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Show the kitchen queue in the terminal",
		Long:  "Follows the kitchen queue live and redraws it on every change. Falls back to polling while the live channel is down.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, table, filter)
		},
	}

	cmd.Flags().Int64Var(&table, "table", 0, "follow a single table instead of the whole kitchen")
	cmd.Flags().StringVar(&filter, "filter", string(kitchen.FilterAll), "all, urgent, in_preparation or pending")
	return cmd
}

func runWatch(cmd *cobra.Command, table int64, filterName string) error {
	f, ok := kitchen.ParseFilter(filterName)
	if !ok {
		return fmt.Errorf("%w: %q", kitchen.ErrUnknownFilter, filterName)
	}

	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	ctrl, err := a.controller(profileFor(table))
	if err != nil {
		return err
	}
	if err := ctrl.SetFilter(f); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	_, changes := ctrl.Subscribe()
	if err := ctrl.Start(ctx); err != nil {
		return err
	}
	defer ctrl.Stop(context.Background())

	out := cmd.OutOrStdout()
	tty := stdoutIsTerminal()
	draw := func() {
		if tty {
			fmt.Fprint(out, clearScreen)
		}
		renderView(out, ctrl.View(), terminalWidth(os.Stdout))
		if !tty {
			fmt.Fprintln(out)
		}
	}
	draw()

	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-changes:
			if !ok {
				return nil
			}
			draw()
		}
	}
}
