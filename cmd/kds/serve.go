package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/appetiteclub/appetite-client/internal/dashboard"
	"github.com/appetiteclub/appetite-client/internal/kitchen"
	"github.com/appetiteclub/apt"
	"github.com/appetiteclub/apt/middleware"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var table int64

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the kitchen queue with a local HTTP dashboard",
		Long:  "Keeps the kitchen queue in sync with the backend and exposes it on web.port as JSON and a Server-Sent Events feed.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, table)
		},
	}

	cmd.Flags().Int64Var(&table, "table", 0, "follow a single table instead of the whole kitchen")
	return cmd
}

func runServe(cmd *cobra.Command, table int64) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT,
	)
	defer stop()

	ctrl, err := a.controller(profileFor(table))
	if err != nil {
		return err
	}
	handler := dashboard.NewHandler(ctrl, a.logger)

	stack := middleware.DefaultStack(middleware.StackOptions{
		Logger:      a.logger,
		DisableCORS: true,
	})
	stack = append(stack, middleware.InternalOnly())

	options := []apt.Option{
		apt.WithConfig(a.props),
		apt.WithLogger(a.logger),
		apt.WithHTTPMiddleware(stack...),
		apt.WithHTTPServerModules("web.port", handler),
		apt.WithLifecycle(ctrl),
		apt.WithHealthChecks(appName),
	}

	ms := apt.NewMicro(options...)
	a.logger.Infof("Starting %s(%s)", appName, Version)

	if err := ms.Run(ctx); err != nil {
		return fmt.Errorf("%s(%s) stopped: %w", appName, Version, err)
	}

	a.logger.Infof("%s(%s) stopped", appName, Version)
	return nil
}

func profileFor(table int64) kitchen.Profile {
	if table > 0 {
		return kitchen.TableView(table)
	}
	return kitchen.KitchenView
}
