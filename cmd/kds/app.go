package main

import (
	"fmt"
	"os"

	"github.com/appetiteclub/appetite-client/internal/api"
	"github.com/appetiteclub/appetite-client/internal/auth"
	"github.com/appetiteclub/appetite-client/internal/config"
	"github.com/appetiteclub/appetite-client/internal/kitchen"
	"github.com/appetiteclub/appetite-client/internal/live"
	"github.com/appetiteclub/apt"
	"github.com/spf13/cobra"
)

const appNamespace = "KDS"

// app holds what every command needs: settings, a logger and the REST client.
type app struct {
	props  *apt.Config
	cfg    *config.Config
	logger apt.Logger
	tokens *auth.TokenStore
	client *api.Client
}

func configArgs(cmd *cobra.Command) []string {
	args, _ := cmd.Flags().GetStringArray("config-arg")
	return args
}

func loadApp(cmd *cobra.Command) (*app, error) {
	props, err := apt.LoadConfig(appNamespace, configArgs(cmd))
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg, err := config.Load(props)
	if err != nil {
		return nil, err
	}
	if token, _ := cmd.Flags().GetString("token"); token != "" {
		cfg.Auth.Token = token
	}
	if raw, _ := cmd.Flags().GetString("role"); raw != "" {
		if err := cfg.SetRole(raw); err != nil {
			return nil, err
		}
	}

	logger := apt.NewLogger(cfg.LogLevel)
	tokens := auth.NewTokenStore(cfg.Auth.Token)

	client, err := api.NewClient(cfg.API.URL,
		api.WithTimeout(cfg.API.Timeout),
		api.WithTokenSource(tokens),
		api.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	return &app{
		props:  props,
		cfg:    cfg,
		logger: logger,
		tokens: tokens,
		client: client,
	}, nil
}

func (a *app) liveOptions() (live.Options, error) {
	target, err := a.cfg.LiveURL()
	if err != nil {
		return live.Options{}, err
	}

	opts := live.Options{
		URL:          target,
		Tokens:       a.tokens,
		BackoffBase:  a.cfg.Live.BackoffBase,
		BackoffMax:   a.cfg.Live.BackoffMax,
		BackoffDecay: a.cfg.Live.BackoffDecay,
		MaxAttempts:  a.cfg.Live.MaxAttempts,
		PingInterval: a.cfg.Live.PingInterval,
	}

	switch a.cfg.Live.Transport {
	case config.TransportNATS:
		opts.Dialer = &live.NATSDialer{
			Subject: a.cfg.Live.Subject,
			Timeout: a.cfg.Live.HandshakeTimeout,
		}
	default:
		opts.Dialer = &live.WebSocketDialer{HandshakeTimeout: a.cfg.Live.HandshakeTimeout}
	}
	return opts, nil
}

func (a *app) controller(profile kitchen.Profile) (*kitchen.Controller, error) {
	liveOpts, err := a.liveOptions()
	if err != nil {
		return nil, err
	}
	if profile.Table == 0 {
		profile.PollInterval = a.cfg.Queue.PollInterval
	}

	return kitchen.NewController(kitchen.Options{
		Service:         a.client,
		Role:            a.cfg.Auth.Role,
		Profile:         profile,
		Live:            liveOpts,
		RecentHours:     a.cfg.Queue.RecentHours,
		UrgentAfter:     a.cfg.Queue.UrgentAfter,
		DisconnectGrace: a.cfg.Queue.DisconnectGrace,
		Logger:          a.logger,
	})
}

// printFailure writes err the way the board shows it.
func printFailure(cmd *cobra.Command, err error) {
	b := api.Describe(err)
	out := cmd.ErrOrStderr()
	fmt.Fprintf(out, "%s: %s\n", b.Kind, b.Message)
	if b.Suggestion != "" {
		fmt.Fprintf(out, "  %s\n", b.Suggestion)
	}
}

func stdoutIsTerminal() bool {
	return isTerminal(os.Stdout)
}
