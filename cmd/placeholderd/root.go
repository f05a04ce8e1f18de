package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/next-trace/scg-placeholder-bus/config"
	"github.com/next-trace/scg-placeholder-bus/placeholder"
)

type app struct {
	cfgPath   string
	transport string
	namespace string
	debug     bool

	cfg    config.Config
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "placeholderd",
		Short: "Serve and request placeholders over a message bus",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load(cmd)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			_ = cmd.Help()
			return fmt.Errorf("no command specified")
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&a.cfgPath, "config", "c", "", "TOML config file (default $"+config.EnvPath+")")
	root.PersistentFlags().StringVar(&a.transport, "transport", "", "override transport: memory, nats, rabbitmq or kafka")
	root.PersistentFlags().StringVar(&a.namespace, "namespace", "", "override the channel namespace")
	root.PersistentFlags().BoolVar(&a.debug, "debug", false, "log request latency")

	root.AddCommand(newServeCmd(a))
	root.AddCommand(newRequestCmd(a))

	return root
}

func (a *app) load(cmd *cobra.Command) error {
	cfg, err := config.Load(a.cfgPath)
	if err != nil {
		return err
	}

	if a.transport != "" {
		cfg.Transport = a.transport
	}

	if a.namespace != "" {
		cfg.Namespace = a.namespace
	}

	if a.debug {
		cfg.Debug = true
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	a.cfg = cfg
	a.logger = cfg.Log.NewLogger(cmd.ErrOrStderr())
	a.logger.Debug("command started", "command", cmd.Name(), "transport", cfg.Transport)

	return nil
}

func (a *app) apiOptions() []placeholder.Option {
	return []placeholder.Option{
		placeholder.WithNamespace(a.cfg.Namespace),
		placeholder.WithDefaultTimeout(a.cfg.Timeout()),
		placeholder.WithDebug(a.cfg.Debug),
	}
}
