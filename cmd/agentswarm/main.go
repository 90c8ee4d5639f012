// Command agentswarm chats with the expert swarm from the terminal.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hupe1980/agentswarm"
	"github.com/hupe1980/agentswarm/config"
)

var version = "dev"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

type rootOptions struct {
	configPath string
	logLevel   string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "agentswarm",
		Short:         "Multi-agent swarm with research, plan and execute roles",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "config file (default $"+config.EnvConfigPath+")")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override log level (debug, info, warn, error)")

	cmd.AddCommand(
		newChatCommand(opts),
		newRunCommand(opts),
		newRoutesCommand(opts),
		newHistoryCommand(opts),
	)

	return cmd
}

func (o *rootOptions) load() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, fmt.Errorf("error loading config: %w", err)
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	return cfg, nil
}

func (o *rootOptions) build(ctx context.Context, optFns ...func(o *agentswarm.Options)) (*agentswarm.App, *config.Config, error) {
	cfg, err := o.load()
	if err != nil {
		return nil, nil, err
	}
	app, err := agentswarm.Build(ctx, cfg, optFns...)
	if err != nil {
		return nil, nil, err
	}
	return app, cfg, nil
}
