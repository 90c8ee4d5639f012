package mcp

import (
	"context"
	"fmt"

	"github.com/hupe1980/agentswarm/core"
	"github.com/hupe1980/agentswarm/logging"
	"github.com/hupe1980/agentswarm/tool"
)

// LoadOptions configure LoadTools.
type LoadOptions struct {
	Mapping Mapping
	Client  []func(o *ClientOptions)
	Logger  logging.Logger
}

// LoadTools resolves the server configs, connects, and returns the MCP tools
// followed by one ActionTool per action, together with the client that owns
// the sessions (nil when there are no servers).
//
// Any connection error, or ending up with no tools at all, is reported as a
// ToolInitialization failure.
func LoadTools(ctx context.Context, configs []ServerConfig, actions []tool.Action, optFns ...func(o *LoadOptions)) ([]tool.Tool, *Client, error) {
	opts := LoadOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.Logger = logging.OrNoOp(opts.Logger)

	resolved := opts.Mapping.Resolve(configs, opts.Logger)

	var (
		tools  []tool.Tool
		client *Client
	)

	if len(resolved) > 0 {
		clientOpts := append([]func(o *ClientOptions){func(o *ClientOptions) { o.Logger = opts.Logger }}, opts.Client...)
		client = NewClient(resolved, clientOpts...)

		if err := client.Connect(ctx); err != nil {
			return nil, nil, core.NewFailure(core.ToolInitialization, "", err)
		}

		remote, err := client.Tools(ctx)
		if err != nil {
			client.Close()
			return nil, nil, core.NewFailure(core.ToolInitialization, "", err)
		}
		tools = append(tools, remote...)
	}

	tools = append(tools, tool.ActionTools(actions)...)

	if len(tools) == 0 {
		if client != nil {
			client.Close()
		}
		return nil, nil, core.NewFailure(core.ToolInitialization, "", fmt.Errorf("no tools available"))
	}

	opts.Logger.Info("mcp.tools.loaded", "servers", len(resolved), "actions", len(actions), "tools", len(tools))

	return tools, client, nil
}

// Source opens the configured servers through LoadTools each time a turn
// needs them, so an unreachable server surfaces as a ToolInitialization
// failure of that turn instead of failing at startup.
type Source struct {
	configs []ServerConfig
	optFns  []func(o *LoadOptions)
}

// NewSource returns a tool.Source over configs.
func NewSource(configs []ServerConfig, optFns ...func(o *LoadOptions)) *Source {
	return &Source{configs: configs, optFns: optFns}
}

// Open implements tool.Source.
func (s *Source) Open(ctx context.Context) ([]tool.Tool, func() error, error) {
	tools, client, err := LoadTools(ctx, s.configs, nil, s.optFns...)
	if err != nil {
		return nil, nil, err
	}
	if client == nil {
		return tools, func() error { return nil }, nil
	}
	return tools, client.Close, nil
}
